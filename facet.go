package facet

import (
	"reflect"
	"unsafe"

	motmedelReflect "github.com/Motmedel/utils_go/pkg/reflect"

	"github.com/ldubos/facet/derive"
	"github.com/ldubos/facet/errors"
	"github.com/ldubos/facet/peek"
	"github.com/ldubos/facet/poke"
	"github.com/ldubos/facet/shape"
)

// ShapeOf returns the shape of T, deriving it on first use.
func ShapeOf[T any]() (*shape.Shape, error) {
	return derive.For[T]()
}

// PeekOf returns a read-only view of the value v points to. Any number of
// pointer indirections is followed; a nil pointer fails with NilPointer.
func PeekOf(v any) (peek.Peek, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return peek.Peek{}, errors.New(errors.PhasePeek, errors.KindNilPointer).
			Detail("cannot peek untyped nil").
			Build()
	}
	if rv.Kind() != reflect.Pointer {
		// peek a copy so the view has an address
		cp := reflect.New(rv.Type())
		cp.Elem().Set(rv)
		rv = cp
	}

	target := motmedelReflect.RemoveIndirection(rv.Type())
	for rv.Type().Elem() != target {
		if rv.IsNil() {
			return peek.Peek{}, nilPointer(rv.Type())
		}
		rv = rv.Elem()
	}
	if rv.IsNil() {
		return peek.Peek{}, nilPointer(rv.Type())
	}

	s, err := derive.Of(target)
	if err != nil {
		return peek.Peek{}, err
	}
	return peek.New(s, rv.UnsafePointer()), nil
}

func nilPointer(t reflect.Type) error {
	return errors.New(errors.PhasePeek, errors.KindNilPointer).
		Found(t.String()).
		Detail("nil pointer").
		Build()
}

// Build starts a builder for a new value of T.
func Build[T any](opts ...poke.Options) (*poke.Partial, error) {
	s, err := derive.For[T]()
	if err != nil {
		return nil, err
	}
	if len(opts) > 0 {
		return poke.NewWithOptions(s, opts[0]), nil
	}
	return poke.New(s), nil
}

// Into starts a builder that constructs a T in place at dst. The current
// contents of *dst are discarded.
func Into[T any](dst *T) (*poke.Partial, error) {
	if dst == nil {
		return nil, nilPointer(reflect.TypeFor[*T]())
	}
	s, err := derive.For[T]()
	if err != nil {
		return nil, err
	}
	return poke.Into(s, unsafe.Pointer(dst)), nil
}
