package poke

import (
	"reflect"
	"unsafe"

	"github.com/ldubos/facet/errors"
	"github.com/ldubos/facet/peek"
	"github.com/ldubos/facet/shape"
)

// Value is a fully built value. It owns its region until Drop.
type Value struct {
	shape   *shape.Shape
	ptr     unsafe.Pointer
	dropped bool
}

func (v *Value) Shape() *shape.Shape { return v.shape }
func (v *Value) Ptr() unsafe.Pointer { return v.ptr }

// Peek returns a read-only view of the value.
func (v *Value) Peek() peek.Peek {
	return peek.New(v.shape, v.ptr)
}

// Interface returns a copy of the value.
func (v *Value) Interface() any {
	return v.shape.Interface(v.ptr)
}

// Drop tears the value down. Later calls do nothing.
func (v *Value) Drop() {
	if v.dropped {
		return
	}
	v.dropped = true
	teardown(v.shape, v.ptr)
}

// As returns a copy of the value as T, which must be the value's Go type.
func As[T any](v *Value) (T, error) {
	var zero T
	t := reflect.TypeFor[T]()
	if t != v.shape.Type {
		return zero, errors.TypeMismatch(errors.PhaseBuild, nil, t.String(), v.shape.Name)
	}
	if v.dropped {
		return zero, errors.InvalidState(errors.PhaseBuild, nil, "value already dropped")
	}
	return *(*T)(v.ptr), nil
}
