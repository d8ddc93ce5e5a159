package peek

import (
	"reflect"

	"github.com/ldubos/facet/errors"
	"github.com/ldubos/facet/shape"
)

func (p Peek) typeMismatch(expected string) error {
	return errors.TypeMismatch(errors.PhasePeek, p.path.Segments(), expected, p.shape.Name+" ("+p.shape.Kind.String()+")")
}

// Bool reads a bool.
func (p Peek) Bool() (bool, error) {
	if p.shape.Kind != shape.KindBool {
		return false, p.typeMismatch("bool")
	}
	return *(*bool)(p.ptr), nil
}

// Int reads any signed integer kind, widened to int64.
func (p Peek) Int() (int64, error) {
	switch p.shape.Kind {
	case shape.KindInt8:
		return int64(*(*int8)(p.ptr)), nil
	case shape.KindInt16:
		return int64(*(*int16)(p.ptr)), nil
	case shape.KindInt32:
		return int64(*(*int32)(p.ptr)), nil
	case shape.KindInt64:
		return *(*int64)(p.ptr), nil
	case shape.KindInt:
		return int64(*(*int)(p.ptr)), nil
	}
	return 0, p.typeMismatch("signed integer")
}

// Uint reads any unsigned integer kind, widened to uint64.
func (p Peek) Uint() (uint64, error) {
	switch p.shape.Kind {
	case shape.KindUint8:
		return uint64(*(*uint8)(p.ptr)), nil
	case shape.KindUint16:
		return uint64(*(*uint16)(p.ptr)), nil
	case shape.KindUint32:
		return uint64(*(*uint32)(p.ptr)), nil
	case shape.KindUint64:
		return *(*uint64)(p.ptr), nil
	case shape.KindUint:
		return uint64(*(*uint)(p.ptr)), nil
	case shape.KindUintptr:
		return uint64(*(*uintptr)(p.ptr)), nil
	}
	return 0, p.typeMismatch("unsigned integer")
}

// Float reads float32 or float64, widened to float64.
func (p Peek) Float() (float64, error) {
	switch p.shape.Kind {
	case shape.KindFloat32:
		return float64(*(*float32)(p.ptr)), nil
	case shape.KindFloat64:
		return *(*float64)(p.ptr), nil
	}
	return 0, p.typeMismatch("float")
}

// Str reads a string.
func (p Peek) Str() (string, error) {
	if p.shape.Kind != shape.KindString {
		return "", p.typeMismatch("string")
	}
	return *(*string)(p.ptr), nil
}

// Bytes reads a byte slice. The result aliases the value's memory.
func (p Peek) Bytes() ([]byte, error) {
	if p.shape.Kind != shape.KindBytes {
		return nil, p.typeMismatch("bytes")
	}
	return *(*[]byte)(p.ptr), nil
}

// Char reads a Unicode scalar value.
func (p Peek) Char() (rune, error) {
	if p.shape.Kind != shape.KindChar {
		return 0, p.typeMismatch("char")
	}
	return *(*rune)(p.ptr), nil
}

// Scalar reads any scalar kind as its canonical Go type: bool, int64,
// uint64, float64, rune, string or []byte. Opaque values are returned as-is.
func (p Peek) Scalar() (any, error) {
	k := p.shape.Kind
	switch {
	case k == shape.KindBool:
		return p.Bool()
	case k.IsSigned():
		return p.Int()
	case k.IsUnsigned():
		return p.Uint()
	case k.IsFloat():
		return p.Float()
	case k == shape.KindChar:
		return p.Char()
	case k == shape.KindString:
		return p.Str()
	case k == shape.KindBytes:
		return p.Bytes()
	case k == shape.KindOpaque:
		return p.Interface(), nil
	}
	return nil, p.typeMismatch("scalar")
}

// Get reads the value as T. T must be the value's own Go type, or, for
// scalar kinds, any Go type of the same kind (e.g. int64 for a named int64).
func Get[T any](p Peek) (T, error) {
	var zero T
	t := reflect.TypeFor[T]()
	if t == p.shape.Type {
		return *(*T)(p.ptr), nil
	}
	if p.shape.Kind.IsScalar() && p.shape.Kind != shape.KindOpaque && sameKind(t, p.shape.Kind) {
		return *(*T)(p.ptr), nil
	}
	return zero, errors.TypeMismatch(errors.PhasePeek, p.path.Segments(), t.String(), p.shape.Name+" ("+p.shape.Kind.String()+")")
}

func sameKind(t reflect.Type, k shape.Kind) bool {
	switch t.Kind() {
	case reflect.Bool:
		return k == shape.KindBool
	case reflect.Int8:
		return k == shape.KindInt8
	case reflect.Int16:
		return k == shape.KindInt16
	case reflect.Int32:
		return k == shape.KindInt32 || k == shape.KindChar
	case reflect.Int64:
		return k == shape.KindInt64
	case reflect.Int:
		return k == shape.KindInt
	case reflect.Uint8:
		return k == shape.KindUint8
	case reflect.Uint16:
		return k == shape.KindUint16
	case reflect.Uint32:
		return k == shape.KindUint32
	case reflect.Uint64:
		return k == shape.KindUint64
	case reflect.Uint:
		return k == shape.KindUint
	case reflect.Uintptr:
		return k == shape.KindUintptr
	case reflect.Float32:
		return k == shape.KindFloat32
	case reflect.Float64:
		return k == shape.KindFloat64
	case reflect.String:
		return k == shape.KindString
	case reflect.Slice:
		return k == shape.KindBytes && t.Elem().Kind() == reflect.Uint8
	}
	return false
}
