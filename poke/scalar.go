package poke

import (
	"reflect"

	"github.com/ldubos/facet/errors"
	"github.com/ldubos/facet/internal/coerce"
	"github.com/ldubos/facet/shape"
)

func (p *Partial) setScalar(v any) error {
	s := p.shape
	k := s.Kind

	fail := func(st coerce.Status) error {
		if st == coerce.OutOfRange {
			return errors.Overflow(errors.PhaseBuild, p.path.Segments(), v, s.Name)
		}
		return errors.TypeMismatch(errors.PhaseBuild, p.path.Segments(), s.Name+" ("+k.String()+")", coerce.TypeName(v))
	}

	// convert first so a failed Set leaves the old value in place
	var write func()
	switch {
	case k == shape.KindBool:
		b, st := coerce.Bool(v)
		if st != coerce.OK {
			return fail(st)
		}
		write = func() { *(*bool)(p.ptr) = b }
	case k.IsSigned():
		n, st := coerce.Int(v, k.Bits())
		if st != coerce.OK {
			return fail(st)
		}
		write = func() { p.writeInt(n) }
	case k.IsUnsigned():
		n, st := coerce.Uint(v, k.Bits())
		if st != coerce.OK {
			return fail(st)
		}
		write = func() { p.writeUint(n) }
	case k.IsFloat():
		f, st := coerce.Float(v, k.Bits())
		if st != coerce.OK {
			return fail(st)
		}
		if k == shape.KindFloat32 {
			write = func() { *(*float32)(p.ptr) = float32(f) }
		} else {
			write = func() { *(*float64)(p.ptr) = f }
		}
	case k == shape.KindChar:
		r, st := coerce.Char(v)
		if st != coerce.OK {
			return fail(st)
		}
		write = func() { *(*rune)(p.ptr) = r }
	case k == shape.KindString:
		str, st := coerce.String(v)
		if st != coerce.OK {
			return fail(st)
		}
		write = func() { *(*string)(p.ptr) = str }
	case k == shape.KindBytes:
		b, st := coerce.Bytes(v)
		if st != coerce.OK {
			return fail(st)
		}
		write = func() { *(*[]byte)(p.ptr) = b }
	case k == shape.KindOpaque:
		rv := reflect.ValueOf(v)
		switch {
		case v == nil && s.Type.Kind() == reflect.Interface:
			write = func() { s.Zero(p.ptr) }
		case v != nil && rv.Type().AssignableTo(s.Type):
			write = func() { reflect.NewAt(s.Type, p.ptr).Elem().Set(rv) }
		default:
			return fail(coerce.Mismatch)
		}
	default:
		return p.mismatch("scalar")
	}

	if p.init {
		teardown(s, p.ptr)
	}
	write()
	p.init = true
	return nil
}

func (p *Partial) writeInt(n int64) {
	switch p.shape.Kind {
	case shape.KindInt8:
		*(*int8)(p.ptr) = int8(n)
	case shape.KindInt16:
		*(*int16)(p.ptr) = int16(n)
	case shape.KindInt32:
		*(*int32)(p.ptr) = int32(n)
	case shape.KindInt64:
		*(*int64)(p.ptr) = n
	case shape.KindInt:
		*(*int)(p.ptr) = int(n)
	}
}

func (p *Partial) writeUint(n uint64) {
	switch p.shape.Kind {
	case shape.KindUint8:
		*(*uint8)(p.ptr) = uint8(n)
	case shape.KindUint16:
		*(*uint16)(p.ptr) = uint16(n)
	case shape.KindUint32:
		*(*uint32)(p.ptr) = uint32(n)
	case shape.KindUint64:
		*(*uint64)(p.ptr) = n
	case shape.KindUint:
		*(*uint)(p.ptr) = uint(n)
	case shape.KindUintptr:
		*(*uintptr)(p.ptr) = uintptr(n)
	}
}
