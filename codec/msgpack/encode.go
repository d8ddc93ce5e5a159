package msgpack

import (
	"bytes"
	"io"
	"iter"

	vmsgpack "github.com/vmihailenco/msgpack/v5"

	"github.com/ldubos/facet"
	"github.com/ldubos/facet/driver"
	"github.com/ldubos/facet/errors"
	"github.com/ldubos/facet/peek"
	"github.com/ldubos/facet/shape"
)

// Marshal encodes the value v (or the value it points to).
func Marshal(v any) ([]byte, error) {
	p, err := facet.PeekOf(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := Encode(&buf, p, driver.DefaultOptions()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes the value p views to w. Structs become maps keyed by
// field name; with opts.OmitNone absent options are left out.
func Encode(w io.Writer, p peek.Peek, opts driver.Options) error {
	e := &encoder{enc: vmsgpack.NewEncoder(w), omitNone: opts.OmitNone}
	return driver.Walk(p, e, opts)
}

type encoder struct {
	driver.BaseVisitor
	enc      *vmsgpack.Encoder
	omitNone bool
}

func (e *encoder) fail(err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, "write msgpack")
}

// fieldCount counts the fields the walk will visit, so the map header
// can be written first.
func (e *encoder) fieldCount(fields iter.Seq2[*shape.Field, peek.Peek]) int {
	n := 0
	for _, fp := range fields {
		if e.omitNone && fp.Kind() == shape.KindOption && !fp.IsSome() {
			continue
		}
		n++
	}
	return n
}

func (e *encoder) BeginStruct(p peek.Peek) error {
	var n int
	if p.Kind() == shape.KindEnum {
		vp, err := p.Variant()
		if err != nil {
			return err
		}
		n = e.fieldCount(vp.Fields())
	} else {
		n = e.fieldCount(p.Fields())
	}
	return e.fail(e.enc.EncodeMapLen(n))
}

func (e *encoder) Field(f *shape.Field, _ peek.Peek) error {
	return e.fail(e.enc.EncodeString(f.Name))
}

func (e *encoder) BeginSeq(_ peek.Peek, n int) error {
	return e.fail(e.enc.EncodeArrayLen(n))
}

func (e *encoder) BeginMap(_ peek.Peek, n int) error {
	return e.fail(e.enc.EncodeMapLen(n))
}

func (e *encoder) Entry(key peek.Peek) error {
	for key.Kind() == shape.KindWrapper {
		inner, err := key.Inner()
		if err != nil {
			return err
		}
		key = inner
	}
	return e.Scalar(key)
}

func (e *encoder) None(peek.Peek) error {
	return e.fail(e.enc.EncodeNil())
}

// Unit variants are written as their name, others as a one-entry map from
// the name to the payload.
func (e *encoder) Variant(_ peek.Peek, v *shape.Variant) error {
	if !v.IsUnit() {
		if err := e.enc.EncodeMapLen(1); err != nil {
			return e.fail(err)
		}
	}
	return e.fail(e.enc.EncodeString(v.Name))
}

func (e *encoder) Scalar(p peek.Peek) error {
	var err error
	switch k := p.Kind(); {
	case k == shape.KindBool:
		b, _ := p.Bool()
		err = e.enc.EncodeBool(b)
	case k.IsSigned():
		n, _ := p.Int()
		err = e.enc.EncodeInt(n)
	case k.IsUnsigned():
		n, _ := p.Uint()
		err = e.enc.EncodeUint(n)
	case k == shape.KindFloat32:
		f, _ := p.Float()
		err = e.enc.EncodeFloat32(float32(f))
	case k == shape.KindFloat64:
		f, _ := p.Float()
		err = e.enc.EncodeFloat64(f)
	case k == shape.KindChar:
		r, _ := p.Char()
		err = e.enc.EncodeString(string(r))
	case k == shape.KindString:
		s, _ := p.Str()
		err = e.enc.EncodeString(s)
	case k == shape.KindBytes:
		b, _ := p.Bytes()
		err = e.enc.EncodeBytes(b)
	case k == shape.KindEnum:
		vp, verr := p.Variant()
		if verr != nil {
			return verr
		}
		err = e.enc.EncodeString(vp.Name())
	case k == shape.KindOpaque:
		err = e.enc.Encode(p.Interface())
	default:
		return errors.Unsupported(errors.PhaseEncode, "msgpack cannot write "+p.Shape().Name+" as a scalar")
	}
	return e.fail(err)
}
