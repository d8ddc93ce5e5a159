package msgpack

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"reflect"
	"unsafe"

	vmsgpack "github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"

	"github.com/ldubos/facet/derive"
	"github.com/ldubos/facet/driver"
	"github.com/ldubos/facet/errors"
	"github.com/ldubos/facet/poke"
	"github.com/ldubos/facet/shape"
)

// Decode reads one MessagePack value from data into a new value of shape
// s. Bytes left over after the value fail with TrailingContents.
func Decode(data []byte, s *shape.Shape, opts driver.Options) (*poke.Value, error) {
	w := driver.NewWriterWithOptions(poke.New(s), opts)
	if err := decodeAll(data, w, opts); err != nil {
		w.Abandon()
		return nil, err
	}
	return w.Finish()
}

// Unmarshal decodes data into the value v points to.
func Unmarshal(data []byte, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New(errors.PhaseDecode, errors.KindNilPointer).
			Found(fmt.Sprintf("%T", v)).
			Detail("Unmarshal needs a non-nil pointer").
			Build()
	}
	s, err := derive.Of(rv.Type().Elem())
	if err != nil {
		return err
	}
	opts := driver.DefaultOptions()
	w := driver.NewWriterWithOptions(poke.Into(s, unsafe.Pointer(rv.Pointer())), opts)
	if err := decodeAll(data, w, opts); err != nil {
		w.Abandon()
		return err
	}
	_, err = w.Finish()
	return err
}

func decodeAll(data []byte, w *driver.Writer, opts driver.Options) error {
	r := bytes.NewReader(data)
	d := &decoder{
		r:     r,
		dec:   vmsgpack.NewDecoder(r),
		w:     w,
		limit: opts.MaxDepth,
	}
	if d.limit <= 0 {
		d.limit = driver.DefaultMaxDepth
	}
	if err := d.value(w.Expect(), 0); err != nil {
		return err
	}
	if r.Len() > 0 {
		return d.located(errors.New(errors.PhaseDecode, errors.KindTrailingContents).
			Detail("%d bytes after the value", r.Len()).
			Build())
	}
	return nil
}

type decoder struct {
	r     *bytes.Reader
	dec   *vmsgpack.Decoder
	w     *driver.Writer
	limit int
}

func (d *decoder) offset() int64 {
	return d.r.Size() - int64(d.r.Len())
}

func (d *decoder) located(err error) error {
	if err == nil {
		return nil
	}
	return errors.WithLocation(err, fmt.Sprintf("offset %d", d.offset()))
}

// read converts a msgpack library error.
func (d *decoder) read(err error) error {
	if stderrors.Is(err, io.EOF) || stderrors.Is(err, io.ErrUnexpectedEOF) {
		return d.located(errors.Wrap(errors.PhaseDecode, errors.KindUnexpectedEOF, err, "truncated msgpack"))
	}
	return d.located(errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "read msgpack"))
}

func isMap(c byte) bool {
	return msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32
}

func isArray(c byte) bool {
	return msgpcode.IsFixedArray(c) || c == msgpcode.Array16 || c == msgpcode.Array32
}

// value decodes one value into the slot whose shape is target; target is
// nil while the writer discards an unknown field.
func (d *decoder) value(target *shape.Shape, depth int) error {
	if depth >= d.limit {
		return d.located(errors.DepthExceeded(errors.PhaseDecode, nil, d.limit))
	}
	under := target.Underlying()

	c, err := d.dec.PeekCode()
	if err != nil {
		return d.read(err)
	}
	switch {
	case isMap(c):
		n, err := d.dec.DecodeMapLen()
		if err != nil {
			return d.read(err)
		}
		if under != nil && under.Kind == shape.KindEnum && n == 1 {
			return d.variant(under, depth)
		}
		return d.entries(n, under, depth)
	case isArray(c):
		n, err := d.dec.DecodeArrayLen()
		if err != nil {
			return d.read(err)
		}
		return d.elements(n, under, depth)
	}

	v, err := d.scalar(under)
	if err != nil {
		return err
	}
	return d.located(d.w.Scalar(v))
}

func (d *decoder) scalar(under *shape.Shape) (any, error) {
	v, err := d.dec.DecodeInterface()
	if err != nil {
		return nil, d.read(err)
	}
	// text arrives as string or bin depending on the writer
	if b, ok := v.([]byte); ok && under != nil && under.Kind != shape.KindBytes && under.Kind != shape.KindOpaque {
		return string(b), nil
	}
	return v, nil
}

// hint bounds a wire length by the bytes left, as every element takes at
// least one.
func (d *decoder) hint(n int) int {
	return min(n, d.r.Len())
}

func (d *decoder) elements(n int, under *shape.Shape, depth int) error {
	if err := d.located(d.w.BeginSeq(d.hint(n))); err != nil {
		return err
	}
	for i := range n {
		if err := d.located(d.w.Element()); err != nil {
			return err
		}
		if err := d.value(elementShape(under, i), depth+1); err != nil {
			return err
		}
	}
	return d.located(d.w.EndSeq())
}

func elementShape(s *shape.Shape, i int) *shape.Shape {
	if s == nil {
		return nil
	}
	switch s.Kind {
	case shape.KindSeq:
		return s.Elem
	case shape.KindTuple:
		if i < len(s.Fields) {
			return s.Fields[i].Shape
		}
	}
	return nil
}

func (d *decoder) entries(n int, under *shape.Shape, depth int) error {
	if err := d.located(d.w.BeginMap(d.hint(n))); err != nil {
		return err
	}
	for range n {
		var key any
		var valueShape *shape.Shape
		switch {
		case under != nil && under.Kind == shape.KindMap:
			k, err := d.scalar(under.Key.Underlying())
			if err != nil {
				return err
			}
			key, valueShape = k, under.Elem
		default:
			name, err := d.dec.DecodeString()
			if err != nil {
				return d.read(err)
			}
			key = name
			if under != nil && under.Kind == shape.KindStruct {
				if fi := under.FieldIndex(name); fi >= 0 {
					valueShape = under.Fields[fi].Shape
				}
			}
		}

		if err := d.located(d.w.Entry(key)); err != nil {
			return err
		}
		if err := d.value(valueShape, depth+1); err != nil {
			return err
		}
	}
	return d.located(d.w.EndMap())
}

// variant decodes {name: payload}.
func (d *decoder) variant(enum *shape.Shape, depth int) error {
	name, err := d.dec.DecodeString()
	if err != nil {
		return d.read(err)
	}
	vi := enum.VariantIndex(name)
	if vi < 0 {
		return d.located(errors.NoSuchVariant(errors.PhaseDecode, nil, enum.Name, name))
	}
	if err := d.located(d.w.SelectVariant(name)); err != nil {
		return err
	}

	fields := enum.Variants[vi].Fields
	if len(fields) == 0 {
		if err := d.dec.DecodeNil(); err != nil {
			return d.located(errors.InvalidData(errors.PhaseDecode, nil, "unit variant "+name+" takes no payload"))
		}
		return nil
	}

	c, err := d.dec.PeekCode()
	if err != nil {
		return d.read(err)
	}
	switch {
	case isMap(c):
		n, err := d.dec.DecodeMapLen()
		if err != nil {
			return d.read(err)
		}
		return d.entries(n, &shape.Shape{Name: enum.Name, Kind: shape.KindStruct, Fields: fields}, depth+1)
	case isArray(c):
		n, err := d.dec.DecodeArrayLen()
		if err != nil {
			return d.read(err)
		}
		return d.elements(n, &shape.Shape{Name: enum.Name, Kind: shape.KindTuple, Fields: fields}, depth+1)
	}
	return d.value(fields[0].Shape, depth+1)
}
