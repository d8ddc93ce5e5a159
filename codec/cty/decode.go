package cty

import (
	"encoding/base64"
	"math/big"

	gocty "github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/ldubos/facet/driver"
	"github.com/ldubos/facet/errors"
	"github.com/ldubos/facet/internal/path"
	"github.com/ldubos/facet/poke"
	"github.com/ldubos/facet/shape"
)

// FromValue builds a value of shape s from v. Marks are ignored. Unknown
// values fail with InvalidData; primitive values are converted with the
// cty conversion rules when the target wants another primitive type.
func FromValue(v gocty.Value, s *shape.Shape, opts driver.Options) (*poke.Value, error) {
	v, _ = v.UnmarkDeep()
	w := driver.NewWriterWithOptions(poke.New(s), opts)
	d := &decoder{w: w}
	if err := d.value(v, w.Expect(), path.Root); err != nil {
		w.Abandon()
		return nil, err
	}
	return w.Finish()
}

type decoder struct {
	w *driver.Writer
}

func (d *decoder) value(v gocty.Value, target *shape.Shape, at path.Path) error {
	if !v.IsKnown() {
		return errors.InvalidData(errors.PhaseDecode, at.Segments(), "value is not known")
	}
	if v.IsNull() {
		return d.w.Scalar(nil)
	}
	under := target.Underlying()
	t := v.Type()

	switch {
	case t.IsObjectType() || t.IsMapType():
		if under != nil && under.Kind == shape.KindEnum && v.LengthInt() == 1 {
			return d.variant(v, under, at)
		}
		return d.entries(v, under, at)
	case t.IsListType() || t.IsSetType() || t.IsTupleType():
		return d.elements(v, under, at)
	case t.IsPrimitiveType():
		sv, err := d.primitive(v, under, at)
		if err != nil {
			return err
		}
		return d.w.Scalar(sv)
	}
	return errors.Unsupported(errors.PhaseDecode, "cty value of type "+t.FriendlyName())
}

// primitive converts v to the Go value the target kind coerces from.
func (d *decoder) primitive(v gocty.Value, under *shape.Shape, at path.Path) (any, error) {
	want := v.Type()
	if under != nil {
		switch k := under.Kind; {
		case k == shape.KindBool:
			want = gocty.Bool
		case k.IsInteger(), k.IsFloat():
			want = gocty.Number
		case k == shape.KindString, k == shape.KindChar, k == shape.KindBytes:
			want = gocty.String
		}
	}
	if !want.Equals(v.Type()) {
		cv, err := convert.Convert(v, want)
		if err != nil {
			return nil, errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
				Path(at.Segments()...).
				Expected(want.FriendlyName()).
				Found(v.Type().FriendlyName()).
				Cause(err).
				Build()
		}
		v = cv
	}

	switch v.Type() {
	case gocty.Bool:
		return v.True(), nil
	case gocty.String:
		s := v.AsString()
		if under != nil && under.Kind == shape.KindBytes {
			raw, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
					Path(at.Segments()...).
					Detail("bytes must be base64").
					Cause(err).
					Build()
			}
			return raw, nil
		}
		return s, nil
	default:
		return number(v.AsBigFloat(), under), nil
	}
}

// number narrows n to the widest Go type that holds it exactly, leaving
// range checks to the builder.
func number(n *big.Float, under *shape.Shape) any {
	if (under != nil && under.Kind.IsFloat()) || !n.IsInt() {
		f, _ := n.Float64()
		return f
	}
	if i, acc := n.Int64(); acc == big.Exact {
		return i
	}
	if u, acc := n.Uint64(); acc == big.Exact {
		return u
	}
	f, _ := n.Float64()
	return f
}

func (d *decoder) elements(v gocty.Value, under *shape.Shape, at path.Path) error {
	if err := d.w.BeginSeq(v.LengthInt()); err != nil {
		return err
	}
	i := 0
	for it := v.ElementIterator(); it.Next(); i++ {
		_, ev := it.Element()
		if err := d.w.Element(); err != nil {
			return err
		}
		if err := d.value(ev, elementShape(under, i), at.Index(i)); err != nil {
			return err
		}
	}
	return d.w.EndSeq()
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

func (d *decoder) entries(v gocty.Value, under *shape.Shape, at path.Path) error {
	if err := d.w.BeginMap(v.LengthInt()); err != nil {
		return err
	}
	for it := v.ElementIterator(); it.Next(); {
		kv, ev := it.Element()
		name := kv.AsString()

		var valueShape *shape.Shape
		if under != nil {
			switch under.Kind {
			case shape.KindMap:
				valueShape = under.Elem
			case shape.KindStruct:
				if fi := under.FieldIndex(name); fi >= 0 {
					valueShape = under.Fields[fi].Shape
				}
			}
		}
		if err := d.w.Entry(name); err != nil {
			return err
		}
		if err := d.value(ev, valueShape, at.Field(name)); err != nil {
			return err
		}
	}
	return d.w.EndMap()
}

func (d *decoder) variant(v gocty.Value, enum *shape.Shape, at path.Path) error {
	it := v.ElementIterator()
	it.Next()
	kv, payload := it.Element()
	name := kv.AsString()

	vi := enum.VariantIndex(name)
	if vi < 0 {
		return errors.NoSuchVariant(errors.PhaseDecode, at.Segments(), enum.Name, name)
	}
	if err := d.w.SelectVariant(name); err != nil {
		return err
	}

	fields := enum.Variants[vi].Fields
	inner := at.Variant(name)
	if len(fields) == 0 {
		if !payload.IsNull() {
			return errors.InvalidData(errors.PhaseDecode, inner.Segments(), "unit variant "+name+" takes no payload")
		}
		return nil
	}

	t := payload.Type()
	switch {
	case t.IsObjectType() || t.IsMapType():
		return d.entries(payload, &shape.Shape{Name: enum.Name, Kind: shape.KindStruct, Fields: fields}, inner)
	case t.IsListType() || t.IsTupleType():
		return d.elements(payload, &shape.Shape{Name: enum.Name, Kind: shape.KindTuple, Fields: fields}, inner)
	}
	return d.value(payload, fields[0].Shape, inner)
}
