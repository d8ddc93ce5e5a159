package cty

import (
	"encoding/base64"
	"math"

	gocty "github.com/zclconf/go-cty/cty"

	"github.com/ldubos/facet/driver"
	"github.com/ldubos/facet/errors"
	"github.com/ldubos/facet/peek"
	"github.com/ldubos/facet/shape"
)

// Mark is the type of marks this package puts on cty values.
type Mark string

// Sensitive marks values of sensitive fields in converted values.
const Sensitive Mark = "sensitive"

// ToValue converts the value p views into a cty value. Absent options
// become typed nulls and values of sensitive fields carry the Sensitive
// mark.
func ToValue(p peek.Peek, opts driver.Options) (gocty.Value, error) {
	// every attribute is needed for objects of one struct to share a type
	opts.OmitNone = false

	b := &builder{}
	if err := driver.Walk(p, b, opts); err != nil {
		return gocty.NilVal, err
	}
	return b.root, nil
}

type frameKind uint8

const (
	frameObject frameKind = iota
	frameList
	frameMap
	frameVariant
)

type frame struct {
	shape     *shape.Shape
	attrs     map[string]gocty.Value
	elems     []gocty.Value
	name      string
	kind      frameKind
	sensitive bool
}

type builder struct {
	driver.BaseVisitor
	root  gocty.Value
	stack []frame
}

func (b *builder) push(kind frameKind, s *shape.Shape) {
	f := frame{kind: kind, shape: s}
	if kind != frameList {
		f.attrs = make(map[string]gocty.Value)
	}
	b.stack = append(b.stack, f)
}

func (b *builder) pop() frame {
	f := b.stack[len(b.stack)-1]
	b.stack = b.stack[:len(b.stack)-1]
	return f
}

func (b *builder) attach(v gocty.Value) {
	if len(b.stack) == 0 {
		b.root = v
		return
	}
	top := &b.stack[len(b.stack)-1]
	if top.sensitive {
		v = v.Mark(Sensitive)
		top.sensitive = false
	}
	if top.kind == frameList {
		top.elems = append(top.elems, v)
		return
	}
	top.attrs[top.name] = v
}

func (b *builder) BeginStruct(p peek.Peek) error {
	b.push(frameObject, p.Shape())
	return nil
}

func (b *builder) Field(f *shape.Field, _ peek.Peek) error {
	top := &b.stack[len(b.stack)-1]
	top.name = f.Name
	top.sensitive = f.Sensitive()
	return nil
}

func (b *builder) EndStruct(peek.Peek) error {
	b.attach(gocty.ObjectVal(b.pop().attrs))
	return nil
}

func (b *builder) BeginSeq(p peek.Peek, _ int) error {
	b.push(frameList, p.Shape())
	return nil
}

func (b *builder) EndSeq(peek.Peek) error {
	f := b.pop()
	switch {
	case f.shape.Kind == shape.KindTuple:
		b.attach(gocty.TupleVal(f.elems))
	case len(f.elems) == 0:
		et, err := ImpliedType(f.shape.Elem)
		if err != nil {
			return err
		}
		b.attach(gocty.ListValEmpty(et))
	case gocty.CanListVal(f.elems):
		b.attach(gocty.ListVal(f.elems))
	default:
		// elements of differing variants
		b.attach(gocty.TupleVal(f.elems))
	}
	return nil
}

func (b *builder) BeginMap(p peek.Peek, _ int) error {
	b.push(frameMap, p.Shape())
	return nil
}

func (b *builder) Entry(key peek.Peek) error {
	for key.Kind() == shape.KindWrapper {
		inner, err := key.Inner()
		if err != nil {
			return err
		}
		key = inner
	}
	name, err := key.Str()
	if err != nil {
		return errors.Unsupported(errors.PhaseEncode, "cty maps need string keys, not "+key.Shape().Name)
	}
	b.stack[len(b.stack)-1].name = name
	return nil
}

func (b *builder) EndMap(peek.Peek) error {
	f := b.pop()
	switch {
	case len(f.attrs) == 0:
		et, err := ImpliedType(f.shape.Elem)
		if err != nil {
			return err
		}
		b.attach(gocty.MapValEmpty(et))
	case gocty.CanMapVal(f.attrs):
		b.attach(gocty.MapVal(f.attrs))
	default:
		b.attach(gocty.ObjectVal(f.attrs))
	}
	return nil
}

func (b *builder) None(p peek.Peek) error {
	t, err := ImpliedType(p.Shape().Elem)
	if err != nil {
		return err
	}
	b.attach(gocty.NullVal(t))
	return nil
}

// Unit variants become strings, others a one-attribute object from the
// variant name to its payload.
func (b *builder) Variant(p peek.Peek, v *shape.Variant) error {
	if v.IsUnit() {
		b.attach(gocty.StringVal(v.Name))
		return nil
	}
	b.push(frameVariant, p.Shape())
	b.stack[len(b.stack)-1].name = v.Name
	return nil
}

func (b *builder) EndVariant(_ peek.Peek, v *shape.Variant) error {
	if v.IsUnit() {
		return nil
	}
	b.attach(gocty.ObjectVal(b.pop().attrs))
	return nil
}

func (b *builder) Scalar(p peek.Peek) error {
	switch k := p.Kind(); {
	case k == shape.KindBool:
		v, _ := p.Bool()
		b.attach(gocty.BoolVal(v))
	case k.IsSigned():
		n, _ := p.Int()
		b.attach(gocty.NumberIntVal(n))
	case k.IsUnsigned():
		n, _ := p.Uint()
		b.attach(gocty.NumberUIntVal(n))
	case k.IsFloat():
		f, _ := p.Float()
		if math.IsNaN(f) {
			return errors.New(errors.PhaseEncode, errors.KindInvalidData).
				Path(p.Location().Segments()...).
				Detail("cty numbers cannot be NaN").
				Build()
		}
		b.attach(gocty.NumberFloatVal(f))
	case k == shape.KindChar:
		r, _ := p.Char()
		b.attach(gocty.StringVal(string(r)))
	case k == shape.KindString:
		s, _ := p.Str()
		b.attach(gocty.StringVal(s))
	case k == shape.KindBytes:
		raw, _ := p.Bytes()
		b.attach(gocty.StringVal(base64.StdEncoding.EncodeToString(raw)))
	default:
		return errors.Unsupported(errors.PhaseEncode, "cty has no value for "+p.Shape().Name+" ("+k.String()+")")
	}
	return nil
}
