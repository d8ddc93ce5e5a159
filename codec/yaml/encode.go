package yaml

import (
	"bytes"
	"encoding/base64"
	"math"
	"strconv"

	goyaml "gopkg.in/yaml.v3"

	"github.com/ldubos/facet"
	"github.com/ldubos/facet/driver"
	"github.com/ldubos/facet/errors"
	"github.com/ldubos/facet/peek"
	"github.com/ldubos/facet/shape"
)

// Options configure encoding.
type Options struct {
	Driver driver.Options
	// Indent is the number of spaces per nesting level. Zero means 2.
	Indent int
}

// DefaultOptions returns options that omit absent optional fields.
func DefaultOptions() Options {
	d := driver.DefaultOptions()
	d.OmitNone = true
	return Options{Driver: d, Indent: 2}
}

// Encode renders the value p views as a YAML document.
func Encode(p peek.Peek, opts Options) ([]byte, error) {
	root, err := ToNode(p, opts.Driver)
	if err != nil {
		return nil, err
	}

	indent := opts.Indent
	if indent <= 0 {
		indent = 2
	}
	var buf bytes.Buffer
	enc := goyaml.NewEncoder(&buf)
	enc.SetIndent(indent)
	if err := enc.Encode(root); err != nil {
		return nil, errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, "emit yaml")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, "emit yaml")
	}
	return buf.Bytes(), nil
}

// ToNode converts the value p views into a YAML node tree.
func ToNode(p peek.Peek, opts driver.Options) (*goyaml.Node, error) {
	b := &builder{}
	if err := driver.Walk(p, b, opts); err != nil {
		return nil, err
	}
	return b.root, nil
}

type builder struct {
	driver.BaseVisitor
	root  *goyaml.Node
	stack []*goyaml.Node
}

func (b *builder) attach(n *goyaml.Node) {
	if len(b.stack) == 0 {
		b.root = n
		return
	}
	top := b.stack[len(b.stack)-1]
	top.Content = append(top.Content, n)
}

func (b *builder) open(kind goyaml.Kind, tag string) {
	n := &goyaml.Node{Kind: kind, Tag: tag}
	b.attach(n)
	b.stack = append(b.stack, n)
}

func (b *builder) close() error {
	b.stack = b.stack[:len(b.stack)-1]
	return nil
}

func str(s string) *goyaml.Node {
	return &goyaml.Node{Kind: goyaml.ScalarNode, Tag: "!!str", Value: s}
}

func (b *builder) BeginStruct(peek.Peek) error {
	b.open(goyaml.MappingNode, "!!map")
	return nil
}

func (b *builder) Field(f *shape.Field, _ peek.Peek) error {
	b.attach(str(f.Name))
	return nil
}

func (b *builder) EndStruct(peek.Peek) error { return b.close() }

func (b *builder) BeginSeq(peek.Peek, int) error {
	b.open(goyaml.SequenceNode, "!!seq")
	return nil
}

func (b *builder) EndSeq(peek.Peek) error { return b.close() }

func (b *builder) BeginMap(peek.Peek, int) error {
	b.open(goyaml.MappingNode, "!!map")
	return nil
}

func (b *builder) Entry(key peek.Peek) error {
	n, err := scalarNode(key)
	if err != nil {
		return err
	}
	b.attach(n)
	return nil
}

func (b *builder) EndMap(peek.Peek) error { return b.close() }

func (b *builder) Scalar(p peek.Peek) error {
	n, err := scalarNode(p)
	if err != nil {
		return err
	}
	b.attach(n)
	return nil
}

func (b *builder) None(peek.Peek) error {
	b.attach(&goyaml.Node{Kind: goyaml.ScalarNode, Tag: "!!null", Value: "null"})
	return nil
}

// Unit variants are written as their name, others as {Name: payload}.
func (b *builder) Variant(_ peek.Peek, v *shape.Variant) error {
	if v.IsUnit() {
		b.attach(str(v.Name))
		return nil
	}
	b.open(goyaml.MappingNode, "!!map")
	b.attach(str(v.Name))
	return nil
}

func (b *builder) EndVariant(_ peek.Peek, v *shape.Variant) error {
	if v.IsUnit() {
		return nil
	}
	return b.close()
}

// scalarNode renders a scalar, looking through wrappers so that map keys
// such as addresses are written as their text.
func scalarNode(p peek.Peek) (*goyaml.Node, error) {
	for p.Kind() == shape.KindWrapper {
		inner, err := p.Inner()
		if err != nil {
			return nil, err
		}
		p = inner
	}

	switch p.Kind() {
	case shape.KindString:
		s, _ := p.Str()
		return str(s), nil
	case shape.KindChar:
		r, _ := p.Char()
		return str(string(r)), nil
	case shape.KindEnum:
		vp, err := p.Variant()
		if err != nil {
			return nil, err
		}
		return str(vp.Name()), nil
	case shape.KindBytes:
		raw, _ := p.Bytes()
		return &goyaml.Node{Kind: goyaml.ScalarNode, Tag: "!!binary", Value: base64.StdEncoding.EncodeToString(raw)}, nil
	case shape.KindFloat32:
		// format at 32 bits so 0.1 stays 0.1
		if f, _ := p.Float(); !math.IsInf(f, 0) && !math.IsNaN(f) {
			return &goyaml.Node{Kind: goyaml.ScalarNode, Tag: "!!float", Value: strconv.FormatFloat(f, 'g', -1, 32)}, nil
		}
	}

	v, err := p.Scalar()
	if err != nil {
		return nil, errors.Unsupported(errors.PhaseEncode, "yaml cannot represent "+p.Shape().Name+" as a scalar")
	}
	n := &goyaml.Node{}
	if err := n.Encode(v); err != nil {
		return nil, errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, "encode scalar")
	}
	return n, nil
}

// Marshal renders the value v (or the value it points to) as YAML.
func Marshal(v any) ([]byte, error) {
	p, err := facet.PeekOf(v)
	if err != nil {
		return nil, err
	}
	return Encode(p, DefaultOptions())
}
