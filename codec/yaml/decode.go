package yaml

import (
	"encoding/base64"
	"fmt"
	"reflect"
	"unsafe"

	goyaml "gopkg.in/yaml.v3"

	"github.com/ldubos/facet/derive"
	"github.com/ldubos/facet/driver"
	"github.com/ldubos/facet/errors"
	"github.com/ldubos/facet/poke"
	"github.com/ldubos/facet/shape"
)

// Decode parses one YAML document into a new value of shape s.
func Decode(data []byte, s *shape.Shape, opts driver.Options) (*poke.Value, error) {
	w := driver.NewWriterWithOptions(poke.New(s), opts)
	if err := decodeDocument(data, w); err != nil {
		w.Abandon()
		return nil, err
	}
	return w.Finish()
}

// Unmarshal parses one YAML document into the value v points to.
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
	w := driver.NewWriter(poke.Into(s, unsafe.Pointer(rv.Pointer())))
	if err := decodeDocument(data, w); err != nil {
		w.Abandon()
		return err
	}
	_, err = w.Finish()
	return err
}

func decodeDocument(data []byte, w *driver.Writer) error {
	var doc goyaml.Node
	if err := goyaml.Unmarshal(data, &doc); err != nil {
		return errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "parse yaml")
	}
	if doc.Kind == 0 {
		// empty input decodes like an explicit null
		return w.Scalar(nil)
	}
	d := &decoder{w: w}
	return d.node(&doc, w.Expect())
}

type decoder struct {
	w *driver.Writer

	// alias expansion budget, counted the way yaml.v3 does
	decodeCount int
	aliasCount  int
	aliasDepth  int
	expanding   map[*goyaml.Node]bool
}

// allowedAliasRatio is yaml.v3's limit on the share of decoded nodes that
// may come from alias expansion. Small documents may alias freely.
func allowedAliasRatio(decodeCount int) float64 {
	switch {
	case decodeCount <= 400_000:
		return 0.99
	case decodeCount >= 4_000_000:
		return 0.10
	}
	return 0.99 - 0.89*(float64(decodeCount-400_000)/3_600_000)
}

func (d *decoder) count(n *goyaml.Node) error {
	d.decodeCount++
	if d.aliasDepth > 0 {
		d.aliasCount++
	}
	if d.aliasCount > 100 && d.decodeCount > 1000 &&
		float64(d.aliasCount)/float64(d.decodeCount) > allowedAliasRatio(d.decodeCount) {
		return at(n, errors.InvalidData(errors.PhaseDecode, nil, "document contains excessive aliasing"))
	}
	return nil
}

func (d *decoder) alias(n *goyaml.Node, target *shape.Shape) error {
	if d.expanding[n] {
		return at(n, errors.InvalidData(errors.PhaseDecode, nil, "anchor '"+n.Value+"' value contains itself"))
	}
	if d.expanding == nil {
		d.expanding = make(map[*goyaml.Node]bool)
	}
	d.expanding[n] = true
	d.aliasDepth++
	err := d.node(n.Alias, target)
	d.aliasDepth--
	delete(d.expanding, n)
	return err
}

func at(n *goyaml.Node, err error) error {
	if err == nil {
		return nil
	}
	return errors.WithLocation(err, fmt.Sprintf("line %d, column %d", n.Line, n.Column))
}

// node writes n to the slot whose shape is target. target is nil when the
// writer is discarding an unknown field's value.
func (d *decoder) node(n *goyaml.Node, target *shape.Shape) error {
	if err := d.count(n); err != nil {
		return err
	}
	under := target.Underlying()

	switch n.Kind {
	case goyaml.DocumentNode:
		if len(n.Content) == 0 {
			return at(n, d.w.Scalar(nil))
		}
		return d.node(n.Content[0], target)
	case goyaml.AliasNode:
		return d.alias(n, target)
	case goyaml.ScalarNode:
		v, err := scalar(n, under)
		if err != nil {
			return at(n, err)
		}
		return at(n, d.w.Scalar(v))
	case goyaml.SequenceNode:
		return d.sequence(n, under)
	case goyaml.MappingNode:
		if under != nil && under.Kind == shape.KindEnum && len(n.Content) == 2 {
			return d.variant(n, under)
		}
		return d.mapping(n, under)
	}
	return at(n, errors.InvalidData(errors.PhaseDecode, nil, fmt.Sprintf("unexpected yaml node kind %d", n.Kind)))
}

func (d *decoder) sequence(n *goyaml.Node, under *shape.Shape) error {
	if err := d.w.BeginSeq(len(n.Content)); err != nil {
		return at(n, err)
	}
	for i, item := range n.Content {
		if err := d.w.Element(); err != nil {
			return at(item, err)
		}
		if err := d.node(item, elementShape(under, i)); err != nil {
			return err
		}
	}
	return at(n, d.w.EndSeq())
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

func (d *decoder) mapping(n *goyaml.Node, under *shape.Shape) error {
	if err := d.w.BeginMap(len(n.Content) / 2); err != nil {
		return at(n, err)
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if k.Kind == goyaml.AliasNode {
			k = k.Alias
		}
		if k.Kind != goyaml.ScalarNode {
			return at(k, errors.InvalidData(errors.PhaseDecode, nil, "mapping keys must be scalars"))
		}

		var key any = k.Value
		var valueShape *shape.Shape
		switch {
		case under == nil:
		case under.Kind == shape.KindMap:
			kv, err := scalar(k, under.Key.Underlying())
			if err != nil {
				return at(k, err)
			}
			key, valueShape = kv, under.Elem
		case under.Kind == shape.KindStruct:
			if fi := under.FieldIndex(k.Value); fi >= 0 {
				valueShape = under.Fields[fi].Shape
			}
		}

		if err := d.w.Entry(key); err != nil {
			return at(k, err)
		}
		if err := d.node(v, valueShape); err != nil {
			return err
		}
	}
	return at(n, d.w.EndMap())
}

// variant decodes the externally tagged form {Name: payload}.
func (d *decoder) variant(n *goyaml.Node, enum *shape.Shape) error {
	k, v := n.Content[0], n.Content[1]
	vi := enum.VariantIndex(k.Value)
	if vi < 0 {
		return at(k, errors.NoSuchVariant(errors.PhaseDecode, nil, enum.Name, k.Value))
	}
	if err := d.w.SelectVariant(k.Value); err != nil {
		return at(k, err)
	}

	fields := enum.Variants[vi].Fields
	switch {
	case len(fields) == 0:
		if v.Kind != goyaml.ScalarNode || v.ShortTag() != "!!null" {
			return at(v, errors.InvalidData(errors.PhaseDecode, nil, "unit variant "+k.Value+" takes no payload"))
		}
		return nil
	case v.Kind == goyaml.MappingNode:
		variantShape := &shape.Shape{Name: enum.Name, Kind: shape.KindStruct, Fields: fields}
		return d.mapping(v, variantShape)
	case v.Kind == goyaml.SequenceNode:
		tupleShape := &shape.Shape{Name: enum.Name, Kind: shape.KindTuple, Fields: fields}
		return d.sequence(v, tupleShape)
	}
	return d.node(v, fields[0].Shape)
}

// scalar converts a YAML scalar into the Go value the target shape
// coerces from. Text targets take the raw text so that `version: 1`
// decodes into a string field.
func scalar(n *goyaml.Node, under *shape.Shape) (any, error) {
	tag := n.ShortTag()
	if tag == "!!null" {
		return nil, nil
	}
	if under != nil {
		switch under.Kind {
		case shape.KindString, shape.KindChar:
			return n.Value, nil
		case shape.KindBytes:
			if tag == "!!binary" {
				b, err := base64.StdEncoding.DecodeString(n.Value)
				if err != nil {
					return nil, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "decode !!binary")
				}
				return b, nil
			}
			return []byte(n.Value), nil
		case shape.KindEnum:
			if tag != "!!int" {
				return n.Value, nil
			}
		}
	}

	var v any
	if err := n.Decode(&v); err != nil {
		return nil, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "decode scalar")
	}
	return v, nil
}
