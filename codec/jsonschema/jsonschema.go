package jsonschema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	motmedelErrors "github.com/Motmedel/utils_go/pkg/errors"

	"github.com/ldubos/facet/derive"
	"github.com/ldubos/facet/shape"
)

const Draft = "https://json-schema.org/draft/2020-12/schema"

var (
	ErrNilShape        = errors.New("nil shape")
	ErrUnsupportedKind = errors.New("unsupported kind")
	ErrBadAttribute    = errors.New("bad attribute")
)

// Context collects the definitions of the struct and enum shapes met while
// generating one document.
type Context struct {
	Defs  map[string]any
	names map[*shape.Shape]string
	taken map[string]bool
}

func NewContext() *Context {
	return &Context{
		Defs:  map[string]any{},
		names: map[*shape.Shape]string{},
		taken: map[string]bool{},
	}
}

// Generate returns the schema document describing values of s: the root
// schema references its definition under $defs when s is a struct or enum.
func Generate(s *shape.Shape) (map[string]any, error) {
	if s == nil {
		return nil, motmedelErrors.NewWithTrace(ErrNilShape)
	}

	c := NewContext()
	root, err := c.Schema(s)
	if err != nil {
		return nil, motmedelErrors.New(fmt.Errorf("schema (root): %w", err), s.Name)
	}

	document := map[string]any{"$schema": Draft}
	for k, v := range root {
		document[k] = v
	}
	if len(c.Defs) > 0 {
		document["$defs"] = c.Defs
	}
	if _, ok := document["title"]; !ok && s.Name != "" {
		document["title"] = s.Name
	}
	return document, nil
}

// Marshal generates the schema document of s and encodes it as JSON.
func Marshal(s *shape.Shape) ([]byte, error) {
	document, err := Generate(s)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(document)
	if err != nil {
		return nil, motmedelErrors.NewWithTrace(fmt.Errorf("json marshal (schema document): %w", err), document)
	}
	return data, nil
}

// For is Marshal for the shape of T.
func For[T any]() ([]byte, error) {
	s, err := derive.For[T]()
	if err != nil {
		return nil, motmedelErrors.New(fmt.Errorf("derive: %w", err))
	}
	return Marshal(s)
}

// Schema returns the schema fragment for s, adding definitions to c.
func (c *Context) Schema(s *shape.Shape) (map[string]any, error) {
	switch k := s.Kind; {
	case k == shape.KindBool:
		return map[string]any{"type": "boolean"}, nil
	case k.IsInteger():
		return integer(k), nil
	case k.IsFloat():
		return map[string]any{"type": "number"}, nil
	case k == shape.KindChar:
		return map[string]any{"type": "string", "minLength": 1, "maxLength": 1}, nil
	case k == shape.KindString:
		return map[string]any{"type": "string"}, nil
	case k == shape.KindBytes:
		return map[string]any{"type": "string", "contentEncoding": "base64"}, nil
	case k == shape.KindWrapper:
		return c.Schema(s.Elem)
	case k == shape.KindOption:
		inner, err := c.Schema(s.Elem)
		if err != nil {
			return nil, motmedelErrors.New(fmt.Errorf("schema (option payload): %w", err), s.Elem.Name)
		}
		return map[string]any{"anyOf": []any{inner, map[string]any{"type": "null"}}}, nil
	case k == shape.KindSeq:
		items, err := c.Schema(s.Elem)
		if err != nil {
			return nil, motmedelErrors.New(fmt.Errorf("schema (items): %w", err), s.Elem.Name)
		}
		return map[string]any{"type": "array", "items": items}, nil
	case k == shape.KindTuple:
		prefix := make([]any, len(s.Fields))
		for i := range s.Fields {
			item, err := c.Schema(s.Fields[i].Shape)
			if err != nil {
				return nil, motmedelErrors.New(fmt.Errorf("schema (tuple item %d): %w", i, err), s.Name)
			}
			prefix[i] = item
		}
		return map[string]any{
			"type":        "array",
			"prefixItems": prefix,
			"items":       false,
			"minItems":    len(prefix),
			"maxItems":    len(prefix),
		}, nil
	case k == shape.KindMap:
		return c.mapping(s)
	case k == shape.KindStruct, k == shape.KindEnum:
		return c.reference(s)
	}
	return nil, motmedelErrors.NewWithTrace(fmt.Errorf("%w: %s", ErrUnsupportedKind, s.Kind), s.Name)
}

func integer(k shape.Kind) map[string]any {
	schema := map[string]any{"type": "integer"}
	bits := k.Bits()
	if k.IsUnsigned() {
		schema["minimum"] = 0
		if bits < 64 {
			schema["maximum"] = uint64(1)<<bits - 1
		}
	} else if bits < 64 {
		schema["minimum"] = -(int64(1) << (bits - 1))
		schema["maximum"] = int64(1)<<(bits-1) - 1
	}
	return schema
}

func (c *Context) mapping(s *shape.Shape) (map[string]any, error) {
	value, err := c.Schema(s.Elem)
	if err != nil {
		return nil, motmedelErrors.New(fmt.Errorf("schema (map value): %w", err), s.Elem.Name)
	}
	schema := map[string]any{"type": "object", "additionalProperties": value}

	// object keys are always strings; constrain them to what the key parses from
	switch key := s.Key.Underlying(); {
	case key.Kind.IsSigned():
		schema["propertyNames"] = map[string]any{"pattern": "^-?[0-9]+$"}
	case key.Kind.IsUnsigned():
		schema["propertyNames"] = map[string]any{"pattern": "^[0-9]+$"}
	case key.Kind == shape.KindBool:
		schema["propertyNames"] = map[string]any{"enum": []string{"false", "true"}}
	case key.Kind == shape.KindEnum:
		names := make([]string, len(key.Variants))
		for i := range key.Variants {
			names[i] = key.Variants[i].Name
		}
		schema["propertyNames"] = map[string]any{"enum": names}
	}
	return schema, nil
}

// reference defines s under $defs on first sight and returns a $ref to it.
// The name is taken before the body is built so recursive shapes refer to
// themselves.
func (c *Context) reference(s *shape.Shape) (map[string]any, error) {
	name, ok := c.names[s]
	if !ok {
		name = c.defName(s)
		c.names[s] = name

		var def map[string]any
		var err error
		if s.Kind == shape.KindEnum {
			def, err = c.enum(s)
		} else {
			def, err = c.object(s.Fields, s.Doc)
		}
		if err != nil {
			delete(c.names, s)
			return nil, motmedelErrors.New(fmt.Errorf("build definition: %w", err), name)
		}
		c.Defs[name] = def
	}
	return map[string]any{"$ref": "#/$defs/" + name}, nil
}

func (c *Context) defName(s *shape.Shape) string {
	base := s.Name
	if base == "" {
		base = s.Kind.String()
	}
	base = strings.NewReplacer("[", "_", "]", "_", "*", "", " ", "_", "/", "_").Replace(base)

	name := base
	for i := 2; c.taken[name]; i++ {
		name = base + "_" + strconv.Itoa(i)
	}
	c.taken[name] = true
	return name
}

func (c *Context) object(fields []shape.Field, doc string) (map[string]any, error) {
	properties := map[string]any{}
	required := []string{}

	for i := range fields {
		f := &fields[i]
		property, err := c.Schema(f.Shape)
		if err != nil {
			return nil, motmedelErrors.New(fmt.Errorf("schema (field): %w", err), f.Name)
		}
		if err := applyAttrs(property, f); err != nil {
			return nil, motmedelErrors.New(fmt.Errorf("apply attrs: %w", err), f.Name)
		}
		properties[f.Name] = property
		if f.Required() && f.Shape.Kind != shape.KindOption {
			required = append(required, f.Name)
		}
	}

	schema := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
	if doc != "" {
		schema["description"] = doc
	}
	return schema, nil
}

// Unit variants are their names; every other variant is an object with
// the variant name as its only property.
func (c *Context) enum(s *shape.Shape) (map[string]any, error) {
	var units []string
	var alternatives []any

	for i := range s.Variants {
		v := &s.Variants[i]
		if v.IsUnit() {
			units = append(units, v.Name)
			continue
		}
		payload, err := c.object(v.Fields, v.Doc)
		if err != nil {
			return nil, motmedelErrors.New(fmt.Errorf("variant payload: %w", err), v.Name)
		}
		alternatives = append(alternatives, map[string]any{
			"type":                 "object",
			"properties":           map[string]any{v.Name: payload},
			"required":             []string{v.Name},
			"additionalProperties": false,
		})
	}

	var schema map[string]any
	switch {
	case len(alternatives) == 0:
		schema = map[string]any{"type": "string", "enum": units}
	case len(units) == 0:
		schema = map[string]any{"oneOf": alternatives}
	default:
		schema = map[string]any{"oneOf": append(alternatives, map[string]any{"type": "string", "enum": units})}
	}
	if s.Doc != "" {
		schema["description"] = s.Doc
	}
	return schema, nil
}

// applyAttrs copies the field's doc and its format and range annotations
// into the property schema.
func applyAttrs(property map[string]any, f *shape.Field) error {
	if f.Doc != "" {
		property["description"] = f.Doc
	}
	for key, value := range f.Attrs {
		switch key {
		case "format", "pattern":
			property[key] = value
		case "minlength", "maxlength":
			n, err := strconv.Atoi(value)
			if err != nil {
				return motmedelErrors.NewWithTrace(fmt.Errorf("%w: strconv atoi (%s): %w", ErrBadAttribute, key, err), value)
			}
			property[strings.Replace(key, "length", "Length", 1)] = n
		case "minimum", "maximum":
			n, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return motmedelErrors.NewWithTrace(fmt.Errorf("%w: strconv parse float (%s): %w", ErrBadAttribute, key, err), value)
			}
			property[key] = n
		}
	}
	return nil
}
