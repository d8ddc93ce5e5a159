package canon

import (
	"strings"
	"sync"
	"unicode"

	"go.bytecodealliance.org/wit"

	"github.com/ldubos/facet/codec/canon/internal/layout"
	"github.com/ldubos/facet/derive"
	"github.com/ldubos/facet/errors"
	"github.com/ldubos/facet/shape"
)

var (
	// shape -> wit.Type
	typeCache sync.Map
	calc      = layout.NewCalculator()
)

// TypeOf returns the WIT type values of s are lowered as.
//
//	bool, integers, floats  bool, s8..s64, u8..u64, f32, f64 (int and uint are 64-bit)
//	char, string            char, string
//	bytes, seq              list<u8>, list<T>
//	tuple (Go array)        tuple<T, ...>
//	map                     list<tuple<K, V>>
//	option, wrapper         option<T>, the wrapped type
//	struct                  record
//	enum                    enum when every variant is a unit, variant otherwise
//
// Recursive shapes and opaque values have no WIT type.
func TypeOf(s *shape.Shape) (wit.Type, error) {
	m := &mapper{visiting: make(map[*shape.Shape]bool)}
	return m.typeOf(s)
}

// width is the stored size in bits of an integer kind.
func width(k shape.Kind) int {
	switch k {
	case shape.KindInt, shape.KindUint, shape.KindUintptr:
		return 64
	}
	return k.Bits()
}

func layoutOf(s *shape.Shape) (layout.Info, error) {
	t, err := TypeOf(s)
	if err != nil {
		return layout.Info{}, err
	}
	return calc.Calculate(t), nil
}

type mapper struct {
	visiting map[*shape.Shape]bool
}

func (m *mapper) typeOf(s *shape.Shape) (wit.Type, error) {
	if t, ok := typeCache.Load(s); ok {
		return t.(wit.Type), nil
	}
	if m.visiting[s] {
		return nil, errors.Unsupported(errors.PhaseEncode, "recursive type "+s.Name+" has no WIT representation")
	}
	m.visiting[s] = true
	defer delete(m.visiting, s)

	t, err := m.build(s)
	if err != nil {
		return nil, err
	}
	actual, _ := typeCache.LoadOrStore(s, t)
	return actual.(wit.Type), nil
}

func (m *mapper) build(s *shape.Shape) (wit.Type, error) {
	switch s.Kind {
	case shape.KindBool:
		return wit.Bool{}, nil
	case shape.KindInt8:
		return wit.S8{}, nil
	case shape.KindInt16:
		return wit.S16{}, nil
	case shape.KindInt32:
		return wit.S32{}, nil
	case shape.KindInt64, shape.KindInt:
		return wit.S64{}, nil
	case shape.KindUint8:
		return wit.U8{}, nil
	case shape.KindUint16:
		return wit.U16{}, nil
	case shape.KindUint32:
		return wit.U32{}, nil
	case shape.KindUint64, shape.KindUint, shape.KindUintptr:
		return wit.U64{}, nil
	case shape.KindFloat32:
		return wit.F32{}, nil
	case shape.KindFloat64:
		return wit.F64{}, nil
	case shape.KindChar:
		return wit.Char{}, nil
	case shape.KindString:
		return wit.String{}, nil
	case shape.KindBytes:
		return &wit.TypeDef{Kind: &wit.List{Type: wit.U8{}}}, nil
	case shape.KindWrapper:
		return m.typeOf(s.Elem)
	case shape.KindOption:
		elem, err := m.typeOf(s.Elem)
		if err != nil {
			return nil, err
		}
		return &wit.TypeDef{Kind: &wit.Option{Type: elem}}, nil
	case shape.KindSeq:
		elem, err := m.typeOf(s.Elem)
		if err != nil {
			return nil, err
		}
		return &wit.TypeDef{Kind: &wit.List{Type: elem}}, nil
	case shape.KindTuple:
		types, err := m.fieldTypes(s.Fields)
		if err != nil {
			return nil, err
		}
		return &wit.TypeDef{Kind: &wit.Tuple{Types: types}}, nil
	case shape.KindMap:
		if s.Key.Underlying().Kind == shape.KindTuple {
			return nil, errors.Unsupported(errors.PhaseEncode, "tuple map keys in "+s.Name)
		}
		key, err := m.typeOf(s.Key)
		if err != nil {
			return nil, err
		}
		value, err := m.typeOf(s.Elem)
		if err != nil {
			return nil, err
		}
		entry := &wit.TypeDef{Kind: &wit.Tuple{Types: []wit.Type{key, value}}}
		return &wit.TypeDef{Kind: &wit.List{Type: entry}}, nil
	case shape.KindStruct:
		return m.record(Name(s.Name), s.Fields)
	case shape.KindEnum:
		return m.enum(s)
	}
	return nil, errors.Unsupported(errors.PhaseEncode, s.Name+" ("+s.Kind.String()+") has no WIT representation")
}

func (m *mapper) fieldTypes(fields []shape.Field) ([]wit.Type, error) {
	types := make([]wit.Type, len(fields))
	for i := range fields {
		t, err := m.typeOf(fields[i].Shape)
		if err != nil {
			return nil, err
		}
		types[i] = t
	}
	return types, nil
}

func (m *mapper) record(name string, fields []shape.Field) (*wit.TypeDef, error) {
	types, err := m.fieldTypes(fields)
	if err != nil {
		return nil, err
	}
	record := &wit.Record{Fields: make([]wit.Field, len(fields))}
	for i := range fields {
		record.Fields[i] = wit.Field{Name: Name(fields[i].Name), Type: types[i]}
	}
	return &wit.TypeDef{Name: &name, Kind: record}, nil
}

// A variant with one field carries that field's type; one with more
// carries a record named after the enum and the variant.
func (m *mapper) enum(s *shape.Shape) (wit.Type, error) {
	name := Name(s.Name)

	units := true
	for i := range s.Variants {
		if !s.Variants[i].IsUnit() {
			units = false
			break
		}
	}
	if units {
		enum := &wit.Enum{Cases: make([]wit.EnumCase, len(s.Variants))}
		for i := range s.Variants {
			enum.Cases[i] = wit.EnumCase{Name: Name(s.Variants[i].Name)}
		}
		return &wit.TypeDef{Name: &name, Kind: enum}, nil
	}

	variant := &wit.Variant{Cases: make([]wit.Case, len(s.Variants))}
	for i := range s.Variants {
		v := &s.Variants[i]
		c := wit.Case{Name: Name(v.Name)}
		switch len(v.Fields) {
		case 0:
		case 1:
			t, err := m.typeOf(v.Fields[0].Shape)
			if err != nil {
				return nil, err
			}
			c.Type = t
		default:
			t, err := m.record(name+"-"+c.Name, v.Fields)
			if err != nil {
				return nil, err
			}
			c.Type = t
		}
		variant.Cases[i] = c
	}
	return &wit.TypeDef{Name: &name, Kind: variant}, nil
}

// Name turns a Go or facet name into a WIT identifier: the package
// qualifier is dropped and the rest is kebab-cased.
func Name(s string) string {
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '-'
	}, s)
	s = derive.RenameKebabCase.Apply(s)
	if s == "" || !unicode.IsLetter(rune(s[0])) {
		s = "x-" + s
	}
	return s
}
