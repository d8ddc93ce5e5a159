package cty

import (
	gocty "github.com/zclconf/go-cty/cty"

	"github.com/ldubos/facet/errors"
	"github.com/ldubos/facet/shape"
)

// ImpliedType returns the cty type constraint values of s convert to.
// Optional and defaulted fields are optional object attributes. Enums
// with payloads and recursive shapes have no static cty type and map to
// cty.DynamicPseudoType.
func ImpliedType(s *shape.Shape) (gocty.Type, error) {
	return implied(s, make(map[*shape.Shape]bool))
}

func implied(s *shape.Shape, visiting map[*shape.Shape]bool) (gocty.Type, error) {
	if visiting[s] {
		return gocty.DynamicPseudoType, nil
	}
	visiting[s] = true
	defer delete(visiting, s)

	switch k := s.Kind; {
	case k == shape.KindBool:
		return gocty.Bool, nil
	case k.IsInteger(), k.IsFloat():
		return gocty.Number, nil
	case k == shape.KindString, k == shape.KindChar, k == shape.KindBytes:
		return gocty.String, nil
	case k == shape.KindOption, k == shape.KindWrapper:
		return implied(s.Elem, visiting)
	case k == shape.KindEnum:
		for i := range s.Variants {
			if !s.Variants[i].IsUnit() {
				return gocty.DynamicPseudoType, nil
			}
		}
		return gocty.String, nil
	case k == shape.KindSeq:
		et, err := implied(s.Elem, visiting)
		if err != nil {
			return gocty.NilType, err
		}
		return gocty.List(et), nil
	case k == shape.KindMap:
		if s.Key.Underlying().Kind != shape.KindString {
			return gocty.NilType, errors.Unsupported(errors.PhaseEncode, "cty maps need string keys, not "+s.Key.Name)
		}
		et, err := implied(s.Elem, visiting)
		if err != nil {
			return gocty.NilType, err
		}
		return gocty.Map(et), nil
	case k == shape.KindTuple:
		elems := make([]gocty.Type, len(s.Fields))
		for i := range s.Fields {
			et, err := implied(s.Fields[i].Shape, visiting)
			if err != nil {
				return gocty.NilType, err
			}
			elems[i] = et
		}
		return gocty.Tuple(elems), nil
	case k == shape.KindStruct:
		attrs := make(map[string]gocty.Type, len(s.Fields))
		var optional []string
		for i := range s.Fields {
			f := &s.Fields[i]
			at, err := implied(f.Shape, visiting)
			if err != nil {
				return gocty.NilType, err
			}
			attrs[f.Name] = at
			if !f.Required() {
				optional = append(optional, f.Name)
			}
		}
		if len(optional) > 0 {
			return gocty.ObjectWithOptionalAttrs(attrs, optional), nil
		}
		return gocty.Object(attrs), nil
	}
	return gocty.NilType, errors.Unsupported(errors.PhaseEncode, "cty has no type for "+s.Name+" ("+s.Kind.String()+")")
}
