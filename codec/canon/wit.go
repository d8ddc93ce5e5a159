package canon

import (
	"fmt"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/ldubos/facet/shape"
)

// ToWIT renders the WIT declarations of every record, variant and enum
// values of s are built from, dependencies first. When s itself maps to
// an anonymous type, a final alias names it "value".
func ToWIT(s *shape.Shape) (string, error) {
	t, err := TypeOf(s)
	if err != nil {
		return "", err
	}

	r := &renderer{seen: make(map[*wit.TypeDef]bool)}
	r.collect(t)

	var b strings.Builder
	for i, td := range r.order {
		if i > 0 {
			b.WriteString("\n")
		}
		r.declare(&b, td)
	}
	if td, ok := t.(*wit.TypeDef); !ok || td.Name == nil {
		if len(r.order) > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "type value = %s;\n", typeString(t))
	}
	return b.String(), nil
}

type renderer struct {
	seen  map[*wit.TypeDef]bool
	order []*wit.TypeDef
}

// collect appends named definitions reachable from t in post-order.
func (r *renderer) collect(t wit.Type) {
	td, ok := t.(*wit.TypeDef)
	if !ok || r.seen[td] {
		return
	}
	r.seen[td] = true

	switch kind := td.Kind.(type) {
	case *wit.Record:
		for _, f := range kind.Fields {
			r.collect(f.Type)
		}
	case *wit.Variant:
		for _, c := range kind.Cases {
			if c.Type != nil {
				r.collect(c.Type)
			}
		}
	case *wit.List:
		r.collect(kind.Type)
	case *wit.Option:
		r.collect(kind.Type)
	case *wit.Tuple:
		for _, e := range kind.Types {
			r.collect(e)
		}
	}
	if td.Name != nil {
		r.order = append(r.order, td)
	}
}

func (r *renderer) declare(b *strings.Builder, td *wit.TypeDef) {
	switch kind := td.Kind.(type) {
	case *wit.Record:
		fmt.Fprintf(b, "record %s {\n", *td.Name)
		for _, f := range kind.Fields {
			fmt.Fprintf(b, "    %s: %s,\n", f.Name, typeString(f.Type))
		}
	case *wit.Variant:
		fmt.Fprintf(b, "variant %s {\n", *td.Name)
		for _, c := range kind.Cases {
			if c.Type == nil {
				fmt.Fprintf(b, "    %s,\n", c.Name)
				continue
			}
			fmt.Fprintf(b, "    %s(%s),\n", c.Name, typeString(c.Type))
		}
	case *wit.Enum:
		fmt.Fprintf(b, "enum %s {\n", *td.Name)
		for _, c := range kind.Cases {
			fmt.Fprintf(b, "    %s,\n", c.Name)
		}
	}
	b.WriteString("}\n")
}

func typeString(t wit.Type) string {
	switch v := t.(type) {
	case wit.Bool:
		return "bool"
	case wit.U8:
		return "u8"
	case wit.S8:
		return "s8"
	case wit.U16:
		return "u16"
	case wit.S16:
		return "s16"
	case wit.U32:
		return "u32"
	case wit.S32:
		return "s32"
	case wit.U64:
		return "u64"
	case wit.S64:
		return "s64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case wit.Char:
		return "char"
	case wit.String:
		return "string"
	case *wit.TypeDef:
		if v.Name != nil {
			return *v.Name
		}
		switch kind := v.Kind.(type) {
		case *wit.List:
			return "list<" + typeString(kind.Type) + ">"
		case *wit.Option:
			return "option<" + typeString(kind.Type) + ">"
		case *wit.Tuple:
			elems := make([]string, len(kind.Types))
			for i, e := range kind.Types {
				elems[i] = typeString(e)
			}
			return "tuple<" + strings.Join(elems, ", ") + ">"
		}
	}
	return fmt.Sprintf("%T", t)
}
