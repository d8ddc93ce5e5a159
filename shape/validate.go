package shape

import (
	"github.com/ldubos/facet/errors"
)

// Validate checks that s and every shape reachable from it are internally
// consistent: sizes match their Go types, offsets lie within the value and
// the operations required by each kind are present.
func (s *Shape) Validate() error {
	seen := make(map[*Shape]bool)
	work := []*Shape{s}

	for len(work) > 0 {
		cur := work[len(work)-1]
		work = work[:len(work)-1]
		if cur == nil {
			return invalid(nil, "nil shape")
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true

		if err := cur.validateOne(); err != nil {
			return err
		}

		for i := range cur.Fields {
			work = append(work, cur.Fields[i].Shape)
		}
		for i := range cur.Variants {
			for j := range cur.Variants[i].Fields {
				work = append(work, cur.Variants[i].Fields[j].Shape)
			}
		}
		if cur.Elem != nil {
			work = append(work, cur.Elem)
		}
		if cur.Key != nil {
			work = append(work, cur.Key)
		}
	}
	return nil
}

func (s *Shape) validateOne() error {
	if s.Type == nil {
		return invalid(s, "missing Go type")
	}
	if s.Size != s.Type.Size() {
		return invalid(s, "size %d does not match Go type size %d", s.Size, s.Type.Size())
	}
	if s.Align == 0 || s.Align&(s.Align-1) != 0 {
		return invalid(s, "alignment %d is not a power of two", s.Align)
	}

	checkFields := func(fields []Field) error {
		for i := range fields {
			f := &fields[i]
			if f.Shape == nil {
				return invalid(s, "field %q has no shape", f.Name)
			}
			if f.Offset+f.Shape.Size > s.Size {
				return invalid(s, "field %q at offset %d overruns size %d", f.Name, f.Offset, s.Size)
			}
			if f.Shape.Align != 0 && f.Offset%f.Shape.Align != 0 {
				return invalid(s, "field %q at offset %d is misaligned", f.Name, f.Offset)
			}
		}
		return nil
	}

	switch s.Kind {
	case KindStruct, KindTuple:
		return checkFields(s.Fields)
	case KindEnum:
		if s.Enum == nil {
			return invalid(s, "enum without EnumOps")
		}
		if len(s.Variants) == 0 {
			return invalid(s, "enum without variants")
		}
		for i := range s.Variants {
			if err := checkFields(s.Variants[i].Fields); err != nil {
				return err
			}
		}
	case KindSeq:
		if s.Seq == nil || s.Elem == nil {
			return invalid(s, "sequence without SeqOps or element shape")
		}
	case KindMap:
		if s.Map == nil || s.Elem == nil || s.Key == nil {
			return invalid(s, "map without MapOps, key or value shape")
		}
	case KindOption:
		if s.Option == nil || s.Elem == nil {
			return invalid(s, "option without OptionOps or payload shape")
		}
	case KindWrapper:
		if s.Wrapper == nil || s.Elem == nil {
			return invalid(s, "wrapper without WrapperOps or inner shape")
		}
	default:
		if !s.Kind.IsScalar() {
			return invalid(s, "unknown kind %d", uint8(s.Kind))
		}
	}
	return nil
}

func invalid(s *Shape, msg string, args ...any) error {
	b := errors.New(errors.PhaseDerive, errors.KindInvalidShape).Detail(msg, args...)
	if s != nil {
		b = b.Found(s.Name)
	}
	return b.Build()
}
