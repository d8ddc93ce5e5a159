package canon

import (
	"math"
	"unicode/utf8"

	"go.bytecodealliance.org/wit"

	"github.com/ldubos/facet/codec/canon/internal/abi"
	"github.com/ldubos/facet/codec/canon/internal/layout"
	"github.com/ldubos/facet/derive"
	"github.com/ldubos/facet/driver"
	"github.com/ldubos/facet/errors"
	"github.com/ldubos/facet/internal/path"
	"github.com/ldubos/facet/poke"
	"github.com/ldubos/facet/shape"
)

// Lift builds a value of shape s from its Canonical ABI representation at
// addr. Bytes that do not form a valid value of s, such as an out of range
// discriminant, a surrogate char or a string that is not UTF-8, fail with
// InvalidData.
func Lift(mem Memory, addr uint32, s *shape.Shape, opts Options) (*poke.Value, error) {
	if _, err := TypeOf(s); err != nil {
		return nil, err
	}
	w := driver.NewWriter(poke.New(s))
	l := &lifter{mem: mem, w: w, opts: opts}
	if err := l.load(s, addr, path.Root); err != nil {
		w.Abandon()
		return nil, err
	}
	return w.Finish()
}

// LiftAs lifts a value of type T.
func LiftAs[T any](mem Memory, addr uint32, opts Options) (T, error) {
	var zero T
	s, err := derive.For[T]()
	if err != nil {
		return zero, err
	}
	v, err := Lift(mem, addr, s, opts)
	if err != nil {
		return zero, err
	}
	return poke.As[T](v)
}

type lifter struct {
	mem  Memory
	w    *driver.Writer
	opts Options
}

func (l *lifter) load(s *shape.Shape, addr uint32, at path.Path) error {
	switch k := s.Kind; {
	case k.IsScalar():
		v, err := l.scalar(s, addr, at)
		if err != nil {
			return err
		}
		return l.w.Scalar(v)
	case k == shape.KindWrapper:
		return l.load(s.Elem, addr, at)
	case k == shape.KindOption:
		return l.option(s, addr, at)
	case k == shape.KindStruct:
		return l.record(s, addr, at)
	case k == shape.KindTuple:
		return l.tuple(s, addr, at)
	case k == shape.KindSeq:
		return l.list(s, addr, at)
	case k == shape.KindMap:
		return l.entries(s, addr, at)
	case k == shape.KindEnum:
		return l.variant(s, addr, at)
	}
	return errors.Unsupported(errors.PhaseDecode, s.Name+" ("+s.Kind.String()+") cannot be lifted")
}

// scalar reads the Go value of a scalar kind stored at addr.
func (l *lifter) scalar(s *shape.Shape, addr uint32, at path.Path) (any, error) {
	switch k := s.Kind; {
	case k == shape.KindBool:
		b, err := l.mem.ReadU8(addr)
		return b != 0, err
	case k.IsInteger():
		return l.integer(k, addr)
	case k == shape.KindFloat32:
		bits, err := l.mem.ReadU32(addr)
		return abi.CanonicalizeF32(math.Float32frombits(bits)), err
	case k == shape.KindFloat64:
		bits, err := l.mem.ReadU64(addr)
		return abi.CanonicalizeF64(math.Float64frombits(bits)), err
	case k == shape.KindChar:
		r, err := l.mem.ReadU32(addr)
		if err != nil {
			return nil, err
		}
		if !abi.ValidChar(r) {
			return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
				Path(at.Segments()...).
				Value(r).
				Detail("char is not a Unicode scalar value").
				Build()
		}
		return rune(r), nil
	case k == shape.KindString:
		data, err := l.contents(addr, l.opts.maxStringSize(), at)
		if err != nil {
			return nil, err
		}
		if !utf8.Valid(data) {
			return nil, errors.InvalidData(errors.PhaseDecode, at.Segments(), "string is not valid UTF-8")
		}
		return string(data), nil
	case k == shape.KindBytes:
		return l.contents(addr, l.opts.maxListLength(), at)
	}
	return nil, errors.Unsupported(errors.PhaseDecode, s.Name+" ("+s.Kind.String()+") cannot be lifted")
}

func (l *lifter) integer(k shape.Kind, addr uint32) (any, error) {
	var u uint64
	var err error
	switch width(k) {
	case 8:
		var v uint8
		v, err = l.mem.ReadU8(addr)
		u = uint64(v)
		if k.IsSigned() {
			return int64(int8(v)), err
		}
	case 16:
		var v uint16
		v, err = l.mem.ReadU16(addr)
		u = uint64(v)
		if k.IsSigned() {
			return int64(int16(v)), err
		}
	case 32:
		var v uint32
		v, err = l.mem.ReadU32(addr)
		u = uint64(v)
		if k.IsSigned() {
			return int64(int32(v)), err
		}
	default:
		u, err = l.mem.ReadU64(addr)
		if k.IsSigned() {
			return int64(u), err
		}
	}
	return u, err
}

// span reads the (pointer, length) pair at addr.
func (l *lifter) span(addr, limit uint32, at path.Path) (uint32, uint32, error) {
	ptr, err := l.mem.ReadU32(addr)
	if err != nil {
		return 0, 0, err
	}
	n, err := l.mem.ReadU32(addr + 4)
	if err != nil {
		return 0, 0, err
	}
	if n > limit {
		return 0, 0, errors.AllocationFailed(errors.PhaseDecode, at.Segments(), int(n), int(limit))
	}
	return ptr, n, nil
}

func (l *lifter) contents(addr, limit uint32, at path.Path) ([]byte, error) {
	ptr, n, err := l.span(addr, limit, at)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return []byte{}, nil
	}
	data, err := l.mem.Read(ptr, n)
	if err != nil {
		return nil, errors.WithLocation(err, at.String())
	}
	return append([]byte(nil), data...), nil
}

func (l *lifter) option(s *shape.Shape, addr uint32, at path.Path) error {
	disc, err := l.mem.ReadU8(addr)
	if err != nil {
		return err
	}
	switch disc {
	case 0:
		return l.w.Scalar(nil)
	case 1:
		info, err := layoutOf(s)
		if err != nil {
			return err
		}
		return l.load(s.Elem, addr+info.Payload, at)
	}
	return errors.New(errors.PhaseDecode, errors.KindInvalidData).
		Path(at.Segments()...).
		Value(disc).
		Detail("option discriminant must be 0 or 1").
		Build()
}

// fields writes the named fields of a record layout through the open
// struct on top of the writer.
func (l *lifter) fields(fields []shape.Field, info layout.Info, addr uint32, at path.Path) error {
	for i := range fields {
		f := &fields[i]
		if err := l.w.Field(f.Name); err != nil {
			return err
		}
		if err := l.load(f.Shape, addr+info.Offsets[i], at.Field(f.Name)); err != nil {
			return err
		}
	}
	return l.w.EndStruct()
}

func (l *lifter) record(s *shape.Shape, addr uint32, at path.Path) error {
	info, err := layoutOf(s)
	if err != nil {
		return err
	}
	if err := l.w.BeginStruct(); err != nil {
		return err
	}
	return l.fields(s.Fields, info, addr, at)
}

func (l *lifter) tuple(s *shape.Shape, addr uint32, at path.Path) error {
	info, err := layoutOf(s)
	if err != nil {
		return err
	}
	if err := l.w.BeginSeq(len(s.Fields)); err != nil {
		return err
	}
	for i := range s.Fields {
		if err := l.w.Element(); err != nil {
			return err
		}
		if err := l.load(s.Fields[i].Shape, addr+info.Offsets[i], at.Index(i)); err != nil {
			return err
		}
	}
	return l.w.EndSeq()
}

// array reads a list's (pointer, length) pair and checks that its
// elements lie inside memory before anything is reserved for them.
func (l *lifter) array(addr uint32, elem layout.Info, at path.Path) (uint32, uint32, error) {
	base, n, err := l.span(addr, l.opts.maxListLength(), at)
	if err != nil || n == 0 {
		return base, n, err
	}
	size, ok := abi.SafeMulU32(n, elem.Size)
	end, ok2 := abi.SafeAddU32(base, size)
	sizer, sized := l.mem.(MemorySizer)
	if !ok || !ok2 || sized && end > sizer.Size() {
		return 0, 0, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Path(at.Segments()...).
			Detail("list of %d elements at %d exceeds memory", n, base).
			Build()
	}
	if base%max(elem.Align, 1) != 0 {
		return 0, 0, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Path(at.Segments()...).
			Detail("list at %d is not aligned to %d", base, elem.Align).
			Build()
	}
	return base, n, nil
}

func (l *lifter) list(s *shape.Shape, addr uint32, at path.Path) error {
	elem, err := layoutOf(s.Elem)
	if err != nil {
		return err
	}
	base, n, err := l.array(addr, elem, at)
	if err != nil {
		return err
	}
	if err := l.w.BeginSeq(int(n)); err != nil {
		return err
	}
	for i := range n {
		if err := l.w.Element(); err != nil {
			return err
		}
		if err := l.load(s.Elem, base+i*elem.Size, at.Index(int(i))); err != nil {
			return err
		}
	}
	return l.w.EndSeq()
}

func (l *lifter) entries(s *shape.Shape, addr uint32, at path.Path) error {
	t, err := TypeOf(s)
	if err != nil {
		return err
	}
	entry := calc.Calculate(t.(*wit.TypeDef).Kind.(*wit.List).Type)

	base, n, err := l.array(addr, entry, at)
	if err != nil {
		return err
	}
	if err := l.w.BeginMap(int(n)); err != nil {
		return err
	}
	key := s.Key.Underlying()
	for i := range n {
		ea := base + i*entry.Size
		k, err := l.scalar(key, ea+entry.Offsets[0], at.Index(int(i)))
		if err != nil {
			return err
		}
		if err := l.w.Entry(k); err != nil {
			return err
		}
		if err := l.load(s.Elem, ea+entry.Offsets[1], at.Index(int(i))); err != nil {
			return err
		}
	}
	return l.w.EndMap()
}

// variant selects the variant the stored index names. Payloads are always
// written struct-style so a single struct field is not mistaken for the
// payload itself.
func (l *lifter) variant(s *shape.Shape, addr uint32, at path.Path) error {
	info, err := layoutOf(s)
	if err != nil {
		return err
	}
	var disc uint64
	switch info.Disc {
	case 1:
		var v uint8
		v, err = l.mem.ReadU8(addr)
		disc = uint64(v)
	case 2:
		var v uint16
		v, err = l.mem.ReadU16(addr)
		disc = uint64(v)
	default:
		var v uint32
		v, err = l.mem.ReadU32(addr)
		disc = uint64(v)
	}
	if err != nil {
		return err
	}
	if disc >= uint64(len(s.Variants)) {
		return errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Path(at.Segments()...).
			Value(disc).
			Detail("discriminant out of range for %d variants of %s", len(s.Variants), s.Name).
			Build()
	}

	v := &s.Variants[disc]
	if err := l.w.SelectVariant(v.Name); err != nil {
		return err
	}
	inner := at.Variant(v.Name)
	switch len(v.Fields) {
	case 0:
		return nil
	case 1:
		if err := l.w.BeginStruct(); err != nil {
			return err
		}
		if err := l.w.Field(v.Fields[0].Name); err != nil {
			return err
		}
		if err := l.load(v.Fields[0].Shape, addr+info.Payload, inner.Field(v.Fields[0].Name)); err != nil {
			return err
		}
		return l.w.EndStruct()
	}

	t, err := TypeOf(s)
	if err != nil {
		return err
	}
	payload := calc.Calculate(t.(*wit.TypeDef).Kind.(*wit.Variant).Cases[disc].Type)
	if err := l.w.BeginStruct(); err != nil {
		return err
	}
	return l.fields(v.Fields, payload, addr+info.Payload, inner)
}
