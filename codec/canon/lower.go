package canon

import (
	"math"
	"unicode/utf8"

	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	"github.com/ldubos/facet"
	"github.com/ldubos/facet/codec/canon/internal/abi"
	"github.com/ldubos/facet/codec/canon/internal/layout"
	"github.com/ldubos/facet/errors"
	"github.com/ldubos/facet/peek"
	"github.com/ldubos/facet/shape"
)

// Lower allocates a region for the value p views and stores it there,
// together with the contents of its strings and lists. It returns the
// region's address and the list of every allocation made, which the caller
// frees once the guest is done with the value. On failure everything
// allocated so far is freed.
func Lower(p peek.Peek, mem Memory, alloc Allocator, opts Options) (uint32, *AllocationList, error) {
	info, err := layoutOf(p.Shape())
	if err != nil {
		return 0, nil, err
	}

	allocs := NewAllocationList()
	l := &lowerer{mem: mem, alloc: alloc, allocs: allocs, opts: opts}
	addr, err := l.allocate(max(info.Size, 1), info.Align, p)
	if err == nil {
		err = l.store(p, addr)
	}
	if err != nil {
		Logger().Debug("freeing partially lowered value",
			zap.String("shape", p.Shape().Name),
			zap.Int("allocations", allocs.Count()),
			zap.Error(err))
		allocs.FreeAndRelease(alloc)
		return 0, nil, err
	}
	return addr, allocs, nil
}

// LowerValue lowers the value v holds or points to.
func LowerValue(v any, mem Memory, alloc Allocator, opts Options) (uint32, *AllocationList, error) {
	p, err := facet.PeekOf(v)
	if err != nil {
		return 0, nil, err
	}
	return Lower(p, mem, alloc, opts)
}

// Store writes the value p views at addr, which must hold a region of the
// value's size and alignment. Allocations for strings and lists are
// recorded in allocs when it is not nil.
func Store(p peek.Peek, addr uint32, mem Memory, alloc Allocator, allocs *AllocationList, opts Options) error {
	l := &lowerer{mem: mem, alloc: alloc, allocs: allocs, opts: opts}
	return l.store(p, addr)
}

type lowerer struct {
	mem    Memory
	alloc  Allocator
	allocs *AllocationList
	opts   Options
}

func (l *lowerer) allocate(size, align uint32, p peek.Peek) (uint32, error) {
	if l.alloc == nil {
		return 0, errors.New(errors.PhaseEncode, errors.KindAllocation).
			Path(p.Location().Segments()...).
			Detail("no allocator for %d bytes", size).
			Build()
	}
	ptr, err := l.alloc.Alloc(size, align)
	if err != nil {
		return 0, errors.WithLocation(err, p.Path())
	}
	if l.allocs != nil {
		l.allocs.Add(ptr, size, align)
	}
	return ptr, nil
}

func (l *lowerer) store(p peek.Peek, addr uint32) error {
	s := p.Shape()
	switch k := s.Kind; {
	case k == shape.KindBool:
		v, _ := p.Bool()
		var b uint8
		if v {
			b = 1
		}
		return l.mem.WriteU8(addr, b)
	case k.IsSigned():
		n, _ := p.Int()
		return l.integer(addr, width(k), uint64(n))
	case k.IsUnsigned():
		n, _ := p.Uint()
		return l.integer(addr, width(k), n)
	case k == shape.KindFloat32:
		f, _ := p.Float()
		return l.mem.WriteU32(addr, math.Float32bits(abi.CanonicalizeF32(float32(f))))
	case k == shape.KindFloat64:
		f, _ := p.Float()
		return l.mem.WriteU64(addr, math.Float64bits(abi.CanonicalizeF64(f)))
	case k == shape.KindChar:
		r, _ := p.Char()
		if !abi.ValidChar(uint32(r)) {
			return errors.InvalidData(errors.PhaseEncode, p.Location().Segments(), "char is not a Unicode scalar value")
		}
		return l.mem.WriteU32(addr, uint32(r))
	case k == shape.KindString:
		v, _ := p.Str()
		if !utf8.ValidString(v) {
			return errors.InvalidData(errors.PhaseEncode, p.Location().Segments(), "string is not valid UTF-8")
		}
		return l.contents(p, addr, []byte(v), l.opts.maxStringSize())
	case k == shape.KindBytes:
		v, _ := p.Bytes()
		return l.contents(p, addr, v, l.opts.maxListLength())
	case k == shape.KindWrapper:
		inner, err := p.Inner()
		if err != nil {
			return err
		}
		return l.store(inner, addr)
	case k == shape.KindOption:
		return l.option(p, addr)
	case k.HasFields():
		return l.fields(p, addr)
	case k == shape.KindSeq:
		return l.list(p, addr)
	case k == shape.KindMap:
		return l.entries(p, addr)
	case k == shape.KindEnum:
		return l.variant(p, addr)
	}
	return errors.Unsupported(errors.PhaseEncode, s.Name+" ("+s.Kind.String()+") cannot be lowered")
}

func (l *lowerer) integer(addr uint32, bits int, v uint64) error {
	switch bits {
	case 8:
		return l.mem.WriteU8(addr, uint8(v))
	case 16:
		return l.mem.WriteU16(addr, uint16(v))
	case 32:
		return l.mem.WriteU32(addr, uint32(v))
	}
	return l.mem.WriteU64(addr, v)
}

// contents copies data into a fresh byte region and stores its
// (pointer, length) pair at addr.
func (l *lowerer) contents(p peek.Peek, addr uint32, data []byte, limit uint32) error {
	if uint64(len(data)) > uint64(limit) {
		return errors.AllocationFailed(errors.PhaseEncode, p.Location().Segments(), len(data), int(limit))
	}
	n := uint32(len(data))
	if n == 0 {
		return l.pair(addr, 0, 0)
	}
	ptr, err := l.allocate(n, 1, p)
	if err != nil {
		return err
	}
	if err := l.mem.Write(ptr, data); err != nil {
		return err
	}
	return l.pair(addr, ptr, n)
}

func (l *lowerer) pair(addr, ptr, n uint32) error {
	if err := l.mem.WriteU32(addr, ptr); err != nil {
		return err
	}
	return l.mem.WriteU32(addr+4, n)
}

func (l *lowerer) option(p peek.Peek, addr uint32) error {
	if !p.IsSome() {
		return l.mem.WriteU8(addr, 0)
	}
	info, err := layoutOf(p.Shape())
	if err != nil {
		return err
	}
	if err := l.mem.WriteU8(addr, 1); err != nil {
		return err
	}
	some, err := p.Some()
	if err != nil {
		return err
	}
	return l.store(some, addr+info.Payload)
}

// fields stores a struct or tuple field by field at the offsets of its
// record or tuple layout.
func (l *lowerer) fields(p peek.Peek, addr uint32) error {
	info, err := layoutOf(p.Shape())
	if err != nil {
		return err
	}
	i := 0
	for _, fp := range p.Fields() {
		if err := l.store(fp, addr+info.Offsets[i]); err != nil {
			return err
		}
		i++
	}
	return nil
}

// array allocates n elements of the given layout and stores their
// (pointer, length) pair at addr.
func (l *lowerer) array(p peek.Peek, addr uint32, n int, elem layout.Info) (uint32, error) {
	limit := l.opts.maxListLength()
	if uint64(n) > uint64(limit) {
		return 0, errors.AllocationFailed(errors.PhaseEncode, p.Location().Segments(), n, int(limit))
	}
	if n == 0 {
		return 0, l.pair(addr, 0, 0)
	}
	size, ok := abi.SafeMulU32(uint32(n), elem.Size)
	if !ok {
		return 0, errors.Overflow(errors.PhaseEncode, p.Location().Segments(), n, "list byte size")
	}
	base, err := l.allocate(max(size, 1), elem.Align, p)
	if err != nil {
		return 0, err
	}
	return base, l.pair(addr, base, uint32(n))
}

func (l *lowerer) list(p peek.Peek, addr uint32) error {
	elem, err := layoutOf(p.Shape().Elem)
	if err != nil {
		return err
	}
	n, _ := p.Len()
	base, err := l.array(p, addr, n, elem)
	if err != nil || n == 0 {
		return err
	}
	for i, ep := range p.Elements() {
		if err := l.store(ep, base+uint32(i)*elem.Size); err != nil {
			return err
		}
	}
	return nil
}

// entries stores a map as a list of (key, value) tuples in key order.
func (l *lowerer) entries(p peek.Peek, addr uint32) error {
	t, err := TypeOf(p.Shape())
	if err != nil {
		return err
	}
	entry := calc.Calculate(t.(*wit.TypeDef).Kind.(*wit.List).Type)

	n, _ := p.Len()
	base, err := l.array(p, addr, n, entry)
	if err != nil || n == 0 {
		return err
	}
	seq, err := p.Entries()
	if err != nil {
		return err
	}
	i := uint32(0)
	for kp, vp := range seq {
		at := base + i*entry.Size
		if err := l.store(kp, at+entry.Offsets[0]); err != nil {
			return err
		}
		if err := l.store(vp, at+entry.Offsets[1]); err != nil {
			return err
		}
		i++
	}
	return nil
}

// variant stores the index of the active variant, then its payload: the
// only field directly, or several fields as a record.
func (l *lowerer) variant(p peek.Peek, addr uint32) error {
	info, err := layoutOf(p.Shape())
	if err != nil {
		return err
	}
	v, err := p.Variant()
	if err != nil {
		return err
	}
	if err := l.integer(addr, int(info.Disc)*8, uint64(v.Index)); err != nil {
		return err
	}

	switch v.NumFields() {
	case 0:
		return nil
	case 1:
		fp, err := v.Field(0)
		if err != nil {
			return err
		}
		return l.store(fp, addr+info.Payload)
	}

	t, err := TypeOf(p.Shape())
	if err != nil {
		return err
	}
	payload := calc.Calculate(t.(*wit.TypeDef).Kind.(*wit.Variant).Cases[v.Index].Type)
	i := 0
	for _, fp := range v.Fields() {
		if err := l.store(fp, addr+info.Payload+payload.Offsets[i]); err != nil {
			return err
		}
		i++
	}
	return nil
}
