package canon

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/ldubos/facet/errors"
)

// LinearMemory adapts a wazero memory to Memory.
type LinearMemory struct {
	Mem api.Memory
}

// NewLinearMemory returns the memory exported by mod under name, or nil if
// there is none.
func NewLinearMemory(mod api.Module, name string) *LinearMemory {
	mem := mod.ExportedMemory(name)
	if mem == nil {
		return nil
	}
	return &LinearMemory{Mem: mem}
}

func outOfBounds(phase errors.Phase, offset, length uint32) error {
	return errors.New(phase, errors.KindIndexOutOfRange).
		Detail("linear memory access out of bounds: offset=%d, length=%d", offset, length).
		Build()
}

func (m *LinearMemory) Size() uint32 { return m.Mem.Size() }

// Read returns a copy of length bytes at offset.
func (m *LinearMemory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.Mem.Read(offset, length)
	if !ok {
		return nil, outOfBounds(errors.PhaseDecode, offset, length)
	}
	return append([]byte(nil), data...), nil
}

func (m *LinearMemory) Write(offset uint32, data []byte) error {
	if !m.Mem.Write(offset, data) {
		return outOfBounds(errors.PhaseEncode, offset, uint32(len(data)))
	}
	return nil
}

func (m *LinearMemory) ReadU8(offset uint32) (uint8, error) {
	v, ok := m.Mem.ReadByte(offset)
	if !ok {
		return 0, outOfBounds(errors.PhaseDecode, offset, 1)
	}
	return v, nil
}

func (m *LinearMemory) ReadU16(offset uint32) (uint16, error) {
	v, ok := m.Mem.ReadUint16Le(offset)
	if !ok {
		return 0, outOfBounds(errors.PhaseDecode, offset, 2)
	}
	return v, nil
}

func (m *LinearMemory) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.Mem.ReadUint32Le(offset)
	if !ok {
		return 0, outOfBounds(errors.PhaseDecode, offset, 4)
	}
	return v, nil
}

func (m *LinearMemory) ReadU64(offset uint32) (uint64, error) {
	v, ok := m.Mem.ReadUint64Le(offset)
	if !ok {
		return 0, outOfBounds(errors.PhaseDecode, offset, 8)
	}
	return v, nil
}

func (m *LinearMemory) WriteU8(offset uint32, value uint8) error {
	if !m.Mem.WriteByte(offset, value) {
		return outOfBounds(errors.PhaseEncode, offset, 1)
	}
	return nil
}

func (m *LinearMemory) WriteU16(offset uint32, value uint16) error {
	if !m.Mem.WriteUint16Le(offset, value) {
		return outOfBounds(errors.PhaseEncode, offset, 2)
	}
	return nil
}

func (m *LinearMemory) WriteU32(offset uint32, value uint32) error {
	if !m.Mem.WriteUint32Le(offset, value) {
		return outOfBounds(errors.PhaseEncode, offset, 4)
	}
	return nil
}

func (m *LinearMemory) WriteU64(offset uint32, value uint64) error {
	if !m.Mem.WriteUint64Le(offset, value) {
		return outOfBounds(errors.PhaseEncode, offset, 8)
	}
	return nil
}

// Realloc allocates through a guest's exported cabi_realloc function.
type Realloc struct {
	Ctx context.Context
	Fn  api.Function
}

// NewRealloc returns an allocator calling mod's cabi_realloc export, or nil
// if mod does not export one.
func NewRealloc(ctx context.Context, mod api.Module) *Realloc {
	fn := mod.ExportedFunction("cabi_realloc")
	if fn == nil {
		return nil
	}
	return &Realloc{Ctx: ctx, Fn: fn}
}

func (a *Realloc) Alloc(size, align uint32) (uint32, error) {
	results, err := a.Fn.Call(a.Ctx, 0, 0, uint64(align), uint64(size))
	if err != nil {
		return 0, errors.Wrap(errors.PhaseEncode, errors.KindAllocation, err, "cabi_realloc failed")
	}
	if len(results) == 0 || results[0] == 0 {
		return 0, errors.New(errors.PhaseEncode, errors.KindAllocation).
			Detail("cabi_realloc returned no memory for %d bytes", size).
			Build()
	}
	return uint32(results[0]), nil
}

func (a *Realloc) Free(ptr, size, align uint32) {
	_, _ = a.Fn.Call(a.Ctx, uint64(ptr), uint64(size), uint64(align), 0)
}
