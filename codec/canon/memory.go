package canon

import (
	"encoding/binary"
	"sync"

	"github.com/ldubos/facet/codec/canon/internal/abi"
	"github.com/ldubos/facet/errors"
)

// Memory is a little-endian linear memory addressed by 32-bit offsets.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU8(offset uint32) (uint8, error)
	ReadU16(offset uint32) (uint16, error)
	ReadU32(offset uint32) (uint32, error)
	ReadU64(offset uint32) (uint64, error)
	WriteU8(offset uint32, value uint8) error
	WriteU16(offset uint32, value uint16) error
	WriteU32(offset uint32, value uint32) error
	WriteU64(offset uint32, value uint64) error
}

// MemorySizer provides the current size of a memory in bytes.
type MemorySizer interface {
	Size() uint32
}

// Allocator hands out regions of a Memory.
type Allocator interface {
	Alloc(size, align uint32) (uint32, error)
	Free(ptr, size, align uint32)
}

type Allocation struct {
	Ptr   uint32
	Size  uint32
	Align uint32
}

// AllocationList records the regions made while lowering one value so
// they can be returned together.
type AllocationList struct {
	allocations []Allocation
}

var allocationListPool = sync.Pool{
	New: func() any {
		return &AllocationList{allocations: make([]Allocation, 0, 8)}
	},
}

func NewAllocationList() *AllocationList {
	return allocationListPool.Get().(*AllocationList)
}

const maxPooledAllocationCapacity = 128

// Release returns the list to its pool. The list must not be used after.
func (al *AllocationList) Release() {
	if cap(al.allocations) > maxPooledAllocationCapacity {
		return
	}
	al.Reset()
	allocationListPool.Put(al)
}

func (al *AllocationList) FreeAndRelease(allocator Allocator) {
	al.Free(allocator)
	al.Release()
}

func (al *AllocationList) Add(ptr, size, align uint32) {
	al.allocations = append(al.allocations, Allocation{Ptr: ptr, Size: size, Align: align})
}

// Free returns every recorded region to allocator, newest first.
func (al *AllocationList) Free(allocator Allocator) {
	if allocator == nil {
		return
	}
	for i := len(al.allocations) - 1; i >= 0; i-- {
		if a := al.allocations[i]; a.Ptr != 0 {
			allocator.Free(a.Ptr, a.Size, a.Align)
		}
	}
	al.Reset()
}

func (al *AllocationList) Reset() {
	al.allocations = al.allocations[:0]
}

func (al *AllocationList) Count() int {
	return len(al.allocations)
}

// All returns the recorded regions in allocation order.
func (al *AllocationList) All() []Allocation {
	return al.allocations
}

// BufferMemory is a Memory over a Go byte slice.
type BufferMemory struct {
	buf []byte
}

// NewBufferMemory returns a zeroed memory of size bytes.
func NewBufferMemory(size uint32) *BufferMemory {
	return &BufferMemory{buf: make([]byte, size)}
}

func (m *BufferMemory) Size() uint32 { return uint32(len(m.buf)) }

// Bytes returns the backing slice.
func (m *BufferMemory) Bytes() []byte { return m.buf }

func (m *BufferMemory) region(offset, length uint32, write bool) ([]byte, error) {
	end, ok := abi.SafeAddU32(offset, length)
	if !ok || end > uint32(len(m.buf)) {
		op, phase := "read", errors.PhaseDecode
		if write {
			op, phase = "write", errors.PhaseEncode
		}
		return nil, errors.New(phase, errors.KindIndexOutOfRange).
			Detail("memory %s out of bounds: offset=%d, length=%d, size=%d", op, offset, length, len(m.buf)).
			Build()
	}
	return m.buf[offset:end], nil
}

func (m *BufferMemory) Read(offset, length uint32) ([]byte, error) {
	return m.region(offset, length, false)
}

func (m *BufferMemory) Write(offset uint32, data []byte) error {
	b, err := m.region(offset, uint32(len(data)), true)
	if err != nil {
		return err
	}
	copy(b, data)
	return nil
}

func (m *BufferMemory) ReadU8(offset uint32) (uint8, error) {
	b, err := m.region(offset, 1, false)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (m *BufferMemory) ReadU16(offset uint32) (uint16, error) {
	b, err := m.region(offset, 2, false)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (m *BufferMemory) ReadU32(offset uint32) (uint32, error) {
	b, err := m.region(offset, 4, false)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (m *BufferMemory) ReadU64(offset uint32) (uint64, error) {
	b, err := m.region(offset, 8, false)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (m *BufferMemory) WriteU8(offset uint32, value uint8) error {
	b, err := m.region(offset, 1, true)
	if err != nil {
		return err
	}
	b[0] = value
	return nil
}

func (m *BufferMemory) WriteU16(offset uint32, value uint16) error {
	b, err := m.region(offset, 2, true)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(b, value)
	return nil
}

func (m *BufferMemory) WriteU32(offset uint32, value uint32) error {
	b, err := m.region(offset, 4, true)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, value)
	return nil
}

func (m *BufferMemory) WriteU64(offset uint32, value uint64) error {
	b, err := m.region(offset, 8, true)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b, value)
	return nil
}

// Arena is a bump Allocator over a sized memory. Freeing the most recent
// region hands its bytes back; other frees only lower the live count.
// Address 0 is never handed out.
type Arena struct {
	mem  MemorySizer
	next uint32
	live uint32
}

// NewArena allocates from mem starting at base, or at 8 when base is 0.
func NewArena(mem MemorySizer, base uint32) *Arena {
	if base == 0 {
		base = 8
	}
	return &Arena{mem: mem, next: base}
}

func (a *Arena) Alloc(size, align uint32) (uint32, error) {
	ptr := abi.AlignTo(a.next, align)
	end, ok := abi.SafeAddU32(ptr, size)
	if !ok || ptr < a.next || end > a.mem.Size() {
		return 0, errors.New(errors.PhaseEncode, errors.KindAllocation).
			Detail("arena exhausted: %d bytes at alignment %d, %d of %d in use", size, align, a.next, a.mem.Size()).
			Build()
	}
	a.next = end
	a.live += size
	return ptr, nil
}

func (a *Arena) Free(ptr, size, _ uint32) {
	if ptr+size == a.next {
		a.next = ptr
	}
	a.live -= min(size, a.live)
}

// Live returns the number of allocated bytes not yet freed.
func (a *Arena) Live() uint32 { return a.live }
