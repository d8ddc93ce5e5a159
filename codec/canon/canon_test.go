package canon

import (
	"context"
	stderrors "errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"

	"github.com/ldubos/facet"
	"github.com/ldubos/facet/errors"
)

type point struct {
	X int32 `facet:"x"`
	Y int32 `facet:"y"`
}

type figure struct {
	Kind   string  `facet:",tag"`
	Radius float64 `facet:"radius,variant=Circle"`
	W      float64 `facet:"w,variant=Rect"`
	H      float64 `facet:"h,variant=Rect"`
	At     point   `facet:"at,variant=Pin"`
}

func (figure) Variants() []string { return []string{"Circle", "Rect", "Pin", "Empty"} }

type scene struct {
	Figures []figure `facet:"figures"`
	Origin  [2]int32 `facet:"origin"`
	Label   *string  `facet:"label"`
}

type header struct {
	Flag bool   `facet:"flag"`
	ID   uint32 `facet:"id"`
	Tag  uint16 `facet:"tag"`
}

type blob struct {
	Name string `facet:"name"`
	Data []byte `facet:"data"`
}

type glyph struct {
	C rune `facet:"c,char"`
}

type maybe struct {
	N *int64 `facet:"n"`
}

type tree struct {
	Kids []tree `facet:"kids"`
}

func isKind(err error, k errors.Kind) bool {
	return stderrors.Is(err, &errors.Error{Kind: k})
}

func roundTrip[T any](t *testing.T, mem Memory, alloc Allocator, v T) T {
	t.Helper()
	addr, allocs, err := LowerValue(&v, mem, alloc, DefaultOptions())
	require.NoError(t, err)
	defer allocs.Release()

	got, err := LiftAs[T](mem, addr, DefaultOptions())
	require.NoError(t, err)
	return got
}

func newBuffer(size uint32) (*BufferMemory, *Arena) {
	mem := NewBufferMemory(size)
	return mem, NewArena(mem, 0)
}

func TestLower_RecordLayout(t *testing.T) {
	mem, arena := newBuffer(64)
	addr, allocs, err := LowerValue(header{Flag: true, ID: 42, Tag: 7}, mem, arena, DefaultOptions())
	require.NoError(t, err)
	defer allocs.Release()

	assert.Equal(t, uint32(8), addr)
	assert.Equal(t, 1, allocs.Count())
	assert.Equal(t, []byte{1, 0, 0, 0, 42, 0, 0, 0, 7, 0, 0, 0}, mem.Bytes()[8:20])
}

func TestLower_Scalars(t *testing.T) {
	mem, arena := newBuffer(64)

	addr, allocs, err := LowerValue(int8(-5), mem, arena, DefaultOptions())
	require.NoError(t, err)
	allocs.Release()
	assert.Equal(t, byte(0xfb), mem.Bytes()[addr])

	addr, allocs, err = LowerValue(math.Float32frombits(0x7fc00001), mem, arena, DefaultOptions())
	require.NoError(t, err)
	allocs.Release()
	bits, err := mem.ReadU32(addr)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x7fc00000), bits)
}

func TestRoundTrip_Buffer(t *testing.T) {
	label := "scene"
	tests := []struct {
		name string
		run  func(t *testing.T, mem Memory, alloc Allocator)
	}{
		{"point", func(t *testing.T, mem Memory, alloc Allocator) {
			assert.Equal(t, point{X: -1, Y: 2}, roundTrip(t, mem, alloc, point{X: -1, Y: 2}))
		}},
		{"string", func(t *testing.T, mem Memory, alloc Allocator) {
			assert.Equal(t, "héllo", roundTrip(t, mem, alloc, "héllo"))
		}},
		{"list", func(t *testing.T, mem Memory, alloc Allocator) {
			assert.Equal(t, []uint16{1, 2, 65535}, roundTrip(t, mem, alloc, []uint16{1, 2, 65535}))
		}},
		{"map", func(t *testing.T, mem Memory, alloc Allocator) {
			m := map[string]int32{"a": 1, "b": -2}
			assert.Equal(t, m, roundTrip(t, mem, alloc, m))
		}},
		{"option", func(t *testing.T, mem Memory, alloc Allocator) {
			n := int64(-9)
			got := roundTrip(t, mem, alloc, maybe{N: &n})
			require.NotNil(t, got.N)
			assert.Equal(t, n, *got.N)
			assert.Nil(t, roundTrip(t, mem, alloc, maybe{}).N)
		}},
		{"blob", func(t *testing.T, mem Memory, alloc Allocator) {
			b := blob{Name: "raw", Data: []byte{0, 1, 2, 255}}
			assert.Equal(t, b, roundTrip(t, mem, alloc, b))
		}},
		{"char", func(t *testing.T, mem Memory, alloc Allocator) {
			assert.Equal(t, glyph{C: 'ß'}, roundTrip(t, mem, alloc, glyph{C: 'ß'}))
		}},
		{"scene", func(t *testing.T, mem Memory, alloc Allocator) {
			s := scene{
				Figures: []figure{
					{Kind: "Circle", Radius: 1.5},
					{Kind: "Rect", W: 2, H: 3},
					{Kind: "Pin", At: point{X: 4, Y: -4}},
					{Kind: "Empty"},
				},
				Origin: [2]int32{10, -10},
				Label:  &label,
			}
			assert.Equal(t, s, roundTrip(t, mem, alloc, s))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem, arena := newBuffer(4096)
			tt.run(t, mem, arena)
		})
	}
}

func TestToWIT(t *testing.T) {
	s, err := facet.ShapeOf[scene]()
	require.NoError(t, err)

	out, err := ToWIT(s)
	require.NoError(t, err)
	assert.Equal(t, `record figure-rect {
    w: f64,
    h: f64,
}

record point {
    x: s32,
    y: s32,
}

variant figure {
    circle(f64),
    rect(figure-rect),
    pin(point),
    empty,
}

record scene {
    figures: list<figure>,
    origin: tuple<s32, s32>,
    label: option<string>,
}
`, out)
}

func TestToWIT_Anonymous(t *testing.T) {
	s, err := facet.ShapeOf[map[string]int32]()
	require.NoError(t, err)

	out, err := ToWIT(s)
	require.NoError(t, err)
	assert.Equal(t, "type value = list<tuple<string, s32>>;\n", out)
}

func TestTypeOf_Recursive(t *testing.T) {
	s, err := facet.ShapeOf[tree]()
	require.NoError(t, err)

	_, err = TypeOf(s)
	assert.True(t, isKind(err, errors.KindUnsupported), "got %v", err)
}

func TestLower_FreesOnFailure(t *testing.T) {
	mem, arena := newBuffer(64)
	_, _, err := LowerValue(blob{Name: "abc", Data: make([]byte, 100)}, mem, arena, DefaultOptions())
	require.Error(t, err)
	assert.True(t, isKind(err, errors.KindAllocation), "got %v", err)
	assert.Equal(t, uint32(0), arena.Live())

	// the arena is rewound, so the next value lands at the start again
	addr, allocs, err := LowerValue(point{X: 1}, mem, arena, DefaultOptions())
	require.NoError(t, err)
	allocs.Release()
	assert.Equal(t, uint32(8), addr)
}

func TestLower_NoAllocator(t *testing.T) {
	_, _, err := LowerValue(point{}, NewBufferMemory(64), nil, DefaultOptions())
	assert.True(t, isKind(err, errors.KindAllocation), "got %v", err)
}

func TestLimits(t *testing.T) {
	mem, arena := newBuffer(1024)

	_, _, err := LowerValue([]int32{1, 2, 3}, mem, arena, Options{MaxListLength: 2})
	assert.True(t, isKind(err, errors.KindAllocation), "got %v", err)

	_, _, err = LowerValue("hello", mem, arena, Options{MaxStringSize: 4})
	assert.True(t, isKind(err, errors.KindAllocation), "got %v", err)

	addr, allocs, err := LowerValue("hello", mem, arena, DefaultOptions())
	require.NoError(t, err)
	defer allocs.Release()
	_, err = LiftAs[string](mem, addr, Options{MaxStringSize: 4})
	assert.True(t, isKind(err, errors.KindAllocation), "got %v", err)
}

func TestLift_InvalidData(t *testing.T) {
	tests := []struct {
		name  string
		setup func(mem *BufferMemory)
		lift  func(mem Memory) error
	}{
		{
			name:  "surrogate char",
			setup: func(mem *BufferMemory) { _ = mem.WriteU32(8, 0xd800) },
			lift: func(mem Memory) error {
				_, err := LiftAs[glyph](mem, 8, DefaultOptions())
				return err
			},
		},
		{
			name:  "discriminant out of range",
			setup: func(mem *BufferMemory) { _ = mem.WriteU8(8, 7) },
			lift: func(mem Memory) error {
				_, err := LiftAs[figure](mem, 8, DefaultOptions())
				return err
			},
		},
		{
			name:  "option discriminant",
			setup: func(mem *BufferMemory) { _ = mem.WriteU8(8, 2) },
			lift: func(mem Memory) error {
				_, err := LiftAs[maybe](mem, 8, DefaultOptions())
				return err
			},
		},
		{
			name: "invalid utf-8",
			setup: func(mem *BufferMemory) {
				_ = mem.WriteU32(8, 32)
				_ = mem.WriteU32(12, 2)
				_ = mem.Write(32, []byte{0xff, 0xfe})
			},
			lift: func(mem Memory) error {
				_, err := LiftAs[string](mem, 8, DefaultOptions())
				return err
			},
		},
		{
			name: "list past memory",
			setup: func(mem *BufferMemory) {
				_ = mem.WriteU32(8, 32)
				_ = mem.WriteU32(12, 100)
			},
			lift: func(mem Memory) error {
				_, err := LiftAs[[]uint32](mem, 8, DefaultOptions())
				return err
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := NewBufferMemory(64)
			tt.setup(mem)
			err := tt.lift(mem)
			assert.True(t, isKind(err, errors.KindInvalidData), "got %v", err)
		})
	}
}

func TestLift_BoolNonZero(t *testing.T) {
	mem := NewBufferMemory(16)
	require.NoError(t, mem.WriteU8(8, 5))
	got, err := LiftAs[bool](mem, 8, DefaultOptions())
	require.NoError(t, err)
	assert.True(t, got)
}

func TestBufferMemory_OutOfBounds(t *testing.T) {
	mem := NewBufferMemory(16)
	_, err := mem.ReadU64(12)
	assert.True(t, isKind(err, errors.KindIndexOutOfRange), "got %v", err)
	assert.True(t, isKind(mem.Write(math.MaxUint32, []byte{1}), errors.KindIndexOutOfRange))
}

func TestArena(t *testing.T) {
	arena := NewArena(NewBufferMemory(32), 0)

	a, err := arena.Alloc(3, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(8), a)

	b, err := arena.Alloc(4, 4)
	require.NoError(t, err)
	assert.Equal(t, uint32(12), b)
	assert.Equal(t, uint32(7), arena.Live())

	_, err = arena.Alloc(32, 1)
	assert.True(t, isKind(err, errors.KindAllocation), "got %v", err)

	arena.Free(b, 4, 4)
	c, err := arena.Alloc(4, 4)
	require.NoError(t, err)
	assert.Equal(t, b, c)
}

type recordingAllocator struct {
	freed []uint32
}

func (r *recordingAllocator) Alloc(size, align uint32) (uint32, error) { return 0, nil }
func (r *recordingAllocator) Free(ptr, size, align uint32)             { r.freed = append(r.freed, ptr) }

func TestAllocationList(t *testing.T) {
	al := NewAllocationList()
	al.Add(8, 4, 4)
	al.Add(0, 1, 1)
	al.Add(16, 8, 8)
	assert.Equal(t, 3, al.Count())
	assert.Equal(t, Allocation{Ptr: 16, Size: 8, Align: 8}, al.All()[2])

	rec := &recordingAllocator{}
	al.FreeAndRelease(rec)
	assert.Equal(t, []uint32{16, 8}, rec.freed)
}

// memoryWASM is a minimal WASM module with 1 page of memory exported as "memory"
var memoryWASM = []byte{
	0x00, 0x61, 0x73, 0x6d, // magic
	0x01, 0x00, 0x00, 0x00, // version
	0x05, 0x03, 0x01, 0x00, 0x01, // memory section: 1 page, no max
	0x07, 0x0a, 0x01, // export section: 10 bytes, 1 export
	0x06, 0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79, // name: "memory"
	0x02, 0x00, // kind: memory, index 0
}

func TestLinearMemory(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	mod, err := rt.Instantiate(ctx, memoryWASM)
	require.NoError(t, err)
	defer mod.Close(ctx)

	assert.Nil(t, NewLinearMemory(mod, "missing"))
	assert.Nil(t, NewRealloc(ctx, mod))

	mem := NewLinearMemory(mod, "memory")
	require.NotNil(t, mem)
	assert.Equal(t, uint32(65536), mem.Size())

	label := "wasm"
	s := scene{
		Figures: []figure{{Kind: "Rect", W: 1, H: 2}, {Kind: "Pin", At: point{X: 3, Y: 4}}},
		Origin:  [2]int32{5, 6},
		Label:   &label,
	}
	assert.Equal(t, s, roundTrip(t, mem, NewArena(mem, 0), s))

	_, err = mem.Read(65534, 4)
	assert.True(t, isKind(err, errors.KindIndexOutOfRange), "got %v", err)
	assert.True(t, isKind(mem.WriteU64(65532, 1), errors.KindIndexOutOfRange))
}
