package msgpack

import (
	"bytes"
	"net/netip"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vmsgpack "github.com/vmihailenco/msgpack/v5"

	"github.com/ldubos/facet"
	"github.com/ldubos/facet/derive"
	"github.com/ldubos/facet/driver"
	"github.com/ldubos/facet/errors"
	"github.com/ldubos/facet/peek"
	"github.com/ldubos/facet/poke"
	"github.com/ldubos/facet/shape"
)

type point struct {
	X int64 `facet:"x"`
	Y int64 `facet:"y"`
}

type figure struct {
	Kind   string  `facet:",tag"`
	Radius float64 `facet:"radius,variant=Circle"`
	W      float64 `facet:"w,variant=Rect"`
	H      float64 `facet:"h,variant=Rect"`
}

func (figure) Variants() []string { return []string{"Circle", "Rect", "Empty"} }

type record struct {
	Name    string            `facet:"name"`
	Flag    bool              `facet:"flag"`
	Small   int8              `facet:"small"`
	Big     uint64            `facet:"big"`
	Ratio   float32           `facet:"ratio"`
	Letter  rune              `facet:"letter,char"`
	Raw     []byte            `facet:"raw"`
	Counts  map[string]uint16 `facet:"counts"`
	Pair    [2]int32          `facet:"pair"`
	Addr    netip.Addr        `facet:"addr"`
	Figures []figure          `facet:"figures"`
	Note    *string           `facet:"note"`
}

func TestMarshal_Point(t *testing.T) {
	out, err := Marshal(point{X: 1, Y: 2})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x82, 0xa1, 'x', 0x01, 0xa1, 'y', 0x02}, out)
}

func TestMarshal_ReadableByLibrary(t *testing.T) {
	out, err := Marshal(point{X: -3, Y: 300})
	require.NoError(t, err)

	var m map[string]int64
	require.NoError(t, vmsgpack.Unmarshal(out, &m))
	assert.Equal(t, map[string]int64{"x": -3, "y": 300}, m)
}

func TestMarshal_Variants(t *testing.T) {
	out, err := Marshal(figure{Kind: "Empty"})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xa5, 'E', 'm', 'p', 't', 'y'}, out)

	out, err = Marshal(figure{Kind: "Circle", Radius: 2})
	require.NoError(t, err)
	var m map[string]map[string]float64
	require.NoError(t, vmsgpack.Unmarshal(out, &m))
	assert.Equal(t, map[string]map[string]float64{"Circle": {"radius": 2}}, m)
}

func TestRoundTrip(t *testing.T) {
	note := "hi"
	in := record{
		Name:    "r",
		Flag:    true,
		Small:   -5,
		Big:     1 << 63,
		Ratio:   0.25,
		Letter:  'é',
		Raw:     []byte{0, 1, 2},
		Counts:  map[string]uint16{"a": 1, "b": 65535},
		Pair:    [2]int32{-1, 1},
		Addr:    netip.MustParseAddr("192.168.0.1"),
		Figures: []figure{{Kind: "Rect", W: 1, H: 2}, {Kind: "Empty"}},
		Note:    &note,
	}

	out, err := Marshal(&in)
	require.NoError(t, err)

	var got record
	require.NoError(t, Unmarshal(out, &got))
	assert.Equal(t, in, got)

	got.Note = nil
	out, err = Marshal(&got)
	require.NoError(t, err)
	var again record
	require.NoError(t, Unmarshal(out, &again))
	assert.Nil(t, again.Note)
}

func TestEncode_OmitNone(t *testing.T) {
	type sparse struct {
		A *int `facet:"a"`
		B int  `facet:"b"`
	}
	p, err := facet.PeekOf(&sparse{B: 1})
	require.NoError(t, err)

	opts := driver.DefaultOptions()
	opts.OmitNone = true
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, p, opts))
	assert.Equal(t, []byte{0x81, 0xa1, 'b', 0x01}, buf.Bytes())
}

func TestDecode_FromLibrary(t *testing.T) {
	// another writer may use bin for text and wider ints than needed
	data, err := vmsgpack.Marshal(map[string]any{"x": uint64(7), "y": []byte("9")})
	require.NoError(t, err)

	type loose struct {
		X int16  `facet:"x"`
		Y string `facet:"y"`
	}
	var got loose
	require.NoError(t, Unmarshal(data, &got))
	assert.Equal(t, loose{X: 7, Y: "9"}, got)
}

func TestDecode_Errors(t *testing.T) {
	s := derive.MustFor[point]()
	tests := []struct {
		name string
		data []byte
		opts func(*driver.Options)
		kind errors.Kind
	}{
		{name: "truncated", data: []byte{0x82, 0xa1, 'x'}, kind: errors.KindUnexpectedEOF},
		{name: "trailing", data: []byte{0x82, 0xa1, 'x', 0x01, 0xa1, 'y', 0x02, 0xc0}, kind: errors.KindTrailingContents},
		{name: "missing", data: []byte{0x81, 0xa1, 'x', 0x01}, kind: errors.KindIncompleteValue},
		{name: "unknown", data: []byte{0x81, 0xa1, 'z', 0x01}, kind: errors.KindNoSuchField},
		{name: "overflow", data: []byte{0x82, 0xa1, 'x', 0xcf, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xa1, 'y', 0x02}, kind: errors.KindOverflow},
		{name: "array for struct", data: []byte{0x92, 0x01, 0x02}, kind: errors.KindShapeMismatch},
		{
			name: "ignored unknown",
			data: []byte{0x83, 0xa1, 'x', 0x01, 0xa1, 'z', 0x91, 0x80, 0xa1, 'y', 0x02},
			opts: func(o *driver.Options) { o.IgnoreUnknownFields = true },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := driver.DefaultOptions()
			if tt.opts != nil {
				tt.opts(&opts)
			}
			v, err := Decode(tt.data, s, opts)
			if tt.kind == "" {
				require.NoError(t, err)
				got, err := poke.As[point](v)
				require.NoError(t, err)
				assert.Equal(t, point{1, 2}, got)
				return
			}
			require.ErrorIs(t, err, &errors.Error{Kind: tt.kind})
		})
	}
}

func TestDecode_LengthHeaderBeyondInput(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		s    *shape.Shape
	}{
		{name: "array32", data: []byte{0xdd, 0x00, 0xf4, 0x24, 0x00}, s: derive.MustFor[[][4]string]()},
		{name: "map32", data: []byte{0xdf, 0x00, 0xf4, 0x24, 0x00}, s: derive.MustFor[map[string][4]string]()},
		{name: "array32 one element", data: []byte{0xdd, 0x00, 0xf4, 0x24, 0x00, 0x94, 0xa0, 0xa0, 0xa0, 0xa0}, s: derive.MustFor[[][4]string]()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var before, after runtime.MemStats
			runtime.ReadMemStats(&before)
			_, err := Decode(tt.data, tt.s, driver.DefaultOptions())
			runtime.ReadMemStats(&after)

			require.ErrorIs(t, err, &errors.Error{Kind: errors.KindUnexpectedEOF})
			assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(16<<20))
		})
	}
}

func TestDecode_Depth(t *testing.T) {
	opts := driver.DefaultOptions()
	opts.MaxDepth = 2
	data := []byte{0x91, 0x91, 0x91, 0x01}

	_, err := Decode(data, derive.MustFor[[][][]int](), opts)
	require.ErrorIs(t, err, &errors.Error{Kind: errors.KindDepthExceeded})

	opts.MaxDepth = 8
	v, err := Decode(data, derive.MustFor[[][][]int](), opts)
	require.NoError(t, err)
	ok, err := peek.Equal(v.Peek(), mustPeek(t, [][][]int{{{1}}}), peek.DefaultWalkOptions())
	require.NoError(t, err)
	assert.True(t, ok)
}

func mustPeek(t *testing.T, v any) peek.Peek {
	t.Helper()
	p, err := facet.PeekOf(v)
	require.NoError(t, err)
	return p
}
