package yaml

import (
	"fmt"
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldubos/facet"
	"github.com/ldubos/facet/derive"
	"github.com/ldubos/facet/driver"
	"github.com/ldubos/facet/errors"
	"github.com/ldubos/facet/peek"
	"github.com/ldubos/facet/poke"
)

type figure struct {
	Kind   string  `facet:",tag"`
	Radius float64 `facet:"radius,variant=Circle"`
	W      float64 `facet:"w,variant=Rect"`
	H      float64 `facet:"h,variant=Rect"`
}

func (figure) Variants() []string { return []string{"Circle", "Rect", "Empty"} }

type server struct {
	Name    string            `facet:"name"`
	Version string            `facet:"version"`
	Port    uint16            `facet:"port"`
	Addr    netip.Addr        `facet:"addr"`
	Labels  map[string]string `facet:"labels,optional"`
	Weights []float32         `facet:"weights,optional"`
	Blob    []byte            `facet:"blob,optional"`
	Shape   figure            `facet:"shape"`
	Backup  *server           `facet:"backup"`
}

type point struct {
	X int64 `facet:"x"`
	Y int64 `facet:"y"`
}

const document = `
name: api
version: 1
port: 8080
addr: 10.0.0.1
labels:
  tier: web
  env: prod
weights: [0.5, 1]
shape:
  Rect:
    w: 2
    h: 3
backup:
  name: b
  version: "2"
  port: 8081
  addr: "::1"
  shape: Empty
`

func TestUnmarshal(t *testing.T) {
	var s server
	require.NoError(t, Unmarshal([]byte(document), &s))

	assert.Equal(t, "api", s.Name)
	assert.Equal(t, "1", s.Version)
	assert.Equal(t, uint16(8080), s.Port)
	assert.Equal(t, netip.MustParseAddr("10.0.0.1"), s.Addr)
	assert.Equal(t, map[string]string{"tier": "web", "env": "prod"}, s.Labels)
	assert.Equal(t, []float32{0.5, 1}, s.Weights)
	assert.Equal(t, figure{Kind: "Rect", W: 2, H: 3}, s.Shape)

	require.NotNil(t, s.Backup)
	assert.Equal(t, "2", s.Backup.Version)
	assert.Equal(t, netip.IPv6Loopback(), s.Backup.Addr)
	assert.Equal(t, "Empty", s.Backup.Shape.Kind)
	assert.Nil(t, s.Backup.Backup)
}

func TestRoundTrip(t *testing.T) {
	var first server
	require.NoError(t, Unmarshal([]byte(document), &first))
	first.Blob = []byte{0, 1, 0xff}

	out, err := Marshal(&first)
	require.NoError(t, err)

	var second server
	require.NoError(t, Unmarshal(out, &second), "re-decoding:\n%s", out)

	a, err := facet.PeekOf(&first)
	require.NoError(t, err)
	b, err := facet.PeekOf(&second)
	require.NoError(t, err)
	eq, err := peek.Equal(a, b, peek.DefaultWalkOptions())
	require.NoError(t, err)
	assert.True(t, eq, "round trip changed the value:\n%s", out)
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"struct", point{X: 1, Y: 2}, "x: 1\ny: 2\n"},
		{"payload variant", figure{Kind: "Circle", Radius: 1.5}, "Circle:\n  radius: 1.5\n"},
		{"unit variant", figure{Kind: "Empty"}, "Empty\n"},
		{"map keys sorted", map[string]int{"b": 2, "a": 1}, "a: 1\nb: 2\n"},
		{"numeric text quoted", struct {
			V string `facet:"v"`
		}{V: "1"}, "v: \"1\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Marshal(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(out))
		})
	}
}

func TestEncode_OmitNone(t *testing.T) {
	s := server{Name: "a", Addr: netip.IPv4Unspecified(), Shape: figure{Kind: "Empty"}}
	p, err := facet.PeekOf(&s)
	require.NoError(t, err)

	out, err := Encode(p, DefaultOptions())
	require.NoError(t, err)
	assert.NotContains(t, string(out), "backup")

	opts := DefaultOptions()
	opts.Driver.OmitNone = false
	out, err = Encode(p, opts)
	require.NoError(t, err)
	assert.Contains(t, string(out), "backup: null")
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		kind     errors.Kind
		location string
	}{
		{"unknown field", "x: 1\ny: 2\nz: 3\n", errors.KindNoSuchField, "line 3"},
		{"wrong scalar", "x: one\ny: 2\n", errors.KindTypeMismatch, "line 1"},
		{"missing field", "x: 1\n", errors.KindIncompleteValue, ""},
		{"sequence for struct", "[1, 2]\n", errors.KindShapeMismatch, "line 1"},
		{"malformed", "x: [1\n", errors.KindInvalidData, ""},
	}

	s := derive.MustFor[point]()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.input), s, driver.DefaultOptions())
			require.ErrorIs(t, err, &errors.Error{Kind: tt.kind})

			var ferr *errors.Error
			require.ErrorAs(t, err, &ferr)
			assert.Contains(t, ferr.Location, tt.location)
		})
	}
}

func TestDecode_Overflow(t *testing.T) {
	var s server
	err := Unmarshal([]byte("name: a\nversion: b\nport: 70000\naddr: 1.2.3.4\nshape: Empty\n"), &s)
	require.ErrorIs(t, err, &errors.Error{Kind: errors.KindOverflow})
}

func TestDecode_Variants(t *testing.T) {
	s := derive.MustFor[figure]()
	tests := []struct {
		input string
		want  figure
		kind  errors.Kind
	}{
		{input: "Circle:\n  radius: 2\n", want: figure{Kind: "Circle", Radius: 2}},
		{input: "Circle: 2\n", want: figure{Kind: "Circle", Radius: 2}},
		{input: "Rect: [1, 2]\n", want: figure{Kind: "Rect", W: 1, H: 2}},
		{input: "Empty\n", want: figure{Kind: "Empty"}},
		{input: "2\n", want: figure{Kind: "Empty"}},
		{input: "Hexagon: {}\n", kind: errors.KindNoSuchVariant},
		{input: "Empty: 1\n", kind: errors.KindInvalidData},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := Decode([]byte(tt.input), s, driver.DefaultOptions())
			if tt.kind != "" {
				require.ErrorIs(t, err, &errors.Error{Kind: tt.kind})
				return
			}
			require.NoError(t, err)
			got, err := poke.As[figure](v)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_IgnoreUnknownFields(t *testing.T) {
	opts := driver.DefaultOptions()
	opts.IgnoreUnknownFields = true

	input := "x: 1\nextra:\n  nested: [1, {a: b}]\ny: 2\n"
	v, err := Decode([]byte(input), derive.MustFor[point](), opts)
	require.NoError(t, err)

	got, err := poke.As[point](v)
	require.NoError(t, err)
	assert.Equal(t, point{X: 1, Y: 2}, got)
}

func TestDecode_Aliases(t *testing.T) {
	input := "base: &b\n  x: 1\n  y: 2\nline: [*b, *b]\n"
	type doc struct {
		Base point    `facet:"base"`
		Line [2]point `facet:"line"`
	}
	var d doc
	require.NoError(t, Unmarshal([]byte(input), &d))
	assert.Equal(t, [2]point{{1, 2}, {1, 2}}, d.Line)
}

func TestDecode_ExcessiveAliasing(t *testing.T) {
	opts := driver.DefaultOptions()
	opts.IgnoreUnknownFields = true

	var b strings.Builder
	b.WriteString("x: 1\ny: 2\nl0: &l0 [a, a, a, a, a, a, a, a, a, a]\n")
	for i := 1; i <= 8; i++ {
		refs := strings.TrimSuffix(strings.Repeat(fmt.Sprintf("*l%d, ", i-1), 10), ", ")
		fmt.Fprintf(&b, "l%d: &l%d [%s]\n", i, i, refs)
	}
	_, err := Decode([]byte(b.String()), derive.MustFor[point](), opts)
	require.ErrorIs(t, err, &errors.Error{Kind: errors.KindInvalidData})
	assert.Contains(t, err.Error(), "excessive aliasing")

	_, err = Decode([]byte("x: 1\ny: 2\nz: &a [*a]\n"), derive.MustFor[point](), opts)
	require.ErrorIs(t, err, &errors.Error{Kind: errors.KindInvalidData})
}

func TestUnmarshal_NilPointer(t *testing.T) {
	var p *point
	err := Unmarshal([]byte("x: 1\n"), p)
	require.ErrorIs(t, err, &errors.Error{Kind: errors.KindNilPointer})
}
