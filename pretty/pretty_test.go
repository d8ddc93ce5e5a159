package pretty

import (
	"bytes"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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
}

func (figure) Variants() []string { return []string{"Circle", "Empty"} }

type config struct {
	Name    string         `facet:"name"`
	Token   string         `facet:"token,sensitive"`
	At      point          `facet:"at"`
	Figures []figure       `facet:"figures"`
	Pair    [2]uint8       `facet:"pair"`
	Labels  map[string]int `facet:"labels"`
	Note    *string        `facet:"note"`
	Tags    []string       `facet:"tags"`
}

type tree struct {
	Kids []tree `facet:"kids"`
}

func TestSprint(t *testing.T) {
	c := config{
		Name:    "edge",
		Token:   "s3cr3t",
		At:      point{X: 1, Y: -2},
		Figures: []figure{{Kind: "Circle", Radius: 1.5}, {Kind: "Empty"}},
		Pair:    [2]uint8{1, 2},
		Labels:  map[string]int{"b": 2, "a": 1},
		Tags:    []string{},
	}
	want := `config {
  name: "edge",
  token: [REDACTED],
  at: point {
    x: 1,
    y: -2,
  },
  figures: [
    figure::Circle {
      radius: 1.5,
    },
    figure::Empty,
  ],
  pair: (
    1,
    2,
  ),
  labels: {
    "a" => 1,
    "b" => 2,
  },
  note: None,
  tags: [],
}`
	assert.Equal(t, want, Sprint(c))
	assert.NotContains(t, Sprint(&c), "s3cr3t")
}

func TestFormat_Indent(t *testing.T) {
	p, err := facet.PeekOf(point{X: 1, Y: -2})
	require.NoError(t, err)

	out, err := Format(p, Options{Indent: 4})
	require.NoError(t, err)
	assert.Equal(t, "point {\n    x: 1,\n    y: -2,\n}", out)
}

func TestFormat_Scalars(t *testing.T) {
	tests := []struct {
		name string
		v    any
		want string
	}{
		{"string", "a\"b", `"a\"b"`},
		{"bool", true, "true"},
		{"float32", float32(0.1), "0.1"},
		{"uint", uint64(18446744073709551615), "18446744073709551615"},
		{"bytes", []byte{0xde, 0xad}, "<2 bytes: dead>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sprint(tt.v))
		})
	}
}

func TestFormat_Color(t *testing.T) {
	p, err := facet.PeekOf(point{X: 1, Y: 2})
	require.NoError(t, err)

	out, err := Format(p, Options{Color: true})
	require.NoError(t, err)
	assert.Contains(t, out, "\x1b[")
	assert.Contains(t, out, "point")

	plain, err := Format(p, Options{})
	require.NoError(t, err)
	assert.NotContains(t, plain, "\x1b[")
}

func TestFormat_MaxDepth(t *testing.T) {
	p, err := facet.PeekOf(tree{Kids: []tree{{Kids: []tree{{}}}}})
	require.NoError(t, err)

	_, err = Format(p, Options{MaxDepth: 2})
	assert.True(t, stderrors.Is(err, &errors.Error{Kind: errors.KindDepthExceeded}), "got %v", err)
}

func TestFprint(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Fprint(&buf, point{X: 3, Y: 4}, ForWriter(&buf)))
	assert.Equal(t, "point {\n  x: 3,\n  y: 4,\n}\n", buf.String())

	assert.False(t, ForWriter(&buf).Color)
	assert.True(t, strings.HasPrefix(Sprint((*point)(nil)), "<error:"))
}
