package driver

import (
	stderrors "errors"
	"fmt"
	"net/netip"
	"reflect"
	"strings"
	"testing"
	"unsafe"

	"github.com/ldubos/facet/derive"
	"github.com/ldubos/facet/errors"
	"github.com/ldubos/facet/peek"
	"github.com/ldubos/facet/poke"
	"github.com/ldubos/facet/shape"
)

type point struct {
	X int64 `facet:"x"`
	Y int64 `facet:"y"`
}

type line struct {
	From point `facet:"from"`
	To   point `facet:"to"`
}

type figure struct {
	Kind   string  `facet:",tag"`
	Radius float64 `facet:"radius,variant=Circle"`
	W      float64 `facet:"w,variant=Rect"`
	H      float64 `facet:"h,variant=Rect"`
}

func (figure) Variants() []string { return []string{"Circle", "Rect", "Empty"} }

type document struct {
	Title   string            `facet:"title"`
	Tags    []string          `facet:"tags"`
	Counts  map[string]int    `facet:"counts"`
	Owner   *string           `facet:"owner"`
	Addr    netip.Addr        `facet:"addr"`
	Shapes  []figure          `facet:"shapes"`
	Pair    [2]uint8          `facet:"pair"`
	Nested  map[string][]bool `facet:"nested"`
	Comment *point            `facet:"comment"`
}

type perm uint8

const (
	permRead perm = 1 << iota
	permWrite
	permExec
)

func init() {
	err := derive.RegisterEnumValues(
		derive.EnumValue[perm]{Value: permRead, Name: "Read"},
		derive.EnumValue[perm]{Value: permWrite, Name: "Write"},
		derive.EnumValue[perm]{Value: permExec, Name: "Exec"},
	)
	if err != nil {
		panic(err)
	}
}

func writerFor[T any](t *testing.T, opts Options) *Writer {
	t.Helper()
	s, err := derive.For[T]()
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	return NewWriterWithOptions(poke.New(s), opts)
}

func isKind(err error, kind errors.Kind) bool {
	return stderrors.Is(err, &errors.Error{Kind: kind})
}

// run issues verbs written as "begin_struct field:from int:1 ...".
func run(t *testing.T, w *Writer, script string) {
	t.Helper()
	for _, tok := range strings.Fields(script) {
		name, arg, _ := strings.Cut(tok, ":")
		var err error
		switch name {
		case "begin_struct":
			err = w.BeginStruct()
		case "end_struct":
			err = w.EndStruct()
		case "field":
			err = w.Field(arg)
		case "begin_seq":
			err = w.BeginSeq(0)
		case "element":
			err = w.Element()
		case "end_seq":
			err = w.EndSeq()
		case "begin_map":
			err = w.BeginMap(0)
		case "entry":
			err = w.Entry(arg)
		case "end_map":
			err = w.EndMap()
		case "variant":
			err = w.SelectVariant(arg)
		case "int":
			var n int64
			_, _ = fmt.Sscan(arg, &n)
			err = w.Scalar(n)
		case "str":
			err = w.Scalar(arg)
		case "nil":
			err = w.Scalar(nil)
		default:
			t.Fatalf("unknown verb %q", name)
		}
		if err != nil {
			t.Fatalf("%s: %v", tok, err)
		}
	}
}

func TestWriter_LineScenario(t *testing.T) {
	w := writerFor[line](t, DefaultOptions())
	defer w.Abandon()

	run(t, w, `begin_struct
		field:from begin_struct field:x int:1 field:y int:2 end_struct
		field:to begin_struct field:x int:3 field:y int:4 end_struct
		end_struct`)

	if !w.Done() {
		t.Fatal("Done() = false after the root ended")
	}
	v, err := w.Finish()
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	got, _ := poke.As[line](v)
	if want := (line{From: point{1, 2}, To: point{3, 4}}); got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestWriter_SequenceGrowth(t *testing.T) {
	w := writerFor[[]int32](t, DefaultOptions())
	if err := w.BeginSeq(0); err != nil {
		t.Fatal(err)
	}
	for i := range 1000 {
		if err := w.Element(); err != nil {
			t.Fatalf("Element() #%d: %v", i, err)
		}
		if err := w.Scalar(i); err != nil {
			t.Fatalf("Scalar(%d): %v", i, err)
		}
	}
	if err := w.EndSeq(); err != nil {
		t.Fatal(err)
	}
	v, err := w.Finish()
	if err != nil {
		t.Fatal(err)
	}
	got, _ := poke.As[[]int32](v)
	if len(got) != 1000 || got[0] != 0 || got[999] != 999 {
		t.Errorf("len = %d, first = %d, last = %d", len(got), got[0], got[len(got)-1])
	}
}

func TestWriter_Transparency(t *testing.T) {
	w := writerFor[document](t, DefaultOptions())
	defer w.Abandon()

	run(t, w, `begin_struct
		field:title str:report
		field:tags begin_seq element str:a element str:b end_seq
		field:counts begin_map entry:x int:1 entry:y int:2 end_map
		field:owner str:ops
		field:addr str:10.1.2.3
		field:shapes begin_seq
			element variant:Circle int:2
			element variant:Rect begin_map entry:w int:3 entry:h int:4 end_map
			element str:Empty
		end_seq
		field:pair begin_seq element int:7 element int:8 end_seq
		field:nested begin_map end_map
		field:comment nil
		end_struct`)

	if err := w.Field("title"); !isKind(err, errors.KindShapeMismatch) {
		t.Errorf("Field after the root ended = %v", err)
	}

	v, err := w.Finish()
	if err != nil {
		t.Fatal(err)
	}
	got, _ := poke.As[document](v)
	owner := "ops"
	want := document{
		Title:  "report",
		Tags:   []string{"a", "b"},
		Counts: map[string]int{"x": 1, "y": 2},
		Owner:  &owner,
		Addr:   netip.MustParseAddr("10.1.2.3"),
		Shapes: []figure{{Kind: "Circle", Radius: 2}, {Kind: "Rect", W: 3, H: 4}, {Kind: "Empty"}},
		Pair:   [2]uint8{7, 8},
		Nested: map[string][]bool{},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got  %+v\nwant %+v", got, want)
	}
}

func TestWriter_RejectsInconsistentVerbs(t *testing.T) {
	w := writerFor[line](t, DefaultOptions())
	defer w.Abandon()

	checks := []struct {
		name string
		verb func() error
		kind errors.Kind
	}{
		{"element on struct", w.Element, errors.KindShapeMismatch},
		{"begin_seq on struct", func() error { return w.BeginSeq(1) }, errors.KindShapeMismatch},
		{"variant on struct", func() error { return w.SelectVariant("A") }, errors.KindShapeMismatch},
		{"field before begin", func() error { return w.Field("from") }, errors.KindShapeMismatch},
		{"end_map on pending", w.EndMap, errors.KindShapeMismatch},
	}
	for _, c := range checks {
		if err := c.verb(); !isKind(err, c.kind) {
			t.Errorf("%s = %v, want %s", c.name, err, c.kind)
		}
	}

	run(t, w, "begin_struct field:from begin_struct field:x")
	depth := w.Depth()
	if err := w.BeginStruct(); !isKind(err, errors.KindShapeMismatch) {
		t.Errorf("BeginStruct on int = %v", err)
	}
	if err := w.Scalar("1"); !isKind(err, errors.KindTypeMismatch) {
		t.Errorf("Scalar(string) on int = %v", err)
	}
	if w.Depth() != depth || w.Expect().Kind != shape.KindInt64 {
		t.Errorf("rejected verbs changed the writer: depth %d -> %d", depth, w.Depth())
	}

	run(t, w, "int:1")
	err := w.EndStruct()
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindIncompleteValue || !reflect.DeepEqual(e.Missing, []string{"y"}) {
		t.Fatalf("EndStruct without y = %v", err)
	}
	run(t, w, "field:y int:2 end_struct")

	if err := w.Field("middle"); !isKind(err, errors.KindNoSuchField) {
		t.Errorf("unknown field = %v", err)
	}
}

func TestWriter_IgnoreUnknownFields(t *testing.T) {
	w := writerFor[point](t, Options{IgnoreUnknownFields: true})
	run(t, w, `begin_struct
		field:x int:1
		field:meta begin_map entry:a begin_seq element int:1 element begin_struct field:q int:2 end_struct end_seq end_map
		field:note str:ignored
		field:y int:2
		end_struct`)
	v, err := w.Finish()
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := poke.As[point](v); got != (point{1, 2}) {
		t.Errorf("got %+v", got)
	}
}

func TestWriter_MaxDepth(t *testing.T) {
	w := writerFor[[][][]int](t, Options{MaxDepth: 3})
	defer w.Abandon()

	run(t, w, "begin_seq element begin_seq element")
	if err := w.BeginSeq(0); err != nil {
		t.Fatal(err)
	}
	if err := w.Element(); !isKind(err, errors.KindDepthExceeded) {
		t.Errorf("Element() past MaxDepth = %v", err)
	}
}

func TestWriter_FinishAndAbandon(t *testing.T) {
	w := writerFor[line](t, DefaultOptions())
	run(t, w, "begin_struct field:from")
	if _, err := w.Finish(); !isKind(err, errors.KindShapeMismatch) {
		t.Errorf("Finish() mid-value = %v", err)
	}
	w.Abandon()
	w.Abandon()
	if err := w.BeginStruct(); !isKind(err, errors.KindInvalidState) {
		t.Errorf("verb after Abandon = %v", err)
	}
	if w.Expect() != nil {
		t.Error("Expect() after Abandon should be nil")
	}

	w = writerFor[*point](t, DefaultOptions())
	run(t, w, "nil")
	v, err := w.Finish()
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := poke.As[*point](v); got != nil {
		t.Errorf("got %v", got)
	}
}

func TestWriter_EnumDiscriminants(t *testing.T) {
	tests := []struct {
		in   any
		want perm
		kind errors.Kind
	}{
		{in: int64(4), want: permExec},
		{in: uint8(2), want: permWrite},
		{in: "Read", want: permRead},
		{in: int64(1), want: permRead},
		{in: int64(0), kind: errors.KindNoSuchVariant},
		{in: int64(3), kind: errors.KindNoSuchVariant},
	}
	for _, tt := range tests {
		w := writerFor[perm](t, DefaultOptions())
		err := w.Scalar(tt.in)
		if tt.kind != "" {
			if !isKind(err, tt.kind) {
				t.Errorf("Scalar(%v) = %v, want %s", tt.in, err, tt.kind)
			}
			w.Abandon()
			continue
		}
		if err != nil {
			t.Fatalf("Scalar(%v) error = %v", tt.in, err)
		}
		v, err := w.Finish()
		if err != nil {
			t.Fatal(err)
		}
		if got, _ := poke.As[perm](v); got != tt.want {
			t.Errorf("Scalar(%v) built %d, want %d", tt.in, got, tt.want)
		}
	}

	s := derive.MustFor[perm]()
	write := permWrite
	r := &recorder{}
	if err := Walk(peek.New(s, unsafe.Pointer(&write)), r, DefaultOptions()); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(r.out, " "); got != "::Write" {
		t.Errorf("walk = %q, want ::Write", got)
	}

	var zero perm
	if err := Walk(peek.New(s, unsafe.Pointer(&zero)), &recorder{}, DefaultOptions()); !isKind(err, errors.KindInvalidData) {
		t.Errorf("walk of unregistered zero = %v, want invalid_data", err)
	}
}

// recorder renders the read verbs as a compact string.
type recorder struct {
	BaseVisitor
	out  []string
	skip string
}

func (r *recorder) add(s string) error {
	r.out = append(r.out, s)
	return nil
}

func (r *recorder) BeginStruct(peek.Peek) error { return r.add("{") }
func (r *recorder) EndStruct(peek.Peek) error   { return r.add("}") }
func (r *recorder) Field(f *shape.Field, _ peek.Peek) error {
	if f.Name == r.skip {
		return SkipValue
	}
	return r.add(f.Name + ":")
}
func (r *recorder) BeginSeq(_ peek.Peek, n int) error { return r.add(fmt.Sprintf("[%d", n)) }
func (r *recorder) EndSeq(peek.Peek) error            { return r.add("]") }
func (r *recorder) BeginMap(_ peek.Peek, n int) error { return r.add(fmt.Sprintf("<%d", n)) }
func (r *recorder) Entry(k peek.Peek) error           { return r.add(fmt.Sprint(k.Interface()) + "=") }
func (r *recorder) EndMap(peek.Peek) error            { return r.add(">") }
func (r *recorder) Scalar(p peek.Peek) error          { return r.add(fmt.Sprint(p.Interface())) }
func (r *recorder) None(peek.Peek) error              { return r.add("none") }
func (r *recorder) Variant(_ peek.Peek, v *shape.Variant) error {
	return r.add("::" + v.Name)
}

func TestWalk(t *testing.T) {
	owner := "ops"
	doc := document{
		Title:  "t",
		Tags:   []string{"a"},
		Counts: map[string]int{"b": 2, "a": 1},
		Owner:  &owner,
		Addr:   netip.MustParseAddr("::1"),
		Shapes: []figure{{Kind: "Circle", Radius: 1}, {Kind: "Empty"}},
	}
	p := peek.New(derive.MustFor[document](), unsafe.Pointer(&doc))

	r := &recorder{skip: "pair"}
	if err := Walk(p, r, DefaultOptions()); err != nil {
		t.Fatal(err)
	}
	want := "{ title: t tags: [1 a ] counts: <2 a= 1 b= 2 > owner: ops addr: ::1 " +
		"shapes: [2 ::Circle { radius: 1 } ::Empty ] nested: <0 > comment: none }"
	if got := strings.Join(r.out, " "); got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}

	r = &recorder{skip: "pair"}
	if err := Walk(p, r, Options{OmitNone: true}); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(r.out, " "); strings.Contains(got, "comment") {
		t.Errorf("OmitNone kept the none field: %s", got)
	}

	if err := Walk(p, r, Options{MaxDepth: 2}); !isKind(err, errors.KindDepthExceeded) {
		t.Errorf("Walk() past MaxDepth = %v", err)
	}
}

func TestCopy(t *testing.T) {
	owner := "ops"
	src := document{
		Title:   "copy",
		Tags:    []string{"x", "y"},
		Counts:  map[string]int{"n": 3},
		Owner:   &owner,
		Addr:    netip.MustParseAddr("192.0.2.1"),
		Shapes:  []figure{{Kind: "Rect", W: 1, H: 2}, {Kind: "Empty"}},
		Pair:    [2]uint8{1, 2},
		Nested:  map[string][]bool{"k": {true, false}},
		Comment: &point{5, 6},
	}
	s := derive.MustFor[document]()

	w := NewWriter(poke.New(s))
	if err := Copy(w, peek.New(s, unsafe.Pointer(&src)), DefaultOptions()); err != nil {
		t.Fatalf("Copy() error = %v", err)
	}
	v, err := w.Finish()
	if err != nil {
		t.Fatal(err)
	}
	eq, err := peek.Equal(v.Peek(), peek.New(s, unsafe.Pointer(&src)), peek.WalkOptions{})
	if err != nil || !eq {
		t.Errorf("copy differs: %+v", v.Interface())
	}
}
