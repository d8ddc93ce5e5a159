package pretty

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/ldubos/facet"
	"github.com/ldubos/facet/driver"
	"github.com/ldubos/facet/peek"
	"github.com/ldubos/facet/shape"
)

// Redacted replaces the value of a sensitive field.
const Redacted = "[REDACTED]"

// Options control the layout of Format.
type Options struct {
	Indent   int  // spaces per nesting level, 2 when zero
	Color    bool // style names and values with ANSI colors
	MaxDepth int  // zero means driver.DefaultMaxDepth
}

// ForWriter returns default options with Color set when w is a terminal
// and NO_COLOR is unset.
func ForWriter(w io.Writer) Options {
	f, ok := w.(*os.File)
	return Options{Color: ok && os.Getenv("NO_COLOR") == "" && term.IsTerminal(int(f.Fd()))}
}

type styles struct {
	typ, field, str, num, keyword, redacted lipgloss.Style
}

func newStyles(color bool) styles {
	r := lipgloss.NewRenderer(io.Discard)
	if color {
		r.SetColorProfile(termenv.ANSI256)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}
	return styles{
		typ:      r.NewStyle().Foreground(lipgloss.Color("#87CEEB")).Bold(color),
		field:    r.NewStyle().Foreground(lipgloss.Color("#98FB98")),
		str:      r.NewStyle().Foreground(lipgloss.Color("#90EE90")),
		num:      r.NewStyle().Foreground(lipgloss.Color("#FFD580")),
		keyword:  r.NewStyle().Foreground(lipgloss.Color("#C792EA")),
		redacted: r.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
	}
}

// Format renders the value p views. Structs print their type name and one
// field per line, enums print Type::Variant, sequences use brackets,
// tuples parentheses and maps key => value pairs. Sensitive fields print
// as [REDACTED].
func Format(p peek.Peek, opts Options) (string, error) {
	indent := opts.Indent
	if indent <= 0 {
		indent = 2
	}
	pr := &printer{
		styles: newStyles(opts.Color),
		indent: strings.Repeat(" ", indent),
	}
	if err := driver.Walk(p, pr, driver.Options{MaxDepth: opts.MaxDepth}); err != nil {
		return "", err
	}
	return pr.b.String(), nil
}

// Fprint writes the formatted value v holds or points to, followed by a
// newline.
func Fprint(w io.Writer, v any, opts Options) error {
	p, err := facet.PeekOf(v)
	if err != nil {
		return err
	}
	s, err := Format(p, opts)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, s+"\n")
	return err
}

// Sprint formats v without color. Errors are rendered inline.
func Sprint(v any) string {
	p, err := facet.PeekOf(v)
	if err != nil {
		return fmt.Sprintf("<error: %v>", err)
	}
	s, err := Format(p, Options{})
	if err != nil {
		return fmt.Sprintf("<error: %v>", err)
	}
	return s
}

type printer struct {
	driver.BaseVisitor
	styles
	b      strings.Builder
	indent string
	// children written so far, per open container
	counts []int
}

func (pr *printer) open(s string) {
	pr.b.WriteString(s)
	pr.counts = append(pr.counts, 0)
}

func (pr *printer) child() {
	top := len(pr.counts) - 1
	if pr.counts[top] > 0 {
		pr.b.WriteString(",")
	}
	pr.counts[top]++
	pr.b.WriteString("\n")
	pr.b.WriteString(strings.Repeat(pr.indent, len(pr.counts)))
}

func (pr *printer) close(s string) {
	top := len(pr.counts) - 1
	if pr.counts[top] > 0 {
		pr.b.WriteString(",\n")
		pr.b.WriteString(strings.Repeat(pr.indent, top))
	}
	pr.counts = pr.counts[:top]
	pr.b.WriteString(s)
}

func (pr *printer) BeginStruct(p peek.Peek) error {
	if p.Kind() == shape.KindEnum {
		pr.open(" {")
		return nil
	}
	pr.open(pr.typ.Render(p.Shape().Name) + " {")
	return nil
}

func (pr *printer) Field(f *shape.Field, _ peek.Peek) error {
	pr.child()
	pr.b.WriteString(pr.field.Render(f.Name) + ": ")
	if f.Sensitive() {
		pr.b.WriteString(pr.redacted.Render(Redacted))
		return driver.SkipValue
	}
	return nil
}

func (pr *printer) EndStruct(peek.Peek) error {
	pr.close("}")
	return nil
}

func (pr *printer) BeginSeq(p peek.Peek, _ int) error {
	if p.Kind() == shape.KindTuple {
		pr.open("(")
	} else {
		pr.open("[")
	}
	return nil
}

func (pr *printer) Element(int, peek.Peek) error {
	pr.child()
	return nil
}

func (pr *printer) EndSeq(p peek.Peek) error {
	if p.Kind() == shape.KindTuple {
		pr.close(")")
	} else {
		pr.close("]")
	}
	return nil
}

func (pr *printer) BeginMap(peek.Peek, int) error {
	pr.open("{")
	return nil
}

func (pr *printer) Entry(key peek.Peek) error {
	pr.child()
	pr.b.WriteString(pr.key(key) + " => ")
	return nil
}

func (pr *printer) EndMap(peek.Peek) error {
	pr.close("}")
	return nil
}

func (pr *printer) Scalar(p peek.Peek) error {
	pr.b.WriteString(pr.scalar(p))
	return nil
}

func (pr *printer) Variant(p peek.Peek, v *shape.Variant) error {
	pr.b.WriteString(pr.typ.Render(p.Shape().Name + "::" + v.Name))
	return nil
}

func (pr *printer) None(peek.Peek) error {
	pr.b.WriteString(pr.keyword.Render("None"))
	return nil
}

// key renders a map key on one line.
func (pr *printer) key(p peek.Peek) string {
	for {
		switch {
		case p.Kind() == shape.KindWrapper:
			inner, err := p.Inner()
			if err != nil {
				return fmt.Sprint(p.Interface())
			}
			p = inner
		case p.Kind() == shape.KindOption && p.IsSome():
			p, _ = p.Some()
		case p.Kind() == shape.KindOption:
			return pr.keyword.Render("None")
		case p.Kind().IsScalar():
			return pr.scalar(p)
		default:
			return fmt.Sprint(p.Interface())
		}
	}
}

func (pr *printer) scalar(p peek.Peek) string {
	switch k := p.Kind(); {
	case k == shape.KindBool:
		v, _ := p.Bool()
		return pr.keyword.Render(strconv.FormatBool(v))
	case k.IsSigned():
		v, _ := p.Int()
		return pr.num.Render(strconv.FormatInt(v, 10))
	case k.IsUnsigned():
		v, _ := p.Uint()
		return pr.num.Render(strconv.FormatUint(v, 10))
	case k.IsFloat():
		v, _ := p.Float()
		return pr.num.Render(strconv.FormatFloat(v, 'g', -1, k.Bits()))
	case k == shape.KindChar:
		v, _ := p.Char()
		return pr.str.Render(strconv.QuoteRune(v))
	case k == shape.KindString:
		v, _ := p.Str()
		return pr.str.Render(strconv.Quote(v))
	case k == shape.KindBytes:
		v, _ := p.Bytes()
		return pr.num.Render(fmt.Sprintf("<%d bytes: %x>", len(v), v))
	}
	return fmt.Sprint(p.Interface())
}
