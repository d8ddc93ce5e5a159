package driver

import (
	stderrors "errors"

	"github.com/ldubos/facet/errors"
	"github.com/ldubos/facet/peek"
	"github.com/ldubos/facet/shape"
)

// SkipValue, returned from Visitor.Field or Visitor.Element, skips that
// value without stopping the walk.
var SkipValue = stderrors.New("skip value")

// Visitor receives the read verbs of a Walk. Options and wrappers are
// transparent: a present option and a wrapper are visited as their
// payload, an absent option as None.
//
// An enum is visited as Variant, then (unless the variant is a unit) its
// payload framed as BeginStruct/Field/EndStruct, then EndVariant.
type Visitor interface {
	BeginStruct(p peek.Peek) error
	Field(f *shape.Field, p peek.Peek) error
	EndStruct(p peek.Peek) error
	BeginSeq(p peek.Peek, n int) error
	Element(i int, p peek.Peek) error
	EndSeq(p peek.Peek) error
	BeginMap(p peek.Peek, n int) error
	Entry(key peek.Peek) error
	EndMap(p peek.Peek) error
	Scalar(p peek.Peek) error
	Variant(p peek.Peek, v *shape.Variant) error
	EndVariant(p peek.Peek, v *shape.Variant) error
	None(p peek.Peek) error
}

// BaseVisitor implements every Visitor method as a no-op so visitors can
// embed it and override only what they need.
type BaseVisitor struct{}

func (BaseVisitor) BeginStruct(peek.Peek) error                { return nil }
func (BaseVisitor) Field(*shape.Field, peek.Peek) error        { return nil }
func (BaseVisitor) EndStruct(peek.Peek) error                  { return nil }
func (BaseVisitor) BeginSeq(peek.Peek, int) error              { return nil }
func (BaseVisitor) Element(int, peek.Peek) error               { return nil }
func (BaseVisitor) EndSeq(peek.Peek) error                     { return nil }
func (BaseVisitor) BeginMap(peek.Peek, int) error              { return nil }
func (BaseVisitor) Entry(peek.Peek) error                      { return nil }
func (BaseVisitor) EndMap(peek.Peek) error                     { return nil }
func (BaseVisitor) Scalar(peek.Peek) error                     { return nil }
func (BaseVisitor) Variant(peek.Peek, *shape.Variant) error    { return nil }
func (BaseVisitor) EndVariant(peek.Peek, *shape.Variant) error { return nil }
func (BaseVisitor) None(peek.Peek) error                       { return nil }

type walkKind uint8

const (
	walkStruct walkKind = iota
	walkVariant
	walkSeq
	walkMap
)

type walkFrame struct {
	p       peek.Peek
	variant peek.VariantPeek
	entries [][2]peek.Peek
	n, next int
	kind    walkKind
}

type walker struct {
	v     Visitor
	stack []walkFrame
	opts  Options
}

// Walk emits the read verbs for p to v, depth first, on an explicit frame
// stack bounded by opts.MaxDepth.
func Walk(p peek.Peek, v Visitor, opts Options) error {
	w := &walker{v: v, opts: opts}
	if err := w.open(p); err != nil {
		return err
	}
	for len(w.stack) > 0 {
		if err := w.step(); err != nil {
			return err
		}
	}
	return nil
}

// open visits the start of p, pushing a frame if p has children.
func (w *walker) open(p peek.Peek) error {
	var err error
	for p.Kind() == shape.KindOption || p.Kind() == shape.KindWrapper {
		if p.Kind() == shape.KindOption {
			if !p.IsSome() {
				return w.v.None(p)
			}
			p, err = p.Some()
		} else {
			p, err = p.Inner()
		}
		if err != nil {
			return err
		}
	}

	if limit := w.opts.maxDepth(); len(w.stack) >= limit {
		return errors.DepthExceeded(errors.PhaseDrive, p.Location().Segments(), limit)
	}

	switch k := p.Kind(); {
	case k.IsScalar():
		return w.v.Scalar(p)
	case k == shape.KindStruct:
		if err := w.v.BeginStruct(p); err != nil {
			return err
		}
		w.stack = append(w.stack, walkFrame{p: p, kind: walkStruct, n: p.NumFields()})
	case k == shape.KindSeq, k == shape.KindTuple:
		n, _ := p.Len()
		if err := w.v.BeginSeq(p, n); err != nil {
			return err
		}
		w.stack = append(w.stack, walkFrame{p: p, kind: walkSeq, n: n})
	case k == shape.KindMap:
		it, _ := p.Entries()
		var entries [][2]peek.Peek
		for key, val := range it {
			entries = append(entries, [2]peek.Peek{key, val})
		}
		if err := w.v.BeginMap(p, len(entries)); err != nil {
			return err
		}
		w.stack = append(w.stack, walkFrame{p: p, kind: walkMap, n: len(entries), entries: entries})
	case k == shape.KindEnum:
		vp, err := p.Variant()
		if err != nil {
			return err
		}
		if err := w.v.Variant(p, vp.Variant); err != nil {
			return err
		}
		if vp.Variant.IsUnit() {
			return w.v.EndVariant(p, vp.Variant)
		}
		if err := w.v.BeginStruct(p); err != nil {
			return err
		}
		w.stack = append(w.stack, walkFrame{p: p, kind: walkVariant, variant: vp, n: vp.NumFields()})
	}
	return nil
}

// step advances the top frame by one child, or closes it.
func (w *walker) step() error {
	f := &w.stack[len(w.stack)-1]

	for f.next < f.n {
		i := f.next
		f.next++

		switch f.kind {
		case walkStruct, walkVariant:
			var fld *shape.Field
			var fp peek.Peek
			if f.kind == walkStruct {
				fld = &f.p.Shape().Fields[i]
				fp, _ = f.p.Field(i)
			} else {
				fld = &f.variant.Variant.Fields[i]
				fp, _ = f.variant.Field(i)
			}
			if w.opts.OmitNone && fp.Kind() == shape.KindOption && !fp.IsSome() {
				continue
			}
			err := w.v.Field(fld, fp)
			if err == SkipValue {
				continue
			}
			if err != nil {
				return err
			}
			return w.open(fp)
		case walkSeq:
			ep, _ := f.p.Element(i)
			err := w.v.Element(i, ep)
			if err == SkipValue {
				continue
			}
			if err != nil {
				return err
			}
			return w.open(ep)
		case walkMap:
			e := f.entries[i]
			if err := w.v.Entry(e[0]); err != nil {
				return err
			}
			return w.open(e[1])
		}
	}

	done := *f
	w.stack = w.stack[:len(w.stack)-1]
	switch done.kind {
	case walkStruct:
		return w.v.EndStruct(done.p)
	case walkVariant:
		if err := w.v.EndStruct(done.p); err != nil {
			return err
		}
		return w.v.EndVariant(done.p, done.variant.Variant)
	case walkSeq:
		return w.v.EndSeq(done.p)
	default:
		return w.v.EndMap(done.p)
	}
}

// Copy walks src and replays it into dst, which must target a shape
// compatible with src's verb stream. dst is not finished.
func Copy(dst *Writer, src peek.Peek, opts Options) error {
	return Walk(src, &copier{w: dst}, opts)
}

type copier struct {
	w *Writer
}

func (c *copier) BeginStruct(peek.Peek) error                 { return c.w.BeginStruct() }
func (c *copier) Field(f *shape.Field, _ peek.Peek) error     { return c.w.Field(f.Name) }
func (c *copier) EndStruct(peek.Peek) error                   { return c.w.EndStruct() }
func (c *copier) BeginSeq(_ peek.Peek, n int) error           { return c.w.BeginSeq(n) }
func (c *copier) Element(int, peek.Peek) error                { return c.w.Element() }
func (c *copier) EndSeq(peek.Peek) error                      { return c.w.EndSeq() }
func (c *copier) BeginMap(_ peek.Peek, n int) error           { return c.w.BeginMap(n) }
func (c *copier) Entry(key peek.Peek) error                   { return c.w.Entry(key.Interface()) }
func (c *copier) EndMap(peek.Peek) error                      { return c.w.EndMap() }
func (c *copier) Scalar(p peek.Peek) error                    { return c.w.Scalar(p.Interface()) }
func (c *copier) Variant(_ peek.Peek, v *shape.Variant) error { return c.w.SelectVariant(v.Name) }
func (c *copier) EndVariant(peek.Peek, *shape.Variant) error  { return nil }
func (c *copier) None(peek.Peek) error                        { return c.w.Scalar(nil) }
