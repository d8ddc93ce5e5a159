package driver

import (
	stderrors "errors"
	"reflect"
	"strconv"

	"go.uber.org/zap"

	"github.com/ldubos/facet/errors"
	"github.com/ldubos/facet/internal/coerce"
	"github.com/ldubos/facet/poke"
	"github.com/ldubos/facet/shape"
)

type frameState uint8

const (
	statePending frameState = iota // waiting for a value
	stateStruct                    // between BeginStruct or BeginMap and its end
	stateSeq                       // between BeginSeq and EndSeq
	stateMap                       // between BeginMap and EndMap
	stateVariant                   // variant selected, payload not started
	stateFilled                    // value written
	stateDiscard                   // consuming an unknown field's value
)

type verb uint8

const (
	verbScalar verb = iota
	verbBeginStruct
	verbBeginSeq
	verbBeginMap
	verbSelectVariant
)

const (
	closeStruct = "EndStruct"
	closeMap    = "EndMap"
)

type frame struct {
	p      *poke.Partial
	closer string
	next   int
	skip   int
	state  frameState
	auto   bool // ends together with its only child
}

// Writer turns a stream of write verbs into calls on a Partial builder
// tree. Codecs map their tokens onto the verbs without knowing the target
// type: options and wrappers are entered transparently, and a verb that
// does not fit the target fails with ShapeMismatch leaving the Writer as
// it was.
//
// A Writer is not safe for concurrent use.
type Writer struct {
	root   *poke.Partial
	frames []frame
	opts   Options
	closed bool
}

// NewWriter returns a Writer over the root builder p with default options.
func NewWriter(p *poke.Partial) *Writer {
	return NewWriterWithOptions(p, DefaultOptions())
}

// NewWriterWithOptions is NewWriter with explicit options.
func NewWriterWithOptions(p *poke.Partial, opts Options) *Writer {
	w := &Writer{
		root:   p,
		frames: make([]frame, 1, 16),
		opts:   opts,
	}
	w.frames[0] = frame{p: p}
	return w
}

func (w *Writer) top() *frame {
	return &w.frames[len(w.frames)-1]
}

// Depth returns the current nesting depth; 1 at the root.
func (w *Writer) Depth() int {
	return len(w.frames)
}

// Expect returns the shape of the value the next value verb fills, or nil
// when the writer expects a field, element, entry or end verb instead.
func (w *Writer) Expect() *shape.Shape {
	if w.closed {
		return nil
	}
	top := w.top()
	switch top.state {
	case statePending:
		return top.p.Shape()
	case stateVariant:
		if f := top.p.Fields(); len(f) == 1 {
			return f[0].Shape
		}
	}
	return nil
}

// Done reports whether the root value has been completely written.
func (w *Writer) Done() bool {
	return len(w.frames) == 1 && w.frames[0].state == stateFilled
}

func (w *Writer) segments() []string {
	for i := len(w.frames) - 1; i >= 0; i-- {
		if w.frames[i].p != nil {
			return w.frames[i].p.Location().Segments()
		}
	}
	return nil
}

func (w *Writer) usable(op string) error {
	if w.closed {
		return errors.InvalidState(errors.PhaseDrive, nil, op+" after Finish or Abandon")
	}
	return nil
}

func (w *Writer) reject(op string, err error) error {
	Logger().Debug("verb rejected",
		zap.String("verb", op),
		zap.Strings("path", w.segments()),
		zap.Error(err))
	return err
}

func (w *Writer) unexpected(op string) error {
	top := w.top()
	var expected string
	switch top.state {
	case statePending:
		expected = "value of " + top.p.Shape().Name
	case stateStruct:
		expected = "Field or " + top.closer
	case stateSeq:
		expected = "Element or EndSeq"
	case stateMap:
		expected = "Entry or EndMap"
	case stateVariant:
		expected = "payload of variant " + top.p.Variant().Name
	case stateFilled:
		expected = "Finish"
	}
	return w.reject(op, errors.ShapeMismatch(errors.PhaseDrive, w.segments(), expected, op))
}

func (w *Writer) room() error {
	if limit := w.opts.maxDepth(); len(w.frames) >= limit {
		return errors.DepthExceeded(errors.PhaseDrive, w.segments(), limit)
	}
	return nil
}

type mark struct {
	top frame
	n   int
}

func (w *Writer) mark() mark {
	return mark{n: len(w.frames), top: *w.top()}
}

// rollback undoes builders opened by descend since m.
func (w *Writer) rollback(m mark) {
	if len(w.frames) > m.n && w.frames[m.n].p != nil {
		w.frames[m.n].p.Abandon()
	}
	w.frames = w.frames[:m.n]
	w.frames[m.n-1] = m.top
}

func exact(p *poke.Partial, v any) bool {
	return v != nil && reflect.TypeOf(v) == p.Shape().Type
}

// descend enters options, wrappers and single-field variants until the top
// frame can take vb itself.
func (w *Writer) descend(vb verb, v any) error {
	for {
		top := w.top()
		switch top.state {
		case statePending:
			p := top.p
			switch p.Kind() {
			case shape.KindOption:
				if vb == verbScalar && (v == nil || exact(p, v)) {
					return nil
				}
				if err := w.enter(top, p.Some); err != nil {
					return err
				}
			case shape.KindWrapper:
				if vb == verbScalar && exact(p, v) {
					return nil
				}
				if err := w.enter(top, p.Inner); err != nil {
					return err
				}
			default:
				return nil
			}
		case stateVariant:
			if vb == verbBeginStruct || vb == verbBeginMap || len(top.p.Fields()) != 1 {
				return nil
			}
			p := top.p
			if err := w.enter(top, func() (*poke.Partial, error) { return p.Field(0) }); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// enter pushes a nested builder whose end also ends parent.
func (w *Writer) enter(parent *frame, open func() (*poke.Partial, error)) error {
	if err := w.room(); err != nil {
		return err
	}
	c, err := open()
	if err != nil {
		return err
	}
	parent.state = stateFilled
	parent.auto = true
	w.frames = append(w.frames, frame{p: c})
	return nil
}

// complete marks the top value written and ends every builder that is
// finished as a result.
func (w *Writer) complete(op string) error {
	for first := true; ; first = false {
		i := len(w.frames) - 1
		top := &w.frames[i]
		prev := top.state
		top.state = stateFilled
		if i == 0 {
			return nil
		}
		if top.p != nil {
			if err := top.p.End(); err != nil {
				if first {
					top.state = prev
				}
				return w.reject(op, err)
			}
		}
		w.frames = w.frames[:i]
		if !w.frames[i-1].auto {
			return nil
		}
	}
}

func (w *Writer) discarding() bool {
	return w.top().state == stateDiscard
}

// discard feeds one verb to the discarding frame on top. Opening verbs
// nest, closing verbs unnest, and the frame is dropped once a whole value
// has gone by.
func (w *Writer) discard(delta int) {
	top := w.top()
	top.skip += delta
	if top.skip <= 0 {
		w.frames = w.frames[:len(w.frames)-1]
	}
}

// Scalar writes a scalar value. On an option, nil writes None; on an enum,
// a name or discriminant selects a unit variant. A value of exactly the
// target's Go type is accepted for any shape.
func (w *Writer) Scalar(v any) error {
	const op = "Scalar"
	if err := w.usable(op); err != nil {
		return err
	}
	if w.discarding() {
		w.discard(0)
		return nil
	}

	m := w.mark()
	if err := w.descend(verbScalar, v); err != nil {
		w.rollback(m)
		return w.reject(op, err)
	}
	top := w.top()
	if top.state != statePending {
		w.rollback(m)
		return w.unexpected(op)
	}

	var err error
	if top.p.Kind() == shape.KindEnum && !exact(top.p, v) {
		err = w.unitVariant(top.p, v)
	} else {
		err = top.p.Set(v)
	}
	if err != nil {
		w.rollback(m)
		return w.reject(op, err)
	}
	return w.complete(op)
}

func (w *Writer) unitVariant(p *poke.Partial, v any) error {
	s := p.Shape()
	segs := p.Location().Segments()

	var i int
	var tag string
	if name, st := coerce.String(v); st == coerce.OK {
		tag, i = name, s.VariantIndex(name)
	} else if d, st := coerce.Int(v, 64); st == coerce.OK {
		tag, i = strconv.FormatInt(d, 10), s.VariantByDiscriminant(d)
	} else {
		return errors.TypeMismatch(errors.PhaseDrive, segs, "variant name or discriminant", coerce.TypeName(v))
	}
	if i < 0 {
		return errors.NoSuchVariant(errors.PhaseDrive, segs, s.Name, tag)
	}
	if !s.Variants[i].IsUnit() {
		return errors.ShapeMismatch(errors.PhaseDrive, segs, "payload of variant "+s.Variants[i].Name, "Scalar")
	}
	return p.SelectVariantIndex(i)
}

// BeginStruct starts a struct, or the payload of a selected variant.
func (w *Writer) BeginStruct() error {
	const op = "BeginStruct"
	if err := w.usable(op); err != nil {
		return err
	}
	if w.discarding() {
		w.discard(1)
		return nil
	}

	m := w.mark()
	if err := w.descend(verbBeginStruct, nil); err != nil {
		w.rollback(m)
		return w.reject(op, err)
	}
	top := w.top()
	if top.state == stateVariant || top.state == statePending && top.p.Kind() == shape.KindStruct {
		top.state, top.closer = stateStruct, closeStruct
		return nil
	}
	w.rollback(m)
	return w.unexpected(op)
}

// Field starts the value of the named field. With IgnoreUnknownFields an
// unknown name consumes the next value instead of failing.
func (w *Writer) Field(name string) error {
	const op = "Field"
	if err := w.usable(op); err != nil {
		return err
	}
	if w.discarding() {
		return nil
	}
	top := w.top()
	if top.state != stateStruct {
		return w.unexpected(op)
	}
	return w.field(top, name, op)
}

func (w *Writer) field(top *frame, name, op string) error {
	if err := w.room(); err != nil {
		return w.reject(op, err)
	}
	c, err := top.p.FieldByName(name)
	if err != nil {
		if w.opts.IgnoreUnknownFields && stderrors.Is(err, &errors.Error{Kind: errors.KindNoSuchField}) {
			Logger().Debug("discarding unknown field",
				zap.String("field", name),
				zap.Strings("path", w.segments()))
			w.frames = append(w.frames, frame{state: stateDiscard})
			return nil
		}
		return w.reject(op, err)
	}
	w.frames = append(w.frames, frame{p: c})
	return nil
}

// EndStruct ends a struct started with BeginStruct.
func (w *Writer) EndStruct() error {
	const op = "EndStruct"
	if err := w.usable(op); err != nil {
		return err
	}
	if w.discarding() {
		w.discard(-1)
		return nil
	}
	if top := w.top(); top.state != stateStruct || top.closer != closeStruct {
		return w.unexpected(op)
	}
	return w.complete(op)
}

// BeginSeq starts a sequence, a tuple, or the positional payload of a
// selected variant. n is a length hint; zero means unknown.
func (w *Writer) BeginSeq(n int) error {
	const op = "BeginSeq"
	if err := w.usable(op); err != nil {
		return err
	}
	if w.discarding() {
		w.discard(1)
		return nil
	}

	m := w.mark()
	if err := w.descend(verbBeginSeq, nil); err != nil {
		w.rollback(m)
		return w.reject(op, err)
	}
	top := w.top()
	switch {
	case top.state == statePending && top.p.Kind() == shape.KindSeq:
		if n > 0 {
			if err := top.p.Reserve(n); err != nil {
				w.rollback(m)
				return w.reject(op, err)
			}
		}
	case top.state == statePending && top.p.Kind() == shape.KindTuple, top.state == stateVariant:
		top.next = 0
	default:
		w.rollback(m)
		return w.unexpected(op)
	}
	top.state = stateSeq
	return nil
}

// Element starts the next element of a sequence or tuple.
func (w *Writer) Element() error {
	const op = "Element"
	if err := w.usable(op); err != nil {
		return err
	}
	if w.discarding() {
		return nil
	}
	top := w.top()
	if top.state != stateSeq {
		return w.unexpected(op)
	}
	if err := w.room(); err != nil {
		return w.reject(op, err)
	}

	var c *poke.Partial
	var err error
	if top.p.Kind() == shape.KindSeq {
		c, err = top.p.Push()
	} else {
		if n := len(top.p.Fields()); top.next >= n {
			return w.reject(op, errors.IndexOutOfRange(errors.PhaseDrive, w.segments(), top.next, n))
		}
		c, err = top.p.Field(top.next)
	}
	if err != nil {
		return w.reject(op, err)
	}
	top.next++
	w.frames = append(w.frames, frame{p: c})
	return nil
}

// EndSeq ends a sequence or tuple.
func (w *Writer) EndSeq() error {
	const op = "EndSeq"
	if err := w.usable(op); err != nil {
		return err
	}
	if w.discarding() {
		w.discard(-1)
		return nil
	}
	if w.top().state != stateSeq {
		return w.unexpected(op)
	}
	return w.complete(op)
}

// BeginMap starts a map. Structs and selected variants also accept it,
// taking each entry key as a field name. n is a length hint.
func (w *Writer) BeginMap(n int) error {
	const op = "BeginMap"
	if err := w.usable(op); err != nil {
		return err
	}
	if w.discarding() {
		w.discard(1)
		return nil
	}

	m := w.mark()
	if err := w.descend(verbBeginMap, nil); err != nil {
		w.rollback(m)
		return w.reject(op, err)
	}
	top := w.top()
	switch {
	case top.state == statePending && top.p.Kind() == shape.KindMap:
		if n > 0 {
			if err := top.p.Reserve(n); err != nil {
				w.rollback(m)
				return w.reject(op, err)
			}
		}
		top.state = stateMap
	case top.state == stateVariant, top.state == statePending && top.p.Kind() == shape.KindStruct:
		top.state, top.closer = stateStruct, closeMap
	default:
		w.rollback(m)
		return w.unexpected(op)
	}
	return nil
}

// Entry inserts key and starts its value. Inside a struct opened with
// BeginMap the key names a field.
func (w *Writer) Entry(key any) error {
	const op = "Entry"
	if err := w.usable(op); err != nil {
		return err
	}
	if w.discarding() {
		return nil
	}
	top := w.top()
	switch {
	case top.state == stateMap:
		if err := w.room(); err != nil {
			return w.reject(op, err)
		}
		c, err := top.p.Insert(key)
		if err != nil {
			return w.reject(op, err)
		}
		w.frames = append(w.frames, frame{p: c})
		return nil
	case top.state == stateStruct && top.closer == closeMap:
		name, st := coerce.String(key)
		if st != coerce.OK {
			return w.reject(op, errors.TypeMismatch(errors.PhaseDrive, w.segments(), "field name", coerce.TypeName(key)))
		}
		return w.field(top, name, op)
	}
	return w.unexpected(op)
}

// EndMap ends a map, or a struct opened with BeginMap.
func (w *Writer) EndMap() error {
	const op = "EndMap"
	if err := w.usable(op); err != nil {
		return err
	}
	if w.discarding() {
		w.discard(-1)
		return nil
	}
	top := w.top()
	if top.state != stateMap && (top.state != stateStruct || top.closer != closeMap) {
		return w.unexpected(op)
	}
	return w.complete(op)
}

// SelectVariant selects an enum variant by name. A unit variant is
// complete at once; otherwise its payload follows, either struct-style
// (BeginStruct or BeginMap), positional (BeginSeq), or, for a variant with
// a single field, as that field's value directly.
func (w *Writer) SelectVariant(tag string) error {
	const op = "SelectVariant"
	if err := w.usable(op); err != nil {
		return err
	}
	if w.discarding() {
		return nil
	}

	m := w.mark()
	if err := w.descend(verbSelectVariant, nil); err != nil {
		w.rollback(m)
		return w.reject(op, err)
	}
	top := w.top()
	if top.state != statePending || top.p.Kind() != shape.KindEnum {
		w.rollback(m)
		return w.unexpected(op)
	}
	if err := top.p.SelectVariant(tag); err != nil {
		w.rollback(m)
		return w.reject(op, err)
	}
	if top.p.Variant().IsUnit() {
		return w.complete(op)
	}
	top.state = stateVariant
	return nil
}

// Finish completes the root builder. The writer is closed afterwards,
// whether or not Finish succeeds.
func (w *Writer) Finish() (*poke.Value, error) {
	const op = "Finish"
	if err := w.usable(op); err != nil {
		return nil, err
	}
	if len(w.frames) > 1 || w.frames[0].state != statePending && w.frames[0].state != stateFilled {
		return nil, w.unexpected(op)
	}
	w.closed = true
	return w.root.Finish()
}

// Abandon tears down everything written so far. It is idempotent.
func (w *Writer) Abandon() {
	if w.closed {
		return
	}
	w.closed = true
	w.frames = w.frames[:1]
	w.root.Abandon()
}
