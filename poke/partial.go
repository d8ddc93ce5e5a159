package poke

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"unsafe"

	"go.uber.org/zap"

	"github.com/ldubos/facet/errors"
	"github.com/ldubos/facet/internal/coerce"
	"github.com/ldubos/facet/internal/path"
	"github.com/ldubos/facet/shape"
)

// DefaultMaxElements is the default cap on sequence and map length.
const DefaultMaxElements = 1 << 24

// Options configure a builder tree. Nested builders share the options of
// their root.
type Options struct {
	// MaxElements caps the length of any sequence or map built. Growth past
	// it fails with an allocation error. Zero means DefaultMaxElements.
	MaxElements int
}

// DefaultOptions returns the options used by New.
func DefaultOptions() Options {
	return Options{MaxElements: DefaultMaxElements}
}

type state uint8

const (
	stateOpen state = iota
	stateEnded
	stateAbandoned
)

// slot is how a nested builder hands its value to its parent on End.
type slot uint8

const (
	slotRoot slot = iota
	slotField
	slotElement
	slotKey
	slotValue
	slotSome
	slotInner
)

// Partial is a builder over a region that is not yet fully initialized.
//
// Struct, tuple and enum builders track each field in an initialization
// mask; every other kind tracks the region as a whole. Only marked
// sub-regions are ever torn down, and each exactly once.
//
// A Partial is not safe for concurrent use.
type Partial struct {
	shape  *shape.Shape
	ptr    unsafe.Pointer
	path   path.Path
	parent *Partial
	child  *Partial
	opts   *Options

	// fields are the struct or tuple fields, or the selected variant's.
	fields  []shape.Field
	mask    mask
	variant int

	// pendingKey is a finished map key waiting for its value.
	pendingKey unsafe.Pointer

	index int
	slot  slot
	state state
	init  bool
}

// New allocates a zeroed region for s and returns a root builder over it.
func New(s *shape.Shape) *Partial {
	return NewWithOptions(s, DefaultOptions())
}

// NewWithOptions is New with explicit options.
func NewWithOptions(s *shape.Shape, opts Options) *Partial {
	if opts.MaxElements <= 0 {
		opts.MaxElements = DefaultMaxElements
	}
	return newPartial(s, s.Alloc(), path.Root, nil, slotRoot, &opts)
}

// Into returns a root builder over caller-owned memory at ptr, which must
// hold a value of s. The region is zeroed first; its previous contents are
// not torn down.
func Into(s *shape.Shape, ptr unsafe.Pointer) *Partial {
	s.Zero(ptr)
	opts := DefaultOptions()
	return newPartial(s, ptr, path.Root, nil, slotRoot, &opts)
}

func newPartial(s *shape.Shape, ptr unsafe.Pointer, at path.Path, parent *Partial, sl slot, opts *Options) *Partial {
	p := &Partial{
		shape:   s,
		ptr:     ptr,
		path:    at,
		parent:  parent,
		opts:    opts,
		slot:    sl,
		variant: -1,
	}
	if s.Kind.HasFields() {
		p.fields = s.Fields
		p.mask = newMask(len(s.Fields))
	}
	return p
}

func (p *Partial) Shape() *shape.Shape { return p.shape }
func (p *Partial) Kind() shape.Kind    { return p.shape.Kind }
func (p *Partial) Parent() *Partial    { return p.parent }
func (p *Partial) Location() path.Path { return p.path }
func (p *Partial) Path() string        { return p.path.String() }

// Active reports whether the builder still accepts operations.
func (p *Partial) Active() bool {
	return p.state == stateOpen && p.child == nil
}

// Fields returns the fields that Field and FieldByName resolve against:
// the struct or tuple fields, or the payload of the selected variant.
func (p *Partial) Fields() []shape.Field { return p.fields }

// IsSet reports whether field i has been written.
func (p *Partial) IsSet(i int) bool { return p.mask.has(i) }

// Variant returns the selected variant, or nil.
func (p *Partial) Variant() *shape.Variant {
	if p.variant < 0 {
		return nil
	}
	return &p.shape.Variants[p.variant]
}

// Len returns the number of elements pushed into a sequence or inserted
// into a map so far.
func (p *Partial) Len() int {
	if !p.init {
		return 0
	}
	switch p.shape.Kind {
	case shape.KindSeq:
		return p.shape.Seq.Len(p.ptr)
	case shape.KindMap:
		return p.shape.Map.Len(p.ptr)
	}
	return 0
}

func (p *Partial) ready(op string) error {
	var detail string
	switch {
	case p.state == stateEnded:
		detail = op + " on a finished builder"
	case p.state == stateAbandoned:
		detail = op + " on an abandoned builder"
	case p.child != nil:
		detail = op + " while a nested builder is active"
	default:
		return nil
	}
	return errors.InvalidState(errors.PhaseBuild, p.path.Segments(), detail)
}

func (p *Partial) mismatch(expected string) error {
	return errors.ShapeMismatch(errors.PhaseBuild, p.path.Segments(), expected, p.shape.Name+" ("+p.shape.Kind.String()+")")
}

func (p *Partial) open(s *shape.Shape, ptr unsafe.Pointer, at path.Path, sl slot) *Partial {
	c := newPartial(s, ptr, at, p, sl, p.opts)
	p.child = c
	return c
}

// Field returns a builder for field i of a struct, tuple or selected enum
// variant. If the field was already written its value is torn down as soon
// as the field is reopened, so abandoning the new builder leaves the field
// unset rather than restoring the old value.
func (p *Partial) Field(i int) (*Partial, error) {
	if err := p.ready("Field"); err != nil {
		return nil, err
	}
	if err := p.fieldsReady(); err != nil {
		return nil, err
	}
	if i < 0 || i >= len(p.fields) {
		return nil, errors.NoSuchField(errors.PhaseBuild, p.path.Segments(), p.scopeName(), strconv.Itoa(i))
	}
	return p.openField(i), nil
}

// FieldByName is Field by field name.
func (p *Partial) FieldByName(name string) (*Partial, error) {
	if err := p.ready("Field"); err != nil {
		return nil, err
	}
	if err := p.fieldsReady(); err != nil {
		return nil, err
	}
	i := p.FieldIndex(name)
	if i < 0 {
		return nil, errors.NoSuchField(errors.PhaseBuild, p.path.Segments(), p.scopeName(), name)
	}
	return p.openField(i), nil
}

// FieldIndex returns the index of the named field in Fields, or -1.
func (p *Partial) FieldIndex(name string) int {
	for i := range p.fields {
		if p.fields[i].Name == name {
			return i
		}
	}
	return -1
}

func (p *Partial) scopeName() string {
	if v := p.Variant(); v != nil {
		return p.shape.Name + "::" + v.Name
	}
	return p.shape.Name
}

func (p *Partial) fieldsReady() error {
	switch p.shape.Kind {
	case shape.KindStruct, shape.KindTuple:
		return nil
	case shape.KindEnum:
		if p.variant < 0 {
			return errors.InvalidState(errors.PhaseBuild, p.path.Segments(), "field written before a variant was selected")
		}
		return nil
	}
	return p.mismatch("struct, tuple or enum")
}

func (p *Partial) openField(i int) *Partial {
	f := &p.fields[i]
	ptr := unsafe.Add(p.ptr, f.Offset)
	if p.mask.has(i) {
		teardown(f.Shape, ptr)
		p.mask.clear(i)
	}

	var at path.Path
	switch p.shape.Kind {
	case shape.KindTuple:
		at = p.path.Index(i)
	case shape.KindEnum:
		at = p.path.Variant(p.shape.Variants[p.variant].Name).Field(f.Name)
	default:
		at = p.path.Field(f.Name)
	}
	c := p.open(f.Shape, ptr, at, slotField)
	c.index = i
	return c
}

// Set writes a complete value.
//
// Scalars accept any Go value convertible without loss. Options accept nil
// for None or a payload for Some. Wrappers accept their own type or a
// value for their inner shape. Every other kind accepts only a value of
// exactly the Shape's Go type.
func (p *Partial) Set(v any) error {
	if err := p.ready("Set"); err != nil {
		return err
	}
	exact := v != nil && reflect.TypeOf(v) == p.shape.Type

	switch k := p.shape.Kind; {
	case exact && k != shape.KindOpaque:
		p.setExact(v)
		return nil
	case k == shape.KindOption:
		if v == nil {
			return p.None()
		}
		return p.through(p.Some, v)
	case k == shape.KindWrapper:
		return p.through(p.Inner, v)
	case k.IsScalar():
		return p.setScalar(v)
	}
	return errors.ShapeMismatch(errors.PhaseBuild, p.path.Segments(), p.shape.Name+" ("+p.shape.Kind.String()+")", coerce.TypeName(v))
}

// through sets v on a staged child and commits it, leaving p unchanged on
// failure.
func (p *Partial) through(open func() (*Partial, error), v any) error {
	c, err := open()
	if err != nil {
		return err
	}
	if err := c.Set(v); err != nil {
		c.Abandon()
		return err
	}
	if err := c.End(); err != nil {
		c.Abandon()
		return err
	}
	return nil
}

func (p *Partial) setExact(v any) {
	p.clear()
	reflect.NewAt(p.shape.Type, p.ptr).Elem().Set(reflect.ValueOf(v))
	p.markAll()
}

// markAll records a region written as a whole.
func (p *Partial) markAll() {
	switch p.shape.Kind {
	case shape.KindStruct, shape.KindTuple:
		for i := range p.fields {
			p.mask.set(i)
		}
	case shape.KindEnum:
		p.variant = p.shape.Enum.Active(p.ptr)
		if p.variant < 0 {
			return
		}
		p.fields = p.shape.Variants[p.variant].Fields
		p.mask = newMask(len(p.fields))
		for i := range p.fields {
			p.mask.set(i)
		}
	default:
		p.init = true
	}
}

// SelectVariant selects the named enum variant. Fields written under a
// different, previously selected variant are torn down first.
func (p *Partial) SelectVariant(name string) error {
	if err := p.ready("SelectVariant"); err != nil {
		return err
	}
	if p.shape.Kind != shape.KindEnum {
		return p.mismatch("enum")
	}
	i := p.shape.VariantIndex(name)
	if i < 0 {
		return errors.NoSuchVariant(errors.PhaseBuild, p.path.Segments(), p.shape.Name, name)
	}
	p.selectVariant(i)
	return nil
}

// SelectVariantIndex is SelectVariant by declaration index.
func (p *Partial) SelectVariantIndex(i int) error {
	if err := p.ready("SelectVariant"); err != nil {
		return err
	}
	if p.shape.Kind != shape.KindEnum {
		return p.mismatch("enum")
	}
	if i < 0 || i >= len(p.shape.Variants) {
		return errors.NoSuchVariant(errors.PhaseBuild, p.path.Segments(), p.shape.Name, strconv.Itoa(i))
	}
	p.selectVariant(i)
	return nil
}

func (p *Partial) selectVariant(i int) {
	if p.variant == i {
		return
	}
	p.clear()
	p.shape.Enum.Select(p.ptr, i)
	p.variant = i
	p.fields = p.shape.Variants[i].Fields
	p.mask = newMask(len(p.fields))
}

func (p *Partial) limit(requested int) error {
	if requested > p.opts.MaxElements {
		return errors.AllocationFailed(errors.PhaseBuild, p.path.Segments(), requested, p.opts.MaxElements)
	}
	return nil
}

// room checks that n more elements fit under MaxElements without
// overflowing the count.
func (p *Partial) room(n int) error {
	if have := p.Len(); n > p.opts.MaxElements-have {
		requested := math.MaxInt
		if n <= math.MaxInt-have {
			requested = have + n
		}
		return errors.AllocationFailed(errors.PhaseBuild, p.path.Segments(), requested, p.opts.MaxElements)
	}
	return nil
}

// Push returns a builder for one more sequence element. The element is
// appended when that builder ends.
func (p *Partial) Push() (*Partial, error) {
	if err := p.ready("Push"); err != nil {
		return nil, err
	}
	if p.shape.Kind != shape.KindSeq {
		return nil, p.mismatch("seq")
	}
	n := p.Len()
	if err := p.limit(n + 1); err != nil {
		return nil, err
	}
	if !p.init {
		p.shape.Seq.Init(p.ptr, 0)
		p.init = true
	}
	return p.open(p.shape.Elem, p.shape.Elem.Alloc(), p.path.Index(n), slotElement), nil
}

// Reserve ensures room for n more elements of a sequence or map.
func (p *Partial) Reserve(n int) error {
	if err := p.ready("Reserve"); err != nil {
		return err
	}
	if n < 0 {
		return errors.InvalidData(errors.PhaseBuild, p.path.Segments(), "negative reservation")
	}
	switch p.shape.Kind {
	case shape.KindSeq:
		if err := p.room(n); err != nil {
			return err
		}
		if !p.init {
			p.shape.Seq.Init(p.ptr, n)
			p.init = true
			return nil
		}
		p.shape.Seq.Reserve(p.ptr, n)
	case shape.KindMap:
		if err := p.room(n); err != nil {
			return err
		}
		if !p.init {
			p.shape.Map.Init(p.ptr, n)
			p.init = true
		}
	default:
		return p.mismatch("seq or map")
	}
	return nil
}

// InsertKey returns a builder for the key of a new map entry. After it
// ends, InsertValue builds the entry's value.
func (p *Partial) InsertKey() (*Partial, error) {
	if err := p.ready("InsertKey"); err != nil {
		return nil, err
	}
	if p.shape.Kind != shape.KindMap {
		return nil, p.mismatch("map")
	}
	if p.pendingKey != nil {
		return nil, errors.InvalidState(errors.PhaseBuild, p.path.Segments(), "key inserted before the previous entry's value")
	}
	n := p.Len()
	if err := p.limit(n + 1); err != nil {
		return nil, err
	}
	if !p.init {
		p.shape.Map.Init(p.ptr, 0)
		p.init = true
	}
	return p.open(p.shape.Key, p.shape.Key.Alloc(), p.path.Field("<key>"), slotKey), nil
}

// InsertValue returns a builder for the value of the entry whose key was
// just built. The entry is inserted when that builder ends.
func (p *Partial) InsertValue() (*Partial, error) {
	if err := p.ready("InsertValue"); err != nil {
		return nil, err
	}
	if p.shape.Kind != shape.KindMap {
		return nil, p.mismatch("map")
	}
	if p.pendingKey == nil {
		return nil, errors.InvalidState(errors.PhaseBuild, p.path.Segments(), "value inserted without a key")
	}
	at := p.path.Key(keyString(p.shape.Key, p.pendingKey))
	return p.open(p.shape.Elem, p.shape.Elem.Alloc(), at, slotValue), nil
}

// Insert builds the key from key and returns a builder for its value.
func (p *Partial) Insert(key any) (*Partial, error) {
	if err := p.through(p.InsertKey, key); err != nil {
		return nil, err
	}
	return p.InsertValue()
}

func keyString(s *shape.Shape, ptr unsafe.Pointer) string {
	if s.Kind == shape.KindString {
		return *(*string)(ptr)
	}
	return fmt.Sprint(s.Interface(ptr))
}

// Some returns a builder for the payload of an option.
func (p *Partial) Some() (*Partial, error) {
	if err := p.ready("Some"); err != nil {
		return nil, err
	}
	if p.shape.Kind != shape.KindOption {
		return nil, p.mismatch("option")
	}
	return p.open(p.shape.Elem, p.shape.Elem.Alloc(), p.path, slotSome), nil
}

// None writes an absent option.
func (p *Partial) None() error {
	if err := p.ready("None"); err != nil {
		return err
	}
	if p.shape.Kind != shape.KindOption {
		return p.mismatch("option")
	}
	p.clear()
	p.shape.Option.InitNone(p.ptr)
	p.init = true
	return nil
}

// Inner returns a builder for the inner representation of a wrapper.
func (p *Partial) Inner() (*Partial, error) {
	if err := p.ready("Inner"); err != nil {
		return nil, err
	}
	if p.shape.Kind != shape.KindWrapper {
		return nil, p.mismatch("wrapper")
	}
	return p.open(p.shape.Elem, p.shape.Elem.Alloc(), p.path, slotInner), nil
}

// End completes a nested builder and hands its value to the parent. On
// IncompleteValue the builder stays open so the missing parts can still be
// written or the builder abandoned.
func (p *Partial) End() error {
	if p.parent == nil {
		return errors.InvalidState(errors.PhaseBuild, p.path.Segments(), "End on a root builder")
	}
	if err := p.ready("End"); err != nil {
		return err
	}
	if err := p.complete(); err != nil {
		return err
	}
	return p.commit()
}

// Finish completes the root builder and transfers the region to the
// returned Value. On failure everything written so far is torn down.
func (p *Partial) Finish() (*Value, error) {
	if p.parent != nil {
		return nil, errors.InvalidState(errors.PhaseBuild, p.path.Segments(), "Finish on a nested builder")
	}
	if err := p.ready("Finish"); err != nil {
		return nil, err
	}
	if err := p.complete(); err != nil {
		Logger().Debug("finish failed, tearing down",
			zap.String("shape", p.shape.Name),
			zap.Error(err))
		p.abandon()
		return nil, err
	}
	p.state = stateEnded
	return &Value{shape: p.shape, ptr: p.ptr}, nil
}

// Abandon tears down everything this builder and its active descendants
// have written, innermost first, then closes them. It is idempotent and a
// no-op after End or Finish, so it is safe to defer.
func (p *Partial) Abandon() {
	if p.state != stateOpen {
		return
	}
	Logger().Debug("abandoning builder",
		zap.String("shape", p.shape.Name),
		zap.String("path", p.Path()))
	p.abandon()
}

func (p *Partial) abandon() {
	leaf := p
	for leaf.child != nil {
		leaf = leaf.child
	}
	for c := leaf; ; c = c.parent {
		c.clear()
		c.detach(stateAbandoned)
		if c == p {
			return
		}
	}
}

func (p *Partial) detach(s state) {
	p.state = s
	if p.parent != nil && p.parent.child == p {
		p.parent.child = nil
	}
}

// clear tears down every initialized sub-region of p, latest first.
func (p *Partial) clear() {
	switch p.shape.Kind {
	case shape.KindStruct, shape.KindTuple, shape.KindEnum:
		for _, i := range p.mask.reversed() {
			f := &p.fields[i]
			teardown(f.Shape, unsafe.Add(p.ptr, f.Offset))
		}
		p.mask.reset()
		if p.shape.Kind == shape.KindEnum && p.variant >= 0 {
			p.shape.Enum.Select(p.ptr, -1)
			p.variant = -1
			p.fields = nil
		}
	default:
		if p.pendingKey != nil {
			teardown(p.shape.Key, p.pendingKey)
			p.pendingKey = nil
		}
		if p.init {
			teardown(p.shape, p.ptr)
			p.init = false
		}
	}
}

// complete checks that every required part is written and fills in
// defaults for the rest. It changes nothing when it fails.
func (p *Partial) complete() error {
	switch p.shape.Kind {
	case shape.KindStruct, shape.KindTuple, shape.KindEnum:
		if p.shape.Kind == shape.KindEnum && p.variant < 0 {
			return errors.IncompleteValue(errors.PhaseBuild, p.path.Segments(), p.shape.Name, []string{"(variant)"})
		}
		var missing []string
		for i := range p.fields {
			if !p.mask.has(i) && p.fields[i].Required() {
				missing = append(missing, p.fields[i].Name)
			}
		}
		if len(missing) > 0 {
			return errors.IncompleteValue(errors.PhaseBuild, p.path.Segments(), p.scopeName(), missing)
		}
		for i := range p.fields {
			if p.mask.has(i) {
				continue
			}
			// Marked fields are torn down by the parent, so unset ones are
			// constructed first.
			f := &p.fields[i]
			fp := unsafe.Add(p.ptr, f.Offset)
			switch {
			case f.Flags&shape.FieldDefault != 0 && f.Default != nil:
				f.Default(fp)
			case f.Shape.VTable.Default != nil:
				f.Shape.VTable.Default(fp)
			}
			p.mask.set(i)
		}
	case shape.KindSeq:
		if !p.init {
			p.shape.Seq.Init(p.ptr, 0)
			p.init = true
		}
	case shape.KindMap:
		if p.pendingKey != nil {
			return errors.IncompleteValue(errors.PhaseBuild, p.path.Segments(), p.shape.Name, []string{"(value)"})
		}
		if !p.init {
			p.shape.Map.Init(p.ptr, 0)
			p.init = true
		}
	case shape.KindOption:
		if !p.init {
			p.shape.Option.InitNone(p.ptr)
			p.init = true
		}
	default:
		if !p.init {
			return errors.IncompleteValue(errors.PhaseBuild, p.path.Segments(), p.shape.Name, []string{"(value)"})
		}
	}
	return nil
}

// commit moves p's finished value into its parent.
func (p *Partial) commit() error {
	parent := p.parent
	switch p.slot {
	case slotField:
		parent.mask.set(p.index)
	case slotElement:
		parent.shape.Seq.Push(parent.ptr, p.ptr)
	case slotKey:
		if parent.shape.Map.Contains(parent.ptr, p.ptr) {
			err := errors.New(errors.PhaseBuild, errors.KindDuplicateKey).
				Path(parent.path.Segments()...).
				Found(keyString(p.shape, p.ptr)).
				Detail("duplicate map key").
				Build()
			teardown(p.shape, p.ptr)
			p.detach(stateEnded)
			return err
		}
		parent.pendingKey = p.ptr
	case slotValue:
		parent.shape.Map.Insert(parent.ptr, parent.pendingKey, p.ptr)
		parent.pendingKey = nil
	case slotSome:
		if parent.init {
			teardown(parent.shape, parent.ptr)
		}
		parent.shape.Option.InitSome(parent.ptr, p.ptr)
		parent.init = true
	case slotInner:
		tmp := parent.shape.Alloc()
		if err := parent.shape.Wrapper.Wrap(tmp, p.ptr); err != nil {
			return errors.New(errors.PhaseBuild, errors.KindInvalidData).
				Path(p.path.Segments()...).
				Expected(parent.shape.Name).
				Cause(err).
				Build()
		}
		if parent.init {
			teardown(parent.shape, parent.ptr)
		}
		parent.shape.Copy(parent.ptr, tmp)
		parent.init = true
		p.shape.Zero(p.ptr)
	}
	p.detach(stateEnded)
	return nil
}
