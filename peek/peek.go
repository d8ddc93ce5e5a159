package peek

import (
	"fmt"
	"iter"
	"strconv"
	"unsafe"

	"github.com/ldubos/facet/errors"
	"github.com/ldubos/facet/internal/path"
	"github.com/ldubos/facet/shape"
)

// Peek is a read-only view of an initialized value described by a Shape.
// It does not own the memory it points to.
type Peek struct {
	shape *shape.Shape
	ptr   unsafe.Pointer
	path  path.Path
}

// New returns a Peek over the value at ptr.
func New(s *shape.Shape, ptr unsafe.Pointer) Peek {
	return Peek{shape: s, ptr: ptr}
}

// At returns a Peek whose errors are reported relative to p.
func At(s *shape.Shape, ptr unsafe.Pointer, p path.Path) Peek {
	return Peek{shape: s, ptr: ptr, path: p}
}

func (p Peek) Shape() *shape.Shape { return p.shape }
func (p Peek) Kind() shape.Kind    { return p.shape.Kind }
func (p Peek) Ptr() unsafe.Pointer { return p.ptr }
func (p Peek) Location() path.Path { return p.path }
func (p Peek) Path() string        { return p.path.String() }
func (p Peek) IsValid() bool       { return p.shape != nil && p.ptr != nil }

func (p Peek) child(s *shape.Shape, ptr unsafe.Pointer, at path.Path) Peek {
	return Peek{shape: s, ptr: ptr, path: at}
}

// Interface returns a copy of the value as an interface.
func (p Peek) Interface() any {
	return p.shape.Interface(p.ptr)
}

func (p Peek) mismatch(expected string) error {
	return errors.ShapeMismatch(errors.PhasePeek, p.path.Segments(), expected, p.shape.Name+" ("+p.shape.Kind.String()+")")
}

// NumFields returns the field count of a struct or tuple, 0 otherwise.
func (p Peek) NumFields() int {
	if !p.shape.Kind.HasFields() {
		return 0
	}
	return len(p.shape.Fields)
}

// Field returns field i of a struct or tuple.
func (p Peek) Field(i int) (Peek, error) {
	if !p.shape.Kind.HasFields() {
		return Peek{}, p.mismatch("struct or tuple")
	}
	if i < 0 || i >= len(p.shape.Fields) {
		return Peek{}, errors.NoSuchField(errors.PhasePeek, p.path.Segments(), p.shape.Name, strconv.Itoa(i))
	}
	return p.fieldAt(p.shape.Fields, i), nil
}

// FieldByName returns the named field of a struct or tuple.
func (p Peek) FieldByName(name string) (Peek, error) {
	if !p.shape.Kind.HasFields() {
		return Peek{}, p.mismatch("struct or tuple")
	}
	i := p.shape.FieldIndex(name)
	if i < 0 {
		return Peek{}, errors.NoSuchField(errors.PhasePeek, p.path.Segments(), p.shape.Name, name)
	}
	return p.fieldAt(p.shape.Fields, i), nil
}

func (p Peek) fieldAt(fields []shape.Field, i int) Peek {
	f := &fields[i]
	at := p.path.Field(f.Name)
	if p.shape.Kind == shape.KindTuple {
		at = p.path.Index(i)
	}
	return p.child(f.Shape, unsafe.Add(p.ptr, f.Offset), at)
}

// Fields yields every field of a struct or tuple in declaration order.
// Other kinds yield nothing.
func (p Peek) Fields() iter.Seq2[*shape.Field, Peek] {
	return func(yield func(*shape.Field, Peek) bool) {
		if !p.shape.Kind.HasFields() {
			return
		}
		for i := range p.shape.Fields {
			if !yield(&p.shape.Fields[i], p.fieldAt(p.shape.Fields, i)) {
				return
			}
		}
	}
}

// Len returns the number of elements of a sequence, tuple, map, string or
// byte slice.
func (p Peek) Len() (int, error) {
	switch p.shape.Kind {
	case shape.KindSeq:
		return p.shape.Seq.Len(p.ptr), nil
	case shape.KindTuple:
		return len(p.shape.Fields), nil
	case shape.KindMap:
		return p.shape.Map.Len(p.ptr), nil
	case shape.KindString:
		return len(*(*string)(p.ptr)), nil
	case shape.KindBytes:
		return len(*(*[]byte)(p.ptr)), nil
	}
	return 0, p.mismatch("seq, tuple, map, string or bytes")
}

// Element returns element i of a sequence or tuple.
func (p Peek) Element(i int) (Peek, error) {
	switch p.shape.Kind {
	case shape.KindSeq:
		n := p.shape.Seq.Len(p.ptr)
		if i < 0 || i >= n {
			return Peek{}, errors.IndexOutOfRange(errors.PhasePeek, p.path.Segments(), i, n)
		}
		return p.child(p.shape.Elem, p.shape.Seq.Index(p.ptr, i), p.path.Index(i)), nil
	case shape.KindTuple:
		if i < 0 || i >= len(p.shape.Fields) {
			return Peek{}, errors.IndexOutOfRange(errors.PhasePeek, p.path.Segments(), i, len(p.shape.Fields))
		}
		return p.fieldAt(p.shape.Fields, i), nil
	}
	return Peek{}, p.mismatch("seq or tuple")
}

// Elements yields the elements of a sequence or tuple in order.
// Other kinds yield nothing.
func (p Peek) Elements() iter.Seq2[int, Peek] {
	return func(yield func(int, Peek) bool) {
		switch p.shape.Kind {
		case shape.KindSeq:
			n := p.shape.Seq.Len(p.ptr)
			for i := range n {
				if !yield(i, p.child(p.shape.Elem, p.shape.Seq.Index(p.ptr, i), p.path.Index(i))) {
					return
				}
			}
		case shape.KindTuple:
			for i := range p.shape.Fields {
				if !yield(i, p.fieldAt(p.shape.Fields, i)) {
					return
				}
			}
		}
	}
}

// Entries returns a lazy sequence of (key, value) pairs of a map. Each
// call re-reads the map, so the sequence is restartable and reflects the
// current contents.
func (p Peek) Entries() (iter.Seq2[Peek, Peek], error) {
	if p.shape.Kind != shape.KindMap {
		return nil, p.mismatch("map")
	}
	m := p.shape
	return func(yield func(Peek, Peek) bool) {
		for kp, vp := range m.Map.Entries(p.ptr) {
			at := p.path.Key(keyString(p.child(m.Key, kp, p.path)))
			if !yield(p.child(m.Key, kp, at), p.child(m.Elem, vp, at)) {
				return
			}
		}
	}, nil
}

func keyString(k Peek) string {
	if k.shape.Kind == shape.KindString {
		return *(*string)(k.ptr)
	}
	return fmt.Sprint(k.Interface())
}

// VariantPeek is the active variant of an enum value.
type VariantPeek struct {
	Variant *shape.Variant
	enum    Peek
	Index   int
}

// Variant returns the active variant of an enum.
func (p Peek) Variant() (VariantPeek, error) {
	if p.shape.Kind != shape.KindEnum {
		return VariantPeek{}, p.mismatch("enum")
	}
	i := p.shape.Enum.Active(p.ptr)
	if i < 0 {
		return VariantPeek{}, errors.New(errors.PhasePeek, errors.KindInvalidData).
			Path(p.path.Segments()...).
			Found(p.shape.Name).
			Detail("enum has no active variant").
			Build()
	}
	return VariantPeek{enum: p, Index: i, Variant: &p.shape.Variants[i]}, nil
}

func (v VariantPeek) Name() string   { return v.Variant.Name }
func (v VariantPeek) NumFields() int { return len(v.Variant.Fields) }

func (v VariantPeek) at(i int) Peek {
	f := &v.Variant.Fields[i]
	return v.enum.child(f.Shape, unsafe.Add(v.enum.ptr, f.Offset), v.enum.path.Variant(v.Variant.Name).Field(f.Name))
}

// Field returns payload field i of the active variant.
func (v VariantPeek) Field(i int) (Peek, error) {
	if i < 0 || i >= len(v.Variant.Fields) {
		return Peek{}, errors.NoSuchField(errors.PhasePeek, v.enum.path.Segments(), v.Variant.Name, strconv.Itoa(i))
	}
	return v.at(i), nil
}

// FieldByName returns the named payload field of the active variant.
func (v VariantPeek) FieldByName(name string) (Peek, error) {
	i := v.Variant.FieldIndex(name)
	if i < 0 {
		return Peek{}, errors.NoSuchField(errors.PhasePeek, v.enum.path.Segments(), v.Variant.Name, name)
	}
	return v.at(i), nil
}

// Fields yields the payload fields of the active variant.
func (v VariantPeek) Fields() iter.Seq2[*shape.Field, Peek] {
	return func(yield func(*shape.Field, Peek) bool) {
		for i := range v.Variant.Fields {
			if !yield(&v.Variant.Fields[i], v.at(i)) {
				return
			}
		}
	}
}

// IsSome reports whether an option holds a value. False for other kinds.
func (p Peek) IsSome() bool {
	return p.shape.Kind == shape.KindOption && p.shape.Option.IsSome(p.ptr)
}

// Some returns the payload of a present option.
func (p Peek) Some() (Peek, error) {
	if p.shape.Kind != shape.KindOption {
		return Peek{}, p.mismatch("option")
	}
	if !p.shape.Option.IsSome(p.ptr) {
		return Peek{}, errors.New(errors.PhasePeek, errors.KindNilPointer).
			Path(p.path.Segments()...).
			Found(p.shape.Name).
			Detail("option is none").
			Build()
	}
	return p.child(p.shape.Elem, p.shape.Option.Get(p.ptr), p.path), nil
}

// Inner returns the inner representation of a wrapper.
func (p Peek) Inner() (Peek, error) {
	if p.shape.Kind != shape.KindWrapper {
		return Peek{}, p.mismatch("wrapper")
	}
	ptr, err := p.shape.Wrapper.Inner(p.ptr)
	if err != nil {
		return Peek{}, errors.New(errors.PhasePeek, errors.KindInvalidData).
			Path(p.path.Segments()...).
			Found(p.shape.Name).
			Cause(err).
			Build()
	}
	return p.child(p.shape.Elem, ptr, p.path), nil
}
