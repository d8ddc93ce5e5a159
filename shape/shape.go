package shape

import (
	"iter"
	"reflect"
	"unsafe"
)

// Shape describes one Go type: its layout, structural kind and the
// operations needed to construct, inspect and tear down values of it.
//
// Shapes are immutable after construction and shared by pointer.
type Shape struct {
	Type     reflect.Type
	Elem     *Shape // seq element, map value, option payload, wrapper inner
	Key      *Shape // map key
	Seq      *SeqOps
	Map      *MapOps
	Option   *OptionOps
	Enum     *EnumOps
	Wrapper  *WrapperOps
	Name     string
	Doc      string
	Fields   []Field
	Variants []Variant
	VTable   VTable
	Size     uintptr
	Align    uintptr
	Kind     Kind
}

// FieldFlags modify how the builder treats a field at finish time.
type FieldFlags uint8

const (
	// FieldOptional fields may be left unset; they get the field shape's
	// VTable.Default, or keep their zero value when it has none.
	FieldOptional FieldFlags = 1 << iota
	// FieldDefault fields left unset are filled by Field.Default or the
	// field shape's VTable.Default.
	FieldDefault
	// FieldSensitive fields are redacted by human-readable printers.
	FieldSensitive
)

// Field is one named sub-region of a struct, tuple or enum variant.
type Field struct {
	Shape   *Shape
	Default func(ptr unsafe.Pointer) // writes the default into the field region
	Attrs   map[string]string        // free-form key:value annotations, e.g. "format"
	Name    string
	Doc     string
	Offset  uintptr // from the start of the enclosing value
	Flags   FieldFlags
}

// Required reports whether the field must be written before finishing.
func (f *Field) Required() bool {
	return f.Flags&(FieldOptional|FieldDefault) == 0
}

func (f *Field) Sensitive() bool {
	return f.Flags&FieldSensitive != 0
}

// Variant is one alternative of an enum. Field offsets are relative to the
// start of the enum value.
type Variant struct {
	Name         string
	Doc          string
	Fields       []Field
	Discriminant int64
}

// IsUnit reports whether the variant carries no payload.
func (v *Variant) IsUnit() bool {
	return len(v.Fields) == 0
}

// FieldIndex returns the index of the payload field with the given name, or -1.
func (v *Variant) FieldIndex(name string) int {
	for i := range v.Fields {
		if v.Fields[i].Name == name {
			return i
		}
	}
	return -1
}

// VTable holds the in-place constructor and destructor of a Shape.
type VTable struct {
	// Default writes the default value into a zeroed region. Optional.
	Default func(ptr unsafe.Pointer)
	// Drop tears down an initialized region. When nil the builder tears
	// the value down structurally and zeroes it.
	Drop func(ptr unsafe.Pointer)
}

// SeqOps operate on a growable sequence.
type SeqOps struct {
	Len   func(ptr unsafe.Pointer) int
	Index func(ptr unsafe.Pointer, i int) unsafe.Pointer
	// Init makes the region an empty sequence with room for capacity elements.
	Init func(ptr unsafe.Pointer, capacity int)
	// Reserve makes room for n more elements.
	Reserve func(ptr unsafe.Pointer, n int)
	// Push moves the element at elem onto the end and zeroes elem.
	Push func(ptr, elem unsafe.Pointer)
}

// MapOps operate on an associative map.
type MapOps struct {
	Len      func(ptr unsafe.Pointer) int
	Init     func(ptr unsafe.Pointer, capacity int)
	Contains func(ptr, key unsafe.Pointer) bool
	// Insert moves key and value into the map and zeroes both.
	Insert func(ptr, key, value unsafe.Pointer)
	// Entries yields pointers to copies of each entry in a stable order.
	Entries func(ptr unsafe.Pointer) iter.Seq2[unsafe.Pointer, unsafe.Pointer]
}

// OptionOps operate on a value that is either absent or holds one Elem.
type OptionOps struct {
	IsSome func(ptr unsafe.Pointer) bool
	// Get returns the payload pointer of a present option.
	Get func(ptr unsafe.Pointer) unsafe.Pointer
	// InitSome takes ownership of an Elem region allocated with Elem.Alloc.
	InitSome func(ptr, inner unsafe.Pointer)
	InitNone func(ptr unsafe.Pointer)
}

// EnumOps read and write the active variant of an enum value.
type EnumOps struct {
	// Active returns the active variant index, or -1 if none is selected.
	Active func(ptr unsafe.Pointer) int
	// Select marks variant i active; -1 clears the selection.
	Select func(ptr unsafe.Pointer, i int)
}

// WrapperOps convert between a value and its inner representation (Elem).
type WrapperOps struct {
	// Inner returns a pointer to the inner representation, either inside
	// ptr's region or freshly allocated. Callers must not tear it down.
	Inner func(ptr unsafe.Pointer) (unsafe.Pointer, error)
	// Wrap initializes ptr from a fully built inner region.
	Wrap func(ptr, inner unsafe.Pointer) error
}

func (s *Shape) String() string {
	if s == nil {
		return "<nil>"
	}
	return s.Name
}

// FieldIndex returns the index of the named field, or -1.
func (s *Shape) FieldIndex(name string) int {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return i
		}
	}
	return -1
}

// VariantIndex returns the index of the named variant, or -1.
func (s *Shape) VariantIndex(name string) int {
	for i := range s.Variants {
		if s.Variants[i].Name == name {
			return i
		}
	}
	return -1
}

// VariantByDiscriminant returns the index of the variant with the given
// discriminant, or -1.
func (s *Shape) VariantByDiscriminant(d int64) int {
	for i := range s.Variants {
		if s.Variants[i].Discriminant == d {
			return i
		}
	}
	return -1
}

// Alloc returns a zeroed region for one value, visible to the garbage
// collector as a value of Type.
func (s *Shape) Alloc() unsafe.Pointer {
	return reflect.New(s.Type).UnsafePointer()
}

// Copy copies the value at src into dst.
func (s *Shape) Copy(dst, src unsafe.Pointer) {
	reflect.NewAt(s.Type, dst).Elem().Set(reflect.NewAt(s.Type, src).Elem())
}

// Zero resets the region to the zero value without running teardown.
func (s *Shape) Zero(ptr unsafe.Pointer) {
	reflect.NewAt(s.Type, ptr).Elem().SetZero()
}

// Interface returns the value at ptr as an interface holding a copy.
func (s *Shape) Interface(ptr unsafe.Pointer) any {
	return reflect.NewAt(s.Type, ptr).Elem().Interface()
}

// Is reports whether the shape describes exactly t.
func (s *Shape) Is(t reflect.Type) bool {
	return s.Type == t
}

// Underlying strips options and wrappers, returning the shape whose
// kind decides how a value is represented.
func (s *Shape) Underlying() *Shape {
	for s != nil && (s.Kind == KindOption || s.Kind == KindWrapper) {
		s = s.Elem
	}
	return s
}
