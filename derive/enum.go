package derive

import (
	"reflect"
	"sync"
	"unsafe"

	"github.com/ldubos/facet/errors"
	"github.com/ldubos/facet/shape"
)

// Enum is implemented by tagged-union structs. The struct stores the name
// of the active variant in a string field tagged `facet:",tag"`; payload
// fields are tagged `facet:"name,variant=<Variant>"`:
//
//	type Shape struct {
//		Kind   string  `facet:",tag"`
//		Radius float64 `facet:"radius,variant=Circle"`
//		W      float64 `facet:"w,variant=Rect"`
//		H      float64 `facet:"h,variant=Rect"`
//	}
//
//	func (Shape) Variants() []string { return []string{"Circle", "Rect", "Empty"} }
type Enum interface {
	Variants() []string
}

type integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

var (
	enumType = reflect.TypeFor[Enum]()
	enums    sync.Map // reflect.Type -> []shape.Variant
)

// EnumValue names one value of an integer enum.
type EnumValue[T integer] struct {
	Value T
	Name  string
}

// RegisterEnum declares T as a unit-only enum whose value i is named
// names[i]. It must be called before the Shape of T is first derived.
// The zero value of T is names[0], so a cleared T reads back as that
// variant.
func RegisterEnum[T integer](names ...string) error {
	values := make([]EnumValue[T], len(names))
	for i, n := range names {
		values[i] = EnumValue[T]{Value: T(i), Name: n}
	}
	return RegisterEnumValues(values...)
}

// RegisterEnumValues declares T as a unit-only enum with explicit values,
// such as constants starting at iota + 1 or bit flags:
//
//	derive.RegisterEnumValues(
//		derive.EnumValue[Perm]{Value: Read, Name: "Read"},
//		derive.EnumValue[Perm]{Value: Write, Name: "Write"},
//	)
//
// A value of T that names no variant, including zero when zero is not
// registered, has no active variant. Names and values must be unique.
func RegisterEnumValues[T integer](values ...EnumValue[T]) error {
	t := reflect.TypeFor[T]()
	if _, ok := cache.Load(cacheKey{t: t}); ok {
		return errors.New(errors.PhaseDerive, errors.KindInvalidState).
			Found(t.String()).
			Detail("shape already derived, register enums before first use").
			Build()
	}
	if len(values) == 0 {
		return errors.New(errors.PhaseDerive, errors.KindInvalidShape).
			Found(t.String()).
			Detail("enum needs at least one variant").
			Build()
	}

	variants := make([]shape.Variant, len(values))
	names := make(map[string]bool, len(values))
	discs := make(map[int64]bool, len(values))
	for i, v := range values {
		d := discriminant(reflect.ValueOf(v.Value))
		if names[v.Name] || discs[d] {
			return errors.New(errors.PhaseDerive, errors.KindInvalidShape).
				Found(t.String()).
				Detail("duplicate variant %q = %v", v.Name, v.Value).
				Build()
		}
		names[v.Name], discs[d] = true, true
		variants[i] = shape.Variant{Name: v.Name, Discriminant: d}
	}
	enums.Store(t, variants)
	return nil
}

// discriminant reads an integer as int64. Unsigned values above MaxInt64
// keep their bit pattern.
func discriminant(v reflect.Value) int64 {
	if v.CanInt() {
		return v.Int()
	}
	return int64(v.Uint())
}

func registeredEnum(t reflect.Type) ([]shape.Variant, bool) {
	v, ok := enums.Load(t)
	if !ok {
		return nil, false
	}
	return v.([]shape.Variant), true
}

func (d *deriver) integerEnum(s *shape.Shape, variants []shape.Variant) {
	t := s.Type
	s.Kind = shape.KindEnum
	s.Variants = append([]shape.Variant(nil), variants...)

	index := make(map[int64]int, len(variants))
	for i := range variants {
		index[variants[i].Discriminant] = i
	}
	s.Enum = &shape.EnumOps{
		Active: func(ptr unsafe.Pointer) int {
			if i, ok := index[discriminant(reflect.NewAt(t, ptr).Elem())]; ok {
				return i
			}
			return -1
		},
		Select: func(ptr unsafe.Pointer, i int) {
			v := reflect.NewAt(t, ptr).Elem()
			if i < 0 {
				v.SetZero()
				return
			}
			if d := variants[i].Discriminant; v.CanInt() {
				v.SetInt(d)
			} else {
				v.SetUint(uint64(d))
			}
		},
	}
}

// isEnumStruct reports whether t is a tagged-union struct.
func isEnumStruct(t reflect.Type) bool {
	if !t.Implements(enumType) {
		return false
	}
	_, ok := tagField(t)
	return ok
}

func tagField(t reflect.Type) (reflect.StructField, bool) {
	for i := range t.NumField() {
		f := t.Field(i)
		tg, err := parseTag(f, nil)
		if err == nil && tg.Tag && f.Type.Kind() == reflect.String {
			return f, true
		}
	}
	return reflect.StructField{}, false
}

func (d *deriver) taggedEnum(s *shape.Shape, rule RenameRule, path []string) error {
	t := s.Type
	names := reflect.Zero(t).Interface().(Enum).Variants()
	if len(names) == 0 {
		return errors.New(errors.PhaseDerive, errors.KindInvalidShape).
			Path(path...).
			Found(s.Name).
			Detail("enum needs at least one variant").
			Build()
	}

	s.Kind = shape.KindEnum
	s.Variants = make([]shape.Variant, len(names))
	index := make(map[string]int, len(names))
	for i, n := range names {
		if _, dup := index[n]; dup {
			return errors.New(errors.PhaseDerive, errors.KindInvalidShape).
				Path(path...).
				Found(s.Name).
				Detail("duplicate variant %q", n).
				Build()
		}
		index[n] = i
		s.Variants[i] = shape.Variant{Name: n, Discriminant: int64(i)}
	}

	tf, _ := tagField(t)
	for i := range t.NumField() {
		sf := t.Field(i)
		if sf.Name == "_" || sf.Name == tf.Name || !sf.IsExported() {
			continue
		}
		tg, err := parseTag(sf, path)
		if err != nil {
			return err
		}
		if tg.Skip {
			continue
		}
		vi, ok := index[tg.Variant]
		if !ok {
			return errors.New(errors.PhaseDerive, errors.KindInvalidShape).
				Path(sub(path, sf.Name)...).
				Found(s.Name).
				Detail("field belongs to no variant (variant=%q)", tg.Variant).
				Build()
		}
		vpath := sub(path, "::"+tg.Variant)
		f, err := d.field(sf, tg, 0, rule, vpath)
		if err != nil {
			return err
		}
		v := &s.Variants[vi]
		if v.FieldIndex(f.Name) >= 0 {
			return duplicateField(vpath, f.Name)
		}
		v.Fields = append(v.Fields, f)
	}

	off := tf.Offset
	s.Enum = &shape.EnumOps{
		Active: func(ptr unsafe.Pointer) int {
			name := *(*string)(unsafe.Add(ptr, off))
			if i, ok := index[name]; ok {
				return i
			}
			return -1
		},
		Select: func(ptr unsafe.Pointer, i int) {
			p := (*string)(unsafe.Add(ptr, off))
			if i < 0 {
				*p = ""
				return
			}
			*p = names[i]
		},
	}
	return nil
}
