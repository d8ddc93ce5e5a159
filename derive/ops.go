package derive

import (
	"cmp"
	"encoding"
	"fmt"
	"iter"
	"reflect"
	"slices"
	"unsafe"

	"github.com/ldubos/facet/shape"
)

type sliceHeader struct {
	Data unsafe.Pointer
	Len  int
	Cap  int
}

func seqOps(t reflect.Type) *shape.SeqOps {
	elemSize := t.Elem().Size()
	elemType := t.Elem()

	return &shape.SeqOps{
		Len: func(ptr unsafe.Pointer) int {
			return (*sliceHeader)(ptr).Len
		},
		Index: func(ptr unsafe.Pointer, i int) unsafe.Pointer {
			return unsafe.Add((*sliceHeader)(ptr).Data, uintptr(i)*elemSize)
		},
		Init: func(ptr unsafe.Pointer, capacity int) {
			reflect.NewAt(t, ptr).Elem().Set(reflect.MakeSlice(t, 0, capacity))
		},
		Reserve: func(ptr unsafe.Pointer, n int) {
			reflect.NewAt(t, ptr).Elem().Grow(n)
		},
		Push: func(ptr, elem unsafe.Pointer) {
			v := reflect.NewAt(t, ptr).Elem()
			e := reflect.NewAt(elemType, elem).Elem()
			v.Set(reflect.Append(v, e))
			e.SetZero()
		},
	}
}

func mapOps(t reflect.Type) *shape.MapOps {
	keyType, valType := t.Key(), t.Elem()

	mapOf := func(ptr unsafe.Pointer) reflect.Value {
		return reflect.NewAt(t, ptr).Elem()
	}

	return &shape.MapOps{
		Len: func(ptr unsafe.Pointer) int {
			return mapOf(ptr).Len()
		},
		Init: func(ptr unsafe.Pointer, capacity int) {
			mapOf(ptr).Set(reflect.MakeMapWithSize(t, capacity))
		},
		Contains: func(ptr, key unsafe.Pointer) bool {
			return mapOf(ptr).MapIndex(reflect.NewAt(keyType, key).Elem()).IsValid()
		},
		Insert: func(ptr, key, value unsafe.Pointer) {
			m := mapOf(ptr)
			if m.IsNil() {
				m.Set(reflect.MakeMap(t))
			}
			k := reflect.NewAt(keyType, key).Elem()
			v := reflect.NewAt(valType, value).Elem()
			m.SetMapIndex(k, v)
			k.SetZero()
			v.SetZero()
		},
		Entries: func(ptr unsafe.Pointer) iter.Seq2[unsafe.Pointer, unsafe.Pointer] {
			return func(yield func(unsafe.Pointer, unsafe.Pointer) bool) {
				m := mapOf(ptr)
				keys := m.MapKeys()
				slices.SortFunc(keys, compareKeys)
				for _, k := range keys {
					kp := reflect.New(keyType)
					kp.Elem().Set(k)
					vp := reflect.New(valType)
					vp.Elem().Set(m.MapIndex(k))
					if !yield(kp.UnsafePointer(), vp.UnsafePointer()) {
						return
					}
				}
			}
		},
	}
}

// compareKeys orders map keys so iteration is deterministic.
func compareKeys(a, b reflect.Value) int {
	switch a.Kind() {
	case reflect.String:
		return cmp.Compare(a.String(), b.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return cmp.Compare(a.Int(), b.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return cmp.Compare(a.Uint(), b.Uint())
	case reflect.Float32, reflect.Float64:
		return cmp.Compare(a.Float(), b.Float())
	case reflect.Bool:
		switch {
		case a.Bool() == b.Bool():
			return 0
		case !a.Bool():
			return -1
		default:
			return 1
		}
	case reflect.Array:
		for i := range a.Len() {
			if c := compareKeys(a.Index(i), b.Index(i)); c != 0 {
				return c
			}
		}
		return 0
	}
	if m, ok := a.Interface().(encoding.TextMarshaler); ok {
		if n, ok := b.Interface().(encoding.TextMarshaler); ok {
			x, _ := m.MarshalText()
			y, _ := n.MarshalText()
			return cmp.Compare(string(x), string(y))
		}
	}
	return cmp.Compare(fmt.Sprint(a.Interface()), fmt.Sprint(b.Interface()))
}

func optionOps() *shape.OptionOps {
	return &shape.OptionOps{
		IsSome: func(ptr unsafe.Pointer) bool {
			return *(*unsafe.Pointer)(ptr) != nil
		},
		Get: func(ptr unsafe.Pointer) unsafe.Pointer {
			return *(*unsafe.Pointer)(ptr)
		},
		InitSome: func(ptr, inner unsafe.Pointer) {
			*(*unsafe.Pointer)(ptr) = inner
		},
		InitNone: func(ptr unsafe.Pointer) {
			*(*unsafe.Pointer)(ptr) = nil
		},
	}
}

func textOps(t reflect.Type) *shape.WrapperOps {
	valueMarshals := t.Implements(textMarshalerType)

	return &shape.WrapperOps{
		Inner: func(ptr unsafe.Pointer) (unsafe.Pointer, error) {
			v := reflect.NewAt(t, ptr)
			var m encoding.TextMarshaler
			if valueMarshals {
				m = v.Elem().Interface().(encoding.TextMarshaler)
			} else {
				m = v.Interface().(encoding.TextMarshaler)
			}
			b, err := m.MarshalText()
			if err != nil {
				return nil, err
			}
			s := string(b)
			return unsafe.Pointer(&s), nil
		},
		Wrap: func(ptr, inner unsafe.Pointer) error {
			u := reflect.NewAt(t, ptr).Interface().(encoding.TextUnmarshaler)
			return u.UnmarshalText([]byte(*(*string)(inner)))
		},
	}
}

func transparentOps(inner *shape.Shape, offset uintptr) *shape.WrapperOps {
	return &shape.WrapperOps{
		Inner: func(ptr unsafe.Pointer) (unsafe.Pointer, error) {
			return unsafe.Add(ptr, offset), nil
		},
		Wrap: func(ptr, src unsafe.Pointer) error {
			inner.Copy(unsafe.Add(ptr, offset), src)
			return nil
		},
	}
}
