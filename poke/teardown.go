package poke

import (
	"unsafe"

	"github.com/ldubos/facet/shape"
)

type dropItem struct {
	s   *shape.Shape
	ptr unsafe.Pointer
}

// teardown releases a fully initialized value and zeroes its region.
// A Shape's VTable.Drop, when present, replaces structural teardown of that
// value; otherwise children are visited in reverse order on an explicit
// stack.
func teardown(s *shape.Shape, ptr unsafe.Pointer) {
	release(s, ptr)
	s.Zero(ptr)
}

func release(s *shape.Shape, ptr unsafe.Pointer) {
	stack := []dropItem{{s: s, ptr: ptr}}

	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if it.s.VTable.Drop != nil {
			it.s.VTable.Drop(it.ptr)
			continue
		}

		// children are pushed in order, so they pop last-first
		switch it.s.Kind {
		case shape.KindStruct, shape.KindTuple:
			for i := range it.s.Fields {
				f := &it.s.Fields[i]
				stack = append(stack, dropItem{s: f.Shape, ptr: unsafe.Add(it.ptr, f.Offset)})
			}
		case shape.KindEnum:
			v := it.s.Enum.Active(it.ptr)
			if v < 0 {
				continue
			}
			for i := range it.s.Variants[v].Fields {
				f := &it.s.Variants[v].Fields[i]
				stack = append(stack, dropItem{s: f.Shape, ptr: unsafe.Add(it.ptr, f.Offset)})
			}
		case shape.KindSeq:
			for i := range it.s.Seq.Len(it.ptr) {
				stack = append(stack, dropItem{s: it.s.Elem, ptr: it.s.Seq.Index(it.ptr, i)})
			}
		case shape.KindMap:
			for k, v := range it.s.Map.Entries(it.ptr) {
				stack = append(stack, dropItem{s: it.s.Key, ptr: k}, dropItem{s: it.s.Elem, ptr: v})
			}
		case shape.KindOption:
			if it.s.Option.IsSome(it.ptr) {
				stack = append(stack, dropItem{s: it.s.Elem, ptr: it.s.Option.Get(it.ptr)})
			}
		}
	}
}
