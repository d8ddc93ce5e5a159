package peek

import (
	stderrors "errors"
	"reflect"

	"github.com/ldubos/facet/errors"
	"github.com/ldubos/facet/shape"
)

// DefaultMaxDepth bounds traversal helpers unless overridden.
const DefaultMaxDepth = 1024

// SkipChildren, returned by a WalkFunc, skips the children of the current
// value without stopping the walk.
var SkipChildren = stderrors.New("skip children")

// WalkOptions configure Walk and Equal.
type WalkOptions struct {
	// MaxDepth is the deepest nesting visited. Zero means DefaultMaxDepth.
	MaxDepth int
}

// DefaultWalkOptions returns the options used by Walk when none are given.
func DefaultWalkOptions() WalkOptions {
	return WalkOptions{MaxDepth: DefaultMaxDepth}
}

func (o WalkOptions) maxDepth() int {
	if o.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return o.MaxDepth
}

// WalkFunc is called for every value in pre-order with its depth below the
// root (the root has depth 0).
type WalkFunc func(p Peek, depth int) error

type walkItem struct {
	p     Peek
	depth int
}

// Walk visits p and everything reachable from it in pre-order: struct and
// tuple fields in declaration order, the active variant's fields, sequence
// elements, map keys followed by their values in key order, option payloads
// and wrapper inner values. It uses an explicit stack, so nesting depth is
// limited only by opts.MaxDepth.
func Walk(p Peek, fn WalkFunc, opts WalkOptions) error {
	limit := opts.maxDepth()
	stack := []walkItem{{p: p}}
	var children []Peek

	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if it.depth > limit {
			return errors.DepthExceeded(errors.PhasePeek, it.p.path.Segments(), limit)
		}

		err := fn(it.p, it.depth)
		if err == SkipChildren {
			continue
		}
		if err != nil {
			return err
		}

		children, err = it.p.children(children[:0])
		if err != nil {
			return err
		}
		// pushed in reverse so the first child is visited first
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, walkItem{p: children[i], depth: it.depth + 1})
		}
	}
	return nil
}

// children appends the direct sub-values of p to dst.
func (p Peek) children(dst []Peek) ([]Peek, error) {
	switch p.shape.Kind {
	case shape.KindStruct, shape.KindTuple:
		for _, c := range p.Fields() {
			dst = append(dst, c)
		}
	case shape.KindEnum:
		if p.shape.Enum.Active(p.ptr) < 0 {
			return dst, nil
		}
		v, err := p.Variant()
		if err != nil {
			return dst, err
		}
		for _, c := range v.Fields() {
			dst = append(dst, c)
		}
	case shape.KindSeq:
		for _, c := range p.Elements() {
			dst = append(dst, c)
		}
	case shape.KindMap:
		entries, _ := p.Entries()
		for k, v := range entries {
			dst = append(dst, k, v)
		}
	case shape.KindOption:
		if p.IsSome() {
			c, _ := p.Some()
			dst = append(dst, c)
		}
	case shape.KindWrapper:
		c, err := p.Inner()
		if err != nil {
			return dst, err
		}
		dst = append(dst, c)
	}
	return dst, nil
}

// Equal reports whether a and b hold structurally equal values of the same
// Shape. Floats compare with ==, so NaN is never equal to itself.
func Equal(a, b Peek, opts WalkOptions) (bool, error) {
	limit := opts.maxDepth()
	type pair struct {
		a, b  Peek
		depth int
	}
	stack := []pair{{a: a, b: b}}
	var ca, cb []Peek

	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if it.depth > limit {
			return false, errors.DepthExceeded(errors.PhasePeek, it.a.path.Segments(), limit)
		}
		x, y := it.a, it.b
		if x.shape.Type != y.shape.Type {
			return false, nil
		}
		if x.ptr == y.ptr {
			continue
		}

		k := x.shape.Kind
		switch {
		case k.IsScalar():
			eq, err := scalarEqual(x, y)
			if err != nil || !eq {
				return eq, err
			}
			continue
		case k == shape.KindEnum:
			if x.shape.Enum.Active(x.ptr) != y.shape.Enum.Active(y.ptr) {
				return false, nil
			}
		case k == shape.KindSeq, k == shape.KindMap:
			nx, _ := x.Len()
			ny, _ := y.Len()
			if nx != ny {
				return false, nil
			}
		case k == shape.KindOption:
			if x.IsSome() != y.IsSome() {
				return false, nil
			}
		}

		var err error
		if ca, err = x.children(ca[:0]); err != nil {
			return false, err
		}
		if cb, err = y.children(cb[:0]); err != nil {
			return false, err
		}
		if len(ca) != len(cb) {
			return false, nil
		}
		for i := range ca {
			stack = append(stack, pair{a: ca[i], b: cb[i], depth: it.depth + 1})
		}
	}
	return true, nil
}

func scalarEqual(x, y Peek) (bool, error) {
	switch x.shape.Kind {
	case shape.KindBytes:
		bx, _ := x.Bytes()
		by, _ := y.Bytes()
		return string(bx) == string(by), nil
	case shape.KindOpaque:
		return reflect.DeepEqual(x.Interface(), y.Interface()), nil
	}
	vx, err := x.Scalar()
	if err != nil {
		return false, err
	}
	vy, err := y.Scalar()
	if err != nil {
		return false, err
	}
	return vx == vy, nil
}
