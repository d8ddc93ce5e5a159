// Package peek provides read-only, type-erased views over initialized values.
//
// A Peek pairs a *shape.Shape with a pointer to a value of that shape.
// Accessors dispatch on the shape's Kind, so code that reads values (format
// encoders, printers, comparison helpers) never needs the concrete Go type:
//
//	p := peek.New(shape, unsafe.Pointer(&line))
//	from, _ := p.FieldByName("from")
//	x, _ := from.FieldByName("x")
//	n, _ := x.Int()
//
// Peeks never mutate memory and never own it; many may coexist over one
// value. Walk and Equal traverse on an explicit stack bounded by
// WalkOptions.MaxDepth rather than by the goroutine stack.
package peek
