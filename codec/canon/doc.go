// Package canon lowers facet values into, and lifts them out of, a linear
// memory laid out by the WebAssembly Component Model's Canonical ABI.
//
// TypeOf maps a shape to the WIT type its values take; ToWIT renders the
// matching declarations. Lower and Lift work over any Memory: BufferMemory
// for plain byte slices, LinearMemory for a wazero module's exported
// memory. Strings and lists need an Allocator, either an Arena or a
// guest's cabi_realloc through Realloc.
package canon
