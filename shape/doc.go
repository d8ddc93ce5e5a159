// Package shape defines the type descriptors the reflection engine consumes.
//
// A Shape describes one Go type: its size and alignment, a closed structural
// Kind, the byte offsets of its sub-values and the operations a builder needs
// to construct and tear down values of it. Kind-specific behaviour lives in
// optional operation tables (SeqOps, MapOps, OptionOps, EnumOps, WrapperOps)
// so that readers and builders dispatch on Kind and never on concrete Go types.
//
// Shapes are normally produced by the derive package, but any Shape that
// passes Validate is accepted by peek, poke and driver.
package shape
