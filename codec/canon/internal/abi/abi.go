// Package abi holds the arithmetic and scalar rules of the Canonical ABI
// shared by lowering, lifting and layout.
package abi

import "math"

const (
	CanonicalNaN32 = 0x7fc00000
	CanonicalNaN64 = 0x7ff8000000000000
)

const (
	MaxStringSize = 1 << 30
	MaxListLength = 1 << 27
)

// AlignTo rounds offset up to a multiple of align, a power of two.
func AlignTo(offset, align uint32) uint32 {
	if align == 0 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}

func SafeMulU32(a, b uint32) (uint32, bool) {
	if b != 0 && a > math.MaxUint32/b {
		return 0, false
	}
	return a * b, true
}

func SafeAddU32(a, b uint32) (uint32, bool) {
	if a > math.MaxUint32-b {
		return 0, false
	}
	return a + b, true
}

// DiscriminantSize is 1 byte for up to 256 cases, 2 for up to 65536,
// and 4 beyond.
func DiscriminantSize(numCases int) uint32 {
	switch {
	case numCases <= 1<<8:
		return 1
	case numCases <= 1<<16:
		return 2
	}
	return 4
}

func CanonicalizeF32(f float32) float32 {
	if f != f {
		return math.Float32frombits(CanonicalNaN32)
	}
	return f
}

func CanonicalizeF64(f float64) float64 {
	if f != f {
		return math.Float64frombits(CanonicalNaN64)
	}
	return f
}

// ValidChar reports whether r is a Unicode scalar value: not a surrogate
// and below 0x110000.
func ValidChar(r uint32) bool {
	return r < 0xD800 || (r > 0xDFFF && r < 0x110000)
}
