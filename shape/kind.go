package shape

import "strconv"

// Kind is the closed structural tag of a Shape.
type Kind uint8

const (
	KindBool Kind = iota
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindInt
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindUint
	KindUintptr
	KindFloat32
	KindFloat64
	KindChar
	KindString
	KindBytes
	KindOpaque
	KindStruct
	KindTuple
	KindEnum
	KindSeq
	KindMap
	KindOption
	KindWrapper
)

var kindNames = [...]string{
	KindBool:    "bool",
	KindInt8:    "int8",
	KindInt16:   "int16",
	KindInt32:   "int32",
	KindInt64:   "int64",
	KindInt:     "int",
	KindUint8:   "uint8",
	KindUint16:  "uint16",
	KindUint32:  "uint32",
	KindUint64:  "uint64",
	KindUint:    "uint",
	KindUintptr: "uintptr",
	KindFloat32: "float32",
	KindFloat64: "float64",
	KindChar:    "char",
	KindString:  "string",
	KindBytes:   "bytes",
	KindOpaque:  "opaque",
	KindStruct:  "struct",
	KindTuple:   "tuple",
	KindEnum:    "enum",
	KindSeq:     "seq",
	KindMap:     "map",
	KindOption:  "option",
	KindWrapper: "wrapper",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// IsScalar reports whether values of this kind are written in one step.
func (k Kind) IsScalar() bool {
	return k <= KindOpaque
}

func (k Kind) IsSigned() bool {
	return k >= KindInt8 && k <= KindInt
}

func (k Kind) IsUnsigned() bool {
	return k >= KindUint8 && k <= KindUintptr
}

func (k Kind) IsInteger() bool {
	return k.IsSigned() || k.IsUnsigned()
}

func (k Kind) IsFloat() bool {
	return k == KindFloat32 || k == KindFloat64
}

// HasFields reports whether the kind is built field by field.
func (k Kind) HasFields() bool {
	return k == KindStruct || k == KindTuple
}

// Bits returns the storage width of numeric kinds, 0 otherwise.
func (k Kind) Bits() int {
	switch k {
	case KindBool, KindInt8, KindUint8:
		return 8
	case KindInt16, KindUint16:
		return 16
	case KindInt32, KindUint32, KindFloat32, KindChar:
		return 32
	case KindInt64, KindUint64, KindFloat64:
		return 64
	case KindInt, KindUint, KindUintptr:
		return strconv.IntSize
	default:
		return 0
	}
}
