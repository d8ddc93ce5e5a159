// Package derive builds shape.Shape descriptors from Go types by reflection.
//
// Mapping:
//
//	bool, ints, uints, floats, string   scalar kinds
//	[]byte                              bytes
//	struct                              struct (exported fields, embedded structs flattened)
//	[N]T                                tuple with fields "0".."N-1"
//	[]T                                 sequence
//	map[K]V                             map, iterated in sorted key order
//	*T                                  option (the field is optional)
//	encoding.TextMarshaler types        wrapper over string
//	interface, func, chan, complex      opaque
//
// Struct fields are configured with `facet:"name,opt,opt,..."` tags:
//
//	optional      may be left unset when building
//	default       left unset, filled by SetDefault or the zero value
//	sensitive     redacted by human-readable printers
//	char          int32 field holding a Unicode scalar value
//	key:value     free-form attribute (format:email, minimum:0, ...)
//	-             skip the field
//
// A blank field carries struct-level options:
//
//	_ struct{} `facet:"rename_all=camelCase"`
//	_ struct{} `facet:"transparent"`
//
// Tagged unions are described by the Enum interface; integer enums are
// declared with RegisterEnum, or RegisterEnumValues when their values are
// not 0..n-1.
//
// Shapes are cached per type. Derivation is safe for concurrent use.
package derive
