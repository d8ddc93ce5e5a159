// Package msgpack encodes and decodes MessagePack through facet shapes,
// using github.com/vmihailenco/msgpack/v5 for the wire format.
//
// Structs are maps keyed by field name, sequences and tuples are arrays,
// options are nil or their payload. A unit variant is its name; any other
// variant is a one-entry map from its name to its payload. Integers are
// written in their most compact form.
package msgpack
