// Package cty converts between facet values and github.com/zclconf/go-cty
// values, the dynamic values HCL configuration is evaluated into.
//
// Structs are objects, sequences lists, tuples tuples, string-keyed maps
// maps, options null or their payload, and bytes base64 strings. A unit
// variant is its name; any other variant a one-attribute object from its
// name to its payload.
package cty
