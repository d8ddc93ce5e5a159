// Package jsonschema generates JSON Schema (draft 2020-12) documents from
// shapes, describing the documents the facet codecs read and write.
//
// Structs and enums are emitted once under $defs and referenced with $ref,
// which also covers recursive types. Struct fields carry their doc tag as a
// description and the format, pattern, minlength, maxlength, minimum and
// maximum attributes of their facet tag:
//
//	Host string `facet:"host,format:hostname,minlength:1" doc:"DNS name"`
package jsonschema
