// Package yaml reads and writes YAML documents through facet shapes.
//
// Decoding parses with gopkg.in/yaml.v3 into a node tree and replays it as
// driver verbs, steering scalar conversion by the shape the writer expects.
// Encoding walks a Peek and builds the node tree back.
//
// Enums use the externally tagged form: a unit variant is its name, any
// other variant a single-entry mapping from its name to its payload.
//
//	circle:
//	  Circle:
//	    radius: 1.5
//	empty: Empty
package yaml
