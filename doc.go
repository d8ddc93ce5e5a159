// Package facet reads and writes Go values of any type through shape
// descriptors, so format codecs never need the concrete type at the call
// site.
//
// # Architecture Overview
//
// The module is organized into packages with distinct responsibilities:
//
//	facet/               Root package with ShapeOf, PeekOf, Build and Into
//	├── shape/           Shape descriptors: kinds, fields, variants, ops
//	├── derive/          Shapes derived from Go types via reflection
//	├── peek/            Read-only views over initialized values
//	├── poke/            Incremental builders with teardown on abandonment
//	├── driver/          Verb protocol between codecs and peek/poke
//	├── errors/          Structured error types with paths
//	├── pretty/          Human-readable dumps
//	└── codec/           yaml, msgpack, cty, jsonschema and canon codecs
//
// # Quick Start
//
// Read a value:
//
//	p, err := facet.PeekOf(&cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	host, _ := p.FieldByName("host")
//
// Build one field by field:
//
//	b, err := facet.Build[Point]()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Abandon()
//
//	x, _ := b.FieldByName("x")
//	_ = x.Set(1)
//	_ = x.End()
//	...
//	v, err := b.Finish()
//	pt, _ := poke.As[Point](v)
//
// # Error Handling
//
// Errors are *errors.Error values carrying a phase, a kind and the path of
// the failing value:
//
//	var ferr *errors.Error
//	if errors.As(err, &ferr) {
//	    fmt.Println(ferr.Kind, ferr.Path)
//	}
package facet
