// Package errors provides the structured error type shared by every package
// of the module.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type carries the path of the field, index or variant
// where it occurred, the expected and found shape names, and for incomplete
// values the list of missing sub-regions.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseBuild, errors.KindShapeMismatch).
//		Path("line", "from").
//		Expected("struct").
//		Found("int64").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.IncompleteValue(errors.PhaseBuild, path, "Point", []string{"y"})
//	err := errors.IndexOutOfRange(errors.PhasePeek, path, 10, 5)
//
// All errors implement the standard error interface and support errors.Is/As.
// errors.Is matches on (Phase, Kind); a target with an empty Phase matches
// any phase:
//
//	if stderrors.Is(err, &errors.Error{Kind: errors.KindIncompleteValue}) { ... }
package errors
