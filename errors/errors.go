package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseDerive Phase = "derive" // shape generation
	PhasePeek   Phase = "peek"   // read-only traversal
	PhaseBuild  Phase = "build"  // partial construction
	PhaseDrive  Phase = "drive"  // driver verb dispatch
	PhaseEncode Phase = "encode" // value to format
	PhaseDecode Phase = "decode" // format to value
)

// Kind categorizes the error
type Kind string

const (
	KindTypeMismatch     Kind = "type_mismatch"
	KindNoSuchField      Kind = "no_such_field"
	KindIndexOutOfRange  Kind = "index_out_of_range"
	KindNoSuchVariant    Kind = "no_such_variant"
	KindShapeMismatch    Kind = "shape_mismatch"
	KindIncompleteValue  Kind = "incomplete_value"
	KindAllocation       Kind = "allocation"
	KindOverflow         Kind = "overflow"
	KindDuplicateKey     Kind = "duplicate_key"
	KindInvalidState     Kind = "invalid_state"
	KindDepthExceeded    Kind = "depth_exceeded"
	KindInvalidData      Kind = "invalid_data"
	KindUnsupported      Kind = "unsupported"
	KindInvalidShape     Kind = "invalid_shape"
	KindNilPointer       Kind = "nil_pointer"
	KindUnexpectedEOF    Kind = "unexpected_eof"
	KindTrailingContents Kind = "trailing_contents"
)

// Error is the structured error type used throughout the module
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	Expected string // shape or kind the operation required
	Found    string // shape, kind or Go type it got
	Detail   string
	Location string // set by codecs, e.g. "line 3, column 7"
	Path     []string
	Missing  []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(JoinPath(e.Path))
	}

	if e.Location != "" {
		b.WriteString(" (")
		b.WriteString(e.Location)
		b.WriteByte(')')
	}

	hasTypes := e.Expected != "" || e.Found != ""
	if hasTypes {
		b.WriteString(": ")
		switch {
		case e.Expected != "" && e.Found != "":
			b.WriteString("expected ")
			b.WriteString(e.Expected)
			b.WriteString(", found ")
			b.WriteString(e.Found)
		case e.Expected != "":
			b.WriteString("expected ")
			b.WriteString(e.Expected)
		default:
			b.WriteString("found ")
			b.WriteString(e.Found)
		}
	}

	if len(e.Missing) > 0 {
		if hasTypes {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString("missing ")
		b.WriteString(strings.Join(e.Missing, ", "))
		hasTypes = true
	}

	if e.Detail != "" {
		if hasTypes {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// An empty Phase in target matches any phase.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return (t.Phase == "" || e.Phase == t.Phase) && e.Kind == t.Kind
	}
	return false
}

// JoinPath renders path segments, attaching index ("[3]") and variant
// ("::Circle") segments to the segment before them.
func JoinPath(path []string) string {
	var b strings.Builder
	for i, seg := range path {
		if i > 0 && !strings.HasPrefix(seg, "[") && !strings.HasPrefix(seg, "::") {
			b.WriteByte('.')
		}
		b.WriteString(seg)
	}
	return b.String()
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Expected sets the required shape or kind
func (b *Builder) Expected(s string) *Builder {
	b.err.Expected = s
	return b
}

// Found sets the shape, kind or Go type that was supplied
func (b *Builder) Found(s string) *Builder {
	b.err.Found = s
	return b
}

// Missing sets the names of uninitialized sub-regions
func (b *Builder) Missing(names ...string) *Builder {
	b.err.Missing = names
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Location sets a codec-specific source position
func (b *Builder) Location(loc string) *Builder {
	b.err.Location = loc
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, expected, found string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindTypeMismatch,
		Path:     path,
		Expected: expected,
		Found:    found,
	}
}

// ShapeMismatch creates an error for an operation issued against the wrong kind of shape
func ShapeMismatch(phase Phase, path []string, expected, found string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindShapeMismatch,
		Path:     path,
		Expected: expected,
		Found:    found,
	}
}

// NoSuchField creates an unknown field error
func NoSuchField(phase Phase, path []string, shapeName, field string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNoSuchField,
		Path:   path,
		Found:  shapeName,
		Detail: fmt.Sprintf("no field %q", field),
		Value:  field,
	}
}

// IndexOutOfRange creates an out of range error
func IndexOutOfRange(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindIndexOutOfRange,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of range (length %d)", index, length),
		Value:  index,
	}
}

// NoSuchVariant creates an unknown variant error
func NoSuchVariant(phase Phase, path []string, shapeName, tag string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNoSuchVariant,
		Path:   path,
		Found:  shapeName,
		Detail: fmt.Sprintf("no variant %q", tag),
		Value:  tag,
	}
}

// IncompleteValue creates an error naming the uninitialized sub-regions
func IncompleteValue(phase Phase, path []string, shapeName string, missing []string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindIncompleteValue,
		Path:     path,
		Expected: shapeName,
		Missing:  missing,
	}
}

// AllocationFailed creates a resource error for growth beyond a limit
func AllocationFailed(phase Phase, path []string, requested, limit int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Path:   path,
		Detail: fmt.Sprintf("cannot grow to %d elements (limit %d)", requested, limit),
		Value:  requested,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, target string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindOverflow,
		Path:     path,
		Expected: target,
		Detail:   fmt.Sprintf("value %v overflows %s", value, target),
		Value:    value,
	}
}

// InvalidState creates an error for a builder used out of order
func InvalidState(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidState,
		Path:   path,
		Detail: detail,
	}
}

// DepthExceeded creates an error for traversal past the configured depth
func DepthExceeded(phase Phase, path []string, limit int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindDepthExceeded,
		Path:   path,
		Detail: fmt.Sprintf("nesting deeper than %d", limit),
		Value:  limit,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// WithLocation returns err annotated with a source location.
// Errors that are not *Error are wrapped as invalid data.
func WithLocation(err error, loc string) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		cp := *e
		cp.Location = loc
		return &cp
	}
	return &Error{
		Phase:    PhaseDecode,
		Kind:     KindInvalidData,
		Cause:    err,
		Location: loc,
	}
}
