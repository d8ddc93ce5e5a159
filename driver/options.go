package driver

// DefaultMaxDepth bounds nesting for both Writer and Walk.
const DefaultMaxDepth = 1024

// Options configure a Writer or a Walk.
type Options struct {
	// MaxDepth is the deepest nesting accepted. Zero means DefaultMaxDepth.
	MaxDepth int

	// IgnoreUnknownFields makes Writer.Field consume and discard the value
	// of a field the target struct does not have instead of failing.
	IgnoreUnknownFields bool

	// OmitNone makes Walk skip struct fields whose option value is None.
	OmitNone bool
}

// DefaultOptions returns strict options with the default depth limit.
func DefaultOptions() Options {
	return Options{MaxDepth: DefaultMaxDepth}
}

func (o Options) maxDepth() int {
	if o.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return o.MaxDepth
}
