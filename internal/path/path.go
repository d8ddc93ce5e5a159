// Package path tracks the location of a Peek or builder inside the root value.
//
// A Path is an immutable linked list of segments so that descending into a
// child never copies the parent's path; it is only flattened when an error
// is rendered.
package path

import "strconv"

// Path is the location of a sub-value. The zero value is the root.
type Path struct {
	node *node
}

type node struct {
	parent *node
	seg    string
	depth  int
}

// Root is the empty path.
var Root = Path{}

// Field appends a named field segment.
func (p Path) Field(name string) Path {
	return p.push(name)
}

// Index appends an element segment rendered as "[i]".
func (p Path) Index(i int) Path {
	return p.push("[" + strconv.Itoa(i) + "]")
}

// Key appends a map key segment rendered as "[key]".
func (p Path) Key(key string) Path {
	return p.push("[" + strconv.Quote(key) + "]")
}

// Variant appends an enum variant segment rendered as "::name".
func (p Path) Variant(name string) Path {
	return p.push("::" + name)
}

func (p Path) push(seg string) Path {
	d := 1
	if p.node != nil {
		d = p.node.depth + 1
	}
	return Path{node: &node{parent: p.node, seg: seg, depth: d}}
}

// Depth returns the number of segments.
func (p Path) Depth() int {
	if p.node == nil {
		return 0
	}
	return p.node.depth
}

// Last returns the final segment, or "" at the root.
func (p Path) Last() string {
	if p.node == nil {
		return ""
	}
	return p.node.seg
}

// Segments flattens the path, root first.
func (p Path) Segments() []string {
	if p.node == nil {
		return nil
	}
	out := make([]string, p.node.depth)
	for n := p.node; n != nil; n = n.parent {
		out[n.depth-1] = n.seg
	}
	return out
}

// Child returns the segments of p with extra appended, without extending p.
func (p Path) Child(extra string) []string {
	return append(p.Segments(), extra)
}

// String renders the path the same way errors do.
func (p Path) String() string {
	segs := p.Segments()
	if len(segs) == 0 {
		return "$"
	}
	n := 0
	for _, s := range segs {
		n += len(s) + 1
	}
	buf := make([]byte, 0, n)
	for i, s := range segs {
		if i > 0 && s[0] != '[' && s[0] != ':' {
			buf = append(buf, '.')
		}
		buf = append(buf, s...)
	}
	return string(buf)
}
