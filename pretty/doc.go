// Package pretty formats facet values for people: type names, one field
// per line, and sensitive fields redacted. Output is styled with lipgloss
// when color is enabled.
package pretty
