package derive

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// RenameRule rewrites Go field names into their external spelling.
type RenameRule string

const (
	RenamePassthrough        RenameRule = ""
	RenameLowercase          RenameRule = "lowercase"
	RenameUppercase          RenameRule = "UPPERCASE"
	RenamePascalCase         RenameRule = "PascalCase"
	RenameCamelCase          RenameRule = "camelCase"
	RenameSnakeCase          RenameRule = "snake_case"
	RenameScreamingSnakeCase RenameRule = "SCREAMING_SNAKE_CASE"
	RenameKebabCase          RenameRule = "kebab-case"
	RenameScreamingKebabCase RenameRule = "SCREAMING-KEBAB-CASE"
)

// Casers are stateful, so each call gets its own.
func lower(s string) string { return cases.Lower(language.Und).String(s) }
func upper(s string) string { return cases.Upper(language.Und).String(s) }
func title(s string) string { return cases.Title(language.Und).String(s) }

// ParseRenameRule returns the rule with the given name.
func ParseRenameRule(s string) (RenameRule, bool) {
	switch r := RenameRule(s); r {
	case RenamePassthrough, RenameLowercase, RenameUppercase, RenamePascalCase, RenameCamelCase,
		RenameSnakeCase, RenameScreamingSnakeCase, RenameKebabCase, RenameScreamingKebabCase:
		return r, true
	}
	return "", false
}

// Apply rewrites name according to the rule.
func (r RenameRule) Apply(name string) string {
	switch r {
	case RenameLowercase:
		return lower(name)
	case RenameUppercase:
		return upper(name)
	case RenamePascalCase:
		return joinWords(splitWords(name), "", title)
	case RenameCamelCase:
		words := splitWords(name)
		if len(words) == 0 {
			return ""
		}
		return lower(words[0]) + joinWords(words[1:], "", title)
	case RenameSnakeCase:
		return joinWords(splitWords(name), "_", lower)
	case RenameScreamingSnakeCase:
		return joinWords(splitWords(name), "_", upper)
	case RenameKebabCase:
		return joinWords(splitWords(name), "-", lower)
	case RenameScreamingKebabCase:
		return joinWords(splitWords(name), "-", upper)
	default:
		return name
	}
}

func joinWords(words []string, sep string, fn func(string) string) string {
	var b strings.Builder
	for i, w := range words {
		if i > 0 {
			b.WriteString(sep)
		}
		b.WriteString(fn(w))
	}
	return b.String()
}

// splitWords breaks an identifier at separators ('_', '-', ' '), at
// lower-to-upper transitions and before the last capital of an acronym
// followed by a lowercase letter ("HTTPServer" -> "HTTP", "Server").
func splitWords(s string) []string {
	var words []string
	runes := []rune(s)
	start := -1

	flush := func(end int) {
		if start >= 0 && end > start {
			words = append(words, string(runes[start:end]))
		}
		start = -1
	}

	for i, r := range runes {
		if r == '_' || r == '-' || r == ' ' {
			flush(i)
			continue
		}
		if start < 0 {
			start = i
			continue
		}
		prev := runes[i-1]
		switch {
		case unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)):
			flush(i)
			start = i
		case unicode.IsUpper(r) && unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1]):
			flush(i)
			start = i
		}
	}
	flush(len(runes))
	return words
}
