package derive

import (
	"reflect"
	"strings"

	"github.com/ldubos/facet/errors"
)

const tagKey = "facet"

// tag is the parsed form of a `facet:"..."` struct tag.
type tag struct {
	Attrs       map[string]string
	Name        string
	Variant     string
	RenameAll   string
	Skip        bool
	Optional    bool
	Default     bool
	Sensitive   bool
	Char        bool
	Tag         bool
	Transparent bool
}

// parseTag reads the facet tag of a struct field, falling back to the name
// part of a json tag.
func parseTag(f reflect.StructField, path []string) (tag, error) {
	var t tag

	raw, ok := f.Tag.Lookup(tagKey)
	if !ok {
		if js, ok := f.Tag.Lookup("json"); ok {
			name, _, _ := strings.Cut(js, ",")
			if name == "-" {
				t.Skip = true
			} else {
				t.Name = name
			}
		}
		return t, nil
	}

	raw = strings.TrimSpace(raw)
	if raw == "-" {
		t.Skip = true
		return t, nil
	}

	elements := strings.Split(raw, ",")
	t.Name = strings.TrimSpace(elements[0])

	for _, option := range elements[1:] {
		option = strings.TrimSpace(option)
		switch option {
		case "":
		case "optional":
			t.Optional = true
		case "default":
			t.Default = true
		case "sensitive":
			t.Sensitive = true
		case "char":
			t.Char = true
		case "tag":
			t.Tag = true
		case "transparent":
			t.Transparent = true
		default:
			if key, value, ok := strings.Cut(option, "="); ok {
				switch key {
				case "variant":
					t.Variant = value
					continue
				case "rename_all":
					t.RenameAll = value
					continue
				}
			}
			if key, value, ok := strings.Cut(option, ":"); ok {
				if t.Attrs == nil {
					t.Attrs = make(map[string]string)
				}
				t.Attrs[strings.ToLower(key)] = value
				continue
			}
			return t, errors.New(errors.PhaseDerive, errors.KindInvalidShape).
				Path(sub(path, f.Name)...).
				Detail("unknown tag option %q", option).
				Build()
		}
	}

	// `facet:"rename_all=camelCase"` with no name part
	if strings.HasPrefix(t.Name, "rename_all=") {
		t.RenameAll = strings.TrimPrefix(t.Name, "rename_all=")
		t.Name = ""
	}
	if t.Name == "transparent" && f.Name == "_" {
		t.Transparent = true
		t.Name = ""
	}

	return t, nil
}
