package dereference

import (
	"fmt"
	"strings"

	"github.com/MrSnakeDoc/derefd/internal/ldpath"
)

// Configuration keys shared by every dereference engine.
const (
	PropertyFields = "enhancer.engines.dereference.fields"
	PropertyLDPath = "enhancer.engines.dereference.ldpath"
)

// ParseFieldsConfig reads the dereferenced fields. v may be a comma separated
// string or a list; nil yields an empty list.
func ParseFieldsConfig(v any) ([]string, error) {
	var raw []string
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		raw = strings.Split(t, ",")
	case []string:
		raw = t
	case []any:
		raw = make([]string, 0, len(t))
		for i, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d]: expected string, got %T", PropertyFields, i, item)
			}
			raw = append(raw, s)
		}
	default:
		return nil, fmt.Errorf("%s: unsupported type %T", PropertyFields, v)
	}

	out := make([]string, 0, len(raw))
	for _, f := range raw {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out, nil
}

// ParseLDPathConfig reads the LDPath program. v may be a string or a list of
// lines. A missing or blank program yields nil.
func ParseLDPathConfig(v any) (*ldpath.Program, error) {
	var src string
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		src = t
	case []string:
		src = strings.Join(t, "\n")
	case []any:
		lines := make([]string, 0, len(t))
		for i, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d]: expected string, got %T", PropertyLDPath, i, item)
			}
			lines = append(lines, s)
		}
		src = strings.Join(lines, "\n")
	default:
		return nil, fmt.Errorf("%s: unsupported type %T", PropertyLDPath, v)
	}

	program, err := ldpath.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", PropertyLDPath, err)
	}
	return program, nil
}
