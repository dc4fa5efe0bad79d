// Package ldpath parses the subset of LDPath programs used for dereferencing:
// prefix declarations and single-hop field mappings.
//
//	@prefix ex : <http://example.org/> ;
//	label = rdfs:label ;
//	lat = geo:lat :: xsd:double ;
package ldpath

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MrSnakeDoc/derefd/internal/namespace"
)

var (
	ErrSyntax      = errors.New("ldpath: syntax error")
	ErrUnsupported = errors.New("ldpath: unsupported path expression")
)

// Mapping copies the values of Path into the result field Name.
type Mapping struct {
	Name string
	Path string
	Type string
}

// Program is a parsed LDPath program.
type Program struct {
	Source   string
	Prefixes map[string]string
	Mappings []Mapping
}

// Parse reads src. An empty or blank program returns (nil, nil).
func Parse(src string) (*Program, error) {
	if strings.TrimSpace(src) == "" {
		return nil, nil
	}

	p := &Program{Source: src, Prefixes: map[string]string{}}
	for i, stmt := range splitStatements(stripComments(src)) {
		if stmt == "" {
			continue
		}
		if strings.HasPrefix(stmt, "@prefix") {
			if err := p.parsePrefix(stmt); err != nil {
				return nil, fmt.Errorf("statement %d: %w", i+1, err)
			}
			continue
		}
		m, err := parseMapping(stmt)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i+1, err)
		}
		p.Mappings = append(p.Mappings, m)
	}
	if len(p.Mappings) == 0 {
		return nil, fmt.Errorf("%w: program declares no field mappings", ErrSyntax)
	}
	return p, nil
}

func (p *Program) parsePrefix(stmt string) error {
	rest := strings.TrimSpace(strings.TrimPrefix(stmt, "@prefix"))
	name, iri, ok := strings.Cut(rest, ":")
	if !ok {
		return fmt.Errorf("%w: malformed prefix %q", ErrSyntax, stmt)
	}
	name = strings.TrimSpace(name)
	iri = strings.TrimSpace(iri)
	if name == "" || !isBracketed(iri) {
		return fmt.Errorf("%w: malformed prefix %q", ErrSyntax, stmt)
	}
	p.Prefixes[name] = iri[1 : len(iri)-1]
	return nil
}

func parseMapping(stmt string) (Mapping, error) {
	name, expr, ok := strings.Cut(stmt, "=")
	if !ok {
		return Mapping{}, fmt.Errorf("%w: expected 'name = path' in %q", ErrSyntax, stmt)
	}
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, " \t") {
		return Mapping{}, fmt.Errorf("%w: invalid field name %q", ErrSyntax, name)
	}

	path, typ, _ := strings.Cut(expr, "::")
	path = strings.TrimSpace(path)
	typ = strings.TrimSpace(typ)
	if path == "" {
		return Mapping{}, fmt.Errorf("%w: empty path for %q", ErrSyntax, name)
	}
	if !isBracketed(path) && strings.ContainsAny(path, "/|&[]() ") {
		return Mapping{}, fmt.Errorf("%w: %q", ErrUnsupported, path)
	}
	if isBracketed(path) {
		path = path[1 : len(path)-1]
	}
	return Mapping{Name: name, Path: path, Type: typ}, nil
}

// Resolve returns the mapping path expanded with the program's own prefixes
// first and then ns.
func (p *Program) Resolve(curie string, ns *namespace.Prefixes) string {
	if namespace.IsIRI(curie) {
		return curie
	}
	if prefix, local, ok := strings.Cut(curie, ":"); ok {
		if iri, found := p.Prefixes[prefix]; found {
			return iri + local
		}
	}
	return ns.Expand(curie)
}

// SourceFields returns the distinct field IRIs the program reads.
func (p *Program) SourceFields(ns *namespace.Prefixes) []string {
	seen := make(map[string]bool, len(p.Mappings))
	out := make([]string, 0, len(p.Mappings))
	for _, m := range p.Mappings {
		f := p.Resolve(m.Path, ns)
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// Apply evaluates the program against the fields of one entity.
func (p *Program) Apply(fields map[string][]string, ns *namespace.Prefixes) map[string][]string {
	out := make(map[string][]string, len(p.Mappings))
	for _, m := range p.Mappings {
		values := fields[p.Resolve(m.Path, ns)]
		if len(values) == 0 {
			continue
		}
		out[m.Name] = append(out[m.Name], values...)
	}
	return out
}

func isBracketed(s string) bool {
	return len(s) >= 2 && s[0] == '<' && s[len(s)-1] == '>'
}

// splitStatements splits on ';' outside of <...> IRIs.
func splitStatements(src string) []string {
	var (
		out     []string
		cur     strings.Builder
		inAngle bool
	)
	for _, r := range src {
		switch {
		case r == '<':
			inAngle = true
		case r == '>':
			inAngle = false
		case r == ';' && !inAngle:
			out = append(out, strings.TrimSpace(cur.String()))
			cur.Reset()
			continue
		}
		cur.WriteRune(r)
	}
	if rest := strings.TrimSpace(cur.String()); rest != "" {
		out = append(out, rest)
	}
	return out
}

// stripComments drops "/* ... */" blocks and "#" line comments.
func stripComments(src string) string {
	for {
		start := strings.Index(src, "/*")
		if start < 0 {
			break
		}
		end := strings.Index(src[start+2:], "*/")
		if end < 0 {
			src = src[:start]
			break
		}
		src = src[:start] + src[start+2+end+2:]
	}

	lines := strings.Split(src, "\n")
	for i, line := range lines {
		if idx := strings.Index(line, "#"); idx >= 0 && !strings.Contains(line[:idx], "<") {
			lines[i] = line[:idx]
		}
	}
	return strings.Join(lines, "\n")
}
