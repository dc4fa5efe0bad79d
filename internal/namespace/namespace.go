// Package namespace maps CURIE prefixes to namespace IRIs.
package namespace

import (
	"sort"
	"strings"
	"sync"
)

// Well-known namespaces.
const (
	RDF    = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	RDFS   = "http://www.w3.org/2000/01/rdf-schema#"
	OWL    = "http://www.w3.org/2002/07/owl#"
	XSD    = "http://www.w3.org/2001/XMLSchema#"
	DC     = "http://purl.org/dc/terms/"
	SKOS   = "http://www.w3.org/2004/02/skos/core#"
	FOAF   = "http://xmlns.com/foaf/0.1/"
	Geo    = "http://www.w3.org/2003/01/geo/wgs84_pos#"
	DBPOnt = "http://dbpedia.org/ontology/"
	Schema = "http://schema.org/"
)

// Prefixes resolves CURIEs such as "rdfs:comment". It is safe for concurrent use.
type Prefixes struct {
	mu       sync.RWMutex
	prefixes map[string]string
}

// New returns a prefix table seeded with the well-known namespaces.
func New() *Prefixes {
	return &Prefixes{
		prefixes: map[string]string{
			"rdf":     RDF,
			"rdfs":    RDFS,
			"owl":     OWL,
			"xsd":     XSD,
			"dc":      DC,
			"skos":    SKOS,
			"foaf":    FOAF,
			"geo":     Geo,
			"dbp-ont": DBPOnt,
			"schema":  Schema,
		},
	}
}

// Set adds or replaces a prefix mapping.
func (p *Prefixes) Set(prefix, iri string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prefixes[prefix] = iri
}

// Namespace returns the IRI bound to prefix.
func (p *Prefixes) Namespace(prefix string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	iri, ok := p.prefixes[prefix]
	return iri, ok
}

// Expand turns a CURIE into a full IRI. Values that are already absolute IRIs,
// or whose prefix is unknown, are returned unchanged.
func (p *Prefixes) Expand(curie string) string {
	if p == nil || IsIRI(curie) {
		return curie
	}
	idx := strings.IndexByte(curie, ':')
	if idx <= 0 {
		return curie
	}
	if iri, ok := p.Namespace(curie[:idx]); ok {
		return iri + curie[idx+1:]
	}
	return curie
}

// Compact returns the shortest CURIE for iri, or iri when no prefix matches.
func (p *Prefixes) Compact(iri string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	best, bestNS := "", ""
	for prefix, ns := range p.prefixes {
		if strings.HasPrefix(iri, ns) && len(ns) > len(bestNS) {
			best, bestNS = prefix, ns
		}
	}
	if best == "" {
		return iri
	}
	return best + ":" + iri[len(bestNS):]
}

// List returns the known prefixes in alphabetical order.
func (p *Prefixes) List() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.prefixes))
	for prefix := range p.prefixes {
		out = append(out, prefix)
	}
	sort.Strings(out)
	return out
}

// IsIRI reports whether s looks like an absolute IRI.
func IsIRI(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "urn:")
}
