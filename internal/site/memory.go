package site

import (
	"context"
	"sync"
)

// MemorySite keeps entities in process memory.
type MemorySite struct {
	id string

	mu       sync.RWMutex
	entities map[string]map[string][]string
}

func NewMemorySite(id string, entities map[string]map[string][]string) *MemorySite {
	s := &MemorySite{id: id, entities: make(map[string]map[string][]string, len(entities))}
	for uri, fields := range entities {
		s.Put(uri, fields)
	}
	return s
}

func (s *MemorySite) ID() string { return s.id }

// Put replaces the fields stored for uri.
func (s *MemorySite) Put(uri string, fields map[string][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[uri] = selectFields(fields, nil)
}

// Len returns the number of stored entities.
func (s *MemorySite) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

func (s *MemorySite) Lookup(ctx context.Context, uri string, fields []string) (*Representation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all, ok := s.entities[uri]
	if !ok {
		return nil, ErrEntityNotFound
	}
	return &Representation{ID: uri, Site: s.id, Fields: selectFields(all, fields)}, nil
}
