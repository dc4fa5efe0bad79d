package nlp

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// UnknownProbability marks a value whose probability was not computed.
const UnknownProbability = -1.0

var ErrInvalidProbability = errors.New("nlp: probability must be in [0,1] or UnknownProbability")

// Value is one annotated value with its probability.
type Value[T any] struct {
	Value       T
	Probability float64
}

// Annotations holds the annotations of one text span. The zero value is ready
// to use.
type Annotations struct {
	mu     sync.RWMutex
	values map[string][]any
}

// Keys returns the annotation keys present on the span, sorted.
func (s *Annotations) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Add appends v under a.
func Add[T any](s *Annotations, a Annotation[T], v Value[T]) error {
	if v.Probability != UnknownProbability && (v.Probability < 0 || v.Probability > 1) {
		return fmt.Errorf("%w: %v", ErrInvalidProbability, v.Probability)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		s.values = make(map[string][]any)
	}
	s.values[a.Key] = append(s.values[a.Key], v)
	return nil
}

// Get returns the most probable value stored under a.
func Get[T any](s *Annotations, a Annotation[T]) (Value[T], bool) {
	all := GetAll(s, a)
	if len(all) == 0 {
		var zero Value[T]
		return zero, false
	}
	return all[0], true
}

// GetAll returns the values stored under a, most probable first. Values with
// an unknown probability sort last and keep insertion order.
func GetAll[T any](s *Annotations, a Annotation[T]) []Value[T] {
	s.mu.RLock()
	raw := s.values[a.Key]
	out := make([]Value[T], 0, len(raw))
	for _, r := range raw {
		if v, ok := r.(Value[T]); ok {
			out = append(out, v)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Probability > out[j].Probability
	})
	return out
}
