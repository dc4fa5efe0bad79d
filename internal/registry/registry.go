// Package registry is an in-process service registry.
//
// Services are published under one or more capabilities together with a
// metadata map. Consumers either look services up by capability or open a
// Watch that reports matching services as they come and go.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PropertyServiceRanking is the metadata key holding a registration's ranking.
// Higher rankings sort first in Lookup and in watch snapshots.
const PropertyServiceRanking = "service.ranking"

var (
	ErrNoCapabilities = errors.New("registry: at least one capability is required")
	ErrNilService     = errors.New("registry: service must not be nil")
	ErrNotRegistered  = errors.New("registry: registration is not active")
)

// Capability names an interface a service is published under.
type Capability string

// Metadata is the property map attached to a registration.
type Metadata map[string]any

// Clone returns a shallow copy of m.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return Metadata{}
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// String returns the value of key as a string, or "" when absent.
func (m Metadata) String(key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Ranking returns the service ranking stored in m. Non-integer values count as 0.
func (m Metadata) Ranking() int {
	switch v := m[PropertyServiceRanking].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	default:
		return 0
	}
}

// Registration is the handle returned by Register.
type Registration struct {
	id           string
	seq          uint64
	capabilities []Capability
	service      any
	registeredAt time.Time

	registry *Registry

	// guarded by registry.mu
	metadata Metadata
	active   bool
}

func (r *Registration) ID() string                 { return r.id }
func (r *Registration) Service() any               { return r.service }
func (r *Registration) RegisteredAt() time.Time    { return r.registeredAt }
func (r *Registration) Capabilities() []Capability { return append([]Capability(nil), r.capabilities...) }
func (r *Registration) Unregister() error          { return r.registry.Unregister(r) }

func (r *Registration) HasCapability(c Capability) bool {
	for _, have := range r.capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// Metadata returns a copy of the current metadata.
func (r *Registration) Metadata() Metadata {
	r.registry.mu.RLock()
	defer r.registry.mu.RUnlock()
	return r.metadata.Clone()
}

// Ranking returns the current service ranking.
func (r *Registration) Ranking() int {
	r.registry.mu.RLock()
	defer r.registry.mu.RUnlock()
	return r.metadata.Ranking()
}

// Active reports whether the registration is still published.
func (r *Registration) Active() bool {
	r.registry.mu.RLock()
	defer r.registry.mu.RUnlock()
	return r.active
}

// Registry holds published services.
type Registry struct {
	mu            sync.RWMutex
	seq           uint64
	registrations map[string]*Registration
	watches       map[*Watch]struct{}
	subscribers   map[*subscriber]struct{}
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		registrations: make(map[string]*Registration),
		watches:       make(map[*Watch]struct{}),
		subscribers:   make(map[*subscriber]struct{}),
	}
}

// Register publishes svc under caps with a copy of md.
func (r *Registry) Register(caps []Capability, svc any, md Metadata) (*Registration, error) {
	if len(caps) == 0 {
		return nil, ErrNoCapabilities
	}
	if svc == nil {
		return nil, ErrNilService
	}

	r.mu.Lock()
	r.seq++
	reg := &Registration{
		id:           uuid.NewString(),
		seq:          r.seq,
		capabilities: append([]Capability(nil), caps...),
		service:      svc,
		registeredAt: time.Now(),
		registry:     r,
		metadata:     md.Clone(),
		active:       true,
	}
	r.registrations[reg.id] = reg
	pending := r.emitLocked(Event{Type: EventRegistered, Registration: reg})
	r.mu.Unlock()

	drain(pending)
	return reg, nil
}

// Unregister withdraws reg. It returns ErrNotRegistered when reg is already gone.
func (r *Registry) Unregister(reg *Registration) error {
	if reg == nil || reg.registry != r {
		return ErrNotRegistered
	}

	r.mu.Lock()
	if !reg.active {
		r.mu.Unlock()
		return ErrNotRegistered
	}
	reg.active = false
	delete(r.registrations, reg.id)
	pending := r.emitLocked(Event{Type: EventUnregistered, Registration: reg})
	r.mu.Unlock()

	drain(pending)
	return nil
}

// SetMetadata replaces the metadata of reg and notifies watchers.
func (r *Registry) SetMetadata(reg *Registration, md Metadata) error {
	if reg == nil || reg.registry != r {
		return ErrNotRegistered
	}

	r.mu.Lock()
	if !reg.active {
		r.mu.Unlock()
		return ErrNotRegistered
	}
	reg.metadata = md.Clone()
	pending := r.emitLocked(Event{Type: EventModified, Registration: reg})
	r.mu.Unlock()

	drain(pending)
	return nil
}

// Lookup returns the active registrations providing c, best ranked first.
func (r *Registry) Lookup(c Capability) []*Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Registration, 0)
	for _, reg := range r.registrations {
		if reg.HasCapability(c) {
			out = append(out, reg)
		}
	}
	sortLocked(out)
	return out
}

// Count returns the number of active registrations.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.registrations)
}

// sortLocked orders by ranking desc, then registration order. Caller holds mu.
func sortLocked(regs []*Registration) {
	sort.SliceStable(regs, func(i, j int) bool {
		ri, rj := regs[i].metadata.Ranking(), regs[j].metadata.Ranking()
		if ri != rj {
			return ri > rj
		}
		return regs[i].seq < regs[j].seq
	})
}

// emitLocked queues ev on every interested watch and subscriber and returns
// the watches that need draining once mu is released.
func (r *Registry) emitLocked(ev Event) []*Watch {
	for s := range r.subscribers {
		s.send(ev)
	}

	var pending []*Watch
	for w := range r.watches {
		if !ev.Registration.HasCapability(w.capability) {
			continue
		}
		if w.enqueue(ev) {
			pending = append(pending, w)
		}
	}
	return pending
}

func drain(watches []*Watch) {
	for _, w := range watches {
		w.drain()
	}
}
