package registry

import (
	"sync"
	"sync/atomic"
)

// EventType describes a registry change.
type EventType string

const (
	EventRegistered   EventType = "REGISTERED"
	EventModified     EventType = "MODIFIED"
	EventUnregistered EventType = "UNREGISTERED"
)

// Event is emitted for every registry change.
type Event struct {
	Type         EventType
	Registration *Registration
}

// Filter selects registrations inside a watch by their metadata. A nil Filter
// matches everything.
type Filter func(md Metadata) bool

// Listener receives the tracking callbacks of a Watch.
type Listener interface {
	OnServiceAdded(reg *Registration)
	OnServiceModified(reg *Registration)
	OnServiceRemoved(reg *Registration)
}

// MetadataEquals returns a Filter matching registrations whose metadata value
// for key equals value.
func MetadataEquals(key, value string) Filter {
	return func(md Metadata) bool {
		return md.String(key) == value
	}
}

// Watch tracks the registrations of one capability that pass a filter.
//
// Callbacks for a single watch are delivered in order and never
// concurrently. A listener may register or unregister services from inside a
// callback; the resulting events are queued and delivered after it returns.
type Watch struct {
	registry   *Registry
	capability Capability
	filter     Filter
	listener   Listener

	mu         sync.Mutex
	queue      []Event
	delivering bool
	closed     bool
	tracked    map[string]*Registration
}

// Watch opens a tracker for capability c. Registrations already present are
// reported as added, best ranked first. That happens before Watch returns
// unless a concurrent registry change has started delivering on w, in which
// case that goroutine delivers them.
func (r *Registry) Watch(c Capability, filter Filter, l Listener) *Watch {
	w := &Watch{
		registry:   r,
		capability: c,
		filter:     filter,
		listener:   l,
		tracked:    make(map[string]*Registration),
	}

	r.mu.Lock()
	existing := make([]*Registration, 0)
	for _, reg := range r.registrations {
		if reg.HasCapability(c) {
			existing = append(existing, reg)
		}
	}
	sortLocked(existing)
	for _, reg := range existing {
		w.enqueue(Event{Type: EventRegistered, Registration: reg})
	}
	r.watches[w] = struct{}{}
	r.mu.Unlock()

	w.drain()
	return w
}

// Tracked returns the number of registrations currently tracked.
func (w *Watch) Tracked() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.tracked)
}

// Close stops the watch and reports every tracked registration as removed.
// When another goroutine is delivering on w, Close only queues the removals
// and that goroutine reports them, possibly after Close returns.
func (w *Watch) Close() {
	w.registry.mu.Lock()
	if _, ok := w.registry.watches[w]; !ok {
		w.registry.mu.Unlock()
		return
	}
	delete(w.registry.watches, w)
	w.mu.Lock()
	w.queue = append(w.queue, Event{Type: eventClose})
	w.mu.Unlock()
	w.registry.mu.Unlock()

	w.drain()
}

// eventClose is an internal marker flushing the tracked set.
const eventClose EventType = "CLOSE"

// enqueue appends ev and reports whether the caller must drain.
func (w *Watch) enqueue(ev Event) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	w.queue = append(w.queue, ev)
	return true
}

// drain delivers queued events unless another goroutine is already doing so.
func (w *Watch) drain() {
	w.mu.Lock()
	if w.delivering {
		w.mu.Unlock()
		return
	}
	w.delivering = true
	for len(w.queue) > 0 {
		ev := w.queue[0]
		w.queue = w.queue[1:]
		w.mu.Unlock()
		w.dispatch(ev)
		w.mu.Lock()
	}
	w.delivering = false
	w.mu.Unlock()
}

func (w *Watch) matches(reg *Registration) bool {
	if w.filter == nil {
		return true
	}
	return w.filter(reg.Metadata())
}

func (w *Watch) dispatch(ev Event) {
	reg := ev.Registration

	switch ev.Type {
	case eventClose:
		w.mu.Lock()
		w.closed = true
		removed := make([]*Registration, 0, len(w.tracked))
		for _, t := range w.tracked {
			removed = append(removed, t)
		}
		w.tracked = make(map[string]*Registration)
		w.mu.Unlock()
		for _, t := range removed {
			w.listener.OnServiceRemoved(t)
		}

	case EventRegistered:
		if !w.matches(reg) || !w.track(reg) {
			return
		}
		w.listener.OnServiceAdded(reg)

	case EventModified:
		matches := w.matches(reg)
		tracked := w.isTracked(reg)
		switch {
		case matches && tracked:
			w.listener.OnServiceModified(reg)
		case matches && !tracked:
			if w.track(reg) {
				w.listener.OnServiceAdded(reg)
			}
		case !matches && tracked:
			if w.untrack(reg) {
				w.listener.OnServiceRemoved(reg)
			}
		}

	case EventUnregistered:
		if w.untrack(reg) {
			w.listener.OnServiceRemoved(reg)
		}
	}
}

func (w *Watch) track(reg *Registration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	if _, ok := w.tracked[reg.id]; ok {
		return false
	}
	w.tracked[reg.id] = reg
	return true
}

func (w *Watch) untrack(reg *Registration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.tracked[reg.id]; !ok {
		return false
	}
	delete(w.tracked, reg.id)
	return true
}

func (w *Watch) isTracked(reg *Registration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.tracked[reg.id]
	return ok
}

// subscriber is a buffered event channel fed by Subscribe.
type subscriber struct {
	ch      chan Event
	dropped atomic.Int64
}

func (s *subscriber) send(ev Event) {
	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
	}
}

// Subscription is the receiving side of Subscribe.
type Subscription struct {
	C <-chan Event

	registry *Registry
	sub      *subscriber
	once     sync.Once
}

// Dropped returns how many events were discarded because the buffer was full.
func (s *Subscription) Dropped() int64 { return s.sub.dropped.Load() }

// Cancel stops delivery and closes C.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.registry.mu.Lock()
		delete(s.registry.subscribers, s.sub)
		close(s.sub.ch)
		s.registry.mu.Unlock()
	})
}

// Subscribe returns a channel receiving every registry event. Events are
// dropped rather than blocking the registry when the buffer is full.
func (r *Registry) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	s := &subscriber{ch: make(chan Event, buffer)}

	r.mu.Lock()
	r.subscribers[s] = struct{}{}
	r.mu.Unlock()

	return &Subscription{C: s.ch, registry: r, sub: s}
}
