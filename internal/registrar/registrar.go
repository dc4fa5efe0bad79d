// Package registrar publishes a dereference engine while the sites it
// depends on are present in the service registry.
//
// A Registrar is configured once through Activate. It then counts the backing
// sites reported by its dereferencer: the first site publishes the engine
// under the EnhancementEngine and ServiceProperties capabilities, losing the
// last one unpublishes it.
package registrar

import (
	"errors"
	"sync"

	"github.com/MrSnakeDoc/derefd/internal/dereference"
	"github.com/MrSnakeDoc/derefd/internal/engine"
	"github.com/MrSnakeDoc/derefd/internal/logger"
	"github.com/MrSnakeDoc/derefd/internal/metrics"
	"github.com/MrSnakeDoc/derefd/internal/namespace"
	"github.com/MrSnakeDoc/derefd/internal/registry"
)

var ErrAlreadyActive = errors.New("registrar: already active")

// Config is the raw engine configuration.
type Config map[string]any

// Registrar owns one dereference engine and its publication.
type Registrar struct {
	registry *registry.Registry
	prefixes *namespace.Prefixes
	log      logger.Logger
	metrics  *metrics.Metrics
	cache    engine.Cache

	// lifecycle serializes Activate and Deactivate. Tracking callbacks only
	// take mu, so the dereferencer may be opened and closed under lifecycle.
	lifecycle sync.Mutex

	mu           sync.Mutex
	active       bool
	settings     settings
	metadata     registry.Metadata
	engine       *engine.DereferenceEngine
	dereferencer *dereference.Dereferencer
	registration *registry.Registration
	tracked      int
	// generation identifies the current activation. Callbacks carrying an
	// older generation come from a closed dereferencer and are dropped.
	generation uint64
}

// tracker forwards the callbacks of one activation's dereferencer.
type tracker struct {
	r   *Registrar
	gen uint64
}

func (t tracker) OnServiceAdded(reg *registry.Registration) {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	if t.gen == t.r.generation {
		t.r.addedLocked(reg)
	}
}

func (t tracker) OnServiceModified(*registry.Registration) {}

func (t tracker) OnServiceRemoved(reg *registry.Registration) {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	if t.gen == t.r.generation {
		t.r.removedLocked(reg)
	}
}

// New returns an inactive registrar. prefixes, log and m may be nil.
func New(reg *registry.Registry, prefixes *namespace.Prefixes, log logger.Logger, m *metrics.Metrics) *Registrar {
	if log == nil {
		log = logger.New("error", false)
	}
	return &Registrar{registry: reg, prefixes: prefixes, log: log, metrics: m}
}

// SetCache makes engines built by later activations cache their results.
func (r *Registrar) SetCache(c engine.Cache) {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	r.cache = c
}

// Activate validates cfg, builds the engine and starts tracking backing sites.
// Configuration problems are returned as *ConfigurationError.
func (r *Registrar) Activate(cfg Config) error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return ErrAlreadyActive
	}
	gen := r.generation + 1
	r.mu.Unlock()

	s, err := parseConfig(cfg)
	if err != nil {
		return err
	}

	log := logger.With(logger.Named(r.log, "registrar"), logger.String("engine", s.name))
	log.Info("activating dereference engine",
		logger.String("site", s.site),
		logger.Strings("fields", s.fields),
		logger.Bool("ldpath", s.program != nil))

	t := tracker{r: r, gen: gen}
	var d *dereference.Dereferencer
	switch {
	case isEntityhub(s.site):
		log.Info("init entityhub dereferencer")
		d = dereference.NewHubDereferencer(r.registry, t, log)
	case s.site == SiteAll:
		log.Info("init dereferencer for all sites")
		d = dereference.NewSitesDereferencer(r.registry, t, log)
	default:
		log.Info("init dereferencer for site", logger.String("site", s.site))
		d = dereference.NewSiteDereferencer(r.registry, s.site, t, log)
	}
	d.SetNamespaces(r.prefixes)
	d.SetDereferencedFields(s.fields)
	d.SetLDPath(s.program)

	eng := engine.NewDereferenceEngine(s.name, d, log, r.metrics)
	if r.cache != nil {
		eng.SetCache(r.cache)
	}

	r.mu.Lock()
	r.settings = s
	r.metadata = s.metadata()
	r.engine = eng
	r.dereferencer = d
	r.registration = nil
	r.tracked = 0
	r.generation = gen
	r.active = true
	r.mu.Unlock()

	r.metrics.SetPublished(s.name, false)
	r.metrics.SetTracked(s.name, 0)

	// the engine is published by OnServiceAdded once a backing site shows up
	return d.Open()
}

// Deactivate unpublishes the engine and stops tracking. It is safe to call
// more than once.
func (r *Registrar) Deactivate() {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	r.unpublishLocked()
	d := r.dereferencer
	name := r.settings.name
	r.active = false
	r.generation++
	r.tracked = 0
	r.engine = nil
	r.metadata = nil
	r.dereferencer = nil
	r.mu.Unlock()

	// Close reports every tracked site as removed, possibly from a goroutine
	// still delivering on the watch after Close returns. Those callbacks carry
	// the old generation and are dropped, even after a new Activate.
	d.Close()

	r.metrics.SetTracked(name, 0)
	r.log.Info("dereference engine deactivated", logger.String("engine", name))
}

// OnServiceAdded counts a backing site for the current activation.
func (r *Registrar) OnServiceAdded(reg *registry.Registration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addedLocked(reg)
}

func (r *Registrar) addedLocked(reg *registry.Registration) {
	if !r.active {
		return
	}

	if r.tracked == 0 {
		r.publishLocked()
	}
	r.tracked++
	r.metrics.SetTracked(r.settings.name, r.tracked)
	r.log.Debug("backing site added",
		logger.String("engine", r.settings.name),
		logger.String("registration", reg.ID()),
		logger.Int("tracked", r.tracked))
}

// OnServiceModified is a no-op: metadata changes of a tracked site do not
// affect publication.
func (r *Registrar) OnServiceModified(*registry.Registration) {}

// OnServiceRemoved uncounts a backing site for the current activation.
func (r *Registrar) OnServiceRemoved(reg *registry.Registration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removedLocked(reg)
}

func (r *Registrar) removedLocked(reg *registry.Registration) {
	if !r.active || r.tracked == 0 {
		return
	}

	r.tracked--
	r.metrics.SetTracked(r.settings.name, r.tracked)
	r.log.Debug("backing site removed",
		logger.String("engine", r.settings.name),
		logger.String("registration", reg.ID()),
		logger.Int("tracked", r.tracked))
	if r.tracked == 0 {
		r.unpublishLocked()
	}
}

func (r *Registrar) publishLocked() {
	caps := []registry.Capability{engine.CapabilityEnhancementEngine, engine.CapabilityServiceProperties}
	reg, err := r.registry.Register(caps, r.engine, r.metadata)
	if err != nil {
		r.log.Error("failed to publish dereference engine",
			logger.String("engine", r.settings.name),
			logger.Error(err))
		return
	}
	r.registration = reg
	r.metrics.SetPublished(r.settings.name, true)
	r.log.Info("dereference engine published",
		logger.String("engine", r.settings.name),
		logger.String("registration", reg.ID()))
}

func (r *Registrar) unpublishLocked() {
	if r.registration == nil {
		return
	}
	if err := r.registration.Unregister(); err != nil && !errors.Is(err, registry.ErrNotRegistered) {
		r.log.Warn("failed to unpublish dereference engine",
			logger.String("engine", r.settings.name),
			logger.Error(err))
	}
	r.registration = nil
	r.metrics.SetPublished(r.settings.name, false)
	r.log.Info("dereference engine unpublished", logger.String("engine", r.settings.name))
}

// Active reports whether Activate succeeded and Deactivate was not called since.
func (r *Registrar) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Published returns the engine registration, or nil while unpublished.
func (r *Registrar) Published() *registry.Registration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registration
}

// TrackedServiceCount returns the number of backing sites currently present.
func (r *Registrar) TrackedServiceCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tracked
}

// Name returns the configured engine name.
func (r *Registrar) Name() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings.name
}

// SiteSelector returns the resolved site selector.
func (r *Registrar) SiteSelector() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings.site
}

// Metadata returns a copy of the metadata the engine is published with.
func (r *Registrar) Metadata() registry.Metadata {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metadata.Clone()
}

// Engine returns the dereference engine, or nil when inactive.
func (r *Registrar) Engine() *engine.DereferenceEngine {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine
}

// Sites returns the ids of the backing sites, best ranked first.
func (r *Registrar) Sites() []string {
	r.mu.Lock()
	d := r.dereferencer
	r.mu.Unlock()
	if d == nil {
		return nil
	}
	return d.Sites()
}
