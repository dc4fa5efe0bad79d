// Package dereference resolves entity URIs against the sites currently
// published in the service registry.
package dereference

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/MrSnakeDoc/derefd/internal/ldpath"
	"github.com/MrSnakeDoc/derefd/internal/logger"
	"github.com/MrSnakeDoc/derefd/internal/namespace"
	"github.com/MrSnakeDoc/derefd/internal/registry"
	"github.com/MrSnakeDoc/derefd/internal/site"
)

var (
	ErrUnavailable = errors.New("dereference: no backing site available")
	ErrAlreadyOpen = errors.New("dereference: already open")
)

// Mode selects which sites a Dereferencer tracks.
type Mode string

const (
	ModeHub      Mode = "entityhub"
	ModeAllSites Mode = "sites"
	ModeSite     Mode = "site"
)

// Dereferencer tracks backing sites through a registry watch and forwards
// every tracking callback to its customizer.
type Dereferencer struct {
	registry   *registry.Registry
	mode       Mode
	siteID     string
	capability registry.Capability
	filter     registry.Filter
	customizer registry.Listener
	log        logger.Logger

	lifecycle sync.Mutex
	watch     *registry.Watch

	mu       sync.RWMutex
	prefixes *namespace.Prefixes
	fields   []string
	program  *ldpath.Program
	tracked  []*registry.Registration
}

// NewHubDereferencer tracks the local entity hub.
func NewHubDereferencer(reg *registry.Registry, customizer registry.Listener, log logger.Logger) *Dereferencer {
	return newDereferencer(reg, ModeHub, "", site.CapabilityEntityhub, nil, customizer, log)
}

// NewSitesDereferencer tracks every published site.
func NewSitesDereferencer(reg *registry.Registry, customizer registry.Listener, log logger.Logger) *Dereferencer {
	return newDereferencer(reg, ModeAllSites, "", site.CapabilitySite, nil, customizer, log)
}

// NewSiteDereferencer tracks the site registered with the given id.
func NewSiteDereferencer(reg *registry.Registry, siteID string, customizer registry.Listener, log logger.Logger) *Dereferencer {
	filter := registry.MetadataEquals(site.PropertySiteID, siteID)
	return newDereferencer(reg, ModeSite, siteID, site.CapabilitySite, filter, customizer, log)
}

func newDereferencer(reg *registry.Registry, mode Mode, siteID string, c registry.Capability, filter registry.Filter, customizer registry.Listener, log logger.Logger) *Dereferencer {
	if log == nil {
		log = logger.New("error", false)
	}
	return &Dereferencer{
		registry:   reg,
		mode:       mode,
		siteID:     siteID,
		capability: c,
		filter:     filter,
		customizer: customizer,
		log:        log,
	}
}

func (d *Dereferencer) Mode() Mode     { return d.mode }
func (d *Dereferencer) SiteID() string { return d.siteID }

func (d *Dereferencer) SetNamespaces(p *namespace.Prefixes) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prefixes = p
}

// SetDereferencedFields sets the fields copied from each entity. An empty
// list selects every field unless an LDPath program is set.
func (d *Dereferencer) SetDereferencedFields(fields []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fields = append([]string(nil), fields...)
}

func (d *Dereferencer) SetLDPath(p *ldpath.Program) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.program = p
}

// Open starts tracking. Sites already registered are reported as added, before
// Open returns unless another goroutine is already delivering on the watch.
func (d *Dereferencer) Open() error {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()
	if d.watch != nil {
		return ErrAlreadyOpen
	}
	d.watch = d.registry.Watch(d.capability, d.filter, d)

	d.log.Debug("dereferencer opened",
		logger.String("mode", string(d.mode)),
		logger.String("site", d.siteID))
	return nil
}

// Close stops tracking. Every tracked site is reported as removed, possibly
// after Close returns when another goroutine is delivering on the watch.
func (d *Dereferencer) Close() {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()
	if d.watch != nil {
		d.watch.Close()
		d.watch = nil
	}
}

// Available reports whether at least one backing site is tracked.
func (d *Dereferencer) Available() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.tracked) > 0
}

// Sites returns the ids of the tracked sites, best ranked first.
func (d *Dereferencer) Sites() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.tracked))
	for _, reg := range d.tracked {
		out = append(out, reg.Service().(site.Site).ID())
	}
	return out
}

func (d *Dereferencer) OnServiceAdded(reg *registry.Registration) {
	if _, ok := reg.Service().(site.Site); !ok {
		d.log.Warn("ignoring registration without site implementation",
			logger.String("registration", reg.ID()))
		return
	}

	d.mu.Lock()
	d.tracked = append(d.tracked, reg)
	d.sortLocked()
	d.mu.Unlock()

	if d.customizer != nil {
		d.customizer.OnServiceAdded(reg)
	}
}

func (d *Dereferencer) OnServiceModified(reg *registry.Registration) {
	d.mu.Lock()
	d.sortLocked()
	d.mu.Unlock()

	if d.customizer != nil {
		d.customizer.OnServiceModified(reg)
	}
}

func (d *Dereferencer) OnServiceRemoved(reg *registry.Registration) {
	d.mu.Lock()
	found := false
	for i, t := range d.tracked {
		if t == reg {
			d.tracked = append(d.tracked[:i], d.tracked[i+1:]...)
			found = true
			break
		}
	}
	d.mu.Unlock()

	if found && d.customizer != nil {
		d.customizer.OnServiceRemoved(reg)
	}
}

func (d *Dereferencer) sortLocked() {
	sort.SliceStable(d.tracked, func(i, j int) bool {
		return d.tracked[i].Ranking() > d.tracked[j].Ranking()
	})
}

// Dereference resolves uri. The hub and named-site variants ask their best
// tracked site; the all-sites variant asks each site in ranking order and
// returns the first hit.
func (d *Dereferencer) Dereference(ctx context.Context, uri string) (*site.Representation, error) {
	d.mu.RLock()
	sites := make([]site.Site, 0, len(d.tracked))
	for _, reg := range d.tracked {
		sites = append(sites, reg.Service().(site.Site))
	}
	prefixes, fields, program := d.prefixes, d.fields, d.program
	d.mu.RUnlock()

	if len(sites) == 0 {
		return nil, ErrUnavailable
	}
	if d.mode != ModeAllSites {
		sites = sites[:1]
	}

	expanded := make([]string, 0, len(fields))
	for _, f := range fields {
		expanded = append(expanded, prefixes.Expand(f))
	}
	request := expanded
	if program != nil {
		request = mergeFields(expanded, program.SourceFields(prefixes))
	}

	var firstErr error
	for _, s := range sites {
		rep, err := s.Lookup(ctx, uri, request)
		if errors.Is(err, site.ErrEntityNotFound) {
			continue
		}
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("site %s: %w", s.ID(), err)
			}
			d.log.Warn("site lookup failed",
				logger.String("site", s.ID()),
				logger.String("uri", uri),
				logger.Error(err))
			continue
		}
		return project(rep, expanded, program, prefixes), nil
	}

	if firstErr != nil {
		return nil, firstErr
	}
	return nil, site.ErrEntityNotFound
}

// project keeps the configured fields of rep and adds the LDPath aliases.
func project(rep *site.Representation, fields []string, program *ldpath.Program, prefixes *namespace.Prefixes) *site.Representation {
	if program == nil {
		return rep
	}

	out := &site.Representation{ID: rep.ID, Site: rep.Site, Fields: make(map[string][]string)}
	for _, f := range fields {
		if v, ok := rep.Fields[f]; ok {
			out.Fields[f] = v
		}
	}
	for alias, values := range program.Apply(rep.Fields, prefixes) {
		out.Fields[alias] = append(out.Fields[alias], values...)
	}
	return out
}

func mergeFields(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, f := range list {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}
