package scheduler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/MrSnakeDoc/derefd/internal/logger"
	"github.com/MrSnakeDoc/derefd/internal/metrics"
	"github.com/MrSnakeDoc/derefd/internal/registry"
	"github.com/MrSnakeDoc/derefd/internal/site"
	"github.com/MrSnakeDoc/derefd/internal/sources/definitions"
	redisstore "github.com/MrSnakeDoc/derefd/internal/store/redis"
)

// Site sources.
const (
	SourceFile     = "file"
	SourceAnnounce = "announce"
)

const (
	// DefaultDebounce is the delay between a file change and the reload it triggers
	DefaultDebounce = 250 * time.Millisecond
	// DefaultSiteReloadInterval applies when no positive interval is configured
	DefaultSiteReloadInterval = 5 * time.Minute
)

var (
	ErrUnknownSite  = errors.New("unknown site")
	ErrSiteConflict = errors.New("site is defined in the sites file")
)

// SiteStatus describes a registered site.
type SiteStatus struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	Hub            bool   `json:"hub"`
	Ranking        int    `json:"ranking"`
	Source         string `json:"source"`
	RegistrationID string `json:"registration_id"`
}

type registeredSite struct {
	def definitions.SiteDefinition
	reg *registry.Registration
}

// SiteReloader keeps the registry in sync with the sites file and with sites
// announced at runtime.
type SiteReloader struct {
	sitesFile     string
	mapper        *definitions.Mapper
	registry      *registry.Registry
	store         *redisstore.Store
	logger        logger.Logger
	metrics       *metrics.Metrics
	interval      time.Duration
	debounce      time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
	manualTrigger chan struct{}

	mu      sync.Mutex
	file    map[string]*registeredSite
	dynamic map[string]*registeredSite
}

// NewSiteReloader creates a new site reloader. sitesFile may be empty when
// only announced sites are used; store may be nil.
func NewSiteReloader(
	sitesFile string,
	mapper *definitions.Mapper,
	reg *registry.Registry,
	store *redisstore.Store,
	log logger.Logger,
	m *metrics.Metrics,
	interval time.Duration,
	manualTrigger chan struct{},
) *SiteReloader {
	if interval <= 0 {
		interval = DefaultSiteReloadInterval
	}
	return &SiteReloader{
		sitesFile:     sitesFile,
		mapper:        mapper,
		registry:      reg,
		store:         store,
		logger:        log,
		metrics:       m,
		interval:      interval,
		debounce:      DefaultDebounce,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
		file:          make(map[string]*registeredSite),
		dynamic:       make(map[string]*registeredSite),
	}
}

// Start restores announced sites, loads the sites file and begins the
// periodic, manual and file-change reloads
func (sr *SiteReloader) Start(ctx context.Context) error {
	sr.restoreAnnounced(ctx)

	// Load immediately on start
	if err := sr.Reload(ctx); err != nil {
		return fmt.Errorf("initial reload failed: %w", err)
	}

	var fsEvents <-chan fsnotify.Event
	var fsErrors <-chan error
	watcher, err := sr.watchFile()
	if err != nil {
		sr.logger.Warn("sites file watch disabled", logger.Error(err))
	} else if watcher != nil {
		fsEvents, fsErrors = watcher.Events, watcher.Errors
	}

	ticker := time.NewTicker(sr.interval)
	go func() {
		defer ticker.Stop()
		if watcher != nil {
			defer watcher.Close()
		}

		var debounce *time.Timer
		var debounceC <-chan time.Time
		for {
			select {
			case <-ticker.C:
				sr.reloadAndLog(ctx)
			case <-sr.manualTrigger:
				sr.logger.Info("manual reload triggered")
				sr.reloadAndLog(ctx)
			case ev, ok := <-fsEvents:
				if !ok {
					fsEvents = nil
					continue
				}
				if filepath.Clean(ev.Name) != filepath.Clean(sr.sitesFile) {
					continue
				}
				sr.logger.Debug("sites file changed", logger.String("op", ev.Op.String()))
				if debounce == nil {
					debounce = time.NewTimer(sr.debounce)
				} else {
					debounce.Reset(sr.debounce)
				}
				debounceC = debounce.C
			case <-debounceC:
				debounceC = nil
				sr.reloadAndLog(ctx)
			case err, ok := <-fsErrors:
				if !ok {
					fsErrors = nil
					continue
				}
				sr.logger.Error("sites file watcher error", logger.Error(err))
			case <-sr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the reloader
func (sr *SiteReloader) Stop() {
	sr.stopOnce.Do(func() { close(sr.stopCh) })
}

// watchFile watches the directory of the sites file so that editors
// replacing the file are noticed.
func (sr *SiteReloader) watchFile() (*fsnotify.Watcher, error) {
	if sr.sitesFile == "" {
		return nil, nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(sr.sitesFile)); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

func (sr *SiteReloader) reloadAndLog(ctx context.Context) {
	if err := sr.Reload(ctx); err != nil {
		sr.logger.Error("failed to reload sites", logger.Error(err))
	}
}

// Reload loads the sites file and reconciles the registered file sites.
// On error the current sites stay registered.
func (sr *SiteReloader) Reload(ctx context.Context) error {
	if sr.sitesFile == "" {
		return nil
	}

	defs, err := definitions.LoadSites(sr.sitesFile)
	if err != nil {
		sr.metrics.SiteReload(false)
		return fmt.Errorf("failed to load sites: %w", err)
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()

	wanted := make(map[string]bool, len(defs))
	added, changed, removed := 0, 0, 0
	var errs []error
	for _, def := range defs {
		wanted[def.ID] = true
		if _, ok := sr.dynamic[def.ID]; ok {
			// the file wins over an announcement with the same id
			sr.unregisterLocked(sr.dynamic, def.ID)
			sr.deleteAnnounced(ctx, def.ID)
		}
		existing, ok := sr.file[def.ID]
		if ok && reflect.DeepEqual(existing.def, def) {
			continue
		}
		if err := sr.registerLocked(sr.file, def); err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			changed++
		} else {
			added++
		}
	}
	for id := range sr.file {
		if !wanted[id] {
			sr.unregisterLocked(sr.file, id)
			removed++
		}
	}

	sr.metrics.SiteReload(len(errs) == 0)
	sr.logger.Info("sites reloaded",
		logger.Int("count", len(defs)),
		logger.Int("added", added),
		logger.Int("changed", changed),
		logger.Int("removed", removed))
	return errors.Join(errs...)
}

// UpsertSite registers or replaces an announced site.
func (sr *SiteReloader) UpsertSite(ctx context.Context, def definitions.SiteDefinition) error {
	if err := def.Normalize(); err != nil {
		return err
	}

	sr.mu.Lock()
	if _, ok := sr.file[def.ID]; ok {
		sr.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSiteConflict, def.ID)
	}
	if existing, ok := sr.dynamic[def.ID]; ok && reflect.DeepEqual(existing.def, def) {
		sr.mu.Unlock()
		return nil
	}
	err := sr.registerLocked(sr.dynamic, def)
	sr.mu.Unlock()
	if err != nil {
		return err
	}

	sr.logger.Info("announced site registered", logger.String("site", def.ID))
	if sr.store != nil {
		if err := sr.store.SaveSiteDefinition(ctx, def); err != nil {
			sr.logger.Warn("failed to persist announced site",
				logger.String("site", def.ID),
				logger.Error(err))
		}
	}
	return nil
}

// RemoveSite unregisters an announced site.
func (sr *SiteReloader) RemoveSite(ctx context.Context, id string) error {
	sr.mu.Lock()
	if _, ok := sr.dynamic[id]; !ok {
		sr.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownSite, id)
	}
	sr.unregisterLocked(sr.dynamic, id)
	sr.mu.Unlock()

	sr.logger.Info("announced site removed", logger.String("site", id))
	sr.deleteAnnounced(ctx, id)
	return nil
}

// Sites returns every registered site ordered by id.
func (sr *SiteReloader) Sites() []SiteStatus {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	out := make([]SiteStatus, 0, len(sr.file)+len(sr.dynamic))
	for source, set := range map[string]map[string]*registeredSite{SourceFile: sr.file, SourceAnnounce: sr.dynamic} {
		for _, rs := range set {
			out = append(out, SiteStatus{
				ID:             rs.def.ID,
				Type:           rs.def.Type,
				Hub:            rs.def.Hub,
				Ranking:        rs.def.Ranking,
				Source:         source,
				RegistrationID: rs.reg.ID(),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// registerLocked publishes def, replacing a previous registration with the
// same id. The new site is registered before the old one is withdrawn so
// engines depending on it stay published.
func (sr *SiteReloader) registerLocked(set map[string]*registeredSite, def definitions.SiteDefinition) error {
	s, err := sr.mapper.MapSite(def)
	if err != nil {
		return err
	}
	reg, err := sr.registry.Register(site.Capabilities(def.Hub), s, site.Metadata(s, def.Ranking))
	if err != nil {
		return fmt.Errorf("failed to register site %s: %w", def.ID, err)
	}

	if old, ok := set[def.ID]; ok {
		_ = old.reg.Unregister()
	}
	set[def.ID] = &registeredSite{def: def, reg: reg}
	return nil
}

func (sr *SiteReloader) unregisterLocked(set map[string]*registeredSite, id string) {
	if rs, ok := set[id]; ok {
		_ = rs.reg.Unregister()
		delete(set, id)
	}
}

func (sr *SiteReloader) restoreAnnounced(ctx context.Context) {
	if sr.store == nil {
		return
	}
	defs, err := sr.store.GetAllSiteDefinitions(ctx)
	if err != nil {
		sr.logger.Warn("failed to restore announced sites", logger.Error(err))
		return
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()
	for _, def := range defs {
		if err := def.Normalize(); err != nil {
			sr.logger.Warn("skipping stored site", logger.String("site", def.ID), logger.Error(err))
			continue
		}
		if err := sr.registerLocked(sr.dynamic, def); err != nil {
			sr.logger.Warn("failed to restore site", logger.String("site", def.ID), logger.Error(err))
		}
	}
	if len(defs) > 0 {
		sr.logger.Info("restored announced sites", logger.Int("count", len(sr.dynamic)))
	}
}

func (sr *SiteReloader) deleteAnnounced(ctx context.Context, id string) {
	if sr.store == nil {
		return
	}
	if err := sr.store.DeleteSiteDefinition(ctx, id); err != nil {
		sr.logger.Warn("failed to delete announced site",
			logger.String("site", id),
			logger.Error(err))
	}
}
