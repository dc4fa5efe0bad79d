package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrSnakeDoc/derefd/internal/engine"
	"github.com/MrSnakeDoc/derefd/internal/logger"
	"github.com/MrSnakeDoc/derefd/internal/metrics"
	"github.com/MrSnakeDoc/derefd/internal/registrar"
	"github.com/MrSnakeDoc/derefd/internal/registry"
	"github.com/MrSnakeDoc/derefd/internal/site"
	redisstore "github.com/MrSnakeDoc/derefd/internal/store/redis"
)

// DefaultMirrorBuffer is the registry subscription buffer of the mirror
const DefaultMirrorBuffer = 256

// mirrorDrainTimeout bounds the Redis writes made by Stop.
const mirrorDrainTimeout = 5 * time.Second

// RegistryMirror mirrors published engines into Redis and drops cached
// dereference results whenever the set of sites changes.
type RegistryMirror struct {
	registry *registry.Registry
	store    *redisstore.Store
	logger   logger.Logger
	metrics  *metrics.Metrics
	buffer   int

	sub     *registry.Subscription
	dropped int64 // drops already covered by a resync

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewRegistryMirror creates a new mirror. store may be nil, in which case
// only metrics are recorded.
func NewRegistryMirror(
	reg *registry.Registry,
	store *redisstore.Store,
	log logger.Logger,
	m *metrics.Metrics,
) *RegistryMirror {
	return &RegistryMirror{
		registry: reg,
		store:    store,
		logger:   log,
		metrics:  m,
		buffer:   DefaultMirrorBuffer,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start flushes records left by a previous run, mirrors the engines already
// published and then follows registry events. Redis writes are not cut short
// by ctx; its cancellation only stops the event loop.
func (rm *RegistryMirror) Start(ctx context.Context) error {
	sub := rm.registry.Subscribe(rm.buffer)
	rm.sub = sub

	if rm.store != nil {
		n, err := rm.store.FlushEngines(ctx)
		if err != nil {
			sub.Cancel()
			close(rm.done)
			return fmt.Errorf("failed to flush stale engine records: %w", err)
		}
		if n > 0 {
			rm.logger.Info("flushed stale engine records", logger.Int("count", n))
		}
		for _, reg := range rm.registry.Lookup(engine.CapabilityEnhancementEngine) {
			rm.save(ctx, reg)
		}
	}

	writeCtx := context.WithoutCancel(ctx)
	go func() {
		defer close(rm.done)
		for {
			select {
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				rm.Handle(writeCtx, ev)
				rm.resyncIfDropped(writeCtx)
			case <-rm.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops following events, waits for the mirror goroutine to exit and
// applies the events still buffered, so engines withdrawn during shutdown do
// not linger in Redis. It must only be called after a successful Start.
func (rm *RegistryMirror) Stop() {
	rm.stopOnce.Do(func() { close(rm.stopCh) })
	<-rm.done

	rm.sub.Cancel()
	ctx, cancel := context.WithTimeout(context.Background(), mirrorDrainTimeout)
	defer cancel()
	n := 0
	for ev := range rm.sub.C {
		rm.Handle(ctx, ev)
		n++
	}
	rm.resyncIfDropped(ctx)
	if n > 0 {
		rm.logger.Debug("applied pending registry events", logger.Int("count", n))
	}
}

// resyncIfDropped rebuilds the engine records when the subscription lost
// events since the last check.
func (rm *RegistryMirror) resyncIfDropped(ctx context.Context) {
	if rm.sub == nil {
		return
	}
	dropped := rm.sub.Dropped()
	if dropped == rm.dropped {
		return
	}
	rm.logger.Warn("registry events dropped, resyncing engine records",
		logger.Int("dropped", int(dropped-rm.dropped)))
	rm.dropped = dropped
	if err := rm.Resync(ctx); err != nil {
		rm.logger.Warn("failed to resync engine records", logger.Error(err))
	}
}

// Resync makes the engine records match the engines currently published and
// drops cached results, since site events may have been missed as well.
func (rm *RegistryMirror) Resync(ctx context.Context) error {
	if rm.store == nil {
		return nil
	}

	live := make(map[string]*registry.Registration)
	for _, reg := range rm.registry.Lookup(engine.CapabilityEnhancementEngine) {
		live[reg.ID()] = reg
	}

	records, err := rm.store.GetAllEngines(ctx)
	if err != nil {
		return fmt.Errorf("failed to list engine records: %w", err)
	}
	for _, rec := range records {
		if _, ok := live[rec.ID]; ok {
			continue
		}
		if err := rm.store.DeleteEngine(ctx, rec.ID); err != nil {
			return fmt.Errorf("failed to delete engine record %s: %w", rec.ID, err)
		}
	}
	for _, reg := range live {
		rm.save(ctx, reg)
	}

	if err := rm.store.FlushCache(ctx); err != nil {
		return fmt.Errorf("failed to flush dereference cache: %w", err)
	}
	return nil
}

// Handle applies one registry event.
func (rm *RegistryMirror) Handle(ctx context.Context, ev registry.Event) {
	rm.metrics.RegistryEvent(string(ev.Type))
	if rm.store == nil {
		return
	}

	reg := ev.Registration
	if reg.HasCapability(engine.CapabilityEnhancementEngine) {
		switch ev.Type {
		case registry.EventRegistered, registry.EventModified:
			rm.save(ctx, reg)
		case registry.EventUnregistered:
			if err := rm.store.DeleteEngine(ctx, reg.ID()); err != nil {
				rm.logger.Warn("failed to delete engine record",
					logger.String("registration", reg.ID()),
					logger.Error(err))
			}
		}
	}

	if reg.HasCapability(site.CapabilitySite) {
		if err := rm.store.FlushCache(ctx); err != nil {
			rm.logger.Warn("failed to flush dereference cache", logger.Error(err))
		}
	}
}

func (rm *RegistryMirror) save(ctx context.Context, reg *registry.Registration) {
	md := reg.Metadata()
	caps := reg.Capabilities()
	names := make([]string, 0, len(caps))
	for _, c := range caps {
		names = append(names, string(c))
	}

	rec := &redisstore.EngineRecord{
		ID:           reg.ID(),
		Name:         md.String(engine.PropertyName),
		Site:         md.String(registrar.PropertySiteID),
		Ranking:      md.Ranking(),
		Capabilities: names,
		PublishedAt:  reg.RegisteredAt(),
	}
	if err := rm.store.SaveEngine(ctx, rec); err != nil {
		rm.logger.Warn("failed to save engine record",
			logger.String("engine", rec.Name),
			logger.Error(err))
	}
}
