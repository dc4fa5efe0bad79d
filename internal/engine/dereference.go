package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/derefd/internal/logger"
	"github.com/MrSnakeDoc/derefd/internal/metrics"
	"github.com/MrSnakeDoc/derefd/internal/site"
)

// DereferenceEngine attaches the dereferenced fields of every entity
// referenced by a content item.
type DereferenceEngine struct {
	name         string
	dereferencer Dereferencer
	log          logger.Logger
	metrics      *metrics.Metrics
	cache        Cache
}

func NewDereferenceEngine(name string, d Dereferencer, log logger.Logger, m *metrics.Metrics) *DereferenceEngine {
	if log == nil {
		log = logger.New("error", false)
	}
	return &DereferenceEngine{name: name, dereferencer: d, log: log, metrics: m}
}

func (e *DereferenceEngine) Name() string { return e.name }

// SetCache enables result caching. Must be called before the engine is used.
func (e *DereferenceEngine) SetCache(c Cache) { e.cache = c }

func (e *DereferenceEngine) CanEnhance(ci *ContentItem) int {
	if ci == nil || len(ci.Entities) == 0 || !e.dereferencer.Available() {
		return CannotEnhance
	}
	return EnhanceSync
}

func (e *DereferenceEngine) ServiceProperties() map[string]any {
	return map[string]any{PropertyOrdering: OrderingPostProcessing}
}

// ComputeEnhancements dereferences each entity of ci once. Unknown entities
// are skipped; any other failure aborts.
func (e *DereferenceEngine) ComputeEnhancements(ctx context.Context, ci *ContentItem) error {
	seen := make(map[string]bool, len(ci.Entities))
	for _, uri := range ci.Entities {
		if seen[uri] {
			continue
		}
		seen[uri] = true

		if err := ctx.Err(); err != nil {
			return err
		}

		rep, err := e.dereference(ctx, uri)

		if errors.Is(err, site.ErrEntityNotFound) {
			e.log.Debug("entity not found",
				logger.String("engine", e.name),
				logger.String("uri", uri))
			continue
		}
		if err != nil {
			return fmt.Errorf("engine %s: dereference %s: %w", e.name, uri, err)
		}

		ci.AddEnhancement(Enhancement{
			Engine: e.name,
			Entity: uri,
			Site:   rep.Site,
			Fields: rep.Fields,
		})
	}
	return nil
}

func (e *DereferenceEngine) dereference(ctx context.Context, uri string) (*site.Representation, error) {
	if e.cache != nil {
		rep, err := e.cache.Get(ctx, e.name, uri)
		if err != nil {
			e.log.Warn("cache lookup failed", logger.String("uri", uri), logger.Error(err))
		} else if rep != nil {
			e.metrics.Dereference(e.name, "cached", 0)
			return rep, nil
		}
	}

	start := time.Now()
	rep, err := e.dereferencer.Dereference(ctx, uri)
	e.metrics.Dereference(e.name, result(err), time.Since(start))
	if err != nil || e.cache == nil {
		return rep, err
	}

	if err := e.cache.Put(ctx, e.name, uri, rep); err != nil {
		e.log.Warn("cache store failed", logger.String("uri", uri), logger.Error(err))
	}
	return rep, nil
}

func result(err error) string {
	switch {
	case err == nil:
		return "hit"
	case errors.Is(err, site.ErrEntityNotFound):
		return "miss"
	default:
		return "error"
	}
}
