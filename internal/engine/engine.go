// Package engine defines the enhancement engine capabilities and the
// dereference engine published by registrars.
package engine

import (
	"context"
	"sync"

	"github.com/MrSnakeDoc/derefd/internal/registry"
	"github.com/MrSnakeDoc/derefd/internal/site"
)

const (
	CapabilityEnhancementEngine registry.Capability = "EnhancementEngine"
	CapabilityServiceProperties registry.Capability = "ServiceProperties"

	// PropertyName is the registration metadata key holding the engine name.
	PropertyName = "stanbol.enhancer.engine.name"

	// PropertyOrdering is the service property ordering engines in a chain.
	PropertyOrdering = "enhancer.engine.order"
)

// Engine orderings, higher runs first.
const (
	OrderingPreProcessing  = 200
	OrderingExtraction     = 0
	OrderingPostProcessing = -100
)

// Enhancement modes returned by CanEnhance.
const (
	CannotEnhance = 0
	EnhanceSync   = 1
)

// ContentItem is the unit of work passed through engines.
type ContentItem struct {
	ID       string   `json:"id"`
	Entities []string `json:"entities"`

	mu           sync.Mutex
	enhancements []Enhancement
}

// Enhancement is the data one engine attached for one entity.
type Enhancement struct {
	Engine string              `json:"engine"`
	Entity string              `json:"entity"`
	Site   string              `json:"site"`
	Fields map[string][]string `json:"fields"`
}

func NewContentItem(id string, entities []string) *ContentItem {
	return &ContentItem{ID: id, Entities: append([]string(nil), entities...)}
}

func (ci *ContentItem) AddEnhancement(e Enhancement) {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	ci.enhancements = append(ci.enhancements, e)
}

// Enhancements returns a copy of the enhancements added so far.
func (ci *ContentItem) Enhancements() []Enhancement {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	return append([]Enhancement(nil), ci.enhancements...)
}

// EnhancementEngine is the capability consumed by enhancement chains.
type EnhancementEngine interface {
	Name() string
	CanEnhance(ci *ContentItem) int
	ComputeEnhancements(ctx context.Context, ci *ContentItem) error
}

// ServiceProperties exposes static engine properties such as ordering.
type ServiceProperties interface {
	ServiceProperties() map[string]any
}

// Cache stores dereference results per engine. Get returns nil on a miss.
type Cache interface {
	Get(ctx context.Context, engine, uri string) (*site.Representation, error)
	Put(ctx context.Context, engine, uri string, rep *site.Representation) error
}

// Dereferencer resolves entity URIs for a DereferenceEngine.
type Dereferencer interface {
	Available() bool
	Dereference(ctx context.Context, uri string) (*site.Representation, error)
}
