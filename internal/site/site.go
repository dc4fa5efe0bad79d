// Package site defines the entity repositories dereferencers read from.
package site

import (
	"context"
	"errors"

	"github.com/MrSnakeDoc/derefd/internal/registry"
)

const (
	// CapabilitySite is registered by every entity repository.
	CapabilitySite registry.Capability = "Site"
	// CapabilityEntityhub is additionally registered by the local hub.
	CapabilityEntityhub registry.Capability = "Entityhub"

	// PropertySiteID is the registration metadata key holding the site id.
	PropertySiteID = "entityhub.site.id"
)

var ErrEntityNotFound = errors.New("site: entity not found")

// Representation is the data one site holds about one entity.
type Representation struct {
	ID     string              `json:"id"`
	Site   string              `json:"site"`
	Fields map[string][]string `json:"fields"`
}

// Site resolves entity URIs. An empty fields slice selects every field.
type Site interface {
	ID() string
	Lookup(ctx context.Context, uri string, fields []string) (*Representation, error)
}

// Metadata builds the registration metadata for s.
func Metadata(s Site, ranking int) registry.Metadata {
	return registry.Metadata{
		PropertySiteID:                  s.ID(),
		registry.PropertyServiceRanking: ranking,
	}
}

// Capabilities returns the capabilities a site is published under.
func Capabilities(hub bool) []registry.Capability {
	if hub {
		return []registry.Capability{CapabilitySite, CapabilityEntityhub}
	}
	return []registry.Capability{CapabilitySite}
}

func selectFields(all map[string][]string, fields []string) map[string][]string {
	if len(fields) == 0 {
		out := make(map[string][]string, len(all))
		for k, v := range all {
			out[k] = append([]string(nil), v...)
		}
		return out
	}

	out := make(map[string][]string, len(fields))
	for _, f := range fields {
		if v, ok := all[f]; ok && len(v) > 0 {
			out[f] = append([]string(nil), v...)
		}
	}
	return out
}
