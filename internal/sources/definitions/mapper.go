package definitions

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/derefd/internal/site"
)

// Mapper builds sites from their definitions.
type Mapper struct {
	client *redis.Client
}

// NewMapper creates a mapper. client may be nil when no redis site is used.
func NewMapper(client *redis.Client) *Mapper {
	return &Mapper{client: client}
}

// MapSite converts a normalized definition to a site.
func (m *Mapper) MapSite(def SiteDefinition) (site.Site, error) {
	switch def.Type {
	case TypeMemory, "":
		return site.NewMemorySite(def.ID, def.Entities), nil
	case TypeRedis:
		if m.client == nil {
			return nil, fmt.Errorf("site %s: redis is not configured", def.ID)
		}
		return site.NewRedisSite(def.ID, def.Prefix, m.client), nil
	default:
		return nil, fmt.Errorf("%w: site %s: unknown type %q", ErrInvalidDefinition, def.ID, def.Type)
	}
}
