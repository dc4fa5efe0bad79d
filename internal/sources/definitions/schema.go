package definitions

import (
	"errors"
	"fmt"
)

// Site types.
const (
	TypeMemory = "memory"
	TypeRedis  = "redis"
)

var ErrInvalidDefinition = errors.New("invalid definition")

// SitesFile is the top-level structure of the sites file.
type SitesFile struct {
	Sites []SiteDefinition `yaml:"sites"`
}

// SiteDefinition describes one entity repository.
type SiteDefinition struct {
	ID       string                         `yaml:"id" json:"id"`
	Type     string                         `yaml:"type,omitempty" json:"type,omitempty"`
	Hub      bool                           `yaml:"hub,omitempty" json:"hub,omitempty"`
	Ranking  int                            `yaml:"ranking,omitempty" json:"ranking,omitempty"`
	Prefix   string                         `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	Entities map[string]map[string][]string `yaml:"entities,omitempty" json:"entities,omitempty"`
}

// Normalize fills defaults and checks the definition.
func (d *SiteDefinition) Normalize() error {
	if d.ID == "" {
		return fmt.Errorf("%w: site id is required", ErrInvalidDefinition)
	}
	if d.Type == "" {
		d.Type = TypeMemory
	}
	switch d.Type {
	case TypeMemory:
		if d.Prefix != "" {
			return fmt.Errorf("%w: site %s: prefix only applies to redis sites", ErrInvalidDefinition, d.ID)
		}
	case TypeRedis:
		if len(d.Entities) > 0 {
			return fmt.Errorf("%w: site %s: redis sites cannot declare inline entities", ErrInvalidDefinition, d.ID)
		}
	default:
		return fmt.Errorf("%w: site %s: unknown type %q", ErrInvalidDefinition, d.ID, d.Type)
	}
	return nil
}

// EnginesFile is the top-level structure of the engines file. Each entry is
// the raw property map handed to a registrar.
type EnginesFile struct {
	Engines []map[string]any `yaml:"engines"`
}
