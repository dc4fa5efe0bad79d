package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/derefd/internal/sources/definitions"
)

// SaveSiteDefinition stores an announced site definition in Redis
func (s *Store) SaveSiteDefinition(ctx context.Context, def definitions.SiteDefinition) error {
	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to marshal site definition: %w", err)
	}

	// Store definition data
	if err := s.client.Set(ctx, SiteKey(def.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save site definition: %w", err)
	}

	// Add to set of all announced sites
	if err := s.client.SAdd(ctx, AllSitesKey(), def.ID).Err(); err != nil {
		return fmt.Errorf("failed to add site to set: %w", err)
	}

	return nil
}

// GetSiteDefinition retrieves an announced site definition by ID
func (s *Store) GetSiteDefinition(ctx context.Context, id string) (*definitions.SiteDefinition, error) {
	data, err := s.client.Get(ctx, SiteKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("site definition not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get site definition: %w", err)
	}

	var def definitions.SiteDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal site definition: %w", err)
	}

	return &def, nil
}

// GetAllSiteDefinitions retrieves all announced site definitions
func (s *Store) GetAllSiteDefinitions(ctx context.Context) ([]definitions.SiteDefinition, error) {
	ids, err := s.client.SMembers(ctx, AllSitesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get site IDs: %w", err)
	}

	defs := make([]definitions.SiteDefinition, 0, len(ids))
	for _, id := range ids {
		def, err := s.GetSiteDefinition(ctx, id)
		if err != nil {
			// Skip definitions that couldn't be retrieved
			continue
		}
		defs = append(defs, *def)
	}

	return defs, nil
}

// DeleteSiteDefinition removes an announced site definition
func (s *Store) DeleteSiteDefinition(ctx context.Context, id string) error {
	// Delete definition data
	if err := s.client.Del(ctx, SiteKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete site definition: %w", err)
	}

	// Remove from set of all announced sites
	if err := s.client.SRem(ctx, AllSitesKey(), id).Err(); err != nil {
		return fmt.Errorf("failed to remove site from set: %w", err)
	}

	return nil
}
