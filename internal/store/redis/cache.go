package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/derefd/internal/site"
)

// DefaultCacheTTL is the default TTL for cached dereference results
const DefaultCacheTTL = 10 * time.Minute

// CacheRepresentation stores the dereference result of uri for engine
func (s *Store) CacheRepresentation(ctx context.Context, engine, uri string, rep *site.Representation, ttl time.Duration) error {
	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("failed to marshal representation: %w", err)
	}
	if err := s.client.Set(ctx, CacheKey(engine, uri), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache representation: %w", err)
	}
	return nil
}

// GetCachedRepresentation retrieves a cached dereference result. It returns
// nil, nil on a cache miss.
func (s *Store) GetCachedRepresentation(ctx context.Context, engine, uri string) (*site.Representation, error) {
	data, err := s.client.Get(ctx, CacheKey(engine, uri)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("failed to get cached representation: %w", err)
	}

	var rep site.Representation
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached representation: %w", err)
	}
	return &rep, nil
}

// FlushCache removes all cached dereference results
func (s *Store) FlushCache(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, KeyPrefixCache+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete cache key: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to flush cache: %w", err)
	}
	return nil
}

// RepresentationCache adapts the store to the engine cache interface.
type RepresentationCache struct {
	Store *Store
	TTL   time.Duration
}

func (c RepresentationCache) Get(ctx context.Context, engine, uri string) (*site.Representation, error) {
	return c.Store.GetCachedRepresentation(ctx, engine, uri)
}

func (c RepresentationCache) Put(ctx context.Context, engine, uri string, rep *site.Representation) error {
	ttl := c.TTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return c.Store.CacheRepresentation(ctx, engine, uri, rep, ttl)
}
