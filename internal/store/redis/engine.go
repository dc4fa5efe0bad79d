package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// EngineRecord describes a published engine registration.
type EngineRecord struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Site         string    `json:"site"`
	Ranking      int       `json:"ranking"`
	Capabilities []string  `json:"capabilities"`
	PublishedAt  time.Time `json:"published_at"`
}

// Store handles Redis operations for engine records, site definitions and cache
type Store struct {
	client *redis.Client
}

// NewStore creates a new Redis store
func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
	}
}

// SaveEngine stores an engine record in Redis
func (s *Store) SaveEngine(ctx context.Context, rec *EngineRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal engine record: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, EngineKey(rec.ID), data, 0)
	pipe.SAdd(ctx, AllEnginesKey(), rec.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save engine record: %w", err)
	}

	return nil
}

// GetEngine retrieves an engine record from Redis by registration ID
func (s *Store) GetEngine(ctx context.Context, id string) (*EngineRecord, error) {
	data, err := s.client.Get(ctx, EngineKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("engine record not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get engine record: %w", err)
	}

	var rec EngineRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal engine record: %w", err)
	}

	return &rec, nil
}

// GetAllEngines retrieves all engine records from Redis
func (s *Store) GetAllEngines(ctx context.Context) ([]*EngineRecord, error) {
	ids, err := s.client.SMembers(ctx, AllEnginesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get engine IDs: %w", err)
	}

	records := make([]*EngineRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.GetEngine(ctx, id)
		if err != nil {
			// Skip records that couldn't be retrieved
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

// DeleteEngine removes an engine record from Redis
func (s *Store) DeleteEngine(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, EngineKey(id))
	pipe.SRem(ctx, AllEnginesKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete engine record: %w", err)
	}

	return nil
}

// FlushEngines removes every engine record and returns how many were removed
func (s *Store) FlushEngines(ctx context.Context) (int, error) {
	ids, err := s.client.SMembers(ctx, AllEnginesKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get engine IDs: %w", err)
	}

	pipe := s.client.Pipeline()
	for _, id := range ids {
		pipe.Del(ctx, EngineKey(id))
	}
	pipe.Del(ctx, AllEnginesKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to flush engine records: %w", err)
	}

	return len(ids), nil
}
