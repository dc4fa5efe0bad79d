package site

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix is used when a redis site has no explicit prefix.
const DefaultKeyPrefix = "derefd:site"

// RedisSite reads entities stored as hashes: one field per hash entry, each
// value a JSON array of strings.
type RedisSite struct {
	id     string
	prefix string
	client *redis.Client
}

func NewRedisSite(id, prefix string, client *redis.Client) *RedisSite {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisSite{id: id, prefix: prefix, client: client}
}

func (s *RedisSite) ID() string { return s.id }

// EntityKey returns the hash key holding uri.
func (s *RedisSite) EntityKey(uri string) string {
	return fmt.Sprintf("%s:%s:entity:%s", s.prefix, s.id, uri)
}

// Store writes the fields of uri, replacing any previous content.
func (s *RedisSite) Store(ctx context.Context, uri string, fields map[string][]string) error {
	key := s.EntityKey(uri)
	values := make(map[string]any, len(fields))
	for f, v := range fields {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal field %s: %w", f, err)
		}
		values[f] = data
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(values) > 0 {
		pipe.HSet(ctx, key, values)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store entity %s: %w", uri, err)
	}
	return nil
}

func (s *RedisSite) Lookup(ctx context.Context, uri string, fields []string) (*Representation, error) {
	key := s.EntityKey(uri)

	raw, err := s.readFields(ctx, key, fields)
	if err != nil {
		return nil, fmt.Errorf("failed to read entity %s: %w", uri, err)
	}
	if raw == nil {
		return nil, ErrEntityNotFound
	}

	rep := &Representation{ID: uri, Site: s.id, Fields: make(map[string][]string, len(raw))}
	for f, v := range raw {
		var values []string
		if err := json.Unmarshal([]byte(v), &values); err != nil {
			return nil, fmt.Errorf("failed to decode field %s of %s: %w", f, uri, err)
		}
		if len(values) > 0 {
			rep.Fields[f] = values
		}
	}
	return rep, nil
}

// readFields returns nil when the entity does not exist.
func (s *RedisSite) readFields(ctx context.Context, key string, fields []string) (map[string]string, error) {
	if len(fields) == 0 {
		all, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		if len(all) == 0 {
			return nil, nil
		}
		return all, nil
	}

	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	vals, err := s.client.HMGet(ctx, key, fields...).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(fields))
	for i, v := range vals {
		if str, ok := v.(string); ok {
			out[fields[i]] = str
		}
	}
	return out, nil
}
