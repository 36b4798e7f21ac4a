package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one adapter's entries in a redis hash. The schema
// version is part of the key, so documents of another version are never read.
type RedisStore struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewRedisStore returns the store for adapter name. The hash expires ttl
// after the last flush.
func NewRedisStore(client redis.UniversalClient, name string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, key: RedisKey(name), ttl: ttl}
}

// RedisKey is the hash holding adapter name's entries.
func RedisKey(name string) string {
	return fmt.Sprintf("price-aggregator:cache:v%d:%s", SchemaVersion, name)
}

func (s *RedisStore) Load(ctx context.Context) (map[string]Entry, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.key, err)
	}

	entries := make(map[string]Entry, len(fields))
	for key, raw := range fields {
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		entries[key] = e
	}
	return entries, nil
}

// Save replaces the hash in one MULTI/EXEC block.
func (s *RedisStore) Save(ctx context.Context, entries map[string]Entry) error {
	values := make(map[string]any, len(entries))
	for key, e := range entries {
		raw, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encoding entry %q: %w", key, err)
		}
		values[key] = string(raw)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(values) > 0 {
			pipe.HSet(ctx, s.key, values)
			if s.ttl > 0 {
				pipe.Expire(ctx, s.key, s.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing %s: %w", s.key, err)
	}
	return nil
}

// Close is a no-op; the client is shared between adapters.
func (s *RedisStore) Close() error { return nil }
