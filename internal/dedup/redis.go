package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore tracks seen slugs in Redis so scheduled runs can skip records
// already harvested recently. Entries expire after TTL; an expired slug is
// simply re-harvested, which the upsert semantics make safe.
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisStore parses redisURL, verifies connectivity, and returns a store
// keyed under "jobharvest:seen".
func NewRedisStore(ctx context.Context, redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", redisURL, err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{client: client, key: "jobharvest:seen", ttl: ttl}, nil
}

// MarkIfNew sets a per-slug key with NX semantics; the first caller wins.
func (s *RedisStore) MarkIfNew(ctx context.Context, slug string) (bool, error) {
	if slug == "" {
		return false, nil
	}
	ok, err := s.client.SetNX(ctx, s.key+":"+slug, 1, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Close releases the underlying connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
