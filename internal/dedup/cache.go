package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache collapses retried deliveries of the same logical reading within a
// bounded window. Absence of an entry means "not a duplicate", never
// "definitely never seen".
type Cache interface {
	// MarkIfNew records the key with the given TTL. Returns true when the key
	// was not present (first sight), false when it was (replay).
	MarkIfNew(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type RedisCache struct {
	client *redis.Client
	prefix string
}

func NewRedisCache(client *redis.Client, storeID string) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: fmt.Sprintf("hub:%s:dedup:", storeID),
	}
}

func (c *RedisCache) MarkIfNew(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, c.prefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark dedup key: %w", err)
	}
	return ok, nil
}
