package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores product views as JSON blobs in Redis. Every method tolerates
// a nil receiver and a nil client, so callers running without Redis keep
// working against the database alone.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) usable(key string) bool {
	return c != nil && c.client != nil && key != ""
}

// GetJSON loads the payload at key into dst, reporting whether key existed.
// A cache miss is not an error.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if !c.usable(key) {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON marshals v and stores it under key for the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if !c.usable(key) {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Invalidate drops a cached key after a write so reads never serve a stale
// price or stock count past the next lookup.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	if !c.usable(key) {
		return nil
	}
	return c.client.Del(ctx, key).Err()
}
