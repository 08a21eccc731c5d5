package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// JSON stores JSON encoded values in Redis.
type JSON struct {
	client *redis.Client
	ttl    time.Duration
}

// NewJSON constructs a JSON store. A zero ttl keeps keys without expiry.
func NewJSON(client *redis.Client, ttl time.Duration) *JSON {
	if ttl < 0 {
		ttl = 0
	}
	return &JSON{client: client, ttl: ttl}
}

// Get unmarshals the value stored under key into dst. It reports whether the key existed.
func (c *JSON) Get(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil || c.client == nil || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// Set serialises v as JSON and stores it with the configured TTL.
func (c *JSON) Set(ctx context.Context, key string, v any) error {
	if c == nil || c.client == nil {
		return errors.New("cache: redis client not configured")
	}
	if key == "" {
		return errors.New("cache: key is required")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Delete removes key.
func (c *JSON) Delete(ctx context.Context, key string) error {
	if c == nil || c.client == nil || key == "" {
		return nil
	}
	return c.client.Del(ctx, key).Err()
}
