package ratelimit

import (
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limitermemory "github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// NewLimiter builds a limiter for rate. Counters live in Redis when client is
// set so every API replica shares them, and in process memory otherwise.
func NewLimiter(rate limiter.Rate, client *redis.Client, prefix string) (*limiter.Limiter, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "ratelimit"
	}
	opts := limiter.StoreOptions{Prefix: prefix, MaxRetry: limiter.DefaultMaxRetry, CleanUpInterval: limiter.DefaultCleanUpInterval}
	if client == nil {
		return limiter.New(limitermemory.NewStoreWithOptions(opts), rate), nil
	}
	store, err := limiterredis.NewStoreWithOptions(client, opts)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: redis store: %w", err)
	}
	return limiter.New(store, rate), nil
}
