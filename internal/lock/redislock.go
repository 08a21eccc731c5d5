package lock

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// minTTL keeps the refresh ticker positive and PEXPIRE above zero.
const minTTL = 10 * time.Millisecond

var (
	releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0`)
	refreshScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`)
)

// Redis is a Locker shared by every process using the same Redis. Keys are
// namespaced with Prefix.
//
// The holder's token is refreshed every ttl/3 while fn runs, so ttl only
// bounds how long a crashed holder blocks others.
type Redis struct {
	R            *redis.Client
	Prefix       string
	RetryBackoff time.Duration
}

// WithLock implements Locker. A cancelled ctx aborts the wait.
func (l Redis) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return ErrNoCallback
	}
	switch {
	case ttl <= 0:
		ttl = 30 * time.Second
	case ttl < minTTL:
		ttl = minTTL
	}
	key = l.Prefix + key
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token, ttl); err != nil {
		return err
	}
	stop := l.keepAlive(key, token, ttl)
	defer func() {
		stop()
		_ = releaseScript.Run(context.Background(), l.R, []string{key}, token).Err()
	}()
	return fn(ctx)
}

func (l Redis) acquire(ctx context.Context, key, token string, ttl time.Duration) error {
	base := l.RetryBackoff
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	for {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		// jitter spreads waiters that queued on the same release
		wait := base/2 + rand.N(base)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// keepAlive extends the key until the returned func is called. A refresh
// that finds another token stops quietly.
func (l Redis) keepAlive(key, token string, ttl time.Duration) func() {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		interval := ttl / 3
		if interval <= 0 {
			interval = minTTL / 3
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				n, err := refreshScript.Run(context.Background(), l.R, []string{key}, token, ttl.Milliseconds()).Int()
				if err == nil && n == 0 {
					return
				}
			}
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}
