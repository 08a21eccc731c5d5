package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	redis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

var draining atomic.Bool

// SetReady flips the process readiness. cmd/api clears it when shutdown starts
// so load balancers stop routing before connections are drained.
func SetReady(ready bool) {
	draining.Store(!ready)
}

// Probe checks one dependency. A nil error means healthy.
type Probe func(ctx context.Context) error

// RedisProbe pings client.
func RedisProbe(client *redis.Client) Probe {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Probes  map[string]Probe
	Timeout time.Duration
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness. Probes run concurrently, each bounded by Timeout,
// and the body maps every probe name to "ok" or its error.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	results := make([]string, len(h.Probes))
	names := make([]string, 0, len(h.Probes))
	for name := range h.Probes {
		names = append(names, name)
	}
	sort.Strings(names)

	var g errgroup.Group
	for i, name := range names {
		probe := h.Probes[name]
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
			defer cancel()
			if err := probe(ctx); err != nil {
				results[i] = err.Error()
				return err
			}
			results[i] = "ok"
			return nil
		})
	}
	healthy := g.Wait() == nil

	status := make(map[string]string, len(names)+1)
	for i, name := range names {
		status[name] = results[i]
	}
	if draining.Load() {
		status["server"] = "shutting down"
		healthy = false
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

func (h Handler) timeout() time.Duration {
	if h.Timeout <= 0 {
		return 300 * time.Millisecond
	}
	return h.Timeout
}
