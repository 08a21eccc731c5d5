// Package app assembles the services shared by the api, worker and tool binaries.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/presupuesto/internal/budget"
	"github.com/noah-isme/presupuesto/internal/cache"
	"github.com/noah-isme/presupuesto/internal/cart"
	"github.com/noah-isme/presupuesto/internal/catalog"
	"github.com/noah-isme/presupuesto/internal/common"
	"github.com/noah-isme/presupuesto/internal/config"
	"github.com/noah-isme/presupuesto/internal/jobs"
	"github.com/noah-isme/presupuesto/internal/lock"
	"github.com/noah-isme/presupuesto/internal/paymethod"
	"github.com/noah-isme/presupuesto/internal/ratelimit"
	"github.com/noah-isme/presupuesto/internal/resilience"
	"github.com/noah-isme/presupuesto/internal/upstream"
)

// Options tweaks how Build wires optional infrastructure.
type Options struct {
	// Redis overrides the client built from the configured REDIS_URL.
	Redis           *redis.Client
	InstrumentRedis bool
	RedisMetrics    bool
}

// Dependencies enumerates the services wired from configuration.
type Dependencies struct {
	Config *config.Config
	Logger zerolog.Logger
	Redis  *redis.Client
	Keys   cache.Keys
	Locker lock.Locker

	Catalog        *catalog.Service
	PaymentMethods *paymethod.Service
	Carts          *cart.Service
	Budgets        *budget.Service

	// Upstream is nil when no UPSTREAM_BASE_URL is configured.
	Upstream *upstream.Client
	// Tasks is nil without Redis.
	Tasks       *asynq.Client
	TaskRedis   asynq.RedisClientOpt
	Enqueuer    *jobs.Enqueuer
	Limiter     *limiter.Limiter
	Idempotency common.Idem

	closers []func() error
}

// Build wires every service from cfg. Without Redis all state lives in memory
// and background sync is disabled.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (*Dependencies, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	d := &Dependencies{Config: cfg, Logger: logger, Keys: cache.Keys{Prefix: cfg.KeyPrefix}}

	rdb := opts.Redis
	if rdb == nil && cfg.RedisEnabled() {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		rdb = redis.NewClient(redisOpts)
		d.closers = append(d.closers, rdb.Close)
	}
	if rdb != nil {
		if opts.InstrumentRedis {
			if err := redisotel.InstrumentTracing(rdb); err != nil {
				logger.Error().Err(err).Msg("instrument redis tracing")
			}
			if opts.RedisMetrics {
				if err := redisotel.InstrumentMetrics(rdb); err != nil {
					logger.Error().Err(err).Msg("instrument redis metrics")
				}
			}
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			d.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
	}
	d.Redis = rdb

	var (
		catalogRepo catalog.Repository
		methodRepo  paymethod.Repository
		cartStore   cart.Store
		budgetRepo  budget.Repository
	)
	if rdb != nil {
		d.Locker = lock.Redis{R: rdb, Prefix: d.Keys.Lock("")}
		catalogRepo = catalog.RedisRepository{Store: cache.NewJSON(rdb, 0), Key: d.Keys.Catalog()}
		methodRepo = paymethod.RedisRepository{Store: cache.NewJSON(rdb, 0), Key: d.Keys.PaymentMethods()}
		cartStore = cart.RedisStore{Store: cache.NewJSON(rdb, cfg.CartTTL), Keys: d.Keys}
		budgetRepo = budget.RedisRepository{Store: cache.NewJSON(rdb, cfg.BudgetTTL), Keys: d.Keys}
	} else {
		d.Locker = lock.NewLocal()
		catalogRepo = catalog.NewMemoryRepository()
		methodRepo = paymethod.NewMemoryRepository()
		cartStore = cart.NewMemoryStore(cfg.CartTTL)
		budgetRepo = budget.NewMemoryRepository(cfg.BudgetTTL)
	}

	catalogLogger := logger.With().Str("component", "catalog").Logger()
	catalogSvc, err := catalog.NewService(catalog.ServiceConfig{
		Repository:   catalogRepo,
		DefaultLimit: cfg.CatalogDefaultLimit,
		MaxLimit:     cfg.CatalogMaxLimit,
		CacheTTL:     cfg.CatalogCacheTTL,
		Logger:       &catalogLogger,
	})
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("initialise catalog service: %w", err)
	}
	d.Catalog = catalogSvc

	methodLogger := logger.With().Str("component", "payment_methods").Logger()
	methodSvc, err := paymethod.NewService(paymethod.ServiceConfig{
		Defaults:   cfg.PaymentMethods,
		Repository: methodRepo,
		Locker:     d.Locker,
		Logger:     &methodLogger,
	})
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("initialise payment method service: %w", err)
	}
	d.PaymentMethods = methodSvc

	d.Carts = &cart.Service{
		Store:   cartStore,
		Catalog: catalogSvc,
		Methods: methodSvc,
		Locker:  d.Locker,
		LockTTL: cfg.LockTTL,
		Logger:  logger.With().Str("component", "cart").Logger(),
	}
	d.Budgets = &budget.Service{
		Carts:  d.Carts,
		Repo:   budgetRepo,
		Logger: logger.With().Str("component", "budget").Logger(),
	}

	if cfg.UpstreamEnabled() {
		upstreamLogger := logger.With().Str("component", "upstream").Logger()
		client, err := upstream.NewClient(upstream.Config{
			BaseURL:     cfg.UpstreamBaseURL,
			Token:       cfg.UpstreamToken,
			Timeout:     cfg.UpstreamTimeout,
			MaxAttempts: cfg.UpstreamMaxAttempts,
			Breaker: resilience.NewBreaker(resilience.BreakerOptions{
				Target: "upstream_products",
				Logger: &upstreamLogger,
			}),
			Logger: &upstreamLogger,
		})
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("initialise upstream client: %w", err)
		}
		d.Upstream = client
	}

	if rdb != nil {
		d.TaskRedis = taskRedisOpt(rdb.Options())
		d.Tasks = asynq.NewClient(d.TaskRedis)
		d.closers = append(d.closers, d.Tasks.Close)
		d.Enqueuer = &jobs.Enqueuer{Client: d.Tasks, PageSize: cfg.UpstreamPageSize, Unique: cfg.SyncUniqueWindow}
	}

	lim, err := ratelimit.NewLimiter(cfg.RateLimit, rdb, d.Keys.RateLimit())
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("initialise rate limiter: %w", err)
	}
	d.Limiter = lim
	d.Idempotency = common.Idem{R: rdb, TTL: cfg.IdempotencyTTL, Prefix: d.Keys.Idempotency()}
	return d, nil
}

func taskRedisOpt(o *redis.Options) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Network:      o.Network,
		Addr:         o.Addr,
		Username:     o.Username,
		Password:     o.Password,
		DB:           o.DB,
		DialTimeout:  o.DialTimeout,
		ReadTimeout:  o.ReadTimeout,
		WriteTimeout: o.WriteTimeout,
		PoolSize:     o.PoolSize,
		TLSConfig:    o.TLSConfig,
	}
}

// SyncEnqueuer returns the sync scheduler, or nil when background sync is unavailable.
func (d *Dependencies) SyncEnqueuer() catalog.SyncEnqueuer {
	if d.Enqueuer == nil || d.Upstream == nil {
		return nil
	}
	return d.Enqueuer
}

// SyncHandler returns the worker handler for catalog sync tasks.
func (d *Dependencies) SyncHandler() (*jobs.SyncHandler, error) {
	if d.Upstream == nil {
		return nil, errors.New("app: UPSTREAM_BASE_URL is not configured")
	}
	return &jobs.SyncHandler{
		Source:   d.Upstream,
		Catalog:  d.Catalog,
		PageSize: d.Config.UpstreamPageSize,
		Logger:   d.Logger.With().Str("component", "sync").Logger(),
	}, nil
}

// Close releases the connections Build opened.
func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
