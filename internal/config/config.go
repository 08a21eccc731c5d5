package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/presupuesto/internal/paymethod"
	"github.com/noah-isme/presupuesto/internal/pricing"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	KeyPrefix          string
	CORSAllowedOrigins []string

	CartTTL             time.Duration
	BudgetTTL           time.Duration
	CatalogDefaultLimit int
	CatalogMaxLimit     int
	CatalogCacheTTL     time.Duration
	ImportMaxBytes      int64
	PaymentMethods      []pricing.Method

	UpstreamBaseURL     string
	UpstreamToken       string
	UpstreamTimeout     time.Duration
	UpstreamPageSize    int
	UpstreamMaxAttempts int

	RateLimit         limiter.Rate
	IdempotencyTTL    time.Duration
	LockTTL           time.Duration
	WorkerConcurrency int
	SyncUniqueWindow  time.Duration
}

// methodConfig is one entry of PAYMENT_METHODS_JSON. Interest is given in percent.
type methodConfig struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Installments    int             `json:"installments"`
	InterestPercent decimal.Decimal `json:"interestPercent"`
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	ints := intReader{k: k}
	cfg := &Config{
		AppEnv:              valueOrDefault(k.String("APP_ENV"), "development"),
		Port:                valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:            strings.TrimSpace(k.String("REDIS_URL")),
		KeyPrefix:           valueOrDefault(k.String("REDIS_KEY_PREFIX"), "presupuesto"),
		CORSAllowedOrigins:  splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		CartTTL:             parseDuration(k.String("CART_TTL"), "72h"),
		BudgetTTL:           parseDuration(k.String("BUDGET_TTL"), "720h"),
		CatalogDefaultLimit: ints.get("CATALOG_DEFAULT_LIMIT", 50),
		CatalogMaxLimit:     ints.get("CATALOG_MAX_LIMIT", 500),
		CatalogCacheTTL:     parseDuration(k.String("CATALOG_CACHE_TTL"), "30s"),
		ImportMaxBytes:      int64(ints.get("IMPORT_MAX_BYTES", 10<<20)),
		UpstreamBaseURL:     strings.TrimSpace(k.String("UPSTREAM_BASE_URL")),
		UpstreamToken:       strings.TrimSpace(k.String("UPSTREAM_TOKEN")),
		UpstreamTimeout:     parseDuration(k.String("UPSTREAM_TIMEOUT"), "10s"),
		UpstreamPageSize:    ints.get("UPSTREAM_PAGE_SIZE", 100),
		UpstreamMaxAttempts: ints.get("UPSTREAM_MAX_ATTEMPTS", 3),
		IdempotencyTTL:      parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		LockTTL:             parseDuration(k.String("LOCK_TTL"), "5s"),
		WorkerConcurrency:   ints.get("WORKER_CONCURRENCY", 5),
		SyncUniqueWindow:    parseDuration(k.String("SYNC_UNIQUE_WINDOW"), "1m"),
	}

	if err := errors.Join(ints.errs...); err != nil {
		return nil, err
	}

	rate, err := limiter.NewRateFromFormatted(valueOrDefault(k.String("RATE_LIMIT"), "120-M"))
	if err != nil {
		return nil, fmt.Errorf("RATE_LIMIT: %w", err)
	}
	cfg.RateLimit = rate

	methods, err := parseMethods(k.String("PAYMENT_METHODS_JSON"))
	if err != nil {
		return nil, err
	}
	cfg.PaymentMethods = methods

	if cfg.CatalogDefaultLimit < 1 || cfg.CatalogMaxLimit < 1 {
		return nil, errors.New("CATALOG_DEFAULT_LIMIT and CATALOG_MAX_LIMIT must be positive")
	}
	if cfg.CatalogDefaultLimit > cfg.CatalogMaxLimit {
		return nil, errors.New("CATALOG_DEFAULT_LIMIT exceeds CATALOG_MAX_LIMIT")
	}
	if cfg.ImportMaxBytes <= 0 {
		return nil, errors.New("IMPORT_MAX_BYTES must be positive")
	}
	if cfg.LockTTL < time.Millisecond {
		return nil, errors.New("LOCK_TTL must be at least 1ms")
	}
	if cfg.WorkerConcurrency < 1 {
		cfg.WorkerConcurrency = 1
	}
	return cfg, nil
}

// parseMethods decodes PAYMENT_METHODS_JSON, falling back to the built-in methods.
func parseMethods(raw string) ([]pricing.Method, error) {
	if strings.TrimSpace(raw) == "" {
		return paymethod.Defaults(), nil
	}
	var entries []methodConfig
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("PAYMENT_METHODS_JSON: %w", err)
	}
	methods := make([]pricing.Method, 0, len(entries))
	for _, e := range entries {
		methods = append(methods, pricing.Method{
			ID:           strings.TrimSpace(e.ID),
			Name:         strings.TrimSpace(e.Name),
			Installments: e.Installments,
			Surcharge:    pricing.Percent(e.InterestPercent),
		})
	}
	if err := paymethod.ValidateAll(methods); err != nil {
		return nil, fmt.Errorf("PAYMENT_METHODS_JSON: %w", err)
	}
	return methods, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// UpstreamEnabled reports whether an upstream product API is configured.
func (c *Config) UpstreamEnabled() bool {
	return c.UpstreamBaseURL != ""
}

// RedisEnabled reports whether Redis-backed stores should be used.
func (c *Config) RedisEnabled() bool {
	return c.RedisURL != ""
}

// intReader reads integer keys. Unset keys take the fallback; malformed
// values are collected as errors.
type intReader struct {
	k    *koanf.Koanf
	errs []error
}

func (r *intReader) get(key string, fallback int) int {
	raw := strings.TrimSpace(r.k.String(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
