package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/noah-isme/presupuesto/internal/app"
	"github.com/noah-isme/presupuesto/internal/config"
	"github.com/noah-isme/presupuesto/internal/health"
	"github.com/noah-isme/presupuesto/internal/obs"
	"github.com/noah-isme/presupuesto/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "presupuesto")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	if metricsEnabled {
		obs.MustRegisterDomainMetrics(prometheus.DefaultRegisterer)
	}

	tracingEnabled := envBool("OBS_ENABLE_TRACING", false)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "presupuesto-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	deps, err := app.Build(initCtx, cfg, logger, app.Options{InstrumentRedis: true, RedisMetrics: metricsEnabled})
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Error().Err(err).Msg("close dependencies")
		}
	}()
	if !cfg.RedisEnabled() {
		logger.Warn().Msg("REDIS_URL not set; using in-memory stores")
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	var pprofHandler http.Handler
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		pprofHandler = protectPprof(newPprofMux(), user, pass)
	}

	probes := map[string]health.Probe{}
	if deps.Redis != nil {
		probes["redis"] = health.RedisProbe(deps.Redis)
	}

	handler := newRouter(routerConfig{
		Deps:         deps,
		Logger:       logger,
		HTTPMetrics:  httpMetrics,
		Tracing:      tracingEnabled,
		ServeMetrics: metricsEnabled,
		Pprof:        pprofHandler,
		Headers: security.Headers{
			Enable:                envBool("SECURE_HEADERS_ENABLE", true),
			EnableHSTS:            envBool("SECURE_HSTS_ENABLE", false),
			HSTSMaxAge:            envInt("SECURE_HSTS_MAX_AGE", 31536000),
			HSTSIncludeSubdomains: envBool("SECURE_HSTS_INCLUDE_SUBDOMAINS", true),
			TrustForwardedProto:   envBool("SECURE_TRUST_FORWARDED_PROTO", false),
		},
		JSONBodyLimit:  int64(envInt("SECURE_JSON_BODY_LIMIT_BYTES", 1<<20)),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Health: health.Handler{
			Probes:  probes,
			Timeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), envDurationMillis("SHUTDOWN_TIMEOUT_MS", 10000))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown http server")
		}
	}()

	health.SetReady(true)
	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}
