package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/presupuesto/internal/app"
	"github.com/noah-isme/presupuesto/internal/budget"
	"github.com/noah-isme/presupuesto/internal/cart"
	"github.com/noah-isme/presupuesto/internal/catalog"
	"github.com/noah-isme/presupuesto/internal/health"
	"github.com/noah-isme/presupuesto/internal/importer"
	"github.com/noah-isme/presupuesto/internal/obs"
	"github.com/noah-isme/presupuesto/internal/paymethod"
	"github.com/noah-isme/presupuesto/internal/ratelimit"
	"github.com/noah-isme/presupuesto/internal/security"
)

type routerConfig struct {
	Deps           *app.Dependencies
	Logger         zerolog.Logger
	HTTPMetrics    *obs.HTTPMetrics
	Tracing        bool
	ServeMetrics   bool
	Pprof          http.Handler
	Headers        security.Headers
	JSONBodyLimit  int64
	AllowedOrigins []string
	Health         health.Handler
}

func newRouter(rc routerConfig) http.Handler {
	deps := rc.Deps
	cfg := deps.Config

	catalogLogger := rc.Logger.With().Str("component", "catalog_http").Logger()
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{
		Service:        deps.Catalog,
		Methods:        deps.PaymentMethods,
		Workbook:       importer.Reader{},
		Sync:           deps.SyncEnqueuer(),
		ImportMaxBytes: cfg.ImportMaxBytes,
		Logger:         &catalogLogger,
	})
	methodHandler := &paymethod.Handler{Svc: deps.PaymentMethods}
	cartHandler := &cart.Handler{Svc: deps.Carts}
	budgetHandler := &budget.Handler{Svc: deps.Budgets}

	limited := ratelimit.Handler{
		Limiter: deps.Limiter,
		OnError: func(err error) {
			rc.Logger.Warn().Err(err).Msg("rate_limit_store_error")
		},
	}
	idem := deps.Idempotency

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if rc.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if rc.HTTPMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: rc.HTTPMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: rc.Logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(rc.AllowedOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Location", "X-Total-Count", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if rc.ServeMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}
	if rc.Pprof != nil {
		r.Mount("/debug/pprof", rc.Pprof)
	}
	r.Get("/health/live", rc.Health.Live)
	r.Get("/health/ready", rc.Health.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(rc.Headers.Middleware)
		v.Use(security.BodyLimit{Max: rc.JSONBodyLimit}.Middleware)

		v.Get("/products", catalogHandler.Products)
		v.Get("/products/{code}", catalogHandler.Product)
		v.Get("/products/{code}/installments", catalogHandler.Installments)
		v.Group(func(g chi.Router) {
			g.Use(limited.Middleware)
			g.Post("/products/import", catalogHandler.Import)
			g.Post("/products/sync", catalogHandler.Sync)
		})

		v.Route("/payment-methods", func(p chi.Router) {
			p.Get("/", methodHandler.List)
			p.Group(func(g chi.Router) {
				g.Use(limited.Middleware)
				g.Post("/", methodHandler.Create)
				g.Put("/{id}", methodHandler.Update)
			})
		})

		v.Route("/carts", func(c chi.Router) {
			c.Get("/{id}", cartHandler.Get)
			c.Post("/{id}/quote", cartHandler.Quote)
			c.Group(func(g chi.Router) {
				g.Use(limited.Middleware)
				g.With(idem.Middleware).Post("/", cartHandler.Create)
				g.Post("/{id}/items", cartHandler.AddItem)
				g.Put("/{id}/items/{code}", cartHandler.UpdateItem)
				g.Delete("/{id}/items/{code}", cartHandler.RemoveItem)
				g.Delete("/{id}/items", cartHandler.Clear)
				g.With(idem.Middleware).Post("/{id}/budgets", budgetHandler.Generate)
			})
		})

		v.Get("/budgets/{id}", budgetHandler.Get)
		v.Get("/budgets/{id}/export", budgetHandler.Export)
	})
	return r
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
