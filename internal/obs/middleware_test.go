package obs_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/presupuesto/internal/obs"
)

func TestHTTPMetricsLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("presupuesto", []float64{1, 10}, registry)
	r := chi.NewRouter()
	r.Use(obs.HTTPObs{Metrics: metrics}.Middleware)
	r.Get("/api/v1/budgets/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/budgets/b-1", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rr.Code)
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	total := testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "/api/v1/budgets/{id}", "204"))
	if total != 1 {
		t.Fatalf("expected counter to be 1, got %v", total)
	}
	if unmatched := testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "unmatched", "404")); unmatched != 1 {
		t.Fatalf("expected unmatched counter to be 1, got %v", unmatched)
	}
	if samples := testutil.CollectAndCount(metrics.ReqDur); samples == 0 {
		t.Fatalf("expected histogram sample")
	}
	if samples := testutil.CollectAndCount(metrics.RespSize); samples != 2 {
		t.Fatalf("expected response size per route, got %d", samples)
	}
	if val := testutil.ToFloat64(metrics.InFlight); val != 0 {
		t.Fatalf("expected no in-flight requests, got %v", val)
	}

	again := obs.NewHTTPMetrics("presupuesto", nil, registry)
	if again.ReqTotal != metrics.ReqTotal {
		t.Fatalf("expected registered collectors to be reused")
	}
}

func TestTracingMiddlewareNamesSpanByRoute(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	r := chi.NewRouter()
	r.Use(obs.TracingMiddleware)
	r.Get("/api/v1/products/{code}", func(w http.ResponseWriter, r *http.Request) {
		if !trace.SpanContextFromContext(r.Context()).IsValid() {
			t.Errorf("expected span in handler context")
		}
		w.WriteHeader(http.StatusBadGateway)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/products/A1", nil))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected one span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name() != "GET /api/v1/products/{code}" {
		t.Fatalf("unexpected span name %q", span.Name())
	}
	if span.SpanKind() != trace.SpanKindServer {
		t.Fatalf("unexpected span kind %v", span.SpanKind())
	}
	if span.Status().Code != codes.Error {
		t.Fatalf("expected error status for 502, got %v", span.Status().Code)
	}
	found := false
	for _, kv := range span.Attributes() {
		if kv.Key == "presupuesto.product_code" && kv.Value.AsString() == "A1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected product code attribute, got %v", span.Attributes())
	}
}

func TestRequestLoggerWritesRoute(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	r := chi.NewRouter()
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Get("/api/v1/carts/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/carts/abc", nil))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["message"] != "http_request" {
		t.Fatalf("unexpected message %v", entry["message"])
	}
	if entry["status"] != float64(http.StatusTeapot) {
		t.Fatalf("unexpected status %v", entry["status"])
	}
	if entry["resource_id"] != "abc" {
		t.Fatalf("expected resource id, got %v", entry["resource_id"])
	}
}

func TestDomainMetricsRegisterOnce(t *testing.T) {
	registry := prometheus.NewRegistry()
	obs.MustRegisterDomainMetrics(registry)
	obs.MustRegisterDomainMetrics(registry)

	obs.CartMutationsTotal.WithLabelValues("add").Inc()
	if v := testutil.ToFloat64(obs.CartMutationsTotal.WithLabelValues("add")); v < 1 {
		t.Fatalf("expected cart mutation counter, got %v", v)
	}
	if n := testutil.CollectAndCount(obs.CatalogReplaceTotal); n != 0 {
		t.Fatalf("expected no catalog samples yet, got %d", n)
	}
}

func TestParseBucketsCSV(t *testing.T) {
	got := obs.ParseBucketsCSV("25, 5, 10,x,-1,,10")
	if len(got) != 3 || got[0] != 5 || got[2] != 25 {
		t.Fatalf("unexpected buckets %v", got)
	}
	if obs.ParseBucketsCSV("  ") != nil {
		t.Fatalf("expected nil for empty input")
	}
}
