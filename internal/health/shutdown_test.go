package health_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/presupuesto/internal/health"
)

func TestReadyReportsDrainingWithProbes(t *testing.T) {
	t.Cleanup(func() { health.SetReady(true) })
	handler := health.Handler{Probes: map[string]health.Probe{
		"redis": func(context.Context) error { return nil },
	}}
	ready := func() (int, map[string]string) {
		rec := httptest.NewRecorder()
		handler.Ready(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return rec.Code, body
	}

	health.SetReady(true)
	code, body := ready()
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, map[string]string{"redis": "ok"}, body)

	health.SetReady(false)
	code, body = ready()
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "shutting down", body["server"])
	require.Equal(t, "ok", body["redis"])

	rec := httptest.NewRecorder()
	handler.Live(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rec.Code, "liveness is unaffected by draining")
}
