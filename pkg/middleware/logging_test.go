package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KingHarry001/portfolio/pkg/logger"
)

func jsonLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func lastLogLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	return entry
}

func TestRequestLogging_GeneratesCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	var seen string
	h := RequestLogging(jsonLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.CorrelationIDFromContext(r.Context())
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/items/app-1/reviews", nil))

	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Correlation-ID"))

	entry := lastLogLine(t, &buf)
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, float64(http.StatusCreated), entry["status"])
	assert.Equal(t, seen, entry["correlation_id"])
}

func TestRequestLogging_ReusesInboundIDAndLevelsByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusForbidden, "WARN"},
		{http.StatusInternalServerError, "ERROR"},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		h := RequestLogging(jsonLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/reviews/rev-1", nil)
		req.Header.Set("X-Correlation-ID", "corr-123")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "corr-123", rec.Header().Get("X-Correlation-ID"))
		entry := lastLogLine(t, &buf)
		assert.Equal(t, tt.level, entry["level"], "status %d", tt.status)
	}
}

func TestRequestLogger_StoresEnrichedLogger(t *testing.T) {
	var buf bytes.Buffer
	chain := RequestLogging(newTestLogger())(RequestLogger(jsonLogger(&buf))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.FromContext(r.Context()).Info("listing reviews")
		}),
	))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/items/app-1/reviews", nil)
	req.Header.Set("X-Correlation-ID", "corr-abc")
	chain.ServeHTTP(httptest.NewRecorder(), req)

	entry := lastLogLine(t, &buf)
	assert.Equal(t, "listing reviews", entry["msg"])
	assert.Equal(t, "corr-abc", entry["correlation_id"])
	assert.NotContains(t, entry, "user_id")
}

func TestRecovery_Returns500Envelope(t *testing.T) {
	var buf bytes.Buffer
	h := Recovery(jsonLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("store exploded")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/items/app-1/reviews", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"INTERNAL_ERROR"`)
	assert.Contains(t, buf.String(), "store exploded")
}

func TestRecovery_ReraisesAbortHandler(t *testing.T) {
	h := Recovery(newTestLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestRevalidate(t *testing.T) {
	h := Revalidate(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/items/app-1/reviews/stats", nil))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/items/app-1/reviews", nil))
	assert.Empty(t, rec.Header().Get("Cache-Control"))
}

func TestNoStore(t *testing.T) {
	rec := httptest.NewRecorder()
	NoStore(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/items/app-1/reviews/mine", nil))

	assert.Equal(t, "private, no-store", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Header().Values("Vary"), "Authorization")
}

func metricValue(t *testing.T, m prometheus.Metric) *dto.Metric {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	return &out
}

func TestPrometheusMetrics_LabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(PrometheusMetrics("metrics-test"))
	r.Get("/api/v1/items/{itemId}/reviews", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	for _, item := range []string{"app-1", "app-2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/items/"+item+"/reviews", nil))
	}

	counter := httpRequestsTotal.WithLabelValues("metrics-test", http.MethodGet, "/api/v1/items/{itemId}/reviews", "202")
	assert.Equal(t, float64(2), metricValue(t, counter).GetCounter().GetValue())
	assert.Equal(t, float64(0), metricValue(t, httpRequestsInFlight.WithLabelValues("metrics-test")).GetGauge().GetValue())
}

func TestStatusRecorder_DefaultsTo200AndKeepsFirstStatus(t *testing.T) {
	rec := newStatusRecorder(httptest.NewRecorder())
	_, _ = rec.Write([]byte("ok"))
	rec.WriteHeader(http.StatusTeapot)

	assert.Equal(t, http.StatusOK, rec.status)
	assert.Equal(t, 2, rec.bytes)
	assert.Same(t, rec, newStatusRecorder(rec))
}
