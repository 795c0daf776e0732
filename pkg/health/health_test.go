package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error { return nil }

func failing(msg string) Checker {
	return func(context.Context) error { return fmt.Errorf("%s", msg) }
}

func serve(t *testing.T, handler http.HandlerFunc, path string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec, resp
}

func TestLivenessHandler_AlwaysReturns200(t *testing.T) {
	h := NewHandler()
	h.RegisterCritical("postgres", failing("connection refused"))

	rec, resp := serve(t, h.LivenessHandler(), "/health/live")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, StatusUp, resp.Status)
	assert.False(t, resp.Timestamp.IsZero())
	assert.Empty(t, resp.Checks)
}

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(h *Handler)
		wantCode    int
		wantOverall Status
	}{
		{
			name:        "no checkers",
			setup:       func(*Handler) {},
			wantCode:    http.StatusOK,
			wantOverall: StatusUp,
		},
		{
			name: "all up",
			setup: func(h *Handler) {
				h.RegisterCritical("postgres", ok)
				h.RegisterNonCritical("redis", ok)
				h.RegisterNonCritical("kafka", ok)
			},
			wantCode:    http.StatusOK,
			wantOverall: StatusUp,
		},
		{
			name: "non-critical down degrades",
			setup: func(h *Handler) {
				h.RegisterCritical("postgres", ok)
				h.RegisterNonCritical("kafka", failing("broker unreachable"))
			},
			wantCode:    http.StatusOK,
			wantOverall: StatusDegraded,
		},
		{
			name: "several non-critical down still degraded",
			setup: func(h *Handler) {
				h.RegisterCritical("postgres", ok)
				h.RegisterNonCritical("kafka", failing("kafka down"))
				h.RegisterNonCritical("redis", failing("redis down"))
			},
			wantCode:    http.StatusOK,
			wantOverall: StatusDegraded,
		},
		{
			name: "critical down",
			setup: func(h *Handler) {
				h.RegisterCritical("postgres", failing("connection refused"))
				h.RegisterNonCritical("kafka", ok)
			},
			wantCode:    http.StatusServiceUnavailable,
			wantOverall: StatusDown,
		},
		{
			name: "critical and non-critical down",
			setup: func(h *Handler) {
				h.RegisterCritical("postgres", failing("db down"))
				h.RegisterNonCritical("redis", failing("redis down"))
			},
			wantCode:    http.StatusServiceUnavailable,
			wantOverall: StatusDown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler()
			tt.setup(h)

			rec, resp := serve(t, h.ReadinessHandler(), "/health/ready")

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantOverall, resp.Status)
		})
	}
}

func TestReadinessHandler_ReportsPerCheckDetail(t *testing.T) {
	h := NewHandler()
	h.RegisterCritical("postgres", ok)
	h.RegisterNonCritical("kafka", failing("broker unreachable"))

	_, resp := serve(t, h.ReadinessHandler(), "/health/ready")

	require.Len(t, resp.Checks, 2)
	assert.Equal(t, StatusUp, resp.Checks["postgres"].Status)
	assert.True(t, resp.Checks["postgres"].Critical)
	assert.Equal(t, StatusDown, resp.Checks["kafka"].Status)
	assert.False(t, resp.Checks["kafka"].Critical)
	assert.Equal(t, "broker unreachable", resp.Checks["kafka"].Error)
}

func TestRegister_IsCriticalByDefault(t *testing.T) {
	h := NewHandler()
	h.Register("postgres", failing("fail"))

	rec, resp := serve(t, h.ReadinessHandler(), "/health/ready")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.True(t, resp.Checks["postgres"].Critical)
}

func TestRegister_OverwritesByName(t *testing.T) {
	var calls atomic.Int32
	h := NewHandler()
	h.Register("postgres", failing("old"))
	h.Register("postgres", func(context.Context) error {
		calls.Add(1)
		return nil
	})

	rec, _ := serve(t, h.ReadinessHandler(), "/health/ready")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCheck_PassesDeadlineToCheckers(t *testing.T) {
	h := NewHandler()
	h.RegisterCritical("postgres", func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return fmt.Errorf("no deadline")
		}
		return nil
	})

	assert.Equal(t, StatusUp, h.Check(context.Background()).Status)
}
