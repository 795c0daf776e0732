package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KingHarry001/portfolio/internal/config"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Environment:          "development",
		LogLevel:             "error",
		HTTPPort:             8010,
		Store:                config.StoreMemory,
		MinTextLength:        10,
		KafkaEnabled:         false,
		JWTSecret:            "test-secret-that-is-long-enough-for-hs256",
		SubmitRateLimitRPS:   1,
		SubmitRateLimitBurst: 5,
		CORSAllowedOrigins:   []string{"*"},
		PprofAllowedCIDRs:    []string{"127.0.0.0/8"},
	}
}

func TestNewApp_MemoryStoreWithoutKafka(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := NewApp(memoryConfig(), logger)
	require.NoError(t, err)

	assert.Nil(t, a.pool)
	assert.Nil(t, a.redis)
	assert.Nil(t, a.producer)
	assert.Nil(t, a.appDeleted)
	assert.Equal(t, ":8010", a.httpServer.Addr)

	rec := httptest.NewRecorder()
	a.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	a.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/items/app-1/reviews/stats", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"total_reviews":0`))

	require.NoError(t, a.Shutdown())
}

func TestNewApp_SubmitRequiresAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := NewApp(memoryConfig(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown() })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/items/app-1/reviews",
		strings.NewReader(`{"rating":5,"text":"a lovely little app"}`))
	a.httpServer.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAbort_ShutsDownTracer(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var calls int
	a := &App{cfg: memoryConfig(), logger: logger}
	a.tracerShutdown = func(ctx context.Context) error {
		calls++
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return errors.New("exporter already closed")
	}

	failure := errors.New("connect to redis: dial tcp: connection refused")
	got, err := a.abort(failure)

	assert.Nil(t, got)
	assert.ErrorIs(t, err, failure)
	assert.Equal(t, 1, calls)
}

func TestAbort_WithoutTracer(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := &App{cfg: memoryConfig(), logger: logger}

	failure := errors.New("init store: boom")
	got, err := a.abort(failure)

	assert.Nil(t, got)
	assert.ErrorIs(t, err, failure)
}
