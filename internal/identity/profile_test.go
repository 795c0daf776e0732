package identity

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KingHarry001/portfolio/internal/domain"
	apperrors "github.com/KingHarry001/portfolio/pkg/errors"
	"github.com/KingHarry001/portfolio/pkg/httpclient"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func profileServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		assert.Equal(t, "service-key", r.Header.Get("apikey"))
		switch strings.TrimPrefix(r.URL.Path, "/profiles/") {
		case "user-A":
			_, _ = w.Write([]byte(`{"id":"user-A","display_name":"Ada","avatar_url":"https://cdn.example.com/a.png"}`))
		case "user-B":
			_, _ = w.Write([]byte(`{"id":"user-B","display_name":""}`))
		case "broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"msg":"user not found"}`))
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestProfileClient_Profile(t *testing.T) {
	server := profileServer(t, nil)
	c := NewProfileClient(server.URL+"/profiles/", "service-key", newTestLogger())

	p, err := c.Profile(context.Background(), "user-A")
	require.NoError(t, err)
	assert.Equal(t, domain.AuthorProfile{ID: "user-A", DisplayName: "Ada", AvatarURL: "https://cdn.example.com/a.png"}, p)

	p, err = c.Profile(context.Background(), "user-B")
	require.NoError(t, err)
	assert.Equal(t, "Anonymous", p.DisplayName)

	_, err = c.Profile(context.Background(), "ghost")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestProfileClient_ProfilesDegrades(t *testing.T) {
	var hits atomic.Int32
	server := profileServer(t, &hits)
	c := NewProfileClient(server.URL+"/profiles", "service-key", newTestLogger())

	got := c.Profiles(context.Background(), []string{"user-A", "ghost", "user-A", "broken"})

	require.Len(t, got, 3)
	assert.Equal(t, "Ada", got["user-A"].DisplayName)
	assert.Equal(t, domain.AnonymousProfile("ghost"), got["ghost"])
	assert.Equal(t, domain.AnonymousProfile("broken"), got["broken"])
}

func TestProfileClient_OpenBreakerSkipsProvider(t *testing.T) {
	var hits atomic.Int32
	server := profileServer(t, &hits)

	cbCfg := httpclient.DefaultCircuitBreakerConfig("identity-profiles-test")
	cbCfg.MinRequests = 2
	cbCfg.Timeout = time.Minute
	cb := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.Config{Timeout: time.Second, Header: http.Header{"Apikey": []string{"service-key"}}}),
		cbCfg, newTestLogger())
	c := newProfileClient(cb, server.URL+"/profiles", newTestLogger())

	for i := 0; i < 2; i++ {
		_, err := c.Profile(context.Background(), "broken")
		require.Error(t, err)
	}
	before := hits.Load()

	_, err := c.Profile(context.Background(), "user-A")
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
	assert.ErrorIs(t, err, httpclient.ErrCircuitOpen)

	got := c.Profiles(context.Background(), []string{"user-A"})
	assert.Equal(t, domain.AnonymousProfile("user-A"), got["user-A"])
	assert.Equal(t, before, hits.Load())
}

func TestProfileClient_Empty(t *testing.T) {
	c := NewProfileClient("http://127.0.0.1:1", "", newTestLogger())
	assert.Empty(t, c.Profiles(context.Background(), nil))
}
