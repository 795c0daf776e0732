package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func corsRequest(h http.Handler, method, origin string, preflight bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/api/v1/items/app-1/reviews", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if preflight {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORS_Origins(t *testing.T) {
	tests := []struct {
		name       string
		cfg        CORSConfig
		origin     string
		wantOrigin string
	}{
		{"wildcard", DefaultCORSConfig(), "https://anything.dev", "*"},
		{"listed origin", CORSConfig{AllowedOrigins: []string{"https://portfolio.dev", "https://admin.portfolio.dev"}}, "https://admin.portfolio.dev", "https://admin.portfolio.dev"},
		{"trailing slash in config", CORSConfig{AllowedOrigins: []string{"https://portfolio.dev/"}}, "https://portfolio.dev", "https://portfolio.dev"},
		{"unlisted origin", CORSConfig{AllowedOrigins: []string{"https://portfolio.dev"}}, "https://evil.example", ""},
		{"no origin", CORSConfig{AllowedOrigins: []string{"https://portfolio.dev"}}, "", ""},
		{"wildcard with credentials echoes origin", CORSConfig{AllowedOrigins: []string{"*"}, AllowCredentials: true}, "https://portfolio.dev", "https://portfolio.dev"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := corsRequest(CORS(tt.cfg)(okHandler()), http.MethodGet, tt.origin, false)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Contains(t, rec.Header().Values("Vary"), "Origin")
		})
	}
}

func TestCORS_Preflight(t *testing.T) {
	h := CORS(CORSConfig{AllowedOrigins: []string{"https://portfolio.dev"}, MaxAge: 600})(okHandler())

	rec := corsRequest(h, http.MethodOptions, "https://portfolio.dev", true)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "GET, POST, DELETE, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
}

func TestCORS_PreflightFromUnlistedOriginFallsThrough(t *testing.T) {
	h := CORS(CORSConfig{AllowedOrigins: []string{"https://portfolio.dev"}})(okHandler())

	rec := corsRequest(h, http.MethodOptions, "https://evil.example", true)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestCORS_CredentialsAndExposedHeaders(t *testing.T) {
	h := CORS(CORSConfig{
		AllowedOrigins:   []string{"https://portfolio.dev"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
	})(okHandler())

	rec := corsRequest(h, http.MethodGet, "https://portfolio.dev", false)

	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "X-Correlation-ID", rec.Header().Get("Access-Control-Expose-Headers"))
}
