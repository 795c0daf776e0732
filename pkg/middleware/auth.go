package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	apperrors "github.com/KingHarry001/portfolio/pkg/errors"
	"github.com/KingHarry001/portfolio/pkg/httputil"
	"github.com/KingHarry001/portfolio/pkg/logger"
)

type contextKeyType string

const claimsKey contextKeyType = "auth_claims"

// Claims are the verified identity attributes of the caller.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// TokenValidator verifies a bearer token and returns its claims.
type TokenValidator func(token string) (*Claims, error)

// Auth rejects requests without a valid bearer token and stores the verified
// claims in the request context.
func Auth(validate TokenValidator) func(http.Handler) http.Handler {
	return authenticate(validate, true)
}

// OptionalAuth behaves like Auth when an Authorization header is present and
// passes anonymous requests through untouched.
func OptionalAuth(validate TokenValidator) func(http.Handler) http.Handler {
	return authenticate(validate, false)
}

func authenticate(validate TokenValidator, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				if required {
					unauthorized(w, r, "missing authorization header")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
				unauthorized(w, r, "invalid authorization header format")
				return
			}

			claims, err := validate(strings.TrimSpace(token))
			if err != nil || claims == nil || claims.UserID == "" {
				unauthorized(w, r, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

// ContextWithClaims stores claims in ctx. If a request-scoped logger is
// present it is enriched with the user id.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, claimsKey, *claims)
	ctx = logger.WithUserID(ctx, claims.UserID)
	if l := logger.FromContext(ctx); l != slog.Default() {
		ctx = logger.NewContext(ctx, l.With(slog.String("user_id", claims.UserID)))
	}
	return ctx
}

// ClaimsFromContext returns the verified claims, if any.
func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(claimsKey).(Claims)
	return c, ok
}

// RequireRole rejects authenticated callers whose role is not listed.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := allowed[RoleFromContext(r.Context())]; !ok {
				httputil.WriteError(w, r, apperrors.Forbidden("insufficient permissions"), slog.Default())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	c, _ := ClaimsFromContext(ctx)
	return c.UserID
}

// RoleFromContext extracts the user role from the request context.
func RoleFromContext(ctx context.Context) string {
	c, _ := ClaimsFromContext(ctx)
	return c.Role
}

func unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="portfolio"`)
	httputil.WriteError(w, r, apperrors.Unauthorized(message), slog.Default())
}
