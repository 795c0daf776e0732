// Package identity adapts the hosted identity provider: it verifies access
// tokens, exposes the verified caller, and resolves author display profiles.
package identity

import (
	"context"
	"strings"

	"github.com/KingHarry001/portfolio/pkg/middleware"
)

// Roles understood by the service.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Caller is the verified identity behind a request.
type Caller struct {
	ID   string
	Role string
}

// IsAdmin reports whether the caller holds the admin role.
func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// NormalizeRole maps any role other than admin to user.
func NormalizeRole(role string) string {
	if strings.EqualFold(strings.TrimSpace(role), RoleAdmin) {
		return RoleAdmin
	}
	return RoleUser
}

// CallerFromContext returns the caller verified by middleware.Auth or
// middleware.OptionalAuth. ok is false for anonymous requests.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	claims, ok := middleware.ClaimsFromContext(ctx)
	if !ok || claims.UserID == "" {
		return Caller{}, false
	}
	return Caller{ID: claims.UserID, Role: NormalizeRole(claims.Role)}, true
}
