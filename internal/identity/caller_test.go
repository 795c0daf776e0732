package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/KingHarry001/portfolio/pkg/middleware"
)

func TestCallerFromContext(t *testing.T) {
	t.Run("anonymous", func(t *testing.T) {
		_, ok := CallerFromContext(context.Background())
		assert.False(t, ok)
	})

	t.Run("user", func(t *testing.T) {
		ctx := middleware.ContextWithClaims(context.Background(), &middleware.Claims{UserID: "user-A", Role: "authenticated"})
		caller, ok := CallerFromContext(ctx)
		assert.True(t, ok)
		assert.Equal(t, Caller{ID: "user-A", Role: RoleUser}, caller)
		assert.False(t, caller.IsAdmin())
	})

	t.Run("admin", func(t *testing.T) {
		ctx := middleware.ContextWithClaims(context.Background(), &middleware.Claims{UserID: "admin-1", Role: "admin"})
		caller, ok := CallerFromContext(ctx)
		assert.True(t, ok)
		assert.True(t, caller.IsAdmin())
	})
}

func TestNormalizeRole(t *testing.T) {
	assert.Equal(t, RoleAdmin, NormalizeRole("admin"))
	assert.Equal(t, RoleAdmin, NormalizeRole(" ADMIN "))
	assert.Equal(t, RoleUser, NormalizeRole("authenticated"))
	assert.Equal(t, RoleUser, NormalizeRole(""))
	assert.Equal(t, RoleUser, NormalizeRole("superuser"))
}
