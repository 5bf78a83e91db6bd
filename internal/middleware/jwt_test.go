package middleware

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/settlement/internal/auth"
	"github.com/congo-pay/settlement/internal/identity"
)

func TestJWTAuthAndRequireAdmin(t *testing.T) {
	ctx := context.Background()
	repo := identity.NewMemoryRepository()
	ids := identity.NewService(repo)
	tokens := auth.NewService(auth.Settings{AccessSecret: "a", RefreshSecret: "r", AccessTTL: time.Minute, RefreshTTL: time.Hour}, repo)

	user, err := ids.Register(ctx, identity.Credentials{Phone: "+237650000200", PIN: "1234"})
	require.NoError(t, err)
	pair, err := tokens.Login(user)
	require.NoError(t, err)

	app := fiber.New()
	app.Use(JWTAuth(tokens))
	app.Get("/me", func(c *fiber.Ctx) error {
		p, _ := identity.PrincipalFrom(c.UserContext())
		return c.SendString(p.UserID)
	})
	app.Get("/admin", RequireAdmin(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	call := func(path, token string) int {
		req := httptest.NewRequest(fiber.MethodGet, path, nil)
		if token != "" {
			req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusUnauthorized, call("/me", ""))
	assert.Equal(t, fiber.StatusUnauthorized, call("/me", "garbage"))
	assert.Equal(t, fiber.StatusOK, call("/me", pair.AccessToken))
	assert.Equal(t, fiber.StatusForbidden, call("/admin", pair.AccessToken))

	_, err = ids.SetRole(ctx, user.Phone, identity.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, call("/admin", pair.AccessToken))
}
