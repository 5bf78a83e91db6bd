package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/settlement/internal/auth"
	"github.com/congo-pay/settlement/internal/identity"
)

const userIDLocal = "user_id"

// JWTAuth validates bearer access tokens and attaches the caller's principal
// to the request context.
func JWTAuth(tokens *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])
		user, err := tokens.Verify(c.UserContext(), tokenStr)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}

		c.Locals(userIDLocal, user.ID)
		c.SetUserContext(identity.WithPrincipal(c.UserContext(), user.Principal()))
		return c.Next()
	}
}

// RequireAdmin rejects callers without the admin role. It must run after JWTAuth.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := identity.PrincipalFrom(c.UserContext())
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, "unauthorized")
		}
		if !p.IsAdmin() {
			return fiber.NewError(http.StatusForbidden, "admin role required")
		}
		return c.Next()
	}
}
