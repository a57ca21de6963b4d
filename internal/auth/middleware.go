package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"roster-backend/internal/engine"
	"roster-backend/internal/metadata"
)

// AuthMiddleware returns a Fiber middleware that validates bearer tokens and
// sets the UserContext on the request. An empty secret disables the check,
// which is only meant for local development.
func AuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			return c.Next()
		}

		header := c.Get("Authorization")
		if header == "" {
			return engine.UnauthorizedError("Missing auth token")
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return engine.UnauthorizedError("Invalid auth header format")
		}

		claims, err := ParseAccessToken(parts[1], secret)
		if err != nil {
			return engine.UnauthorizedError("Invalid or expired token")
		}

		c.Locals("user", &metadata.UserContext{
			ID:    claims.Subject,
			Roles: claims.Roles,
		})

		return c.Next()
	}
}

// RequireRole checks the authenticated user has the given role. It is a
// no-op when authentication is disabled (no user and no secret).
func RequireRole(role string, enabled bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !enabled {
			return c.Next()
		}
		user, ok := c.Locals("user").(*metadata.UserContext)
		if !ok || user == nil {
			return engine.UnauthorizedError("Missing auth token")
		}
		if !user.HasRole(role) {
			return engine.ForbiddenError("Administrator access required")
		}
		return c.Next()
	}
}
