// middleware/auth.go
package middleware

import (
	"log"
	"slices"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	UserIDKey    = "user_id"
	UserRolesKey = "user_roles"
)

// UserContextMiddleware extracts the user identity and roles set by Gateway.
// X-User-ID must be a positive integer.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rawID := strings.TrimSpace(c.Get("X-User-ID"))
		userID, err := strconv.ParseInt(rawID, 10, 64)
		if rawID == "" || err != nil || userID < 1 {
			log.Printf("❌ [USER_CTX] valid X-User-ID required on secured route: %s (got %q)", c.Path(), rawID)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing or invalid X-User-ID — request must come through gateway with auth context",
			})
		}

		var roles []string
		for _, r := range strings.Split(c.Get("X-User-Roles"), ",") {
			r = strings.TrimSpace(r)
			if r != "" {
				roles = append(roles, r)
			}
		}

		c.Locals(UserIDKey, userID)
		c.Locals(UserRolesKey, roles)
		return c.Next()
	}
}

// RequireRole rejects requests whose gateway roles do not include role.
// Must run after UserContextMiddleware.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		roles, _ := c.Locals(UserRolesKey).([]string)
		if !slices.Contains(roles, role) {
			log.Printf("🚫 [USER_CTX] role %q required for %s", role, c.Path())
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
		}
		return c.Next()
	}
}

// UserID returns the authenticated user id stored by the auth middlewares.
func UserID(c *fiber.Ctx) (int64, bool) {
	id, ok := c.Locals(UserIDKey).(int64)
	return id, ok && id > 0
}
