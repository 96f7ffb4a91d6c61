// middleware/sse_auth.go
package middleware

import (
	"context"
	"log"
	"strings"

	"finquest-api/services"

	"github.com/gofiber/fiber/v2"
)

// TokenValidator is satisfied by services.AuthServiceClient.
type TokenValidator interface {
	ValidateToken(ctx context.Context, accessToken, deviceID string) (*services.ValidateResponse, error)
}

// SSEAuthMiddleware validates `token` and `device_id` from query params
// through the auth service, because EventSource cannot send headers.
//
// Usage:
//
//	app.Get("/user/rewards/stream", middleware.SSEAuthMiddleware(authClient), streamHandler)
func SSEAuthMiddleware(validator TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		accessToken := strings.TrimSpace(c.Query("token"))
		deviceID := strings.TrimSpace(c.Query("device_id"))

		if accessToken == "" || deviceID == "" {
			log.Printf("[SSEAuth] ❌ Missing query params on %s (token len=%d, device_id=%q)", c.Path(), len(accessToken), deviceID)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Missing token or device_id in query",
			})
		}

		resp, err := validator.ValidateToken(c.UserContext(), accessToken, deviceID)
		if err != nil {
			log.Printf("[SSEAuth] ❌ Validation failed for device %s: %v", deviceID, err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
		}
		userID, err := resp.ID()
		if err != nil {
			log.Printf("[SSEAuth] ❌ %v", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
		}

		c.Locals(UserIDKey, userID)
		c.Locals(UserRolesKey, resp.Roles)

		log.Printf("[SSEAuth] ✅ Authenticated user %d (device %s)", userID, resp.DeviceID)
		return c.Next()
	}
}
