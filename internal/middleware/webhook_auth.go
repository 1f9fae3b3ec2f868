package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	"github.com/flowreels/api/pkg/response"
)

// WebhookAuthMiddleware authenticates the analysis system's callback with a
// shared secret header. When no secret is configured the callback route is
// open, which is only acceptable in local development.
func WebhookAuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			return c.Next()
		}

		provided := c.Get("X-Webhook-Secret")
		if provided == "" {
			return response.Unauthorized(c, "Missing webhook secret")
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			return response.Unauthorized(c, "Invalid webhook secret")
		}

		return c.Next()
	}
}
