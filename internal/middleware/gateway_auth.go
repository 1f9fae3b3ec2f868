package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/flowreels/api/pkg/response"
)

// Identity headers exchanged with the edge gateway. AuthHandler.Verify
// writes them on the ForwardAuth response; GatewayAuthMiddleware trusts
// them on the proxied request.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserEmail = "X-User-Email"
	HeaderUserName  = "X-User-Name"
)

// GatewayAuthMiddleware reads the user identity stamped by the gateway's
// ForwardAuth pass and populates the Fiber locals the handlers read. Only
// meaningful behind the gateway; direct deployments use AuthMiddleware.
func GatewayAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get(HeaderUserID))
		if userID == "" {
			return response.Unauthorized(c, "Missing user identity headers")
		}

		c.Locals("userId", userID)
		c.Locals("email", c.Get(HeaderUserEmail))
		c.Locals("name", c.Get(HeaderUserName))

		return c.Next()
	}
}
