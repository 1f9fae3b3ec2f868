package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/flowreels/api/internal/auth"
	"github.com/flowreels/api/internal/middleware"
)

// AuthHandler answers the edge gateway's ForwardAuth subrequests
type AuthHandler struct {
	verifier  auth.TokenVerifier
	jwtSecret string
}

// NewAuthHandler creates the ForwardAuth verification handler. verifier
// may be nil when only legacy HMAC tokens are in circulation.
func NewAuthHandler(verifier auth.TokenVerifier, jwtSecret string) *AuthHandler {
	return &AuthHandler{
		verifier:  verifier,
		jwtSecret: jwtSecret,
	}
}

// Verify handles GET /auth/verify. On success the identity is returned in
// the same X-User-* headers GatewayAuthMiddleware consumes downstream;
// any failure is a bare 401 so the gateway rejects the original request.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	tokenString, ok := bearerToken(c)
	if !ok {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	// Zitadel JWKS verification first
	if h.verifier != nil {
		claims, err := h.verifier.Validate(tokenString)
		if err == nil {
			c.Set(middleware.HeaderUserID, claims.UserID)
			c.Set(middleware.HeaderUserEmail, claims.Email)
			c.Set(middleware.HeaderUserName, claims.Name)
			return c.SendStatus(fiber.StatusOK)
		}
		if h.jwtSecret == "" {
			return c.SendStatus(fiber.StatusUnauthorized)
		}
	}

	// Fallback to legacy HMAC verification
	if h.jwtSecret != "" {
		claims, err := auth.ValidateLegacyToken(tokenString, h.jwtSecret)
		if err == nil {
			c.Set(middleware.HeaderUserID, claims.UserID)
			c.Set(middleware.HeaderUserEmail, claims.Email)
			return c.SendStatus(fiber.StatusOK)
		}
	}

	return c.SendStatus(fiber.StatusUnauthorized)
}

func bearerToken(c *fiber.Ctx) (string, bool) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}
