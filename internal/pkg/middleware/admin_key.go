package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"strings"

	"github.com/StudioLienzo/CanvasShop/internal/pkg/env"
	"github.com/gofiber/fiber/v2"
)

// AdminKeyMiddleware authenticates requests against the ADMIN_API_KEY
// environment secret. Comparison is constant-time over SHA-256 digests.
func AdminKeyMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		secret := strings.TrimSpace(env.GetEnv("ADMIN_API_KEY", ""))
		if secret == "" {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "admin_api_disabled", "message": "ADMIN_API_KEY is not configured"})
		}

		apiKey := extractAdminKeyFromHeader(c)
		if apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing API key"})
		}

		got := sha256.Sum256([]byte(apiKey))
		want := sha256.Sum256([]byte(secret))
		if !hmac.Equal(got[:], want[:]) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid API key"})
		}

		return c.Next()
	}
}

func extractAdminKeyFromHeader(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get("X-API-Key"))
	if apiKey != "" {
		return apiKey
	}
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[len("bearer "):])
	}
	return ""
}
