package middleware

import (
	"github.com/StudioLienzo/CanvasShop/internal/pkg/ratelimit"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// RateLimitMiddleware rejects callers exceeding the injected limiter's
// per-IP budget with 429.
func RateLimitMiddleware(limiter ratelimit.Limiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		allowed, err := limiter.Allow(c.Context(), c.IP())
		if err != nil {
			log.Errorf("[RateLimit] Check failed for %s: %v", c.IP(), err)
			// Availability over strictness when the limiter itself fails.
			return c.Next()
		}
		if !allowed {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate_limited"})
		}
		return c.Next()
	}
}
