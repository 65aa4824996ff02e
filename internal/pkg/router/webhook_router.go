package router

import (
	"strconv"
	"time"

	"github.com/StudioLienzo/CanvasShop/app/controllers"
	"github.com/StudioLienzo/CanvasShop/internal/pkg/cache"
	"github.com/StudioLienzo/CanvasShop/internal/pkg/env"
	"github.com/StudioLienzo/CanvasShop/internal/pkg/middleware"
	"github.com/StudioLienzo/CanvasShop/internal/pkg/ratelimit"
	"github.com/gofiber/fiber/v2"
)

// WebhookRouter installs the inbound notification endpoint behind the
// shared-store rate limiter.
type WebhookRouter struct {
	limiter ratelimit.Limiter
}

func NewWebhookRouter() *WebhookRouter {
	limit := 120
	if raw := env.GetEnv("WEBHOOK_RATE_LIMIT", ""); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	return &WebhookRouter{
		limiter: ratelimit.NewRedisLimiter(cache.GetClient(), limit, time.Minute),
	}
}

func (h *WebhookRouter) InstallRouter(app *fiber.App) {
	app.Post("/webhook/:provider", middleware.RateLimitMiddleware(h.limiter), controllers.HandlePaymentWebhook)
}

// Close releases the limiter's background resources.
func (h *WebhookRouter) Close() {
	h.limiter.Close()
}
