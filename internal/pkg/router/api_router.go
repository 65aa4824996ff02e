package router

import (
	"strconv"
	"time"

	"github.com/StudioLienzo/CanvasShop/app/controllers"
	"github.com/StudioLienzo/CanvasShop/internal/pkg/env"
	"github.com/StudioLienzo/CanvasShop/internal/pkg/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        300,
		Expiration: time.Minute,
		Storage:    newLimiterStorage(),
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")
	v1.Get("/products", controllers.HandleListProducts)
	v1.Get("/products/:id", controllers.HandleGetProduct)
	v1.Post("/orders", controllers.HandleCreateOrder)
	v1.Get("/orders/:id", controllers.HandleGetOrder)
	v1.Get("/orders/ref/:token", controllers.HandleGetOrderByReference)
	v1.Post("/orders/:id/artwork", controllers.HandleUploadArtwork)

	admin := app.Group("/admin", middleware.AdminKeyMiddleware())
	admin.Get("/stats", controllers.HandleAdminStats)
	admin.Post("/reprocess-finalization", controllers.HandleReprocessFinalization)
	admin.Get("/webhooks", controllers.HandleListWebhookEvents)
	admin.Post("/webhooks/:id/retry", controllers.HandleRetryWebhookEvent)
	admin.Post("/products", controllers.HandleCreateProduct)
	admin.Put("/products/:id", controllers.HandleUpdateProduct)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

// newLimiterStorage backs the API limiter with Redis so limits hold across
// instances.
func newLimiterStorage() fiber.Storage {
	port := 6379
	if raw := env.GetEnv("CACHE_PORT", ""); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			port = v
		}
	}
	return redisstorage.New(redisstorage.Config{
		Host: env.GetEnv("CACHE_HOST", "localhost"),
		Port: port,
	})
}
