package router

import (
	"github.com/gofiber/fiber/v2"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

type closer interface {
	Close()
}

var installed []Router

func InstallRouter(app *fiber.App) {
	// Webhook routes stay outside the general API limiter group.
	setup(app, NewWebhookRouter(), NewApiRouter())
}

func setup(app *fiber.App, router ...Router) {
	installed = router
	for _, r := range router {
		r.InstallRouter(app)
	}
}

// Shutdown releases background resources held by installed routers, such as
// the webhook rate limiter's sweep goroutine.
func Shutdown() {
	for _, r := range installed {
		if c, ok := r.(closer); ok {
			c.Close()
		}
	}
	installed = nil
}
