package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/StudioLienzo/CanvasShop/app/repository"
	"github.com/StudioLienzo/CanvasShop/internal/pkg/cache"
	"github.com/StudioLienzo/CanvasShop/internal/pkg/database"
	"github.com/StudioLienzo/CanvasShop/internal/pkg/env"
	"github.com/StudioLienzo/CanvasShop/internal/pkg/jobqueue"
	"github.com/StudioLienzo/CanvasShop/internal/pkg/payments"
	"github.com/StudioLienzo/CanvasShop/internal/pkg/router"
)

func main() {
	app := NewApplication()

	// Stop the scheduler cleanly on shutdown; in-flight events are
	// rediscovered by the startup sweep of the next run.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		jobqueue.GetManager().Stop()
		_ = app.Shutdown()
		router.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	repository.InitializeFactory(db)

	// Reconciliation scheduler: async webhook processing plus the periodic
	// retry and finalization sweeps.
	manager := jobqueue.InitManager(
		repository.GetGlobalFactory().GetWebhookEventRepository(),
		repository.GetGlobalFactory().GetOrderRepository(),
		payments.NewProcessorFromDB(db),
		payments.NewFinalizerFromDB(db),
	)
	manager.Start()

	app := fiber.New(fiber.Config{
		BodyLimit: 1 << 20, // webhook and CRUD payloads are small
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", monitor.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}
