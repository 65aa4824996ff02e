package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/StudioLienzo/CanvasShop/app/models"
	"github.com/StudioLienzo/CanvasShop/app/repository"
	"github.com/StudioLienzo/CanvasShop/internal/pkg/database"
	"github.com/StudioLienzo/CanvasShop/internal/pkg/jobqueue"
	"github.com/StudioLienzo/CanvasShop/internal/pkg/payments"
	"github.com/StudioLienzo/CanvasShop/internal/pkg/statistics"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type reprocessFinalizationRequest struct {
	OrderID uint `json:"order_id" validate:"required"`
}

// HandleReprocessFinalization re-runs the finalization sequence for one
// order. The same idempotence guarantees apply: completed sub-steps are
// skipped, an already finalized order is a no-op.
func HandleReprocessFinalization(c *fiber.Ctx) error {
	var req reprocessFinalizationRequest
	if err := c.BodyParser(&req); err != nil || req.OrderID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "order_id is required"})
	}

	db := database.GetDB()
	payment, err := repository.NewPaymentRepository(db).GetByOrderID(req.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "order_has_no_payment"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "payment_lookup_failed"})
	}
	if payment.Status != models.PaymentStatusApproved {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":   "payment_not_approved",
			"message": "finalization requires an approved payment, current status: " + payment.Status,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := payments.NewFinalizerFromDB(db).Finalize(ctx, req.OrderID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "finalization_failed", "message": err.Error()})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "order_id": req.OrderID})
}

// HandleListWebhookEvents lists unprocessed events still in the retry loop
// plus dead-lettered ones awaiting manual inspection.
func HandleListWebhookEvents(c *fiber.Ctx) error {
	repo := repository.GetGlobalFactory().GetWebhookEventRepository()
	maxAttempts := jobqueue.GetManager().MaxAttempts()
	limit := c.QueryInt("limit", 100)

	pending, err := repo.ListUnprocessed(maxAttempts, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_list_failed"})
	}
	dead, err := repo.ListDead(maxAttempts, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_list_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"pending": pending,
		"dead":    dead,
	})
}

// HandleRetryWebhookEvent re-arms a dead-lettered event and enqueues an
// immediate processing attempt (manual operator action).
func HandleRetryWebhookEvent(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_event_id"})
	}

	repo := repository.GetGlobalFactory().GetWebhookEventRepository()
	event, err := repo.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "event_not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_lookup_failed"})
	}
	if event.Processed {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "event_already_processed"})
	}

	if err := repo.ResetAttempts(event.ID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_reset_failed"})
	}
	if _, err := jobqueue.GetManager().GetQueue().EnqueueWebhookProcessing(event.ID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_enqueue_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "event_id": event.ID})
}

// HandleAdminStats returns shop aggregates for the dashboard.
func HandleAdminStats(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(statistics.GetStatistics())
}
