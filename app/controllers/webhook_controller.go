package controllers

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/StudioLienzo/CanvasShop/app/models"
	"github.com/StudioLienzo/CanvasShop/app/repository"
	"github.com/StudioLienzo/CanvasShop/internal/pkg/jobqueue"
	"github.com/StudioLienzo/CanvasShop/internal/pkg/payments"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// HandlePaymentWebhook receives asynchronous payment notifications. The
// endpoint answers 200 as soon as the event is durably stored; processing
// happens asynchronously and the reconciliation sweeps cover everything the
// queue might drop. The processor only ever sees "stored" or "rejected at
// the door".
func HandlePaymentWebhook(c *fiber.Ctx) error {
	provider := strings.ToLower(strings.TrimSpace(c.Params("provider")))
	if provider != models.PaymentProviderMercadoPago {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown_provider"})
	}

	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("X-Signature"))
	requestID := strings.TrimSpace(c.Get("X-Request-Id"))

	payload, err := payments.ParseWebhookPayload(rawBody)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	verifier := payments.NewVerifierFromEnv()
	result := verifier.Verify(signature, requestID, payload.Data.ID.String(), c.IP())
	if !result.Accepted {
		// Rejected deliveries are logged for security monitoring but not
		// persisted; the processor retries on its own schedule.
		log.Warnf("[Webhook] Rejected %s notification from %s: %s", provider, c.IP(), result.Reason)
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "verification_failed"})
	}

	eventID := requestID
	if eventID == "" {
		sum := sha256.Sum256(rawBody)
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	repo := repository.GetGlobalFactory().GetWebhookEventRepository()
	created, stored, err := repo.CreateIfNotExists(&models.WebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(payload.Type),
		Action:          strings.TrimSpace(payload.Action),
		PaymentDataID:   strings.TrimSpace(payload.Data.ID.String()),
		PayloadJSON:     string(rawBody),
		LiveMode:        payload.LiveMode,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}

	// Best effort: a failed enqueue is recovered by the retry sweep.
	if _, err := jobqueue.GetManager().GetQueue().EnqueueWebhookProcessing(stored.ID); err != nil {
		log.Errorf("[Webhook] Enqueue for event %d failed: %v", stored.ID, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}
