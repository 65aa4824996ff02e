package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/StudioLienzo/CanvasShop/app/models"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// PaymentFetcher loads the authoritative payment object from the processor.
type PaymentFetcher interface {
	FetchPayment(ctx context.Context, id string) (*ProviderPayment, error)
}

// EventStore records processing outcomes on the durable webhook log.
type EventStore interface {
	MarkProcessed(id uint, processingError string) error
	RecordFailure(id uint, processingError string) error
}

// PaymentStore persists local payment mirrors. The processor is the sole
// writer of payment status.
type PaymentStore interface {
	GetByProviderPaymentID(provider, providerPaymentID string) (*models.Payment, error)
	Create(payment *models.Payment) error
	UpdateStatus(id uint, status, rawResponseJSON string) error
}

// OrderStore exposes the order-side operations finalization orchestrates.
// The *Once methods are atomic conditional updates: they return true only
// for the single caller that flipped the guard.
type OrderStore interface {
	GetByID(id uint) (*models.Order, error)
	UpdateStatus(id uint, status string) error
	DecrementStockOnce(orderID uint) (bool, error)
	ClaimCustomerNotify(orderID uint) (bool, error)
	ReleaseCustomerNotify(orderID uint) error
	MarkArtworkPromoted(orderID uint) (bool, error)
	MarkFinalizationDone(orderID uint) (bool, error)
}

// Outcome is the result of processing one webhook event.
type Outcome struct {
	// Applied reports whether a new payment status transition was committed.
	// Duplicate deliveries are marked processed with Applied=false.
	Applied bool
	OrderID uint
	// Retry marks transient failures the reconciliation sweep should retry.
	Retry bool
	Err   error
}

// Processor applies verified webhook events idempotently. It never trusts
// the status embedded in a webhook payload: the payment object is re-fetched
// from the processor API on every attempt, so out-of-order and duplicated
// deliveries converge on the same final state.
type Processor struct {
	provider  string
	fetcher   PaymentFetcher
	events    EventStore
	payments  PaymentStore
	orders    OrderStore
	finalizer *Finalizer
}

// NewProcessor wires an idempotent processor for one provider.
func NewProcessor(provider string, fetcher PaymentFetcher, events EventStore, paymentStore PaymentStore, orders OrderStore, finalizer *Finalizer) *Processor {
	return &Processor{
		provider:  provider,
		fetcher:   fetcher,
		events:    events,
		payments:  paymentStore,
		orders:    orders,
		finalizer: finalizer,
	}
}

// Process runs one attempt for a stored webhook event.
func (p *Processor) Process(ctx context.Context, event *models.WebhookEvent) Outcome {
	payload, err := ParseWebhookPayload([]byte(event.PayloadJSON))
	if err != nil {
		return p.fail(event, err, false)
	}

	notification, isPayment, err := payload.PaymentEvent()
	if err != nil {
		return p.fail(event, err, false)
	}
	if !isPayment {
		// Non-payment event types are acknowledged without side effects.
		if err := p.events.MarkProcessed(event.ID, ""); err != nil {
			return Outcome{Retry: true, Err: err}
		}
		return Outcome{}
	}

	fetched, err := p.fetcher.FetchPayment(ctx, notification.PaymentID)
	if err != nil {
		return p.fail(event, fmt.Errorf("fetch authoritative payment: %w", err), true)
	}
	if !models.IsValidPaymentStatus(fetched.Status) {
		return p.fail(event, fmt.Errorf("unknown processor status %q", fetched.Status), false)
	}

	local, err := p.resolvePayment(notification.PaymentID, fetched)
	if err != nil {
		// Includes the race where the webhook arrives before the local order
		// exists; the event stays unprocessed and the sweep retries it.
		return p.fail(event, err, true)
	}

	if local.Status == fetched.Status {
		// Duplicate delivery is expected and harmless. The side effects
		// still run: an earlier attempt may have committed the payment
		// transition and then failed before the order caught up, and every
		// sub-step skips work it has already completed.
		if err := p.applyOrderSideEffects(ctx, local.OrderID, fetched.Status); err != nil {
			return p.fail(event, err, true)
		}
		if err := p.events.MarkProcessed(event.ID, ""); err != nil {
			return Outcome{OrderID: local.OrderID, Retry: true, Err: err}
		}
		return Outcome{OrderID: local.OrderID}
	}

	if !models.CanTransitionPaymentStatus(local.Status, fetched.Status) {
		// The local record is already at or beyond this state; replaying an
		// older notification must not regress it.
		log.Warnf("[Payments] Ignoring transition %s -> %s for payment %s (order %d)",
			local.Status, fetched.Status, local.ProviderPaymentID, local.OrderID)
		if err := p.events.MarkProcessed(event.ID, ""); err != nil {
			return Outcome{OrderID: local.OrderID, Retry: true, Err: err}
		}
		return Outcome{OrderID: local.OrderID}
	}

	if err := p.payments.UpdateStatus(local.ID, fetched.Status, fetched.RawJSON); err != nil {
		return p.fail(event, fmt.Errorf("update payment status: %w", err), true)
	}
	log.Infof("[Payments] Payment %s transitioned %s -> %s (order %d)",
		local.ProviderPaymentID, local.Status, fetched.Status, local.OrderID)

	if err := p.applyOrderSideEffects(ctx, local.OrderID, fetched.Status); err != nil {
		// The payment transition above is already committed; only the
		// remaining side effects are retried, and each one skips work it
		// has already completed.
		return p.fail(event, err, true)
	}

	if err := p.events.MarkProcessed(event.ID, ""); err != nil {
		return Outcome{Applied: true, OrderID: local.OrderID, Retry: true, Err: err}
	}
	return Outcome{Applied: true, OrderID: local.OrderID}
}

// resolvePayment loads the local payment mirror, creating it from the
// fetched object's external reference when the webhook is the first contact.
func (p *Processor) resolvePayment(providerPaymentID string, fetched *ProviderPayment) (*models.Payment, error) {
	local, err := p.payments.GetByProviderPaymentID(p.provider, providerPaymentID)
	if err == nil {
		return local, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load local payment: %w", err)
	}

	orderID, err := strconv.ParseUint(fetched.ExternalReference, 10, 64)
	if err != nil || orderID == 0 {
		return nil, fmt.Errorf("payment %s has no resolvable order reference %q", providerPaymentID, fetched.ExternalReference)
	}
	order, err := p.orders.GetByID(uint(orderID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order %d not found yet for payment %s", orderID, providerPaymentID)
		}
		return nil, fmt.Errorf("load order %d: %w", orderID, err)
	}

	payment := &models.Payment{
		Provider:          p.provider,
		ProviderPaymentID: providerPaymentID,
		OrderID:           order.ID,
		Status:            models.PaymentStatusPending,
		Amount:            fetched.TransactionAmount,
		Method:            fetched.PaymentMethodID,
		RawResponseJSON:   fetched.RawJSON,
	}
	if err := p.payments.Create(payment); err != nil {
		return nil, fmt.Errorf("create local payment: %w", err)
	}
	return payment, nil
}

func (p *Processor) applyOrderSideEffects(ctx context.Context, orderID uint, status string) error {
	switch status {
	case models.PaymentStatusApproved:
		if err := p.orders.UpdateStatus(orderID, models.OrderStatusPaid); err != nil {
			return fmt.Errorf("mark order paid: %w", err)
		}
		if err := p.finalizer.Finalize(ctx, orderID); err != nil {
			return fmt.Errorf("finalize order %d: %w", orderID, err)
		}
	case models.PaymentStatusRejected, models.PaymentStatusCancelled:
		if err := p.orders.UpdateStatus(orderID, models.OrderStatusCanceled); err != nil {
			return fmt.Errorf("mark order canceled: %w", err)
		}
	case models.PaymentStatusRefunded:
		// Stock is not restored: the item was already delivered.
		if err := p.orders.UpdateStatus(orderID, models.OrderStatusRefunded); err != nil {
			return fmt.Errorf("mark order refunded: %w", err)
		}
	case models.PaymentStatusPending, models.PaymentStatusInProcess:
		// Status recorded on the payment row; nothing to do on the order.
	}
	return nil
}

// fail records a processing failure and classifies it as retryable or not.
// Non-retryable failures still stay in the log until the attempt ceiling
// excludes them from the sweep; they are never deleted.
func (p *Processor) fail(event *models.WebhookEvent, procErr error, retry bool) Outcome {
	if err := p.events.RecordFailure(event.ID, procErr.Error()); err != nil {
		log.Errorf("[Payments] Failed to record failure for event %d: %v", event.ID, err)
	}
	return Outcome{Retry: retry, Err: procErr}
}
