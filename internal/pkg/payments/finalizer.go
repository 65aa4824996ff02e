package payments

import (
	"context"
	"fmt"

	"github.com/StudioLienzo/CanvasShop/app/models"
	"github.com/gofiber/fiber/v2/log"
)

// Notifier delivers the paid-order notification to the customer. Delivery
// failures never roll back the payment transition already committed.
type Notifier interface {
	NotifyOrderPaid(ctx context.Context, order *models.Order) error
}

// ArtworkPromoter moves temporary customization uploads to permanent
// storage. Promote must tolerate re-runs for keys already promoted.
type ArtworkPromoter interface {
	Promote(ctx context.Context, orderID uint, keys []string) error
}

// Finalizer runs the post-payment side effects for an approved order:
// stock decrement, customer notification and artwork promotion. Each
// sub-step is guarded by its own conditional update on the order row, so a
// partially failed run resumes exactly where it stopped and two concurrent
// runs can never both execute the same step.
type Finalizer struct {
	orders   OrderStore
	notifier Notifier
	artwork  ArtworkPromoter
}

// NewFinalizer wires a finalizer. artwork may be nil when no object store
// is configured; orders without artwork keys are unaffected either way.
func NewFinalizer(orders OrderStore, notifier Notifier, artwork ArtworkPromoter) *Finalizer {
	return &Finalizer{orders: orders, notifier: notifier, artwork: artwork}
}

// Finalize applies the finalization sequence for orderID. Safe to call any
// number of times; an already finalized order is a silent no-op.
func (f *Finalizer) Finalize(ctx context.Context, orderID uint) error {
	order, err := f.orders.GetByID(orderID)
	if err != nil {
		return fmt.Errorf("load order %d: %w", orderID, err)
	}
	if order.IsFinalized() {
		return nil
	}

	if order.Status != models.OrderStatusPaid {
		// An earlier attempt committed the payment transition but failed
		// before the order row caught up. Every caller guarantees an
		// approved payment, so the status is repaired here.
		if err := f.orders.UpdateStatus(order.ID, models.OrderStatusPaid); err != nil {
			return fmt.Errorf("mark order %d paid: %w", order.ID, err)
		}
		order.Status = models.OrderStatusPaid
	}

	if err := f.decrementStock(order); err != nil {
		return err
	}
	if err := f.notifyCustomer(ctx, order); err != nil {
		return err
	}
	if err := f.promoteArtwork(ctx, order); err != nil {
		return err
	}

	done, err := f.orders.MarkFinalizationDone(order.ID)
	if err != nil {
		return fmt.Errorf("mark finalization done for order %d: %w", order.ID, err)
	}
	if done {
		log.Infof("[Finalizer] Order %d finalized", order.ID)
	}
	return nil
}

func (f *Finalizer) decrementStock(order *models.Order) error {
	if order.StockDecremented {
		return nil
	}
	decremented, err := f.orders.DecrementStockOnce(order.ID)
	if err != nil {
		return fmt.Errorf("decrement stock for order %d: %w", order.ID, err)
	}
	if decremented {
		log.Infof("[Finalizer] Stock decremented for order %d", order.ID)
	}
	return nil
}

func (f *Finalizer) notifyCustomer(ctx context.Context, order *models.Order) error {
	if order.CustomerNotified {
		return nil
	}
	claimed, err := f.orders.ClaimCustomerNotify(order.ID)
	if err != nil {
		return fmt.Errorf("claim notification for order %d: %w", order.ID, err)
	}
	if !claimed {
		// Another run holds the claim. Its delivery may still fail, in
		// which case releasing the claim reopens finalization for the
		// sweep, so continuing here cannot lose the notification.
		return nil
	}
	if err := f.notifier.NotifyOrderPaid(ctx, order); err != nil {
		// Releasing the claim reopens finalization so the sweep retries
		// delivery, even if a concurrent run already marked the order done.
		if relErr := f.orders.ReleaseCustomerNotify(order.ID); relErr != nil {
			log.Errorf("[Finalizer] Failed to release notification claim for order %d: %v", order.ID, relErr)
		}
		return fmt.Errorf("notify customer for order %d: %w", order.ID, err)
	}
	return nil
}

func (f *Finalizer) promoteArtwork(ctx context.Context, order *models.Order) error {
	if order.ArtworkPromoted {
		return nil
	}
	keys := order.ArtworkKeys()
	if len(keys) > 0 && f.artwork != nil {
		if err := f.artwork.Promote(ctx, order.ID, keys); err != nil {
			return fmt.Errorf("promote artwork for order %d: %w", order.ID, err)
		}
	}
	if _, err := f.orders.MarkArtworkPromoted(order.ID); err != nil {
		return fmt.Errorf("mark artwork promoted for order %d: %w", order.ID, err)
	}
	return nil
}
