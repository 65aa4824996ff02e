package notify

import (
	"context"

	"github.com/StudioLienzo/CanvasShop/app/models"
	"github.com/gofiber/fiber/v2/log"
)

// Notifier delivers order status notifications to customers.
type Notifier interface {
	NotifyOrderPaid(ctx context.Context, order *models.Order) error
}

// multiNotifier tries channels in order and succeeds on the first delivery.
type multiNotifier struct {
	channels []Notifier
}

// NewMultiNotifier chains notification channels; delivery succeeds when any
// channel succeeds.
func NewMultiNotifier(channels ...Notifier) Notifier {
	return &multiNotifier{channels: channels}
}

func (m *multiNotifier) NotifyOrderPaid(ctx context.Context, order *models.Order) error {
	var lastErr error
	for _, ch := range m.channels {
		if err := ch.NotifyOrderPaid(ctx, order); err != nil {
			log.Warnf("[Notify] Channel failed for order %d: %v", order.ID, err)
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}
