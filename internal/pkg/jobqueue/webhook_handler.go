package jobqueue

import (
	"context"
	"fmt"

	"github.com/StudioLienzo/CanvasShop/app/repository"
	"github.com/StudioLienzo/CanvasShop/internal/pkg/payments"
	"github.com/gofiber/fiber/v2/log"
)

// NewHandler builds the job handler bridging the queue to the idempotent
// processor and the finalizer.
func NewHandler(events repository.WebhookEventRepository, processor *payments.Processor, finalizer *payments.Finalizer) Handler {
	return func(ctx context.Context, job *Job) error {
		switch job.Type {
		case JobTypeProcessWebhook:
			return processWebhookJob(ctx, events, processor, job)
		case JobTypeFinalizeOrder:
			return finalizer.Finalize(ctx, job.OrderID)
		default:
			return fmt.Errorf("unknown job type %q", job.Type)
		}
	}
}

func processWebhookJob(ctx context.Context, events repository.WebhookEventRepository, processor *payments.Processor, job *Job) error {
	event, err := events.GetByID(job.WebhookEventID)
	if err != nil {
		return fmt.Errorf("load webhook event %d: %w", job.WebhookEventID, err)
	}
	if event.Processed {
		// Already handled by a concurrent delivery or an earlier sweep.
		return nil
	}

	outcome := processor.Process(ctx, event)
	if outcome.Err != nil {
		return outcome.Err
	}
	if outcome.Applied {
		log.Infof("[JobQueue] Webhook event %d applied (order %d)", event.ID, outcome.OrderID)
	}
	return nil
}
