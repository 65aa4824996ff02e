package payments

import (
	"github.com/StudioLienzo/CanvasShop/app/models"
	"github.com/StudioLienzo/CanvasShop/app/repository"
	"github.com/StudioLienzo/CanvasShop/internal/pkg/artwork"
	"github.com/StudioLienzo/CanvasShop/internal/pkg/notify"
	"gorm.io/gorm"
)

// sharedArtworkStore adapts the process-wide store to the promoter
// interface without handing a typed nil across the boundary.
func sharedArtworkStore() ArtworkPromoter {
	if store := artwork.GetStore(); store != nil {
		return store
	}
	return nil
}

// NewFinalizerFromDB wires a finalizer with its production collaborators:
// GORM-backed order store, WhatsApp notification with SMTP fallback, and
// the S3 artwork store when configured.
func NewFinalizerFromDB(db *gorm.DB) *Finalizer {
	orders := repository.NewOrderRepository(db)
	notifier := notify.NewMultiNotifier(notify.NewWhatsAppNotifierFromEnv(), notify.NewMailNotifier())
	return NewFinalizer(orders, notifier, sharedArtworkStore())
}

// NewProcessorFromDB wires the idempotent processor for the configured
// provider on top of a GORM DB handle.
func NewProcessorFromDB(db *gorm.DB) *Processor {
	return NewProcessor(
		models.PaymentProviderMercadoPago,
		NewClientFromEnv(),
		repository.NewWebhookEventRepository(db),
		repository.NewPaymentRepository(db),
		repository.NewOrderRepository(db),
		NewFinalizerFromDB(db),
	)
}
