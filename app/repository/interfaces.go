package repository

import (
	"github.com/StudioLienzo/CanvasShop/app/models"
	"gorm.io/gorm"
)

// WebhookEventRepository defines the durable append-only webhook log.
// Events are never deleted; MarkProcessed/RecordFailure are the only
// mutation paths and both increment the attempt counter.
type WebhookEventRepository interface {
	CreateIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	GetByID(id uint) (*models.WebhookEvent, error)
	MarkProcessed(id uint, processingError string) error
	RecordFailure(id uint, processingError string) error
	ListUnprocessed(maxAttempts, limit int) ([]models.WebhookEvent, error)
	ListDead(maxAttempts, limit int) ([]models.WebhookEvent, error)
	ResetAttempts(id uint) error
}

// PaymentRepository defines payment mirror persistence.
type PaymentRepository interface {
	Create(payment *models.Payment) error
	GetByID(id uint) (*models.Payment, error)
	GetByProviderPaymentID(provider, providerPaymentID string) (*models.Payment, error)
	GetByOrderID(orderID uint) (*models.Payment, error)
	UpdateStatus(id uint, status, rawResponseJSON string) error
}

// OrderRepository defines order persistence including the conditional
// finalization guards. Every *Once/Claim method is a single atomic UPDATE
// whose WHERE clause carries the guard; the boolean result reports whether
// this caller won the guard.
type OrderRepository interface {
	Create(order *models.Order) error
	GetByID(id uint) (*models.Order, error)
	GetByPublicToken(token string) (*models.Order, error)
	List(offset, limit int) ([]models.Order, error)
	UpdateStatus(id uint, status string) error
	UpdateItemArtworkKey(orderID, itemID uint, artworkKey string) error
	DecrementStockOnce(orderID uint) (bool, error)
	ClaimCustomerNotify(orderID uint) (bool, error)
	ReleaseCustomerNotify(orderID uint) error
	MarkArtworkPromoted(orderID uint) (bool, error)
	MarkFinalizationDone(orderID uint) (bool, error)
	ListStuckFinalization(limit int) ([]models.Order, error)
}

// ProductRepository defines product catalog persistence.
type ProductRepository interface {
	Create(product *models.Product) error
	GetByID(id uint) (*models.Product, error)
	List(offset, limit int) ([]models.Product, error)
	ListActive(offset, limit int) ([]models.Product, error)
	Update(product *models.Product) error
	Delete(id uint) error
	Count() (int64, error)
}

// Repositories holds all repository instances
type Repositories struct {
	WebhookEvent WebhookEventRepository
	Payment      PaymentRepository
	Order        OrderRepository
	Product      ProductRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		WebhookEvent: NewWebhookEventRepository(db),
		Payment:      NewPaymentRepository(db),
		Order:        NewOrderRepository(db),
		Product:      NewProductRepository(db),
	}
}
