package models

import (
	"time"

	"gorm.io/gorm"
)

// Order status values.
const (
	OrderStatusPending  = "pending"
	OrderStatusPaid     = "paid"
	OrderStatusCanceled = "canceled"
	OrderStatusRefunded = "refunded"
)

// Finalization states. The pending -> done edge is taken exactly once per
// order via a conditional update; see repository.OrderRepository.
const (
	FinalizationPending = "pending"
	FinalizationDone    = "done"
)

// Order is a customer order with line items and optional customization
// artwork uploaded before checkout.
type Order struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	CustomerName  string      `gorm:"type:varchar(191);not null" json:"customer_name" validate:"required"`
	CustomerEmail string      `gorm:"type:varchar(191);not null;index" json:"customer_email" validate:"required,email"`
	CustomerPhone string      `gorm:"type:varchar(32)" json:"customer_phone"`
	PublicToken   string      `gorm:"type:varchar(32);uniqueIndex" json:"public_token"`
	Status        string      `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	TotalAmount   float64     `gorm:"type:decimal(12,2)" json:"total_amount"`
	Items         []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`

	// Finalization bookkeeping. Each sub-step carries its own flag so a
	// partially failed finalization can be resumed without repeating
	// completed side effects.
	FinalizationState string     `gorm:"type:varchar(10);not null;default:'pending';index" json:"finalization_state"`
	StockDecremented  bool       `gorm:"default:false" json:"stock_decremented"`
	CustomerNotified  bool       `gorm:"default:false" json:"customer_notified"`
	ArtworkPromoted   bool       `gorm:"default:false" json:"artwork_promoted"`
	FinalizedAt       *time.Time `gorm:"type:timestamp;default:null" json:"finalized_at,omitempty"`

	CreatedAt time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// OrderItem is a single product line in an order. ArtworkKey points at the
// temporary object uploaded during customization, promoted to permanent
// storage when the payment is approved.
type OrderItem struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	OrderID    uint      `gorm:"not null;index" json:"order_id"`
	ProductID  uint      `gorm:"not null;index" json:"product_id"`
	Product    Product   `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	Quantity   int       `gorm:"not null;default:1" json:"quantity" validate:"required,min=1"`
	UnitPrice  float64   `gorm:"type:decimal(12,2)" json:"unit_price"`
	ArtworkKey string    `gorm:"type:varchar(255)" json:"artwork_key"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// IsFinalized reports whether post-payment side effects already completed.
func (o *Order) IsFinalized() bool {
	return o.FinalizationState == FinalizationDone
}

// ArtworkKeys returns the temporary artwork object keys across all items.
func (o *Order) ArtworkKeys() []string {
	var keys []string
	for _, item := range o.Items {
		if item.ArtworkKey != "" {
			keys = append(keys, item.ArtworkKey)
		}
	}
	return keys
}
