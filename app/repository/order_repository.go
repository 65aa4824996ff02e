package repository

import (
	"fmt"
	"time"

	"github.com/StudioLienzo/CanvasShop/app/models"
	"gorm.io/gorm"
)

// orderRepository implements the OrderRepository interface
type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new order repository instance
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// Create creates a new order with its line items
func (r *orderRepository) Create(order *models.Order) error {
	return r.db.Create(order).Error
}

// GetByID retrieves an order with its line items
func (r *orderRepository) GetByID(id uint) (*models.Order, error) {
	var order models.Order
	if err := r.db.Preload("Items").First(&order, id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// GetByPublicToken retrieves an order by its customer-facing reference code
func (r *orderRepository) GetByPublicToken(token string) (*models.Order, error) {
	var order models.Order
	if err := r.db.Preload("Items").Where("public_token = ?", token).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// List retrieves orders with pagination, newest first
func (r *orderRepository) List(offset, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.Preload("Items").Order("created_at DESC").Offset(offset).Limit(limit).Find(&orders).Error
	return orders, err
}

// UpdateStatus updates the order status
func (r *orderRepository) UpdateStatus(id uint, status string) error {
	return r.db.Model(&models.Order{}).Where("id = ?", id).Update("status", status).Error
}

// UpdateItemArtworkKey records the uploaded artwork object key on one line
// item. Scoped to the order id so a leaked item id cannot cross orders.
func (r *orderRepository) UpdateItemArtworkKey(orderID, itemID uint, artworkKey string) error {
	res := r.db.Model(&models.OrderItem{}).
		Where("id = ? AND order_id = ?", itemID, orderID).
		Update("artwork_key", artworkKey)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DecrementStockOnce decrements product stock for the order's line items
// exactly once. The guard flag flip and the stock updates share one
// transaction, so the conditional update on stock_decremented is the
// mutual-exclusion point: of any number of concurrent callers only the one
// whose UPDATE touched a row performs the decrements.
func (r *orderRepository) DecrementStockOnce(orderID uint) (bool, error) {
	won := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{}).
			Where("id = ? AND stock_decremented = ?", orderID, false).
			Update("stock_decremented", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Another attempt already decremented; nothing to do.
			return nil
		}

		var items []models.OrderItem
		if err := tx.Where("order_id = ?", orderID).Find(&items).Error; err != nil {
			return err
		}
		for _, item := range items {
			res := tx.Model(&models.Product{}).
				Where("id = ? AND stock >= ?", item.ProductID, item.Quantity).
				Update("stock", gorm.Expr("stock - ?", item.Quantity))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("insufficient stock for product %d (order %d)", item.ProductID, orderID)
			}
		}
		won = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return won, nil
}

// ClaimCustomerNotify atomically claims the notification sub-step.
func (r *orderRepository) ClaimCustomerNotify(orderID uint) (bool, error) {
	res := r.db.Model(&models.Order{}).
		Where("id = ? AND customer_notified = ?", orderID, false).
		Update("customer_notified", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ReleaseCustomerNotify returns the notification claim after a failed
// delivery so the reconciliation sweep can retry it. Finalization is
// reopened in the same update: a concurrent run may have observed the claim
// as completed and marked the order done while delivery was still in flight.
func (r *orderRepository) ReleaseCustomerNotify(orderID uint) error {
	return r.db.Model(&models.Order{}).Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"customer_notified":  false,
			"finalization_state": models.FinalizationPending,
			"finalized_at":       nil,
		}).Error
}

// MarkArtworkPromoted records completion of the artwork promotion sub-step.
func (r *orderRepository) MarkArtworkPromoted(orderID uint) (bool, error) {
	res := r.db.Model(&models.Order{}).
		Where("id = ? AND artwork_promoted = ?", orderID, false).
		Update("artwork_promoted", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkFinalizationDone flips finalization_state pending -> done at most once
// per order, and only while every sub-step flag still holds. A false result
// with no error means another run either already finished or released a
// sub-step in the meantime; the sweep picks the order up again either way.
func (r *orderRepository) MarkFinalizationDone(orderID uint) (bool, error) {
	now := time.Now()
	res := r.db.Model(&models.Order{}).
		Where("id = ? AND finalization_state = ? AND stock_decremented = ? AND customer_notified = ? AND artwork_promoted = ?",
			orderID, models.FinalizationPending, true, true, true).
		Updates(map[string]interface{}{
			"finalization_state": models.FinalizationDone,
			"finalized_at":       &now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListStuckFinalization returns orders with an approved payment whose
// finalization never completed. Keyed on the payment row, not the order
// status: an attempt can commit the payment transition and crash before the
// order row catches up, and such orders must still be swept.
func (r *orderRepository) ListStuckFinalization(limit int) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.Model(&models.Order{}).
		Joins("JOIN payments ON payments.order_id = orders.id AND payments.status = ?", models.PaymentStatusApproved).
		Where("orders.finalization_state = ?", models.FinalizationPending).
		Group("orders.id").
		Preload("Items").
		Order("orders.updated_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}
