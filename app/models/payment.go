package models

import (
	"time"
)

// Payment providers supported for checkout.
const (
	PaymentProviderMercadoPago = "mercadopago"
)

// Payment status values mirror the processor's payment state machine. The
// local record is only ever written from statuses fetched from the processor
// API, never from values embedded in webhook payloads.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusInProcess = "in_process"
	PaymentStatusApproved  = "approved"
	PaymentStatusRejected  = "rejected"
	PaymentStatusCancelled = "cancelled"
	PaymentStatusRefunded  = "refunded"
)

// Payment is the local mirror of a processor-side payment object.
type Payment struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	Provider          string    `gorm:"type:varchar(20);not null;index:ux_payments_provider_payment,unique,priority:1" json:"provider"`
	ProviderPaymentID string    `gorm:"type:varchar(64);not null;index:ux_payments_provider_payment,unique,priority:2" json:"provider_payment_id"`
	OrderID           uint      `gorm:"not null;index" json:"order_id"`
	Order             Order     `gorm:"foreignKey:OrderID" json:"order,omitempty"`
	Status            string    `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Amount            float64   `gorm:"type:decimal(12,2)" json:"amount"`
	Method            string    `gorm:"type:varchar(50)" json:"method"`
	RawResponseJSON   string    `gorm:"type:longtext" json:"-"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// paymentStatusRank orders statuses by finality. A local record must never
// regress below what the processor's authoritative API last reported.
var paymentStatusRank = map[string]int{
	PaymentStatusPending:   0,
	PaymentStatusInProcess: 1,
	PaymentStatusApproved:  2,
	PaymentStatusRejected:  2,
	PaymentStatusCancelled: 2,
	PaymentStatusRefunded:  3,
}

// IsValidPaymentStatus reports whether s is a known processor status.
func IsValidPaymentStatus(s string) bool {
	_, ok := paymentStatusRank[s]
	return ok
}

// IsTerminalPaymentStatus reports whether a status can never change again.
// Approved is finalizable but not terminal: it can still become refunded.
func IsTerminalPaymentStatus(s string) bool {
	switch s {
	case PaymentStatusRejected, PaymentStatusCancelled, PaymentStatusRefunded:
		return true
	default:
		return false
	}
}

// CanTransitionPaymentStatus reports whether moving from -> to is allowed by
// the processor's state machine.
func CanTransitionPaymentStatus(from, to string) bool {
	if !IsValidPaymentStatus(from) || !IsValidPaymentStatus(to) {
		return false
	}
	if from == to {
		return false
	}
	if IsTerminalPaymentStatus(from) {
		return false
	}
	if from == PaymentStatusApproved {
		// Approved can only move forward to refunded.
		return to == PaymentStatusRefunded
	}
	// Pending and in_process can move anywhere except directly to refunded.
	return to != PaymentStatusRefunded
}
