package models

import "time"

// WebhookEvent is the durable append-only log of inbound payment webhooks.
// Every payload that passes signature verification is stored before any
// business logic runs, so a crash mid-processing never loses an event; the
// reconciliation sweep re-discovers it via the processed flag.
type WebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Provider        string     `gorm:"type:varchar(20);not null;index:ux_webhook_events_provider_event,unique,priority:1;index" json:"provider"`
	ProviderEventID string     `gorm:"type:varchar(191);not null;default:'';index:ux_webhook_events_provider_event,unique,priority:2" json:"provider_event_id"`
	EventType       string     `gorm:"type:varchar(50);not null;index" json:"event_type"`
	Action          string     `gorm:"type:varchar(50)" json:"action"`
	PaymentDataID   string     `gorm:"type:varchar(64);index" json:"payment_data_id"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	LiveMode        bool       `gorm:"default:false" json:"live_mode"`
	Processed       bool       `gorm:"default:false;index" json:"processed"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	AttemptCount    int        `gorm:"not null;default:0" json:"attempt_count"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ReceivedAt      time.Time  `gorm:"autoCreateTime;index" json:"received_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
