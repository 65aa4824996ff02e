package jobqueue

import (
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeProcessWebhook JobType = "process_webhook"
	JobTypeFinalizeOrder  JobType = "finalize_order"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job represents a background job. Jobs are delivery vehicles only: the
// durable retry state lives on the webhook event / order rows, so a lost
// job is always rediscovered by the reconciliation sweeps.
type Job struct {
	ID             string     `json:"id"`
	Type           JobType    `json:"type"`
	Status         JobStatus  `json:"status"`
	WebhookEventID uint       `json:"webhook_event_id,omitempty"`
	OrderID        uint       `json:"order_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ErrorMsg       string     `json:"error_msg,omitempty"`
}
