package repository

import (
	"time"

	"github.com/StudioLienzo/CanvasShop/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// webhookEventRepository implements the WebhookEventRepository interface
type webhookEventRepository struct {
	db *gorm.DB
}

// NewWebhookEventRepository creates a new webhook event repository instance
func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

// CreateIfNotExists appends the event to the log unless an event with the
// same (provider, provider_event_id) was already stored. The bool result
// reports whether this call created the row.
func (r *webhookEventRepository) CreateIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

// GetByID retrieves a webhook event by its ID
func (r *webhookEventRepository) GetByID(id uint) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	if err := r.db.First(&event, id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// MarkProcessed records a completed attempt. An empty processingError marks
// the event processed; a non-empty one leaves it unprocessed for retry.
func (r *webhookEventRepository) MarkProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed":        processingError == "",
		"processing_error": processingError,
		"attempt_count":    gorm.Expr("attempt_count + 1"),
	}
	if processingError == "" {
		updates["processed_at"] = &now
	}
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

// RecordFailure records a failed attempt without marking the event processed.
func (r *webhookEventRepository) RecordFailure(id uint, processingError string) error {
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"processing_error": processingError,
		"attempt_count":    gorm.Expr("attempt_count + 1"),
	}).Error
}

// ListUnprocessed returns events still awaiting successful processing that
// have not hit the attempt ceiling, oldest first.
func (r *webhookEventRepository) ListUnprocessed(maxAttempts, limit int) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	err := r.db.
		Where("processed = ? AND attempt_count < ?", false, maxAttempts).
		Order("received_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// ListDead returns unprocessed events excluded from automatic retry. They
// stay queryable for manual inspection and are never deleted.
func (r *webhookEventRepository) ListDead(maxAttempts, limit int) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	err := r.db.
		Where("processed = ? AND attempt_count >= ?", false, maxAttempts).
		Order("received_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// ResetAttempts re-arms a dead-lettered event for the retry sweep (manual
// operator action).
func (r *webhookEventRepository) ResetAttempts(id uint) error {
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"attempt_count":    0,
		"processing_error": "",
	}).Error
}
