package jobqueue

import (
	"sort"
	"testing"

	"github.com/StudioLienzo/CanvasShop/app/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// memoryEventStore mirrors the webhook repository's retry-feed semantics:
// ListUnprocessed excludes events at or over the attempt ceiling,
// ListDead returns exactly those.
type memoryEventStore struct {
	events map[uint]*models.WebhookEvent
}

func newMemoryEventStore(events ...*models.WebhookEvent) *memoryEventStore {
	s := &memoryEventStore{events: make(map[uint]*models.WebhookEvent)}
	for _, e := range events {
		s.events[e.ID] = e
	}
	return s
}

func (s *memoryEventStore) CreateIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	if existing, ok := s.events[event.ID]; ok {
		return false, existing, nil
	}
	s.events[event.ID] = event
	return true, event, nil
}

func (s *memoryEventStore) GetByID(id uint) (*models.WebhookEvent, error) {
	e, ok := s.events[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return e, nil
}

func (s *memoryEventStore) MarkProcessed(id uint, processingError string) error {
	e, ok := s.events[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	e.Processed = processingError == ""
	e.ProcessingError = processingError
	e.AttemptCount++
	return nil
}

func (s *memoryEventStore) RecordFailure(id uint, processingError string) error {
	e, ok := s.events[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	e.ProcessingError = processingError
	e.AttemptCount++
	return nil
}

func (s *memoryEventStore) ListUnprocessed(maxAttempts, limit int) ([]models.WebhookEvent, error) {
	var out []models.WebhookEvent
	for _, e := range s.events {
		if !e.Processed && e.AttemptCount < maxAttempts {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryEventStore) ListDead(maxAttempts, limit int) ([]models.WebhookEvent, error) {
	var out []models.WebhookEvent
	for _, e := range s.events {
		if !e.Processed && e.AttemptCount >= maxAttempts {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryEventStore) ResetAttempts(id uint) error {
	e, ok := s.events[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	e.AttemptCount = 0
	e.ProcessingError = ""
	return nil
}

type recordingEnqueuer struct {
	webhookIDs []uint
	orderIDs   []uint
}

func (r *recordingEnqueuer) EnqueueWebhookProcessing(eventID uint) (string, error) {
	r.webhookIDs = append(r.webhookIDs, eventID)
	return "job-webhook", nil
}

func (r *recordingEnqueuer) EnqueueFinalization(orderID uint) (string, error) {
	r.orderIDs = append(r.orderIDs, orderID)
	return "job-finalize", nil
}

func unprocessedEvent(id uint, attempts int) *models.WebhookEvent {
	return &models.WebhookEvent{
		ID:           id,
		Provider:     models.PaymentProviderMercadoPago,
		EventType:    "payment",
		AttemptCount: attempts,
	}
}

func TestSweepUnprocessed_RespectsAttemptCeiling(t *testing.T) {
	store := newMemoryEventStore(
		unprocessedEvent(1, 0),
		unprocessedEvent(2, 4),
		unprocessedEvent(3, 5),
		unprocessedEvent(4, 9),
	)
	processed := unprocessedEvent(5, 1)
	processed.Processed = true
	store.events[5] = processed

	jobs := &recordingEnqueuer{}
	m := &Manager{events: store, jobs: jobs, maxAttempts: 5}

	m.sweepUnprocessed()

	// Only events under the ceiling are re-enqueued.
	assert.Equal(t, []uint{1, 2}, jobs.webhookIDs)

	// Events at or over the ceiling are out of the retry feed but stay
	// visible for manual inspection, never deleted.
	dead, err := store.ListDead(5, 100)
	require.NoError(t, err)
	require.Len(t, dead, 2)
	assert.Equal(t, uint(3), dead[0].ID)
	assert.Equal(t, uint(4), dead[1].ID)
	for _, id := range []uint{3, 4} {
		_, err := store.GetByID(id)
		assert.NoError(t, err)
	}
}

func TestSweepUnprocessed_ResetReArmsDeadEvent(t *testing.T) {
	store := newMemoryEventStore(unprocessedEvent(3, 7))
	jobs := &recordingEnqueuer{}
	m := &Manager{events: store, jobs: jobs, maxAttempts: 5}

	m.sweepUnprocessed()
	assert.Empty(t, jobs.webhookIDs)

	require.NoError(t, store.ResetAttempts(3))
	m.sweepUnprocessed()
	assert.Equal(t, []uint{3}, jobs.webhookIDs)
}
