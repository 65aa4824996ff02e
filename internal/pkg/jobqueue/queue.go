package jobqueue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/StudioLienzo/CanvasShop/internal/pkg/cache"
)

const (
	// Redis key prefixes
	JobKeyPrefix     = "job:"
	JobQueueKey      = "job_queue"
	JobProcessingKey = "job_processing"

	// Job settings
	JobTTL = 24 * time.Hour // Jobs expire after 24 hours
)

// Handler executes one job. A returned error marks the job failed; the
// durable state it pointed at remains for the reconciliation sweep.
type Handler func(ctx context.Context, job *Job) error

// Queue manages background jobs using Redis
type Queue struct {
	client  *redis.Client
	handler Handler
	workers int
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewQueue creates a new job queue
func NewQueue(workers int, handler Handler) *Queue {
	if workers <= 0 {
		workers = 3 // Default number of workers
	}

	return &Queue{
		client:  cache.GetClient(),
		handler: handler,
		workers: workers,
		stopCh:  make(chan struct{}),
	}
}

// Start starts the job queue workers
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}

	q.stopCh = make(chan struct{})
	q.running = true
	log.Infof("[JobQueue] Starting %d workers", q.workers)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	// Recover jobs stuck in processing after crashes.
	q.wg.Add(1)
	go q.stuckSweeper(10*time.Minute, time.Minute)
}

// Stop stops the job queue workers
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running {
		return
	}

	log.Info("[JobQueue] Stopping workers...")
	close(q.stopCh)
	q.running = false
	q.wg.Wait()
	log.Info("[JobQueue] All workers stopped")
}

// EnqueueWebhookProcessing enqueues an asynchronous processing run for a
// stored webhook event.
func (q *Queue) EnqueueWebhookProcessing(eventID uint) (string, error) {
	return q.enqueue(&Job{
		Type:           JobTypeProcessWebhook,
		WebhookEventID: eventID,
	})
}

// EnqueueFinalization enqueues an order finalization re-run.
func (q *Queue) EnqueueFinalization(orderID uint) (string, error) {
	return q.enqueue(&Job{
		Type:    JobTypeFinalizeOrder,
		OrderID: orderID,
	})
}

func (q *Queue) enqueue(job *Job) (string, error) {
	ctx := context.Background()
	now := time.Now()
	job.ID = uuid.New().String()
	job.Status = JobStatusPending
	job.CreatedAt = now
	job.UpdatedAt = now

	data, err := json.Marshal(job)
	if err != nil {
		return "", err
	}
	if err := q.client.Set(ctx, JobKeyPrefix+job.ID, data, JobTTL).Err(); err != nil {
		return "", err
	}
	if err := q.client.RPush(ctx, JobQueueKey, job.ID).Err(); err != nil {
		return "", err
	}
	return job.ID, nil
}

// worker processes jobs from the queue until stopped
func (q *Queue) worker(id int) {
	defer q.wg.Done()
	ctx := context.Background()

	for {
		select {
		case <-q.stopCh:
			log.Debugf("[JobQueue] Worker %d stopping", id)
			return
		default:
		}

		jobID, err := q.client.BLMove(ctx, JobQueueKey, JobProcessingKey, "left", "right", time.Second).Result()
		if err != nil {
			if err != redis.Nil {
				log.Errorf("[JobQueue] Worker %d pop error: %v", id, err)
				time.Sleep(time.Second)
			}
			continue
		}

		q.runJob(ctx, jobID)
		_ = q.client.LRem(ctx, JobProcessingKey, 1, jobID).Err()
	}
}

func (q *Queue) runJob(ctx context.Context, jobID string) {
	data, err := q.client.Get(ctx, JobKeyPrefix+jobID).Result()
	if err != nil {
		if err != redis.Nil {
			log.Errorf("[JobQueue] Failed to load job %s: %v", jobID, err)
		}
		return
	}

	var job Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		log.Errorf("[JobQueue] Failed to decode job %s: %v", jobID, err)
		return
	}

	now := time.Now()
	job.Status = JobStatusProcessing
	job.ProcessedAt = &now
	job.UpdatedAt = now
	q.updateJob(ctx, &job)

	if err := q.handler(ctx, &job); err != nil {
		job.Status = JobStatusFailed
		job.ErrorMsg = err.Error()
		log.Warnf("[JobQueue] Job %s (%s) failed: %v", job.ID, job.Type, err)
	} else {
		done := time.Now()
		job.Status = JobStatusCompleted
		job.CompletedAt = &done
	}
	job.UpdatedAt = time.Now()
	q.updateJob(ctx, &job)
}

func (q *Queue) updateJob(ctx context.Context, job *Job) {
	data, err := json.Marshal(job)
	if err != nil {
		log.Errorf("[JobQueue] Failed to encode job %s: %v", job.ID, err)
		return
	}
	if err := q.client.Set(ctx, JobKeyPrefix+job.ID, data, JobTTL).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to store job %s: %v", job.ID, err)
	}
}

// stuckSweeper periodically scans the processing list and requeues jobs stuck
// for longer than maxAge (crash recovery)
func (q *Queue) stuckSweeper(maxAge, interval time.Duration) {
	defer q.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ctx := context.Background()

	for {
		select {
		case <-q.stopCh:
			log.Info("[JobQueue] Stuck sweeper stopping")
			return
		case <-ticker.C:
			ids, err := q.client.LRange(ctx, JobProcessingKey, 0, -1).Result()
			if err != nil {
				log.Errorf("[JobQueue] Sweeper LRange error: %v", err)
				continue
			}
			now := time.Now()
			for _, id := range ids {
				data, err := q.client.Get(ctx, JobKeyPrefix+id).Result()
				if err != nil {
					// Job data missing; remove from processing list
					if err != redis.Nil {
						log.Errorf("[JobQueue] Sweeper Get error for %s: %v", id, err)
					}
					_ = q.client.LRem(ctx, JobProcessingKey, 1, id).Err()
					continue
				}
				var job Job
				if uerr := json.Unmarshal([]byte(data), &job); uerr != nil {
					log.Errorf("[JobQueue] Sweeper unmarshal error for %s: %v", id, uerr)
					_ = q.client.LRem(ctx, JobProcessingKey, 1, id).Err()
					continue
				}
				if job.Status != JobStatusProcessing {
					// Clean up stray entry
					_ = q.client.LRem(ctx, JobProcessingKey, 1, id).Err()
					continue
				}
				started := job.ProcessedAt
				if started == nil || started.IsZero() {
					tmp := job.UpdatedAt
					if tmp.IsZero() {
						tmp = job.CreatedAt
					}
					started = &tmp
				}
				if now.Sub(*started) > maxAge {
					log.Warnf("[JobQueue] Recovering stuck job %s (type=%s), age=%s", job.ID, job.Type, now.Sub(*started))
					job.Status = JobStatusPending
					job.ErrorMsg = "recovered by sweeper"
					job.UpdatedAt = now
					q.updateJob(ctx, &job)
					_ = q.client.LRem(ctx, JobProcessingKey, 1, id).Err()
					_ = q.client.RPush(ctx, JobQueueKey, id).Err()
				}
			}
		}
	}
}
