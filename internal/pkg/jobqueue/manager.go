package jobqueue

import (
	"strconv"
	"sync"
	"time"

	"github.com/StudioLienzo/CanvasShop/app/repository"
	"github.com/StudioLienzo/CanvasShop/internal/pkg/env"
	"github.com/StudioLienzo/CanvasShop/internal/pkg/metrics/counter"
	"github.com/StudioLienzo/CanvasShop/internal/pkg/payments"
	"github.com/gofiber/fiber/v2/log"
)

const sweepBatchSize = 100

// enqueuer is the queue surface the sweeps use.
type enqueuer interface {
	EnqueueWebhookProcessing(eventID uint) (string, error)
	EnqueueFinalization(orderID uint) (string, error)
}

// Manager is the reconciliation scheduler: it owns the worker queue plus the
// periodic sweeps that replay stored-but-unprocessed webhook events and
// resume finalization for orders stuck between payment approval and
// completed side effects. Both sweeps also run once at startup to cover
// webhooks stored while the process was down.
type Manager struct {
	queue          *Queue
	jobs           enqueuer
	events         repository.WebhookEventRepository
	orders         repository.OrderRepository
	maxAttempts    int
	retryInterval  time.Duration
	finalizeTicker *time.Ticker
	retryTicker    *time.Ticker
	statsTicker    *time.Ticker
	finalizeEvery  time.Duration
	statsEvery     time.Duration
	stopCh         chan struct{}
	wg             sync.WaitGroup
	mu             sync.Mutex
	running        bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// InitManager wires the global scheduler (singleton). Intervals and the
// attempt ceiling come from env with the documented defaults.
func InitManager(events repository.WebhookEventRepository, orders repository.OrderRepository, processor *payments.Processor, finalizer *payments.Finalizer) *Manager {
	managerOnce.Do(func() {
		queue := NewQueue(envInt("JOBQUEUE_WORKERS", 5), NewHandler(events, processor, finalizer))
		globalManager = &Manager{
			queue:         queue,
			jobs:          queue,
			events:        events,
			orders:        orders,
			maxAttempts:   envInt("WEBHOOK_MAX_ATTEMPTS", 5),
			retryInterval: time.Duration(envInt("WEBHOOK_RETRY_SWEEP_MINUTES", 5)) * time.Minute,
			finalizeEvery: time.Duration(envInt("FINALIZE_SWEEP_MINUTES", 15)) * time.Minute,
			statsEvery:    time.Duration(envInt("STATS_FLUSH_MINUTES", 5)) * time.Minute,
			stopCh:        make(chan struct{}),
		}
	})
	return globalManager
}

// GetManager returns the global scheduler instance
func GetManager() *Manager {
	if globalManager == nil {
		panic("Jobqueue manager not initialized. Call InitManager first.")
	}
	return globalManager
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// MaxAttempts returns the retry ceiling for webhook events.
func (m *Manager) MaxAttempts() int {
	return m.maxAttempts
}

// Start starts the job queue and background sweeps
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so the manager can be
	// restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[Scheduler] Starting job queue and reconciliation sweeps")

	m.queue.Start()

	m.retryTicker = time.NewTicker(m.retryInterval)
	m.wg.Add(1)
	go m.retryWorker()

	m.finalizeTicker = time.NewTicker(m.finalizeEvery)
	m.wg.Add(1)
	go m.finalizeWorker()

	m.statsTicker = time.NewTicker(m.statsEvery)
	m.wg.Add(1)
	go m.statsWorker()

	// Startup sweep covers events stored while the process was down.
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.sweepUnprocessed()
		m.sweepStuckFinalization()
	}()

	log.Info("[Scheduler] Started successfully")
}

// Stop stops the job queue and background sweeps
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[Scheduler] Stopping...")

	if m.retryTicker != nil {
		m.retryTicker.Stop()
	}
	if m.finalizeTicker != nil {
		m.finalizeTicker.Stop()
	}
	if m.statsTicker != nil {
		m.statsTicker.Stop()
	}

	close(m.stopCh)
	m.running = false
	m.wg.Wait()

	m.queue.Stop()

	log.Info("[Scheduler] Stopped successfully")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// retryWorker periodically replays stored-but-unprocessed webhook events
func (m *Manager) retryWorker() {
	defer m.wg.Done()
	log.Infof("[Scheduler] Retry sweep running every %s", m.retryInterval)

	for {
		select {
		case <-m.stopCh:
			log.Info("[Scheduler] Retry sweep stopping")
			return
		case <-m.retryTicker.C:
			m.sweepUnprocessed()
		}
	}
}

// finalizeWorker periodically resumes finalization for stuck orders
func (m *Manager) finalizeWorker() {
	defer m.wg.Done()
	log.Infof("[Scheduler] Finalization sweep running every %s", m.finalizeEvery)

	for {
		select {
		case <-m.stopCh:
			log.Info("[Scheduler] Finalization sweep stopping")
			return
		case <-m.finalizeTicker.C:
			m.sweepStuckFinalization()
		}
	}
}

// statsWorker periodically flushes buffered product view counters to the
// database.
func (m *Manager) statsWorker() {
	defer m.wg.Done()

	for {
		select {
		case <-m.stopCh:
			return
		case <-m.statsTicker.C:
			if err := counter.FlushAll(); err != nil {
				log.Errorf("[Scheduler] Flushing view counters failed: %v", err)
			}
		}
	}
}

// sweepUnprocessed re-enqueues unprocessed events under the attempt ceiling.
// Each event becomes its own job, so one poison record cannot block the rest.
func (m *Manager) sweepUnprocessed() {
	events, err := m.events.ListUnprocessed(m.maxAttempts, sweepBatchSize)
	if err != nil {
		log.Errorf("[Scheduler] Listing unprocessed events failed: %v", err)
		return
	}
	for _, event := range events {
		if _, err := m.jobs.EnqueueWebhookProcessing(event.ID); err != nil {
			log.Errorf("[Scheduler] Enqueue retry for event %d failed: %v", event.ID, err)
		}
	}
	if len(events) > 0 {
		log.Infof("[Scheduler] Re-enqueued %d unprocessed webhook events", len(events))
	}
}

// sweepStuckFinalization re-runs finalization for paid orders whose side
// effects never completed.
func (m *Manager) sweepStuckFinalization() {
	orders, err := m.orders.ListStuckFinalization(sweepBatchSize)
	if err != nil {
		log.Errorf("[Scheduler] Listing stuck finalizations failed: %v", err)
		return
	}
	for _, order := range orders {
		if _, err := m.jobs.EnqueueFinalization(order.ID); err != nil {
			log.Errorf("[Scheduler] Enqueue finalization for order %d failed: %v", order.ID, err)
		}
	}
	if len(orders) > 0 {
		log.Infof("[Scheduler] Re-enqueued finalization for %d orders", len(orders))
	}
}

func envInt(key string, def int) int {
	raw := env.GetEnv(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
