package payments

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/StudioLienzo/CanvasShop/app/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeFetcher struct {
	mu      sync.Mutex
	payment *ProviderPayment
	err     error
	calls   int
}

func (f *fakeFetcher) FetchPayment(_ context.Context, id string) (*ProviderPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	p := *f.payment
	p.ID = id
	return &p, nil
}

type fakeEventStore struct {
	mu        sync.Mutex
	processed map[uint]bool
	failures  map[uint][]string
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{processed: make(map[uint]bool), failures: make(map[uint][]string)}
}

func (s *fakeEventStore) MarkProcessed(id uint, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[id] = true
	return nil
}

func (s *fakeEventStore) RecordFailure(id uint, processingError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[id] = append(s.failures[id], processingError)
	return nil
}

type fakePaymentStore struct {
	mu       sync.Mutex
	payments map[uint]*models.Payment
	nextID   uint
}

func newFakePaymentStore() *fakePaymentStore {
	return &fakePaymentStore{payments: make(map[uint]*models.Payment)}
}

func (s *fakePaymentStore) GetByProviderPaymentID(provider, providerPaymentID string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.Provider == provider && p.ProviderPaymentID == providerPaymentID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *fakePaymentStore) Create(payment *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	payment.ID = s.nextID
	cp := *payment
	s.payments[payment.ID] = &cp
	return nil
}

func (s *fakePaymentStore) UpdateStatus(id uint, status, rawResponseJSON string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	p.Status = status
	p.RawResponseJSON = rawResponseJSON
	return nil
}

func (s *fakePaymentStore) statusOf(id uint) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.payments[id]; ok {
		return p.Status
	}
	return ""
}

type fakeOrderStore struct {
	mu         sync.Mutex
	orders     map[uint]*models.Order
	stockCalls int
	decErr     error
	statusErr  error
}

func newFakeOrderStore(orders ...*models.Order) *fakeOrderStore {
	s := &fakeOrderStore{orders: make(map[uint]*models.Order)}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *fakeOrderStore) GetByID(id uint) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *o
	cp.Items = append([]models.OrderItem(nil), o.Items...)
	return &cp, nil
}

func (s *fakeOrderStore) UpdateStatus(id uint, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statusErr != nil {
		return s.statusErr
	}
	o, ok := s.orders[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	o.Status = status
	return nil
}

func (s *fakeOrderStore) DecrementStockOnce(orderID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.decErr != nil {
		return false, s.decErr
	}
	o, ok := s.orders[orderID]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	if o.StockDecremented {
		return false, nil
	}
	o.StockDecremented = true
	s.stockCalls++
	return true, nil
}

func (s *fakeOrderStore) ClaimCustomerNotify(orderID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	if o.CustomerNotified {
		return false, nil
	}
	o.CustomerNotified = true
	return true, nil
}

func (s *fakeOrderStore) ReleaseCustomerNotify(orderID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[orderID]; ok {
		o.CustomerNotified = false
		o.FinalizationState = models.FinalizationPending
	}
	return nil
}

func (s *fakeOrderStore) MarkArtworkPromoted(orderID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	if o.ArtworkPromoted {
		return false, nil
	}
	o.ArtworkPromoted = true
	return true, nil
}

func (s *fakeOrderStore) MarkFinalizationDone(orderID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	if o.FinalizationState == models.FinalizationDone {
		return false, nil
	}
	if !o.StockDecremented || !o.CustomerNotified || !o.ArtworkPromoted {
		return false, nil
	}
	o.FinalizationState = models.FinalizationDone
	return true, nil
}

func (s *fakeOrderStore) snapshot(id uint) models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.orders[id]
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (n *fakeNotifier) NotifyOrderPaid(_ context.Context, _ *models.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	return n.err
}

func (n *fakeNotifier) callCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

func pendingOrder(id uint) *models.Order {
	return &models.Order{
		ID:                id,
		CustomerName:      "Ana Souza",
		CustomerEmail:     "ana@example.com",
		Status:            models.OrderStatusPending,
		FinalizationState: models.FinalizationPending,
		Items: []models.OrderItem{
			{ID: 1, OrderID: id, ProductID: 7, Quantity: 2, UnitPrice: 45.0},
		},
	}
}

func paymentWebhookEvent(id uint, paymentID string) *models.WebhookEvent {
	return &models.WebhookEvent{
		ID:          id,
		Provider:    models.PaymentProviderMercadoPago,
		EventType:   EventTypePayment,
		PayloadJSON: fmt.Sprintf(`{"id":"evt-%d","type":"payment","action":"payment.updated","data":{"id":"%s"},"live_mode":true}`, id, paymentID),
	}
}

type processorFixture struct {
	processor *Processor
	fetcher   *fakeFetcher
	events    *fakeEventStore
	payments  *fakePaymentStore
	orders    *fakeOrderStore
	notifier  *fakeNotifier
}

func newProcessorFixture(fetched *ProviderPayment, orders ...*models.Order) *processorFixture {
	f := &processorFixture{
		fetcher:  &fakeFetcher{payment: fetched},
		events:   newFakeEventStore(),
		payments: newFakePaymentStore(),
		orders:   newFakeOrderStore(orders...),
		notifier: &fakeNotifier{},
	}
	finalizer := NewFinalizer(f.orders, f.notifier, nil)
	f.processor = NewProcessor(models.PaymentProviderMercadoPago, f.fetcher, f.events, f.payments, f.orders, finalizer)
	return f
}

func TestProcess_ApprovedPaymentFinalizesOrder(t *testing.T) {
	fx := newProcessorFixture(&ProviderPayment{
		Status:            models.PaymentStatusApproved,
		ExternalReference: "42",
		TransactionAmount: 90.0,
		PaymentMethodID:   "pix",
		RawJSON:           `{"status":"approved"}`,
	}, pendingOrder(42))

	outcome := fx.processor.Process(context.Background(), paymentWebhookEvent(1, "pay-100"))

	require.NoError(t, outcome.Err)
	assert.True(t, outcome.Applied)
	assert.Equal(t, uint(42), outcome.OrderID)
	assert.True(t, fx.events.processed[1])

	order := fx.orders.snapshot(42)
	assert.Equal(t, models.OrderStatusPaid, order.Status)
	assert.Equal(t, models.FinalizationDone, order.FinalizationState)
	assert.True(t, order.StockDecremented)
	assert.Equal(t, 1, fx.notifier.callCount())
	assert.Equal(t, models.PaymentStatusApproved, fx.payments.statusOf(1))
}

func TestProcess_DuplicateDeliveryIsNoOp(t *testing.T) {
	fx := newProcessorFixture(&ProviderPayment{
		Status:            models.PaymentStatusApproved,
		ExternalReference: "42",
		RawJSON:           `{"status":"approved"}`,
	}, pendingOrder(42))

	first := fx.processor.Process(context.Background(), paymentWebhookEvent(1, "pay-100"))
	require.NoError(t, first.Err)
	require.True(t, first.Applied)

	second := fx.processor.Process(context.Background(), paymentWebhookEvent(2, "pay-100"))
	require.NoError(t, second.Err)
	assert.False(t, second.Applied)
	assert.True(t, fx.events.processed[2])

	// Side effects ran exactly once across both deliveries.
	assert.Equal(t, 1, fx.orders.stockCalls)
	assert.Equal(t, 1, fx.notifier.callCount())
}

func TestProcess_StaleNotificationNeverRegresses(t *testing.T) {
	fx := newProcessorFixture(&ProviderPayment{
		Status:            models.PaymentStatusApproved,
		ExternalReference: "42",
		RawJSON:           `{"status":"approved"}`,
	}, pendingOrder(42))

	require.NoError(t, fx.processor.Process(context.Background(), paymentWebhookEvent(1, "pay-100")).Err)

	// A late replay observes an older processor state.
	fx.fetcher.payment = &ProviderPayment{
		Status:            models.PaymentStatusPending,
		ExternalReference: "42",
		RawJSON:           `{"status":"pending"}`,
	}
	outcome := fx.processor.Process(context.Background(), paymentWebhookEvent(2, "pay-100"))

	require.NoError(t, outcome.Err)
	assert.False(t, outcome.Applied)
	assert.True(t, fx.events.processed[2])
	assert.Equal(t, models.PaymentStatusApproved, fx.payments.statusOf(1))
	assert.Equal(t, models.OrderStatusPaid, fx.orders.snapshot(42).Status)
}

func TestProcess_NonPaymentEventIsAcknowledged(t *testing.T) {
	fx := newProcessorFixture(nil)

	event := &models.WebhookEvent{
		ID:          7,
		EventType:   EventTypeSubscription,
		PayloadJSON: `{"id":"sub-1","type":"subscription","data":{"id":"99"}}`,
	}
	outcome := fx.processor.Process(context.Background(), event)

	require.NoError(t, outcome.Err)
	assert.False(t, outcome.Applied)
	assert.True(t, fx.events.processed[7])
	assert.Equal(t, 0, fx.fetcher.calls)
}

func TestProcess_UnknownOrderIsRetryable(t *testing.T) {
	fx := newProcessorFixture(&ProviderPayment{
		Status:            models.PaymentStatusApproved,
		ExternalReference: "999",
	})

	outcome := fx.processor.Process(context.Background(), paymentWebhookEvent(1, "pay-100"))

	require.Error(t, outcome.Err)
	assert.True(t, outcome.Retry)
	assert.False(t, fx.events.processed[1])
	assert.Len(t, fx.events.failures[1], 1)
}

func TestProcess_FetchFailureIsRetryable(t *testing.T) {
	fx := newProcessorFixture(nil, pendingOrder(42))
	fx.fetcher.err = fmt.Errorf("processor api unavailable")

	outcome := fx.processor.Process(context.Background(), paymentWebhookEvent(1, "pay-100"))

	require.Error(t, outcome.Err)
	assert.True(t, outcome.Retry)
	assert.False(t, fx.events.processed[1])
}

func TestProcess_UnknownStatusIsNotRetried(t *testing.T) {
	fx := newProcessorFixture(&ProviderPayment{
		Status:            "charged_back_maybe",
		ExternalReference: "42",
	}, pendingOrder(42))

	outcome := fx.processor.Process(context.Background(), paymentWebhookEvent(1, "pay-100"))

	require.Error(t, outcome.Err)
	assert.False(t, outcome.Retry)
	assert.Len(t, fx.events.failures[1], 1)
}

func TestProcess_MalformedPayloadIsNotRetried(t *testing.T) {
	fx := newProcessorFixture(nil)

	event := &models.WebhookEvent{ID: 3, PayloadJSON: `{"data":{`}
	outcome := fx.processor.Process(context.Background(), event)

	require.Error(t, outcome.Err)
	assert.False(t, outcome.Retry)
	assert.Len(t, fx.events.failures[3], 1)
}

func TestProcess_RejectedPaymentCancelsOrder(t *testing.T) {
	fx := newProcessorFixture(&ProviderPayment{
		Status:            models.PaymentStatusRejected,
		ExternalReference: "42",
		RawJSON:           `{"status":"rejected"}`,
	}, pendingOrder(42))

	outcome := fx.processor.Process(context.Background(), paymentWebhookEvent(1, "pay-100"))

	require.NoError(t, outcome.Err)
	assert.True(t, outcome.Applied)

	order := fx.orders.snapshot(42)
	assert.Equal(t, models.OrderStatusCanceled, order.Status)
	assert.False(t, order.StockDecremented)
	assert.Equal(t, 0, fx.notifier.callCount())
}

func TestProcess_RefundAfterApprovalKeepsStock(t *testing.T) {
	fx := newProcessorFixture(&ProviderPayment{
		Status:            models.PaymentStatusApproved,
		ExternalReference: "42",
		RawJSON:           `{"status":"approved"}`,
	}, pendingOrder(42))

	require.NoError(t, fx.processor.Process(context.Background(), paymentWebhookEvent(1, "pay-100")).Err)

	fx.fetcher.payment = &ProviderPayment{
		Status:            models.PaymentStatusRefunded,
		ExternalReference: "42",
		RawJSON:           `{"status":"refunded"}`,
	}
	outcome := fx.processor.Process(context.Background(), paymentWebhookEvent(2, "pay-100"))

	require.NoError(t, outcome.Err)
	assert.True(t, outcome.Applied)
	assert.Equal(t, models.PaymentStatusRefunded, fx.payments.statusOf(1))

	order := fx.orders.snapshot(42)
	assert.Equal(t, models.OrderStatusRefunded, order.Status)
	// Refunds never restore stock; the goods were already produced.
	assert.True(t, order.StockDecremented)
}

func TestProcess_RetryRepairsOrderAfterPartialFailure(t *testing.T) {
	// The payment transition commits, then the order update fails. The
	// event must stay unprocessed so the sweep retries it, and the retry,
	// which now observes an unchanged payment status, must still finish the
	// order side effects instead of short-circuiting as a duplicate.
	fx := newProcessorFixture(&ProviderPayment{
		Status:            models.PaymentStatusApproved,
		ExternalReference: "42",
		RawJSON:           `{"status":"approved"}`,
	}, pendingOrder(42))
	fx.orders.statusErr = fmt.Errorf("deadlock found when trying to get lock")

	event := paymentWebhookEvent(1, "pay-100")
	first := fx.processor.Process(context.Background(), event)
	require.Error(t, first.Err)
	assert.True(t, first.Retry)
	assert.False(t, fx.events.processed[1])
	assert.Equal(t, models.PaymentStatusApproved, fx.payments.statusOf(1))
	assert.Equal(t, models.OrderStatusPending, fx.orders.snapshot(42).Status)

	fx.orders.statusErr = nil
	second := fx.processor.Process(context.Background(), event)
	require.NoError(t, second.Err)
	assert.True(t, fx.events.processed[1])

	order := fx.orders.snapshot(42)
	assert.Equal(t, models.OrderStatusPaid, order.Status)
	assert.Equal(t, models.FinalizationDone, order.FinalizationState)
	assert.Equal(t, 1, fx.orders.stockCalls)
	assert.Equal(t, 1, fx.notifier.callCount())
}

func TestProcess_OutOfOrderDeliveriesConverge(t *testing.T) {
	// Approved arrives first, then the older "created" notification. Both
	// fetch the same authoritative object, so order of arrival is
	// irrelevant.
	fx := newProcessorFixture(&ProviderPayment{
		Status:            models.PaymentStatusApproved,
		ExternalReference: "42",
		RawJSON:           `{"status":"approved"}`,
	}, pendingOrder(42))

	first := fx.processor.Process(context.Background(), paymentWebhookEvent(1, "pay-100"))
	require.NoError(t, first.Err)

	late := paymentWebhookEvent(2, "pay-100")
	late.Action = "payment.created"
	second := fx.processor.Process(context.Background(), late)

	require.NoError(t, second.Err)
	assert.False(t, second.Applied)
	assert.Equal(t, models.PaymentStatusApproved, fx.payments.statusOf(1))
}
