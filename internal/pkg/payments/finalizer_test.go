package payments

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/StudioLienzo/CanvasShop/app/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePromoter struct {
	mu    sync.Mutex
	calls int
	keys  []string
	err   error
}

func (p *fakePromoter) Promote(_ context.Context, _ uint, keys []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.keys = append(p.keys, keys...)
	return p.err
}

func paidOrder(id uint, artworkKeys ...string) *models.Order {
	order := pendingOrder(id)
	order.Status = models.OrderStatusPaid
	for i := range artworkKeys {
		order.Items = append(order.Items, models.OrderItem{
			ID:         uint(i + 10),
			OrderID:    id,
			ProductID:  8,
			Quantity:   1,
			ArtworkKey: artworkKeys[i],
		})
	}
	return order
}

func TestFinalize_RunsAllStepsOnce(t *testing.T) {
	orders := newFakeOrderStore(paidOrder(5, "temp/a1.png"))
	notifier := &fakeNotifier{}
	promoter := &fakePromoter{}
	f := NewFinalizer(orders, notifier, promoter)

	require.NoError(t, f.Finalize(context.Background(), 5))

	order := orders.snapshot(5)
	assert.Equal(t, models.FinalizationDone, order.FinalizationState)
	assert.True(t, order.StockDecremented)
	assert.True(t, order.CustomerNotified)
	assert.True(t, order.ArtworkPromoted)
	assert.Equal(t, 1, notifier.callCount())
	assert.Equal(t, []string{"temp/a1.png"}, promoter.keys)
}

func TestFinalize_RerunIsNoOp(t *testing.T) {
	orders := newFakeOrderStore(paidOrder(5))
	notifier := &fakeNotifier{}
	f := NewFinalizer(orders, notifier, nil)

	require.NoError(t, f.Finalize(context.Background(), 5))
	require.NoError(t, f.Finalize(context.Background(), 5))
	require.NoError(t, f.Finalize(context.Background(), 5))

	assert.Equal(t, 1, orders.stockCalls)
	assert.Equal(t, 1, notifier.callCount())
}

func TestFinalize_ConcurrentRunsExecuteEachStepOnce(t *testing.T) {
	orders := newFakeOrderStore(paidOrder(5, "temp/a1.png"))
	notifier := &fakeNotifier{}
	promoter := &fakePromoter{}
	f := NewFinalizer(orders, notifier, promoter)

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.Finalize(context.Background(), 5)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoErrorf(t, err, "goroutine %d", i)
	}
	assert.Equal(t, 1, orders.stockCalls)
	assert.Equal(t, 1, notifier.callCount())
	assert.Equal(t, models.FinalizationDone, orders.snapshot(5).FinalizationState)
}

func TestFinalize_NotificationFailureIsRetried(t *testing.T) {
	orders := newFakeOrderStore(paidOrder(5))
	notifier := &fakeNotifier{err: fmt.Errorf("smtp unavailable")}
	f := NewFinalizer(orders, notifier, nil)

	err := f.Finalize(context.Background(), 5)
	require.Error(t, err)

	order := orders.snapshot(5)
	// The claim was released, finalization stays open, stock stays decremented.
	assert.False(t, order.CustomerNotified)
	assert.Equal(t, models.FinalizationPending, order.FinalizationState)
	assert.True(t, order.StockDecremented)

	notifier.err = nil
	require.NoError(t, f.Finalize(context.Background(), 5))

	order = orders.snapshot(5)
	assert.True(t, order.CustomerNotified)
	assert.Equal(t, models.FinalizationDone, order.FinalizationState)
	assert.Equal(t, 1, orders.stockCalls)
	assert.Equal(t, 2, notifier.callCount())
}

func TestFinalize_PromotionFailureResumesWithoutRepeatingStock(t *testing.T) {
	orders := newFakeOrderStore(paidOrder(5, "temp/a1.png"))
	notifier := &fakeNotifier{}
	promoter := &fakePromoter{err: fmt.Errorf("bucket unreachable")}
	f := NewFinalizer(orders, notifier, promoter)

	require.Error(t, f.Finalize(context.Background(), 5))
	assert.Equal(t, models.FinalizationPending, orders.snapshot(5).FinalizationState)

	promoter.err = nil
	require.NoError(t, f.Finalize(context.Background(), 5))

	order := orders.snapshot(5)
	assert.Equal(t, models.FinalizationDone, order.FinalizationState)
	assert.True(t, order.ArtworkPromoted)
	assert.Equal(t, 1, orders.stockCalls)
	assert.Equal(t, 1, notifier.callCount())
	assert.Equal(t, 2, promoter.calls)
}

type gatedNotifier struct {
	entered chan struct{}
	result  chan error
}

func (n *gatedNotifier) NotifyOrderPaid(_ context.Context, _ *models.Order) error {
	n.entered <- struct{}{}
	return <-n.result
}

func TestFinalize_InFlightDeliveryFailureReopensFinalization(t *testing.T) {
	// Run A claims the notification and blocks in delivery. Run B observes
	// the claim as completed and marks the order done. When A's delivery
	// then fails, releasing the claim must reopen finalization so the sweep
	// still gets the notification out.
	orders := newFakeOrderStore(paidOrder(5))
	gate := &gatedNotifier{entered: make(chan struct{}), result: make(chan error)}

	runA := make(chan error, 1)
	go func() {
		runA <- NewFinalizer(orders, gate, nil).Finalize(context.Background(), 5)
	}()
	<-gate.entered

	require.NoError(t, NewFinalizer(orders, &fakeNotifier{}, nil).Finalize(context.Background(), 5))
	assert.Equal(t, models.FinalizationDone, orders.snapshot(5).FinalizationState)

	gate.result <- fmt.Errorf("whatsapp api timeout")
	require.Error(t, <-runA)

	order := orders.snapshot(5)
	assert.False(t, order.CustomerNotified)
	assert.Equal(t, models.FinalizationPending, order.FinalizationState)

	retrier := &fakeNotifier{}
	require.NoError(t, NewFinalizer(orders, retrier, nil).Finalize(context.Background(), 5))

	order = orders.snapshot(5)
	assert.True(t, order.CustomerNotified)
	assert.Equal(t, models.FinalizationDone, order.FinalizationState)
	assert.Equal(t, 1, retrier.callCount())
	assert.Equal(t, 1, orders.stockCalls)
}

func TestFinalize_RepairsOrderStatusBeforeSideEffects(t *testing.T) {
	// The sweep hands over orders whose payment is approved but whose order
	// row never reached paid. Finalize brings the status along.
	order := paidOrder(5)
	order.Status = models.OrderStatusPending
	orders := newFakeOrderStore(order)
	notifier := &fakeNotifier{}

	require.NoError(t, NewFinalizer(orders, notifier, nil).Finalize(context.Background(), 5))

	got := orders.snapshot(5)
	assert.Equal(t, models.OrderStatusPaid, got.Status)
	assert.Equal(t, models.FinalizationDone, got.FinalizationState)
	assert.Equal(t, 1, notifier.callCount())
}

func TestFinalize_NoArtworkStoreConfigured(t *testing.T) {
	orders := newFakeOrderStore(paidOrder(5, "temp/a1.png"))
	f := NewFinalizer(orders, &fakeNotifier{}, nil)

	require.NoError(t, f.Finalize(context.Background(), 5))

	order := orders.snapshot(5)
	assert.Equal(t, models.FinalizationDone, order.FinalizationState)
	assert.True(t, order.ArtworkPromoted)
}

func TestFinalize_StockFailureAbortsBeforeNotification(t *testing.T) {
	orders := newFakeOrderStore(paidOrder(5))
	orders.decErr = fmt.Errorf("insufficient stock for product 7")
	notifier := &fakeNotifier{}
	f := NewFinalizer(orders, notifier, nil)

	require.Error(t, f.Finalize(context.Background(), 5))
	assert.Equal(t, 0, notifier.callCount())
	assert.Equal(t, models.FinalizationPending, orders.snapshot(5).FinalizationState)
}
