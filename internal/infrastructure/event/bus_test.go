package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/infrastructure/telemetry"
)

type testEvent struct {
	shared.BaseDomainEvent
	Data string `json:"data"`
}

func newTestEvent(eventType string) *testEvent {
	return &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "TestAggregate", uuid.New()),
		Data:            "test data",
	}
}

type testHandler struct {
	eventTypes []string
	err        error
	panicWith  any
	started    chan struct{}
	block      chan struct{}
	deadline   bool

	mu      sync.Mutex
	handled []shared.DomainEvent
}

func newTestHandler(eventTypes ...string) *testHandler {
	return &testHandler{eventTypes: eventTypes}
}

func (h *testHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if h.started != nil {
		close(h.started)
	}
	if h.block != nil {
		<-h.block
	}
	h.mu.Lock()
	h.handled = append(h.handled, event)
	_, h.deadline = ctx.Deadline()
	h.mu.Unlock()
	if h.panicWith != nil {
		panic(h.panicWith)
	}
	return h.err
}

func (h *testHandler) EventTypes() []string { return h.eventTypes }

func (h *testHandler) getHandled() []shared.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]shared.DomainEvent(nil), h.handled...)
}

func TestInMemoryEventBus_Publish(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	specific := newTestHandler("OrderMaterialized")
	other := newTestHandler("PaymentSucceeded")
	wildcard := newTestHandler()
	bus.Subscribe(specific)
	bus.Subscribe(other)
	bus.Subscribe(wildcard)

	event := newTestEvent("OrderMaterialized")
	require.NoError(t, bus.Publish(context.Background(), event))

	assert.Equal(t, []shared.DomainEvent{event}, specific.getHandled())
	assert.Empty(t, other.getHandled())
	assert.Equal(t, []shared.DomainEvent{event}, wildcard.getHandled())
}

func TestInMemoryEventBus_HandlerFailuresDoNotStopDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	failing := newTestHandler("E")
	failing.err = errors.New("broker down")
	panicking := newTestHandler("E")
	panicking.panicWith = "boom"
	healthy := newTestHandler("E")

	bus.Subscribe(failing)
	bus.Subscribe(panicking)
	bus.Subscribe(healthy)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("E"), newTestEvent("E")))
	assert.Len(t, failing.getHandled(), 2)
	assert.Len(t, panicking.getHandled(), 2)
	assert.Len(t, healthy.getHandled(), 2)
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := newTestHandler("E")
	bus.Subscribe(handler)
	bus.Unsubscribe(handler)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("E")))
	assert.Empty(t, handler.getHandled())
}

func TestInMemoryEventBus_HandlerTimeout(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop(), WithHandlerTimeout(20*time.Millisecond))
	handler := newTestHandler("E")
	bus.Subscribe(handler)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("E")))
	assert.True(t, handler.deadline)
}

func TestInMemoryEventBus_Stop(t *testing.T) {
	t.Run("rejects events after stop", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())
		require.NoError(t, bus.Stop(context.Background()))
		assert.ErrorIs(t, bus.Publish(context.Background(), newTestEvent("E")), ErrBusStopped)

		require.NoError(t, bus.Start(context.Background()))
		assert.NoError(t, bus.Publish(context.Background(), newTestEvent("E")))
	})

	t.Run("waits for in-flight deliveries", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())
		handler := newTestHandler("E")
		handler.started = make(chan struct{})
		handler.block = make(chan struct{})
		bus.Subscribe(handler)

		published := make(chan error, 1)
		go func() {
			published <- bus.Publish(context.Background(), newTestEvent("E"))
		}()
		<-handler.started

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, bus.Stop(ctx), context.DeadlineExceeded)

		close(handler.block)
		require.NoError(t, <-published)
		assert.NoError(t, bus.Stop(context.Background()))
		assert.Len(t, handler.getHandled(), 1)
	})
}

func TestMetricsHandler(t *testing.T) {
	metrics := telemetry.NewCheckoutMetrics()
	bus := NewInMemoryEventBus(zap.NewNop())
	bus.Subscribe(NewMetricsHandler(metrics))

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("OrderMaterialized"), newTestEvent("OrderMaterialized")))

	count, err := testutil.GatherAndCount(metrics.Registry(), "marketplace_events_published_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
