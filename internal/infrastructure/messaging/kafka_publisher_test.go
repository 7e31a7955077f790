package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marketplace/backend/internal/domain/order"
	"github.com/marketplace/backend/internal/infrastructure/config"
	"github.com/marketplace/backend/internal/infrastructure/event"
	"github.com/marketplace/backend/internal/infrastructure/telemetry"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func newMaterializedEvent() *order.OrderMaterializedEvent {
	o := &order.Order{StoreID: uuid.New(), CartID: uuid.New(), Total: decimal.RequireFromString("19.99"), Currency: "USD"}
	o.ID = uuid.New()
	return order.NewOrderMaterializedEvent(o)
}

func TestNewKafkaWriter(t *testing.T) {
	w := NewKafkaWriter(config.KafkaConfig{
		Brokers:      []string{"localhost:9092"},
		Topic:        "marketplace.domain-events",
		BatchTimeout: 50 * time.Millisecond,
	})
	assert.Equal(t, "marketplace.domain-events", w.Topic)
	assert.Equal(t, kafka.RequireAll, w.RequiredAcks)
	assert.Equal(t, 50*time.Millisecond, w.BatchTimeout)
}

func TestKafkaPublisher_Handle(t *testing.T) {
	writer := &fakeWriter{}
	serializer := event.NewEventSerializer()
	p := NewKafkaPublisher(writer, serializer, nil, zap.NewNop())
	evt := newMaterializedEvent()

	require.NoError(t, p.Handle(context.Background(), evt))
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, evt.OrderID.String(), string(msg.Key))
	assert.Equal(t, order.EventTypeOrderMaterialized, header(msg, "event_type"))
	assert.Equal(t, evt.EventID().String(), header(msg, "event_id"))
	assert.Equal(t, order.AggregateTypeOrder, header(msg, "aggregate_type"))

	decoded, err := serializer.Deserialize(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, evt.OrderID, decoded.(*order.OrderMaterializedEvent).OrderID)
}

func TestKafkaPublisher_WriteFailure(t *testing.T) {
	writer := &fakeWriter{err: errors.New("leader not available")}
	metrics := telemetry.NewCheckoutMetrics()
	p := NewKafkaPublisher(writer, event.NewEventSerializer(), metrics, zap.NewNop())

	err := p.Handle(context.Background(), newMaterializedEvent())
	assert.ErrorContains(t, err, "leader not available")

	count, err := testutil.GatherAndCount(metrics.Registry(), "marketplace_events_publish_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestKafkaPublisher_OnBus(t *testing.T) {
	writer := &fakeWriter{}
	bus := event.NewInMemoryEventBus(zap.NewNop())
	p := NewKafkaPublisher(writer, event.NewEventSerializer(), nil, zap.NewNop())
	bus.Subscribe(p)

	require.NoError(t, bus.Publish(context.Background(), newMaterializedEvent(), newMaterializedEvent()))
	assert.Len(t, writer.messages, 2)

	require.NoError(t, p.Close())
	assert.True(t, writer.closed)
}
