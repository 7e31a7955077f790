package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/infrastructure/config"
	"github.com/marketplace/backend/internal/infrastructure/event"
	"github.com/marketplace/backend/internal/infrastructure/telemetry"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter creates a writer keyed by aggregate id so events of one aggregate stay ordered
func NewKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           cfg.BatchTimeout,
		AllowAutoTopicCreation: true,
	}
}

// KafkaPublisher forwards domain events from the bus to a Kafka topic.
// It subscribes to every event type.
type KafkaPublisher struct {
	writer     MessageWriter
	serializer *event.EventSerializer
	metrics    *telemetry.CheckoutMetrics
	logger     *zap.Logger
}

// NewKafkaPublisher creates a forwarding handler
func NewKafkaPublisher(writer MessageWriter, serializer *event.EventSerializer, metrics *telemetry.CheckoutMetrics, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer:     writer,
		serializer: serializer,
		metrics:    metrics,
		logger:     logger,
	}
}

// Handle writes one event as a message
func (p *KafkaPublisher) Handle(ctx context.Context, evt shared.DomainEvent) error {
	value, err := p.serializer.Serialize(evt)
	if err != nil {
		p.metrics.ObservePublishFailure(evt.EventType())
		return fmt.Errorf("kafka: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(evt.AggregateID().String()),
		Value: value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.EventType())},
			{Key: "event_id", Value: []byte(evt.EventID().String())},
			{Key: "aggregate_type", Value: []byte(evt.AggregateType())},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.metrics.ObservePublishFailure(evt.EventType())
		return fmt.Errorf("kafka: failed to write %s: %w", evt.EventType(), err)
	}

	p.logger.Debug("Forwarded domain event",
		zap.String("event_type", evt.EventType()),
		zap.String("event_id", evt.EventID().String()))
	return nil
}

// EventTypes returns nil so the publisher receives all events
func (p *KafkaPublisher) EventTypes() []string {
	return nil
}

// Close flushes pending messages and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

var _ shared.EventHandler = (*KafkaPublisher)(nil)
