package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketplace/backend/internal/domain/order"
	"github.com/marketplace/backend/internal/domain/payment"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/infrastructure/telemetry"
)

// OrderMaterializer creates the orders for a succeeded intent, at most once
type OrderMaterializer interface {
	Materialize(ctx context.Context, paymentIntentID uuid.UUID) ([]order.Order, error)
}

const maxSaveAttempts = 3

// StateMachine applies provider events to payment intents.
//
// Events for one intent must not be applied concurrently; the Dispatcher guarantees that.
// An event id is recorded in the idempotency store only after the event's effects, including
// materialization, are durable. A failed materialization is therefore retried on redelivery.
type StateMachine struct {
	intentRepo   payment.PaymentIntentRepository
	idempotency  shared.IdempotencyStore
	materializer OrderMaterializer
	publisher    shared.EventPublisher
	eventTTL     time.Duration
	metrics      *telemetry.CheckoutMetrics
	logger       *zap.Logger
}

// NewStateMachine creates a new StateMachine
func NewStateMachine(
	intentRepo payment.PaymentIntentRepository,
	idempotency shared.IdempotencyStore,
	materializer OrderMaterializer,
	publisher shared.EventPublisher,
	cfg shared.IdempotencyConfig,
	metrics *telemetry.CheckoutMetrics,
	logger *zap.Logger,
) *StateMachine {
	if cfg.TTL <= 0 {
		cfg.TTL = shared.DefaultIdempotencyConfig().TTL
	}
	return &StateMachine{
		intentRepo:   intentRepo,
		idempotency:  idempotency,
		materializer: materializer,
		publisher:    publisher,
		eventTTL:     cfg.TTL,
		metrics:      metrics,
		logger:       logger,
	}
}

// Apply consumes one provider event
func (m *StateMachine) Apply(ctx context.Context, evt payment.ProviderEvent) (outcome payment.Outcome, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "apply_event",
		telemetry.SpanAttrProviderEventID, evt.EventID,
		telemetry.SpanAttrPaymentIntentID, evt.ProviderIntentID,
	)
	defer span.End()
	defer func() {
		if err != nil {
			telemetry.RecordError(span, err)
			return
		}
		telemetry.SetAttributes(span, telemetry.SpanAttrOutcome, string(outcome))
		m.metrics.ObserveProviderEvent(string(outcome))
	}()

	if err := evt.Validate(); err != nil {
		return "", err
	}

	seen, err := m.idempotency.IsProcessed(ctx, evt.EventID)
	if err != nil {
		m.logger.Warn("Idempotency store unavailable, relying on intent event id", zap.Error(err))
	} else if seen {
		return payment.OutcomeDuplicate, nil
	}

	intent, outcome, err := m.applyAndSave(ctx, evt)
	if errors.Is(err, shared.ErrNotFound) {
		// Intents are persisted after the provider call returns, so early lifecycle events for
		// an intent may arrive first. Nothing depends on them.
		m.logger.Warn("Provider event for unknown payment intent ignored",
			zap.String("event_id", evt.EventID),
			zap.String("provider_intent_id", evt.ProviderIntentID),
			zap.String("status", string(evt.Status)),
		)
		return payment.OutcomeStale, nil
	}
	if err != nil {
		return "", err
	}

	if intent.NeedsMaterialization() {
		if _, err := m.materializer.Materialize(ctx, intent.ID); err != nil {
			return "", fmt.Errorf("failed to materialize orders for %s: %w", intent.ID, err)
		}
	}

	if _, err := m.idempotency.MarkProcessed(ctx, evt.EventID, m.eventTTL); err != nil {
		m.logger.Warn("Failed to record processed event", zap.String("event_id", evt.EventID), zap.Error(err))
	}

	m.logger.Debug("Provider event consumed",
		zap.String("event_id", evt.EventID),
		zap.String("payment_intent_id", intent.ID.String()),
		zap.String("status", string(intent.Status)),
		zap.String("outcome", string(outcome)),
	)
	return outcome, nil
}

// applyAndSave applies the event to the stored intent, re-reading on a version conflict.
// Conflicts come from platform-side cancellation racing the webhook.
func (m *StateMachine) applyAndSave(ctx context.Context, evt payment.ProviderEvent) (*payment.PaymentIntent, payment.Outcome, error) {
	for attempt := 1; ; attempt++ {
		intent, err := m.intentRepo.FindByProviderIntentID(ctx, evt.ProviderIntentID)
		if err != nil {
			return nil, "", err
		}
		from := intent.Status
		outcome := intent.ApplyEvent(evt)
		if outcome != payment.OutcomeApplied && outcome != payment.OutcomeUnchanged {
			return intent, outcome, nil
		}

		err = m.intentRepo.SaveWithLock(ctx, intent)
		var conflict *shared.VersionConflictError
		if errors.As(err, &conflict) && attempt < maxSaveAttempts {
			continue
		}
		if err != nil {
			return nil, "", err
		}

		if outcome == payment.OutcomeApplied {
			m.metrics.ObservePaymentTransition(string(intent.Status))
			m.logger.Info("Payment status changed",
				zap.String("payment_intent_id", intent.ID.String()),
				zap.String("store_id", intent.StoreID.String()),
				zap.String("from", string(from)),
				zap.String("to", string(intent.Status)),
			)
		}
		if events := intent.GetDomainEvents(); len(events) > 0 {
			if err := m.publisher.Publish(ctx, events...); err != nil {
				m.logger.Warn("Failed to publish payment events", zap.Error(err))
			}
			intent.ClearDomainEvents()
		}
		return intent, outcome, nil
	}
}
