package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketplace/backend/internal/domain/order"
	"github.com/marketplace/backend/internal/domain/payment"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/infrastructure/telemetry"
)

// Materializer turns a succeeded payment intent into its vendor order.
//
// The order row is keyed by (payment intent, store), so concurrent or repeated calls converge on
// one order. Side effects of the first creation (stock decrement, cart close, intent mark) commit
// in the same transaction as the insert and are skipped when the row already existed.
type Materializer struct {
	intentRepo payment.PaymentIntentRepository
	scope      TransactionScope
	publisher  shared.EventPublisher
	metrics    *telemetry.CheckoutMetrics
	logger     *zap.Logger
}

// NewMaterializer creates a new Materializer
func NewMaterializer(intentRepo payment.PaymentIntentRepository, scope TransactionScope, publisher shared.EventPublisher, metrics *telemetry.CheckoutMetrics, logger *zap.Logger) *Materializer {
	return &Materializer{
		intentRepo: intentRepo,
		scope:      scope,
		publisher:  publisher,
		metrics:    metrics,
		logger:     logger,
	}
}

// Materialize creates the order for the intent if it does not exist yet and returns it
func (m *Materializer) Materialize(ctx context.Context, paymentIntentID uuid.UUID) ([]order.Order, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "order", "materialize", telemetry.SpanAttrPaymentIntentID, paymentIntentID.String())
	defer span.End()

	var (
		stored  *order.Order
		created bool
		events  []shared.DomainEvent
	)
	err := m.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		intent, err := repos.PaymentIntentRepo().FindByID(ctx, paymentIntentID)
		if err != nil {
			return err
		}
		candidate, err := order.FromPaymentIntent(intent)
		if err != nil {
			return err
		}

		stored, created, err = repos.OrderRepo().CreateIfAbsent(ctx, candidate)
		if err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}
		if !created {
			return nil
		}

		for _, item := range candidate.Items {
			if err := repos.ProductRepo().DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
				return fmt.Errorf("failed to decrement stock for %s: %w", item.ProductID, err)
			}
		}
		if err := m.markMaterialized(ctx, repos, intent); err != nil {
			return err
		}
		if _, err := repos.CartRepo().MarkClosed(ctx, intent.CartID, time.Now()); err != nil {
			return fmt.Errorf("failed to close cart: %w", err)
		}
		events = candidate.GetDomainEvents()
		candidate.ClearDomainEvents()
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if created {
		m.metrics.ObserveOrderMaterialized()
		if err := m.publisher.Publish(ctx, events...); err != nil {
			m.logger.Warn("Failed to publish order materialized event", zap.String("order_id", stored.ID.String()), zap.Error(err))
			m.metrics.ObservePublishFailure(order.EventTypeOrderMaterialized)
		}
		m.logger.Info("Order materialized",
			zap.String("order_id", stored.ID.String()),
			zap.String("store_id", stored.StoreID.String()),
			zap.String("cart_id", stored.CartID.String()),
			zap.String("payment_intent_id", paymentIntentID.String()),
			zap.String("total", stored.Total.String()),
		)
	}
	return []order.Order{*stored}, nil
}

func (m *Materializer) markMaterialized(ctx context.Context, repos TransactionalRepositories, intent *payment.PaymentIntent) error {
	intent.MarkMaterialized(time.Now())
	if err := repos.PaymentIntentRepo().SaveWithLock(ctx, intent); err != nil {
		return fmt.Errorf("failed to mark payment intent materialized: %w", err)
	}
	return nil
}
