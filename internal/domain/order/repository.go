package order

import (
	"context"

	"github.com/google/uuid"

	"github.com/marketplace/backend/internal/domain/shared"
)

// OrderRepository defines persistence for orders
type OrderRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)
	FindByPaymentIntentAndStore(ctx context.Context, paymentIntentID, storeID uuid.UUID) (*Order, error)
	FindByCart(ctx context.Context, cartID uuid.UUID) ([]Order, error)
	FindByStore(ctx context.Context, storeID uuid.UUID, filter shared.Filter) ([]Order, int64, error)

	// CreateIfAbsent inserts the order unless one exists for (payment intent, store).
	// It returns the stored order and whether this call created it.
	CreateIfAbsent(ctx context.Context, order *Order) (*Order, bool, error)
}
