package payment

import (
	"context"

	"github.com/google/uuid"
)

// PaymentIntentRepository defines persistence for payment intent records
type PaymentIntentRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*PaymentIntent, error)
	FindByProviderIntentID(ctx context.Context, providerIntentID string) (*PaymentIntent, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*PaymentIntent, error)
	FindByCheckout(ctx context.Context, checkoutID uuid.UUID) ([]PaymentIntent, error)
	FindByCart(ctx context.Context, cartID uuid.UUID) ([]PaymentIntent, error)

	// Create inserts the record. Returns shared.ErrAlreadyExists on a duplicate idempotency key.
	Create(ctx context.Context, intent *PaymentIntent) error

	// SaveWithLock saves with optimistic locking (version check)
	SaveWithLock(ctx context.Context, intent *PaymentIntent) error
}
