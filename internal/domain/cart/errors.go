package cart

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/marketplace/backend/internal/domain/shared"
)

// ErrCartClosed is returned for any mutation of a closed cart
var ErrCartClosed = shared.NewDomainError("CART_CLOSED", "Cart is closed and can no longer be modified")

// CartLockedError is returned when a cart is edited while a checkout is in flight
type CartLockedError struct {
	CartID     uuid.UUID
	CheckoutID uuid.UUID
}

func (e *CartLockedError) Error() string {
	return fmt.Sprintf("cart %s is locked by checkout %s", e.CartID, e.CheckoutID)
}

// Unwrap exposes the error as a DomainError for transport mapping
func (e *CartLockedError) Unwrap() error {
	return shared.NewDomainError(shared.CodeCartLocked, "Checkout is in progress for this cart").
		WithDetails(map[string]any{"checkout_id": e.CheckoutID.String()})
}
