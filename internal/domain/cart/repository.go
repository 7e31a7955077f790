package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CartRepository defines persistence for carts
type CartRepository interface {
	// FindByID finds a cart by ID with its items ordered by position
	FindByID(ctx context.Context, id uuid.UUID) (*Cart, error)

	// FindOpenByIdentity finds the single open cart for an identity key
	FindOpenByIdentity(ctx context.Context, identityKey string) (*Cart, error)

	// Create inserts a new cart. Returns shared.ErrAlreadyExists if the identity already has an open cart.
	Create(ctx context.Context, cart *Cart) error

	// SaveWithLock persists the cart and its items if the stored version still equals cart.Version,
	// then increments cart.Version. Returns a VersionConflictError otherwise.
	SaveWithLock(ctx context.Context, cart *Cart) error

	// MarkClosed closes an open cart and clears its checkout marker in one conditional write.
	// It returns false if the cart was already closed.
	MarkClosed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}
