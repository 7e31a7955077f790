package cart

import (
	"context"

	"github.com/marketplace/backend/internal/domain/cart"
	"github.com/marketplace/backend/internal/domain/catalog"
)

// TransactionScope runs cart operations that touch more than one cart atomically (guest merge)
type TransactionScope interface {
	// Execute runs fn in a database transaction. An error from fn rolls back.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories are repositories bound to the current transaction
type TransactionalRepositories interface {
	CartRepo() cart.CartRepository
	ProductRepo() catalog.ProductRepository
}

// NoOpTransactionScope runs fn directly against the given repositories. Intended for tests.
type NoOpTransactionScope struct {
	cartRepo    cart.CartRepository
	productRepo catalog.ProductRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope
func NewNoOpTransactionScope(cartRepo cart.CartRepository, productRepo catalog.ProductRepository) *NoOpTransactionScope {
	return &NoOpTransactionScope{cartRepo: cartRepo, productRepo: productRepo}
}

// Execute runs the function without a real transaction
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// CartRepo returns the cart repository
func (s *NoOpTransactionScope) CartRepo() cart.CartRepository {
	return s.cartRepo
}

// ProductRepo returns the product repository
func (s *NoOpTransactionScope) ProductRepo() catalog.ProductRepository {
	return s.productRepo
}

var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
