package checkout

import (
	"context"

	"github.com/marketplace/backend/internal/domain/cart"
	"github.com/marketplace/backend/internal/domain/payment"
)

// TransactionScope commits the local writes of a checkout abort together
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories are repositories bound to the current transaction
type TransactionalRepositories interface {
	CartRepo() cart.CartRepository
	PaymentIntentRepo() payment.PaymentIntentRepository
}

// NoOpTransactionScope runs fn directly against the given repositories. Intended for tests.
type NoOpTransactionScope struct {
	cartRepo   cart.CartRepository
	intentRepo payment.PaymentIntentRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope
func NewNoOpTransactionScope(cartRepo cart.CartRepository, intentRepo payment.PaymentIntentRepository) *NoOpTransactionScope {
	return &NoOpTransactionScope{cartRepo: cartRepo, intentRepo: intentRepo}
}

// Execute runs the function without a real transaction
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// CartRepo returns the cart repository
func (s *NoOpTransactionScope) CartRepo() cart.CartRepository {
	return s.cartRepo
}

// PaymentIntentRepo returns the payment intent repository
func (s *NoOpTransactionScope) PaymentIntentRepo() payment.PaymentIntentRepository {
	return s.intentRepo
}

var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
