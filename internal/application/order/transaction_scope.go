package order

import (
	"context"

	"github.com/marketplace/backend/internal/domain/cart"
	"github.com/marketplace/backend/internal/domain/catalog"
	"github.com/marketplace/backend/internal/domain/order"
	"github.com/marketplace/backend/internal/domain/payment"
)

// TransactionScope runs a materialization as one unit of work
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories are repositories bound to the current transaction
type TransactionalRepositories interface {
	OrderRepo() order.OrderRepository
	ProductRepo() catalog.ProductRepository
	PaymentIntentRepo() payment.PaymentIntentRepository
	CartRepo() cart.CartRepository
}

// NoOpTransactionScope runs fn directly against the given repositories. Intended for tests.
type NoOpTransactionScope struct {
	orderRepo   order.OrderRepository
	productRepo catalog.ProductRepository
	intentRepo  payment.PaymentIntentRepository
	cartRepo    cart.CartRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope
func NewNoOpTransactionScope(orderRepo order.OrderRepository, productRepo catalog.ProductRepository, intentRepo payment.PaymentIntentRepository, cartRepo cart.CartRepository) *NoOpTransactionScope {
	return &NoOpTransactionScope{orderRepo: orderRepo, productRepo: productRepo, intentRepo: intentRepo, cartRepo: cartRepo}
}

// Execute runs the function without a real transaction
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// OrderRepo returns the order repository
func (s *NoOpTransactionScope) OrderRepo() order.OrderRepository {
	return s.orderRepo
}

// ProductRepo returns the product repository
func (s *NoOpTransactionScope) ProductRepo() catalog.ProductRepository {
	return s.productRepo
}

// PaymentIntentRepo returns the payment intent repository
func (s *NoOpTransactionScope) PaymentIntentRepo() payment.PaymentIntentRepository {
	return s.intentRepo
}

// CartRepo returns the cart repository
func (s *NoOpTransactionScope) CartRepo() cart.CartRepository {
	return s.cartRepo
}

var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
