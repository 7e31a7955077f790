package subscription

import (
	"context"

	"github.com/google/uuid"

	"github.com/marketplace/backend/internal/domain/catalog"
	"github.com/marketplace/backend/internal/domain/vendor"
)

// OwnerScope runs a count-then-insert sequence for one owner inside a single transaction.
// Implementations serialize concurrent scopes for the same owner until the transaction ends.
type OwnerScope interface {
	ExecuteForOwner(ctx context.Context, ownerID uuid.UUID, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories are repositories bound to the current transaction
type TransactionalRepositories interface {
	StoreRepo() vendor.StoreRepository
	ProductRepo() catalog.ProductRepository
	SubscriptionRepo() vendor.SubscriptionRepository
}

// NoOpOwnerScope runs fn directly against the given repositories. Intended for tests.
type NoOpOwnerScope struct {
	storeRepo        vendor.StoreRepository
	productRepo      catalog.ProductRepository
	subscriptionRepo vendor.SubscriptionRepository
}

// NewNoOpOwnerScope creates a NoOpOwnerScope
func NewNoOpOwnerScope(storeRepo vendor.StoreRepository, productRepo catalog.ProductRepository, subscriptionRepo vendor.SubscriptionRepository) *NoOpOwnerScope {
	return &NoOpOwnerScope{
		storeRepo:        storeRepo,
		productRepo:      productRepo,
		subscriptionRepo: subscriptionRepo,
	}
}

// ExecuteForOwner runs the function without a transaction or database lock
func (s *NoOpOwnerScope) ExecuteForOwner(_ context.Context, _ uuid.UUID, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// StoreRepo returns the store repository
func (s *NoOpOwnerScope) StoreRepo() vendor.StoreRepository {
	return s.storeRepo
}

// ProductRepo returns the product repository
func (s *NoOpOwnerScope) ProductRepo() catalog.ProductRepository {
	return s.productRepo
}

// SubscriptionRepo returns the subscription repository
func (s *NoOpOwnerScope) SubscriptionRepo() vendor.SubscriptionRepository {
	return s.subscriptionRepo
}

var _ OwnerScope = (*NoOpOwnerScope)(nil)
var _ TransactionalRepositories = (*NoOpOwnerScope)(nil)
