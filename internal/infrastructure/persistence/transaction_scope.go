package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	appcart "github.com/marketplace/backend/internal/application/cart"
	appcheckout "github.com/marketplace/backend/internal/application/checkout"
	apporder "github.com/marketplace/backend/internal/application/order"
	appsubscription "github.com/marketplace/backend/internal/application/subscription"
	"github.com/marketplace/backend/internal/domain/cart"
	"github.com/marketplace/backend/internal/domain/catalog"
	"github.com/marketplace/backend/internal/domain/order"
	"github.com/marketplace/backend/internal/domain/payment"
	"github.com/marketplace/backend/internal/domain/vendor"
)

// txRepositories hands out repositories bound to one transaction
type txRepositories struct {
	tx *gorm.DB
}

func (r *txRepositories) CartRepo() cart.CartRepository {
	return NewGormCartRepository(r.tx)
}

func (r *txRepositories) ProductRepo() catalog.ProductRepository {
	return NewGormProductRepository(r.tx)
}

func (r *txRepositories) PaymentIntentRepo() payment.PaymentIntentRepository {
	return NewGormPaymentIntentRepository(r.tx)
}

func (r *txRepositories) OrderRepo() order.OrderRepository {
	return NewGormOrderRepository(r.tx)
}

func (r *txRepositories) StoreRepo() vendor.StoreRepository {
	return NewGormStoreRepository(r.tx)
}

func (r *txRepositories) SubscriptionRepo() vendor.SubscriptionRepository {
	return NewGormSubscriptionRepository(r.tx)
}

// GormTransactionScope runs a function inside one database transaction.
// Execute is provided per application package through the adapters below.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

func (s *GormTransactionScope) run(ctx context.Context, fn func(repos *txRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&txRepositories{tx: tx})
	})
}

// CartScope returns the scope used for guest cart merges
func (s *GormTransactionScope) CartScope() appcart.TransactionScope {
	return cartScope{s}
}

// CheckoutScope returns the scope used for checkout aborts
func (s *GormTransactionScope) CheckoutScope() appcheckout.TransactionScope {
	return checkoutScope{s}
}

// OrderScope returns the scope used for order materialization
func (s *GormTransactionScope) OrderScope() apporder.TransactionScope {
	return orderScope{s}
}

// OwnerScope returns the scope that serializes quota-guarded creations per owner
func (s *GormTransactionScope) OwnerScope() appsubscription.OwnerScope {
	return ownerScope{s}
}

type cartScope struct{ s *GormTransactionScope }

func (c cartScope) Execute(ctx context.Context, fn func(repos appcart.TransactionalRepositories) error) error {
	return c.s.run(ctx, func(repos *txRepositories) error { return fn(repos) })
}

type checkoutScope struct{ s *GormTransactionScope }

func (c checkoutScope) Execute(ctx context.Context, fn func(repos appcheckout.TransactionalRepositories) error) error {
	return c.s.run(ctx, func(repos *txRepositories) error { return fn(repos) })
}

type orderScope struct{ s *GormTransactionScope }

func (o orderScope) Execute(ctx context.Context, fn func(repos apporder.TransactionalRepositories) error) error {
	return o.s.run(ctx, func(repos *txRepositories) error { return fn(repos) })
}

type ownerScope struct{ s *GormTransactionScope }

// ExecuteForOwner takes a transaction-scoped advisory lock on the owner before running fn,
// so count-then-insert quota checks from different replicas cannot interleave.
// Databases without advisory locks fall back to the transaction alone.
func (o ownerScope) ExecuteForOwner(ctx context.Context, ownerID uuid.UUID, fn func(repos appsubscription.TransactionalRepositories) error) error {
	return o.s.run(ctx, func(repos *txRepositories) error {
		if repos.tx.Dialector.Name() == "postgres" {
			if err := repos.tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", "owner:"+ownerID.String()).Error; err != nil {
				return err
			}
		}
		return fn(repos)
	})
}

var (
	_ appcart.TransactionalRepositories         = (*txRepositories)(nil)
	_ appcheckout.TransactionalRepositories     = (*txRepositories)(nil)
	_ apporder.TransactionalRepositories        = (*txRepositories)(nil)
	_ appsubscription.TransactionalRepositories = (*txRepositories)(nil)
)
