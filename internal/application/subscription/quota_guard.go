package subscription

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketplace/backend/internal/domain/catalog"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/domain/vendor"
	"github.com/marketplace/backend/internal/infrastructure/telemetry"
)

// QuotaGuard enforces plan limits on store and product creation and decides whether a store
// may receive funds at checkout. Nothing it reads is cached.
//
// Limits are checked against the owner's current tier at creation time only. Downgrades never
// remove existing stores or products.
type QuotaGuard struct {
	storeRepo        vendor.StoreRepository
	productRepo      catalog.ProductRepository
	subscriptionRepo vendor.SubscriptionRepository
	plans            *vendor.PlanCatalog
	metrics          *telemetry.CheckoutMetrics
	logger           *zap.Logger
}

// NewQuotaGuard creates a new QuotaGuard
func NewQuotaGuard(
	storeRepo vendor.StoreRepository,
	productRepo catalog.ProductRepository,
	subscriptionRepo vendor.SubscriptionRepository,
	plans *vendor.PlanCatalog,
	metrics *telemetry.CheckoutMetrics,
	logger *zap.Logger,
) *QuotaGuard {
	return &QuotaGuard{
		storeRepo:        storeRepo,
		productRepo:      productRepo,
		subscriptionRepo: subscriptionRepo,
		plans:            plans,
		metrics:          metrics,
		logger:           logger,
	}
}

// WithRepositories returns a guard that reads through the given transactional repositories
func (g *QuotaGuard) WithRepositories(repos TransactionalRepositories) *QuotaGuard {
	cp := *g
	cp.storeRepo = repos.StoreRepo()
	cp.productRepo = repos.ProductRepo()
	cp.subscriptionRepo = repos.SubscriptionRepo()
	return &cp
}

// Plans returns the configured plan catalog
func (g *QuotaGuard) Plans() *vendor.PlanCatalog {
	return g.plans
}

// PlanFor returns the plan currently limiting the owner
func (g *QuotaGuard) PlanFor(ctx context.Context, ownerID uuid.UUID) (vendor.SubscriptionPlan, error) {
	sub, err := g.subscriptionRepo.FindByOwner(ctx, ownerID)
	if errors.Is(err, shared.ErrNotFound) {
		sub = nil
	} else if err != nil {
		return vendor.SubscriptionPlan{}, err
	}
	return g.plans.Get(sub.EffectiveTier(g.plans.DefaultTier())), nil
}

// EnsureCanCreateStore returns a QuotaExceededError if the owner is at the plan's store limit
func (g *QuotaGuard) EnsureCanCreateStore(ctx context.Context, ownerID uuid.UUID) error {
	plan, err := g.PlanFor(ctx, ownerID)
	if err != nil {
		return err
	}
	count, err := g.storeRepo.CountByOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	if !plan.AllowsStores(count) {
		g.metrics.ObserveQuotaRejection(vendor.ResourceStores)
		g.logger.Info("Store quota exceeded",
			zap.String("owner_id", ownerID.String()),
			zap.String("tier", plan.Tier.String()),
			zap.Int64("current", count),
			zap.Int("limit", plan.MaxStores),
		)
		return &vendor.QuotaExceededError{
			Resource: vendor.ResourceStores,
			Tier:     plan.Tier,
			Limit:    plan.MaxStores,
			Current:  count,
		}
	}
	return nil
}

// EnsureCanCreateProduct returns a QuotaExceededError if the store is at the plan's product limit.
// The limit comes from the store owner's tier.
func (g *QuotaGuard) EnsureCanCreateProduct(ctx context.Context, storeID uuid.UUID) error {
	store, err := g.storeRepo.FindByID(ctx, storeID)
	if err != nil {
		return err
	}
	plan, err := g.PlanFor(ctx, store.OwnerID)
	if err != nil {
		return err
	}
	count, err := g.productRepo.CountByStore(ctx, storeID)
	if err != nil {
		return err
	}
	if !plan.AllowsProducts(count) {
		g.metrics.ObserveQuotaRejection(vendor.ResourceProducts)
		g.logger.Info("Product quota exceeded",
			zap.String("store_id", storeID.String()),
			zap.String("tier", plan.Tier.String()),
			zap.Int64("current", count),
			zap.Int("limit", plan.MaxProductsPerStore),
		)
		return &vendor.QuotaExceededError{
			Resource: vendor.ResourceProducts,
			Tier:     plan.Tier,
			Limit:    plan.MaxProductsPerStore,
			Current:  count,
		}
	}
	return nil
}

// EnsureVendorEligible returns the store if it can receive funds, or a VendorIneligibleError
func (g *QuotaGuard) EnsureVendorEligible(ctx context.Context, storeID uuid.UUID) (*vendor.Store, error) {
	store, err := g.storeRepo.FindByID(ctx, storeID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, &vendor.VendorIneligibleError{StoreID: storeID, Reason: vendor.ReasonStoreNotFound}
		}
		return nil, err
	}
	if !store.Active {
		return nil, &vendor.VendorIneligibleError{StoreID: storeID, Reason: vendor.ReasonStoreInactive}
	}
	if store.PaymentAccountID == "" {
		return nil, &vendor.VendorIneligibleError{StoreID: storeID, Reason: vendor.ReasonNoPaymentAccount}
	}
	return store, nil
}
