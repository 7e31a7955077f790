package subscription

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketplace/backend/internal/domain/catalog"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/domain/vendor"
	"github.com/marketplace/backend/internal/infrastructure/telemetry"
)

// StoreService administers stores and their products. Creations are quota-guarded and
// serialized per owner: an in-process keyed mutex covers this replica, the OwnerScope's
// database lock covers the others.
type StoreService struct {
	storeRepo   vendor.StoreRepository
	productRepo catalog.ProductRepository
	guard       *QuotaGuard
	scope       OwnerScope
	locks       *KeyedMutex
	logger      *zap.Logger
}

// NewStoreService creates a new StoreService
func NewStoreService(storeRepo vendor.StoreRepository, productRepo catalog.ProductRepository, guard *QuotaGuard, scope OwnerScope, logger *zap.Logger) *StoreService {
	return &StoreService{
		storeRepo:   storeRepo,
		productRepo: productRepo,
		guard:       guard,
		scope:       scope,
		locks:       NewKeyedMutex(),
		logger:      logger,
	}
}

// CreateStore opens a store for the owner if the owner's plan allows another one
func (s *StoreService) CreateStore(ctx context.Context, ownerID uuid.UUID, input CreateStoreInput) (*vendor.Store, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "store", "create_store", "owner.id", ownerID.String())
	defer span.End()

	unlock := s.locks.Lock(ownerID.String())
	defer unlock()

	var created *vendor.Store
	err := s.scope.ExecuteForOwner(ctx, ownerID, func(repos TransactionalRepositories) error {
		guard := s.guard.WithRepositories(repos)
		if err := guard.EnsureCanCreateStore(ctx, ownerID); err != nil {
			return err
		}
		plan, err := guard.PlanFor(ctx, ownerID)
		if err != nil {
			return err
		}
		store, err := vendor.NewStore(ownerID, input.Name, input.PaymentAccountID, plan.Tier)
		if err != nil {
			return err
		}
		store.ShipFrom = vendor.Origin{
			Country:    strings.ToUpper(strings.TrimSpace(input.ShipFromCountry)),
			PostalCode: strings.TrimSpace(input.ShipFromPostal),
		}
		if err := repos.StoreRepo().Create(ctx, store); err != nil {
			return err
		}
		created = store
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Store created",
		zap.String("store_id", created.ID.String()),
		zap.String("owner_id", ownerID.String()),
		zap.String("tier", created.PlanTier.String()),
	)
	return created, nil
}

// CreateProduct lists a product in the store if the owner's plan allows another one
func (s *StoreService) CreateProduct(ctx context.Context, ownerID, storeID uuid.UUID, input CreateProductInput) (*catalog.Product, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "store", "create_product", telemetry.SpanAttrStoreID, storeID.String())
	defer span.End()

	if _, err := s.ownedStore(ctx, ownerID, storeID); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	unlock := s.locks.Lock(ownerID.String())
	defer unlock()

	var created *catalog.Product
	err := s.scope.ExecuteForOwner(ctx, ownerID, func(repos TransactionalRepositories) error {
		if err := s.guard.WithRepositories(repos).EnsureCanCreateProduct(ctx, storeID); err != nil {
			return err
		}
		product, err := catalog.NewProduct(storeID, input.Name, input.Price, input.Currency, input.Stock)
		if err != nil {
			return err
		}
		if err := repos.ProductRepo().Create(ctx, product); err != nil {
			return err
		}
		created = product
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Product created",
		zap.String("product_id", created.ID.String()),
		zap.String("store_id", storeID.String()),
	)
	return created, nil
}

// DeactivateStore stops a store from receiving new checkouts. Existing orders are unaffected.
func (s *StoreService) DeactivateStore(ctx context.Context, ownerID, storeID uuid.UUID, expectedVersion int) (*vendor.Store, error) {
	return s.setActive(ctx, ownerID, storeID, expectedVersion, false)
}

// ActivateStore re-enables a deactivated store
func (s *StoreService) ActivateStore(ctx context.Context, ownerID, storeID uuid.UUID, expectedVersion int) (*vendor.Store, error) {
	return s.setActive(ctx, ownerID, storeID, expectedVersion, true)
}

// GetStore returns a store by id
func (s *StoreService) GetStore(ctx context.Context, storeID uuid.UUID) (*vendor.Store, error) {
	return s.storeRepo.FindByID(ctx, storeID)
}

// ListStores returns the owner's stores
func (s *StoreService) ListStores(ctx context.Context, ownerID uuid.UUID) ([]vendor.Store, error) {
	return s.storeRepo.FindByOwner(ctx, ownerID)
}

// ListProducts returns the store's products
func (s *StoreService) ListProducts(ctx context.Context, storeID uuid.UUID) ([]catalog.Product, error) {
	return s.productRepo.FindByStore(ctx, storeID)
}

func (s *StoreService) setActive(ctx context.Context, ownerID, storeID uuid.UUID, expectedVersion int, active bool) (*vendor.Store, error) {
	store, err := s.ownedStore(ctx, ownerID, storeID)
	if err != nil {
		return nil, err
	}
	if store.Version != expectedVersion {
		return nil, shared.NewVersionConflictError(vendor.AggregateTypeStore, storeID.String(), expectedVersion, store.Version)
	}
	if active {
		store.Activate()
	} else {
		store.Deactivate()
	}
	if err := s.storeRepo.SaveWithLock(ctx, store); err != nil {
		return nil, err
	}
	s.logger.Info("Store status changed", zap.String("store_id", storeID.String()), zap.Bool("active", active))
	return store, nil
}

func (s *StoreService) ownedStore(ctx context.Context, ownerID, storeID uuid.UUID) (*vendor.Store, error) {
	store, err := s.storeRepo.FindByID(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if store.OwnerID != ownerID {
		return nil, shared.ErrForbidden
	}
	return store, nil
}
