package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/domain/vendor"
	"github.com/marketplace/backend/internal/infrastructure/persistence/models"
)

// GormStoreRepository implements StoreRepository using GORM
type GormStoreRepository struct {
	db *gorm.DB
}

// NewGormStoreRepository creates a new GormStoreRepository
func NewGormStoreRepository(db *gorm.DB) *GormStoreRepository {
	return &GormStoreRepository{db: db}
}

// FindByID finds a store by ID
func (r *GormStoreRepository) FindByID(ctx context.Context, id uuid.UUID) (*vendor.Store, error) {
	var model models.StoreModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByOwner returns the owner's stores, oldest first
func (r *GormStoreRepository) FindByOwner(ctx context.Context, ownerID uuid.UUID) ([]vendor.Store, error) {
	var rows []models.StoreModel
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	stores := make([]vendor.Store, len(rows))
	for i := range rows {
		stores[i] = *rows[i].ToDomain()
	}
	return stores, nil
}

// CountByOwner counts the owner's stores, active or not
func (r *GormStoreRepository) CountByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.StoreModel{}).Where("owner_id = ?", ownerID).Count(&count).Error
	return count, err
}

// Create inserts a store
func (r *GormStoreRepository) Create(ctx context.Context, store *vendor.Store) error {
	model := &models.StoreModel{}
	model.FromDomain(store)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// SaveWithLock saves with optimistic locking (version check)
func (r *GormStoreRepository) SaveWithLock(ctx context.Context, store *vendor.Store) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.StoreModel{}).
		Where("id = ? AND version = ?", store.ID, store.Version).
		Updates(map[string]any{
			"name":                  store.Name,
			"payment_account_id":    store.PaymentAccountID,
			"active":                store.Active,
			"plan_tier":             store.PlanTier.String(),
			"ship_from_country":     store.ShipFrom.Country,
			"ship_from_postal_code": store.ShipFrom.PostalCode,
			"deactivated_at":        store.DeactivatedAt,
			"version":               store.Version + 1,
			"updated_at":            now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		current, err := r.FindByID(ctx, store.ID)
		if err != nil {
			return err
		}
		return shared.NewVersionConflictError(vendor.AggregateTypeStore, store.ID.String(), store.Version, current.Version)
	}
	store.IncrementVersion()
	store.UpdatedAt = now
	return nil
}

var _ vendor.StoreRepository = (*GormStoreRepository)(nil)

// GormSubscriptionRepository implements SubscriptionRepository using GORM
type GormSubscriptionRepository struct {
	db *gorm.DB
}

// NewGormSubscriptionRepository creates a new GormSubscriptionRepository
func NewGormSubscriptionRepository(db *gorm.DB) *GormSubscriptionRepository {
	return &GormSubscriptionRepository{db: db}
}

// FindByOwner returns the owner's subscription
func (r *GormSubscriptionRepository) FindByOwner(ctx context.Context, ownerID uuid.UUID) (*vendor.Subscription, error) {
	return r.findOne(ctx, "owner_id = ?", ownerID)
}

// FindByProviderSubscriptionID returns the subscription with the provider's id
func (r *GormSubscriptionRepository) FindByProviderSubscriptionID(ctx context.Context, providerSubscriptionID string) (*vendor.Subscription, error) {
	if providerSubscriptionID == "" {
		return nil, shared.ErrNotFound
	}
	return r.findOne(ctx, "provider_subscription_id = ?", providerSubscriptionID)
}

func (r *GormSubscriptionRepository) findOne(ctx context.Context, query string, arg any) (*vendor.Subscription, error) {
	var model models.SubscriptionModel
	if err := r.db.WithContext(ctx).Where(query, arg).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Upsert creates or replaces the subscription keyed by owner
func (r *GormSubscriptionRepository) Upsert(ctx context.Context, sub *vendor.Subscription) error {
	sub.UpdatedAt = time.Now()
	model := &models.SubscriptionModel{}
	model.FromDomain(sub)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "owner_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"plan_tier",
			"status",
			"provider_customer_id",
			"provider_subscription_id",
			"current_period_end",
			"updated_at",
		}),
	}).Create(model).Error
}

var _ vendor.SubscriptionRepository = (*GormSubscriptionRepository)(nil)
