package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/marketplace/backend/internal/domain/cart"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/infrastructure/persistence/models"
)

// GormCartRepository implements CartRepository using GORM
type GormCartRepository struct {
	db *gorm.DB
}

// NewGormCartRepository creates a new GormCartRepository
func NewGormCartRepository(db *gorm.DB) *GormCartRepository {
	return &GormCartRepository{db: db}
}

func orderedItems(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

// FindByID finds a cart by ID with its items ordered by position
func (r *GormCartRepository) FindByID(ctx context.Context, id uuid.UUID) (*cart.Cart, error) {
	var model models.CartModel
	if err := r.db.WithContext(ctx).Preload("Items", orderedItems).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindOpenByIdentity finds the single open cart for an identity key
func (r *GormCartRepository) FindOpenByIdentity(ctx context.Context, identityKey string) (*cart.Cart, error) {
	var model models.CartModel
	err := r.db.WithContext(ctx).
		Preload("Items", orderedItems).
		Where("identity_key = ? AND closed = ?", identityKey, false).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Create inserts a new cart with its items
func (r *GormCartRepository) Create(ctx context.Context, c *cart.Cart) error {
	model := &models.CartModel{}
	model.FromDomain(c)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// SaveWithLock updates the cart row if its version is unchanged and replaces the item rows
func (r *GormCartRepository) SaveWithLock(ctx context.Context, c *cart.Cart) error {
	mergedFrom, err := json.Marshal(c.MergedFrom)
	if err != nil {
		return err
	}
	now := time.Now()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.CartModel{}).
			Where("id = ? AND version = ?", c.ID, c.Version).
			Updates(map[string]any{
				"identity_key":        c.IdentityKey,
				"user_id":             c.UserID,
				"guest_token":         c.GuestToken,
				"currency":            c.Currency,
				"closed":              c.Closed,
				"closed_at":           c.ClosedAt,
				"checkout_id":         c.CheckoutID,
				"checkout_attempt":    c.CheckoutAttempt,
				"checkout_started_at": c.CheckoutStartedAt,
				"merged_from":         string(mergedFrom),
				"version":             c.Version + 1,
				"updated_at":          now,
			})
		if result.Error != nil {
			if isUniqueViolation(result.Error) {
				return shared.ErrAlreadyExists
			}
			return result.Error
		}
		if result.RowsAffected == 0 {
			return r.versionConflict(tx, c)
		}

		if err := tx.Where("cart_id = ?", c.ID).Delete(&models.CartItemModel{}).Error; err != nil {
			return err
		}
		items := models.CartItemModelsFromDomain(c)
		if len(items) > 0 {
			if err := tx.Omit(clause.Associations).Create(&items).Error; err != nil {
				return err
			}
		}
		c.IncrementVersion()
		c.UpdatedAt = now
		return nil
	})
}

// MarkClosed closes an open cart and clears its checkout marker in one conditional write
func (r *GormCartRepository) MarkClosed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.CartModel{}).
		Where("id = ? AND closed = ?", id, false).
		Updates(map[string]any{
			"closed":              true,
			"closed_at":           at,
			"checkout_id":         nil,
			"checkout_started_at": nil,
			"version":             gorm.Expr("version + 1"),
			"updated_at":          at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		return true, nil
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.CartModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	if count == 0 {
		return false, shared.ErrNotFound
	}
	return false, nil
}

func (r *GormCartRepository) versionConflict(tx *gorm.DB, c *cart.Cart) error {
	var current models.CartModel
	if err := tx.Select("version").First(&current, "id = ?", c.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return shared.ErrNotFound
		}
		return err
	}
	return shared.NewVersionConflictError(cart.AggregateTypeCart, c.ID.String(), c.Version, current.Version)
}

var _ cart.CartRepository = (*GormCartRepository)(nil)
