package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketplace/backend/internal/domain/payment"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/infrastructure/persistence/models"
)

// GormPaymentIntentRepository implements PaymentIntentRepository using GORM
type GormPaymentIntentRepository struct {
	db *gorm.DB
}

// NewGormPaymentIntentRepository creates a new GormPaymentIntentRepository
func NewGormPaymentIntentRepository(db *gorm.DB) *GormPaymentIntentRepository {
	return &GormPaymentIntentRepository{db: db}
}

func (r *GormPaymentIntentRepository) findOne(ctx context.Context, query string, arg any) (*payment.PaymentIntent, error) {
	var model models.PaymentIntentModel
	if err := r.db.WithContext(ctx).Where(query, arg).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

func (r *GormPaymentIntentRepository) list(ctx context.Context, query string, arg any) ([]payment.PaymentIntent, error) {
	var rows []models.PaymentIntentModel
	if err := r.db.WithContext(ctx).Where(query, arg).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	intents := make([]payment.PaymentIntent, len(rows))
	for i := range rows {
		intents[i] = *rows[i].ToDomain()
	}
	return intents, nil
}

// FindByID finds an intent record by ID
func (r *GormPaymentIntentRepository) FindByID(ctx context.Context, id uuid.UUID) (*payment.PaymentIntent, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindByProviderIntentID finds the record for a provider intent
func (r *GormPaymentIntentRepository) FindByProviderIntentID(ctx context.Context, providerIntentID string) (*payment.PaymentIntent, error) {
	return r.findOne(ctx, "provider_intent_id = ?", providerIntentID)
}

// FindByIdempotencyKey finds the record created under an idempotency key
func (r *GormPaymentIntentRepository) FindByIdempotencyKey(ctx context.Context, key string) (*payment.PaymentIntent, error) {
	return r.findOne(ctx, "idempotency_key = ?", key)
}

// FindByCheckout lists the records of one checkout
func (r *GormPaymentIntentRepository) FindByCheckout(ctx context.Context, checkoutID uuid.UUID) ([]payment.PaymentIntent, error) {
	return r.list(ctx, "checkout_id = ?", checkoutID)
}

// FindByCart lists every record created for a cart across checkout attempts
func (r *GormPaymentIntentRepository) FindByCart(ctx context.Context, cartID uuid.UUID) ([]payment.PaymentIntent, error) {
	return r.list(ctx, "cart_id = ?", cartID)
}

// Create inserts the record
func (r *GormPaymentIntentRepository) Create(ctx context.Context, intent *payment.PaymentIntent) error {
	model := &models.PaymentIntentModel{}
	model.FromDomain(intent)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// SaveWithLock saves the mutable fields with optimistic locking (version check)
func (r *GormPaymentIntentRepository) SaveWithLock(ctx context.Context, intent *payment.PaymentIntent) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.PaymentIntentModel{}).
		Where("id = ? AND version = ?", intent.ID, intent.Version).
		Updates(map[string]any{
			"provider_intent_id":  intent.ProviderIntentID,
			"status":              string(intent.Status),
			"client_secret":       intent.ClientSecret,
			"last_event_id":       intent.LastEventID,
			"last_event_sequence": intent.LastEventSequence,
			"materialized_at":     intent.MaterializedAt,
			"version":             intent.Version + 1,
			"updated_at":          now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		current, err := r.FindByID(ctx, intent.ID)
		if err != nil {
			return err
		}
		return shared.NewVersionConflictError(payment.AggregateTypePaymentIntent, intent.ID.String(), intent.Version, current.Version)
	}
	intent.IncrementVersion()
	intent.UpdatedAt = now
	return nil
}

var _ payment.PaymentIntentRepository = (*GormPaymentIntentRepository)(nil)
