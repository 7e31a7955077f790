package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/marketplace/backend/internal/domain/order"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/infrastructure/persistence/models"
)

// GormOrderRepository implements OrderRepository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// FindByID finds an order by ID
func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	var model models.OrderModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByPaymentIntentAndStore finds the order for one vendor of one payment
func (r *GormOrderRepository) FindByPaymentIntentAndStore(ctx context.Context, paymentIntentID, storeID uuid.UUID) (*order.Order, error) {
	var model models.OrderModel
	err := r.db.WithContext(ctx).
		Where("payment_intent_id = ? AND store_id = ?", paymentIntentID, storeID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByCart lists the orders that came out of a cart, oldest first
func (r *GormOrderRepository) FindByCart(ctx context.Context, cartID uuid.UUID) ([]order.Order, error) {
	var rows []models.OrderModel
	if err := r.db.WithContext(ctx).Where("cart_id = ?", cartID).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toOrders(rows), nil
}

// FindByStore lists a store's orders with pagination
func (r *GormOrderRepository) FindByStore(ctx context.Context, storeID uuid.UUID, filter shared.Filter) ([]order.Order, int64, error) {
	filter = filter.Normalize()
	byStore := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&models.OrderModel{}).Where("store_id = ?", storeID)
	}

	var total int64
	if err := byStore().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	sortField := ValidateSortField(filter.OrderBy, OrderSortFields, "created_at")
	sortOrder := ValidateSortOrder(filter.OrderDir)

	var rows []models.OrderModel
	err := byStore().Order(sortField + " " + sortOrder).
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return toOrders(rows), total, nil
}

// CreateIfAbsent inserts the order unless one exists for (payment intent, store).
// A concurrent insert of the same pair waits on the unique index and then does nothing.
func (r *GormOrderRepository) CreateIfAbsent(ctx context.Context, o *order.Order) (*order.Order, bool, error) {
	model := &models.OrderModel{}
	model.FromDomain(o)
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "payment_intent_id"}, {Name: "store_id"}},
		DoNothing: true,
	}).Create(model)
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected > 0 {
		return o, true, nil
	}
	existing, err := r.FindByPaymentIntentAndStore(ctx, o.PaymentIntentID, o.StoreID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func toOrders(rows []models.OrderModel) []order.Order {
	orders := make([]order.Order, len(rows))
	for i := range rows {
		orders[i] = *rows[i].ToDomain()
	}
	return orders
}

var _ order.OrderRepository = (*GormOrderRepository)(nil)
