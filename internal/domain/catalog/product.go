package catalog

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/marketplace/backend/internal/domain/shared"
)

// Product is the engine's view of a catalog listing: price, stock and availability
type Product struct {
	shared.BaseAggregateRoot
	StoreID  uuid.UUID
	Name     string
	Price    decimal.Decimal
	Currency string
	Stock    int
	Active   bool
}

// NewProduct creates an active product
func NewProduct(storeID uuid.UUID, name string, price decimal.Decimal, currency string, stock int) (*Product, error) {
	name = strings.TrimSpace(name)
	if storeID == uuid.Nil {
		return nil, shared.NewValidationError("store_id", "is required")
	}
	if name == "" {
		return nil, shared.NewValidationError("name", "is required")
	}
	if price.IsNegative() {
		return nil, shared.NewValidationError("price", "cannot be negative")
	}
	if stock < 0 {
		return nil, shared.NewValidationError("stock", "cannot be negative")
	}
	if currency == "" {
		return nil, shared.NewValidationError("currency", "is required")
	}
	return &Product{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		StoreID:           storeID,
		Name:              name,
		Price:             price,
		Currency:          strings.ToUpper(currency),
		Stock:             stock,
		Active:            true,
	}, nil
}

// IsPurchasable reports whether the product can be bought right now
func (p *Product) IsPurchasable() bool {
	return p.Active && p.Stock > 0
}

// AvailableQuantity returns the stock that can still be added to a cart
func (p *Product) AvailableQuantity() int {
	if !p.Active || p.Stock < 0 {
		return 0
	}
	return p.Stock
}
