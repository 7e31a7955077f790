package catalog

import (
	"context"

	"github.com/google/uuid"
)

// ProductRepository defines persistence for products
type ProductRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Product, error)

	// FindByIDs returns the products keyed by id. Missing ids are absent from the map.
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Product, error)

	FindByStore(ctx context.Context, storeID uuid.UUID) ([]Product, error)

	CountByStore(ctx context.Context, storeID uuid.UUID) (int64, error)

	Create(ctx context.Context, product *Product) error

	// DecrementStock reduces stock by qty, never below zero
	DecrementStock(ctx context.Context, id uuid.UUID, qty int) error
}
