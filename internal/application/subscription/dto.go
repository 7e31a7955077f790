package subscription

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/marketplace/backend/internal/domain/catalog"
	"github.com/marketplace/backend/internal/domain/vendor"
)

// CreateStoreInput is the request to open a store
type CreateStoreInput struct {
	Name             string
	PaymentAccountID string
	ShipFromCountry  string
	ShipFromPostal   string
}

// CreateProductInput is the request to list a product in a store
type CreateProductInput struct {
	Name     string
	Price    decimal.Decimal
	Currency string
	Stock    int
}

// StoreResponse is a store as returned to clients
type StoreResponse struct {
	ID               uuid.UUID `json:"id"`
	OwnerID          uuid.UUID `json:"owner_id"`
	Name             string    `json:"name"`
	PaymentAccountID string    `json:"payment_account_id,omitempty"`
	Active           bool      `json:"active"`
	PlanTier         string    `json:"plan_tier"`
	ShipFromCountry  string    `json:"ship_from_country,omitempty"`
	ShipFromPostal   string    `json:"ship_from_postal_code,omitempty"`
	Version          int       `json:"version"`
	CreatedAt        time.Time `json:"created_at"`
}

// ToStoreResponse converts a domain store to a response
func ToStoreResponse(s *vendor.Store) StoreResponse {
	return StoreResponse{
		ID:               s.ID,
		OwnerID:          s.OwnerID,
		Name:             s.Name,
		PaymentAccountID: s.PaymentAccountID,
		Active:           s.Active,
		PlanTier:         s.PlanTier.String(),
		ShipFromCountry:  s.ShipFrom.Country,
		ShipFromPostal:   s.ShipFrom.PostalCode,
		Version:          s.Version,
		CreatedAt:        s.CreatedAt,
	}
}

// ProductResponse is a product as returned to clients
type ProductResponse struct {
	ID        uuid.UUID       `json:"id"`
	StoreID   uuid.UUID       `json:"store_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	Stock     int             `json:"stock"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
}

// ToProductResponse converts a domain product to a response
func ToProductResponse(p *catalog.Product) ProductResponse {
	return ProductResponse{
		ID:        p.ID,
		StoreID:   p.StoreID,
		Name:      p.Name,
		Price:     p.Price,
		Currency:  p.Currency,
		Stock:     p.Stock,
		Active:    p.Active,
		CreatedAt: p.CreatedAt,
	}
}

// PlanUsageResponse reports an owner's tier and how much of it is used
type PlanUsageResponse struct {
	Tier                string `json:"tier"`
	MaxStores           int    `json:"max_stores"`
	StoresUsed          int64  `json:"stores_used"`
	MaxProductsPerStore int    `json:"max_products_per_store"`
	Status              string `json:"status"`
}

// ProviderSubscription is a subscription as reported by the payment provider
type ProviderSubscription struct {
	ProviderSubscriptionID string
	ProviderCustomerID     string
	OwnerID                uuid.UUID // from subscription metadata; may be uuid.Nil for known subscriptions
	PriceRef               string
	Status                 string
	CurrentPeriodEnd       *time.Time
	Deleted                bool
}
