package cart

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/marketplace/backend/internal/domain/cart"
)

// AddItemInput is the request to add a product to a cart
type AddItemInput struct {
	ProductID       uuid.UUID
	Quantity        int
	ExpectedVersion int
}

// UpdateItemInput sets an absolute quantity for a product line
type UpdateItemInput struct {
	ProductID       uuid.UUID
	Quantity        int
	ExpectedVersion int
}

// CartItemResponse is a cart line as returned to clients
type CartItemResponse struct {
	ProductID uuid.UUID       `json:"product_id"`
	StoreID   uuid.UUID       `json:"store_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// CartResponse is a cart as returned to clients
type CartResponse struct {
	ID              uuid.UUID          `json:"id"`
	Version         int                `json:"version"`
	Currency        string             `json:"currency"`
	Items           []CartItemResponse `json:"items"`
	ItemCount       int                `json:"item_count"`
	Subtotal        decimal.Decimal    `json:"subtotal"`
	Closed          bool               `json:"closed"`
	Locked          bool               `json:"locked"`
	CheckoutID      *uuid.UUID         `json:"checkout_id,omitempty"`
	CheckoutAttempt int                `json:"checkout_attempt"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// ToCartResponse converts a domain cart to a response
func ToCartResponse(c *cart.Cart) CartResponse {
	items := make([]CartItemResponse, len(c.Items))
	for i, item := range c.Items {
		items[i] = CartItemResponse{
			ProductID: item.ProductID,
			StoreID:   item.StoreID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal(),
		}
	}
	return CartResponse{
		ID:              c.ID,
		Version:         c.Version,
		Currency:        c.Currency,
		Items:           items,
		ItemCount:       c.ItemCount(),
		Subtotal:        c.Subtotal(),
		Closed:          c.Closed,
		Locked:          c.IsLocked(),
		CheckoutID:      c.CheckoutID,
		CheckoutAttempt: c.CheckoutAttempt,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}
