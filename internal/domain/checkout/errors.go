package checkout

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/marketplace/backend/internal/domain/shared"
)

// PriceMismatchError aborts checkout when a catalog price differs from the price in the cart
type PriceMismatchError struct {
	ProductID    uuid.UUID
	CartPrice    decimal.Decimal
	CurrentPrice decimal.Decimal
}

func (e *PriceMismatchError) Error() string {
	return fmt.Sprintf("price of product %s changed from %s to %s", e.ProductID, e.CartPrice, e.CurrentPrice)
}

// Unwrap exposes the error as a DomainError for transport mapping
func (e *PriceMismatchError) Unwrap() error {
	return shared.NewDomainError(shared.CodePriceMismatch, "The price of an item in your cart has changed").
		WithDetails(map[string]any{
			"product_id":    e.ProductID.String(),
			"cart_price":    e.CartPrice.String(),
			"current_price": e.CurrentPrice.String(),
		})
}

// Unavailability reasons
const (
	ReasonProductNotFound   = "product_not_found"
	ReasonNotPurchasable    = "not_purchasable"
	ReasonInsufficientStock = "insufficient_stock"
	ReasonStoreMismatch     = "store_mismatch"
)

// ItemUnavailableError aborts checkout when an item can no longer be bought
type ItemUnavailableError struct {
	ProductID uuid.UUID
	Reason    string
}

func (e *ItemUnavailableError) Error() string {
	return fmt.Sprintf("product %s is unavailable: %s", e.ProductID, e.Reason)
}

// Unwrap exposes the error as a DomainError for transport mapping
func (e *ItemUnavailableError) Unwrap() error {
	return shared.NewDomainError(shared.CodeItemUnavailable, "An item in your cart is no longer available").
		WithDetails(map[string]any{"product_id": e.ProductID.String(), "reason": e.Reason})
}
