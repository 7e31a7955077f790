package checkout

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/marketplace/backend/internal/domain/cart"
	"github.com/marketplace/backend/internal/domain/payment"
	"github.com/marketplace/backend/internal/domain/shipping"
)

// SubOrder is the per-vendor partition of a cart produced during checkout. It is not persisted
// until materialization.
type SubOrder struct {
	StoreID          uuid.UUID
	PaymentAccountID string
	Items            []cart.CartItem
	Subtotal         decimal.Decimal
	Shipping         shipping.ShippingOption
	ShippingDegraded bool
	Currency         string
}

// Total returns subtotal plus shipping
func (s SubOrder) Total() decimal.Decimal {
	return s.Subtotal.Add(s.Shipping.Cost)
}

// Snapshot freezes the sub-order for the payment intent record
func (s SubOrder) Snapshot(destination shipping.Destination) payment.SubOrderSnapshot {
	items := make([]payment.SnapshotItem, len(s.Items))
	for i, item := range s.Items {
		items[i] = payment.SnapshotItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}
	return payment.SubOrderSnapshot{
		Items:            items,
		Subtotal:         s.Subtotal,
		ShippingCost:     s.Shipping.Cost,
		Carrier:          s.Shipping.Carrier,
		ServiceLevel:     s.Shipping.ServiceLevel,
		ShippingDegraded: s.ShippingDegraded,
		Destination:      destination,
	}
}

// ParcelItems returns the sub-order's items as shipping parcel contents
func (s SubOrder) ParcelItems() []shipping.ParcelItem {
	out := make([]shipping.ParcelItem, len(s.Items))
	for i, item := range s.Items {
		out[i] = shipping.ParcelItem{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	return out
}

// PaymentIntentRef is what the buyer's client needs to confirm one vendor's payment
type PaymentIntentRef struct {
	PaymentIntentID  uuid.UUID
	ProviderIntentID string
	ClientSecret     string
	StoreID          uuid.UUID
	Amount           decimal.Decimal
	Currency         string
	Status           payment.PaymentStatus
}

// IdempotencyKey derives the provider idempotency key for a vendor's intent in a checkout attempt.
// The same cart, store and attempt always produce the same key.
func IdempotencyKey(cartID, storeID uuid.UUID, attempt int) string {
	return fmt.Sprintf("checkout:%s:%s:%d", cartID, storeID, attempt)
}
