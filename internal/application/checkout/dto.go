package checkout

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/marketplace/backend/internal/domain/checkout"
	"github.com/marketplace/backend/internal/domain/payment"
	"github.com/marketplace/backend/internal/domain/shipping"
)

// InitiateInput starts a checkout for a cart
type InitiateInput struct {
	CartID          uuid.UUID
	ExpectedVersion int
	Destination     shipping.Destination
	// Selections maps store id to the chosen shipping option id
	Selections map[uuid.UUID]string
}

// SubOrderResponse is one vendor's share of the checkout
type SubOrderResponse struct {
	StoreID          uuid.UUID               `json:"store_id"`
	ItemCount        int                     `json:"item_count"`
	Subtotal         decimal.Decimal         `json:"subtotal"`
	Shipping         shipping.ShippingOption `json:"shipping"`
	ShippingDegraded bool                    `json:"shipping_degraded"`
	Total            decimal.Decimal         `json:"total"`
}

// IntentResponse is what the client needs to confirm one payment
type IntentResponse struct {
	PaymentIntentID  uuid.UUID             `json:"payment_intent_id"`
	ProviderIntentID string                `json:"provider_intent_id"`
	ClientSecret     string                `json:"client_secret"`
	StoreID          uuid.UUID             `json:"store_id"`
	Amount           decimal.Decimal       `json:"amount"`
	Currency         string                `json:"currency"`
	Status           payment.PaymentStatus `json:"status"`
}

// CheckoutResponse is the result of Initiate
type CheckoutResponse struct {
	CartID      uuid.UUID          `json:"cart_id"`
	CheckoutID  uuid.UUID          `json:"checkout_id"`
	Attempt     int                `json:"attempt"`
	CartVersion int                `json:"cart_version"`
	SubOrders   []SubOrderResponse `json:"sub_orders"`
	Intents     []IntentResponse   `json:"intents"`
	Total       decimal.Decimal    `json:"total"`
}

func toSubOrderResponses(subs []checkout.SubOrder) []SubOrderResponse {
	out := make([]SubOrderResponse, len(subs))
	for i, s := range subs {
		count := 0
		for _, item := range s.Items {
			count += item.Quantity
		}
		out[i] = SubOrderResponse{
			StoreID:          s.StoreID,
			ItemCount:        count,
			Subtotal:         s.Subtotal,
			Shipping:         s.Shipping,
			ShippingDegraded: s.ShippingDegraded,
			Total:            s.Total(),
		}
	}
	return out
}

// ToIntentResponses converts intent refs to responses
func ToIntentResponses(refs []checkout.PaymentIntentRef) []IntentResponse {
	out := make([]IntentResponse, len(refs))
	for i, r := range refs {
		out[i] = IntentResponse{
			PaymentIntentID:  r.PaymentIntentID,
			ProviderIntentID: r.ProviderIntentID,
			ClientSecret:     r.ClientSecret,
			StoreID:          r.StoreID,
			Amount:           r.Amount,
			Currency:         r.Currency,
			Status:           r.Status,
		}
	}
	return out
}
