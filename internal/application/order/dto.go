package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/marketplace/backend/internal/domain/order"
	"github.com/marketplace/backend/internal/domain/shipping"
)

// OrderItemResponse is an order line as returned to clients
type OrderItemResponse struct {
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// OrderResponse is an order as returned to clients
type OrderResponse struct {
	ID               uuid.UUID            `json:"id"`
	StoreID          uuid.UUID            `json:"store_id"`
	CartID           uuid.UUID            `json:"cart_id"`
	PaymentIntentID  uuid.UUID            `json:"payment_intent_id"`
	Items            []OrderItemResponse  `json:"items"`
	Subtotal         decimal.Decimal      `json:"subtotal"`
	ShippingCost     decimal.Decimal      `json:"shipping_cost"`
	Total            decimal.Decimal      `json:"total"`
	Currency         string               `json:"currency"`
	PaymentStatus    string               `json:"payment_status"`
	Destination      shipping.Destination `json:"destination"`
	Carrier          string               `json:"carrier"`
	ServiceLevel     string               `json:"service_level"`
	ShippingDegraded bool                 `json:"shipping_degraded"`
	CreatedAt        time.Time            `json:"created_at"`
}

// ToOrderResponse converts a domain order to a response
func ToOrderResponse(o *order.Order) OrderResponse {
	items := make([]OrderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = OrderItemResponse{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			LineTotal: it.LineTotal,
		}
	}
	return OrderResponse{
		ID:               o.ID,
		StoreID:          o.StoreID,
		CartID:           o.CartID,
		PaymentIntentID:  o.PaymentIntentID,
		Items:            items,
		Subtotal:         o.Subtotal,
		ShippingCost:     o.ShippingCost,
		Total:            o.Total,
		Currency:         o.Currency,
		PaymentStatus:    string(o.PaymentStatus),
		Destination:      o.Destination,
		Carrier:          o.Carrier,
		ServiceLevel:     o.ServiceLevel,
		ShippingDegraded: o.ShippingDegraded,
		CreatedAt:        o.CreatedAt,
	}
}

// ToOrderResponses converts a list of domain orders to responses
func ToOrderResponses(orders []order.Order) []OrderResponse {
	out := make([]OrderResponse, len(orders))
	for i := range orders {
		out[i] = ToOrderResponse(&orders[i])
	}
	return out
}
