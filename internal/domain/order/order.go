package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/marketplace/backend/internal/domain/payment"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/domain/shipping"
)

// Aggregate type constant
const AggregateTypeOrder = "Order"

// Event type constants
const EventTypeOrderMaterialized = "OrderMaterialized"

// OrderItem is a price-frozen line of an order
type OrderItem struct {
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// Order is the durable record of a paid sub-order. It is created once per
// (payment intent, store) and never mutated afterwards.
type Order struct {
	shared.BaseAggregateRoot
	StoreID          uuid.UUID
	CartID           uuid.UUID
	PaymentIntentID  uuid.UUID
	Items            []OrderItem
	Subtotal         decimal.Decimal
	ShippingCost     decimal.Decimal
	Total            decimal.Decimal
	Currency         string
	PaymentStatus    payment.PaymentStatus
	Destination      shipping.Destination
	Carrier          string
	ServiceLevel     string
	ShippingDegraded bool
}

// FromPaymentIntent builds the order for a succeeded intent from its frozen snapshot
func FromPaymentIntent(intent *payment.PaymentIntent) (*Order, error) {
	if intent.Status != payment.StatusSucceeded {
		return nil, shared.NewDomainError("INVALID_STATE", "Orders are only created for succeeded payments")
	}
	snap := intent.Snapshot
	items := make([]OrderItem, len(snap.Items))
	for i, it := range snap.Items {
		items[i] = OrderItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			LineTotal: it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))),
		}
	}
	o := &Order{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		StoreID:           intent.StoreID,
		CartID:            intent.CartID,
		PaymentIntentID:   intent.ID,
		Items:             items,
		Subtotal:          snap.Subtotal,
		ShippingCost:      snap.ShippingCost,
		Total:             snap.Total(),
		Currency:          intent.Currency,
		PaymentStatus:     intent.Status,
		Destination:       snap.Destination,
		Carrier:           snap.Carrier,
		ServiceLevel:      snap.ServiceLevel,
		ShippingDegraded:  snap.ShippingDegraded,
	}
	o.AddDomainEvent(NewOrderMaterializedEvent(o))
	return o, nil
}

// OrderMaterializedEvent is raised when an order is first persisted
type OrderMaterializedEvent struct {
	shared.BaseDomainEvent
	OrderID         uuid.UUID `json:"order_id"`
	StoreID         uuid.UUID `json:"store_id"`
	CartID          uuid.UUID `json:"cart_id"`
	PaymentIntentID uuid.UUID `json:"payment_intent_id"`
	Total           string    `json:"total"`
	Currency        string    `json:"currency"`
	MaterializedAt  time.Time `json:"materialized_at"`
}

// NewOrderMaterializedEvent creates a new OrderMaterializedEvent
func NewOrderMaterializedEvent(o *Order) *OrderMaterializedEvent {
	return &OrderMaterializedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrderMaterialized, AggregateTypeOrder, o.ID),
		OrderID:         o.ID,
		StoreID:         o.StoreID,
		CartID:          o.CartID,
		PaymentIntentID: o.PaymentIntentID,
		Total:           o.Total.String(),
		Currency:        o.Currency,
		MaterializedAt:  o.CreatedAt,
	}
}

// EventType returns the event type name
func (e *OrderMaterializedEvent) EventType() string {
	return EventTypeOrderMaterialized
}
