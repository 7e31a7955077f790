package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/marketplace/backend/internal/domain/order"
	"github.com/marketplace/backend/internal/domain/payment"
	"github.com/marketplace/backend/internal/domain/shipping"
)

// PaymentIntentModel is the persistence model for a provider payment intent record.
// The sub-order snapshot is stored as a JSON document.
type PaymentIntentModel struct {
	AggregateModel
	ProviderIntentID  string                   `gorm:"type:varchar(100);not null;uniqueIndex"`
	CartID            uuid.UUID                `gorm:"type:uuid;not null;index"`
	CheckoutID        uuid.UUID                `gorm:"type:uuid;not null;index"`
	Attempt           int                      `gorm:"not null"`
	StoreID           uuid.UUID                `gorm:"type:uuid;not null"`
	PaymentAccountID  string                   `gorm:"type:varchar(100);not null"`
	Amount            decimal.Decimal          `gorm:"type:decimal(18,4);not null"`
	ApplicationFee    decimal.Decimal          `gorm:"type:decimal(18,4);not null"`
	Currency          string                   `gorm:"type:varchar(3);not null"`
	Status            string                   `gorm:"type:varchar(32);not null;index"`
	ClientSecret      string                   `gorm:"type:varchar(255)"`
	IdempotencyKey    string                   `gorm:"type:varchar(200);not null;uniqueIndex"`
	LastEventID       string                   `gorm:"type:varchar(100)"`
	LastEventSequence int64                    `gorm:"not null;default:0"`
	Snapshot          payment.SubOrderSnapshot `gorm:"type:jsonb;serializer:json;not null"`
	MaterializedAt    *time.Time               `gorm:"column:materialized_at"`
}

// TableName returns the table name for GORM
func (PaymentIntentModel) TableName() string {
	return "payment_intents"
}

// ToDomain converts the persistence model to a domain PaymentIntent entity
func (m *PaymentIntentModel) ToDomain() *payment.PaymentIntent {
	return &payment.PaymentIntent{
		BaseAggregateRoot: m.ToAggregateRoot(),
		ProviderIntentID:  m.ProviderIntentID,
		CartID:            m.CartID,
		CheckoutID:        m.CheckoutID,
		Attempt:           m.Attempt,
		StoreID:           m.StoreID,
		PaymentAccountID:  m.PaymentAccountID,
		Amount:            m.Amount,
		ApplicationFee:    m.ApplicationFee,
		Currency:          m.Currency,
		Status:            payment.PaymentStatus(m.Status),
		ClientSecret:      m.ClientSecret,
		IdempotencyKey:    m.IdempotencyKey,
		LastEventID:       m.LastEventID,
		LastEventSequence: m.LastEventSequence,
		Snapshot:          m.Snapshot,
		MaterializedAt:    m.MaterializedAt,
	}
}

// FromDomain populates the persistence model from a domain PaymentIntent entity
func (m *PaymentIntentModel) FromDomain(p *payment.PaymentIntent) {
	m.FromDomainAggregateRoot(p.BaseAggregateRoot)
	m.ProviderIntentID = p.ProviderIntentID
	m.CartID = p.CartID
	m.CheckoutID = p.CheckoutID
	m.Attempt = p.Attempt
	m.StoreID = p.StoreID
	m.PaymentAccountID = p.PaymentAccountID
	m.Amount = p.Amount
	m.ApplicationFee = p.ApplicationFee
	m.Currency = p.Currency
	m.Status = string(p.Status)
	m.ClientSecret = p.ClientSecret
	m.IdempotencyKey = p.IdempotencyKey
	m.LastEventID = p.LastEventID
	m.LastEventSequence = p.LastEventSequence
	m.Snapshot = p.Snapshot
	m.MaterializedAt = p.MaterializedAt
}

// OrderModel is the persistence model for a materialized order.
// (payment_intent_id, store_id) is unique so a payment yields at most one order per vendor.
type OrderModel struct {
	AggregateModel
	StoreID          uuid.UUID            `gorm:"type:uuid;not null;index;uniqueIndex:idx_orders_intent_store,priority:2"`
	CartID           uuid.UUID            `gorm:"type:uuid;not null;index"`
	PaymentIntentID  uuid.UUID            `gorm:"type:uuid;not null;uniqueIndex:idx_orders_intent_store,priority:1"`
	Items            []order.OrderItem    `gorm:"type:jsonb;serializer:json;not null"`
	Subtotal         decimal.Decimal      `gorm:"type:decimal(18,4);not null"`
	ShippingCost     decimal.Decimal      `gorm:"type:decimal(18,4);not null"`
	Total            decimal.Decimal      `gorm:"type:decimal(18,4);not null"`
	Currency         string               `gorm:"type:varchar(3);not null"`
	PaymentStatus    string               `gorm:"type:varchar(32);not null"`
	Destination      shipping.Destination `gorm:"type:jsonb;serializer:json"`
	Carrier          string               `gorm:"type:varchar(100)"`
	ServiceLevel     string               `gorm:"type:varchar(100)"`
	ShippingDegraded bool                 `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// ToDomain converts the persistence model to a domain Order entity
func (m *OrderModel) ToDomain() *order.Order {
	return &order.Order{
		BaseAggregateRoot: m.ToAggregateRoot(),
		StoreID:           m.StoreID,
		CartID:            m.CartID,
		PaymentIntentID:   m.PaymentIntentID,
		Items:             m.Items,
		Subtotal:          m.Subtotal,
		ShippingCost:      m.ShippingCost,
		Total:             m.Total,
		Currency:          m.Currency,
		PaymentStatus:     payment.PaymentStatus(m.PaymentStatus),
		Destination:       m.Destination,
		Carrier:           m.Carrier,
		ServiceLevel:      m.ServiceLevel,
		ShippingDegraded:  m.ShippingDegraded,
	}
}

// FromDomain populates the persistence model from a domain Order entity
func (m *OrderModel) FromDomain(o *order.Order) {
	m.FromDomainAggregateRoot(o.BaseAggregateRoot)
	m.StoreID = o.StoreID
	m.CartID = o.CartID
	m.PaymentIntentID = o.PaymentIntentID
	m.Items = o.Items
	m.Subtotal = o.Subtotal
	m.ShippingCost = o.ShippingCost
	m.Total = o.Total
	m.Currency = o.Currency
	m.PaymentStatus = string(o.PaymentStatus)
	m.Destination = o.Destination
	m.Carrier = o.Carrier
	m.ServiceLevel = o.ServiceLevel
	m.ShippingDegraded = o.ShippingDegraded
}
