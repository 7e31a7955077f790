package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/marketplace/backend/internal/domain/cart"
)

// CartModel is the persistence model for the Cart aggregate root.
// At most one open cart exists per identity key.
type CartModel struct {
	AggregateModel
	IdentityKey       string          `gorm:"type:varchar(160);not null;index:idx_carts_open_identity,unique,where:closed = false"`
	UserID            *uuid.UUID      `gorm:"type:uuid;index"`
	GuestToken        string          `gorm:"type:varchar(128)"`
	Currency          string          `gorm:"type:varchar(3);not null"`
	Closed            bool            `gorm:"not null;default:false"`
	ClosedAt          *time.Time      `gorm:"column:closed_at"`
	CheckoutID        *uuid.UUID      `gorm:"type:uuid"`
	CheckoutAttempt   int             `gorm:"not null;default:0"`
	CheckoutStartedAt *time.Time      `gorm:"column:checkout_started_at"`
	MergedFrom        []uuid.UUID     `gorm:"type:jsonb;serializer:json"`
	Items             []CartItemModel `gorm:"foreignKey:CartID;references:ID"`
}

// TableName returns the table name for GORM
func (CartModel) TableName() string {
	return "carts"
}

// CartItemModel is the persistence model for a cart line
type CartItemModel struct {
	BaseModel
	CartID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductID uuid.UUID       `gorm:"type:uuid;not null"`
	StoreID   uuid.UUID       `gorm:"type:uuid;not null"`
	Quantity  int             `gorm:"not null"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Position  int             `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (CartItemModel) TableName() string {
	return "cart_items"
}

// ToDomain converts the persistence model to a domain Cart entity
func (m *CartModel) ToDomain() *cart.Cart {
	c := &cart.Cart{
		BaseAggregateRoot: m.ToAggregateRoot(),
		IdentityKey:       m.IdentityKey,
		UserID:            m.UserID,
		GuestToken:        m.GuestToken,
		Currency:          m.Currency,
		Closed:            m.Closed,
		ClosedAt:          m.ClosedAt,
		CheckoutID:        m.CheckoutID,
		CheckoutAttempt:   m.CheckoutAttempt,
		CheckoutStartedAt: m.CheckoutStartedAt,
		MergedFrom:        m.MergedFrom,
		Items:             make([]cart.CartItem, len(m.Items)),
	}
	for i, item := range m.Items {
		c.Items[i] = item.ToDomain()
	}
	return c
}

// FromDomain populates the persistence model from a domain Cart entity
func (m *CartModel) FromDomain(c *cart.Cart) {
	m.FromDomainAggregateRoot(c.BaseAggregateRoot)
	m.IdentityKey = c.IdentityKey
	m.UserID = c.UserID
	m.GuestToken = c.GuestToken
	m.Currency = c.Currency
	m.Closed = c.Closed
	m.ClosedAt = c.ClosedAt
	m.CheckoutID = c.CheckoutID
	m.CheckoutAttempt = c.CheckoutAttempt
	m.CheckoutStartedAt = c.CheckoutStartedAt
	m.MergedFrom = c.MergedFrom
	m.Items = CartItemModelsFromDomain(c)
}

// CartItemModelsFromDomain builds the item rows of a cart
func CartItemModelsFromDomain(c *cart.Cart) []CartItemModel {
	items := make([]CartItemModel, len(c.Items))
	for i, item := range c.Items {
		items[i] = CartItemModel{
			BaseModel: BaseModel{ID: item.ID, CreatedAt: item.CreatedAt, UpdatedAt: item.UpdatedAt},
			CartID:    c.ID,
			ProductID: item.ProductID,
			StoreID:   item.StoreID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Position:  item.Position,
		}
	}
	return items
}

// ToDomain converts the item row to a domain CartItem
func (m *CartItemModel) ToDomain() cart.CartItem {
	return cart.CartItem{
		ID:        m.ID,
		CartID:    m.CartID,
		ProductID: m.ProductID,
		StoreID:   m.StoreID,
		Quantity:  m.Quantity,
		UnitPrice: m.UnitPrice,
		Position:  m.Position,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
