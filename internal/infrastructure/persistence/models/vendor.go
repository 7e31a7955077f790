package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/marketplace/backend/internal/domain/catalog"
	"github.com/marketplace/backend/internal/domain/vendor"
)

// StoreModel is the persistence model for the Store aggregate root
type StoreModel struct {
	AggregateModel
	OwnerID          uuid.UUID  `gorm:"type:uuid;not null;index"`
	Name             string     `gorm:"type:varchar(200);not null"`
	PaymentAccountID string     `gorm:"type:varchar(100)"`
	Active           bool       `gorm:"not null"`
	PlanTier         string     `gorm:"type:varchar(50);not null"`
	ShipFromCountry  string     `gorm:"type:varchar(2)"`
	ShipFromPostal   string     `gorm:"column:ship_from_postal_code;type:varchar(20)"`
	DeactivatedAt    *time.Time `gorm:"column:deactivated_at"`
}

// TableName returns the table name for GORM
func (StoreModel) TableName() string {
	return "stores"
}

// ToDomain converts the persistence model to a domain Store entity
func (m *StoreModel) ToDomain() *vendor.Store {
	return &vendor.Store{
		BaseAggregateRoot: m.ToAggregateRoot(),
		OwnerID:           m.OwnerID,
		Name:              m.Name,
		PaymentAccountID:  m.PaymentAccountID,
		Active:            m.Active,
		PlanTier:          vendor.PlanTier(m.PlanTier),
		ShipFrom:          vendor.Origin{Country: m.ShipFromCountry, PostalCode: m.ShipFromPostal},
		DeactivatedAt:     m.DeactivatedAt,
	}
}

// FromDomain populates the persistence model from a domain Store entity
func (m *StoreModel) FromDomain(s *vendor.Store) {
	m.FromDomainAggregateRoot(s.BaseAggregateRoot)
	m.OwnerID = s.OwnerID
	m.Name = s.Name
	m.PaymentAccountID = s.PaymentAccountID
	m.Active = s.Active
	m.PlanTier = s.PlanTier.String()
	m.ShipFromCountry = s.ShipFrom.Country
	m.ShipFromPostal = s.ShipFrom.PostalCode
	m.DeactivatedAt = s.DeactivatedAt
}

// SubscriptionModel is the persistence model for an owner's plan subscription
type SubscriptionModel struct {
	BaseModel
	OwnerID                uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex"`
	PlanTier               string     `gorm:"type:varchar(50);not null"`
	Status                 string     `gorm:"type:varchar(20);not null"`
	ProviderCustomerID     string     `gorm:"type:varchar(100)"`
	ProviderSubscriptionID string     `gorm:"type:varchar(100);index"`
	CurrentPeriodEnd       *time.Time `gorm:"column:current_period_end"`
}

// TableName returns the table name for GORM
func (SubscriptionModel) TableName() string {
	return "subscriptions"
}

// ToDomain converts the persistence model to a domain Subscription entity
func (m *SubscriptionModel) ToDomain() *vendor.Subscription {
	return &vendor.Subscription{
		BaseEntity:             m.BaseModel.ToDomain(),
		OwnerID:                m.OwnerID,
		PlanTier:               vendor.PlanTier(m.PlanTier),
		Status:                 vendor.SubscriptionStatus(m.Status),
		ProviderCustomerID:     m.ProviderCustomerID,
		ProviderSubscriptionID: m.ProviderSubscriptionID,
		CurrentPeriodEnd:       m.CurrentPeriodEnd,
	}
}

// FromDomain populates the persistence model from a domain Subscription entity
func (m *SubscriptionModel) FromDomain(s *vendor.Subscription) {
	m.FromDomainBaseEntity(s.BaseEntity)
	m.OwnerID = s.OwnerID
	m.PlanTier = s.PlanTier.String()
	m.Status = string(s.Status)
	m.ProviderCustomerID = s.ProviderCustomerID
	m.ProviderSubscriptionID = s.ProviderSubscriptionID
	m.CurrentPeriodEnd = s.CurrentPeriodEnd
}

// ProductModel is the persistence model for the Product aggregate root
type ProductModel struct {
	AggregateModel
	StoreID  uuid.UUID       `gorm:"type:uuid;not null;index"`
	Name     string          `gorm:"type:varchar(200);not null"`
	Price    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Currency string          `gorm:"type:varchar(3);not null"`
	Stock    int             `gorm:"not null;default:0"`
	Active   bool            `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// ToDomain converts the persistence model to a domain Product entity
func (m *ProductModel) ToDomain() *catalog.Product {
	return &catalog.Product{
		BaseAggregateRoot: m.ToAggregateRoot(),
		StoreID:           m.StoreID,
		Name:              m.Name,
		Price:             m.Price,
		Currency:          m.Currency,
		Stock:             m.Stock,
		Active:            m.Active,
	}
}

// FromDomain populates the persistence model from a domain Product entity
func (m *ProductModel) FromDomain(p *catalog.Product) {
	m.FromDomainAggregateRoot(p.BaseAggregateRoot)
	m.StoreID = p.StoreID
	m.Name = p.Name
	m.Price = p.Price
	m.Currency = p.Currency
	m.Stock = p.Stock
	m.Active = p.Active
}
