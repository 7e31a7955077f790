package shipping

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/marketplace/backend/internal/domain/shared"
)

// Destination is where a buyer's parcels go
type Destination struct {
	Country    string `json:"country"`
	PostalCode string `json:"postal_code"`
	State      string `json:"state,omitempty"`
	City       string `json:"city,omitempty"`
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
}

// Normalize trims fields and upper-cases country and postal code
func (d Destination) Normalize() Destination {
	d.Country = strings.ToUpper(strings.TrimSpace(d.Country))
	d.PostalCode = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(d.PostalCode), " ", ""))
	d.State = strings.TrimSpace(d.State)
	d.City = strings.TrimSpace(d.City)
	d.Line1 = strings.TrimSpace(d.Line1)
	d.Line2 = strings.TrimSpace(d.Line2)
	return d
}

// Validate checks the fields needed for a rate quote
func (d Destination) Validate() error {
	if len(d.Country) != 2 {
		return shared.NewValidationError("destination.country", "must be a two letter country code")
	}
	if d.PostalCode == "" {
		return shared.NewValidationError("destination.postal_code", "is required")
	}
	return nil
}

// RateKey identifies the destination for rate purposes. Street lines do not affect rates.
func (d Destination) RateKey() string {
	return d.Country + ":" + d.PostalCode
}

// ParcelItem is a line in a vendor's parcel
type ParcelItem struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// ContentHash returns a stable hash of the parcel contents independent of item order
func ContentHash(items []ParcelItem) string {
	sorted := slices.Clone(items)
	slices.SortFunc(sorted, func(a, b ParcelItem) int {
		return strings.Compare(a.ProductID.String(), b.ProductID.String())
	})
	h := sha256.New()
	for _, item := range sorted {
		h.Write([]byte(item.ProductID.String()))
		h.Write([]byte{':'})
		h.Write([]byte(strconv.Itoa(item.Quantity)))
		h.Write([]byte{';'})
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// RateRequest asks for the options to ship one vendor's parcel
type RateRequest struct {
	StoreID          uuid.UUID
	OriginCountry    string
	OriginPostalCode string
	Destination      Destination
	Items            []ParcelItem
	Currency         string
}

// CacheKey returns the cache key for (store, destination, contents, currency)
func (r RateRequest) CacheKey() string {
	return r.StoreID.String() + "|" + r.Destination.RateKey() + "|" + ContentHash(r.Items) + "|" + r.Currency
}

// ShippingOption is one way to ship a parcel. Degraded marks the flat fallback rate.
type ShippingOption struct {
	Carrier       string          `json:"carrier"`
	ServiceLevel  string          `json:"service_level"`
	Cost          decimal.Decimal `json:"cost"`
	Currency      string          `json:"currency"`
	EstimatedDays int             `json:"estimated_days"`
	Degraded      bool            `json:"degraded"`
}

// ID identifies the option within a quote
func (o ShippingOption) ID() string {
	return o.Carrier + ":" + o.ServiceLevel
}

// Cheapest returns the lowest-cost option, preferring fewer estimated days on ties
func Cheapest(options []ShippingOption) (ShippingOption, bool) {
	if len(options) == 0 {
		return ShippingOption{}, false
	}
	best := options[0]
	for _, o := range options[1:] {
		if o.Cost.LessThan(best.Cost) || (o.Cost.Equal(best.Cost) && o.EstimatedDays < best.EstimatedDays) {
			best = o
		}
	}
	return best, true
}

// FindOption returns the option with the given id
func FindOption(options []ShippingOption, id string) (ShippingOption, bool) {
	for _, o := range options {
		if o.ID() == id {
			return o, true
		}
	}
	return ShippingOption{}, false
}
