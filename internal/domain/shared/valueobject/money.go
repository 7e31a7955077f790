package valueobject

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency represents a currency code (ISO 4217)
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	JPY Currency = "JPY"
	KRW Currency = "KRW"
)

// DefaultCurrency is the default settlement currency
const DefaultCurrency = USD

// zeroDecimal lists currencies that have no minor unit at the payment provider
var zeroDecimal = map[Currency]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true, "KMF": true,
	"KRW": true, "MGA": true, "PYG": true, "RWF": true, "UGX": true, "VND": true,
	"VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

// ParseCurrency normalizes a currency code
func ParseCurrency(code string) (Currency, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return "", fmt.Errorf("invalid currency code %q", code)
	}
	return Currency(code), nil
}

// Exponent returns the number of minor-unit digits for the currency
func (c Currency) Exponent() int32 {
	if zeroDecimal[c] {
		return 0
	}
	return 2
}

// Lower returns the lowercase code used by the payment provider API
func (c Currency) Lower() string {
	return strings.ToLower(string(c))
}

// Money is an immutable monetary amount
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

// NewMoney creates a new Money with the specified amount and currency
func NewMoney(amount decimal.Decimal, currency Currency) (Money, error) {
	if currency == "" {
		return Money{}, errors.New("currency cannot be empty")
	}
	return Money{amount: amount, currency: currency}, nil
}

// MustMoney creates Money and panics on an empty currency. Intended for constants and tests.
func MustMoney(amount string, currency Currency) Money {
	d := decimal.RequireFromString(amount)
	m, err := NewMoney(d, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// FromMinorUnits converts an integer amount in the currency's smallest unit (cents) into Money
func FromMinorUnits(units int64, currency Currency) Money {
	return Money{
		amount:   decimal.New(units, -currency.Exponent()),
		currency: currency,
	}
}

// Zero creates a zero Money with the specified currency
func Zero(currency Currency) Money {
	return Money{amount: decimal.Zero, currency: currency}
}

// Amount returns the decimal amount
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// Currency returns the currency code
func (m Money) Currency() Currency {
	return m.currency
}

// IsZero returns true if the amount is zero
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// IsNegative returns true if the amount is negative
func (m Money) IsNegative() bool {
	return m.amount.IsNegative()
}

// Add adds another Money of the same currency
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.currency, other.currency)
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

// MultiplyByInt multiplies the amount by an integer quantity
func (m Money) MultiplyByInt(factor int64) Money {
	return Money{amount: m.amount.Mul(decimal.NewFromInt(factor)), currency: m.currency}
}

// Equals compares amount and currency
func (m Money) Equals(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// ToMinorUnits returns the amount in the currency's smallest unit, rounded half away from zero
func (m Money) ToMinorUnits() int64 {
	return m.amount.Shift(m.currency.Exponent()).Round(0).IntPart()
}

// BasisPoints returns bps/10000 of the amount, rounded to the currency's minor unit
func (m Money) BasisPoints(bps int64) Money {
	fee := m.amount.Mul(decimal.NewFromInt(bps)).Div(decimal.NewFromInt(10000))
	return Money{amount: fee.Round(m.currency.Exponent()), currency: m.currency}
}

// String returns a human readable representation
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.amount.StringFixed(m.currency.Exponent()), m.currency)
}

// MarshalJSON implements json.Marshaler
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   string   `json:"amount"`
		Currency Currency `json:"currency"`
	}{
		Amount:   m.amount.StringFixed(m.currency.Exponent()),
		Currency: m.currency,
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Money) UnmarshalJSON(data []byte) error {
	var v struct {
		Amount   string   `json:"amount"`
		Currency Currency `json:"currency"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	amount, err := decimal.NewFromString(v.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	m.amount = amount
	m.currency = v.Currency
	return nil
}
