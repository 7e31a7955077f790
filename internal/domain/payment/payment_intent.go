package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/domain/shipping"
)

// SnapshotItem is a price-frozen cart line
type SnapshotItem struct {
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// SubOrderSnapshot freezes what a vendor's intent pays for, so orders can be materialized
// without re-reading the cart
type SubOrderSnapshot struct {
	Items            []SnapshotItem       `json:"items"`
	Subtotal         decimal.Decimal      `json:"subtotal"`
	ShippingCost     decimal.Decimal      `json:"shipping_cost"`
	Carrier          string               `json:"carrier"`
	ServiceLevel     string               `json:"service_level"`
	ShippingDegraded bool                 `json:"shipping_degraded"`
	Destination      shipping.Destination `json:"destination"`
}

// PaymentIntent is the local record of one provider intent, scoped to one vendor
type PaymentIntent struct {
	shared.BaseAggregateRoot
	ProviderIntentID  string
	CartID            uuid.UUID
	CheckoutID        uuid.UUID
	Attempt           int
	StoreID           uuid.UUID
	PaymentAccountID  string
	Amount            decimal.Decimal
	ApplicationFee    decimal.Decimal
	Currency          string
	Status            PaymentStatus
	ClientSecret      string
	IdempotencyKey    string
	LastEventID       string
	LastEventSequence int64
	Snapshot          SubOrderSnapshot
	MaterializedAt    *time.Time
}

// NewPaymentIntent records a provider intent created for a sub-order
func NewPaymentIntent(cartID, checkoutID, storeID uuid.UUID, attempt int, paymentAccountID string, amount, fee decimal.Decimal, currency, idempotencyKey string, snapshot SubOrderSnapshot) (*PaymentIntent, error) {
	if cartID == uuid.Nil || checkoutID == uuid.Nil || storeID == uuid.Nil {
		return nil, shared.NewValidationError("payment_intent", "cart, checkout and store are required")
	}
	if !amount.IsPositive() {
		return nil, shared.NewValidationError("amount", "must be positive")
	}
	if fee.IsNegative() || fee.GreaterThan(amount) {
		return nil, shared.NewValidationError("application_fee", "must be between zero and the amount")
	}
	if idempotencyKey == "" {
		return nil, shared.NewValidationError("idempotency_key", "is required")
	}
	return &PaymentIntent{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		CartID:            cartID,
		CheckoutID:        checkoutID,
		Attempt:           attempt,
		StoreID:           storeID,
		PaymentAccountID:  paymentAccountID,
		Amount:            amount,
		ApplicationFee:    fee,
		Currency:          currency,
		Status:            StatusCreated,
		IdempotencyKey:    idempotencyKey,
		Snapshot:          snapshot,
	}, nil
}

// AttachProviderIntent records the provider's identifiers and initial status
func (p *PaymentIntent) AttachProviderIntent(providerIntentID, clientSecret string, status PaymentStatus) {
	p.ProviderIntentID = providerIntentID
	p.ClientSecret = clientSecret
	if status.IsValid() && p.Status.CanReach(status) {
		p.Status = status
	}
	p.UpdatedAt = time.Now()
}

// ApplyEvent advances the status if the event is new and its status is reachable from the current one.
// Duplicate, out-of-order and backward events are reported and leave the intent untouched.
func (p *PaymentIntent) ApplyEvent(evt ProviderEvent) Outcome {
	if evt.EventID == p.LastEventID {
		return OutcomeDuplicate
	}
	if evt.Sequence < p.LastEventSequence {
		return OutcomeStale
	}
	if p.Status.IsTerminal() {
		return OutcomeStale
	}
	if evt.Status == p.Status {
		p.recordEvent(evt)
		return OutcomeUnchanged
	}
	if !p.Status.CanReach(evt.Status) {
		return OutcomeStale
	}

	from := p.Status
	p.Status = evt.Status
	p.recordEvent(evt)

	p.AddDomainEvent(&PaymentStatusChangedEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent(EventTypePaymentStatusChanged, AggregateTypePaymentIntent, p.ID),
		PaymentIntentID:  p.ID,
		ProviderIntentID: p.ProviderIntentID,
		CartID:           p.CartID,
		StoreID:          p.StoreID,
		From:             from,
		To:               p.Status,
	})
	if p.Status == StatusSucceeded {
		p.AddDomainEvent(&PaymentSucceededEvent{
			BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentSucceeded, AggregateTypePaymentIntent, p.ID),
			PaymentIntentID: p.ID,
			CartID:          p.CartID,
			StoreID:         p.StoreID,
			Amount:          p.Amount.String(),
			Currency:        p.Currency,
		})
	}
	return OutcomeApplied
}

// MarkCanceled records a cancellation performed by the platform (checkout abort or rollback)
func (p *PaymentIntent) MarkCanceled() bool {
	if p.Status.IsTerminal() {
		return false
	}
	from := p.Status
	p.Status = StatusCanceled
	p.UpdatedAt = time.Now()
	p.AddDomainEvent(&PaymentStatusChangedEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent(EventTypePaymentStatusChanged, AggregateTypePaymentIntent, p.ID),
		PaymentIntentID:  p.ID,
		ProviderIntentID: p.ProviderIntentID,
		CartID:           p.CartID,
		StoreID:          p.StoreID,
		From:             from,
		To:               StatusCanceled,
	})
	return true
}

// NeedsMaterialization reports whether a succeeded intent has no orders yet
func (p *PaymentIntent) NeedsMaterialization() bool {
	return p.Status == StatusSucceeded && p.MaterializedAt == nil
}

// MarkMaterialized records that orders exist for this intent
func (p *PaymentIntent) MarkMaterialized(at time.Time) {
	if p.MaterializedAt == nil {
		p.MaterializedAt = &at
		p.UpdatedAt = at
	}
}

// Total returns subtotal plus shipping from the snapshot
func (s SubOrderSnapshot) Total() decimal.Decimal {
	return s.Subtotal.Add(s.ShippingCost)
}

func (p *PaymentIntent) recordEvent(evt ProviderEvent) {
	p.LastEventID = evt.EventID
	if evt.Sequence > p.LastEventSequence {
		p.LastEventSequence = evt.Sequence
	}
	p.UpdatedAt = time.Now()
}
