package payment

import (
	"time"

	"github.com/google/uuid"

	"github.com/marketplace/backend/internal/domain/shared"
)

// ProviderEvent is an inbound status notification for one payment intent.
// Delivery is at-least-once and possibly out of order.
type ProviderEvent struct {
	EventID          string
	Type             string
	ProviderIntentID string
	Status           PaymentStatus
	Sequence         int64
	OccurredAt       time.Time
}

// Validate checks the event carries what the state machine needs
func (e ProviderEvent) Validate() error {
	if e.EventID == "" {
		return shared.NewValidationError("event_id", "is required")
	}
	if e.ProviderIntentID == "" {
		return shared.NewValidationError("payment_intent", "is required")
	}
	if !e.Status.IsValid() {
		return shared.NewValidationError("status", "unknown payment status "+string(e.Status))
	}
	return nil
}

// Outcome describes what applying an event did
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeStale     Outcome = "stale"
	OutcomeUnchanged Outcome = "unchanged"
)

// Aggregate type constant
const AggregateTypePaymentIntent = "PaymentIntent"

// Event type constants
const (
	EventTypePaymentStatusChanged = "PaymentStatusChanged"
	EventTypePaymentSucceeded     = "PaymentSucceeded"
)

// PaymentStatusChangedEvent is raised on every applied transition
type PaymentStatusChangedEvent struct {
	shared.BaseDomainEvent
	PaymentIntentID  uuid.UUID     `json:"payment_intent_id"`
	ProviderIntentID string        `json:"provider_intent_id"`
	CartID           uuid.UUID     `json:"cart_id"`
	StoreID          uuid.UUID     `json:"store_id"`
	From             PaymentStatus `json:"from"`
	To               PaymentStatus `json:"to"`
}

// EventType returns the event type name
func (e *PaymentStatusChangedEvent) EventType() string {
	return EventTypePaymentStatusChanged
}

// PaymentSucceededEvent is raised once when an intent enters succeeded
type PaymentSucceededEvent struct {
	shared.BaseDomainEvent
	PaymentIntentID uuid.UUID `json:"payment_intent_id"`
	CartID          uuid.UUID `json:"cart_id"`
	StoreID         uuid.UUID `json:"store_id"`
	Amount          string    `json:"amount"`
	Currency        string    `json:"currency"`
}

// EventType returns the event type name
func (e *PaymentSucceededEvent) EventType() string {
	return EventTypePaymentSucceeded
}
