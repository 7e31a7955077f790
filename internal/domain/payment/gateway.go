package payment

import (
	"context"

	"github.com/marketplace/backend/internal/domain/shared/valueobject"
)

// CreateIntentRequest asks the provider for an intent paying one vendor
type CreateIntentRequest struct {
	IdempotencyKey     string
	Amount             valueobject.Money
	ApplicationFee     valueobject.Money
	DestinationAccount string
	Description        string
	Metadata           map[string]string
}

// IntentResult is the provider's view of an intent
type IntentResult struct {
	ProviderIntentID string
	ClientSecret     string
	Status           PaymentStatus
}

// Gateway is the payment provider boundary. A repeated idempotency key returns the original intent.
type Gateway interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (*IntentResult, error)
	CancelIntent(ctx context.Context, providerIntentID string) (*IntentResult, error)
}
