package payment

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/paymentintent"
	"go.uber.org/zap"

	domain "github.com/marketplace/backend/internal/domain/payment"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/infrastructure/config"
)

const providerStripe = "stripe"

// StripeGateway creates and cancels destination-charge payment intents.
// Each intent pays one connected account; the platform keeps the application fee.
type StripeGateway struct {
	intents *paymentintent.Client
	logger  *zap.Logger
}

// NewStripeGateway creates a gateway against the Stripe API, or against cfg.APIBaseURL when set
func NewStripeGateway(cfg config.StripeConfig, maxNetworkRetries int64, logger *zap.Logger) (*StripeGateway, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("stripe: secret key is required")
	}
	backendCfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(maxNetworkRetries),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	if cfg.APIBaseURL != "" {
		backendCfg.URL = stripe.String(cfg.APIBaseURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)
	return NewStripeGatewayWithBackend(backend, cfg.SecretKey, logger), nil
}

// NewStripeGatewayWithBackend creates a gateway on an explicit backend
func NewStripeGatewayWithBackend(backend stripe.Backend, secretKey string, logger *zap.Logger) *StripeGateway {
	return &StripeGateway{
		intents: &paymentintent.Client{B: backend, Key: secretKey},
		logger:  logger,
	}
}

// CreateIntent creates a payment intent. Stripe returns the original intent for a repeated idempotency key.
func (g *StripeGateway) CreateIntent(ctx context.Context, req domain.CreateIntentRequest) (*domain.IntentResult, error) {
	if req.DestinationAccount == "" {
		return nil, shared.NewValidationError("destination_account", "is required")
	}
	if req.IdempotencyKey == "" {
		return nil, shared.NewValidationError("idempotency_key", "is required")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount.ToMinorUnits()),
		Currency: stripe.String(req.Amount.Currency().Lower()),
		TransferData: &stripe.PaymentIntentTransferDataParams{
			Destination: stripe.String(req.DestinationAccount),
		},
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if !req.ApplicationFee.IsZero() {
		params.ApplicationFeeAmount = stripe.Int64(req.ApplicationFee.ToMinorUnits())
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	params.Metadata = make(map[string]string, len(req.Metadata))
	maps.Copy(params.Metadata, req.Metadata)

	g.logger.Debug("Creating Stripe payment intent",
		zap.String("idempotency_key", req.IdempotencyKey),
		zap.String("destination", req.DestinationAccount),
		zap.Int64("amount", req.Amount.ToMinorUnits()))

	pi, err := g.intents.New(params)
	if err != nil {
		g.logger.Error("Failed to create Stripe payment intent",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Error(err))
		return nil, providerError("create_intent", err)
	}

	g.logger.Info("Created Stripe payment intent",
		zap.String("payment_intent_id", pi.ID),
		zap.String("status", string(pi.Status)))
	return toIntentResult(pi), nil
}

// CancelIntent cancels an intent that has not been captured. Cancelling an already canceled intent is not an error.
func (g *StripeGateway) CancelIntent(ctx context.Context, providerIntentID string) (*domain.IntentResult, error) {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx

	pi, err := g.intents.Cancel(providerIntentID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodePaymentIntentUnexpectedState {
			if current, getErr := g.intents.Get(providerIntentID, &stripe.PaymentIntentParams{Params: stripe.Params{Context: ctx}}); getErr == nil {
				return toIntentResult(current), nil
			}
		}
		g.logger.Warn("Failed to cancel Stripe payment intent",
			zap.String("payment_intent_id", providerIntentID),
			zap.Error(err))
		return nil, providerError("cancel_intent", err)
	}

	g.logger.Info("Canceled Stripe payment intent", zap.String("payment_intent_id", pi.ID))
	return toIntentResult(pi), nil
}

func toIntentResult(pi *stripe.PaymentIntent) *domain.IntentResult {
	return &domain.IntentResult{
		ProviderIntentID: pi.ID,
		ClientSecret:     pi.ClientSecret,
		Status:           domain.PaymentStatus(pi.Status),
	}
}

// providerError wraps a Stripe failure. Network failures, rate limits and 5xx responses are retryable.
func providerError(operation string, err error) *shared.ProviderError {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return shared.NewProviderError(providerStripe, operation, true, err)
	}
	retryable := stripeErr.HTTPStatusCode == http.StatusTooManyRequests ||
		stripeErr.HTTPStatusCode >= http.StatusInternalServerError ||
		stripeErr.Type == stripe.ErrorTypeAPI ||
		stripeErr.Code == stripe.ErrorCodeLockTimeout
	return shared.NewProviderError(providerStripe, operation, retryable, err)
}

var _ domain.Gateway = (*StripeGateway)(nil)
