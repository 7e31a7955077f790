package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"

	"github.com/marketplace/backend/internal/application/subscription"
	"github.com/marketplace/backend/internal/domain/payment"
)

// ErrInvalidSignature is returned when a webhook payload fails signature verification
var ErrInvalidSignature = errors.New("webhook signature verification failed")

// EventSubmitter hands a provider event to the per-intent pipeline
type EventSubmitter interface {
	Submit(ctx context.Context, evt payment.ProviderEvent) (payment.Outcome, error)
}

// SubscriptionSyncer applies provider subscription changes
type SubscriptionSyncer interface {
	Sync(ctx context.Context, ps subscription.ProviderSubscription) error
}

// StripeWebhookService verifies and routes Stripe webhook events
type StripeWebhookService struct {
	webhookSecret string
	events        EventSubmitter
	subscriptions SubscriptionSyncer
	timeout       time.Duration
	logger        *zap.Logger
}

// StripeWebhookServiceConfig contains configuration for StripeWebhookService
type StripeWebhookServiceConfig struct {
	WebhookSecret string
	Events        EventSubmitter
	Subscriptions SubscriptionSyncer
	// Timeout bounds the processing of one event. Zero means no bound beyond the request context.
	Timeout       time.Duration
	Logger        *zap.Logger
}

// NewStripeWebhookService creates a new StripeWebhookService
func NewStripeWebhookService(cfg StripeWebhookServiceConfig) *StripeWebhookService {
	return &StripeWebhookService{
		webhookSecret: cfg.WebhookSecret,
		events:        cfg.Events,
		subscriptions: cfg.Subscriptions,
		timeout:       cfg.Timeout,
		logger:        cfg.Logger,
	}
}

// WebhookResult contains the result of processing a webhook
type WebhookResult struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Processed bool   `json:"processed"`
	Outcome   string `json:"outcome,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ProcessWebhook verifies the payload signature and processes the event.
// Stale and duplicate events are reported in the result, not as errors.
func (s *StripeWebhookService) ProcessWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		s.logger.Warn("Failed to verify webhook signature", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.HandleEvent(ctx, event)
}

// HandleEvent processes an already verified event
func (s *StripeWebhookService) HandleEvent(ctx context.Context, event stripe.Event) (*WebhookResult, error) {
	s.logger.Debug("Processing Stripe webhook event",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)))

	result := &WebhookResult{
		EventID:   event.ID,
		EventType: string(event.Type),
		Processed: true,
	}

	var err error
	switch {
	case strings.HasPrefix(string(event.Type), "payment_intent."):
		var outcome payment.Outcome
		outcome, err = s.handlePaymentIntent(ctx, event)
		result.Outcome = string(outcome)
	case event.Type == "customer.subscription.created",
		event.Type == "customer.subscription.updated",
		event.Type == "customer.subscription.deleted":
		err = s.handleSubscription(ctx, event)
	default:
		result.Message = "Event type not handled"
	}

	if err != nil {
		s.logger.Error("Failed to process webhook event",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
		result.Processed = false
		result.Message = err.Error()
		return result, err
	}
	return result, nil
}

func (s *StripeWebhookService) handlePaymentIntent(ctx context.Context, event stripe.Event) (payment.Outcome, error) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return "", fmt.Errorf("failed to unmarshal payment intent: %w", err)
	}
	return s.events.Submit(ctx, payment.ProviderEvent{
		EventID:          event.ID,
		Type:             string(event.Type),
		ProviderIntentID: intent.ID,
		Status:           payment.PaymentStatus(intent.Status),
		Sequence:         event.Created,
		OccurredAt:       time.Unix(event.Created, 0).UTC(),
	})
}

func (s *StripeWebhookService) handleSubscription(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	ps := subscription.ProviderSubscription{
		ProviderSubscriptionID: sub.ID,
		Status:                 string(sub.Status),
		Deleted:                event.Type == "customer.subscription.deleted",
	}
	if sub.Customer != nil {
		ps.ProviderCustomerID = sub.Customer.ID
	}
	if raw := sub.Metadata["owner_id"]; raw != "" {
		ownerID, err := uuid.Parse(raw)
		if err != nil {
			s.logger.Warn("Subscription owner_id metadata is not a UUID",
				zap.String("subscription_id", sub.ID), zap.String("owner_id", raw))
		} else {
			ps.OwnerID = ownerID
		}
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		ps.PriceRef = sub.Items.Data[0].Price.ID
	}
	if sub.CurrentPeriodEnd > 0 {
		end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		ps.CurrentPeriodEnd = &end
	}
	return s.subscriptions.Sync(ctx, ps)
}
