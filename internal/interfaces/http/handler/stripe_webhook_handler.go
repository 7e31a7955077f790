package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	paymentapp "github.com/marketplace/backend/internal/application/payment"
	"github.com/marketplace/backend/internal/infrastructure/logger"
)

// Maximum webhook payload size (64KB - Stripe webhooks are typically small)
const maxWebhookPayloadSize = 65536

// WebhookProcessor verifies and applies provider webhook payloads
type WebhookProcessor interface {
	ProcessWebhook(ctx context.Context, payload []byte, signature string) (*paymentapp.WebhookResult, error)
}

// StripeWebhookHandler handles Stripe webhook endpoints.
// These endpoints are called by Stripe and do not require authentication.
type StripeWebhookHandler struct {
	BaseHandler
	webhooks WebhookProcessor
}

// NewStripeWebhookHandler creates a new StripeWebhookHandler
func NewStripeWebhookHandler(webhooks WebhookProcessor) *StripeWebhookHandler {
	return &StripeWebhookHandler{webhooks: webhooks}
}

// StripeWebhookResponse is the acknowledgement returned to Stripe
type StripeWebhookResponse struct {
	Received  bool   `json:"received"`
	EventID   string `json:"event_id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	Message   string `json:"message,omitempty"`
}

// HandleStripeWebhook receives payment intent and subscription events.
// Stale and duplicate events are acknowledged with 200; processing failures
// return 500 so Stripe redelivers.
// POST /webhooks/stripe
func (h *StripeWebhookHandler) HandleStripeWebhook(c *gin.Context) {
	// Stripe requires the raw body for signature verification
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookPayloadSize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, StripeWebhookResponse{Message: "Failed to read request body"})
		return
	}
	if len(payload) > maxWebhookPayloadSize {
		c.JSON(http.StatusRequestEntityTooLarge, StripeWebhookResponse{Message: "Payload too large"})
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if signature == "" {
		c.JSON(http.StatusUnauthorized, StripeWebhookResponse{Message: "Missing Stripe-Signature header"})
		return
	}

	result, err := h.webhooks.ProcessWebhook(c.Request.Context(), payload, signature)
	if err != nil {
		if errors.Is(err, paymentapp.ErrInvalidSignature) {
			c.JSON(http.StatusUnauthorized, StripeWebhookResponse{Message: "Webhook signature verification failed"})
			return
		}
		resp := StripeWebhookResponse{Message: "Webhook processing failed"}
		if result != nil {
			resp.EventID = result.EventID
			resp.EventType = result.EventType
		}
		logger.L(c.Request.Context()).Error("Stripe webhook processing failed",
			zap.String("event_id", resp.EventID),
			zap.String("event_type", resp.EventType),
			zap.Error(err))
		// Internal error details are not echoed back to the caller
		c.JSON(http.StatusInternalServerError, resp)
		return
	}

	c.JSON(http.StatusOK, StripeWebhookResponse{
		Received:  true,
		EventID:   result.EventID,
		EventType: result.EventType,
		Outcome:   result.Outcome,
		Message:   result.Message,
	})
}
