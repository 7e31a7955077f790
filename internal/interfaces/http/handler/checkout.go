package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	cartapp "github.com/marketplace/backend/internal/application/cart"
	checkoutapp "github.com/marketplace/backend/internal/application/checkout"
	"github.com/marketplace/backend/internal/domain/cart"
	"github.com/marketplace/backend/internal/domain/checkout"
	"github.com/marketplace/backend/internal/domain/shipping"
	"github.com/marketplace/backend/internal/interfaces/http/dto"
)

// CheckoutUseCases is the checkout service surface the handler needs
type CheckoutUseCases interface {
	Initiate(ctx context.Context, input checkoutapp.InitiateInput) (*checkoutapp.CheckoutResponse, error)
	Abort(ctx context.Context, cartID uuid.UUID) (*cart.Cart, error)
	CurrentIntents(ctx context.Context, cartID uuid.UUID) ([]checkout.PaymentIntentRef, error)
}

// CheckoutHandler handles checkout endpoints
type CheckoutHandler struct {
	BaseHandler
	carts    CartOwnership
	checkout CheckoutUseCases
}

// NewCheckoutHandler creates a new CheckoutHandler
func NewCheckoutHandler(carts CartOwnership, checkout CheckoutUseCases) *CheckoutHandler {
	return &CheckoutHandler{carts: carts, checkout: checkout}
}

// DestinationRequest is a shipping address
type DestinationRequest struct {
	Country    string `json:"country" binding:"required,country"`
	PostalCode string `json:"postal_code" binding:"required,max=16"`
	State      string `json:"state" binding:"max=64"`
	City       string `json:"city" binding:"max=128"`
	Line1      string `json:"line1" binding:"max=256"`
	Line2      string `json:"line2" binding:"max=256"`
}

// InitiateCheckoutRequest starts a checkout of the cart version the client last saw
type InitiateCheckoutRequest struct {
	ExpectedVersion int                `json:"expected_version" binding:"min=0"`
	Destination     DestinationRequest `json:"destination" binding:"required"`
	// Selections maps store id to a shipping option id from a previous quote
	Selections map[string]string `json:"selections"`
}

// Initiate splits the cart by vendor and creates one payment intent per vendor
// POST /carts/:id/checkout
func (h *CheckoutHandler) Initiate(c *gin.Context) {
	owned, ok := ensureCartOwner(c, &h.BaseHandler, h.carts)
	if !ok {
		return
	}
	var req InitiateCheckoutRequest
	if !h.BindJSON(c, &req) {
		return
	}

	selections := make(map[uuid.UUID]string, len(req.Selections))
	for storeID, optionID := range req.Selections {
		id, err := uuid.Parse(storeID)
		if err != nil {
			h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, "selections must be keyed by store id")
			return
		}
		selections[id] = optionID
	}

	resp, err := h.checkout.Initiate(c.Request.Context(), checkoutapp.InitiateInput{
		CartID:          owned.ID,
		ExpectedVersion: req.ExpectedVersion,
		Destination: shipping.Destination{
			Country:    req.Destination.Country,
			PostalCode: req.Destination.PostalCode,
			State:      req.Destination.State,
			City:       req.Destination.City,
			Line1:      req.Destination.Line1,
			Line2:      req.Destination.Line2,
		},
		Selections: selections,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// Abort cancels the in-flight checkout and unlocks the cart
// POST /carts/:id/checkout/abort
func (h *CheckoutHandler) Abort(c *gin.Context) {
	owned, ok := ensureCartOwner(c, &h.BaseHandler, h.carts)
	if !ok {
		return
	}
	result, err := h.checkout.Abort(c.Request.Context(), owned.ID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, cartapp.ToCartResponse(result))
}

// Intents returns the payment intents of the in-flight checkout so a client can resume it
// GET /carts/:id/checkout/intents
func (h *CheckoutHandler) Intents(c *gin.Context) {
	owned, ok := ensureCartOwner(c, &h.BaseHandler, h.carts)
	if !ok {
		return
	}
	refs, err := h.checkout.CurrentIntents(c.Request.Context(), owned.ID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, checkoutapp.ToIntentResponses(refs))
}
