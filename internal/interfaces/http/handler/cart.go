package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	cartapp "github.com/marketplace/backend/internal/application/cart"
	"github.com/marketplace/backend/internal/domain/cart"
	"github.com/marketplace/backend/internal/interfaces/http/dto"
)

// CartOwnership resolves a cart the caller is allowed to act on
type CartOwnership interface {
	EnsureOwner(ctx context.Context, cartID uuid.UUID, identity cart.Identity) (*cart.Cart, error)
}

// CartUseCases is the cart service surface the handler needs
type CartUseCases interface {
	CartOwnership
	GetOrCreate(ctx context.Context, identity cart.Identity) (*cart.Cart, error)
	AddItem(ctx context.Context, cartID uuid.UUID, input cartapp.AddItemInput) (*cart.Cart, error)
	UpdateItemQuantity(ctx context.Context, cartID uuid.UUID, input cartapp.UpdateItemInput) (*cart.Cart, error)
	RemoveItem(ctx context.Context, cartID, productID uuid.UUID, expectedVersion int) (*cart.Cart, error)
	MergeGuestCart(ctx context.Context, guestCartID, userCartID uuid.UUID) (*cart.Cart, error)
}

// CartHandler handles cart endpoints
type CartHandler struct {
	BaseHandler
	carts CartUseCases
}

// NewCartHandler creates a new CartHandler
func NewCartHandler(carts CartUseCases) *CartHandler {
	return &CartHandler{carts: carts}
}

// AddItemRequest adds a product to the cart
type AddItemRequest struct {
	ProductID       string `json:"product_id" binding:"required,uuid"`
	Quantity        int    `json:"quantity" binding:"required,min=1"`
	ExpectedVersion int    `json:"expected_version" binding:"min=0"`
}

// UpdateItemRequest sets an absolute line quantity; zero removes the line
type UpdateItemRequest struct {
	Quantity        int `json:"quantity" binding:"min=0"`
	ExpectedVersion int `json:"expected_version" binding:"min=0"`
}

// MergeCartRequest names the guest cart to fold into the signed-in user's cart
type MergeCartRequest struct {
	GuestCartID string `json:"guest_cart_id" binding:"required,uuid"`
	GuestToken  string `json:"guest_token" binding:"required,max=128"`
}

// GetOrCreate returns the caller's open cart, creating it on first use
// POST /carts
func (h *CartHandler) GetOrCreate(c *gin.Context) {
	identity, ok := getIdentity(c)
	if !ok {
		h.Unauthorized(c, "No cart identity")
		return
	}
	result, err := h.carts.GetOrCreate(c.Request.Context(), identity)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, cartapp.ToCartResponse(result))
}

// Get returns a cart owned by the caller
// GET /carts/:id
func (h *CartHandler) Get(c *gin.Context) {
	result, ok := h.ownedCart(c)
	if !ok {
		return
	}
	h.Success(c, cartapp.ToCartResponse(result))
}

// AddItem adds a product or increments its quantity
// POST /carts/:id/items
func (h *CartHandler) AddItem(c *gin.Context) {
	owned, ok := h.ownedCart(c)
	if !ok {
		return
	}
	var req AddItemRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.carts.AddItem(c.Request.Context(), owned.ID, cartapp.AddItemInput{
		ProductID:       uuid.MustParse(req.ProductID),
		Quantity:        req.Quantity,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, cartapp.ToCartResponse(result))
}

// UpdateItem sets a line's quantity
// PUT /carts/:id/items/:product_id
func (h *CartHandler) UpdateItem(c *gin.Context) {
	owned, ok := h.ownedCart(c)
	if !ok {
		return
	}
	productID, ok := h.parseUUIDParam(c, "product_id")
	if !ok {
		return
	}
	var req UpdateItemRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.carts.UpdateItemQuantity(c.Request.Context(), owned.ID, cartapp.UpdateItemInput{
		ProductID:       productID,
		Quantity:        req.Quantity,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, cartapp.ToCartResponse(result))
}

// RemoveItem drops a line from the cart
// DELETE /carts/:id/items/:product_id?expected_version=N
func (h *CartHandler) RemoveItem(c *gin.Context) {
	owned, ok := h.ownedCart(c)
	if !ok {
		return
	}
	productID, ok := h.parseUUIDParam(c, "product_id")
	if !ok {
		return
	}
	expected, err := strconv.Atoi(c.Query("expected_version"))
	if err != nil || expected < 0 {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, "expected_version query parameter is required")
		return
	}

	result, err := h.carts.RemoveItem(c.Request.Context(), owned.ID, productID, expected)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, cartapp.ToCartResponse(result))
}

// Merge folds a guest cart into the signed-in user's cart. The guest token proves
// the caller owned the guest cart.
// POST /carts/merge
func (h *CartHandler) Merge(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		h.Unauthorized(c, "Sign in to merge a guest cart")
		return
	}
	var req MergeCartRequest
	if !h.BindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()

	guestCart, err := h.carts.EnsureOwner(ctx, uuid.MustParse(req.GuestCartID), cart.GuestIdentity(req.GuestToken))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	userCart, err := h.carts.GetOrCreate(ctx, cart.UserIdentity(userID))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	result, err := h.carts.MergeGuestCart(ctx, guestCart.ID, userCart.ID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, cartapp.ToCartResponse(result))
}

// ownedCart loads the :id cart and checks the caller owns it, writing the error response if not
func (h *CartHandler) ownedCart(c *gin.Context) (*cart.Cart, bool) {
	return ensureCartOwner(c, &h.BaseHandler, h.carts)
}

func ensureCartOwner(c *gin.Context, h *BaseHandler, owners CartOwnership) (*cart.Cart, bool) {
	cartID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return nil, false
	}
	identity, ok := getIdentity(c)
	if !ok {
		h.Unauthorized(c, "No cart identity")
		return nil, false
	}
	owned, err := owners.EnsureOwner(c.Request.Context(), cartID, identity)
	if err != nil {
		h.HandleError(c, err)
		return nil, false
	}
	return owned, true
}
