package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	orderapp "github.com/marketplace/backend/internal/application/order"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/interfaces/http/dto"
)

// OrderQueries is the order read surface the handler needs
type OrderQueries interface {
	GetByID(ctx context.Context, id uuid.UUID) (*orderapp.OrderResponse, error)
	ListByCart(ctx context.Context, cartID uuid.UUID) ([]orderapp.OrderResponse, error)
	ListByStore(ctx context.Context, storeID uuid.UUID, filter shared.Filter) (shared.Paginated[orderapp.OrderResponse], error)
}

// OrderHandler serves orders to the shopper who paid and the vendor who fulfils them
type OrderHandler struct {
	BaseHandler
	orders OrderQueries
	carts  CartOwnership
	stores StoreLookup
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orders OrderQueries, carts CartOwnership, stores StoreLookup) *OrderHandler {
	return &OrderHandler{orders: orders, carts: carts, stores: stores}
}

// ListByCart returns the orders created from the cart's checkout
// GET /carts/:id/orders
func (h *OrderHandler) ListByCart(c *gin.Context) {
	owned, ok := ensureCartOwner(c, &h.BaseHandler, h.carts)
	if !ok {
		return
	}
	orders, err := h.orders.ListByCart(c.Request.Context(), owned.ID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, orders)
}

// ListByStore returns a page of a store's orders, newest first
// GET /stores/:id/orders
func (h *OrderHandler) ListByStore(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		h.Unauthorized(c, "Authentication required")
		return
	}
	storeID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	req := dto.DefaultListRequest()
	if err := c.ShouldBindQuery(&req); err != nil {
		h.HandleError(c, shared.NewValidationError("query", err.Error()))
		return
	}
	if _, err := ensureStoreOwner(c.Request.Context(), h.stores, storeID, userID); err != nil {
		h.HandleError(c, err)
		return
	}

	page, err := h.orders.ListByStore(c.Request.Context(), storeID, shared.Filter{
		Page:     req.Page,
		PageSize: req.PageSize,
		OrderBy:  req.OrderBy,
		OrderDir: req.OrderDir,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// Get returns an order to the shopper whose cart it came from or to the store's owner
// GET /orders/:id
func (h *OrderHandler) Get(c *gin.Context) {
	orderID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	o, err := h.orders.GetByID(ctx, orderID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if identity, ok := getIdentity(c); ok {
		_, err = h.carts.EnsureOwner(ctx, o.CartID, identity)
		if err == nil {
			h.Success(c, o)
			return
		}
		if !errors.Is(err, shared.ErrForbidden) && !errors.Is(err, shared.ErrNotFound) {
			h.HandleError(c, err)
			return
		}
	}
	if userID, ok := getUserID(c); ok {
		if _, err := ensureStoreOwner(ctx, h.stores, o.StoreID, userID); err == nil {
			h.Success(c, o)
			return
		}
	}
	// Orders the caller may not see are reported as missing
	h.NotFound(c, "Order not found")
}
