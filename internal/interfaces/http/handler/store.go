package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/marketplace/backend/internal/application/subscription"
	"github.com/marketplace/backend/internal/domain/catalog"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/domain/vendor"
)

// StoreLookup reads stores
type StoreLookup interface {
	GetStore(ctx context.Context, storeID uuid.UUID) (*vendor.Store, error)
}

// StoreUseCases is the store admin surface the handler needs
type StoreUseCases interface {
	StoreLookup
	CreateStore(ctx context.Context, ownerID uuid.UUID, input subscription.CreateStoreInput) (*vendor.Store, error)
	CreateProduct(ctx context.Context, ownerID, storeID uuid.UUID, input subscription.CreateProductInput) (*catalog.Product, error)
	ActivateStore(ctx context.Context, ownerID, storeID uuid.UUID, expectedVersion int) (*vendor.Store, error)
	DeactivateStore(ctx context.Context, ownerID, storeID uuid.UUID, expectedVersion int) (*vendor.Store, error)
	ListStores(ctx context.Context, ownerID uuid.UUID) ([]vendor.Store, error)
	ListProducts(ctx context.Context, storeID uuid.UUID) ([]catalog.Product, error)
}

// PlanUsageQuery reports an owner's plan usage
type PlanUsageQuery interface {
	PlanUsage(ctx context.Context, ownerID uuid.UUID) (*subscription.PlanUsageResponse, error)
}

// StoreHandler handles vendor store and product administration
type StoreHandler struct {
	BaseHandler
	stores StoreUseCases
	usage  PlanUsageQuery
}

// NewStoreHandler creates a new StoreHandler
func NewStoreHandler(stores StoreUseCases, usage PlanUsageQuery) *StoreHandler {
	return &StoreHandler{stores: stores, usage: usage}
}

// CreateStoreRequest opens a store
type CreateStoreRequest struct {
	Name             string `json:"name" binding:"required,min=1,max=200"`
	PaymentAccountID string `json:"payment_account_id" binding:"max=255"`
	ShipFromCountry  string `json:"ship_from_country" binding:"omitempty,country"`
	ShipFromPostal   string `json:"ship_from_postal_code" binding:"max=16"`
}

// CreateProductRequest lists a product
type CreateProductRequest struct {
	Name     string          `json:"name" binding:"required,min=1,max=200"`
	Price    decimal.Decimal `json:"price" binding:"gt=0"`
	Currency string          `json:"currency" binding:"required,len=3"`
	Stock    int             `json:"stock" binding:"min=0"`
}

// VersionedRequest carries the version the client last saw
type VersionedRequest struct {
	ExpectedVersion int `json:"expected_version" binding:"min=0"`
}

// Create opens a store for the caller, subject to plan limits
// POST /stores
func (h *StoreHandler) Create(c *gin.Context) {
	ownerID, ok := h.requireUser(c)
	if !ok {
		return
	}
	var req CreateStoreRequest
	if !h.BindJSON(c, &req) {
		return
	}
	store, err := h.stores.CreateStore(c.Request.Context(), ownerID, subscription.CreateStoreInput{
		Name:             req.Name,
		PaymentAccountID: req.PaymentAccountID,
		ShipFromCountry:  req.ShipFromCountry,
		ShipFromPostal:   req.ShipFromPostal,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, subscription.ToStoreResponse(store))
}

// ListMine returns the caller's stores
// GET /stores
func (h *StoreHandler) ListMine(c *gin.Context) {
	ownerID, ok := h.requireUser(c)
	if !ok {
		return
	}
	stores, err := h.stores.ListStores(c.Request.Context(), ownerID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]subscription.StoreResponse, len(stores))
	for i := range stores {
		out[i] = subscription.ToStoreResponse(&stores[i])
	}
	h.Success(c, out)
}

// Get returns a store
// GET /stores/:id
func (h *StoreHandler) Get(c *gin.Context) {
	storeID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	store, err := h.stores.GetStore(c.Request.Context(), storeID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	resp := subscription.ToStoreResponse(store)
	if userID, ok := getUserID(c); !ok || userID != store.OwnerID {
		resp.PaymentAccountID = ""
	}
	h.Success(c, resp)
}

// CreateProduct lists a product in one of the caller's stores, subject to plan limits
// POST /stores/:id/products
func (h *StoreHandler) CreateProduct(c *gin.Context) {
	ownerID, ok := h.requireUser(c)
	if !ok {
		return
	}
	storeID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req CreateProductRequest
	if !h.BindJSON(c, &req) {
		return
	}
	product, err := h.stores.CreateProduct(c.Request.Context(), ownerID, storeID, subscription.CreateProductInput{
		Name:     req.Name,
		Price:    req.Price,
		Currency: req.Currency,
		Stock:    req.Stock,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, subscription.ToProductResponse(product))
}

// ListProducts returns a store's products
// GET /stores/:id/products
func (h *StoreHandler) ListProducts(c *gin.Context) {
	storeID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	products, err := h.stores.ListProducts(c.Request.Context(), storeID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]subscription.ProductResponse, len(products))
	for i := range products {
		out[i] = subscription.ToProductResponse(&products[i])
	}
	h.Success(c, out)
}

// Activate re-enables a store for checkout
// POST /stores/:id/activate
func (h *StoreHandler) Activate(c *gin.Context) {
	h.setActive(c, h.stores.ActivateStore)
}

// Deactivate stops a store from receiving new checkouts
// POST /stores/:id/deactivate
func (h *StoreHandler) Deactivate(c *gin.Context) {
	h.setActive(c, h.stores.DeactivateStore)
}

func (h *StoreHandler) setActive(c *gin.Context, apply func(ctx context.Context, ownerID, storeID uuid.UUID, expectedVersion int) (*vendor.Store, error)) {
	ownerID, ok := h.requireUser(c)
	if !ok {
		return
	}
	storeID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req VersionedRequest
	if !h.BindJSON(c, &req) {
		return
	}
	store, err := apply(c.Request.Context(), ownerID, storeID, req.ExpectedVersion)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, subscription.ToStoreResponse(store))
}

// PlanUsage reports the caller's subscription tier and how much of it is used
// GET /subscription/usage
func (h *StoreHandler) PlanUsage(c *gin.Context) {
	ownerID, ok := h.requireUser(c)
	if !ok {
		return
	}
	usage, err := h.usage.PlanUsage(c.Request.Context(), ownerID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, usage)
}

func (h *StoreHandler) requireUser(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := getUserID(c)
	if !ok {
		h.Unauthorized(c, "Authentication required")
	}
	return userID, ok
}

// ensureStoreOwner loads a store and checks the user owns it
func ensureStoreOwner(ctx context.Context, stores StoreLookup, storeID, userID uuid.UUID) (*vendor.Store, error) {
	store, err := stores.GetStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if store.OwnerID != userID {
		return nil, shared.ErrForbidden
	}
	return store, nil
}
