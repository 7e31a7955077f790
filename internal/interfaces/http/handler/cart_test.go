package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	cartapp "github.com/marketplace/backend/internal/application/cart"
	checkoutapp "github.com/marketplace/backend/internal/application/checkout"
	"github.com/marketplace/backend/internal/domain/cart"
	"github.com/marketplace/backend/internal/domain/checkout"
	"github.com/marketplace/backend/internal/domain/payment"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/interfaces/http/dto"
)

type mockCartService struct {
	mock.Mock
}

func cartResult(args mock.Arguments) (*cart.Cart, error) {
	if c, ok := args.Get(0).(*cart.Cart); ok {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCartService) EnsureOwner(ctx context.Context, cartID uuid.UUID, identity cart.Identity) (*cart.Cart, error) {
	return cartResult(m.Called(ctx, cartID, identity))
}

func (m *mockCartService) GetOrCreate(ctx context.Context, identity cart.Identity) (*cart.Cart, error) {
	return cartResult(m.Called(ctx, identity))
}

func (m *mockCartService) AddItem(ctx context.Context, cartID uuid.UUID, input cartapp.AddItemInput) (*cart.Cart, error) {
	return cartResult(m.Called(ctx, cartID, input))
}

func (m *mockCartService) UpdateItemQuantity(ctx context.Context, cartID uuid.UUID, input cartapp.UpdateItemInput) (*cart.Cart, error) {
	return cartResult(m.Called(ctx, cartID, input))
}

func (m *mockCartService) RemoveItem(ctx context.Context, cartID, productID uuid.UUID, expectedVersion int) (*cart.Cart, error) {
	return cartResult(m.Called(ctx, cartID, productID, expectedVersion))
}

func (m *mockCartService) MergeGuestCart(ctx context.Context, guestCartID, userCartID uuid.UUID) (*cart.Cart, error) {
	return cartResult(m.Called(ctx, guestCartID, userCartID))
}

type mockCheckoutService struct {
	mock.Mock
}

func (m *mockCheckoutService) Initiate(ctx context.Context, input checkoutapp.InitiateInput) (*checkoutapp.CheckoutResponse, error) {
	args := m.Called(ctx, input)
	if resp, ok := args.Get(0).(*checkoutapp.CheckoutResponse); ok {
		return resp, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCheckoutService) Abort(ctx context.Context, cartID uuid.UUID) (*cart.Cart, error) {
	return cartResult(m.Called(ctx, cartID))
}

func (m *mockCheckoutService) CurrentIntents(ctx context.Context, cartID uuid.UUID) ([]checkout.PaymentIntentRef, error) {
	args := m.Called(ctx, cartID)
	refs, _ := args.Get(0).([]checkout.PaymentIntentRef)
	return refs, args.Error(1)
}

func newGuestCart(t *testing.T, token string) *cart.Cart {
	t.Helper()
	c, err := cart.NewCart(cart.GuestIdentity(token), "USD")
	require.NoError(t, err)
	return c
}

func setupCartRouter(svc *mockCartService, identity *cart.Identity, userID *uuid.UUID) *gin.Engine {
	h := NewCartHandler(svc)
	router := newTestRouter(identity, userID)
	router.POST("/carts", h.GetOrCreate)
	router.POST("/carts/merge", h.Merge)
	router.GET("/carts/:id", h.Get)
	router.POST("/carts/:id/items", h.AddItem)
	router.PUT("/carts/:id/items/:product_id", h.UpdateItem)
	router.DELETE("/carts/:id/items/:product_id", h.RemoveItem)
	return router
}

func TestCartHandler_GetOrCreate(t *testing.T) {
	guest := cart.GuestIdentity("tok-1")
	c := newGuestCart(t, "tok-1")
	svc := new(mockCartService)
	svc.On("GetOrCreate", mock.Anything, guest).Return(c, nil)

	w := doJSON(setupCartRouter(svc, &guest, nil), http.MethodPost, "/carts", "")

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeResponse(t, w).Data.(map[string]any)
	assert.Equal(t, c.ID.String(), data["id"])
	svc.AssertExpectations(t)
}

func TestCartHandler_GetOrCreate_NoIdentity(t *testing.T) {
	svc := new(mockCartService)

	w := doJSON(setupCartRouter(svc, nil, nil), http.MethodPost, "/carts", "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	svc.AssertNotCalled(t, "GetOrCreate", mock.Anything, mock.Anything)
}

func TestCartHandler_Get_NotOwner(t *testing.T) {
	guest := cart.GuestIdentity("tok-1")
	cartID := uuid.New()
	svc := new(mockCartService)
	svc.On("EnsureOwner", mock.Anything, cartID, guest).Return(nil, shared.ErrForbidden)

	w := doJSON(setupCartRouter(svc, &guest, nil), http.MethodGet, "/carts/"+cartID.String(), "")

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, dto.ErrCodeForbidden, decodeResponse(t, w).Error.Code)
}

func TestCartHandler_AddItem(t *testing.T) {
	guest := cart.GuestIdentity("tok-1")
	c := newGuestCart(t, "tok-1")
	productID := uuid.New()

	t.Run("adds item", func(t *testing.T) {
		svc := new(mockCartService)
		svc.On("EnsureOwner", mock.Anything, c.ID, guest).Return(c, nil)
		svc.On("AddItem", mock.Anything, c.ID, cartapp.AddItemInput{
			ProductID:       productID,
			Quantity:        2,
			ExpectedVersion: 1,
		}).Return(c, nil)

		body := `{"product_id":"` + productID.String() + `","quantity":2,"expected_version":1}`
		w := doJSON(setupCartRouter(svc, &guest, nil), http.MethodPost, "/carts/"+c.ID.String()+"/items", body)

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("rejects zero quantity", func(t *testing.T) {
		svc := new(mockCartService)
		svc.On("EnsureOwner", mock.Anything, c.ID, guest).Return(c, nil)

		body := `{"product_id":"` + productID.String() + `","quantity":0}`
		w := doJSON(setupCartRouter(svc, &guest, nil), http.MethodPost, "/carts/"+c.ID.String()+"/items", body)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
		svc.AssertNotCalled(t, "AddItem", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("locked cart", func(t *testing.T) {
		svc := new(mockCartService)
		svc.On("EnsureOwner", mock.Anything, c.ID, guest).Return(c, nil)
		svc.On("AddItem", mock.Anything, c.ID, mock.Anything).
			Return(nil, &cart.CartLockedError{CartID: c.ID, CheckoutID: uuid.New()})

		body := `{"product_id":"` + productID.String() + `","quantity":1}`
		w := doJSON(setupCartRouter(svc, &guest, nil), http.MethodPost, "/carts/"+c.ID.String()+"/items", body)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, dto.ErrCodeCartLocked, decodeResponse(t, w).Error.Code)
	})
}

func TestCartHandler_UpdateItem_ZeroRemoves(t *testing.T) {
	guest := cart.GuestIdentity("tok-1")
	c := newGuestCart(t, "tok-1")
	productID := uuid.New()
	svc := new(mockCartService)
	svc.On("EnsureOwner", mock.Anything, c.ID, guest).Return(c, nil)
	svc.On("UpdateItemQuantity", mock.Anything, c.ID, cartapp.UpdateItemInput{
		ProductID:       productID,
		Quantity:        0,
		ExpectedVersion: 3,
	}).Return(c, nil)

	w := doJSON(setupCartRouter(svc, &guest, nil), http.MethodPut,
		"/carts/"+c.ID.String()+"/items/"+productID.String(), `{"quantity":0,"expected_version":3}`)

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestCartHandler_RemoveItem(t *testing.T) {
	guest := cart.GuestIdentity("tok-1")
	c := newGuestCart(t, "tok-1")
	productID := uuid.New()
	path := "/carts/" + c.ID.String() + "/items/" + productID.String()

	t.Run("requires expected version", func(t *testing.T) {
		svc := new(mockCartService)
		svc.On("EnsureOwner", mock.Anything, c.ID, guest).Return(c, nil)

		w := doJSON(setupCartRouter(svc, &guest, nil), http.MethodDelete, path, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidInput, decodeResponse(t, w).Error.Code)
	})

	t.Run("stale version", func(t *testing.T) {
		svc := new(mockCartService)
		svc.On("EnsureOwner", mock.Anything, c.ID, guest).Return(c, nil)
		svc.On("RemoveItem", mock.Anything, c.ID, productID, 2).
			Return(nil, shared.NewVersionConflictError("cart", c.ID.String(), 2, 5))

		w := doJSON(setupCartRouter(svc, &guest, nil), http.MethodDelete, path+"?expected_version=2", "")
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, dto.ErrCodeVersionConflict, decodeResponse(t, w).Error.Code)
	})
}

func TestCartHandler_Merge(t *testing.T) {
	userID := uuid.New()
	user := cart.UserIdentity(userID)
	guestCart := newGuestCart(t, "guest-tok")
	userCart, err := cart.NewCart(user, "USD")
	require.NoError(t, err)
	body := `{"guest_cart_id":"` + guestCart.ID.String() + `","guest_token":"guest-tok"}`

	t.Run("requires sign in", func(t *testing.T) {
		guest := cart.GuestIdentity("guest-tok")
		svc := new(mockCartService)

		w := doJSON(setupCartRouter(svc, &guest, nil), http.MethodPost, "/carts/merge", body)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		svc.AssertNotCalled(t, "MergeGuestCart", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("merges into user cart", func(t *testing.T) {
		svc := new(mockCartService)
		svc.On("EnsureOwner", mock.Anything, guestCart.ID, cart.GuestIdentity("guest-tok")).Return(guestCart, nil)
		svc.On("GetOrCreate", mock.Anything, user).Return(userCart, nil)
		svc.On("MergeGuestCart", mock.Anything, guestCart.ID, userCart.ID).Return(userCart, nil)

		w := doJSON(setupCartRouter(svc, &user, &userID), http.MethodPost, "/carts/merge", body)
		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})
}

func setupCheckoutRouter(carts *mockCartService, svc *mockCheckoutService, identity *cart.Identity) *gin.Engine {
	h := NewCheckoutHandler(carts, svc)
	router := newTestRouter(identity, nil)
	router.POST("/carts/:id/checkout", h.Initiate)
	router.POST("/carts/:id/checkout/abort", h.Abort)
	router.GET("/carts/:id/checkout/intents", h.Intents)
	return router
}

func TestCheckoutHandler_Initiate(t *testing.T) {
	guest := cart.GuestIdentity("tok-1")
	c := newGuestCart(t, "tok-1")
	storeID := uuid.New()

	t.Run("creates intents", func(t *testing.T) {
		carts := new(mockCartService)
		carts.On("EnsureOwner", mock.Anything, c.ID, guest).Return(c, nil)
		svc := new(mockCheckoutService)
		svc.On("Initiate", mock.Anything, mock.MatchedBy(func(in checkoutapp.InitiateInput) bool {
			return in.CartID == c.ID &&
				in.ExpectedVersion == 4 &&
				in.Destination.Country == "US" &&
				in.Selections[storeID] == "ground"
		})).Return(&checkoutapp.CheckoutResponse{CartID: c.ID, CheckoutID: uuid.New(), Attempt: 1}, nil)

		body := `{"expected_version":4,"destination":{"country":"US","postal_code":"94107"},"selections":{"` + storeID.String() + `":"ground"}}`
		w := doJSON(setupCheckoutRouter(carts, svc, &guest), http.MethodPost, "/carts/"+c.ID.String()+"/checkout", body)

		assert.Equal(t, http.StatusCreated, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("rejects selection keyed by non uuid", func(t *testing.T) {
		carts := new(mockCartService)
		carts.On("EnsureOwner", mock.Anything, c.ID, guest).Return(c, nil)
		svc := new(mockCheckoutService)

		body := `{"expected_version":4,"destination":{"country":"US","postal_code":"94107"},"selections":{"acme":"ground"}}`
		w := doJSON(setupCheckoutRouter(carts, svc, &guest), http.MethodPost, "/carts/"+c.ID.String()+"/checkout", body)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "Initiate", mock.Anything, mock.Anything)
	})

	t.Run("rejects unknown country", func(t *testing.T) {
		carts := new(mockCartService)
		carts.On("EnsureOwner", mock.Anything, c.ID, guest).Return(c, nil)
		svc := new(mockCheckoutService)

		body := `{"expected_version":4,"destination":{"country":"USA","postal_code":"94107"}}`
		w := doJSON(setupCheckoutRouter(carts, svc, &guest), http.MethodPost, "/carts/"+c.ID.String()+"/checkout", body)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeValidation, decodeResponse(t, w).Error.Code)
	})

	t.Run("price drift", func(t *testing.T) {
		carts := new(mockCartService)
		carts.On("EnsureOwner", mock.Anything, c.ID, guest).Return(c, nil)
		svc := new(mockCheckoutService)
		svc.On("Initiate", mock.Anything, mock.Anything).Return(nil, &checkout.PriceMismatchError{
			ProductID:    uuid.New(),
			CartPrice:    decimal.NewFromInt(10),
			CurrentPrice: decimal.NewFromInt(12),
		})

		body := `{"expected_version":4,"destination":{"country":"US","postal_code":"94107"}}`
		w := doJSON(setupCheckoutRouter(carts, svc, &guest), http.MethodPost, "/carts/"+c.ID.String()+"/checkout", body)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, dto.ErrCodePriceMismatch, decodeResponse(t, w).Error.Code)
	})
}

func TestCheckoutHandler_AbortAndIntents(t *testing.T) {
	guest := cart.GuestIdentity("tok-1")
	c := newGuestCart(t, "tok-1")
	carts := new(mockCartService)
	carts.On("EnsureOwner", mock.Anything, c.ID, guest).Return(c, nil)
	svc := new(mockCheckoutService)
	svc.On("Abort", mock.Anything, c.ID).Return(c, nil)
	svc.On("CurrentIntents", mock.Anything, c.ID).Return([]checkout.PaymentIntentRef{{
		PaymentIntentID:  uuid.New(),
		ProviderIntentID: "pi_123",
		ClientSecret:     "pi_123_secret",
		StoreID:          uuid.New(),
		Amount:           decimal.NewFromInt(25),
		Currency:         "USD",
		Status:           payment.StatusCreated,
	}}, nil)
	router := setupCheckoutRouter(carts, svc, &guest)

	w := doJSON(router, http.MethodPost, "/carts/"+c.ID.String()+"/checkout/abort", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/carts/"+c.ID.String()+"/checkout/intents", "")
	assert.Equal(t, http.StatusOK, w.Code)
	intents := decodeResponse(t, w).Data.([]any)
	require.Len(t, intents, 1)
	assert.Equal(t, "pi_123_secret", intents[0].(map[string]any)["client_secret"])
	svc.AssertExpectations(t)
}
