package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketplace/backend/internal/domain/cart"
	"github.com/marketplace/backend/internal/domain/checkout"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/domain/vendor"
	"github.com/marketplace/backend/internal/interfaces/http/dto"
	"github.com/marketplace/backend/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

// newTestRouter returns an engine that injects the given caller before the route handler
func newTestRouter(identity *cart.Identity, userID *uuid.UUID) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RequestID(), func(c *gin.Context) {
		if identity != nil {
			c.Set(middleware.CartIdentityKey, *identity)
		}
		if userID != nil {
			c.Set(middleware.JWTUserIDKey, *userID)
		}
		c.Next()
	})
	return router
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantDetail string
	}{
		{"validation", shared.NewValidationError("quantity", "must be at least 1"), http.StatusBadRequest, dto.ErrCodeValidation, "field"},
		{"version conflict", shared.NewVersionConflictError("cart", "c1", 3, 4), http.StatusConflict, dto.ErrCodeVersionConflict, "expected_version"},
		{"cart locked", &cart.CartLockedError{CartID: uuid.New(), CheckoutID: uuid.New()}, http.StatusConflict, dto.ErrCodeCartLocked, ""},
		{"quota", &vendor.QuotaExceededError{Resource: vendor.ResourceStores, Limit: 1, Current: 1, Tier: vendor.PlanTier("free")}, http.StatusForbidden, dto.ErrCodeQuotaExceeded, ""},
		{"price mismatch", &checkout.PriceMismatchError{ProductID: uuid.New(), CartPrice: decimal.NewFromInt(5), CurrentPrice: decimal.NewFromInt(6)}, http.StatusConflict, dto.ErrCodePriceMismatch, ""},
		{"provider", shared.NewProviderError("stripe", "create_intent", true, errors.New("timeout")), http.StatusBadGateway, dto.ErrCodeProviderUnavailable, "retryable"},
		{"wrapped not found", fmt.Errorf("load: %w", shared.ErrNotFound), http.StatusNotFound, dto.ErrCodeNotFound, ""},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, dto.ErrCodeInternal, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &BaseHandler{}
			router := gin.New()
			router.Use(middleware.RequestID())
			router.GET("/test", func(c *gin.Context) { h.HandleError(c, tt.err) })

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.RequestID)
			if tt.wantDetail != "" {
				assert.Contains(t, resp.Error.Details, tt.wantDetail)
			}
		})
	}
}

func TestParseUUIDParam(t *testing.T) {
	h := &BaseHandler{}
	router := gin.New()
	router.GET("/carts/:id", func(c *gin.Context) {
		id, ok := h.parseUUIDParam(c, "id")
		if !ok {
			return
		}
		c.String(http.StatusOK, id.String())
	})

	id := uuid.New()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/carts/"+id.String(), nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id.String(), w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/carts/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeInvalidInput, decodeResponse(t, w).Error.Code)
}
