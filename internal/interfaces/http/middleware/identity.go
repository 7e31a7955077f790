package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/marketplace/backend/internal/domain/cart"
	"github.com/marketplace/backend/internal/infrastructure/logger"
	"github.com/marketplace/backend/internal/interfaces/http/dto"
)

// GuestTokenHeader carries an anonymous shopper's cart token
const GuestTokenHeader = "X-Guest-Token"

// CartIdentityKey is the gin context key holding the resolved cart.Identity
const CartIdentityKey = "cart_identity"

const maxGuestTokenLength = 128

// CartIdentity resolves who owns the cart for this request. An authenticated user
// wins over a guest token. Anonymous callers without a token get a fresh one,
// returned in the X-Guest-Token response header. Run after OptionalJWTAuth.
func CartIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		var identity cart.Identity
		if userID, ok := GetJWTUserID(c); ok {
			identity = cart.UserIdentity(userID)
		} else {
			token := c.GetHeader(GuestTokenHeader)
			if len(token) > maxGuestTokenLength {
				c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponseWithRequestID(
					dto.ErrCodeInvalidInput, "Guest token is too long", GetRequestID(c)))
				return
			}
			if token == "" {
				token = uuid.NewString()
			}
			c.Writer.Header().Set(GuestTokenHeader, token)
			identity = cart.GuestIdentity(token)
		}

		c.Set(CartIdentityKey, identity)
		c.Request = c.Request.WithContext(logger.WithIdentity(c.Request.Context(), identityLogKey(identity)))
		c.Next()
	}
}

// GetCartIdentity returns the identity resolved by CartIdentity
func GetCartIdentity(c *gin.Context) (cart.Identity, bool) {
	if v, exists := c.Get(CartIdentityKey); exists {
		if id, ok := v.(cart.Identity); ok {
			return id, true
		}
	}
	return cart.Identity{}, false
}

// identityLogKey never exposes a raw guest token in logs
func identityLogKey(identity cart.Identity) string {
	if !identity.IsGuest() {
		return identity.Key()
	}
	sum := sha256.Sum256([]byte(identity.GuestToken))
	return "guest:" + hex.EncodeToString(sum[:6])
}
