package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketplace/backend/internal/infrastructure/auth"
	"github.com/marketplace/backend/internal/interfaces/http/dto"
)

// JWT context keys
const (
	JWTClaimsKey  = "jwt_claims"
	JWTUserIDKey  = "jwt_user_id"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

var errMissingToken = errors.New("missing bearer token")

// TokenVerifier validates bearer tokens
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Claims, error)
}

// JWTMiddlewareConfig holds configuration for JWT middleware
type JWTMiddlewareConfig struct {
	Verifier TokenVerifier
	// Optional lets requests without an Authorization header through unauthenticated.
	// A header that is present but invalid is still rejected.
	Optional bool
	Logger   *zap.Logger
}

// JWTAuth requires a valid bearer token
func JWTAuth(verifier TokenVerifier, logger *zap.Logger) gin.HandlerFunc {
	return JWTAuthWithConfig(JWTMiddlewareConfig{Verifier: verifier, Logger: logger})
}

// OptionalJWTAuth authenticates the caller when a bearer token is sent
func OptionalJWTAuth(verifier TokenVerifier, logger *zap.Logger) gin.HandlerFunc {
	return JWTAuthWithConfig(JWTMiddlewareConfig{Verifier: verifier, Optional: true, Logger: logger})
}

// JWTAuthWithConfig creates JWT authentication middleware with custom config
func JWTAuthWithConfig(cfg JWTMiddlewareConfig) gin.HandlerFunc {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthHeaderKey)
		if authHeader == "" {
			if cfg.Optional {
				c.Next()
				return
			}
			abortUnauthorized(c, cfg.Logger, errMissingToken, "Missing authorization header")
			return
		}

		tokenString, ok := strings.CutPrefix(authHeader, BearerPrefix)
		if !ok || strings.TrimSpace(tokenString) == "" {
			abortUnauthorized(c, cfg.Logger, auth.ErrInvalidToken, "Invalid authorization header format")
			return
		}

		claims, err := cfg.Verifier.Verify(c.Request.Context(), strings.TrimSpace(tokenString))
		if err != nil {
			abortUnauthorized(c, cfg.Logger, err, "Token validation failed")
			return
		}
		userID, err := claims.UserUUID()
		if err != nil {
			abortUnauthorized(c, cfg.Logger, err, "Token has no user")
			return
		}

		c.Set(JWTClaimsKey, claims)
		c.Set(JWTUserIDKey, userID)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, log *zap.Logger, err error, message string) {
	log.Warn("JWT authentication failed",
		zap.Error(err),
		zap.String("reason", message),
		zap.String("path", c.Request.URL.Path),
	)

	code, text := dto.ErrCodeUnauthorized, "Authentication required"
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		code, text = dto.ErrCodeTokenExpired, "Token has expired"
	case errors.Is(err, auth.ErrTokenNotYetValid):
		code, text = dto.ErrCodeTokenInvalid, "Token is not yet valid"
	case errors.Is(err, auth.ErrTokenRevoked):
		code, text = dto.ErrCodeTokenRevoked, "Token has been revoked"
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrMissingUserID):
		code, text = dto.ErrCodeTokenInvalid, "Invalid token"
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponseWithRequestID(code, text, GetRequestID(c)))
}

// GetJWTClaims retrieves JWT claims from gin.Context
func GetJWTClaims(c *gin.Context) *auth.Claims {
	if claims, exists := c.Get(JWTClaimsKey); exists {
		if jwtClaims, ok := claims.(*auth.Claims); ok {
			return jwtClaims
		}
	}
	return nil
}

// GetJWTUserID returns the authenticated user's id
func GetJWTUserID(c *gin.Context) (uuid.UUID, bool) {
	if v, exists := c.Get(JWTUserIDKey); exists {
		if id, ok := v.(uuid.UUID); ok && id != uuid.Nil {
			return id, true
		}
	}
	return uuid.Nil, false
}
