// Package auth verifies bearer tokens issued by the identity provider.
// This service never issues tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/marketplace/backend/internal/infrastructure/config"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrMissingUserID    = errors.New("missing user id in claims")
	ErrTokenRevoked     = errors.New("token has been revoked")
)

// Claims are the token claims the marketplace reads
type Claims struct {
	jwt.RegisteredClaims
	UserID string   `json:"user_id,omitempty"`
	Roles  []string `json:"roles,omitempty"`
}

// UserUUID returns user_id, falling back to the subject
func (c *Claims) UserUUID() (uuid.UUID, error) {
	raw := c.UserID
	if raw == "" {
		raw = c.Subject
	}
	if raw == "" {
		return uuid.Nil, ErrMissingUserID
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrMissingUserID, err)
	}
	return id, nil
}

// HasRole reports whether the token carries the role
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// TokenVerifier validates HMAC-signed access tokens
type TokenVerifier struct {
	secret      []byte
	issuer      string
	leeway      time.Duration
	revocations RevocationList
}

// VerifierOption configures a TokenVerifier
type VerifierOption func(*TokenVerifier)

// WithRevocationList rejects tokens whose jti has been revoked
func WithRevocationList(list RevocationList) VerifierOption {
	return func(v *TokenVerifier) {
		v.revocations = list
	}
}

// WithLeeway tolerates clock skew on exp and nbf
func WithLeeway(d time.Duration) VerifierOption {
	return func(v *TokenVerifier) {
		v.leeway = d
	}
}

// NewTokenVerifier creates a verifier from the JWT settings
func NewTokenVerifier(cfg config.JWTConfig, opts ...VerifierOption) *TokenVerifier {
	v := &TokenVerifier{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify parses and validates a token and returns its claims
func (v *TokenVerifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, parserOpts...)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return nil, ErrTokenNotYetValid
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if _, err := claims.UserUUID(); err != nil {
		return nil, err
	}

	if v.revocations != nil && claims.ID != "" {
		revoked, err := v.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check token revocation: %w", err)
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}
	return claims, nil
}
