package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

const defaultRevocationPrefix = "auth:revoked:"

// RevocationList answers whether a token id was revoked by the issuer
type RevocationList interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// RedisRevocationList reads revocations the identity provider writes to the shared Redis
type RedisRevocationList struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisRevocationList creates a read-only revocation list
func NewRedisRevocationList(client redis.UniversalClient, prefix string) *RedisRevocationList {
	if prefix == "" {
		prefix = defaultRevocationPrefix
	}
	return &RedisRevocationList{client: client, prefix: prefix}
}

// IsRevoked checks for the revocation key
func (l *RedisRevocationList) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := l.client.Exists(ctx, l.prefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("redis: %w", err)
	}
	return n > 0, nil
}

// StaticRevocationList is a fixed in-memory set, for tests and local runs
type StaticRevocationList struct {
	mu      sync.RWMutex
	revoked map[string]struct{}
}

// NewStaticRevocationList creates a list containing the given ids
func NewStaticRevocationList(jtis ...string) *StaticRevocationList {
	l := &StaticRevocationList{revoked: make(map[string]struct{}, len(jtis))}
	for _, jti := range jtis {
		l.revoked[jti] = struct{}{}
	}
	return l
}

// Revoke adds a token id
func (l *StaticRevocationList) Revoke(jti string) {
	l.mu.Lock()
	l.revoked[jti] = struct{}{}
	l.mu.Unlock()
}

// IsRevoked reports membership
func (l *StaticRevocationList) IsRevoked(_ context.Context, jti string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.revoked[jti]
	return ok, nil
}
