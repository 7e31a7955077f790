package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marketplace/backend/internal/domain/shipping"
)

const defaultRatePrefix = "shipping:rates:"

// RedisRateCache stores shipping quotes as JSON values with a TTL
type RedisRateCache struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisRateCache creates a rate cache on an existing client
func NewRedisRateCache(client redis.UniversalClient, keyPrefix string) *RedisRateCache {
	if keyPrefix == "" {
		keyPrefix = defaultRatePrefix
	}
	return &RedisRateCache{client: client, keyPrefix: keyPrefix}
}

// Get returns the cached options
func (c *RedisRateCache) Get(ctx context.Context, key string) ([]shipping.ShippingOption, bool, error) {
	raw, err := c.client.Get(ctx, c.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read rates: %w", err)
	}
	var options []shipping.ShippingOption
	if err := json.Unmarshal(raw, &options); err != nil {
		return nil, false, fmt.Errorf("failed to decode rates: %w", err)
	}
	return options, true, nil
}

// Set stores the options
func (c *RedisRateCache) Set(ctx context.Context, key string, options []shipping.ShippingOption, ttl time.Duration) error {
	raw, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("failed to encode rates: %w", err)
	}
	if err := c.client.Set(ctx, c.keyPrefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write rates: %w", err)
	}
	return nil
}

var _ shipping.RateCache = (*RedisRateCache)(nil)
