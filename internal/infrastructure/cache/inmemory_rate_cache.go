package cache

import (
	"context"
	"slices"
	"time"

	"github.com/marketplace/backend/internal/domain/shipping"
)

// InMemoryRateCache caches shipping quotes in process memory
type InMemoryRateCache struct {
	quotes *ttlMap[[]shipping.ShippingOption]
}

// NewInMemoryRateCache creates a new in-memory rate cache
func NewInMemoryRateCache() *InMemoryRateCache {
	return &InMemoryRateCache{quotes: newTTLMap[[]shipping.ShippingOption](time.Minute)}
}

// Get returns a copy of the cached options
func (c *InMemoryRateCache) Get(_ context.Context, key string) ([]shipping.ShippingOption, bool, error) {
	options, ok := c.quotes.get(key)
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(options), true, nil
}

// Set stores a copy of the options
func (c *InMemoryRateCache) Set(_ context.Context, key string, options []shipping.ShippingOption, ttl time.Duration) error {
	c.quotes.set(key, slices.Clone(options), ttl)
	return nil
}

// Close stops the sweep goroutine
func (c *InMemoryRateCache) Close() error {
	c.quotes.close()
	return nil
}

var _ shipping.RateCache = (*InMemoryRateCache)(nil)
