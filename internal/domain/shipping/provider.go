package shipping

import (
	"context"
	"time"
)

// RateProvider quotes shipping options from an external rate API
type RateProvider interface {
	Quote(ctx context.Context, req RateRequest) ([]ShippingOption, error)
}

// RateCache stores quotes keyed by RateRequest.CacheKey
type RateCache interface {
	// Get returns the cached options. found is false on a miss.
	Get(ctx context.Context, key string) (options []ShippingOption, found bool, err error)
	Set(ctx context.Context, key string, options []ShippingOption, ttl time.Duration) error
}
