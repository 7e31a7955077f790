package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/domain/shipping"
	"github.com/marketplace/backend/internal/infrastructure/config"
)

// Stores bundles the Redis-backed (or in-memory) stores the service needs
type Stores struct {
	Idempotency shared.IdempotencyStore
	Rates       shipping.RateCache
	Redis       redis.UniversalClient // nil when running in memory
	closers     []func() error
}

// Close releases every store and the Redis client
func (s *Stores) Close() error {
	var firstErr error
	for _, c := range s.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Factory creates stores based on configuration
type Factory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// FactoryOption configures the factory
type FactoryOption func(*Factory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to in-memory stores when Redis is unavailable
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *Factory) {
		f.allowInMemoryFallback = allow
	}
}

// NewFactory creates a new factory
func NewFactory(cfg config.RedisConfig, opts ...FactoryOption) *Factory {
	f := &Factory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Connect opens and pings the Redis client
func (f *Factory) Connect(ctx context.Context) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", f.redisConfig.Host, f.redisConfig.Port),
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// CreateStores returns Redis stores, or in-memory ones if Redis is down and fallback is allowed.
// In-memory stores do not share state across replicas, so redelivered webhooks may be seen twice;
// the state machine's per-intent event id check still discards them.
func (f *Factory) CreateStores(ctx context.Context) (*Stores, error) {
	if f.redisConfig.Enabled {
		client, err := f.Connect(ctx)
		if err == nil {
			f.logger.Info("Using Redis for idempotency and rate cache")
			return &Stores{
				Idempotency: NewRedisIdempotencyStore(client, ""),
				Rates:       NewRedisRateCache(client, ""),
				Redis:       client,
				closers:     []func() error{client.Close},
			}, nil
		}
		if !f.allowInMemoryFallback {
			return nil, fmt.Errorf("Redis required but unavailable: %w", err)
		}
		f.logger.Warn("Redis unavailable, falling back to in-memory stores", zap.Error(err))
	}
	return f.CreateInMemoryStores(), nil
}

// CreateInMemoryStores returns process-local stores
func (f *Factory) CreateInMemoryStores() *Stores {
	idem := NewInMemoryIdempotencyStore()
	rates := NewInMemoryRateCache()
	return &Stores{
		Idempotency: idem,
		Rates:       rates,
		closers:     []func() error{idem.Close, rates.Close},
	}
}
