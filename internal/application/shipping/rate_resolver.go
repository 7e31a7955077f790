package shipping

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/marketplace/backend/internal/domain/shipping"
	"github.com/marketplace/backend/internal/domain/vendor"
	"github.com/marketplace/backend/internal/infrastructure/telemetry"
)

// Quote sources reported to metrics
const (
	SourceCache    = "cache"
	SourceProvider = "provider"
	SourceFallback = "fallback"
)

// Config holds rate resolution settings
type Config struct {
	Timeout          time.Duration
	CacheTTL         time.Duration
	FallbackCost     decimal.Decimal
	FallbackCarrier  string
	FallbackService  string
	FallbackDays     int
	FallbackCurrency string
}

// DefaultConfig returns the default resolver settings
func DefaultConfig() Config {
	return Config{
		Timeout:          3 * time.Second,
		CacheTTL:         10 * time.Minute,
		FallbackCost:     decimal.NewFromInt(10),
		FallbackCarrier:  "flat",
		FallbackService:  "standard",
		FallbackDays:     7,
		FallbackCurrency: "USD",
	}
}

// RateResolver produces shipping options for one vendor's parcel. Quotes are cached per
// (store, destination, contents, currency). When the rate API fails or is slow, a flat fallback rate
// flagged Degraded is returned instead of an error; fallbacks are never cached.
type RateResolver struct {
	provider  shipping.RateProvider
	cache     shipping.RateCache
	storeRepo vendor.StoreRepository
	config    Config
	metrics   *telemetry.CheckoutMetrics
	logger    *zap.Logger
}

// NewRateResolver creates a new RateResolver
func NewRateResolver(provider shipping.RateProvider, cache shipping.RateCache, storeRepo vendor.StoreRepository, cfg Config, metrics *telemetry.CheckoutMetrics, logger *zap.Logger) *RateResolver {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.FallbackCarrier == "" {
		cfg.FallbackCarrier = def.FallbackCarrier
	}
	if cfg.FallbackService == "" {
		cfg.FallbackService = def.FallbackService
	}
	if cfg.FallbackCurrency == "" {
		cfg.FallbackCurrency = def.FallbackCurrency
	}
	return &RateResolver{
		provider:  provider,
		cache:     cache,
		storeRepo: storeRepo,
		config:    cfg,
		metrics:   metrics,
		logger:    logger,
	}
}

// Rates returns the shipping options for the store's parcel to the destination
func (r *RateResolver) Rates(ctx context.Context, storeID uuid.UUID, destination shipping.Destination, items []shipping.ParcelItem) ([]shipping.ShippingOption, error) {
	store, err := r.storeRepo.FindByID(ctx, storeID)
	if err != nil {
		return nil, err
	}
	return r.RatesForStore(ctx, store, r.config.FallbackCurrency, destination, items)
}

// RatesForStore is Rates for a store the caller has already loaded, quoted in currency.
// Provider options in any other currency are dropped.
func (r *RateResolver) RatesForStore(ctx context.Context, store *vendor.Store, currency string, destination shipping.Destination, items []shipping.ParcelItem) ([]shipping.ShippingOption, error) {
	if currency == "" {
		currency = r.config.FallbackCurrency
	}
	destination = destination.Normalize()
	if err := destination.Validate(); err != nil {
		return nil, err
	}

	req := shipping.RateRequest{
		StoreID:          store.ID,
		OriginCountry:    store.ShipFrom.Country,
		OriginPostalCode: store.ShipFrom.PostalCode,
		Destination:      destination,
		Items:            items,
		Currency:         strings.ToUpper(currency),
	}
	key := req.CacheKey()

	if r.cache != nil {
		options, found, err := r.cache.Get(ctx, key)
		if err != nil {
			r.logger.Warn("Shipping rate cache read failed", zap.String("key", key), zap.Error(err))
		} else if found && len(options) > 0 {
			r.metrics.ObserveShippingQuote(SourceCache)
			return options, nil
		}
	}

	quoteCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()
	quoted, err := r.provider.Quote(quoteCtx, req)
	options := inCurrency(quoted, req.Currency)
	if len(options) < len(quoted) {
		r.logger.Warn("Dropped shipping options quoted in another currency",
			zap.String("store_id", store.ID.String()),
			zap.String("currency", req.Currency),
			zap.Int("dropped", len(quoted)-len(options)),
		)
	}
	if err != nil || len(options) == 0 {
		fields := []zap.Field{zap.String("store_id", store.ID.String()), zap.String("destination", destination.RateKey())}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		r.logger.Warn("Shipping rate provider unavailable, using fallback rate", fields...)
		r.metrics.ObserveShippingQuote(SourceFallback)
		return []shipping.ShippingOption{r.fallback()}, nil
	}

	r.metrics.ObserveShippingQuote(SourceProvider)
	if r.cache != nil {
		if err := r.cache.Set(ctx, key, options, r.config.CacheTTL); err != nil {
			r.logger.Warn("Shipping rate cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return options, nil
}

func inCurrency(options []shipping.ShippingOption, currency string) []shipping.ShippingOption {
	out := make([]shipping.ShippingOption, 0, len(options))
	for _, o := range options {
		if strings.EqualFold(o.Currency, currency) {
			out = append(out, o)
		}
	}
	return out
}

func (r *RateResolver) fallback() shipping.ShippingOption {
	return shipping.ShippingOption{
		Carrier:       r.config.FallbackCarrier,
		ServiceLevel:  r.config.FallbackService,
		Cost:          r.config.FallbackCost,
		Currency:      r.config.FallbackCurrency,
		EstimatedDays: r.config.FallbackDays,
		Degraded:      true,
	}
}
