package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	cartapp "github.com/marketplace/backend/internal/application/cart"
	checkoutapp "github.com/marketplace/backend/internal/application/checkout"
	orderapp "github.com/marketplace/backend/internal/application/order"
	paymentapp "github.com/marketplace/backend/internal/application/payment"
	shippingapp "github.com/marketplace/backend/internal/application/shipping"
	"github.com/marketplace/backend/internal/application/subscription"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/domain/shipping"
	"github.com/marketplace/backend/internal/domain/vendor"
	"github.com/marketplace/backend/internal/infrastructure/auth"
	"github.com/marketplace/backend/internal/infrastructure/cache"
	"github.com/marketplace/backend/internal/infrastructure/config"
	"github.com/marketplace/backend/internal/infrastructure/event"
	"github.com/marketplace/backend/internal/infrastructure/logger"
	"github.com/marketplace/backend/internal/infrastructure/messaging"
	"github.com/marketplace/backend/internal/infrastructure/migration"
	paymentinfra "github.com/marketplace/backend/internal/infrastructure/payment"
	"github.com/marketplace/backend/internal/infrastructure/persistence"
	shippinginfra "github.com/marketplace/backend/internal/infrastructure/shipping"
	"github.com/marketplace/backend/internal/infrastructure/telemetry"
	"github.com/marketplace/backend/internal/interfaces/http/handler"
	"github.com/marketplace/backend/internal/interfaces/http/middleware"
	"github.com/marketplace/backend/internal/interfaces/http/router"
	"github.com/marketplace/backend/migrations"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

var errRatesUnconfigured = errors.New("shipping rate provider is not configured")

// offlineRates is used when no rate API is configured; every quote falls back to the flat rate
type offlineRates struct{}

func (offlineRates) Quote(context.Context, shipping.RateRequest) ([]shipping.ShippingOption, error) {
	return nil, errRatesUnconfigured
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting marketplace backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	ctx := context.Background()

	tracer, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	metrics := telemetry.NewCheckoutMetrics()

	db, err := persistence.NewDatabase(&cfg.Database, log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:          cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		DBName:           cfg.Database.DBName,
		IncludeVariables: cfg.Telemetry.DBLogFullSQL,
	}, log); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		log.Fatal("Failed to access connection pool", zap.Error(err))
	}
	metrics.RegisterDBStats(sqlDB, cfg.Database.DBName)
	log.Info("Database connected successfully")

	if cfg.Database.AutoMigrate {
		migrator, err := migration.NewFromFS(sqlDB, migrations.FS, log)
		if err != nil {
			log.Fatal("Failed to prepare migrations", zap.Error(err))
		}
		if err := migrator.Up(); err != nil {
			log.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}

	cacheFactory := cache.NewFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	)
	stores, err := cacheFactory.CreateStores(ctx)
	if err != nil {
		log.Fatal("Failed to initialize cache stores", zap.Error(err))
	}

	plans, err := planCatalog(cfg.Plans)
	if err != nil {
		log.Fatal("Invalid plan configuration", zap.Error(err))
	}

	// Repositories
	cartRepo := persistence.NewGormCartRepository(db.DB)
	productRepo := persistence.NewGormProductRepository(db.DB)
	storeRepo := persistence.NewGormStoreRepository(db.DB)
	subscriptionRepo := persistence.NewGormSubscriptionRepository(db.DB)
	intentRepo := persistence.NewGormPaymentIntentRepository(db.DB)
	orderRepo := persistence.NewGormOrderRepository(db.DB)
	txScope := persistence.NewGormTransactionScope(db.DB)

	// Event bus: metrics for every event, Kafka forwarding when enabled
	eventBus := event.NewInMemoryEventBus(log)
	eventBus.Subscribe(event.NewMetricsHandler(metrics))
	var kafkaPublisher *messaging.KafkaPublisher
	if cfg.Kafka.Enabled {
		kafkaPublisher = messaging.NewKafkaPublisher(messaging.NewKafkaWriter(cfg.Kafka), event.NewEventSerializer(), metrics, log)
		eventBus.Subscribe(kafkaPublisher, kafkaPublisher.EventTypes()...)
		log.Info("Kafka event forwarding enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	// Providers
	// The orchestrator retries with stable idempotency keys, so the SDK does not retry on its own
	gateway, err := paymentinfra.NewStripeGateway(cfg.Stripe, 0, log)
	if err != nil {
		log.Fatal("Failed to initialize payment gateway", zap.Error(err))
	}
	if cfg.Stripe.IsTestMode() && cfg.App.Env == "production" {
		log.Warn("Stripe test key configured in production")
	}
	var rateProvider shipping.RateProvider = offlineRates{}
	if cfg.Shipping.ProviderURL != "" {
		rateProvider, err = shippinginfra.NewHTTPRateProvider(shippinginfra.HTTPRateProviderConfig{
			BaseURL: cfg.Shipping.ProviderURL,
			APIKey:  cfg.Shipping.APIKey,
			Timeout: cfg.Shipping.Timeout,
		}, log)
		if err != nil {
			log.Fatal("Failed to initialize shipping rate provider", zap.Error(err))
		}
	} else {
		log.Warn("No shipping rate provider configured; every quote uses the fallback rate")
	}
	fallbackCost, err := decimal.NewFromString(cfg.Shipping.FallbackCost)
	if err != nil {
		log.Fatal("Invalid shipping.fallback_cost", zap.Error(err))
	}

	// Application services
	quotaGuard := subscription.NewQuotaGuard(storeRepo, productRepo, subscriptionRepo, plans, metrics, log)
	storeService := subscription.NewStoreService(storeRepo, productRepo, quotaGuard, txScope.OwnerScope(), log)
	subscriptionService := subscription.NewSubscriptionService(subscriptionRepo, storeRepo, plans, log)

	rateResolver := shippingapp.NewRateResolver(rateProvider, stores.Rates, storeRepo, shippingapp.Config{
		Timeout:          cfg.Shipping.Timeout,
		CacheTTL:         cfg.Shipping.CacheTTL,
		FallbackCost:     fallbackCost,
		FallbackCarrier:  cfg.Shipping.FallbackCarrier,
		FallbackService:  cfg.Shipping.FallbackService,
		FallbackDays:     cfg.Shipping.FallbackDays,
		FallbackCurrency: cfg.Shipping.FallbackCurrency,
	}, metrics, log)

	cartService := cartapp.NewCartService(cartRepo, productRepo, txScope.CartScope(), cartapp.Config{
		Currency:        cfg.Checkout.Currency,
		MaxLineQuantity: cfg.Checkout.MaxItemQuantity,
	}, log)

	splitter := checkoutapp.NewSplitter(productRepo, quotaGuard, rateResolver, log)
	orchestrator := checkoutapp.NewOrchestrator(gateway, intentRepo, checkoutapp.OrchestratorConfig{
		PlatformFeeBps: cfg.Checkout.PlatformFeeBps,
		CallTimeout:    cfg.Checkout.ProviderTimeout,
		MaxAttempts:    cfg.Checkout.MaxAttempts,
		RetryBackoff:   cfg.Checkout.RetryBackoff,
	}, log)
	checkoutService := checkoutapp.NewCheckoutService(cartRepo, intentRepo, splitter, orchestrator, txScope.CheckoutScope(), eventBus, metrics, log)

	materializer := orderapp.NewMaterializer(intentRepo, txScope.OrderScope(), eventBus, metrics, log)
	orderService := orderapp.NewOrderService(orderRepo)

	stateMachine := paymentapp.NewStateMachine(intentRepo, stores.Idempotency, materializer, eventBus,
		shared.IdempotencyConfig{TTL: cfg.Payment.EventTTL}, metrics, log)
	dispatcher := paymentapp.NewDispatcher(stateMachine, cfg.Payment.DispatcherWorkers, cfg.Payment.DispatcherQueue, log)
	if err := dispatcher.Start(ctx); err != nil {
		log.Fatal("Failed to start payment dispatcher", zap.Error(err))
	}
	webhookService := paymentapp.NewStripeWebhookService(paymentapp.StripeWebhookServiceConfig{
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Events:        dispatcher,
		Subscriptions: subscriptionService,
		Timeout:       cfg.Payment.WebhookTimeout,
		Logger:        log,
	})

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Invalid trusted proxies", zap.Error(err))
	}

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsCfg.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsCfg.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}
	engine.Use(
		logger.Recovery(log),
		middleware.RequestID(),
		middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
		}),
		middleware.SpanEnricher(),
		logger.GinMiddleware(log),
		middleware.HTTPMetrics(metrics),
		middleware.Secure(),
		middleware.CORSWithConfig(corsCfg),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)

	var verifierOpts []auth.VerifierOption
	if stores.Redis != nil {
		verifierOpts = append(verifierOpts, auth.WithRevocationList(auth.NewRedisRevocationList(stores.Redis, "auth:revoked:")))
	}
	verifier := auth.NewTokenVerifier(cfg.JWT, verifierOpts...)
	checkoutLimiter := middleware.NewRateLimiter(cfg.Checkout.RateLimit, cfg.Checkout.RateWindow)

	cartHandler := handler.NewCartHandler(cartService)
	r := router.NewRouter(engine)
	r.Register(router.MarketplaceGroups(router.Handlers{
		Cart:     cartHandler,
		Checkout: handler.NewCheckoutHandler(cartService, checkoutService),
		Store:    handler.NewStoreHandler(storeService, subscriptionService),
		Order:    handler.NewOrderHandler(orderService, cartService, storeService),
		Webhook:  handler.NewStripeWebhookHandler(webhookService),
	}, router.Guards{
		RequireAuth:   middleware.JWTAuth(verifier, log),
		OptionalAuth:  middleware.OptionalJWTAuth(verifier, log),
		CartIdentity:  middleware.CartIdentity(),
		CheckoutLimit: middleware.RateLimitByCaller(checkoutLimiter),
	})...)
	r.Setup()

	checks := map[string]handler.Pinger{"database": db}
	if stores.Redis != nil {
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return stores.Redis.Ping(ctx).Err()
		})
	}
	router.RegisterSystemRoutes(engine, handler.NewSystemHandler(version, checks), metrics.Handler())

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	// Stop intake first, then drain in dependency order
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	checkoutLimiter.Close()
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		log.Error("Payment dispatcher did not drain", zap.Error(err))
	}
	if err := eventBus.Stop(shutdownCtx); err != nil {
		log.Error("Event bus did not drain", zap.Error(err))
	}
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			log.Error("Error closing Kafka writer", zap.Error(err))
		}
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		log.Error("Error flushing traces", zap.Error(err))
	}
	if err := stores.Close(); err != nil {
		log.Error("Error closing cache stores", zap.Error(err))
	}
	if err := db.Close(); err != nil {
		log.Error("Error closing database", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// planCatalog converts the configured tier table into the domain catalog
func planCatalog(cfg config.PlansConfig) (*vendor.PlanCatalog, error) {
	plans := make([]vendor.SubscriptionPlan, len(cfg.Tiers))
	for i, t := range cfg.Tiers {
		plans[i] = vendor.SubscriptionPlan{
			Tier:                vendor.PlanTier(t.Tier),
			MaxStores:           t.MaxStores,
			MaxProductsPerStore: t.MaxProductsPerStore,
			ExternalPriceRef:    t.PriceID,
		}
	}
	return vendor.NewPlanCatalog(plans, vendor.PlanTier(cfg.DefaultTier))
}
