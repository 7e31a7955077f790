package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Telemetry TelemetryConfig
	Stripe    StripeConfig
	Shipping  ShippingConfig
	Checkout  CheckoutConfig
	Payment   PaymentConfig
	Kafka     KafkaConfig
	Plans     PlansConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int  // in minutes
	ConnMaxIdleTime int  // in minutes
	AutoMigrate     bool // apply embedded migrations on server start
}

// RedisConfig holds Redis connection settings. When disabled, caches and the
// webhook idempotency store are kept in process memory.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds token verification settings. Tokens are issued elsewhere.
type JWTConfig struct {
	Secret string
	Issuer string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	ShutdownTimeout  time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string  // OTLP gRPC endpoint, e.g. localhost:4317
	SamplingRatio     float64 // 0.0-1.0
	ServiceName       string
	Insecure          bool // development only
	DBTraceEnabled    bool
	DBLogFullSQL      bool
	DBSlowQueryThresh time.Duration
}

// StripeConfig holds payment provider credentials
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	APIBaseURL    string // overrides the API host, for stripe-mock
}

// IsTestMode reports whether the secret key is a test key
func (s StripeConfig) IsTestMode() bool {
	return strings.HasPrefix(s.SecretKey, "sk_test_") || strings.HasPrefix(s.SecretKey, "rk_test_")
}

// ShippingConfig holds the rate provider endpoint and the fallback quote
type ShippingConfig struct {
	ProviderURL      string
	APIKey           string
	Timeout          time.Duration
	CacheTTL         time.Duration
	FallbackCarrier  string
	FallbackService  string
	FallbackCost     string // decimal string
	FallbackDays     int
	FallbackCurrency string
}

// CheckoutConfig holds checkout and intent creation settings
type CheckoutConfig struct {
	Currency        string
	PlatformFeeBps  int64
	ProviderTimeout time.Duration
	MaxAttempts     int
	RetryBackoff    time.Duration
	MaxItemQuantity int
	// RateLimit caps checkout initiations per caller within RateWindow
	RateLimit       int
	RateWindow      time.Duration
}

// PaymentConfig holds webhook processing settings
type PaymentConfig struct {
	DispatcherWorkers int
	DispatcherQueue   int
	EventTTL          time.Duration // how long processed event ids are remembered
	WebhookTimeout    time.Duration
}

// KafkaConfig holds domain event forwarding settings
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

// PlanConfig is one subscription tier. Zero limits mean unlimited.
type PlanConfig struct {
	Tier                string `mapstructure:"tier"`
	MaxStores           int    `mapstructure:"max_stores"`
	MaxProductsPerStore int    `mapstructure:"max_products_per_store"`
	PriceID             string `mapstructure:"price_id"`
}

// PlansConfig holds the subscription tier table
type PlansConfig struct {
	DefaultTier string
	Tiers       []PlanConfig
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with MKT_ prefix (e.g., MKT_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("MKT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg, err := fromViper(v)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			AutoMigrate:     v.GetBool("database.auto_migrate"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
			Issuer: v.GetString("jwt.issuer"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			ShutdownTimeout:  v.GetDuration("http.shutdown_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
		Stripe: StripeConfig{
			SecretKey:     v.GetString("stripe.secret_key"),
			WebhookSecret: v.GetString("stripe.webhook_secret"),
			APIBaseURL:    v.GetString("stripe.api_base_url"),
		},
		Shipping: ShippingConfig{
			ProviderURL:      v.GetString("shipping.provider_url"),
			APIKey:           v.GetString("shipping.api_key"),
			Timeout:          v.GetDuration("shipping.timeout"),
			CacheTTL:         v.GetDuration("shipping.cache_ttl"),
			FallbackCarrier:  v.GetString("shipping.fallback_carrier"),
			FallbackService:  v.GetString("shipping.fallback_service"),
			FallbackCost:     v.GetString("shipping.fallback_cost"),
			FallbackDays:     v.GetInt("shipping.fallback_days"),
			FallbackCurrency: v.GetString("shipping.fallback_currency"),
		},
		Checkout: CheckoutConfig{
			Currency:        v.GetString("checkout.currency"),
			PlatformFeeBps:  v.GetInt64("checkout.platform_fee_bps"),
			ProviderTimeout: v.GetDuration("checkout.provider_timeout"),
			MaxAttempts:     v.GetInt("checkout.max_attempts"),
			RetryBackoff:    v.GetDuration("checkout.retry_backoff"),
			MaxItemQuantity: v.GetInt("checkout.max_item_quantity"),
			RateLimit:       v.GetInt("checkout.rate_limit"),
			RateWindow:      v.GetDuration("checkout.rate_window"),
		},
		Payment: PaymentConfig{
			DispatcherWorkers: v.GetInt("payment.dispatcher_workers"),
			DispatcherQueue:   v.GetInt("payment.dispatcher_queue"),
			EventTTL:          v.GetDuration("payment.event_ttl"),
			WebhookTimeout:    v.GetDuration("payment.webhook_timeout"),
		},
		Kafka: KafkaConfig{
			Enabled:      v.GetBool("kafka.enabled"),
			Brokers:      v.GetStringSlice("kafka.brokers"),
			Topic:        v.GetString("kafka.topic"),
			BatchTimeout: v.GetDuration("kafka.batch_timeout"),
		},
		Plans: PlansConfig{
			DefaultTier: v.GetString("plans.default_tier"),
		},
	}
	if err := v.UnmarshalKey("plans.tiers", &cfg.Plans.Tiers); err != nil {
		return nil, fmt.Errorf("error reading plans.tiers: %w", err)
	}
	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "marketplace-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "marketplace"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "marketplace-auth"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 20 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20
	}
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID", "X-Guest-Token", "If-Match"}
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Shipping.Timeout == 0 {
		cfg.Shipping.Timeout = 3 * time.Second
	}
	if cfg.Shipping.CacheTTL == 0 {
		cfg.Shipping.CacheTTL = 10 * time.Minute
	}
	if cfg.Shipping.FallbackCarrier == "" {
		cfg.Shipping.FallbackCarrier = "flat"
	}
	if cfg.Shipping.FallbackService == "" {
		cfg.Shipping.FallbackService = "standard"
	}
	if cfg.Shipping.FallbackCost == "" {
		cfg.Shipping.FallbackCost = "10.00"
	}
	if cfg.Shipping.FallbackDays == 0 {
		cfg.Shipping.FallbackDays = 7
	}
	if cfg.Checkout.Currency == "" {
		cfg.Checkout.Currency = "USD"
	}
	if cfg.Shipping.FallbackCurrency == "" {
		cfg.Shipping.FallbackCurrency = cfg.Checkout.Currency
	}
	if cfg.Checkout.ProviderTimeout == 0 {
		cfg.Checkout.ProviderTimeout = 10 * time.Second
	}
	if cfg.Checkout.MaxAttempts == 0 {
		cfg.Checkout.MaxAttempts = 3
	}
	if cfg.Checkout.RetryBackoff == 0 {
		cfg.Checkout.RetryBackoff = 200 * time.Millisecond
	}
	if cfg.Checkout.MaxItemQuantity == 0 {
		cfg.Checkout.MaxItemQuantity = 99
	}
	if cfg.Checkout.RateLimit == 0 {
		cfg.Checkout.RateLimit = 10
	}
	if cfg.Checkout.RateWindow == 0 {
		cfg.Checkout.RateWindow = time.Minute
	}
	if cfg.Payment.DispatcherWorkers == 0 {
		cfg.Payment.DispatcherWorkers = 8
	}
	if cfg.Payment.DispatcherQueue == 0 {
		cfg.Payment.DispatcherQueue = 64
	}
	if cfg.Payment.EventTTL == 0 {
		cfg.Payment.EventTTL = 72 * time.Hour
	}
	if cfg.Payment.WebhookTimeout == 0 {
		cfg.Payment.WebhookTimeout = 20 * time.Second
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "marketplace.domain-events"
	}
	if cfg.Kafka.BatchTimeout == 0 {
		cfg.Kafka.BatchTimeout = 50 * time.Millisecond
	}
	if cfg.Plans.DefaultTier == "" {
		cfg.Plans.DefaultTier = "free"
	}
	if len(cfg.Plans.Tiers) == 0 {
		cfg.Plans.Tiers = []PlanConfig{
			{Tier: "free", MaxStores: 1, MaxProductsPerStore: 10},
			{Tier: "basic", MaxStores: 3, MaxProductsPerStore: 100},
			{Tier: "pro", MaxStores: 10},
		}
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.Checkout.PlatformFeeBps < 0 || c.Checkout.PlatformFeeBps > 10000 {
		return fmt.Errorf("checkout.platform_fee_bps must be between 0 and 10000, got %d", c.Checkout.PlatformFeeBps)
	}
	if c.Checkout.MaxAttempts < 1 {
		return fmt.Errorf("checkout.max_attempts must be at least 1")
	}
	if !strings.EqualFold(c.Shipping.FallbackCurrency, c.Checkout.Currency) {
		return fmt.Errorf("shipping.fallback_currency (%s) must match checkout.currency (%s)",
			c.Shipping.FallbackCurrency, c.Checkout.Currency)
	}
	if c.Payment.DispatcherWorkers < 1 {
		return fmt.Errorf("payment.dispatcher_workers must be at least 1")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	if err := c.Plans.validate(); err != nil {
		return err
	}

	if c.App.Env == "production" {
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Stripe.SecretKey == "" || c.Stripe.WebhookSecret == "" {
			return fmt.Errorf("stripe.secret_key and stripe.webhook_secret are required in production")
		}
		if c.Stripe.IsTestMode() {
			return fmt.Errorf("stripe.secret_key must be a live key in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	return nil
}

func (p PlansConfig) validate() error {
	seen := make(map[string]bool, len(p.Tiers))
	for _, t := range p.Tiers {
		if t.Tier == "" {
			return fmt.Errorf("plans.tiers: tier name is required")
		}
		if seen[t.Tier] {
			return fmt.Errorf("plans.tiers: duplicate tier %q", t.Tier)
		}
		if t.MaxStores < 0 || t.MaxProductsPerStore < 0 {
			return fmt.Errorf("plans.tiers: limits for %q cannot be negative", t.Tier)
		}
		seen[t.Tier] = true
	}
	if !seen[p.DefaultTier] {
		return fmt.Errorf("plans.default_tier %q is not a configured tier", p.DefaultTier)
	}
	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the Redis host:port address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
