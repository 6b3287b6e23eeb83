package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Stripe       StripeConfig
	Sendgrid     SendgridConfig
	Outbox       OutboxConfig
	Marketplace  MarketplaceConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Marketplace.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"TRADEPOST_APP_ENV" required:"true"`
	Port         string   `envconfig:"TRADEPOST_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"TRADEPOST_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"TRADEPOST_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"TRADEPOST_CORS_ORIGINS" default:"http://localhost:3000"`

	ReadHeaderTimeout time.Duration `envconfig:"TRADEPOST_HTTP_READ_HEADER_TIMEOUT" default:"10s"`
	ShutdownTimeout   time.Duration `envconfig:"TRADEPOST_HTTP_SHUTDOWN_TIMEOUT" default:"20s"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TRADEPOST_SERVICE_KIND" default:"api"`
	// MetricsAddr exposes /metrics from workers; empty disables it.
	MetricsAddr string `envconfig:"TRADEPOST_METRICS_ADDR"`
}

type DBConfig struct {
	DSN    string `envconfig:"TRADEPOST_DB_DSN"`
	Driver string `envconfig:"TRADEPOST_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"TRADEPOST_DB_HOST"`
	Port     int    `envconfig:"TRADEPOST_DB_PORT" default:"5432"`
	User     string `envconfig:"TRADEPOST_DB_USER"`
	Password string `envconfig:"TRADEPOST_DB_PASSWORD"`
	Name     string `envconfig:"TRADEPOST_DB_NAME"`
	SSLMode  string `envconfig:"TRADEPOST_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"TRADEPOST_SQLITE_PATH" default:"tradepost.db"`

	MaxOpenConns    int           `envconfig:"TRADEPOST_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TRADEPOST_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TRADEPOST_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TRADEPOST_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQueryThreshold logs statements slower than this at warn; zero disables it.
	SlowQueryThreshold time.Duration `envconfig:"TRADEPOST_DB_SLOW_QUERY_THRESHOLD" default:"250ms"`
}

// IsSQLite reports whether the configured driver targets the local sqlite file.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"TRADEPOST_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TRADEPOST_REDIS_ADDR"`
	Password     string        `envconfig:"TRADEPOST_REDIS_PASSWORD"`
	DB           int           `envconfig:"TRADEPOST_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TRADEPOST_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TRADEPOST_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TRADEPOST_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TRADEPOST_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TRADEPOST_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"TRADEPOST_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TRADEPOST_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"TRADEPOST_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"TRADEPOST_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"TRADEPOST_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"TRADEPOST_EVENTING_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
	RequestIdempotencyTTL time.Duration `envconfig:"TRADEPOST_EVENTING_REQUEST_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"TRADEPOST_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OffersTopic   string `envconfig:"TRADEPOST_PUBSUB_OFFERS_TOPIC" default:"tradepost-offers"`
	PaymentsTopic string `envconfig:"TRADEPOST_PUBSUB_PAYMENTS_TOPIC" default:"tradepost-payments"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"TRADEPOST_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"TRADEPOST_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"TRADEPOST_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"TRADEPOST_OUTBOX_RETENTION_DAYS" default:"30"`
}

type StripeConfig struct {
	APIKey    string `envconfig:"TRADEPOST_STRIPE_API_KEY"`
	Secret    string `envconfig:"TRADEPOST_STRIPE_SECRET"`
	Env       string `envconfig:"TRADEPOST_STRIPE_ENV" default:"test"`
	ReturnURL string `envconfig:"TRADEPOST_STRIPE_RETURN_URL" default:"http://localhost:3000/checkout/return"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type SendgridConfig struct {
	APIKey      string `envconfig:"TRADEPOST_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"TRADEPOST_SENDGRID_FROM_EMAIL" default:"orders@tradepost.local"`
	FromName    string `envconfig:"TRADEPOST_SENDGRID_FROM_NAME" default:"Tradepost"`
}

// Enabled reports whether outbound email can be delivered.
func (s SendgridConfig) Enabled() bool {
	return strings.TrimSpace(s.APIKey) != ""
}

// MarketplaceConfig holds the money and negotiation policy knobs.
type MarketplaceConfig struct {
	PlatformFeeRate      string        `envconfig:"TRADEPOST_PLATFORM_FEE_RATE" default:"0.05"`
	EscrowHoldDays       int           `envconfig:"TRADEPOST_ESCROW_HOLD_DAYS" default:"7"`
	Currency             string        `envconfig:"TRADEPOST_CURRENCY" default:"usd"`
	OfferDefaultTTL      time.Duration `envconfig:"TRADEPOST_OFFER_DEFAULT_TTL" default:"48h"`
	OfferMinWindow       time.Duration `envconfig:"TRADEPOST_OFFER_MIN_WINDOW" default:"1h"`
	OfferMaxWindow       time.Duration `envconfig:"TRADEPOST_OFFER_MAX_WINDOW" default:"168h"`
	SweepBatchSize       int           `envconfig:"TRADEPOST_OFFER_SWEEP_BATCH_SIZE" default:"500"`
	OfferRateLimit       int           `envconfig:"TRADEPOST_OFFER_RATE_LIMIT" default:"20"`
	OfferRateLimitWindow time.Duration `envconfig:"TRADEPOST_OFFER_RATE_LIMIT_WINDOW" default:"1h"`
}

// EscrowHold returns the hold period applied to settled transactions.
func (m MarketplaceConfig) EscrowHold() time.Duration {
	days := m.EscrowHoldDays
	if days <= 0 {
		days = DefaultEscrowHoldDays
	}
	return time.Duration(days) * 24 * time.Hour
}

func (m MarketplaceConfig) validate() error {
	if m.OfferMinWindow <= 0 || m.OfferMaxWindow <= 0 {
		return fmt.Errorf("%s and %s must be positive", EnvOfferMinWindow, EnvOfferMaxWindow)
	}
	if m.OfferMinWindow > m.OfferMaxWindow {
		return fmt.Errorf("%s must not exceed %s", EnvOfferMinWindow, EnvOfferMaxWindow)
	}
	if m.OfferDefaultTTL < m.OfferMinWindow || m.OfferDefaultTTL > m.OfferMaxWindow {
		return fmt.Errorf("%s must fall inside the offer window", EnvOfferDefaultTTL)
	}
	if strings.TrimSpace(m.Currency) == "" {
		return fmt.Errorf("%s is required", EnvCurrency)
	}
	return nil
}

type CronConfig struct {
	Interval                  time.Duration `envconfig:"TRADEPOST_CRON_INTERVAL" default:"1m"`
	LockTTL                   time.Duration `envconfig:"TRADEPOST_CRON_LOCK_TTL" default:"5m"`
	NotificationRetentionDays int           `envconfig:"TRADEPOST_NOTIFICATION_RETENTION_DAYS" default:"30"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DriverSQLite
	}
	if db.IsSQLite() {
		if db.DSN == "" {
			db.DSN = db.SQLitePath
		}
		return nil
	}
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
