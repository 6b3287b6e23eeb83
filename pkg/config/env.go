package config

// EnvPrefix is handed to envconfig; every field carries its full variable name.
const EnvPrefix = "TRADEPOST"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	DefaultEscrowHoldDays = 7
)

const (
	EnvAppEnv   = "TRADEPOST_APP_ENV"
	EnvPort     = "TRADEPOST_APP_PORT"
	EnvLogLevel = "TRADEPOST_LOG_LEVEL"

	EnvDBDSN  = "TRADEPOST_DB_DSN"
	EnvDBHost = "TRADEPOST_DB_HOST"
	EnvDBUser = "TRADEPOST_DB_USER"
	EnvDBName = "TRADEPOST_DB_NAME"

	EnvUseSQLite = "TRADEPOST_USE_SQLITE"

	EnvRedisURL = "TRADEPOST_REDIS_URL"

	EnvJWTSecret = "TRADEPOST_JWT_SECRET"
	EnvJWTIssuer = "TRADEPOST_JWT_ISSUER"

	EnvPlatformFeeRate = "TRADEPOST_PLATFORM_FEE_RATE"
	EnvEscrowHoldDays  = "TRADEPOST_ESCROW_HOLD_DAYS"
	EnvCurrency        = "TRADEPOST_CURRENCY"
	EnvOfferDefaultTTL = "TRADEPOST_OFFER_DEFAULT_TTL"
	EnvOfferMinWindow  = "TRADEPOST_OFFER_MIN_WINDOW"
	EnvOfferMaxWindow  = "TRADEPOST_OFFER_MAX_WINDOW"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
