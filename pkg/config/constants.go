package config

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "PCLEDGER_APP_ENV"
	EnvPort     = "PCLEDGER_APP_PORT"
	EnvDBDSN    = "PCLEDGER_DB_DSN"
	EnvDBHost   = "PCLEDGER_DB_HOST"
	EnvDBUser   = "PCLEDGER_DB_USER"
	EnvDBName   = "PCLEDGER_DB_NAME"
	EnvRedisURL = "PCLEDGER_REDIS_URL"
	EnvSQLite   = "PCLEDGER_USE_SQLITE"

	EnvCommissionTimezone    = "PCLEDGER_COMMISSION_TIMEZONE"
	EnvCommissionGeneralRate = "PCLEDGER_COMMISSION_GENERAL_DEFAULT_RATE"
	EnvCommissionPremiumPfx  = "PCLEDGER_COMMISSION_PREMIUM_PREFIX"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
