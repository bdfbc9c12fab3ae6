package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"github.com/diagcenter/pcledger/pkg/enums"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Commission   CommissionConfig
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
	if err := cfg.Commission.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"PCLEDGER_APP_ENV" required:"true"`
	Port         string   `envconfig:"PCLEDGER_APP_PORT" default:"8080"`
	LogLevel     string   `envconfig:"PCLEDGER_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"PCLEDGER_LOG_WARN_STACK" default:"false"`
	LogFormat    string   `envconfig:"PCLEDGER_LOG_FORMAT" default:"json"`
	CORSOrigins  []string `envconfig:"PCLEDGER_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PCLEDGER_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PCLEDGER_DB_DSN"`
	Driver string `envconfig:"PCLEDGER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PCLEDGER_DB_HOST"`
	LegacyPort     int    `envconfig:"PCLEDGER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PCLEDGER_DB_USER"`
	LegacyPassword string `envconfig:"PCLEDGER_DB_PASSWORD"`
	LegacyName     string `envconfig:"PCLEDGER_DB_NAME"`
	LegacySSLMode  string `envconfig:"PCLEDGER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PCLEDGER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PCLEDGER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PCLEDGER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PCLEDGER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PCLEDGER_REDIS_URL"`
	Address      string        `envconfig:"PCLEDGER_REDIS_ADDR"`
	Password     string        `envconfig:"PCLEDGER_REDIS_PASSWORD"`
	DB           int           `envconfig:"PCLEDGER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PCLEDGER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PCLEDGER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PCLEDGER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PCLEDGER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PCLEDGER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"PCLEDGER_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"PCLEDGER_AUTO_MIGRATE" default:"false"`
}

type CronConfig struct {
	AuditInterval time.Duration `envconfig:"PCLEDGER_CRON_AUDIT_INTERVAL" default:"1h"`
	LockTTL       time.Duration `envconfig:"PCLEDGER_CRON_LOCK_TTL" default:"55m"`
}

// CategoryConfig holds the code prefix and default rates for one member category.
type CategoryConfig struct {
	Prefix      string
	DefaultRate decimal.Decimal
	NormalRate  decimal.Decimal
	DigitalRate decimal.Decimal
}

// CommissionConfig keeps code formats and per-category defaults out of the code.
// The historical data used several incompatible schemes, so none of them is hard-wired.
type CommissionConfig struct {
	CodeWidth   int    `envconfig:"PCLEDGER_COMMISSION_CODE_WIDTH" default:"4"`
	TxnPrefix   string `envconfig:"PCLEDGER_COMMISSION_TXN_PREFIX" default:"PC"`
	TxnWidth    int    `envconfig:"PCLEDGER_COMMISSION_TXN_WIDTH" default:"4"`
	Timezone    string `envconfig:"PCLEDGER_COMMISSION_TIMEZONE" default:"Asia/Dhaka"`
	MaxAttempts int    `envconfig:"PCLEDGER_COMMISSION_MAX_ATTEMPTS" default:"5"`

	GeneralPrefix      string `envconfig:"PCLEDGER_COMMISSION_GENERAL_PREFIX" default:"1"`
	GeneralDefaultRate string `envconfig:"PCLEDGER_COMMISSION_GENERAL_DEFAULT_RATE" default:"15"`
	GeneralNormalRate  string `envconfig:"PCLEDGER_COMMISSION_GENERAL_NORMAL_RATE" default:"15"`
	GeneralDigitalRate string `envconfig:"PCLEDGER_COMMISSION_GENERAL_DIGITAL_RATE" default:"20"`

	LifetimePrefix      string `envconfig:"PCLEDGER_COMMISSION_LIFETIME_PREFIX" default:"2"`
	LifetimeDefaultRate string `envconfig:"PCLEDGER_COMMISSION_LIFETIME_DEFAULT_RATE" default:"20"`
	LifetimeNormalRate  string `envconfig:"PCLEDGER_COMMISSION_LIFETIME_NORMAL_RATE" default:"20"`
	LifetimeDigitalRate string `envconfig:"PCLEDGER_COMMISSION_LIFETIME_DIGITAL_RATE" default:"25"`

	PremiumPrefix      string `envconfig:"PCLEDGER_COMMISSION_PREMIUM_PREFIX" default:"3"`
	PremiumDefaultRate string `envconfig:"PCLEDGER_COMMISSION_PREMIUM_DEFAULT_RATE" default:"25"`
	PremiumNormalRate  string `envconfig:"PCLEDGER_COMMISSION_PREMIUM_NORMAL_RATE" default:"25"`
	PremiumDigitalRate string `envconfig:"PCLEDGER_COMMISSION_PREMIUM_DIGITAL_RATE" default:"30"`
}

// DefaultCommissionConfig mirrors the envconfig defaults for callers that do not load the environment.
func DefaultCommissionConfig() CommissionConfig {
	return CommissionConfig{
		CodeWidth:           4,
		TxnPrefix:           "PC",
		TxnWidth:            4,
		Timezone:            "Asia/Dhaka",
		MaxAttempts:         5,
		GeneralPrefix:       "1",
		GeneralDefaultRate:  "15",
		GeneralNormalRate:   "15",
		GeneralDigitalRate:  "20",
		LifetimePrefix:      "2",
		LifetimeDefaultRate: "20",
		LifetimeNormalRate:  "20",
		LifetimeDigitalRate: "25",
		PremiumPrefix:       "3",
		PremiumDefaultRate:  "25",
		PremiumNormalRate:   "25",
		PremiumDigitalRate:  "30",
	}
}

// Categories resolves the per-category settings, parsing rate strings.
func (c CommissionConfig) Categories() (map[enums.MemberCategory]CategoryConfig, error) {
	raw := map[enums.MemberCategory][4]string{
		enums.MemberCategoryGeneral:  {c.GeneralPrefix, c.GeneralDefaultRate, c.GeneralNormalRate, c.GeneralDigitalRate},
		enums.MemberCategoryLifetime: {c.LifetimePrefix, c.LifetimeDefaultRate, c.LifetimeNormalRate, c.LifetimeDigitalRate},
		enums.MemberCategoryPremium:  {c.PremiumPrefix, c.PremiumDefaultRate, c.PremiumNormalRate, c.PremiumDigitalRate},
	}

	out := make(map[enums.MemberCategory]CategoryConfig, len(raw))
	seenPrefix := map[string]enums.MemberCategory{}
	for category, values := range raw {
		prefix := strings.TrimSpace(values[0])
		if prefix == "" {
			return nil, fmt.Errorf("commission prefix for %s is required", category)
		}
		if other, ok := seenPrefix[prefix]; ok {
			return nil, fmt.Errorf("commission prefix %q shared by %s and %s", prefix, other, category)
		}
		seenPrefix[prefix] = category

		rates := make([]decimal.Decimal, 3)
		for i, value := range values[1:] {
			rate, err := decimal.NewFromString(strings.TrimSpace(value))
			if err != nil {
				return nil, fmt.Errorf("invalid commission rate %q for %s: %w", value, category, err)
			}
			if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
				return nil, fmt.Errorf("commission rate %s for %s must be within [0, 100]", rate, category)
			}
			rates[i] = rate
		}
		out[category] = CategoryConfig{
			Prefix:      prefix,
			DefaultRate: rates[0],
			NormalRate:  rates[1],
			DigitalRate: rates[2],
		}
	}
	return out, nil
}

// Location returns the zone used for transaction number date stamps.
func (c CommissionConfig) Location() (*time.Location, error) {
	if strings.TrimSpace(c.Timezone) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading commission timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c CommissionConfig) Validate() error {
	if c.CodeWidth <= 0 || c.TxnWidth <= 0 {
		return fmt.Errorf("commission code widths must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("commission max attempts must be positive")
	}
	if strings.TrimSpace(c.TxnPrefix) == "" {
		return fmt.Errorf("commission transaction prefix is required")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	_, err := c.Categories()
	return err
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.DSN = "file:pcledger.db?_busy_timeout=5000"
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
