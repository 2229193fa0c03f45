package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = "AGENCYPAY"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

// Environment variable names referenced outside struct tags.
const (
	EnvAppEnv     = "AGENCYPAY_APP_ENV"
	EnvPort       = "AGENCYPAY_APP_PORT"
	EnvDBDSN      = "AGENCYPAY_DB_DSN"
	EnvDBHost     = "AGENCYPAY_DB_HOST"
	EnvDBUser     = "AGENCYPAY_DB_USER"
	EnvDBName     = "AGENCYPAY_DB_NAME"
	EnvRedisURL   = "AGENCYPAY_REDIS_URL"
	EnvJWTSecret  = "AGENCYPAY_JWT_SECRET"
	EnvJWTIssuer  = "AGENCYPAY_JWT_ISSUER"
	EnvJWTExpMins = "AGENCYPAY_JWT_EXPIRATION_MINUTES"
	EnvGatewayWallet   = "AGENCYPAY_RISKPAY_MERCHANT_WALLET"
	EnvGatewayCallback = "AGENCYPAY_RISKPAY_CALLBACK_URL"
	EnvSiteURL         = "AGENCYPAY_SITE_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App     AppConfig
	Service ServiceConfig
	DB      DBConfig
	Redis   RedisConfig
	JWT     JWTConfig
	RiskPay RiskPayConfig
	Cron      CronConfig
	Media     MediaConfig
	RateLimit RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"AGENCYPAY_APP_ENV" required:"true"`
	Port         string `envconfig:"AGENCYPAY_APP_PORT" required:"true"`
	SiteURL      string `envconfig:"AGENCYPAY_SITE_URL" required:"true"`
	LogLevel     string `envconfig:"AGENCYPAY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"AGENCYPAY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"AGENCYPAY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"AGENCYPAY_DB_DSN"`
	Driver string `envconfig:"AGENCYPAY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"AGENCYPAY_DB_HOST"`
	LegacyPort     int    `envconfig:"AGENCYPAY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"AGENCYPAY_DB_USER"`
	LegacyPassword string `envconfig:"AGENCYPAY_DB_PASSWORD"`
	LegacyName     string `envconfig:"AGENCYPAY_DB_NAME"`
	LegacySSLMode  string `envconfig:"AGENCYPAY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"AGENCYPAY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"AGENCYPAY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"AGENCYPAY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"AGENCYPAY_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	AutoMigrate bool `envconfig:"AGENCYPAY_DB_AUTO_MIGRATE" default:"false"`
}

type RedisConfig struct {
	URL          string        `envconfig:"AGENCYPAY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"AGENCYPAY_REDIS_ADDR"`
	Password     string        `envconfig:"AGENCYPAY_REDIS_PASSWORD"`
	DB           int           `envconfig:"AGENCYPAY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"AGENCYPAY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"AGENCYPAY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"AGENCYPAY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"AGENCYPAY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"AGENCYPAY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"AGENCYPAY_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"AGENCYPAY_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"AGENCYPAY_JWT_EXPIRATION_MINUTES" required:"true"`
}

// RiskPayConfig points at the crypto payment gateway. CallbackURL is the
// customer-facing success page; the transaction id is appended per request.
type RiskPayConfig struct {
	APIBaseURL     string        `envconfig:"AGENCYPAY_RISKPAY_BASE_URL" default:"https://api.riskpay.biz/control"`
	PaymentPageURL string        `envconfig:"AGENCYPAY_RISKPAY_PAYMENT_PAGE_URL" default:"https://pay.riskpay.biz/payment-processing.php"`
	MerchantWallet string        `envconfig:"AGENCYPAY_RISKPAY_MERCHANT_WALLET" required:"true"`
	CallbackURL    string        `envconfig:"AGENCYPAY_RISKPAY_CALLBACK_URL" required:"true"`
	Timeout        time.Duration `envconfig:"AGENCYPAY_RISKPAY_TIMEOUT" default:"10s"`
}

type CronConfig struct {
	PaymentPollInterval time.Duration `envconfig:"AGENCYPAY_CRON_PAYMENT_POLL_INTERVAL" default:"1m"`
	LockTTL             time.Duration `envconfig:"AGENCYPAY_CRON_LOCK_TTL" default:"5m"`
}

// RateLimitConfig throttles the unauthenticated webhook surface.
type RateLimitConfig struct {
	WebhookWindow  time.Duration `envconfig:"AGENCYPAY_RATE_LIMIT_WEBHOOK_WINDOW" default:"1m"`
	WebhookIPLimit int           `envconfig:"AGENCYPAY_RATE_LIMIT_WEBHOOK_IP_LIMIT" default:"120"`
}

type MediaConfig struct {
	Dir              string `envconfig:"AGENCYPAY_MEDIA_DIR" default:"./media"`
	ProofMaxUploadMB int    `envconfig:"AGENCYPAY_PROOF_MAX_UPLOAD_MB" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
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
