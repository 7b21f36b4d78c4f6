package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Mpesa        MpesaConfig
	Checkout     CheckoutConfig
	Settlement   SettlementConfig
	Cron         CronConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Mpesa.validate(); err != nil {
		return nil, err
	}
	if _, err := cfg.Settlement.Rate(); err != nil {
		return nil, err
	}
	if cfg.Checkout.DispatchTimeout <= cfg.Mpesa.RequestTimeout {
		return nil, fmt.Errorf("%s must exceed %s", EnvCheckoutDispatchTimeout, EnvMpesaRequestTimeout)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"DUKALINK_APP_ENV" required:"true"`
	Port         string `envconfig:"DUKALINK_APP_PORT" required:"true"`
	PublicURL    string `envconfig:"DUKALINK_APP_PUBLIC_URL" default:"http://localhost:8080"`
	LogLevel     string `envconfig:"DUKALINK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DUKALINK_LOG_WARN_STACK" default:"false"`
	// CORSOrigins is a comma separated list of storefront origins.
	CORSOrigins []string `envconfig:"DUKALINK_APP_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"DUKALINK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"DUKALINK_DB_DSN"`
	Driver string `envconfig:"DUKALINK_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"DUKALINK_DB_HOST"`
	Port     int    `envconfig:"DUKALINK_DB_PORT" default:"5432"`
	User     string `envconfig:"DUKALINK_DB_USER"`
	Password string `envconfig:"DUKALINK_DB_PASSWORD"`
	Name     string `envconfig:"DUKALINK_DB_NAME"`
	SSLMode  string `envconfig:"DUKALINK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DUKALINK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DUKALINK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DUKALINK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DUKALINK_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQuery      time.Duration `envconfig:"DUKALINK_DB_SLOW_QUERY" default:"500ms"`
	ConnectRetries int           `envconfig:"DUKALINK_DB_CONNECT_RETRIES" default:"3"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DUKALINK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"DUKALINK_REDIS_ADDR"`
	Password     string        `envconfig:"DUKALINK_REDIS_PASSWORD"`
	DB           int           `envconfig:"DUKALINK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DUKALINK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DUKALINK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DUKALINK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DUKALINK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DUKALINK_REDIS_WRITE_TIMEOUT" default:"5s"`
	Namespace    string        `envconfig:"DUKALINK_REDIS_NAMESPACE" default:"dl"`
}

// JWTConfig verifies bearer tokens minted by the accounts service.
type JWTConfig struct {
	Secret            string `envconfig:"DUKALINK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"DUKALINK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int           `envconfig:"DUKALINK_JWT_EXPIRATION_MINUTES" default:"60"`
	Leeway            time.Duration `envconfig:"DUKALINK_JWT_LEEWAY" default:"30s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"DUKALINK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"DUKALINK_AUTO_MIGRATE" default:"false"`
}

// MpesaConfig holds the Daraja credentials used for STK push.
type MpesaConfig struct {
	Environment    string        `envconfig:"DUKALINK_MPESA_ENVIRONMENT" default:"sandbox"`
	BaseURL        string        `envconfig:"DUKALINK_MPESA_BASE_URL"`
	ConsumerKey    string        `envconfig:"DUKALINK_MPESA_CONSUMER_KEY"`
	ConsumerSecret string        `envconfig:"DUKALINK_MPESA_CONSUMER_SECRET"`
	Shortcode      string        `envconfig:"DUKALINK_MPESA_SHORTCODE" default:"174379"`
	Passkey        string        `envconfig:"DUKALINK_MPESA_PASSKEY"`
	CallbackURL    string        `envconfig:"DUKALINK_MPESA_CALLBACK_URL"`
	RequestTimeout time.Duration `envconfig:"DUKALINK_MPESA_REQUEST_TIMEOUT" default:"30s"`
	RatePerSecond  float64       `envconfig:"DUKALINK_MPESA_RATE_PER_SEC" default:"5"`
	RateBurst      int           `envconfig:"DUKALINK_MPESA_RATE_BURST" default:"10"`
}

// ResolvedBaseURL returns the explicit base url or the one implied by Environment.
func (m MpesaConfig) ResolvedBaseURL() string {
	if base := strings.TrimSpace(m.BaseURL); base != "" {
		return strings.TrimRight(base, "/")
	}
	if strings.EqualFold(strings.TrimSpace(m.Environment), MpesaEnvProduction) {
		return MpesaProductionURL
	}
	return MpesaSandboxURL
}

func (m MpesaConfig) validate() error {
	env := strings.ToLower(strings.TrimSpace(m.Environment))
	if env != MpesaEnvSandbox && env != MpesaEnvProduction {
		return fmt.Errorf("%s must be %q or %q", EnvMpesaEnvironment, MpesaEnvSandbox, MpesaEnvProduction)
	}
	if env == MpesaEnvProduction {
		missing := []string{}
		for name, value := range map[string]string{
			EnvMpesaConsumerKey:    m.ConsumerKey,
			EnvMpesaConsumerSecret: m.ConsumerSecret,
			EnvMpesaPasskey:        m.Passkey,
			EnvMpesaCallbackURL:    m.CallbackURL,
		} {
			if strings.TrimSpace(value) == "" {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("production mpesa requires %s", strings.Join(sortedStrings(missing), ", "))
		}
	}
	return nil
}

type CheckoutConfig struct {
	QueryAfter      time.Duration `envconfig:"DUKALINK_CHECKOUT_QUERY_AFTER" default:"30s"`
	ExpireAfter     time.Duration `envconfig:"DUKALINK_CHECKOUT_EXPIRE_AFTER" default:"5m"`
	AttemptTTL      time.Duration `envconfig:"DUKALINK_CHECKOUT_ATTEMPT_TTL" default:"24h"`
	DispatchTimeout time.Duration `envconfig:"DUKALINK_CHECKOUT_DISPATCH_TIMEOUT" default:"2m"`
	CartTTL         time.Duration `envconfig:"DUKALINK_CHECKOUT_CART_TTL" default:"168h"`
	IdempotencyTTL  time.Duration `envconfig:"DUKALINK_CHECKOUT_IDEMPOTENCY_TTL" default:"24h"`
	StatusPollRPM   int           `envconfig:"DUKALINK_CHECKOUT_STATUS_POLL_RPM" default:"60"`
}

type SettlementConfig struct {
	CommissionRate string `envconfig:"DUKALINK_SETTLEMENT_COMMISSION_RATE" default:"0"`
}

// Rate parses the commission rate as a fraction in [0, 1).
func (s SettlementConfig) Rate() (decimal.Decimal, error) {
	raw := strings.TrimSpace(s.CommissionRate)
	if raw == "" {
		return decimal.Zero, nil
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing %s: %w", EnvSettlementCommissionRate, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("%s must be in [0, 1), got %s", EnvSettlementCommissionRate, raw)
	}
	return rate, nil
}

type CronConfig struct {
	Interval time.Duration `envconfig:"DUKALINK_CRON_INTERVAL" default:"30s"`
	LockTTL  time.Duration `envconfig:"DUKALINK_CRON_LOCK_TTL" default:"25s"`
	Batch    int           `envconfig:"DUKALINK_CRON_BATCH_SIZE" default:"100"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"DUKALINK_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"DUKALINK_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	DomainTopic  string `envconfig:"DUKALINK_PUBSUB_DOMAIN_TOPIC" default:"dukalink-domain-events"`
	EmulatorHost string `envconfig:"PUBSUB_EMULATOR_HOST"`
	// MessageOrdering keys messages by aggregate id so subscribers see one
	// order's events in emission order.
	MessageOrdering bool          `envconfig:"DUKALINK_PUBSUB_MESSAGE_ORDERING" default:"true"`
	BatchDelay      time.Duration `envconfig:"DUKALINK_PUBSUB_BATCH_DELAY" default:"10ms"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"DUKALINK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"DUKALINK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"DUKALINK_OUTBOX_MAX_ATTEMPTS" default:"10"`
	// Retention is how long published events stay in outbox_events.
	Retention time.Duration `envconfig:"DUKALINK_OUTBOX_RETENTION" default:"720h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dbPartEnvVars {
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
