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
	Fees         FeesConfig
	Withdrawals  WithdrawalsConfig
	Deadlines    DeadlinesConfig
	Payout       PayoutProviderConfig
	Notify       NotifyConfig
	Sweep        SweepConfig
	Tickets      TicketsConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Fees.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Withdrawals.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SOKONI_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"SOKONI_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SOKONI_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SOKONI_SERVICE_KIND" default:"settlement-worker"`
}

type DBConfig struct {
	DSN    string `envconfig:"SOKONI_DB_DSN"`
	Driver string `envconfig:"SOKONI_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SOKONI_DB_HOST"`
	LegacyPort     int    `envconfig:"SOKONI_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SOKONI_DB_USER"`
	LegacyPassword string `envconfig:"SOKONI_DB_PASSWORD"`
	LegacyName     string `envconfig:"SOKONI_DB_NAME"`
	LegacySSLMode  string `envconfig:"SOKONI_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SOKONI_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SOKONI_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SOKONI_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SOKONI_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SOKONI_REDIS_URL"`
	Address      string        `envconfig:"SOKONI_REDIS_ADDR"`
	Password     string        `envconfig:"SOKONI_REDIS_PASSWORD"`
	DB           int           `envconfig:"SOKONI_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SOKONI_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SOKONI_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SOKONI_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SOKONI_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SOKONI_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// FeesConfig holds the platform's percentage cuts.
type FeesConfig struct {
	PlatformFeePercent      float64 `envconfig:"SOKONI_PLATFORM_FEE_PERCENT" default:"10"`
	EventWithdrawFeePercent float64 `envconfig:"SOKONI_EVENT_WITHDRAW_FEE_PERCENT" default:"6"`
}

func (f FeesConfig) validate() error {
	if f.PlatformFeePercent < 0 || f.PlatformFeePercent >= 100 {
		return fmt.Errorf("platform fee percent must be in [0, 100): %v", f.PlatformFeePercent)
	}
	if f.EventWithdrawFeePercent < 0 || f.EventWithdrawFeePercent >= 100 {
		return fmt.Errorf("event withdraw fee percent must be in [0, 100): %v", f.EventWithdrawFeePercent)
	}
	return nil
}

// PlatformFeeRate returns the platform fee as a fraction (e.g. 0.10).
func (f FeesConfig) PlatformFeeRate() decimal.Decimal {
	return decimal.NewFromFloat(f.PlatformFeePercent).Div(decimal.NewFromInt(100))
}

// EventWithdrawFeeRate returns the event payout fee as a fraction.
func (f FeesConfig) EventWithdrawFeeRate() decimal.Decimal {
	return decimal.NewFromFloat(f.EventWithdrawFeePercent).Div(decimal.NewFromInt(100))
}

type WithdrawalsConfig struct {
	MinAmount        float64       `envconfig:"SOKONI_WITHDRAWAL_MIN_AMOUNT" default:"100"`
	MaxAmount        float64       `envconfig:"SOKONI_WITHDRAWAL_MAX_AMOUNT" default:"500000"`
	ReconcileAfter   time.Duration `envconfig:"SOKONI_WITHDRAWAL_RECONCILE_AFTER" default:"1h"`
	ReconcileCeiling time.Duration `envconfig:"SOKONI_WITHDRAWAL_RECONCILE_CEILING" default:"48h"`
	ExecutorQueue    int           `envconfig:"SOKONI_WITHDRAWAL_EXECUTOR_QUEUE" default:"64"`
}

func (w WithdrawalsConfig) validate() error {
	if w.MinAmount <= 0 || w.MaxAmount <= w.MinAmount {
		return fmt.Errorf("withdrawal bounds invalid: min %v max %v", w.MinAmount, w.MaxAmount)
	}
	if w.ReconcileCeiling <= w.ReconcileAfter {
		return fmt.Errorf("withdrawal reconcile ceiling must exceed threshold")
	}
	return nil
}

func (w WithdrawalsConfig) Min() decimal.Decimal { return decimal.NewFromFloat(w.MinAmount) }
func (w WithdrawalsConfig) Max() decimal.Decimal { return decimal.NewFromFloat(w.MaxAmount) }

// DeadlinesConfig holds the time windows enforced by the deadline sweeps.
type DeadlinesConfig struct {
	SellerDropoffWindow time.Duration `envconfig:"SOKONI_SELLER_DROPOFF_WINDOW" default:"48h"`
	BuyerPickupWindow   time.Duration `envconfig:"SOKONI_BUYER_PICKUP_WINDOW" default:"48h"`
	ServiceCoolingOff   time.Duration `envconfig:"SOKONI_SERVICE_COOLING_OFF" default:"24h"`
}

type PayoutProviderConfig struct {
	BaseURL   string        `envconfig:"SOKONI_PAYOUT_BASE_URL"`
	APIKey    string        `envconfig:"SOKONI_PAYOUT_API_KEY"`
	Timeout   time.Duration `envconfig:"SOKONI_PAYOUT_TIMEOUT" default:"30s"`
	Narration string        `envconfig:"SOKONI_PAYOUT_NARRATION" default:"Sokoni payout"`
}

type NotifyConfig struct {
	MaxAttempts int           `envconfig:"SOKONI_NOTIFY_MAX_ATTEMPTS" default:"3"`
	Backoff     time.Duration `envconfig:"SOKONI_NOTIFY_BACKOFF" default:"2s"`
	QueueSize   int           `envconfig:"SOKONI_NOTIFY_QUEUE_SIZE" default:"256"`
}

type SweepConfig struct {
	Interval  time.Duration `envconfig:"SOKONI_SWEEP_INTERVAL" default:"15m"`
	BatchSize int           `envconfig:"SOKONI_SWEEP_BATCH_SIZE" default:"100"`
}

type TicketsConfig struct {
	AmountTolerance float64 `envconfig:"SOKONI_TICKET_AMOUNT_TOLERANCE" default:"1"`
}

// Tolerance returns the allowed rounding slack when re-validating a paid
// ticket amount against the catalog price.
func (t TicketsConfig) Tolerance() decimal.Decimal {
	return decimal.NewFromFloat(t.AmountTolerance)
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SOKONI_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SOKONI_AUTO_MIGRATE" default:"false"`
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
