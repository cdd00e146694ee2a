package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "loomchat"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "LOOMCHAT_DB_DSN"
	EnvDBHost = "LOOMCHAT_DB_HOST"
	EnvDBUser = "LOOMCHAT_DB_USER"
	EnvDBName = "LOOMCHAT_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Quota        QuotaConfig
	AI           AIConfig
	Sweep        SweepConfig
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
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LOOMCHAT_APP_ENV" required:"true"`
	Port         string `envconfig:"LOOMCHAT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LOOMCHAT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LOOMCHAT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LOOMCHAT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"LOOMCHAT_DB_DSN"`
	Driver string `envconfig:"LOOMCHAT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LOOMCHAT_DB_HOST"`
	LegacyPort     int    `envconfig:"LOOMCHAT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LOOMCHAT_DB_USER"`
	LegacyPassword string `envconfig:"LOOMCHAT_DB_PASSWORD"`
	LegacyName     string `envconfig:"LOOMCHAT_DB_NAME"`
	LegacySSLMode  string `envconfig:"LOOMCHAT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LOOMCHAT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LOOMCHAT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LOOMCHAT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LOOMCHAT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LOOMCHAT_REDIS_URL"`
	Address      string        `envconfig:"LOOMCHAT_REDIS_ADDR"`
	Password     string        `envconfig:"LOOMCHAT_REDIS_PASSWORD"`
	DB           int           `envconfig:"LOOMCHAT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LOOMCHAT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LOOMCHAT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LOOMCHAT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LOOMCHAT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LOOMCHAT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret string `envconfig:"LOOMCHAT_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"LOOMCHAT_JWT_ISSUER" required:"true"`
}

// QuotaConfig tunes token estimation and admission behavior.
type QuotaConfig struct {
	// EstimateOverheadTokens is added to every estimate to cover system-prompt
	// and formatting overhead the raw message length does not capture.
	EstimateOverheadTokens int64 `envconfig:"LOOMCHAT_QUOTA_ESTIMATE_OVERHEAD_TOKENS" default:"20"`
	// MinReserveTokens is the floor checked by the lightweight admission variant.
	MinReserveTokens int64 `envconfig:"LOOMCHAT_QUOTA_MIN_RESERVE_TOKENS" default:"100"`
}

type AIConfig struct {
	BaseURL string        `envconfig:"LOOMCHAT_AI_BASE_URL"`
	APIKey  string        `envconfig:"LOOMCHAT_AI_API_KEY"`
	Timeout time.Duration `envconfig:"LOOMCHAT_AI_TIMEOUT" default:"90s"`
	// SearchMultiplier scales token estimates for search requests, which
	// produce long-form answers well beyond the prompt length.
	SearchMultiplier int64 `envconfig:"LOOMCHAT_AI_SEARCH_MULTIPLIER" default:"3"`
}

type SweepConfig struct {
	Interval  time.Duration `envconfig:"LOOMCHAT_SWEEP_INTERVAL" default:"24h"`
	BatchSize int           `envconfig:"LOOMCHAT_SWEEP_BATCH_SIZE" default:"500"`
	LockTTL   time.Duration `envconfig:"LOOMCHAT_SWEEP_LOCK_TTL" default:"25h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"LOOMCHAT_AUTO_MIGRATE" default:"false"`
	SeedPlans   bool `envconfig:"LOOMCHAT_SEED_PLANS" default:"false"`
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
