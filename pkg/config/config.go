package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "DISTRIFLOW"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "DISTRIFLOW_DB_DSN"
	EnvDBHost = "DISTRIFLOW_DB_HOST"
	EnvDBUser = "DISTRIFLOW_DB_USER"
	EnvDBName = "DISTRIFLOW_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Dispatch     DispatchConfig
	Notify       NotifyConfig
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
	Env          string `envconfig:"DISTRIFLOW_APP_ENV" required:"true"`
	Port         string `envconfig:"DISTRIFLOW_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"DISTRIFLOW_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DISTRIFLOW_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"DISTRIFLOW_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"DISTRIFLOW_DB_DSN"`
	Driver string `envconfig:"DISTRIFLOW_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"DISTRIFLOW_DB_HOST"`
	LegacyPort     int    `envconfig:"DISTRIFLOW_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"DISTRIFLOW_DB_USER"`
	LegacyPassword string `envconfig:"DISTRIFLOW_DB_PASSWORD"`
	LegacyName     string `envconfig:"DISTRIFLOW_DB_NAME"`
	LegacySSLMode  string `envconfig:"DISTRIFLOW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DISTRIFLOW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DISTRIFLOW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DISTRIFLOW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DISTRIFLOW_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DISTRIFLOW_REDIS_URL"`
	Address      string        `envconfig:"DISTRIFLOW_REDIS_ADDR"`
	Password     string        `envconfig:"DISTRIFLOW_REDIS_PASSWORD"`
	DB           int           `envconfig:"DISTRIFLOW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DISTRIFLOW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DISTRIFLOW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DISTRIFLOW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DISTRIFLOW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DISTRIFLOW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"DISTRIFLOW_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"DISTRIFLOW_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"DISTRIFLOW_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"DISTRIFLOW_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"DISTRIFLOW_AUTO_MIGRATE" default:"false"`
}

// DispatchConfig tunes the webhook dispatcher and its safety-net worker.
type DispatchConfig struct {
	BatchSize      int           `envconfig:"DISTRIFLOW_DISPATCH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"DISTRIFLOW_DISPATCH_POLL_MS" default:"30000"`
	HTTPTimeout    time.Duration `envconfig:"DISTRIFLOW_DISPATCH_HTTP_TIMEOUT" default:"10s"`
	LockKey        string        `envconfig:"DISTRIFLOW_DISPATCH_LOCK_KEY" default:"distriflow:dispatch:lock"`
	LockTTL        time.Duration `envconfig:"DISTRIFLOW_DISPATCH_LOCK_TTL" default:"2m"`
}

type NotifyConfig struct {
	FromAddress string `envconfig:"DISTRIFLOW_NOTIFY_FROM" default:"alerts@distriflow.io"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if strings.EqualFold(db.Driver, "sqlite") {
		return fmt.Errorf("%s is required when using the sqlite driver", EnvDBDSN)
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
