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
	Workflow     WorkflowConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
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
	Env          string `envconfig:"MARKETLEDGER_APP_ENV" required:"true"`
	Port         string `envconfig:"MARKETLEDGER_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MARKETLEDGER_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MARKETLEDGER_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"MARKETLEDGER_LOG_FORMAT" default:"json"`

	// CORSOrigins is a comma separated allow list; empty keeps the local dev origins.
	CORSOrigins []string `envconfig:"MARKETLEDGER_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MARKETLEDGER_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MARKETLEDGER_DB_DSN"`
	Driver string `envconfig:"MARKETLEDGER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MARKETLEDGER_DB_HOST"`
	LegacyPort     int    `envconfig:"MARKETLEDGER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MARKETLEDGER_DB_USER"`
	LegacyPassword string `envconfig:"MARKETLEDGER_DB_PASSWORD"`
	LegacyName     string `envconfig:"MARKETLEDGER_DB_NAME"`
	LegacySSLMode  string `envconfig:"MARKETLEDGER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MARKETLEDGER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MARKETLEDGER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MARKETLEDGER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MARKETLEDGER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the configured driver is the embedded sqlite driver.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), "sqlite")
}

type RedisConfig struct {
	URL          string        `envconfig:"MARKETLEDGER_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MARKETLEDGER_REDIS_ADDR"`
	Password     string        `envconfig:"MARKETLEDGER_REDIS_PASSWORD"`
	DB           int           `envconfig:"MARKETLEDGER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MARKETLEDGER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MARKETLEDGER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MARKETLEDGER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MARKETLEDGER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MARKETLEDGER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"MARKETLEDGER_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MARKETLEDGER_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MARKETLEDGER_JWT_EXPIRATION_MINUTES" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"MARKETLEDGER_AUTO_MIGRATE" default:"false"`
}

// WorkflowConfig tunes the change-request and payment-confirmation engines.
type WorkflowConfig struct {
	// ExclusivePending refuses a second pending change request of any kind on an entry.
	ExclusivePending bool          `envconfig:"MARKETLEDGER_WORKFLOW_EXCLUSIVE_PENDING" default:"true"`
	StaleAfter       time.Duration `envconfig:"MARKETLEDGER_WORKFLOW_STALE_AFTER" default:"72h"`
	IdempotencyTTL   time.Duration `envconfig:"MARKETLEDGER_WORKFLOW_IDEMPOTENCY_TTL" default:"10m"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"MARKETLEDGER_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"MARKETLEDGER_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"MARKETLEDGER_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	WorkflowTopic        string `envconfig:"MARKETLEDGER_PUBSUB_WORKFLOW_TOPIC" default:"ml-workflow-events"`
	WorkflowSubscription string `envconfig:"MARKETLEDGER_PUBSUB_WORKFLOW_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MARKETLEDGER_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MARKETLEDGER_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MARKETLEDGER_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"MARKETLEDGER_CRON_INTERVAL" default:"1h"`
	OutboxRetention time.Duration `envconfig:"MARKETLEDGER_CRON_OUTBOX_RETENTION" default:"720h"`
	DLQRetention    time.Duration `envconfig:"MARKETLEDGER_CRON_DLQ_RETENTION" default:"2160h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = "file:marketledger.db?cache=shared"
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
