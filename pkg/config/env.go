package config

// EnvPrefix scopes every variable read by Load.
const EnvPrefix = "MARKETLEDGER"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "MARKETLEDGER_APP_ENV"
	EnvPort     = "MARKETLEDGER_APP_PORT"
	EnvLogLevel = "MARKETLEDGER_LOG_LEVEL"

	EnvDBDSN    = "MARKETLEDGER_DB_DSN"
	EnvDBDriver = "MARKETLEDGER_DB_DRIVER"
	EnvDBHost   = "MARKETLEDGER_DB_HOST"
	EnvDBUser   = "MARKETLEDGER_DB_USER"
	EnvDBName   = "MARKETLEDGER_DB_NAME"

	EnvRedisURL = "MARKETLEDGER_REDIS_URL"

	EnvJWTSecret  = "MARKETLEDGER_JWT_SECRET"
	EnvJWTIssuer  = "MARKETLEDGER_JWT_ISSUER"
	EnvJWTExpMins = "MARKETLEDGER_JWT_EXPIRATION_MINUTES"

	EnvWorkflowExclusivePending = "MARKETLEDGER_WORKFLOW_EXCLUSIVE_PENDING"
	EnvWorkflowStaleAfter       = "MARKETLEDGER_WORKFLOW_STALE_AFTER"

	EnvGCPProjectID        = "MARKETLEDGER_GCP_PROJECT_ID"
	EnvPubSubWorkflowTopic = "MARKETLEDGER_PUBSUB_WORKFLOW_TOPIC"
	EnvPubSubWorkflowSub   = "MARKETLEDGER_PUBSUB_WORKFLOW_SUBSCRIPTION"
	EnvOutboxMaxAttempts   = "MARKETLEDGER_OUTBOX_MAX_ATTEMPTS"
	EnvCronInterval        = "MARKETLEDGER_CRON_INTERVAL"
	EnvCronOutboxRetention = "MARKETLEDGER_CRON_OUTBOX_RETENTION"
	EnvFeatureAutoMigrate  = "MARKETLEDGER_AUTO_MIGRATE"
	EnvIdempotencyTTL      = "MARKETLEDGER_WORKFLOW_IDEMPOTENCY_TTL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
