package config

const (
	EnvPrefix = "LIBRARY"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	LockerLocal = "local"
	LockerRedis = "redis"

	TransportMemory = "memory"
	TransportRedis  = "redis"
	TransportPubSub = "pubsub"
)

const (
	EnvAppEnv   = "LIBRARY_APP_ENV"
	EnvPort     = "LIBRARY_APP_PORT"
	EnvLogLevel = "LIBRARY_LOG_LEVEL"

	EnvDBDSN     = "LIBRARY_DB_DSN"
	EnvDBDriver  = "LIBRARY_DB_DRIVER"
	EnvDBHost    = "LIBRARY_DB_HOST"
	EnvDBUser    = "LIBRARY_DB_USER"
	EnvDBName    = "LIBRARY_DB_NAME"
	EnvUseSQLite = "LIBRARY_USE_SQLITE"

	EnvRedisURL = "LIBRARY_REDIS_URL"

	EnvGCPProjectID = "LIBRARY_GCP_PROJECT_ID"

	EnvScanIntervalSeconds = "LIBRARY_SCAN_INTERVAL_SECONDS"
	EnvFineUnitRate        = "LIBRARY_FINE_UNIT_RATE"
	EnvFineCap             = "LIBRARY_FINE_CAP"
	EnvLoansLocker         = "LIBRARY_LOANS_LOCKER"

	EnvNotificationTransport = "LIBRARY_NOTIFICATION_TRANSPORT"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
