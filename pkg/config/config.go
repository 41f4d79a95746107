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
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	FeatureFlags  FeatureFlagsConfig
	HTTP          HTTPConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Loans         LoansConfig
	Notifications NotificationsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Loans.Locker {
	case LockerLocal, LockerRedis:
	default:
		return fmt.Errorf("%s must be one of %q or %q", EnvLoansLocker, LockerLocal, LockerRedis)
	}
	if c.Loans.Locker == LockerRedis && !c.Redis.Enabled() {
		return fmt.Errorf("%s=%s requires %s", EnvLoansLocker, LockerRedis, EnvRedisURL)
	}

	switch c.Notifications.Transport {
	case TransportMemory:
	case TransportRedis:
		if !c.Redis.Enabled() {
			return fmt.Errorf("%s=%s requires %s", EnvNotificationTransport, TransportRedis, EnvRedisURL)
		}
	case TransportPubSub:
		if strings.TrimSpace(c.GCP.ProjectID) == "" {
			return fmt.Errorf("%s=%s requires %s", EnvNotificationTransport, TransportPubSub, EnvGCPProjectID)
		}
	default:
		return fmt.Errorf("%s must be one of memory, redis, pubsub", EnvNotificationTransport)
	}

	if c.Loans.FineUnitRate.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvFineUnitRate)
	}
	if c.Loans.FineCap.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvFineCap)
	}
	if c.Loans.ScanIntervalSeconds <= 0 {
		return fmt.Errorf("%s must be positive", EnvScanIntervalSeconds)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"LIBRARY_APP_ENV" required:"true"`
	Port         string `envconfig:"LIBRARY_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"LIBRARY_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"LIBRARY_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"LIBRARY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LIBRARY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"LIBRARY_DB_DSN"`
	Driver string `envconfig:"LIBRARY_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"LIBRARY_DB_HOST"`
	Port     int    `envconfig:"LIBRARY_DB_PORT" default:"5432"`
	User     string `envconfig:"LIBRARY_DB_USER"`
	Password string `envconfig:"LIBRARY_DB_PASSWORD"`
	Name     string `envconfig:"LIBRARY_DB_NAME"`
	SSLMode  string `envconfig:"LIBRARY_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"LIBRARY_DB_SQLITE_PATH" default:"library.db"`

	MaxOpenConns    int           `envconfig:"LIBRARY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LIBRARY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LIBRARY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LIBRARY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the sqlite driver is selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"LIBRARY_REDIS_URL"`
	Address      string        `envconfig:"LIBRARY_REDIS_ADDR"`
	Password     string        `envconfig:"LIBRARY_REDIS_PASSWORD"`
	DB           int           `envconfig:"LIBRARY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LIBRARY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LIBRARY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LIBRARY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LIBRARY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LIBRARY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a Redis endpoint has been configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"LIBRARY_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"LIBRARY_AUTO_MIGRATE" default:"false"`
	Idempotency bool `envconfig:"LIBRARY_FEATURE_IDEMPOTENCY" default:"true"`
}

type HTTPConfig struct {
	AllowedOrigins  []string      `envconfig:"LIBRARY_HTTP_ALLOWED_ORIGINS" default:"*"`
	ReadTimeout     time.Duration `envconfig:"LIBRARY_HTTP_READ_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"LIBRARY_HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
	IdempotencyTTL  time.Duration `envconfig:"LIBRARY_HTTP_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"LIBRARY_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"LIBRARY_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"LIBRARY_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NotificationTopic        string `envconfig:"LIBRARY_PUBSUB_NOTIFICATION_TOPIC" default:"library-notification-events"`
	NotificationSubscription string `envconfig:"LIBRARY_PUBSUB_NOTIFICATION_SUBSCRIPTION"`
}

type LoansConfig struct {
	ScanIntervalSeconds int             `envconfig:"LIBRARY_SCAN_INTERVAL_SECONDS" default:"60"`
	ScannerEmbedded     bool            `envconfig:"LIBRARY_SCANNER_EMBEDDED" default:"false"`
	FineUnitRate        decimal.Decimal `envconfig:"LIBRARY_FINE_UNIT_RATE" default:"1"`
	FineCap             decimal.Decimal `envconfig:"LIBRARY_FINE_CAP" default:"0"`
	DefaultLoanDays     int             `envconfig:"LIBRARY_DEFAULT_LOAN_DAYS" default:"14"`
	Locker              string          `envconfig:"LIBRARY_LOANS_LOCKER" default:"local"`
	LockTimeout         time.Duration   `envconfig:"LIBRARY_LOCK_TIMEOUT" default:"5s"`
	LockTTL             time.Duration   `envconfig:"LIBRARY_LOCK_TTL" default:"30s"`
	ItemUpdateRetries   uint64          `envconfig:"LIBRARY_ITEM_UPDATE_RETRIES" default:"3"`
	RetryBaseDelay      time.Duration   `envconfig:"LIBRARY_RETRY_BASE_DELAY" default:"50ms"`
}

// ScanInterval returns the overdue scan cadence.
func (l LoansConfig) ScanInterval() time.Duration {
	if l.ScanIntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(l.ScanIntervalSeconds) * time.Second
}

type NotificationsConfig struct {
	Transport        string        `envconfig:"LIBRARY_NOTIFICATION_TRANSPORT" default:"memory"`
	Channel          string        `envconfig:"LIBRARY_NOTIFICATION_CHANNEL" default:"library:notifications"`
	PublishTimeout   time.Duration `envconfig:"LIBRARY_PUBLISH_TIMEOUT" default:"2s"`
	SubscriberBuffer int           `envconfig:"LIBRARY_SUBSCRIBER_BUFFER" default:"16"`
	StreamKeepAlive  time.Duration `envconfig:"LIBRARY_STREAM_KEEPALIVE" default:"25s"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DriverSQLite
	}
	if db.IsSQLite() {
		if db.DSN == "" {
			db.DSN = db.SQLitePath
		}
		return nil
	}
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
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
