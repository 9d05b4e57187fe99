package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Shopify   ShopifyConfig
	Sync      SyncConfig
	Storage   StorageConfig
	Telemetry TelemetryConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds JWT settings for the admin API
type JWTConfig struct {
	Secret                string
	AccessTokenExpiration time.Duration
	Issuer                string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodySize    int64
	TrustedProxies []string
}

// ShopifyConfig holds storefront platform connection settings
type ShopifyConfig struct {
	ShopDomain    string // e.g. "my-store.myshopify.com"
	AccessToken   string
	APIVersion    string // e.g. "2025-07"
	WebhookSecret string // HMAC key for webhook signature verification
	IsSandbox     bool   // sandbox shops never publish products to channels
	Timeout       time.Duration
}

// Endpoint returns the GraphQL admin API URL for the configured shop
func (s *ShopifyConfig) Endpoint() string {
	return fmt.Sprintf("https://%s/admin/api/%s/graphql.json", s.ShopDomain, s.APIVersion)
}

// SyncConfig holds sync engine tuning parameters
type SyncConfig struct {
	DispatchInterval  time.Duration // how often the dispatcher polls for queued jobs
	CommitSize        int           // records persisted per transaction during paging
	PageSize          int           // records requested per remote page
	HeartbeatInterval time.Duration // how often a running job stamps liveness
	IdleThreshold     time.Duration // running job with no heartbeat for this long is stale
	MaxRetries        int           // retry budget before a job fails terminally
	LookbackSkew      time.Duration // subtracted from watermarks to absorb clock skew
	FreshnessWindow   time.Duration // recent-activity window for liveness re-enqueue
	PruneMaxAge       time.Duration // terminal jobs older than this are pruned
	PruneKeep         int           // minimum terminal jobs kept per mode
	ThrottleFloor     time.Duration // minimum pause when nearing the rate budget
	ThrottleCeiling   time.Duration // maximum single backoff pause
	RequestBudgetMin  float64       // available-cost threshold that triggers pacing
}

// StorageConfig holds S3-compatible object storage settings for media staging
type StorageConfig struct {
	Enabled         bool
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	URLExpiration   time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string // OTLP gRPC endpoint (e.g. "localhost:4317")
	ServiceName       string
	Insecure          bool
	ExportInterval    time.Duration
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with STORESYNC_ prefix (e.g., STORESYNC_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("STORESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:                v.GetString("jwt.secret"),
			AccessTokenExpiration: v.GetDuration("jwt.access_token_expiration"),
			Issuer:                v.GetString("jwt.issuer"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			MaxBodySize:    v.GetInt64("http.max_body_size"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
		},
		Shopify: ShopifyConfig{
			ShopDomain:    v.GetString("shopify.shop_domain"),
			AccessToken:   v.GetString("shopify.access_token"),
			APIVersion:    v.GetString("shopify.api_version"),
			WebhookSecret: v.GetString("shopify.webhook_secret"),
			IsSandbox:     v.GetBool("shopify.is_sandbox"),
			Timeout:       v.GetDuration("shopify.timeout"),
		},
		Sync: SyncConfig{
			DispatchInterval:  v.GetDuration("sync.dispatch_interval"),
			CommitSize:        v.GetInt("sync.commit_size"),
			PageSize:          v.GetInt("sync.page_size"),
			HeartbeatInterval: v.GetDuration("sync.heartbeat_interval"),
			IdleThreshold:     v.GetDuration("sync.idle_threshold"),
			MaxRetries:        v.GetInt("sync.max_retries"),
			LookbackSkew:      v.GetDuration("sync.lookback_skew"),
			FreshnessWindow:   v.GetDuration("sync.freshness_window"),
			PruneMaxAge:       v.GetDuration("sync.prune_max_age"),
			PruneKeep:         v.GetInt("sync.prune_keep"),
			ThrottleFloor:     v.GetDuration("sync.throttle_floor"),
			ThrottleCeiling:   v.GetDuration("sync.throttle_ceiling"),
			RequestBudgetMin:  v.GetFloat64("sync.request_budget_min"),
		},
		Storage: StorageConfig{
			Enabled:         v.GetBool("storage.enabled"),
			Endpoint:        v.GetString("storage.endpoint"),
			Region:          v.GetString("storage.region"),
			Bucket:          v.GetString("storage.bucket"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			UsePathStyle:    v.GetBool("storage.use_path_style"),
			URLExpiration:   v.GetDuration("storage.url_expiration"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			ExportInterval:    v.GetDuration("telemetry.export_interval"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "storesync-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "storesync"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.AccessTokenExpiration == 0 {
		cfg.JWT.AccessTokenExpiration = 15 * time.Minute
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "storesync-backend"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 5 << 20 // 5MB, webhook payloads are small
	}
	if cfg.Shopify.APIVersion == "" {
		cfg.Shopify.APIVersion = "2025-07"
	}
	if cfg.Shopify.Timeout == 0 {
		cfg.Shopify.Timeout = 30 * time.Second
	}
	if cfg.Sync.DispatchInterval == 0 {
		cfg.Sync.DispatchInterval = 10 * time.Second
	}
	if cfg.Sync.CommitSize == 0 {
		cfg.Sync.CommitSize = 100
	}
	if cfg.Sync.PageSize == 0 {
		cfg.Sync.PageSize = 50
	}
	if cfg.Sync.HeartbeatInterval == 0 {
		cfg.Sync.HeartbeatInterval = 30 * time.Second
	}
	if cfg.Sync.IdleThreshold == 0 {
		cfg.Sync.IdleThreshold = 10 * time.Minute
	}
	if cfg.Sync.MaxRetries == 0 {
		cfg.Sync.MaxRetries = 3
	}
	if cfg.Sync.LookbackSkew == 0 {
		cfg.Sync.LookbackSkew = 5 * time.Minute
	}
	if cfg.Sync.FreshnessWindow == 0 {
		cfg.Sync.FreshnessWindow = time.Hour
	}
	if cfg.Sync.PruneMaxAge == 0 {
		cfg.Sync.PruneMaxAge = 30 * 24 * time.Hour
	}
	if cfg.Sync.PruneKeep == 0 {
		cfg.Sync.PruneKeep = 20
	}
	if cfg.Sync.ThrottleFloor == 0 {
		cfg.Sync.ThrottleFloor = time.Second
	}
	if cfg.Sync.ThrottleCeiling == 0 {
		cfg.Sync.ThrottleCeiling = 60 * time.Second
	}
	if cfg.Sync.RequestBudgetMin == 0 {
		cfg.Sync.RequestBudgetMin = 100
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.URLExpiration == 0 {
		cfg.Storage.URLExpiration = time.Hour
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "storesync-backend"
	}
	if cfg.Telemetry.ExportInterval == 0 {
		cfg.Telemetry.ExportInterval = 30 * time.Second
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Sync.CommitSize <= 0 {
		return fmt.Errorf("sync.commit_size must be positive")
	}
	if c.Sync.PageSize <= 0 || c.Sync.PageSize > 250 {
		return fmt.Errorf("sync.page_size must be between 1 and 250")
	}
	if c.Sync.ThrottleFloor > c.Sync.ThrottleCeiling {
		return fmt.Errorf("sync.throttle_floor cannot exceed sync.throttle_ceiling")
	}

	if c.App.Env == "production" {
		if c.JWT.Secret == "" {
			return fmt.Errorf("jwt.secret is required in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Shopify.ShopDomain == "" {
			return fmt.Errorf("shopify.shop_domain is required in production")
		}
		if c.Shopify.AccessToken == "" {
			return fmt.Errorf("shopify.access_token is required in production")
		}
		if c.Shopify.WebhookSecret == "" {
			return fmt.Errorf("shopify.webhook_secret is required in production")
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the Redis host:port address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
