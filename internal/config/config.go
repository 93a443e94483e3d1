// Package config loads service configuration from an optional YAML file and
// TOURDESK_ environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables read by Load.
// Nested keys are separated by a double underscore, e.g.
// TOURDESK_NOTIFICATIONS__QUEUE__MAX_RETRIES.
const EnvPrefix = "TOURDESK_"

// Storage backends.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

// Config is the root service configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Redis         RedisConfig         `koanf:"redis"`
	NATS          NATSConfig          `koanf:"nats"`
	Log           LogConfig           `koanf:"log"`
	JWT           JWTConfig           `koanf:"jwt"`
	CORS          CORSConfig          `koanf:"cors"`
	Notifications NotificationsConfig `koanf:"notifications"`
}

// ServerConfig configures the HTTP servers.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig configures PostgreSQL. URL is required only when a
// postgres storage backend is selected.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// RedisConfig configures the Redis client used by the in-app inbox.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// NATSConfig configures the domain event subscription. An empty URL
// disables it.
type NATSConfig struct {
	URL     string `koanf:"url"`
	Subject string `koanf:"subject"`
	Queue   string `koanf:"queue"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// JWTConfig configures bearer token validation.
type JWTConfig struct {
	SecretKey string `koanf:"secret_key"`
	Issuer    string `koanf:"issuer"`
}

// CORSConfig configures allowed browser origins.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// NotificationsConfig configures the dispatch engine and its channels.
type NotificationsConfig struct {
	Queue           QueueConfig   `koanf:"queue"`
	Retention       time.Duration `koanf:"retention"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	StatsInterval   time.Duration `koanf:"stats_interval"`
	// Storage selects the message and preference store: memory or postgres.
	Storage string `koanf:"storage"`
	// Inbox selects the in-app inbox store: memory or redis.
	Inbox           string        `koanf:"inbox"`
	InboxMaxEntries int64         `koanf:"inbox_max_entries"`
	InboxTTL        time.Duration `koanf:"inbox_ttl"`

	Email EmailConfig `koanf:"email"`
	Push  PushConfig  `koanf:"push"`
	SMS   SMSConfig   `koanf:"sms"`
}

// QueueConfig configures the priority retry queue.
type QueueConfig struct {
	MaxConcurrency    int           `koanf:"max_concurrency"`
	MaxRetries        int           `koanf:"max_retries"`
	RetryDelay        time.Duration `koanf:"retry_delay"`
	ProcessingTimeout time.Duration `koanf:"processing_timeout"`
	PollInterval      time.Duration `koanf:"poll_interval"`
}

// EmailConfig configures SMTP delivery.
type EmailConfig struct {
	Enabled      bool          `koanf:"enabled"`
	SMTPHost     string        `koanf:"smtp_host"`
	SMTPPort     int           `koanf:"smtp_port"`
	SMTPUser     string        `koanf:"smtp_user"`
	SMTPPassword string        `koanf:"smtp_password"`
	FromAddress  string        `koanf:"from_address"`
	TLSPolicy    string        `koanf:"tls_policy"`
	Timeout      time.Duration `koanf:"timeout"`
}

// PushConfig configures the push gateway.
type PushConfig struct {
	GatewayURL string        `koanf:"gateway_url"`
	APIKey     string        `koanf:"api_key"`
	Timeout    time.Duration `koanf:"timeout"`
}

// SMSConfig configures SMS pacing.
type SMSConfig struct {
	RatePerSecond float64 `koanf:"rate_per_second"`
	Burst         int     `koanf:"burst"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
			AutoMigrate:     true,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		NATS: NATSConfig{
			Subject: "tourdesk.events.>",
			Queue:   "tourdesk-notifications",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		JWT: JWTConfig{
			Issuer: "tourdesk",
		},
		Notifications: NotificationsConfig{
			Queue: QueueConfig{
				MaxConcurrency:    5,
				MaxRetries:        3,
				RetryDelay:        5 * time.Second,
				ProcessingTimeout: 30 * time.Second,
				PollInterval:      time.Second,
			},
			Retention:       7 * 24 * time.Hour,
			CleanupInterval: time.Hour,
			StatsInterval:   15 * time.Second,
			Storage:         StorageMemory,
			Inbox:           StorageMemory,
			InboxMaxEntries: 100,
			InboxTTL:        30 * 24 * time.Hour,
			Email: EmailConfig{
				SMTPPort:  587,
				TLSPolicy: "opportunistic",
				Timeout:   10 * time.Second,
			},
			Push: PushConfig{
				Timeout: 10 * time.Second,
			},
			SMS: SMSConfig{
				RatePerSecond: 10,
				Burst:         1,
			},
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is not empty) and environment variables, in that order of precedence.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envValue(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")

	if key == "cors.allowed_origins" {
		var origins []string
		for _, origin := range strings.Split(value, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				origins = append(origins, origin)
			}
		}
		return key, origins
	}
	return key, value
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.JWT.SecretKey == "" {
		errs = append(errs, errors.New("jwt.secret_key is required"))
	} else if len(c.JWT.SecretKey) < 32 {
		errs = append(errs, errors.New("jwt.secret_key must be at least 32 characters"))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is invalid", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is invalid", c.Log.Format))
	}

	n := c.Notifications
	switch n.Storage {
	case StorageMemory:
	case StoragePostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("notifications.storage %q is invalid", n.Storage))
	}
	switch n.Inbox {
	case StorageMemory:
	case StorageRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for redis inbox"))
		}
	default:
		errs = append(errs, fmt.Errorf("notifications.inbox %q is invalid", n.Inbox))
	}

	if n.Queue.MaxConcurrency < 1 {
		errs = append(errs, errors.New("notifications.queue.max_concurrency must be at least 1"))
	}
	if n.Queue.MaxRetries < 0 {
		errs = append(errs, errors.New("notifications.queue.max_retries must not be negative"))
	}
	if n.Queue.RetryDelay <= 0 {
		errs = append(errs, errors.New("notifications.queue.retry_delay must be positive"))
	}
	if n.Queue.ProcessingTimeout <= 0 {
		errs = append(errs, errors.New("notifications.queue.processing_timeout must be positive"))
	}
	if n.Retention <= 0 {
		errs = append(errs, errors.New("notifications.retention must be positive"))
	}
	if n.CleanupInterval <= 0 || n.StatsInterval <= 0 {
		errs = append(errs, errors.New("notifications cleanup and stats intervals must be positive"))
	}

	if n.Email.Enabled {
		if n.Email.SMTPHost == "" {
			errs = append(errs, errors.New("notifications.email.smtp_host is required when email is enabled"))
		}
		if n.Email.FromAddress == "" {
			errs = append(errs, errors.New("notifications.email.from_address is required when email is enabled"))
		}
	}

	return errors.Join(errs...)
}
