// Package config loads application configuration from YAML files and
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces the environment overrides, e.g.
// WHATSDRIP_SERVER__PORT=8080.
const envPrefix = "WHATSDRIP_"

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Store     StoreConfig     `koanf:"store"`
	Database  DatabaseConfig  `koanf:"database"`
	Log       LogConfig       `koanf:"log"`
	Auth      AuthConfig      `koanf:"auth"`
	Beem      BeemConfig      `koanf:"beem"`
	Sendy     SendyConfig     `koanf:"sendy"`
	Webhooks  WebhooksConfig  `koanf:"webhooks"`
	CORS      CORSConfig      `koanf:"cors"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Queues    QueuesConfig    `koanf:"queues"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host         string        `koanf:"host"`
	Port         string        `koanf:"port"`
	MetricsPort  string        `koanf:"metrics_port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	// PublicURL is the externally reachable root used when composing
	// webhook URLs handed to the email provider.
	PublicURL string `koanf:"public_url"`
}

// StoreConfig selects and configures the durable document store.
type StoreConfig struct {
	// Backend is "file" or "postgres".
	Backend string `koanf:"backend"`
	// DataDir holds the JSON documents for the file backend.
	DataDir string `koanf:"data_dir"`
	// LockTTL is the stale-lock takeover age for the file backend.
	LockTTL time.Duration `koanf:"lock_ttl"`
}

// DatabaseConfig contains PostgreSQL configuration for the postgres store
// backend.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// AuthConfig contains admin API authentication configuration.
type AuthConfig struct {
	AdminUser         string        `koanf:"admin_user"`
	AdminPasswordHash string        `koanf:"admin_password_hash"`
	JWTSecret         string        `koanf:"jwt_secret"`
	TokenDuration     time.Duration `koanf:"token_duration"`
}

// BeemConfig contains WhatsApp provider configuration.
type BeemConfig struct {
	APIKey         string        `koanf:"api_key"`
	SecretKey      string        `koanf:"secret_key"`
	SenderNumber   string        `koanf:"sender_number"`
	APIBaseURL     string        `koanf:"api_base_url"`
	BroadcastURL   string        `koanf:"broadcast_url"`
	TemplateUserID string        `koanf:"template_user_id"`
	Timeout        time.Duration `koanf:"timeout"`
	RateLimit      float64       `koanf:"rate_limit"`
}

// SendyConfig contains email provider configuration.
type SendyConfig struct {
	BaseURL   string        `koanf:"base_url"`
	APIKey    string        `koanf:"api_key"`
	FromName  string        `koanf:"from_name"`
	FromEmail string        `koanf:"from_email"`
	Timeout   time.Duration `koanf:"timeout"`
}

// WebhooksConfig contains inbound webhook configuration.
type WebhooksConfig struct {
	// PhoneField is the email provider's custom field carrying the
	// subscriber's phone number.
	PhoneField string `koanf:"phone_field"`
}

// CORSConfig contains cross-origin configuration for the admin UI.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// SchedulerConfig contains queue scheduler configuration.
type SchedulerConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Interval   time.Duration `koanf:"interval"`
	RunOnStart bool          `koanf:"run_on_start"`
}

// QueuesConfig contains per-queue processing configuration.
type QueuesConfig struct {
	RetryBackoff time.Duration `koanf:"retry_backoff"`
	// MaxAttempts is the per-step retry ceiling; 0 keeps retrying
	// indefinitely.
	MaxAttempts int           `koanf:"max_attempts"`
	Retention   time.Duration `koanf:"retention"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         "8080",
			MetricsPort:  "9090",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			PublicURL:    "http://localhost:8080",
		},
		Store: StoreConfig{
			Backend: "file",
			DataDir: "data",
			LockTTL: 5 * time.Minute,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Auth: AuthConfig{
			TokenDuration: 12 * time.Hour,
		},
		Beem: BeemConfig{
			Timeout: 30 * time.Second,
		},
		Sendy: SendyConfig{
			Timeout: 30 * time.Second,
		},
		Webhooks: WebhooksConfig{
			PhoneField: "Phone",
		},
		Scheduler: SchedulerConfig{
			Enabled:    true,
			Interval:   15 * time.Minute,
			RunOnStart: true,
		},
		Queues: QueuesConfig{
			RetryBackoff: 5 * time.Minute,
			MaxAttempts:  0,
			Retention:    30 * 24 * time.Hour,
		},
	}
}

// Load reads configuration from the optional YAML file at path, then
// applies environment overrides.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := defaults()

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// WHATSDRIP_SERVER__PORT maps to server.port; double underscore
	// separates levels so single underscores survive in key names.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that koanf cannot express.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "file":
		if c.Store.DataDir == "" {
			return fmt.Errorf("store.data_dir is required for the file backend")
		}
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("store.backend must be \"file\" or \"postgres\", got %q", c.Store.Backend)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Auth.AdminUser == "" || c.Auth.AdminPasswordHash == "" {
		return fmt.Errorf("auth.admin_user and auth.admin_password_hash are required")
	}
	return nil
}
