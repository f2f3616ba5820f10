package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Store drivers selectable with STORE_DRIVER.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	App      AppConfig
	Tracker  TrackerConfig
	Media    MediaConfig
	Service  ServiceConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"SERVER_PORT" default:"8080"`
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	BaseURL         string        `envconfig:"SERVER_BASE_URL" required:"true"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"10s"`
	IdleTimeout     time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	AllowedOrigins  []string      `envconfig:"SERVER_ALLOWED_ORIGINS"`
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 || c.IdleTimeout <= 0 {
		return fmt.Errorf("read, write and idle timeouts must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	return nil
}

// DatabaseConfig holds database connection configuration. It is only
// validated when the postgres store driver is selected.
type DatabaseConfig struct {
	Host     string `envconfig:"DB_HOST"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER"`
	Password string `envconfig:"DB_PASSWORD"`
	Name     string `envconfig:"DB_NAME"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	MaxConns int32  `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns int32  `envconfig:"DB_MIN_CONNS" default:"1"`
	Migrate  bool   `envconfig:"DB_MIGRATE" default:"true"`
}

// Validate validates the database configuration.
func (c *DatabaseConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if c.User == "" {
		return fmt.Errorf("user cannot be empty")
	}
	if c.Password == "" {
		return fmt.Errorf("password cannot be empty")
	}
	if c.Name == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	if c.MaxConns <= 0 {
		return fmt.Errorf("max connections must be positive")
	}
	if c.MinConns <= 0 {
		return fmt.Errorf("min connections must be positive")
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("min connections (%d) cannot be greater than max connections (%d)", c.MinConns, c.MaxConns)
	}

	validSSLModes := map[string]bool{
		"disable":     true,
		"require":     true,
		"verify-ca":   true,
		"verify-full": true,
	}
	if !validSSLModes[c.SSLMode] {
		return fmt.Errorf("invalid SSL mode: %s (must be one of: disable, require, verify-ca, verify-full)", c.SSLMode)
	}
	return nil
}

// ConnectionString returns the PostgreSQL keyword/value connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// URL returns the postgres:// form of the connection, as the migration
// driver expects.
func (c *DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// AppConfig holds application-specific configuration.
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" required:"true"`         // development, staging, production, test
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`        // debug, info, warn, error
	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres"` // postgres, memory
}

// Validate validates the app configuration.
func (c *AppConfig) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
		"test":        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s (must be one of: development, staging, production, test)", c.Environment)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return fmt.Errorf("invalid store driver: %s (must be one of: postgres, memory)", c.StoreDriver)
	}
	if c.StoreDriver == StoreDriverMemory && c.Environment == "production" {
		return fmt.Errorf("memory store driver is not allowed in production")
	}
	return nil
}

// TrackerConfig tunes the click tracker.
type TrackerConfig struct {
	// MaxIncrementRetries bounds the compare-and-swap loop used when the link
	// store cannot add atomically.
	MaxIncrementRetries int `envconfig:"TRACKER_MAX_INCREMENT_RETRIES" default:"5"`
}

// Validate validates the tracker configuration.
func (c *TrackerConfig) Validate() error {
	if c.MaxIncrementRetries < 1 || c.MaxIncrementRetries > 100 {
		return fmt.Errorf("max increment retries must be between 1 and 100, got %d", c.MaxIncrementRetries)
	}
	return nil
}

// MediaConfig holds object storage settings for profile pictures.
// Media endpoints are disabled when Bucket is empty.
type MediaConfig struct {
	Region    string        `envconfig:"AWS_REGION" default:"us-east-1"`
	Bucket    string        `envconfig:"UPLOAD_BUCKET_NAME"`
	KeyPrefix string        `envconfig:"UPLOAD_KEY_PREFIX" default:"profile-pictures"`
	URLTTL    time.Duration `envconfig:"UPLOAD_URL_TTL" default:"5m"`
}

// Enabled reports whether an upload bucket is configured.
func (c *MediaConfig) Enabled() bool { return c.Bucket != "" }

// Validate validates the media configuration.
func (c *MediaConfig) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.Region == "" {
		return fmt.Errorf("region is required when an upload bucket is set")
	}
	if c.URLTTL <= 0 || c.URLTTL > 7*24*time.Hour {
		return fmt.Errorf("upload URL TTL must be between 0 and 7 days, got %s", c.URLTTL)
	}
	return nil
}

// ServiceConfig identifies the running service in health responses and logs.
type ServiceConfig struct {
	Name    string `envconfig:"SERVICE_NAME" default:"shortly"`
	Version string `envconfig:"SERVICE_VERSION" default:"dev"`
}

// Load loads configuration from environment variables only.
// (.env loading happens in the app package for dev and test.)
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process("", &cfg.App); err != nil {
		return nil, fmt.Errorf("failed to load App config: %w", err)
	}
	if err := cfg.App.Validate(); err != nil {
		return nil, fmt.Errorf("invalid App config: %w", err)
	}

	if err := envconfig.Process("", &cfg.Server); err != nil {
		return nil, fmt.Errorf("failed to load Server config: %w", err)
	}
	if err := cfg.Server.Validate(); err != nil {
		return nil, fmt.Errorf("invalid Server config: %w", err)
	}

	if err := envconfig.Process("", &cfg.Database); err != nil {
		return nil, fmt.Errorf("failed to load Database config: %w", err)
	}
	if cfg.App.StoreDriver == StoreDriverPostgres {
		if err := cfg.Database.Validate(); err != nil {
			return nil, fmt.Errorf("invalid Database config: %w", err)
		}
	}

	if err := envconfig.Process("", &cfg.Tracker); err != nil {
		return nil, fmt.Errorf("failed to load Tracker config: %w", err)
	}
	if err := cfg.Tracker.Validate(); err != nil {
		return nil, fmt.Errorf("invalid Tracker config: %w", err)
	}

	if err := envconfig.Process("", &cfg.Media); err != nil {
		return nil, fmt.Errorf("failed to load Media config: %w", err)
	}
	if err := cfg.Media.Validate(); err != nil {
		return nil, fmt.Errorf("invalid Media config: %w", err)
	}

	if err := envconfig.Process("", &cfg.Service); err != nil {
		return nil, fmt.Errorf("failed to load Service config: %w", err)
	}

	return cfg, nil
}
