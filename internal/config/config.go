// Package config defines the global configuration structure for the
// stockwatch daemon. Configuration is loaded once at process start and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format causes the daemon to exit
// immediately on startup (fail fast).
package config

import (
	"time"

	"stockwatch/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the stockwatch daemon.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"STOCKWATCH_ENV" default:"prod" validate:"required,oneof=local dev prod"`
	Service     string `envconfig:"STOCKWATCH_SERVICE_NAME" default:"stockwatch"`
	LogLevel    string `envconfig:"STOCKWATCH_LOG_LEVEL" default:"info"`
	IsTestMode  bool   `envconfig:"STOCKWATCH_IS_TEST_MODE" default:"false"`

	// Domain Configurations
	Server    ServerConfig
	Database  DatabaseConfig
	Monitor   MonitorConfig
	Catalog   CatalogConfig
	Order     OrderConfig
	Telegram  TelegramConfig
	Telemetry TelemetryConfig

	// Build Metadata (read from the binary, not Env)
	Build BuildInfo
}

// ServerConfig holds the management API server settings.
type ServerConfig struct {
	Port string `envconfig:"STOCKWATCH_PORT" default:"8080"`

	// APIKeyHash is the bcrypt hash the X-API-Key header is compared
	// against. The plaintext key never appears in configuration.
	APIKeyHash SecretString `envconfig:"STOCKWATCH_MANAGEMENT_API_KEY_HASH" validate:"required"`

	ShutdownTimeout time.Duration `envconfig:"STOCKWATCH_SHUTDOWN_TIMEOUT" default:"10s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
// An empty URL disables persistence entirely; the monitor then runs purely
// in memory.
type DatabaseConfig struct {
	URL SecretString `envconfig:"STOCKWATCH_DATABASE_URL"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"STOCKWATCH_DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"STOCKWATCH_DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"STOCKWATCH_DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"STOCKWATCH_DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"STOCKWATCH_DB_HEALTH_CHECK_PERIOD" default:"1m"`

	// Snapshot archive settings. The archive stores one compressed
	// availability snapshot per processed subscription per cycle.
	ArchiveEnabled   bool          `envconfig:"STOCKWATCH_ARCHIVE_ENABLED" default:"false"`
	ArchiveRetention time.Duration `envconfig:"STOCKWATCH_ARCHIVE_RETENTION" default:"72h"`
}

// MonitorConfig holds watchdog loop behavior. The poll interval itself is
// pinned in the monitor package and deliberately has no knob here.
type MonitorConfig struct {
	AutoStart bool          `envconfig:"STOCKWATCH_AUTO_START" default:"true"`
	TokenTTL  time.Duration `envconfig:"STOCKWATCH_TOKEN_TTL" default:"24h"`
}

// CatalogConfig holds the stock feed connection settings.
type CatalogConfig struct {
	BaseURL string        `envconfig:"STOCKWATCH_CATALOG_BASE_URL" validate:"required,url"`
	Timeout time.Duration `envconfig:"STOCKWATCH_CATALOG_TIMEOUT" default:"35s"`
}

// OrderConfig holds the quick-order backend settings. An empty BaseURL or
// APIKey switches auto-ordering to the logging stub.
type OrderConfig struct {
	BaseURL string        `envconfig:"STOCKWATCH_ORDER_BASE_URL" validate:"omitempty,url"`
	APIKey  SecretString  `envconfig:"STOCKWATCH_ORDER_API_KEY"`
	Timeout time.Duration `envconfig:"STOCKWATCH_ORDER_TIMEOUT" default:"35s"`
}

// TelegramConfig holds the notification transport settings. An empty
// BotToken switches notifications to the logging stub.
type TelegramConfig struct {
	BotToken SecretString  `envconfig:"STOCKWATCH_TELEGRAM_BOT_TOKEN"`
	ChatID   string        `envconfig:"STOCKWATCH_TELEGRAM_CHAT_ID"`
	BaseURL  string        `envconfig:"STOCKWATCH_TELEGRAM_BASE_URL" validate:"omitempty,url"`
	Timeout  time.Duration `envconfig:"STOCKWATCH_TELEGRAM_TIMEOUT" default:"10s"`
}

// TelemetryConfig holds the optional CloudWatch metrics settings. AWS_REGION
// is deliberately unprefixed; it is the standard SDK variable.
type TelemetryConfig struct {
	Enabled   bool   `envconfig:"STOCKWATCH_METRICS_ENABLED" default:"false"`
	Namespace string `envconfig:"STOCKWATCH_METRIC_NAMESPACE" default:"StockWatch"`
	Region    string `envconfig:"AWS_REGION"`
}

// BuildInfo holds build metadata read from the binary's embedded version
// control information. These values are NOT populated from environment
// variables.
type BuildInfo struct {
	Version string
	Commit  string
	Dirty   bool
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
