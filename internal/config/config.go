// Package config provides configuration management for the sealbox service.
// Configuration is loaded from environment variables with the SEALBOX_ prefix.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sealbox/sealbox/internal/store"
)

// Config holds all configuration settings for the sealbox service.
type Config struct {
	Server        ServerConfig
	Secret        SecretConfig
	Store         StoreConfig
	BotCheck      BotCheckConfig
	Log           LogConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP and metrics server settings.
type ServerConfig struct {
	// HTTPPort is the port for the secrets API (default: 8080)
	HTTPPort int
	// MetricsPort is the port for Prometheus metrics (default: 9091)
	MetricsPort int
	// ShutdownTimeout is the graceful shutdown timeout (default: 30s)
	ShutdownTimeout time.Duration
	// ReadTimeout is the maximum duration for reading a request (default: 30s)
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing a response (default: 30s)
	WriteTimeout time.Duration
	// IdleTimeout is the keep-alive idle timeout (default: 120s)
	IdleTimeout time.Duration
	// CORSOrigin is the allowed CORS origin (default: *)
	CORSOrigin string
}

// SecretConfig holds secret lifecycle settings.
type SecretConfig struct {
	// SystemKey is the deployment-wide key for the outermost encryption
	// layer (required)
	SystemKey string
}

// StoreConfig holds settings for the key-value backend.
type StoreConfig struct {
	// Backend selects the store implementation: memory, postgres, sqlite,
	// vault or minio (default: memory)
	Backend string

	// Postgres settings (required when backend is postgres)
	PostgresURL          string
	PostgresMaxConns     int
	PostgresMinConns     int
	PostgresConnLifetime time.Duration

	// SQLite settings (required when backend is sqlite)
	SQLiteDataDir string

	// Vault settings (required when backend is vault)
	VaultAddress    string
	VaultToken      string
	VaultNamespace  string
	VaultMount      string
	VaultPathPrefix string
	VaultTimeout    time.Duration

	// MinIO/S3 settings (required when backend is minio)
	MinioEndpoint        string
	MinioBucket          string
	MinioRegion          string
	MinioAccessKeyID     string
	MinioSecretAccessKey string
	MinioUseSSL          bool
	MinioPathPrefix      string
}

// BotCheckConfig holds bot-protection settings.
type BotCheckConfig struct {
	// Enabled turns on Turnstile token verification for all actions except
	// healthcheck (default: false)
	Enabled bool
	// SecretKey is the Turnstile secret key (required when enabled)
	SecretKey string
	// VerifyURL overrides the siteverify endpoint, mainly for tests
	VerifyURL string
	// Timeout is the verification request timeout (default: 10s)
	Timeout time.Duration
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the log level (debug, info, warn, error) (default: info)
	Level string
	// Format is the log format (json, console) (default: json)
	Format string
}

// ObservabilityConfig holds observability settings.
type ObservabilityConfig struct {
	// TracingEnabled enables OpenTelemetry tracing (default: false)
	TracingEnabled bool
	// TracingEndpoint is the OTLP collector endpoint (e.g., "localhost:4318")
	TracingEndpoint string
	// TracingInsecure disables TLS for the tracing connection (default: true)
	TracingInsecure bool
	// TracingSampleRate is the sampling rate (0.0 to 1.0) (default: 1.0)
	TracingSampleRate float64
	// Environment is the deployment environment (e.g., "production")
	Environment string
}

// Load reads configuration from environment variables.
// Environment variables use the SEALBOX_ prefix.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			HTTPPort:        getEnvInt("SEALBOX_HTTP_PORT", 8080),
			MetricsPort:     getEnvInt("SEALBOX_METRICS_PORT", 9091),
			ShutdownTimeout: getEnvDuration("SEALBOX_SHUTDOWN_TIMEOUT", 30*time.Second),
			ReadTimeout:     getEnvDuration("SEALBOX_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SEALBOX_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvDuration("SEALBOX_IDLE_TIMEOUT", 120*time.Second),
			CORSOrigin:      getEnv("SEALBOX_CORS_ORIGIN", "*"),
		},
		Secret: SecretConfig{
			SystemKey: getEnv("SEALBOX_SYSTEM_KEY", ""),
		},
		Store: StoreConfig{
			Backend:              getEnv("SEALBOX_STORE_BACKEND", "memory"),
			PostgresURL:          getEnv("SEALBOX_STORE_POSTGRES_URL", ""),
			PostgresMaxConns:     getEnvInt("SEALBOX_STORE_POSTGRES_MAX_CONNS", 10),
			PostgresMinConns:     getEnvInt("SEALBOX_STORE_POSTGRES_MIN_CONNS", 2),
			PostgresConnLifetime: getEnvDuration("SEALBOX_STORE_POSTGRES_CONN_LIFETIME", time.Hour),
			SQLiteDataDir:        getEnv("SEALBOX_STORE_SQLITE_DATA_DIR", ""),
			VaultAddress:         getEnv("SEALBOX_STORE_VAULT_ADDRESS", ""),
			VaultToken:           getEnv("SEALBOX_STORE_VAULT_TOKEN", ""),
			VaultNamespace:       getEnv("SEALBOX_STORE_VAULT_NAMESPACE", ""),
			VaultMount:           getEnv("SEALBOX_STORE_VAULT_MOUNT", "secret"),
			VaultPathPrefix:      getEnv("SEALBOX_STORE_VAULT_PATH_PREFIX", "sealbox"),
			VaultTimeout:         getEnvDuration("SEALBOX_STORE_VAULT_TIMEOUT", 10*time.Second),
			MinioEndpoint:        getEnv("SEALBOX_STORE_MINIO_ENDPOINT", ""),
			MinioBucket:          getEnv("SEALBOX_STORE_MINIO_BUCKET", ""),
			MinioRegion:          getEnv("SEALBOX_STORE_MINIO_REGION", "us-east-1"),
			MinioAccessKeyID:     getEnv("SEALBOX_STORE_MINIO_ACCESS_KEY_ID", ""),
			MinioSecretAccessKey: getEnv("SEALBOX_STORE_MINIO_SECRET_ACCESS_KEY", ""),
			MinioUseSSL:          getEnvBool("SEALBOX_STORE_MINIO_USE_SSL", true),
			MinioPathPrefix:      getEnv("SEALBOX_STORE_MINIO_PATH_PREFIX", "secrets"),
		},
		BotCheck: BotCheckConfig{
			Enabled:   getEnvBool("SEALBOX_BOTCHECK_ENABLED", false),
			SecretKey: getEnv("SEALBOX_BOTCHECK_SECRET_KEY", ""),
			VerifyURL: getEnv("SEALBOX_BOTCHECK_VERIFY_URL", ""),
			Timeout:   getEnvDuration("SEALBOX_BOTCHECK_TIMEOUT", 10*time.Second),
		},
		Log: LogConfig{
			Level:  getEnv("SEALBOX_LOG_LEVEL", "info"),
			Format: getEnv("SEALBOX_LOG_FORMAT", "json"),
		},
		Observability: ObservabilityConfig{
			TracingEnabled:    getEnvBool("SEALBOX_TRACING_ENABLED", false),
			TracingEndpoint:   getEnv("SEALBOX_TRACING_ENDPOINT", ""),
			TracingInsecure:   getEnvBool("SEALBOX_TRACING_INSECURE", true),
			TracingSampleRate: getEnvFloat("SEALBOX_TRACING_SAMPLE_RATE", 1.0),
			Environment:       getEnv("SEALBOX_ENVIRONMENT", "development"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set and valid.
func (c *Config) Validate() error {
	var errs []error

	// Server validation
	if c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535 {
		errs = append(errs, errors.New("SEALBOX_HTTP_PORT must be between 1 and 65535"))
	}
	if c.Server.MetricsPort < 1 || c.Server.MetricsPort > 65535 {
		errs = append(errs, errors.New("SEALBOX_METRICS_PORT must be between 1 and 65535"))
	}

	// System key validation (required)
	if c.Secret.SystemKey == "" {
		errs = append(errs, errors.New("SEALBOX_SYSTEM_KEY is required"))
	}

	// Store validation
	backend, err := store.ParseBackend(c.Store.Backend)
	if err != nil {
		errs = append(errs, errors.New("SEALBOX_STORE_BACKEND must be one of: memory, postgres, sqlite, vault, minio"))
	}
	switch backend {
	case store.BackendPostgres:
		if c.Store.PostgresURL == "" {
			errs = append(errs, errors.New("SEALBOX_STORE_POSTGRES_URL is required for the postgres backend"))
		}
		if c.Store.PostgresMaxConns < 1 {
			errs = append(errs, errors.New("SEALBOX_STORE_POSTGRES_MAX_CONNS must be at least 1"))
		}
	case store.BackendSQLite:
		if c.Store.SQLiteDataDir == "" {
			errs = append(errs, errors.New("SEALBOX_STORE_SQLITE_DATA_DIR is required for the sqlite backend"))
		}
	case store.BackendVault:
		if c.Store.VaultAddress == "" {
			errs = append(errs, errors.New("SEALBOX_STORE_VAULT_ADDRESS is required for the vault backend"))
		}
		if c.Store.VaultToken == "" {
			errs = append(errs, errors.New("SEALBOX_STORE_VAULT_TOKEN is required for the vault backend"))
		}
	case store.BackendMinio:
		if c.Store.MinioBucket == "" {
			errs = append(errs, errors.New("SEALBOX_STORE_MINIO_BUCKET is required for the minio backend"))
		}
		if c.Store.MinioAccessKeyID == "" {
			errs = append(errs, errors.New("SEALBOX_STORE_MINIO_ACCESS_KEY_ID is required for the minio backend"))
		}
		if c.Store.MinioSecretAccessKey == "" {
			errs = append(errs, errors.New("SEALBOX_STORE_MINIO_SECRET_ACCESS_KEY is required for the minio backend"))
		}
	}

	// Bot check validation (conditional)
	if c.BotCheck.Enabled && c.BotCheck.SecretKey == "" {
		errs = append(errs, errors.New("SEALBOX_BOTCHECK_SECRET_KEY is required when bot check is enabled"))
	}

	// Log validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, errors.New("SEALBOX_LOG_LEVEL must be one of: debug, info, warn, error"))
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[strings.ToLower(c.Log.Format)] {
		errs = append(errs, errors.New("SEALBOX_LOG_FORMAT must be one of: json, console"))
	}

	// Tracing validation (conditional)
	if c.Observability.TracingEnabled && c.Observability.TracingEndpoint == "" {
		errs = append(errs, errors.New("SEALBOX_TRACING_ENDPOINT is required when tracing is enabled"))
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}

	return nil
}

// ValidationError contains multiple validation errors.
type ValidationError struct {
	Errors []error
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Unwrap returns the underlying errors for errors.Is/As compatibility.
func (e *ValidationError) Unwrap() []error {
	return e.Errors
}

// BotCheckEnabled returns true if bot protection is configured.
func (c *Config) BotCheckEnabled() bool {
	return c.BotCheck.Enabled
}

// Helper functions for reading environment variables

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
