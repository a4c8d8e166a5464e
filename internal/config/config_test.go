package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setTestEnv sets environment variables for testing and returns a cleanup function.
func setTestEnv(t *testing.T, envVars map[string]string) {
	t.Helper()

	// Store original values
	original := make(map[string]string)
	for key := range envVars {
		original[key] = os.Getenv(key)
	}

	// Set new values
	for key, value := range envVars {
		os.Setenv(key, value)
	}

	// Register cleanup
	t.Cleanup(func() {
		for key, value := range original {
			if value == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, value)
			}
		}
	})
}

// minimalValidEnv returns the minimum required environment variables for a valid config.
func minimalValidEnv() map[string]string {
	return map[string]string{
		"SEALBOX_SYSTEM_KEY": "test-system-key",
	}
}

func TestLoad_WithValidConfig(t *testing.T) {
	env := minimalValidEnv()
	env["SEALBOX_HTTP_PORT"] = "8081"
	env["SEALBOX_METRICS_PORT"] = "9191"
	env["SEALBOX_LOG_LEVEL"] = "debug"
	env["SEALBOX_LOG_FORMAT"] = "console"
	env["SEALBOX_CORS_ORIGIN"] = "https://secrets.example.com"
	setTestEnv(t, env)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.HTTPPort)
	assert.Equal(t, 9191, cfg.Server.MetricsPort)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "https://secrets.example.com", cfg.Server.CORSOrigin)
	assert.Equal(t, "test-system-key", cfg.Secret.SystemKey)
}

func TestLoad_Defaults(t *testing.T) {
	setTestEnv(t, minimalValidEnv())

	cfg, err := Load()
	require.NoError(t, err)

	// Server defaults
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
	assert.Equal(t, "*", cfg.Server.CORSOrigin)

	// Store defaults
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 10, cfg.Store.PostgresMaxConns)
	assert.Equal(t, time.Hour, cfg.Store.PostgresConnLifetime)
	assert.Equal(t, "secret", cfg.Store.VaultMount)
	assert.Equal(t, "sealbox", cfg.Store.VaultPathPrefix)
	assert.Equal(t, "us-east-1", cfg.Store.MinioRegion)
	assert.True(t, cfg.Store.MinioUseSSL)

	// Bot check defaults
	assert.False(t, cfg.BotCheck.Enabled)
	assert.Equal(t, 10*time.Second, cfg.BotCheck.Timeout)

	// Log defaults
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	// Observability defaults
	assert.False(t, cfg.Observability.TracingEnabled)
	assert.Equal(t, 1.0, cfg.Observability.TracingSampleRate)
}

func TestLoad_MissingSystemKey(t *testing.T) {
	env := minimalValidEnv()
	delete(env, "SEALBOX_SYSTEM_KEY")
	setTestEnv(t, env)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SEALBOX_SYSTEM_KEY is required")
}

func TestLoad_InvalidBackend(t *testing.T) {
	env := minimalValidEnv()
	env["SEALBOX_STORE_BACKEND"] = "redis"
	setTestEnv(t, env)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SEALBOX_STORE_BACKEND must be one of")
}

func TestLoad_PostgresRequiresURL(t *testing.T) {
	env := minimalValidEnv()
	env["SEALBOX_STORE_BACKEND"] = "postgres"
	setTestEnv(t, env)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SEALBOX_STORE_POSTGRES_URL is required")
}

func TestLoad_SQLiteRequiresDataDir(t *testing.T) {
	env := minimalValidEnv()
	env["SEALBOX_STORE_BACKEND"] = "sqlite"
	setTestEnv(t, env)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SEALBOX_STORE_SQLITE_DATA_DIR is required")
}

func TestLoad_VaultRequiresAddressAndToken(t *testing.T) {
	env := minimalValidEnv()
	env["SEALBOX_STORE_BACKEND"] = "vault"
	setTestEnv(t, env)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SEALBOX_STORE_VAULT_ADDRESS is required")
	assert.Contains(t, err.Error(), "SEALBOX_STORE_VAULT_TOKEN is required")
}

func TestLoad_MinioRequiresCredentials(t *testing.T) {
	env := minimalValidEnv()
	env["SEALBOX_STORE_BACKEND"] = "minio"
	env["SEALBOX_STORE_MINIO_ENDPOINT"] = "localhost:9000"
	setTestEnv(t, env)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SEALBOX_STORE_MINIO_BUCKET is required")
	assert.Contains(t, err.Error(), "SEALBOX_STORE_MINIO_ACCESS_KEY_ID is required")
	assert.Contains(t, err.Error(), "SEALBOX_STORE_MINIO_SECRET_ACCESS_KEY is required")
}

func TestLoad_BotCheckRequiresSecretKey(t *testing.T) {
	env := minimalValidEnv()
	env["SEALBOX_BOTCHECK_ENABLED"] = "true"
	setTestEnv(t, env)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SEALBOX_BOTCHECK_SECRET_KEY is required")
}

func TestLoad_TracingRequiresEndpoint(t *testing.T) {
	env := minimalValidEnv()
	env["SEALBOX_TRACING_ENABLED"] = "true"
	setTestEnv(t, env)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SEALBOX_TRACING_ENDPOINT is required")
}

func TestLoad_InvalidLogSettings(t *testing.T) {
	env := minimalValidEnv()
	env["SEALBOX_LOG_LEVEL"] = "verbose"
	env["SEALBOX_LOG_FORMAT"] = "xml"
	setTestEnv(t, env)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SEALBOX_LOG_LEVEL must be one of")
	assert.Contains(t, err.Error(), "SEALBOX_LOG_FORMAT must be one of")
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	env := minimalValidEnv()
	env["SEALBOX_HTTP_PORT"] = "not-a-number"
	env["SEALBOX_SHUTDOWN_TIMEOUT"] = "not-a-duration"
	env["SEALBOX_STORE_MINIO_USE_SSL"] = "not-a-bool"
	setTestEnv(t, env)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.True(t, cfg.Store.MinioUseSSL)
}

func TestValidationError_Unwrap(t *testing.T) {
	env := minimalValidEnv()
	delete(env, "SEALBOX_SYSTEM_KEY")
	env["SEALBOX_STORE_BACKEND"] = "postgres"
	setTestEnv(t, env)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation errors")
}
