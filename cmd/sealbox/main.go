// Package main is the entry point for the sealbox service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sealbox/sealbox/internal/botcheck"
	"github.com/sealbox/sealbox/internal/config"
	"github.com/sealbox/sealbox/internal/secret"
	"github.com/sealbox/sealbox/internal/server"
	"github.com/sealbox/sealbox/internal/store"
	"github.com/sealbox/sealbox/pkg/metrics"
	"github.com/sealbox/sealbox/pkg/tracing"
)

// Build information, set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	logger := setupLogger()
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("commit", commit).
		Str("build_time", buildTime).
		Str("go_version", runtime.Version()).
		Msg("starting sealbox")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	appMetrics := metrics.New()

	// Initialize tracing
	var tracer *tracing.Tracer
	if cfg.Observability.TracingEnabled && cfg.Observability.TracingEndpoint != "" {
		tracer, err = tracing.InitTracer(tracing.Config{
			ServiceName:    "sealbox",
			ServiceVersion: version,
			Endpoint:       cfg.Observability.TracingEndpoint,
			Insecure:       cfg.Observability.TracingInsecure,
			SampleRate:     cfg.Observability.TracingSampleRate,
			Environment:    cfg.Observability.Environment,
			Enabled:        true,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("failed to initialize tracing - continuing without tracing")
		} else {
			logger.Info().
				Str("endpoint", cfg.Observability.TracingEndpoint).
				Msg("tracing initialized")
		}
	}

	// Create the store backend
	st, err := createStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Store.Backend).Msg("failed to create store")
	}
	defer st.Close()
	st = store.WithMetrics(st, appMetrics)

	logger.Info().Str("backend", cfg.Store.Backend).Msg("store initialized")

	// Create the lifecycle controller
	policy, err := secret.NewPolicy(cfg.Secret.SystemKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create encoding policy")
	}
	controller := secret.NewController(st, policy, logger)

	// Create the bot-protection verifier
	var verifier botcheck.Verifier = botcheck.NopVerifier{}
	if cfg.BotCheck.Enabled {
		verifier, err = botcheck.NewTurnstileVerifier(botcheck.TurnstileConfig{
			SecretKey: cfg.BotCheck.SecretKey,
			VerifyURL: cfg.BotCheck.VerifyURL,
			Timeout:   cfg.BotCheck.Timeout,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create bot-protection verifier")
		}
		logger.Info().Msg("bot protection enabled")
	}

	handler := server.NewSecretHandler(controller, verifier, appMetrics, version, logger)

	httpServer := server.NewHTTPServer(server.HTTPConfig{
		Port:          cfg.Server.HTTPPort,
		CORSOrigin:    cfg.Server.CORSOrigin,
		ReadTimeout:   cfg.Server.ReadTimeout,
		WriteTimeout:  cfg.Server.WriteTimeout,
		IdleTimeout:   cfg.Server.IdleTimeout,
		EnableTracing: tracer != nil,
		Metrics:       appMetrics,
	}, handler, logger)

	metricsServer := server.NewMetricsServer(server.MetricsServerConfig{
		Port:         cfg.Server.MetricsPort,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}, appMetrics, logger)

	errCh := make(chan error, 2)

	go func() {
		if err := httpServer.Start(ctx); err != nil {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	go func() {
		if err := metricsServer.Start(ctx); err != nil {
			errCh <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	logger.Info().
		Int("http_port", cfg.Server.HTTPPort).
		Int("metrics_port", cfg.Server.MetricsPort).
		Msg("sealbox started")

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
	}

	logger.Info().Msg("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	var shutdownErr error

	if tracer != nil {
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("tracer shutdown error")
			shutdownErr = err
		}
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics server shutdown error")
		shutdownErr = err
	}

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
		shutdownErr = err
	}

	if shutdownErr != nil {
		logger.Error().Msg("shutdown completed with errors")
		os.Exit(1)
	}

	logger.Info().Msg("shutdown completed successfully")
}

// createStore builds the configured key-value backend.
func createStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	backend, err := store.ParseBackend(cfg.Store.Backend)
	if err != nil {
		return nil, err
	}

	switch backend {
	case store.BackendMemory:
		return store.NewMemoryStore(), nil
	case store.BackendPostgres:
		return store.NewPostgresStore(ctx, store.PostgresConfig{
			URL:             cfg.Store.PostgresURL,
			MaxConns:        int32(cfg.Store.PostgresMaxConns),
			MinConns:        int32(cfg.Store.PostgresMinConns),
			ConnMaxLifetime: cfg.Store.PostgresConnLifetime,
		})
	case store.BackendSQLite:
		return store.NewSQLiteStore(cfg.Store.SQLiteDataDir)
	case store.BackendVault:
		return store.NewVaultStore(store.VaultConfig{
			Address:    cfg.Store.VaultAddress,
			Token:      cfg.Store.VaultToken,
			Namespace:  cfg.Store.VaultNamespace,
			Mount:      cfg.Store.VaultMount,
			PathPrefix: cfg.Store.VaultPathPrefix,
			Timeout:    cfg.Store.VaultTimeout,
		})
	case store.BackendMinio:
		return store.NewMinioStore(ctx, store.MinioConfig{
			Endpoint:        cfg.Store.MinioEndpoint,
			Bucket:          cfg.Store.MinioBucket,
			Region:          cfg.Store.MinioRegion,
			AccessKeyID:     cfg.Store.MinioAccessKeyID,
			SecretAccessKey: cfg.Store.MinioSecretAccessKey,
			UseSSL:          cfg.Store.MinioUseSSL,
			PathPrefix:      cfg.Store.MinioPathPrefix,
		})
	default:
		return nil, fmt.Errorf("unknown store backend: %q", cfg.Store.Backend)
	}
}

// setupLogger initializes the zerolog logger.
func setupLogger() zerolog.Logger {
	format := os.Getenv("SEALBOX_LOG_FORMAT")
	level := os.Getenv("SEALBOX_LOG_LEVEL")

	var logLevel zerolog.Level
	switch level {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)

	var logger zerolog.Logger
	if format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		logger = zerolog.New(os.Stdout)
	}

	return logger.With().
		Timestamp().
		Str("service", "sealbox").
		Logger()
}
