package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/sealbox/sealbox/pkg/metrics"
)

// MetricsServerConfig holds configuration for the metrics server.
type MetricsServerConfig struct {
	// Port is the port to listen on.
	Port int
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration before timing out writes.
	WriteTimeout time.Duration
	// Path is the metrics endpoint path (default: /metrics).
	Path string
}

// MetricsServer serves Prometheus metrics on a dedicated port.
type MetricsServer struct {
	config  MetricsServerConfig
	metrics *metrics.Metrics
	server  *http.Server
	logger  zerolog.Logger
}

// NewMetricsServer creates a new metrics server.
func NewMetricsServer(cfg MetricsServerConfig, m *metrics.Metrics, logger zerolog.Logger) *MetricsServer {
	if cfg.Path == "" {
		cfg.Path = "/metrics"
	}
	return &MetricsServer{
		config:  cfg,
		metrics: m,
		logger:  logger.With().Str("component", "metrics_server").Logger(),
	}
}

// Start starts the metrics server and blocks until the context is cancelled.
func (s *MetricsServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(s.config.Path, s.metrics.Handler())

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info().
		Str("address", addr).
		Str("path", s.config.Path).
		Msg("starting metrics server")

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server failed: %w", err)
	case <-ctx.Done():
		return nil
	}
}

// Shutdown gracefully shuts down the metrics server.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
