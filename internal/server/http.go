// Package server exposes the sealbox secret lifecycle over HTTP. The API is
// a single action endpoint plus a healthcheck, mirroring the event shape the
// service has always accepted.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/sealbox/sealbox/pkg/metrics"
	"github.com/sealbox/sealbox/pkg/tracing"
)

// HTTPConfig holds configuration for the HTTP server.
type HTTPConfig struct {
	// Port is the port to listen on.
	Port int
	// CORSOrigin is the allowed CORS origin.
	CORSOrigin string
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration before timing out writes.
	WriteTimeout time.Duration
	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout time.Duration
	// EnableTracing enables OpenTelemetry tracing for HTTP requests.
	EnableTracing bool
	// Metrics records HTTP and operation metrics. Optional.
	Metrics *metrics.Metrics
}

// DefaultHTTPConfig returns sensible defaults for HTTP server configuration.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Port:         8080,
		CORSOrigin:   "*",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// HTTPServer serves the secrets API.
type HTTPServer struct {
	config  HTTPConfig
	handler *SecretHandler
	server  *http.Server
	logger  zerolog.Logger
}

// NewHTTPServer creates a new HTTP server around a secret handler.
func NewHTTPServer(cfg HTTPConfig, handler *SecretHandler, logger zerolog.Logger) *HTTPServer {
	return &HTTPServer{
		config:  cfg,
		handler: handler,
		logger:  logger.With().Str("component", "http_server").Logger(),
	}
}

// Start starts the HTTP server and blocks until the context is cancelled.
func (s *HTTPServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	s.handler.RegisterRoutes(mux)

	var handler http.Handler = mux
	handler = CORSMiddleware(s.config.CORSOrigin)(handler)
	if s.config.Metrics != nil {
		handler = MetricsMiddleware(s.config.Metrics)(handler)
	}
	handler = LoggingMiddleware(s.logger)(handler)
	handler = RequestIDMiddleware()(handler)
	if s.config.EnableTracing {
		handler = tracing.Middleware(handler)
	}

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	s.logger.Info().
		Str("address", addr).
		Msg("starting HTTP server")

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
		return nil
	}
}

// Shutdown gracefully shuts down the HTTP server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
