package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geopulse-io/geopulse/internal/api/middleware"
	"github.com/geopulse-io/geopulse/internal/reporting"
	"github.com/geopulse-io/geopulse/internal/storage"
)

// Service identity reported by the health endpoints and version headers.
const (
	serviceName    = "geopulse"
	serviceVersion = "v1.0.0" // TODO: inject version at build time once release tooling lands
)

// Server is the GeoPulse reporting API: an http.Server wrapped in the
// middleware chain, plus the stores the handlers read from.
type Server struct {
	httpServer  *http.Server
	logger      *slog.Logger
	config      *ServerConfig
	startTime   time.Time
	reportStore reporting.Store
	snapshots   *reporting.SnapshotCache
	apiKeyStore storage.APIKeyStore
	rateLimiter middleware.RateLimiter
}

// NewServer wires the handlers, middleware chain, and http.Server together.
// cfg carries pure configuration; collaborators are injected alongside it.
// reportStore is required. apiKeyStore and rateLimiter may be nil, which
// disables authentication and rate limiting respectively.
func NewServer(
	cfg *ServerConfig,
	reportStore reporting.Store,
	apiKeyStore storage.APIKeyStore,
	rateLimiter middleware.RateLimiter,
) *Server {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	server := &Server{
		logger:      logger,
		config:      cfg,
		reportStore: reportStore,
		snapshots:   reporting.NewSnapshotCache(cfg.SnapshotTTL, nil),
		apiKeyStore: apiKeyStore,
		rateLimiter: rateLimiter,
	}

	mux := http.NewServeMux()
	server.setupRoutes(mux)

	if apiKeyStore == nil { // pragma: allowlist secret
		logger.Warn("API key store not configured; consumer authentication disabled")
	}

	if rateLimiter == nil {
		logger.Warn("Rate limiter not configured; rate limiting disabled")
	}

	// The first option becomes the outermost layer. Correlation runs first so
	// every later layer can tag its logs, recovery catches panics from
	// everything beneath it, and auth precedes rate limiting so authenticated
	// consumers land in per-consumer buckets instead of the anonymous one.
	handler := middleware.Apply(mux,
		middleware.WithCorrelationID(),
		middleware.WithRecovery(logger),
		middleware.WithConsumerAuth(apiKeyStore, logger),
		middleware.WithRateLimit(rateLimiter, logger),
		middleware.WithRequestLogger(logger),
		middleware.WithCORS(cfg.ToCORSConfig()),
	)

	server.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return server
}

// Start runs the server until SIGINT or SIGTERM arrives, then drains it
// gracefully. It returns early if the listener fails to come up.
func (s *Server) Start() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	s.startTime = time.Now()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	s.logger.Info("Starting GeoPulse report API server",
		slog.String("address", s.config.Address()),
		slog.Duration("read_timeout", s.config.ReadTimeout),
		slog.Duration("write_timeout", s.config.WriteTimeout),
		slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		slog.Duration("snapshot_ttl", s.config.SnapshotTTL),
	)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case sig := <-stop:
		s.logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

		return s.shutdown()
	}
}

// shutdown drains in-flight requests, then releases the stores and the rate
// limiter's background goroutine.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down", slog.Duration("shutdown_timeout", s.config.ShutdownTimeout))

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.closeResource("API key store", s.apiKeyStore)

	// InMemoryRateLimiter's Close returns nothing, so it is not an io.Closer.
	if limiter, ok := s.rateLimiter.(interface{ Close() }); ok {
		limiter.Close()
		s.logger.Info("Closed rate limiter")
	}

	s.closeResource("report store", s.reportStore)

	s.logger.Info("Server shutdown complete")

	return nil
}

// closeResource closes v when it implements io.Closer; the pool-backed stores
// do, the in-memory ones do not.
func (s *Server) closeResource(name string, v any) {
	closer, ok := v.(io.Closer)
	if !ok {
		return
	}

	if err := closer.Close(); err != nil {
		s.logger.Error("Failed to close "+name, slog.String("error", err.Error()))

		return
	}

	s.logger.Info("Closed " + name)
}
