// Package main provides the GeoPulse reporting API server.
//
// The server exposes the read side of the pipeline: paginated client
// listings, geographic rollups, and ingest activity, backed by the
// PostgreSQL store the ingester writes to.
package main

import (
	"flag"
	"log"
	"log/slog"
	"os"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/geopulse-io/geopulse/internal/api"
	"github.com/geopulse-io/geopulse/internal/api/middleware"
	"github.com/geopulse-io/geopulse/internal/config"
	"github.com/geopulse-io/geopulse/internal/storage"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "geopulse"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	serverConfig := api.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))

	logger.Info("Starting GeoPulse reporting service",
		slog.String("service", name),
		slog.String("version", version),
	)

	logger.Info("Loaded server configuration",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.Duration("read_timeout", serverConfig.ReadTimeout),
		slog.Duration("write_timeout", serverConfig.WriteTimeout),
		slog.Duration("shutdown_timeout", serverConfig.ShutdownTimeout),
		slog.Duration("snapshot_ttl", serverConfig.SnapshotTTL),
		slog.String("log_level", serverConfig.LogLevel.String()),
	)

	// Load rate limiter configuration
	middlewareConfig := middleware.LoadConfig()

	// Create rate limiter instance (graceful shutdown handled by server.shutdown())
	rateLimiter := middleware.NewInMemoryRateLimiter(middlewareConfig)

	logger.Info("Rate limiter initialized",
		slog.Int("global_rps", middlewareConfig.GlobalRPS),
		slog.Int("global_burst", middlewareConfig.GlobalBurst),
		slog.Int("consumer_rps", middlewareConfig.ConsumerRPS),
		slog.Int("consumer_burst", middlewareConfig.ConsumerBurst),
		slog.Int("unauth_rps", middlewareConfig.UnAuthRPS),
		slog.Int("unauth_burst", middlewareConfig.UnAuthBurst),
	)

	// Load storage configuration
	storageConfig := storage.LoadConfig()

	dbConn, err := storage.NewConnection(storageConfig)
	if err != nil {
		logger.Error("Failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer func() {
		_ = dbConn.Close() // Ensure connection closes on normal shutdown
	}()

	var apiKeyStore storage.APIKeyStore

	authEnabled := config.GetEnvBool("GEOPULSE_AUTH_ENABLED", true)
	if authEnabled {
		switch backend := config.GetEnvStr("GEOPULSE_API_KEY_STORE", "memory"); backend {
		case "postgres":
			apiKeyStore, err = storage.NewPersistentKeyStore(dbConn)
			if err != nil {
				logger.Error("Failed to connect to persistent key store", slog.String("error", err.Error()))

				_ = dbConn.Close()
				//nolint:gocritic // Explicit cleanup before os.Exit is intentional (defer won't run)
				os.Exit(1)
			}

			logger.Info("Consumer authentication enabled",
				slog.String("key_store", backend),
				slog.String("database_url", storageConfig.MaskDatabaseURL()),
			)
		case "memory":
			memStore, err := storage.NewInMemoryKeyStoreFromEnv()
			if err != nil {
				// Well-formed entries still loaded; only the rejects are lost.
				logger.Warn("Some GEOPULSE_API_KEYS entries were skipped",
					slog.String("error", err.Error()),
				)
			}

			apiKeyStore = memStore

			logger.Info("Consumer authentication enabled",
				slog.String("key_store", backend),
			)
		default:
			logger.Error("Unknown API key store backend",
				slog.String("key_store", backend),
				slog.String("note", "Set GEOPULSE_API_KEY_STORE to memory or postgres"),
			)

			_ = dbConn.Close()
			os.Exit(1)
		}
	} else {
		logger.Warn("Consumer authentication disabled",
			slog.String("security", "Only use in trusted networks (localhost, VPN, internal)"),
			slog.String("note", "Set GEOPULSE_AUTH_ENABLED=true to enable API key authentication"),
		)
	}

	reportStore, err := storage.NewReportingStore(dbConn, storage.WithReportingStoreLogger(logger))
	if err != nil {
		logger.Error("Failed to create reporting store", slog.String("error", err.Error()))
		// Close database connection before exit (defer won't run with os.Exit)
		_ = dbConn.Close()
		// Fail-fast: the read API is useless without its store.
		os.Exit(1)
	}

	logger.Info("Reporting store initialized",
		slog.String("database_url", storageConfig.MaskDatabaseURL()),
		slog.Int("database_max_open_conns", storageConfig.MaxOpenConns),
		slog.Int("database_max_idle_conns", storageConfig.MaxIdleConns),
		slog.Duration("database_conn_max_lifetime", storageConfig.ConnMaxLifetime),
		slog.Duration("database_conn_max_idle_time", storageConfig.ConnMaxIdleTime),
	)

	server := api.NewServer(serverConfig, reportStore, apiKeyStore, rateLimiter)

	if err := server.Start(); err != nil {
		logger.Error("Server failed to start",
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger.Info("GeoPulse reporting service stopped")
}
