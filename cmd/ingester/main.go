// Package main provides the GeoPulse CSV ingestion daemon.
//
// The ingester watches an input directory for CSV drops, resolves their
// headers against the schema alias table, validates and deduplicates rows,
// and applies them to PostgreSQL as keyed upserts. Successfully ingested
// files are archived; failing files are retained for retry or quarantined
// once they exhaust the attempt limit.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/geopulse-io/geopulse/internal/aliasing"
	"github.com/geopulse-io/geopulse/internal/config"
	"github.com/geopulse-io/geopulse/internal/ingestion"
	"github.com/geopulse-io/geopulse/internal/storage"
	"github.com/geopulse-io/geopulse/internal/watcher"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "ingester"
)

const (
	defaultArchiveDir    = "data/processed"
	defaultQuarantineDir = "data/quarantine"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("GEOPULSE_LOG_LEVEL", slog.LevelInfo),
	}))

	logger.Info("Starting GeoPulse ingester",
		slog.String("service", name),
		slog.String("version", version),
	)

	watchConfig := watcher.LoadConfig()

	logger.Info("Loaded watcher configuration",
		slog.String("input_dir", watchConfig.InputDir),
		slog.String("strategy", watchConfig.Strategy),
		slog.Duration("poll_interval", watchConfig.PollInterval),
		slog.Duration("stabilization_delay", watchConfig.StabilizationDelay),
		slog.Duration("error_backoff", watchConfig.ErrorBackoff),
	)

	storageConfig := storage.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Startup gate: never watch for files we cannot persist. The wait
	// retries inside; exhaustion is fatal.
	if err := storage.WaitForStore(ctx, storageConfig, logger); err != nil {
		logger.Error("Database unreachable, giving up",
			slog.String("database_url", storageConfig.MaskDatabaseURL()),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	aliasConfig, err := aliasing.LoadConfigFromEnv()
	if err != nil {
		logger.Error("Failed to load alias configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	resolver := aliasing.NewResolver(aliasConfig)
	validator := ingestion.NewValidator(ingestion.NewDateResolver(nil))

	archiveDir := config.GetEnvStr("GEOPULSE_ARCHIVE_DIR", defaultArchiveDir)
	quarantineDir := config.GetEnvStr("GEOPULSE_QUARANTINE_DIR", defaultQuarantineDir)
	archiver := ingestion.NewArchiver(archiveDir, quarantineDir)

	maxAttempts := config.GetEnvInt("GEOPULSE_MAX_FILE_ATTEMPTS", 0)
	attempts := ingestion.NewAttemptTracker(maxAttempts)

	logger.Info("File lifecycle configured",
		slog.String("archive_dir", archiveDir),
		slog.String("quarantine_dir", quarantineDir),
		slog.Int("max_file_attempts", maxAttempts),
	)

	// One connection per file attempt: the coordinator opens a store, runs
	// the batch, and closes it, so a flaky database never poisons a
	// long-lived pool.
	stores := func(ctx context.Context) (ingestion.ClientStore, error) {
		conn, err := storage.NewConnection(storageConfig)
		if err != nil {
			return nil, err
		}

		return storage.NewClientStore(conn, storage.WithClientStoreLogger(logger))
	}

	var opts []ingestion.CoordinatorOption

	brokers := config.ParseCommaSeparatedList(config.GetEnvStr("GEOPULSE_KAFKA_BROKERS", ""))
	if len(brokers) > 0 {
		topic := config.GetEnvStr("GEOPULSE_KAFKA_TOPIC", ingestion.DefaultReportTopic)
		publisher := ingestion.NewKafkaReportPublisher(brokers, topic, logger)

		defer func() {
			_ = publisher.Close()
		}()

		opts = append(opts, ingestion.WithPublisher(publisher))

		logger.Info("Report publishing enabled",
			slog.Any("brokers", brokers),
			slog.String("topic", topic),
		)
	}

	coordinator := ingestion.NewCoordinator(stores, resolver, validator, archiver, attempts, logger, opts...)

	fileWatcher, err := watcher.New(watchConfig, coordinator, logger)
	if err != nil {
		logger.Error("Failed to create watcher", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := fileWatcher.Run(ctx); err != nil {
		logger.Error("Watcher failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("GeoPulse ingester stopped")
}
