package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrStoreUnavailable is returned when the database stays unreachable for the
// whole wait budget. Callers treat this as fatal: the ingester refuses to
// start watching for files it cannot persist.
var ErrStoreUnavailable = errors.New("store unavailable")

// WaitForStore blocks until the database answers a connect+ping, retrying up
// to cfg.WaitAttempts times with cfg.WaitInterval between attempts.
//
// Each attempt opens a fresh short-lived connection and closes it right away,
// so a half-dead pool from an earlier attempt can never mask an outage. The
// caller's context cancels the wait between attempts.
//
// Returns nil as soon as one attempt succeeds, ErrStoreUnavailable when the
// budget is exhausted. This gate runs once at startup, before the directory
// watcher starts; exhaustion is the one condition under which the ingester
// exits instead of retrying forever.
func WaitForStore(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var lastErr error

	for attempt := 1; attempt <= cfg.WaitAttempts; attempt++ {
		conn, err := NewConnection(cfg)
		if err == nil {
			_ = conn.Close()

			logger.Info("database reachable",
				slog.Int("attempt", attempt),
				slog.String("database_url", cfg.MaskDatabaseURL()),
			)

			return nil
		}

		lastErr = err

		logger.Warn("database not ready, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", cfg.WaitAttempts),
			slog.Duration("retry_in", cfg.WaitInterval),
			slog.String("error", err.Error()),
		)

		if attempt == cfg.WaitAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for store cancelled: %w", ctx.Err())
		case <-time.After(cfg.WaitInterval):
		}
	}

	return fmt.Errorf("%w: no response after %d attempts: %w", ErrStoreUnavailable, cfg.WaitAttempts, lastErr)
}
