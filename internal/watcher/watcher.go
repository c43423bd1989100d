// Package watcher discovers CSV drops in the input directory and drives
// ingestion cycles. Two strategies sit behind one API: interval polling
// (default) and filesystem notifications with per-path debounce.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/geopulse-io/geopulse/internal/config"
	"github.com/geopulse-io/geopulse/internal/ingestion"
)

const (
	// StrategyPoll lists the input directory on a fixed interval. Default.
	StrategyPoll = "poll"

	// StrategyNotify reacts to filesystem events with per-path debounce.
	StrategyNotify = "notify"
)

const (
	defaultInputDir           = "data/input"
	defaultPollInterval       = 10 * time.Second
	defaultStabilizationDelay = 1 * time.Second
	defaultErrorBackoff       = 30 * time.Second
)

var (
	// ErrEmptyInputDir indicates a missing input directory setting.
	ErrEmptyInputDir = errors.New("input directory cannot be empty")

	// ErrUnknownStrategy indicates a watch strategy that is neither poll nor notify.
	ErrUnknownStrategy = errors.New("unknown watch strategy")

	// ErrInvalidPollInterval indicates a zero or negative poll interval.
	ErrInvalidPollInterval = errors.New("poll interval must be positive")

	// ErrInvalidStabilizationDelay indicates a negative stabilization delay.
	ErrInvalidStabilizationDelay = errors.New("stabilization delay cannot be negative")

	// ErrInvalidErrorBackoff indicates a zero or negative error backoff.
	ErrInvalidErrorBackoff = errors.New("error backoff must be positive")
)

type (
	// Config holds directory watching configuration.
	// Pure configuration only - no runtime dependencies.
	Config struct {
		InputDir           string
		Strategy           string
		PollInterval       time.Duration
		StabilizationDelay time.Duration
		ErrorBackoff       time.Duration
	}

	// CycleRunner runs one ingestion cycle over the discovered paths.
	// Implemented by ingestion.Coordinator.
	CycleRunner interface {
		ProcessCycle(ctx context.Context, paths []string) *ingestion.CycleReport
	}

	// AttemptPruner drops failure counters for paths that left the input
	// directory. Optional on the cycle runner; only the poll strategy checks
	// for it, because only full directory listings can say what is present.
	AttemptPruner interface {
		PruneAttempts(present map[string]bool)
	}

	// Watcher discovers input files and hands them to the cycle runner.
	Watcher struct {
		config *Config
		runner CycleRunner
		logger *slog.Logger
	}
)

// LoadConfig loads watcher configuration from environment variables with
// sensible defaults.
func LoadConfig() *Config {
	return &Config{
		InputDir:           config.GetEnvStr("GEOPULSE_INPUT_DIR", defaultInputDir),
		Strategy:           config.GetEnvStr("GEOPULSE_WATCH_STRATEGY", StrategyPoll),
		PollInterval:       config.GetEnvDuration("GEOPULSE_POLL_INTERVAL", defaultPollInterval),
		StabilizationDelay: config.GetEnvDuration("GEOPULSE_STABILIZATION_DELAY", defaultStabilizationDelay),
		ErrorBackoff:       config.GetEnvDuration("GEOPULSE_ERROR_BACKOFF", defaultErrorBackoff),
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.InputDir) == "" {
		return ErrEmptyInputDir
	}

	if c.Strategy != StrategyPoll && c.Strategy != StrategyNotify {
		return fmt.Errorf("%w: %s", ErrUnknownStrategy, c.Strategy)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidPollInterval, c.PollInterval)
	}

	if c.StabilizationDelay < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidStabilizationDelay, c.StabilizationDelay)
	}

	if c.ErrorBackoff <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidErrorBackoff, c.ErrorBackoff)
	}

	return nil
}

// New creates a Watcher for the given configuration and cycle runner.
func New(cfg *Config, runner CycleRunner, logger *slog.Logger) (*Watcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid watcher config: %w", err)
	}

	return &Watcher{
		config: cfg,
		runner: runner,
		logger: logger,
	}, nil
}

// Run watches the input directory until ctx is cancelled.
// Returns nil on clean shutdown; errors are startup failures only (the
// running loops log and back off instead of returning).
func (w *Watcher) Run(ctx context.Context) error {
	switch w.config.Strategy {
	case StrategyNotify:
		return w.runNotify(ctx)
	default:
		return w.runPoll(ctx)
	}
}

// runPoll scans the input directory every PollInterval, starting with an
// immediate sweep. Scan failures log and sleep ErrorBackoff before the loop
// continues; cancellation is observed between cycles.
func (w *Watcher) runPoll(ctx context.Context) error {
	w.logger.Info("Watching input directory",
		slog.String("dir", w.config.InputDir),
		slog.String("strategy", StrategyPoll),
		slog.Duration("poll_interval", w.config.PollInterval),
		slog.Duration("stabilization_delay", w.config.StabilizationDelay),
	)

	for {
		if err := w.pollOnce(ctx); err != nil {
			w.logger.Error("Input directory scan failed",
				slog.String("error", err.Error()),
				slog.Duration("backoff", w.config.ErrorBackoff),
			)

			if !sleepCtx(ctx, w.config.ErrorBackoff) {
				return nil
			}

			continue
		}

		if !sleepCtx(ctx, w.config.PollInterval) {
			return nil
		}
	}
}

// pollOnce runs one discovery sweep and, when files are ready, one ingestion
// cycle.
func (w *Watcher) pollOnce(ctx context.Context) error {
	ready, present, err := w.discover()
	if err != nil {
		return err
	}

	if pruner, ok := w.runner.(AttemptPruner); ok {
		pruner.PruneAttempts(present)
	}

	if len(ready) == 0 {
		return nil
	}

	w.runner.ProcessCycle(ctx, ready)

	return nil
}

// discover lists the input directory.
//
// ready holds the paths eligible for ingestion: regular *.csv files whose
// mtime is at least StabilizationDelay old, sorted by mtime then name so
// cycles follow file-arrival order. present holds every *.csv path seen,
// stable or not, for attempt counter pruning.
func (w *Watcher) discover() (ready []string, present map[string]bool, err error) {
	entries, err := os.ReadDir(w.config.InputDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read input directory: %w", err)
	}

	type candidate struct {
		path    string
		modTime time.Time
	}

	cutoff := time.Now().Add(-w.config.StabilizationDelay)
	candidates := make([]candidate, 0, len(entries))
	present = make(map[string]bool, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !isCSV(entry.Name()) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			// Vanished between list and stat.
			continue
		}

		if !info.Mode().IsRegular() {
			continue
		}

		path := filepath.Join(w.config.InputDir, entry.Name())
		present[path] = true

		if info.ModTime().After(cutoff) {
			// Still stabilizing; picked up on a later sweep.
			continue
		}

		candidates = append(candidates, candidate{path: path, modTime: info.ModTime()})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].modTime.Equal(candidates[j].modTime) {
			return candidates[i].path < candidates[j].path
		}

		return candidates[i].modTime.Before(candidates[j].modTime)
	})

	ready = make([]string, len(candidates))
	for i, c := range candidates {
		ready[i] = c.path
	}

	return ready, present, nil
}

// isCSV reports whether name has a .csv extension, case-insensitively.
func isCSV(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".csv")
}

// sleepCtx sleeps for d or until ctx is cancelled. Returns false on cancel.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
