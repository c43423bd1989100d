package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// quietQueueDepth bounds the handoff channel between debounce timers and the
// event loop. A full queue blocks the firing timer's goroutine, which only
// delays handoff.
const quietQueueDepth = 64

// runNotify watches the input directory with filesystem events.
//
// Create and Write events arm (or reset) a per-path debounce timer of
// StabilizationDelay; a path that stays quiet for the full delay is handed to
// the cycle runner, batched with any other paths already quiet. One poll
// sweep runs at startup because files dropped before the watch began never
// produce events.
func (w *Watcher) runNotify(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}

	defer func() {
		_ = fw.Close()
	}()

	if err := fw.Add(w.config.InputDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.config.InputDir, err)
	}

	w.logger.Info("Watching input directory",
		slog.String("dir", w.config.InputDir),
		slog.String("strategy", StrategyNotify),
		slog.Duration("stabilization_delay", w.config.StabilizationDelay),
	)

	if err := w.pollOnce(ctx); err != nil {
		w.logger.Error("Startup sweep failed", slog.String("error", err.Error()))
	}

	pending := make(map[string]*time.Timer)
	quiet := make(chan string, quietQueueDepth)

	defer func() {
		for _, timer := range pending {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}

			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
				continue
			}

			if !isCSV(event.Name) {
				continue
			}

			if timer, armed := pending[event.Name]; armed {
				// The file is still being written; push the handoff out.
				timer.Reset(w.config.StabilizationDelay)

				continue
			}

			path := event.Name
			pending[path] = time.AfterFunc(w.config.StabilizationDelay, func() {
				quiet <- path
			})

		case path := <-quiet:
			delete(pending, path)

			batch := w.existing(drainQuiet(pending, quiet, path))
			if len(batch) > 0 {
				w.runner.ProcessCycle(ctx, batch)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}

			w.logger.Error("Filesystem watcher error",
				slog.String("error", err.Error()),
				slog.Duration("backoff", w.config.ErrorBackoff),
			)

			if !sleepCtx(ctx, w.config.ErrorBackoff) {
				return nil
			}
		}
	}
}

// drainQuiet collects every path already quiet into one cycle, starting with
// first. Duplicates are dropped; a path can be queued twice when a new event
// re-arms its timer while an earlier handoff is still buffered.
func drainQuiet(pending map[string]*time.Timer, quiet chan string, first string) []string {
	paths := []string{first}
	seen := map[string]bool{first: true}

	for {
		select {
		case path := <-quiet:
			delete(pending, path)

			if !seen[path] {
				seen[path] = true
				paths = append(paths, path)
			}
		default:
			return paths
		}
	}
}

// existing filters out paths that vanished between debounce and handoff,
// typically files archived by a cycle that ran while their last event was
// still queued.
func (w *Watcher) existing(paths []string) []string {
	kept := paths[:0]

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			kept = append(kept, path)
		}
	}

	return kept
}
