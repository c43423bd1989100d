package ingestion

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// archiveTimestampLayout prefixes archived file names, UTC:
	// <yyyymmdd_hhmmss>_<original-base>.
	archiveTimestampLayout = "20060102_150405"

	archiveDirPerm = 0o750
)

// Archiver moves processed files out of the input directory.
//
// Successful files are renamed into the archive directory with a UTC
// timestamp prefix; the rename is the pipeline's acknowledgement that the
// file's rows were committed. Files that exhaust the attempt limit are moved
// to the quarantine directory instead. Both directories are created on
// demand.
type Archiver struct {
	archiveDir    string
	quarantineDir string
	now           func() time.Time
}

// NewArchiver creates an Archiver for the given directories.
func NewArchiver(archiveDir, quarantineDir string) *Archiver {
	return &Archiver{
		archiveDir:    archiveDir,
		quarantineDir: quarantineDir,
		now:           time.Now,
	}
}

// Archive moves path into the archive directory as
// <UTC yyyymmdd_hhmmss>_<original-base> and returns the destination.
//
// On failure the file stays where it is; the caller retains it for
// re-discovery.
func (a *Archiver) Archive(path string) (string, error) {
	return a.move(path, a.archiveDir)
}

// Quarantine moves path into the quarantine directory with the same naming
// scheme as Archive. Only called once a file exhausts the attempt limit.
func (a *Archiver) Quarantine(path string) (string, error) {
	return a.move(path, a.quarantineDir)
}

func (a *Archiver) move(path, dir string) (string, error) {
	if err := os.MkdirAll(dir, archiveDirPerm); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	name := a.now().UTC().Format(archiveTimestampLayout) + "_" + filepath.Base(path)
	dest := filepath.Join(dir, name)

	if err := os.Rename(path, dest); err != nil {
		return "", fmt.Errorf("failed to move %s: %w", path, err)
	}

	return dest, nil
}

// AttemptTracker counts consecutive ingestion failures per input path.
//
// With maxAttempts == 0 (the default) the limit is disabled and failing files
// retry forever, which reproduces the long-observed behavior of this
// pipeline. A positive limit turns repeated failures into quarantine moves.
// Counters reset on success and when a file disappears from the input
// directory.
//
// Used by a single worker; holds no lock.
type AttemptTracker struct {
	maxAttempts int
	failures    map[string]int
}

// NewAttemptTracker creates a tracker with the given limit.
// maxAttempts <= 0 disables quarantining.
func NewAttemptTracker(maxAttempts int) *AttemptTracker {
	return &AttemptTracker{
		maxAttempts: maxAttempts,
		failures:    make(map[string]int),
	}
}

// RecordFailure increments the failure count for path and reports whether
// the path has exhausted the attempt limit. Always false when the limit is
// disabled.
func (t *AttemptTracker) RecordFailure(path string) bool {
	t.failures[path]++

	if t.maxAttempts <= 0 {
		return false
	}

	return t.failures[path] >= t.maxAttempts
}

// Reset clears the failure count for path.
func (t *AttemptTracker) Reset(path string) {
	delete(t.failures, path)
}

// Failures returns the current consecutive failure count for path.
func (t *AttemptTracker) Failures(path string) int {
	return t.failures[path]
}

// Prune drops counters for paths no longer present in the input directory,
// so a deleted-and-recreated file starts with a clean history.
func (t *AttemptTracker) Prune(present map[string]bool) {
	for path := range t.failures {
		if !present[path] {
			delete(t.failures, path)
		}
	}
}
