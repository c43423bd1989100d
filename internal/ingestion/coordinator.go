package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/geopulse-io/geopulse/internal/aliasing"
	"github.com/geopulse-io/geopulse/internal/canonicalization"
)

type (
	// StoreFactory opens a store connection for one file attempt.
	// The coordinator closes the returned store before moving to the next
	// file, so a flaky database never poisons a long-lived connection.
	StoreFactory func(ctx context.Context) (ClientStore, error)

	// ReportPublisher publishes per-file ingestion reports to an external
	// sink. Publishing is best-effort: failures are logged and never affect
	// the file lifecycle.
	ReportPublisher interface {
		PublishFileReport(ctx context.Context, cycleID string, report *FileReport) error
	}

	// FileReport summarizes the ingestion of one file within a cycle.
	FileReport struct {
		// File is the input path the report describes.
		File string

		// State is the file's lifecycle outcome.
		State FileState

		// RowsRead counts non-empty data rows read from the file.
		RowsRead int

		// RowsValid counts rows that passed validation (including rows later
		// dropped as duplicates).
		RowsValid int

		// RowsDeduped counts valid rows dropped as within-cycle duplicates.
		RowsDeduped int

		// Summary holds the per-row store results. Nil when the file never
		// reached the store (read or schema failure).
		Summary *BatchSummary

		// Err is the file-level failure, empty on success.
		Err string
	}

	// CycleReport aggregates the file reports of one ingestion cycle.
	CycleReport struct {
		CycleID     string
		StartedAt   time.Time
		CompletedAt time.Time
		Files       []*FileReport
	}

	// Coordinator drives ingestion cycles: it owns the per-cycle
	// deduplicator, processes files strictly sequentially, and decides each
	// file's lifecycle outcome. Row- and file-level failures never escape a
	// cycle.
	Coordinator struct {
		stores    StoreFactory
		resolver  *aliasing.Resolver
		validator *Validator
		archiver  *Archiver
		attempts  *AttemptTracker
		publisher ReportPublisher
		logger    *slog.Logger
	}

	// CoordinatorOption configures optional Coordinator collaborators.
	CoordinatorOption func(*Coordinator)
)

// WithPublisher attaches a report publisher. A nil publisher leaves
// publishing disabled.
func WithPublisher(publisher ReportPublisher) CoordinatorOption {
	return func(c *Coordinator) {
		c.publisher = publisher
	}
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(
	stores StoreFactory,
	resolver *aliasing.Resolver,
	validator *Validator,
	archiver *Archiver,
	attempts *AttemptTracker,
	logger *slog.Logger,
	opts ...CoordinatorOption,
) *Coordinator {
	c := &Coordinator{
		stores:    stores,
		resolver:  resolver,
		validator: validator,
		archiver:  archiver,
		attempts:  attempts,
		logger:    logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ProcessCycle ingests the discovered files as one cycle.
//
// A cycle shares a single Deduplicator across its files, so duplicates are
// caught within a file and across files discovered together. Files are
// processed strictly sequentially. Shutdown is observed between files only:
// once a file starts, its processing runs on a context detached from
// cancellation so a half-ingested file is never abandoned mid-transaction.
func (c *Coordinator) ProcessCycle(ctx context.Context, paths []string) *CycleReport {
	report := &CycleReport{
		CycleID:   uuid.NewString(),
		StartedAt: time.Now(),
	}

	logger := c.logger.With(slog.String("cycle_id", report.CycleID))
	logger.Info("Starting ingestion cycle", slog.Int("files", len(paths)))

	dedup := NewDeduplicator()

	for _, path := range paths {
		if ctx.Err() != nil {
			logger.Info("Shutdown requested, ending cycle early",
				slog.Int("files_remaining", len(paths)-len(report.Files)),
			)

			break
		}

		fileCtx := context.WithoutCancel(ctx)

		fileReport := c.processFile(fileCtx, logger, path, dedup)
		report.Files = append(report.Files, fileReport)

		c.publish(fileCtx, report.CycleID, fileReport)
	}

	report.CompletedAt = time.Now()

	counts := report.ByState()
	logger.Info("Ingestion cycle complete",
		slog.Int("files", len(report.Files)),
		slog.Int("archived", counts[FileStateArchived]),
		slog.Int("retained", counts[FileStateRetained]),
		slog.Int("quarantined", counts[FileStateQuarantined]),
		slog.Duration("elapsed", report.CompletedAt.Sub(report.StartedAt)),
	)

	return report
}

// processFile runs the full pipeline for one file:
// read → resolve schema → validate + dedup → upsert → archive.
func (c *Coordinator) processFile(
	ctx context.Context,
	logger *slog.Logger,
	path string,
	dedup *Deduplicator,
) *FileReport {
	report := &FileReport{File: path, State: FileStateDiscovered}
	logger = logger.With(slog.String("file", path))

	c.advance(logger, report, FileStateProcessing)

	batch, err := ReadBatch(path)
	if err != nil {
		return c.fail(logger, report, fmt.Errorf("failed to read file: %w", err))
	}

	report.RowsRead = batch.RowsRead()

	mapping, err := c.resolver.Resolve(batch.Header)
	if err != nil {
		// Whole-file rejection: unresolvable schema drops zero rows into the
		// store and leaves the file in place.
		return c.fail(logger, report, err)
	}

	records := c.collectRecords(logger, batch, mapping, dedup, report)

	store, err := c.stores(ctx)
	if err != nil {
		return c.fail(logger, report, fmt.Errorf("failed to open store: %w", err))
	}

	defer func() {
		_ = store.Close()
	}()

	summary, err := store.UpsertClients(ctx, records)
	if err != nil {
		return c.fail(logger, report, fmt.Errorf("failed to upsert batch: %w", err))
	}

	report.Summary = summary

	archivedTo, err := c.archiver.Archive(path)
	if err != nil {
		// Rows are committed but the file could not be acknowledged; it will
		// be re-discovered and the keyed upsert makes the replay harmless.
		return c.fail(logger, report, fmt.Errorf("failed to archive file: %w", err))
	}

	c.attempts.Reset(path)
	c.advance(logger, report, FileStateArchived)

	logger.Info("File ingested",
		slog.Int("rows_read", report.RowsRead),
		slog.Int("rows_valid", report.RowsValid),
		slog.Int("rows_deduped", report.RowsDeduped),
		slog.Int("applied", summary.Applied),
		slog.Int("skipped", summary.Skipped),
		slog.String("archived_to", archivedTo),
	)

	return report
}

// collectRecords validates, dates, keys, and dedups the batch rows.
// Invalid rows and duplicates are dropped here; neither aborts the batch.
func (c *Coordinator) collectRecords(
	logger *slog.Logger,
	batch *IngestionBatch,
	mapping *aliasing.ColumnMapping,
	dedup *Deduplicator,
	report *FileReport,
) []*ClientRecord {
	keys := canonicalization.NewKeyAllocator()
	records := make([]*ClientRecord, 0, len(batch.Rows))

	for _, row := range batch.Rows {
		record, err := c.validator.ValidateRow(mapping, row, keys)
		if err != nil {
			logger.Debug("Dropping invalid row",
				slog.Int("row", row.Number),
				slog.String("error", err.Error()),
			)

			continue
		}

		report.RowsValid++
		record.SourceFile = batch.Path

		if record.DateDefaulted {
			logger.Warn("Date missing or unparseable, defaulted to current date",
				slog.Int("row", row.Number),
				slog.String("identity_key", record.IdentityKey),
				slog.Time("event_date", record.EventDate),
			)
		}

		if !dedup.Observe(record) {
			report.RowsDeduped++

			logger.Debug("Dropping duplicate row",
				slog.Int("row", row.Number),
				slog.String("name", record.Name),
				slog.String("country", record.Country),
				slog.String("city", record.City),
			)

			continue
		}

		records = append(records, record)
	}

	return records
}

// fail records a file-level failure and decides between retain and
// quarantine. Retained files stay in the input directory for re-discovery.
func (c *Coordinator) fail(logger *slog.Logger, report *FileReport, err error) *FileReport {
	report.Err = err.Error()

	if c.attempts.RecordFailure(report.File) {
		quarantinedTo, qErr := c.archiver.Quarantine(report.File)
		if qErr != nil {
			logger.Error("Failed to quarantine file, retaining instead",
				slog.String("error", qErr.Error()),
			)

			c.advance(logger, report, FileStateRetained)

			return report
		}

		c.attempts.Reset(report.File)
		c.advance(logger, report, FileStateQuarantined)

		logger.Warn("File quarantined after repeated failures",
			slog.String("error", err.Error()),
			slog.String("quarantined_to", quarantinedTo),
		)

		return report
	}

	c.advance(logger, report, FileStateRetained)

	logger.Error("File ingestion failed, retaining for retry",
		slog.String("error", err.Error()),
		slog.Int("attempts", c.attempts.Failures(report.File)),
	)

	return report
}

// advance moves the report through the file lifecycle, asserting the
// transition is legal. An illegal transition is a programming error; it is
// logged and the state is left unchanged so the report stays honest.
func (c *Coordinator) advance(logger *slog.Logger, report *FileReport, to FileState) {
	if err := ValidateFileTransition(report.State, to); err != nil {
		logger.Error("Invalid file state transition",
			slog.String("from", report.State.String()),
			slog.String("to", to.String()),
			slog.String("error", err.Error()),
		)

		return
	}

	report.State = to
}

// publish sends the file report to the configured publisher, if any.
func (c *Coordinator) publish(ctx context.Context, cycleID string, report *FileReport) {
	if c.publisher == nil {
		return
	}

	if err := c.publisher.PublishFileReport(ctx, cycleID, report); err != nil {
		c.logger.Warn("Failed to publish file report",
			slog.String("cycle_id", cycleID),
			slog.String("file", report.File),
			slog.String("error", err.Error()),
		)
	}
}

// PruneAttempts drops failure counters for paths no longer present in the
// input directory, so a deleted-and-recreated file starts with a clean
// history. Fed by the poll watch strategy, which sees full directory
// listings.
func (c *Coordinator) PruneAttempts(present map[string]bool) {
	c.attempts.Prune(present)
}

// ByState counts the cycle's files per lifecycle outcome.
func (r *CycleReport) ByState() map[FileState]int {
	counts := make(map[FileState]int, len(ValidFileStates()))

	for _, file := range r.Files {
		counts[file.State]++
	}

	return counts
}
