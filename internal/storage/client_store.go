package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/geopulse-io/geopulse/internal/config"
	"github.com/geopulse-io/geopulse/internal/ingestion"
)

// Sentinel errors for client record storage operations.
var (
	// ErrClientStoreFailed is returned when a batch upsert fails at the batch
	// level: transaction begin, commit, savepoint handling, or a lost
	// connection. Row-level failures never surface here; they are reported
	// in the BatchSummary instead.
	ErrClientStoreFailed = errors.New("client record storage failed")

	// ErrNilClientRecord is recorded as a row failure when a batch contains
	// a nil record.
	ErrNilClientRecord = errors.New("client record is nil")

	// Compile-time interface assertion to ensure ClientStore satisfies the
	// pipeline's store contract. This provides early compile-time errors if
	// the interface changes.
	_ ingestion.ClientStore = (*ClientStore)(nil)
)

type (
	// ClientStore implements ingestion.ClientStore with a PostgreSQL backend.
	//
	// This implementation provides idempotent keyed persistence for validated
	// client records with:
	//   - Keyed upsert: ON CONFLICT (client_id) overwrites the existing row,
	//     so replaying a file is harmless
	//   - Partial-failure isolation: SAVEPOINT per row; a failing row is
	//     rolled back to its savepoint and skipped while its siblings proceed
	//   - Per-batch commit: one transaction per batch, all applied rows
	//     become visible together on COMMIT
	ClientStore struct {
		conn      *Connection
		logger    *slog.Logger
		closeOnce sync.Once
	}

	// ClientStoreOption configures optional ClientStore behavior.
	ClientStoreOption func(*ClientStore)
)

// WithClientStoreLogger overrides the default stdout JSON logger.
//
// Example:
//
//	store, err := storage.NewClientStore(conn,
//	    storage.WithClientStoreLogger(logger))
func WithClientStoreLogger(logger *slog.Logger) ClientStoreOption {
	return func(s *ClientStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewClientStore creates a PostgreSQL-backed client record store.
// Returns error if connection is nil (ErrNoDatabaseConnection).
//
// The store takes ownership of the connection: the ingestion pipeline opens
// one connection per file attempt and Close releases it along with the store.
func NewClientStore(conn *Connection, opts ...ClientStoreOption) (*ClientStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	store := &ClientStore{
		conn: conn,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("GEOPULSE_LOG_LEVEL", slog.LevelInfo),
		})),
	}

	// Apply optional configuration
	for _, opt := range opts {
		opt(store)
	}

	return store, nil
}

// UpsertClients implements ingestion.ClientStore.
// Applies a batch of validated records as keyed upserts in one transaction.
//
// Each row runs under its own SAVEPOINT: a row failure (constraint violation,
// oversized value) rolls back to the savepoint and is recorded as a skipped
// row in the summary, and the remaining rows are still attempted. One COMMIT
// at the end makes all applied rows visible together.
//
// Returns a batch-level error (wrapped ErrClientStoreFailed) only when the
// transaction itself cannot proceed: begin or commit failure, savepoint
// handling failure, context cancellation, or a lost database connection.
// On a batch-level error nothing was committed and the summary is nil.
//
// An empty batch is a no-op and returns an empty summary without touching
// the database.
func (s *ClientStore) UpsertClients(
	ctx context.Context,
	records []*ingestion.ClientRecord,
) (*ingestion.BatchSummary, error) {
	summary := &ingestion.BatchSummary{}

	if len(records) == 0 {
		return summary, nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to begin transaction: %w", ErrClientStoreFailed, err)
	}

	defer func() {
		_ = tx.Rollback() // Safe to call even after commit
	}()

	for i, record := range records {
		// Check for operation-level failures (context cancellation)
		if ctx.Err() != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil, fmt.Errorf("%w: batch cancelled", ErrClientStoreFailed)
			}

			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: batch timeout", ErrClientStoreFailed)
			}
		}

		if record == nil {
			summary.Record(ingestion.UpsertResult{
				Outcome: ingestion.OutcomeFailed,
				Err:     ErrNilClientRecord,
			})

			continue
		}

		// Savepoint names are positional, not user data; they cannot be
		// bound as query parameters.
		savepoint := fmt.Sprintf("client_row_%d", i)

		if _, err := tx.ExecContext(ctx, "SAVEPOINT "+savepoint); err != nil {
			return nil, fmt.Errorf("%w: failed to create savepoint: %w", ErrClientStoreFailed, err)
		}

		inserted, rowErr := s.upsertRow(ctx, tx, record)
		if rowErr != nil {
			// Connection-class failures abort the whole batch; nothing more
			// can be attempted on this transaction.
			if isConnectionError(rowErr) {
				return nil, fmt.Errorf("%w: database connection lost: %w", ErrClientStoreFailed, rowErr)
			}

			// Row failure: roll back this row only, keep the batch going.
			if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); err != nil {
				return nil, fmt.Errorf("%w: failed to roll back row: %w", ErrClientStoreFailed, err)
			}

			s.logger.Warn("row upsert failed, skipping row",
				slog.String("identity_key", record.IdentityKey),
				slog.Int("batch_position", i),
				slog.String("error", rowErr.Error()),
			)

			summary.Record(ingestion.UpsertResult{
				IdentityKey: record.IdentityKey,
				Outcome:     ingestion.OutcomeFailed,
				Err:         rowErr,
			})

			continue
		}

		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
			return nil, fmt.Errorf("%w: failed to release savepoint: %w", ErrClientStoreFailed, err)
		}

		outcome := ingestion.OutcomeUpdated
		if inserted {
			outcome = ingestion.OutcomeInserted
		}

		summary.Record(ingestion.UpsertResult{
			IdentityKey: record.IdentityKey,
			Outcome:     outcome,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: failed to commit batch: %w", ErrClientStoreFailed, err)
	}

	s.logger.Info("batch upsert committed",
		slog.Int("applied", summary.Applied),
		slog.Int("inserted", summary.Inserted()),
		slog.Int("updated", summary.Updated()),
		slog.Int("skipped", summary.Skipped),
	)

	return summary, nil
}

// upsertRow writes one record as a keyed upsert and reports whether the row
// was freshly inserted or overwrote an existing one.
func (s *ClientStore) upsertRow(
	ctx context.Context,
	tx *sql.Tx,
	record *ingestion.ClientRecord,
) (bool, error) {
	query := `
		INSERT INTO clients (
			client_id,
			name,
			country,
			city,
			event_date,
			created_at,
			updated_at
		) VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (client_id) DO UPDATE
		SET
			name = EXCLUDED.name,
			country = EXCLUDED.country,
			city = EXCLUDED.city,
			event_date = EXCLUDED.event_date,
			updated_at = NOW()
		RETURNING (xmax = 0) AS inserted
	`

	// xmax is zero for a freshly inserted row version and non-zero when the
	// conflict arm rewrote an existing row, which distinguishes insert from
	// update without a second round trip.
	var inserted bool

	err := tx.QueryRowContext(
		ctx,
		query,
		record.IdentityKey,
		record.Name,
		record.Country,
		record.City,
		record.EventDate,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("failed to upsert client %q: %w", record.IdentityKey, err)
	}

	return inserted, nil
}

// HealthCheck implements ingestion.ClientStore.
// Verifies the backing database connection is alive.
func (s *ClientStore) HealthCheck(ctx context.Context) error {
	return s.conn.HealthCheck(ctx)
}

// Close releases the store's database connection.
// This method is safe to call multiple times.
//
// The store owns the connection it was constructed with: the pipeline opens
// a fresh connection per file attempt and closes it, through the store,
// before moving to the next file.
func (s *ClientStore) Close() error {
	var err error

	s.closeOnce.Do(func() {
		err = s.conn.Close()
	})

	return err
}
