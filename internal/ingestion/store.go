// Package note: this file defines the ClientStore interface which represents
// what the pipeline needs for record persistence. Concrete implementations
// (PostgreSQL, mocks) live in the internal/storage package; the domain owns
// the contract, following the Dependency Inversion Principle.
package ingestion

import (
	"context"
	"io"
)

// ClientStore is the pipeline's gateway to the keyed client store.
//
// Implementations must provide:
//   - Idempotency: upserting an existing identity key overwrites that row,
//     never creates a second one.
//   - Partial-failure isolation: a failing row is skipped and reported; the
//     remaining rows of the batch are still attempted.
//   - Per-batch commit: all applied rows of a batch become visible together.
//
// The coordinator opens one store per file attempt and closes it before
// moving on, hence io.Closer.
type ClientStore interface {
	// UpsertClients applies a batch of validated records as keyed upserts.
	//
	// Returns a BatchSummary with a per-record result. The error return is
	// reserved for batch-level failures (connection loss, failed commit);
	// row-level failures live in the summary and never surface here.
	//
	// An empty batch is a no-op and returns an empty summary.
	UpsertClients(ctx context.Context, records []*ClientRecord) (*BatchSummary, error)

	// HealthCheck verifies the store is reachable and ready.
	// Used by startup gating and the reporting health endpoints.
	HealthCheck(ctx context.Context) error

	// Closer releases the store's connection. Safe to call multiple times.
	io.Closer
}

// UpsertOutcome classifies the result of a single keyed upsert.
type UpsertOutcome string

const (
	// OutcomeInserted indicates the identity key did not exist and a row was created.
	OutcomeInserted UpsertOutcome = "inserted"

	// OutcomeUpdated indicates the identity key existed and its row was overwritten.
	OutcomeUpdated UpsertOutcome = "updated"

	// OutcomeFailed indicates the row failed and was skipped; its siblings
	// were still attempted.
	OutcomeFailed UpsertOutcome = "failed"
)

// IsValid checks if the UpsertOutcome is a known classification.
func (o UpsertOutcome) IsValid() bool {
	switch o {
	case OutcomeInserted, OutcomeUpdated, OutcomeFailed:
		return true
	default:
		return false
	}
}

// Applied returns true if the outcome wrote a row (inserted or updated).
func (o UpsertOutcome) Applied() bool {
	return o == OutcomeInserted || o == OutcomeUpdated
}

type (
	// UpsertResult is the storage result for a single record.
	UpsertResult struct {
		// IdentityKey is the key the upsert targeted.
		IdentityKey string

		// Outcome classifies what happened to the row.
		Outcome UpsertOutcome

		// Err contains the row failure when Outcome is OutcomeFailed, nil
		// otherwise. Row failures are data problems (constraint violations,
		// oversized values); batch-level failures are returned by
		// UpsertClients itself.
		Err error
	}

	// BatchSummary aggregates the per-record results of one batch upsert.
	BatchSummary struct {
		// Results holds one entry per attempted record, in batch order.
		Results []UpsertResult

		// Applied counts rows written (inserted + updated).
		Applied int

		// Skipped counts rows that failed and were skipped.
		Skipped int

		// Errors collects row failure messages for reporting. Parallel to
		// the failed entries of Results.
		Errors []string
	}
)

// Record appends one result and keeps the aggregate counters consistent.
func (s *BatchSummary) Record(result UpsertResult) {
	s.Results = append(s.Results, result)

	if result.Outcome.Applied() {
		s.Applied++

		return
	}

	s.Skipped++

	if result.Err != nil {
		s.Errors = append(s.Errors, result.Err.Error())
	}
}

// Inserted counts rows with OutcomeInserted.
func (s *BatchSummary) Inserted() int {
	count := 0

	for _, r := range s.Results {
		if r.Outcome == OutcomeInserted {
			count++
		}
	}

	return count
}

// Updated counts rows with OutcomeUpdated.
func (s *BatchSummary) Updated() int {
	count := 0

	for _, r := range s.Results {
		if r.Outcome == OutcomeUpdated {
			count++
		}
	}

	return count
}
