// Package ingestion provides the file-drop ingestion pipeline for client records.
//
// The pipeline turns loosely-structured CSV drops into idempotent keyed
// upserts: read → resolve schema → validate rows → resolve dates → allocate
// identity keys → deduplicate → upsert → archive. Files are processed strictly
// sequentially by a single worker. Failures isolate at the row or file level
// and never abort the surrounding cycle; the only fatal condition lives in
// startup (store unreachable after the bounded retry budget).
package ingestion

import (
	"strings"
	"time"
)

type (
	// ClientRecord is a validated client row ready for upsert - Domain Model.
	//
	// Records are produced by the Validator from raw CSV rows and carry no
	// JSON tags; the publisher and API layers map to their own contract types.
	ClientRecord struct {
		// IdentityKey identifies the client for keyed upserts. Comes from an
		// explicit id column when the source provides one (trimmed, truncated
		// to the column width), otherwise synthesized per batch as "auto_<n>".
		// Synthetic keys are NOT stable across independent runs; that gap is
		// a property of the source data and is documented, not fixed.
		IdentityKey string

		// Name is the client name. Non-empty after validation, trimmed.
		Name string

		// Country is the client country. Non-empty after validation, trimmed.
		// No geographic validation is performed; values are opaque labels.
		Country string

		// City is the client city. Non-empty after validation, trimmed.
		City string

		// EventDate is the date associated with the record. Always set: the
		// date resolver falls back to the current wall-clock date when the
		// source value is missing or unparseable.
		EventDate time.Time

		// DateDefaulted is true when EventDate was defaulted by the resolver
		// rather than parsed from the source value. Drives the warning log.
		DateDefaulted bool

		// SourceFile is the path of the file this record came from.
		// Provenance only; not persisted.
		SourceFile string

		// SourceRow is the 1-based row ordinal within the source file
		// (header is row 1, first data row is row 2). Provenance only.
		SourceRow int
	}

	// Row is one raw data row of an IngestionBatch.
	Row struct {
		// Number is the 1-based row ordinal within the source file
		// (header is row 1). Empty rows are skipped at read time but still
		// advance the ordinal, so Number always reflects source position.
		Number int

		// Fields are the raw cell values, padded to the header width.
		Fields []string
	}

	// IngestionBatch holds the raw contents of one discovered file.
	// Ephemeral: built by the reader, consumed within a single cycle,
	// never persisted.
	IngestionBatch struct {
		// Path is the file this batch was read from.
		Path string

		// Header is the raw header row, exactly as read (normalization is
		// the schema resolver's job, not the reader's).
		Header []string

		// Rows are the non-empty data rows, padded to the header width.
		Rows []Row

		// ReadAt is when the batch was read from disk. The watcher guarantees
		// the file was stable for the configured delay before handing it over.
		ReadAt time.Time
	}
)

// RowsRead returns the number of non-empty data rows in the batch.
func (b *IngestionBatch) RowsRead() int {
	return len(b.Rows)
}

// Validate performs domain validation on the ClientRecord.
//
// The record must carry:
//   - an identity key (allocator guarantees one; this guards misuse)
//   - a name, country, and city that survive trimming
//   - an event date (resolver guarantees one)
//
// Returns the matching sentinel error for the first violated rule.
func (r *ClientRecord) Validate() error {
	if strings.TrimSpace(r.IdentityKey) == "" {
		return ErrMissingIdentityKey
	}

	if strings.TrimSpace(r.Name) == "" {
		return ErrMissingName
	}

	if strings.TrimSpace(r.Country) == "" {
		return ErrMissingCountry
	}

	if strings.TrimSpace(r.City) == "" {
		return ErrMissingCity
	}

	if r.EventDate.IsZero() {
		return ErrMissingEventDate
	}

	return nil
}
