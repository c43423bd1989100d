// Package canonicalization provides identity key derivation for client records.
//
// Identity keys make ingestion idempotent: the store keeps at most one row per
// key, and re-ingesting a key overwrites that row instead of creating a second
// one. Keys come from the source data when an explicit id column is present,
// and are synthesized batch-locally when it is not.
//
// This package provides pure utility functions and a small allocator that
// operate on primitives (strings) rather than domain types, making them
// reusable across readers and stores.
//
// Key functions:
//   - KeyAllocator.Allocate: derives the identity key for one row
//   - ParseSyntheticKey: recovers the batch sequence from a synthesized key
package canonicalization

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// MaxIdentityKeyLength is the maximum length for client identity keys.
	// Must match database schema: clients.client_id VARCHAR(255).
	MaxIdentityKeyLength = 255

	// SyntheticKeyPrefix marks identity keys synthesized for rows that carried
	// no explicit id column. Synthetic keys are sequenced per batch, so they
	// are NOT stable across independent ingestion runs. That gap is a known
	// property of the source data, not something this package papers over.
	SyntheticKeyPrefix = "auto_"
)

// Sentinel errors for identity key operations.
var (
	// ErrNotSyntheticKey is returned when a key does not carry the synthetic prefix.
	ErrNotSyntheticKey = errors.New("identity key is not synthetic")

	// ErrInvalidSyntheticSequence is returned when the sequence part of a
	// synthetic key is missing or not a positive integer.
	ErrInvalidSyntheticSequence = errors.New("invalid synthetic key sequence")
)

// KeyAllocator derives identity keys for the rows of a single batch.
//
// One allocator is created per file batch. Rows with an explicit id keep it
// (trimmed, truncated to MaxIdentityKeyLength); rows without one receive
// "auto_<n>" where n counts allocations within this batch, starting at 1.
//
// The allocator is used by a single worker per batch and holds no lock.
type KeyAllocator struct {
	next int
}

// NewKeyAllocator creates an allocator whose synthetic sequence starts at 1.
func NewKeyAllocator() *KeyAllocator {
	return &KeyAllocator{next: 1}
}

// Allocate derives the identity key for one row.
//
// Rules:
//   - explicit id present (non-empty after trimming): returned as-is,
//     truncated to MaxIdentityKeyLength to fit the column width
//   - explicit id absent: next synthetic key "auto_<n>" for this batch
//
// Examples:
//   - Allocate("client-42")   → "client-42"
//   - Allocate("  abc  ")     → "abc"
//   - Allocate("")            → "auto_1" (then "auto_2", ...)
//   - Allocate("   ")         → "auto_1" (whitespace-only counts as absent)
//
// Synthetic keys are deterministic within a batch (same row order yields the
// same keys) but not across runs; see SyntheticKeyPrefix.
func (a *KeyAllocator) Allocate(explicit string) string {
	key := strings.TrimSpace(explicit)
	if key == "" {
		key = fmt.Sprintf("%s%d", SyntheticKeyPrefix, a.next)
		a.next++

		return key
	}

	if len(key) > MaxIdentityKeyLength {
		key = key[:MaxIdentityKeyLength]
	}

	return key
}

// Allocated returns how many synthetic keys this allocator has handed out.
// Explicit keys do not advance the sequence.
func (a *KeyAllocator) Allocated() int {
	return a.next - 1
}

// IsSyntheticKey reports whether key was synthesized by a KeyAllocator
// rather than read from the source data.
func IsSyntheticKey(key string) bool {
	return strings.HasPrefix(key, SyntheticKeyPrefix)
}

// ParseSyntheticKey extracts the batch sequence number from a synthetic key.
//
// Examples:
//   - ParseSyntheticKey("auto_7")   → (7, nil)
//   - ParseSyntheticKey("client-1") → (0, ErrNotSyntheticKey)
//   - ParseSyntheticKey("auto_")    → (0, ErrInvalidSyntheticSequence)
//   - ParseSyntheticKey("auto_0")   → (0, ErrInvalidSyntheticSequence)
//
// Returns the 1-based sequence, or a sentinel error usable with errors.Is.
func ParseSyntheticKey(key string) (int, error) {
	if !IsSyntheticKey(key) {
		return 0, ErrNotSyntheticKey
	}

	raw := strings.TrimPrefix(key, SyntheticKeyPrefix)
	if raw == "" {
		return 0, fmt.Errorf("%w: empty sequence", ErrInvalidSyntheticSequence)
	}

	seq, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSyntheticSequence, raw)
	}

	if seq < 1 {
		return 0, fmt.Errorf("%w: sequence must be positive, got %d", ErrInvalidSyntheticSequence, seq)
	}

	return seq, nil
}
