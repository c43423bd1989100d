// Package canonicalization provides identity key derivation for client records.
package canonicalization

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// ==============================================================================
// Unit Tests: Identity Key Allocation
// ==============================================================================

func TestAllocate_ExplicitKey(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	alloc := NewKeyAllocator()

	key := alloc.Allocate("client-42")
	if key != "client-42" {
		t.Errorf("Allocate() = %q, expected explicit key to pass through", key)
	}

	if alloc.Allocated() != 0 {
		t.Errorf("Allocated() = %d, explicit keys must not advance the sequence", alloc.Allocated())
	}
}

func TestAllocate_ExplicitKeyTrimmed(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	alloc := NewKeyAllocator()

	key := alloc.Allocate("  abc  ")
	if key != "abc" {
		t.Errorf("Allocate() = %q, expected surrounding whitespace to be trimmed", key)
	}
}

func TestAllocate_SyntheticSequence(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	alloc := NewKeyAllocator()

	first := alloc.Allocate("")
	second := alloc.Allocate("")
	third := alloc.Allocate("")

	if first != "auto_1" || second != "auto_2" || third != "auto_3" {
		t.Errorf("Allocate() synthetic sequence = %q, %q, %q, expected auto_1..auto_3", first, second, third)
	}

	if alloc.Allocated() != 3 {
		t.Errorf("Allocated() = %d, expected 3", alloc.Allocated())
	}
}

func TestAllocate_WhitespaceOnlyIsSynthetic(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	alloc := NewKeyAllocator()

	key := alloc.Allocate("   \t ")
	if key != "auto_1" {
		t.Errorf("Allocate() = %q, whitespace-only id should synthesize a key", key)
	}
}

func TestAllocate_ExplicitDoesNotAdvanceSequence(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	alloc := NewKeyAllocator()

	_ = alloc.Allocate("")         // auto_1
	_ = alloc.Allocate("explicit") // no sequence advance

	key := alloc.Allocate("")
	if key != "auto_2" {
		t.Errorf("Allocate() = %q, expected auto_2 after one synthetic and one explicit key", key)
	}
}

func TestAllocate_LongExplicitKeyTruncated(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	alloc := NewKeyAllocator()

	long := strings.Repeat("k", MaxIdentityKeyLength+40)

	key := alloc.Allocate(long)
	if len(key) != MaxIdentityKeyLength {
		t.Errorf("Allocate() returned %d chars, expected truncation to %d", len(key), MaxIdentityKeyLength)
	}

	if key != long[:MaxIdentityKeyLength] {
		t.Error("Allocate() truncation should keep the leading characters")
	}
}

func TestAllocate_ExactLimitNotTruncated(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	alloc := NewKeyAllocator()

	exact := strings.Repeat("k", MaxIdentityKeyLength)

	key := alloc.Allocate(exact)
	if key != exact {
		t.Errorf("Allocate() modified a key of exactly %d chars", MaxIdentityKeyLength)
	}
}

func TestAllocate_IndependentAllocators(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	// Each batch gets a fresh allocator, so sequences restart at 1.
	first := NewKeyAllocator()
	second := NewKeyAllocator()

	_ = first.Allocate("")
	_ = first.Allocate("")

	key := second.Allocate("")
	if key != "auto_1" {
		t.Errorf("Allocate() = %q, a fresh allocator should restart at auto_1", key)
	}
}

// ==============================================================================
// Unit Tests: Synthetic Key Inspection
// ==============================================================================

func TestIsSyntheticKey(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		key  string
		want bool
	}{
		{"auto_1", true},
		{"auto_999", true},
		{"auto_", true}, // prefix match only; ParseSyntheticKey rejects it
		{"client-42", false},
		{"AUTO_1", false}, // prefix is case-sensitive
		{"", false},
	}

	for _, tt := range tests {
		if got := IsSyntheticKey(tt.key); got != tt.want {
			t.Errorf("IsSyntheticKey(%q) = %v, expected %v", tt.key, got, tt.want)
		}
	}
}

func TestParseSyntheticKey_Valid(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	seq, err := ParseSyntheticKey("auto_7")
	if err != nil {
		t.Fatalf("ParseSyntheticKey() unexpected error: %v", err)
	}

	if seq != 7 {
		t.Errorf("ParseSyntheticKey() = %d, expected 7", seq)
	}
}

func TestParseSyntheticKey_RoundTrip(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	alloc := NewKeyAllocator()

	for want := 1; want <= 5; want++ {
		key := alloc.Allocate("")

		seq, err := ParseSyntheticKey(key)
		if err != nil {
			t.Fatalf("ParseSyntheticKey(%q) unexpected error: %v", key, err)
		}

		if seq != want {
			t.Errorf("ParseSyntheticKey(%q) = %d, expected %d", key, seq, want)
		}
	}
}

func TestParseSyntheticKey_NotSynthetic(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	_, err := ParseSyntheticKey("client-42")
	if !errors.Is(err, ErrNotSyntheticKey) {
		t.Errorf("ParseSyntheticKey() error = %v, expected ErrNotSyntheticKey", err)
	}
}

func TestParseSyntheticKey_InvalidSequence(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	invalid := []string{"auto_", "auto_zero", "auto_0", "auto_-3", "auto_1.5"}

	for _, key := range invalid {
		_, err := ParseSyntheticKey(key)
		if !errors.Is(err, ErrInvalidSyntheticSequence) {
			t.Errorf("ParseSyntheticKey(%q) error = %v, expected ErrInvalidSyntheticSequence", key, err)
		}
	}
}

// ==============================================================================
// Unit Tests: Column Width Invariant
// ==============================================================================

func TestSyntheticKeysFitColumnWidth(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	// Even absurd batch sizes stay far below the column width.
	key := fmt.Sprintf("%s%d", SyntheticKeyPrefix, 1_000_000_000)
	if len(key) > MaxIdentityKeyLength {
		t.Errorf("synthetic key %q exceeds %d chars", key, MaxIdentityKeyLength)
	}
}
