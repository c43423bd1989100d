package storage

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const testAPIKey = "sk-test-12345678901234567890123456789012" // pragma: allowlist secret

// 76 characters, the well-formed GeoPulse key length. Exercises the SHA-256
// prehash path above the bcrypt input limit.
const testFullLengthKey = "geopulse_ak_1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef" // pragma: allowlist secret

func TestHashAPIKey_Properties(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	inputs := map[string]string{
		"short key":       "sk-test-123",
		"mid-length key":  testAPIKey,
		"full-length key": testFullLengthKey,
		"oversized key":   strings.Repeat("a", 100),
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			hash, err := HashAPIKey(input)
			if err != nil {
				t.Fatalf("HashAPIKey() error = %v", err)
			}

			// Modular crypt format: $2<minor>$<cost>$..., 60 bytes total.
			if !strings.HasPrefix(hash, "$2") || len(hash) != 60 {
				t.Errorf("HashAPIKey() = %q, want 60-char bcrypt hash", hash)
			}

			if strings.Contains(hash, input) {
				t.Error("HashAPIKey() embedded the plaintext key in the hash")
			}

			rehash, err := HashAPIKey(input)
			if err != nil {
				t.Fatalf("HashAPIKey() second call error = %v", err)
			}

			if hash == rehash {
				t.Error("HashAPIKey() produced identical hashes; salt missing")
			}
		})
	}
}

func TestHashAPIKey_EmptyInput(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	hash, err := HashAPIKey("")
	if !errors.Is(err, ErrKeyNil) {
		t.Errorf("HashAPIKey(\"\") error = %v, want ErrKeyNil", err)
	}

	if hash != "" {
		t.Errorf("HashAPIKey(\"\") hash = %q, want empty", hash)
	}
}

func TestCompareAPIKeyHash(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	testHash, err := HashAPIKey(testAPIKey)
	if err != nil {
		t.Fatalf("failed to generate test hash: %v", err)
	}

	tests := []struct {
		name   string
		hash   string
		apiKey string
		want   bool
	}{
		{"matching key", testHash, testAPIKey, true},
		{"wrong key", testHash, "sk-test-wrong-key-here", false},
		{"case mismatch", testHash, strings.ToUpper(testAPIKey), false},
		{"empty hash", "", testAPIKey, false},
		{"empty key", testHash, "", false},
		{"both empty", "", "", false},
		{"garbage hash", "invalid-hash-format", testAPIKey, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CompareAPIKeyHash(tt.hash, tt.apiKey); got != tt.want {
				t.Errorf("CompareAPIKeyHash() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompareAPIKeyHash_FullLengthKeys(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	hash, err := HashAPIKey(testFullLengthKey)
	if err != nil {
		t.Fatalf("failed to hash full-length key: %v", err)
	}

	if !CompareAPIKeyHash(hash, testFullLengthKey) {
		t.Error("CompareAPIKeyHash() = false for matching full-length key")
	}

	// Two keys sharing the first 72 bytes must not cross-match; raw bcrypt
	// would only see the shared prefix.
	cousin := testFullLengthKey[:len(testFullLengthKey)-4] + "0000"
	if CompareAPIKeyHash(hash, cousin) {
		t.Error("CompareAPIKeyHash() = true for key differing only past the bcrypt input limit")
	}
}

// Cost 10 should land in the tens of milliseconds. A hash that returns near
// instantly means the cost parameter got lost somewhere; one that takes
// hundreds of milliseconds will back up the auth path.
func TestBcryptTiming(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	start := time.Now()

	hash, err := HashAPIKey(testAPIKey)
	if err != nil {
		t.Fatalf("HashAPIKey() error = %v", err)
	}

	hashTime := time.Since(start)

	start = time.Now()

	if !CompareAPIKeyHash(hash, testAPIKey) {
		t.Fatal("CompareAPIKeyHash() = false for correct key")
	}

	compareTime := time.Since(start)

	t.Logf("hash %v, compare %v", hashTime, compareTime)

	for name, d := range map[string]time.Duration{"hash": hashTime, "compare": compareTime} {
		if d > 200*time.Millisecond {
			t.Errorf("%s took %v, want < 200ms at cost 10", name, d)
		}

		if d < 5*time.Millisecond {
			t.Errorf("%s took %v, suspiciously fast for bcrypt cost 10", name, d)
		}
	}
}

func BenchmarkHashAPIKey(b *testing.B) {
	for range b.N {
		if _, err := HashAPIKey(testFullLengthKey); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCompareAPIKeyHash(b *testing.B) {
	hash, err := HashAPIKey(testFullLengthKey)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()

	for range b.N {
		CompareAPIKeyHash(hash, testFullLengthKey)
	}
}
