package storage

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// Cost 10 lands around 60ms per hash; raise to 12 (~250ms) only if key
	// validation latency allows.
	bcryptCost  = 10
	bcryptLimit = 72
)

// HashAPIKey derives the bcrypt hash that gets stored in place of a plaintext
// key. The plaintext exists exactly once, at generation time.
//
// Bcrypt silently truncates input past 72 bytes, and well-formed GeoPulse keys
// run 76 characters ("geopulse_ak_" + 64 hex), so long keys are pre-hashed
// with SHA-256; otherwise the shared prefix plus most of the hex would satisfy
// a comparison on its own. Shorter inputs (tests, hand-issued dev keys) hash
// directly.
func HashAPIKey(apiKey string) (string, error) {
	if apiKey == "" {
		return "", ErrKeyNil
	}

	hash, err := bcrypt.GenerateFromPassword(bcryptInput(apiKey), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash API key: %w", err)
	}

	return string(hash), nil
}

// CompareAPIKeyHash reports whether a presented key matches a stored hash.
// All authentication decisions route through this; plaintext keys are never
// compared directly. Empty or malformed inputs simply fail the match.
func CompareAPIKeyHash(hash, apiKey string) bool {
	if hash == "" || apiKey == "" {
		return false
	}

	return bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(apiKey)) == nil
}

// bcryptInput prepares a key for bcrypt. Hash and compare must agree on this
// preparation or no key would ever validate.
func bcryptInput(apiKey string) []byte {
	if len(apiKey) > bcryptLimit {
		sum := sha256.Sum256([]byte(apiKey))

		return sum[:]
	}

	return []byte(apiKey)
}
