// Package storage provides data storage interfaces and domain types for the
// GeoPulse services: the PostgreSQL connection pool, the ingestion client
// store, the reporting read models, and API key storage for the report API.
package storage

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Key format: "geopulse_ak_" + 64 hex characters (256 random bits).
const (
	randomBytesSize = 32
	apiKeyLength    = 76
	prefixLen       = 16 // masked keys keep "geopulse_ak_" plus 4 hex chars
	suffixLen       = 4
)

var (
	// ErrKeyAlreadyExists marks an Add that collided on ID or key string.
	ErrKeyAlreadyExists = errors.New("API key already exists")
	// ErrKeyNotFound marks an operation on a key that is not stored.
	ErrKeyNotFound = errors.New("API key not found")
	// ErrKeyNil marks a nil *APIKey argument.
	ErrKeyNil = errors.New("API key cannot be nil")
	// ErrConsumerIDEmpty marks key generation or listing without a consumer.
	ErrConsumerIDEmpty = errors.New("consumer ID cannot be empty")
	// ErrKeyStringEmpty marks parsing of an empty key string.
	ErrKeyStringEmpty = errors.New("key string cannot be empty")
	// ErrInvalidKeyFormat marks a key without the geopulse_ak_ prefix.
	ErrInvalidKeyFormat = errors.New("invalid API key format")
	// ErrInvalidKeyLength marks a key with the right prefix but wrong length.
	ErrInvalidKeyLength = errors.New("invalid API key length")
)

// APIKey represents an API key with consumer identification and permissions.
// A consumer is one calling system (a dashboard, a partner integration); all
// of its keys share one ConsumerID, which also drives per-consumer rate
// limiting in the report API.
type APIKey struct {
	ID          string     `json:"id"`
	Key         string     `json:"key"`
	ConsumerID  string     `json:"consumerId"`
	Name        string     `json:"name"`
	Permissions []string   `json:"permissions"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	Active      bool       `json:"active"`
}

// APIKeyStore defines the interface for API key storage and retrieval.
// Implemented by InMemoryKeyStore (dev, seeded from the environment) and
// PersistentKeyStore (PostgreSQL, bcrypt-hashed at rest).
type APIKeyStore interface {
	// FindByKey resolves a plaintext key to its record, refusing inactive
	// and expired keys.
	FindByKey(ctx context.Context, key string) (*APIKey, bool)
	// Add registers a key.
	Add(ctx context.Context, apiKey *APIKey) error
	// Update overwrites a key's mutable fields by ID.
	Update(ctx context.Context, apiKey *APIKey) error
	// Delete removes a key by ID.
	Delete(ctx context.Context, keyID string) error
	// ListByConsumer returns every key registered to one consumer.
	ListByConsumer(ctx context.Context, consumerID string) ([]*APIKey, error)
}

// ValidateKey reports whether providedKey matches this key and the key is
// currently usable: active, not expired. The comparison is constant-time.
func (ak *APIKey) ValidateKey(providedKey string) bool {
	if providedKey == "" || ak.Key == "" {
		return false
	}

	if !ak.Active {
		return false
	}

	if ak.ExpiresAt != nil && time.Now().After(*ak.ExpiresAt) {
		return false
	}

	return SecureCompare(ak.Key, providedKey)
}

// HasPermission reports whether the key grants the named permission.
func (ak *APIKey) HasPermission(permission string) bool {
	return slices.Contains(ak.Permissions, permission)
}

// SecureCompare is a constant-time string equality check. Length mismatches
// still run a dummy comparison so the timing profile stays flat.
func SecureCompare(a, b string) bool {
	if len(a) != len(b) {
		subtle.ConstantTimeCompare([]byte(a), make([]byte, len(a)))

		return false
	}

	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// MaskKey renders a key safe for logs. Well-formed 76-character keys keep
// their prefix and last four characters so operators can tell keys apart;
// anything else (dev keys, hashes) is starred out entirely.
func MaskKey(key string) string {
	if len(key) != apiKeyLength {
		return strings.Repeat("*", len(key))
	}

	return key[:prefixLen] + strings.Repeat("*", apiKeyLength-prefixLen-suffixLen) + key[apiKeyLength-suffixLen:]
}

// GenerateAPIKey mints a fresh key for a consumer: the geopulse_ak_ prefix
// plus 256 bits of randomness, hex-encoded. The consumer ID is validated but
// not embedded; keys stay opaque.
func GenerateAPIKey(consumerID string) (string, error) {
	if consumerID == "" {
		return "", ErrConsumerIDEmpty
	}

	randomBytes := make([]byte, randomBytesSize)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	return "geopulse_ak_" + hex.EncodeToString(randomBytes), nil // pragma: allowlist secret
}

// ParseAPIKey normalizes a key taken from configuration or a header: an
// optional "Bearer " prefix is stripped, then the remainder must be a
// well-formed GeoPulse key.
func ParseAPIKey(keyString string) (string, error) {
	if keyString == "" {
		return "", ErrKeyStringEmpty
	}

	keyString = strings.TrimPrefix(keyString, "Bearer ")

	if !strings.HasPrefix(keyString, "geopulse_ak_") {
		return "", ErrInvalidKeyFormat
	}

	if len(keyString) != apiKeyLength {
		return "", ErrInvalidKeyLength
	}

	return keyString, nil
}
