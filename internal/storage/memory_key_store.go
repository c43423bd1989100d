package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/geopulse-io/geopulse/internal/config"
)

// consumerKeyParts is the number of segments in one GEOPULSE_API_KEYS entry.
const consumerKeyParts = 2

// InMemoryKeyStore keeps API keys in process memory, indexed three ways so
// lookup by key string, by ID, and by consumer are all cheap. Intended for
// development and tests, where PostgreSQL-backed key storage is overkill.
type InMemoryKeyStore struct {
	mu         sync.RWMutex
	byKey      map[string]*APIKey
	byID       map[string]*APIKey
	byConsumer map[string][]*APIKey
}

// NewInMemoryKeyStore creates an empty in-memory key store.
func NewInMemoryKeyStore() *InMemoryKeyStore {
	return &InMemoryKeyStore{
		byKey:      make(map[string]*APIKey),
		byID:       make(map[string]*APIKey),
		byConsumer: make(map[string][]*APIKey),
	}
}

// NewInMemoryKeyStoreFromEnv creates an in-memory key store seeded from the
// GEOPULSE_API_KEYS environment variable.
//
// Format: comma-separated "consumer_id:key" pairs, for example:
//
//	GEOPULSE_API_KEYS="dashboard:geopulse_ak_<64 hex>,partner:geopulse_ak_<64 hex>"
//
// Malformed entries are skipped and reported in the returned error while the
// well-formed ones still load, so one typo does not lock every consumer out.
func NewInMemoryKeyStoreFromEnv() (*InMemoryKeyStore, error) {
	store := NewInMemoryKeyStore()

	raw := strings.TrimSpace(config.GetEnvStr("GEOPULSE_API_KEYS", ""))
	if raw == "" {
		return store, nil
	}

	var malformed []string

	for i, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		parts := strings.SplitN(entry, ":", consumerKeyParts)
		if len(parts) != consumerKeyParts {
			malformed = append(malformed, entry)

			continue
		}

		consumerID := strings.TrimSpace(parts[0])

		key, err := ParseAPIKey(strings.TrimSpace(parts[1]))
		if err != nil || consumerID == "" {
			malformed = append(malformed, entry)

			continue
		}

		apiKey := &APIKey{
			ID:          fmt.Sprintf("env-key-%d", i+1),
			Key:         key,
			ConsumerID:  consumerID,
			Name:        fmt.Sprintf("%s (environment)", consumerID),
			Permissions: []string{"reports:read"},
			CreatedAt:   time.Now(),
			Active:      true,
		}

		if err := store.Add(context.Background(), apiKey); err != nil {
			malformed = append(malformed, entry)
		}
	}

	if len(malformed) > 0 {
		return store, fmt.Errorf("%w: %d malformed GEOPULSE_API_KEYS entries", ErrInvalidKeyFormat, len(malformed))
	}

	return store, nil
}

// FindByKey looks up an API key by its key string.
func (s *InMemoryKeyStore) FindByKey(_ context.Context, key string) (*APIKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	apiKey, ok := s.byKey[key]
	if !ok {
		return nil, false
	}

	return cloneKey(apiKey), true
}

// Add stores a new API key, rejecting duplicates by ID or key string.
func (s *InMemoryKeyStore) Add(_ context.Context, apiKey *APIKey) error {
	if apiKey == nil { // pragma: allowlist secret
		return ErrKeyNil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[apiKey.ID]; exists {
		return ErrKeyAlreadyExists
	}

	if _, exists := s.byKey[apiKey.Key]; exists {
		return ErrKeyAlreadyExists
	}

	s.insertLocked(cloneKey(apiKey))

	return nil
}

// Update replaces a stored key, re-indexing it if the key string or consumer
// changed.
func (s *InMemoryKeyStore) Update(_ context.Context, apiKey *APIKey) error {
	if apiKey == nil { // pragma: allowlist secret
		return ErrKeyNil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byID[apiKey.ID]
	if !ok {
		return ErrKeyNotFound
	}

	s.removeLocked(existing)
	s.insertLocked(cloneKey(apiKey))

	return nil
}

// Delete removes an API key from all indexes. Unlike the persistent store
// there is nothing to audit, so removal is physical.
func (s *InMemoryKeyStore) Delete(_ context.Context, keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byID[keyID]
	if !ok {
		return ErrKeyNotFound
	}

	s.removeLocked(existing)

	return nil
}

// ListByConsumer returns the keys registered for a consumer. Unknown consumers
// get an empty slice.
func (s *InMemoryKeyStore) ListByConsumer(_ context.Context, consumerID string) ([]*APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := s.byConsumer[consumerID]

	result := make([]*APIKey, len(keys))
	for i, key := range keys {
		result[i] = cloneKey(key)
	}

	return result, nil
}

// insertLocked indexes a key in all three maps. Caller holds the write lock
// and has already handled duplicates.
func (s *InMemoryKeyStore) insertLocked(apiKey *APIKey) {
	s.byKey[apiKey.Key] = apiKey
	s.byID[apiKey.ID] = apiKey
	s.byConsumer[apiKey.ConsumerID] = append(s.byConsumer[apiKey.ConsumerID], apiKey)
}

// removeLocked drops a key from all three maps, pruning the consumer slice
// when it empties. Caller holds the write lock.
func (s *InMemoryKeyStore) removeLocked(apiKey *APIKey) {
	delete(s.byKey, apiKey.Key)
	delete(s.byID, apiKey.ID)

	keys := s.byConsumer[apiKey.ConsumerID]
	for i, key := range keys {
		if key.ID == apiKey.ID {
			s.byConsumer[apiKey.ConsumerID] = append(keys[:i], keys[i+1:]...)

			break
		}
	}

	if len(s.byConsumer[apiKey.ConsumerID]) == 0 {
		delete(s.byConsumer, apiKey.ConsumerID)
	}
}

// cloneKey copies a key record so callers never share pointers with the
// store's indexes. The copy is shallow; Permissions is treated as immutable
// once stored.
func cloneKey(apiKey *APIKey) *APIKey {
	clone := *apiKey

	return &clone
}
