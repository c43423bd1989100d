package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/geopulse-io/geopulse/internal/config"
)

// Audit log operation names.
const (
	keyCreated = "created"
	keyUpdated = "updated"
	keyDeleted = "deleted"
)

// keyColumns is the column list scanKeyRow expects, in order. updated_at is
// schema-maintained and not carried on APIKey, so it stays out.
const keyColumns = `id, key_hash, consumer_id, name, permissions, created_at, expires_at, active`

// PersistentKeyStore is the PostgreSQL-backed APIKeyStore. Keys are stored as
// bcrypt hashes only, and every mutation leaves a row in api_key_audit_log.
type PersistentKeyStore struct {
	conn   *Connection
	logger *slog.Logger
}

// Compile-time interface assertions for both key store implementations.
var (
	_ APIKeyStore = (*PersistentKeyStore)(nil)
	_ APIKeyStore = (*InMemoryKeyStore)(nil)
)

// NewPersistentKeyStore wraps an open connection pool in a key store.
func NewPersistentKeyStore(conn *Connection) (*PersistentKeyStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &PersistentKeyStore{
		conn: conn,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("GEOPULSE_LOG_LEVEL", slog.LevelInfo),
		})),
	}, nil
}

// Close releases the connection pool. Safe to call more than once.
func (s *PersistentKeyStore) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}

	return nil
}

// FindByKey resolves a plaintext key to its stored record. Bcrypt salts make
// the hash unmatchable in SQL, so every active key is fetched and compared
// in-process; fine at the key counts a reporting API sees (hundreds, not
// millions). The returned record carries a masked key, never the hash.
func (s *PersistentKeyStore) FindByKey(ctx context.Context, key string) (*APIKey, bool) {
	if key == "" {
		return nil, false
	}

	rows, err := s.conn.QueryContext(ctx, `SELECT `+keyColumns+` FROM api_keys WHERE active = TRUE`)
	if err != nil {
		return nil, false
	}

	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		apiKey, err := scanKeyRow(rows)
		if err != nil {
			continue
		}

		if CompareAPIKeyHash(apiKey.Key, key) {
			apiKey.Key = MaskKey(apiKey.Key)

			return apiKey, true
		}
	}

	if err := rows.Err(); err != nil {
		s.logger.Error("failed to find key",
			slog.String("key", MaskKey(key)),
			slog.String("error", err.Error()),
		)
	}

	return nil, false
}

// Add hashes the key, inserts it, and records the creation in the audit log.
// Duplicates are detected by bcrypt comparison against existing active keys,
// since equal plaintexts never share a hash.
func (s *PersistentKeyStore) Add(ctx context.Context, apiKey *APIKey) error {
	if apiKey == nil { // pragma: allowlist secret
		return ErrKeyNil
	}

	if _, found := s.FindByKey(ctx, apiKey.Key); found {
		return ErrKeyAlreadyExists
	}

	keyHash, err := HashAPIKey(apiKey.Key)
	if err != nil {
		return fmt.Errorf("failed to hash API key: %w", err)
	}

	permissionsJSON, err := permissionsToJSON(apiKey.Permissions)
	if err != nil {
		return fmt.Errorf("failed to serialize permissions: %w", err)
	}

	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO api_keys (id, key_hash, consumer_id, name, permissions, created_at, expires_at, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		apiKey.ID,
		keyHash,
		apiKey.ConsumerID,
		apiKey.Name,
		permissionsJSON,
		apiKey.CreatedAt,
		apiKey.ExpiresAt,
		apiKey.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to insert API key: %w", err)
	}

	s.audit(ctx, keyCreated, apiKey)

	return nil
}

// Update rewrites the mutable fields of a key row: name, permissions, active,
// expiry. The hash is immutable; rotating a key means issuing a new one.
func (s *PersistentKeyStore) Update(ctx context.Context, apiKey *APIKey) error {
	if apiKey == nil { // pragma: allowlist secret
		return ErrKeyNil
	}

	if apiKey.ID == "" {
		return ErrKeyNotFound
	}

	permissionsJSON, err := permissionsToJSON(apiKey.Permissions)
	if err != nil {
		return fmt.Errorf("failed to serialize permissions: %w", err)
	}

	result, err := s.conn.ExecContext(ctx,
		`UPDATE api_keys SET name = $1, permissions = $2, active = $3, expires_at = $4 WHERE id = $5`,
		apiKey.Name,
		permissionsJSON,
		apiKey.Active,
		apiKey.ExpiresAt,
		apiKey.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update API key: %w", err)
	}

	if err := mustAffectRow(result); err != nil {
		return err
	}

	s.audit(ctx, keyUpdated, apiKey)

	return nil
}

// Delete soft-deletes a key by flipping active to FALSE. Rows stay behind so
// the audit trail always has something to point at.
func (s *PersistentKeyStore) Delete(ctx context.Context, keyID string) error {
	if keyID == "" {
		return ErrKeyNotFound
	}

	result, err := s.conn.ExecContext(ctx, `UPDATE api_keys SET active = FALSE WHERE id = $1`, keyID)
	if err != nil {
		return fmt.Errorf("failed to delete API key: %w", err)
	}

	if err := mustAffectRow(result); err != nil {
		return err
	}

	s.audit(ctx, keyDeleted, &APIKey{ID: keyID})

	return nil
}

// ListByConsumer returns the active keys for one consumer, newest first, with
// hashes masked. A consumer with no keys gets an empty slice, not nil.
func (s *PersistentKeyStore) ListByConsumer(ctx context.Context, consumerID string) ([]*APIKey, error) {
	if consumerID == "" {
		return nil, ErrConsumerIDEmpty
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+keyColumns+` FROM api_keys WHERE consumer_id = $1 AND active = TRUE ORDER BY created_at DESC`,
		consumerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query API keys: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	keys := []*APIKey{}

	for rows.Next() {
		apiKey, err := scanKeyRow(rows)
		if err != nil {
			continue
		}

		apiKey.Key = MaskKey(apiKey.Key)
		keys = append(keys, apiKey)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return keys, nil
}

// scanKeyRow reads one api_keys row into an APIKey. The Key field holds the
// raw bcrypt hash; callers mask or compare it before the record escapes.
func scanKeyRow(rows *sql.Rows) (*APIKey, error) {
	var (
		apiKey          APIKey
		permissionsJSON []byte
	)

	if err := rows.Scan(
		&apiKey.ID,
		&apiKey.Key,
		&apiKey.ConsumerID,
		&apiKey.Name,
		&permissionsJSON,
		&apiKey.CreatedAt,
		&apiKey.ExpiresAt,
		&apiKey.Active,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(permissionsJSON, &apiKey.Permissions); err != nil {
		return nil, err
	}

	return &apiKey, nil
}

// mustAffectRow translates a zero-row UPDATE into ErrKeyNotFound.
func mustAffectRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return ErrKeyNotFound
	}

	return nil
}

// permissionsToJSON renders a permissions slice for the JSONB column. nil
// becomes [] so the column never stores SQL NULL.
func permissionsToJSON(permissions []string) ([]byte, error) {
	if permissions == nil {
		permissions = []string{}
	}

	return json.Marshal(permissions)
}

// audit appends the operation to api_key_audit_log with the key masked.
// Best-effort: the mutation has already committed, so failures are logged
// rather than unwound.
func (s *PersistentKeyStore) audit(ctx context.Context, operation string, apiKey *APIKey) {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO api_key_audit_log (api_key_id, operation, masked_key, consumer_id)
		 VALUES ($1, $2, $3, $4)`,
		apiKey.ID,
		operation,
		MaskKey(apiKey.Key),
		apiKey.ConsumerID,
	)
	if err != nil {
		s.logger.Error("failed to write an audit log entry for API key operation",
			slog.String("operation", operation),
			slog.String("key_id", apiKey.ID),
			slog.String("error", err.Error()),
		)
	}
}
