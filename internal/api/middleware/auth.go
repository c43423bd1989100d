package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/geopulse-io/geopulse/internal/storage"
)

// publicEndpoints lists paths that skip authentication. Only liveness and
// readiness probes belong here; reporting endpoints never do.
var publicEndpoints = map[string]bool{} //nolint: gochecknoglobals

// RegisterPublicEndpoint marks a path as reachable without an API key.
// Called during route setup for the health probe endpoints, nothing else.
func RegisterPublicEndpoint(endpoint string) {
	publicEndpoints[endpoint] = true
}

// Authentication failures unwrap to one of these sentinels. Invalid format
// and unknown key both map to ErrInvalidAPIKey so responses do not reveal
// which keys exist.
var (
	ErrMissingAPIKey  = errors.New("missing API key")
	ErrInvalidAPIKey  = errors.New("invalid API key")
	ErrAPIKeyExpired  = errors.New("API key expired")
	ErrAPIKeyInactive = errors.New("API key inactive")
)

// AuthError pairs a sentinel with a client-facing message.
type AuthError struct {
	Type    error
	Message string
}

func (e *AuthError) Error() string {
	msg := "authentication failed: " + e.Type.Error()
	if e.Message != "" {
		msg += ": " + e.Message
	}

	return msg
}

// Unwrap exposes the sentinel to errors.Is.
func (e *AuthError) Unwrap() error {
	return e.Type
}

// extractAPIKey pulls the API key from the request. X-Api-Key wins; a
// case-sensitive "Bearer " Authorization header is the fallback. Keys with
// embedded newlines are rejected outright to block header injection.
func extractAPIKey(r *http.Request) (string, bool) {
	key := r.Header.Get("X-Api-Key")
	if key == "" {
		var ok bool
		if key, ok = strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); !ok {
			return "", false
		}
	}

	if strings.ContainsAny(key, "\r\n") {
		return "", false
	}

	key = strings.TrimSpace(key)

	return key, key != ""
}

// equalizeAuthTiming burns one bcrypt comparison so requests that fail
// before the store lookup take about as long as ones that reach it.
func equalizeAuthTiming() {
	_ = bcrypt.CompareHashAndPassword([]byte("dummy"), []byte("dummy"))
}

// failAuth logs one authentication failure. The failure_type field gives log
// aggregation a stable cause label independent of the message text.
func failAuth(ctx context.Context, logger *slog.Logger, reason, failureType string, extra ...any) {
	args := append([]any{
		slog.String("failure_type", failureType),
		slog.String("correlation_id", GetCorrelationID(ctx)),
	}, extra...)

	logger.Error("authentication failed: "+reason, args...)
}

// authenticateRequest resolves an API key against the store and checks its
// active flag and expiry. Format errors and unknown keys both come back as
// ErrInvalidAPIKey with the same message; inactive and expired keys get
// their specific sentinels.
func authenticateRequest(
	ctx context.Context,
	store storage.APIKeyStore,
	apiKey string,
	logger *slog.Logger,
) (*storage.APIKey, error) {
	parsedKey, err := storage.ParseAPIKey(apiKey)
	if err != nil {
		equalizeAuthTiming()
		failAuth(ctx, logger, "invalid key format", "format_validation",
			slog.String("error", err.Error()))

		return nil, &AuthError{Type: ErrInvalidAPIKey, Message: "Invalid or missing API key"}
	}

	key, exists := store.FindByKey(ctx, parsedKey)
	if !exists {
		equalizeAuthTiming()
		failAuth(ctx, logger, "key not found", "key_not_found")

		return nil, &AuthError{Type: ErrInvalidAPIKey, Message: "Invalid or missing API key"}
	}

	switch {
	case !key.Active:
		failAuth(ctx, logger, "key inactive", "key_inactive",
			slog.String("key_id", key.ID),
			slog.String("consumer_id", key.ConsumerID))

		return nil, &AuthError{Type: ErrAPIKeyInactive, Message: "API key is inactive"}

	case key.ExpiresAt != nil && time.Now().After(*key.ExpiresAt):
		failAuth(ctx, logger, "key expired", "key_expired",
			slog.String("key_id", key.ID),
			slog.String("consumer_id", key.ConsumerID),
			slog.Time("expired_at", *key.ExpiresAt))

		return nil, &AuthError{Type: ErrAPIKeyExpired, Message: "API key has expired"}
	}

	return key, nil
}

// AuthenticateConsumer validates the request's API key against the store and,
// on success, stores a ConsumerContext in the request context for rate
// limiting and handlers. Failures produce RFC 7807 responses: 403 for
// inactive keys, 401 for everything else.
//
// The store lookup proves authenticity: PersistentKeyStore compares bcrypt
// hashes and returns a masked Key, so no comparison happens here.
func AuthenticateConsumer(store storage.APIKeyStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicEndpoints[r.URL.Path] {
				next.ServeHTTP(w, r)

				return
			}

			start := time.Now()

			key, ok := extractAPIKey(r)
			if !ok {
				writeAuthError(w, r, logger, &AuthError{Type: ErrMissingAPIKey, Message: "Missing API key"})

				return
			}

			authenticated, err := authenticateRequest(r.Context(), store, key, logger)
			if err != nil {
				writeAuthError(w, r, logger, err)

				return
			}

			logger.Info("API key authenticated",
				slog.String("consumer_id", authenticated.ConsumerID),
				slog.String("key_id", authenticated.ID),
				slog.String("key", storage.MaskKey(authenticated.Key)),
				slog.Duration("auth_latency", time.Since(start)),
				slog.String("correlation_id", GetCorrelationID(r.Context())),
				slog.String("endpoint", r.URL.Path),
			)

			ctx := SetConsumerContext(r.Context(), ConsumerContext{
				ConsumerID:  authenticated.ConsumerID,
				KeyID:       authenticated.ID,
				Name:        authenticated.Name,
				Permissions: authenticated.Permissions,
				AuthTime:    time.Now(),
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeAuthError logs the rejection and sends the matching problem response.
func writeAuthError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	logger.Warn("Rejected unauthenticated request",
		slog.String("reason", err.Error()),
		slog.String("endpoint", r.URL.Path),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("user_agent", r.UserAgent()),
		slog.String("correlation_id", GetCorrelationID(r.Context())),
	)

	respondProblem(w, r, logger, statusForAuthError(err), err.Error())
}

// statusForAuthError maps inactive keys to 403; every other authentication
// failure is a plain 401.
func statusForAuthError(err error) int {
	if errors.Is(err, ErrAPIKeyInactive) {
		return http.StatusForbidden
	}

	return http.StatusUnauthorized
}
