package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"
)

// correlationHeader carries the request correlation ID on both requests and
// responses.
const correlationHeader = "X-Correlation-ID"

// correlationIDBytes of randomness encode to a 16-character hex ID.
const correlationIDBytes = 8

type correlationCtxKey struct{}

// CorrelationID tags every request with a correlation ID. A caller-supplied
// X-Correlation-ID header wins; otherwise a fresh ID is generated. The ID is
// echoed on the response and stored in the request context for handlers and
// downstream middleware.
func CorrelationID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(correlationHeader)
			if id == "" {
				id = newCorrelationID()
			}

			w.Header().Set(correlationHeader, id)

			ctx := context.WithValue(r.Context(), correlationCtxKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCorrelationID returns the correlation ID stored by CorrelationID, or
// "unknown" when the middleware did not run for this context.
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationCtxKey{}).(string); ok {
		return id
	}

	return "unknown"
}

func newCorrelationID() string {
	buf := make([]byte, correlationIDBytes)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is close to unheard of; fall back to the clock
		// rather than dropping the ID entirely.
		return fmt.Sprintf("%016x", time.Now().UnixNano())
	}

	return hex.EncodeToString(buf)
}
