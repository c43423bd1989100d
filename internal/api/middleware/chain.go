// Package middleware assembles the GeoPulse API's HTTP middleware layers:
// correlation IDs, panic recovery, API key authentication, per-consumer rate
// limiting, structured request logging, and CORS. Handlers are wrapped with
// Apply, which takes its options outermost-first.
package middleware

import (
	"log/slog"
	"net/http"

	"github.com/geopulse-io/geopulse/internal/storage"
)

// Option wraps a handler in one middleware layer.
type Option func(http.Handler) http.Handler

// Apply wraps handler so that requests traverse the options in the order
// given: the first option becomes the outermost layer.
func Apply(handler http.Handler, options ...Option) http.Handler {
	for i := len(options) - 1; i >= 0; i-- {
		handler = options[i](handler)
	}

	return handler
}

// noop stands in for layers that are not configured.
func noop(next http.Handler) http.Handler { return next }

// WithCorrelationID tags requests with correlation IDs.
func WithCorrelationID() Option {
	return CorrelationID()
}

// WithRecovery converts panics into 500 responses.
func WithRecovery(logger *slog.Logger) Option {
	return Recovery(logger)
}

// WithConsumerAuth enforces API key authentication. A nil store disables the
// layer; unit tests run the server without a key store.
func WithConsumerAuth(store storage.APIKeyStore, logger *slog.Logger) Option {
	if store == nil {
		return noop
	}

	return AuthenticateConsumer(store, logger)
}

// WithRateLimit enforces request rate limits. A nil limiter disables the
// layer.
func WithRateLimit(limiter RateLimiter, logger *slog.Logger) Option {
	if limiter == nil {
		return noop
	}

	return RateLimit(limiter, logger)
}

// WithRequestLogger logs request start and completion.
func WithRequestLogger(logger *slog.Logger) Option {
	return RequestLogger(logger)
}

// WithCORS sets cross-origin response headers and answers preflight requests.
func WithCORS(config CORSConfigProvider) Option {
	return CORS(config)
}
