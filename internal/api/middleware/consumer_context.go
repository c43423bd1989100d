package middleware

import (
	"context"
	"time"
)

type consumerContextKey struct{}

// ConsumerContext identifies the authenticated caller for the rest of the
// request: rate limiting keys off ConsumerID, handlers log it, and KeyID
// feeds the audit trail. AuthenticateConsumer stores one on success.
type ConsumerContext struct {
	ConsumerID  string
	Name        string
	Permissions []string
	KeyID       string
	AuthTime    time.Time
}

// GetConsumerContext returns the authenticated consumer, or false when the
// request never passed authentication (public endpoints, unit tests).
func GetConsumerContext(ctx context.Context) (ConsumerContext, bool) {
	consumerCtx, ok := ctx.Value(consumerContextKey{}).(ConsumerContext)

	return consumerCtx, ok
}

// SetConsumerContext returns a context carrying the consumer identity.
func SetConsumerContext(ctx context.Context, consumerCtx ConsumerContext) context.Context {
	return context.WithValue(ctx, consumerContextKey{}, consumerCtx)
}
