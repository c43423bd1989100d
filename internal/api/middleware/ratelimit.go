package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Defaults applied when Config leaves the corresponding field zero.
const (
	defaultGlobalRPS   = 100
	defaultConsumerRPS = 50
	defaultUnAuthRPS   = 10

	// defaultBurstFactor sizes burst capacity relative to the sustained
	// rate when no explicit burst is configured.
	defaultBurstFactor = 2

	defaultCleanupInterval = 5 * time.Minute
	defaultLimiterIdle     = time.Hour
	defaultMaxConsumers    = 100

	// consumerWarnFraction of MaxConsumers triggers a warning about
	// consumer ID proliferation.
	consumerWarnFraction = 0.8
)

// RateLimiter decides whether a request may proceed. consumerID is empty for
// unauthenticated requests. The in-memory implementation below suits a
// single node; a multi-node deployment would back this interface with a
// shared store such as Redis.
type RateLimiter interface {
	Allow(consumerID string) bool
}

// InMemoryRateLimiter enforces three tiers of token buckets: a global bucket
// shared by all traffic, one bucket per authenticated consumer, and one for
// anonymous requests. Consumer buckets are created lazily and reaped by a
// background goroutine once idle longer than the configured timeout.
type InMemoryRateLimiter struct {
	global      *rate.Limiter
	unauth      *rate.Limiter
	perConsumer map[string]*consumerLimiter
	mu          sync.RWMutex

	consumerRPS   int
	consumerBurst int
	idleTimeout   time.Duration
	maxConsumers  int

	ticker    *time.Ticker
	done      chan struct{}
	closeOnce sync.Once
}

// consumerLimiter is one consumer's bucket plus the access stamp the reaper
// checks.
type consumerLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
	mu         sync.Mutex
}

// NewInMemoryRateLimiter builds a limiter from config, filling in defaults
// for unset cleanup fields, and starts the background reaper. Call Close to
// stop it.
func NewInMemoryRateLimiter(config *Config) *InMemoryRateLimiter {
	cleanupInterval := config.CleanupInterval
	if cleanupInterval == 0 {
		cleanupInterval = defaultCleanupInterval
	}

	idleTimeout := config.IdleTimeout
	if idleTimeout == 0 {
		idleTimeout = defaultLimiterIdle
	}

	maxConsumers := config.MaxConsumers
	if maxConsumers == 0 {
		maxConsumers = defaultMaxConsumers
	}

	rl := &InMemoryRateLimiter{
		global:        rate.NewLimiter(rate.Limit(config.GlobalRPS), burstFor(config.GlobalRPS, config.GlobalBurst)),
		unauth:        rate.NewLimiter(rate.Limit(config.UnAuthRPS), burstFor(config.UnAuthRPS, config.UnAuthBurst)),
		perConsumer:   make(map[string]*consumerLimiter),
		consumerRPS:   config.ConsumerRPS,
		consumerBurst: burstFor(config.ConsumerRPS, config.ConsumerBurst),
		idleTimeout:   idleTimeout,
		maxConsumers:  maxConsumers,
		ticker:        time.NewTicker(cleanupInterval),
		done:          make(chan struct{}),
	}

	go rl.reapLoop()

	return rl
}

// burstFor returns the configured burst, or rps scaled by the default factor
// when unset.
func burstFor(rps, burst int) int {
	if burst > 0 {
		return burst
	}

	return rps * defaultBurstFactor
}

// Allow drains the global bucket first, then the bucket matching the caller:
// per-consumer when consumerID is set, the shared anonymous bucket otherwise.
func (rl *InMemoryRateLimiter) Allow(consumerID string) bool {
	if !rl.global.Allow() {
		return false
	}

	if consumerID == "" {
		return rl.unauth.Allow()
	}

	cl := rl.limiterFor(consumerID)

	cl.mu.Lock()
	cl.lastAccess = time.Now()
	cl.mu.Unlock()

	return cl.limiter.Allow()
}

// limiterFor returns the consumer's bucket, creating it on first use.
func (rl *InMemoryRateLimiter) limiterFor(consumerID string) *consumerLimiter {
	rl.mu.RLock()
	cl, ok := rl.perConsumer[consumerID]
	rl.mu.RUnlock()

	if ok {
		return cl
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Recheck under the write lock: another goroutine may have created it.
	if cl, ok = rl.perConsumer[consumerID]; ok {
		return cl
	}

	cl = &consumerLimiter{
		limiter:    rate.NewLimiter(rate.Limit(rl.consumerRPS), rl.consumerBurst),
		lastAccess: time.Now(),
	}
	rl.perConsumer[consumerID] = cl

	if len(rl.perConsumer) >= int(float64(rl.maxConsumers)*consumerWarnFraction) {
		slog.Warn("rate limiter nearing max tracked consumers",
			slog.Int("consumers", len(rl.perConsumer)),
			slog.Int("max_consumers", rl.maxConsumers),
		)
	}

	return cl
}

// Close stops the reaper goroutine. Close is deliberately not part of
// RateLimiter: implementations without background state need not carry it,
// and callers that need cleanup type assert for it.
func (rl *InMemoryRateLimiter) Close() {
	rl.closeOnce.Do(func() {
		rl.ticker.Stop()
		close(rl.done)
	})
}

func (rl *InMemoryRateLimiter) reapLoop() {
	for {
		select {
		case <-rl.ticker.C:
			rl.cleanup()
		case <-rl.done:
			return
		}
	}
}

// cleanup drops consumer buckets idle past the timeout.
func (rl *InMemoryRateLimiter) cleanup() {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for consumerID, cl := range rl.perConsumer {
		cl.mu.Lock()
		idle := now.Sub(cl.lastAccess)
		cl.mu.Unlock()

		if idle > rl.idleTimeout {
			delete(rl.perConsumer, consumerID)
		}
	}
}

// RateLimit rejects requests the limiter denies with a 429 problem response.
// It must sit after AuthenticateConsumer in the chain so authenticated
// requests are limited per consumer rather than as anonymous traffic.
func RateLimit(limiter RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			consumerID := ""
			if consumerCtx, ok := GetConsumerContext(r.Context()); ok {
				consumerID = consumerCtx.ConsumerID
			}

			if !limiter.Allow(consumerID) {
				respondProblem(w, r, logger, http.StatusTooManyRequests,
					"Rate limit exceeded. Please retry after some time.")

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
