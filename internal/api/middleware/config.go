package middleware

import (
	"time"

	"github.com/geopulse-io/geopulse/internal/config"
)

// Config holds the rate limiter settings: sustained requests per second for
// the global, per-consumer, and unauthenticated tiers, optional burst
// overrides (zero means rate times the default burst factor), and the
// reaper's cleanup knobs.
type Config struct {
	GlobalRPS   int // default 100
	ConsumerRPS int // default 50
	UnAuthRPS   int // default 10

	GlobalBurst   int // default 0 (auto: 2 x GlobalRPS)
	ConsumerBurst int // default 0 (auto: 2 x ConsumerRPS)
	UnAuthBurst   int // default 0 (auto: 2 x UnAuthRPS)

	CleanupInterval time.Duration // default 5m
	IdleTimeout     time.Duration // default 1h
	MaxConsumers    int           // default 100
}

// LoadConfig reads rate limiter settings from GEOPULSE_RATE_LIMIT_* variables,
// falling back to the defaults above.
func LoadConfig() *Config {
	return &Config{
		GlobalRPS:   config.GetEnvInt("GEOPULSE_RATE_LIMIT_GLOBAL_RPS", defaultGlobalRPS),
		ConsumerRPS: config.GetEnvInt("GEOPULSE_RATE_LIMIT_CONSUMER_RPS", defaultConsumerRPS),
		UnAuthRPS:   config.GetEnvInt("GEOPULSE_RATE_LIMIT_UNAUTH_RPS", defaultUnAuthRPS),

		GlobalBurst:   config.GetEnvInt("GEOPULSE_RATE_LIMIT_GLOBAL_BURST", 0),
		ConsumerBurst: config.GetEnvInt("GEOPULSE_RATE_LIMIT_CONSUMER_BURST", 0),
		UnAuthBurst:   config.GetEnvInt("GEOPULSE_RATE_LIMIT_UNAUTH_BURST", 0),

		CleanupInterval: config.GetEnvDuration("GEOPULSE_RATE_LIMIT_CLEANUP_INTERVAL", defaultCleanupInterval),
		IdleTimeout:     config.GetEnvDuration("GEOPULSE_RATE_LIMIT_IDLE_TIMEOUT", defaultLimiterIdle),
		MaxConsumers:    config.GetEnvInt("GEOPULSE_RATE_LIMIT_MAX_CONSUMERS", defaultMaxConsumers),
	}
}
