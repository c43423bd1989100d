// Package api provides the HTTP API server for the GeoPulse reporting service.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/geopulse-io/geopulse/internal/config"
	"github.com/geopulse-io/geopulse/internal/reporting"
)

const (
	defaultHost = "0.0.0.0"
	defaultPort = 8080
	maxPort     = 65535

	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 15 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 30 * time.Second

	defaultLogLevel       = slog.LevelInfo
	defaultMaxRequestSize = int64(1 << 20) // 1 MiB
	defaultCORSMaxAge     = 86400          // 24h preflight cache
)

var (
	// ErrInvalidPort flags a port outside 1..65535.
	ErrInvalidPort = errors.New("invalid port")

	// ErrEmptyHost flags a blank bind address.
	ErrEmptyHost = errors.New("host cannot be empty")

	// The timeout sentinels flag zero or negative durations.
	ErrInvalidReadTimeout     = errors.New("read timeout must be positive")
	ErrInvalidWriteTimeout    = errors.New("write timeout must be positive")
	ErrInvalidIdleTimeout     = errors.New("idle timeout must be positive")
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")

	// ErrInvalidMaxRequestSize flags a zero or negative request body cap.
	ErrInvalidMaxRequestSize = errors.New("max request size must be positive")

	// ErrInvalidSnapshotTTL flags a negative summary cache TTL. Zero is
	// valid and disables the cache.
	ErrInvalidSnapshotTTL = errors.New("snapshot TTL cannot be negative")
)

type (
	// ServerConfig carries everything the report server reads at startup.
	// Pure configuration, no runtime dependencies.
	ServerConfig struct {
		Port               int
		Host               string
		ReadTimeout        time.Duration
		WriteTimeout       time.Duration
		IdleTimeout        time.Duration
		ShutdownTimeout    time.Duration
		LogLevel           slog.Level
		MaxRequestSize     int64
		SnapshotTTL        time.Duration
		CORSAllowedOrigins []string
		CORSAllowedMethods []string
		CORSAllowedHeaders []string
		CORSMaxAge         int
	}

	// CORSConfig is the browser-policy slice of the server configuration,
	// shaped for the middleware provider interface.
	CORSConfig struct {
		AllowedOrigins []string
		AllowedMethods []string
		AllowedHeaders []string
		MaxAge         int
	}
)

// LoadServerConfig reads server settings from the environment, falling back
// to defaults suited to local development.
func LoadServerConfig() *ServerConfig {
	origins := config.GetEnvStr("GEOPULSE_CORS_ALLOWED_ORIGINS", "*") // development default; restrict in production
	methods := config.GetEnvStr("GEOPULSE_CORS_ALLOWED_METHODS", "GET,OPTIONS")
	headers := config.GetEnvStr("GEOPULSE_CORS_ALLOWED_HEADERS",
		"Content-Type,Authorization,X-Correlation-ID,X-Api-Key")

	return &ServerConfig{
		Port:               config.GetEnvInt("GEOPULSE_SERVER_PORT", defaultPort),
		Host:               config.GetEnvStr("GEOPULSE_SERVER_HOST", defaultHost),
		ReadTimeout:        config.GetEnvDuration("GEOPULSE_SERVER_READ_TIMEOUT", defaultReadTimeout),
		WriteTimeout:       config.GetEnvDuration("GEOPULSE_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
		IdleTimeout:        config.GetEnvDuration("GEOPULSE_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		ShutdownTimeout:    config.GetEnvDuration("GEOPULSE_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		LogLevel:           config.GetEnvLogLevel("GEOPULSE_LOG_LEVEL", defaultLogLevel),
		MaxRequestSize:     config.GetEnvInt64("GEOPULSE_MAX_REQUEST_SIZE", defaultMaxRequestSize),
		SnapshotTTL:        config.GetEnvDuration("GEOPULSE_REPORT_CACHE_TTL", reporting.DefaultSnapshotTTL),
		CORSAllowedOrigins: config.ParseCommaSeparatedList(origins),
		CORSAllowedMethods: config.ParseCommaSeparatedList(methods),
		CORSAllowedHeaders: config.ParseCommaSeparatedList(headers),
		CORSMaxAge:         config.GetEnvInt("GEOPULSE_CORS_MAX_AGE", defaultCORSMaxAge),
	}
}

// Address returns the host:port pair the server binds to.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ToCORSConfig carves the CORS fields out of the server configuration for
// the middleware layer.
func (c *ServerConfig) ToCORSConfig() *CORSConfig {
	return &CORSConfig{
		AllowedOrigins: c.CORSAllowedOrigins,
		AllowedMethods: c.CORSAllowedMethods,
		AllowedHeaders: c.CORSAllowedHeaders,
		MaxAge:         c.CORSMaxAge,
	}
}

// Plain getters satisfying the middleware CORS provider interface.
func (c *CORSConfig) GetAllowedOrigins() []string { return c.AllowedOrigins }
func (c *CORSConfig) GetAllowedMethods() []string { return c.AllowedMethods }
func (c *CORSConfig) GetAllowedHeaders() []string { return c.AllowedHeaders }
func (c *CORSConfig) GetMaxAge() int              { return c.MaxAge }

// Validate reports whether the configuration can start a server.
func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > maxPort {
		return fmt.Errorf("%w: %d, must be between 1 and %d", ErrInvalidPort, c.Port, maxPort)
	}

	if c.Host == "" {
		return ErrEmptyHost
	}

	timeouts := []struct {
		err error
		d   time.Duration
	}{
		{ErrInvalidReadTimeout, c.ReadTimeout},
		{ErrInvalidWriteTimeout, c.WriteTimeout},
		{ErrInvalidIdleTimeout, c.IdleTimeout},
		{ErrInvalidShutdownTimeout, c.ShutdownTimeout},
	}
	for _, t := range timeouts {
		if t.d <= 0 {
			return fmt.Errorf("%w: got %v", t.err, t.d)
		}
	}

	if c.MaxRequestSize <= 0 {
		return fmt.Errorf("%w: got %d bytes", ErrInvalidMaxRequestSize, c.MaxRequestSize)
	}

	if c.SnapshotTTL < 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidSnapshotTTL, c.SnapshotTTL)
	}

	return nil
}
