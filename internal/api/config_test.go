package api

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/geopulse-io/geopulse/internal/reporting"
)

// clearServerEnv pins every server config variable to empty so ambient
// developer environments cannot leak into assertions.
func clearServerEnv(t *testing.T) {
	t.Helper()

	vars := []string{
		"GEOPULSE_SERVER_PORT", "GEOPULSE_SERVER_HOST",
		"GEOPULSE_SERVER_READ_TIMEOUT", "GEOPULSE_SERVER_WRITE_TIMEOUT",
		"GEOPULSE_SERVER_IDLE_TIMEOUT", "GEOPULSE_SERVER_SHUTDOWN_TIMEOUT",
		"GEOPULSE_LOG_LEVEL", "GEOPULSE_MAX_REQUEST_SIZE",
		"GEOPULSE_REPORT_CACHE_TTL",
		"GEOPULSE_CORS_ALLOWED_ORIGINS", "GEOPULSE_CORS_ALLOWED_METHODS",
		"GEOPULSE_CORS_ALLOWED_HEADERS", "GEOPULSE_CORS_MAX_AGE",
	}
	for _, v := range vars {
		t.Setenv(v, "")
	}
}

func TestLoadServerConfig_Defaults(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	clearServerEnv(t)

	cfg := LoadServerConfig()

	if cfg.Port != defaultPort {
		t.Errorf("expected port %d, got %d", defaultPort, cfg.Port)
	}

	if cfg.Host != defaultHost {
		t.Errorf("expected host %q, got %q", defaultHost, cfg.Host)
	}

	if cfg.ReadTimeout != defaultReadTimeout {
		t.Errorf("expected read timeout %v, got %v", defaultReadTimeout, cfg.ReadTimeout)
	}

	if cfg.WriteTimeout != defaultWriteTimeout {
		t.Errorf("expected write timeout %v, got %v", defaultWriteTimeout, cfg.WriteTimeout)
	}

	if cfg.IdleTimeout != defaultIdleTimeout {
		t.Errorf("expected idle timeout %v, got %v", defaultIdleTimeout, cfg.IdleTimeout)
	}

	if cfg.ShutdownTimeout != defaultShutdownTimeout {
		t.Errorf("expected shutdown timeout %v, got %v", defaultShutdownTimeout, cfg.ShutdownTimeout)
	}

	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("expected log level info, got %v", cfg.LogLevel)
	}

	if cfg.MaxRequestSize != defaultMaxRequestSize {
		t.Errorf("expected max request size %d, got %d", defaultMaxRequestSize, cfg.MaxRequestSize)
	}

	if cfg.SnapshotTTL != reporting.DefaultSnapshotTTL {
		t.Errorf("expected snapshot TTL %v, got %v", reporting.DefaultSnapshotTTL, cfg.SnapshotTTL)
	}

	// Report API is read-only; write methods stay out of the CORS defaults.
	if len(cfg.CORSAllowedMethods) != 2 || cfg.CORSAllowedMethods[0] != "GET" || cfg.CORSAllowedMethods[1] != "OPTIONS" {
		t.Errorf("expected CORS methods [GET OPTIONS], got %v", cfg.CORSAllowedMethods)
	}

	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Errorf("expected CORS origins [*], got %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadServerConfig_EnvOverrides(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	clearServerEnv(t)
	t.Setenv("GEOPULSE_SERVER_PORT", "9090")
	t.Setenv("GEOPULSE_SERVER_HOST", "127.0.0.1")
	t.Setenv("GEOPULSE_SERVER_READ_TIMEOUT", "30s")
	t.Setenv("GEOPULSE_REPORT_CACHE_TTL", "5s")
	t.Setenv("GEOPULSE_LOG_LEVEL", "debug")
	t.Setenv("GEOPULSE_CORS_ALLOWED_ORIGINS", "https://dashboard.example.com,https://admin.example.com")

	cfg := LoadServerConfig()

	if cfg.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Port)
	}

	if cfg.Host != "127.0.0.1" {
		t.Errorf("expected host 127.0.0.1, got %q", cfg.Host)
	}

	if cfg.ReadTimeout != 30*time.Second {
		t.Errorf("expected read timeout 30s, got %v", cfg.ReadTimeout)
	}

	if cfg.SnapshotTTL != 5*time.Second {
		t.Errorf("expected snapshot TTL 5s, got %v", cfg.SnapshotTTL)
	}

	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("expected log level debug, got %v", cfg.LogLevel)
	}

	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Errorf("expected 2 CORS origins, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestServerConfig_Address(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cfg := &ServerConfig{Host: "0.0.0.0", Port: 8080}

	if addr := cfg.Address(); addr != "0.0.0.0:8080" {
		t.Errorf("expected address 0.0.0.0:8080, got %q", addr)
	}
}

func TestServerConfig_Validate(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	valid := func() *ServerConfig {
		return &ServerConfig{
			Port:            8080,
			Host:            "localhost",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxRequestSize:  defaultMaxRequestSize,
			SnapshotTTL:     reporting.DefaultSnapshotTTL,
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config should pass validation, got %v", err)
	}

	tests := []struct {
		name     string
		mutate   func(*ServerConfig)
		expected error
	}{
		{
			name:     "zero port",
			mutate:   func(c *ServerConfig) { c.Port = 0 },
			expected: ErrInvalidPort,
		},
		{
			name:     "port above range",
			mutate:   func(c *ServerConfig) { c.Port = 70000 },
			expected: ErrInvalidPort,
		},
		{
			name:     "empty host",
			mutate:   func(c *ServerConfig) { c.Host = "" },
			expected: ErrEmptyHost,
		},
		{
			name:     "zero read timeout",
			mutate:   func(c *ServerConfig) { c.ReadTimeout = 0 },
			expected: ErrInvalidReadTimeout,
		},
		{
			name:     "negative write timeout",
			mutate:   func(c *ServerConfig) { c.WriteTimeout = -1 * time.Second },
			expected: ErrInvalidWriteTimeout,
		},
		{
			name:     "zero idle timeout",
			mutate:   func(c *ServerConfig) { c.IdleTimeout = 0 },
			expected: ErrInvalidIdleTimeout,
		},
		{
			name:     "zero shutdown timeout",
			mutate:   func(c *ServerConfig) { c.ShutdownTimeout = 0 },
			expected: ErrInvalidShutdownTimeout,
		},
		{
			name:     "zero max request size",
			mutate:   func(c *ServerConfig) { c.MaxRequestSize = 0 },
			expected: ErrInvalidMaxRequestSize,
		},
		{
			name:     "negative snapshot TTL",
			mutate:   func(c *ServerConfig) { c.SnapshotTTL = -1 * time.Second },
			expected: ErrInvalidSnapshotTTL,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}

			if !errors.Is(err, tc.expected) {
				t.Errorf("expected %v, got %v", tc.expected, err)
			}
		})
	}

	t.Run("zero snapshot TTL is allowed", func(t *testing.T) {
		cfg := valid()
		cfg.SnapshotTTL = 0 // disables caching, not an error

		if err := cfg.Validate(); err != nil {
			t.Errorf("zero snapshot TTL should validate, got %v", err)
		}
	})
}

func TestServerConfig_ToCORSConfig(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cfg := &ServerConfig{
		CORSAllowedOrigins: []string{"https://dashboard.example.com"},
		CORSAllowedMethods: []string{"GET", "OPTIONS"},
		CORSAllowedHeaders: []string{"Content-Type", "X-Api-Key"},
		CORSMaxAge:         3600,
	}

	cors := cfg.ToCORSConfig()

	if len(cors.GetAllowedOrigins()) != 1 || cors.GetAllowedOrigins()[0] != "https://dashboard.example.com" {
		t.Errorf("unexpected origins: %v", cors.GetAllowedOrigins())
	}

	if len(cors.GetAllowedMethods()) != 2 {
		t.Errorf("unexpected methods: %v", cors.GetAllowedMethods())
	}

	if len(cors.GetAllowedHeaders()) != 2 {
		t.Errorf("unexpected headers: %v", cors.GetAllowedHeaders())
	}

	if cors.GetMaxAge() != 3600 {
		t.Errorf("expected max age 3600, got %d", cors.GetMaxAge())
	}
}
