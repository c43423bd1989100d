package storage

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/geopulse-io/geopulse/internal/config"
)

const (
	defaultHost     = "localhost"
	defaultPort     = 5432
	defaultDatabase = "geopulse"
	defaultUser     = "geopulse_user"
	defaultPassword = "geopulse_password"

	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute

	defaultWaitAttempts = 30
	defaultWaitInterval = 2 * time.Second
)

var (
	// ErrDatabaseURLEmpty flags a configuration that resolved to no
	// connection URL at all.
	ErrDatabaseURLEmpty = errors.New("database URL cannot be empty")

	// ErrInvalidWaitAttempts flags a zero or negative startup probe count.
	ErrInvalidWaitAttempts = errors.New("wait attempts must be positive")

	// ErrInvalidWaitInterval flags a zero or negative startup probe delay.
	ErrInvalidWaitInterval = errors.New("wait interval must be positive")
)

// Config holds PostgreSQL pool settings and startup probe tuning. The
// connection URL stays unexported so struct dumps cannot leak credentials.
type Config struct {
	databaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	WaitAttempts    int           // reachability probes before startup gives up
	WaitInterval    time.Duration // pause between probes
}

// LoadConfig reads PostgreSQL settings from the environment.
//
// GEOPULSE_DATABASE_URL, when set, wins outright; otherwise the URL is
// composed from the individual POSTGRES_* variables, every one of which has a
// local-development default.
func LoadConfig() *Config {
	databaseURL := config.GetEnvStr("GEOPULSE_DATABASE_URL", "")
	if databaseURL == "" {
		databaseURL = composeDatabaseURL()
	}

	return &Config{
		databaseURL:     databaseURL,
		MaxOpenConns:    config.GetEnvInt("GEOPULSE_DB_MAX_OPEN_CONNS", defaultMaxOpenConns),
		MaxIdleConns:    config.GetEnvInt("GEOPULSE_DB_MAX_IDLE_CONNS", defaultMaxIdleConns),
		ConnMaxLifetime: config.GetEnvDuration("GEOPULSE_DB_CONN_MAX_LIFETIME", defaultConnMaxLifetime),
		ConnMaxIdleTime: config.GetEnvDuration("GEOPULSE_DB_CONN_MAX_IDLE_TIME", defaultConnMaxIdleTime),
		WaitAttempts:    config.GetEnvInt("GEOPULSE_DB_WAIT_ATTEMPTS", defaultWaitAttempts),
		WaitInterval:    config.GetEnvDuration("GEOPULSE_DB_WAIT_INTERVAL", defaultWaitInterval),
	}
}

// composeDatabaseURL builds a postgres URL from the individual POSTGRES_*
// variables. Credentials are URL-escaped so passwords with reserved
// characters survive composition.
func composeDatabaseURL() string {
	host := config.GetEnvStr("POSTGRES_HOST", defaultHost)
	port := config.GetEnvInt("POSTGRES_PORT", defaultPort)
	database := config.GetEnvStr("POSTGRES_DB", defaultDatabase)
	user := config.GetEnvStr("POSTGRES_USER", defaultUser)
	password := config.GetEnvStr("POSTGRES_PASSWORD", defaultPassword)

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		url.QueryEscape(user),
		url.QueryEscape(password),
		host,
		port,
		database,
	)
}

// Validate reports whether the configuration can drive a connection attempt.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.databaseURL) == "" {
		return ErrDatabaseURLEmpty
	}

	if c.WaitAttempts <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWaitAttempts, c.WaitAttempts)
	}

	if c.WaitInterval <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidWaitInterval, c.WaitInterval)
	}

	return nil
}

// MaskDatabaseURL returns the connection URL with its password replaced by
// "***", suitable for log output. URLs it cannot pick apart come back
// unchanged; the userinfo section ends at the last "@" so passwords
// containing "@" or ":" still mask correctly.
func (c *Config) MaskDatabaseURL() string {
	scheme, rest, ok := strings.Cut(c.databaseURL, "://")
	if !ok {
		return c.databaseURL
	}

	at := strings.LastIndex(rest, "@")
	if at == -1 {
		return c.databaseURL
	}

	username, password, ok := strings.Cut(rest[:at], ":")
	if !ok || password == "" {
		return c.databaseURL
	}

	return scheme + "://" + username + ":***" + rest[at:]
}
