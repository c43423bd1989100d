package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

const defaultMigrationTable = "schema_migrations"

var (
	// ErrDatabaseURLRequired indicates neither GEOPULSE_DATABASE_URL nor
	// DATABASE_URL is set. The migrator has no local default on purpose:
	// pointing a schema tool at an implicit database is how the wrong
	// database gets migrated.
	ErrDatabaseURLRequired = errors.New("GEOPULSE_DATABASE_URL must be set")

	// ErrMigrationTableEmpty indicates MIGRATION_TABLE was set to an empty
	// or blank value.
	ErrMigrationTableEmpty = errors.New("migration table name cannot be empty")
)

// Config holds the migrator's configuration.
type Config struct {
	// DatabaseURL is the PostgreSQL connection string.
	DatabaseURL string

	// MigrationTable is the table golang-migrate records versions in.
	MigrationTable string
}

// LoadConfig loads configuration from the environment.
//
// GEOPULSE_DATABASE_URL takes precedence; DATABASE_URL is accepted as a
// fallback so the tool drops into generic deployment tooling unchanged.
// MIGRATION_TABLE defaults to schema_migrations.
func LoadConfig() (*Config, error) {
	databaseURL := os.Getenv("GEOPULSE_DATABASE_URL")
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}

	table := os.Getenv("MIGRATION_TABLE")
	if table == "" {
		table = defaultMigrationTable
	}

	config := &Config{
		DatabaseURL:    databaseURL,
		MigrationTable: table,
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid migrator configuration: %w", err)
	}

	return config, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return ErrDatabaseURLRequired
	}

	if strings.TrimSpace(c.MigrationTable) == "" {
		return ErrMigrationTableEmpty
	}

	return nil
}

// String renders the configuration with the database password masked,
// safe for logging.
func (c *Config) String() string {
	return fmt.Sprintf("Config{URL: %s, Table: %s}",
		maskDatabaseURL(c.DatabaseURL), c.MigrationTable)
}

// maskDatabaseURL replaces the password in a connection URL with asterisks.
// URLs without userinfo, or with an empty password, come back unchanged.
func maskDatabaseURL(url string) string {
	schemeEnd := strings.Index(url, "://")
	if schemeEnd == -1 {
		return url
	}

	rest := url[schemeEnd+3:]

	// Last @ before the path separates userinfo from host; passwords may
	// themselves contain @.
	authorityEnd := len(rest)
	if slash := strings.IndexAny(rest, "/?#"); slash != -1 {
		authorityEnd = slash
	}

	atIndex := strings.LastIndex(rest[:authorityEnd], "@")
	if atIndex == -1 {
		return url
	}

	userInfo := rest[:atIndex]

	colonIndex := strings.Index(userInfo, ":")
	if colonIndex == -1 || colonIndex == len(userInfo)-1 {
		// No password, or an empty one.
		return url
	}

	prefix := url[:schemeEnd+3]

	return prefix + userInfo[:colonIndex+1] + "***" + rest[atIndex:]
}
