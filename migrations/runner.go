package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/lib/pq" // PostgreSQL driver
)

type (
	// migrationRunner is the command surface of the migrator. The CLI
	// dispatches onto it; tests substitute a mock.
	migrationRunner interface {
		// Up applies every unapplied migration in order.
		Up() error

		// Down rolls back the last applied migration.
		Down() error

		// Status reports the database schema version against what this
		// binary supports.
		Status() error

		// Version prints the current schema version.
		Version() error

		// Force overwrites the recorded schema version without running any
		// SQL. Recovery tool for a dirty migration state.
		Force(version int) error

		// Drop drops everything in the database. Destructive.
		Drop() error

		// Close releases the database connection.
		Close() error
	}

	// runner implements migrationRunner on golang-migrate with the
	// migrations embedded in this binary.
	runner struct {
		config  *Config
		migrate *migrate.Migrate
		db      *sql.DB
		set     *migrationSet
	}

	// migrateLogger adapts the standard logger to migrate.Logger.
	migrateLogger struct{}
)

var (
	_ migrate.Logger = (*migrateLogger)(nil)
	_ io.Writer      = (*migrateLogger)(nil)

	_ migrationRunner = (*runner)(nil)
)

// newRunner loads and validates the embedded migration set, then connects to
// the database named by config.
func newRunner(config *Config) (*runner, error) {
	log.Printf("Initializing migration runner with %s", config.String())

	set, err := loadMigrationSet(nil)
	if err != nil {
		return nil, fmt.Errorf("embedded migrations unreadable: %w", err)
	}

	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("embedded migration validation failed: %w", err)
	}

	log.Printf("Embedded migrations valid: %d files, schema v%03d, fingerprint %s",
		len(set.Files()), set.MaxSequence(), set.Fingerprint())

	m, db, err := openMigrate(config, set)
	if err != nil {
		return nil, err
	}

	return &runner{
		config:  config,
		migrate: m,
		db:      db,
		set:     set,
	}, nil
}

// openMigrate opens the connection pool and assembles a migrate instance on
// top of it. The pool is closed again if any later step fails, so callers
// only ever own both handles or neither.
func openMigrate(config *Config, set *migrationSet) (*migrate.Migrate, *sql.DB, error) {
	db, err := sql.Open("postgres", config.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	m, err := buildMigrate(db, config.MigrationTable, set)
	if err != nil {
		_ = db.Close()

		return nil, nil, err
	}

	return m, db, nil
}

func buildMigrate(db *sql.DB, table string, set *migrationSet) (*migrate.Migrate, error) {
	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: table,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build postgres driver: %w", err)
	}

	source, err := iofs.New(set.FS(), ".")
	if err != nil {
		return nil, fmt.Errorf("failed to build embedded source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble migrate instance: %w", err)
	}

	m.Log = &migrateLogger{}

	return m, nil
}

// Up walks the schema forward through every unapplied migration.
func (r *runner) Up() error {
	log.Println("Applying pending migrations...")

	switch err := r.migrate.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
		log.Println("Schema already up to date")
	case err != nil:
		return fmt.Errorf("migration up failed: %w", err)
	default:
		log.Printf("Schema migrated to v%03d", r.set.MaxSequence())
	}

	return nil
}

// Down rolls back the last applied migration.
func (r *runner) Down() error {
	log.Println("Rolling back last migration...")

	switch err := r.migrate.Steps(-1); {
	case errors.Is(err, migrate.ErrNoChange):
		log.Println("Nothing to roll back")
	case err != nil:
		return fmt.Errorf("migration down failed: %w", err)
	default:
		log.Println("Last migration rolled back")
	}

	return nil
}

// Status reports the recorded schema version, whether the state is dirty,
// and how it compares to the migrations in this binary.
func (r *runner) Status() error {
	supported := r.set.MaxSequence()

	version, dirty, err := r.migrate.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Printf("Database schema: none applied")
			log.Printf("Migrator supports: v%03d (%d pending)", supported, supported)

			return nil
		}

		return fmt.Errorf("failed to read migration version: %w", err)
	}

	state := "clean"
	if dirty {
		state = "dirty - repair with 'force' after manual inspection"
	}

	current := int(version) // #nosec G115 - sequence numbers are tiny

	log.Printf("Database schema: v%03d (%s)", current, state)
	log.Printf("Migrator supports: v%03d", supported)

	switch {
	case current == supported:
		log.Printf("Status: up to date")
	case current < supported:
		log.Printf("Status: %d migration(s) pending, run 'up' to apply", supported-current)
	default:
		log.Printf("Status: database is ahead of this binary, update the migrator")
	}

	return nil
}

// Version prints the current schema version.
func (r *runner) Version() error {
	version, dirty, err := r.migrate.Version()

	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		log.Println("Current version: none")
	case err != nil:
		return fmt.Errorf("failed to read migration version: %w", err)
	case dirty:
		log.Printf("Current version: %d (dirty)", version)
	default:
		log.Printf("Current version: %d", version)
	}

	return nil
}

// Force overwrites the recorded schema version without running any SQL.
//
// This is the documented way out of a dirty state: inspect the database,
// fix it by hand to match a known version, then force that version so
// normal migration can resume.
func (r *runner) Force(version int) error {
	if version < 0 || version > r.set.MaxSequence() {
		return fmt.Errorf("version %d out of range: this binary knows schema v000..v%03d",
			version, r.set.MaxSequence())
	}

	log.Printf("Forcing schema version to v%03d without running migrations", version)

	if err := r.migrate.Force(version); err != nil {
		return fmt.Errorf("force failed: %w", err)
	}

	log.Println("Version forced; state is now clean")

	return nil
}

// Drop drops everything in the database.
func (r *runner) Drop() error {
	log.Println("WARNING: dropping all tables...")

	if err := r.migrate.Drop(); err != nil {
		return fmt.Errorf("drop failed: %w", err)
	}

	log.Println("All tables dropped")

	return nil
}

// Close releases the migrate instance and the database connection.
// errors.Join discards the nil results, so both closes always run.
func (r *runner) Close() error {
	var errs []error

	if r.migrate != nil {
		sourceErr, dbErr := r.migrate.Close()
		errs = append(errs, sourceErr, dbErr)
	}

	if r.db != nil {
		errs = append(errs, r.db.Close())
	}

	return errors.Join(errs...)
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("migrate: "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return true
}

func (l *migrateLogger) Write(p []byte) (int, error) {
	log.Printf("migrate: %s", p)

	return len(p), nil
}
