package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file" // migrations read from the source tree
)

const (
	// The ready log line appears once during initdb and once on the real
	// start; waiting for the second occurrence avoids connecting mid-init.
	readyLogOccurrences = 2

	containerStartTimeout = 120 * time.Second

	// Relative to the test package running it; every internal/* package
	// sits at the same depth, so one path serves them all.
	testMigrationsSource = "file://../../migrations"
)

// TestDatabase bundles the container and connection an integration test
// needs to hold for cleanup.
type TestDatabase struct {
	Container  *postgres.PostgresContainer
	Connection *sql.DB
}

// SetupTestDatabase starts a disposable PostgreSQL container and migrates it
// to the current schema. Callers own cleanup:
//
//	testDB := config.SetupTestDatabase(ctx, t)
//	t.Cleanup(func() {
//		_ = testDB.Connection.Close()
//		_ = testcontainers.TerminateContainer(testDB.Container)
//	})
func SetupTestDatabase(ctx context.Context, t *testing.T) *TestDatabase {
	t.Helper()

	container := startPostgresContainer(ctx, t)

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "container connection string")

	conn, err := sql.Open("postgres", connStr)
	require.NoError(t, err, "open test database")

	if err := RunTestMigrations(conn); err != nil {
		_ = conn.Close()
		_ = testcontainers.TerminateContainer(container)

		t.Fatalf("migrating test database: %v", err)
	}

	return &TestDatabase{Container: container, Connection: conn}
}

func startPostgresContainer(ctx context.Context, t *testing.T) *postgres.PostgresContainer {
	t.Helper()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("geopulse_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(readyLogOccurrences).
				WithStartupTimeout(containerStartTimeout),
		),
	)
	require.NoError(t, err, "start postgres container")

	return container
}

// RunTestMigrations brings db to the latest schema using the SQL files in
// migrations/ directly, so tests and the migrator binary can never drift
// apart. Already-migrated databases are left alone.
func RunTestMigrations(db *sql.DB) error {
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("migrate driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(testMigrationsSource, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}

	return nil
}
