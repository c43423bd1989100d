package main

import (
	"context"
	"testing"
)

func Benchmark_LoadMigrationSet(b *testing.B) {
	if !testing.Short() {
		b.Skip("skipping benchmark in non-short mode")
	}

	b.ResetTimer()

	for range b.N {
		if _, err := loadMigrationSet(nil); err != nil {
			b.Fatalf("benchmark failed: %v", err)
		}
	}
}

func Benchmark_ParseMigrationFilename(b *testing.B) {
	if !testing.Short() {
		b.Skip("skipping benchmark in non-short mode")
	}

	b.ResetTimer()

	for range b.N {
		if _, err := parseMigrationFilename("002_create_reporting_views.up.sql"); err != nil {
			b.Fatalf("benchmark failed: %v", err)
		}
	}
}

func Benchmark_MigrationSetValidate(b *testing.B) {
	if !testing.Short() {
		b.Skip("skipping benchmark in non-short mode")
	}

	set, err := loadMigrationSet(nil)
	if err != nil {
		b.Fatalf("failed to load embedded migrations: %v", err)
	}

	b.ResetTimer()

	for range b.N {
		if err := set.Validate(); err != nil {
			b.Fatalf("benchmark failed: %v", err)
		}
	}
}

func Benchmark_MigrationSetFingerprint(b *testing.B) {
	if !testing.Short() {
		b.Skip("skipping benchmark in non-short mode")
	}

	set, err := loadMigrationSet(nil)
	if err != nil {
		b.Fatalf("failed to load embedded migrations: %v", err)
	}

	b.ResetTimer()

	for range b.N {
		_ = set.Fingerprint()
	}
}

func Benchmark_MigrationContent(b *testing.B) {
	if !testing.Short() {
		b.Skip("skipping benchmark in non-short mode")
	}

	set, err := loadMigrationSet(nil)
	if err != nil {
		b.Fatalf("failed to load embedded migrations: %v", err)
	}

	b.ResetTimer()

	for range b.N {
		if _, err := set.Content("001_create_clients_table.up.sql"); err != nil {
			b.Fatalf("benchmark failed: %v", err)
		}
	}
}

// BenchmarkRunnerOperations measures migration commands against a live
// database, including a full down/up cycle per iteration.
func BenchmarkRunnerOperations(b *testing.B) {
	if testing.Short() {
		b.Skip("skipping this benchmark in short mode")
	}

	ctx := context.Background()

	config := &Config{
		DatabaseURL:    startPostgres(ctx, b),
		MigrationTable: defaultMigrationTable,
	}

	r, err := newRunner(config)
	if err != nil {
		b.Fatalf("newRunner() error = %v", err)
	}

	b.Cleanup(func() {
		if err := r.Close(); err != nil {
			b.Logf("cleanup error: %v", err)
		}
	})

	if err := r.Up(); err != nil {
		b.Fatalf("Up() error = %v", err)
	}

	b.ResetTimer()

	b.Run("Status", func(b *testing.B) {
		for range b.N {
			if err := r.Status(); err != nil {
				b.Fatalf("Status() error = %v", err)
			}
		}
	})

	b.Run("Version", func(b *testing.B) {
		for range b.N {
			if err := r.Version(); err != nil {
				b.Fatalf("Version() error = %v", err)
			}
		}
	})

	b.Run("DownUpCycle", func(b *testing.B) {
		for range b.N {
			if err := r.Down(); err != nil {
				b.Fatalf("Down() error = %v", err)
			}

			if err := r.Up(); err != nil {
				b.Fatalf("Up() error = %v", err)
			}
		}
	})
}
