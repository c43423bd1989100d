// Package main provides the database migration CLI for GeoPulse.
//
// All migrations ship embedded in the binary, so the tool deploys as a
// single artifact with no external file dependencies. Supports up, down,
// status, version, force, and drop.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"strconv"
)

// Set at build time via -ldflags "-X main.Version=...".
var (
	Version   = "1.0.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"

	name = "migrator"
)

func main() {
	help := flag.Bool("help", false, "Show help information")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	switch {
	case *showVersion:
		printVersionInfo()

		return
	case *help || flag.NArg() == 0:
		printUsage()

		return
	}

	if err := run(flag.Args()); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
}

func run(args []string) error {
	config, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	r, err := newRunner(config)
	if err != nil {
		return fmt.Errorf("failed to create migration runner: %w", err)
	}

	defer func() {
		_ = r.Close()
	}()

	return executeCommand(args, r)
}

// executeCommand dispatches the CLI arguments onto the runner.
func executeCommand(args []string, r migrationRunner) error {
	switch command := args[0]; command {
	case "up":
		return r.Up()
	case "down":
		return r.Down()
	case "status":
		return r.Status()
	case "version":
		return r.Version()
	case "force":
		return forceTo(args[1:], r)
	case "drop":
		return confirmDrop(r)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func forceTo(args []string, r migrationRunner) error {
	if len(args) == 0 {
		return errors.New("force requires a version argument, e.g. 'force 2'")
	}

	version, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid version %q: %w", args[0], err)
	}

	return r.Force(version)
}

// confirmDrop asks for confirmation on stdin before dropping the schema.
// Anything but an explicit yes cancels, including EOF.
func confirmDrop(r migrationRunner) error {
	fmt.Print("WARNING: This will drop all tables. Are you sure? (y/N): ")

	var response string

	_, _ = fmt.Scanln(&response)

	if response != "y" && response != "Y" {
		fmt.Println("Operation cancelled.")

		return nil
	}

	return r.Drop()
}

// printVersionInfo displays build information.
func printVersionInfo() {
	fmt.Printf("%s v%s (commit %s, built %s)\n", name, Version, GitCommit, BuildTime)
	fmt.Println("Database migration tool for GeoPulse")
}

// printUsage displays usage information.
func printUsage() {
	fmt.Printf(`%s v%s - database migration tool for GeoPulse

Usage:
    %s [flags] <command>

Commands:
    up          apply all pending migrations
    down        roll back the last migration
    status      show schema version and pending migrations
    version     show current schema version
    force N     set the recorded version to N without running SQL
                (recovery from a dirty state, after manual inspection)
    drop        drop all tables (requires confirmation)

Flags:
    --help      show this help message
    --version   show build information

Environment:
    GEOPULSE_DATABASE_URL   PostgreSQL connection string (required);
                            DATABASE_URL is accepted as a fallback
    MIGRATION_TABLE         migration tracking table (default: schema_migrations)

Examples:
    %s up         apply all pending migrations
    %s status     show current migration status
    %s force 2    repair a dirty state at version 2

All migrations ship embedded in the binary; no external files are needed.
`, name, Version, name, name, name, name)
}
