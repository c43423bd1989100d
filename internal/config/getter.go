// Package config reads runtime settings from the environment.
//
// Every getter follows the same contract: a set, non-empty variable that
// parses wins; anything else (unset, empty, malformed) falls back to the
// caller's default. Startup code logs the effective values, so a mistyped
// variable shows up in the boot log rather than as a crash.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// lookup reads key, treating empty as unset.
func lookup(key string) (string, bool) {
	value := os.Getenv(key)
	if value == "" {
		return "", false
	}

	return value, true
}

// GetEnvStr reads a string variable, falling back to defaultValue when unset.
func GetEnvStr(key, defaultValue string) string {
	value, ok := lookup(key)
	if !ok {
		return defaultValue
	}

	return value
}

// GetEnvInt reads an integer variable. Unset or unparseable values fall back
// to defaultValue.
func GetEnvInt(key string, defaultValue int) int {
	value, ok := lookup(key)
	if !ok {
		return defaultValue
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return parsed
}

// GetEnvInt64 reads an int64 variable. Unset or unparseable values fall back
// to defaultValue.
func GetEnvInt64(key string, defaultValue int64) int64 {
	value, ok := lookup(key)
	if !ok {
		return defaultValue
	}

	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}

	return parsed
}

// GetEnvBool reads a boolean variable. Recognized spellings, after trimming
// and lowercasing: true/1/yes and false/0/no. Anything else falls back to
// defaultValue.
func GetEnvBool(key string, defaultValue bool) bool {
	value, ok := lookup(key)
	if !ok {
		return defaultValue
	}

	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}

// GetEnvDuration reads a Go duration string ("10s", "5m"). Unset or
// unparseable values fall back to defaultValue.
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, ok := lookup(key)
	if !ok {
		return defaultValue
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return parsed
}

// GetEnvLogLevel maps a level name (debug, info, warn/warning, error) to a
// slog.Level, falling back to defaultValue for anything unrecognized.
func GetEnvLogLevel(key string, defaultValue slog.Level) slog.Level {
	value, ok := lookup(key)
	if !ok {
		return defaultValue
	}

	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return defaultValue
	}
}

// ParseCommaSeparatedList splits input on commas into trimmed, non-empty
// entries. Always returns a non-nil slice so callers can range and serialize
// without a nil check.
func ParseCommaSeparatedList(input string) []string {
	entries := []string{}

	for _, part := range strings.Split(input, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			entries = append(entries, trimmed)
		}
	}

	return entries
}
