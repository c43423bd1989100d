// Package aliasing provides column alias resolution for flexible input schemas.
//
// Different upstream producers label the same client attributes differently
// (client_name vs full_name, nation vs country), breaking ingestion when the
// schema is matched literally. This package loads operator-supplied alias
// tables and resolves arbitrary source column names to the canonical field set.
package aliasing

import (
	"errors"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/geopulse-io/geopulse/internal/config"
)

const (
	// DefaultConfigPath is where LoadConfigFromEnv looks when no path is
	// configured. Hidden-file convention, like .eslintrc and friends.
	DefaultConfigPath = ".geopulse.yaml"

	// ConfigPathEnvVar overrides the config file location.
	ConfigPathEnvVar = "GEOPULSE_ALIAS_CONFIG_PATH"
)

// Config holds the column alias table loaded from .geopulse.yaml.
type Config struct {
	// ColumnAliases maps producer-specific column names to canonical
	// field names.
	//nolint:tagliatelle // snake_case is intentional for YAML config files
	ColumnAliases map[string]string `yaml:"column_aliases"`
}

func emptyConfig() *Config {
	return &Config{ColumnAliases: make(map[string]string)}
}

// LoadConfig reads an alias table from the YAML file at path.
//
// The alias file is optional, so every failure mode degrades to an empty
// table instead of an error: a missing file is logged at debug, an unreadable
// or unparsable one at warn, and ingestion proceeds on the built-in aliases
// either way.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	switch {
	case errors.Is(err, os.ErrNotExist):
		slog.Debug("No alias file, using built-in aliases only",
			slog.String("path", path))

		return emptyConfig(), nil
	case err != nil:
		slog.Warn("Alias file unreadable, using built-in aliases only",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return emptyConfig(), nil
	}

	cfg := emptyConfig()
	if len(data) == 0 {
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		slog.Warn("Alias file is not valid YAML, using built-in aliases only",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return emptyConfig(), nil
	}

	// A present but empty column_aliases key unmarshals to nil.
	if cfg.ColumnAliases == nil {
		cfg.ColumnAliases = make(map[string]string)
	}

	return cfg, nil
}

// LoadConfigFromEnv loads the alias table from the path named by
// GEOPULSE_ALIAS_CONFIG_PATH, defaulting to .geopulse.yaml in the working
// directory.
func LoadConfigFromEnv() (*Config, error) {
	return LoadConfig(config.GetEnvStr(ConfigPathEnvVar, DefaultConfigPath))
}
