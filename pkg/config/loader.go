package config

import (
	"fmt"
	"log/slog"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Load reads path, merges it onto the compiled-in defaults, overlays the
// DATABASE_URL and ACCESS_KEY environment secrets, validates the result,
// and returns it ready for use. A missing file is not an error: the
// compiled-in defaults are used as-is. The default database DSN is empty,
// so without a config file validation passes only when DATABASE_URL is set.
func Load(path string) (*Config, error) {
	log := slog.With("component", "config", "path", path)

	cfg := defaults()

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fromFile Config
		if err := yaml.Unmarshal(raw, &fromFile); err != nil {
			return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
		}
		if err := mergo.Merge(cfg, fromFile, mergo.WithOverride); err != nil {
			return nil, NewLoadError(path, fmt.Errorf("merge configuration: %w", err))
		}
	case os.IsNotExist(err):
		log.Warn("configuration file not found, using compiled-in defaults")
	default:
		return nil, NewLoadError(path, err)
	}

	applyEnvOverrides(cfg)

	if err := NewValidator(cfg).ValidateAll(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("configuration loaded",
		"listen_addr", cfg.HTTP.ListenAddr,
		"mount_path", cfg.HTTP.MountPath,
		"response_timeout_seconds", cfg.ResponseTimeoutSeconds)

	return cfg, nil
}

// applyEnvOverrides lets DATABASE_URL and ACCESS_KEY override the YAML
// value so that secrets never need to live in the checked-in config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("ACCESS_KEY"); v != "" {
		cfg.AccessKey = v
	}
}
