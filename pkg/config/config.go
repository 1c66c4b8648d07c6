// Package config loads and validates the bridge's process-level
// configuration: listen address, access key, database DSN, and the timer
// and calendar defaults. Shaped after the originating codebase's
// pkg/config loader/validator split, scaled down to one YAML file.
package config

import "time"

// Config is the fully resolved, validated process configuration.
type Config struct {
	HTTP      HTTPConfig     `yaml:"http"`
	AccessKey string         `yaml:"access_key"`

	ResponseTimeoutSeconds int  `yaml:"response_timeout_seconds"`
	IgnoreResponse         bool `yaml:"ignore_response"`

	Database DatabaseConfig `yaml:"database"`
	Timers   TimersConfig   `yaml:"timers"`
	Calendar CalendarConfig `yaml:"calendar"`
}

// HTTPConfig controls the address the bridge listens on and the base path
// the SSE stream and command endpoints are mounted under.
type HTTPConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	MountPath  string `yaml:"mount_path"`
}

// DatabaseConfig is the recurring-job store's connection.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// TimersConfig configures the one-shot timer service.
type TimersConfig struct {
	OneShotPersistPath  string `yaml:"one_shot_persist_path"`
	MisfireGraceSeconds int    `yaml:"misfire_grace_seconds"`
}

// CalendarConfig configures the holiday/workday oracle's on-disk cache and
// HTTP fallback.
type CalendarConfig struct {
	CacheDir            string `yaml:"cache_dir"`
	FetchTimeoutSeconds int    `yaml:"fetch_timeout_seconds"`
}

// ResponseTimeout returns the configured response timeout as a Duration.
func (c *Config) ResponseTimeout() time.Duration {
	return time.Duration(c.ResponseTimeoutSeconds) * time.Second
}

// MisfireGrace returns the configured misfire grace window as a Duration.
func (c *Config) MisfireGrace() time.Duration {
	return time.Duration(c.Timers.MisfireGraceSeconds) * time.Second
}

// FetchTimeout returns the calendar oracle's HTTP fallback timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Calendar.FetchTimeoutSeconds) * time.Second
}

// defaults returns the compiled-in configuration merged beneath whatever
// the user supplies in bridge.yaml.
func defaults() *Config {
	return &Config{
		HTTP: HTTPConfig{
			ListenAddr: ":8080",
			MountPath:  "/sse",
		},
		ResponseTimeoutSeconds: 30,
		IgnoreResponse:         false,
		Database: DatabaseConfig{
			MaxOpenConns: 10,
		},
		Timers: TimersConfig{
			OneShotPersistPath:  "./data/timers_oneshot.json",
			MisfireGraceSeconds: 300,
		},
		Calendar: CalendarConfig{
			CacheDir:            "./data/holiday_cache",
			FetchTimeoutSeconds: 10,
		},
	}
}
