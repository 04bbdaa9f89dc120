// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for sweep.
package config

import "gopkg.in/yaml.v3"

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Logging configures the process-wide logger.
	Logging LoggingConfig `yaml:"logging"`

	// Runtime holds node-level facts consulted by gated tasks.
	Runtime RuntimeConfig `yaml:"runtime"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "maindom.sqlite").
	Modules map[string]yaml.Node `yaml:"modules"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string `yaml:"level"`

	// Format is text or json. Defaults to text.
	Format string `yaml:"format"`

	// File, when set, sends logs to a size-rotated file instead of stderr.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`

	// SentryDSN, when set, forwards warnings and errors to Sentry.
	SentryDSN         string `yaml:"sentry_dsn"`
	SentryEnvironment string `yaml:"sentry_environment"`
}

// RuntimeConfig holds node-level runtime settings.
type RuntimeConfig struct {
	// ServerRole is single, leader, replica or unknown. Defaults to single.
	ServerRole string `yaml:"server_role"`
}
