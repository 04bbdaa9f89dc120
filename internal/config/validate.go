package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/flemzord/sweep/internal/core"
	"github.com/flemzord/sweep/internal/runtime"
)

// Validate checks the structural validity of a Config.
// It verifies the version field, ensures modules are present, checks that
// all referenced module IDs exist in the registry, and validates the
// logging and runtime sections. At most one leadership oracle module
// (namespace "maindom") may be configured.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}

	var oracles []string
	for id := range cfg.Modules {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
		if core.ModuleID(id).Namespace() == "maindom" {
			oracles = append(oracles, id)
		}
	}
	if len(oracles) > 1 {
		slices.Sort(oracles)
		errs = append(errs, fmt.Errorf("config: at most one maindom module may be configured, got %s", strings.Join(oracles, ", ")))
	}

	errs = append(errs, validateLogging(cfg.Logging)...)

	if _, err := runtime.ParseServerRole(cfg.Runtime.ServerRole); err != nil {
		errs = append(errs, fmt.Errorf("config: runtime.server_role: %w", err))
	}

	return errors.Join(errs...)
}

func validateLogging(l LoggingConfig) []error {
	var errs []error
	switch strings.ToLower(l.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("config: logging.level: unknown level %q", l.Level))
	}
	switch strings.ToLower(l.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: logging.format: unknown format %q (want text or json)", l.Format))
	}
	if l.MaxSizeMB < 0 || l.MaxBackups < 0 || l.MaxAgeDays < 0 {
		errs = append(errs, errors.New("config: logging: rotation limits must be >= 0"))
	}
	return errs
}
