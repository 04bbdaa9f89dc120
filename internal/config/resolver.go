package config

import (
	"slices"

	"github.com/flemzord/sweep/internal/core"
)

// Resolve returns the configured module IDs in lifecycle order: by module
// priority, then by ID. The deterministic order ensures consistent module
// loading and reverse-order shutdown.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return core.OrderModuleIDs(ids)
}
