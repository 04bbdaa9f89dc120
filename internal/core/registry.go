package core

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// modules holds every module compiled into the binary, keyed by ID.
var (
	modules   = make(map[string]ModuleInfo)
	modulesMu sync.RWMutex
)

// RegisterModule adds a module to the compiled-in set. Packages call it from
// init, so a bad registration is a programming error and panics: empty ID,
// nil constructor or an ID taken twice.
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	if info.ID == "" {
		panic("core: module ID must not be empty")
	}
	if info.New == nil {
		panic(fmt.Sprintf("core: module %s has no constructor", info.ID))
	}

	modulesMu.Lock()
	defer modulesMu.Unlock()

	id := string(info.ID)
	if _, exists := modules[id]; exists {
		panic(fmt.Sprintf("core: module %s registered twice", id))
	}
	modules[id] = info
}

// GetModule looks up a compiled-in module. Config validation uses it to reject
// sections no module claims.
func GetModule(id string) (ModuleInfo, bool) {
	modulesMu.RLock()
	defer modulesMu.RUnlock()
	info, ok := modules[id]
	return info, ok
}

// GetModules lists the compiled-in modules by ID, as printed by sweep version.
func GetModules() []ModuleInfo {
	modulesMu.RLock()
	defer modulesMu.RUnlock()

	result := make([]ModuleInfo, 0, len(modules))
	for _, info := range modules {
		result = append(result, info)
	}
	slices.SortFunc(result, func(a, b ModuleInfo) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return result
}

// GetModulesByNamespace lists the modules in one namespace, such as the
// leadership backends under "maindom".
func GetModulesByNamespace(namespace string) []ModuleInfo {
	prefix := namespace + "."

	modulesMu.RLock()
	defer modulesMu.RUnlock()

	var result []ModuleInfo
	for id, info := range modules {
		if strings.HasPrefix(id, prefix) {
			result = append(result, info)
		}
	}
	slices.SortFunc(result, func(a, b ModuleInfo) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return result
}

// OrderModuleIDs sorts ids by module priority, then by ID. Unknown IDs keep
// their relative order after all known ones.
func OrderModuleIDs(ids []string) []string {
	modulesMu.RLock()
	defer modulesMu.RUnlock()

	out := slices.Clone(ids)
	slices.SortStableFunc(out, func(a, b string) int {
		ia, oka := modules[a]
		ib, okb := modules[b]
		switch {
		case !oka && !okb:
			return 0
		case !oka:
			return 1
		case !okb:
			return -1
		}
		if c := cmp.Compare(ia.Priority, ib.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return out
}

// resetRegistry empties the compiled-in set between tests.
func resetRegistry() {
	modulesMu.Lock()
	defer modulesMu.Unlock()
	modules = make(map[string]ModuleInfo)
}
