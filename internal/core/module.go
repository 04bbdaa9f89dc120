package core

import "strings"

// ModuleID is a dotted module identifier such as "maindom.sqlite".
// The part before the first dot is the namespace.
type ModuleID string

// Namespace returns the part of the ID before the first dot.
func (id ModuleID) Namespace() string {
	ns, _, _ := strings.Cut(string(id), ".")
	return ns
}

// Name returns the part of the ID after the first dot, or the whole ID when
// it has no namespace.
func (id ModuleID) Name() string {
	_, name, ok := strings.Cut(string(id), ".")
	if !ok {
		return string(id)
	}
	return name
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	// ID uniquely identifies the module.
	ID ModuleID

	// Priority orders module startup: lower values start first and stop
	// last. Modules with equal priority are ordered by ID.
	Priority int

	// New returns a fresh, unconfigured instance.
	New func() Module
}

// Module is the interface every module implements.
type Module interface {
	ModuleInfo() ModuleInfo
}

// Priorities used by the built-in modules. Storage comes up before the
// leadership oracle, which comes up before the scheduler and the tasks that
// register with it. The gateway starts last so it only serves a ready process.
const (
	PriorityTelemetry = 5
	PriorityStorage   = 10
	PriorityOracle    = 20
	PriorityScheduler = 30
	PriorityTask      = 40
	PriorityGateway   = 50
)
