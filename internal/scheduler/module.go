// Package scheduler hosts the process-wide recurring task runner. Task
// modules look the runner up through the service registry and register
// their tasks with it during Start.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/sweep/internal/core"
	"github.com/flemzord/sweep/internal/recurring"
)

// Service names registered by the module.
const (
	RunnerService = "scheduler.runner"
	EventsService = "scheduler.events"
)

// MetricsService is the service name the telemetry module registers its
// recurring.Metrics under.
const MetricsService = "telemetry.metrics"

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Starter      = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Config holds the scheduler module configuration.
type Config struct {
	// Name identifies the runner in logs, metrics and spans. Defaults to "default".
	Name string `yaml:"name"`
}

func (c *Config) defaults() {
	if c.Name == "" {
		c.Name = "default"
	}
}

// Module owns the shared recurring.Runner.
type Module struct {
	config Config
	runner *recurring.Runner
	events *Events
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:       "scheduler",
		Priority: core.PriorityScheduler,
		New:      func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("scheduler: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger
	m.events = NewEvents()

	cfg := recurring.Config{
		Name:     m.config.Name,
		Logger:   ctx.Logger,
		Observer: m.events,
	}
	if metrics, ok := core.Service[recurring.Metrics](ctx, MetricsService); ok {
		cfg.Metrics = metrics
	}
	m.runner = recurring.NewRunner(cfg)

	ctx.RegisterService(RunnerService, m.runner)
	ctx.RegisterService(EventsService, m.events)
	return nil
}

// Start implements core.Starter. Tasks registered before Start are armed now.
func (m *Module) Start() error {
	if err := m.runner.Start(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	m.logger.Info("scheduler: runner started", "runner", m.config.Name, "tasks", m.runner.Len())
	return nil
}

// Stop implements core.Stopper. It blocks until in-flight ticks have
// finished or ctx expires.
func (m *Module) Stop(ctx context.Context) error {
	m.logger.Info("scheduler: shutting down runner", "runner", m.config.Name)
	return m.runner.Shutdown(ctx)
}

// Runner returns the module's runner.
func (m *Module) Runner() *recurring.Runner { return m.runner }

// Events returns the module's event fan-out.
func (m *Module) Events() *Events { return m.events }
