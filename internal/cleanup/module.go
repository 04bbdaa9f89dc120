package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/sweep/internal/core"
	"github.com/flemzord/sweep/internal/gate"
	"github.com/flemzord/sweep/internal/maindom"
	"github.com/flemzord/sweep/internal/recurring"
	"github.com/flemzord/sweep/internal/runtime"
	"github.com/flemzord/sweep/internal/scheduler"
	"github.com/flemzord/sweep/internal/versions"
)

const moduleID = "cleanup.content_versions"

// Service names the module depends on.
const (
	StoreService   = "versions.store"
	RuntimeService = "runtime.state"
)

const (
	defaultInitialDelay = 3 * time.Minute
	defaultPeriod       = time.Hour
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Starter      = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
	_ core.Reloader     = (*Module)(nil)
)

// Config holds the cleanup module configuration.
type Config struct {
	// EnableCleanup toggles the job without unscheduling it. Defaults to true.
	EnableCleanup *bool `yaml:"enable_cleanup"`

	// InitialDelay is the wait before the first run. Defaults to 3m.
	InitialDelay time.Duration `yaml:"initial_delay"`

	// Period is the wait between the end of one run and the next. Defaults to 1h.
	Period time.Duration `yaml:"period"`

	versions.Policy `yaml:",inline"`
}

func (c *Config) defaults() {
	if c.EnableCleanup == nil {
		t := true
		c.EnableCleanup = &t
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = defaultInitialDelay
	}
	if c.Period == 0 {
		c.Period = defaultPeriod
	}
	def := versions.DefaultPolicy()
	if c.KeepAllVersionsNewerThanDays == 0 {
		c.KeepAllVersionsNewerThanDays = def.KeepAllVersionsNewerThanDays
	}
	if c.KeepLatestVersionPerDayForDays == 0 {
		c.KeepLatestVersionPerDayForDays = def.KeepLatestVersionPerDayForDays
	}
}

func (c *Config) enabled() bool { return c.EnableCleanup == nil || *c.EnableCleanup }

func (c *Config) recurringPolicy() recurring.Policy {
	return recurring.Policy{
		InitialDelay: c.InitialDelay,
		Period:       c.Period,
		Async:        false,
	}
}

func (c *Config) validate() error {
	return errors.Join(c.recurringPolicy().Validate(), c.Policy.Validate())
}

// Module schedules ContentVersionCleanup on the shared runner.
type Module struct {
	config Config
	logger *slog.Logger

	runner *recurring.Runner
	status runtime.StatusProvider
	oracle maindom.Oracle
	flag   *gate.Switch
	job    *ContentVersionCleanup

	mu     sync.Mutex
	handle *recurring.Handle
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:       moduleID,
		Priority: core.PriorityTask,
		New:      func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("cleanup: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	store, ok := core.Service[versions.Store](ctx, StoreService)
	if !ok {
		return errors.New("cleanup: no version store registered, configure versions.sqlite")
	}
	runner, ok := core.Service[*recurring.Runner](ctx, scheduler.RunnerService)
	if !ok {
		return errors.New("cleanup: no runner registered, configure the scheduler module")
	}
	status, ok := core.Service[runtime.StatusProvider](ctx, RuntimeService)
	if !ok {
		return errors.New("cleanup: runtime state not registered")
	}
	oracle, ok := core.Service[maindom.Oracle](ctx, maindom.OracleService)
	if !ok {
		m.logger.Info("cleanup: no maindom module configured, assuming exclusive ownership")
		oracle = maindom.NewStatic(true)
	}

	m.runner = runner
	m.status = status
	m.oracle = oracle
	m.flag = gate.NewSwitch(m.config.enabled())
	m.job = NewContentVersionCleanup(store, m.config.Policy, m.logger)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// Start implements core.Starter.
func (m *Module) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.register()
}

// register schedules a fresh gated task. Caller must hold m.mu.
func (m *Module) register() error {
	task := gate.NewSingleton(m.job, gate.Config{
		Flag:   m.flag,
		Status: m.status,
		Oracle: m.oracle,
		Logger: m.logger,
	})
	handle, err := m.runner.Register(task, m.config.recurringPolicy())
	if err != nil {
		return fmt.Errorf("cleanup: register task: %w", err)
	}
	m.handle = handle
	m.logger.Info("cleanup: task scheduled",
		"initial_delay", m.config.InitialDelay,
		"period", m.config.Period,
		"enabled", m.config.enabled(),
	)
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle != nil {
		m.handle.Cancel()
	}
	return nil
}

// Reload implements core.Reloader. The flag and the prune policy apply from
// the next run. A task retired after losing ownership is scheduled again
// when the oracle reports ownership. Timing changes need a restart.
func (m *Module) Reload(ctx *core.AppContext) error {
	node, ok := ctx.ModuleConfig(moduleID)
	if !ok {
		return nil
	}
	var cfg Config
	if err := node.Decode(&cfg); err != nil {
		return fmt.Errorf("cleanup: decode config: %w", err)
	}
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if cfg.InitialDelay != m.config.InitialDelay || cfg.Period != m.config.Period {
		m.logger.Warn("cleanup: timing changes take effect after restart",
			"period", cfg.Period,
			"initial_delay", cfg.InitialDelay,
		)
		cfg.InitialDelay = m.config.InitialDelay
		cfg.Period = m.config.Period
	}

	m.config = cfg
	m.flag.Set(cfg.enabled())
	m.job.SetPolicy(cfg.Policy)
	m.logger.Info("cleanup: configuration reloaded", "enabled", cfg.enabled())

	if m.handle != nil && m.handle.State() == recurring.StateRetired && m.oracle.IsExclusiveOwner() {
		m.logger.Info("cleanup: exclusive ownership regained, rescheduling task")
		return m.register()
	}
	return nil
}

// Handle returns the handle of the scheduled task, or nil before Start.
func (m *Module) Handle() *recurring.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle
}

// Job returns the cleanup job.
func (m *Module) Job() *ContentVersionCleanup { return m.job }
