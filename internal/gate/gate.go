// Package gate turns domain jobs into recurring tasks that check runtime
// and ownership preconditions before every run.
package gate

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/flemzord/sweep/internal/maindom"
	"github.com/flemzord/sweep/internal/recurring"
	"github.com/flemzord/sweep/internal/runtime"
)

// Job is the domain work behind a gated task. Run is called at most once
// per tick and only when every gate passes.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Flag is a live on/off switch for a task class.
type Flag interface {
	Enabled() bool
}

// Switch is a Flag backed by an atomic boolean.
type Switch struct {
	on atomic.Bool
}

// NewSwitch returns a Switch in the given position.
func NewSwitch(on bool) *Switch {
	s := &Switch{}
	s.on.Store(on)
	return s
}

// Enabled implements Flag.
func (s *Switch) Enabled() bool { return s.on.Load() }

// Set moves the switch.
func (s *Switch) Set(on bool) { s.on.Store(on) }

// Config holds the collaborators consulted by the gates.
type Config struct {
	// Flag disables the task class while off. Nil means always enabled.
	Flag Flag

	// Status provides the runtime level and server role. Required.
	Status runtime.StatusProvider

	// Oracle answers exclusive ownership. Required for Singleton.
	Oracle maindom.Oracle

	Logger *slog.Logger
}

// Singleton runs a job on at most one node. Before the job it checks, in
// order: the feature flag, the runtime level, the server role and
// exclusive ownership. Only losing ownership retires the task.
type Singleton struct {
	job    Job
	cfg    Config
	logger *slog.Logger
}

// Compile-time interface check.
var _ recurring.Task = (*Singleton)(nil)

// NewSingleton wraps job.
func NewSingleton(job Job, cfg Config) *Singleton {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Singleton{
		job:    job,
		cfg:    cfg,
		logger: logger.With("task", job.Name()),
	}
}

// Name implements recurring.Task.
func (s *Singleton) Name() string { return s.job.Name() }

// Execute implements recurring.Task.
func (s *Singleton) Execute(ctx context.Context) (recurring.Decision, error) {
	if s.cfg.Flag != nil && !s.cfg.Flag.Enabled() {
		s.logger.Info("gate: task globally disabled via configuration")
		return recurring.Repeat, nil
	}

	if level := s.cfg.Status.Level(); level != runtime.LevelRun {
		s.logger.Debug("gate: runtime level is not run, waiting", "level", level)
		return recurring.Repeat, nil
	}

	switch role := s.cfg.Status.ServerRole(); role {
	case runtime.RoleReplica:
		s.logger.Debug("gate: does not run on replica servers")
		return recurring.RepeatImmediately, nil
	case runtime.RoleUnknown:
		s.logger.Debug("gate: does not run on servers with unknown role")
		return recurring.RepeatImmediately, nil
	}

	if !s.cfg.Oracle.IsExclusiveOwner() {
		s.logger.Info("gate: not exclusive owner, retiring task")
		return recurring.Retire, nil
	}

	if err := s.job.Run(ctx); err != nil {
		return recurring.Repeat, err
	}
	return recurring.Repeat, nil
}

// Ungated runs a job on every node once the application is running. It only
// checks the runtime level.
type Ungated struct {
	job    Job
	status runtime.StatusProvider
	logger *slog.Logger
}

// Compile-time interface check.
var _ recurring.Task = (*Ungated)(nil)

// NewUngated wraps job.
func NewUngated(job Job, status runtime.StatusProvider, logger *slog.Logger) *Ungated {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ungated{job: job, status: status, logger: logger.With("task", job.Name())}
}

// Name implements recurring.Task.
func (u *Ungated) Name() string { return u.job.Name() }

// Execute implements recurring.Task.
func (u *Ungated) Execute(ctx context.Context) (recurring.Decision, error) {
	if level := u.status.Level(); level != runtime.LevelRun {
		u.logger.Debug("gate: runtime level is not run, waiting", "level", level)
		return recurring.Repeat, nil
	}
	if err := u.job.Run(ctx); err != nil {
		return recurring.Repeat, err
	}
	return recurring.Repeat, nil
}

// JobFunc adapts a function to Job.
type JobFunc struct {
	name string
	fn   func(ctx context.Context) error
}

// NewJobFunc returns a Job named name that calls fn.
func NewJobFunc(name string, fn func(ctx context.Context) error) *JobFunc {
	return &JobFunc{name: name, fn: fn}
}

// Name implements Job.
func (j *JobFunc) Name() string { return j.name }

// Run implements Job.
func (j *JobFunc) Run(ctx context.Context) error { return j.fn(ctx) }
