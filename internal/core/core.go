package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultShutdownTimeout bounds Stop when no deadline is given.
const DefaultShutdownTimeout = 30 * time.Second

var (
	// ErrAlreadyStarted is returned by Start on a running App.
	ErrAlreadyStarted = errors.New("core: app already started")

	// ErrStopped is returned by Start after Stop.
	ErrStopped = errors.New("core: app stopped")
)

type phase int

const (
	phaseLoading phase = iota
	phaseStarted
	phaseStopped
)

// App drives a set of modules through load, start, reload and stop.
// Modules start in load order and stop in reverse. App is not safe for
// concurrent lifecycle calls; the host serializes them.
type App struct {
	ctx     *AppContext
	modules []moduleInstance
	logger  *slog.Logger
	phase   phase

	// ShutdownTimeout bounds Stop. Zero means DefaultShutdownTimeout.
	ShutdownTimeout time.Duration
}

type moduleInstance struct {
	id      ModuleID
	module  Module
	started bool
}

// NewApp creates a new App with the given context.
func NewApp(ctx *AppContext) *App {
	return &App{
		ctx:    ctx,
		logger: ctx.Logger.With("component", "core"),
	}
}

// Context returns the application context shared with modules.
func (a *App) Context() *AppContext { return a.ctx }

// LoadModules instantiates, configures, provisions and validates the
// modules for ids, in order. On failure every module loaded by this call
// or earlier is released and the App is left empty.
func (a *App) LoadModules(ids []string) error {
	for _, id := range ids {
		mod, err := a.ctx.LoadModule(id)
		if err != nil {
			a.release()
			return fmt.Errorf("loading module %s: %w", id, err)
		}
		info := mod.ModuleInfo()
		a.modules = append(a.modules, moduleInstance{id: info.ID, module: mod})
		a.logger.Info("module loaded", "module", string(info.ID), "priority", info.Priority)
	}
	return nil
}

// AppendModule adds an already-built module at the end of the lifecycle.
// Must be called before Start.
func (a *App) AppendModule(id ModuleID, mod Module) {
	a.modules = append(a.modules, moduleInstance{id: id, module: mod})
}

// Module returns the loaded module with the given ID.
func (a *App) Module(id string) (Module, bool) {
	for _, mi := range a.modules {
		if string(mi.id) == id {
			return mi.module, true
		}
	}
	return nil, false
}

// ModuleIDs returns the loaded module IDs in lifecycle order.
func (a *App) ModuleIDs() []ModuleID {
	ids := make([]ModuleID, len(a.modules))
	for i, mi := range a.modules {
		ids[i] = mi.id
	}
	return ids
}

// Start starts every Starter in load order. When one fails, the modules
// already started are stopped in reverse order and the error is returned.
func (a *App) Start() error {
	switch a.phase {
	case phaseStarted:
		return ErrAlreadyStarted
	case phaseStopped:
		return ErrStopped
	}

	for i := range a.modules {
		mi := &a.modules[i]
		s, ok := mi.module.(Starter)
		if !ok {
			mi.started = true
			continue
		}
		a.logger.Info("starting module", "module", string(mi.id))
		if err := s.Start(); err != nil {
			a.logger.Error("module start failed", "module", string(mi.id), "error", err)
			_ = a.stop(context.Background())
			return fmt.Errorf("starting module %s: %w", mi.id, err)
		}
		mi.started = true
	}
	a.phase = phaseStarted
	a.logger.Info("all modules started", "count", len(a.modules))
	return nil
}

// Stop stops every started module in reverse order within ShutdownTimeout.
// Stop errors are logged and joined; they never interrupt the sequence.
func (a *App) Stop() error {
	timeout := a.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return a.stop(ctx)
}

func (a *App) stop(ctx context.Context) error {
	var errs []error
	for i := len(a.modules) - 1; i >= 0; i-- {
		mi := &a.modules[i]
		if !mi.started {
			continue
		}
		mi.started = false
		s, ok := mi.module.(Stopper)
		if !ok {
			continue
		}

		began := time.Now()
		a.logger.Info("stopping module", "module", string(mi.id))
		if err := s.Stop(ctx); err != nil {
			a.logger.Error("module stop error", "module", string(mi.id), "error", err)
			errs = append(errs, fmt.Errorf("stopping module %s: %w", mi.id, err))
			continue
		}
		a.logger.Debug("module stopped", "module", string(mi.id), "elapsed", time.Since(began))
	}
	a.phase = phaseStopped
	return errors.Join(errs...)
}

// release stops every loaded module regardless of start state. Used when
// loading fails half way: provisioned modules may hold open resources.
func (a *App) release() {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	for i := len(a.modules) - 1; i >= 0; i-- {
		if s, ok := a.modules[i].module.(Stopper); ok {
			_ = s.Stop(ctx)
		}
	}
	a.modules = nil
}

// ReloadModules calls Reload on every Reloader with ctx scoped to the
// module. All modules are visited; failures are joined.
func (a *App) ReloadModules(ctx *AppContext) error {
	var errs []error
	for i := range a.modules {
		mi := &a.modules[i]
		r, ok := mi.module.(Reloader)
		if !ok {
			continue
		}
		a.logger.Info("reloading module", "module", string(mi.id))
		if err := r.Reload(ctx.ForModule(mi.id)); err != nil {
			a.logger.Error("module reload failed", "module", string(mi.id), "error", err)
			errs = append(errs, fmt.Errorf("reloading module %s: %w", mi.id, err))
		}
	}
	return errors.Join(errs...)
}
