package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/sweep/internal/core"
	"github.com/flemzord/sweep/internal/gate"
	"github.com/flemzord/sweep/internal/recurring"
	"github.com/flemzord/sweep/internal/reload"
	"github.com/flemzord/sweep/internal/runtime"
)

// systemModuleID names the host-owned runner in the app lifecycle.
const systemModuleID = "system"

// systemModule wraps the host runner to satisfy core.Module, core.Starter,
// and core.Stopper, so it participates in the App lifecycle.
type systemModule struct {
	runner *recurring.Runner
}

func (m *systemModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: systemModuleID}
}

func (m *systemModule) Start() error {
	return m.runner.Start()
}

func (m *systemModule) Stop(ctx context.Context) error {
	return m.runner.Shutdown(ctx)
}

// wireSystem creates the host runner, registers the config watcher on it,
// and appends it to the app lifecycle. The watcher runs on every node,
// whatever its role. Must be called after LoadModules and before Start.
func wireSystem(
	app *core.App,
	logger *slog.Logger,
	status runtime.StatusProvider,
	watcher *reload.Watcher,
	interval time.Duration,
) error {
	runner := recurring.NewRunner(recurring.Config{
		Name:   systemModuleID,
		Logger: logger.With("runner", systemModuleID),
	})
	task := gate.NewUngated(watcher, status, logger)
	if _, err := runner.Register(task, reload.Policy(interval)); err != nil {
		return fmt.Errorf("registering config watcher: %w", err)
	}

	app.AppendModule(systemModuleID, &systemModule{runner: runner})
	return nil
}
