package reload

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flemzord/sweep/internal/config"
	"github.com/flemzord/sweep/internal/core"
	"github.com/flemzord/sweep/internal/runtime"
)

// Handler reloads application configuration and notifies modules.
type Handler struct {
	app    *core.App
	state  *runtime.State
	logger *slog.Logger
}

// NewHandler creates a reload handler. state may be nil; when set, the
// server role is re-read from the reloaded configuration.
func NewHandler(app *core.App, state *runtime.State, logger *slog.Logger) *Handler {
	return &Handler{
		app:    app,
		state:  state,
		logger: logger,
	}
}

// HandleReload loads a fresh config from disk, validates it, and calls Reload
// on all modules that implement core.Reloader.
func (h *Handler) HandleReload(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("reload: loading config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("reload: validating config: %w", err)
	}
	return h.HandleReloadFromConfig(ctx, cfg)
}

// HandleReloadFromConfig reloads modules from a pre-loaded, already-validated
// config. It does not re-validate.
func (h *Handler) HandleReloadFromConfig(ctx context.Context, cfg *config.Config) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("reload: context cancelled before reload: %w", err)
	}

	if h.state != nil {
		role, err := runtime.ParseServerRole(cfg.Runtime.ServerRole)
		if err != nil {
			return fmt.Errorf("reload: %w", err)
		}
		if prev := h.state.ServerRole(); prev != role {
			h.state.SetServerRole(role)
			h.logger.Info("reload: server role changed", "from", prev, "to", role)
		}
	}

	// Module contexts share the running application's services so
	// reloaders can reach their collaborators.
	appCtx := h.app.Context().WithModuleConfigs(cfg.Modules)
	if err := h.app.ReloadModules(appCtx); err != nil {
		return fmt.Errorf("reload: reloading modules: %w", err)
	}

	h.logger.Info("reload: configuration reloaded successfully")
	return nil
}
