// Package app provides the shared entry point for the sweep binary.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/flemzord/sweep/internal/config"
	"github.com/flemzord/sweep/internal/core"
	"github.com/flemzord/sweep/internal/logging"
	"github.com/flemzord/sweep/internal/reload"
	"github.com/flemzord/sweep/internal/runtime"
)

// Services registered by Run before modules are provisioned.
const (
	RuntimeService    = "runtime.state"
	ConfigPathService = "config.path"
	ReloadService     = "reload.handler"
)

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the default persistent data directory.
	DataDir string

	// LogLevel overrides logging.level from the config file when set.
	LogLevel string

	// LogOutput receives log lines instead of stderr when no log file is
	// configured.
	LogOutput io.Writer

	// PollInterval is the config file polling period. Defaults to
	// reload.DefaultPollInterval.
	PollInterval time.Duration
}

// Run loads configuration, starts all modules, and blocks until a shutdown
// signal is received or ctx is cancelled. SIGHUP and file-change events
// trigger a live configuration reload for modules that implement
// core.Reloader.
func Run(ctx context.Context, params RunParams) error {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	redactor := logging.NewRedactor()
	logger, closeLogs, err := newLogger(cfg.Logging, params, redactor)
	if err != nil {
		return err
	}
	defer closeLogs()

	role, err := runtime.ParseServerRole(cfg.Runtime.ServerRole)
	if err != nil {
		return err
	}
	state := runtime.NewState(role)

	dataDir := params.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	appCtx := core.NewAppContext(logger, dataDir)
	appCtx = appCtx.WithModuleConfigs(cfg.Modules)

	// Register host services before provisioning so modules can look them up.
	appCtx.RegisterService(RuntimeService, state)
	appCtx.RegisterService(ConfigPathService, cfgPath)
	appCtx.RegisterService(logging.RedactorService, redactor)

	application := core.NewApp(appCtx)
	if err := application.LoadModules(config.Resolve(cfg)); err != nil {
		return err
	}

	handler := reload.NewHandler(application, state, logger)
	appCtx.RegisterService(ReloadService, handler)

	// The config watcher runs on its own runner, appended last so it starts
	// after every configured module and stops first.
	watcher := reload.NewWatcher(cfgPath)
	if err := wireSystem(application, logger, state, watcher, params.PollInterval); err != nil {
		return err
	}

	if err := application.Start(); err != nil {
		return err
	}
	state.SetLevel(runtime.LevelRun)
	logger.Info("sweep started",
		"version", params.Version,
		"config", cfgPath,
		"role", role.String(),
	)

	// --- signal handling ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	shutdown := func(reason string) error {
		logger.Info("shutdown requested", "reason", reason)
		state.SetLevel(runtime.LevelShutdown)
		if err := application.Stop(); err != nil {
			logger.Error("shutdown finished with errors", "error", err)
		}
		logger.Info("shutdown complete")
		return nil
	}

	// --- main event loop ---
	for {
		select {
		case <-ctx.Done():
			return shutdown("context cancelled")
		case sig := <-sigCh:
			if sig != syscall.SIGHUP {
				return shutdown(sig.String())
			}
			logger.Info("SIGHUP received, reloading configuration")
			if err := handler.HandleReload(ctx, cfgPath); err != nil {
				logger.Error("reload failed", "error", err)
			}
		case evt := <-watcher.Events():
			logger.Info("config file changed, reloading", "path", evt.ConfigPath)
			if err := handler.HandleReload(ctx, cfgPath); err != nil {
				logger.Error("reload failed", "error", err)
			}
		}
	}
}

func newLogger(cfg config.LoggingConfig, params RunParams, redactor *logging.Redactor) (*slog.Logger, func(), error) {
	levelName := cfg.Level
	if params.LogLevel != "" {
		levelName = params.LogLevel
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return nil, nil, err
	}
	return logging.New(logging.Options{
		Level:             level,
		Format:            cfg.Format,
		Output:            params.LogOutput,
		File:              cfg.File,
		MaxSizeMB:         cfg.MaxSizeMB,
		MaxBackups:        cfg.MaxBackups,
		MaxAgeDays:        cfg.MaxAgeDays,
		Compress:          cfg.Compress,
		SentryDSN:         cfg.SentryDSN,
		SentryEnvironment: cfg.SentryEnvironment,
		Release:           params.Version,
		Redactor:          redactor,
	})
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/sweep/sweep.yaml, ~/.config/sweep/sweep.yaml, ./sweep.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "sweep", "sweep.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "sweep", "sweep.yaml"))
	}

	candidates = append(candidates, "sweep.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultConfigPath is where `sweep config init` writes when no path is given.
func DefaultConfigPath() string {
	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		return filepath.Join(xdg, "sweep", "sweep.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "sweep", "sweep.yaml")
	}
	return "sweep.yaml"
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/sweep if set, otherwise ~/.local/share/sweep.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok {
		return filepath.Join(dir, "sweep")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "sweep")
}
