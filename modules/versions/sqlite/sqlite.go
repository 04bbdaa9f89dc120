// Package sqlite implements a persistent SQLite-backed content version
// store. It uses modernc.org/sqlite (pure Go, no CGO) in WAL mode.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/sweep/internal/core"
	"github.com/flemzord/sweep/internal/sqlitedb"
	"github.com/flemzord/sweep/internal/versions"
)

// StoreService is the service name under which the store is registered.
const StoreService = "versions.store"

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ versions.Store    = (*versionStore)(nil)
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module implements a SQLite-backed versions.Store.
type Module struct {
	config Config
	db     *sql.DB
	logger *slog.Logger
	store  *versionStore
}

// versionStore implements versions.Store backed by SQLite.
type versionStore struct {
	db *sql.DB
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:       "versions.sqlite",
		Priority: core.PriorityStorage,
		New:      func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("sqlite: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	if m.config.Path == "" {
		m.config.Path = filepath.Join(ctx.DataDir, defaultDBFile)
	}

	db, err := sqlitedb.Open(context.TODO(), m.config.Path, sqlitedb.Options{
		WAL:         m.config.walEnabled(),
		BusyTimeout: m.config.BusyTimeout,
	})
	if err != nil {
		return err
	}

	if err := migrate(context.TODO(), db); err != nil {
		_ = db.Close()
		return err
	}

	m.db = db
	m.store = &versionStore{db: db}
	ctx.RegisterService(StoreService, versions.Store(m.store))

	m.logger.Info("sqlite version store provisioned",
		"path", m.config.Path,
		"wal", m.config.walEnabled(),
	)

	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if err := m.config.validate(); err != nil {
		return err
	}
	if err := m.db.PingContext(context.TODO()); err != nil {
		return fmt.Errorf("sqlite: ping failed: %w", err)
	}
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("sqlite version store stopping")
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// Store returns the versions.Store implementation.
func (m *Module) Store() versions.Store {
	return m.store
}
