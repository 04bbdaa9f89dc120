package maindom

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/sweep/internal/core"
	"github.com/flemzord/sweep/internal/recurring"
	"github.com/flemzord/sweep/internal/sqlitedb"
)

// OracleService is the service name under which the configured Oracle is registered.
const OracleService = "maindom.oracle"

const (
	defaultLeaseName = "maindom"
	defaultDBFile    = "maindom.db"
	defaultRedisKey  = "sweep:maindom"
)

func init() {
	core.RegisterModule(&StaticModule{})
	core.RegisterModule(&SQLiteModule{})
	core.RegisterModule(&RedisModule{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*StaticModule)(nil)
	_ core.Provisioner  = (*StaticModule)(nil)
	_ core.Reloader     = (*StaticModule)(nil)

	_ core.Configurable = (*SQLiteModule)(nil)
	_ core.Provisioner  = (*SQLiteModule)(nil)
	_ core.Validator    = (*SQLiteModule)(nil)
	_ core.Starter      = (*SQLiteModule)(nil)
	_ core.Stopper      = (*SQLiteModule)(nil)

	_ core.Configurable = (*RedisModule)(nil)
	_ core.Provisioner  = (*RedisModule)(nil)
	_ core.Validator    = (*RedisModule)(nil)
	_ core.Starter      = (*RedisModule)(nil)
	_ core.Stopper      = (*RedisModule)(nil)
)

// LeaseConfig holds the timing shared by lease-backed oracles.
type LeaseConfig struct {
	TTL            time.Duration `yaml:"ttl"`
	RenewInterval  time.Duration `yaml:"renew_interval"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
}

func (c LeaseConfig) keeperConfig(logger *slog.Logger, metrics recurring.Metrics) KeeperConfig {
	return KeeperConfig{
		TTL:            c.TTL,
		RenewInterval:  c.RenewInterval,
		AcquireTimeout: c.AcquireTimeout,
		Logger:         logger,
		Metrics:        metrics,
	}
}

// metricsFrom returns the runner metrics sink registered by the telemetry module, if any.
func metricsFrom(ctx *core.AppContext) recurring.Metrics {
	if m, ok := core.Service[recurring.Metrics](ctx, "telemetry.metrics"); ok {
		return m
	}
	return nil
}

// --- maindom.static ---

// StaticConfig configures the static oracle.
type StaticConfig struct {
	// Owner is the fixed answer. Defaults to true.
	Owner *bool `yaml:"owner"`
}

func (c *StaticConfig) owner() bool { return c.Owner == nil || *c.Owner }

// StaticModule registers a fixed-answer oracle. It suits single-node
// deployments and nodes whose ownership is decided by the operator.
type StaticModule struct {
	config StaticConfig
	oracle *Static
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (m *StaticModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:       "maindom.static",
		Priority: core.PriorityOracle,
		New:      func() core.Module { return &StaticModule{} },
	}
}

// Configure implements core.Configurable.
func (m *StaticModule) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("maindom: decode static config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *StaticModule) Provision(ctx *core.AppContext) error {
	m.logger = ctx.Logger
	m.oracle = NewStatic(m.config.owner())
	ctx.RegisterService(OracleService, Oracle(m.oracle))
	m.logger.Info("maindom: static oracle provisioned", "owner", m.config.owner())
	return nil
}

// Reload implements core.Reloader. The operator can hand ownership to
// another node by flipping owner and reloading.
func (m *StaticModule) Reload(ctx *core.AppContext) error {
	node, ok := ctx.ModuleConfig("maindom.static")
	if !ok {
		return nil
	}
	var cfg StaticConfig
	if err := node.Decode(&cfg); err != nil {
		return fmt.Errorf("maindom: decode static config: %w", err)
	}
	m.config = cfg
	m.oracle.Set(cfg.owner())
	m.logger.Info("maindom: static oracle reloaded", "owner", cfg.owner())
	return nil
}

// Oracle returns the module's oracle.
func (m *StaticModule) Oracle() Oracle { return m.oracle }

// --- maindom.sqlite ---

// SQLiteConfig configures the SQLite lease oracle.
type SQLiteConfig struct {
	LeaseConfig `yaml:",inline"`

	// Path is the database file. Defaults to {DataDir}/maindom.db.
	Path string `yaml:"path"`

	// LeaseName is the row competed for. Defaults to "maindom".
	LeaseName string `yaml:"lease_name"`

	// BusyTimeout is the lock wait in milliseconds. Defaults to 5000.
	BusyTimeout int `yaml:"busy_timeout"`
}

func (c *SQLiteConfig) defaults() {
	if c.LeaseName == "" {
		c.LeaseName = defaultLeaseName
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = sqlitedb.DefaultBusyTimeout
	}
}

// SQLiteModule holds a lease row in a SQLite database.
type SQLiteModule struct {
	config SQLiteConfig
	db     *sql.DB
	keeper *Keeper
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (m *SQLiteModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:       "maindom.sqlite",
		Priority: core.PriorityOracle,
		New:      func() core.Module { return &SQLiteModule{} },
	}
}

// Configure implements core.Configurable.
func (m *SQLiteModule) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("maindom: decode sqlite config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *SQLiteModule) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger
	if m.config.Path == "" {
		m.config.Path = filepath.Join(ctx.DataDir, defaultDBFile)
	}

	db, err := sqlitedb.Open(context.TODO(), m.config.Path, sqlitedb.Options{
		WAL:         true,
		BusyTimeout: m.config.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("maindom: %w", err)
	}
	locker, err := NewSQLiteLocker(context.TODO(), db, m.config.LeaseName, nil)
	if err != nil {
		_ = db.Close()
		return err
	}

	m.db = db
	m.keeper = NewKeeper(locker, m.config.keeperConfig(m.logger, metricsFrom(ctx)))
	ctx.RegisterService(OracleService, Oracle(m.keeper))

	m.logger.Info("maindom: sqlite lease oracle provisioned",
		"path", m.config.Path,
		"lease", m.config.LeaseName,
		"owner", m.keeper.Owner(),
	)
	return nil
}

// Validate implements core.Validator.
func (m *SQLiteModule) Validate() error {
	var errs []error
	if m.config.BusyTimeout < 0 {
		errs = append(errs, fmt.Errorf("maindom: busy_timeout must be non-negative, got %d", m.config.BusyTimeout))
	}
	if err := m.config.keeperConfig(nil, nil).Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Start implements core.Starter.
func (m *SQLiteModule) Start() error {
	return m.keeper.Start(context.Background())
}

// Stop implements core.Stopper.
func (m *SQLiteModule) Stop(ctx context.Context) error {
	var errs []error
	if m.keeper != nil {
		if err := m.keeper.Stop(ctx); err != nil && !errors.Is(err, ErrNotStarted) {
			errs = append(errs, err)
		}
	}
	if m.db != nil {
		errs = append(errs, m.db.Close())
	}
	return errors.Join(errs...)
}

// Keeper returns the module's lease keeper.
func (m *SQLiteModule) Keeper() *Keeper { return m.keeper }

// --- maindom.redis ---

// RedisConfig configures the Redis lease oracle.
type RedisConfig struct {
	LeaseConfig `yaml:",inline"`

	// URL is a redis:// or rediss:// connection URL.
	URL string `yaml:"url"`

	// Key is the lease key. Defaults to "sweep:maindom".
	Key string `yaml:"key"`

	// DialTimeout bounds connection setup. Defaults to 5s.
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

func (c *RedisConfig) defaults() {
	if c.Key == "" {
		c.Key = defaultRedisKey
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
}

// RedisModule holds the lease as a Redis key.
type RedisModule struct {
	config RedisConfig
	client *redis.Client
	keeper *Keeper
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (m *RedisModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:       "maindom.redis",
		Priority: core.PriorityOracle,
		New:      func() core.Module { return &RedisModule{} },
	}
}

// Configure implements core.Configurable.
func (m *RedisModule) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("maindom: decode redis config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner. The connection is established
// lazily by the client; Start pings it before acquiring.
func (m *RedisModule) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	if m.config.URL == "" {
		return errors.New("maindom: redis url is required")
	}
	opts, err := redis.ParseURL(m.config.URL)
	if err != nil {
		return fmt.Errorf("maindom: parse redis url: %w", err)
	}
	opts.DialTimeout = m.config.DialTimeout

	m.client = redis.NewClient(opts)
	locker, err := NewRedisLocker(m.client, m.config.Key)
	if err != nil {
		_ = m.client.Close()
		return err
	}
	m.keeper = NewKeeper(locker, m.config.keeperConfig(m.logger, metricsFrom(ctx)))
	ctx.RegisterService(OracleService, Oracle(m.keeper))

	m.logger.Info("maindom: redis lease oracle provisioned",
		"addr", opts.Addr,
		"key", m.config.Key,
		"owner", m.keeper.Owner(),
	)
	return nil
}

// Validate implements core.Validator.
func (m *RedisModule) Validate() error {
	return m.config.keeperConfig(nil, nil).Validate()
}

// Start implements core.Starter.
func (m *RedisModule) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.DialTimeout)
	defer cancel()
	if err := m.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("maindom: redis ping: %w", err)
	}
	return m.keeper.Start(context.Background())
}

// Stop implements core.Stopper.
func (m *RedisModule) Stop(ctx context.Context) error {
	var errs []error
	if m.keeper != nil {
		if err := m.keeper.Stop(ctx); err != nil && !errors.Is(err, ErrNotStarted) {
			errs = append(errs, err)
		}
	}
	if m.client != nil {
		errs = append(errs, m.client.Close())
	}
	return errors.Join(errs...)
}

// Keeper returns the module's lease keeper.
func (m *RedisModule) Keeper() *Keeper { return m.keeper }
