package maindom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/flemzord/sweep/internal/recurring"
)

const (
	defaultTTL            = 30 * time.Second
	defaultRenewInterval  = 10 * time.Second
	defaultAcquireTimeout = 15 * time.Second
	maxRetryInterval      = time.Second
	maxExpiryMargin       = 2 * time.Second

	renewTaskName = "maindom.renew"
)

// Keeper lifecycle errors.
var (
	ErrAlreadyStarted = errors.New("maindom: keeper already started")
	ErrNotStarted     = errors.New("maindom: keeper not started")
)

// KeeperConfig configures a Keeper. Zero values get defaults.
type KeeperConfig struct {
	// Owner identifies this process in the lease. Defaults to a random UUID.
	Owner string

	// TTL is the lease lifetime granted by each acquire or renew. Defaults to 30s.
	TTL time.Duration

	// RenewInterval is the time between renewals. Defaults to 10s and must
	// be shorter than TTL.
	RenewInterval time.Duration

	// AcquireTimeout bounds the initial acquisition. Defaults to 15s.
	AcquireTimeout time.Duration

	// RetryInterval is the wait between acquisition attempts. Defaults to
	// the smaller of RenewInterval and one second.
	RetryInterval time.Duration

	Logger  *slog.Logger
	Metrics recurring.Metrics
	Now     func() time.Time
}

func (c KeeperConfig) withDefaults() KeeperConfig {
	if c.Owner == "" {
		c.Owner = uuid.NewString()
	}
	if c.TTL <= 0 {
		c.TTL = defaultTTL
	}
	if c.RenewInterval <= 0 {
		c.RenewInterval = defaultRenewInterval
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = defaultAcquireTimeout
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = min(c.RenewInterval, maxRetryInterval)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Validate checks the timing relationship between TTL and renewals.
func (c KeeperConfig) Validate() error {
	c = c.withDefaults()
	if c.RenewInterval >= c.TTL-min(c.TTL/10, maxExpiryMargin) {
		return fmt.Errorf("maindom: renew_interval (%s) must be shorter than ttl (%s) minus its safety margin", c.RenewInterval, c.TTL)
	}
	return nil
}

// Keeper holds a lease through a Locker and implements Oracle.
//
// Ownership has session semantics: once a held lease is lost, the keeper
// reports false until the process restarts. A lease that could not be taken
// within AcquireTimeout is never retried either.
type Keeper struct {
	cfg    KeeperConfig
	locker Locker
	logger *slog.Logger

	held atomic.Bool
	// validUntil is the local deadline, in Unix nanoseconds, of the last
	// lease grant: the call start plus TTL minus a safety margin.
	validUntil atomic.Int64
	lastRenew  atomic.Int64

	mu      sync.Mutex
	runner  *recurring.Runner
	started bool
}

// Compile-time interface check.
var _ Oracle = (*Keeper)(nil)

// NewKeeper creates a keeper for the lease managed by locker.
func NewKeeper(locker Locker, cfg KeeperConfig) *Keeper {
	cfg = cfg.withDefaults()
	return &Keeper{
		cfg:    cfg,
		locker: locker,
		logger: cfg.Logger,
	}
}

// Owner returns the owner ID written into the lease.
func (k *Keeper) Owner() string { return k.cfg.Owner }

// IsExclusiveOwner implements Oracle. Ownership also ends once the last
// grant has run out locally, even before the renewal task notices.
func (k *Keeper) IsExclusiveOwner() bool {
	return k.held.Load() && k.cfg.Now().UnixNano() < k.validUntil.Load()
}

// granted records a grant obtained by a call that started at began.
func (k *Keeper) granted(began time.Time) {
	margin := min(k.cfg.TTL/10, maxExpiryMargin)
	k.lastRenew.Store(began.UnixNano())
	k.validUntil.Store(began.Add(k.cfg.TTL - margin).UnixNano())
}

// Start tries to acquire the lease until AcquireTimeout elapses, then starts
// the renewal task. Failing to acquire is not an error: the keeper simply
// reports false. Only a cancelled ctx aborts Start.
func (k *Keeper) Start(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.started {
		return ErrAlreadyStarted
	}
	k.started = true

	acquired, err := k.acquire(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		k.logger.Warn("maindom: lease held by another process, not exclusive owner",
			"owner", k.cfg.Owner,
			"waited", k.cfg.AcquireTimeout,
		)
		return nil
	}

	k.logger.Info("maindom: lease acquired", "owner", k.cfg.Owner, "ttl", k.cfg.TTL)

	k.runner = recurring.NewRunner(recurring.Config{
		Name:    "maindom",
		Logger:  k.logger,
		Metrics: k.cfg.Metrics,
	})
	if _, err := k.runner.Register(&renewTask{keeper: k}, recurring.Policy{
		InitialDelay: k.cfg.RenewInterval,
		Period:       k.cfg.RenewInterval,
		Async:        true,
		Timeout:      k.cfg.TTL / 2,
	}); err != nil {
		return fmt.Errorf("maindom: register renewal: %w", err)
	}
	return k.runner.Start()
}

func (k *Keeper) acquire(ctx context.Context) (bool, error) {
	deadline := k.cfg.Now().Add(k.cfg.AcquireTimeout)
	for {
		began := k.cfg.Now()
		ok, err := k.locker.Acquire(ctx, k.cfg.Owner, k.cfg.TTL)
		switch {
		case err != nil:
			k.logger.Warn("maindom: acquire attempt failed", "error", err)
		case ok:
			k.granted(began)
			k.held.Store(true)
			return true, nil
		}

		if !k.cfg.Now().Before(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, fmt.Errorf("maindom: acquire: %w", ctx.Err())
		case <-time.After(k.cfg.RetryInterval):
		}
	}
}

// lose drops ownership for the rest of the session.
func (k *Keeper) lose(reason string) {
	if k.held.Swap(false) {
		k.logger.Warn("maindom: exclusive ownership lost", "owner", k.cfg.Owner, "reason", reason)
	}
}

// Stop ends renewals and releases the lease if it is still held.
func (k *Keeper) Stop(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.started {
		return ErrNotStarted
	}

	var errs []error
	if k.runner != nil {
		if err := k.runner.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if k.held.Swap(false) {
		if err := k.locker.Release(ctx, k.cfg.Owner); err != nil {
			errs = append(errs, fmt.Errorf("maindom: release: %w", err))
		} else {
			k.logger.Info("maindom: lease released", "owner", k.cfg.Owner)
		}
	}
	return errors.Join(errs...)
}

// Tasks returns snapshots of the keeper's own renewal task.
func (k *Keeper) Tasks() []recurring.Snapshot {
	k.mu.Lock()
	r := k.runner
	k.mu.Unlock()
	if r == nil {
		return nil
	}
	return r.Snapshots()
}

// renewTask extends the lease on every tick and retires once it is lost.
type renewTask struct {
	keeper *Keeper
}

func (t *renewTask) Name() string { return renewTaskName }

func (t *renewTask) Execute(ctx context.Context) (recurring.Decision, error) {
	k := t.keeper
	if !k.held.Load() {
		return recurring.Retire, nil
	}

	began := k.cfg.Now()
	ok, err := k.locker.Renew(ctx, k.cfg.Owner, k.cfg.TTL)
	if err != nil {
		since := k.cfg.Now().Sub(time.Unix(0, k.lastRenew.Load()))
		if since >= k.cfg.TTL {
			k.lose("lease expired while the store was unreachable")
			return recurring.Retire, nil
		}
		return recurring.Repeat, fmt.Errorf("maindom: renew: %w", err)
	}
	if !ok {
		k.lose("lease taken by another owner")
		return recurring.Retire, nil
	}

	k.granted(began)
	return recurring.Repeat, nil
}
