package maindom

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// fakeLocker is a scriptable Locker.
type fakeLocker struct {
	mu         sync.Mutex
	acquireOK  bool
	acquireErr error
	renewOK    bool
	renewErr   error
	acquires   int
	renews     int
	releases   int

	// onAcquire runs inside Acquire, before it returns.
	onAcquire func()
}

func (f *fakeLocker) Acquire(_ context.Context, _ string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	f.acquires++
	ok, err, hook := f.acquireOK, f.acquireErr, f.onAcquire
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return ok, err
}

func (f *fakeLocker) Renew(_ context.Context, _ string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renews++
	return f.renewOK, f.renewErr
}

func (f *fakeLocker) Release(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
	return nil
}

func (f *fakeLocker) set(fn func(f *fakeLocker)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeLocker) counts() (acquires, renews, releases int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquires, f.renews, f.releases
}

func testKeeperConfig() KeeperConfig {
	return KeeperConfig{
		TTL:            100 * time.Millisecond,
		RenewInterval:  10 * time.Millisecond,
		AcquireTimeout: 30 * time.Millisecond,
		RetryInterval:  5 * time.Millisecond,
		Logger:         slog.New(slog.DiscardHandler),
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestKeeper_AcquireRenewRelease(t *testing.T) {
	t.Parallel()

	locker := &fakeLocker{acquireOK: true, renewOK: true}
	k := NewKeeper(locker, testKeeperConfig())

	if k.IsExclusiveOwner() {
		t.Fatal("keeper must not own before Start")
	}
	if err := k.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !k.IsExclusiveOwner() {
		t.Fatal("keeper should own after a successful acquire")
	}
	if err := k.Start(t.Context()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}

	waitFor(t, func() bool { _, renews, _ := locker.counts(); return renews >= 3 })
	if !k.IsExclusiveOwner() {
		t.Error("keeper should still own after renewals")
	}
	if tasks := k.Tasks(); len(tasks) != 1 || tasks[0].Name != renewTaskName {
		t.Errorf("Tasks() = %+v, want the renewal task", tasks)
	}

	if err := k.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if k.IsExclusiveOwner() {
		t.Error("keeper must not own after Stop")
	}
	if _, _, releases := locker.counts(); releases != 1 {
		t.Errorf("releases = %d, want 1", releases)
	}
}

func TestKeeper_AcquireTimeout(t *testing.T) {
	t.Parallel()

	locker := &fakeLocker{acquireOK: false}
	k := NewKeeper(locker, testKeeperConfig())

	if err := k.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if k.IsExclusiveOwner() {
		t.Fatal("keeper must not own a lease held elsewhere")
	}
	if acquires, _, _ := locker.counts(); acquires < 2 {
		t.Errorf("acquires = %d, want retries until the timeout", acquires)
	}
	if err := k.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, _, releases := locker.counts(); releases != 0 {
		t.Errorf("releases = %d, want 0 for a lease never held", releases)
	}
}

func TestKeeper_AcquireCancelled(t *testing.T) {
	t.Parallel()

	cfg := testKeeperConfig()
	cfg.AcquireTimeout = time.Hour
	k := NewKeeper(&fakeLocker{acquireErr: errors.New("store down")}, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := k.Start(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Start = %v, want deadline exceeded", err)
	}
}

func TestKeeper_LossIsPermanent(t *testing.T) {
	t.Parallel()

	locker := &fakeLocker{acquireOK: true, renewOK: true}
	k := NewKeeper(locker, testKeeperConfig())
	if err := k.Start(t.Context()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = k.Stop(context.Background()) })

	locker.set(func(f *fakeLocker) { f.renewOK = false })
	waitFor(t, func() bool { return !k.IsExclusiveOwner() })

	// The lease coming back does not restore ownership within the session.
	locker.set(func(f *fakeLocker) { f.renewOK = true; f.acquireOK = true })
	_, renewsAtLoss, _ := locker.counts()
	time.Sleep(50 * time.Millisecond)
	if k.IsExclusiveOwner() {
		t.Fatal("ownership must not come back after loss")
	}
	if _, renews, _ := locker.counts(); renews != renewsAtLoss {
		t.Errorf("renewals continued after loss: %d -> %d", renewsAtLoss, renews)
	}
}

func TestKeeper_StoreErrorsUntilExpiry(t *testing.T) {
	t.Parallel()

	var (
		mu  sync.Mutex
		now = time.Unix(1_700_000_000, 0)
	)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}

	cfg := testKeeperConfig()
	cfg.Now = clock
	locker := &fakeLocker{acquireOK: true, renewErr: errors.New("timeout")}
	k := NewKeeper(locker, cfg)
	if err := k.Start(t.Context()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = k.Stop(context.Background()) })

	waitFor(t, func() bool { _, renews, _ := locker.counts(); return renews >= 2 })
	if !k.IsExclusiveOwner() {
		t.Fatal("transient renew errors within the TTL must keep ownership")
	}

	advance(cfg.TTL)
	waitFor(t, func() bool { return !k.IsExclusiveOwner() })
}

// fakeClock is a manually advanced clock for KeeperConfig.Now.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestKeeper_OwnershipEndsWithUnrenewedLease(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	cfg := testKeeperConfig()
	cfg.Now = clock.Now
	locker := &fakeLocker{acquireOK: true, renewErr: errors.New("store down")}
	// The store grants the lease when the call starts; the reply arrives later.
	locker.onAcquire = func() { clock.Advance(20 * time.Millisecond) }
	k := NewKeeper(locker, cfg)
	if err := k.Start(t.Context()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = k.Stop(context.Background()) })

	if !k.IsExclusiveOwner() {
		t.Fatal("keeper should own right after acquiring")
	}

	// Lease granted at t0 runs out at t0+TTL; the keeper stops claiming it a
	// margin earlier, measured from the start of the acquire call.
	margin := cfg.TTL / 10
	clock.Advance(cfg.TTL - margin - 20*time.Millisecond)
	if k.IsExclusiveOwner() {
		t.Fatal("keeper must not claim a lease past its local expiry without a successful renew")
	}
	if !k.held.Load() {
		t.Error("renewal task should not have given up yet; expiry alone must end ownership")
	}
}

func TestKeeper_RenewExtendsOwnership(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	cfg := testKeeperConfig()
	cfg.Now = clock.Now
	locker := &fakeLocker{acquireOK: true, renewOK: true}
	k := NewKeeper(locker, cfg)
	if err := k.Start(t.Context()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = k.Stop(context.Background()) })

	clock.Advance(cfg.TTL / 2)
	_, before, _ := locker.counts()
	waitFor(t, func() bool { _, renews, _ := locker.counts(); return renews > before+1 })

	clock.Advance(cfg.TTL / 2)
	if !k.IsExclusiveOwner() {
		t.Error("a renewed lease should stay owned past the first grant's expiry")
	}
}

func TestKeeperConfig_Validate(t *testing.T) {
	t.Parallel()

	if err := (KeeperConfig{}).Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
	bad := KeeperConfig{TTL: time.Second, RenewInterval: 2 * time.Second}
	if err := bad.Validate(); err == nil {
		t.Error("renew interval longer than ttl should fail")
	}
	tight := KeeperConfig{TTL: time.Second, RenewInterval: 950 * time.Millisecond}
	if err := tight.Validate(); err == nil {
		t.Error("renew interval inside the expiry margin should fail")
	}
}

func TestStatic(t *testing.T) {
	t.Parallel()

	s := NewStatic(true)
	if !s.IsExclusiveOwner() {
		t.Error("NewStatic(true) should own")
	}
	s.Set(false)
	if s.IsExclusiveOwner() {
		t.Error("Set(false) should drop ownership")
	}
}
