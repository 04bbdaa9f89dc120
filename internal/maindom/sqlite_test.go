package maindom

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/sweep/internal/sqlitedb"
)

func newTestLocker(t *testing.T, path string, now func() time.Time) *SQLiteLocker {
	t.Helper()
	db, err := sqlitedb.Open(t.Context(), path, sqlitedb.Options{WAL: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	l, err := NewSQLiteLocker(t.Context(), db, "maindom", now)
	if err != nil {
		t.Fatalf("NewSQLiteLocker: %v", err)
	}
	return l
}

func TestSQLiteLocker_Exclusive(t *testing.T) {
	t.Parallel()

	var (
		mu  sync.Mutex
		now = time.UnixMilli(1_700_000_000_000)
	)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	path := filepath.Join(t.TempDir(), "lease.db")
	a := newTestLocker(t, path, clock)
	b := newTestLocker(t, path, clock)
	ctx := t.Context()
	ttl := 10 * time.Second

	ok, err := a.Acquire(ctx, "node-a", ttl)
	if err != nil || !ok {
		t.Fatalf("a.Acquire = %v, %v; want true", ok, err)
	}
	ok, err = b.Acquire(ctx, "node-b", ttl)
	if err != nil || ok {
		t.Fatalf("b.Acquire on a held lease = %v, %v; want false", ok, err)
	}
	// Re-acquiring by the holder is allowed.
	if ok, _ := a.Acquire(ctx, "node-a", ttl); !ok {
		t.Error("holder should be able to re-acquire")
	}
	if ok, _ := b.Renew(ctx, "node-b", ttl); ok {
		t.Error("non-holder must not renew")
	}
	if ok, _ := a.Renew(ctx, "node-a", ttl); !ok {
		t.Error("holder should renew")
	}

	owner, expires, err := b.Holder(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if owner != "node-a" || !expires.Equal(clock().Add(ttl)) {
		t.Errorf("Holder() = %q, %s", owner, expires)
	}

	// Once expired, another node can take over and the old holder cannot renew.
	mu.Lock()
	now = now.Add(ttl)
	mu.Unlock()
	if ok, _ := b.Acquire(ctx, "node-b", ttl); !ok {
		t.Fatal("b should acquire an expired lease")
	}
	if ok, _ := a.Renew(ctx, "node-a", ttl); ok {
		t.Error("old holder must not renew after takeover")
	}

	// Release by a non-holder is a no-op.
	if err := a.Release(ctx, "node-a"); err != nil {
		t.Fatal(err)
	}
	if owner, _, _ := a.Holder(ctx); owner != "node-b" {
		t.Errorf("holder after foreign release = %q, want node-b", owner)
	}
	if err := b.Release(ctx, "node-b"); err != nil {
		t.Fatal(err)
	}
	if owner, _, _ := a.Holder(ctx); owner != "" {
		t.Errorf("holder after release = %q, want none", owner)
	}
}

func TestSQLiteLocker_TwoKeepers(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "lease.db")
	cfg := KeeperConfig{
		TTL:            time.Second,
		RenewInterval:  20 * time.Millisecond,
		AcquireTimeout: 50 * time.Millisecond,
		RetryInterval:  10 * time.Millisecond,
		Logger:         slog.New(slog.DiscardHandler),
	}

	first := NewKeeper(newTestLocker(t, path, nil), cfg)
	second := NewKeeper(newTestLocker(t, path, nil), cfg)

	if err := first.Start(t.Context()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = first.Stop(context.Background()) })
	if err := second.Start(t.Context()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = second.Stop(context.Background()) })

	if !first.IsExclusiveOwner() {
		t.Error("first keeper should own the lease")
	}
	if second.IsExclusiveOwner() {
		t.Error("second keeper must not own the lease at the same time")
	}
}

func TestNewSQLiteLocker_EmptyLease(t *testing.T) {
	t.Parallel()

	db, err := sqlitedb.Open(t.Context(), filepath.Join(t.TempDir(), "x.db"), sqlitedb.Options{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := NewSQLiteLocker(t.Context(), db, "", nil); err == nil {
		t.Error("empty lease name should fail")
	}
}
