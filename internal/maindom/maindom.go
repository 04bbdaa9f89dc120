// Package maindom answers whether this process is the exclusive owner of
// singleton work in the deployment.
//
// The package does not elect anything. A Keeper holds a TTL lease in a
// shared store through a Locker; IsExclusiveOwner only reads the state the
// keeper maintains in the background and the local expiry of its last grant.
package maindom

import (
	"context"
	"sync/atomic"
	"time"
)

// Oracle reports exclusive ownership. IsExclusiveOwner must be cheap and
// non-blocking; callers treat false as authoritative.
type Oracle interface {
	IsExclusiveOwner() bool
}

// Static is an Oracle with a fixed answer, for standalone nodes and tests.
type Static struct {
	owner atomic.Bool
}

// NewStatic returns a Static oracle reporting owner.
func NewStatic(owner bool) *Static {
	s := &Static{}
	s.owner.Store(owner)
	return s
}

// IsExclusiveOwner implements Oracle.
func (s *Static) IsExclusiveOwner() bool { return s.owner.Load() }

// Set changes the answer.
func (s *Static) Set(owner bool) { s.owner.Store(owner) }

// Locker manages one named lease in a shared store.
type Locker interface {
	// Acquire takes the lease for owner if it is free or expired, or already
	// held by owner. It reports whether owner holds the lease afterwards.
	Acquire(ctx context.Context, owner string, ttl time.Duration) (bool, error)

	// Renew extends a lease held by owner. It reports false if another owner
	// holds the lease or the lease no longer exists.
	Renew(ctx context.Context, owner string, ttl time.Duration) (bool, error)

	// Release gives up the lease if owner holds it.
	Release(ctx context.Context, owner string) error
}
