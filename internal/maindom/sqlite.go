package maindom

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const leaseSchema = `CREATE TABLE IF NOT EXISTS maindom_leases (
	name       TEXT    PRIMARY KEY,
	owner      TEXT    NOT NULL,
	expires_at INTEGER NOT NULL
)`

// SQLiteLocker keeps a lease row in a SQLite database shared by every node
// that competes for the lease (typically a file on shared storage).
type SQLiteLocker struct {
	db    *sql.DB
	lease string
	now   func() time.Time
}

// Compile-time interface check.
var _ Locker = (*SQLiteLocker)(nil)

// NewSQLiteLocker creates the lease table if needed and returns a locker for
// the named lease. A nil now uses time.Now.
func NewSQLiteLocker(ctx context.Context, db *sql.DB, lease string, now func() time.Time) (*SQLiteLocker, error) {
	if lease == "" {
		return nil, errors.New("maindom: lease name must not be empty")
	}
	if now == nil {
		now = time.Now
	}
	if _, err := db.ExecContext(ctx, leaseSchema); err != nil {
		return nil, fmt.Errorf("maindom: create lease table: %w", err)
	}
	return &SQLiteLocker{db: db, lease: lease, now: now}, nil
}

// Acquire implements Locker.
func (l *SQLiteLocker) Acquire(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	now := l.now()
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO maindom_leases (name, owner, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE
			SET owner = excluded.owner, expires_at = excluded.expires_at
			WHERE maindom_leases.owner = excluded.owner OR maindom_leases.expires_at <= ?`,
		l.lease, owner, now.Add(ttl).UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("maindom: acquire %s: %w", l.lease, err)
	}
	return affectedOne(res)
}

// Renew implements Locker.
func (l *SQLiteLocker) Renew(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	res, err := l.db.ExecContext(ctx,
		`UPDATE maindom_leases SET expires_at = ? WHERE name = ? AND owner = ?`,
		l.now().Add(ttl).UnixMilli(), l.lease, owner,
	)
	if err != nil {
		return false, fmt.Errorf("maindom: renew %s: %w", l.lease, err)
	}
	return affectedOne(res)
}

// Release implements Locker.
func (l *SQLiteLocker) Release(ctx context.Context, owner string) error {
	if _, err := l.db.ExecContext(ctx,
		`DELETE FROM maindom_leases WHERE name = ? AND owner = ?`, l.lease, owner,
	); err != nil {
		return fmt.Errorf("maindom: release %s: %w", l.lease, err)
	}
	return nil
}

// Holder returns the current owner of the lease and its expiry.
func (l *SQLiteLocker) Holder(ctx context.Context) (string, time.Time, error) {
	var (
		owner   string
		expires int64
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT owner, expires_at FROM maindom_leases WHERE name = ?`, l.lease,
	).Scan(&owner, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return "", time.Time{}, nil
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("maindom: read %s: %w", l.lease, err)
	}
	return owner, time.UnixMilli(expires), nil
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("maindom: rows affected: %w", err)
	}
	return n == 1, nil
}
