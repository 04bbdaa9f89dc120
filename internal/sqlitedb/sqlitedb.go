// Package sqlitedb opens SQLite databases with the pragmas every sweep
// store expects. It uses modernc.org/sqlite (pure Go, no CGO).
package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver registration
)

// DefaultBusyTimeout is the lock wait in milliseconds used when none is configured.
const DefaultBusyTimeout = 5000

// Options controls how a database is opened.
type Options struct {
	// WAL enables WAL journal mode.
	WAL bool

	// BusyTimeout is the milliseconds to wait on a busy lock.
	// Zero means DefaultBusyTimeout.
	BusyTimeout int
}

// Open opens (creating if needed) the database at path. The pool is limited
// to one connection because SQLite serialises writers and PRAGMAs are
// per-connection.
func Open(ctx context.Context, path string, opts Options) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if opts.WAL {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
		}
	}

	busy := opts.BusyTimeout
	if busy == 0 {
		busy = DefaultBusyTimeout
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", busy)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set busy_timeout: %w", err)
	}

	return db, nil
}
