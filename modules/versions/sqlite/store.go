package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/flemzord/sweep/internal/versions"
)

// protectedClause excludes versions no cleanup may touch.
const protectedClause = "current = 0 AND published = 0 AND prevent_cleanup = 0"

// deleteBatch caps the number of bound parameters per DELETE.
const deleteBatch = 500

// Add implements versions.Store. An existing version with the same ID is replaced.
func (s *versionStore) Add(ctx context.Context, v versions.ContentVersion) (string, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO content_versions
			(id, content_id, version_date, current, published, prevent_cleanup)
		VALUES (?, ?, ?, ?, ?, ?)`,
		v.ID, v.ContentID, v.VersionDate.UnixMilli(),
		boolToInt(v.Current), boolToInt(v.Published), boolToInt(v.PreventCleanup),
	)
	if err != nil {
		return "", fmt.Errorf("sqlite: add version: %w", err)
	}
	return v.ID, nil
}

// List implements versions.Store.
func (s *versionStore) List(ctx context.Context, contentID string) ([]versions.ContentVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content_id, version_date, current, published, prevent_cleanup
		FROM content_versions
		WHERE content_id = ?
		ORDER BY version_date DESC, id DESC`,
		contentID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanVersions(rows)
}

// Candidates implements versions.Store.
func (s *versionStore) Candidates(ctx context.Context, olderThan time.Time) ([]versions.ContentVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content_id, version_date, current, published, prevent_cleanup
		FROM content_versions
		WHERE version_date < ? AND `+protectedClause+`
		ORDER BY content_id, version_date`,
		olderThan.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanVersions(rows)
}

// Delete implements versions.Store. All batches run in one transaction.
func (s *versionStore) Delete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	total := 0
	for start := 0; start < len(ids); start += deleteBatch {
		batch := ids[start:min(start+deleteBatch, len(ids))]
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",")

		res, err := tx.ExecContext(ctx,
			"DELETE FROM content_versions WHERE id IN ("+placeholders+") AND "+protectedClause,
			args...,
		)
		if err != nil {
			return 0, fmt.Errorf("sqlite: delete versions: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("sqlite: rows affected: %w", err)
		}
		total += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit delete: %w", err)
	}
	return total, nil
}

// Len implements versions.Store.
func (s *versionStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM content_versions").Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count versions: %w", err)
	}
	return n, nil
}

func scanVersions(rows *sql.Rows) ([]versions.ContentVersion, error) {
	var out []versions.ContentVersion
	for rows.Next() {
		var (
			v                             versions.ContentVersion
			dateMS                        int64
			current, published, preventCl int
		)
		if err := rows.Scan(&v.ID, &v.ContentID, &dateMS, &current, &published, &preventCl); err != nil {
			return nil, fmt.Errorf("sqlite: scan version: %w", err)
		}
		v.VersionDate = time.UnixMilli(dateMS).UTC()
		v.Current = current != 0
		v.Published = published != 0
		v.PreventCleanup = preventCl != 0
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate versions: %w", err)
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
