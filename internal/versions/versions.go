// Package versions models content versions and the policy deciding which
// historic versions may be pruned.
package versions

import (
	"context"
	"errors"
	"time"
)

// ErrVersionNotFound indicates the requested version does not exist.
var ErrVersionNotFound = errors.New("versions: version not found")

// ContentVersion is one saved revision of a content item.
type ContentVersion struct {
	ID          string    `json:"id"`
	ContentID   string    `json:"content_id"`
	VersionDate time.Time `json:"version_date"`

	// Current marks the draft being edited. Never pruned.
	Current bool `json:"current"`

	// Published marks the live revision. Never pruned.
	Published bool `json:"published"`

	// PreventCleanup pins a revision an editor chose to keep. Never pruned.
	PreventCleanup bool `json:"prevent_cleanup"`
}

// Protected reports whether the version must survive every cleanup.
func (v ContentVersion) Protected() bool {
	return v.Current || v.Published || v.PreventCleanup
}

// Store persists content versions.
// Implementations must be safe for concurrent use.
type Store interface {
	// Add stores a version. An empty ID is replaced by a generated one,
	// which is returned.
	Add(ctx context.Context, v ContentVersion) (string, error)

	// List returns the versions of one content item, newest first.
	List(ctx context.Context, contentID string) ([]ContentVersion, error)

	// Candidates returns every unprotected version dated before olderThan.
	Candidates(ctx context.Context, olderThan time.Time) ([]ContentVersion, error)

	// Delete removes the versions with the given IDs and returns how many
	// were removed. Protected versions are skipped.
	Delete(ctx context.Context, ids []string) (int, error)

	// Len returns the total number of stored versions.
	Len(ctx context.Context) (int, error)
}
