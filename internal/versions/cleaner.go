package versions

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Cleaner applies a Policy to a Store.
type Cleaner struct {
	store  Store
	logger *slog.Logger
}

// NewCleaner returns a Cleaner over store.
func NewCleaner(store Store, logger *slog.Logger) *Cleaner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cleaner{store: store, logger: logger}
}

// Cleanup removes the versions policy selects as of asAt and returns them.
func (c *Cleaner) Cleanup(ctx context.Context, asAt time.Time, policy Policy) ([]ContentVersion, error) {
	candidates, err := c.store.Candidates(ctx, policy.KeepAllCutoff(asAt))
	if err != nil {
		return nil, fmt.Errorf("versions: list candidates: %w", err)
	}

	remove := policy.Select(candidates, asAt)
	if len(remove) == 0 {
		return nil, nil
	}

	ids := make([]string, len(remove))
	for i, v := range remove {
		ids[i] = v.ID
	}
	n, err := c.store.Delete(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("versions: delete: %w", err)
	}
	if n != len(remove) {
		c.logger.Warn("versions: some selected versions were not removed",
			"selected", len(remove),
			"removed", n,
		)
	}
	return remove, nil
}
