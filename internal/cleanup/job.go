// Package cleanup schedules the periodic pruning of historic content
// versions. The job runs on the exclusive owner only.
package cleanup

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/flemzord/sweep/internal/gate"
	"github.com/flemzord/sweep/internal/versions"
)

// TaskName is the name the job registers under.
const TaskName = "cleanup.content_versions"

// ContentVersionCleanup prunes content versions according to a policy that
// can be swapped while the job is scheduled.
type ContentVersionCleanup struct {
	cleaner *versions.Cleaner
	policy  atomic.Pointer[versions.Policy]
	logger  *slog.Logger
	now     func() time.Time
}

// Compile-time interface check.
var _ gate.Job = (*ContentVersionCleanup)(nil)

// NewContentVersionCleanup creates the job over store.
func NewContentVersionCleanup(store versions.Store, policy versions.Policy, logger *slog.Logger) *ContentVersionCleanup {
	if logger == nil {
		logger = slog.Default()
	}
	j := &ContentVersionCleanup{
		cleaner: versions.NewCleaner(store, logger),
		logger:  logger,
		now:     time.Now,
	}
	j.SetPolicy(policy)
	return j
}

// Name implements gate.Job.
func (j *ContentVersionCleanup) Name() string { return TaskName }

// Policy returns the active policy.
func (j *ContentVersionCleanup) Policy() versions.Policy { return *j.policy.Load() }

// SetPolicy replaces the policy used from the next run on.
func (j *ContentVersionCleanup) SetPolicy(p versions.Policy) { j.policy.Store(&p) }

// Run implements gate.Job.
func (j *ContentVersionCleanup) Run(ctx context.Context) error {
	j.logger.Info("cleanup: starting content version cleanup")

	removed, err := j.cleaner.Cleanup(ctx, j.now().UTC(), j.Policy())
	if err != nil {
		return err
	}

	j.logger.Info("cleanup: finished content version cleanup", "removed", len(removed))
	return nil
}
