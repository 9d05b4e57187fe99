package sync

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/storesync/backend/internal/domain/integration"
)

// JobFilter narrows job listings for the admin surface
type JobFilter struct {
	Mode     *Mode
	State    *State
	Page     int
	PageSize int
}

// JobRepository is the persistence interface for sync jobs. Claiming and
// reclamation run under a system-wide advisory lock held only for the brief
// claim-and-mark step, never across job I/O.
type JobRepository interface {
	// EnqueueDeduped persists the job in queued state unless a queued job
	// with the same (mode, selector) already exists. Returns false when the
	// enqueue was coalesced into the existing row.
	EnqueueDeduped(ctx context.Context, job *Job) (bool, error)

	// ClaimNextQueued atomically claims the oldest queued job and marks it
	// running. Ties are broken by higher retry_attempts first so retries
	// drain before fresh work. Returns nil when the queue is empty, another
	// process holds the claim lock, or a job is already running.
	ClaimNextQueued(ctx context.Context) (*Job, error)

	// ReclaimStale requeues running jobs whose heartbeat is older than
	// idleThreshold, or fails them once their retry budget is spent.
	// Returns (requeued, failed).
	ReclaimStale(ctx context.Context, idleThreshold time.Duration, maxRetries int) (int, int, error)

	// Heartbeat touches the job row even absent progress
	Heartbeat(ctx context.Context, id uuid.UUID) error

	// SaveProgress persists the job's counters mid-run
	SaveProgress(ctx context.Context, job *Job) error

	// Finish persists a state transition with its bookkeeping columns:
	// terminal writes and the failed→queued requeue
	Finish(ctx context.Context, job *Job) error

	// FindByID loads one job
	FindByID(ctx context.Context, id uuid.UUID) (*Job, error)

	// List returns jobs matching the filter, newest first, with total count
	List(ctx context.Context, filter JobFilter) ([]Job, int64, error)

	// CountRunning counts jobs currently in running state
	CountRunning(ctx context.Context) (int64, error)

	// HasRecentActivity reports whether any of the modes has a success,
	// queued or running job younger than window, the scheduler's liveness
	// probe input
	HasRecentActivity(ctx context.Context, modes []Mode, window time.Duration) (bool, error)

	// PruneOld deletes terminal jobs older than maxAge, always keeping the
	// newest keep rows. Job rows are audit hints, not a system of record.
	PruneOld(ctx context.Context, maxAge time.Duration, keep int) (int64, error)
}

// WatermarkStore tracks the last successful import instant per resource
// kind, feeding "changed since" queries
type WatermarkStore interface {
	// Get returns the stored watermark, nil when the resource was never
	// imported
	Get(ctx context.Context, resource integration.ResourceKind) (*time.Time, error)

	// Advance moves the watermark forward; it never moves backwards
	Advance(ctx context.Context, resource integration.ResourceKind, to time.Time) error
}

// SinceWatermark computes the filter instant for a "changed since" pull:
// the stored watermark minus a small skew, because the platform's own search
// index may lag its transactional writes. Returns nil when no watermark
// exists yet (full import).
func SinceWatermark(stored *time.Time, lookbackSkew time.Duration) *time.Time {
	if stored == nil {
		return nil
	}
	t := stored.Add(-lookbackSkew)
	return &t
}
