package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storesync/backend/internal/domain/sync"
	"github.com/storesync/backend/internal/infrastructure/persistence/models"
)

// claimLockKey is the advisory lock serializing queue claims and enqueue
// deduplication across processes. Held only for the claim-and-mark step,
// never across remote I/O.
const claimLockKey int64 = 0x53594E43 // "SYNC"

// GormSyncJobRepository implements sync.JobRepository using GORM
type GormSyncJobRepository struct {
	db *gorm.DB
}

// NewGormSyncJobRepository creates a new GormSyncJobRepository
func NewGormSyncJobRepository(db *gorm.DB) *GormSyncJobRepository {
	return &GormSyncJobRepository{db: db}
}

// Interface compliance check
var _ sync.JobRepository = (*GormSyncJobRepository)(nil)

// EnqueueDeduped persists the job in queued state unless a queued job with
// the same (mode, selector) already exists. The check and insert run under
// the claim lock so two concurrent webhooks cannot both insert.
func (r *GormSyncJobRepository) EnqueueDeduped(ctx context.Context, job *sync.Job) (bool, error) {
	inserted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", claimLockKey).Error; err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&models.SyncJobModel{}).
			Where("mode = ? AND selector_key = ? AND state = ?", job.Mode, job.Selector.Key(), sync.StateQueued).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		if err := tx.Create(models.SyncJobModelFromDomain(job)).Error; err != nil {
			return err
		}
		inserted = true
		return nil
	})
	return inserted, err
}

// ClaimNextQueued atomically claims the oldest queued job and marks it
// running. Retried jobs drain before fresh work: ordering is by
// retry_attempts descending, then creation time. Returns nil when the queue
// is empty, another process holds the claim lock, or a job is already
// running anywhere in the system: at most one job runs at any instant.
func (r *GormSyncJobRepository) ClaimNextQueued(ctx context.Context) (*sync.Job, error) {
	var claimed *sync.Job
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked bool
		if err := tx.Raw("SELECT pg_try_advisory_xact_lock(?)", claimLockKey).Scan(&locked).Error; err != nil {
			return err
		}
		if !locked {
			return nil
		}

		var running int64
		if err := tx.Model(&models.SyncJobModel{}).
			Where("state = ?", sync.StateRunning).
			Count(&running).Error; err != nil {
			return err
		}
		if running > 0 {
			return nil
		}

		var model models.SyncJobModel
		err := tx.Where("state = ?", sync.StateQueued).
			Order("retry_attempts DESC, created_at ASC").
			First(&model).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		job := model.ToDomain()
		if err := job.Start(); err != nil {
			return err
		}

		model.FromDomain(job)
		if err := tx.Model(&models.SyncJobModel{}).
			Where("id = ? AND state = ?", model.ID, sync.StateQueued).
			Updates(map[string]any{
				"state":         model.State,
				"start_time":    model.StartTime,
				"heartbeat_at":  model.HeartbeatAt,
				"error_message": "",
				"error_kind":    "",
				"error_context": "",
				"updated_at":    model.UpdatedAt,
			}).Error; err != nil {
			return err
		}

		claimed = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// ReclaimStale requeues running jobs whose heartbeat is older than
// idleThreshold, or fails them once their retry budget is spent.
func (r *GormSyncJobRepository) ReclaimStale(ctx context.Context, idleThreshold time.Duration, maxRetries int) (int, int, error) {
	cutoff := time.Now().Add(-idleThreshold)
	now := time.Now()

	var requeued, failed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.SyncJobModel{}).
			Where("state = ? AND COALESCE(heartbeat_at, created_at) < ? AND retry_attempts < ?",
				sync.StateRunning, cutoff, maxRetries).
			Updates(map[string]any{
				"state":          sync.StateQueued,
				"retry_attempts": gorm.Expr("retry_attempts + 1"),
				"start_time":     nil,
				"end_time":       nil,
				"heartbeat_at":   nil,
				"updated_at":     now,
			})
		if res.Error != nil {
			return res.Error
		}
		requeued = res.RowsAffected

		res = tx.Model(&models.SyncJobModel{}).
			Where("state = ? AND COALESCE(heartbeat_at, created_at) < ?", sync.StateRunning, cutoff).
			Updates(map[string]any{
				"state":         sync.StateFailed,
				"end_time":      now,
				"error_message": "job abandoned without heartbeat, retry budget exhausted",
				"error_kind":    "TRANSIENT",
				"updated_at":    now,
			})
		if res.Error != nil {
			return res.Error
		}
		failed = res.RowsAffected
		return nil
	})
	return int(requeued), int(failed), err
}

// Heartbeat touches the job row even absent progress
func (r *GormSyncJobRepository) Heartbeat(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&models.SyncJobModel{}).
		Where("id = ?", id).
		Updates(map[string]any{"heartbeat_at": now, "updated_at": now}).Error
}

// SaveProgress persists the job's counters mid-run, refreshing the heartbeat
func (r *GormSyncJobRepository) SaveProgress(ctx context.Context, job *sync.Job) error {
	job.Touch()
	return r.db.WithContext(ctx).Model(&models.SyncJobModel{}).
		Where("id = ?", job.ID).
		Updates(map[string]any{
			"total_count":   job.TotalCount,
			"updated_count": job.UpdatedCount,
			"heartbeat_at":  job.HeartbeatAt,
			"updated_at":    job.UpdatedAt,
		}).Error
}

// Finish persists a state transition with its bookkeeping columns. The
// scheduler uses it for terminal writes and for the failed→queued requeue.
func (r *GormSyncJobRepository) Finish(ctx context.Context, job *sync.Job) error {
	model := models.SyncJobModelFromDomain(job)
	return r.db.WithContext(ctx).Model(&models.SyncJobModel{}).
		Where("id = ?", model.ID).
		Updates(map[string]any{
			"state":          model.State,
			"total_count":    model.TotalCount,
			"updated_count":  model.UpdatedCount,
			"retry_attempts": model.RetryAttempts,
			"start_time":     model.StartTime,
			"end_time":       model.EndTime,
			"heartbeat_at":   model.HeartbeatAt,
			"error_message":  model.ErrorMessage,
			"error_kind":     model.ErrorKind,
			"error_context":  model.ErrorContext,
			"updated_at":     model.UpdatedAt,
		}).Error
}

// FindByID loads one job
func (r *GormSyncJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*sync.Job, error) {
	var model models.SyncJobModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sync.ErrJobNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// List returns jobs matching the filter, newest first, with total count
func (r *GormSyncJobRepository) List(ctx context.Context, filter sync.JobFilter) ([]sync.Job, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.SyncJobModel{})
	if filter.Mode != nil {
		query = query.Where("mode = ?", *filter.Mode)
	}
	if filter.State != nil {
		query = query.Where("state = ?", *filter.State)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	var jobModels []models.SyncJobModel
	if err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&jobModels).Error; err != nil {
		return nil, 0, err
	}

	jobs := make([]sync.Job, len(jobModels))
	for i := range jobModels {
		jobs[i] = *jobModels[i].ToDomain()
	}
	return jobs, total, nil
}

// CountRunning counts jobs currently in running state
func (r *GormSyncJobRepository) CountRunning(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.SyncJobModel{}).
		Where("state = ?", sync.StateRunning).
		Count(&count).Error
	return count, err
}

// HasRecentActivity reports whether any of the modes has a success, queued
// or running job younger than window
func (r *GormSyncJobRepository) HasRecentActivity(ctx context.Context, modes []sync.Mode, window time.Duration) (bool, error) {
	since := time.Now().Add(-window)
	var count int64
	err := r.db.WithContext(ctx).Model(&models.SyncJobModel{}).
		Where("mode IN ?", modes).
		Where("state IN ? OR (state = ? AND end_time >= ?)",
			[]sync.State{sync.StateQueued, sync.StateRunning}, sync.StateSuccess, since).
		Count(&count).Error
	return count > 0, err
}

// PruneOld deletes terminal jobs older than maxAge, always keeping the
// newest keep rows per mode
func (r *GormSyncJobRepository) PruneOld(ctx context.Context, maxAge time.Duration, keep int) (int64, error) {
	cutoff := time.Now().Add(-maxAge)
	res := r.db.WithContext(ctx).Exec(`
		DELETE FROM sync_jobs
		WHERE id IN (
			SELECT id FROM (
				SELECT id,
				       ROW_NUMBER() OVER (PARTITION BY mode ORDER BY created_at DESC) AS rank
				FROM sync_jobs
				WHERE state IN ('success', 'failed') AND created_at < ?
			) ranked
			WHERE ranked.rank > ?
		)`, cutoff, keep)
	return res.RowsAffected, res.Error
}
