package sync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/storesync/backend/internal/domain/integration"
	syncdomain "github.com/storesync/backend/internal/domain/sync"
	"github.com/storesync/backend/internal/infrastructure/config"
	"github.com/storesync/backend/internal/infrastructure/telemetry"
)

// retryDelayUnit is the linear backoff step between retry attempts: the
// first requeue waits one unit, the second two, and so on
const retryDelayUnit = 5 * time.Second

// pruneInterval is how often the scheduler garbage-collects terminal jobs
const pruneInterval = time.Hour

// JobHandler executes one claimed job and reports its counters
type JobHandler func(ctx context.Context, job *syncdomain.Job) (Totals, error)

// FailureNotifier is called once when a job first fails and once more when
// its retry budget is exhausted; intermediate retry failures stay quiet
type FailureNotifier func(job *syncdomain.Job)

// Scheduler owns the job queue: it enqueues with deduplication, claims one
// job at a time under the database advisory lock, runs the mode's handler,
// writes the terminal state and advances watermarks. It is safe to run one
// Scheduler per process; the claim lock serializes them.
type Scheduler struct {
	jobs       syncdomain.JobRepository
	watermarks syncdomain.WatermarkStore
	handlers   map[syncdomain.Mode]JobHandler
	cfg        config.SyncConfig
	logger     *zap.Logger
	metrics    *telemetry.SyncMetrics

	notify FailureNotifier
	sleep  func(ctx context.Context, d time.Duration) error
}

// SchedulerOption customizes scheduler construction
type SchedulerOption func(*Scheduler)

// WithFailureNotifier installs the one-time failure notification hook
func WithFailureNotifier(n FailureNotifier) SchedulerOption {
	return func(s *Scheduler) { s.notify = n }
}

// WithSleep replaces the retry backoff sleep, for tests
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) SchedulerOption {
	return func(s *Scheduler) { s.sleep = sleep }
}

// NewScheduler creates a scheduler over the given handler map. The map is
// the complete mode dispatch table; a queued job whose mode is absent fails
// terminally.
func NewScheduler(
	jobs syncdomain.JobRepository,
	watermarks syncdomain.WatermarkStore,
	handlers map[syncdomain.Mode]JobHandler,
	cfg config.SyncConfig,
	metrics *telemetry.SyncMetrics,
	log *zap.Logger,
	opts ...SchedulerOption,
) *Scheduler {
	s := &Scheduler{
		jobs:       jobs,
		watermarks: watermarks,
		handlers:   handlers,
		cfg:        cfg,
		logger:     log,
		metrics:    metrics,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Enqueue creates a queued job unless an identical (mode, selector) job is
// already queued. Returns the job and whether a new row was inserted; a
// coalesced enqueue returns (nil, false, nil).
func (s *Scheduler) Enqueue(ctx context.Context, mode syncdomain.Mode, selector syncdomain.Selector) (*syncdomain.Job, bool, error) {
	job, err := syncdomain.NewJob(mode, selector)
	if err != nil {
		return nil, false, err
	}
	if err := job.Queue(); err != nil {
		return nil, false, err
	}

	inserted, err := s.jobs.EnqueueDeduped(ctx, job)
	if err != nil {
		return nil, false, err
	}
	if !inserted {
		s.logger.Debug("enqueue coalesced into existing queued job",
			zap.String("mode", mode.String()),
			zap.String("selector", selector.Key()))
		return nil, false, nil
	}
	return job, true, nil
}

// DispatchNext reclaims stale jobs, claims the next queued job and runs it
// to a terminal state. Returns whether a job was dispatched. When the queue
// is drained it performs the liveness check: if neither primary periodic
// mode has recent activity, a fresh periodic job is enqueued so the
// subsystem heals itself after any gap.
func (s *Scheduler) DispatchNext(ctx context.Context) (bool, error) {
	requeued, failed, err := s.jobs.ReclaimStale(ctx, s.cfg.IdleThreshold, s.cfg.MaxRetries)
	if err != nil {
		return false, fmt.Errorf("reclaiming stale jobs: %w", err)
	}
	if requeued > 0 || failed > 0 {
		s.logger.Warn("reclaimed stale jobs",
			zap.Int("requeued", requeued),
			zap.Int("failed", failed))
	}

	job, err := s.jobs.ClaimNextQueued(ctx)
	if err != nil {
		return false, fmt.Errorf("claiming queued job: %w", err)
	}
	if job == nil {
		if err := s.ensureLiveness(ctx); err != nil {
			s.logger.Error("liveness re-enqueue failed", zap.Error(err))
		}
		return false, nil
	}

	s.execute(ctx, job)
	return true, nil
}

// execute runs one claimed job to a terminal state. All I/O happens here,
// after the claim lock is already released.
func (s *Scheduler) execute(ctx context.Context, job *syncdomain.Job) {
	log := s.logger.With(
		zap.String("job_id", job.ID.String()),
		zap.String("mode", job.Mode.String()),
		zap.Int("retry_attempts", job.RetryAttempts))
	log.Info("job started")
	if s.metrics != nil {
		s.metrics.RecordJobStarted(ctx, job.Mode.String())
	}
	started := time.Now()

	handler, ok := s.handlers[job.Mode]
	if !ok {
		s.finishFailed(ctx, job, integration.NewSyncError(
			integration.ErrorKindFatal,
			fmt.Sprintf("no handler registered for mode %q", job.Mode), nil, nil), log)
		s.observeFinished(ctx, job, started)
		return
	}

	totals, err := handler(ctx, job)
	if err != nil {
		s.finishFailed(ctx, job, integration.WrapSyncError(err, nil), log)
		s.observeFinished(ctx, job, started)
		return
	}

	if err := job.Succeed(totals.Total, totals.Updated); err != nil {
		log.Error("success transition refused", zap.Error(err))
		return
	}
	if err := s.jobs.Finish(ctx, job); err != nil {
		log.Error("persisting job success failed", zap.Error(err))
		return
	}
	s.advanceWatermark(ctx, job, log)
	s.recordCounters(ctx, job.Mode, totals)
	s.observeFinished(ctx, job, started)
	log.Info("job succeeded",
		zap.Int("total", totals.Total),
		zap.Int("updated", totals.Updated),
		zap.Int("skipped", totals.Skipped),
		zap.Int("failed", totals.Failed))
}

// finishFailed writes the failure, notifies once, and requeues with linear
// backoff while the error kind is retryable and budget remains
func (s *Scheduler) finishFailed(ctx context.Context, job *syncdomain.Job, cause *integration.SyncError, log *zap.Logger) {
	firstFailure := job.RetryAttempts == 0
	if err := job.Fail(cause); err != nil {
		log.Error("failure transition refused", zap.Error(err))
		return
	}
	log.Error("job failed",
		zap.String("error_kind", cause.Kind.String()),
		zap.String("error_message", cause.Message))

	willRetry := cause.Kind.Retryable() && job.RetryAttempts < s.cfg.MaxRetries

	if s.notify != nil && (firstFailure || !willRetry) {
		s.notify(job)
	}

	if !willRetry {
		if err := s.jobs.Finish(ctx, job); err != nil {
			log.Error("persisting job failure failed", zap.Error(err))
		}
		return
	}

	delay := time.Duration(job.RetryAttempts+1) * retryDelayUnit
	if err := s.sleep(ctx, delay); err != nil {
		// Shutting down; persist the failure so the job is requeued by the
		// next process via stale reclamation or an operator retry.
		if err := s.jobs.Finish(ctx, job); err != nil {
			log.Error("persisting job failure failed", zap.Error(err))
		}
		return
	}
	if err := job.Requeue(s.cfg.MaxRetries); err != nil {
		log.Error("requeue refused", zap.Error(err))
		if err := s.jobs.Finish(ctx, job); err != nil {
			log.Error("persisting job failure failed", zap.Error(err))
		}
		return
	}
	if err := s.jobs.Finish(ctx, job); err != nil {
		log.Error("persisting job requeue failed", zap.Error(err))
		return
	}
	log.Info("job requeued for retry",
		zap.Int("retry_attempts", job.RetryAttempts),
		zap.Duration("backoff", delay))
}

// advanceWatermark moves the per-resource watermark to the job's start
// time. Using the start instant, not the end, means records changed while
// the job ran are picked up by the next pull.
func (s *Scheduler) advanceWatermark(ctx context.Context, job *syncdomain.Job, log *zap.Logger) {
	resource, ok := job.Mode.ResourceKind()
	if !ok || job.StartTime == nil {
		return
	}
	if err := s.watermarks.Advance(ctx, resource, *job.StartTime); err != nil {
		log.Error("advancing watermark failed",
			zap.String("resource", resource.String()),
			zap.Error(err))
	}
}

func (s *Scheduler) recordCounters(ctx context.Context, mode syncdomain.Mode, totals Totals) {
	if s.metrics == nil {
		return
	}
	switch mode {
	case syncdomain.ModeExportChangedProducts, syncdomain.ModeExportBatchProducts:
		s.metrics.RecordExported(ctx, mode.String(), int64(totals.Updated))
	default:
		s.metrics.RecordImported(ctx, mode.String(), int64(totals.Updated))
	}
	s.metrics.RecordFailed(ctx, mode.String(), int64(totals.Failed))
}

func (s *Scheduler) observeFinished(ctx context.Context, job *syncdomain.Job, started time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordJobFinished(ctx, job.Mode.String(), job.State.String(), time.Since(started))
}

// ensureLiveness re-enqueues the primary periodic modes when nothing recent
// exists for them. This is the subsystem's self-healing heartbeat: even if
// every timer misfires, the next drained dispatch cycle restarts the
// periodic imports.
func (s *Scheduler) ensureLiveness(ctx context.Context) error {
	modes := syncdomain.PrimaryPeriodicModes()
	recent, err := s.jobs.HasRecentActivity(ctx, modes, s.cfg.FreshnessWindow)
	if err != nil {
		return err
	}
	if recent {
		return nil
	}
	for _, mode := range modes {
		if _, inserted, err := s.Enqueue(ctx, mode, syncdomain.Selector{}); err != nil {
			return err
		} else if inserted {
			s.logger.Info("liveness check enqueued periodic job",
				zap.String("mode", mode.String()))
		}
	}
	return nil
}

// Run drives the dispatch loop until the context is cancelled: drain the
// queue every DispatchInterval, prune old terminal jobs every pruneInterval
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.DispatchInterval)
	defer ticker.Stop()
	prune := time.NewTicker(pruneInterval)
	defer prune.Stop()

	s.logger.Info("scheduler started",
		zap.Duration("dispatch_interval", s.cfg.DispatchInterval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.drain(ctx)
		case <-prune.C:
			pruned, err := s.jobs.PruneOld(ctx, s.cfg.PruneMaxAge, s.cfg.PruneKeep)
			if err != nil {
				s.logger.Error("pruning old jobs failed", zap.Error(err))
			} else if pruned > 0 {
				s.logger.Info("pruned old jobs", zap.Int64("pruned", pruned))
			}
		}
	}
}

// drain dispatches until the queue is empty or the context ends
func (s *Scheduler) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		dispatched, err := s.DispatchNext(ctx)
		if err != nil {
			s.logger.Error("dispatch failed", zap.Error(err))
			return
		}
		if !dispatched {
			return
		}
	}
}

// jobProgress adapts the job repository to the runner's Progress interface
type jobProgress struct {
	jobs syncdomain.JobRepository
	job  *syncdomain.Job
}

// NewJobProgress builds the Progress sink handlers hand to the runners
func NewJobProgress(jobs syncdomain.JobRepository, job *syncdomain.Job) Progress {
	return &jobProgress{jobs: jobs, job: job}
}

func (p *jobProgress) Commit(ctx context.Context, total, updated int) error {
	p.job.TotalCount = total
	p.job.UpdatedCount = updated
	return p.jobs.SaveProgress(ctx, p.job)
}

func (p *jobProgress) Touch(ctx context.Context) error {
	return p.jobs.Heartbeat(ctx, p.job.ID)
}
