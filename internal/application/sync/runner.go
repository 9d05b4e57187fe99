package sync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/storesync/backend/internal/domain/integration"
)

// Runner defaults
const (
	defaultCommitSize        = 50
	defaultHeartbeatInterval = 15 * time.Second

	// maxPageRetries bounds how often one page transaction is retried after
	// a database serialization conflict before the job fails
	maxPageRetries = 3
)

// Page is one cursor-paginated slice of remote nodes
type Page[N any] struct {
	Nodes     []N
	EndCursor string
	HasNext   bool
}

// PageImporter streams remote pages and reconciles one node at a time
type PageImporter[N any] interface {
	// FetchPage fetches the page after cursor; empty cursor is the first page
	FetchPage(ctx context.Context, cursor string) (*Page[N], error)

	// ImportOne reconciles one remote node into local state. The error
	// return is for infrastructure failures only; per-record results are
	// outcomes.
	ImportOne(ctx context.Context, node N) (Outcome, error)
}

// BatchExporter pushes an explicit in-memory batch record by record
type BatchExporter[T any] interface {
	ExportOne(ctx context.Context, record T) (Outcome, error)
}

// BatchDeleter streams remote pages and deletes one node at a time. Each
// delete stands alone, so one failure never aborts the batch.
type BatchDeleter[N any] interface {
	FetchPage(ctx context.Context, cursor string) (*Page[N], error)
	DeleteOne(ctx context.Context, node N) error
}

// Progress is how a runner reports liveness and counters back to the job
// row while paging
type Progress interface {
	// Commit persists the counters so far
	Commit(ctx context.Context, total, updated int) error

	// Touch refreshes the job heartbeat even absent progress
	Touch(ctx context.Context) error
}

// RunnerConfig tunes the shared page-iteration loop
type RunnerConfig struct {
	// CommitSize is how many records are processed between progress commits
	CommitSize int
	// HeartbeatInterval is how often the job row is touched even when no
	// commit is due
	HeartbeatInterval time.Duration
	// RetryableConflict reports whether an error is a database
	// serialization conflict worth retrying at the page level. Nil disables
	// page retries.
	RetryableConflict func(error) bool
}

func (c RunnerConfig) withDefaults() RunnerConfig {
	if c.CommitSize <= 0 {
		c.CommitSize = defaultCommitSize
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	return c
}

// Totals is the counter set a finished run reports
type Totals struct {
	Total   int
	Updated int
	Skipped int
	Failed  int
}

// beat tracks when the job row was last touched
type beat struct {
	interval time.Duration
	last     time.Time
}

func newBeat(interval time.Duration) *beat {
	return &beat{interval: interval, last: time.Now()}
}

func (b *beat) due() bool {
	return time.Since(b.last) >= b.interval
}

func (b *beat) touch(ctx context.Context, prog Progress) error {
	if err := prog.Touch(ctx); err != nil {
		return err
	}
	b.last = time.Now()
	return nil
}

// RunImport drives a paginated import: fetch a page, reconcile each node,
// commit progress every CommitSize records and touch the heartbeat every
// HeartbeatInterval. A failed outcome aborts the run carrying the record
// context; a serialization conflict replays the current page: re-running
// already-imported nodes is safe because every import write goes through
// the write-if-changed patch.
func RunImport[N any](ctx context.Context, imp PageImporter[N], cfg RunnerConfig, prog Progress, log *zap.Logger) (Totals, error) {
	cfg = cfg.withDefaults()
	var totals Totals
	hb := newBeat(cfg.HeartbeatInterval)

	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return totals, integration.NewTransientError("sync cancelled", err)
		}

		page, err := imp.FetchPage(ctx, cursor)
		if err != nil {
			return totals, integration.WrapSyncError(err, nil)
		}

		for attempt := 0; ; attempt++ {
			snapshot := totals
			err = importPage(ctx, imp, page.Nodes, cfg, prog, &totals, hb)
			if err == nil {
				break
			}
			if cfg.RetryableConflict != nil && cfg.RetryableConflict(err) && attempt < maxPageRetries-1 {
				log.Warn("page transaction conflict, replaying page",
					zap.Int("attempt", attempt+1),
					zap.String("cursor", cursor))
				totals = snapshot
				continue
			}
			return totals, err
		}

		if err := prog.Commit(ctx, totals.Total, totals.Updated); err != nil {
			return totals, integration.NewTransientError("persisting progress", err)
		}

		if !page.HasNext {
			return totals, nil
		}
		cursor = page.EndCursor
	}
}

func importPage[N any](ctx context.Context, imp PageImporter[N], nodes []N, cfg RunnerConfig, prog Progress, totals *Totals, hb *beat) error {
	for _, node := range nodes {
		totals.Total++

		out, err := imp.ImportOne(ctx, node)
		if err != nil {
			return integration.WrapSyncError(err, node)
		}
		switch out.Kind {
		case OutcomeImported:
			totals.Updated++
		case OutcomeSkipped:
			totals.Skipped++
		case OutcomeFailed:
			totals.Failed++
			return out.SyncError()
		}

		if totals.Total%cfg.CommitSize == 0 {
			if err := prog.Commit(ctx, totals.Total, totals.Updated); err != nil {
				return integration.NewTransientError("persisting progress", err)
			}
			hb.last = time.Now()
		} else if hb.due() {
			if err := hb.touch(ctx, prog); err != nil {
				return integration.NewTransientError("touching heartbeat", err)
			}
		}
	}
	return nil
}

// RunExport pushes an explicit batch. Unlike an import, a failed outcome
// counts and moves on: one rejected record must not starve the rest of the
// batch, and media-order mismatches already flag their own re-export.
func RunExport[T any](ctx context.Context, records []T, exp BatchExporter[T], cfg RunnerConfig, prog Progress, log *zap.Logger) (Totals, error) {
	cfg = cfg.withDefaults()
	var totals Totals
	hb := newBeat(cfg.HeartbeatInterval)

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return totals, integration.NewTransientError("sync cancelled", err)
		}
		totals.Total++

		out, err := exp.ExportOne(ctx, record)
		if err != nil {
			return totals, integration.WrapSyncError(err, record)
		}
		switch out.Kind {
		case OutcomeImported:
			totals.Updated++
		case OutcomeSkipped:
			totals.Skipped++
		case OutcomeFailed:
			totals.Failed++
			log.Warn("export record failed",
				zap.String("reason", out.Reason),
				zap.String("error_kind", out.ErrorKind.String()))
		}

		if totals.Total%cfg.CommitSize == 0 {
			if err := prog.Commit(ctx, totals.Total, totals.Updated); err != nil {
				return totals, integration.NewTransientError("persisting progress", err)
			}
			hb.last = time.Now()
		} else if hb.due() {
			if err := hb.touch(ctx, prog); err != nil {
				return totals, integration.NewTransientError("touching heartbeat", err)
			}
		}
	}

	if err := prog.Commit(ctx, totals.Total, totals.Updated); err != nil {
		return totals, integration.NewTransientError("persisting progress", err)
	}
	return totals, nil
}

// RunDelete streams remote pages and deletes node by node. Every delete is
// its own savepoint: a failure is counted and logged, never fatal to the
// batch.
func RunDelete[N any](ctx context.Context, del BatchDeleter[N], cfg RunnerConfig, prog Progress, log *zap.Logger) (Totals, error) {
	cfg = cfg.withDefaults()
	var totals Totals
	hb := newBeat(cfg.HeartbeatInterval)

	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return totals, integration.NewTransientError("sync cancelled", err)
		}

		page, err := del.FetchPage(ctx, cursor)
		if err != nil {
			return totals, integration.WrapSyncError(err, nil)
		}

		for _, node := range page.Nodes {
			totals.Total++

			if err := del.DeleteOne(ctx, node); err != nil {
				totals.Failed++
				log.Warn("delete failed, continuing batch", zap.Error(err))
			} else {
				totals.Updated++
			}

			if totals.Total%cfg.CommitSize == 0 {
				if err := prog.Commit(ctx, totals.Total, totals.Updated); err != nil {
					return totals, integration.NewTransientError("persisting progress", err)
				}
				hb.last = time.Now()
			} else if hb.due() {
				if err := hb.touch(ctx, prog); err != nil {
					return totals, integration.NewTransientError("touching heartbeat", err)
				}
			}
		}

		if err := prog.Commit(ctx, totals.Total, totals.Updated); err != nil {
			return totals, integration.NewTransientError("persisting progress", err)
		}

		if !page.HasNext {
			return totals, nil
		}
		cursor = page.EndCursor
	}
}
