// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// SyncMetrics tracks sync pipeline health: job lifecycle, record volume,
// storefront throttling and webhook intake.
type SyncMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Counter metrics (monotonically increasing)
	jobStartedTotal      *Counter
	jobFinishedTotal     *Counter
	recordImportedTotal  *Counter
	recordExportedTotal  *Counter
	recordFailedTotal    *Counter
	hardThrottleTotal    *Counter
	webhookReceivedTotal *Counter

	// Histogram metrics (distributions)
	jobDuration *Histogram
}

// SyncMetricsConfig holds configuration for sync metrics.
type SyncMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
}

// NewSyncMetrics creates a new SyncMetrics instance.
func NewSyncMetrics(cfg SyncMetricsConfig) (*SyncMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sm := &SyncMetrics{
		meter:  cfg.Meter,
		logger: logger,
	}

	var err error

	sm.jobStartedTotal, err = NewCounter(
		cfg.Meter,
		"sync_job_started_total",
		"Total number of sync jobs claimed for execution",
		"{jobs}",
	)
	if err != nil {
		return nil, err
	}

	sm.jobFinishedTotal, err = NewCounter(
		cfg.Meter,
		"sync_job_finished_total",
		"Total number of sync jobs reaching a terminal state",
		"{jobs}",
	)
	if err != nil {
		return nil, err
	}

	sm.recordImportedTotal, err = NewCounter(
		cfg.Meter,
		"sync_record_imported_total",
		"Total number of remote records written locally",
		"{records}",
	)
	if err != nil {
		return nil, err
	}

	sm.recordExportedTotal, err = NewCounter(
		cfg.Meter,
		"sync_record_exported_total",
		"Total number of local records pushed to the storefront",
		"{records}",
	)
	if err != nil {
		return nil, err
	}

	sm.recordFailedTotal, err = NewCounter(
		cfg.Meter,
		"sync_record_failed_total",
		"Total number of records skipped due to per-record errors",
		"{records}",
	)
	if err != nil {
		return nil, err
	}

	sm.hardThrottleTotal, err = NewCounter(
		cfg.Meter,
		"sync_hard_throttle_total",
		"Total number of throttled responses returned by the storefront API",
		"{responses}",
	)
	if err != nil {
		return nil, err
	}

	sm.webhookReceivedTotal, err = NewCounter(
		cfg.Meter,
		"sync_webhook_received_total",
		"Total number of webhook deliveries received",
		"{deliveries}",
	)
	if err != nil {
		return nil, err
	}

	sm.jobDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "sync_job_duration_seconds",
		Description: "Wall-clock duration of sync job executions",
		Unit:        "s",
		Boundaries:  []float64{1, 5, 15, 60, 300, 900, 3600},
	})
	if err != nil {
		return nil, err
	}

	return sm, nil
}

// RecordJobStarted records a job being claimed by a worker.
func (sm *SyncMetrics) RecordJobStarted(ctx context.Context, mode string) {
	sm.jobStartedTotal.Inc(ctx, attribute.String("mode", mode))
}

// RecordJobFinished records a job reaching a terminal state together with
// its wall-clock duration.
func (sm *SyncMetrics) RecordJobFinished(ctx context.Context, mode, state string, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("mode", mode),
		attribute.String("state", state),
	}
	sm.jobFinishedTotal.Inc(ctx, attrs...)
	sm.jobDuration.RecordDuration(ctx, duration, attrs...)
}

// RecordImported records records written locally during an import page.
func (sm *SyncMetrics) RecordImported(ctx context.Context, mode string, count int64) {
	if count <= 0 {
		return
	}
	sm.recordImportedTotal.Add(ctx, count, attribute.String("mode", mode))
}

// RecordExported records records pushed to the storefront during an export batch.
func (sm *SyncMetrics) RecordExported(ctx context.Context, mode string, count int64) {
	if count <= 0 {
		return
	}
	sm.recordExportedTotal.Add(ctx, count, attribute.String("mode", mode))
}

// RecordFailed records records skipped due to per-record errors.
func (sm *SyncMetrics) RecordFailed(ctx context.Context, mode string, count int64) {
	if count <= 0 {
		return
	}
	sm.recordFailedTotal.Add(ctx, count, attribute.String("mode", mode))
}

// RecordHardThrottle records a throttled response from the storefront API.
// Paced waits below the throttle budget are intentionally not counted.
func (sm *SyncMetrics) RecordHardThrottle(ctx context.Context) {
	sm.hardThrottleTotal.Inc(ctx)
}

// RecordWebhookReceived records an incoming webhook delivery. Duplicate
// deliveries are tagged so redelivery storms stand out.
func (sm *SyncMetrics) RecordWebhookReceived(ctx context.Context, topic string, duplicate bool) {
	sm.webhookReceivedTotal.Inc(ctx,
		attribute.String("topic", topic),
		attribute.Bool("duplicate", duplicate),
	)
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewSyncMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
