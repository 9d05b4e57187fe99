package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/storesync/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

func TestNewSyncMetrics(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")

	sm, err := telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{
		Meter:  meter,
		Logger: zap.NewNop(),
	})

	require.NoError(t, err)
	require.NotNil(t, sm)
}

func TestNewSyncMetrics_NilMeter(t *testing.T) {
	sm, err := telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{
		Meter:  nil,
		Logger: zap.NewNop(),
	})

	require.Error(t, err)
	assert.Nil(t, sm)
	assert.Equal(t, "NewSyncMetrics: meter cannot be nil", err.Error())
}

func TestSyncMetrics_RecordJobLifecycle(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	sm, err := telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{Meter: meter})
	require.NoError(t, err)

	ctx := context.Background()

	// Should not panic
	sm.RecordJobStarted(ctx, "import_changed_products")
	sm.RecordJobFinished(ctx, "import_changed_products", "success", 42*time.Second)
	sm.RecordJobFinished(ctx, "export_changed_products", "failed", time.Second)
}

func TestSyncMetrics_RecordCounts(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	sm, err := telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{Meter: meter})
	require.NoError(t, err)

	ctx := context.Background()

	sm.RecordImported(ctx, "import_changed_orders", 50)
	sm.RecordExported(ctx, "export_changed_products", 10)
	sm.RecordFailed(ctx, "import_changed_orders", 2)

	// Non-positive counts are ignored
	sm.RecordImported(ctx, "import_changed_orders", 0)
	sm.RecordFailed(ctx, "import_changed_orders", -1)
}

func TestSyncMetrics_RecordHardThrottle(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	sm, err := telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{Meter: meter})
	require.NoError(t, err)

	sm.RecordHardThrottle(context.Background())
}

func TestSyncMetrics_RecordWebhookReceived(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	sm, err := telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{Meter: meter})
	require.NoError(t, err)

	ctx := context.Background()
	sm.RecordWebhookReceived(ctx, "products/update", false)
	sm.RecordWebhookReceived(ctx, "products/update", true)
}
