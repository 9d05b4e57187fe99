package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newBufferLogger() (*zap.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(&buf),
		zapcore.DebugLevel,
	)
	return zap.New(core), &buf
}

func TestWithContextRoundTrip(t *testing.T) {
	log, err := NewForEnvironment("development")
	require.NoError(t, err)

	ctx := WithContext(context.Background(), log)
	assert.Equal(t, log, FromContext(ctx))
}

func TestFromContext_Missing(t *testing.T) {
	got := FromContext(context.Background())
	require.NotNil(t, got)
	assert.NotPanics(t, func() { got.Info("noop") })
}

func TestFromContext_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), LoggerKey, 42)
	got := FromContext(ctx)
	require.NotNil(t, got)
	assert.NotPanics(t, func() { got.Info("noop") })
}

func TestContextEnrichment(t *testing.T) {
	log := zap.NewNop()
	ctx := context.Background()

	ctx, log = WithRequestID(ctx, log, "req-01")
	ctx, log = WithJobID(ctx, log, "b9d2c7e0")
	ctx, log = WithUserID(ctx, log, "ops@example.com")

	assert.Equal(t, "req-01", GetRequestID(ctx))
	assert.Equal(t, "b9d2c7e0", GetJobID(ctx))
	assert.Equal(t, "ops@example.com", GetUserID(ctx))
	assert.NotNil(t, log)

	// a second call replaces the stored value
	ctx, _ = WithRequestID(ctx, log, "req-02")
	assert.Equal(t, "req-02", GetRequestID(ctx))
}

func TestContextGetters_Empty(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))
	assert.Empty(t, GetJobID(ctx))
	assert.Empty(t, GetUserID(ctx))
}

func TestContextKeysAreDistinct(t *testing.T) {
	keys := []contextKey{LoggerKey, RequestIDKey, JobIDKey, UserIDKey}
	seen := make(map[contextKey]bool)
	for _, k := range keys {
		assert.False(t, seen[k], "duplicate context key %q", k)
		seen[k] = true
	}
}

func TestTraceHelpers_NoValidSpan(t *testing.T) {
	// the noop tracer produces spans with invalid contexts, same as no span
	tracer := noop.NewTracerProvider().Tracer("storesync-test")
	ctx, span := tracer.Start(context.Background(), "claim-job")
	defer span.End()

	assert.False(t, trace.SpanFromContext(ctx).SpanContext().IsValid())
	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetSpanID(ctx))

	base := zap.NewNop()
	assert.Equal(t, base, WithTraceContext(ctx, base))
	assert.Equal(t, base, WithTraceContext(context.Background(), base))
}

func TestL(t *testing.T) {
	t.Run("extracts the logger stored in context", func(t *testing.T) {
		log, err := NewForEnvironment("development")
		require.NoError(t, err)

		cl := L(WithContext(context.Background(), log))
		require.NotNil(t, cl)
		assert.Equal(t, log, cl.logger)
	})

	t.Run("falls back to a usable logger on empty context", func(t *testing.T) {
		cl := L(context.Background())
		require.NotNil(t, cl)
		assert.NotPanics(t, func() { cl.Info("noop") })
	})
}

func TestWithLogger(t *testing.T) {
	log := zap.NewNop()
	cl := WithLogger(context.Background(), log)

	require.NotNil(t, cl)
	assert.Equal(t, log, cl.logger)
	assert.NotNil(t, cl.Zap())
	assert.NotPanics(t, func() { cl.Sugar().Infow("job claimed", "mode", "import_changed_orders") })
}

func TestContextLogger_InjectsContextFields(t *testing.T) {
	log, buf := newBufferLogger()

	ctx := context.Background()
	ctx = context.WithValue(ctx, RequestIDKey, "req-77")
	ctx = context.WithValue(ctx, JobIDKey, "4fd1a8")
	ctx = context.WithValue(ctx, UserIDKey, "admin")

	WithLogger(ctx, log).Info("reconcile finished", zap.Int("orders_written", 12))

	out := buf.String()
	assert.Contains(t, out, `"request_id":"req-77"`)
	assert.Contains(t, out, `"job_id":"4fd1a8"`)
	assert.Contains(t, out, `"user_id":"admin"`)
	assert.Contains(t, out, `"orders_written":12`)
	assert.Contains(t, out, `"msg":"reconcile finished"`)
}

func TestContextLogger_OmitsAbsentFields(t *testing.T) {
	log, buf := newBufferLogger()

	WithLogger(context.Background(), log).Info("tick")

	out := buf.String()
	assert.Contains(t, out, `"msg":"tick"`)
	assert.NotContains(t, out, "request_id")
	assert.NotContains(t, out, "job_id")
	assert.NotContains(t, out, "user_id")
}

func TestContextLogger_With(t *testing.T) {
	log, buf := newBufferLogger()

	WithLogger(context.Background(), log).
		With(zap.String("mode", "export_product_templates")).
		With(zap.Int("page", 3)).
		Warn("page retried")

	out := buf.String()
	assert.Contains(t, out, `"mode":"export_product_templates"`)
	assert.Contains(t, out, `"page":3`)
}

func TestContextLogger_NilLogger(t *testing.T) {
	cl := &ContextLogger{ctx: context.Background()}

	assert.NotPanics(t, func() {
		cl.Debug("d")
		cl.Info("i")
		cl.Warn("w")
		cl.Error("e")
	})
}
