package smbc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/marmos91/smbc/internal/telemetry"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	telemetry.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { telemetry.SetTracerProvider(noop.NewTracerProvider()) })
	return rec
}

func spanAttrs(s sdktrace.ReadOnlySpan) map[string]string {
	attrs := map[string]string{}
	for _, kv := range s.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	return attrs
}

func findSpan(t *testing.T, rec *tracetest.SpanRecorder, name string) sdktrace.ReadOnlySpan {
	t.Helper()
	for _, s := range rec.Ended() {
		if s.Name() == name {
			return s
		}
	}
	require.Failf(t, "span not found", "no ended span named %q", name)
	return nil
}

func TestOperationSpans(t *testing.T) {
	rec := recordSpans(t)
	ctx := context.Background()
	c, _ := newTestContext(t)

	require.NoError(t, c.Mkdir(ctx, "smb://user:secret@fs/public/d", 0o755))
	err := c.Mkdir(ctx, "smb://fs/public/d", 0o755)
	require.Error(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 2)

	ok := spanAttrs(spans[0])
	assert.Equal(t, telemetry.SpanMkdir, spans[0].Name())
	assert.Equal(t, "sync", ok[telemetry.AttrDispatch])
	assert.Equal(t, c.ID(), ok[telemetry.AttrSessionID])
	assert.Equal(t, "memory", ok[telemetry.AttrBackend])
	assert.NotContains(t, ok[telemetry.AttrURL], "secret")

	failed := spanAttrs(spans[1])
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.NotEmpty(t, failed[telemetry.AttrErrno])
}

func TestAsyncSpanJoinsCallerTrace(t *testing.T) {
	rec := recordSpans(t)
	c, _ := newAsyncContext(t)

	ctx, parent := telemetry.StartSpan(context.Background(), "caller")
	f, err := c.StatAsync(ctx, "smb://fs/public")
	require.NoError(t, err)
	_, err = await(t, f)
	require.NoError(t, err)
	parent.End()

	stat := findSpan(t, rec, telemetry.SpanStat)
	assert.Equal(t, "async", spanAttrs(stat)[telemetry.AttrDispatch])
	assert.Equal(t, parent.SpanContext().TraceID(), stat.SpanContext().TraceID())
	assert.Equal(t, parent.SpanContext().SpanID(), stat.Parent().SpanID())
}

func TestEnableAsyncSpan(t *testing.T) {
	rec := recordSpans(t)
	c, _ := newTestContext(t)
	require.NoError(t, c.EnableAsync(context.Background()))
	require.NoError(t, c.Close())

	findSpan(t, rec, telemetry.SpanBridgeStart)
	findSpan(t, rec, telemetry.SpanBridgeStop)
}
