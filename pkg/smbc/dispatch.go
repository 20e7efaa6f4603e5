package smbc

import (
	"context"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/marmos91/smbc/internal/logger"
	"github.com/marmos91/smbc/internal/telemetry"
	"github.com/marmos91/smbc/pkg/bridge"
	"github.com/marmos91/smbc/pkg/metrics"
	"github.com/marmos91/smbc/pkg/smberr"
	"github.com/marmos91/smbc/pkg/smburl"
)

// target validates a URL argument and returns the form safe to log.
// Parsing here keeps malformed URLs a synchronous error for async calls.
func target(raw string) (string, error) {
	u, err := smburl.Parse(raw)
	if err != nil {
		return "", err
	}
	return u.Redacted(), nil
}

// call runs fn on the calling goroutine.
func call[T any](c *Context, ctx context.Context, op, where string, fn func(ctx context.Context) (T, error), attrs ...attribute.KeyValue) (T, error) {
	if err := c.checkOpen(); err != nil {
		var zero T
		return zero, err
	}
	return run(c, ctx, op, where, metrics.DispatchSync, fn, attrs...)
}

// callAsync queues fn on the worker. Usage errors are returned directly;
// everything fn reports goes to the Future.
func callAsync[T any](c *Context, ctx context.Context, op, where string, fn func(ctx context.Context) (T, error), attrs ...attribute.KeyValue) (*bridge.Future[T], error) {
	br, err := c.worker()
	if err != nil {
		return nil, err
	}
	caller := ctx
	return bridge.Submit(br, op, func(jobCtx context.Context) (T, error) {
		ctx := telemetry.Detach(jobCtx, caller)
		if lc := logger.FromContext(caller); lc != nil {
			ctx = logger.WithContext(ctx, lc)
		}
		return run(c, ctx, op, where, metrics.DispatchAsync, fn, attrs...)
	}), nil
}

// run wraps one backend call with a span, a debug log line and metrics.
func run[T any](c *Context, ctx context.Context, op, where, dispatch string, fn func(ctx context.Context) (T, error), attrs ...attribute.KeyValue) (T, error) {
	start := time.Now()

	attrs = append(attrs, telemetry.SessionID(c.id), telemetry.Backend(c.backend))
	if where != "" {
		attrs = append(attrs, telemetry.URL(where))
	}
	ctx, span := telemetry.StartOperationSpan(ctx, op, dispatch, attrs...)
	defer span.End()

	lc := logger.FromContext(ctx)
	if lc == nil {
		lc = logger.NewLogContext(c.id)
	}
	lc = lc.WithOperation(op, dispatch)
	if span.SpanContext().IsValid() {
		lc = lc.WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx))
	}
	ctx = logger.WithContext(ctx, lc)

	v, err := fn(ctx)
	if err == io.EOF {
		// End of a directory stream, not a failure.
		metrics.ObserveOperation(c.metrics, op, dispatch, start, nil)
		return v, err
	}
	metrics.ObserveOperation(c.metrics, op, dispatch, start, err)

	if err != nil {
		telemetry.RecordError(ctx, err)
		if code := smberr.Code(err); code != 0 {
			span.SetAttributes(telemetry.Errno(int(code)))
		}
		logger.DebugCtx(ctx, "operation failed", logger.URL(where), logger.Err(err), logger.DurationMs(start))
		return v, err
	}
	logger.DebugCtx(ctx, "operation completed", logger.URL(where), logger.DurationMs(start))
	return v, nil
}

// none is the result type of operations that only report an error.
type none = struct{}

func discard(fn func(ctx context.Context) error) func(ctx context.Context) (none, error) {
	return func(ctx context.Context) (none, error) {
		return none{}, fn(ctx)
	}
}
