package telemetry

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"
)

func TestNoopImplementationsDoNotPanic(t *testing.T) {
	ctx := context.Background()

	logger := NewNoopLogger()
	logger.Debug(ctx, "debug", "k", "v")
	logger.Info(ctx, "info")
	logger.Warn(ctx, "warn")
	logger.Error(ctx, "error")

	metrics := NewNoopMetrics()
	metrics.IncCounter("calls", 1, "tool", "echo")
	metrics.RecordTimer("latency", time.Millisecond, "tool", "echo")
	metrics.RecordGauge("queue_depth", 3)

	tracer := NewNoopTracer()
	newCtx, span := tracer.Start(ctx, "op")
	if newCtx != ctx {
		t.Error("noop tracer must not replace the context")
	}
	span.AddEvent("started")
	span.SetStatus(codes.Ok, "done")
	span.RecordError(nil)
	span.End()

	if s := tracer.Span(ctx); s == nil {
		t.Error("Span() returned nil")
	}
}
