// Package telemetry defines the logging, metrics, and tracing interfaces
// used throughout the MCP session, extension manager, token budgeter,
// permission engine, and reply loop. Implementations typically delegate to
// goa.design/clue/log and OpenTelemetry, but the interfaces stay small so
// tests can substitute lightweight stubs.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger captures structured logging. Implementations typically delegate to
// Clue but the interface is intentionally small so tests can provide
// lightweight stubs.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics exposes counter, timer, and gauge helpers for instrumentation.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer abstracts span creation so calling code stays agnostic of the
// underlying OpenTelemetry provider.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	Span(ctx context.Context) Span
}

// Span represents an in-flight tracing span.
//
// Example usage:
//
//	ctx, span := tracer.Start(ctx, "operation", trace.WithSpanKind(trace.SpanKindClient))
//	defer span.End()
//	span.SetStatus(codes.Ok, "completed successfully")
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, attrs ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
}

// CallTelemetry captures observability metadata collected during a tool or
// provider call. Common fields provide type safety for standard metrics; the
// Extra map holds call-specific data (provider headers, cache keys, etc).
type CallTelemetry struct {
	DurationMs int64
	TokensUsed int
	Model      string
	Extra      map[string]any
}
