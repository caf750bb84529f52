package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/quiver-dev/quiver/pkg/quiver"
)

// Default tracer name for instrumented runtimes.
const defaultTracerName = "quiver"

// TraceConfig configures runtime tracing.
type TraceConfig struct {
	// TracerName is the name of the tracer (default: "quiver").
	TracerName string

	// IncludeValues records old and new values on trigger span events.
	// Values may be large or sensitive - disabled by default.
	IncludeValues bool

	// Filter determines which triggers become span events.
	// Return true to record the trigger, false to skip.
	// If nil, all triggers are recorded.
	Filter func(quiver.TriggerEvent) bool

	// tracer is the resolved tracer instance.
	tracer trace.Tracer
}

// TraceOption configures runtime tracing.
type TraceOption func(*TraceConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) TraceOption {
	return func(c *TraceConfig) {
		c.TracerName = name
	}
}

// WithIncludeValues enables recording trigger values in span events.
func WithIncludeValues(include bool) TraceOption {
	return func(c *TraceConfig) {
		c.IncludeValues = include
	}
}

// WithTriggerFilter sets a filter function for recorded triggers.
func WithTriggerFilter(filter func(quiver.TriggerEvent) bool) TraceOption {
	return func(c *TraceConfig) {
		c.Filter = filter
	}
}

// defaultTraceConfig returns the default tracing configuration.
func defaultTraceConfig() TraceConfig {
	return TraceConfig{
		TracerName:    defaultTracerName,
		IncludeValues: false,
		Filter:        nil,
	}
}

// Tracer turns units of reactive work into OpenTelemetry spans.
//
// A unit is whatever runs inside Update: the mutations, the effects they
// trigger synchronously, and the flush that drains the deferred watch
// jobs. Each trigger inside the unit becomes a span event; the counter
// deltas for the whole unit are set as span attributes when it ends.
//
// A Tracer belongs to the runtime's goroutine, like the runtime itself.
//
// Example:
//
//	tr := telemetry.NewTracer(rt)
//	tr.Update(ctx, "cart.add", func(ctx context.Context) {
//	    items.Push(item)
//	})
//
// The tracer uses the global OpenTelemetry tracer provider. Configure it
// in your main() before instrumenting:
//
//	tp := sdktrace.NewTracerProvider(
//	    sdktrace.WithBatcher(exporter),
//	    sdktrace.WithResource(resource.NewWithAttributes(
//	        semconv.SchemaURL,
//	        semconv.ServiceName("my-app"),
//	    )),
//	)
//	otel.SetTracerProvider(tp)
type Tracer struct {
	rt     *quiver.Runtime
	config TraceConfig

	// span of the unit in flight; nil between units.
	span trace.Span
}

// NewTracer instruments rt. The trigger hook it installs stays for the
// life of the runtime and is inert while no unit is in flight.
func NewTracer(rt *quiver.Runtime, opts ...TraceOption) *Tracer {
	config := defaultTraceConfig()
	for _, opt := range opts {
		opt(&config)
	}

	// Resolve tracer from global provider
	config.tracer = otel.Tracer(config.TracerName)

	t := &Tracer{rt: rt, config: config}
	rt.AddTriggerHook(t.onTrigger)
	return t
}

// Update runs fn and the flush it causes under a span named name.
// The span status reflects whether any user-code failure was recovered
// during the unit.
func (t *Tracer) Update(ctx context.Context, name string, fn func(context.Context)) {
	spanCtx, span := t.config.tracer.Start(
		ctx,
		name,
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	before := t.rt.Stats()
	t.span = span
	defer func() { t.span = nil }()

	fn(spanCtx)
	t.rt.Flush()

	after := t.rt.Stats()
	span.SetAttributes(statDeltas(before, after)...)
	if after.Errors > before.Errors {
		span.SetStatus(codes.Error, "reactive user code failed")
	} else {
		span.SetStatus(codes.Ok, "")
	}
}

// onTrigger records a trigger as an event on the span in flight.
func (t *Tracer) onTrigger(ev quiver.TriggerEvent) {
	if t.span == nil {
		return
	}
	if t.config.Filter != nil && !t.config.Filter(ev) {
		return
	}
	t.span.AddEvent("quiver.trigger",
		trace.WithAttributes(triggerAttrs(ev, t.config.IncludeValues)...))
}

// triggerAttrs builds the span event attributes for one trigger.
func triggerAttrs(ev quiver.TriggerEvent, includeValues bool) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("quiver.op", ev.Op.String()),
		attribute.String("quiver.key", fmt.Sprintf("%v", ev.Key)),
		attribute.Int("quiver.scheduled", ev.Scheduled),
	}
	if includeValues {
		attrs = append(attrs,
			attribute.String("quiver.new", fmt.Sprintf("%v", ev.NewValue)),
			attribute.String("quiver.old", fmt.Sprintf("%v", ev.OldValue)),
		)
	}
	return attrs
}

// statDeltas expresses the work done by one unit as span attributes.
func statDeltas(before, after quiver.Stats) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64("quiver.triggers", int64(after.Triggers-before.Triggers)),
		attribute.Int64("quiver.effect_runs", int64(after.EffectRuns-before.EffectRuns)),
		attribute.Int64("quiver.recomputes", int64(after.ComputedRecomputes-before.ComputedRecomputes)),
		attribute.Int64("quiver.watch_jobs", int64(after.WatchJobs-before.WatchJobs)),
		attribute.Int64("quiver.errors", int64(after.Errors-before.Errors)),
	}
}
