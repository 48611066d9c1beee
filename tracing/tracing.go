// Package tracing creates OpenTelemetry spans for entity loads and carries
// trace context across the gRPC remote collection service. It is optional:
// a nil *Tracer records nothing.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/IntegraSac-Oficial/entityload"

// Span names.
const (
	SpanLoad  = "entityload.Load"
	SpanFetch = "entityload.Fetch"
	SpanBatch = "entityload.Batch"
)

// Attribute keys.
const (
	AttrEntity      = attribute.Key("entity.name")
	AttrPriority    = attribute.Key("entity.priority")
	AttrTier        = attribute.Key("cache.tier")
	AttrCacheResult = attribute.Key("cache.result")
	AttrBatchID     = attribute.Key("batch.id")
	AttrBatchSize   = attribute.Key("batch.size")
	AttrBatchFailed = attribute.Key("batch.failed")
	AttrRecords     = attribute.Key("entity.records")
)

// Config holds the OpenTelemetry wiring.
type Config struct {
	// TracerProvider supplies the Tracer used to create spans. When nil the
	// global otel.GetTracerProvider() is used.
	TracerProvider trace.TracerProvider

	// Propagators extracts and injects trace context from/into carriers.
	// When nil the global otel.GetTextMapPropagator() is used.
	Propagators propagation.TextMapPropagator
}

// Tracer starts load, fetch and batch spans.
type Tracer struct {
	tr    trace.Tracer
	props propagation.TextMapPropagator
}

// New returns a Tracer for cfg.
func New(cfg Config) *Tracer {
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	props := cfg.Propagators
	if props == nil {
		props = otel.GetTextMapPropagator()
	}
	return &Tracer{tr: tp.Tracer(instrumentationName), props: props}
}

func (t *Tracer) tracer() trace.Tracer {
	if t == nil {
		return noop.NewTracerProvider().Tracer(instrumentationName)
	}
	return t.tr
}

// StartLoad starts the span covering one LoadEntityData call.
func (t *Tracer) StartLoad(ctx context.Context, entity, prio, tier string) (context.Context, trace.Span) {
	return t.tracer().Start(ctx, SpanLoad,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			AttrEntity.String(entity),
			AttrPriority.String(prio),
			AttrTier.String(tier),
		))
}

// StartFetch starts the span covering one remote collection call.
func (t *Tracer) StartFetch(ctx context.Context, entity string) (context.Context, trace.Span) {
	return t.tracer().Start(ctx, SpanFetch,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(AttrEntity.String(entity)))
}

// StartBatch starts the span covering one LoadMultipleEntities call.
func (t *Tracer) StartBatch(ctx context.Context, batchID string, size int) (context.Context, trace.Span) {
	return t.tracer().Start(ctx, SpanBatch,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			AttrBatchID.String(batchID),
			AttrBatchSize.Int(size),
		))
}

// End records err (if any) on span and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
