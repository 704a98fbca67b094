package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"foodproxy"
)

// InstrumentedPipeline wraps a Pipeline with tracing and metrics.
type InstrumentedPipeline struct {
	inner  *Pipeline
	tracer trace.Tracer
	meter  metric.Meter
}

func NewInstrumented(inner *Pipeline, tracer trace.Tracer, meter metric.Meter) *InstrumentedPipeline {
	return &InstrumentedPipeline{
		inner:  inner,
		tracer: tracer,
		meter:  meter,
	}
}

// Run executes the wrapped pipeline inside a span and records outcome metrics.
func (p *InstrumentedPipeline) Run(ctx context.Context, rc foodproxy.RequestContext, in Input) Result {
	ctx, span := p.tracer.Start(ctx, "Pipeline.Run")
	defer span.End()

	runsCounter, _ := p.meter.Int64Counter("pipeline_runs_total",
		metric.WithDescription("Total number of recognition pipeline runs"))
	failuresCounter, _ := p.meter.Int64Counter("pipeline_failures_total",
		metric.WithDescription("Total number of pipeline runs that ended in an error code"))
	itemsGauge, _ := p.meter.Int64Gauge("recognized_items_count",
		metric.WithDescription("Number of items recognized in the last successful run"))
	durationHist, _ := p.meter.Float64Histogram("pipeline_duration_seconds",
		metric.WithDescription("End-to-end duration of one pipeline run in seconds"))

	span.SetAttributes(
		attribute.String("trace_id", rc.TraceID),
		attribute.String("locale", in.Locale),
		attribute.Int("image_bytes", len(in.Image)),
	)
	runsCounter.Add(ctx, 1)

	start := time.Now()
	result := p.inner.Run(ctx, rc, in)
	durationHist.Record(ctx, time.Since(start).Seconds())

	if result.Error != nil {
		code := string(result.Error.ErrorCode)
		failuresCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("error_code", code)))
		span.SetAttributes(attribute.String("error_code", code))
		span.SetStatus(codes.Error, code)
		return result
	}

	itemsGauge.Record(ctx, int64(len(result.Success.Result.Items)))
	span.SetAttributes(
		attribute.Float64("gate_confidence", result.Success.Confidence),
		attribute.Int("item_count", len(result.Success.Result.Items)),
		attribute.Float64("total_kcal", result.Success.Result.Total.Kcal),
	)
	span.SetStatus(codes.Ok, "success")
	return result
}
