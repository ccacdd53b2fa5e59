package operations

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"armpose/internal/infrastructure"
)

const TracerName = "armpose.operations"

// OperationTracer wraps pipeline runs and stages in spans and records
// stage metrics. A nil metrics value disables metrics only.
type OperationTracer struct {
	tracer  trace.Tracer
	metrics *infrastructure.BusinessMetrics
}

// NewOperationTracer uses the global tracer provider
func NewOperationTracer(metrics *infrastructure.BusinessMetrics) *OperationTracer {
	return &OperationTracer{
		tracer:  otel.Tracer(TracerName),
		metrics: metrics,
	}
}

// Metrics returns the business metrics, possibly nil
func (t *OperationTracer) Metrics() *infrastructure.BusinessMetrics {
	if t == nil {
		return nil
	}
	return t.metrics
}

// TraceOperation starts the span covering a whole request
func (t *OperationTracer) TraceOperation(ctx context.Context, req OperationRequest) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "operation."+req.Step(),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("operation.id", req.ID),
			attribute.String("session.id", req.SessionID),
			attribute.String("operation.step", req.Step()),
		),
	)
}

// TraceStage starts the span covering one stage
func (t *OperationTracer) TraceStage(ctx context.Context, operationID, stageID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "operation.stage."+stageID,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("operation.id", operationID),
			attribute.String("stage.id", stageID),
		),
	)
}

// EndStage records the stage outcome on its span and in metrics, then ends the span
func (t *OperationTracer) EndStage(ctx context.Context, span trace.Span, stageID string, duration time.Duration, err error) {
	span.SetAttributes(attribute.Float64("stage.duration_seconds", duration.Seconds()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()

	infrastructure.RecordOperationStepMetrics(ctx, t.metrics, stageID, duration, err)
}

// EndOperation records the run outcome on its span and ends it
func (t *OperationTracer) EndOperation(span trace.Span, status OperationStatusValue, err error) {
	span.SetAttributes(attribute.String("operation.status", string(status)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
