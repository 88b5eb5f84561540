package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/taxiemissions/pkg/batch/core/metrics"
)

const instrumentationName = "github.com/tigerroll/taxiemissions/pkg/batch"

// OpenTelemetryTracer creates one span per job and a child span per step.
type OpenTelemetryTracer struct {
	tracer trace.Tracer
}

// NewOpenTelemetryTracer uses tracer from the given provider.
func NewOpenTelemetryTracer(tp trace.TracerProvider) *OpenTelemetryTracer {
	return &OpenTelemetryTracer{tracer: tp.Tracer(instrumentationName)}
}

var _ metrics.Tracer = (*OpenTelemetryTracer)(nil)

func (t *OpenTelemetryTracer) StartJobSpan(ctx context.Context, je *model.JobExecution) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "job "+je.JobName,
		trace.WithAttributes(
			attribute.String("batch.job.name", je.JobName),
			attribute.String("batch.job.execution_id", je.ID),
		))
	return ctx, func() {
		span.SetAttributes(
			attribute.String("batch.status", je.Status.String()),
			attribute.String("batch.exit_status", je.ExitStatus.String()),
		)
		if je.Status == model.BatchStatusFailed {
			span.SetStatus(codes.Error, fmt.Sprint(je.Failures))
		}
		span.End()
	}
}

func (t *OpenTelemetryTracer) StartStepSpan(ctx context.Context, se *model.StepExecution) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "step "+se.StepName,
		trace.WithAttributes(
			attribute.String("batch.step.name", se.StepName),
			attribute.String("batch.step.execution_id", se.ID),
		))
	return ctx, func() {
		span.SetAttributes(
			attribute.String("batch.status", se.Status.String()),
			attribute.String("batch.exit_status", se.ExitStatus.String()),
			attribute.Int("batch.read_count", se.ReadCount),
			attribute.Int("batch.write_count", se.WriteCount),
			attribute.Int("batch.filter_count", se.FilterCount),
			attribute.Int("batch.commit_count", se.CommitCount),
		)
		if se.Status == model.BatchStatusFailed {
			span.SetStatus(codes.Error, fmt.Sprint(se.Failures))
		}
		span.End()
	}
}

func (t *OpenTelemetryTracer) RecordError(ctx context.Context, module string, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err, trace.WithAttributes(attribute.String("batch.module", module)))
}

func (t *OpenTelemetryTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	attrs := make([]attribute.KeyValue, 0, len(attributes))
	for k, v := range attributes {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprint(val)))
		}
	}
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}
