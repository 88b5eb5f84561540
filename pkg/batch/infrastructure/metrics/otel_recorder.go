package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/taxiemissions/pkg/batch/core/metrics"
)

// OTelMetricRecorder records the batch metrics as OpenTelemetry instruments.
type OTelMetricRecorder struct {
	provider *sdkmetric.MeterProvider

	jobs      metric.Int64Counter
	jobTime   metric.Float64Histogram
	steps     metric.Int64Counter
	stepTime  metric.Float64Histogram
	items     metric.Int64Counter
	commits   metric.Int64Counter
	rollbacks metric.Int64Counter
	durations metric.Float64Histogram
}

// NewOTelMetricRecorder creates the instruments on provider's meter.
func NewOTelMetricRecorder(provider *sdkmetric.MeterProvider) (*OTelMetricRecorder, error) {
	m := provider.Meter(instrumentationName)
	r := &OTelMetricRecorder{provider: provider}
	var err error
	if r.jobs, err = m.Int64Counter("batch.job.executions", metric.WithDescription("Finished job executions.")); err != nil {
		return nil, err
	}
	if r.jobTime, err = m.Float64Histogram("batch.job.duration", metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if r.steps, err = m.Int64Counter("batch.step.executions", metric.WithDescription("Finished step executions.")); err != nil {
		return nil, err
	}
	if r.stepTime, err = m.Float64Histogram("batch.step.duration", metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if r.items, err = m.Int64Counter("batch.step.items", metric.WithDescription("Items by outcome (read, filtered, written).")); err != nil {
		return nil, err
	}
	if r.commits, err = m.Int64Counter("batch.step.commits"); err != nil {
		return nil, err
	}
	if r.rollbacks, err = m.Int64Counter("batch.step.rollbacks"); err != nil {
		return nil, err
	}
	if r.durations, err = m.Float64Histogram("batch.operation.duration", metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return r, nil
}

var _ metrics.MetricRecorder = (*OTelMetricRecorder)(nil)

func (r *OTelMetricRecorder) RecordJobStart(context.Context, *model.JobExecution) {}

func (r *OTelMetricRecorder) RecordJobEnd(ctx context.Context, je *model.JobExecution) {
	attrs := metric.WithAttributes(
		attribute.String("job_name", je.JobName),
		attribute.String("status", je.Status.String()),
	)
	r.jobs.Add(ctx, 1, attrs)
	if je.EndTime != nil {
		r.jobTime.Record(ctx, je.EndTime.Sub(je.StartTime).Seconds(), attrs)
	}
}

func (r *OTelMetricRecorder) RecordStepStart(context.Context, *model.StepExecution) {}

func (r *OTelMetricRecorder) RecordStepEnd(ctx context.Context, se *model.StepExecution) {
	attrs := metric.WithAttributes(
		attribute.String("job_name", jobNameOf(se)),
		attribute.String("step_name", se.StepName),
		attribute.String("status", se.Status.String()),
	)
	r.steps.Add(ctx, 1, attrs)
	if se.EndTime != nil {
		r.stepTime.Record(ctx, se.EndTime.Sub(se.StartTime).Seconds(), attrs)
	}
}

func (r *OTelMetricRecorder) RecordChunkCommit(ctx context.Context, se *model.StepExecution, read, filtered, written int) {
	base := []attribute.KeyValue{
		attribute.String("job_name", jobNameOf(se)),
		attribute.String("step_name", se.StepName),
	}
	for outcome, n := range map[string]int{"read": read, "filtered": filtered, "written": written} {
		r.items.Add(ctx, int64(n), metric.WithAttributes(append(base, attribute.String("outcome", outcome))...))
	}
	r.commits.Add(ctx, 1, metric.WithAttributes(base...))
}

func (r *OTelMetricRecorder) RecordChunkRollback(ctx context.Context, se *model.StepExecution) {
	r.rollbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_name", jobNameOf(se)),
		attribute.String("step_name", se.StepName),
	))
}

func (r *OTelMetricRecorder) RecordDuration(ctx context.Context, name string, d time.Duration, tags map[string]string) {
	attrs := []attribute.KeyValue{attribute.String("operation", name)}
	for k, v := range tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	r.durations.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

// Flush forces the periodic reader to export now.
func (r *OTelMetricRecorder) Flush(ctx context.Context) error {
	return r.provider.ForceFlush(ctx)
}
