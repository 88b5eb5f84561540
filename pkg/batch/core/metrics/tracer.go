package metrics

import (
	"context"

	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
)

// Tracer opens spans around jobs and steps. The returned function ends the span.
type Tracer interface {
	StartJobSpan(ctx context.Context, execution *model.JobExecution) (context.Context, func())
	StartStepSpan(ctx context.Context, execution *model.StepExecution) (context.Context, func())
	RecordError(ctx context.Context, module string, err error)
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}

// NoOpTracer does nothing.
type NoOpTracer struct{}

// NewNoOpTracer returns a NoOpTracer.
func NewNoOpTracer() Tracer { return NoOpTracer{} }

func (NoOpTracer) StartJobSpan(ctx context.Context, _ *model.JobExecution) (context.Context, func()) {
	return ctx, func() {}
}
func (NoOpTracer) StartStepSpan(ctx context.Context, _ *model.StepExecution) (context.Context, func()) {
	return ctx, func() {}
}
func (NoOpTracer) RecordError(context.Context, string, error)                  {}
func (NoOpTracer) RecordEvent(context.Context, string, map[string]interface{}) {}

var _ Tracer = NoOpTracer{}
