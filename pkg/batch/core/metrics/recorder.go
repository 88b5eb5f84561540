// Package metrics declares the recorder and tracer hooks called by the job runner and step engine.
package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
)

// MetricRecorder receives lifecycle and throughput events.
type MetricRecorder interface {
	RecordJobStart(ctx context.Context, execution *model.JobExecution)
	RecordJobEnd(ctx context.Context, execution *model.JobExecution)
	RecordStepStart(ctx context.Context, execution *model.StepExecution)
	RecordStepEnd(ctx context.Context, execution *model.StepExecution)
	// RecordChunkCommit is called once per committed chunk with the item counts of that chunk.
	RecordChunkCommit(ctx context.Context, execution *model.StepExecution, read, filtered, written int)
	RecordChunkRollback(ctx context.Context, execution *model.StepExecution)
	RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string)
	// Flush delivers buffered measurements. It is called once when the job has ended.
	Flush(ctx context.Context) error
}

// NoOpMetricRecorder discards everything.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder returns a NoOpMetricRecorder.
func NewNoOpMetricRecorder() MetricRecorder { return NoOpMetricRecorder{} }

func (NoOpMetricRecorder) RecordJobStart(context.Context, *model.JobExecution)                    {}
func (NoOpMetricRecorder) RecordJobEnd(context.Context, *model.JobExecution)                      {}
func (NoOpMetricRecorder) RecordStepStart(context.Context, *model.StepExecution)                  {}
func (NoOpMetricRecorder) RecordStepEnd(context.Context, *model.StepExecution)                    {}
func (NoOpMetricRecorder) RecordChunkCommit(context.Context, *model.StepExecution, int, int, int) {}
func (NoOpMetricRecorder) RecordChunkRollback(context.Context, *model.StepExecution)              {}
func (NoOpMetricRecorder) RecordDuration(context.Context, string, time.Duration, map[string]string) {
}
func (NoOpMetricRecorder) Flush(context.Context) error { return nil }

var _ MetricRecorder = NoOpMetricRecorder{}
