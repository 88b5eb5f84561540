// Package port defines the contracts between the job runner, the step engine and the
// components (readers, processors, writers, tasklets) an application plugs into them.
package port

import (
	"context"
	"errors"

	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/taxiemissions/pkg/batch/core/tx"
)

// ErrNoMoreItems is returned by ItemReader.Read when the input is exhausted.
var ErrNoMoreItems = errors.New("no more items to read")

// FlowElement is a node of a job flow: a Step or a Split.
type FlowElement interface {
	ID() string
}

// Job is an executable batch job.
type Job interface {
	// Run executes the job's flow and records the outcome on jobExecution.
	Run(ctx context.Context, jobExecution *model.JobExecution) error
	JobName() string
	// ValidateParameters is called by the launcher before an execution is created.
	ValidateParameters(params model.JobParameters) error
}

// JobRunner drives a Job through its lifecycle and persists the final state.
type JobRunner interface {
	Run(ctx context.Context, job Job, jobExecution *model.JobExecution)
}

// Step is a single processing unit of a job.
type Step interface {
	FlowElement
	StepName() string
	// Execute runs the step. Implementations mark stepExecution as completed or failed
	// before returning; a non-nil error means the step failed.
	Execute(ctx context.Context, jobExecution *model.JobExecution, stepExecution *model.StepExecution) error
}

// Split runs several flows concurrently. Each flow is a sequence of steps.
type Split interface {
	FlowElement
	Flows() map[string][]Step
}

// ItemReader reads items one at a time. O is the item type.
type ItemReader[O any] interface {
	// Open prepares the reader. ec is the step's ExecutionContext.
	Open(ctx context.Context, ec model.ExecutionContext) error
	// Read returns the next item, or ErrNoMoreItems at the end of input.
	Read(ctx context.Context) (O, error)
	Close(ctx context.Context) error
}

// ItemProcessor transforms an item. Returning the zero value of O with a nil error
// filters the item out of the chunk.
type ItemProcessor[I, O any] interface {
	Process(ctx context.Context, item I) (O, error)
}

// ItemStream is implemented by processors that prepare per-step state. The chunk step
// calls Open after the reader is open and before the first item is read; an error fails
// the step without reading anything.
type ItemStream interface {
	Open(ctx context.Context, ec model.ExecutionContext) error
}

// ItemWriter writes a chunk of items inside the chunk transaction.
type ItemWriter[I any] interface {
	Open(ctx context.Context, ec model.ExecutionContext) error
	Write(ctx context.Context, tx tx.Tx, items []I) error
	// Close is called after the last chunk was committed. Writers that publish their
	// output at the end of a step do so here.
	Close(ctx context.Context) error
}

// Abortable is implemented by writers that must discard partial output when a step fails.
// The step engine calls Abort instead of Close in that case.
type Abortable interface {
	Abort(ctx context.Context) error
}

// ExecutionContextProvider is implemented by components that expose state
// to be saved into the step ExecutionContext when the step ends.
type ExecutionContextProvider interface {
	ExecutionContext() model.ExecutionContext
}

// Tasklet performs a single operation as a step.
type Tasklet interface {
	Execute(ctx context.Context, stepExecution *model.StepExecution) (model.ExitStatus, error)
}

// JobExecutionListener observes job boundaries.
type JobExecutionListener interface {
	BeforeJob(ctx context.Context, jobExecution *model.JobExecution)
	AfterJob(ctx context.Context, jobExecution *model.JobExecution)
}

// StepExecutionListener observes step boundaries.
type StepExecutionListener interface {
	BeforeStep(ctx context.Context, stepExecution *model.StepExecution)
	AfterStep(ctx context.Context, stepExecution *model.StepExecution)
}

// ChunkListener observes chunk boundaries. AfterChunk is only called for committed chunks.
type ChunkListener interface {
	BeforeChunk(ctx context.Context, stepExecution *model.StepExecution)
	AfterChunk(ctx context.Context, stepExecution *model.StepExecution)
}

type contextKey string

const stepExecutionKey contextKey = "stepExecution"

// GetContextWithStepExecution stores se in ctx.
func GetContextWithStepExecution(ctx context.Context, se *model.StepExecution) context.Context {
	return context.WithValue(ctx, stepExecutionKey, se)
}

// GetStepExecutionFromContext returns the StepExecution stored by GetContextWithStepExecution, or nil.
func GetStepExecutionFromContext(ctx context.Context) *model.StepExecution {
	if se, ok := ctx.Value(stepExecutionKey).(*model.StepExecution); ok {
		return se
	}
	return nil
}
