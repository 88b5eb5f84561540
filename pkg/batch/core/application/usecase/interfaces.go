// Package usecase exposes launching, stopping and inspecting job executions.
package usecase

import (
	"context"

	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
)

// JobLauncher starts a registered job.
type JobLauncher interface {
	// Launch validates params, persists a new JobExecution and runs the job asynchronously.
	// The returned error concerns the launch itself, not the job's outcome.
	Launch(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error)
}

// JobOperator controls running executions.
type JobOperator interface {
	// Stop requests a running execution to stop. The runner records STOPPED once the
	// current step returns.
	Stop(ctx context.Context, executionID string) error
}

// JobExplorer queries batch metadata.
type JobExplorer interface {
	GetJobExecution(ctx context.Context, executionID string) (*model.JobExecution, error)
	GetLastJobExecution(ctx context.Context, jobName string) (*model.JobExecution, error)
	// WaitForCompletion polls the execution until it reaches a terminal status or ctx ends.
	WaitForCompletion(ctx context.Context, executionID string) (*model.JobExecution, error)
}
