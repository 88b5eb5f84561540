// Package inmemory keeps execution metadata in process memory. It backs tests and runs
// configured without a metadata database.
package inmemory

import (
	"sync"

	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/repository"
)

// InMemoryJobRepository stores copies of the executions it is given, so callers
// can keep mutating their own instances without racing with readers.
type InMemoryJobRepository struct {
	jobExecutions  map[string]*model.JobExecution
	stepExecutions map[string]*model.StepExecution
	mu             sync.RWMutex
}

// NewInMemoryJobRepository returns an empty repository.
func NewInMemoryJobRepository() *InMemoryJobRepository {
	return &InMemoryJobRepository{
		jobExecutions:  make(map[string]*model.JobExecution),
		stepExecutions: make(map[string]*model.StepExecution),
	}
}

var _ repository.JobRepository = (*InMemoryJobRepository)(nil)

// Close is a no-op.
func (r *InMemoryJobRepository) Close() error {
	return nil
}

func cloneJobExecution(je *model.JobExecution) *model.JobExecution {
	out := &model.JobExecution{
		ID:               je.ID,
		JobName:          je.JobName,
		Parameters:       je.Parameters,
		StartTime:        je.StartTime,
		Status:           je.Status,
		ExitStatus:       je.ExitStatus,
		Failures:         append(model.FailureList{}, je.Failures...),
		Version:          je.Version,
		CreateTime:       je.CreateTime,
		LastUpdated:      je.LastUpdated,
		ExecutionContext: je.ExecutionContext.Copy(),
		CurrentStepName:  je.CurrentStepName,
		StepExecutions:   []*model.StepExecution{},
	}
	if je.EndTime != nil {
		end := *je.EndTime
		out.EndTime = &end
	}
	return out
}

func cloneStepExecution(se *model.StepExecution) *model.StepExecution {
	out := *se
	out.JobExecution = nil
	out.Failures = append(model.FailureList{}, se.Failures...)
	out.ExecutionContext = se.ExecutionContext.Copy()
	if se.EndTime != nil {
		end := *se.EndTime
		out.EndTime = &end
	}
	return &out
}
