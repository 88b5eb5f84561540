package inmemory

import (
	"context"
	"fmt"
	"sort"

	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/repository"
)

func (r *InMemoryJobRepository) SaveStepExecution(_ context.Context, stepExecution *model.StepExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.stepExecutions[stepExecution.ID]; exists {
		return fmt.Errorf("StepExecution with ID %s already exists", stepExecution.ID)
	}
	r.stepExecutions[stepExecution.ID] = cloneStepExecution(stepExecution)
	return nil
}

func (r *InMemoryJobRepository) UpdateStepExecution(_ context.Context, stepExecution *model.StepExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.stepExecutions[stepExecution.ID]; !exists {
		return fmt.Errorf("StepExecution with ID %s not found for update", stepExecution.ID)
	}
	stepExecution.Version++
	r.stepExecutions[stepExecution.ID] = cloneStepExecution(stepExecution)
	return nil
}

func (r *InMemoryJobRepository) FindStepExecutionByID(_ context.Context, id string) (*model.StepExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	se, ok := r.stepExecutions[id]
	if !ok {
		return nil, repository.ErrStepExecutionNotFound
	}
	return cloneStepExecution(se), nil
}

func (r *InMemoryJobRepository) FindStepExecutionsByJobExecutionID(_ context.Context, jobExecutionID string) ([]*model.StepExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedSteps(jobExecutionID), nil
}

// sortedSteps must be called with r.mu held.
func (r *InMemoryJobRepository) sortedSteps(jobExecutionID string) []*model.StepExecution {
	var out []*model.StepExecution
	for _, se := range r.stepExecutions {
		if se.JobExecutionID == jobExecutionID {
			out = append(out, cloneStepExecution(se))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}
