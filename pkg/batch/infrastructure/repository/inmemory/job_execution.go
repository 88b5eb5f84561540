package inmemory

import (
	"context"
	"fmt"

	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/repository"
)

// SaveJobExecution stores a new JobExecution. Saving an existing ID is an error.
func (r *InMemoryJobRepository) SaveJobExecution(_ context.Context, jobExecution *model.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobExecutions[jobExecution.ID]; exists {
		return fmt.Errorf("JobExecution with ID %s already exists", jobExecution.ID)
	}
	r.jobExecutions[jobExecution.ID] = cloneJobExecution(jobExecution)
	return nil
}

// UpdateJobExecution replaces the stored copy and bumps Version.
func (r *InMemoryJobRepository) UpdateJobExecution(_ context.Context, jobExecution *model.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobExecutions[jobExecution.ID]; !exists {
		return fmt.Errorf("JobExecution with ID %s not found for update", jobExecution.ID)
	}
	jobExecution.Version++
	r.jobExecutions[jobExecution.ID] = cloneJobExecution(jobExecution)
	return nil
}

// FindJobExecutionByID returns a copy with its StepExecutions attached.
func (r *InMemoryJobRepository) FindJobExecutionByID(_ context.Context, id string) (*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.jobExecutions[id]
	if !ok {
		return nil, repository.ErrJobExecutionNotFound
	}
	return r.withSteps(stored), nil
}

// FindLatestJobExecution returns the execution of jobName with the latest CreateTime.
func (r *InMemoryJobRepository) FindLatestJobExecution(_ context.Context, jobName string) (*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *model.JobExecution
	for _, je := range r.jobExecutions {
		if je.JobName != jobName {
			continue
		}
		if latest == nil || je.CreateTime.After(latest.CreateTime) {
			latest = je
		}
	}
	if latest == nil {
		return nil, repository.ErrJobExecutionNotFound
	}
	return r.withSteps(latest), nil
}

// withSteps must be called with r.mu held.
func (r *InMemoryJobRepository) withSteps(stored *model.JobExecution) *model.JobExecution {
	je := cloneJobExecution(stored)
	for _, se := range r.sortedSteps(je.ID) {
		se.JobExecution = je
		je.StepExecutions = append(je.StepExecutions, se)
	}
	return je
}
