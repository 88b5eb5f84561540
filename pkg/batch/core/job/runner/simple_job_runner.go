// Package runner executes jobs built from steps and splits and persists their outcome.
package runner

import (
	"context"

	port "github.com/tigerroll/taxiemissions/pkg/batch/core/application/port"
	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/repository"
	logger "github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

// SimpleJobRunner marks the execution as started, runs the job and stores the final state.
type SimpleJobRunner struct {
	jobRepository repository.JobRepository
}

// NewSimpleJobRunner creates a SimpleJobRunner.
func NewSimpleJobRunner(repo repository.JobRepository) *SimpleJobRunner {
	return &SimpleJobRunner{jobRepository: repo}
}

// Run never returns an error; the outcome is recorded on jobExecution.
func (r *SimpleJobRunner) Run(ctx context.Context, job port.Job, jobExecution *model.JobExecution) {
	if jobExecution.Status == model.BatchStatusStarting {
		jobExecution.MarkAsStarted()
		if err := r.jobRepository.UpdateJobExecution(ctx, jobExecution); err != nil {
			logger.Errorf("JobRunner: Failed to update JobExecution (ID: %s) status to STARTED: %v", jobExecution.ID, err)
		}
	}

	err := job.Run(ctx, jobExecution)
	if err != nil && !jobExecution.Status.IsFinished() {
		jobExecution.MarkAsFailed(err)
	} else if err == nil && !jobExecution.Status.IsFinished() {
		jobExecution.MarkAsCompleted()
	}

	// The job context may be cancelled by now; the final state must still be written.
	if updateErr := r.jobRepository.UpdateJobExecution(context.WithoutCancel(ctx), jobExecution); updateErr != nil {
		logger.Errorf("JobRunner: Failed to update final JobExecution (ID: %s) state: %v", jobExecution.ID, updateErr)
	}
}

var _ port.JobRunner = (*SimpleJobRunner)(nil)
