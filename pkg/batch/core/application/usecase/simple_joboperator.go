package usecase

import (
	"context"
	"fmt"

	repository "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/repository"
	exception "github.com/tigerroll/taxiemissions/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

// SimpleJobOperator stops executions started by a SimpleJobLauncher.
type SimpleJobOperator struct {
	jobRepository repository.JobRepository
	jobLauncher   *SimpleJobLauncher
}

var _ JobOperator = (*SimpleJobOperator)(nil)

func NewSimpleJobOperator(jobRepository repository.JobRepository, launcher *SimpleJobLauncher) *SimpleJobOperator {
	return &SimpleJobOperator{jobRepository: jobRepository, jobLauncher: launcher}
}

func (o *SimpleJobOperator) Stop(ctx context.Context, executionID string) error {
	logger.Infof("JobOperator: Stop requested. Execution ID: %s", executionID)

	jobExecution, err := o.jobRepository.FindJobExecutionByID(ctx, executionID)
	if err != nil {
		return exception.NewBatchError("job_operator", fmt.Sprintf("Failed to load JobExecution (ID: %s)", executionID), err, false, false)
	}
	if jobExecution.Status.IsFinished() {
		return exception.NewBatchErrorf("job_operator", "JobExecution (ID: %s) is already in a finished state (%s)", executionID, jobExecution.Status)
	}

	cancelFunc, ok := o.jobLauncher.GetCancelFunc(executionID)
	if !ok {
		return exception.NewBatchErrorf("job_operator", "JobExecution (ID: %s) is not running in this process", executionID)
	}

	// The runner owns the execution state; cancelling its context makes it record STOPPED.
	cancelFunc()
	logger.Infof("Sent stop signal for JobExecution (ID: %s).", executionID)
	return nil
}
