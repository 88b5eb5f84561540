package usecase

import (
	"context"
	"fmt"
	"time"

	config "github.com/tigerroll/taxiemissions/pkg/batch/core/config"
	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/repository"
	exception "github.com/tigerroll/taxiemissions/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

// SimpleJobExplorer reads executions back from the JobRepository.
type SimpleJobExplorer struct {
	jobRepository   repository.JobRepository
	pollingInterval time.Duration
}

var _ JobExplorer = (*SimpleJobExplorer)(nil)

func NewSimpleJobExplorer(jobRepository repository.JobRepository, batch *config.BatchConfig) *SimpleJobExplorer {
	interval := time.Duration(batch.PollingIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &SimpleJobExplorer{jobRepository: jobRepository, pollingInterval: interval}
}

// WithPollingInterval overrides the interval used by WaitForCompletion.
func (e *SimpleJobExplorer) WithPollingInterval(d time.Duration) *SimpleJobExplorer {
	e.pollingInterval = d
	return e
}

func (e *SimpleJobExplorer) GetJobExecution(ctx context.Context, executionID string) (*model.JobExecution, error) {
	jobExecution, err := e.jobRepository.FindJobExecutionByID(ctx, executionID)
	if err != nil {
		return nil, exception.NewBatchError("job_explorer", fmt.Sprintf("Failed to retrieve JobExecution (ID: %s)", executionID), err, false, false)
	}
	return jobExecution, nil
}

func (e *SimpleJobExplorer) GetLastJobExecution(ctx context.Context, jobName string) (*model.JobExecution, error) {
	jobExecution, err := e.jobRepository.FindLatestJobExecution(ctx, jobName)
	if err != nil {
		return nil, exception.NewBatchError("job_explorer", fmt.Sprintf("Failed to retrieve the latest JobExecution of '%s'", jobName), err, false, false)
	}
	return jobExecution, nil
}

func (e *SimpleJobExplorer) WaitForCompletion(ctx context.Context, executionID string) (*model.JobExecution, error) {
	ticker := time.NewTicker(e.pollingInterval)
	defer ticker.Stop()
	for {
		latest, err := e.GetJobExecution(ctx, executionID)
		if err != nil {
			logger.Errorf("Failed to fetch latest status for JobExecution (ID: %s): %v", executionID, err)
		} else if latest.Status.IsFinished() {
			return latest, nil
		} else {
			logger.Debugf("JobExecution (ID: %s) is still running. Current status: %s", executionID, latest.Status)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
