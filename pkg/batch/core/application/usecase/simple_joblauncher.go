package usecase

import (
	"context"
	"fmt"
	"sync"

	port "github.com/tigerroll/taxiemissions/pkg/batch/core/application/port"
	config "github.com/tigerroll/taxiemissions/pkg/batch/core/config"
	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/repository"
	exception "github.com/tigerroll/taxiemissions/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

// SimpleJobLauncher runs jobs in-process, one goroutine per execution.
type SimpleJobLauncher struct {
	jobRepository repository.JobRepository
	registry      *JobRegistry
	jobRunner     port.JobRunner
	cfg           *config.Config

	// activeJobCancellations holds the cancel functions for running jobs.
	activeJobCancellations map[string]context.CancelFunc
	mu                     sync.Mutex
	wg                     sync.WaitGroup
}

var _ JobLauncher = (*SimpleJobLauncher)(nil)

func NewSimpleJobLauncher(
	repo repository.JobRepository,
	registry *JobRegistry,
	runner port.JobRunner,
	cfg *config.Config,
) *SimpleJobLauncher {
	return &SimpleJobLauncher{
		jobRepository:          repo,
		registry:               registry,
		jobRunner:              runner,
		cfg:                    cfg,
		activeJobCancellations: make(map[string]context.CancelFunc),
	}
}

func (l *SimpleJobLauncher) registerCancelFunc(executionID string, cancelFunc context.CancelFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.activeJobCancellations[executionID] = cancelFunc
}

func (l *SimpleJobLauncher) unregisterCancelFunc(executionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.activeJobCancellations, executionID)
}

// GetCancelFunc returns the cancel function of a running execution.
func (l *SimpleJobLauncher) GetCancelFunc(executionID string) (context.CancelFunc, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cancelFunc, ok := l.activeJobCancellations[executionID]
	return cancelFunc, ok
}

// Launch starts jobName with params.
func (l *SimpleJobLauncher) Launch(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error) {
	const op = "SimpleJobLauncher.Launch"
	logger.Infof("Launching Job '%s'. Parameters: %s", jobName, params.Masked(l.cfg.IsMaskedParameter))

	job, err := l.registry.Job(jobName)
	if err != nil {
		return nil, err
	}
	if err := job.ValidateParameters(params); err != nil {
		logger.Errorf("Job '%s': JobParameters validation failed: %v", jobName, err)
		return nil, err
	}

	if latest, err := l.jobRepository.FindLatestJobExecution(ctx, jobName); err == nil && !latest.Status.IsFinished() {
		logger.Warnf("Job '%s': previous execution (ID: %s) is still recorded as %s; it was likely interrupted.",
			jobName, latest.ID, latest.Status)
	}

	jobExecution := model.NewJobExecution(jobName, params)
	jobCtx, cancel := context.WithCancel(ctx)
	jobExecution.CancelFunc = cancel

	if err := l.jobRepository.SaveJobExecution(ctx, jobExecution); err != nil {
		cancel()
		return nil, exception.NewBatchError(op, fmt.Sprintf("Failed to save JobExecution for '%s'", jobName), err, false, false)
	}
	l.registerCancelFunc(jobExecution.ID, cancel)
	logger.Debugf("Initially saved JobExecution (ID: %s) (Status: %s).", jobExecution.ID, jobExecution.Status)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer l.unregisterCancelFunc(jobExecution.ID)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("Panic recovered in Job '%s' (Execution ID: %s): %v", jobName, jobExecution.ID, r)
				jobExecution.MarkAsFailed(fmt.Errorf("panic: %v", r))
				if err := l.jobRepository.UpdateJobExecution(context.WithoutCancel(jobCtx), jobExecution); err != nil {
					logger.Errorf("Failed to persist failed JobExecution (ID: %s): %v", jobExecution.ID, err)
				}
			}
		}()
		l.jobRunner.Run(jobCtx, job, jobExecution)
	}()

	return jobExecution, nil
}

// Wait blocks until every launched execution has returned.
func (l *SimpleJobLauncher) Wait() {
	l.wg.Wait()
}
