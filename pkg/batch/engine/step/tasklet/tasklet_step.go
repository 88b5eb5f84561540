// Package tasklet implements the step that runs a single port.Tasklet.
package tasklet

import (
	"context"

	port "github.com/tigerroll/taxiemissions/pkg/batch/core/application/port"
	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/taxiemissions/pkg/batch/core/metrics"
	exception "github.com/tigerroll/taxiemissions/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

// TaskletStep runs a Tasklet once. The tasklet manages its own transactions, if any.
type TaskletStep struct {
	name                   string
	tasklet                port.Tasklet
	jobRepository          repository.JobRepository
	stepExecutionListeners []port.StepExecutionListener
	metricRecorder         metrics.MetricRecorder
	tracer                 metrics.Tracer
}

// NewTaskletStep creates a TaskletStep. Nil recorder or tracer fall back to no-ops.
func NewTaskletStep(
	name string,
	tasklet port.Tasklet,
	jobRepository repository.JobRepository,
	stepExecutionListeners []port.StepExecutionListener,
	metricRecorder metrics.MetricRecorder,
	tracer metrics.Tracer,
) *TaskletStep {
	if metricRecorder == nil {
		metricRecorder = metrics.NewNoOpMetricRecorder()
	}
	if tracer == nil {
		tracer = metrics.NewNoOpTracer()
	}
	return &TaskletStep{
		name:                   name,
		tasklet:                tasklet,
		jobRepository:          jobRepository,
		stepExecutionListeners: stepExecutionListeners,
		metricRecorder:         metricRecorder,
		tracer:                 tracer,
	}
}

var _ port.Step = (*TaskletStep)(nil)

func (s *TaskletStep) ID() string       { return s.name }
func (s *TaskletStep) StepName() string { return s.name }

// Execute runs the tasklet. The exit status it returns becomes the step's ExitStatus,
// so a tasklet can complete with a custom status such as COMPLETED_WITH_VIOLATIONS.
func (s *TaskletStep) Execute(ctx context.Context, jobExecution *model.JobExecution, stepExecution *model.StepExecution) (err error) {
	logger.Infof("TaskletStep '%s' executing.", s.name)
	ctx, endSpan := s.tracer.StartStepSpan(ctx, stepExecution)
	defer endSpan()
	ctx = port.GetContextWithStepExecution(ctx, stepExecution)

	stepExecution.MarkAsStarted()
	if err := s.jobRepository.UpdateStepExecution(ctx, stepExecution); err != nil {
		return exception.NewBatchError(s.name, "Failed to update StepExecution status to STARTED", err, false, false)
	}
	s.metricRecorder.RecordStepStart(ctx, stepExecution)
	for _, l := range s.stepExecutionListeners {
		l.BeforeStep(ctx, stepExecution)
	}

	exitStatus, err := s.tasklet.Execute(ctx, stepExecution)
	if p, ok := s.tasklet.(port.ExecutionContextProvider); ok {
		stepExecution.ExecutionContext.Merge(p.ExecutionContext())
	}

	if err != nil {
		s.tracer.RecordError(ctx, s.name, err)
		stepExecution.MarkAsFailed(err)
	} else {
		if exitStatus == "" {
			exitStatus = model.ExitStatusCompleted
		}
		stepExecution.MarkAsCompletedWith(exitStatus)
	}

	for _, l := range s.stepExecutionListeners {
		l.AfterStep(ctx, stepExecution)
	}
	s.metricRecorder.RecordStepEnd(ctx, stepExecution)

	if updateErr := s.jobRepository.UpdateStepExecution(ctx, stepExecution); updateErr != nil {
		logger.Errorf("TaskletStep '%s': Failed to update final StepExecution state: %v", s.name, updateErr)
		if err == nil {
			err = updateErr
		}
	}

	logger.Infof("TaskletStep '%s' finished. ExitStatus: %s", s.name, stepExecution.ExitStatus)
	return err
}
