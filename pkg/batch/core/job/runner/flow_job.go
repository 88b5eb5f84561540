package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	port "github.com/tigerroll/taxiemissions/pkg/batch/core/application/port"
	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/taxiemissions/pkg/batch/core/metrics"
	exception "github.com/tigerroll/taxiemissions/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

// ParametersValidator checks job parameters before an execution is created.
type ParametersValidator func(params model.JobParameters) error

// FlowJob runs a fixed sequence of flow elements. A failing element ends the job.
type FlowJob struct {
	name           string
	elements       []port.FlowElement
	jobRepository  repository.JobRepository
	jobListeners   []port.JobExecutionListener
	metricRecorder metrics.MetricRecorder
	tracer         metrics.Tracer
	validator      ParametersValidator
}

var _ port.Job = (*FlowJob)(nil)

// NewFlowJob creates a FlowJob.
//
// Parameters:
//
//	name: The job name.
//	elements: Steps and splits, run in order.
//	jobRepository: Stores the step executions the job creates.
//	jobListeners: Notified before and after the job.
//	metricRecorder: Records job metrics. nil means no-op.
//	tracer: Opens the job span. nil means no-op.
//	validator: Checks job parameters. nil accepts any.
//
// Returns:
//
//	*FlowJob: The job.
func NewFlowJob(
	name string,
	elements []port.FlowElement,
	jobRepository repository.JobRepository,
	jobListeners []port.JobExecutionListener,
	metricRecorder metrics.MetricRecorder,
	tracer metrics.Tracer,
	validator ParametersValidator,
) *FlowJob {
	if metricRecorder == nil {
		metricRecorder = metrics.NewNoOpMetricRecorder()
	}
	if tracer == nil {
		tracer = metrics.NewNoOpTracer()
	}
	return &FlowJob{
		name:           name,
		elements:       elements,
		jobRepository:  jobRepository,
		jobListeners:   jobListeners,
		metricRecorder: metricRecorder,
		tracer:         tracer,
		validator:      validator,
	}
}

func (j *FlowJob) JobName() string { return j.name }

// Elements returns the flow in execution order.
func (j *FlowJob) Elements() []port.FlowElement { return j.elements }

func (j *FlowJob) ValidateParameters(params model.JobParameters) error {
	if j.validator == nil {
		return nil
	}
	if err := j.validator(params); err != nil {
		return exception.NewBatchError(j.name, "invalid job parameters", err, false, false)
	}
	return nil
}

// Run executes every element in order and leaves jobExecution in a terminal state.
func (j *FlowJob) Run(ctx context.Context, jobExecution *model.JobExecution) (runErr error) {
	logger.Infof("Starting Job '%s' (Execution ID: %s).", j.name, jobExecution.ID)
	ctx, endSpan := j.tracer.StartJobSpan(ctx, jobExecution)
	defer endSpan()

	j.metricRecorder.RecordJobStart(ctx, jobExecution)
	for _, l := range j.jobListeners {
		l.BeforeJob(ctx, jobExecution)
	}

	defer func() {
		for _, l := range j.jobListeners {
			l.AfterJob(ctx, jobExecution)
		}
		j.metricRecorder.RecordJobEnd(ctx, jobExecution)
		logger.Infof("Job '%s' (Execution ID: %s) finished. Final Status: %s, Exit Status: %s",
			j.name, jobExecution.ID, jobExecution.Status, jobExecution.ExitStatus)
	}()

	for _, element := range j.elements {
		if err := ctx.Err(); err != nil {
			logger.Warnf("Context cancelled, interrupting execution of Job '%s': %v", j.name, err)
			jobExecution.AddFailureException(err)
			jobExecution.MarkAsStopped()
			return err
		}

		var err error
		switch elem := element.(type) {
		case port.Step:
			err = j.runStep(ctx, jobExecution, elem)
		case port.Split:
			err = j.runSplit(ctx, jobExecution, elem)
		default:
			err = exception.NewBatchErrorf(j.name, "Unknown flow element type: %T (ID: %s)", element, element.ID())
		}

		if err != nil {
			j.tracer.RecordError(ctx, "job_runner", err)
			if errors.Is(err, context.Canceled) {
				jobExecution.AddFailureException(err)
				jobExecution.MarkAsStopped()
			} else {
				jobExecution.MarkAsFailed(err)
			}
			logger.Errorf("Job '%s': flow element '%s' failed: %v", j.name, element.ID(), err)
			return err
		}

		if err := j.jobRepository.UpdateJobExecution(ctx, jobExecution); err != nil {
			logger.Warnf("Job '%s': Failed to update JobExecution after '%s': %v", j.name, element.ID(), err)
		}
	}

	jobExecution.MarkAsCompleted()
	return nil
}

// runStep creates, saves and executes one StepExecution.
func (j *FlowJob) runStep(ctx context.Context, jobExecution *model.JobExecution, step port.Step) error {
	stepExecution := model.NewStepExecution(jobExecution, step.StepName())
	if err := j.jobRepository.SaveStepExecution(ctx, stepExecution); err != nil {
		return exception.NewBatchError(j.name, fmt.Sprintf("Error saving StepExecution '%s'", step.StepName()), err, false, false)
	}
	if err := step.Execute(ctx, jobExecution, stepExecution); err != nil {
		return fmt.Errorf("step '%s': %w", step.StepName(), err)
	}
	logger.Infof("Job '%s': Step '%s' completed. ExitStatus: %s", j.name, step.StepName(), stepExecution.ExitStatus)
	return nil
}

// runSplit runs every flow of split concurrently. A failing flow stops only itself;
// the failures of all flows are combined once every flow has ended.
func (j *FlowJob) runSplit(ctx context.Context, jobExecution *model.JobExecution, split port.Split) error {
	flows := split.Flows()
	names := make([]string, 0, len(flows))
	for name := range flows {
		names = append(names, name)
	}
	sort.Strings(names)
	logger.Infof("Job '%s': Executing Split '%s' with flows %v.", j.name, split.ID(), names)

	var g errgroup.Group
	if b, ok := split.(interface{ MaxParallel() int }); ok && b.MaxParallel() > 0 {
		g.SetLimit(b.MaxParallel())
	}

	var (
		mu     sync.Mutex
		result *multierror.Error
	)
	for _, name := range names {
		steps := flows[name]
		g.Go(func() error {
			for _, step := range steps {
				if err := ctx.Err(); err != nil {
					return j.collect(&mu, &result, name, err)
				}
				if err := j.runStep(ctx, jobExecution, step); err != nil {
					return j.collect(&mu, &result, name, err)
				}
			}
			logger.Infof("Job '%s': Flow '%s' of Split '%s' completed.", j.name, name, split.ID())
			return nil
		})
	}
	_ = g.Wait()
	return result.ErrorOrNil()
}

func (j *FlowJob) collect(mu *sync.Mutex, result **multierror.Error, flow string, err error) error {
	logger.Errorf("Job '%s': Flow '%s' failed: %v", j.name, flow, err)
	mu.Lock()
	defer mu.Unlock()
	*result = multierror.Append(*result, fmt.Errorf("flow '%s': %w", flow, err))
	return err
}
