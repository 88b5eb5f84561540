package runner_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/taxiemissions/pkg/batch/core/application/port"
	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	"github.com/tigerroll/taxiemissions/pkg/batch/core/job/runner"
	"github.com/tigerroll/taxiemissions/pkg/batch/core/job/split"
	taskletstep "github.com/tigerroll/taxiemissions/pkg/batch/engine/step/tasklet"
	"github.com/tigerroll/taxiemissions/pkg/batch/infrastructure/repository/inmemory"
)

type funcTasklet func(ctx context.Context, se *model.StepExecution) (model.ExitStatus, error)

func (f funcTasklet) Execute(ctx context.Context, se *model.StepExecution) (model.ExitStatus, error) {
	return f(ctx, se)
}

// trace records the order in which steps ran.
type trace struct {
	mu    sync.Mutex
	names []string
}

func (tr *trace) add(name string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.names = append(tr.names, name)
}

func (tr *trace) snapshot() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.names...)
}

type fixture struct {
	repo *inmemory.InMemoryJobRepository
	tr   *trace
}

func newFixture() *fixture {
	return &fixture{repo: inmemory.NewInMemoryJobRepository(), tr: &trace{}}
}

func (f *fixture) step(name string, err error) port.Step {
	return taskletstep.NewTaskletStep(name, funcTasklet(func(context.Context, *model.StepExecution) (model.ExitStatus, error) {
		f.tr.add(name)
		return "", err
	}), f.repo, nil, nil, nil)
}

func (f *fixture) run(t *testing.T, ctx context.Context, job port.Job) *model.JobExecution {
	t.Helper()
	je := model.NewJobExecution(job.JobName(), model.NewJobParameters())
	require.NoError(t, f.repo.SaveJobExecution(context.Background(), je))
	runner.NewSimpleJobRunner(f.repo).Run(ctx, job, je)
	return je
}

type jobRecorder struct{ before, after int }

func (r *jobRecorder) BeforeJob(context.Context, *model.JobExecution) { r.before++ }
func (r *jobRecorder) AfterJob(context.Context, *model.JobExecution)  { r.after++ }

func TestFlowJob_RunsStepsAndSplits(t *testing.T) {
	f := newFixture()
	listener := &jobRecorder{}
	flows := map[string][]port.Step{
		"yellow": {f.step("yellowCleanStep", nil), f.step("yellowTransformStep", nil)},
		"green":  {f.step("greenCleanStep", nil), f.step("greenTransformStep", nil)},
	}
	job := runner.NewFlowJob("taxiEmissionsJob", []port.FlowElement{
		f.step("migrateStep", nil),
		split.NewConcreteSplit("tripFlows", flows, 0),
		f.step("analysisStep", nil),
	}, f.repo, []port.JobExecutionListener{listener}, nil, nil, nil)

	je := f.run(t, context.Background(), job)

	assert.Equal(t, model.BatchStatusCompleted, je.Status)
	assert.Equal(t, model.ExitStatusCompleted, je.ExitStatus)
	assert.Equal(t, 1, listener.before)
	assert.Equal(t, 1, listener.after)

	names := f.tr.snapshot()
	require.Len(t, names, 6)
	assert.Equal(t, "migrateStep", names[0])
	assert.Equal(t, "analysisStep", names[5])
	pos := map[string]int{}
	for i, n := range names {
		pos[n] = i
	}
	assert.Less(t, pos["yellowCleanStep"], pos["yellowTransformStep"])
	assert.Less(t, pos["greenCleanStep"], pos["greenTransformStep"])

	stored, err := f.repo.FindJobExecutionByID(context.Background(), je.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, stored.Status)
	assert.Len(t, stored.StepExecutions, 6)
}

func TestFlowJob_FailedFlowDoesNotCancelSibling(t *testing.T) {
	f := newFixture()
	boom := errors.New("green source table missing column 'lpep_pickup_datetime'")
	flows := map[string][]port.Step{
		"green":  {f.step("greenTransformStep", boom), f.step("greenExportStep", nil)},
		"yellow": {f.step("yellowTransformStep", nil), f.step("yellowExportStep", nil)},
	}
	job := runner.NewFlowJob("taxiEmissionsJob", []port.FlowElement{
		split.NewConcreteSplit("tripFlows", flows, 1),
		f.step("analysisStep", nil),
	}, f.repo, nil, nil, nil, nil)

	je := f.run(t, context.Background(), job)

	assert.Equal(t, model.BatchStatusFailed, je.Status)
	names := f.tr.snapshot()
	assert.Contains(t, names, "yellowExportStep")
	assert.NotContains(t, names, "greenExportStep")
	assert.NotContains(t, names, "analysisStep")
	require.NotEmpty(t, je.Failures)
	assert.Contains(t, je.Failures[0], "flow 'green'")
}

func TestFlowJob_StopsWhenContextCancelled(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	job := runner.NewFlowJob("taxiEmissionsJob", []port.FlowElement{
		taskletstep.NewTaskletStep("seedStep", funcTasklet(func(context.Context, *model.StepExecution) (model.ExitStatus, error) {
			cancel()
			return "", nil
		}), f.repo, nil, nil, nil),
		f.step("analysisStep", nil),
	}, f.repo, nil, nil, nil, nil)

	je := f.run(t, ctx, job)

	assert.Equal(t, model.BatchStatusStopped, je.Status)
	assert.Equal(t, 130, je.Status.ExitCode())
	assert.Empty(t, f.tr.snapshot())
	require.NotNil(t, je.EndTime)
	assert.WithinDuration(t, time.Now(), *je.EndTime, time.Minute)
}

func TestFlowJob_ValidateParameters(t *testing.T) {
	job := runner.NewFlowJob("taxiEmissionsJob", nil, inmemory.NewInMemoryJobRepository(), nil, nil, nil,
		func(p model.JobParameters) error {
			if _, ok := p.GetString("color"); !ok {
				return errors.New("missing 'color'")
			}
			return nil
		})

	assert.Error(t, job.ValidateParameters(model.NewJobParameters()))
	params := model.NewJobParameters()
	params.Put("color", "yellow")
	assert.NoError(t, job.ValidateParameters(params))
}
