package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/taxiemissions/pkg/batch/core/application/port"
	"github.com/tigerroll/taxiemissions/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/taxiemissions/pkg/batch/core/config"
	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	"github.com/tigerroll/taxiemissions/pkg/batch/core/job/runner"
	taskletstep "github.com/tigerroll/taxiemissions/pkg/batch/engine/step/tasklet"
	"github.com/tigerroll/taxiemissions/pkg/batch/infrastructure/repository/inmemory"
)

type funcTasklet func(ctx context.Context, se *model.StepExecution) (model.ExitStatus, error)

func (f funcTasklet) Execute(ctx context.Context, se *model.StepExecution) (model.ExitStatus, error) {
	return f(ctx, se)
}

type harness struct {
	repo     *inmemory.InMemoryJobRepository
	launcher *usecase.SimpleJobLauncher
	operator *usecase.SimpleJobOperator
	explorer *usecase.SimpleJobExplorer
}

func newHarness(t *testing.T, tasklet port.Tasklet) *harness {
	t.Helper()
	cfg := config.NewConfig()
	repo := inmemory.NewInMemoryJobRepository()
	job := runner.NewFlowJob("taxiEmissionsJob", []port.FlowElement{
		taskletstep.NewTaskletStep("workStep", tasklet, repo, nil, nil, nil),
	}, repo, nil, nil, nil, func(p model.JobParameters) error {
		if _, ok := p.GetString("color"); ok {
			return nil
		}
		return errors.New("parameter 'color' is required")
	})
	registry, err := usecase.NewJobRegistry(usecase.JobRegistryParams{Jobs: []port.Job{job}})
	require.NoError(t, err)

	launcher := usecase.NewSimpleJobLauncher(repo, registry, runner.NewSimpleJobRunner(repo), cfg)
	return &harness{
		repo:     repo,
		launcher: launcher,
		operator: usecase.NewSimpleJobOperator(repo, launcher),
		explorer: usecase.NewSimpleJobExplorer(repo, &cfg.Surfin.Batch).WithPollingInterval(10 * time.Millisecond),
	}
}

func params() model.JobParameters {
	p := model.NewJobParameters()
	p.Put("color", "yellow")
	return p
}

func TestLaunch_RunsToCompletion(t *testing.T) {
	h := newHarness(t, funcTasklet(func(context.Context, *model.StepExecution) (model.ExitStatus, error) {
		return "", nil
	}))
	ctx := context.Background()

	je, err := h.launcher.Launch(ctx, "taxiEmissionsJob", params())
	require.NoError(t, err)

	done, err := h.explorer.WaitForCompletion(ctx, je.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, done.Status)

	last, err := h.explorer.GetLastJobExecution(ctx, "taxiEmissionsJob")
	require.NoError(t, err)
	assert.Equal(t, je.ID, last.ID)
	h.launcher.Wait()
}

func TestLaunch_Rejected(t *testing.T) {
	h := newHarness(t, funcTasklet(func(context.Context, *model.StepExecution) (model.ExitStatus, error) {
		return "", nil
	}))

	_, err := h.launcher.Launch(context.Background(), "unknownJob", params())
	assert.ErrorContains(t, err, "not registered")

	_, err = h.launcher.Launch(context.Background(), "taxiEmissionsJob", model.NewJobParameters())
	assert.ErrorContains(t, err, "color")
}

func TestOperator_Stop(t *testing.T) {
	started := make(chan struct{})
	h := newHarness(t, funcTasklet(func(ctx context.Context, _ *model.StepExecution) (model.ExitStatus, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	}))
	ctx := context.Background()

	je, err := h.launcher.Launch(ctx, "taxiEmissionsJob", params())
	require.NoError(t, err)
	<-started

	require.NoError(t, h.operator.Stop(ctx, je.ID))
	done, err := h.explorer.WaitForCompletion(ctx, je.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusStopped, done.Status)
	h.launcher.Wait()

	assert.Error(t, h.operator.Stop(ctx, je.ID), "finished executions cannot be stopped")
}

func TestJobRegistry_Duplicate(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	j := runner.NewFlowJob("taxiEmissionsJob", nil, repo, nil, nil, nil, nil)
	_, err := usecase.NewJobRegistry(usecase.JobRegistryParams{Jobs: []port.Job{j, j}})
	assert.Error(t, err)
}
