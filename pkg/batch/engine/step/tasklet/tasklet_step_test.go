package tasklet_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/taxiemissions/pkg/batch/core/application/port"
	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	taskletstep "github.com/tigerroll/taxiemissions/pkg/batch/engine/step/tasklet"
	"github.com/tigerroll/taxiemissions/pkg/batch/infrastructure/repository/inmemory"
	testutil "github.com/tigerroll/taxiemissions/pkg/batch/test"
)

type funcTasklet func(ctx context.Context, se *model.StepExecution) (model.ExitStatus, error)

func (f funcTasklet) Execute(ctx context.Context, se *model.StepExecution) (model.ExitStatus, error) {
	return f(ctx, se)
}

type stepRecorder struct{ events []string }

func (r *stepRecorder) BeforeStep(_ context.Context, se *model.StepExecution) {
	r.events = append(r.events, "before:"+string(se.Status))
}
func (r *stepRecorder) AfterStep(_ context.Context, se *model.StepExecution) {
	r.events = append(r.events, "after:"+string(se.ExitStatus))
}

func run(t *testing.T, tasklet port.Tasklet, listeners ...port.StepExecutionListener) (*model.StepExecution, error) {
	t.Helper()
	ctx := context.Background()
	repo := inmemory.NewInMemoryJobRepository()
	je := testutil.NewTestJobExecution("taxiEmissionsJob")
	require.NoError(t, repo.SaveJobExecution(ctx, je))
	se := model.NewStepExecution(je, "verifyStep")
	require.NoError(t, repo.SaveStepExecution(ctx, se))

	step := taskletstep.NewTaskletStep("verifyStep", tasklet, repo, listeners, nil, nil)
	err := step.Execute(ctx, je, se)

	stored, findErr := repo.FindStepExecutionByID(ctx, se.ID)
	require.NoError(t, findErr)
	assert.Equal(t, se.Status, stored.Status)
	return se, err
}

func TestTaskletStep_CustomExitStatus(t *testing.T) {
	rec := &stepRecorder{}
	se, err := run(t, funcTasklet(func(_ context.Context, se *model.StepExecution) (model.ExitStatus, error) {
		se.ExecutionContext.Put("violations.zero_passengers", 4)
		return "COMPLETED_WITH_VIOLATIONS", nil
	}), rec)

	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, se.Status)
	assert.Equal(t, model.ExitStatus("COMPLETED_WITH_VIOLATIONS"), se.ExitStatus)
	n, _ := se.ExecutionContext.GetInt("violations.zero_passengers")
	assert.Equal(t, 4, n)
	assert.Equal(t, []string{"before:STARTED", "after:COMPLETED_WITH_VIOLATIONS"}, rec.events)
}

func TestTaskletStep_Failure(t *testing.T) {
	se, err := run(t, funcTasklet(func(context.Context, *model.StepExecution) (model.ExitStatus, error) {
		return model.ExitStatusFailed, errors.New("row count mismatch")
	}))

	require.EqualError(t, err, "row count mismatch")
	assert.Equal(t, model.BatchStatusFailed, se.Status)
	assert.Equal(t, model.FailureList{"row count mismatch"}, se.Failures)
}

func TestTaskletStep_ContextCarriesStepExecution(t *testing.T) {
	var seen *model.StepExecution
	se, err := run(t, funcTasklet(func(ctx context.Context, _ *model.StepExecution) (model.ExitStatus, error) {
		seen = port.GetStepExecutionFromContext(ctx)
		return "", nil
	}))
	require.NoError(t, err)
	assert.Same(t, se, seen)
	assert.Equal(t, model.ExitStatusCompleted, se.ExitStatus)
}
