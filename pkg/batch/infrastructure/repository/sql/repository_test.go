package sql_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/taxiemissions/pkg/batch/core/config/bootstrap"
	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/repository"
	sqlrepo "github.com/tigerroll/taxiemissions/pkg/batch/infrastructure/repository/sql"
	testutil "github.com/tigerroll/taxiemissions/pkg/batch/test"
)

func newRepository(t *testing.T) *sqlrepo.SQLJobRepository {
	t.Helper()
	resolver := testutil.NewSQLiteResolver(t, "metadata")
	require.NoError(t, bootstrap.RunFrameworkMigrations(context.Background(), resolver, "metadata"))
	return sqlrepo.NewSQLJobRepository(resolver, "metadata")
}

func TestSQLJobRepository_JobExecutionLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t)

	params := testutil.NewTestJobParameters(map[string]interface{}{"color": "green"})
	je := model.NewJobExecution("taxiEmissionsJob", params)
	require.NoError(t, repo.SaveJobExecution(ctx, je))

	je.MarkAsStarted()
	je.ExecutionContext.Put("variants", "yellow,green")
	require.NoError(t, repo.UpdateJobExecution(ctx, je))
	assert.Equal(t, 1, je.Version)

	se := model.NewStepExecution(je, "greenTransformStep")
	se.MarkAsStarted()
	require.NoError(t, repo.SaveStepExecution(ctx, se))
	se.ReadCount, se.WriteCount, se.CommitCount = 10, 9, 1
	se.FilterCount = 1
	se.MarkAsCompleted()
	require.NoError(t, repo.UpdateStepExecution(ctx, se))

	je.MarkAsFailed(errors.New("export failed"))
	require.NoError(t, repo.UpdateJobExecution(ctx, je))

	loaded, err := repo.FindJobExecutionByID(ctx, je.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusFailed, loaded.Status)
	assert.Equal(t, model.ExitStatusFailed, loaded.ExitStatus)
	assert.Equal(t, model.FailureList{"export failed"}, loaded.Failures)
	assert.Equal(t, 2, loaded.Version)
	assert.NotNil(t, loaded.EndTime)
	v, _ := loaded.Parameters.GetString("color")
	assert.Equal(t, "green", v)
	variants, _ := loaded.ExecutionContext.GetString("variants")
	assert.Equal(t, "yellow,green", variants)

	require.Len(t, loaded.StepExecutions, 1)
	step := loaded.StepExecutions[0]
	assert.Equal(t, "greenTransformStep", step.StepName)
	assert.Equal(t, model.BatchStatusCompleted, step.Status)
	assert.Equal(t, 10, step.ReadCount)
	assert.Equal(t, 9, step.WriteCount)
	assert.Equal(t, 1, step.FilterCount)
	assert.Same(t, loaded, step.JobExecution)

	latest, err := repo.FindLatestJobExecution(ctx, "taxiEmissionsJob")
	require.NoError(t, err)
	assert.Equal(t, je.ID, latest.ID)

	byID, err := repo.FindStepExecutionByID(ctx, se.ID)
	require.NoError(t, err)
	assert.Equal(t, se.JobExecutionID, byID.JobExecutionID)
}

func TestSQLJobRepository_StaleVersionIsRejected(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t)

	je := model.NewJobExecution("taxiEmissionsJob", model.NewJobParameters())
	require.NoError(t, repo.SaveJobExecution(ctx, je))

	stale, err := repo.FindJobExecutionByID(ctx, je.ID)
	require.NoError(t, err)

	je.MarkAsStarted()
	require.NoError(t, repo.UpdateJobExecution(ctx, je))

	stale.MarkAsStopped()
	err = repo.UpdateJobExecution(ctx, stale)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found for update")
	assert.Equal(t, 0, stale.Version, "version is restored after a rejected update")
}

func TestSQLJobRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t)

	_, err := repo.FindJobExecutionByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrJobExecutionNotFound)

	_, err = repo.FindLatestJobExecution(ctx, "neverRun")
	assert.ErrorIs(t, err, repository.ErrJobExecutionNotFound)

	_, err = repo.FindStepExecutionByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrStepExecutionNotFound)
}

func TestRunFrameworkMigrations_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	resolver := testutil.NewSQLiteResolver(t, "metadata")

	require.NoError(t, bootstrap.RunFrameworkMigrations(ctx, resolver, "metadata"))
	require.NoError(t, bootstrap.RunFrameworkMigrations(ctx, resolver, "metadata"))

	conn := testutil.MustResolve(t, resolver, "metadata")
	var tables int
	require.NoError(t, conn.Raw(ctx, &tables,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('batch_job_execution', 'batch_step_execution')`))
	assert.Equal(t, 2, tables)
}
