// Package sql persists execution metadata through a database.DBConnection.
// The tables are created by the framework migrations.
package sql

import (
	"context"
	"fmt"

	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/database"
	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/repository"
	tx "github.com/tigerroll/taxiemissions/pkg/batch/core/tx"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/exception"
)

const moduleName = "SQLJobRepository"

// SQLJobRepository implements repository.JobRepository.
type SQLJobRepository struct {
	dbResolver database.DBConnectionResolver
	// dbName is the connection holding the metadata tables (e.g. "metadata").
	dbName string
}

// NewSQLJobRepository returns a repository on connection dbName.
func NewSQLJobRepository(dbResolver database.DBConnectionResolver, dbName string) *SQLJobRepository {
	return &SQLJobRepository{dbResolver: dbResolver, dbName: dbName}
}

var _ repository.JobRepository = (*SQLJobRepository)(nil)

// getDBConnection resolves the connection on every call so that a reconnect
// (for instance after migrations) is picked up.
func (r *SQLJobRepository) getDBConnection(ctx context.Context) (database.DBConnection, error) {
	conn, err := r.dbResolver.ResolveDBConnection(ctx, r.dbName)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, fmt.Sprintf("failed to resolve DB connection '%s'", r.dbName), err, true, false)
	}
	return conn, nil
}

// getTxExecutor joins the caller's transaction when the context carries one.
func (r *SQLJobRepository) getTxExecutor(ctx context.Context) (tx.TxExecutor, error) {
	if t, ok := tx.FromContext(ctx); ok {
		return t, nil
	}
	return r.getDBConnection(ctx)
}

// --- JobExecution ---

func (r *SQLJobRepository) SaveJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	const op = "SQLJobRepository.SaveJobExecution"
	executor, err := r.getTxExecutor(ctx)
	if err != nil {
		return err
	}
	entity := fromDomainJobExecution(jobExecution)
	if _, err := executor.ExecuteUpdate(ctx, entity, "CREATE", entity.TableName(), nil); err != nil {
		return exception.NewBatchError(op, fmt.Sprintf("failed to save JobExecution (ID: %s)", jobExecution.ID), err, true, false)
	}
	return nil
}

// UpdateJobExecution writes the execution guarded by its version.
func (r *SQLJobRepository) UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	const op = "SQLJobRepository.UpdateJobExecution"
	executor, err := r.getTxExecutor(ctx)
	if err != nil {
		return err
	}

	originalVersion := jobExecution.Version
	jobExecution.Version++
	entity := fromDomainJobExecution(jobExecution)

	rows, err := executor.ExecuteUpdate(ctx, entity, "UPDATE", entity.TableName(),
		map[string]interface{}{"id": jobExecution.ID, "version": originalVersion})
	if err != nil {
		jobExecution.Version = originalVersion
		return exception.NewBatchError(op, fmt.Sprintf("failed to update JobExecution (ID: %s)", jobExecution.ID), err, true, false)
	}
	if rows == 0 {
		jobExecution.Version = originalVersion
		return exception.NewBatchErrorf(op, "JobExecution (ID: %s) with version %d not found for update", jobExecution.ID, originalVersion)
	}
	return nil
}

func (r *SQLJobRepository) FindJobExecutionByID(ctx context.Context, executionID string) (*model.JobExecution, error) {
	const op = "SQLJobRepository.FindJobExecutionByID"
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}
	var entities []JobExecutionEntity
	if err := conn.ExecuteQueryAdvanced(ctx, &entities, map[string]interface{}{"id": executionID}, "", 1); err != nil {
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find JobExecution (ID: %s)", executionID), err, true, false)
	}
	if len(entities) == 0 {
		return nil, repository.ErrJobExecutionNotFound
	}
	return r.attachSteps(ctx, toDomainJobExecution(&entities[0]))
}

func (r *SQLJobRepository) FindLatestJobExecution(ctx context.Context, jobName string) (*model.JobExecution, error) {
	const op = "SQLJobRepository.FindLatestJobExecution"
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}
	var entities []JobExecutionEntity
	if err := conn.ExecuteQueryAdvanced(ctx, &entities, map[string]interface{}{"job_name": jobName}, "create_time desc", 1); err != nil {
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find latest JobExecution of '%s'", jobName), err, true, false)
	}
	if len(entities) == 0 {
		return nil, repository.ErrJobExecutionNotFound
	}
	return r.attachSteps(ctx, toDomainJobExecution(&entities[0]))
}

func (r *SQLJobRepository) attachSteps(ctx context.Context, je *model.JobExecution) (*model.JobExecution, error) {
	steps, err := r.FindStepExecutionsByJobExecutionID(ctx, je.ID)
	if err != nil {
		return nil, err
	}
	for _, se := range steps {
		se.JobExecution = je
	}
	je.StepExecutions = steps
	return je, nil
}

// --- StepExecution ---

func (r *SQLJobRepository) SaveStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	const op = "SQLJobRepository.SaveStepExecution"
	executor, err := r.getTxExecutor(ctx)
	if err != nil {
		return err
	}
	entity := fromDomainStepExecution(stepExecution)
	if _, err := executor.ExecuteUpdate(ctx, entity, "CREATE", entity.TableName(), nil); err != nil {
		return exception.NewBatchError(op, fmt.Sprintf("failed to save StepExecution (ID: %s)", stepExecution.ID), err, true, false)
	}
	return nil
}

func (r *SQLJobRepository) UpdateStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	const op = "SQLJobRepository.UpdateStepExecution"
	executor, err := r.getTxExecutor(ctx)
	if err != nil {
		return err
	}

	originalVersion := stepExecution.Version
	stepExecution.Version++
	entity := fromDomainStepExecution(stepExecution)

	rows, err := executor.ExecuteUpdate(ctx, entity, "UPDATE", entity.TableName(),
		map[string]interface{}{"id": stepExecution.ID, "version": originalVersion})
	if err != nil {
		stepExecution.Version = originalVersion
		return exception.NewBatchError(op, fmt.Sprintf("failed to update StepExecution (ID: %s)", stepExecution.ID), err, true, false)
	}
	if rows == 0 {
		stepExecution.Version = originalVersion
		return exception.NewBatchErrorf(op, "StepExecution (ID: %s) with version %d not found for update", stepExecution.ID, originalVersion)
	}
	return nil
}

func (r *SQLJobRepository) FindStepExecutionByID(ctx context.Context, executionID string) (*model.StepExecution, error) {
	const op = "SQLJobRepository.FindStepExecutionByID"
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}
	var entities []StepExecutionEntity
	if err := conn.ExecuteQueryAdvanced(ctx, &entities, map[string]interface{}{"id": executionID}, "", 1); err != nil {
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find StepExecution (ID: %s)", executionID), err, true, false)
	}
	if len(entities) == 0 {
		return nil, repository.ErrStepExecutionNotFound
	}
	return toDomainStepExecution(&entities[0]), nil
}

func (r *SQLJobRepository) FindStepExecutionsByJobExecutionID(ctx context.Context, jobExecutionID string) ([]*model.StepExecution, error) {
	const op = "SQLJobRepository.FindStepExecutionsByJobExecutionID"
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}
	var entities []StepExecutionEntity
	if err := conn.ExecuteQueryAdvanced(ctx, &entities, map[string]interface{}{"job_execution_id": jobExecutionID}, "start_time asc", 0); err != nil {
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find StepExecutions of JobExecution (ID: %s)", jobExecutionID), err, true, false)
	}
	out := make([]*model.StepExecution, 0, len(entities))
	for i := range entities {
		out = append(out, toDomainStepExecution(&entities[i]))
	}
	return out, nil
}

// Close is a no-op; the connection belongs to its DBProvider.
func (r *SQLJobRepository) Close() error {
	return nil
}
