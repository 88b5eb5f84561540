// Package factory builds chunk and tasklet steps with the runtime services injected by fx.
package factory

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/taxiemissions/pkg/batch/core/application/port"
	config "github.com/tigerroll/taxiemissions/pkg/batch/core/config"
	repository "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/taxiemissions/pkg/batch/core/metrics"
	tx "github.com/tigerroll/taxiemissions/pkg/batch/core/tx"
	itemstep "github.com/tigerroll/taxiemissions/pkg/batch/engine/step/item"
	"github.com/tigerroll/taxiemissions/pkg/batch/engine/step/retry"
	taskletstep "github.com/tigerroll/taxiemissions/pkg/batch/engine/step/tasklet"
	logger "github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

// StepFactory holds the dependencies shared by every step of a job.
type StepFactory struct {
	jobRepository    repository.JobRepository
	metricRecorder   metrics.MetricRecorder
	tracer           metrics.Tracer
	txManagerFactory tx.TransactionManagerFactory
	batch            *config.BatchConfig
	stepListeners    []port.StepExecutionListener
	chunkListeners   []port.ChunkListener
}

// StepFactoryParams are the fx inputs of NewStepFactory.
type StepFactoryParams struct {
	fx.In
	JobRepository  repository.JobRepository
	MetricRecorder metrics.MetricRecorder
	Tracer         metrics.Tracer
	TxFactory      tx.TransactionManagerFactory
	Batch          *config.BatchConfig
	StepListeners  []port.StepExecutionListener `group:"step_listeners"`
	ChunkListeners []port.ChunkListener         `group:"chunk_listeners"`
}

// NewStepFactory creates a StepFactory.
func NewStepFactory(p StepFactoryParams) *StepFactory {
	return &StepFactory{
		jobRepository:    p.JobRepository,
		metricRecorder:   p.MetricRecorder,
		tracer:           p.Tracer,
		txManagerFactory: p.TxFactory,
		batch:            p.Batch,
		stepListeners:    p.StepListeners,
		chunkListeners:   p.ChunkListeners,
	}
}

// JobRepository returns the repository steps persist their executions to.
func (f *StepFactory) JobRepository() repository.JobRepository { return f.jobRepository }

// CreateTaskletStep wraps tasklet in a step named name.
func (f *StepFactory) CreateTaskletStep(name string, tasklet port.Tasklet) port.Step {
	logger.Debugf("StepFactory: building tasklet step '%s' (%T).", name, tasklet)
	return taskletstep.NewTaskletStep(name, tasklet, f.jobRepository, f.stepListeners, f.metricRecorder, f.tracer)
}

// CreateChunkStep builds a chunk step whose chunk transactions run on connection dbRef.
// Go methods cannot take type parameters, hence a function.
func CreateChunkStep[I, O any](
	f *StepFactory,
	name string,
	dbRef string,
	reader port.ItemReader[I],
	processor port.ItemProcessor[I, O],
	writer port.ItemWriter[O],
) port.Step {
	logger.Debugf("StepFactory: building chunk step '%s' on '%s' (chunk size %d).", name, dbRef, f.batch.ChunkSize)
	return itemstep.NewChunkStep(name, reader, processor, writer, itemstep.Config{
		ChunkSize:      f.batch.ChunkSize,
		TxManager:      f.txManagerFactory.NewTransactionManager(dbRef),
		JobRepository:  f.jobRepository,
		RetryPolicy:    retry.NewRetryPolicy(f.batch.Retry),
		StepListeners:  f.stepListeners,
		ChunkListeners: f.chunkListeners,
		MetricRecorder: f.metricRecorder,
		Tracer:         f.tracer,
	})
}
