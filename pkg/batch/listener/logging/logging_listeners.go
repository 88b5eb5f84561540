// Package logging provides listeners that report job, step and chunk boundaries to the log.
package logging

import (
	"context"

	port "github.com/tigerroll/taxiemissions/pkg/batch/core/application/port"
	config "github.com/tigerroll/taxiemissions/pkg/batch/core/config"
	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

// --- Job Execution Listener ---

type LoggingJobListener struct {
	isMasked func(key string) bool
}

// NewLoggingJobListener creates a listener that logs parameters with the configured keys masked.
func NewLoggingJobListener(cfg *config.Config) *LoggingJobListener {
	return &LoggingJobListener{isMasked: cfg.IsMaskedParameter}
}

func (l *LoggingJobListener) BeforeJob(ctx context.Context, jobExecution *model.JobExecution) {
	logger.Infof("JobExecutionListener: BeforeJob - JobName: %s, ID: %s, Params: %s",
		jobExecution.JobName, jobExecution.ID, jobExecution.Parameters.Masked(l.isMasked))
}

func (l *LoggingJobListener) AfterJob(ctx context.Context, jobExecution *model.JobExecution) {
	logger.Infof("JobExecutionListener: AfterJob - JobName: %s, Status: %s, ExitStatus: %s",
		jobExecution.JobName, jobExecution.Status, jobExecution.ExitStatus)
}

var _ port.JobExecutionListener = (*LoggingJobListener)(nil)

// --- Step Execution Listener ---

type LoggingStepListener struct{}

func NewLoggingStepListener() *LoggingStepListener {
	return &LoggingStepListener{}
}

func (l *LoggingStepListener) BeforeStep(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Infof("StepExecutionListener: BeforeStep - StepName: %s, ID: %s", stepExecution.StepName, stepExecution.ID)
}

func (l *LoggingStepListener) AfterStep(ctx context.Context, stepExecution *model.StepExecution) {
	if stepExecution.Status == model.BatchStatusFailed {
		logger.Errorf("StepExecutionListener: AfterStep - StepName: %s, Status: %s, Failures: %v",
			stepExecution.StepName, stepExecution.Status, stepExecution.Failures)
		return
	}
	logger.Infof("StepExecutionListener: AfterStep - StepName: %s, Status: %s, ExitStatus: %s, Duration: %s",
		stepExecution.StepName, stepExecution.Status, stepExecution.ExitStatus, stepExecution.Duration())
}

var _ port.StepExecutionListener = (*LoggingStepListener)(nil)

// --- Chunk Listener ---

type LoggingChunkListener struct{}

func NewLoggingChunkListener() *LoggingChunkListener {
	return &LoggingChunkListener{}
}

func (l *LoggingChunkListener) BeforeChunk(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Debugf("ChunkListener: BeforeChunk - StepName: %s", stepExecution.StepName)
}

func (l *LoggingChunkListener) AfterChunk(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Debugf("ChunkListener: AfterChunk - StepName: %s, Read: %d, Filtered: %d, Write: %d",
		stepExecution.StepName, stepExecution.ReadCount, stepExecution.FilterCount, stepExecution.WriteCount)
}

var _ port.ChunkListener = (*LoggingChunkListener)(nil)
