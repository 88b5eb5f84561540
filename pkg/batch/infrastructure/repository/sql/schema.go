package sql

import (
	"time"

	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
)

// JobExecutionEntity is the persisted form of a JobExecution.
type JobExecutionEntity struct {
	ID               string `gorm:"primaryKey"`
	JobName          string
	Parameters       model.JobParameters
	StartTime        time.Time
	EndTime          *time.Time
	Status           model.JobStatus
	ExitStatus       model.ExitStatus
	Failures         model.FailureList
	Version          int
	CreateTime       time.Time
	LastUpdated      time.Time
	ExecutionContext model.ExecutionContext
	CurrentStepName  string
}

func (JobExecutionEntity) TableName() string {
	return "batch_job_execution"
}

// StepExecutionEntity is the persisted form of a StepExecution.
type StepExecutionEntity struct {
	ID               string `gorm:"primaryKey"`
	StepName         string
	JobExecutionID   string
	StartTime        time.Time
	EndTime          *time.Time
	Status           model.JobStatus
	ExitStatus       model.ExitStatus
	Failures         model.FailureList
	ReadCount        int
	WriteCount       int
	CommitCount      int
	RollbackCount    int
	FilterCount      int
	ExecutionContext model.ExecutionContext
	LastUpdated      time.Time
	Version          int
}

func (StepExecutionEntity) TableName() string {
	return "batch_step_execution"
}
