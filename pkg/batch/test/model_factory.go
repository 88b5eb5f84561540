package test

import (
	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
)

// NewTestJobParameters creates JobParameters from a plain map.
func NewTestJobParameters(params map[string]interface{}) model.JobParameters {
	jp := model.NewJobParameters()
	for k, v := range params {
		jp.Put(k, v)
	}
	return jp
}

// NewTestJobExecution creates a started JobExecution.
func NewTestJobExecution(jobName string) *model.JobExecution {
	je := model.NewJobExecution(jobName, model.NewJobParameters())
	je.MarkAsStarted()
	return je
}

// NewTestStepExecution creates a started StepExecution attached to jobExecution.
func NewTestStepExecution(jobExecution *model.JobExecution, stepName string) *model.StepExecution {
	se := model.NewStepExecution(jobExecution, stepName)
	se.MarkAsStarted()
	return se
}
