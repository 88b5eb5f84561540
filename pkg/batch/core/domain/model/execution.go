package model

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

// NewID returns a fresh execution identifier.
func NewID() string {
	return uuid.NewString()
}

// JobExecution is one run of a job.
type JobExecution struct {
	ID               string
	JobName          string
	Parameters       JobParameters
	StartTime        time.Time
	EndTime          *time.Time
	Status           JobStatus
	ExitStatus       ExitStatus
	Failures         FailureList
	Version          int
	CreateTime       time.Time
	LastUpdated      time.Time
	StepExecutions   []*StepExecution
	ExecutionContext ExecutionContext
	CurrentStepName  string
	CancelFunc       context.CancelFunc `json:"-"`

	mu sync.Mutex
}

// NewJobExecution creates a JobExecution in STARTING state.
func NewJobExecution(jobName string, params JobParameters) *JobExecution {
	now := time.Now()
	return &JobExecution{
		ID:               NewID(),
		JobName:          jobName,
		Parameters:       params,
		StartTime:        now,
		Status:           BatchStatusStarting,
		ExitStatus:       ExitStatusUnknown,
		CreateTime:       now,
		LastUpdated:      now,
		Failures:         FailureList{},
		StepExecutions:   []*StepExecution{},
		ExecutionContext: NewExecutionContext(),
	}
}

// TransitionTo changes Status if the transition is allowed.
func (je *JobExecution) TransitionTo(next JobStatus) error {
	if !canTransition(je.Status, next) {
		return transitionError("JobExecution", je.ID, je.Status, next)
	}
	je.Status = next
	je.LastUpdated = time.Now()
	return nil
}

// force applies next even when the transition is not allowed, logging the anomaly.
func (je *JobExecution) force(next JobStatus) {
	if err := je.TransitionTo(next); err != nil {
		logger.Warnf("Forcing status: %v", err)
		je.Status = next
		je.LastUpdated = time.Now()
	}
}

// MarkAsStarted moves the execution to STARTED.
func (je *JobExecution) MarkAsStarted() {
	je.force(BatchStatusStarted)
	je.StartTime = je.LastUpdated
}

// MarkAsCompleted moves the execution to COMPLETED and records the end time.
func (je *JobExecution) MarkAsCompleted() {
	je.force(BatchStatusCompleted)
	je.ExitStatus = ExitStatusCompleted
	endNow(&je.EndTime, &je.LastUpdated)
}

// MarkAsFailed moves the execution to FAILED and records err.
func (je *JobExecution) MarkAsFailed(err error) {
	je.force(BatchStatusFailed)
	je.ExitStatus = ExitStatusFailed
	endNow(&je.EndTime, &je.LastUpdated)
	je.AddFailureException(err)
}

// MarkAsStopped moves the execution to STOPPED.
func (je *JobExecution) MarkAsStopped() {
	je.force(BatchStatusStopped)
	je.ExitStatus = ExitStatusStopped
	endNow(&je.EndTime, &je.LastUpdated)
}

// AddFailureException appends err's message unless already present.
func (je *JobExecution) AddFailureException(err error) {
	if err == nil {
		return
	}
	je.mu.Lock()
	defer je.mu.Unlock()
	je.Failures = appendFailure(je.Failures, err)
}

// AddStepExecution registers a step execution. Safe for concurrent use by split flows.
func (je *JobExecution) AddStepExecution(se *StepExecution) {
	je.mu.Lock()
	defer je.mu.Unlock()
	je.StepExecutions = append(je.StepExecutions, se)
	je.CurrentStepName = se.StepName
}

// StepExecutionsSnapshot returns a copy of the step list.
func (je *JobExecution) StepExecutionsSnapshot() []*StepExecution {
	je.mu.Lock()
	defer je.mu.Unlock()
	out := make([]*StepExecution, len(je.StepExecutions))
	copy(out, je.StepExecutions)
	return out
}

// StepExecution is one run of a step within a JobExecution.
type StepExecution struct {
	ID               string
	StepName         string
	JobExecution     *JobExecution `json:"-"`
	JobExecutionID   string
	StartTime        time.Time
	EndTime          *time.Time
	Status           JobStatus
	ExitStatus       ExitStatus
	Failures         FailureList
	ReadCount        int
	WriteCount       int
	CommitCount      int
	RollbackCount    int
	FilterCount      int
	ExecutionContext ExecutionContext
	LastUpdated      time.Time
	Version          int
}

// NewStepExecution creates a StepExecution in STARTING state and attaches it to jobExecution.
func NewStepExecution(jobExecution *JobExecution, stepName string) *StepExecution {
	now := time.Now()
	se := &StepExecution{
		ID:               NewID(),
		StepName:         stepName,
		JobExecution:     jobExecution,
		JobExecutionID:   jobExecution.ID,
		StartTime:        now,
		Status:           BatchStatusStarting,
		ExitStatus:       ExitStatusUnknown,
		Failures:         FailureList{},
		ExecutionContext: NewExecutionContext(),
		LastUpdated:      now,
	}
	jobExecution.AddStepExecution(se)
	return se
}

// TransitionTo changes Status if the transition is allowed.
func (se *StepExecution) TransitionTo(next JobStatus) error {
	if !canTransition(se.Status, next) {
		return transitionError("StepExecution", se.ID, se.Status, next)
	}
	se.Status = next
	se.LastUpdated = time.Now()
	return nil
}

func (se *StepExecution) force(next JobStatus) {
	if err := se.TransitionTo(next); err != nil {
		logger.Warnf("Forcing status of step '%s': %v", se.StepName, err)
		se.Status = next
		se.LastUpdated = time.Now()
	}
}

// MarkAsStarted moves the step to STARTED.
func (se *StepExecution) MarkAsStarted() {
	se.force(BatchStatusStarted)
	se.StartTime = se.LastUpdated
}

// MarkAsCompleted moves the step to COMPLETED with exit status COMPLETED.
func (se *StepExecution) MarkAsCompleted() {
	se.MarkAsCompletedWith(ExitStatusCompleted)
}

// MarkAsCompletedWith moves the step to COMPLETED with a custom exit status.
func (se *StepExecution) MarkAsCompletedWith(exit ExitStatus) {
	se.force(BatchStatusCompleted)
	se.ExitStatus = exit
	endNow(&se.EndTime, &se.LastUpdated)
}

// MarkAsFailed moves the step to FAILED and records err.
func (se *StepExecution) MarkAsFailed(err error) {
	se.force(BatchStatusFailed)
	se.ExitStatus = ExitStatusFailed
	endNow(&se.EndTime, &se.LastUpdated)
	se.AddFailureException(err)
}

// MarkAsStopped moves the step to STOPPED.
func (se *StepExecution) MarkAsStopped() {
	se.force(BatchStatusStopped)
	se.ExitStatus = ExitStatusStopped
	endNow(&se.EndTime, &se.LastUpdated)
}

// AddFailureException appends err's message unless already present.
func (se *StepExecution) AddFailureException(err error) {
	if err == nil {
		return
	}
	se.Failures = appendFailure(se.Failures, err)
}

// Duration is the elapsed wall time, up to now for a running step.
func (se *StepExecution) Duration() time.Duration {
	if se.EndTime != nil {
		return se.EndTime.Sub(se.StartTime)
	}
	return time.Since(se.StartTime)
}

func appendFailure(list FailureList, err error) FailureList {
	msg := err.Error()
	for _, existing := range list {
		if existing == msg {
			return list
		}
	}
	return append(list, msg)
}
