// Package model holds the execution-state types shared by the job runner, steps and repositories.
package model

import (
	"fmt"
	"time"
)

// JobStatus is the lifecycle state of a job or step execution.
type JobStatus string

const (
	BatchStatusStarting  JobStatus = "STARTING"
	BatchStatusStarted   JobStatus = "STARTED"
	BatchStatusStopping  JobStatus = "STOPPING"
	BatchStatusStopped   JobStatus = "STOPPED"
	BatchStatusCompleted JobStatus = "COMPLETED"
	BatchStatusFailed    JobStatus = "FAILED"
	BatchStatusAbandoned JobStatus = "ABANDONED"
	BatchStatusUnknown   JobStatus = "UNKNOWN"
)

func (s JobStatus) String() string { return string(s) }

// IsFinished reports whether s is terminal.
func (s JobStatus) IsFinished() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusFailed, BatchStatusStopped, BatchStatusAbandoned:
		return true
	}
	return false
}

// ExitStatus is the outcome code recorded when an execution ends.
// Tasklets may return values outside the predefined set, e.g. "COMPLETED_WITH_VIOLATIONS".
type ExitStatus string

const (
	ExitStatusUnknown   ExitStatus = "UNKNOWN"
	ExitStatusCompleted ExitStatus = "COMPLETED"
	ExitStatusFailed    ExitStatus = "FAILED"
	ExitStatusStopped   ExitStatus = "STOPPED"
	ExitStatusAbandoned ExitStatus = "ABANDONED"
	ExitStatusNoOp      ExitStatus = "NO_OP"
)

func (s ExitStatus) String() string { return string(s) }

// ExitCode maps the status to a process exit code.
func (s JobStatus) ExitCode() int {
	switch s {
	case BatchStatusCompleted:
		return 0
	case BatchStatusStopped:
		return 130
	default:
		return 1
	}
}

var allowedTransitions = map[JobStatus][]JobStatus{
	BatchStatusStarting: {BatchStatusStarted, BatchStatusFailed, BatchStatusStopped, BatchStatusAbandoned},
	BatchStatusStarted:  {BatchStatusStopping, BatchStatusCompleted, BatchStatusFailed, BatchStatusStopped, BatchStatusAbandoned},
	BatchStatusStopping: {BatchStatusStopped, BatchStatusFailed, BatchStatusAbandoned},
}

func canTransition(current, next JobStatus) bool {
	for _, s := range allowedTransitions[current] {
		if s == next {
			return true
		}
	}
	return false
}

func transitionError(kind, id string, from, to JobStatus) error {
	return fmt.Errorf("%s (ID: %s): invalid state transition: %s -> %s", kind, id, from, to)
}

func endNow(end **time.Time, updated *time.Time) {
	now := time.Now()
	*end = &now
	*updated = now
}
