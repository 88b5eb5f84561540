// Package processor turns trip rows into enriched, cleaned or exported items.
package processor

import (
	"context"

	port "github.com/tigerroll/taxiemissions/pkg/batch/core/application/port"
)

// executionScope detects the first item of a new step execution, so that a processor
// reused by a later job run starts from fresh state.
type executionScope struct {
	current string
	started bool
}

func (s *executionScope) enter(ctx context.Context) (fresh bool) {
	id := ""
	if se := port.GetStepExecutionFromContext(ctx); se != nil {
		id = se.ID
	}
	if s.started && id == s.current {
		return false
	}
	s.current, s.started = id, true
	return true
}
