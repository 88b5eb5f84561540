// Package split provides the port.Split used to run independent flows side by side.
package split

import (
	"sort"

	port "github.com/tigerroll/taxiemissions/pkg/batch/core/application/port"
)

// ConcreteSplit holds named flows that run concurrently. Steps inside a flow run in order.
type ConcreteSplit struct {
	id          string
	flows       map[string][]port.Step
	maxParallel int
}

// NewConcreteSplit creates a split. maxParallel bounds the number of flows running at once;
// zero or less runs every flow at the same time.
func NewConcreteSplit(id string, flows map[string][]port.Step, maxParallel int) *ConcreteSplit {
	return &ConcreteSplit{id: id, flows: flows, maxParallel: maxParallel}
}

func (s *ConcreteSplit) ID() string { return s.id }

func (s *ConcreteSplit) Flows() map[string][]port.Step { return s.flows }

// MaxParallel returns the concurrency bound given to NewConcreteSplit.
func (s *ConcreteSplit) MaxParallel() int { return s.maxParallel }

// FlowNames returns the flow names in lexical order.
func (s *ConcreteSplit) FlowNames() []string {
	names := make([]string, 0, len(s.flows))
	for name := range s.flows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var _ port.Split = (*ConcreteSplit)(nil)
