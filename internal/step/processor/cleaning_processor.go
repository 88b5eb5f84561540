package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/tigerroll/taxiemissions/internal/domain/entity"
	"github.com/tigerroll/taxiemissions/internal/domain/trip"
	port "github.com/tigerroll/taxiemissions/pkg/batch/core/application/port"
	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/exception"
)

// CleaningProcessor passes through the rows that break no cleaning rule and were not seen
// before in the same step execution. Every other row is filtered.
type CleaningProcessor struct {
	name    string
	variant trip.Variant
	rules   trip.CleaningRules
	loc     *time.Location

	scope      executionScope
	dedup      *trip.Deduplicator
	kept       int
	duplicates int
	dropped    map[string]int
}

var _ port.ItemProcessor[*entity.TripRow, *entity.TripRow] = (*CleaningProcessor)(nil)
var _ port.ExecutionContextProvider = (*CleaningProcessor)(nil)

// NewCleaningProcessor creates the processor for variant.
//
// Parameters:
//
//	name: Step-scoped name used in ExecutionContext keys.
//	variant: The dataset whose rows are cleaned.
//	rules: The bounds a kept row must satisfy.
//	loc: Timezone in which pickup years are taken. nil means UTC.
//
// Returns:
//
//	*CleaningProcessor: The processor.
func NewCleaningProcessor(name string, variant trip.Variant, rules trip.CleaningRules, loc *time.Location) *CleaningProcessor {
	if loc == nil {
		loc = time.UTC
	}
	return &CleaningProcessor{name: name, variant: variant, rules: rules, loc: loc}
}

func (p *CleaningProcessor) Process(ctx context.Context, row *entity.TripRow) (*entity.TripRow, error) {
	if p.scope.enter(ctx) {
		p.dedup = trip.NewDeduplicator()
		p.kept, p.duplicates = 0, 0
		p.dropped = make(map[string]int)
	}
	violation, err := p.rules.Inspect(row, p.variant, p.loc)
	if err != nil {
		return nil, exception.NewBatchError(p.name, fmt.Sprintf("failed to inspect %s row", p.variant.TripsSource), err, false, false)
	}
	if violation != 0 {
		violation.Each(func(name string) { p.dropped[name]++ })
		return nil, nil
	}
	if p.dedup.Seen(row.Values) {
		p.duplicates++
		return nil, nil
	}
	p.kept++
	return row, nil
}

// ExecutionContext reports kept rows, duplicates and, per rule, the rows that broke it.
// A row breaking several rules is counted under each.
func (p *CleaningProcessor) ExecutionContext() model.ExecutionContext {
	ec := model.NewExecutionContext()
	ec.Put(p.name+".kept", p.kept)
	ec.Put(p.name+".duplicates", p.duplicates)
	for _, name := range trip.ViolationNames() {
		ec.Put(p.name+".dropped."+name, p.dropped[name])
	}
	return ec
}
