package tasklet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tigerroll/taxiemissions/internal/domain/trip"
	"github.com/tigerroll/taxiemissions/internal/step/reader"
	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/database"
	port "github.com/tigerroll/taxiemissions/pkg/batch/core/application/port"
	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/exception"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

// ErrCleaningViolations is returned when verification finds violations and is configured to fail.
var ErrCleaningViolations = errors.New("cleaned trips still violate the cleaning rules")

func init() {
	exception.RegisterErrorType("CleaningViolations", ErrCleaningViolations)
}

// CleaningReport counts, per rule, the rows of a trips table breaking it.
type CleaningReport struct {
	Rows       int64
	Duplicates int64
	Violations map[string]int64
}

// Total returns the number of findings. A row breaking two rules counts twice.
func (r CleaningReport) Total() int64 {
	n := r.Duplicates
	for _, c := range r.Violations {
		n += c
	}
	return n
}

// VerifyCleaningTasklet checks a trips table against the cleaning rules.
type VerifyCleaningTasklet struct {
	resolver        database.DBConnectionResolver
	dbRef           string
	variant         trip.Variant
	rules           trip.CleaningRules
	loc             *time.Location
	failOnViolation bool
}

var _ port.Tasklet = (*VerifyCleaningTasklet)(nil)

// NewVerifyCleaningTasklet creates the verification of variant's source table.
//
// Parameters:
//
//	resolver: Resolves dbRef.
//	dbRef: Name of the workload connection.
//	variant: The dataset to check.
//	rules: The bounds the cleaning step enforced.
//	loc: Timezone in which pickup years are taken.
//	failOnViolation: Fail the step instead of returning COMPLETED_WITH_VIOLATIONS.
//
// Returns:
//
//	*VerifyCleaningTasklet: The tasklet.
func NewVerifyCleaningTasklet(resolver database.DBConnectionResolver, dbRef string, variant trip.Variant, rules trip.CleaningRules, loc *time.Location, failOnViolation bool) *VerifyCleaningTasklet {
	if loc == nil {
		loc = time.UTC
	}
	return &VerifyCleaningTasklet{
		resolver:        resolver,
		dbRef:           dbRef,
		variant:         variant,
		rules:           rules,
		loc:             loc,
		failOnViolation: failOnViolation,
	}
}

// Inspect scans the variant's source table.
func (t *VerifyCleaningTasklet) Inspect(ctx context.Context) (CleaningReport, error) {
	report := CleaningReport{Violations: make(map[string]int64)}
	for _, name := range trip.ViolationNames() {
		report.Violations[name] = 0
	}

	r, err := reader.NewTripTableReader("verifyCleaning", t.resolver, t.dbRef, t.variant.TripsSource)
	if err != nil {
		return report, err
	}
	if err := r.Open(ctx, model.NewExecutionContext()); err != nil {
		return report, err
	}
	defer r.Close(ctx)
	if err := trip.CheckCleaningSchema(r.Columns(), t.variant); err != nil {
		return report, err
	}

	dedup := trip.NewDeduplicator()
	for {
		row, err := r.Read(ctx)
		if errors.Is(err, port.ErrNoMoreItems) {
			break
		}
		if err != nil {
			return report, err
		}
		report.Rows++
		v, err := t.rules.Inspect(row, t.variant, t.loc)
		if err != nil {
			return report, err
		}
		v.Each(func(name string) { report.Violations[name]++ })
		if dedup.Seen(row.Values) {
			report.Duplicates++
		}
	}
	return report, nil
}

func (t *VerifyCleaningTasklet) Execute(ctx context.Context, stepExecution *model.StepExecution) (model.ExitStatus, error) {
	report, err := t.Inspect(ctx)
	if err != nil {
		return model.ExitStatusFailed, exception.NewBatchError("verify_cleaning", fmt.Sprintf("failed to verify %s", t.variant.TripsSource), err, false, false)
	}

	ec := stepExecution.ExecutionContext
	ec.Put("verify.rows", report.Rows)
	ec.Put("verify.duplicates", report.Duplicates)
	logger.Infof("%s: %d rows, %d duplicates", t.variant.TripsSource, report.Rows, report.Duplicates)
	for _, name := range trip.ViolationNames() {
		n := report.Violations[name]
		ec.Put("verify."+name, n)
		if n > 0 {
			logger.Warnf("%s: %d rows break rule %s", t.variant.TripsSource, n, name)
		} else {
			logger.Debugf("%s: no rows break rule %s", t.variant.TripsSource, name)
		}
	}

	if report.Total() == 0 {
		logger.Infof("%s passes every cleaning check.", t.variant.TripsSource)
		return model.ExitStatusCompleted, nil
	}
	if t.failOnViolation {
		return model.ExitStatusFailed, exception.NewBatchError("verify_cleaning",
			fmt.Sprintf("%s has %d findings", t.variant.TripsSource, report.Total()), ErrCleaningViolations, false, false)
	}
	return ExitStatusCompletedWithViolations, nil
}
