package tasklet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tigerroll/taxiemissions/internal/domain/entity"
	"github.com/tigerroll/taxiemissions/internal/domain/trip"
	"github.com/tigerroll/taxiemissions/internal/step/reader"
	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/database"
	port "github.com/tigerroll/taxiemissions/pkg/batch/core/application/port"
	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/exception"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

// ErrTransformMismatch is returned when a transformed table fails verification.
var ErrTransformMismatch = errors.New("transformed trips do not match their source")

func init() {
	exception.RegisterErrorType("TransformMismatch", ErrTransformMismatch)
}

// calendarBounds are the valid ranges of the calendar columns.
var calendarBounds = []struct {
	col      string
	min, max float64
}{
	{entity.ColHourOfDay, 0, 23},
	{entity.ColDayOfWeek, 0, 6},
	{entity.ColWeekOfYear, 1, 53},
	{entity.ColMonthOfYear, 1, 12},
}

// Range is the observed MIN and MAX of a column. Both are nil for an empty table.
type Range struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
}

// TransformReport holds the checks run on a transformed table.
type TransformReport struct {
	SourceRows int64
	TargetRows int64
	// Nulls counts NULLs per derived column.
	Nulls map[string]int64
	// Unexpected counts NULLs per derived column whose inputs are not NULL.
	Unexpected map[string]int64
	AvgCO2Kgs  *float64
	AvgMph     *float64
	Ranges     map[string]Range
	// Fingerprint identifies the table content regardless of row order.
	Fingerprint string
}

// Problems lists every failed check.
func (r TransformReport) Problems() []string {
	var out []string
	if r.SourceRows != r.TargetRows {
		out = append(out, fmt.Sprintf("row count %d differs from source %d", r.TargetRows, r.SourceRows))
	}
	for _, col := range entity.DerivedColumns {
		if n := r.Unexpected[col]; n > 0 {
			out = append(out, fmt.Sprintf("%s is NULL in %d rows with non-NULL inputs", col, n))
		}
	}
	for _, b := range calendarBounds {
		rg := r.Ranges[b.col]
		if rg.Min != nil && *rg.Min < b.min || rg.Max != nil && *rg.Max > b.max {
			out = append(out, fmt.Sprintf("%s outside [%v, %v]", b.col, b.min, b.max))
		}
	}
	return out
}

// VerifyTransformTasklet checks a transformed table against its source.
type VerifyTransformTasklet struct {
	resolver database.DBConnectionResolver
	dbRef    string
	variant  trip.Variant
}

var _ port.Tasklet = (*VerifyTransformTasklet)(nil)

// NewVerifyTransformTasklet creates the verification of variant's Target table.
func NewVerifyTransformTasklet(resolver database.DBConnectionResolver, dbRef string, variant trip.Variant) *VerifyTransformTasklet {
	return &VerifyTransformTasklet{resolver: resolver, dbRef: dbRef, variant: variant}
}

// Verify computes the report of the variant's target table.
func (t *VerifyTransformTasklet) Verify(ctx context.Context) (TransformReport, error) {
	report := TransformReport{
		Nulls:      make(map[string]int64),
		Unexpected: make(map[string]int64),
		Ranges:     make(map[string]Range),
	}
	s, err := openQuery(ctx, t.resolver, t.dbRef, "verify_transform")
	if err != nil {
		return report, err
	}
	if report.SourceRows, err = s.count(ctx, t.variant.TripsSource); err != nil {
		return report, err
	}
	if report.TargetRows, err = s.count(ctx, t.variant.Target); err != nil {
		return report, err
	}

	// Inputs whose NULL legitimately makes a derived column NULL.
	distance, pickup := s.q(t.variant.DistanceField), s.q(t.variant.PickupField)
	inputsPresent := map[string]string{
		entity.ColTripCO2Kgs:  distance + " IS NOT NULL",
		entity.ColAvgMph:      "1 = 0",
		entity.ColHourOfDay:   pickup + " IS NOT NULL",
		entity.ColDayOfWeek:   pickup + " IS NOT NULL",
		entity.ColWeekOfYear:  pickup + " IS NOT NULL",
		entity.ColMonthOfYear: pickup + " IS NOT NULL",
		entity.ColYear:        pickup + " IS NOT NULL",
	}

	var exprs []string
	for _, col := range entity.DerivedColumns {
		c := s.q(col)
		exprs = append(exprs,
			fmt.Sprintf("SUM(CASE WHEN %s IS NULL THEN 1 ELSE 0 END)", c),
			fmt.Sprintf("SUM(CASE WHEN %s IS NULL AND %s THEN 1 ELSE 0 END)", c, inputsPresent[col]))
	}
	exprs = append(exprs, "AVG("+s.q(entity.ColTripCO2Kgs)+")", "AVG("+s.q(entity.ColAvgMph)+")")
	for _, b := range calendarBounds {
		exprs = append(exprs, "MIN("+s.q(b.col)+")", "MAX("+s.q(b.col)+")")
	}
	query := "SELECT " + strings.Join(exprs, ", ") + " FROM " + s.q(t.variant.Target)
	values, err := s.row(ctx, query, len(exprs))
	if err != nil {
		return report, err
	}

	floats := make([]*float64, len(values))
	for i, v := range values {
		f, ok, err := trip.AsFloat(v)
		if err != nil {
			return report, err
		}
		if ok {
			floats[i] = &f
		}
	}
	i := 0
	for _, col := range entity.DerivedColumns {
		report.Nulls[col] = asCount(floats[i])
		report.Unexpected[col] = asCount(floats[i+1])
		i += 2
	}
	report.AvgCO2Kgs, report.AvgMph = floats[i], floats[i+1]
	i += 2
	for _, b := range calendarBounds {
		report.Ranges[b.col] = Range{Min: floats[i], Max: floats[i+1]}
		i += 2
	}

	if report.Fingerprint, err = t.fingerprint(ctx); err != nil {
		return report, err
	}
	return report, nil
}

func asCount(f *float64) int64 {
	if f == nil {
		return 0
	}
	return int64(*f)
}

func (t *VerifyTransformTasklet) fingerprint(ctx context.Context) (string, error) {
	r, err := reader.NewTripTableReader("verifyTransform", t.resolver, t.dbRef, t.variant.Target)
	if err != nil {
		return "", err
	}
	if err := r.Open(ctx, model.NewExecutionContext()); err != nil {
		return "", err
	}
	defer r.Close(ctx)

	var fp trip.Fingerprint
	for {
		row, err := r.Read(ctx)
		if errors.Is(err, port.ErrNoMoreItems) {
			return fp.String(), nil
		}
		if err != nil {
			return "", err
		}
		fp.Add(row.Values)
	}
}

func (t *VerifyTransformTasklet) Execute(ctx context.Context, stepExecution *model.StepExecution) (model.ExitStatus, error) {
	report, err := t.Verify(ctx)
	if err != nil {
		return model.ExitStatusFailed, exception.NewBatchError("verify_transform", fmt.Sprintf("failed to verify %s", t.variant.Target), err, false, false)
	}

	ec := stepExecution.ExecutionContext
	ec.Put("verify.source_rows", report.SourceRows)
	ec.Put("verify.target_rows", report.TargetRows)
	ec.Put("verify.fingerprint", report.Fingerprint)
	for _, col := range entity.DerivedColumns {
		ec.Put("verify.nulls."+col, report.Nulls[col])
	}
	if report.AvgCO2Kgs != nil {
		ec.Put("verify.avg_trip_co2_kgs", *report.AvgCO2Kgs)
		logger.Infof("%s: average CO2 per trip %.3f kg", t.variant.Target, *report.AvgCO2Kgs)
	}
	if report.AvgMph != nil {
		ec.Put("verify.avg_mph", *report.AvgMph)
		logger.Infof("%s: average speed %.2f mph", t.variant.Target, *report.AvgMph)
	}
	for _, b := range calendarBounds {
		if rg := report.Ranges[b.col]; rg.Min != nil && rg.Max != nil {
			logger.Infof("%s: %s from %v to %v", t.variant.Target, b.col, *rg.Min, *rg.Max)
		}
	}
	logger.Infof("%s: %d rows (source %d), %d without avg_mph, fingerprint %s",
		t.variant.Target, report.TargetRows, report.SourceRows, report.Nulls[entity.ColAvgMph], report.Fingerprint)

	if problems := report.Problems(); len(problems) > 0 {
		return model.ExitStatusFailed, exception.NewBatchError("verify_transform",
			fmt.Sprintf("%s: %s", t.variant.Target, strings.Join(problems, "; ")), ErrTransformMismatch, false, false)
	}
	return model.ExitStatusCompleted, nil
}
