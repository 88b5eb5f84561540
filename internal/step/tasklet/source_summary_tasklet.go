package tasklet

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tigerroll/taxiemissions/internal/domain/trip"
	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/database"
	port "github.com/tigerroll/taxiemissions/pkg/batch/core/application/port"
	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/exception"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

// SourceSummary describes a trips table before it is cleaned.
type SourceSummary struct {
	Rows          int64
	FirstPickup   *time.Time
	LastPickup    *time.Time
	AvgDistance   *float64
	TotalDistance *float64
}

// SourceSummaryTasklet logs the size and time span of a variant's trips table.
type SourceSummaryTasklet struct {
	resolver database.DBConnectionResolver
	dbRef    string
	variant  trip.Variant
	loc      *time.Location
	printer  *message.Printer
}

var _ port.Tasklet = (*SourceSummaryTasklet)(nil)

// NewSourceSummaryTasklet creates the summary of variant's source table.
//
// Parameters:
//
//	resolver: Resolves dbRef.
//	dbRef: Name of the workload connection.
//	variant: The dataset to summarise.
//	loc: Timezone in which the pickup range is logged.
//
// Returns:
//
//	*SourceSummaryTasklet: The tasklet.
func NewSourceSummaryTasklet(resolver database.DBConnectionResolver, dbRef string, variant trip.Variant, loc *time.Location) *SourceSummaryTasklet {
	if loc == nil {
		loc = time.UTC
	}
	return &SourceSummaryTasklet{
		resolver: resolver,
		dbRef:    dbRef,
		variant:  variant,
		loc:      loc,
		printer:  message.NewPrinter(language.English),
	}
}

// Summarize computes the summary of the variant's source table.
func (t *SourceSummaryTasklet) Summarize(ctx context.Context) (SourceSummary, error) {
	var out SourceSummary
	s, err := openQuery(ctx, t.resolver, t.dbRef, "source_summary")
	if err != nil {
		return out, err
	}
	pickup, distance := s.q(t.variant.PickupField), s.q(t.variant.DistanceField)
	query := fmt.Sprintf("SELECT COUNT(*), MIN(%s), MAX(%s), AVG(%s), SUM(%s) FROM %s",
		pickup, pickup, distance, distance, s.q(t.variant.TripsSource))
	values, err := s.row(ctx, query, 5)
	if err != nil {
		return out, err
	}

	rows, _, err := trip.AsFloat(values[0])
	if err != nil {
		return out, err
	}
	out.Rows = int64(rows)
	for i, dst := range []**time.Time{&out.FirstPickup, &out.LastPickup} {
		ts, ok, err := trip.AsTime(values[1+i], t.loc)
		if err != nil {
			return out, err
		}
		if ok {
			*dst = &ts
		}
	}
	for i, dst := range []**float64{&out.AvgDistance, &out.TotalDistance} {
		f, ok, err := trip.AsFloat(values[3+i])
		if err != nil {
			return out, err
		}
		if ok {
			*dst = &f
		}
	}
	return out, nil
}

func (t *SourceSummaryTasklet) Execute(ctx context.Context, stepExecution *model.StepExecution) (model.ExitStatus, error) {
	sum, err := t.Summarize(ctx)
	if err != nil {
		return model.ExitStatusFailed, exception.NewBatchError("source_summary", fmt.Sprintf("failed to summarize %s", t.variant.TripsSource), err, false, false)
	}

	ec := stepExecution.ExecutionContext
	ec.Put("summary.rows", sum.Rows)
	logger.Infof("%s: %s trips", t.variant.TripsSource, t.printer.Sprintf("%d", sum.Rows))
	if sum.FirstPickup != nil && sum.LastPickup != nil {
		ec.Put("summary.first_pickup", sum.FirstPickup.Format(time.RFC3339))
		ec.Put("summary.last_pickup", sum.LastPickup.Format(time.RFC3339))
		logger.Infof("%s: pickups from %s to %s", t.variant.TripsSource,
			sum.FirstPickup.Format(time.DateTime), sum.LastPickup.Format(time.DateTime))
	}
	if sum.AvgDistance != nil && sum.TotalDistance != nil {
		ec.Put("summary.avg_distance", *sum.AvgDistance)
		ec.Put("summary.total_distance", *sum.TotalDistance)
		logger.Infof("%s: %s miles in total, %s miles on average", t.variant.TripsSource,
			t.printer.Sprintf("%.1f", *sum.TotalDistance), t.printer.Sprintf("%.2f", *sum.AvgDistance))
	}
	return model.ExitStatusCompleted, nil
}
