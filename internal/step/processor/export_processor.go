package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/tigerroll/taxiemissions/internal/domain/entity"
	"github.com/tigerroll/taxiemissions/internal/domain/trip"
	port "github.com/tigerroll/taxiemissions/pkg/batch/core/application/port"
)

// ExportProcessor maps a transformed trip to its exported record.
// Trips without a pickup time have no partition and are filtered.
type ExportProcessor struct {
	variant trip.Variant
	loc     *time.Location
}

var _ port.ItemProcessor[*entity.TripRow, entity.TripEmissionsRecord] = (*ExportProcessor)(nil)

func NewExportProcessor(variant trip.Variant, loc *time.Location) *ExportProcessor {
	if loc == nil {
		loc = time.UTC
	}
	return &ExportProcessor{variant: variant, loc: loc}
}

func (p *ExportProcessor) Process(_ context.Context, row *entity.TripRow) (entity.TripEmissionsRecord, error) {
	var rec entity.TripEmissionsRecord

	rawPickup, _ := row.Get(p.variant.PickupField)
	pickup, ok, err := trip.AsTime(rawPickup, p.loc)
	if err != nil {
		return rec, fmt.Errorf("%s: %w", p.variant.PickupField, err)
	}
	if !ok {
		return rec, nil
	}
	rawDropoff, _ := row.Get(p.variant.DropoffField)
	dropoff, hasDropoff, err := trip.AsTime(rawDropoff, p.loc)
	if err != nil {
		return rec, fmt.Errorf("%s: %w", p.variant.DropoffField, err)
	}

	rec.Color = p.variant.Name
	rec.PickupMillis = pickup.UnixMilli()
	if hasDropoff {
		rec.DropoffMillis = dropoff.UnixMilli()
	}
	if rec.TripDistance, err = optionalFloat(row, p.variant.DistanceField); err != nil {
		return rec, err
	}
	if rec.TripCO2Kgs, err = optionalFloat(row, entity.ColTripCO2Kgs); err != nil {
		return rec, err
	}
	if rec.AvgMph, err = optionalFloat(row, entity.ColAvgMph); err != nil {
		return rec, err
	}

	ints := []struct {
		col string
		dst *int32
	}{
		{entity.ColHourOfDay, &rec.HourOfDay},
		{entity.ColDayOfWeek, &rec.DayOfWeek},
		{entity.ColWeekOfYear, &rec.WeekOfYear},
		{entity.ColMonthOfYear, &rec.MonthOfYear},
		{entity.ColYear, &rec.Year},
	}
	for _, c := range ints {
		f, err := optionalFloat(row, c.col)
		if err != nil {
			return rec, err
		}
		if f == nil {
			return rec, fmt.Errorf("%w: %s is NULL for a trip with a pickup time", trip.ErrInvalidValue, c.col)
		}
		*c.dst = int32(*f)
	}
	return rec, nil
}

func optionalFloat(row *entity.TripRow, col string) (*float64, error) {
	raw, found := row.Get(col)
	if !found {
		return nil, fmt.Errorf("%w: %q", trip.ErrMissingColumn, col)
	}
	f, ok, err := trip.AsFloat(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", col, err)
	}
	if !ok {
		return nil, nil
	}
	return &f, nil
}

// PartitionKey places a record under year=YYYY/month=MM.
func PartitionKey(rec entity.TripEmissionsRecord) (string, error) {
	if rec.Year == 0 || rec.MonthOfYear < 1 || rec.MonthOfYear > 12 {
		return "", fmt.Errorf("record has no valid year/month (%d/%d)", rec.Year, rec.MonthOfYear)
	}
	return fmt.Sprintf("year=%04d/month=%02d", rec.Year, rec.MonthOfYear), nil
}
