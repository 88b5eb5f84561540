package trip

import (
	"errors"
	"fmt"
	"time"

	"github.com/tigerroll/taxiemissions/internal/domain/entity"
)

var (
	// ErrMissingColumn means a column the variant refers to is absent from the source row.
	ErrMissingColumn = errors.New("missing column")
	// ErrColumnConflict means the source already has a column named like a derived one.
	ErrColumnConflict = errors.New("derived column already present in source")
)

// CheckSchema verifies that columns carry everything the variant reads and none of the derived names.
func CheckSchema(columns []string, v Variant) error {
	have := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		have[c] = struct{}{}
	}
	for _, need := range []string{v.PickupField, v.DropoffField, v.DistanceField} {
		if _, ok := have[need]; !ok {
			return fmt.Errorf("%w: %q not found in %s", ErrMissingColumn, need, v.TripsSource)
		}
	}
	for _, d := range entity.DerivedColumns {
		if _, ok := have[d]; ok {
			return fmt.Errorf("%w: %q in %s", ErrColumnConflict, d, v.TripsSource)
		}
	}
	return nil
}

// Enrich returns a copy of row followed by trip_co2_kgs, avg_mph, hour_of_day, day_of_week,
// week_of_year, month_of_year and year. row is not modified.
//
// NULL distance gives NULL CO2 and speed. A zero duration gives NULL speed. A NULL pickup gives
// NULL calendar fields. Calendar fields are taken in loc; day_of_week counts from Sunday = 0 and
// week_of_year is the ISO-8601 week.
func Enrich(row *entity.TripRow, v Variant, gramsPerMile float64, loc *time.Location) (*entity.TripRow, error) {
	if err := CheckSchema(row.Columns, v); err != nil {
		return nil, err
	}
	rawPickup, _ := row.Get(v.PickupField)
	rawDropoff, _ := row.Get(v.DropoffField)
	rawDistance, _ := row.Get(v.DistanceField)

	pickup, hasPickup, err := AsTime(rawPickup, loc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", v.PickupField, err)
	}
	dropoff, hasDropoff, err := AsTime(rawDropoff, loc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", v.DropoffField, err)
	}
	distance, hasDistance, err := AsFloat(rawDistance)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", v.DistanceField, err)
	}

	out := row.CloneWithCapacity(len(entity.DerivedColumns))

	var co2, mph any
	if hasDistance {
		co2 = distance * gramsPerMile / 1000.0
		if hasPickup && hasDropoff {
			if seconds := dropoff.Sub(pickup).Seconds(); seconds != 0 {
				mph = distance / (seconds / 3600)
			}
		}
	}
	out.Append(entity.ColTripCO2Kgs, co2)
	out.Append(entity.ColAvgMph, mph)

	if !hasPickup {
		for _, c := range entity.DerivedColumns[2:] {
			out.Append(c, nil)
		}
		return out, nil
	}
	_, week := pickup.ISOWeek()
	out.Append(entity.ColHourOfDay, int64(pickup.Hour()))
	out.Append(entity.ColDayOfWeek, int64(pickup.Weekday()))
	out.Append(entity.ColWeekOfYear, int64(week))
	out.Append(entity.ColMonthOfYear, int64(pickup.Month()))
	out.Append(entity.ColYear, int64(pickup.Year()))
	return out, nil
}
