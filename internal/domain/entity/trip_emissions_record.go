package entity

// Derived column names, in the order they are appended to a trip row.
const (
	ColTripCO2Kgs   = "trip_co2_kgs"
	ColAvgMph       = "avg_mph"
	ColHourOfDay    = "hour_of_day"
	ColDayOfWeek    = "day_of_week"
	ColWeekOfYear   = "week_of_year"
	ColMonthOfYear  = "month_of_year"
	ColYear         = "year"
	derivedColCount = 7
)

// DerivedColumns lists the derived columns in output order.
var DerivedColumns = [derivedColCount]string{
	ColTripCO2Kgs, ColAvgMph, ColHourOfDay, ColDayOfWeek, ColWeekOfYear, ColMonthOfYear, ColYear,
}

// TripEmissionsRecord is the exported form of a transformed trip.
// Optional fields are pointers; parquet-go writes nil as null.
type TripEmissionsRecord struct {
	Color         string   `parquet:"name=color, type=BYTE_ARRAY, convertedtype=UTF8"`
	PickupMillis  int64    `parquet:"name=pickup_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	DropoffMillis int64    `parquet:"name=dropoff_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	TripDistance  *float64 `parquet:"name=trip_distance, type=DOUBLE, repetitiontype=OPTIONAL"`
	TripCO2Kgs    *float64 `parquet:"name=trip_co2_kgs, type=DOUBLE, repetitiontype=OPTIONAL"`
	AvgMph        *float64 `parquet:"name=avg_mph, type=DOUBLE, repetitiontype=OPTIONAL"`
	HourOfDay     int32    `parquet:"name=hour_of_day, type=INT32"`
	DayOfWeek     int32    `parquet:"name=day_of_week, type=INT32"`
	WeekOfYear    int32    `parquet:"name=week_of_year, type=INT32"`
	MonthOfYear   int32    `parquet:"name=month_of_year, type=INT32"`
	Year          int32    `parquet:"name=year, type=INT32"`
}
