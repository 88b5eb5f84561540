package tasklet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tigerroll/taxiemissions/internal/domain/entity"
	"github.com/tigerroll/taxiemissions/internal/domain/trip"
	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/database"
	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/storage"
	port "github.com/tigerroll/taxiemissions/pkg/batch/core/application/port"
	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/exception"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

// LargestTrip is the trip with the highest CO2 output of a table.
type LargestTrip struct {
	CO2Kgs   float64  `json:"co2_kgs"`
	Distance *float64 `json:"distance"`
	Pickup   string   `json:"pickup"`
	Dropoff  string   `json:"dropoff"`
}

// Bucket is the average CO2 per trip of one value of a calendar column.
type Bucket struct {
	Key       int     `json:"key"`
	Label     string  `json:"label"`
	AvgCO2Kgs float64 `json:"avg_co2_kgs"`
}

// Breakdown groups trips by a calendar column.
type Breakdown struct {
	Buckets []Bucket `json:"buckets"`
	Highest *Bucket  `json:"highest,omitempty"`
	Lowest  *Bucket  `json:"lowest,omitempty"`
}

// VariantAnalysis is the analysis of one transformed table.
type VariantAnalysis struct {
	Variant      string          `json:"variant"`
	Table        string          `json:"table"`
	LargestTrip  *LargestTrip    `json:"largest_trip,omitempty"`
	ByHour       Breakdown       `json:"by_hour_of_day"`
	ByDayOfWeek  Breakdown       `json:"by_day_of_week"`
	ByWeek       Breakdown       `json:"by_week_of_year"`
	ByMonth      Breakdown       `json:"by_month_of_year"`
	YearlyCO2Kgs map[int]float64 `json:"yearly_co2_kgs"`
}

// EmissionsReport is the analysis of every variant.
type EmissionsReport struct {
	GeneratedAt          time.Time         `json:"generated_at"`
	Variants             []VariantAnalysis `json:"variants"`
	CombinedYearlyCO2Kgs map[int]float64   `json:"combined_yearly_co2_kgs"`
}

// ReportUpload says where the JSON report goes. A nil *ReportUpload keeps the report in the log only.
type ReportUpload struct {
	Resolver   storage.StorageConnectionResolver
	StorageRef string
	Bucket     string
	Object     string
}

// AnalysisTasklet reports when and where taxi trips emit the most CO2.
type AnalysisTasklet struct {
	resolver database.DBConnectionResolver
	dbRef    string
	variants []trip.Variant
	loc      *time.Location
	upload   *ReportUpload
	printer  *message.Printer
	now      func() time.Time
}

var _ port.Tasklet = (*AnalysisTasklet)(nil)

// NewAnalysisTasklet creates the analysis step.
//
// Parameters:
//
//	resolver: Resolves dbRef, the connection holding the transformed tables.
//	dbRef: Name of the workload connection.
//	variants: The variants whose Target tables are analysed, in report order.
//	loc: Timezone used to render pickup and dropoff times.
//	upload: Where the JSON report is stored. nil logs the report only.
//
// Returns:
//
//	*AnalysisTasklet: The tasklet.
func NewAnalysisTasklet(resolver database.DBConnectionResolver, dbRef string, variants []trip.Variant, loc *time.Location, upload *ReportUpload) *AnalysisTasklet {
	if loc == nil {
		loc = time.UTC
	}
	return &AnalysisTasklet{
		resolver: resolver,
		dbRef:    dbRef,
		variants: variants,
		loc:      loc,
		upload:   upload,
		printer:  message.NewPrinter(language.English),
		now:      time.Now,
	}
}

// Analyze builds the report from the transformed tables.
func (t *AnalysisTasklet) Analyze(ctx context.Context) (*EmissionsReport, error) {
	s, err := openQuery(ctx, t.resolver, t.dbRef, "analysis")
	if err != nil {
		return nil, err
	}
	report := &EmissionsReport{GeneratedAt: t.now().In(t.loc), CombinedYearlyCO2Kgs: make(map[int]float64)}
	for _, v := range t.variants {
		a, err := t.analyzeVariant(ctx, s, v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", v.Target, err)
		}
		for year, kg := range a.YearlyCO2Kgs {
			report.CombinedYearlyCO2Kgs[year] += kg
		}
		report.Variants = append(report.Variants, a)
	}
	return report, nil
}

func (t *AnalysisTasklet) analyzeVariant(ctx context.Context, s *sqlQuery, v trip.Variant) (VariantAnalysis, error) {
	a := VariantAnalysis{Variant: v.Name, Table: v.Target, YearlyCO2Kgs: make(map[int]float64)}
	table, co2 := s.q(v.Target), s.q(entity.ColTripCO2Kgs)

	largest := fmt.Sprintf("SELECT %s, %s, %s, %s FROM %s WHERE %s IS NOT NULL ORDER BY %s DESC LIMIT 1",
		co2, s.q(v.DistanceField), s.q(v.PickupField), s.q(v.DropoffField), table, co2, co2)
	err := s.rows(ctx, largest, func(values []any) error {
		lt := &LargestTrip{}
		kg, _, err := trip.AsFloat(values[0])
		if err != nil {
			return err
		}
		lt.CO2Kgs = kg
		if d, ok, err := trip.AsFloat(values[1]); err != nil {
			return err
		} else if ok {
			lt.Distance = &d
		}
		for i, dst := range []*string{&lt.Pickup, &lt.Dropoff} {
			ts, ok, err := trip.AsTime(values[2+i], t.loc)
			if err != nil {
				return err
			}
			if ok {
				*dst = ts.Format(time.RFC3339)
			}
		}
		a.LargestTrip = lt
		return nil
	})
	if err != nil {
		return a, err
	}

	breakdowns := []struct {
		col   string
		dst   *Breakdown
		label func(int) string
	}{
		{entity.ColHourOfDay, &a.ByHour, func(k int) string { return fmt.Sprintf("%02d:00", k) }},
		{entity.ColDayOfWeek, &a.ByDayOfWeek, func(k int) string { return time.Weekday(k).String() }},
		{entity.ColWeekOfYear, &a.ByWeek, func(k int) string { return fmt.Sprintf("W%02d", k) }},
		{entity.ColMonthOfYear, &a.ByMonth, func(k int) string { return time.Month(k).String() }},
	}
	for _, b := range breakdowns {
		col := s.q(b.col)
		query := fmt.Sprintf("SELECT %s, AVG(%s) FROM %s WHERE %s IS NOT NULL AND %s IS NOT NULL GROUP BY %s ORDER BY %s",
			col, co2, table, col, co2, col, col)
		if err := s.rows(ctx, query, func(values []any) error {
			key, avg, err := keyValue(values)
			if err != nil {
				return err
			}
			b.dst.Buckets = append(b.dst.Buckets, Bucket{Key: key, Label: b.label(key), AvgCO2Kgs: avg})
			return nil
		}); err != nil {
			return a, err
		}
		b.dst.rank()
	}

	year := s.q(entity.ColYear)
	yearly := fmt.Sprintf("SELECT %s, SUM(%s) FROM %s WHERE %s IS NOT NULL GROUP BY %s ORDER BY %s",
		year, co2, table, year, year, year)
	err = s.rows(ctx, yearly, func(values []any) error {
		y, kg, err := keyValue(values)
		if err != nil {
			return err
		}
		a.YearlyCO2Kgs[y] = kg
		return nil
	})
	return a, err
}

func keyValue(values []any) (int, float64, error) {
	k, ok, err := trip.AsFloat(values[0])
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, fmt.Errorf("NULL group key")
	}
	v, _, err := trip.AsFloat(values[1])
	if err != nil {
		return 0, 0, err
	}
	return int(k), v, nil
}

// rank sets Highest and Lowest. Ties keep the smallest key.
func (b *Breakdown) rank() {
	for i := range b.Buckets {
		bk := &b.Buckets[i]
		if b.Highest == nil || bk.AvgCO2Kgs > b.Highest.AvgCO2Kgs {
			b.Highest = bk
		}
		if b.Lowest == nil || bk.AvgCO2Kgs < b.Lowest.AvgCO2Kgs {
			b.Lowest = bk
		}
	}
}

func (t *AnalysisTasklet) Execute(ctx context.Context, stepExecution *model.StepExecution) (model.ExitStatus, error) {
	report, err := t.Analyze(ctx)
	if err != nil {
		return model.ExitStatusFailed, exception.NewBatchError("analysis", "failed to analyze transformed trips", err, false, false)
	}
	t.log(report)

	if t.upload != nil {
		if err := t.uploadReport(ctx, report); err != nil {
			return model.ExitStatusFailed, err
		}
		stepExecution.ExecutionContext.Put("analysis.report_object", t.upload.Object)
	}
	stepExecution.ExecutionContext.Put("analysis.variants", len(report.Variants))
	return model.ExitStatusCompleted, nil
}

func (t *AnalysisTasklet) log(report *EmissionsReport) {
	p := t.printer
	for _, a := range report.Variants {
		if lt := a.LargestTrip; lt != nil {
			logger.Infof("%s: largest trip emitted %s kg CO2 (pickup %s, dropoff %s)", a.Variant, p.Sprintf("%.2f", lt.CO2Kgs), lt.Pickup, lt.Dropoff)
		}
		for _, bd := range []struct {
			name string
			b    Breakdown
		}{{"hour", a.ByHour}, {"day of week", a.ByDayOfWeek}, {"week", a.ByWeek}, {"month", a.ByMonth}} {
			if bd.b.Highest == nil {
				continue
			}
			logger.Infof("%s: by %s, most CO2 per trip in %s (%.3f kg), least in %s (%.3f kg)", a.Variant, bd.name,
				bd.b.Highest.Label, bd.b.Highest.AvgCO2Kgs, bd.b.Lowest.Label, bd.b.Lowest.AvgCO2Kgs)
		}
		for _, y := range sortedYears(a.YearlyCO2Kgs) {
			logger.Infof("%s: %d total %s kg CO2", a.Variant, y, p.Sprintf("%.0f", a.YearlyCO2Kgs[y]))
		}
	}
	for _, y := range sortedYears(report.CombinedYearlyCO2Kgs) {
		logger.Infof("all taxis: %d total %s kg CO2", y, p.Sprintf("%.0f", report.CombinedYearlyCO2Kgs[y]))
	}
}

func (t *AnalysisTasklet) uploadReport(ctx context.Context, report *EmissionsReport) error {
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return exception.NewBatchError("analysis", "failed to encode the report", err, false, false)
	}
	conn, err := t.upload.Resolver.ResolveStorageConnection(ctx, t.upload.StorageRef)
	if err != nil {
		return exception.NewBatchError("analysis", fmt.Sprintf("failed to resolve storage '%s'", t.upload.StorageRef), err, false, false)
	}
	if err := conn.Upload(ctx, t.upload.Bucket, t.upload.Object, bytes.NewReader(body), "application/json"); err != nil {
		return exception.NewBatchError("analysis", fmt.Sprintf("failed to upload %s", t.upload.Object), err, exception.IsTemporary(err), false)
	}
	logger.Infof("Emissions report uploaded to %s.", t.upload.Object)
	return nil
}

func sortedYears(m map[int]float64) []int {
	out := make([]int, 0, len(m))
	for y := range m {
		out = append(out, y)
	}
	sort.Ints(out)
	return out
}
