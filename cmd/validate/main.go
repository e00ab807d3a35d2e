// Command validate performs end-to-end integrity checks across a produced
// dataset: raw partitions, the processed parquet tables, and the run
// summary. It re-runs the aggregation chain on the raw records and checks
// the stored tables against the result, so a silent regression in any
// stage shows up as a diff.
//
// Calendar settings and the guideline are taken from the run summary the
// aggregation wrote; coverage thresholds are assumed to be the defaults.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -raw-dir data/raw \
//	  -processed-dir data/processed \
//	  -metadata dataset/saveecobot_cities.csv
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/air-quality-etl-service/internal/adapter/metadata"
	parquetadapter "github.com/couchcryptid/air-quality-etl-service/internal/adapter/parquet"
	"github.com/couchcryptid/air-quality-etl-service/internal/config"
	"github.com/couchcryptid/air-quality-etl-service/internal/domain"
	"github.com/couchcryptid/air-quality-etl-service/internal/observability"
	"github.com/couchcryptid/air-quality-etl-service/internal/pipeline"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	rawDir := flag.String("raw-dir", "", "directory containing raw parquet partitions")
	processedDir := flag.String("processed-dir", "", "directory containing processed parquet tables")
	metadataPath := flag.String("metadata", "", "path to the city metadata CSV")
	flag.Parse()

	if *rawDir == "" || *processedDir == "" || *metadataPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*rawDir, *processedDir, *metadataPath); code != 0 {
		os.Exit(code)
	}
}

func run(rawDir, processedDir, metadataPath string) int {
	fmt.Println("=== Air Quality Dataset Integrity Validation ===")
	fmt.Println()

	summary, err := loadSummary(filepath.Join(processedDir, pipeline.RunSummaryFile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load run summary: %v\n", err)
		return 1
	}
	loc, err := time.LoadLocation(summary.Timezone)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: run summary timezone: %v\n", err)
		return 1
	}
	wartime, err := time.ParseInLocation(time.DateOnly, summary.WartimeStart, loc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: run summary wartime start: %v\n", err)
		return 1
	}
	cal := domain.NewCalendar(loc, wartime)
	thresholds := domain.DefaultThresholds()
	thresholds.WartimeYear = wartime.Year()

	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := parquetadapter.NewStore(&config.Config{
		RawDir:          rawDir,
		ProcessedDir:    processedDir,
		Location:        loc,
		LoadConcurrency: 4,
	}, discard, observability.NewMetrics())

	meta, err := metadata.NewReader(&config.Config{MetadataPath: metadataPath}, discard).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load city metadata: %v\n", err)
		return 1
	}

	raw, err := store.LoadRaw(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load raw partitions: %v\n", err)
		return 1
	}
	hourly, err := store.ReadHourly()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read hourly table: %v\n", err)
		return 1
	}
	daily, err := store.ReadDaily()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read daily table: %v\n", err)
		return 1
	}
	dist, err := store.ReadDistributions()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read distribution table: %v\n", err)
		return 1
	}
	regions, err := store.ReadRegions()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read region table: %v\n", err)
		return 1
	}

	// Re-run the aggregation chain once; every phase compares against it.
	want := recomputeChain(raw, meta, cal, thresholds, summary.PM25Guideline)

	phases := []*phase{
		validateRawPartitions(store, loc),
		validateHourlyTable(hourly, want),
		validateDailyTable(daily, want),
		validateDistributionTable(dist, daily, thresholds),
		validateRegionTable(regions, daily, summary),
		validateRunSummary(summary, hourly, daily, dist, regions, want),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-44s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Rows: %d raw, %d hourly, %d daily, %d distribution, %d region\n",
		len(raw), len(hourly), len(daily), len(dist), len(regions))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func loadSummary(path string) (*pipeline.RunSummary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s pipeline.RunSummary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// chain holds the tables recomputed from the raw records.
type chain struct {
	hourly []domain.HourlyRecord
	daily  []domain.DailyAggregate
	pairs  map[domain.CityYear]struct{}
}

func recomputeChain(raw []domain.HourlyRecord, meta map[int64]domain.CityMeta, cal *domain.Calendar, t domain.Thresholds, guideline float64) chain {
	enriched := make([]domain.HourlyRecord, len(raw))
	for i, rec := range raw {
		rec = domain.FlagValidity(cal.Enrich(rec))
		if m, ok := meta[rec.CityID]; ok {
			rec.CityName = m.CityName
			rec.RegionName = m.RegionName
			rec.Koatuu = m.Koatuu
			rec.Katottg = m.Katottg
		}
		enriched[i] = rec
	}
	daily := domain.BuildDailyAggregates(enriched, cal, guideline)
	pairs := domain.EligiblePairsFromDaily(daily, t)
	return chain{
		hourly: domain.FilterHourlyByPairs(enriched, pairs),
		daily:  domain.FilterDailyByPairs(daily, pairs),
		pairs:  pairs,
	}
}

// ── Phase 1: Raw Partitions ──
// Every record in a yearly partition must belong to that local year.

func validateRawPartitions(store *parquetadapter.Store, loc *time.Location) *phase {
	p := &phase{name: "Phase 1: Raw Partitions (year placement)"}

	paths, err := store.ListRawPartitions()
	if err != nil {
		p.errorf("list partitions: %v", err)
		return p
	}
	if len(paths) == 0 {
		p.errorf("no raw partitions found")
		return p
	}

	for _, path := range paths {
		base := filepath.Base(path)
		year, err := partitionYear(base)
		if err != nil {
			p.errorf("%v", err)
			continue
		}
		recs, err := store.ReadRawPartition(year)
		if err != nil {
			p.errorf("%s: %v", base, err)
			continue
		}
		if len(recs) == 0 {
			p.errorf("%s: partition is empty", base)
			continue
		}
		misplaced := 0
		for i := range recs {
			if recs[i].LoggedAt.In(loc).Year() != year {
				misplaced++
			}
		}
		if misplaced > 0 {
			p.errorf("%s: %d records belong to another local year", base, misplaced)
		}
	}
	return p
}

func partitionYear(base string) (int, error) {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(base, "city_hourly_"), ".parquet")
	year, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("unexpected partition name %q", base)
	}
	return year, nil
}

// ── Phase 2: Hourly Table ──
// The stored hourly table must be the enriched, gated form of the raw
// records, nothing more and nothing less.

func validateHourlyTable(stored []domain.HourlyRecord, want chain) *phase {
	p := &phase{name: "Phase 2: Hourly Table (gate parity)"}

	if len(stored) != len(want.hourly) {
		p.errorf("row count: recomputed %d, stored %d", len(want.hourly), len(stored))
	}

	counts := map[string]int{}
	for i := range want.hourly {
		counts[hourlyKey(&want.hourly[i])]++
	}
	for i := range stored {
		counts[hourlyKey(&stored[i])]--
	}

	missing, extra := 0, 0
	var missingExample, extraExample string
	for k, n := range counts {
		switch {
		case n > 0:
			missing += n
			missingExample = k
		case n < 0:
			extra -= n
			extraExample = k
		}
	}
	if missing > 0 {
		p.errorf("%d recomputed rows missing from stored table (e.g. %s)", missing, missingExample)
	}
	if extra > 0 {
		p.errorf("%d stored rows not reproduced by the pipeline (e.g. %s)", extra, extraExample)
	}
	return p
}

func hourlyKey(r *domain.HourlyRecord) string {
	return fmt.Sprintf("%d|%d|%s|%s|%t", r.CityID, r.LoggedAt.Unix(), r.SourceFile, r.Period, r.RecordValid)
}

// ── Phase 3: Daily Table ──
// Stored daily statistics must match a fresh rollup of the raw records.

func validateDailyTable(stored []domain.DailyAggregate, want chain) *phase {
	p := &phase{name: "Phase 3: Daily Table (stat parity)"}

	if len(stored) != len(want.daily) {
		p.errorf("row count: recomputed %d, stored %d", len(want.daily), len(stored))
	}

	byKey := make(map[string]*domain.DailyAggregate, len(want.daily))
	for i := range want.daily {
		byKey[dailyKey(&want.daily[i])] = &want.daily[i]
	}

	for i := range stored {
		got := &stored[i]
		key := dailyKey(got)
		exp, ok := byKey[key]
		if !ok {
			p.errorf("%s: stored row not reproduced", key)
			continue
		}
		if got.AvailableHours != exp.AvailableHours {
			p.errorf("%s: available_hours: expected %d, got %d", key, exp.AvailableHours, got.AvailableHours)
		}
		if got.ExceedanceHours != exp.ExceedanceHours {
			p.errorf("%s: exceedance_hours: expected %d, got %d", key, exp.ExceedanceHours, got.ExceedanceHours)
		}
		if !statEq(got.PM25Mean, exp.PM25Mean) {
			p.errorf("%s: pm25_mean: expected %g, got %g", key, exp.PM25Mean, got.PM25Mean)
		}
		if !statEq(got.PM25Median, exp.PM25Median) {
			p.errorf("%s: pm25_median: expected %g, got %g", key, exp.PM25Median, got.PM25Median)
		}
		if !statEq(got.ExceedanceShare, exp.ExceedanceShare) {
			p.errorf("%s: exceedance_share: expected %g, got %g", key, exp.ExceedanceShare, got.ExceedanceShare)
		}
		if got.Period != exp.Period {
			p.errorf("%s: period: expected %s, got %s", key, exp.Period, got.Period)
		}
	}
	return p
}

func dailyKey(d *domain.DailyAggregate) string {
	return fmt.Sprintf("%d|%s", d.CityID, d.DateLocal.Format(time.DateOnly))
}

// ── Phase 4: Distributions ──
// The distribution table must match a fresh rollup of the stored daily
// table, and both eligibility entry points must agree.

func validateDistributionTable(stored []domain.CityDistribution, daily []domain.DailyAggregate, t domain.Thresholds) *phase {
	p := &phase{name: "Phase 4: Distributions (rollup parity)"}

	want := domain.BuildCityDistributions(daily, t.MinCoverageHours)
	if len(stored) != len(want) {
		p.errorf("row count: recomputed %d, stored %d", len(want), len(stored))
	}

	byKey := make(map[string]*domain.CityDistribution, len(want))
	for i := range want {
		byKey[distKey(&want[i])] = &want[i]
	}

	for i := range stored {
		got := &stored[i]
		key := distKey(got)
		exp, ok := byKey[key]
		if !ok {
			p.errorf("%s: stored row not reproduced", key)
			continue
		}
		if got.CityName != exp.CityName {
			p.errorf("%s: city_name: expected %q, got %q", key, exp.CityName, got.CityName)
		}
		if got.Days != exp.Days {
			p.errorf("%s: days: expected %d, got %d", key, exp.Days, got.Days)
		}
		if got.DaysWithCoverageGE18 != exp.DaysWithCoverageGE18 {
			p.errorf("%s: days_with_coverage: expected %d, got %d", key, exp.DaysWithCoverageGE18, got.DaysWithCoverageGE18)
		}
		if !statEq(got.PM25Median, exp.PM25Median) {
			p.errorf("%s: pm25_median: expected %g, got %g", key, exp.PM25Median, got.PM25Median)
		}
		if !statEq(got.PM25P90, exp.PM25P90) {
			p.errorf("%s: pm25_p90: expected %g, got %g", key, exp.PM25P90, got.PM25P90)
		}
		if !statEq(got.PM25P10, exp.PM25P10) {
			p.errorf("%s: pm25_p10: expected %g, got %g", key, exp.PM25P10, got.PM25P10)
		}
		if !statEq(got.ExceedanceShare, exp.ExceedanceShare) {
			p.errorf("%s: exceedance_share: expected %g, got %g", key, exp.ExceedanceShare, got.ExceedanceShare)
		}
	}

	fromDaily := domain.EligibleCityIDsFromDaily(daily, t)
	fromDist := domain.EligibleCityIDsFromDistributions(stored, t)
	if !sameIDSet(fromDaily, fromDist) {
		p.errorf("eligibility disagreement: daily table yields %d cities, distribution table %d", len(fromDaily), len(fromDist))
	}
	return p
}

func distKey(d *domain.CityDistribution) string {
	return fmt.Sprintf("%d|%s|%s|%d", d.CityID, d.Level, d.Period, d.Year)
}

// ── Phase 5: Regions ──
// The region table must match a fresh rollup, and geometry presence must
// line up with what the run summary claims was joined.

func validateRegionTable(stored []domain.RegionPeriodSummary, daily []domain.DailyAggregate, summary *pipeline.RunSummary) *phase {
	p := &phase{name: "Phase 5: Regions (rollup parity)"}

	want := domain.BuildRegionPeriodSummaries(daily)
	if len(stored) != len(want) {
		p.errorf("row count: recomputed %d, stored %d", len(want), len(stored))
	}

	byKey := make(map[string]*domain.RegionPeriodSummary, len(want))
	for i := range want {
		byKey[want[i].RegionName+"|"+string(want[i].Period)] = &want[i]
	}

	withGeometry := 0
	for i := range stored {
		got := &stored[i]
		key := got.RegionName + "|" + string(got.Period)
		exp, ok := byKey[key]
		if !ok {
			p.errorf("%s: stored row not reproduced", key)
			continue
		}
		if got.Cities != exp.Cities {
			p.errorf("%s: cities: expected %d, got %d", key, exp.Cities, got.Cities)
		}
		if got.Days != exp.Days {
			p.errorf("%s: days: expected %d, got %d", key, exp.Days, got.Days)
		}
		if !statEq(got.PM25Mean, exp.PM25Mean) {
			p.errorf("%s: pm25_mean: expected %g, got %g", key, exp.PM25Mean, got.PM25Mean)
		}
		if !statEq(got.PM25Median, exp.PM25Median) {
			p.errorf("%s: pm25_median: expected %g, got %g", key, exp.PM25Median, got.PM25Median)
		}
		if !statEq(got.ExceedanceShare, exp.ExceedanceShare) {
			p.errorf("%s: exceedance_share: expected %g, got %g", key, exp.ExceedanceShare, got.ExceedanceShare)
		}
		if len(got.Geometry) > 0 {
			withGeometry++
		}
	}

	if summary.BoundariesMatched > 0 && withGeometry == 0 {
		p.errorf("run summary reports %d matched boundaries but no stored region carries geometry", summary.BoundariesMatched)
	}
	if withGeometry > summary.BoundariesMatched {
		p.errorf("%d regions carry geometry but run summary reports only %d matches", withGeometry, summary.BoundariesMatched)
	}
	return p
}

// ── Phase 6: Run Summary ──
// Row counts and eligibility figures in the summary must describe the
// dataset on disk.

func validateRunSummary(summary *pipeline.RunSummary, hourly []domain.HourlyRecord, daily []domain.DailyAggregate, dist []domain.CityDistribution, regions []domain.RegionPeriodSummary, want chain) *phase {
	p := &phase{name: "Phase 6: Run Summary (row counts)"}

	check := func(field string, dataset, claimed int) {
		if dataset != claimed {
			p.errorf("%s: summary says %d, dataset has %d", field, claimed, dataset)
		}
	}
	check("hourly_rows", len(hourly), summary.HourlyRows)
	check("daily_rows", len(daily), summary.DailyRows)
	check("distribution_rows", len(dist), summary.DistributionRows)
	check("region_rows", len(regions), summary.RegionRows)

	cities := make(map[int64]struct{}, len(want.pairs))
	for pair := range want.pairs {
		cities[pair.CityID] = struct{}{}
	}
	check("eligible_cities", len(cities), summary.EligibleCities)
	check("eligible_pairs", len(want.pairs), summary.EligiblePairs)

	if summary.RunID == "" {
		p.errorf("run_id is empty")
	}
	if summary.FinishedAt.Before(summary.StartedAt) {
		p.errorf("finished_at precedes started_at")
	}
	return p
}

// ── Helpers ──

// statEq treats two NaNs as equal; NaN is how empty-day statistics are
// stored.
func statEq(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return math.Abs(a-b) < 1e-9
}

func sameIDSet(a, b map[int64]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if _, ok := b[id]; !ok {
			return false
		}
	}
	return true
}
