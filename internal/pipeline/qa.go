package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/couchcryptid/air-quality-etl-service/internal/config"
	"github.com/couchcryptid/air-quality-etl-service/internal/domain"
)

// Filenames written into the QA directory.
const (
	CoverageReportFile = "city_year_coverage.csv"
	PeriodSummaryFile  = "period_summary.csv"
	QASummaryFile      = "qa_summary.json"
)

// ProcessedSource reads back the processed tables for QA.
type ProcessedSource interface {
	ReadDaily() ([]domain.DailyAggregate, error)
	ReadDistributions() ([]domain.CityDistribution, error)
}

// QAReport is the top-level QA summary, also written as qa_summary.json.
type QAReport struct {
	Cities        int     `json:"cities"`
	Years         []int   `json:"years"`
	DailyRows     int     `json:"daily_rows"`
	PM25Guideline float64 `json:"pm25_guideline"`
}

// Reporter computes QA reports over the processed daily table: per city-year
// coverage statistics, a per-period roll-up, and a dataset summary. It also
// cross-checks that the daily and distribution tables agree on which cities
// are eligible.
type Reporter struct {
	source     ProcessedSource
	qaDir      string
	guideline  float64
	thresholds domain.Thresholds
	logger     *slog.Logger
}

// NewReporter creates a Reporter writing into cfg.QADir.
func NewReporter(source ProcessedSource, cfg *config.Config, logger *slog.Logger) *Reporter {
	return &Reporter{
		source:     source,
		qaDir:      cfg.QADir,
		guideline:  cfg.PM25Guideline,
		thresholds: cfg.Thresholds,
		logger:     logger,
	}
}

// Run reads the daily table, writes the QA reports, and returns the summary.
func (r *Reporter) Run() (*QAReport, error) {
	daily, err := r.source.ReadDaily()
	if err != nil {
		return nil, err
	}
	if len(daily) == 0 {
		return nil, domain.ErrEmptyDailyTable
	}
	if err := os.MkdirAll(r.qaDir, 0o755); err != nil {
		return nil, fmt.Errorf("create qa dir: %w", err)
	}

	if err := r.writeCoverageReport(daily); err != nil {
		return nil, err
	}
	if err := r.writePeriodSummary(daily); err != nil {
		return nil, err
	}
	report, err := r.writeSummary(daily)
	if err != nil {
		return nil, err
	}
	r.auditEligibility(daily)

	r.logger.Info("qa reports written",
		"dir", r.qaDir,
		"cities", report.Cities,
		"daily_rows", report.DailyRows)
	return report, nil
}

type coverageKey struct {
	cityID     int64
	cityName   string
	regionName string
	year       int
}

type coverageAccum struct {
	hours  []float64
	shares []float64
}

// writeCoverageReport writes one row per (city, year) with observation
// counts and coverage statistics. The share column keeps its historical
// name even when the coverage threshold is configured away from 18 hours.
func (r *Reporter) writeCoverageReport(daily []domain.DailyAggregate) error {
	groups := make(map[coverageKey]*coverageAccum)
	for _, d := range daily {
		key := coverageKey{cityID: d.CityID, cityName: d.CityName, regionName: d.RegionName, year: d.Year}
		g := groups[key]
		if g == nil {
			g = &coverageAccum{}
			groups[key] = g
		}
		g.hours = append(g.hours, float64(d.AvailableHours))
		g.shares = append(g.shares, d.ExceedanceShare)
	}

	keys := make([]coverageKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].cityID != keys[j].cityID {
			return keys[i].cityID < keys[j].cityID
		}
		if keys[i].cityName != keys[j].cityName {
			return keys[i].cityName < keys[j].cityName
		}
		if keys[i].regionName != keys[j].regionName {
			return keys[i].regionName < keys[j].regionName
		}
		return keys[i].year < keys[j].year
	})

	rows := [][]string{{
		"city_id", "city_name", "region_name", "year",
		"days_observed", "mean_available_hours", "median_available_hours",
		"share_days_ge18", "mean_exceedance_share",
	}}
	minHours := float64(r.thresholds.MinCoverageHours)
	for _, key := range keys {
		g := groups[key]
		covered := 0
		for _, h := range g.hours {
			if h >= minHours {
				covered++
			}
		}
		rows = append(rows, []string{
			strconv.FormatInt(key.cityID, 10),
			key.cityName,
			key.regionName,
			strconv.Itoa(key.year),
			strconv.Itoa(len(g.hours)),
			formatFloatCell(domain.Mean(g.hours)),
			formatFloatCell(domain.Median(g.hours)),
			formatFloatCell(float64(covered) / float64(len(g.hours))),
			formatFloatCell(domain.Mean(g.shares)),
		})
	}
	return writeCSV(filepath.Join(r.qaDir, CoverageReportFile), rows)
}

// writePeriodSummary writes one row per period with the median of daily
// medians and the mean exceedance share.
func (r *Reporter) writePeriodSummary(daily []domain.DailyAggregate) error {
	medians := make(map[domain.Period][]float64)
	shares := make(map[domain.Period][]float64)
	for _, d := range daily {
		medians[d.Period] = append(medians[d.Period], d.PM25Median)
		shares[d.Period] = append(shares[d.Period], d.ExceedanceShare)
	}

	periods := make([]string, 0, len(medians))
	for p := range medians {
		periods = append(periods, string(p))
	}
	sort.Strings(periods)

	rows := [][]string{{"period", "pm25_median", "exceedance_share"}}
	for _, p := range periods {
		rows = append(rows, []string{
			p,
			formatFloatCell(domain.Median(medians[domain.Period(p)])),
			formatFloatCell(domain.Mean(shares[domain.Period(p)])),
		})
	}
	return writeCSV(filepath.Join(r.qaDir, PeriodSummaryFile), rows)
}

func (r *Reporter) writeSummary(daily []domain.DailyAggregate) (*QAReport, error) {
	cities := make(map[int64]struct{})
	yearSet := make(map[int]struct{})
	for _, d := range daily {
		cities[d.CityID] = struct{}{}
		yearSet[d.Year] = struct{}{}
	}
	years := make([]int, 0, len(yearSet))
	for y := range yearSet {
		years = append(years, y)
	}
	sort.Ints(years)

	report := &QAReport{
		Cities:        len(cities),
		Years:         years,
		DailyRows:     len(daily),
		PM25Guideline: r.guideline,
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode qa summary: %w", err)
	}
	path := filepath.Join(r.qaDir, QASummaryFile)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return nil, fmt.Errorf("write qa summary: %w", err)
	}
	return report, nil
}

// auditEligibility recomputes the eligible city set from both the daily and
// the distribution table and warns when they disagree. The audit is advisory
// and never fails the run; a missing distribution table just skips it.
func (r *Reporter) auditEligibility(daily []domain.DailyAggregate) {
	dist, err := r.source.ReadDistributions()
	if err != nil {
		r.logger.Debug("skipping eligibility audit", "error", err)
		return
	}
	fromDaily := domain.EligibleCityIDsFromDaily(daily, r.thresholds)
	fromDist := domain.EligibleCityIDsFromDistributions(dist, r.thresholds)

	mismatch := len(fromDaily) != len(fromDist)
	if !mismatch {
		for id := range fromDaily {
			if _, ok := fromDist[id]; !ok {
				mismatch = true
				break
			}
		}
	}
	if mismatch {
		r.logger.Warn("eligibility audit mismatch between daily and distribution tables",
			"from_daily", len(fromDaily),
			"from_distributions", len(fromDist))
		return
	}
	r.logger.Debug("eligibility audit passed", "cities", len(fromDaily))
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	return nil
}

// formatFloatCell renders a float for CSV output, with NaN as an empty cell
// the way dataframe exports represent missing values.
func formatFloatCell(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
