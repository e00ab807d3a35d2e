package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/air-quality-etl-service/internal/config"
	"github.com/couchcryptid/air-quality-etl-service/internal/domain"
	"github.com/couchcryptid/air-quality-etl-service/internal/observability"
)

// HourlySource loads the raw hourly records from every yearly partition.
type HourlySource interface {
	LoadRaw(ctx context.Context) ([]domain.HourlyRecord, error)
}

// MetadataSource loads the static city metadata keyed by city ID.
type MetadataSource interface {
	Load() (map[int64]domain.CityMeta, error)
}

// BoundarySource loads administrative boundaries keyed by region name. A nil
// map with a nil error means no boundary file is available and the geometry
// join is skipped.
type BoundarySource interface {
	Load() (map[string]domain.RegionBoundary, error)
}

// TableSink writes the processed tables.
type TableSink interface {
	WriteHourly(records []domain.HourlyRecord) error
	WriteDaily(daily []domain.DailyAggregate) error
	WriteDistributions(dist []domain.CityDistribution) error
	WriteRegions(regions []domain.RegionPeriodSummary) error
}

// AnalyticsMirror receives a copy of the analytic tables after they are
// written, typically into a local SQL database.
type AnalyticsMirror interface {
	MirrorDaily(ctx context.Context, daily []domain.DailyAggregate) error
	MirrorDistributions(ctx context.Context, dist []domain.CityDistribution) error
	MirrorRegions(ctx context.Context, regions []domain.RegionPeriodSummary) error
}

// Aggregator orchestrates one aggregation pass: load the raw partitions,
// enrich with calendar fields, validity flags, and city metadata, roll up
// daily aggregates, gate on coverage eligibility, build the distribution and
// region tables, and write everything out.
type Aggregator struct {
	source     HourlySource
	metadata   MetadataSource
	boundaries BoundarySource
	sink       TableSink
	mirror     AnalyticsMirror

	cal          *domain.Calendar
	guideline    float64
	thresholds   domain.Thresholds
	timezone     string
	wartimeStart time.Time

	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewAggregator creates an Aggregator with the given stages and observability.
// Pass a nil mirror to skip the analytics copy.
func NewAggregator(source HourlySource, metadata MetadataSource, boundaries BoundarySource, sink TableSink, mirror AnalyticsMirror, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Aggregator {
	return &Aggregator{
		source:       source,
		metadata:     metadata,
		boundaries:   boundaries,
		sink:         sink,
		mirror:       mirror,
		cal:          domain.NewCalendar(cfg.Location, cfg.WartimeStart),
		guideline:    cfg.PM25Guideline,
		thresholds:   cfg.Thresholds,
		timezone:     cfg.Timezone,
		wartimeStart: cfg.WartimeStart,
		logger:       logger,
		metrics:      metrics,
	}
}

// Run executes one aggregation pass and reports what it produced.
func (a *Aggregator) Run(ctx context.Context) (*RunSummary, error) {
	a.logger.Info("aggregation started", "timezone", a.timezone, "pm25_guideline", a.guideline)
	a.metrics.PipelineRunning.Set(1)
	defer a.metrics.PipelineRunning.Set(0)

	summary := &RunSummary{
		RunID:         uuid.NewString(),
		StartedAt:     clock.Now().UTC(),
		Timezone:      a.timezone,
		WartimeStart:  a.wartimeStart.Format(time.DateOnly),
		PM25Guideline: a.guideline,
	}

	records, err := a.load(ctx)
	if err != nil {
		return nil, err
	}

	records, valid, err := a.enrich(records)
	if err != nil {
		return nil, err
	}
	if valid == 0 {
		return nil, domain.ErrNoValidRecords
	}

	daily := a.rollupDaily(records)

	records, daily, pairs, err := a.gate(records, daily)
	if err != nil {
		return nil, err
	}

	dist := a.rollupDistributions(daily)

	regions, matched, err := a.rollupRegions(daily)
	if err != nil {
		return nil, err
	}

	if err := a.write(records, daily, dist, regions); err != nil {
		return nil, err
	}
	if err := a.mirrorTables(ctx, daily, dist, regions); err != nil {
		return nil, err
	}

	cities := make(map[int64]struct{}, len(pairs))
	for pair := range pairs {
		cities[pair.CityID] = struct{}{}
	}
	summary.HourlyRows = len(records)
	summary.DailyRows = len(daily)
	summary.DistributionRows = len(dist)
	summary.RegionRows = len(regions)
	summary.EligibleCities = len(cities)
	summary.EligiblePairs = len(pairs)
	summary.BoundariesMatched = matched
	summary.FinishedAt = clock.Now().UTC()

	a.logger.Info("aggregation finished",
		"hourly_rows", summary.HourlyRows,
		"daily_rows", summary.DailyRows,
		"eligible_cities", summary.EligibleCities,
		"regions", summary.RegionRows)
	return summary, nil
}

// load reads every raw partition in filename order.
func (a *Aggregator) load(ctx context.Context) ([]domain.HourlyRecord, error) {
	start := time.Now()
	records, err := a.source.LoadRaw(ctx)
	if err != nil {
		return nil, err
	}
	a.metrics.RecordsLoaded.Add(float64(len(records)))
	a.metrics.StageDuration.WithLabelValues("load").Observe(time.Since(start).Seconds())
	a.logger.Info("loaded raw hourly records", "rows", len(records))
	return records, nil
}

// enrich adds local calendar fields, validity flags, and the metadata join to
// every record, returning the count of valid records. Records whose city has
// no metadata row keep empty name fields; the daily rollup drops them, so
// they count as discarded.
func (a *Aggregator) enrich(records []domain.HourlyRecord) ([]domain.HourlyRecord, int, error) {
	start := time.Now()
	meta, err := a.metadata.Load()
	if err != nil {
		return nil, 0, err
	}

	valid := 0
	misses := 0
	missedCities := make(map[int64]struct{})
	for i := range records {
		rec := a.cal.Enrich(records[i])
		rec = domain.FlagValidity(rec)
		if m, ok := meta[rec.CityID]; ok {
			rec.CityName = m.CityName
			rec.RegionName = m.RegionName
			rec.Koatuu = m.Koatuu
			rec.Katottg = m.Katottg
		} else {
			misses++
			missedCities[rec.CityID] = struct{}{}
		}
		if rec.RecordValid {
			valid++
		}
		records[i] = rec
	}
	if misses > 0 {
		a.metrics.RecordsDiscarded.WithLabelValues("no_metadata").Add(float64(misses))
		a.logger.Warn("hourly records without metadata match", "rows", misses, "cities", len(missedCities))
	}
	a.metrics.StageDuration.WithLabelValues("enrich").Observe(time.Since(start).Seconds())
	a.logger.Info("enriched hourly records", "rows", len(records), "valid", valid, "cities", len(meta))
	return records, valid, nil
}

func (a *Aggregator) rollupDaily(records []domain.HourlyRecord) []domain.DailyAggregate {
	start := time.Now()
	daily := domain.BuildDailyAggregates(records, a.cal, a.guideline)
	a.metrics.StageDuration.WithLabelValues("daily").Observe(time.Since(start).Seconds())
	a.logger.Info("built daily aggregates", "rows", len(daily))
	return daily
}

// gate applies the coverage-eligibility criteria and filters both tables to
// the eligible city-year pairs.
func (a *Aggregator) gate(records []domain.HourlyRecord, daily []domain.DailyAggregate) ([]domain.HourlyRecord, []domain.DailyAggregate, map[domain.CityYear]struct{}, error) {
	start := time.Now()
	pairs := domain.EligiblePairsFromDaily(daily, a.thresholds)
	if len(pairs) == 0 {
		return nil, nil, nil, domain.ErrNoEligibleCities
	}
	records = domain.FilterHourlyByPairs(records, pairs)
	daily = domain.FilterDailyByPairs(daily, pairs)

	cities := make(map[int64]struct{}, len(pairs))
	for pair := range pairs {
		cities[pair.CityID] = struct{}{}
	}
	a.metrics.EligibleCities.Set(float64(len(cities)))
	a.metrics.StageDuration.WithLabelValues("eligibility").Observe(time.Since(start).Seconds())
	a.logger.Info("applied eligibility gate",
		"cities", len(cities),
		"pairs", len(pairs),
		"hourly_rows", len(records),
		"daily_rows", len(daily))
	return records, daily, pairs, nil
}

func (a *Aggregator) rollupDistributions(daily []domain.DailyAggregate) []domain.CityDistribution {
	start := time.Now()
	dist := domain.BuildCityDistributions(daily, a.thresholds.MinCoverageHours)
	a.metrics.StageDuration.WithLabelValues("distributions").Observe(time.Since(start).Seconds())
	a.logger.Info("built city distributions", "rows", len(dist))
	return dist
}

// rollupRegions builds the region-period table and joins boundary geometry
// when a boundary source is configured.
func (a *Aggregator) rollupRegions(daily []domain.DailyAggregate) ([]domain.RegionPeriodSummary, int, error) {
	start := time.Now()
	regions := domain.BuildRegionPeriodSummaries(daily)

	matched := 0
	if a.boundaries != nil {
		bounds, err := a.boundaries.Load()
		if err != nil {
			return nil, 0, err
		}
		if len(bounds) > 0 {
			matched = domain.AttachBoundaries(regions, bounds)
			a.logger.Info("joined admin boundaries", "matched", matched, "regions", len(regions))
		}
	}
	a.metrics.StageDuration.WithLabelValues("regions").Observe(time.Since(start).Seconds())
	a.logger.Info("built region summaries", "rows", len(regions))
	return regions, matched, nil
}

func (a *Aggregator) write(records []domain.HourlyRecord, daily []domain.DailyAggregate, dist []domain.CityDistribution, regions []domain.RegionPeriodSummary) error {
	start := time.Now()
	if err := a.sink.WriteHourly(records); err != nil {
		return fmt.Errorf("write hourly table: %w", err)
	}
	a.metrics.TableRows.WithLabelValues("hourly").Set(float64(len(records)))
	if err := a.sink.WriteDaily(daily); err != nil {
		return fmt.Errorf("write daily table: %w", err)
	}
	a.metrics.TableRows.WithLabelValues("daily").Set(float64(len(daily)))
	if err := a.sink.WriteDistributions(dist); err != nil {
		return fmt.Errorf("write distributions table: %w", err)
	}
	a.metrics.TableRows.WithLabelValues("distributions").Set(float64(len(dist)))
	if err := a.sink.WriteRegions(regions); err != nil {
		return fmt.Errorf("write regions table: %w", err)
	}
	a.metrics.TableRows.WithLabelValues("regions").Set(float64(len(regions)))
	a.metrics.StageDuration.WithLabelValues("write").Observe(time.Since(start).Seconds())
	return nil
}

func (a *Aggregator) mirrorTables(ctx context.Context, daily []domain.DailyAggregate, dist []domain.CityDistribution, regions []domain.RegionPeriodSummary) error {
	if a.mirror == nil {
		return nil
	}
	if err := a.mirror.MirrorDaily(ctx, daily); err != nil {
		return fmt.Errorf("mirror daily table: %w", err)
	}
	if err := a.mirror.MirrorDistributions(ctx, dist); err != nil {
		return fmt.Errorf("mirror distributions table: %w", err)
	}
	if err := a.mirror.MirrorRegions(ctx, regions); err != nil {
		return fmt.Errorf("mirror regions table: %w", err)
	}
	return nil
}
