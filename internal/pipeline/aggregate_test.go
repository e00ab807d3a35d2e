package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/air-quality-etl-service/internal/config"
	"github.com/couchcryptid/air-quality-etl-service/internal/domain"
	"github.com/couchcryptid/air-quality-etl-service/internal/observability"
	"github.com/couchcryptid/air-quality-etl-service/internal/pipeline"
)

type mockHourlySource struct {
	records []domain.HourlyRecord
	err     error
}

func (m *mockHourlySource) LoadRaw(_ context.Context) ([]domain.HourlyRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.records, nil
}

type mockMetadataSource struct {
	meta map[int64]domain.CityMeta
	err  error
}

func (m *mockMetadataSource) Load() (map[int64]domain.CityMeta, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.meta, nil
}

type mockBoundarySource struct {
	bounds map[string]domain.RegionBoundary
	err    error
}

func (m *mockBoundarySource) Load() (map[string]domain.RegionBoundary, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.bounds, nil
}

type mockTableSink struct {
	hourly  []domain.HourlyRecord
	daily   []domain.DailyAggregate
	dist    []domain.CityDistribution
	regions []domain.RegionPeriodSummary
	failOn  string
}

func (m *mockTableSink) WriteHourly(records []domain.HourlyRecord) error {
	if m.failOn == "hourly" {
		return errors.New("disk full")
	}
	m.hourly = records
	return nil
}

func (m *mockTableSink) WriteDaily(daily []domain.DailyAggregate) error {
	if m.failOn == "daily" {
		return errors.New("disk full")
	}
	m.daily = daily
	return nil
}

func (m *mockTableSink) WriteDistributions(dist []domain.CityDistribution) error {
	if m.failOn == "distributions" {
		return errors.New("disk full")
	}
	m.dist = dist
	return nil
}

func (m *mockTableSink) WriteRegions(regions []domain.RegionPeriodSummary) error {
	if m.failOn == "regions" {
		return errors.New("disk full")
	}
	m.regions = regions
	return nil
}

type mockMirror struct {
	daily   []domain.DailyAggregate
	dist    []domain.CityDistribution
	regions []domain.RegionPeriodSummary
}

func (m *mockMirror) MirrorDaily(_ context.Context, daily []domain.DailyAggregate) error {
	m.daily = daily
	return nil
}

func (m *mockMirror) MirrorDistributions(_ context.Context, dist []domain.CityDistribution) error {
	m.dist = dist
	return nil
}

func (m *mockMirror) MirrorRegions(_ context.Context, regions []domain.RegionPeriodSummary) error {
	m.regions = regions
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

// testAggregateConfig keeps the eligibility thresholds small so a handful of
// synthetic records is enough to pass the gate: one good year on each side
// of the wartime split, two days of two valid hours per year.
func testAggregateConfig(t *testing.T) *config.Config {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Kyiv")
	require.NoError(t, err)
	return &config.Config{
		Timezone:      "Europe/Kyiv",
		Location:      loc,
		WartimeStart:  time.Date(2022, time.February, 24, 0, 0, 0, 0, loc),
		PM25Guideline: 15,
		Thresholds: domain.Thresholds{
			MinCoverageRatio: 0.7,
			MinCoverageHours: 2,
			MinTotalYears:    2,
			MinPrewarYears:   1,
			MinWartimeYears:  1,
			WartimeYear:      2022,
		},
	}
}

// cityYearRecords generates days*hoursPerDay valid readings for one city in
// the given local year, starting at local noon so every reading stays inside
// the same local date.
func cityYearRecords(t *testing.T, loc *time.Location, cityID int64, year, days, hoursPerDay int, pm25 float64) []domain.HourlyRecord {
	t.Helper()
	var records []domain.HourlyRecord
	for d := 0; d < days; d++ {
		for h := 0; h < hoursPerDay; h++ {
			local := time.Date(year, time.June, 1+d, 12+h, 0, 0, 0, loc)
			v := pm25
			records = append(records, domain.HourlyRecord{
				CityID:   cityID,
				LoggedAt: local.UTC(),
				PM25:     &v,
				AQI:      &v,
			})
		}
	}
	return records
}

func testMetadata() map[int64]domain.CityMeta {
	return map[int64]domain.CityMeta{
		1: {CityID: 1, CityName: "Київ", RegionName: "Київська область", Koatuu: "8000000000", Katottg: "UA80000000000093317"},
		2: {CityID: 2, CityName: "Львів", RegionName: "Львівська область", Koatuu: "4610100000", Katottg: "UA46060250010015970"},
	}
}

func TestAggregator_Run_HappyPath(t *testing.T) {
	cfg := testAggregateConfig(t)
	frozen := time.Date(2024, time.March, 1, 8, 30, 0, 0, time.UTC)
	pipeline.SetClock(clockwork.NewFakeClockAt(frozen))
	t.Cleanup(func() { pipeline.SetClock(nil) })

	// City 1 covers a pre-war and a wartime year; city 2 only one year, so
	// the gate drops it. City 99 has no metadata row and cannot group.
	var records []domain.HourlyRecord
	records = append(records, cityYearRecords(t, cfg.Location, 1, 2021, 2, 3, 30)...)
	records = append(records, cityYearRecords(t, cfg.Location, 1, 2023, 2, 3, 10)...)
	records = append(records, cityYearRecords(t, cfg.Location, 2, 2021, 2, 3, 20)...)
	records = append(records, cityYearRecords(t, cfg.Location, 99, 2021, 2, 3, 20)...)

	sink := &mockTableSink{}
	mirror := &mockMirror{}
	agg := pipeline.NewAggregator(
		&mockHourlySource{records: records},
		&mockMetadataSource{meta: testMetadata()},
		&mockBoundarySource{},
		sink,
		mirror,
		cfg,
		discardLogger(),
		newTestMetrics(),
	)

	summary, err := agg.Run(context.Background())
	require.NoError(t, err)

	_, err = uuid.Parse(summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, frozen, summary.StartedAt)
	assert.Equal(t, frozen, summary.FinishedAt)
	assert.Equal(t, "Europe/Kyiv", summary.Timezone)
	assert.Equal(t, "2022-02-24", summary.WartimeStart)
	assert.Equal(t, 15.0, summary.PM25Guideline)

	// Only city 1 survives the gate: 12 hourly rows, 4 daily rows.
	require.Len(t, sink.hourly, 12)
	for _, rec := range sink.hourly {
		assert.Equal(t, int64(1), rec.CityID)
		assert.Equal(t, "Київ", rec.CityName)
		assert.True(t, rec.RecordValid)
		assert.NotEmpty(t, rec.Period)
	}
	require.Len(t, sink.daily, 4)
	assert.Equal(t, 1, summary.EligibleCities)
	assert.Equal(t, 2, summary.EligiblePairs)
	assert.Equal(t, len(sink.hourly), summary.HourlyRows)
	assert.Equal(t, len(sink.daily), summary.DailyRows)
	assert.Equal(t, len(sink.dist), summary.DistributionRows)
	assert.Equal(t, len(sink.regions), summary.RegionRows)

	// Distributions: two period rows and two year rows for city 1.
	require.Len(t, sink.dist, 4)
	levels := map[domain.AggregationLevel]int{}
	for _, d := range sink.dist {
		levels[d.Level]++
		assert.Equal(t, int64(1), d.CityID)
	}
	assert.Equal(t, 2, levels[domain.LevelPeriod])
	assert.Equal(t, 2, levels[domain.LevelYear])

	require.Len(t, sink.regions, 2)
	assert.Equal(t, "Київська область", sink.regions[0].RegionName)

	// The mirror sees exactly what the sink wrote.
	require.Empty(t, cmp.Diff(sink.dist, mirror.dist))
	require.Empty(t, cmp.Diff(sink.regions, mirror.regions))
	assert.Len(t, mirror.daily, len(sink.daily))
}

func TestAggregator_Run_NilMirror(t *testing.T) {
	cfg := testAggregateConfig(t)
	records := append(
		cityYearRecords(t, cfg.Location, 1, 2021, 2, 3, 30),
		cityYearRecords(t, cfg.Location, 1, 2023, 2, 3, 10)...,
	)
	sink := &mockTableSink{}
	agg := pipeline.NewAggregator(
		&mockHourlySource{records: records},
		&mockMetadataSource{meta: testMetadata()},
		&mockBoundarySource{},
		sink,
		nil,
		cfg,
		discardLogger(),
		newTestMetrics(),
	)

	_, err := agg.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, sink.daily, 4)
}

func TestAggregator_Run_JoinsBoundaries(t *testing.T) {
	cfg := testAggregateConfig(t)
	records := append(
		cityYearRecords(t, cfg.Location, 1, 2021, 2, 3, 30),
		cityYearRecords(t, cfg.Location, 1, 2023, 2, 3, 10)...,
	)
	geom := json.RawMessage(`{"type":"Polygon","coordinates":[[[30,50],[31,50],[31,51],[30,50]]]}`)
	bounds := map[string]domain.RegionBoundary{
		"Київська область": {Koatuu: "3200000000", Geometry: geom},
	}

	sink := &mockTableSink{}
	agg := pipeline.NewAggregator(
		&mockHourlySource{records: records},
		&mockMetadataSource{meta: testMetadata()},
		&mockBoundarySource{bounds: bounds},
		sink,
		nil,
		cfg,
		discardLogger(),
		newTestMetrics(),
	)

	summary, err := agg.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.BoundariesMatched)
	require.Len(t, sink.regions, 2)
	for _, region := range sink.regions {
		assert.Equal(t, "3200000000", region.Koatuu)
		assert.JSONEq(t, string(geom), string(region.Geometry))
	}
}

func TestAggregator_Run_NoValidRecords(t *testing.T) {
	cfg := testAggregateConfig(t)
	out := 2000.0
	records := []domain.HourlyRecord{
		{CityID: 1, LoggedAt: time.Date(2021, time.June, 1, 9, 0, 0, 0, time.UTC), PM25: &out},
	}

	sink := &mockTableSink{}
	agg := pipeline.NewAggregator(
		&mockHourlySource{records: records},
		&mockMetadataSource{meta: testMetadata()},
		&mockBoundarySource{},
		sink,
		nil,
		cfg,
		discardLogger(),
		newTestMetrics(),
	)

	_, err := agg.Run(context.Background())
	require.ErrorIs(t, err, domain.ErrNoValidRecords)
	require.ErrorIs(t, err, domain.ErrDataInsufficiency)
	assert.Empty(t, sink.hourly)
}

func TestAggregator_Run_NoEligibleCities(t *testing.T) {
	cfg := testAggregateConfig(t)
	// One year of data can never satisfy the pre-war plus wartime minimum.
	records := cityYearRecords(t, cfg.Location, 1, 2021, 2, 3, 20)

	agg := pipeline.NewAggregator(
		&mockHourlySource{records: records},
		&mockMetadataSource{meta: testMetadata()},
		&mockBoundarySource{},
		&mockTableSink{},
		nil,
		cfg,
		discardLogger(),
		newTestMetrics(),
	)

	_, err := agg.Run(context.Background())
	require.ErrorIs(t, err, domain.ErrNoEligibleCities)
	require.ErrorIs(t, err, domain.ErrDataInsufficiency)
}

func TestAggregator_Run_PropagatesSourceErrors(t *testing.T) {
	cfg := testAggregateConfig(t)

	t.Run("load", func(t *testing.T) {
		agg := pipeline.NewAggregator(
			&mockHourlySource{err: domain.ErrNoInputFiles},
			&mockMetadataSource{meta: testMetadata()},
			&mockBoundarySource{},
			&mockTableSink{},
			nil,
			cfg,
			discardLogger(),
			newTestMetrics(),
		)
		_, err := agg.Run(context.Background())
		require.ErrorIs(t, err, domain.ErrNoInputFiles)
	})

	t.Run("metadata", func(t *testing.T) {
		agg := pipeline.NewAggregator(
			&mockHourlySource{records: cityYearRecords(t, cfg.Location, 1, 2021, 2, 3, 20)},
			&mockMetadataSource{err: errors.New("metadata unreadable")},
			&mockBoundarySource{},
			&mockTableSink{},
			nil,
			cfg,
			discardLogger(),
			newTestMetrics(),
		)
		_, err := agg.Run(context.Background())
		require.ErrorContains(t, err, "metadata unreadable")
	})

	t.Run("boundaries", func(t *testing.T) {
		records := append(
			cityYearRecords(t, cfg.Location, 1, 2021, 2, 3, 30),
			cityYearRecords(t, cfg.Location, 1, 2023, 2, 3, 10)...,
		)
		agg := pipeline.NewAggregator(
			&mockHourlySource{records: records},
			&mockMetadataSource{meta: testMetadata()},
			&mockBoundarySource{err: domain.ErrBoundaryName},
			&mockTableSink{},
			nil,
			cfg,
			discardLogger(),
			newTestMetrics(),
		)
		_, err := agg.Run(context.Background())
		require.ErrorIs(t, err, domain.ErrBoundaryName)
	})
}

func TestAggregator_Run_SinkError(t *testing.T) {
	cfg := testAggregateConfig(t)
	records := append(
		cityYearRecords(t, cfg.Location, 1, 2021, 2, 3, 30),
		cityYearRecords(t, cfg.Location, 1, 2023, 2, 3, 10)...,
	)
	agg := pipeline.NewAggregator(
		&mockHourlySource{records: records},
		&mockMetadataSource{meta: testMetadata()},
		&mockBoundarySource{},
		&mockTableSink{failOn: "daily"},
		nil,
		cfg,
		discardLogger(),
		newTestMetrics(),
	)

	_, err := agg.Run(context.Background())
	require.ErrorContains(t, err, "write daily table")
}

func TestRunSummary_Write(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", pipeline.RunSummaryFile)

	summary := &pipeline.RunSummary{
		RunID:         uuid.NewString(),
		StartedAt:     time.Date(2024, time.March, 1, 8, 0, 0, 0, time.UTC),
		FinishedAt:    time.Date(2024, time.March, 1, 8, 5, 0, 0, time.UTC),
		Timezone:      "Europe/Kyiv",
		WartimeStart:  "2022-02-24",
		PM25Guideline: 15,
		HourlyRows:    100,
		DailyRows:     10,
		Outputs:       []string{"data/processed/city_daily_pm25.parquet"},
	}
	require.NoError(t, summary.Write(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got pipeline.RunSummary
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, summary.RunID, got.RunID)
	assert.Equal(t, summary.StartedAt, got.StartedAt)
	assert.Equal(t, 10, got.DailyRows)
	assert.Equal(t, summary.Outputs, got.Outputs)
}
