package sqlite

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/air-quality-etl-service/internal/domain"
)

func testMirror(t *testing.T) *Mirror {
	t.Helper()
	path := filepath.Join(t.TempDir(), "analytics.db")
	m, err := Open(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestMirror_Daily(t *testing.T) {
	m := testMirror(t)
	loc := time.UTC

	daily := []domain.DailyAggregate{
		{
			CityID: 1, CityName: "Kyiv", RegionName: "Kyiv Oblast",
			DateLocal: time.Date(2021, 6, 15, 0, 0, 0, 0, loc),
			PM25Mean:  20, PM25Median: 20, PM25P90: 28, PM25P10: 12, PM25Max: 30,
			AQIMean: 55, AvailableHours: 4, ExceedanceHours: 2, ExceedanceShare: 0.5,
			Year: 2021, Month: 6, Weekday: 1, Season: "summer", Period: domain.PeriodPreWar,
		},
		{
			CityID: 1, CityName: "Kyiv", RegionName: "Kyiv Oblast",
			DateLocal: time.Date(2021, 6, 16, 0, 0, 0, 0, loc),
			PM25Mean:  math.NaN(), PM25Median: math.NaN(), PM25P90: math.NaN(),
			PM25P10: math.NaN(), PM25Max: math.NaN(), AQIMean: 60,
			AvailableHours: 3, ExceedanceHours: 0, ExceedanceShare: 0,
			Year: 2021, Month: 6, Weekday: 2, Season: "summer", Period: domain.PeriodPreWar,
		},
	}
	require.NoError(t, m.MirrorDaily(context.Background(), daily))

	var rows int
	require.NoError(t, m.db.QueryRow(`SELECT COUNT(*) FROM city_daily_pm25`).Scan(&rows))
	assert.Equal(t, 2, rows)

	var mean sql.NullFloat64
	require.NoError(t, m.db.QueryRow(
		`SELECT pm25_mean FROM city_daily_pm25 WHERE date_local = '2021-06-16'`).Scan(&mean))
	assert.False(t, mean.Valid)

	require.NoError(t, m.db.QueryRow(
		`SELECT pm25_mean FROM city_daily_pm25 WHERE date_local = '2021-06-15'`).Scan(&mean))
	require.True(t, mean.Valid)
	assert.Equal(t, 20.0, mean.Float64)
}

func TestMirror_DailyReplacesPreviousRun(t *testing.T) {
	m := testMirror(t)

	first := []domain.DailyAggregate{
		{CityID: 1, CityName: "Kyiv", RegionName: "Kyiv Oblast",
			DateLocal: time.Date(2021, 6, 15, 0, 0, 0, 0, time.UTC),
			Season:    "summer", Period: domain.PeriodPreWar},
		{CityID: 1, CityName: "Kyiv", RegionName: "Kyiv Oblast",
			DateLocal: time.Date(2021, 6, 16, 0, 0, 0, 0, time.UTC),
			Season:    "summer", Period: domain.PeriodPreWar},
	}
	require.NoError(t, m.MirrorDaily(context.Background(), first))

	second := first[:1]
	require.NoError(t, m.MirrorDaily(context.Background(), second))

	var rows int
	require.NoError(t, m.db.QueryRow(`SELECT COUNT(*) FROM city_daily_pm25`).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestMirror_Distributions(t *testing.T) {
	m := testMirror(t)

	dist := []domain.CityDistribution{
		{
			CityID: 1, CityName: "Kyiv", RegionName: "Kyiv Oblast",
			Level: domain.LevelPeriod, Period: domain.PeriodWartime,
			Days: 200, PM25Mean: 18, PM25Median: 17, PM25P90: 28, PM25P10: 9,
			ExceedanceShare: 0.4, AvailableHoursMean: 21.5, DaysWithCoverageGE18: 180,
		},
		{
			CityID: 1, CityName: "Kyiv", RegionName: "Kyiv Oblast",
			Level: domain.LevelYear, Year: 2023,
			Days: 200, PM25Mean: 18, PM25Median: 17, PM25P90: 28, PM25P10: 9,
			ExceedanceShare: 0.4, AvailableHoursMean: 21.5, DaysWithCoverageGE18: 180,
		},
	}
	require.NoError(t, m.MirrorDistributions(context.Background(), dist))

	var period sql.NullString
	var year sql.NullInt64
	require.NoError(t, m.db.QueryRow(
		`SELECT period, year FROM city_distributions WHERE level = 'period'`).Scan(&period, &year))
	require.True(t, period.Valid)
	assert.Equal(t, "wartime", period.String)
	assert.False(t, year.Valid)

	require.NoError(t, m.db.QueryRow(
		`SELECT period, year FROM city_distributions WHERE level = 'year'`).Scan(&period, &year))
	assert.False(t, period.Valid)
	require.True(t, year.Valid)
	assert.Equal(t, int64(2023), year.Int64)
}

func TestMirror_Regions(t *testing.T) {
	m := testMirror(t)

	regions := []domain.RegionPeriodSummary{
		{
			RegionName: "Kyiv Oblast", Period: domain.PeriodWartime,
			Cities: 3, Days: 900, PM25Mean: 16.2, PM25Median: 15, PM25P90: 27.7,
			ExceedanceShare: 0.31, Koatuu: "3200000000",
			Geometry: []byte(`{"type":"Polygon","coordinates":[[[30,50],[31,50],[31,51],[30,50]]]}`),
		},
		{
			RegionName: "Unknown Oblast", Period: domain.PeriodWartime,
			Cities: 1, Days: 30, PM25Mean: 10, PM25Median: 9, PM25P90: 14,
			ExceedanceShare: 0.05,
		},
	}
	require.NoError(t, m.MirrorRegions(context.Background(), regions))

	var koatuu, geometry sql.NullString
	require.NoError(t, m.db.QueryRow(
		`SELECT koatuu, geometry FROM region_period_pm25 WHERE region_name = 'Kyiv Oblast'`).Scan(&koatuu, &geometry))
	require.True(t, koatuu.Valid)
	assert.Equal(t, "3200000000", koatuu.String)
	require.True(t, geometry.Valid)
	assert.Contains(t, geometry.String, "Polygon")

	require.NoError(t, m.db.QueryRow(
		`SELECT koatuu, geometry FROM region_period_pm25 WHERE region_name = 'Unknown Oblast'`).Scan(&koatuu, &geometry))
	assert.False(t, koatuu.Valid)
	assert.False(t, geometry.Valid)
}
