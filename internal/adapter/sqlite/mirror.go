package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/couchcryptid/air-quality-etl-service/internal/domain"
)

// Mirror maintains a SQLite copy of the analytic tables for ad hoc
// querying. Each table is replaced wholesale in its own transaction, so a
// reader sees either the previous table or the new one.
type Mirror struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens or creates the analytics database at path.
func Open(path string, logger *slog.Logger) (*Mirror, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open analytics db %s: %w", path, err)
	}
	return &Mirror{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (m *Mirror) Close() error {
	return m.db.Close()
}

const createDaily = `CREATE TABLE city_daily_pm25 (
	city_id INTEGER NOT NULL,
	city_name TEXT NOT NULL,
	region_name TEXT NOT NULL,
	date_local TEXT NOT NULL,
	pm25_mean REAL,
	pm25_median REAL,
	pm25_p90 REAL,
	pm25_p10 REAL,
	pm25_max REAL,
	aqi_mean REAL,
	available_hours INTEGER NOT NULL,
	exceedance_hours INTEGER NOT NULL,
	exceedance_share REAL,
	year INTEGER NOT NULL,
	month INTEGER NOT NULL,
	weekday INTEGER NOT NULL,
	season TEXT NOT NULL,
	is_wartime INTEGER NOT NULL,
	period TEXT NOT NULL,
	PRIMARY KEY (city_id, date_local)
)`

const insertDaily = `INSERT INTO city_daily_pm25 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`

// MirrorDaily replaces the daily aggregate table.
func (m *Mirror) MirrorDaily(ctx context.Context, daily []domain.DailyAggregate) error {
	return m.replaceTable(ctx, "city_daily_pm25", createDaily, insertDaily, len(daily), func(i int) []any {
		d := daily[i]
		return []any{
			d.CityID, d.CityName, d.RegionName, d.DateLocal.Format(time.DateOnly),
			nullFloat(d.PM25Mean), nullFloat(d.PM25Median), nullFloat(d.PM25P90),
			nullFloat(d.PM25P10), nullFloat(d.PM25Max), nullFloat(d.AQIMean),
			d.AvailableHours, d.ExceedanceHours, nullFloat(d.ExceedanceShare),
			d.Year, d.Month, d.Weekday, d.Season, d.IsWartime, string(d.Period),
		}
	})
}

const createDistributions = `CREATE TABLE city_distributions (
	city_id INTEGER NOT NULL,
	city_name TEXT NOT NULL,
	region_name TEXT NOT NULL,
	level TEXT NOT NULL,
	period TEXT,
	year INTEGER,
	days INTEGER NOT NULL,
	pm25_mean REAL,
	pm25_median REAL,
	pm25_p90 REAL,
	pm25_p10 REAL,
	exceedance_share REAL,
	available_hours_mean REAL,
	days_with_coverage_ge18 INTEGER NOT NULL
)`

const insertDistributions = `INSERT INTO city_distributions VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`

// MirrorDistributions replaces the city distribution table.
func (m *Mirror) MirrorDistributions(ctx context.Context, dist []domain.CityDistribution) error {
	return m.replaceTable(ctx, "city_distributions", createDistributions, insertDistributions, len(dist), func(i int) []any {
		d := dist[i]
		var period any
		var year any
		switch d.Level {
		case domain.LevelPeriod:
			period = string(d.Period)
		case domain.LevelYear:
			year = d.Year
		}
		return []any{
			d.CityID, d.CityName, d.RegionName, string(d.Level), period, year,
			d.Days, nullFloat(d.PM25Mean), nullFloat(d.PM25Median),
			nullFloat(d.PM25P90), nullFloat(d.PM25P10), nullFloat(d.ExceedanceShare),
			nullFloat(d.AvailableHoursMean), d.DaysWithCoverageGE18,
		}
	})
}

const createRegions = `CREATE TABLE region_period_pm25 (
	region_name TEXT NOT NULL,
	period TEXT NOT NULL,
	cities INTEGER NOT NULL,
	days INTEGER NOT NULL,
	pm25_mean REAL,
	pm25_median REAL,
	pm25_p90 REAL,
	exceedance_share REAL,
	koatuu TEXT,
	geometry TEXT,
	PRIMARY KEY (region_name, period)
)`

const insertRegions = `INSERT INTO region_period_pm25 VALUES (?,?,?,?,?,?,?,?,?,?)`

// MirrorRegions replaces the region period summary table.
func (m *Mirror) MirrorRegions(ctx context.Context, regions []domain.RegionPeriodSummary) error {
	return m.replaceTable(ctx, "region_period_pm25", createRegions, insertRegions, len(regions), func(i int) []any {
		r := regions[i]
		var koatuu any
		if r.Koatuu != "" {
			koatuu = r.Koatuu
		}
		var geometry any
		if len(r.Geometry) > 0 {
			geometry = string(r.Geometry)
		}
		return []any{
			r.RegionName, string(r.Period), r.Cities, r.Days,
			nullFloat(r.PM25Mean), nullFloat(r.PM25Median), nullFloat(r.PM25P90),
			nullFloat(r.ExceedanceShare), koatuu, geometry,
		}
	})
}

func (m *Mirror) replaceTable(ctx context.Context, name, createStmt, insertStmt string, rows int, bind func(i int) []any) (err error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s tx: %w", name, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
		return fmt.Errorf("drop %s: %w", name, err)
	}
	if _, err = tx.ExecContext(ctx, createStmt); err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}

	stmt, err := tx.PrepareContext(ctx, insertStmt)
	if err != nil {
		return fmt.Errorf("prepare %s insert: %w", name, err)
	}
	defer stmt.Close()

	for i := 0; i < rows; i++ {
		if _, err = stmt.ExecContext(ctx, bind(i)...); err != nil {
			return fmt.Errorf("insert %s row: %w", name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", name, err)
	}
	m.logger.Debug("mirrored table", "table", name, "rows", rows)
	return nil
}

// nullFloat maps NaN statistics to SQL NULL.
func nullFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)}
}
