package parquet

import (
	"encoding/json"
	"math"
	"time"

	"github.com/couchcryptid/air-quality-etl-service/internal/domain"
)

// rawRow is the on-disk layout of one raw partition record. Raw partitions
// carry the reading as reported plus its source file, nothing derived.
type rawRow struct {
	CityID     int64    `parquet:"name=city_id,type=INT64"`
	LoggedAt   int64    `parquet:"name=logged_at,type=INT64,convertedtype=TIMESTAMP_MILLIS"`
	PM25       *float64 `parquet:"name=pm25,type=DOUBLE,repetitiontype=OPTIONAL"`
	AQI        *float64 `parquet:"name=aqi,type=DOUBLE,repetitiontype=OPTIONAL"`
	SourceFile string   `parquet:"name=source_file,type=BYTE_ARRAY,convertedtype=UTF8"`
}

func newRawRow(rec domain.HourlyRecord) rawRow {
	return rawRow{
		CityID:     rec.CityID,
		LoggedAt:   rec.LoggedAt.UnixMilli(),
		PM25:       rec.PM25,
		AQI:        rec.AQI,
		SourceFile: rec.SourceFile,
	}
}

func (r rawRow) record() domain.HourlyRecord {
	return domain.HourlyRecord{
		CityID:     r.CityID,
		LoggedAt:   time.UnixMilli(r.LoggedAt).UTC(),
		PM25:       r.PM25,
		AQI:        r.AQI,
		SourceFile: r.SourceFile,
	}
}

// hourlyRow is the on-disk layout of the enriched hourly table.
type hourlyRow struct {
	CityID        int64    `parquet:"name=city_id,type=INT64"`
	LoggedAt      int64    `parquet:"name=logged_at,type=INT64,convertedtype=TIMESTAMP_MILLIS"`
	PM25          *float64 `parquet:"name=pm25,type=DOUBLE,repetitiontype=OPTIONAL"`
	AQI           *float64 `parquet:"name=aqi,type=DOUBLE,repetitiontype=OPTIONAL"`
	SourceFile    string   `parquet:"name=source_file,type=BYTE_ARRAY,convertedtype=UTF8"`
	LoggedAtLocal int64    `parquet:"name=logged_at_local,type=INT64,convertedtype=TIMESTAMP_MILLIS"`
	DateLocal     int32    `parquet:"name=date_local,type=INT32,convertedtype=DATE"`
	HourLocal     int32    `parquet:"name=hour_local,type=INT32"`
	Year          int32    `parquet:"name=year,type=INT32"`
	Month         int32    `parquet:"name=month,type=INT32"`
	WeekOfYear    int32    `parquet:"name=weekofyear,type=INT32"`
	Weekday       int32    `parquet:"name=weekday,type=INT32"`
	Season        string   `parquet:"name=season,type=BYTE_ARRAY,convertedtype=UTF8"`
	IsWartime     bool     `parquet:"name=is_wartime,type=BOOLEAN"`
	Period        string   `parquet:"name=period,type=BYTE_ARRAY,convertedtype=UTF8"`
	PM25Valid     bool     `parquet:"name=pm25_valid,type=BOOLEAN"`
	AQIValid      bool     `parquet:"name=aqi_valid,type=BOOLEAN"`
	RecordValid   bool     `parquet:"name=record_valid,type=BOOLEAN"`
	CityName      string   `parquet:"name=city_name,type=BYTE_ARRAY,convertedtype=UTF8"`
	RegionName    string   `parquet:"name=region_name,type=BYTE_ARRAY,convertedtype=UTF8"`
	Koatuu        string   `parquet:"name=koatuu,type=BYTE_ARRAY,convertedtype=UTF8"`
	Katottg       string   `parquet:"name=katottg,type=BYTE_ARRAY,convertedtype=UTF8"`
}

func newHourlyRow(rec domain.HourlyRecord) hourlyRow {
	return hourlyRow{
		CityID:        rec.CityID,
		LoggedAt:      rec.LoggedAt.UnixMilli(),
		PM25:          rec.PM25,
		AQI:           rec.AQI,
		SourceFile:    rec.SourceFile,
		LoggedAtLocal: rec.LoggedAtLocal.UnixMilli(),
		DateLocal:     epochDays(rec.DateLocal),
		HourLocal:     int32(rec.HourLocal),
		Year:          int32(rec.Year),
		Month:         int32(rec.Month),
		WeekOfYear:    int32(rec.ISOWeek),
		Weekday:       int32(rec.Weekday),
		Season:        rec.Season,
		IsWartime:     rec.IsWartime,
		Period:        string(rec.Period),
		PM25Valid:     rec.PM25Valid,
		AQIValid:      rec.AQIValid,
		RecordValid:   rec.RecordValid,
		CityName:      rec.CityName,
		RegionName:    rec.RegionName,
		Koatuu:        rec.Koatuu,
		Katottg:       rec.Katottg,
	}
}

func (r hourlyRow) record(loc *time.Location) domain.HourlyRecord {
	return domain.HourlyRecord{
		CityID:        r.CityID,
		LoggedAt:      time.UnixMilli(r.LoggedAt).UTC(),
		PM25:          r.PM25,
		AQI:           r.AQI,
		SourceFile:    r.SourceFile,
		LoggedAtLocal: time.UnixMilli(r.LoggedAtLocal).In(loc),
		DateLocal:     dateFromDays(r.DateLocal, loc),
		HourLocal:     int(r.HourLocal),
		Year:          int(r.Year),
		Month:         int(r.Month),
		ISOWeek:       int(r.WeekOfYear),
		Weekday:       int(r.Weekday),
		Season:        r.Season,
		IsWartime:     r.IsWartime,
		Period:        domain.Period(r.Period),
		PM25Valid:     r.PM25Valid,
		AQIValid:      r.AQIValid,
		RecordValid:   r.RecordValid,
		CityName:      r.CityName,
		RegionName:    r.RegionName,
		Koatuu:        r.Koatuu,
		Katottg:       r.Katottg,
	}
}

// dailyRow is the on-disk layout of the daily aggregate table. Statistic
// columns are optional; a null reads back as NaN.
type dailyRow struct {
	CityID          int64    `parquet:"name=city_id,type=INT64"`
	CityName        string   `parquet:"name=city_name,type=BYTE_ARRAY,convertedtype=UTF8"`
	RegionName      string   `parquet:"name=region_name,type=BYTE_ARRAY,convertedtype=UTF8"`
	DateLocal       int32    `parquet:"name=date_local,type=INT32,convertedtype=DATE"`
	PM25Mean        *float64 `parquet:"name=pm25_mean,type=DOUBLE,repetitiontype=OPTIONAL"`
	PM25Median      *float64 `parquet:"name=pm25_median,type=DOUBLE,repetitiontype=OPTIONAL"`
	PM25P90         *float64 `parquet:"name=pm25_p90,type=DOUBLE,repetitiontype=OPTIONAL"`
	PM25P10         *float64 `parquet:"name=pm25_p10,type=DOUBLE,repetitiontype=OPTIONAL"`
	PM25Max         *float64 `parquet:"name=pm25_max,type=DOUBLE,repetitiontype=OPTIONAL"`
	AQIMean         *float64 `parquet:"name=aqi_mean,type=DOUBLE,repetitiontype=OPTIONAL"`
	AvailableHours  int32    `parquet:"name=available_hours,type=INT32"`
	ExceedanceHours int32    `parquet:"name=exceedance_hours,type=INT32"`
	ExceedanceShare *float64 `parquet:"name=exceedance_share,type=DOUBLE,repetitiontype=OPTIONAL"`
	Year            int32    `parquet:"name=year,type=INT32"`
	Month           int32    `parquet:"name=month,type=INT32"`
	Weekday         int32    `parquet:"name=weekday,type=INT32"`
	Season          string   `parquet:"name=season,type=BYTE_ARRAY,convertedtype=UTF8"`
	IsWartime       bool     `parquet:"name=is_wartime,type=BOOLEAN"`
	Period          string   `parquet:"name=period,type=BYTE_ARRAY,convertedtype=UTF8"`
}

func newDailyRow(d domain.DailyAggregate) dailyRow {
	return dailyRow{
		CityID:          d.CityID,
		CityName:        d.CityName,
		RegionName:      d.RegionName,
		DateLocal:       epochDays(d.DateLocal),
		PM25Mean:        optFloat(d.PM25Mean),
		PM25Median:      optFloat(d.PM25Median),
		PM25P90:         optFloat(d.PM25P90),
		PM25P10:         optFloat(d.PM25P10),
		PM25Max:         optFloat(d.PM25Max),
		AQIMean:         optFloat(d.AQIMean),
		AvailableHours:  int32(d.AvailableHours),
		ExceedanceHours: int32(d.ExceedanceHours),
		ExceedanceShare: optFloat(d.ExceedanceShare),
		Year:            int32(d.Year),
		Month:           int32(d.Month),
		Weekday:         int32(d.Weekday),
		Season:          d.Season,
		IsWartime:       d.IsWartime,
		Period:          string(d.Period),
	}
}

func (r dailyRow) aggregate(loc *time.Location) domain.DailyAggregate {
	return domain.DailyAggregate{
		CityID:          r.CityID,
		CityName:        r.CityName,
		RegionName:      r.RegionName,
		DateLocal:       dateFromDays(r.DateLocal, loc),
		PM25Mean:        floatOrNaN(r.PM25Mean),
		PM25Median:      floatOrNaN(r.PM25Median),
		PM25P90:         floatOrNaN(r.PM25P90),
		PM25P10:         floatOrNaN(r.PM25P10),
		PM25Max:         floatOrNaN(r.PM25Max),
		AQIMean:         floatOrNaN(r.AQIMean),
		AvailableHours:  int(r.AvailableHours),
		ExceedanceHours: int(r.ExceedanceHours),
		ExceedanceShare: floatOrNaN(r.ExceedanceShare),
		Year:            int(r.Year),
		Month:           int(r.Month),
		Weekday:         int(r.Weekday),
		Season:          r.Season,
		IsWartime:       r.IsWartime,
		Period:          domain.Period(r.Period),
	}
}

// distributionRow is the on-disk layout of the city distribution table.
// Period is null on year-level rows and year is null on period-level rows.
type distributionRow struct {
	CityID             int64    `parquet:"name=city_id,type=INT64"`
	CityName           string   `parquet:"name=city_name,type=BYTE_ARRAY,convertedtype=UTF8"`
	RegionName         string   `parquet:"name=region_name,type=BYTE_ARRAY,convertedtype=UTF8"`
	Level              string   `parquet:"name=level,type=BYTE_ARRAY,convertedtype=UTF8"`
	Period             *string  `parquet:"name=period,type=BYTE_ARRAY,convertedtype=UTF8,repetitiontype=OPTIONAL"`
	Year               *int32   `parquet:"name=year,type=INT32,repetitiontype=OPTIONAL"`
	Days               int32    `parquet:"name=days,type=INT32"`
	PM25Mean           *float64 `parquet:"name=pm25_mean,type=DOUBLE,repetitiontype=OPTIONAL"`
	PM25Median         *float64 `parquet:"name=pm25_median,type=DOUBLE,repetitiontype=OPTIONAL"`
	PM25P90            *float64 `parquet:"name=pm25_p90,type=DOUBLE,repetitiontype=OPTIONAL"`
	PM25P10            *float64 `parquet:"name=pm25_p10,type=DOUBLE,repetitiontype=OPTIONAL"`
	ExceedanceShare    *float64 `parquet:"name=exceedance_share,type=DOUBLE,repetitiontype=OPTIONAL"`
	AvailableHoursMean *float64 `parquet:"name=available_hours_mean,type=DOUBLE,repetitiontype=OPTIONAL"`
	DaysWithCoverage   int32    `parquet:"name=days_with_coverage_ge18,type=INT32"`
}

func newDistributionRow(d domain.CityDistribution) distributionRow {
	row := distributionRow{
		CityID:             d.CityID,
		CityName:           d.CityName,
		RegionName:         d.RegionName,
		Level:              string(d.Level),
		Days:               int32(d.Days),
		PM25Mean:           optFloat(d.PM25Mean),
		PM25Median:         optFloat(d.PM25Median),
		PM25P90:            optFloat(d.PM25P90),
		PM25P10:            optFloat(d.PM25P10),
		ExceedanceShare:    optFloat(d.ExceedanceShare),
		AvailableHoursMean: optFloat(d.AvailableHoursMean),
		DaysWithCoverage:   int32(d.DaysWithCoverageGE18),
	}
	switch d.Level {
	case domain.LevelPeriod:
		p := string(d.Period)
		row.Period = &p
	case domain.LevelYear:
		y := int32(d.Year)
		row.Year = &y
	}
	return row
}

func (r distributionRow) distribution() domain.CityDistribution {
	d := domain.CityDistribution{
		CityID:               r.CityID,
		CityName:             r.CityName,
		RegionName:           r.RegionName,
		Level:                domain.AggregationLevel(r.Level),
		Days:                 int(r.Days),
		PM25Mean:             floatOrNaN(r.PM25Mean),
		PM25Median:           floatOrNaN(r.PM25Median),
		PM25P90:              floatOrNaN(r.PM25P90),
		PM25P10:              floatOrNaN(r.PM25P10),
		ExceedanceShare:      floatOrNaN(r.ExceedanceShare),
		AvailableHoursMean:   floatOrNaN(r.AvailableHoursMean),
		DaysWithCoverageGE18: int(r.DaysWithCoverage),
	}
	if r.Period != nil {
		d.Period = domain.Period(*r.Period)
	}
	if r.Year != nil {
		d.Year = int(*r.Year)
	}
	return d
}

// regionRow is the on-disk layout of the region period summary table.
// Geometry holds the boundary feature as GeoJSON text when matched.
type regionRow struct {
	RegionName      string   `parquet:"name=region_name,type=BYTE_ARRAY,convertedtype=UTF8"`
	Period          string   `parquet:"name=period,type=BYTE_ARRAY,convertedtype=UTF8"`
	Cities          int32    `parquet:"name=cities,type=INT32"`
	Days            int32    `parquet:"name=days,type=INT32"`
	PM25Mean        *float64 `parquet:"name=pm25_mean,type=DOUBLE,repetitiontype=OPTIONAL"`
	PM25Median      *float64 `parquet:"name=pm25_median,type=DOUBLE,repetitiontype=OPTIONAL"`
	PM25P90         *float64 `parquet:"name=pm25_p90,type=DOUBLE,repetitiontype=OPTIONAL"`
	ExceedanceShare *float64 `parquet:"name=exceedance_share,type=DOUBLE,repetitiontype=OPTIONAL"`
	Koatuu          *string  `parquet:"name=koatuu,type=BYTE_ARRAY,convertedtype=UTF8,repetitiontype=OPTIONAL"`
	Geometry        *string  `parquet:"name=geometry,type=BYTE_ARRAY,convertedtype=UTF8,repetitiontype=OPTIONAL"`
}

func newRegionRow(s domain.RegionPeriodSummary) regionRow {
	row := regionRow{
		RegionName:      s.RegionName,
		Period:          string(s.Period),
		Cities:          int32(s.Cities),
		Days:            int32(s.Days),
		PM25Mean:        optFloat(s.PM25Mean),
		PM25Median:      optFloat(s.PM25Median),
		PM25P90:         optFloat(s.PM25P90),
		ExceedanceShare: optFloat(s.ExceedanceShare),
	}
	if s.Koatuu != "" {
		k := s.Koatuu
		row.Koatuu = &k
	}
	if len(s.Geometry) > 0 {
		g := string(s.Geometry)
		row.Geometry = &g
	}
	return row
}

func (r regionRow) summary() domain.RegionPeriodSummary {
	s := domain.RegionPeriodSummary{
		RegionName:      r.RegionName,
		Period:          domain.Period(r.Period),
		Cities:          int(r.Cities),
		Days:            int(r.Days),
		PM25Mean:        floatOrNaN(r.PM25Mean),
		PM25Median:      floatOrNaN(r.PM25Median),
		PM25P90:         floatOrNaN(r.PM25P90),
		ExceedanceShare: floatOrNaN(r.ExceedanceShare),
	}
	if r.Koatuu != nil {
		s.Koatuu = *r.Koatuu
	}
	if r.Geometry != nil {
		s.Geometry = json.RawMessage(*r.Geometry)
	}
	return s
}

// optFloat maps NaN to a parquet null.
func optFloat(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func floatOrNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

// epochDays converts a local-midnight date to its DATE representation,
// days since the Unix epoch.
func epochDays(t time.Time) int32 {
	y, m, d := t.Date()
	return int32(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

// dateFromDays rebuilds the local-midnight date a DATE value stands for.
func dateFromDays(days int32, loc *time.Location) time.Time {
	utc := time.Unix(int64(days)*86400, 0).UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, loc)
}
