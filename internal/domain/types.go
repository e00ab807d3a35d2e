package domain

import (
	"encoding/json"
	"time"
)

// Period labels data relative to the wartime start date.
type Period string

const (
	PeriodPreWar  Period = "pre_war"
	PeriodWartime Period = "wartime"
)

// AggregationLevel discriminates the two granularities mixed in the city
// distribution table.
type AggregationLevel string

const (
	LevelPeriod AggregationLevel = "period"
	LevelYear   AggregationLevel = "year"
)

// CityMeta is one row of the static city metadata table.
type CityMeta struct {
	CityID     int64
	CityName   string
	RegionName string
	Koatuu     string
	Katottg    string
}

// HourlyRecord is a single sensor reading, optionally enriched with city
// metadata, local calendar fields, and validity flags as it moves through
// the pipeline. PM25 and AQI are nil when the station reported no value for
// that hour; missing is not the same as invalid.
type HourlyRecord struct {
	CityID     int64
	LoggedAt   time.Time // UTC
	PM25       *float64  // µg/m³
	AQI        *float64
	SourceFile string

	// Metadata join. Empty strings when the city has no metadata row; such
	// records stay in the hourly table but carry no grouping identity for
	// the daily rollup.
	CityName   string
	RegionName string
	Koatuu     string
	Katottg    string

	// Local calendar enrichment.
	LoggedAtLocal time.Time
	DateLocal     time.Time // midnight in the local timezone
	HourLocal     int
	Year          int
	Month         int
	ISOWeek       int
	Weekday       int // Monday=0 .. Sunday=6
	Season        string
	IsWartime     bool
	Period        Period

	// Validity flags per the sensor range rules in validate.go.
	PM25Valid   bool
	AQIValid    bool
	RecordValid bool
}

// DailyAggregate is one row per (city, local date), computed over the valid
// hourly records of that day. Statistic fields are NaN when no non-nil
// sensor values were available, mirroring how the columns behave as nulls
// on disk.
type DailyAggregate struct {
	CityID     int64
	CityName   string
	RegionName string
	DateLocal  time.Time

	PM25Mean   float64
	PM25Median float64
	PM25P90    float64
	PM25P10    float64
	PM25Max    float64
	AQIMean    float64

	AvailableHours  int // valid records that day, 0-24
	ExceedanceHours int // valid records with pm25 above the guideline
	ExceedanceShare float64

	Year      int
	Month     int
	Weekday   int
	Season    string
	IsWartime bool
	Period    Period
}

// CityYear identifies one city-year pair in the eligibility set.
type CityYear struct {
	CityID int64
	Year   int
}

// CityDistribution is one row of the city distribution table: a rollup of
// daily aggregates to either (city, period) or (city, year), discriminated
// by Level. Period is empty on year-level rows and Year is zero on
// period-level rows.
type CityDistribution struct {
	CityID     int64
	CityName   string
	RegionName string
	Level      AggregationLevel
	Period     Period
	Year       int

	Days                 int
	PM25Mean             float64
	PM25Median           float64
	PM25P90              float64
	PM25P10              float64
	ExceedanceShare      float64
	AvailableHoursMean   float64
	DaysWithCoverageGE18 int
}

// RegionPeriodSummary is one row per (region, period), optionally joined to
// administrative boundary geometry. Geometry is nil when the region name
// matched no boundary feature or no boundary file was supplied.
type RegionPeriodSummary struct {
	RegionName string
	Period     Period

	Cities          int
	Days            int
	PM25Mean        float64
	PM25Median      float64
	PM25P90         float64
	ExceedanceShare float64

	Koatuu   string
	Geometry json.RawMessage
}

// RegionBoundary is a single administrative boundary feature keyed by its
// trimmed display name.
type RegionBoundary struct {
	Koatuu   string
	Geometry json.RawMessage
}

// Thresholds collects the coverage-eligibility constants.
type Thresholds struct {
	// MinCoverageRatio is the minimum share of observed days with full
	// coverage for a city-year to count as a good year. Inclusive.
	MinCoverageRatio float64
	// MinCoverageHours is the number of valid hourly records a day needs
	// to count as covered.
	MinCoverageHours int
	// MinTotalYears, MinPrewarYears, and MinWartimeYears are the good-year
	// counts a city needs to be eligible.
	MinTotalYears   int
	MinPrewarYears  int
	MinWartimeYears int
	// WartimeYear is the first calendar year of the wartime period. Good
	// years strictly before it count as pre-war, all others as wartime.
	WartimeYear int
}

// DefaultThresholds returns the standard eligibility thresholds: a good
// year needs 70% coverage of 18-hour days, and an eligible city needs four
// good years with at least two on each side of the wartime split.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinCoverageRatio: 0.7,
		MinCoverageHours: 18,
		MinTotalYears:    4,
		MinPrewarYears:   2,
		MinWartimeYears:  2,
		WartimeYear:      2022,
	}
}

// IsPrewarYear reports whether a calendar year belongs to the pre-war side
// of the eligibility split.
func (t Thresholds) IsPrewarYear(year int) bool {
	return year < t.WartimeYear
}
