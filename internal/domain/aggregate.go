package domain

import (
	"math"
	"sort"
	"strings"
)

// BuildDailyAggregates groups valid hourly records by (city, local date)
// and computes the daily statistics. Invalid records are excluded, as are
// records without a metadata match: city and region names are part of the
// grouping identity, so a record without them has no daily row to join.
// A day with zero valid records produces no row at all.
//
// AvailableHours counts every valid record of the day, including those
// with a nil PM2.5 reading; the PM2.5 statistics are computed over the
// non-nil readings only.
func BuildDailyAggregates(records []HourlyRecord, cal *Calendar, guideline float64) []DailyAggregate {
	type key struct {
		cityID int64
		date   int64
	}
	type accum struct {
		rec    HourlyRecord
		pm25   []float64
		aqi    []float64
		exceed int
	}

	groups := make(map[key]*accum)
	for _, rec := range records {
		if !rec.RecordValid {
			continue
		}
		if rec.CityName == "" || rec.RegionName == "" {
			continue
		}

		k := key{cityID: rec.CityID, date: rec.DateLocal.Unix()}
		g, ok := groups[k]
		if !ok {
			g = &accum{rec: rec}
			groups[k] = g
		}
		g.pm25 = append(g.pm25, deref(rec.PM25))
		g.aqi = append(g.aqi, deref(rec.AQI))
		if ExceedsGuideline(rec.PM25, guideline) {
			g.exceed++
		}
	}

	daily := make([]DailyAggregate, 0, len(groups))
	for _, g := range groups {
		date := g.rec.DateLocal
		available := len(g.pm25)
		period := cal.PeriodOfDate(date)

		share := math.NaN()
		if available > 0 {
			share = float64(g.exceed) / float64(available)
		}

		daily = append(daily, DailyAggregate{
			CityID:     g.rec.CityID,
			CityName:   g.rec.CityName,
			RegionName: g.rec.RegionName,
			DateLocal:  date,

			PM25Mean:   Mean(g.pm25),
			PM25Median: Median(g.pm25),
			PM25P90:    Quantile(g.pm25, 0.9),
			PM25P10:    Quantile(g.pm25, 0.1),
			PM25Max:    Max(g.pm25),
			AQIMean:    Mean(g.aqi),

			AvailableHours:  available,
			ExceedanceHours: g.exceed,
			ExceedanceShare: share,

			Year:      date.Year(),
			Month:     int(date.Month()),
			Weekday:   mondayIndexed(date.Weekday()),
			Season:    SeasonOf(int(date.Month())),
			IsWartime: period == PeriodWartime,
			Period:    period,
		})
	}

	sort.Slice(daily, func(i, j int) bool {
		if daily[i].CityID != daily[j].CityID {
			return daily[i].CityID < daily[j].CityID
		}
		return daily[i].DateLocal.Before(daily[j].DateLocal)
	})
	return daily
}

// deref converts an optional sensor value to a sample, with NaN standing
// in for a missing reading so group sizes still count the record.
func deref(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// distAccum collects the daily rows of one distribution group. Days is a
// row count; daily rows are unique per (city, date), so it equals the
// distinct-date count within any city-level group.
type distAccum struct {
	row     DailyAggregate
	days    int
	means   []float64
	medians []float64
	shares  []float64
	hours   []float64
	covered int
}

func (a *distAccum) add(d DailyAggregate, coverageHours int) {
	a.days++
	a.means = append(a.means, d.PM25Mean)
	a.medians = append(a.medians, d.PM25Median)
	a.shares = append(a.shares, d.ExceedanceShare)
	a.hours = append(a.hours, float64(d.AvailableHours))
	if d.AvailableHours >= coverageHours {
		a.covered++
	}
}

// distribution builds the shared statistics of one group. The p90/p10
// spread is computed over the daily medians, not the daily means: each day
// weighs the same regardless of how many hourly samples it had.
func (a *distAccum) distribution(level AggregationLevel) CityDistribution {
	return CityDistribution{
		CityID:     a.row.CityID,
		CityName:   a.row.CityName,
		RegionName: a.row.RegionName,
		Level:      level,

		Days:                 a.days,
		PM25Mean:             Mean(a.means),
		PM25Median:           Median(a.medians),
		PM25P90:              Quantile(a.medians, 0.9),
		PM25P10:              Quantile(a.medians, 0.1),
		ExceedanceShare:      Mean(a.shares),
		AvailableHoursMean:   Mean(a.hours),
		DaysWithCoverageGE18: a.covered,
	}
}

// BuildCityDistributions rolls eligibility-filtered daily rows up to the
// (city, period) and (city, year) levels and concatenates both, period
// level first. coverageHours is the per-day coverage bar behind the
// days_with_coverage_ge18 column.
func BuildCityDistributions(daily []DailyAggregate, coverageHours int) []CityDistribution {
	type periodKey struct {
		cityID int64
		period Period
	}
	type yearKey struct {
		cityID int64
		year   int
	}

	byPeriod := make(map[periodKey]*distAccum)
	byYear := make(map[yearKey]*distAccum)
	for _, d := range daily {
		pk := periodKey{cityID: d.CityID, period: d.Period}
		if _, ok := byPeriod[pk]; !ok {
			byPeriod[pk] = &distAccum{row: d}
		}
		byPeriod[pk].add(d, coverageHours)

		yk := yearKey{cityID: d.CityID, year: d.Year}
		if _, ok := byYear[yk]; !ok {
			byYear[yk] = &distAccum{row: d}
		}
		byYear[yk].add(d, coverageHours)
	}

	periodRows := make([]CityDistribution, 0, len(byPeriod))
	for k, a := range byPeriod {
		row := a.distribution(LevelPeriod)
		row.Period = k.period
		periodRows = append(periodRows, row)
	}
	sort.Slice(periodRows, func(i, j int) bool {
		if periodRows[i].CityID != periodRows[j].CityID {
			return periodRows[i].CityID < periodRows[j].CityID
		}
		return periodRows[i].Period < periodRows[j].Period
	})

	yearRows := make([]CityDistribution, 0, len(byYear))
	for k, a := range byYear {
		row := a.distribution(LevelYear)
		row.Year = k.year
		yearRows = append(yearRows, row)
	}
	sort.Slice(yearRows, func(i, j int) bool {
		if yearRows[i].CityID != yearRows[j].CityID {
			return yearRows[i].CityID < yearRows[j].CityID
		}
		return yearRows[i].Year < yearRows[j].Year
	})

	return append(periodRows, yearRows...)
}

// BuildRegionPeriodSummaries rolls eligibility-filtered daily rows up to
// (region, period). Day counts are row counts, not distinct dates: two
// cities observing the same date contribute two days of evidence.
func BuildRegionPeriodSummaries(daily []DailyAggregate) []RegionPeriodSummary {
	type key struct {
		region string
		period Period
	}
	type accum struct {
		cities  map[int64]struct{}
		days    int
		means   []float64
		medians []float64
		shares  []float64
	}

	groups := make(map[key]*accum)
	for _, d := range daily {
		k := key{region: d.RegionName, period: d.Period}
		g, ok := groups[k]
		if !ok {
			g = &accum{cities: make(map[int64]struct{})}
			groups[k] = g
		}
		g.cities[d.CityID] = struct{}{}
		g.days++
		g.means = append(g.means, d.PM25Mean)
		g.medians = append(g.medians, d.PM25Median)
		g.shares = append(g.shares, d.ExceedanceShare)
	}

	out := make([]RegionPeriodSummary, 0, len(groups))
	for k, g := range groups {
		out = append(out, RegionPeriodSummary{
			RegionName: k.region,
			Period:     k.period,

			Cities:          len(g.cities),
			Days:            g.days,
			PM25Mean:        Mean(g.means),
			PM25Median:      Median(g.medians),
			PM25P90:         Quantile(g.medians, 0.9),
			ExceedanceShare: Mean(g.shares),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].RegionName != out[j].RegionName {
			return out[i].RegionName < out[j].RegionName
		}
		return out[i].Period < out[j].Period
	})
	return out
}

// AttachBoundaries joins region summaries to boundary features by trimmed
// region name. Unmatched regions keep nil geometry rather than being
// dropped. Returns the number of matched rows.
func AttachBoundaries(regions []RegionPeriodSummary, bounds map[string]RegionBoundary) int {
	matched := 0
	for i := range regions {
		b, ok := bounds[strings.TrimSpace(regions[i].RegionName)]
		if !ok {
			continue
		}
		regions[i].Geometry = b.Geometry
		regions[i].Koatuu = b.Koatuu
		matched++
	}
	return matched
}

// FilterHourlyByPairs keeps the hourly records whose (city, local year) is
// in the eligible set, preserving input order.
func FilterHourlyByPairs(records []HourlyRecord, pairs map[CityYear]struct{}) []HourlyRecord {
	out := make([]HourlyRecord, 0, len(records))
	for _, rec := range records {
		if _, ok := pairs[CityYear{CityID: rec.CityID, Year: rec.Year}]; ok {
			out = append(out, rec)
		}
	}
	return out
}

// FilterDailyByPairs keeps the daily rows whose (city, year) is in the
// eligible set, preserving input order.
func FilterDailyByPairs(daily []DailyAggregate, pairs map[CityYear]struct{}) []DailyAggregate {
	out := make([]DailyAggregate, 0, len(daily))
	for _, d := range daily {
		if _, ok := pairs[CityYear{CityID: d.CityID, Year: d.Year}]; ok {
			out = append(out, d)
		}
	}
	return out
}
