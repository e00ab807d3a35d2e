package domain

import "sort"

// The eligibility engine decides which city-years carry enough coverage to
// be analyzed. It is a pure filter: it never fails, it degrades to an
// empty set. Two entry points feed it, raw daily aggregates and the
// year-level rows of the distribution table, and both reduce to the same
// CoverageRow shape before the shared decision functions run, so they
// agree on equivalent input by construction.

// CoverageRow is the normalized per-city-year coverage shape shared by
// both entry points.
type CoverageRow struct {
	CityID       int64
	CityName     string
	Year         int
	Days         int // distinct local dates observed
	CoverageDays int // days meeting the hourly coverage bar
}

// CoverageRatio returns the share of observed days with full coverage,
// or 0 when no days were observed: a year without data is never good.
func (r CoverageRow) CoverageRatio() float64 {
	if r.Days <= 0 {
		return 0
	}
	return float64(r.CoverageDays) / float64(r.Days)
}

// CoverageFromDaily reduces daily aggregates to per-city-year coverage
// rows, sorted by (city, year). Rows without a usable date are dropped
// before grouping. minHours is the per-day coverage bar.
func CoverageFromDaily(daily []DailyAggregate, minHours int) []CoverageRow {
	type key struct {
		cityID int64
		year   int
	}
	type accum struct {
		name    string
		dates   map[int64]struct{}
		covered int
	}

	groups := make(map[key]*accum)
	for _, d := range daily {
		if d.DateLocal.IsZero() {
			continue
		}
		k := key{cityID: d.CityID, year: d.Year}
		g, ok := groups[k]
		if !ok {
			g = &accum{name: d.CityName, dates: make(map[int64]struct{})}
			groups[k] = g
		}
		g.dates[d.DateLocal.Unix()] = struct{}{}
		if d.AvailableHours >= minHours {
			g.covered++
		}
	}

	rows := make([]CoverageRow, 0, len(groups))
	for k, g := range groups {
		rows = append(rows, CoverageRow{
			CityID:       k.cityID,
			CityName:     g.name,
			Year:         k.year,
			Days:         len(g.dates),
			CoverageDays: g.covered,
		})
	}
	sortCoverageRows(rows)
	return rows
}

// CoverageFromDistributions reduces year-level distribution rows to
// coverage rows. Period-level rows and rows without observed days are
// skipped; days_with_coverage_ge18 stands in for the covered-day count.
func CoverageFromDistributions(dist []CityDistribution) []CoverageRow {
	rows := make([]CoverageRow, 0, len(dist))
	for _, d := range dist {
		if d.Level != LevelYear || d.Days <= 0 {
			continue
		}
		rows = append(rows, CoverageRow{
			CityID:       d.CityID,
			CityName:     d.CityName,
			Year:         d.Year,
			Days:         d.Days,
			CoverageDays: d.DaysWithCoverageGE18,
		})
	}
	sortCoverageRows(rows)
	return rows
}

func sortCoverageRows(rows []CoverageRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CityID != rows[j].CityID {
			return rows[i].CityID < rows[j].CityID
		}
		return rows[i].Year < rows[j].Year
	})
}

// GoodYears keeps the coverage rows whose ratio meets the threshold.
// The boundary is inclusive: a ratio exactly at the threshold qualifies.
func GoodYears(rows []CoverageRow, t Thresholds) []CoverageRow {
	good := make([]CoverageRow, 0, len(rows))
	for _, r := range rows {
		if r.CoverageRatio() >= t.MinCoverageRatio {
			good = append(good, r)
		}
	}
	return good
}

// EligibleCities applies the city-level rule over good years: enough good
// years in total, and enough on each side of the wartime split.
func EligibleCities(good []CoverageRow, t Thresholds) map[int64]struct{} {
	type counts struct {
		total   int
		prewar  int
		wartime int
	}

	byCity := make(map[int64]*counts)
	for _, r := range good {
		c, ok := byCity[r.CityID]
		if !ok {
			c = &counts{}
			byCity[r.CityID] = c
		}
		c.total++
		if t.IsPrewarYear(r.Year) {
			c.prewar++
		} else {
			c.wartime++
		}
	}

	eligible := make(map[int64]struct{})
	for cityID, c := range byCity {
		if c.total >= t.MinTotalYears && c.prewar >= t.MinPrewarYears && c.wartime >= t.MinWartimeYears {
			eligible[cityID] = struct{}{}
		}
	}
	return eligible
}

// EligiblePairsFromDaily is the raw-daily entry point: it returns every
// good (city, year) pair belonging to an eligible city. Empty input
// yields an empty set, not an error.
func EligiblePairsFromDaily(daily []DailyAggregate, t Thresholds) map[CityYear]struct{} {
	good := GoodYears(CoverageFromDaily(daily, t.MinCoverageHours), t)
	cities := EligibleCities(good, t)

	pairs := make(map[CityYear]struct{})
	for _, r := range good {
		if _, ok := cities[r.CityID]; ok {
			pairs[CityYear{CityID: r.CityID, Year: r.Year}] = struct{}{}
		}
	}
	return pairs
}

// EligibleCityIDsFromDaily returns just the eligible city set of the
// raw-daily entry point.
func EligibleCityIDsFromDaily(daily []DailyAggregate, t Thresholds) map[int64]struct{} {
	return EligibleCities(GoodYears(CoverageFromDaily(daily, t.MinCoverageHours), t), t)
}

// EligibleCityIDsFromDistributions is the pre-aggregated entry point:
// consumers holding only the distribution table recompute the eligible
// city set from its year-level rows and must land on the same cities the
// pipeline gated on.
func EligibleCityIDsFromDistributions(dist []CityDistribution, t Thresholds) map[int64]struct{} {
	return EligibleCities(GoodYears(CoverageFromDistributions(dist), t), t)
}
