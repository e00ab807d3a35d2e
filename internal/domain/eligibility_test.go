package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// coverage builds a CoverageRow with the given ratio expressed as
// covered/total days.
func coverage(cityID int64, year, days, covered int) CoverageRow {
	return CoverageRow{CityID: cityID, CityName: "місто", Year: year, Days: days, CoverageDays: covered}
}

// goodYearRows builds one fully-covered row per year for a city.
func goodYearRows(cityID int64, years ...int) []CoverageRow {
	rows := make([]CoverageRow, 0, len(years))
	for _, y := range years {
		rows = append(rows, coverage(cityID, y, 10, 10))
	}
	return rows
}

func TestCoverageRatio(t *testing.T) {
	tests := []struct {
		name     string
		row      CoverageRow
		expected float64
	}{
		{"typical", coverage(1, 2021, 10, 7), 0.7},
		{"full coverage", coverage(1, 2021, 365, 365), 1.0},
		{"zero days is never good", coverage(1, 2021, 0, 0), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, tt.row.CoverageRatio(), 1e-12)
		})
	}
}

func TestGoodYears(t *testing.T) {
	thresholds := DefaultThresholds()

	t.Run("boundary is inclusive at the threshold", func(t *testing.T) {
		rows := []CoverageRow{
			coverage(1, 2020, 10, 7),     // exactly 0.7
			coverage(1, 2021, 1000, 699), // just below
			coverage(1, 2022, 10, 8),     // above
		}

		good := GoodYears(rows, thresholds)
		require.Len(t, good, 2)
		assert.Equal(t, 2020, good[0].Year)
		assert.Equal(t, 2022, good[1].Year)
	})

	t.Run("zero-day rows are excluded", func(t *testing.T) {
		good := GoodYears([]CoverageRow{coverage(1, 2021, 0, 0)}, thresholds)
		assert.Empty(t, good)
	})

	t.Run("thresholds are not ambient state", func(t *testing.T) {
		strict := thresholds
		strict.MinCoverageRatio = 0.95

		good := GoodYears([]CoverageRow{coverage(1, 2021, 10, 8)}, strict)
		assert.Empty(t, good)
	})
}

func TestEligibleCities(t *testing.T) {
	thresholds := DefaultThresholds()

	t.Run("five good years with both sides covered", func(t *testing.T) {
		// 3 pre-war (2019-2021) + 2 wartime (2022-2023).
		good := goodYearRows(1, 2019, 2020, 2021, 2022, 2023)

		eligible := EligibleCities(good, thresholds)
		assert.Contains(t, eligible, int64(1))
	})

	t.Run("three good years fail the total count", func(t *testing.T) {
		// 2 pre-war + 1 wartime: total 3 < 4.
		good := goodYearRows(2, 2020, 2021, 2022)

		eligible := EligibleCities(good, thresholds)
		assert.NotContains(t, eligible, int64(2))
	})

	t.Run("exactly at every threshold is eligible", func(t *testing.T) {
		good := goodYearRows(1, 2020, 2021, 2022, 2023)

		eligible := EligibleCities(good, thresholds)
		assert.Contains(t, eligible, int64(1))
	})

	t.Run("removing any single good year breaks eligibility", func(t *testing.T) {
		years := []int{2020, 2021, 2022, 2023}
		for _, dropped := range years {
			kept := make([]int, 0, len(years)-1)
			for _, y := range years {
				if y != dropped {
					kept = append(kept, y)
				}
			}

			eligible := EligibleCities(goodYearRows(1, kept...), thresholds)
			assert.NotContains(t, eligible, int64(1), "dropping %d should break eligibility", dropped)
		}
	})

	t.Run("pre-war years alone are not enough", func(t *testing.T) {
		good := goodYearRows(1, 2018, 2019, 2020, 2021)

		eligible := EligibleCities(good, thresholds)
		assert.Empty(t, eligible)
	})

	t.Run("custom thresholds move the bar", func(t *testing.T) {
		relaxed := Thresholds{
			MinCoverageRatio: 0.7,
			MinCoverageHours: 18,
			MinTotalYears:    2,
			MinPrewarYears:   1,
			MinWartimeYears:  1,
			WartimeYear:      2022,
		}

		eligible := EligibleCities(goodYearRows(1, 2021, 2022), relaxed)
		assert.Contains(t, eligible, int64(1))
	})

	t.Run("empty input yields empty set", func(t *testing.T) {
		assert.Empty(t, EligibleCities(nil, thresholds))
	})
}

// coverageDaily expands per-year coverage profiles into daily rows:
// covered days get a full 24 hours, the rest 10.
func coverageDaily(t *testing.T, cityID int64, name string, year, days, covered int) []DailyAggregate {
	t.Helper()
	rows := make([]DailyAggregate, 0, days)
	for i := 0; i < days; i++ {
		hours := 10
		if i < covered {
			hours = 24
		}
		date := dayOf(t, year, 6, 1).AddDate(0, 0, i)
		rows = append(rows, DailyAggregate{
			CityID:         cityID,
			CityName:       name,
			RegionName:     "область",
			DateLocal:      date,
			Year:           year,
			AvailableHours: hours,
		})
	}
	return rows
}

func TestCoverageFromDaily(t *testing.T) {
	t.Run("distinct dates and covered-day counts", func(t *testing.T) {
		daily := append(
			coverageDaily(t, 1, "Київ", 2021, 10, 7),
			coverageDaily(t, 1, "Київ", 2022, 4, 1)...,
		)

		rows := CoverageFromDaily(daily, 18)
		require.Len(t, rows, 2)
		assert.Equal(t, CoverageRow{CityID: 1, CityName: "Київ", Year: 2021, Days: 10, CoverageDays: 7}, rows[0])
		assert.Equal(t, CoverageRow{CityID: 1, CityName: "Київ", Year: 2022, Days: 4, CoverageDays: 1}, rows[1])
	})

	t.Run("rows without a date are dropped before grouping", func(t *testing.T) {
		daily := []DailyAggregate{{CityID: 1, CityName: "Київ", Year: 2021, AvailableHours: 24}}

		assert.Empty(t, CoverageFromDaily(daily, 18))
	})

	t.Run("coverage bar is configurable", func(t *testing.T) {
		daily := coverageDaily(t, 1, "Київ", 2021, 2, 1) // hours: 24, 10

		rows := CoverageFromDaily(daily, 10)
		require.Len(t, rows, 1)
		assert.Equal(t, 2, rows[0].CoverageDays)
	})
}

func TestCoverageFromDistributions(t *testing.T) {
	dist := []CityDistribution{
		{CityID: 1, CityName: "Київ", Level: LevelPeriod, Period: PeriodPreWar, Days: 300, DaysWithCoverageGE18: 290},
		{CityID: 1, CityName: "Київ", Level: LevelYear, Year: 2021, Days: 100, DaysWithCoverageGE18: 80},
		{CityID: 1, CityName: "Київ", Level: LevelYear, Year: 2022, Days: 0, DaysWithCoverageGE18: 0},
		{CityID: 2, CityName: "Львів", Level: LevelYear, Year: 2021, Days: 50, DaysWithCoverageGE18: 10},
	}

	rows := CoverageFromDistributions(dist)

	require.Len(t, rows, 2) // period row and zero-day row skipped
	assert.Equal(t, CoverageRow{CityID: 1, CityName: "Київ", Year: 2021, Days: 100, CoverageDays: 80}, rows[0])
	assert.Equal(t, CoverageRow{CityID: 2, CityName: "Львів", Year: 2021, Days: 50, CoverageDays: 10}, rows[1])
}

func TestEligiblePairsFromDaily(t *testing.T) {
	thresholds := DefaultThresholds()

	t.Run("pairs are the good years of eligible cities", func(t *testing.T) {
		var daily []DailyAggregate
		// City 1: four good years plus one bad year (2018 at 50%).
		daily = append(daily, coverageDaily(t, 1, "Київ", 2018, 10, 5)...)
		for _, y := range []int{2020, 2021, 2022, 2023} {
			daily = append(daily, coverageDaily(t, 1, "Київ", y, 10, 9)...)
		}
		// City 2: good years but never eligible (no wartime side).
		for _, y := range []int{2019, 2020, 2021} {
			daily = append(daily, coverageDaily(t, 2, "Львів", y, 10, 9)...)
		}

		pairs := EligiblePairsFromDaily(daily, thresholds)

		expected := map[CityYear]struct{}{
			{CityID: 1, Year: 2020}: {},
			{CityID: 1, Year: 2021}: {},
			{CityID: 1, Year: 2022}: {},
			{CityID: 1, Year: 2023}: {},
		}
		assert.Equal(t, expected, pairs)
	})

	t.Run("empty input is an empty set, not an error", func(t *testing.T) {
		assert.Empty(t, EligiblePairsFromDaily(nil, thresholds))
	})
}

func TestEligibilityEntryPointsAgree(t *testing.T) {
	thresholds := DefaultThresholds()

	var daily []DailyAggregate
	for _, y := range []int{2020, 2021, 2022, 2023} {
		daily = append(daily, coverageDaily(t, 1, "Київ", y, 10, 9)...)
	}
	for _, y := range []int{2019, 2020, 2021, 2022, 2023} {
		daily = append(daily, coverageDaily(t, 2, "Львів", y, 10, 8)...)
	}
	daily = append(daily, coverageDaily(t, 3, "Одеса", 2021, 10, 9)...)

	fromDaily := EligibleCityIDsFromDaily(daily, thresholds)
	require.Equal(t, map[int64]struct{}{1: {}, 2: {}}, fromDaily)

	// Feed the pipeline's own gated output into the distribution-side
	// entry point: consumers recomputing eligibility from the published
	// table must land on the same cities.
	pairs := EligiblePairsFromDaily(daily, thresholds)
	filtered := FilterDailyByPairs(daily, pairs)
	dist := BuildCityDistributions(filtered, thresholds.MinCoverageHours)

	fromDistributions := EligibleCityIDsFromDistributions(dist, thresholds)
	assert.Equal(t, fromDaily, fromDistributions)
}

// Year-split sanity: the wartime year is derived from the configured start
// date, not fixed.
func TestWartimeYearSplit(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Kyiv")
	require.NoError(t, err)
	cal := NewCalendar(loc, time.Date(2022, 2, 24, 0, 0, 0, 0, time.UTC))

	thresholds := DefaultThresholds()
	thresholds.WartimeYear = cal.WartimeYear()

	assert.True(t, thresholds.IsPrewarYear(2021))
	assert.False(t, thresholds.IsPrewarYear(2022))
}
