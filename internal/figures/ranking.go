package figures

import (
	"fmt"
	"math"
	"sort"

	"github.com/couchcryptid/air-quality-etl-service/internal/domain"
)

// RankingRow ranks one city by its wartime median, with the pre-war median
// alongside for comparison. The pre-war median is null when every daily
// median of that period was missing.
type RankingRow struct {
	CityID          int64    `json:"city_id"`
	CityName        string   `json:"city_name"`
	PreWarMedian    *float64 `json:"pm25_median_pre_war"`
	WartimeMedian   float64  `json:"pm25_median_wartime"`
	PreWarCoverage  float64  `json:"coverage_pre_war"`
	WartimeCoverage float64  `json:"coverage_wartime"`
}

// CityRanking is the city_ranking.json dataset.
type CityRanking struct {
	Rows []RankingRow `json:"rows"`
}

type rankingPivot struct {
	cityName        string
	preWar          float64
	wartime         float64
	preWarCoverage  float64
	wartimeCoverage float64
	hasPreWar       bool
	hasWartime      bool
}

// BuildCityRanking pivots the period-level distribution rows into one row
// per city and keeps cities with at least 70% coverage in both periods and a
// known wartime median, sorted by wartime median descending, top N. An empty
// eligible set leaves the data unfiltered.
func BuildCityRanking(dist []domain.CityDistribution, eligible map[int64]struct{}, topN int) (*CityRanking, error) {
	pivots := make(map[int64]*rankingPivot)
	for _, d := range dist {
		if d.Level != domain.LevelPeriod {
			continue
		}
		if len(eligible) > 0 {
			if _, ok := eligible[d.CityID]; !ok {
				continue
			}
		}
		if d.Period != domain.PeriodPreWar && d.Period != domain.PeriodWartime {
			continue
		}
		p := pivots[d.CityID]
		if p == nil {
			p = &rankingPivot{cityName: d.CityName}
			pivots[d.CityID] = p
		}
		ratio := math.NaN()
		if d.Days > 0 {
			ratio = float64(d.DaysWithCoverageGE18) / float64(d.Days)
		}
		switch d.Period {
		case domain.PeriodPreWar:
			p.preWar = d.PM25Median
			p.preWarCoverage = ratio
			p.hasPreWar = true
		case domain.PeriodWartime:
			p.wartime = d.PM25Median
			p.wartimeCoverage = ratio
			p.hasWartime = true
		}
	}

	rows := make([]RankingRow, 0, len(pivots))
	for cityID, p := range pivots {
		if !p.hasWartime || math.IsNaN(p.wartime) {
			continue
		}
		// Both period coverages must be present and at least 0.7; a missing
		// or NaN ratio fails the comparison.
		if !p.hasPreWar || !(p.preWarCoverage >= 0.7) || !(p.wartimeCoverage >= 0.7) {
			continue
		}
		rows = append(rows, RankingRow{
			CityID:          cityID,
			CityName:        p.cityName,
			PreWarMedian:    optFloat(p.preWar),
			WartimeMedian:   p.wartime,
			PreWarCoverage:  p.preWarCoverage,
			WartimeCoverage: p.wartimeCoverage,
		})
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no cities pass the ranking coverage filters", domain.ErrDataInsufficiency)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].WartimeMedian != rows[j].WartimeMedian {
			return rows[i].WartimeMedian > rows[j].WartimeMedian
		}
		return rows[i].CityID < rows[j].CityID
	})
	if topN > 0 && len(rows) > topN {
		rows = rows[:topN]
	}
	return &CityRanking{Rows: rows}, nil
}
