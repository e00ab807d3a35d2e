package figures

import (
	"fmt"
	"sort"
	"time"

	"github.com/couchcryptid/air-quality-etl-service/internal/domain"
)

// NationalSeries names the hours-weighted national aggregate in the
// exceedance timeline.
const NationalSeries = "National average"

// rollingWindow and rollingMinPoints control the smoothed share: a 30-row
// trailing window that starts reporting after 7 observations.
const (
	rollingWindow    = 30
	rollingMinPoints = 7
)

// TimelinePoint is one date of an exceedance series. Share is the raw daily
// share; Smoothed is the trailing rolling mean and null until the window has
// enough points.
type TimelinePoint struct {
	Date     string   `json:"date"`
	Share    float64  `json:"share"`
	Smoothed *float64 `json:"share_30d"`
}

// TimelineSeries is a named exceedance series, the national average or one
// highlighted city.
type TimelineSeries struct {
	Name   string          `json:"name"`
	Points []TimelinePoint `json:"points"`
}

// ExceedanceTimeline is the exceedance_timeline.json dataset.
type ExceedanceTimeline struct {
	Guideline float64          `json:"pm25_guideline"`
	Series    []TimelineSeries `json:"series"`
}

// BuildExceedanceTimeline builds the national exceedance share per date,
// weighted by available hours, plus the per-city series of the top wartime
// cities. Cities qualify with at least 70% of wartime days at full coverage
// and rank by mean wartime exceedance share. An empty eligible set leaves
// the data unfiltered.
func BuildExceedanceTimeline(daily []domain.DailyAggregate, eligible map[int64]struct{}, t domain.Thresholds, guideline float64, cities int) (*ExceedanceTimeline, error) {
	rows := make([]domain.DailyAggregate, 0, len(daily))
	for _, d := range daily {
		if len(eligible) > 0 {
			if _, ok := eligible[d.CityID]; !ok {
				continue
			}
		}
		if d.AvailableHours <= 0 {
			continue
		}
		rows = append(rows, d)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: daily table has no rows for the exceedance timeline", domain.ErrDataInsufficiency)
	}

	timeline := &ExceedanceTimeline{
		Guideline: guideline,
		Series:    []TimelineSeries{nationalSeries(rows)},
	}
	for _, name := range topWartimeCities(rows, t, cities) {
		timeline.Series = append(timeline.Series, citySeries(rows, name))
	}
	return timeline, nil
}

// nationalSeries sums exceedance and available hours across cities per date,
// so dense cities weigh in proportion to their observed hours.
func nationalSeries(rows []domain.DailyAggregate) TimelineSeries {
	type sums struct {
		exceedance int
		available  int
	}
	byDate := make(map[time.Time]*sums)
	for _, d := range rows {
		s := byDate[d.DateLocal]
		if s == nil {
			s = &sums{}
			byDate[d.DateLocal] = s
		}
		s.exceedance += d.ExceedanceHours
		s.available += d.AvailableHours
	}

	dates := make([]time.Time, 0, len(byDate))
	for date := range byDate {
		dates = append(dates, date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	points := make([]TimelinePoint, 0, len(dates))
	for _, date := range dates {
		s := byDate[date]
		points = append(points, TimelinePoint{
			Date:  date.Format(time.DateOnly),
			Share: float64(s.exceedance) / float64(s.available),
		})
	}
	return TimelineSeries{Name: NationalSeries, Points: smooth(points)}
}

// topWartimeCities ranks cities by mean wartime exceedance share, keeping
// those whose wartime days reach full coverage often enough.
func topWartimeCities(rows []domain.DailyAggregate, t domain.Thresholds, cities int) []string {
	type wartimeStats struct {
		days    int
		covered int
		share   float64
	}
	byCity := make(map[string]*wartimeStats)
	for _, d := range rows {
		if d.Period != domain.PeriodWartime {
			continue
		}
		s := byCity[d.CityName]
		if s == nil {
			s = &wartimeStats{}
			byCity[d.CityName] = s
		}
		s.days++
		if d.AvailableHours >= t.MinCoverageHours {
			s.covered++
		}
		s.share += d.ExceedanceShare
	}

	type candidate struct {
		name  string
		share float64
	}
	candidates := make([]candidate, 0, len(byCity))
	for name, s := range byCity {
		if float64(s.covered)/float64(s.days) < t.MinCoverageRatio {
			continue
		}
		candidates = append(candidates, candidate{name: name, share: s.share / float64(s.days)})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].share != candidates[j].share {
			return candidates[i].share > candidates[j].share
		}
		return candidates[i].name < candidates[j].name
	})
	if cities > 0 && len(candidates) > cities {
		candidates = candidates[:cities]
	}
	names := make([]string, 0, len(candidates))
	for _, c := range candidates {
		names = append(names, c.name)
	}
	return names
}

func citySeries(rows []domain.DailyAggregate, name string) TimelineSeries {
	subset := make([]domain.DailyAggregate, 0)
	for _, d := range rows {
		if d.CityName == name {
			subset = append(subset, d)
		}
	}
	sort.Slice(subset, func(i, j int) bool { return subset[i].DateLocal.Before(subset[j].DateLocal) })

	points := make([]TimelinePoint, 0, len(subset))
	for _, d := range subset {
		points = append(points, TimelinePoint{
			Date:  d.DateLocal.Format(time.DateOnly),
			Share: d.ExceedanceShare,
		})
	}
	return TimelineSeries{Name: name, Points: smooth(points)}
}

// smooth fills the trailing rolling mean over the raw shares.
func smooth(points []TimelinePoint) []TimelinePoint {
	for i := range points {
		start := i - rollingWindow + 1
		if start < 0 {
			start = 0
		}
		n := i - start + 1
		if n < rollingMinPoints {
			continue
		}
		sum := 0.0
		for _, p := range points[start : i+1] {
			sum += p.Share
		}
		mean := sum / float64(n)
		points[i].Smoothed = &mean
	}
	return points
}
