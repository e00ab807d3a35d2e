package figures

import (
	"fmt"

	"github.com/couchcryptid/air-quality-etl-service/internal/domain"
)

// HeatmapGrid is a 24x12 grid of mean PM2.5 for one period: Values[hour]
// holds one cell per month, null where the period has no readings for that
// hour and month.
type HeatmapGrid struct {
	Period domain.Period `json:"period"`
	Hours  []int         `json:"hours"`
	Months []int         `json:"months"`
	Values [][]*float64  `json:"values"`
}

// SeasonalHeatmap is the seasonal_heatmap.json dataset, one grid per period
// in pre-war then wartime order.
type SeasonalHeatmap struct {
	Periods []HeatmapGrid `json:"periods"`
}

// BuildSeasonalHeatmap averages valid hourly PM2.5 by period, month, and
// local hour. Records with a nil PM2.5 reading contribute nothing to the
// cell mean.
func BuildSeasonalHeatmap(hourly []domain.HourlyRecord) (*SeasonalHeatmap, error) {
	type cell struct {
		sum float64
		n   int
	}
	grids := make(map[domain.Period]*[24][12]cell)
	for _, rec := range hourly {
		if !rec.RecordValid || rec.PM25 == nil {
			continue
		}
		if rec.HourLocal < 0 || rec.HourLocal > 23 || rec.Month < 1 || rec.Month > 12 {
			continue
		}
		g := grids[rec.Period]
		if g == nil {
			g = &[24][12]cell{}
			grids[rec.Period] = g
		}
		c := &g[rec.HourLocal][rec.Month-1]
		c.sum += *rec.PM25
		c.n++
	}
	if len(grids) == 0 {
		return nil, fmt.Errorf("%w: no valid hourly readings for the seasonal heatmap", domain.ErrDataInsufficiency)
	}

	heatmap := &SeasonalHeatmap{}
	for _, period := range []domain.Period{domain.PeriodPreWar, domain.PeriodWartime} {
		g, ok := grids[period]
		if !ok {
			continue
		}
		grid := HeatmapGrid{Period: period}
		for h := 0; h < 24; h++ {
			grid.Hours = append(grid.Hours, h)
			row := make([]*float64, 12)
			for m := 0; m < 12; m++ {
				if c := g[h][m]; c.n > 0 {
					mean := c.sum / float64(c.n)
					row[m] = &mean
				}
			}
			grid.Values = append(grid.Values, row)
		}
		for m := 1; m <= 12; m++ {
			grid.Months = append(grid.Months, m)
		}
		heatmap.Periods = append(heatmap.Periods, grid)
	}
	return heatmap, nil
}
