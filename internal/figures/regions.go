package figures

import (
	"fmt"

	"github.com/couchcryptid/air-quality-etl-service/internal/domain"
)

// RegionRow carries one (region, period) summary for the choropleth
// renderer. Geometry itself stays in the parquet table; the dataset records
// whether the region joined a boundary feature.
type RegionRow struct {
	RegionName      string   `json:"region_name"`
	Period          string   `json:"period"`
	Cities          int      `json:"cities"`
	Days            int      `json:"days"`
	PM25Mean        *float64 `json:"pm25_mean"`
	PM25Median      *float64 `json:"pm25_median"`
	PM25P90         *float64 `json:"pm25_p90"`
	ExceedanceShare *float64 `json:"exceedance_share"`
	Koatuu          string   `json:"koatuu,omitempty"`
	HasGeometry     bool     `json:"has_geometry"`
}

// RegionSummary is the region_summary.json dataset.
type RegionSummary struct {
	Rows []RegionRow `json:"rows"`
}

// BuildRegionSummary flattens the region-period table in its stored order.
func BuildRegionSummary(regions []domain.RegionPeriodSummary) (*RegionSummary, error) {
	if len(regions) == 0 {
		return nil, fmt.Errorf("%w: region table is empty", domain.ErrDataInsufficiency)
	}
	rows := make([]RegionRow, 0, len(regions))
	for _, r := range regions {
		rows = append(rows, RegionRow{
			RegionName:      r.RegionName,
			Period:          string(r.Period),
			Cities:          r.Cities,
			Days:            r.Days,
			PM25Mean:        optFloat(r.PM25Mean),
			PM25Median:      optFloat(r.PM25Median),
			PM25P90:         optFloat(r.PM25P90),
			ExceedanceShare: optFloat(r.ExceedanceShare),
			Koatuu:          r.Koatuu,
			HasGeometry:     len(r.Geometry) > 0,
		})
	}
	return &RegionSummary{Rows: rows}, nil
}
