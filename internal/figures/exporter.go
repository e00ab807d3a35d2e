// Package figures builds the renderer-ready datasets derived from the
// processed tables: the city ranking, the exceedance timeline, the seasonal
// heatmap, and the region summary. It exports data contracts as JSON and
// renders nothing itself.
package figures

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/couchcryptid/air-quality-etl-service/internal/config"
	"github.com/couchcryptid/air-quality-etl-service/internal/domain"
)

// Filenames written into the figures directory.
const (
	RankingFile  = "city_ranking.json"
	TimelineFile = "exceedance_timeline.json"
	HeatmapFile  = "seasonal_heatmap.json"
	RegionFile   = "region_summary.json"
)

// Defaults for the dataset sizes, overridable per Exporter.
const (
	DefaultRankingSize    = 20
	DefaultTimelineCities = 4
)

// TableSource reads back the processed tables the datasets derive from.
type TableSource interface {
	ReadHourly() ([]domain.HourlyRecord, error)
	ReadDaily() ([]domain.DailyAggregate, error)
	ReadDistributions() ([]domain.CityDistribution, error)
	ReadRegions() ([]domain.RegionPeriodSummary, error)
}

// Exporter loads the processed tables and writes every figure dataset.
type Exporter struct {
	source     TableSource
	dir        string
	guideline  float64
	thresholds domain.Thresholds
	logger     *slog.Logger

	// RankingSize and TimelineCities bound the per-dataset city counts.
	RankingSize    int
	TimelineCities int
}

// NewExporter creates an Exporter writing into cfg.FiguresDir.
func NewExporter(source TableSource, cfg *config.Config, logger *slog.Logger) *Exporter {
	return &Exporter{
		source:         source,
		dir:            cfg.FiguresDir,
		guideline:      cfg.PM25Guideline,
		thresholds:     cfg.Thresholds,
		logger:         logger,
		RankingSize:    DefaultRankingSize,
		TimelineCities: DefaultTimelineCities,
	}
}

// Run builds and writes all figure datasets, returning the written paths.
// The eligible city set is recomputed from the distribution table so the
// datasets stand on the same gate the tables were produced with.
func (e *Exporter) Run() ([]string, error) {
	hourly, err := e.source.ReadHourly()
	if err != nil {
		return nil, err
	}
	daily, err := e.source.ReadDaily()
	if err != nil {
		return nil, err
	}
	dist, err := e.source.ReadDistributions()
	if err != nil {
		return nil, err
	}
	regions, err := e.source.ReadRegions()
	if err != nil {
		return nil, err
	}

	eligible := domain.EligibleCityIDsFromDistributions(dist, e.thresholds)
	e.logger.Info("building figure datasets",
		"hourly_rows", len(hourly),
		"daily_rows", len(daily),
		"eligible_cities", len(eligible))

	ranking, err := BuildCityRanking(dist, eligible, e.RankingSize)
	if err != nil {
		return nil, err
	}
	timeline, err := BuildExceedanceTimeline(daily, eligible, e.thresholds, e.guideline, e.TimelineCities)
	if err != nil {
		return nil, err
	}
	heatmap, err := BuildSeasonalHeatmap(hourly)
	if err != nil {
		return nil, err
	}
	regionSummary, err := BuildRegionSummary(regions)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create figures dir: %w", err)
	}
	datasets := []struct {
		file string
		data any
	}{
		{RankingFile, ranking},
		{TimelineFile, timeline},
		{HeatmapFile, heatmap},
		{RegionFile, regionSummary},
	}
	paths := make([]string, 0, len(datasets))
	for _, d := range datasets {
		path := filepath.Join(e.dir, d.file)
		if err := writeDataset(path, d.data); err != nil {
			return nil, err
		}
		paths = append(paths, path)
		e.logger.Info("wrote figure dataset", "file", d.file)
	}
	return paths, nil
}

func writeDataset(path string, data any) error {
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(encoded, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// optFloat maps NaN statistics to JSON nulls.
func optFloat(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}
