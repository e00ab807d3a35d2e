// Command figures exports the renderer-ready JSON datasets behind the
// publication figures.
//
// Usage:
//
//	figures [-top N] [-cities N]
//
// -top caps the city ranking length and -cities the number of
// highlighted city series on the exceedance timeline.
package main

import (
	"errors"
	"flag"
	"log/slog"
	"os"

	parquetadapter "github.com/couchcryptid/air-quality-etl-service/internal/adapter/parquet"
	"github.com/couchcryptid/air-quality-etl-service/internal/config"
	"github.com/couchcryptid/air-quality-etl-service/internal/domain"
	"github.com/couchcryptid/air-quality-etl-service/internal/figures"
	"github.com/couchcryptid/air-quality-etl-service/internal/observability"
)

var (
	topFlag    = flag.Int("top", figures.DefaultRankingSize, "maximum cities in the ranking dataset")
	citiesFlag = flag.Int("cities", figures.DefaultTimelineCities, "highlighted city series on the timeline")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		slog.Error("figure export failed", "error", err)
		os.Exit(exitCode(err))
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	store := parquetadapter.NewStore(cfg, logger, metrics)

	exporter := figures.NewExporter(store, cfg, logger)
	exporter.RankingSize = *topFlag
	exporter.TimelineCities = *citiesFlag

	paths, err := exporter.Run()
	if err != nil {
		return err
	}

	logger.Info("figure datasets written", "count", len(paths), "dir", cfg.FiguresDir)
	return nil
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrConfiguration):
		return 2
	case errors.Is(err, domain.ErrDataInsufficiency):
		return 3
	default:
		return 1
	}
}
