// Command aggregate turns raw hourly partitions into the processed
// parquet tables and writes a run summary next to them.
//
// Configuration comes from environment variables (see internal/config).
// When ANALYTICS_DB is set, the daily, distribution, and region tables
// are mirrored into a SQLite database for ad-hoc queries.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/couchcryptid/air-quality-etl-service/internal/adapter/geojson"
	"github.com/couchcryptid/air-quality-etl-service/internal/adapter/metadata"
	parquetadapter "github.com/couchcryptid/air-quality-etl-service/internal/adapter/parquet"
	"github.com/couchcryptid/air-quality-etl-service/internal/adapter/sqlite"
	"github.com/couchcryptid/air-quality-etl-service/internal/config"
	"github.com/couchcryptid/air-quality-etl-service/internal/domain"
	"github.com/couchcryptid/air-quality-etl-service/internal/observability"
	"github.com/couchcryptid/air-quality-etl-service/internal/pipeline"
)

func main() {
	if err := run(); err != nil {
		slog.Error("aggregation failed", "error", err)
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
	defer writeMetrics(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := parquetadapter.NewStore(cfg, logger, metrics)
	meta := metadata.NewReader(cfg, logger)
	boundaries := geojson.NewLoader(cfg, logger)

	// Analytics mirror is feature-flagged via ANALYTICS_DB.
	var mirror pipeline.AnalyticsMirror
	if cfg.AnalyticsDBPath != "" {
		db, err := sqlite.Open(cfg.AnalyticsDBPath, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := db.Close(); err != nil {
				logger.Error("analytics db close error", "error", err)
			}
		}()
		mirror = db
		logger.Info("analytics mirror enabled", "path", cfg.AnalyticsDBPath)
	} else {
		logger.Info("analytics mirror disabled")
	}

	agg := pipeline.NewAggregator(store, meta, boundaries, store, mirror, cfg, logger, metrics)

	summary, err := agg.Run(ctx)
	if err != nil {
		return err
	}

	summary.Outputs = []string{
		store.ProcessedPath(parquetadapter.HourlyTable),
		store.ProcessedPath(parquetadapter.DailyTable),
		store.ProcessedPath(parquetadapter.DistributionsTable),
		store.ProcessedPath(parquetadapter.RegionsTable),
	}
	summaryPath := filepath.Join(cfg.ProcessedDir, pipeline.RunSummaryFile)
	if err := summary.Write(summaryPath); err != nil {
		return err
	}

	logger.Info("aggregation complete", "run_id", summary.RunID, "summary", summaryPath)
	return nil
}

// writeMetrics dumps the final counter state for the node-exporter
// textfile collector. Batch runs have no scrape window, so the textfile
// is how the numbers reach Prometheus.
func writeMetrics(cfg *config.Config, logger *slog.Logger) {
	if cfg.MetricsTextfile == "" {
		return
	}
	if err := observability.WriteTextfile(cfg.MetricsTextfile, prometheus.DefaultGatherer); err != nil {
		logger.Warn("failed to write metrics textfile", "path", cfg.MetricsTextfile, "error", err)
	}
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
