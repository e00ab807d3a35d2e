// Command ingest loads SaveEcoBot hourly CSV exports into yearly raw
// parquet partitions.
//
// Configuration comes from environment variables (see internal/config).
// A single local year can be selected with -year, which overrides
// INGEST_YEAR.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	parquetadapter "github.com/couchcryptid/air-quality-etl-service/internal/adapter/parquet"
	"github.com/couchcryptid/air-quality-etl-service/internal/config"
	"github.com/couchcryptid/air-quality-etl-service/internal/domain"
	"github.com/couchcryptid/air-quality-etl-service/internal/observability"
	"github.com/couchcryptid/air-quality-etl-service/internal/pipeline"
)

var yearFlag = flag.Int("year", 0, "ingest only this local year (0 = every year found)")

func main() {
	flag.Parse()
	if err := run(); err != nil {
		slog.Error("ingestion failed", "error", err)
		os.Exit(exitCode(err))
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *yearFlag != 0 {
		cfg.IngestYear = *yearFlag
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	defer writeMetrics(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := parquetadapter.NewStore(cfg, logger, metrics)
	ingestor := pipeline.NewIngestor(store, cfg, logger, metrics)

	stats, err := ingestor.Run(ctx)
	if err != nil {
		return err
	}

	logger.Info("ingestion complete", "rows", stats.TotalRecords(), "partitions", len(stats.RecordsPerYear))
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
