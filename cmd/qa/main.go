// Command qa writes the coverage report, period summary, and dataset
// summary for the processed tables.
package main

import (
	"errors"
	"log/slog"
	"os"

	parquetadapter "github.com/couchcryptid/air-quality-etl-service/internal/adapter/parquet"
	"github.com/couchcryptid/air-quality-etl-service/internal/config"
	"github.com/couchcryptid/air-quality-etl-service/internal/domain"
	"github.com/couchcryptid/air-quality-etl-service/internal/observability"
	"github.com/couchcryptid/air-quality-etl-service/internal/pipeline"
)

func main() {
	if err := run(); err != nil {
		slog.Error("qa reporting failed", "error", err)
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
	reporter := pipeline.NewReporter(store, cfg, logger)

	report, err := reporter.Run()
	if err != nil {
		return err
	}

	logger.Info("qa complete", "cities", report.Cities, "years", len(report.Years), "daily_rows", report.DailyRows)
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
