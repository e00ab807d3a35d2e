// Command serve exposes the exported figure and QA datasets over HTTP
// for local inspection, with health, readiness, and metrics endpoints.
// Readiness reflects whether an aggregation run has produced the
// processed tables yet.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/air-quality-etl-service/internal/adapter/http"
	parquetadapter "github.com/couchcryptid/air-quality-etl-service/internal/adapter/parquet"
	"github.com/couchcryptid/air-quality-etl-service/internal/config"
	"github.com/couchcryptid/air-quality-etl-service/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	store := parquetadapter.NewStore(cfg, logger, metrics)
	srv := httpadapter.NewServer(cfg, store, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
