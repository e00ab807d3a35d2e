package parquet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	parquetfmt "github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/air-quality-etl-service/internal/config"
	"github.com/couchcryptid/air-quality-etl-service/internal/domain"
	"github.com/couchcryptid/air-quality-etl-service/internal/observability"
)

// Processed table filenames under the processed directory.
const (
	HourlyTable        = "city_hourly_pm25.parquet"
	DailyTable         = "city_daily_pm25.parquet"
	DistributionsTable = "city_distributions.parquet"
	RegionsTable       = "region_period_pm25.parquet"
)

const rawPartitionGlob = "city_hourly_*.parquet"

// writerParallelism is the np parameter of the parquet-go writer and reader.
const writerParallelism = 4

// Store reads and writes the pipeline's parquet tables: yearly raw
// partitions under the raw directory and the four processed tables under
// the processed directory. Every write goes to a temp file that is renamed
// into place, so a table is either the previous complete version or the
// new one.
type Store struct {
	rawDir       string
	processedDir string
	loc          *time.Location
	concurrency  int
	logger       *slog.Logger
	metrics      *observability.Metrics
}

// NewStore creates a Store over the configured raw and processed directories.
func NewStore(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Store {
	return &Store{
		rawDir:       cfg.RawDir,
		processedDir: cfg.ProcessedDir,
		loc:          cfg.Location,
		concurrency:  cfg.LoadConcurrency,
		logger:       logger,
		metrics:      metrics,
	}
}

// RawPartitionPath returns the raw partition file for one local year.
func (s *Store) RawPartitionPath(year int) string {
	return filepath.Join(s.rawDir, fmt.Sprintf("city_hourly_%d.parquet", year))
}

// ProcessedPath returns the full path of a processed table.
func (s *Store) ProcessedPath(table string) string {
	return filepath.Join(s.processedDir, table)
}

// CheckReadiness reports whether the processed dataset is present on disk.
func (s *Store) CheckReadiness(_ context.Context) error {
	if _, err := os.Stat(s.ProcessedPath(DailyTable)); err != nil {
		return fmt.Errorf("processed dataset not available: %w", err)
	}
	return nil
}

// ListRawPartitions returns the raw partition files in filename order.
func (s *Store) ListRawPartitions() ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(s.rawDir, rawPartitionGlob))
	if err != nil {
		return nil, fmt.Errorf("glob raw partitions: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// WriteRawPartition writes one local year of raw records.
func (s *Store) WriteRawPartition(year int, records []domain.HourlyRecord) error {
	rows := make([]rawRow, len(records))
	for i, rec := range records {
		rows[i] = newRawRow(rec)
	}
	path := s.RawPartitionPath(year)
	if err := writeTable(path, rows); err != nil {
		return err
	}
	s.logger.Debug("wrote raw partition", "path", path, "rows", len(rows))
	return nil
}

// ReadRawPartition reads back one local year of raw records.
func (s *Store) ReadRawPartition(year int) ([]domain.HourlyRecord, error) {
	rows, err := readTable[rawRow](s.RawPartitionPath(year))
	if err != nil {
		return nil, err
	}
	records := make([]domain.HourlyRecord, len(rows))
	for i, r := range rows {
		records[i] = r.record()
	}
	return records, nil
}

// LoadRaw reads every raw partition, fanning the file reads out across the
// configured concurrency. Records are returned in filename order with each
// partition's row order preserved.
func (s *Store) LoadRaw(ctx context.Context) ([]domain.HourlyRecord, error) {
	paths, err := s.ListRawPartitions()
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w under %s", domain.ErrNoInputFiles, s.rawDir)
	}

	parts := make([][]rawRow, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			rows, err := readTable[rawRow](path)
			if err != nil {
				return fmt.Errorf("load partition %s: %w", filepath.Base(path), err)
			}
			s.metrics.PartitionsLoaded.Inc()
			s.metrics.PartitionLoadDuration.Observe(time.Since(start).Seconds())
			s.logger.Debug("loaded raw partition", "path", path, "rows", len(rows))
			parts[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, rows := range parts {
		total += len(rows)
	}
	records := make([]domain.HourlyRecord, 0, total)
	for _, rows := range parts {
		for _, r := range rows {
			records = append(records, r.record())
		}
	}
	return records, nil
}

// WriteHourly writes the enriched hourly table.
func (s *Store) WriteHourly(records []domain.HourlyRecord) error {
	rows := make([]hourlyRow, len(records))
	for i, rec := range records {
		rows[i] = newHourlyRow(rec)
	}
	return writeProcessed(s, HourlyTable, rows)
}

// ReadHourly reads the enriched hourly table.
func (s *Store) ReadHourly() ([]domain.HourlyRecord, error) {
	rows, err := readProcessed[hourlyRow](s, HourlyTable)
	if err != nil {
		return nil, err
	}
	records := make([]domain.HourlyRecord, len(rows))
	for i, r := range rows {
		records[i] = r.record(s.loc)
	}
	return records, nil
}

// WriteDaily writes the daily aggregate table.
func (s *Store) WriteDaily(daily []domain.DailyAggregate) error {
	rows := make([]dailyRow, len(daily))
	for i, d := range daily {
		rows[i] = newDailyRow(d)
	}
	return writeProcessed(s, DailyTable, rows)
}

// ReadDaily reads the daily aggregate table.
func (s *Store) ReadDaily() ([]domain.DailyAggregate, error) {
	rows, err := readProcessed[dailyRow](s, DailyTable)
	if err != nil {
		return nil, err
	}
	daily := make([]domain.DailyAggregate, len(rows))
	for i, r := range rows {
		daily[i] = r.aggregate(s.loc)
	}
	return daily, nil
}

// WriteDistributions writes the city distribution table.
func (s *Store) WriteDistributions(dist []domain.CityDistribution) error {
	rows := make([]distributionRow, len(dist))
	for i, d := range dist {
		rows[i] = newDistributionRow(d)
	}
	return writeProcessed(s, DistributionsTable, rows)
}

// ReadDistributions reads the city distribution table.
func (s *Store) ReadDistributions() ([]domain.CityDistribution, error) {
	rows, err := readProcessed[distributionRow](s, DistributionsTable)
	if err != nil {
		return nil, err
	}
	dist := make([]domain.CityDistribution, len(rows))
	for i, r := range rows {
		dist[i] = r.distribution()
	}
	return dist, nil
}

// WriteRegions writes the region period summary table.
func (s *Store) WriteRegions(regions []domain.RegionPeriodSummary) error {
	rows := make([]regionRow, len(regions))
	for i, r := range regions {
		rows[i] = newRegionRow(r)
	}
	return writeProcessed(s, RegionsTable, rows)
}

// ReadRegions reads the region period summary table.
func (s *Store) ReadRegions() ([]domain.RegionPeriodSummary, error) {
	rows, err := readProcessed[regionRow](s, RegionsTable)
	if err != nil {
		return nil, err
	}
	regions := make([]domain.RegionPeriodSummary, len(rows))
	for i, r := range rows {
		regions[i] = r.summary()
	}
	return regions, nil
}

func writeProcessed[T any](s *Store, table string, rows []T) error {
	path := s.ProcessedPath(table)
	if err := writeTable(path, rows); err != nil {
		return err
	}
	s.logger.Debug("wrote parquet table", "path", path, "rows", len(rows))
	return nil
}

func readProcessed[T any](s *Store, table string) ([]T, error) {
	rows, err := readTable[T](s.ProcessedPath(table))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrMissingTable, table)
		}
		return nil, err
	}
	return rows, nil
}

// writeTable writes rows to path through a temp file in the same
// directory, renaming on success.
func writeTable[T any](path string, rows []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp := path + ".tmp"
	fw, err := local.NewLocalFileWriter(tmp)
	if err != nil {
		return fmt.Errorf("open %s: %w", tmp, err)
	}

	pw, err := writer.NewParquetWriter(fw, new(T), writerParallelism)
	if err != nil {
		fw.Close()
		os.Remove(tmp)
		return fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquetfmt.CompressionCodec_SNAPPY

	for i := range rows {
		if err := pw.Write(rows[i]); err != nil {
			fw.Close()
			os.Remove(tmp)
			return fmt.Errorf("write parquet row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		os.Remove(tmp)
		return fmt.Errorf("finalize parquet file: %w", err)
	}
	if err := fw.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// readTable reads every row of the parquet file at path.
func readTable[T any](path string) ([]T, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(T), writerParallelism)
	if err != nil {
		return nil, fmt.Errorf("create parquet reader: %w", err)
	}
	defer pr.ReadStop()

	rows := make([]T, int(pr.GetNumRows()))
	if len(rows) > 0 {
		if err := pr.Read(&rows); err != nil {
			return nil, fmt.Errorf("read parquet rows: %w", err)
		}
	}
	return rows, nil
}
