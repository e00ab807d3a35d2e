package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/air-quality-etl-service/internal/config"
	"github.com/couchcryptid/air-quality-etl-service/internal/domain"
	"github.com/couchcryptid/air-quality-etl-service/internal/observability"
)

// RawSink writes one yearly partition of raw hourly records.
type RawSink interface {
	WriteRawPartition(year int, records []domain.HourlyRecord) error
}

// IngestStats summarizes the records written during one ingestion run.
type IngestStats struct {
	RecordsPerYear map[int]int
}

// TotalRecords returns the record count across all yearly partitions.
func (s *IngestStats) TotalRecords() int {
	total := 0
	for _, n := range s.RecordsPerYear {
		total += n
	}
	return total
}

// ingestColumns are the required hourly CSV columns, matched after
// lowercasing the header.
var ingestColumns = []string{"aqi", "city_id", "logged_at", "pm25"}

// timestampLayouts are tried in order when parsing logged_at values.
// Timestamps without a zone are taken as UTC, which is how the source
// exports its data.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// filenameYear extracts the calendar year embedded in yearly export
// filenames, e.g. saveecobot_cities_pm25_and_aqi_pm25_2021.csv.
var filenameYear = regexp.MustCompile(`20\d\d`)

// Ingestor reads the hourly CSV exports, normalizes types and timestamps,
// and writes one raw parquet partition per local calendar year. The archive
// CSV, when configured, only contributes years the yearly exports do not
// already cover.
type Ingestor struct {
	glob         string
	archiveCSV   string
	metadataPath string
	yearFilter   int
	loc          *time.Location

	sink    RawSink
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewIngestor creates an Ingestor writing partitions through sink.
func NewIngestor(sink RawSink, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Ingestor {
	return &Ingestor{
		glob:         cfg.CSVGlob,
		archiveCSV:   cfg.ArchiveCSV,
		metadataPath: cfg.MetadataPath,
		yearFilter:   cfg.IngestYear,
		loc:          cfg.Location,
		sink:         sink,
		logger:       logger,
		metrics:      metrics,
	}
}

// Run ingests every matching CSV file and writes the yearly partitions.
func (i *Ingestor) Run(ctx context.Context) (*IngestStats, error) {
	files, err := filepath.Glob(i.glob)
	if err != nil {
		return nil, fmt.Errorf("%w: bad hourly csv glob %q: %v", domain.ErrConfiguration, i.glob, err)
	}
	sort.Strings(files)
	existingYears := yearsFromFilenames(files)

	if i.archiveCSV != "" {
		if _, err := os.Stat(i.archiveCSV); err != nil {
			return nil, fmt.Errorf("%w: archive csv not found: %s", domain.ErrConfiguration, i.archiveCSV)
		}
		files = append(files, i.archiveCSV)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w matching %s", domain.ErrNoInputFiles, i.glob)
	}

	// The metadata table is not read here, but a misconfigured path should
	// fail the pipeline before hours of CSV parsing, not at aggregation.
	if _, err := os.Stat(i.metadataPath); err != nil {
		return nil, fmt.Errorf("%w: city metadata not found: %s", domain.ErrConfiguration, i.metadataPath)
	}

	i.logger.Info("ingestion started", "files", len(files), "year_filter", i.yearFilter)

	perYear := make(map[int][]domain.HourlyRecord)
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		isArchive := i.archiveCSV != "" && path == i.archiveCSV
		if err := i.ingestFile(path, isArchive, existingYears, perYear); err != nil {
			return nil, err
		}
	}

	stats := &IngestStats{RecordsPerYear: make(map[int]int, len(perYear))}
	years := make([]int, 0, len(perYear))
	for yr, records := range perYear {
		years = append(years, yr)
		stats.RecordsPerYear[yr] = len(records)
	}
	if stats.TotalRecords() == 0 {
		return nil, domain.ErrNoRecordsIngested
	}
	sort.Ints(years)

	for _, yr := range years {
		if err := i.sink.WriteRawPartition(yr, perYear[yr]); err != nil {
			return nil, fmt.Errorf("write raw partition %d: %w", yr, err)
		}
		i.logger.Info("wrote raw partition", "year", yr, "rows", len(perYear[yr]))
	}

	i.logger.Info("ingestion finished", "rows", stats.TotalRecords(), "years", len(years))
	return stats, nil
}

// ingestFile parses one CSV file and appends its records to perYear, keyed
// by local calendar year. Rows with an unparseable timestamp or city ID are
// dropped and counted; unparseable sensor values become nil readings.
func (i *Ingestor) ingestFile(path string, isArchive bool, existingYears map[int]struct{}, perYear map[int][]domain.HourlyRecord) error {
	base := filepath.Base(path)
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open hourly csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("%w in %s: no header row", domain.ErrMissingColumns, base)
	}
	idx, err := headerIndex(header, base)
	if err != nil {
		return err
	}

	var kept, badTime, badCity, archiveSkipped, filtered int
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", base, err)
		}

		cityID, err := strconv.ParseInt(strings.TrimSpace(row[idx["city_id"]]), 10, 64)
		if err != nil {
			badCity++
			continue
		}
		loggedAt, ok := parseTimestamp(row[idx["logged_at"]])
		if !ok {
			badTime++
			continue
		}

		year := loggedAt.In(i.loc).Year()
		if isArchive {
			if _, covered := existingYears[year]; covered {
				archiveSkipped++
				continue
			}
		}
		if i.yearFilter != 0 && year != i.yearFilter {
			filtered++
			continue
		}

		perYear[year] = append(perYear[year], domain.HourlyRecord{
			CityID:     cityID,
			LoggedAt:   loggedAt.UTC(),
			PM25:       parseReading(row[idx["pm25"]]),
			AQI:        parseReading(row[idx["aqi"]]),
			SourceFile: base,
		})
		kept++
	}

	i.metrics.RecordsIngested.Add(float64(kept))
	if badTime > 0 {
		i.metrics.RecordsDiscarded.WithLabelValues("bad_timestamp").Add(float64(badTime))
	}
	if badCity > 0 {
		i.metrics.RecordsDiscarded.WithLabelValues("bad_city_id").Add(float64(badCity))
	}
	i.logger.Info("ingested csv",
		"file", base,
		"rows", kept,
		"dropped_timestamp", badTime,
		"dropped_city_id", badCity,
		"archive_skipped", archiveSkipped,
		"year_filtered", filtered)
	return nil
}

// headerIndex maps the required columns to their positions, matching
// case-insensitively and tolerating a UTF-8 BOM on the first cell.
func headerIndex(header []string, base string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for col, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		if col == 0 {
			name = strings.TrimPrefix(name, "\uFEFF")
		}
		idx[name] = col
	}
	var missing []string
	for _, name := range ingestColumns {
		if _, ok := idx[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w in %s: %s", domain.ErrMissingColumns, base, strings.Join(missing, ", "))
	}
	return idx, nil
}

func parseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseReading converts a sensor value cell to a float pointer. Empty and
// unparseable cells become nil, the missing-value representation.
func parseReading(value string) *float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil
	}
	return &v
}

// yearsFromFilenames collects the years named by the yearly export files so
// the archive CSV can be limited to years they do not cover.
func yearsFromFilenames(files []string) map[int]struct{} {
	years := make(map[int]struct{}, len(files))
	for _, path := range files {
		m := filenameYear.FindString(filepath.Base(path))
		if m == "" {
			continue
		}
		if yr, err := strconv.Atoi(m); err == nil {
			years[yr] = struct{}{}
		}
	}
	return years
}
