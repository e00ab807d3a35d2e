package metadata

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/air-quality-etl-service/internal/config"
	"github.com/couchcryptid/air-quality-etl-service/internal/domain"
)

// Reader loads the static city metadata table from its CSV file.
type Reader struct {
	path   string
	logger *slog.Logger
}

// NewReader creates a Reader for the configured metadata path.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	return &Reader{path: cfg.MetadataPath, logger: logger}
}

// Load reads the metadata table keyed by city id. Header names are matched
// case-insensitively and the id column may be named either id or city_id.
// Rows with an unparseable id are skipped; a duplicate id keeps the first
// row seen.
func (r *Reader) Load() (map[int64]domain.CityMeta, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("open city metadata %s: %w", r.path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read city metadata header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\uFEFF")))
		cols[name] = i
	}

	idCol, ok := cols["id"]
	if !ok {
		idCol, ok = cols["city_id"]
	}
	if !ok {
		return nil, fmt.Errorf("%w: city metadata %s has no id column", domain.ErrMissingColumns, r.path)
	}

	var missing []string
	need := func(name string) int {
		i, ok := cols[name]
		if !ok {
			missing = append(missing, name)
		}
		return i
	}
	nameCol := need("city_name")
	regionCol := need("region_name")
	koatuuCol := need("koatuu")
	katottgCol := need("katottg")
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: city metadata %s lacks %s", domain.ErrMissingColumns, r.path, strings.Join(missing, ", "))
	}

	cities := make(map[int64]domain.CityMeta)
	skipped := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read city metadata row: %w", err)
		}

		id, err := strconv.ParseInt(strings.TrimSpace(row[idCol]), 10, 64)
		if err != nil {
			skipped++
			continue
		}
		if _, ok := cities[id]; ok {
			r.logger.Warn("duplicate city id in metadata", "city_id", id)
			continue
		}
		cities[id] = domain.CityMeta{
			CityID:     id,
			CityName:   row[nameCol],
			RegionName: row[regionCol],
			Koatuu:     row[koatuuCol],
			Katottg:    row[katottgCol],
		}
	}

	if skipped > 0 {
		r.logger.Warn("skipped metadata rows with unparseable ids", "rows", skipped)
	}
	r.logger.Debug("loaded city metadata", "path", r.path, "cities", len(cities))
	return cities, nil
}
