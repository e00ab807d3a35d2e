package geojson

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	orbgeojson "github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/air-quality-etl-service/internal/config"
	"github.com/couchcryptid/air-quality-etl-service/internal/domain"
)

// Loader reads the administrative boundaries file used to join geometry
// onto region summaries.
type Loader struct {
	path   string
	logger *slog.Logger
}

// NewLoader creates a Loader for the configured boundaries path.
func NewLoader(cfg *config.Config, logger *slog.Logger) *Loader {
	return &Loader{path: cfg.BoundariesPath, logger: logger}
}

// Load parses the boundaries file into features keyed by trimmed display
// name. The Ukrainian name property is preferred over the plain one when
// any feature carries it. A missing or unconfigured file is not an error;
// the join is skipped and Load returns a nil map.
func (l *Loader) Load() (map[string]domain.RegionBoundary, error) {
	if l.path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		l.logger.Warn("admin boundaries file not found, skipping geometry join", "path", l.path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read admin boundaries %s: %w", l.path, err)
	}

	fc, err := orbgeojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse admin boundaries %s: %w", l.path, err)
	}

	key, err := nameKey(fc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, l.path)
	}

	bounds := make(map[string]domain.RegionBoundary, len(fc.Features))
	for _, f := range fc.Features {
		name := strings.TrimSpace(stringProp(f.Properties, key))
		if name == "" {
			continue
		}
		if _, ok := bounds[name]; ok {
			l.logger.Warn("duplicate boundary name, keeping first", "name", name)
			continue
		}

		var geom json.RawMessage
		if f.Geometry != nil {
			raw, err := json.Marshal(orbgeojson.NewGeometry(f.Geometry))
			if err != nil {
				return nil, fmt.Errorf("encode boundary geometry for %s: %w", name, err)
			}
			geom = raw
		}

		bounds[name] = domain.RegionBoundary{
			Koatuu:   stringProp(f.Properties, "koatuu"),
			Geometry: geom,
		}
	}

	l.logger.Debug("loaded admin boundaries", "path", l.path, "features", len(bounds), "name_key", key)
	return bounds, nil
}

// nameKey picks the property used as the join key: name:uk when any
// feature has it, otherwise name.
func nameKey(fc *orbgeojson.FeatureCollection) (string, error) {
	for _, key := range []string{"name:uk", "name"} {
		for _, f := range fc.Features {
			if _, ok := f.Properties[key]; ok {
				return key, nil
			}
		}
	}
	return "", domain.ErrBoundaryName
}

// stringProp renders a property value as a string. Numeric codes such as
// koatuu appear as JSON numbers in some exports.
func stringProp(props orbgeojson.Properties, key string) string {
	switch v := props[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}
