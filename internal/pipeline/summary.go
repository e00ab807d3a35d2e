package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RunSummaryFile is the filename the aggregate command writes next to the
// processed tables.
const RunSummaryFile = "run_summary.json"

// RunSummary records what one aggregation run produced. It is a diagnostic
// artifact; the parquet tables alone carry the data contract, so rerunning
// with identical inputs rewrites the tables byte for byte while the summary
// gets a fresh run ID and timestamps.
type RunSummary struct {
	RunID         string    `json:"run_id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Timezone      string    `json:"timezone"`
	WartimeStart  string    `json:"wartime_start"`
	PM25Guideline float64   `json:"pm25_guideline"`

	HourlyRows        int `json:"hourly_rows"`
	DailyRows         int `json:"daily_rows"`
	DistributionRows  int `json:"distribution_rows"`
	RegionRows        int `json:"region_rows"`
	EligibleCities    int `json:"eligible_cities"`
	EligiblePairs     int `json:"eligible_pairs"`
	BoundariesMatched int `json:"boundaries_matched"`

	Outputs []string `json:"outputs"`
}

// Write stores the summary as indented JSON at path, creating parent
// directories as needed.
func (s *RunSummary) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create summary dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run summary: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write run summary: %w", err)
	}
	return nil
}
