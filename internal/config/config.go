package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/couchcryptid/air-quality-etl-service/internal/domain"
)

// Config holds all pipeline settings, populated from environment variables.
type Config struct {
	// Input locations.
	CSVGlob        string
	ArchiveCSV     string
	MetadataPath   string
	BoundariesPath string

	// Output locations.
	RawDir       string
	ProcessedDir string
	QADir        string
	FiguresDir   string

	// Optional sinks. Empty means disabled.
	AnalyticsDBPath string
	MetricsTextfile string

	// Preview server settings.
	HTTPAddr        string
	ShutdownTimeout time.Duration

	// Calendar settings. WartimeStart is a local-midnight instant in
	// Location; records at or after it belong to the wartime period.
	Timezone     string
	Location     *time.Location
	WartimeStart time.Time

	// Analysis parameters.
	PM25Guideline float64
	Thresholds    domain.Thresholds

	// IngestYear restricts ingestion to a single local year; zero means
	// every year found in the input.
	IngestYear int

	LoadConcurrency int
	LogLevel        string
	LogFormat       string
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is honored when
// present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	timezone := envOrDefault("TIMEZONE", "Europe/Kyiv")
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid TIMEZONE %q", domain.ErrConfiguration, timezone)
	}

	wartimeRaw := envOrDefault("WARTIME_START", "2022-02-24")
	wartimeStart, err := time.ParseInLocation(time.DateOnly, wartimeRaw, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid WARTIME_START %q", domain.ErrConfiguration, wartimeRaw)
	}

	guideline, err := parseFloat("PM25_GUIDELINE", 15)
	if err != nil {
		return nil, err
	}

	defaults := domain.DefaultThresholds()
	ratio, err := parseFloat("MIN_COVERAGE_RATIO", defaults.MinCoverageRatio)
	if err != nil {
		return nil, err
	}
	hours, err := parseInt("MIN_COVERAGE_HOURS", defaults.MinCoverageHours)
	if err != nil {
		return nil, err
	}
	totalYears, err := parseInt("MIN_TOTAL_YEARS", defaults.MinTotalYears)
	if err != nil {
		return nil, err
	}
	prewarYears, err := parseInt("MIN_PREWAR_YEARS", defaults.MinPrewarYears)
	if err != nil {
		return nil, err
	}
	wartimeYears, err := parseInt("MIN_WARTIME_YEARS", defaults.MinWartimeYears)
	if err != nil {
		return nil, err
	}

	ingestYear, err := parseInt("INGEST_YEAR", 0)
	if err != nil {
		return nil, err
	}
	concurrency, err := parseInt("LOAD_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}
	shutdown, err := parseDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		CSVGlob:        envOrDefault("CSV_GLOB", "dataset/saveecobot_cities_pm25_and_aqi_pm25_*.csv"),
		ArchiveCSV:     os.Getenv("ARCHIVE_CSV"),
		MetadataPath:   envOrDefault("METADATA_PATH", "dataset/saveecobot_cities.csv"),
		BoundariesPath: envOrDefault("BOUNDARIES_PATH", "dataset/geo/ukraine_adm_boundaries.geojson"),

		RawDir:       envOrDefault("RAW_DIR", "data/raw"),
		ProcessedDir: envOrDefault("PROCESSED_DIR", "data/processed"),
		QADir:        envOrDefault("QA_DIR", "outputs/qa"),
		FiguresDir:   envOrDefault("FIGURES_DIR", "outputs/figures"),

		AnalyticsDBPath: os.Getenv("ANALYTICS_DB"),
		MetricsTextfile: os.Getenv("METRICS_TEXTFILE"),

		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		ShutdownTimeout: shutdown,

		Timezone:     timezone,
		Location:     loc,
		WartimeStart: wartimeStart,

		PM25Guideline: guideline,
		Thresholds: domain.Thresholds{
			MinCoverageRatio: ratio,
			MinCoverageHours: hours,
			MinTotalYears:    totalYears,
			MinPrewarYears:   prewarYears,
			MinWartimeYears:  wartimeYears,
			WartimeYear:      wartimeStart.Year(),
		},

		IngestYear:      ingestYear,
		LoadConcurrency: concurrency,
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
	}

	if cfg.PM25Guideline <= 0 {
		return nil, fmt.Errorf("%w: PM25_GUIDELINE must be positive", domain.ErrConfiguration)
	}
	if cfg.Thresholds.MinCoverageRatio <= 0 || cfg.Thresholds.MinCoverageRatio > 1 {
		return nil, fmt.Errorf("%w: MIN_COVERAGE_RATIO must be in (0, 1]", domain.ErrConfiguration)
	}
	if cfg.Thresholds.MinCoverageHours < 1 || cfg.Thresholds.MinCoverageHours > 24 {
		return nil, fmt.Errorf("%w: MIN_COVERAGE_HOURS must be between 1 and 24", domain.ErrConfiguration)
	}
	if cfg.Thresholds.MinTotalYears < 1 {
		return nil, fmt.Errorf("%w: MIN_TOTAL_YEARS must be at least 1", domain.ErrConfiguration)
	}
	if cfg.Thresholds.MinPrewarYears < 0 || cfg.Thresholds.MinWartimeYears < 0 {
		return nil, fmt.Errorf("%w: period year minimums must not be negative", domain.ErrConfiguration)
	}
	if cfg.IngestYear < 0 {
		return nil, fmt.Errorf("%w: INGEST_YEAR must not be negative", domain.ErrConfiguration)
	}
	if cfg.LoadConcurrency < 1 {
		return nil, fmt.Errorf("%w: LOAD_CONCURRENCY must be at least 1", domain.ErrConfiguration)
	}
	if cfg.ShutdownTimeout <= 0 {
		return nil, fmt.Errorf("%w: SHUTDOWN_TIMEOUT must be positive", domain.ErrConfiguration)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseFloat(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", domain.ErrConfiguration, key, s)
	}
	return v, nil
}

func parseInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", domain.ErrConfiguration, key, s)
	}
	return v, nil
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", domain.ErrConfiguration, key, s)
	}
	return v, nil
}
