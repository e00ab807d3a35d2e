package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL pipeline.
type Metrics struct {
	RecordsIngested  prometheus.Counter
	RecordsLoaded    prometheus.Counter
	RecordsDiscarded *prometheus.CounterVec // labels: reason={bad_timestamp,bad_city_id,no_metadata}
	PipelineRunning  prometheus.Gauge

	// Aggregation metrics.
	StageDuration  *prometheus.HistogramVec // labels: stage={load,enrich,daily,eligibility,distributions,regions,write}
	TableRows      *prometheus.GaugeVec     // labels: table={hourly,daily,distributions,regions}
	EligibleCities prometheus.Gauge

	// Raw partition metrics.
	PartitionsLoaded      prometheus.Counter
	PartitionLoadDuration prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		RecordsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "air_etl",
			Name:      "records_ingested_total",
			Help:      "Total hourly rows written to raw parquet partitions.",
		}),
		RecordsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "air_etl",
			Name:      "records_loaded_total",
			Help:      "Total hourly rows read back from raw partitions for aggregation.",
		}),
		RecordsDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "air_etl",
			Name:      "records_discarded_total",
			Help:      "Rows dropped before aggregation, by reason.",
		}, []string{"reason"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "air_etl",
			Name:      "pipeline_running",
			Help:      "1 while an aggregation run is active, 0 otherwise.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "air_etl",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each aggregation stage.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
		}, []string{"stage"}),
		TableRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "air_etl",
			Name:      "table_rows",
			Help:      "Rows in each processed table after the last run.",
		}, []string{"table"}),
		EligibleCities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "air_etl",
			Name:      "eligible_cities",
			Help:      "Cities that passed the coverage gate in the last run.",
		}),
		PartitionsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "air_etl",
			Name:      "partitions_loaded_total",
			Help:      "Raw parquet partition files read.",
		}),
		PartitionLoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "air_etl",
			Name:      "partition_load_duration_seconds",
			Help:      "Time to read one raw parquet partition.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
	}

	prometheus.MustRegister(
		m.RecordsIngested,
		m.RecordsLoaded,
		m.RecordsDiscarded,
		m.PipelineRunning,
		m.StageDuration,
		m.TableRows,
		m.EligibleCities,
		m.PartitionsLoaded,
		m.PartitionLoadDuration,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		RecordsIngested:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "air_etl", Name: "records_ingested_total"}),
		RecordsLoaded:         prometheus.NewCounter(prometheus.CounterOpts{Namespace: "air_etl", Name: "records_loaded_total"}),
		RecordsDiscarded:      prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "air_etl", Name: "records_discarded_total"}, []string{"reason"}),
		PipelineRunning:       prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "air_etl", Name: "pipeline_running"}),
		StageDuration:         prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "air_etl", Name: "stage_duration_seconds"}, []string{"stage"}),
		TableRows:             prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: "air_etl", Name: "table_rows"}, []string{"table"}),
		EligibleCities:        prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "air_etl", Name: "eligible_cities"}),
		PartitionsLoaded:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "air_etl", Name: "partitions_loaded_total"}),
		PartitionLoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "air_etl", Name: "partition_load_duration_seconds"}),
	}
}
