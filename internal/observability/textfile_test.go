package observability

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "air_etl",
		Name:      "records_ingested_total",
		Help:      "Total hourly rows written to raw parquet partitions.",
	})
	reg.MustRegister(counter)
	counter.Add(42)

	path := filepath.Join(t.TempDir(), "metrics", "run.prom")
	require.NoError(t, WriteTextfile(path, reg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "air_etl_records_ingested_total 42")
	assert.Contains(t, string(data), "# HELP air_etl_records_ingested_total")

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestWriteTextfile_Rewrite(t *testing.T) {
	reg := prometheus.NewRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "air_etl",
		Name:      "eligible_cities",
	})
	reg.MustRegister(gauge)

	path := filepath.Join(t.TempDir(), "run.prom")

	gauge.Set(3)
	require.NoError(t, WriteTextfile(path, reg))

	gauge.Set(7)
	require.NoError(t, WriteTextfile(path, reg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "air_etl_eligible_cities 7")
	assert.NotContains(t, string(data), "air_etl_eligible_cities 3")
}

func TestNewMetricsForTesting_IndependentInstances(t *testing.T) {
	m1 := NewMetricsForTesting()
	m2 := NewMetricsForTesting()

	m1.RecordsIngested.Add(5)
	m1.RecordsDiscarded.WithLabelValues("bad_timestamp").Inc()
	m1.TableRows.WithLabelValues("daily").Set(12)

	assert.NotSame(t, m1.RecordsIngested, m2.RecordsIngested)
}
