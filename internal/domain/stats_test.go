package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMean(t *testing.T) {
	tests := []struct {
		name     string
		xs       []float64
		expected float64
	}{
		{"simple", []float64{1, 2, 3}, 2},
		{"skips NaN", []float64{1, math.NaN(), 3}, 2},
		{"single value", []float64{7}, 7},
		{"negative values", []float64{-4, 4}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Mean(tt.xs), 1e-12)
		})
	}

	t.Run("empty is NaN", func(t *testing.T) {
		assert.True(t, math.IsNaN(Mean(nil)))
	})

	t.Run("all NaN is NaN", func(t *testing.T) {
		assert.True(t, math.IsNaN(Mean([]float64{math.NaN(), math.NaN()})))
	})
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name     string
		xs       []float64
		expected float64
	}{
		{"odd count", []float64{3, 1, 2}, 2},
		{"even count interpolates", []float64{1, 2, 3, 4}, 2.5},
		{"single value", []float64{5}, 5},
		{"skips NaN", []float64{1, math.NaN(), 3}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Median(tt.xs), 1e-12)
		})
	}
}

func TestQuantile(t *testing.T) {
	tests := []struct {
		name     string
		xs       []float64
		p        float64
		expected float64
	}{
		{"p90 interpolates", []float64{1, 2, 3, 4}, 0.9, 3.7},
		{"p10 interpolates", []float64{1, 2, 3, 4}, 0.1, 1.3},
		{"p0 is minimum", []float64{4, 1, 3}, 0, 1},
		{"p100 is maximum", []float64{4, 1, 3}, 1, 4},
		{"p90 of three", []float64{10, 20, 30}, 0.9, 28},
		{"p10 of three", []float64{10, 20, 30}, 0.1, 12},
		{"NaN values skipped", []float64{10, math.NaN(), 20, 30}, 0.9, 28},
		{"unsorted input", []float64{30, 10, 20}, 0.5, 20},
		{"single value", []float64{7}, 0.9, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Quantile(tt.xs, tt.p), 1e-12)
		})
	}

	t.Run("empty is NaN", func(t *testing.T) {
		assert.True(t, math.IsNaN(Quantile(nil, 0.5)))
	})
}

func TestMax(t *testing.T) {
	tests := []struct {
		name     string
		xs       []float64
		expected float64
	}{
		{"simple", []float64{1, 3, 2}, 3},
		{"skips NaN", []float64{math.NaN(), 2}, 2},
		{"all negative", []float64{-5, -2, -9}, -2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Max(tt.xs))
		})
	}

	t.Run("empty is NaN", func(t *testing.T) {
		assert.True(t, math.IsNaN(Max(nil)))
	})
}
