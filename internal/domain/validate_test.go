package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr(v float64) *float64 { return &v }

func TestValidPM25(t *testing.T) {
	tests := []struct {
		name     string
		value    *float64
		expected bool
	}{
		{"nil is valid", nil, true},
		{"zero boundary", ptr(0), true},
		{"upper boundary", ptr(1000), true},
		{"typical reading", ptr(17.4), true},
		{"negative", ptr(-0.1), false},
		{"above range", ptr(1000.5), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidPM25(tt.value))
		})
	}
}

func TestValidAQI(t *testing.T) {
	tests := []struct {
		name     string
		value    *float64
		expected bool
	}{
		{"nil is valid", nil, true},
		{"zero boundary", ptr(0), true},
		{"upper boundary", ptr(500), true},
		{"negative", ptr(-1), false},
		{"above range", ptr(501), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidAQI(tt.value))
		})
	}
}

func TestFlagValidity(t *testing.T) {
	t.Run("both fields valid", func(t *testing.T) {
		rec := FlagValidity(HourlyRecord{PM25: ptr(12), AQI: ptr(50)})

		assert.True(t, rec.PM25Valid)
		assert.True(t, rec.AQIValid)
		assert.True(t, rec.RecordValid)
	})

	t.Run("one bad field invalidates the record", func(t *testing.T) {
		rec := FlagValidity(HourlyRecord{PM25: ptr(2000), AQI: ptr(50)})

		assert.False(t, rec.PM25Valid)
		assert.True(t, rec.AQIValid)
		assert.False(t, rec.RecordValid)
	})

	t.Run("missing readings are valid", func(t *testing.T) {
		rec := FlagValidity(HourlyRecord{})

		assert.True(t, rec.RecordValid)
	})
}

func TestExceedsGuideline(t *testing.T) {
	tests := []struct {
		name     string
		value    *float64
		expected bool
	}{
		{"above guideline", ptr(15.1), true},
		{"exactly at guideline", ptr(15), false},
		{"below guideline", ptr(14.9), false},
		{"nil never exceeds", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExceedsGuideline(tt.value, 15.0))
		})
	}
}
