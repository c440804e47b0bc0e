package heatmap

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-labs/fraud-monitor/internal/domain/hotspot"
	"github.com/sentinel-labs/fraud-monitor/internal/domain/values"
	"github.com/sentinel-labs/fraud-monitor/internal/testutil/fixtures"
)

func aggregate(city string, lat, lng float64, avg float64) hotspot.Aggregate {
	return fixtures.Hotspot(lat, lng, city, 7, avg)
}

func TestColor(t *testing.T) {
	tests := []struct {
		intensity float64
		want      string
	}{
		{0.85, ColorCritical},
		{0.8, ColorCritical},
		{0.65, ColorHigh},
		{0.45, ColorMedium},
		{0.25, ColorLow},
		{0.15, ColorMinimal},
		{-1, ColorMinimal},
		{2, ColorCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Color(tt.intensity), "intensity %v", tt.intensity)
	}
}

func TestIntensityAndRadius(t *testing.T) {
	assert.Equal(t, 1.0, Intensity(3.2))
	assert.Equal(t, 0.0, Intensity(-0.4))
	assert.Equal(t, 0.0, Intensity(math.NaN()))
	assert.Equal(t, 0.5, Intensity(0.5))

	assert.Equal(t, MinRadius, Radius(0))
	assert.Equal(t, MinRadius, Radius(0.1))
	assert.Equal(t, 25.0, Radius(0.5))
	assert.Equal(t, 50.0, Radius(1.7))
}

func TestOverlay(t *testing.T) {
	nullLat := aggregate("Nowhere", 0, 10, 0.9)
	nullLat.Key.Lat = values.Coordinate{}

	cells := Overlay([]hotspot.Aggregate{
		aggregate("Lagos", 6.5, 3.4, 0.85),
		nullLat,
		aggregate("Oslo", 59.9, 10.7, 0.15),
	})

	require.Len(t, cells, 2)
	assert.Equal(t, "Lagos", cells[0].City)
	assert.Equal(t, ColorCritical, cells[0].Color)
	assert.InDelta(t, 42.5, cells[0].Radius, 1e-9)
	assert.Equal(t, int64(7), cells[0].FraudCount)

	assert.Equal(t, "Oslo", cells[1].City)
	assert.Equal(t, ColorMinimal, cells[1].Color)
	assert.Equal(t, MinRadius, cells[1].Radius)
}
