// Package heatmap keeps the periodically refreshed fraud hotspot overlay.
package heatmap

import (
	"math"

	"github.com/sentinel-labs/fraud-monitor/internal/domain/hotspot"
	"github.com/sentinel-labs/fraud-monitor/internal/domain/transaction"
)

// Overlay colors, hottest first
const (
	ColorCritical = "red"
	ColorHigh     = "orangered"
	ColorMedium   = "darkorange"
	ColorLow      = "gold"
	ColorMinimal  = "yellow"
)

// MinRadius keeps faint hotspots visible
const MinRadius = 10.0

// Cell is one rendered hotspot
type Cell struct {
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	City       string  `json:"city,omitempty"`
	Country    string  `json:"country,omitempty"`
	FraudCount int64   `json:"fraud_count"`
	Intensity  float64 `json:"intensity"`
	Color      string  `json:"color"`
	Radius     float64 `json:"radius"`
}

// Intensity normalizes an average risk score into [0, 1]
func Intensity(avgRisk float64) float64 {
	return transaction.ClampUnit(math.Min(avgRisk, 1))
}

// Color maps an intensity onto the overlay ladder
func Color(intensity float64) string {
	intensity = transaction.ClampUnit(intensity)
	switch {
	case intensity >= 0.8:
		return ColorCritical
	case intensity >= 0.6:
		return ColorHigh
	case intensity >= 0.4:
		return ColorMedium
	case intensity >= 0.2:
		return ColorLow
	default:
		return ColorMinimal
	}
}

func Radius(intensity float64) float64 {
	return math.Max(transaction.ClampUnit(intensity)*50, MinRadius)
}

// Overlay derives cells from aggregates, skipping those whose coordinates
// are missing or out of range.
func Overlay(aggregates []hotspot.Aggregate) []Cell {
	cells := make([]Cell, 0, len(aggregates))
	for _, a := range aggregates {
		lat, lng, ok := a.Point()
		if !ok {
			continue
		}
		intensity := Intensity(a.AvgRiskScore)
		cells = append(cells, Cell{
			Lat:        lat,
			Lng:        lng,
			City:       a.Key.City,
			Country:    a.Key.Country,
			FraudCount: a.FraudCount,
			Intensity:  intensity,
			Color:      Color(intensity),
			Radius:     Radius(intensity),
		})
	}
	return cells
}
