// Package georisk turns recent transactions into map markers sized by
// amount and colored by risk.
package georisk

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/sentinel-labs/fraud-monitor/internal/domain/transaction"
)

// Marker colors, highest risk first
const (
	ColorCritical = "#F44336"
	ColorHigh     = "#FF9800"
	ColorMedium   = "#FFC107"
	ColorLow      = "#4CAF50"
)

const (
	MinRadius = 5.0
	MaxRadius = 50.0
)

// Marker describes one circle drawn on the risk map
type Marker struct {
	TransactionID string          `json:"transaction_id"`
	Lat           float64         `json:"lat"`
	Lng           float64         `json:"lng"`
	Radius        float64         `json:"radius"`
	Color         string          `json:"color"`
	Amount        decimal.Decimal `json:"amount"`
	Merchant      string          `json:"merchant,omitempty"`
	City          string          `json:"city,omitempty"`
	Country       string          `json:"country,omitempty"`
	Action        string          `json:"action"`
	RiskScore     float64         `json:"risk_score"`
	RiskLevel     string          `json:"risk_level"`
}

// Color picks the marker color for a risk score
func Color(risk float64) string {
	risk = transaction.ClampUnit(risk)
	switch {
	case risk >= 0.8:
		return ColorCritical
	case risk >= 0.5:
		return ColorHigh
	case risk >= 0.3:
		return ColorMedium
	default:
		return ColorLow
	}
}

// Radius grows logarithmically with amount and linearly with risk, bounded
// to [MinRadius, MaxRadius].
func Radius(amount decimal.Decimal, risk float64) float64 {
	a := amount.InexactFloat64()
	if a < 0 || math.IsNaN(a) {
		a = 0
	}
	risk = transaction.ClampUnit(risk)

	r := math.Log(a+1) * 2 * (risk*2 + 1)
	switch {
	case math.IsNaN(r) || r < MinRadius:
		return MinRadius
	case r > MaxRadius:
		return MaxRadius
	default:
		return r
	}
}

// Markers derives one marker per event with usable coordinates, keeping
// the input order. Events without a valid location are skipped.
func Markers(events []transaction.Event) []Marker {
	markers := make([]Marker, 0, len(events))
	for _, e := range events {
		lat, lng, ok := e.Point()
		if !ok {
			continue
		}

		m := Marker{
			TransactionID: e.ID,
			Lat:           lat,
			Lng:           lng,
			Radius:        Radius(e.Amount, e.RiskScore),
			Color:         Color(e.RiskScore),
			Amount:        e.Amount,
			Merchant:      e.Merchant,
			Action:        e.Action.String(),
			RiskScore:     e.RiskScore,
			RiskLevel:     transaction.RiskLevel(e.RiskScore),
		}
		if e.Location != nil {
			m.City = e.Location.City
			m.Country = e.Location.Country
		}
		markers = append(markers, m)
	}
	return markers
}
