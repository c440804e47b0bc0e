package hotspot

import (
	"github.com/sentinel-labs/fraud-monitor/internal/domain/values"
)

// Key groups fraud events by place
type Key struct {
	Lat     values.Coordinate `json:"lat"`
	Lng     values.Coordinate `json:"lng"`
	City    string            `json:"city"`
	Country string            `json:"country"`
}

// Aggregate is a pre-aggregated hotspot as returned by the heat map endpoint.
// Aggregates are never mutated; each refresh replaces the whole set.
type Aggregate struct {
	Key          Key     `json:"_id"`
	FraudCount   int64   `json:"fraud_count"`
	AvgRiskScore float64 `json:"avg_risk_score"`
}

// Point returns the aggregate's validated coordinates
func (a Aggregate) Point() (lat, lng float64, ok bool) {
	return values.GeoPoint(a.Key.Lat, a.Key.Lng)
}
