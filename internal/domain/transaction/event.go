package transaction

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/sentinel-labs/fraud-monitor/internal/domain/values"
)

// EventTransactionUpdate is the live stream event name carrying one Event
const EventTransactionUpdate = "transaction_update"

// Location is where a transaction originated
type Location struct {
	Lat     values.Coordinate `json:"lat"`
	Lng     values.Coordinate `json:"lng"`
	City    string            `json:"city,omitempty"`
	Country string            `json:"country,omitempty"`
}

// Point returns validated coordinates
func (l Location) Point() (lat, lng float64, ok bool) {
	return values.GeoPoint(l.Lat, l.Lng)
}

// Event is one analysed transaction as pushed by the backend. Events are
// treated as immutable once decoded.
type Event struct {
	ID              string          `json:"transaction_id"`
	Timestamp       Timestamp       `json:"timestamp"`
	Amount          decimal.Decimal `json:"amount"`
	Location        *Location       `json:"location,omitempty"`
	RiskScore       float64         `json:"risk_score"`
	ConfidenceScore float64         `json:"confidence_score"`
	Action          Action          `json:"action"`
	Merchant        string          `json:"merchant,omitempty"`
	Flags           []string        `json:"flags,omitempty"`
}

// Point returns the event's validated coordinates, if any
func (e Event) Point() (lat, lng float64, ok bool) {
	if e.Location == nil {
		return 0, 0, false
	}
	return e.Location.Point()
}

// analysisResult is the nested decision block found on stored documents
// returned by the dashboard endpoint.
type analysisResult struct {
	RiskScore       *float64 `json:"risk_score"`
	ConfidenceScore *float64 `json:"confidence_score"`
	Action          *Action  `json:"action"`
	Flags           []string `json:"flags"`
}

// UnmarshalJSON accepts both the flat live-event shape and the stored
// document shape where the decision lives under "analysis_result".
// Top-level fields win when both are present.
func (e *Event) UnmarshalJSON(data []byte) error {
	type plain Event
	var raw struct {
		plain
		RiskScore       *float64        `json:"risk_score"`
		ConfidenceScore *float64        `json:"confidence_score"`
		Action          *Action         `json:"action"`
		Flags           []string        `json:"flags"`
		Analysis        *analysisResult `json:"analysis_result"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*e = Event(raw.plain)
	analysis := raw.Analysis
	if analysis == nil {
		analysis = &analysisResult{}
	}

	e.RiskScore = firstFloat(raw.RiskScore, analysis.RiskScore)
	e.ConfidenceScore = firstFloat(raw.ConfidenceScore, analysis.ConfidenceScore)
	switch {
	case raw.Action != nil:
		e.Action = *raw.Action
	case analysis.Action != nil:
		e.Action = *analysis.Action
	}
	e.Flags = raw.Flags
	if e.Flags == nil {
		e.Flags = analysis.Flags
	}
	return nil
}

func firstFloat(candidates ...*float64) float64 {
	for _, c := range candidates {
		if c != nil {
			return *c
		}
	}
	return 0
}
