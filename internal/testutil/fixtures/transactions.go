package fixtures

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sentinel-labs/fraud-monitor/internal/domain/hotspot"
	"github.com/sentinel-labs/fraud-monitor/internal/domain/transaction"
	"github.com/sentinel-labs/fraud-monitor/internal/domain/values"
)

// EventBuilder builds test transaction events
type EventBuilder struct {
	event transaction.Event
}

// NewEventBuilder creates an approved, unlocated $100 event
func NewEventBuilder(id string) *EventBuilder {
	return &EventBuilder{event: transaction.Event{
		ID:              id,
		Timestamp:       transaction.NewTimestamp(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)),
		Amount:          decimal.NewFromInt(100),
		RiskScore:       0.1,
		ConfidenceScore: 0.9,
		Action:          transaction.ActionApprove,
	}}
}

// WithAmount sets the amount from a decimal string
func (b *EventBuilder) WithAmount(amount string) *EventBuilder {
	b.event.Amount = decimal.RequireFromString(amount)
	return b
}

// WithDecision sets action and risk score together
func (b *EventBuilder) WithDecision(action transaction.Action, risk float64) *EventBuilder {
	b.event.Action = action
	b.event.RiskScore = risk
	return b
}

// WithLocation places the event
func (b *EventBuilder) WithLocation(lat, lng float64, city, country string) *EventBuilder {
	b.event.Location = &transaction.Location{
		Lat:     values.NewCoordinate(lat),
		Lng:     values.NewCoordinate(lng),
		City:    city,
		Country: country,
	}
	return b
}

// WithMerchant sets the merchant
func (b *EventBuilder) WithMerchant(merchant string) *EventBuilder {
	b.event.Merchant = merchant
	return b
}

// Build returns the event
func (b *EventBuilder) Build() transaction.Event {
	return b.event
}

// Hotspot builds a located heat map aggregate
func Hotspot(lat, lng float64, city string, count int64, avgRisk float64) hotspot.Aggregate {
	return hotspot.Aggregate{
		Key: hotspot.Key{
			Lat:  values.NewCoordinate(lat),
			Lng:  values.NewCoordinate(lng),
			City: city,
		},
		FraudCount:   count,
		AvgRiskScore: avgRisk,
	}
}
