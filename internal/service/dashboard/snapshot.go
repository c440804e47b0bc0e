package dashboard

import (
	"time"

	"github.com/sentinel-labs/fraud-monitor/internal/domain/transaction"
	apperrors "github.com/sentinel-labs/fraud-monitor/internal/errors"
	"github.com/sentinel-labs/fraud-monitor/internal/service/alerting"
)

// Snapshot is an immutable copy of the dashboard view. Every applied change
// publishes a new Snapshot with a higher Version.
type Snapshot struct {
	Version     uint64              `json:"version"`
	History     []transaction.Event `json:"history"`
	Stats       transaction.Stats   `json:"stats"`
	FraudRate   float64             `json:"fraud_rate"`
	Alerts      []alerting.Entry    `json:"alerts"`
	LastError   *apperrors.AppError `json:"last_error,omitempty"`
	RefreshedAt time.Time           `json:"refreshed_at"`
}
