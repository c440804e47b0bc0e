package rest

import (
	"time"

	"github.com/sentinel-labs/fraud-monitor/internal/service/alerting"
	"github.com/sentinel-labs/fraud-monitor/internal/service/georisk"
	"github.com/sentinel-labs/fraud-monitor/internal/service/heatmap"
)

// ResponseEnvelope wraps every JSON response of the view API
type ResponseEnvelope struct {
	Success bool           `json:"success"`
	Data    interface{}    `json:"data,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
	Meta    ResponseMeta   `json:"meta"`
}

// ResponseMeta contains response metadata
type ResponseMeta struct {
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// ErrorResponse provides error details
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Type      string `json:"type,omitempty"`
	Retryable bool   `json:"retryable"`
	TraceID   string `json:"trace_id,omitempty"`
}

// AlertsResponse lists the current alerts
type AlertsResponse struct {
	Alerts []alerting.Entry `json:"alerts"`
	Count  int              `json:"count"`
}

// MarkersResponse lists the geo risk markers for the current history
type MarkersResponse struct {
	Markers []georisk.Marker `json:"markers"`
	Count   int              `json:"count"`
}

// RefreshResponse reports a manual refresh
type RefreshResponse struct {
	Version     uint64        `json:"version"`
	RefreshedAt time.Time     `json:"refreshed_at"`
	Heatmap     heatmap.State `json:"heatmap"`
}

// HealthResponse is served by the health endpoint
type HealthResponse struct {
	Status        string    `json:"status"`
	Service       string    `json:"service"`
	Version       string    `json:"version"`
	LiveConnected bool      `json:"live_connected"`
	Subscribers   int       `json:"subscribers"`
	Uptime        string    `json:"uptime"`
	Timestamp     time.Time `json:"timestamp"`
}
