package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/sentinel-labs/fraud-monitor/internal/errors"
	"github.com/sentinel-labs/fraud-monitor/internal/service/dashboard"
	"github.com/sentinel-labs/fraud-monitor/internal/service/georisk"
	"github.com/sentinel-labs/fraud-monitor/internal/service/heatmap"
)

// DashboardService is the dashboard state the API reads and commands
type DashboardService interface {
	View() dashboard.Snapshot
	Refresh(ctx context.Context) error
	Dismiss(ctx context.Context, id string) (bool, error)
	ClearAlerts(ctx context.Context) error
}

// HeatmapService is the heat map overlay
type HeatmapService interface {
	State() heatmap.State
	Refresh(ctx context.Context) error
}

// StatusProvider reports connectivity for the health endpoint
type StatusProvider interface {
	Connected() bool
}

// Handler serves the view API
type Handler struct {
	dashboard   DashboardService
	heatmap     HeatmapService
	live        StatusProvider
	subscribers func() int
	logger      *zap.Logger
	version     string
	startedAt   time.Time
}

// NewHandler creates the view API handler. live and subscribers may be nil.
func NewHandler(d DashboardService, h HeatmapService, live StatusProvider, subscribers func() int, version string, logger *zap.Logger) *Handler {
	return &Handler{
		dashboard:   d,
		heatmap:     h,
		live:        live,
		subscribers: subscribers,
		logger:      logger.Named("api"),
		version:     version,
		startedAt:   time.Now(),
	}
}

// Health reports liveness and live stream connectivity. The service is
// healthy while disconnected; the stream reconnects on its own.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Service:   "fraud-monitor",
		Version:   h.version,
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
	}
	if h.live != nil {
		resp.LiveConnected = h.live.Connected()
		if !resp.LiveConnected {
			resp.Status = "degraded"
		}
	}
	if h.subscribers != nil {
		resp.Subscribers = h.subscribers()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Snapshot returns history, stats, fraud rate, alerts and the last refresh error
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, r, http.StatusOK, h.dashboard.View())
}

func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := h.dashboard.View().Alerts
	writeSuccess(w, r, http.StatusOK, AlertsResponse{Alerts: alerts, Count: len(alerts)})
}

// DismissAlert removes one alert
func (h *Handler) DismissAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	removed, err := h.dashboard.Dismiss(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if !removed {
		writeError(w, r, h.logger, apperrors.NewNotFoundError("alert"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearAlerts dismisses every alert
func (h *Handler) ClearAlerts(w http.ResponseWriter, r *http.Request) {
	if err := h.dashboard.ClearAlerts(r.Context()); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Markers returns geo risk markers for the transactions in the history
func (h *Handler) Markers(w http.ResponseWriter, r *http.Request) {
	markers := georisk.Markers(h.dashboard.View().History)
	writeSuccess(w, r, http.StatusOK, MarkersResponse{Markers: markers, Count: len(markers)})
}

func (h *Handler) Heatmap(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, r, http.StatusOK, h.heatmap.State())
}

// Refresh refetches the dashboard and the heat map. A dashboard failure is
// returned to the caller; a heat map failure is reported in its state.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.dashboard.Refresh(r.Context()); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.heatmap.Refresh(r.Context()); err != nil {
		h.logger.Debug("heat map refresh failed during manual refresh", zap.Error(err))
	}

	snap := h.dashboard.View()
	writeSuccess(w, r, http.StatusOK, RefreshResponse{
		Version:     snap.Version,
		RefreshedAt: snap.RefreshedAt,
		Heatmap:     h.heatmap.State(),
	})
}
