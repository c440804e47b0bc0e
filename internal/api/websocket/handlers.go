package websocket

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handler serves the browser snapshot stream
type Handler struct {
	logger   *zap.Logger
	hub      *SnapshotHub
	upgrader websocket.Upgrader
}

// NewHandler creates a handler accepting connections from allowedOrigins.
// "*" allows any origin.
func NewHandler(hub *SnapshotHub, allowedOrigins []string, logger *zap.Logger) *Handler {
	return &Handler{
		logger: logger.Named("ws"),
		hub:    hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		// same-origin requests are always accepted
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// HandleSnapshots upgrades the request and streams snapshots to the client
func (h *Handler) HandleSnapshots(w http.ResponseWriter, r *http.Request) {
	if !h.hub.Running() {
		http.Error(w, "snapshot stream is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade WebSocket connection",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr))
		return
	}

	client := NewClient(conn, h.hub)
	if !h.hub.RegisterClient(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()

	h.logger.Debug("New WebSocket connection established",
		zap.String("client_id", client.ID.String()),
		zap.String("remote_addr", r.RemoteAddr))
}
