package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sentinel-labs/fraud-monitor/internal/metrics"
	"github.com/sentinel-labs/fraud-monitor/internal/service/dashboard"
)

// MessageType identifies a message pushed to browser clients
type MessageType string

const (
	MessageConnected MessageType = "connection.established"
	MessageSnapshot  MessageType = "snapshot"
	MessagePong      MessageType = "pong"
)

const (
	sendBufferSize = 16
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxClientFrame = 512
)

// Message is one frame sent to a browser client
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// SnapshotSource publishes dashboard snapshots and change notifications
type SnapshotSource interface {
	View() dashboard.Snapshot
	Subscribe() (<-chan struct{}, func())
}

// SnapshotHub pushes the dashboard snapshot to every connected browser
// whenever it changes.
type SnapshotHub struct {
	logger       *zap.Logger
	metrics      *metrics.Registry
	source       SnapshotSource
	pingInterval time.Duration

	clients     map[uuid.UUID]*Client
	clientsLock sync.RWMutex
	register    chan *Client
	unregister  chan *Client
	done        chan struct{}
	stopOnce    sync.Once
}

// Client is one browser connection
type Client struct {
	ID          uuid.UUID
	conn        *websocket.Conn
	send        chan *Message
	hub         *SnapshotHub
	connectedAt time.Time

	// gorilla connections support one concurrent writer
	writeMu sync.Mutex
}

// NewSnapshotHub creates a hub fed by source
func NewSnapshotHub(source SnapshotSource, logger *zap.Logger, m *metrics.Registry) *SnapshotHub {
	return &SnapshotHub{
		logger:       logger.Named("ws"),
		metrics:      m,
		source:       source,
		pingInterval: 30 * time.Second,
		clients:      make(map[uuid.UUID]*Client),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		done:         make(chan struct{}),
	}
}

// Run starts the hub loop. It returns when ctx is done or Stop is called.
func (h *SnapshotHub) Run(ctx context.Context) {
	updates, unsubscribe := h.source.Subscribe()
	defer unsubscribe()

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	defer h.shutdown()
	defer h.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case <-updates:
			h.broadcast(h.snapshotMessage())
		case <-ticker.C:
			h.pingClients()
		}
	}
}

// Stop shuts the hub down and disconnects every client
func (h *SnapshotHub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Running reports whether the hub loop still accepts clients
func (h *SnapshotHub) Running() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// ClientCount returns the number of connected clients
func (h *SnapshotHub) ClientCount() int {
	h.clientsLock.RLock()
	defer h.clientsLock.RUnlock()
	return len(h.clients)
}

// RegisterClient hands a new client to the hub loop
func (h *SnapshotHub) RegisterClient(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// UnregisterClient removes a client; safe to call after Stop
func (h *SnapshotHub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *SnapshotHub) snapshotMessage() *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      MessageSnapshot,
		Timestamp: time.Now().UTC(),
		Data:      h.source.View(),
	}
}

func (h *SnapshotHub) registerClient(client *Client) {
	h.clientsLock.Lock()
	h.clients[client.ID] = client
	h.clientsLock.Unlock()
	h.metrics.AddSubscribers(1)

	h.logger.Info("WebSocket client registered", zap.String("client_id", client.ID.String()))

	welcome := &Message{
		ID:        uuid.New().String(),
		Type:      MessageConnected,
		Timestamp: time.Now().UTC(),
		Data: map[string]interface{}{
			"client_id": client.ID.String(),
			"message":   "Connected to fraud dashboard stream",
		},
	}
	client.enqueue(welcome)
	client.enqueue(h.snapshotMessage())
}

func (h *SnapshotHub) unregisterClient(client *Client) {
	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()

	if _, exists := h.clients[client.ID]; exists {
		delete(h.clients, client.ID)
		close(client.send)
		h.metrics.AddSubscribers(-1)
		h.logger.Info("WebSocket client unregistered", zap.String("client_id", client.ID.String()))
	}
}

func (h *SnapshotHub) broadcast(msg *Message) {
	h.clientsLock.RLock()
	var slow []*Client
	for _, client := range h.clients {
		if !client.enqueue(msg) {
			slow = append(slow, client)
		}
	}
	h.clientsLock.RUnlock()

	for _, client := range slow {
		h.logger.Warn("Client send buffer full, dropping connection",
			zap.String("client_id", client.ID.String()))
		h.unregisterClient(client)
	}
}

func (h *SnapshotHub) pingClients() {
	h.clientsLock.RLock()
	var failed []*Client
	for _, client := range h.clients {
		if err := client.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
			h.logger.Debug("Failed to ping client",
				zap.String("client_id", client.ID.String()),
				zap.Error(err))
			failed = append(failed, client)
		}
	}
	h.clientsLock.RUnlock()

	for _, client := range failed {
		h.unregisterClient(client)
	}
}

func (h *SnapshotHub) shutdown() {
	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()

	for _, client := range h.clients {
		close(client.send)
		h.metrics.AddSubscribers(-1)
	}
	h.clients = make(map[uuid.UUID]*Client)
}

// NewClient wraps an upgraded connection
func NewClient(conn *websocket.Conn, hub *SnapshotHub) *Client {
	return &Client{
		ID:          uuid.New(),
		conn:        conn,
		send:        make(chan *Message, sendBufferSize),
		hub:         hub,
		connectedAt: time.Now(),
	}
}

// enqueue must be called from the hub loop, which owns client.send
func (c *Client) enqueue(msg *Message) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// ReadPump consumes client frames until the connection fails. Clients may
// send {"type":"ping"} and get a pong message back.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxClientFrame)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("WebSocket read error",
					zap.String("client_id", c.ID.String()),
					zap.Error(err))
			}
			return
		}

		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			// written directly; send is owned by the hub loop
			_ = c.writeJSON(&Message{ID: uuid.New().String(), Type: MessagePong, Timestamp: time.Now().UTC()})
		}
	}
}

// WritePump writes queued messages until the hub closes the send channel
func (c *Client) WritePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.writeJSON(msg); err != nil {
			return
		}
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
}

func (c *Client) writeJSON(msg *Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}
