package events

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sentinel-labs/fraud-monitor/internal/domain/transaction"
	"github.com/sentinel-labs/fraud-monitor/internal/metrics"
)

// Handler receives live transaction events one at a time, in arrival order
type Handler func(transaction.Event)

// LiveConfig configures the live stream connection
type LiveConfig struct {
	URL string
	// HandshakeTimeout bounds the websocket dial and the wait for the
	// server's open packet. Afterwards the server's heartbeat governs.
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	MaxMessageSize   int64
	MaxBackoff       time.Duration
}

// DefaultLiveConfig returns the default live stream configuration
func DefaultLiveConfig(url string) LiveConfig {
	return LiveConfig{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		MaxMessageSize:   1024 * 1024, // 1MB
		MaxBackoff:       30 * time.Second,
	}
}

// LiveChannel subscribes to the backend's Socket.IO transaction stream and
// reconnects with exponential backoff when the session drops.
type LiveChannel struct {
	config  LiveConfig
	dialer  *websocket.Dialer
	logger  *zap.Logger
	metrics *metrics.Registry

	mu      sync.Mutex
	conn    *websocket.Conn
	closed  bool
	started bool
	cancel  context.CancelFunc

	connected atomic.Bool
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewLiveChannel creates a channel; nothing is dialed until Start
func NewLiveChannel(config LiveConfig, logger *zap.Logger, m *metrics.Registry) *LiveChannel {
	return &LiveChannel{
		config: config,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.HandshakeTimeout,
		},
		logger:  logger.Named("live"),
		metrics: m,
	}
}

// Start connects in the background and delivers every transaction_update
// to handler until ctx is done or Close is called.
func (c *LiveChannel) Start(ctx context.Context, handler Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("live channel closed")
	}
	if c.started {
		return fmt.Errorf("live channel already started")
	}
	c.started = true

	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.run(ctx, handler)
	return nil
}

// Connected reports whether the namespace connection is established
func (c *LiveChannel) Connected() bool {
	return c.connected.Load()
}

func (c *LiveChannel) newBackOff() *backoff.ExponentialBackOff {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 0
	if c.config.MaxBackoff > 0 {
		policy.MaxInterval = c.config.MaxBackoff
	}
	return policy
}

func (c *LiveChannel) run(ctx context.Context, handler Handler) {
	defer c.wg.Done()

	retry := backoff.WithContext(c.newBackOff(), ctx)
	// sessions that end before the namespace is joined back off too, so a
	// refusing server is not redialed in a tight loop
	session := c.newBackOff()

	for {
		var conn *websocket.Conn
		err := backoff.RetryNotify(func() error {
			var dialErr error
			conn, dialErr = c.dial(ctx)
			return dialErr
		}, retry, func(err error, wait time.Duration) {
			c.metrics.RecordReconnect()
			c.logger.Warn("live stream unavailable, retrying",
				zap.String("url", c.config.URL),
				zap.Duration("retry_in", wait),
				zap.Error(err))
		})
		if err != nil {
			// only a cancelled context stops the retries
			return
		}

		if !c.attach(conn) {
			return
		}

		stop := context.AfterFunc(ctx, func() { conn.Close() })
		joined, err := c.readLoop(ctx, conn, handler)
		stop()
		c.detach(conn)

		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("live stream disconnected", zap.Bool("joined", joined), zap.Error(err))
		c.metrics.RecordReconnect()

		if joined {
			session.Reset()
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(session.NextBackOff()):
		}
	}
}

func (c *LiveChannel) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.config.URL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", c.config.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", c.config.URL, err)
	}
	return conn, nil
}

// attach publishes conn as the current connection. It closes conn and
// returns false if the channel was closed meanwhile.
func (c *LiveChannel) attach(conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		conn.Close()
		return false
	}
	c.conn = conn
	return true
}

// markJoined flips the channel to connected once the namespace is joined
func (c *LiveChannel) markJoined(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		return
	}
	c.metrics.SetLiveConnected(true)
	c.connected.Store(true)
}

// detach closes conn unless Close already did
func (c *LiveChannel) detach(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		return
	}
	c.conn = nil
	c.connected.Store(false)
	c.metrics.SetLiveConnected(false)
	conn.Close()
}

// readLoop runs one Socket.IO session: it answers the open packet by
// joining the default namespace, answers heartbeats and hands every
// transaction_update to handler. It reports whether the namespace was
// joined and why the session ended.
func (c *LiveChannel) readLoop(ctx context.Context, conn *websocket.Conn, handler Handler) (bool, error) {
	if c.config.MaxMessageSize > 0 {
		conn.SetReadLimit(c.config.MaxMessageSize)
	}

	joined := false
	readTimeout := c.config.HandshakeTimeout
	for {
		if readTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(readTimeout))
		}
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return joined, err
		}
		if ctx.Err() != nil {
			return joined, ctx.Err()
		}
		if msgType != websocket.TextMessage {
			continue
		}

		frame, err := ParseFrame(data)
		if err != nil {
			c.metrics.RecordMalformed()
			c.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}

		switch frame.Kind {
		case FrameOpen:
			if t := frame.Handshake.ReadTimeout(); t > 0 {
				readTimeout = t
			}
			if err := c.write(conn, ConnectPacket); err != nil {
				return joined, err
			}
		case FramePing:
			if err := c.write(conn, PongPacket); err != nil {
				return joined, err
			}
		case FrameConnected:
			joined = true
			c.markJoined(conn)
			c.logger.Info("live stream connected", zap.String("url", c.config.URL))
		case FrameConnectError:
			return joined, fmt.Errorf("namespace connect refused: %s", frame.Reason)
		case FrameDisconnect:
			return joined, fmt.Errorf("server left the namespace")
		case FrameClose:
			return joined, fmt.Errorf("server closed the session")
		case FrameEvent:
			c.metrics.RecordEvent(frame.Event)
			if frame.Event != transaction.EventTransactionUpdate {
				c.logger.Debug("ignoring live event", zap.String("event", frame.Event))
				continue
			}
			event, err := frame.TransactionUpdate()
			if err != nil {
				c.metrics.RecordMalformed()
				c.logger.Warn("dropping malformed transaction_update", zap.Error(err))
				continue
			}
			handler(event)
		}
	}
}

// write sends one packet. Only the session's read loop writes data frames.
func (c *LiveChannel) write(conn *websocket.Conn, packet []byte) error {
	if c.config.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	}
	return conn.WriteMessage(websocket.TextMessage, packet)
}

// Close stops reconnecting, closes the current connection and waits for
// the reader to exit. The handler is never invoked after Close returns.
func (c *LiveChannel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		if c.cancel != nil {
			c.cancel()
		}
		conn := c.conn
		c.conn = nil
		c.mu.Unlock()

		if conn != nil {
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			conn.Close()
		}

		c.wg.Wait()
		c.connected.Store(false)
		c.metrics.SetLiveConnected(false)
	})
	return nil
}
