package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wadatrip/farewatch/internal/store"
)

// Reconnection constants
const (
	InitialBackoff = 1 * time.Second
	MaxBackoff     = 60 * time.Second
	BackoffFactor  = 2.0
	JitterPercent  = 0.2

	// Heartbeat constants
	HeartbeatTimeout = 60 * time.Second
	PongTimeout      = 10 * time.Second

	// Write timeout
	WriteTimeout = 10 * time.Second
)

// SubscriptionMessage asks the feed for quotes on a set of routes.
type SubscriptionMessage struct {
	Type   string   `json:"type"`
	Routes []string `json:"routes"`
}

// Listener manages the WebSocket connection to the live quote feed.
type Listener struct {
	url       string
	quoteChan chan<- store.Quote
	conn      *websocket.Conn
	connMu    sync.Mutex
	backoff   time.Duration
	lastMsg   time.Time
	lastMsgMu sync.RWMutex
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	routes    []string
	routesMu  sync.RWMutex
	onStatus  func(string)
}

// Connection states passed to the status handler.
const (
	StatusConnecting   = "connecting"
	StatusConnected    = "connected"
	StatusReconnecting = "reconnecting"
	StatusStopped      = "stopped"
)

// NewListener creates a new WebSocket listener.
func NewListener(url string, quoteChan chan<- store.Quote) *Listener {
	return &Listener{
		url:       url,
		quoteChan: quoteChan,
		backoff:   InitialBackoff,
		stopChan:  make(chan struct{}),
		routes:    []string{},
	}
}

// SetRoutes replaces the subscribed route keys. When connected and the set
// changed, a new subscription is sent immediately.
func (l *Listener) SetRoutes(routes []string) {
	l.routesMu.Lock()
	changed := !slices.Equal(l.routes, routes)
	l.routes = routes
	l.routesMu.Unlock()

	if !changed {
		return
	}
	l.connMu.Lock()
	connected := l.conn != nil
	l.connMu.Unlock()
	if connected {
		if err := l.subscribe(); err != nil {
			slog.Warn("ws_resubscribe_failed", "error", err)
		}
	}
}

// SetStatusHandler registers f to receive connection state changes. Call before Start.
func (l *Listener) SetStatusHandler(f func(status string)) {
	l.onStatus = f
}

func (l *Listener) setStatus(status string) {
	if l.onStatus != nil {
		l.onStatus(status)
	}
}

// Start begins the WebSocket listener with automatic reconnection.
func (l *Listener) Start(ctx context.Context) {
	l.setStatus(StatusConnecting)

	l.wg.Add(1)
	go l.runLoop(ctx)

	l.wg.Add(1)
	go l.heartbeatMonitor(ctx)
}

// Stop gracefully shuts down the listener.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() { close(l.stopChan) })
	l.closeConnection()
	l.wg.Wait()
	l.setStatus(StatusStopped)
}

// runLoop handles connection, reading, and reconnection.
func (l *Listener) runLoop(ctx context.Context) {
	defer l.wg.Done()

	for {
		select {
		case <-ctx.Done():
			slog.Info("ws_loop_stopping", "reason", "context cancelled")
			return
		case <-l.stopChan:
			slog.Info("ws_loop_stopping", "reason", "stop signal")
			return
		default:
		}

		if err := l.connect(ctx); err != nil {
			slog.Error("ws_connect_failed", "error", err, "backoff", l.backoff)
			l.setStatus(StatusReconnecting)
			l.waitBackoff(ctx)
			continue
		}

		// Read messages until error
		if err := l.readLoop(ctx); err != nil {
			slog.Warn("ws_read_error", "error", err)
		}

		l.closeConnection()

		select {
		case <-ctx.Done():
			return
		case <-l.stopChan:
			return
		default:
			l.setStatus(StatusReconnecting)
			l.waitBackoff(ctx)
		}
	}
}

// connect establishes the WebSocket connection and subscribes to routes.
func (l *Listener) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, resp, err := dialer.DialContext(ctx, l.url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial failed: %w", err)
	}

	l.connMu.Lock()
	l.conn = conn
	l.connMu.Unlock()

	// Reset backoff on successful connection
	l.backoff = InitialBackoff

	slog.Info("ws_connected", "endpoint", l.url)

	if err := l.subscribe(); err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}
	l.setStatus(StatusConnected)

	l.updateLastMsg()
	return nil
}

// subscribe sends the current route set.
func (l *Listener) subscribe() error {
	l.routesMu.RLock()
	msg := SubscriptionMessage{Type: "subscribe", Routes: l.routes}
	l.routesMu.RUnlock()

	l.connMu.Lock()
	defer l.connMu.Unlock()

	if l.conn == nil {
		return fmt.Errorf("connection is nil")
	}

	l.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	if err := l.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send subscribe message: %w", err)
	}

	slog.Info("ws_subscribed", "route_count", len(msg.Routes))
	return nil
}

// readLoop reads messages from the WebSocket.
func (l *Listener) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stopChan:
			return nil
		default:
		}

		l.connMu.Lock()
		conn := l.conn
		l.connMu.Unlock()

		if conn == nil {
			return fmt.Errorf("connection is nil")
		}

		conn.SetReadDeadline(time.Now().Add(HeartbeatTimeout + PongTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read error: %w", err)
		}

		l.updateLastMsg()
		l.handleMessage(message)
	}
}

// handleMessage parses a message and dispatches quotes.
func (l *Listener) handleMessage(data []byte) {
	quotes, msgType, err := ParseMessage(data, time.Now())
	if err != nil {
		slog.Debug("ws_parse_error", "error", err, "raw", truncate(string(data), 200))
		return
	}

	if len(quotes) == 0 {
		if msgType != "" {
			slog.Debug("ws_message", "type", msgType)
		}
		return
	}

	for _, q := range quotes {
		select {
		case l.quoteChan <- q:
			slog.Debug("quote_received",
				"route", q.Route().Key(),
				"price", q.Price,
				"provider", q.Provider,
			)
		default:
			slog.Warn("quote_channel_full", "dropped_route", q.Route().Key())
		}
	}
}

// heartbeatMonitor checks for connection health.
func (l *Listener) heartbeatMonitor(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopChan:
			return
		case <-ticker.C:
			l.checkHeartbeat()
		}
	}
}

// checkHeartbeat pings the feed when it has been silent too long.
func (l *Listener) checkHeartbeat() {
	l.lastMsgMu.RLock()
	lastMsg := l.lastMsg
	l.lastMsgMu.RUnlock()

	if lastMsg.IsZero() {
		return
	}

	elapsed := time.Since(lastMsg)
	if elapsed > HeartbeatTimeout {
		slog.Warn("ws_heartbeat_timeout", "elapsed", elapsed)

		l.connMu.Lock()
		conn := l.conn
		if conn != nil {
			conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Warn("ws_ping_failed", "error", err)
				conn.Close()
				l.conn = nil
			}
		}
		l.connMu.Unlock()
	}
}

func (l *Listener) updateLastMsg() {
	l.lastMsgMu.Lock()
	l.lastMsg = time.Now()
	l.lastMsgMu.Unlock()
}

// closeConnection safely closes the WebSocket connection.
func (l *Listener) closeConnection() {
	l.connMu.Lock()
	defer l.connMu.Unlock()

	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
		slog.Info("ws_disconnected")
	}
}

// waitBackoff waits for the backoff duration with jitter.
func (l *Listener) waitBackoff(ctx context.Context) {
	jitter := time.Duration(float64(l.backoff) * JitterPercent * (rand.Float64()*2 - 1))
	wait := l.backoff + jitter

	slog.Debug("ws_waiting_backoff", "duration", wait)

	select {
	case <-ctx.Done():
	case <-l.stopChan:
	case <-time.After(wait):
	}

	l.backoff = time.Duration(float64(l.backoff) * BackoffFactor)
	if l.backoff > MaxBackoff {
		l.backoff = MaxBackoff
	}
}

// truncate shortens a string for logging.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
