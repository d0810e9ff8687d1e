// Package transport supervises a single WebSocket connection: dial,
// heartbeat, reconnect with bounded attempts, and typed event dispatch.
package transport

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chatwire/internal/protocol"
	"chatwire/pkg/logger"
)

// Status is the connection lifecycle state.
type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusOpen
	StatusClosing
	StatusClosed
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	case StatusClosing:
		return "closing"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// EventKind aliases the protocol kind so lifecycle events share the
// same handler registry as stream events.
type EventKind = protocol.EventKind

// Lifecycle event kinds emitted by the supervisor itself.
const (
	EventConnected    EventKind = "connected"
	EventDisconnected EventKind = "disconnected"
	EventError        EventKind = "error"
	EventMessage      EventKind = "message"
)

// Handler receives dispatched events.
type Handler func(ev *protocol.Event)

// Options configures a Conn.
type Options struct {
	URL               string
	Reconnect         bool
	ReconnectDelay    time.Duration
	ReconnectAttempts int
	Heartbeat         bool
	HeartbeatInterval time.Duration
	HeartbeatMessage  string
	HandshakeTimeout  time.Duration
	Dialer            *websocket.Dialer
}

func (o *Options) withDefaults() {
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = 3 * time.Second
	}
	if o.ReconnectAttempts <= 0 {
		o.ReconnectAttempts = 3
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.HeartbeatMessage == "" {
		o.HeartbeatMessage = "ping"
	}
	if o.Dialer == nil {
		if o.HandshakeTimeout > 0 {
			o.Dialer = &websocket.Dialer{
				Proxy:            http.ProxyFromEnvironment,
				HandshakeTimeout: o.HandshakeTimeout,
			}
		} else {
			o.Dialer = websocket.DefaultDialer
		}
	}
}

type handlerEntry struct {
	id int
	fn Handler
}

// Conn owns one WebSocket connection. All state transitions are guarded
// by mu because reconnect timers and the read pump fire asynchronously
// relative to callers.
type Conn struct {
	opts Options

	mu               sync.Mutex
	ws               *websocket.Conn
	status           Status
	reconnectAttempt int
	lastError        error
	lastMessage      *protocol.Event
	manualClose      bool
	handlers         map[EventKind][]handlerEntry
	nextHandlerID    int
	heartbeatStop    chan struct{}
	reconnectTimer   *time.Timer

	// writeMu serializes writes; gorilla allows one concurrent writer.
	writeMu sync.Mutex
}

// New creates an unconnected Conn.
func New(opts Options) *Conn {
	opts.withDefaults()
	return &Conn{
		opts:     opts,
		status:   StatusIdle,
		handlers: make(map[EventKind][]handlerEntry),
	}
}

// Connect opens the connection. It is idempotent: a no-op when already
// open or connecting. On success the attempt counter resets, the
// heartbeat starts and a connected event is emitted.
func (c *Conn) Connect() error {
	c.mu.Lock()
	if c.status == StatusOpen || c.status == StatusConnecting {
		c.mu.Unlock()
		return nil
	}
	c.status = StatusConnecting
	c.manualClose = false
	dialer := c.opts.Dialer
	url := c.opts.URL
	c.mu.Unlock()

	ws, resp, err := dialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.mu.Lock()
		c.status = StatusClosed
		c.lastError = err
		c.mu.Unlock()

		logger.Error().Err(err).Str("url", url).Msg("WebSocket dial failed")
		c.emit(EventError, &protocol.Event{Kind: EventError, Message: err.Error()})
		c.scheduleReconnect()
		return err
	}

	c.mu.Lock()
	if c.manualClose {
		// Disconnect raced the dial; drop the fresh socket.
		c.status = StatusClosed
		c.mu.Unlock()
		_ = ws.Close()
		return nil
	}
	c.ws = ws
	c.status = StatusOpen
	c.reconnectAttempt = 0
	c.lastError = nil
	c.mu.Unlock()

	if c.opts.Heartbeat {
		c.startHeartbeat()
	}
	go c.readPump(ws)

	logger.Debug().Str("url", url).Msg("WebSocket connected")
	c.emit(EventConnected, &protocol.Event{Kind: EventConnected})
	return nil
}

// Disconnect closes the connection and cancels the heartbeat and any
// pending reconnect. Idempotent; no reconnection is scheduled afterwards.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	c.manualClose = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	ws := c.ws
	c.ws = nil
	if c.status == StatusOpen || c.status == StatusConnecting {
		c.status = StatusClosing
	}
	c.mu.Unlock()

	c.stopHeartbeat()

	if ws != nil {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = ws.Close()
	}

	c.mu.Lock()
	c.status = StatusClosed
	c.mu.Unlock()
}

// Send serializes v and writes it to the connection. Returns false,
// without error, when the connection is not open or the write fails.
func (c *Conn) Send(v any) bool {
	c.mu.Lock()
	ws := c.ws
	open := c.status == StatusOpen
	c.mu.Unlock()

	if !open || ws == nil {
		logger.Debug().Msg("send on non-open WebSocket dropped")
		return false
	}

	data, err := json.Marshal(v)
	if err != nil {
		logger.Error().Err(err).Msg("failed to serialize outbound frame")
		return false
	}

	c.writeMu.Lock()
	err = ws.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		c.lastError = err
		c.mu.Unlock()
		logger.Error().Err(err).Msg("WebSocket write error")
		return false
	}
	return true
}

// On registers a handler for the given event kind and returns its id.
func (c *Conn) On(kind EventKind, h Handler) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextHandlerID++
	id := c.nextHandlerID
	c.handlers[kind] = append(c.handlers[kind], handlerEntry{id: id, fn: h})
	return id
}

// Off removes the handler with the given id from kind.
func (c *Conn) Off(kind EventKind, id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.handlers[kind]
	for i, e := range entries {
		if e.id == id {
			c.handlers[kind] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

// OffAll removes every handler registered for kind.
func (c *Conn) OffAll(kind EventKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, kind)
}

// Status returns the current lifecycle state.
func (c *Conn) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// IsConnected reports whether the connection is open.
func (c *Conn) IsConnected() bool {
	return c.Status() == StatusOpen
}

// ReconnectAttempt returns the current reconnect attempt counter.
func (c *Conn) ReconnectAttempt() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnectAttempt
}

// LastError returns the most recent transport error, if any.
func (c *Conn) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// LastMessage returns the most recent inbound event. Heartbeat pongs are
// never recorded here.
func (c *Conn) LastMessage() *protocol.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastMessage
}

// readPump delivers inbound frames in arrival order until the socket
// closes, then drives the reconnect policy.
func (c *Conn) readPump(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			manual := c.manualClose
			if c.ws == ws {
				c.ws = nil
			}
			c.status = StatusClosed
			if !manual {
				c.lastError = err
			}
			c.mu.Unlock()

			c.stopHeartbeat()

			if !manual && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Error().Err(err).Msg("WebSocket read error")
			}

			c.emit(EventDisconnected, &protocol.Event{Kind: EventDisconnected})
			if !manual {
				c.scheduleReconnect()
			}
			return
		}

		ev, err := protocol.ParseEvent(data)
		if err != nil {
			// Protocol errors are dropped, never surfaced to subscribers.
			logger.Error().Err(err).Msg("dropped malformed frame")
			continue
		}

		// Heartbeat responses are swallowed.
		if ev.Kind == protocol.KindPong {
			continue
		}

		c.mu.Lock()
		c.lastMessage = ev
		c.mu.Unlock()

		c.emit(EventMessage, ev)
		c.emit(ev.Kind, ev)
	}
}

func (c *Conn) emit(kind EventKind, ev *protocol.Event) {
	c.mu.Lock()
	entries := make([]handlerEntry, len(c.handlers[kind]))
	copy(entries, c.handlers[kind])
	c.mu.Unlock()

	for _, e := range entries {
		e.fn(ev)
	}
}

func (c *Conn) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.opts.Reconnect || c.manualClose {
		return
	}
	if c.reconnectAttempt >= c.opts.ReconnectAttempts {
		logger.Debug().
			Int("attempts", c.reconnectAttempt).
			Msg("reconnect attempts exhausted")
		return
	}

	c.reconnectAttempt++
	attempt := c.reconnectAttempt
	c.reconnectTimer = time.AfterFunc(c.opts.ReconnectDelay, func() {
		logger.Debug().Int("attempt", attempt).Msg("reconnecting WebSocket")
		_ = c.Connect()
	})
}

func (c *Conn) startHeartbeat() {
	c.mu.Lock()
	if c.heartbeatStop != nil {
		c.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	c.heartbeatStop = stop
	interval := c.opts.HeartbeatInterval
	message := c.opts.HeartbeatMessage
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Send(protocol.NewPingFrame(message))
			case <-stop:
				return
			}
		}
	}()
}

func (c *Conn) stopHeartbeat() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
		c.heartbeatStop = nil
	}
}
