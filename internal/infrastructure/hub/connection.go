package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"callcenter-gateway/internal/infrastructure/logger"
)

// WebSocketOptions tunes the keep-alive and buffering of a WebSocketConnection.
type WebSocketOptions struct {
	SendBuffer int
	// MaxMessageSize caps an inbound frame in bytes. Larger frames close the
	// connection with 1009 (message too big).
	MaxMessageSize int64
	WriteTimeout   time.Duration
	PongTimeout    time.Duration
	PingInterval   time.Duration
}

func DefaultWebSocketOptions() WebSocketOptions {
	return WebSocketOptions{
		SendBuffer:     256,
		MaxMessageSize: 4096,
		WriteTimeout:   10 * time.Second,
		PongTimeout:    60 * time.Second,
		PingInterval:   54 * time.Second,
	}
}

// WebSocketConnection implements Connection on top of a gorilla websocket.
type WebSocketConnection struct {
	id   string
	conn *websocket.Conn
	opts WebSocketOptions

	ctx    context.Context
	cancel context.CancelFunc

	closed   bool
	closedMu sync.RWMutex

	closeNotify sync.Once

	logger logger.Logger

	send chan string

	lastActivity time.Time
	activityMu   sync.RWMutex
}

var _ Connection = (*WebSocketConnection)(nil)

// NewWebSocketConnection wraps an upgraded websocket. No frames are read or
// written until Start is called.
func NewWebSocketConnection(
	id string,
	conn *websocket.Conn,
	opts WebSocketOptions,
	logger logger.Logger,
) *WebSocketConnection {
	ctx, cancel := context.WithCancel(context.Background())

	defaults := DefaultWebSocketOptions()
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaults.SendBuffer
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = defaults.MaxMessageSize
	}

	return &WebSocketConnection{
		id:           id,
		conn:         conn,
		opts:         opts,
		ctx:          ctx,
		cancel:       cancel,
		logger:       logger.WithField("connection_id", id),
		send:         make(chan string, opts.SendBuffer),
		lastActivity: time.Now(),
	}
}

// Start launches the read and write pumps. Inbound text frames and the final
// close are reported to listener.
func (c *WebSocketConnection) Start(listener Listener) {
	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.updateActivity()
		c.conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
		return nil
	})

	go c.writePump()
	go c.readPump(listener)
}

func (c *WebSocketConnection) ID() string {
	return c.id
}

// Send queues text for the write pump. It never blocks: a full queue is
// reported as ErrSendBufferFull.
func (c *WebSocketConnection) Send(text string) error {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()

	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.send <- text:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close sends a normal-closure frame and tears down the socket. It is safe to
// call more than once and from any goroutine.
func (c *WebSocketConnection) Close() error {
	c.closedMu.Lock()
	if c.closed {
		c.closedMu.Unlock()
		return nil
	}
	c.closed = true
	c.cancel()
	// The close frame may wait on a stalled peer; Send must not wait with it.
	c.closedMu.Unlock()

	// WriteControl may run concurrently with the write pump.
	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.opts.WriteTimeout),
	)
	err := c.conn.Close()

	c.logger.Info("WebSocket connection closed")
	return err
}

func (c *WebSocketConnection) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}

// Context is cancelled once the connection is closed.
func (c *WebSocketConnection) Context() context.Context {
	return c.ctx
}

func (c *WebSocketConnection) LastActivity() time.Time {
	c.activityMu.RLock()
	defer c.activityMu.RUnlock()
	return c.lastActivity
}

func (c *WebSocketConnection) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case text := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
				c.logger.Errorf("Failed to write message: %v", err)
				c.Close()
				return
			}
			c.updateActivity()

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Errorf("Failed to send ping: %v", err)
				c.Close()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *WebSocketConnection) readPump(listener Listener) {
	defer func() {
		c.Close()
		c.closeNotify.Do(func() { listener.OnClose(c) })
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.IsClosed() && isTransportError(err) {
				listener.OnError(c, err)
			}
			return
		}

		c.updateActivity()

		switch messageType {
		case websocket.TextMessage:
			listener.OnMessage(c, string(data))
		case websocket.BinaryMessage:
			c.logger.Debugf("Ignoring binary message of length: %d", len(data))
		}
	}
}

// isTransportError reports whether a read error is a failure rather than an
// orderly close by the peer.
func isTransportError(err error) bool {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return websocket.IsUnexpectedCloseError(
			err,
			websocket.CloseNormalClosure,
			websocket.CloseGoingAway,
			websocket.CloseNoStatusReceived,
		)
	}
	return true
}

func (c *WebSocketConnection) updateActivity() {
	c.activityMu.Lock()
	c.lastActivity = time.Now()
	c.activityMu.Unlock()
}
