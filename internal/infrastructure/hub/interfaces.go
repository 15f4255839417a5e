package hub

import (
	"context"
	"errors"
)

var (
	ErrConnectionClosed = errors.New("connection is closed")
	ErrSendBufferFull   = errors.New("send buffer is full")
)

// Connection is a live bidirectional text channel to one client. The ID is
// stable for the lifetime of the connection and unique across connections.
type Connection interface {
	ID() string
	// Send queues text for delivery without waiting on the network.
	Send(text string) error
	Close() error
	IsClosed() bool
	Context() context.Context
}

// Listener receives transport callbacks for a connection. OnClose is invoked
// exactly once per connection; OnMessage and OnError are never invoked after it.
type Listener interface {
	OnMessage(conn Connection, text string)
	OnError(conn Connection, err error)
	OnClose(conn Connection)
}
