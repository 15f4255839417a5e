// Package gateway connects transport callbacks to the control protocol: it
// keeps the registry of open connections, turns recognised commands into
// events and fans outbound text out to every client.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"callcenter-gateway/internal/infrastructure/events"
	"callcenter-gateway/internal/infrastructure/hub"
	"callcenter-gateway/internal/infrastructure/logger"
	"callcenter-gateway/internal/infrastructure/metrics"
	"callcenter-gateway/internal/infrastructure/protocol"
)

// ErrNotRunning is returned by OnOpen once the gateway has been stopped.
var ErrNotRunning = errors.New("gateway is not running")

// Gateway routes transport callbacks for every open connection.
type Gateway struct {
	registry   *hub.Registry
	dispatcher *events.Dispatcher

	running   bool
	done      chan struct{}
	runningMu sync.RWMutex

	logger  logger.Logger
	metrics *metrics.Metrics
}

var _ hub.Listener = (*Gateway)(nil)

// New builds a stopped gateway. Call Start before accepting connections.
func New(opts ...Option) *Gateway {
	g := &Gateway{logger: logger.NewNopLogger(), done: make(chan struct{})}
	close(g.done)
	for _, opt := range opts {
		opt(g)
	}

	g.logger = g.logger.WithField("component", "gateway")
	if g.registry == nil {
		g.registry = hub.NewRegistry()
	}
	if g.dispatcher == nil {
		g.dispatcher = events.NewDispatcher(
			events.WithLogger(g.logger),
			events.WithMetrics(g.metrics),
		)
	}
	return g
}

// Start marks the gateway as accepting connections.
func (g *Gateway) Start() error {
	g.runningMu.Lock()
	defer g.runningMu.Unlock()

	if g.running {
		return fmt.Errorf("gateway is already running")
	}
	g.running = true
	g.done = make(chan struct{})

	g.logger.Info("Gateway started")
	return nil
}

// Stop closes every registered connection and stops accepting new ones.
func (g *Gateway) Stop(ctx context.Context) error {
	g.runningMu.Lock()
	defer g.runningMu.Unlock()

	if !g.running {
		return nil
	}
	g.running = false
	close(g.done)

	for _, conn := range g.registry.Snapshot() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("stopping gateway: %w", err)
		}
		if err := conn.Close(); err != nil {
			g.logger.Errorf("Failed to close connection %s: %v", conn.ID(), err)
		}
		g.unregister(conn)
	}

	g.logger.Info("Gateway stopped")
	return nil
}

func (g *Gateway) IsRunning() bool {
	g.runningMu.RLock()
	defer g.runningMu.RUnlock()
	return g.running
}

// Done is closed when the gateway stops. Long-lived streams select on it so
// shutdown does not wait for their clients to hang up.
func (g *Gateway) Done() <-chan struct{} {
	g.runningMu.RLock()
	defer g.runningMu.RUnlock()
	return g.done
}

func (g *Gateway) Dispatcher() *events.Dispatcher {
	return g.dispatcher
}

func (g *Gateway) Subscribe(name string, handler events.Handler) events.SubscriptionID {
	return g.dispatcher.Subscribe(name, handler)
}

func (g *Gateway) Unsubscribe(id events.SubscriptionID) bool {
	return g.dispatcher.Unsubscribe(id)
}

func (g *Gateway) Emit(e events.Event) {
	g.dispatcher.Emit(e)
}

func (g *Gateway) ConnectionCount() int {
	return g.registry.Len()
}

func (g *Gateway) Connections() []hub.Connection {
	return g.registry.Snapshot()
}

// OnOpen registers conn, or returns ErrNotRunning if the gateway is stopped.
// HELLO is a client command and is not implied by the transport opening.
func (g *Gateway) OnOpen(conn hub.Connection) error {
	g.runningMu.RLock()
	defer g.runningMu.RUnlock()

	if !g.running {
		return ErrNotRunning
	}
	if g.registry.Add(conn) {
		g.metrics.ConnectionOpened()
	}
	g.logger.Infof("Connection %s opened", conn.ID())
	return nil
}

// OnMessage decodes text and emits the matching event. Malformed commands are
// logged and the connection stays open.
func (g *Gateway) OnMessage(conn hub.Connection, text string) {
	log := g.logger.WithField("connection_id", conn.ID())
	log.Debugf("WS: %s", text)

	if !g.registry.Contains(conn) {
		log.Warnf("Dropping message from unregistered connection: %q", text)
		return
	}

	cmd, err := protocol.Decode(text)
	g.metrics.ObserveMessage(cmd.Verb.String())
	if err != nil {
		var malformed *protocol.MalformedCommandError
		if errors.As(err, &malformed) {
			g.metrics.ObserveMalformed(malformed.Reason())
		}
		log.Errorf("Malformed msg: %v", err)
		return
	}

	g.dispatcher.Emit(commandEvent(conn, cmd))
}

// OnError force-closes conn. Deregistration follows from the transport's
// close callback.
func (g *Gateway) OnError(conn hub.Connection, err error) {
	g.logger.WithField("connection_id", conn.ID()).Errorf("Transport error: %v", err)
	if cerr := conn.Close(); cerr != nil {
		g.logger.Errorf("Failed to close connection %s: %v", conn.ID(), cerr)
	}
}

func (g *Gateway) OnClose(conn hub.Connection) {
	g.unregister(conn)
	g.logger.Infof("Connection %s closed", conn.ID())
}

func (g *Gateway) unregister(conn hub.Connection) {
	if g.registry.Remove(conn) {
		g.metrics.ConnectionClosed()
	}
}

// commandEvent maps a validated command to its event.
func commandEvent(conn hub.Connection, cmd protocol.Command) events.Event {
	switch cmd.Verb {
	case protocol.VerbPause:
		return agentEvent(events.EventPause, conn, cmd)
	case protocol.VerbAvail:
		return agentEvent(events.EventAvail, conn, cmd)
	default:
		return events.NewEvent(events.EventHello, events.Payload{
			events.KeyConnection: conn,
		})
	}
}

func agentEvent(name string, conn hub.Connection, cmd protocol.Command) events.Event {
	agentID, _ := cmd.Arg(0)
	return events.NewEvent(name, events.Payload{
		events.KeyConnection: conn,
		events.KeyAgentID:    agentID,
	})
}
