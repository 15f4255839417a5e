package events

import (
	"maps"

	"callcenter-gateway/internal/infrastructure/hub"
)

const (
	EventHello = "websocket.hello"
	EventPause = "websocket.pause"
	EventAvail = "websocket.avail"
)

// Names lists every event the gateway emits.
var Names = []string{EventHello, EventPause, EventAvail}

// Payload keys.
const (
	KeyConnection = "wsconnection"
	KeyAgentID    = "agentid"
)

// Payload values are either a hub.Connection or a string.
type Payload map[string]any

// Event is an immutable named notification. The payload is copied on the
// way in and on the way out.
type Event struct {
	name    string
	payload Payload
}

func NewEvent(name string, payload Payload) Event {
	return Event{name: name, payload: maps.Clone(payload)}
}

func (e Event) Name() string { return e.name }

func (e Event) Payload() Payload { return maps.Clone(e.payload) }

func (e Event) Value(key string) (any, bool) {
	v, ok := e.payload[key]
	return v, ok
}

// Connection returns the connection the event originated from.
func (e Event) Connection() (hub.Connection, bool) {
	conn, ok := e.payload[KeyConnection].(hub.Connection)
	return conn, ok
}

func (e Event) AgentID() (string, bool) {
	id, ok := e.payload[KeyAgentID].(string)
	return id, ok
}
