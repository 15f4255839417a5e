package hub

import "sync"

// Registry tracks the set of open connections, keyed by connection ID.
type Registry struct {
	connections   map[string]Connection
	connectionsMu sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]Connection),
	}
}

// Add inserts conn and reports whether it was absent. Adding a connection
// that is already present leaves the set unchanged.
func (r *Registry) Add(conn Connection) bool {
	r.connectionsMu.Lock()
	defer r.connectionsMu.Unlock()

	if _, exists := r.connections[conn.ID()]; exists {
		return false
	}
	r.connections[conn.ID()] = conn
	return true
}

// Remove deletes conn and reports whether it was present. A different
// connection registered under the same ID is left in place.
func (r *Registry) Remove(conn Connection) bool {
	r.connectionsMu.Lock()
	defer r.connectionsMu.Unlock()

	if existing, exists := r.connections[conn.ID()]; !exists || existing != conn {
		return false
	}
	delete(r.connections, conn.ID())
	return true
}

func (r *Registry) Contains(conn Connection) bool {
	r.connectionsMu.RLock()
	defer r.connectionsMu.RUnlock()

	_, exists := r.connections[conn.ID()]
	return exists
}

// Get returns a connection by ID
func (r *Registry) Get(connID string) (Connection, bool) {
	r.connectionsMu.RLock()
	defer r.connectionsMu.RUnlock()

	conn, exists := r.connections[connID]
	return conn, exists
}

func (r *Registry) Len() int {
	r.connectionsMu.RLock()
	defer r.connectionsMu.RUnlock()
	return len(r.connections)
}

// Snapshot returns the current members in no particular order.
func (r *Registry) Snapshot() []Connection {
	r.connectionsMu.RLock()
	defer r.connectionsMu.RUnlock()

	connections := make([]Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		connections = append(connections, conn)
	}
	return connections
}

// ForEach calls fn for every member of a snapshot taken on entry. fn may add
// or remove connections; those changes do not affect the running iteration.
func (r *Registry) ForEach(fn func(Connection)) {
	for _, conn := range r.Snapshot() {
		fn(conn)
	}
}
