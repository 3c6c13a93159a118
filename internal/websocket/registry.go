package websocket

import (
	"sort"
	"sync"

	"chathub/pkg/interfaces"
)

// Registry tracks open connections and which user each belongs to. A user may
// hold any number of connections; anonymous connections are tracked for
// broadcasts but never appear in the per-user index.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]interfaces.Connection            // connID -> Connection
	users       map[string]map[string]interfaces.Connection // userID -> connID -> Connection
}

// NewRegistry creates a new connection registry
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]interfaces.Connection),
		users:       make(map[string]map[string]interfaces.Connection),
	}
}

// Register adds a connection, creating the user's entry if absent.
func (r *Registry) Register(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	id := conn.ID()
	userID := conn.UserID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[id]; exists {
		return ErrDuplicateConnection
	}
	r.connections[id] = conn

	if userID == "" {
		return nil
	}
	if r.users[userID] == nil {
		r.users[userID] = make(map[string]interfaces.Connection)
	}
	r.users[userID][id] = conn

	return nil
}

// Unregister removes exactly this connection instance. It reports whether
// anything was removed, so repeated calls are harmless.
func (r *Registry) Unregister(conn interfaces.Connection) bool {
	if conn == nil {
		return false
	}

	id := conn.ID()
	r.mu.Lock()
	defer r.mu.Unlock()

	registered, exists := r.connections[id]
	if !exists || registered != conn {
		return false
	}
	delete(r.connections, id)

	userID := conn.UserID()
	if conns, ok := r.users[userID]; ok {
		delete(conns, id)
		if len(conns) == 0 {
			delete(r.users, userID)
		}
	}

	return true
}

// ConnectionsFor returns the user's open connections, possibly none.
func (r *Registry) ConnectionsFor(userID string) []interfaces.Connection {
	if userID == "" {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.users[userID]
	out := make([]interfaces.Connection, 0, len(conns))
	for _, conn := range conns {
		out = append(out, conn)
	}
	return out
}

// Connection looks up a connection by id.
func (r *Registry) Connection(id string) (interfaces.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.connections[id]
	return conn, ok
}

// All returns every open connection, anonymous ones included.
func (r *Registry) All() []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]interfaces.Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		out = append(out, conn)
	}
	return out
}

// OnlineUsers returns the sorted set of users with at least one connection.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]string, 0, len(r.users))
	for userID := range r.users {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.users[userID]
	return ok
}

// GetStats returns registry statistics for monitoring and debugging
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identified := 0
	for _, conns := range r.users {
		identified += len(conns)
	}

	return map[string]int{
		"total_connections":     len(r.connections),
		"online_users":          len(r.users),
		"anonymous_connections": len(r.connections) - identified,
	}
}
