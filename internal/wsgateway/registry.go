package wsgateway

import (
	"sort"
	"sync"
	"time"

	"github.com/mohamedkhairy/displacement-tracker/internal/models"
)

// ConnectionRegistry tracks the live dashboard connections of the gateway
type ConnectionRegistry struct {
	mu          sync.RWMutex
	connections map[string]*Connection
}

// NewConnectionRegistry creates an empty registry
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		connections: make(map[string]*Connection),
	}
}

// Add registers a connection. It returns false when the ID is already taken.
func (r *ConnectionRegistry) Add(conn *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[conn.ID]; exists {
		return false
	}
	r.connections[conn.ID] = conn
	return true
}

// Remove drops a connection and reports whether it was registered
func (r *ConnectionRegistry) Remove(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[connectionID]; !exists {
		return false
	}
	delete(r.connections, connectionID)
	return true
}

// All returns the registered connections, oldest first
func (r *ConnectionRegistry) All() []*Connection {
	r.mu.RLock()
	connections := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		connections = append(connections, conn)
	}
	r.mu.RUnlock()

	sort.Slice(connections, func(i, j int) bool {
		return connections[i].createdAt.Before(connections[j].createdAt)
	})
	return connections
}

// Count returns the number of registered connections
func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// Stale returns the connections whose last pong is older than cutoff
func (r *ConnectionRegistry) Stale(cutoff time.Time) []*Connection {
	var stale []*Connection
	for _, conn := range r.All() {
		if conn.GetLastPong().Before(cutoff) {
			stale = append(stale, conn)
		}
	}
	return stale
}

// Audience counts, per window, the connections that receive its score.
// Connections without subscriptions count toward every window.
func (r *ConnectionRegistry) Audience() map[models.Window]int {
	audience := make(map[models.Window]int, len(models.AllWindows()))
	for _, window := range models.AllWindows() {
		audience[window] = 0
	}

	for _, conn := range r.All() {
		for _, window := range models.AllWindows() {
			if conn.Receives(window) {
				audience[window]++
			}
		}
	}
	return audience
}

// Users returns the number of distinct users connected
func (r *ConnectionRegistry) Users() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make(map[string]struct{}, len(r.connections))
	for _, conn := range r.connections {
		users[conn.UserID] = struct{}{}
	}
	return len(users)
}
