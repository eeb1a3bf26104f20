// Package registry binds live transport sessions to authenticated identities.
package registry

import (
	"errors"
	"fmt"
	"sync"
)

// DefaultBufferSize is the outbound queue length used when none is configured.
const DefaultBufferSize = 256

var (
	ErrUnauthenticated     = errors.New("connection is not authenticated")
	ErrDuplicateConnection = errors.New("connection id already registered")
	ErrInvalidConnectionID = errors.New("connection id cannot be empty")
	ErrSendBufferFull      = errors.New("send buffer full")
	ErrConnectionClosed    = errors.New("connection closed")
)

// Registry is the thread-safe set of live connections.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	bufferSize  int
}

// New creates a registry whose connections queue up to bufferSize frames.
func New(bufferSize int) *Registry {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Registry{
		connections: make(map[string]*Connection),
		bufferSize:  bufferSize,
	}
}

// Register binds identity to connectionID.
func (r *Registry) Register(connectionID string, identity Identity) (*Connection, error) {
	if connectionID == "" {
		return nil, ErrInvalidConnectionID
	}
	if identity.UserID == "" {
		return nil, fmt.Errorf("register %s: %w", connectionID, ErrUnauthenticated)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[connectionID]; exists {
		return nil, fmt.Errorf("register %s: %w", connectionID, ErrDuplicateConnection)
	}

	conn := newConnection(connectionID, identity, r.bufferSize)
	r.connections[connectionID] = conn
	return conn, nil
}

// Unregister releases the binding and closes the connection.
// Callers must have removed the connection from its rooms first.
func (r *Registry) Unregister(connectionID string) (*Connection, bool) {
	r.mu.Lock()
	conn, ok := r.connections[connectionID]
	if ok {
		delete(r.connections, connectionID)
	}
	r.mu.Unlock()

	if ok {
		conn.Close()
	}
	return conn, ok
}

// Get returns the connection bound to connectionID.
func (r *Registry) Get(connectionID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connections[connectionID]
	return conn, ok
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// CloseAll closes every connection, used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, conn := range r.connections {
		conn.Close()
	}
}
