package transport

import (
	"context"
	"sync"
)

// ConnRegistry tracks live streaming connections (websockets) per session
// so that ending a session over another channel, or its expiry, can close
// them.
//
// All methods are safe for concurrent access.
type ConnRegistry struct {
	mu      sync.Mutex
	entries map[string]*conn
}

type conn struct {
	cancel context.CancelFunc
}

// NewConnRegistry creates a new empty registry.
func NewConnRegistry() *ConnRegistry {
	return &ConnRegistry{
		entries: make(map[string]*conn),
	}
}

// Register attaches a connection to a session. A previous connection for
// the same session is cancelled; a session has at most one live channel.
// The returned release func detaches this connection without cancelling
// it, and is a no-op once another connection has replaced it.
func (r *ConnRegistry) Register(sessionID string, cancel context.CancelFunc) (release func()) {
	c := &conn{cancel: cancel}

	r.mu.Lock()
	if prev, ok := r.entries[sessionID]; ok {
		prev.cancel()
	}
	r.entries[sessionID] = c
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.entries[sessionID] == c {
			delete(r.entries, sessionID)
		}
	}
}

// Cancel closes the connection of a session. It reports whether one was
// registered.
func (r *ConnRegistry) Cancel(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.entries[sessionID]
	if !ok {
		return false
	}
	c.cancel()
	delete(r.entries, sessionID)
	return true
}

// Len returns the number of live connections.
func (r *ConnRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
