// Package registry keeps the in-memory bookkeeping of a relay node: which connections are
// live and which rooms they are subscribed to.
package registry

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrQueueFull          = errors.New("outbound queue is full")
	ErrHandleClosed       = errors.New("connection handle is closed")
)

// Handle pushes outbound events to one client. Push must not block: implementations
// enqueue onto a bounded queue and fail with ErrQueueFull or ErrHandleClosed.
type Handle interface {
	Push(event string, data []byte) error
}

// Connection is one live client session
type Connection struct {
	ID          string
	Handle      Handle
	ConnectedAt time.Time
}

// Connections maps connection ids to their live Connection records
type Connections struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

func NewConnections() *Connections {
	return &Connections{conns: make(map[string]*Connection)}
}

// Register stores a connection for id unless one already exists, in which case the
// existing record is returned unchanged
func (c *Connections) Register(id string, h Handle) *Connection {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn, ok := c.conns[id]; ok {
		return conn
	}

	conn := &Connection{ID: id, Handle: h, ConnectedAt: time.Now()}
	c.conns[id] = conn
	return conn
}

func (c *Connections) Lookup(id string) (*Connection, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	conn, ok := c.conns[id]
	if !ok {
		return nil, ErrConnectionNotFound
	}
	return conn, nil
}

// Remove drops the record for id. Room membership is left to the caller.
func (c *Connections) Remove(id string) {
	c.mu.Lock()
	delete(c.conns, id)
	c.mu.Unlock()
}

func (c *Connections) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.conns)
}

// Reset drops every record
func (c *Connections) Reset() {
	c.mu.Lock()
	c.conns = make(map[string]*Connection)
	c.mu.Unlock()
}
