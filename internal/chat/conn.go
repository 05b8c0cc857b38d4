package chat

import (
	"sync"

	"github.com/talkroom/talkroom-server/internal/store"
)

// ConnState tracks a connection through its lifecycle.
type ConnState int32

const (
	// StatePending means the transport is open but not authenticated.
	StatePending ConnState = iota
	// StateActive means the connection is authenticated and registered.
	StateActive
	// StateClosed is terminal; no further events are delivered.
	StateClosed
)

// Conn is a live transport connection as seen by the gateway. It is bound
// to exactly one identity for its lifetime once activated.
type Conn struct {
	ID     string
	Events chan *Event

	mu       sync.Mutex
	state    ConnState
	identity *store.User
}

// NewConn constructs a pending connection with a buffered event channel.
func NewConn(id string) *Conn {
	return &Conn{
		ID:     id,
		Events: make(chan *Event, 16),
	}
}

// State returns the current lifecycle state.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Identity returns the authenticated user, or nil while pending.
func (c *Conn) Identity() *store.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// activate transitions Pending -> Active and binds the identity.
// Returns false if the connection is not pending.
func (c *Conn) activate(identity *store.User) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePending {
		return false
	}
	c.state = StateActive
	c.identity = identity
	return true
}

// close transitions to Closed. Returns false if already closed.
func (c *Conn) close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return false
	}
	c.state = StateClosed
	return true
}

// Send delivers an event to the connection's write loop. Events for
// closed connections are discarded, and slow consumers drop rather
// than block the broadcasting handler.
func (c *Conn) Send(event *Event) {
	if c.State() == StateClosed {
		return
	}
	select {
	case c.Events <- event:
	default:
		// Drop if slow consumer.
	}
}
