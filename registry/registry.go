// Package registry tracks live connections and their category
// subscriptions, and delivers events to them.
package registry

import (
	"sync"

	"github.com/google/uuid"

	"github.com/Takmim00/Task-Managements-server/domain"
)

const sendBuffer = 32

// Conn is one live client connection. The transport layer drains Events
// from its own writer loop; delivery is non-blocking, so a consumer that
// stops draining loses events instead of stalling the engine.
type Conn struct {
	id   string
	send chan domain.Event
}

// ID returns the connection's identity, useful mainly for logging.
func (c *Conn) ID() string { return c.id }

// Events is the stream the transport writer loop drains.
func (c *Conn) Events() <-chan domain.Event { return c.send }

// Registry is the process-wide subscription map. It is owned by the
// synchronization engine; transports only hold the Conns it hands out.
type Registry struct {
	mu       sync.Mutex
	conns    map[*Conn]struct{}
	channels map[string]map[*Conn]struct{}
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		conns:    make(map[*Conn]struct{}),
		channels: make(map[string]map[*Conn]struct{}),
	}
}

// NewConn registers and returns a fresh connection with no subscriptions.
func (r *Registry) NewConn() *Conn {
	c := &Conn{id: uuid.NewString(), send: make(chan domain.Event, sendBuffer)}
	r.mu.Lock()
	r.conns[c] = struct{}{}
	r.mu.Unlock()
	return c
}

// Join subscribes the connection to a category. Joining twice is a no-op,
// and joining a new category does not leave a previous one.
func (r *Registry) Join(c *Conn, category string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[c]; !ok {
		return
	}
	if r.channels[category] == nil {
		r.channels[category] = make(map[*Conn]struct{})
	}
	r.channels[category][c] = struct{}{}
}

// LeaveAll removes every subscription for the connection and drops it from
// the live set. Called by the transport when the connection closes.
func (r *Registry) LeaveAll(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, c)
	for category, subs := range r.channels {
		delete(subs, c)
		if len(subs) == 0 {
			delete(r.channels, category)
		}
	}
}

// BroadcastToChannel delivers the event to every subscriber of the category
// in the order events were emitted.
func (r *Registry) BroadcastToChannel(category string, ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range r.channels[category] {
		c.deliver(ev)
	}
}

// BroadcastToAll delivers the event to every live connection regardless of
// subscription.
func (r *Registry) BroadcastToAll(ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range r.conns {
		c.deliver(ev)
	}
}

// SendTo delivers the event to a single connection.
func (r *Registry) SendTo(c *Conn, ev domain.Event) {
	c.deliver(ev)
}

func (c *Conn) deliver(ev domain.Event) {
	select {
	case c.send <- ev:
	default:
	}
}
