package registry

import (
	"sync"
	"time"

	"github.com/tcriess/lightspeed-presence/types"
)

// Conn is the transport-side handle the registries deliver to. The ws
// package implements it on top of gorilla/websocket; tests implement it
// with a plain struct.
type Conn interface {
	ID() string
	// Send emits one named event to the peer. Best-effort: delivery
	// failures are the transport's problem, not the registry's.
	Send(event string, data interface{}) error
	// Alive reports whether the underlying transport session still
	// exists. The cleanup janitor uses this as the authoritative check.
	Alive() bool
	// Close force-disconnects the peer.
	Close()
}

// Connection is one live transport session as tracked by the Connections
// registry, which exclusively owns its lifecycle.
type Connection struct {
	Conn

	mu            sync.RWMutex
	user          *types.User // nil until authenticated
	authenticated bool
	guestNick     string
	createdAt     time.Time
	lastActivity  time.Time
}

func (c *Connection) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

// User returns a snapshot of the identity attached to this connection, or
// nil while anonymous.
func (c *Connection) User() *types.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return nil
	}
	u := *c.user
	return &u
}

// UserId returns the owning user id, empty while anonymous.
func (c *Connection) UserId() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return ""
	}
	return c.user.Id
}

func (c *Connection) GuestNick() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.guestNick
}

func (c *Connection) CreatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.createdAt
}

func (c *Connection) LastActivity() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastActivity
}

// Touch records event activity on the connection.
func (c *Connection) Touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

func (c *Connection) attachUser(user *types.User) {
	c.mu.Lock()
	c.user = user
	c.authenticated = true
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

func (c *Connection) setStatus(status string) {
	c.mu.Lock()
	if c.user != nil {
		c.user.Status = status
	}
	c.mu.Unlock()
}
