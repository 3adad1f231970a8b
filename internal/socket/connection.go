package socket

import (
	"sync"
	"sync/atomic"
)

const defaultName = "Guest"

// Connection is one registered client. Its identity never changes; the
// active flag only ever goes from true to false.
type Connection struct {
	id        string
	transport Transport

	mu   sync.RWMutex
	name string

	active    atomic.Bool
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func NewConnection(id string, t Transport) *Connection {
	c := &Connection{
		id:        id,
		transport: t,
		name:      defaultName,
	}
	c.active.Store(true)
	return c
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) RemoteAddr() string { return c.transport.RemoteAddr() }

func (c *Connection) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// SetName changes the display name. No protocol message calls it yet.
func (c *Connection) SetName(name string) {
	c.mu.Lock()
	c.name = name
	c.mu.Unlock()
}

func (c *Connection) Active() bool { return c.active.Load() }

// deactivate reports whether this call performed the transition.
func (c *Connection) deactivate() bool {
	return c.active.CompareAndSwap(true, false)
}

// Write sends one encoded frame. Concurrent writers are serialized so
// frames never interleave on the wire.
func (c *Connection) Write(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.transport.WriteFrame(frame)
}

// Close closes the underlying transport exactly once; later calls return
// the first result.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.transport.Close()
	})
	return c.closeErr
}
