package socket

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrDuplicateIdentity = errors.New("socket: identity already issued")
	ErrNotFound          = errors.New("socket: unknown identity")
	ErrRegistryFull      = errors.New("socket: connection limit reached")
)

// Registry maps identities to connections. An identity that was
// registered once is never accepted again, even after removal.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*Connection
	issued map[string]struct{}
	limit  int
}

// NewRegistry returns an empty registry holding at most limit active
// connections; a limit of 0 or less means no limit.
func NewRegistry(limit int) *Registry {
	return &Registry{
		conns:  make(map[string]*Connection),
		issued: make(map[string]struct{}),
		limit:  limit,
	}
}

func (r *Registry) Register(id string, c *Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.issued[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateIdentity, id)
	}
	if r.limit > 0 && r.activeLocked() >= r.limit {
		return fmt.Errorf("%w: %d", ErrRegistryFull, r.limit)
	}
	r.issued[id] = struct{}{}
	r.conns[id] = c
	return nil
}

func (r *Registry) Lookup(id string) (*Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c, nil
}

// Deactivate marks the connection inactive. It reports whether the
// connection was active before the call; repeated calls are no-ops.
func (r *Registry) Deactivate(id string) bool {
	r.mu.RLock()
	c, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return c.deactivate()
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.conns, id)
	r.mu.Unlock()
}

// Active returns a snapshot of the active connections, leaving out
// exclude when it is non-empty. The slice is safe to range over while
// the registry changes.
func (r *Registry) Active(exclude string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Connection, 0, len(r.conns))
	for id, c := range r.conns {
		if id == exclude || !c.Active() {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeLocked()
}

func (r *Registry) activeLocked() int {
	n := 0
	for _, c := range r.conns {
		if c.Active() {
			n++
		}
	}
	return n
}
