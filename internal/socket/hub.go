package socket

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"chatrelay/internal/config"
	"chatrelay/internal/protocol"
)

// Hub owns the registry and fans events out to registered connections.
// Every transport (TCP or WebSocket) is served through the same hub.
type Hub struct {
	cfg     config.Config
	metrics *Metrics
	log     *slog.Logger

	registry *Registry

	// mu orders wg.Add in Go against CloseAll, so no Add can race Wait.
	mu      sync.Mutex
	wg      sync.WaitGroup
	closing atomic.Bool

	// newID issues identities; tests replace it to force collisions.
	newID func() string
}

func NewHub(cfg config.Config, metrics *Metrics, logger *slog.Logger) *Hub {
	if metrics == nil {
		metrics = NewMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		cfg:      cfg,
		metrics:  metrics,
		log:      logger,
		registry: NewRegistry(cfg.MaxConnections),
		newID:    uuid.NewString,
	}
}

func (h *Hub) Registry() *Registry { return h.registry }

func (h *Hub) Metrics() *Metrics { return h.metrics }

// Send delivers one event to a single identity. An unknown identity is
// logged and the send is skipped.
func (h *Hub) Send(id string, p protocol.Payload) error {
	frame, err := protocol.Marshal(p)
	if err != nil {
		return err
	}
	return h.sendFrame(id, p.Event(), frame)
}

// Broadcast delivers one event to every active connection except exclude.
// A failed delivery never stops delivery to the remaining recipients.
func (h *Hub) Broadcast(p protocol.Payload, exclude string) {
	frame, err := protocol.Marshal(p)
	if err != nil {
		h.log.Error("encode broadcast", "event", p.Event(), "err", err)
		return
	}
	h.metrics.Broadcasts.Add(1)

	for _, c := range h.registry.Active(exclude) {
		_ = h.sendFrame(c.ID(), p.Event(), frame)
	}
}

func (h *Hub) sendFrame(id string, event protocol.Event, frame []byte) error {
	c, err := h.registry.Lookup(id)
	if err != nil {
		h.metrics.UnknownIdentities.Add(1)
		h.log.Warn("send to unknown identity", "uuid", id, "event", event)
		return err
	}
	if !c.Active() {
		return nil
	}
	if err := c.Write(frame); err != nil {
		h.metrics.SendFailures.Add(1)
		h.log.Warn("send failed", "uuid", id, "event", event, "err", err)
		return err
	}
	h.metrics.MessagesOut.Add(1)
	return nil
}

// CloseAll closes every registered transport. Their dispatchers then see
// a read error and tear down as for any other disconnect.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	h.closing.Store(true)
	h.mu.Unlock()

	for _, c := range h.registry.Active("") {
		_ = c.Close()
	}
}

// Wait blocks until every dispatcher started by Go has returned. Call it
// after CloseAll.
func (h *Hub) Wait() {
	h.wg.Wait()
}

func (h *Hub) issue(t Transport) (*Connection, error) {
	for attempt := 0; attempt < 3; attempt++ {
		c := NewConnection(h.newID(), t)
		err := h.registry.Register(c.ID(), c)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrDuplicateIdentity) {
			return nil, err
		}
		h.log.Error("identity collision", "uuid", c.ID())
	}
	return nil, ErrDuplicateIdentity
}
