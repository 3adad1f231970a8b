package socket

import (
	"errors"
	"io"
	"net"

	"chatrelay/internal/protocol"
)

var ErrUnknownEvent = errors.New("socket: unknown event")

// Go serves t on its own goroutine. Hub.Wait covers it.
func (h *Hub) Go(t Transport) {
	h.mu.Lock()
	if h.closing.Load() {
		h.mu.Unlock()
		_ = t.Close()
		return
	}
	h.wg.Add(1)
	h.mu.Unlock()

	go func() {
		defer h.wg.Done()
		h.Serve(t)
	}()
}

// Serve runs the whole life of one connection: handshake, then the read
// loop until the peer goes away. It returns once the transport is closed.
func (h *Hub) Serve(t Transport) {
	c, err := h.issue(t)
	if errors.Is(err, ErrRegistryFull) {
		h.metrics.RejectedConnections.Add(1)
		h.log.Warn("connection rejected: server full", "remote", t.RemoteAddr(), "max", h.cfg.MaxConnections)
		_ = t.Close()
		return
	}
	if err != nil {
		h.log.Error("register connection", "remote", t.RemoteAddr(), "err", err)
		_ = t.Close()
		return
	}
	h.metrics.ConnectedClients.Add(1)
	h.metrics.TotalConnections.Add(1)

	defer h.disconnect(c)
	if h.closing.Load() {
		// registered after CloseAll took its snapshot
		return
	}
	defer func() {
		if v := recover(); v != nil {
			h.log.Error("panic recovered in dispatcher", "uuid", c.ID(), "panic", v)
		}
	}()

	h.log.Info("joined the chat", "uuid", c.ID(), "remote", c.RemoteAddr())

	_ = h.Send(c.ID(), protocol.InitData{UUID: c.ID()})
	h.Broadcast(protocol.UserJoinedData{UUID: c.ID()}, c.ID())

	h.readLoop(c)
}

func (h *Hub) readLoop(c *Connection) {
	for {
		raw, err := c.transport.ReadFrame()
		if err != nil {
			if errors.Is(err, ErrFrameTooLong) {
				h.metrics.DecodeErrors.Add(1)
				h.log.Warn("dropped oversized frame", "uuid", c.ID(), "limit", h.cfg.MaxMessageBytes)
				continue
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				h.log.Info("goodbye", "uuid", c.ID())
			} else {
				h.log.Info("goodbye", "uuid", c.ID(), "err", err)
			}
			return
		}
		h.metrics.MessagesIn.Add(1)
		h.dispatch(c, raw)
	}
}

func (h *Hub) dispatch(c *Connection, raw []byte) {
	frame, err := protocol.Decode(raw)
	if err != nil {
		h.metrics.DecodeErrors.Add(1)
		h.log.Warn("undecodable frame", "uuid", c.ID(), "err", err)
		return
	}
	env, err := frame.Envelope()
	if err != nil {
		h.metrics.MalformedEnvelopes.Add(1)
		h.log.Warn("invalid message", "uuid", c.ID(), "err", err)
		return
	}
	payload, err := env.Payload()
	if err != nil {
		h.metrics.MalformedEnvelopes.Add(1)
		h.log.Warn("invalid message", "uuid", c.ID(), "event", env.Event, "err", err)
		return
	}

	switch p := payload.(type) {
	case protocol.ChatMessageData:
		h.log.Info("chat message", "uuid", c.ID(), "content", p.Content)
		h.Broadcast(protocol.ChatMessageData{UUID: c.ID(), Content: p.Content}, c.ID())
	default:
		h.metrics.UnknownEvents.Add(1)
		h.log.Warn("ignored event", "uuid", c.ID(), "event", env.Event, "err", ErrUnknownEvent)
	}
}

// disconnect is the only teardown path; no departure event is broadcast.
func (h *Hub) disconnect(c *Connection) {
	if h.registry.Deactivate(c.ID()) {
		h.metrics.ConnectedClients.Add(-1)
		h.metrics.TotalDisconnects.Add(1)
	}
	_ = c.Close()
	h.registry.Remove(c.ID())
}
