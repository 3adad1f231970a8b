// Package client is the consuming side of the chat protocol. It sends
// events and hands every decoded inbound envelope to registered handlers;
// presenting those events is left to the caller.
package client

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/gorilla/websocket"

	"chatrelay/internal/protocol"
)

// Handler is called once per valid inbound envelope, on the Listen
// goroutine.
type Handler func(env protocol.Envelope, p protocol.Payload)

type Option func(*Client)

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

type conn interface {
	readFrame() ([]byte, error)
	writeFrame([]byte) error
	close() error
}

type Client struct {
	conn conn
	log  *slog.Logger

	writeMu sync.Mutex

	mu       sync.RWMutex
	handlers []Handler
	uuid     string
}

// Dial connects to a TCP chat server.
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}
	return newClient(&lineConn{c: nc, r: bufio.NewReader(nc)}, opts), nil
}

// DialWS connects to the server's WebSocket endpoint, e.g.
// ws://localhost:8080/ws.
func DialWS(ctx context.Context, url string, opts ...Option) (*Client, error) {
	wc, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", url, err)
	}
	return newClient(&wsConn{c: wc}, opts), nil
}

func newClient(cn conn, opts []Option) *Client {
	c := &Client{conn: cn, log: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle registers h for every subsequent inbound envelope.
func (c *Client) Handle(h Handler) {
	c.mu.Lock()
	c.handlers = append(c.handlers, h)
	c.mu.Unlock()
}

// UUID is the identity received in the server's init event, or "" until
// it has arrived.
func (c *Client) UUID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.uuid
}

func (c *Client) SendEvent(event protocol.Event, data any) error {
	frame, err := protocol.Encode(event, data)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.writeFrame(frame)
}

func (c *Client) SendChat(content string) error {
	return c.SendEvent(protocol.EventChatMessage, protocol.ChatMessageData{Content: content})
}

// Listen reads until the server closes the connection or ctx is done.
// Undecodable or malformed frames are logged and skipped. A clean close
// by the server returns nil.
func (c *Client) Listen(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = c.conn.close() })
	defer stop()

	for {
		raw, err := c.conn.readFrame()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		frame, err := protocol.Decode(raw)
		if err != nil {
			c.log.Warn("undecodable frame from server", "err", err)
			continue
		}
		env, err := frame.Envelope()
		if err != nil {
			c.log.Warn("invalid message from server", "err", err)
			continue
		}
		p, err := env.Payload()
		if err != nil {
			c.log.Warn("invalid message from server", "event", env.Event, "err", err)
			continue
		}

		c.mu.Lock()
		if hello, ok := p.(protocol.InitData); ok {
			c.uuid = hello.UUID
		}
		handlers := c.handlers
		c.mu.Unlock()

		for _, h := range handlers {
			h(env, p)
		}
	}
}

func (c *Client) Close() error {
	return c.conn.close()
}

type lineConn struct {
	c net.Conn
	r *bufio.Reader
}

func (l *lineConn) readFrame() ([]byte, error) {
	line, err := l.r.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return line, nil
		}
		return nil, err
	}
	return line, nil
}

func (l *lineConn) writeFrame(frame []byte) error {
	_, err := l.c.Write(frame)
	return err
}

func (l *lineConn) close() error { return l.c.Close() }

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) readFrame() ([]byte, error) {
	for {
		kind, data, err := w.c.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, err
		}
		if kind == websocket.TextMessage {
			return data, nil
		}
	}
}

func (w *wsConn) writeFrame(frame []byte) error {
	return w.c.WriteMessage(websocket.TextMessage, bytes.TrimRight(frame, "\n"))
}

func (w *wsConn) close() error { return w.c.Close() }
