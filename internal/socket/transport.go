package socket

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"chatrelay/internal/config"
)

// ErrFrameTooLong is returned for an inbound frame larger than the
// configured limit. The oversized frame has been consumed; the next read
// starts on a fresh frame.
var ErrFrameTooLong = errors.New("socket: frame exceeds size limit")

// Transport moves whole frames over one client connection. ReadFrame is
// only ever called from the connection's dispatcher goroutine; WriteFrame
// calls are serialized by Connection.
type Transport interface {
	ReadFrame() ([]byte, error)
	WriteFrame(frame []byte) error
	Close() error
	RemoteAddr() string
}

type tcpTransport struct {
	conn     net.Conn
	r        *bufio.Reader
	maxBytes int

	idle      time.Duration
	writeWait time.Duration
}

// NewTCPTransport frames a stream connection by newlines.
func NewTCPTransport(conn net.Conn, cfg config.Config) Transport {
	return &tcpTransport{
		conn:      conn,
		r:         bufio.NewReaderSize(conn, 4096),
		maxBytes:  cfg.MaxMessageBytes,
		idle:      time.Duration(cfg.IdleTimeoutMS) * time.Millisecond,
		writeWait: time.Duration(cfg.WriteWaitMS) * time.Millisecond,
	}
}

func (t *tcpTransport) ReadFrame() ([]byte, error) {
	if t.idle > 0 {
		_ = t.conn.SetReadDeadline(time.Now().Add(t.idle))
	}

	var (
		frame   []byte
		tooLong bool
	)
	for {
		chunk, err := t.r.ReadSlice('\n')
		if !tooLong {
			// room for a "\r\n" terminator; the exact check runs on the trimmed frame
			if t.maxBytes > 0 && len(frame)+len(chunk) > t.maxBytes+2 {
				tooLong = true
				frame = nil
			} else {
				frame = append(frame, chunk...)
			}
		}

		switch {
		case err == nil:
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(frame) > 0 && !tooLong:
			// last line without a terminator
		default:
			return nil, err
		}
		break
	}

	frame = bytes.TrimRight(frame, "\r\n")
	if tooLong || (t.maxBytes > 0 && len(frame) > t.maxBytes) {
		return nil, ErrFrameTooLong
	}
	return frame, nil
}

func (t *tcpTransport) WriteFrame(frame []byte) error {
	if t.writeWait > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeWait))
	}
	_, err := t.conn.Write(frame)
	return err
}

func (t *tcpTransport) Close() error {
	return t.conn.Close()
}

func (t *tcpTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

type wsTransport struct {
	conn *websocket.Conn
	done chan struct{}

	idle       time.Duration
	pongWait   time.Duration
	writeWait  time.Duration
	pingPeriod time.Duration

	// Touched only by the reading goroutine; gorilla runs the pong
	// handler inside ReadMessage.
	idleAt time.Time
	pongAt time.Time
}

// NewWSTransport carries one frame per WebSocket text message and keeps
// the peer alive with pings. The read deadline is whichever comes first
// of the idle deadline for the current frame and the pong deadline.
func NewWSTransport(conn *websocket.Conn, cfg config.Config) Transport {
	t := &wsTransport{
		conn:       conn,
		done:       make(chan struct{}),
		idle:       time.Duration(cfg.IdleTimeoutMS) * time.Millisecond,
		pongWait:   time.Duration(cfg.PongWaitMS) * time.Millisecond,
		writeWait:  time.Duration(cfg.WriteWaitMS) * time.Millisecond,
		pingPeriod: time.Duration(cfg.PingPeriodMS) * time.Millisecond,
	}

	if cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(int64(cfg.MaxMessageBytes))
	}
	if t.pongWait > 0 {
		t.pongAt = time.Now().Add(t.pongWait)
		_ = conn.SetReadDeadline(t.pongAt)
		conn.SetPongHandler(func(string) error {
			t.pongAt = time.Now().Add(t.pongWait)
			return conn.SetReadDeadline(t.readDeadline())
		})
	}

	if t.pingPeriod > 0 {
		go t.pingLoop()
	}
	return t
}

// readDeadline returns the zero time when neither limit is set.
func (t *wsTransport) readDeadline() time.Time {
	switch {
	case t.idleAt.IsZero():
		return t.pongAt
	case t.pongAt.IsZero() || t.idleAt.Before(t.pongAt):
		return t.idleAt
	}
	return t.pongAt
}

// writeDeadline returns the zero time (no deadline) when WRITE_WAIT_MS is 0.
func (t *wsTransport) writeDeadline() time.Time {
	if t.writeWait <= 0 {
		return time.Time{}
	}
	return time.Now().Add(t.writeWait)
}

func (t *wsTransport) pingLoop() {
	ticker := time.NewTicker(t.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := t.conn.WriteControl(websocket.PingMessage, nil, t.writeDeadline()); err != nil {
				return
			}
		case <-t.done:
			return
		}
	}
}

func (t *wsTransport) ReadFrame() ([]byte, error) {
	if t.idle > 0 {
		t.idleAt = time.Now().Add(t.idle)
		_ = t.conn.SetReadDeadline(t.readDeadline())
	}

	for {
		kind, data, err := t.conn.ReadMessage()
		if err != nil {
			// a read limit violation fails the connection in gorilla, so
			// unlike TCP it is not recoverable here
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return nil, io.EOF
			}
			return nil, err
		}
		if kind != websocket.TextMessage {
			continue
		}
		return data, nil
	}
}

func (t *wsTransport) WriteFrame(frame []byte) error {
	_ = t.conn.SetWriteDeadline(t.writeDeadline())
	return t.conn.WriteMessage(websocket.TextMessage, bytes.TrimRight(frame, "\n"))
}

func (t *wsTransport) Close() error {
	close(t.done)
	_ = t.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), t.writeDeadline())
	return t.conn.Close()
}

func (t *wsTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}
