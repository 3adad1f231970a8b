package socket

import (
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"chatrelay/internal/config"
)

func pipeTransport(t *testing.T, cfg config.Config, input string) Transport {
	t.Helper()
	server, peer := net.Pipe()
	go func() {
		_, _ = io.Copy(peer, strings.NewReader(input))
		peer.Close()
	}()
	t.Cleanup(func() { server.Close() })
	return NewTCPTransport(server, cfg)
}

func TestTCPTransportFraming(t *testing.T) {
	tr := pipeTransport(t, config.Default(), "one\r\ntwo\n\nlast")

	for _, want := range []string{"one", "two", "", "last"} {
		got, err := tr.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if string(got) != want {
			t.Errorf("frame %q, want %q", got, want)
		}
	}
	if _, err := tr.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Errorf("after last frame err = %v, want EOF", err)
	}
}

func TestTCPTransportOversizedFrame(t *testing.T) {
	cfg := config.Default()
	cfg.MaxMessageBytes = 16
	long := strings.Repeat("x", 10000)
	tr := pipeTransport(t, cfg, "short\n"+long+"\nafter\n")

	got, err := tr.ReadFrame()
	if err != nil || string(got) != "short" {
		t.Fatalf("first frame %q, %v", got, err)
	}
	if _, err := tr.ReadFrame(); !errors.Is(err, ErrFrameTooLong) {
		t.Fatalf("oversized frame err = %v, want ErrFrameTooLong", err)
	}
	got, err = tr.ReadFrame()
	if err != nil || string(got) != "after" {
		t.Errorf("frame after oversized one %q, %v", got, err)
	}
}

func TestTCPTransportLimitExcludesTerminator(t *testing.T) {
	cfg := config.Default()
	cfg.MaxMessageBytes = 16
	exact := strings.Repeat("a", 16)
	over := strings.Repeat("b", 17)
	tr := pipeTransport(t, cfg, exact+"\r\n"+over+"\r\n"+exact+"\n"+over+"\n"+exact)

	steps := []struct {
		want string
		err  error
	}{
		{exact, nil},
		{"", ErrFrameTooLong},
		{exact, nil},
		{"", ErrFrameTooLong},
		{exact, nil},
	}
	for i, s := range steps {
		got, err := tr.ReadFrame()
		if !errors.Is(err, s.err) || string(got) != s.want {
			t.Errorf("frame %d = %q, %v; want %q, %v", i, got, err, s.want, s.err)
		}
	}
}

func TestTCPTransportIdleTimeout(t *testing.T) {
	cfg := config.Default()
	cfg.IdleTimeoutMS = 20
	server, peer := net.Pipe()
	defer peer.Close()
	defer server.Close()

	tr := NewTCPTransport(server, cfg)
	start := time.Now()
	_, err := tr.ReadFrame()
	var ne net.Error
	if !errors.As(err, &ne) || !ne.Timeout() {
		t.Fatalf("err = %v, want a timeout", err)
	}
	if time.Since(start) > time.Second {
		t.Error("idle timeout took too long")
	}
}

// wsPair upgrades one connection on a test server and returns the server
// side as a Transport along with the dialed client conn.
func wsPair(t *testing.T, cfg config.Config) (Transport, *websocket.Conn) {
	t.Helper()
	conns := make(chan *websocket.Conn, 1)
	var up websocket.Upgrader
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- c
	}))
	t.Cleanup(ts.Close)

	peer, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { peer.Close() })

	select {
	case c := <-conns:
		tr := NewWSTransport(c, cfg)
		t.Cleanup(func() { _ = tr.Close() })
		return tr, peer
	case <-time.After(2 * time.Second):
		t.Fatal("upgrade did not complete")
		return nil, nil
	}
}

func TestWSTransportIdleTimeout(t *testing.T) {
	cfg := config.Default()
	cfg.IdleTimeoutMS = 50
	cfg.PongWaitMS = 5000
	cfg.PingPeriodMS = 10
	tr, peer := wsPair(t, cfg)

	// answers pings but never sends a frame
	go func() {
		for {
			if _, _, err := peer.ReadMessage(); err != nil {
				return
			}
		}
	}()

	start := time.Now()
	_, err := tr.ReadFrame()
	var ne net.Error
	if !errors.As(err, &ne) || !ne.Timeout() {
		t.Fatalf("err = %v, want a timeout", err)
	}
	if time.Since(start) > time.Second {
		t.Error("idle timeout took too long; pongs kept pushing the deadline")
	}
}

func TestWSTransportIdleResetsPerFrame(t *testing.T) {
	cfg := config.Default()
	cfg.IdleTimeoutMS = 200
	tr, peer := wsPair(t, cfg)

	for i := 0; i < 3; i++ {
		time.Sleep(100 * time.Millisecond)
		if err := peer.WriteMessage(websocket.TextMessage, []byte("{}")); err != nil {
			t.Fatalf("write: %v", err)
		}
		if got, err := tr.ReadFrame(); err != nil || string(got) != "{}" {
			t.Fatalf("frame %d = %q, %v", i, got, err)
		}
	}
}

func TestWSTransportNoWriteDeadline(t *testing.T) {
	cfg := config.Default()
	cfg.WriteWaitMS = 0
	tr, peer := wsPair(t, cfg)

	if err := tr.WriteFrame([]byte("{\"event\":\"init\",\"data\":{}}\n")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	_ = peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := peer.ReadMessage()
	if err != nil || string(data) != "{\"event\":\"init\",\"data\":{}}" {
		t.Errorf("peer read %q, %v", data, err)
	}
}
