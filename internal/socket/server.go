package socket

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"chatrelay/internal/config"
)

// Server accepts TCP connections and hands each one to the hub.
type Server struct {
	cfg config.Config
	hub *Hub
	log *slog.Logger
}

func NewServer(cfg config.Config, hub *Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, hub: hub, log: logger}
}

// ListenAndServe listens on cfg.Addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts on ln until ctx is cancelled. On return the listener and
// every connection are closed and all dispatchers have finished.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info("listening", "addr", ln.Addr().String())

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.shutdown()
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				s.shutdown()
				return err
			}
			// transient accept failure, e.g. out of file descriptors
			backoff = nextBackoff(backoff)
			s.log.Warn("accept failed", "err", err, "retry_in", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0
		s.hub.Go(NewTCPTransport(conn, s.cfg))
	}
}

func (s *Server) shutdown() {
	s.hub.CloseAll()
	s.hub.Wait()
	s.log.Info("server stopped")
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}
