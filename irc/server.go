package irc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// Server accepts TCP connections and hands each one to the handler as a
// fresh Conn. It does not manage connections beyond accept; lifecycle belongs
// to the handler (the bridge).
type Server struct {
	addr string
	host string

	ln net.Listener
	wg sync.WaitGroup
}

// NewServer prepares a listener on addr. host is the server name used as the
// prefix on numeric replies.
func NewServer(addr, host string) *Server {
	return &Server{addr: addr, host: host}
}

// Addr returns the bound address once Serve has started listening.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve listens and accepts until ctx is cancelled. handler runs on its own
// goroutine per connection, owns the Conn from then on, and is expected to
// call Run to drive the read loop.
func (s *Server) Serve(ctx context.Context, handler func(*Conn)) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.ln = ln
	slog.Info("irc listener started", slog.String("addr", ln.Addr().String()))

	go func() {
		<-ctx.Done()
		if err := ln.Close(); err != nil {
			slog.Debug("irc listener close", slog.Any("err", err))
		}
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.wg.Wait()
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		c := NewConn(conn, s.host)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			handler(c)
		}()
	}
}
