// Package server drives the HTTP/1.1 engine over accepted connections:
// accept loop, keep-alive exchange sequencing, protocol-switch hand-off.
package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"http-stack/transport"
)

type Server struct {
	l transport.ConnListener

	closeListener func()
	wg            sync.WaitGroup

	logger *slog.Logger
	opts   Options

	handle HandleFunc
	clock  clock.Clock
}

func New(
	l transport.ConnListener,
	logger *slog.Logger,
	clock clock.Clock,
	handle HandleFunc,
	opts Options,
) *Server {
	return &Server{
		l:      l,
		logger: logger,
		opts:   opts,
		handle: handle,
		clock:  clock,
	}
}

func (s *Server) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.closeListener = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		connCtx, connCancel := context.WithCancel(context.Background())
		for {
			conn, err := s.acceptConn(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					s.logger.Error(
						"unexpected error when accepting connection",
						"error", err.Error(),
					)
				}
				connCancel()
				return
			}

			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				conn.start(connCtx)
			}()
		}
	}()
}

func (s *Server) acceptConn(ctx context.Context) (*conn, error) {
	con, err := s.l.Accept(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listening for connection")
	}

	return &conn{
		con:    con,
		stream: transport.NewStream(con),
		handle: s.handle,
		clock:  s.clock,
		logger: s.logger.With("conn", con.RemoteAddr().String()),
		opts:   s.opts,
	}, nil
}

func (s *Server) Close() error {
	s.closeListener()
	s.wg.Wait()
	return nil
}
