// Package tcp adapts the platform TCP stack to the transport capability set.
package tcp

import (
	"context"
	"io"
	"net"
	"time"

	"http-stack/transport"

	"github.com/pkg/errors"
)

// Conn wraps a net.Conn.
type Conn struct {
	nc net.Conn
}

var _ transport.Conn = (*Conn)(nil)

func WrapConn(nc net.Conn) *Conn { return &Conn{nc: nc} }

func (c *Conn) Read(p []byte) (n int, err error) {
	n, err = c.nc.Read(p)
	return n, mapErr(err)
}

func (c *Conn) Write(p []byte) (n int, err error) {
	n, err = c.nc.Write(p)
	return n, mapErr(err)
}

func (c *Conn) Close() error { return c.nc.Close() }

func (c *Conn) LocalAddr() transport.Addr  { return c.nc.LocalAddr() }
func (c *Conn) RemoteAddr() transport.Addr { return c.nc.RemoteAddr() }

func (c *Conn) SetReadDeadLine(t time.Time)  { _ = c.nc.SetReadDeadline(t) }
func (c *Conn) SetWriteDeadLine(t time.Time) { _ = c.nc.SetWriteDeadline(t) }

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		return transport.ErrConnClosed
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return transport.ErrDeadLineExceeded
	}

	return err
}

// Listener adapts a net.Listener to the context-aware listener contract.
type Listener struct {
	nl net.Listener
}

var _ transport.ConnListener = (*Listener)(nil)

func Listen(addr string) (*Listener, error) {
	nl, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "listening")
	}
	return &Listener{nl: nl}, nil
}

func WrapListener(nl net.Listener) *Listener { return &Listener{nl: nl} }

func (l *Listener) Accept(ctx context.Context) (transport.Conn, error) {
	stop := context.AfterFunc(ctx, func() { _ = l.nl.Close() })
	defer stop()

	nc, err := l.nl.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, transport.ErrConnListenerClosed
		}
		return nil, errors.Wrap(err, "accepting connection")
	}

	return WrapConn(nc), nil
}

func (l *Listener) Close() error { return l.nl.Close() }

func (l *Listener) Addr() transport.Addr { return l.nl.Addr() }
