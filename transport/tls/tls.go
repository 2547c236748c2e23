// Package tls runs a TLS session over any transport.Conn. The engine treats
// the result as just another byte stream.
package tls

import (
	gotls "crypto/tls"
	"io"
	"net"
	"time"

	"http-stack/transport"

	"github.com/pkg/errors"
)

// Conn is a TLS session presented through the transport capability set.
type Conn struct {
	raw transport.Conn
	tc  *gotls.Conn
}

var _ transport.Conn = (*Conn)(nil)

// Server wraps an accepted conn with the server side of a TLS session.
func Server(raw transport.Conn, config *gotls.Config) *Conn {
	return &Conn{
		raw: raw,
		tc:  gotls.Server(netConn{conn: raw}, config),
	}
}

// Client wraps a dialed conn with the client side of a TLS session.
func Client(raw transport.Conn, config *gotls.Config) *Conn {
	return &Conn{
		raw: raw,
		tc:  gotls.Client(netConn{conn: raw}, config),
	}
}

// Handshake runs the TLS handshake eagerly. Read and Write trigger it
// implicitly otherwise.
func (c *Conn) Handshake() error {
	return errors.Wrap(c.tc.Handshake(), "tls handshake")
}

func (c *Conn) Read(p []byte) (n int, err error) {
	n, err = c.tc.Read(p)
	if errors.Is(err, io.EOF) {
		err = transport.ErrConnClosed
	}
	return n, err
}

func (c *Conn) Write(p []byte) (n int, err error) {
	n, err = c.tc.Write(p)
	if errors.Is(err, net.ErrClosed) {
		err = transport.ErrConnClosed
	}
	return n, err
}

func (c *Conn) Close() error { return c.tc.Close() }

func (c *Conn) LocalAddr() transport.Addr  { return c.raw.LocalAddr() }
func (c *Conn) RemoteAddr() transport.Addr { return c.raw.RemoteAddr() }

func (c *Conn) SetReadDeadLine(t time.Time)  { c.raw.SetReadDeadLine(t) }
func (c *Conn) SetWriteDeadLine(t time.Time) { c.raw.SetWriteDeadLine(t) }

// netConn adapts transport.Conn to the net.Conn surface crypto/tls expects.
type netConn struct {
	conn transport.Conn
}

var _ net.Conn = netConn{}

func (nc netConn) Read(p []byte) (n int, err error) {
	n, err = nc.conn.Read(p)
	if errors.Is(err, transport.ErrConnClosed) {
		err = io.EOF
	}
	return n, err
}

func (nc netConn) Write(p []byte) (int, error) { return nc.conn.Write(p) }
func (nc netConn) Close() error                { return nc.conn.Close() }

func (nc netConn) LocalAddr() net.Addr  { return wireAddr{nc.conn.LocalAddr()} }
func (nc netConn) RemoteAddr() net.Addr { return wireAddr{nc.conn.RemoteAddr()} }

func (nc netConn) SetDeadline(t time.Time) error {
	nc.conn.SetReadDeadLine(t)
	nc.conn.SetWriteDeadLine(t)
	return nil
}

func (nc netConn) SetReadDeadline(t time.Time) error {
	nc.conn.SetReadDeadLine(t)
	return nil
}

func (nc netConn) SetWriteDeadline(t time.Time) error {
	nc.conn.SetWriteDeadLine(t)
	return nil
}

type wireAddr struct {
	addr transport.Addr
}

func (a wireAddr) Network() string { return "tcp" }

func (a wireAddr) String() string {
	if a.addr == nil {
		return ""
	}
	return a.addr.String()
}
