package pipe

import (
	"context"
	"sync"

	"http-stack/transport"

	"github.com/benbjohnson/clock"
)

// Listener hands out the server half of a pipe pair for every Dial.
type Listener struct {
	addr  Addr
	clock clock.Clock

	conns  chan *Conn
	closed chan struct{}
	once   sync.Once
}

var _ transport.ConnListener = (*Listener)(nil)

func Listen(name string, clock clock.Clock) *Listener {
	return &Listener{
		addr:   Addr{Name: name},
		clock:  clock,
		conns:  make(chan *Conn),
		closed: make(chan struct{}),
	}
}

// Dial connects to the listener and returns the client half.
func (l *Listener) Dial(ctx context.Context, name string) (transport.Conn, error) {
	client, server := Pipe(name, l.addr.Name, l.clock)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closed:
		return nil, transport.ErrConnListenerClosed
	case l.conns <- server:
		return client, nil
	}
}

func (l *Listener) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closed:
		return nil, transport.ErrConnListenerClosed
	case conn := <-l.conns:
		return conn, nil
	}
}

func (l *Listener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}
