// Package pipe provides an in-memory conn pair. Writes land in the
// counterpart's read queue immediately; reads block until data, close or a
// deadline. It is the transport used by tests.
package pipe

import (
	"bytes"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"http-stack/transport"
)

type Addr struct {
	Name string
}

func (a Addr) String() string { return a.Name }

var _ transport.Addr = Addr{}

// half is one direction of the pair: a byte queue plus a wake channel that
// is closed (and replaced) whenever the queue state changes.
type half struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	wake   chan struct{}
	closed bool
}

func newHalf() *half {
	return &half{wake: make(chan struct{})}
}

func (h *half) wakeLocked() {
	close(h.wake)
	h.wake = make(chan struct{})
}

func (h *half) write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, transport.ErrConnClosed
	}

	n, _ := h.buf.Write(p)
	if n > 0 {
		h.wakeLocked()
	}
	return n, nil
}

func (h *half) close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.closed {
		h.closed = true
		h.wakeLocked()
	}
}

// Conn is one end of a pipe pair.
type Conn struct {
	in  *half // queue this end reads from
	out *half // counterpart's read queue

	addr Addr
	peer Addr

	rd *deadLine
	wd *deadLine
}

var _ transport.Conn = (*Conn)(nil)

// Pipe creates a connected pair. Data written on one end is buffered until
// the other end reads it.
func Pipe(name1, name2 string, clk clock.Clock) (c1, c2 *Conn) {
	oneToTwo, twoToOne := newHalf(), newHalf()

	c1 = &Conn{
		in:   twoToOne,
		out:  oneToTwo,
		addr: Addr{Name: name1},
		peer: Addr{Name: name2},
		rd:   newDeadLine(clk),
		wd:   newDeadLine(clk),
	}
	c2 = &Conn{
		in:   oneToTwo,
		out:  twoToOne,
		addr: Addr{Name: name2},
		peer: Addr{Name: name1},
		rd:   newDeadLine(clk),
		wd:   newDeadLine(clk),
	}
	return c1, c2
}

func (c *Conn) LocalAddr() transport.Addr  { return c.addr }
func (c *Conn) RemoteAddr() transport.Addr { return c.peer }

// Close shuts down both directions. Buffered data the counterpart has not
// read yet stays readable; everything after drains to ErrConnClosed.
func (c *Conn) Close() error {
	c.in.close()
	c.out.close()
	return nil
}

func (c *Conn) Read(p []byte) (n int, err error) {
	for {
		c.in.mu.Lock()
		if c.in.buf.Len() > 0 {
			n, _ = c.in.buf.Read(p)
			c.in.mu.Unlock()
			return n, nil
		}
		closed := c.in.closed
		wake := c.in.wake
		c.in.mu.Unlock()

		if closed {
			return 0, transport.ErrConnClosed
		}

		expired, timer, moved := c.rd.arm()
		if expired {
			return 0, transport.ErrDeadLineExceeded
		}

		if timer == nil {
			select {
			case <-wake:
			case <-moved:
			}
			continue
		}

		select {
		case <-wake:
		case <-moved:
		case <-timer.C:
			// Re-armed on the next pass; arm reports it expired.
		}
		timer.Stop()
	}
}

func (c *Conn) Write(p []byte) (n int, err error) {
	if c.wd.exceeded() {
		return 0, transport.ErrDeadLineExceeded
	}

	return c.out.write(p)
}

func (c *Conn) SetReadDeadLine(t time.Time)  { c.rd.set(t) }
func (c *Conn) SetWriteDeadLine(t time.Time) { c.wd.set(t) }

// deadLine tracks one direction's deadline. Moving it wakes any blocked
// operation so the new value takes effect immediately.
type deadLine struct {
	clock clock.Clock

	mu    sync.Mutex
	when  time.Time
	moved chan struct{}
}

func newDeadLine(clk clock.Clock) *deadLine {
	return &deadLine{clock: clk, moved: make(chan struct{})}
}

func (d *deadLine) set(t time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.when = t
	close(d.moved)
	d.moved = make(chan struct{})
}

// arm reports whether the deadline already passed, and if not, hands back a
// timer for the remaining time (nil when no deadline is set) plus a channel
// that fires if the deadline is moved.
func (d *deadLine) arm() (expired bool, timer *clock.Timer, moved <-chan struct{}) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.when.IsZero() {
		return false, nil, d.moved
	}

	remain := d.when.Sub(d.clock.Now())
	if remain <= 0 {
		return true, nil, d.moved
	}

	return false, d.clock.Timer(remain), d.moved
}

func (d *deadLine) exceeded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return !d.when.IsZero() && !d.clock.Now().Before(d.when)
}
