package transport

import (
	"io"
	"net"
	"sync"
	"time"
)

// Stream wraps a Conn with a FIFO put-back buffer for bytes that were read
// past a logical boundary (e.g. over-read past a header block). Put-back
// bytes are re-delivered by the next Read before the underlying conn is
// touched, so a Stream can be handed from one protocol reader to the next
// without losing data.
//
// On a single Stream, at most one read and one write are in flight at a
// time; each direction is serialized, the two directions are independent.
// PutBack must not be called while a read is outstanding.
type Stream struct {
	conn Conn

	rmu     sync.Mutex
	putback []byte

	wmu sync.Mutex
}

var _ Conn = (*Stream)(nil)

func NewStream(conn Conn) *Stream {
	return &Stream{conn: conn}
}

// Conn returns the wrapped connection.
func (s *Stream) Conn() Conn { return s.conn }

func (s *Stream) Read(p []byte) (n int, err error) {
	s.rmu.Lock()
	defer s.rmu.Unlock()

	if len(s.putback) > 0 {
		n = copy(p, s.putback)
		s.putback = s.putback[n:]
		return n, nil
	}

	n, err = s.conn.Read(p)
	if err == io.EOF {
		err = ErrConnClosed
	}
	return n, err
}

// PutBack prepends p to the bytes the next Read will deliver.
func (s *Stream) PutBack(p []byte) {
	if len(p) == 0 {
		return
	}

	s.rmu.Lock()
	defer s.rmu.Unlock()

	buf := make([]byte, 0, len(p)+len(s.putback))
	buf = append(buf, p...)
	buf = append(buf, s.putback...)
	s.putback = buf
}

// Buffered reports how many put-back bytes are pending.
func (s *Stream) Buffered() int {
	s.rmu.Lock()
	defer s.rmu.Unlock()
	return len(s.putback)
}

// Write writes all of p to the underlying conn.
func (s *Stream) Write(p []byte) (n int, err error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.writeFull(p)
}

func (s *Stream) writeFull(p []byte) (n int, err error) {
	for n < len(p) {
		nn, err := s.conn.Write(p[n:])
		n += nn
		if err != nil {
			if err == io.EOF {
				err = ErrConnClosed
			}
			return n, err
		}
	}
	return n, nil
}

// WriteVec writes the buffers back to back as one serialized write
// operation. No other write can interleave between them.
func (s *Stream) WriteVec(bufs ...[]byte) (n int64, err error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	vec := make(net.Buffers, 0, len(bufs))
	for _, b := range bufs {
		if len(b) > 0 {
			vec = append(vec, b)
		}
	}
	if len(vec) == 0 {
		return 0, nil
	}

	n, err = vec.WriteTo(fullWriter{s})
	if err == io.EOF {
		err = ErrConnClosed
	}
	return n, err
}

// fullWriter retries short writes so gather writes never fail with
// io.ErrShortWrite on conns that write partially.
type fullWriter struct{ s *Stream }

func (fw fullWriter) Write(p []byte) (int, error) { return fw.s.writeFull(p) }

// ReadAsync performs Read on its own goroutine and delivers the result to
// fn. p must stay valid until fn fires.
func (s *Stream) ReadAsync(p []byte, fn func(n int, err error)) {
	go func() { fn(s.Read(p)) }()
}

// WriteAsync performs Write on its own goroutine and delivers the result to
// fn. p must stay valid until fn fires.
func (s *Stream) WriteAsync(p []byte, fn func(n int, err error)) {
	go func() { fn(s.Write(p)) }()
}

func (s *Stream) Close() error { return s.conn.Close() }

func (s *Stream) LocalAddr() Addr  { return s.conn.LocalAddr() }
func (s *Stream) RemoteAddr() Addr { return s.conn.RemoteAddr() }

func (s *Stream) SetReadDeadLine(t time.Time)  { s.conn.SetReadDeadLine(t) }
func (s *Stream) SetWriteDeadLine(t time.Time) { s.conn.SetWriteDeadLine(t) }
