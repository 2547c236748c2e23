package http

import (
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"http-stack/transport"
)

// scriptConn serves a scripted input and records everything written.
// Reads past the script return io.EOF, which the Stream surfaces as
// ErrConnClosed.
type scriptConn struct {
	r io.Reader
	w bytes.Buffer
}

var _ transport.Conn = (*scriptConn)(nil)

func newScriptConn(input string) *scriptConn {
	return &scriptConn{r: strings.NewReader(input)}
}

func (c *scriptConn) Read(p []byte) (n int, err error)  { return c.r.Read(p) }
func (c *scriptConn) Write(p []byte) (n int, err error) { return c.w.Write(p) }
func (c *scriptConn) Close() error                      { return nil }

func (c *scriptConn) LocalAddr() transport.Addr  { return scriptAddr("local") }
func (c *scriptConn) RemoteAddr() transport.Addr { return scriptAddr("remote") }

func (c *scriptConn) SetReadDeadLine(t time.Time)  {}
func (c *scriptConn) SetWriteDeadLine(t time.Time) {}

type scriptAddr string

func (a scriptAddr) String() string { return string(a) }

// testDate pins the Date header: "Mon, 04 May 2015 10:00:00 GMT".
var testDate = time.Date(2015, time.May, 4, 10, 0, 0, 0, time.UTC)

const testDateHeader = "Date: Mon, 04 May 2015 10:00:00 GMT"

func testClock() clock.Clock {
	mock := clock.NewMock()
	mock.Set(testDate)
	return mock
}

func newTestExchange(input string) (*Exchange, *scriptConn, error) {
	conn := newScriptConn(input)
	ex, err := NewExchange(transport.NewStream(conn), ExchangeOptions{Clock: testClock()})
	return ex, conn, err
}
