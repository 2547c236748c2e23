package server

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"

	"http-stack/application/http"
	"http-stack/transport"
	"http-stack/transport/pipe"
)

const testDateHeader = "Date: Mon, 04 May 2015 10:00:00 GMT"

type ServerTestSuite struct {
	suite.Suite

	ctx      context.Context
	clock    *clock.Mock
	listener *pipe.Listener
	server   *Server

	handle HandleFunc
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

func (s *ServerTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = clock.NewMock()
	s.clock.Set(time.Date(2015, time.May, 4, 10, 0, 0, 0, time.UTC))

	s.listener = pipe.Listen("server", s.clock)

	// Default handler; tests overwrite it before dialing.
	s.handle = func(c *HandleContext, ex *http.Exchange) {
		ex.ResponseHeaders().Set("Content-Type", "text/plain")
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.server = New(s.listener, logger, s.clock,
		func(c *HandleContext, ex *http.Exchange) { s.handle(c, ex) },
		Options{},
	)
	s.server.Start()
}

func (s *ServerTestSuite) TearDownTest() {
	defer goleak.VerifyNone(s.T())
	s.Require().NoError(s.listener.Close())
	s.Require().NoError(s.server.Close())
}

func (s *ServerTestSuite) dial() transport.Conn {
	conn, err := s.listener.Dial(s.ctx, "client")
	s.Require().NoError(err)
	return conn
}

// readFull reads exactly n bytes off conn.
func (s *ServerTestSuite) readFull(conn transport.Conn, n int) string {
	buf := make([]byte, n)
	read := 0
	for read < n {
		nn, err := conn.Read(buf[read:])
		s.Require().NoError(err)
		read += nn
	}
	return string(buf)
}

const minimalResponse = "HTTP/1.1 200 OK\r\n" +
	"Content-Length: 0\r\n" +
	"Content-Type: text/plain\r\n" +
	testDateHeader + "\r\n" +
	"\r\n"

func (s *ServerTestSuite) TestServeOnce() {
	conn := s.dial()
	defer conn.Close()

	_, err := conn.Write([]byte("GET /Minimal HTTP/1.1\r\nHost: x\r\n\r\n"))
	s.Require().NoError(err)

	s.Equal(minimalResponse, s.readFull(conn, len(minimalResponse)))
}

func (s *ServerTestSuite) TestKeepAlive() {
	conn := s.dial()
	defer conn.Close()

	for i := 0; i < 2; i++ {
		_, err := conn.Write([]byte("GET /Minimal HTTP/1.1\r\nHost: x\r\n\r\n"))
		s.Require().NoError(err)

		s.Equal(minimalResponse, s.readFull(conn, len(minimalResponse)))
	}
}

func (s *ServerTestSuite) TestRequestBody() {
	s.handle = func(c *HandleContext, ex *http.Exchange) {
		body, err := io.ReadAll(readerFunc(ex.Read))
		s.Require().NoError(err)
		s.Equal("foo bar baz", string(body))

		ex.ResponseHeaders().Set("Content-Length", "17")
		_, err = ex.Write([]byte("how now brown cow"))
		s.Require().NoError(err)
	}

	conn := s.dial()
	defer conn.Close()

	_, err := conn.Write([]byte(
		"PUT /u HTTP/1.1\r\nHost: x\r\nContent-Length: 11\r\n\r\nfoo bar baz"))
	s.Require().NoError(err)

	expected := "HTTP/1.1 200 OK\r\n" +
		"Content-Length: 17\r\n" +
		testDateHeader + "\r\n" +
		"\r\n" +
		"how now brown cow"
	s.Equal(expected, s.readFull(conn, len(expected)))
}

func (s *ServerTestSuite) TestConnectionClose() {
	conn := s.dial()
	defer conn.Close()

	_, err := conn.Write([]byte(
		"GET /Minimal HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"))
	s.Require().NoError(err)

	s.readFull(conn, len(minimalResponse))

	// The server does not serve another exchange.
	_, err = conn.Read(make([]byte, 1))
	s.ErrorIs(err, transport.ErrConnClosed)
}

func (s *ServerTestSuite) TestBadRequest() {
	conn := s.dial()
	defer conn.Close()

	_, err := conn.Write([]byte("NOT A VALID REQUEST LINE\r\n\r\n"))
	s.Require().NoError(err)

	expected := "HTTP/1.1 400 Bad Request\r\n" +
		"Content-Length: 0\r\n" +
		testDateHeader + "\r\n" +
		"\r\n"
	s.Equal(expected, s.readFull(conn, len(expected)))

	_, err = conn.Read(make([]byte, 1))
	s.ErrorIs(err, transport.ErrConnClosed)
}

func (s *ServerTestSuite) TestUnsupportedVersion() {
	conn := s.dial()
	defer conn.Close()

	_, err := conn.Write([]byte("GET / HTTP/1.0\r\nHost: x\r\n\r\n"))
	s.Require().NoError(err)

	expected := "HTTP/1.1 505 HTTP Version Not Supported\r\n" +
		"Content-Length: 0\r\n" +
		testDateHeader + "\r\n" +
		"\r\n"
	s.Equal(expected, s.readFull(conn, len(expected)))
}

func (s *ServerTestSuite) TestHandlerPanicClosesConn() {
	s.handle = func(c *HandleContext, ex *http.Exchange) {
		panic("boom")
	}

	conn := s.dial()
	defer conn.Close()

	_, err := conn.Write([]byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))
	s.Require().NoError(err)

	_, err = conn.Read(make([]byte, 1))
	s.ErrorIs(err, transport.ErrConnClosed)
}

func (s *ServerTestSuite) TestUpgrade() {
	echo := func(ctx context.Context, conn transport.Conn) error {
		buf := make([]byte, 64)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				if errors.Is(err, transport.ErrConnClosed) {
					return nil
				}
				return err
			}
			if _, err := conn.Write(buf[:n]); err != nil {
				return err
			}
		}
	}

	s.handle = func(c *HandleContext, ex *http.Exchange) {
		ex.SetStatus(101)
		ex.ResponseHeaders().Set("Upgrade", "echo")
		c.SwitchProtocol(echo)
	}

	conn := s.dial()
	defer conn.Close()

	_, err := conn.Write([]byte(
		"GET /echo HTTP/1.1\r\nHost: x\r\nUpgrade: echo\r\n\r\n"))
	s.Require().NoError(err)

	expected := "HTTP/1.1 101 Switching Protocols\r\n" +
		testDateHeader + "\r\n" +
		"Upgrade: echo\r\n" +
		"\r\n"
	s.Equal(expected, s.readFull(conn, len(expected)))

	// The raw transport now belongs to the echo handler.
	_, err = conn.Write([]byte("ping"))
	s.Require().NoError(err)
	s.Equal("ping", s.readFull(conn, 4))
}

type readerFunc func(p []byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }
