package http

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"http-stack/application/util/rule"
	"http-stack/transport"
)

func TestLineBufferTakeLine(t *testing.T) {
	stream := transport.NewStream(newScriptConn("first\r\nsecond\r\nrest"))
	lb := NewLineBuffer(stream)

	line, err := lb.TakeLine()
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), line)

	line, err = lb.TakeLine()
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), line)
}

func TestLineBufferLoadUntilEOF(t *testing.T) {
	stream := transport.NewStream(newScriptConn("no terminator"))
	lb := NewLineBuffer(stream)

	err := lb.LoadUntil(rule.CRLF)
	assert.ErrorIs(t, err, transport.ErrConnClosed)
}

func TestLineBufferOverReadServesBody(t *testing.T) {
	stream := transport.NewStream(newScriptConn("head\r\nbody bytes"))
	lb := NewLineBuffer(stream)

	// Loading the header line over-reads into the body.
	_, err := lb.TakeLine()
	require.NoError(t, err)

	got, err := io.ReadAll(readerFunc(lb.Read))
	require.ErrorIs(t, err, transport.ErrConnClosed)
	assert.Equal(t, []byte("body bytes"), got)
}

func TestLineBufferDrainRestoresStream(t *testing.T) {
	stream := transport.NewStream(newScriptConn("head\r\nnext request"))
	lb := NewLineBuffer(stream)

	_, err := lb.TakeLine()
	require.NoError(t, err)
	require.Positive(t, lb.Buffered())

	stream.PutBack(lb.Drain())
	assert.Zero(t, lb.Buffered())

	buf := make([]byte, 12)
	n, err := io.ReadFull(stream, buf)
	require.NoError(t, err)
	assert.Equal(t, "next request", string(buf[:n]))
}

type readerFunc func(p []byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }
