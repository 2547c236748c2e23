package http

import (
	"bytes"
	"io"

	"github.com/pkg/errors"

	"http-stack/application/util/rule"
	"http-stack/transport"
)

// LineBuffer loads bytes from src until a delimiter is present, then hands
// out CRLF-terminated lines one at a time. Bytes loaded past what TakeLine
// consumed stay buffered and are served by Read before src is touched
// again, so the over-read past a header block becomes the first body bytes.
type LineBuffer struct {
	src io.Reader

	buf bytes.Buffer
	tmp []byte
}

func NewLineBuffer(src io.Reader) *LineBuffer {
	return &LineBuffer{src: src, tmp: make([]byte, 4096)}
}

// LoadUntil reads from src until the internal buffer contains delim.
// Returns transport.ErrConnClosed if src ends before delim shows up.
func (lb *LineBuffer) LoadUntil(delim []byte) error {
	for !bytes.Contains(lb.buf.Bytes(), delim) {
		n, err := lb.src.Read(lb.tmp)
		lb.buf.Write(lb.tmp[:n])
		if err != nil {
			if bytes.Contains(lb.buf.Bytes(), delim) {
				break
			}
			if errors.Is(err, io.EOF) {
				err = transport.ErrConnClosed
			}
			return errors.Wrap(err, "loading until delimiter")
		}
	}

	return nil
}

// TakeLine returns the bytes up to the next CRLF and consumes through it.
func (lb *LineBuffer) TakeLine() ([]byte, error) {
	if err := lb.LoadUntil(rule.CRLF); err != nil {
		return nil, err
	}

	idx := bytes.Index(lb.buf.Bytes(), rule.CRLF)
	line := bytes.Clone(lb.buf.Bytes()[:idx])
	lb.buf.Next(idx + len(rule.CRLF))

	return line, nil
}

// Read drains buffered bytes first, then reads from src directly.
func (lb *LineBuffer) Read(p []byte) (n int, err error) {
	if lb.buf.Len() > 0 {
		n, err = lb.buf.Read(p)
		if err == io.EOF {
			err = nil
		}
		return n, err
	}

	return lb.src.Read(p)
}

// Buffered reports how many over-read bytes are pending.
func (lb *LineBuffer) Buffered() int { return lb.buf.Len() }

// Drain returns the over-read bytes and empties the buffer. The caller
// typically puts them back on the transport for the next reader.
func (lb *LineBuffer) Drain() []byte {
	b := bytes.Clone(lb.buf.Bytes())
	lb.buf.Reset()
	return b
}
