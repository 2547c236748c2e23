package http

import (
	"bytes"
	"io"
	"strconv"

	"github.com/pkg/errors"

	"http-stack/application/util/rule"
	iolib "http-stack/lib/io"
	"http-stack/transport"
)

const drainBufferSize = 64 << 10

type chunkState int

const (
	chunkHeader chunkState = iota
	chunkData
	chunkDelim
	chunkDone
)

// BodyReader presents the request body as a plain byte stream regardless of
// framing. The total bytes surfaced equal the decoded body length; the end
// of the body is io.EOF.
type BodyReader struct {
	lb   *LineBuffer
	mode BodyMode
	head *RequestHead // trailer merge target

	identity *iolib.LimitedReader

	state  chunkState
	remain uint
}

var _ io.Reader = (*BodyReader)(nil)

func newBodyReader(lb *LineBuffer, mode BodyMode, head *RequestHead) *BodyReader {
	br := &BodyReader{lb: lb, mode: mode, head: head}
	if mode.kind == bodyIdentity {
		br.identity = &iolib.LimitedReader{R: lb, N: mode.Length()}
	}
	return br
}

func (br *BodyReader) Read(p []byte) (n int, err error) {
	switch br.mode.kind {
	case bodyNone:
		return 0, io.EOF
	case bodyIdentity:
		return br.readIdentity(p)
	default:
		return br.readChunked(p)
	}
}

func (br *BodyReader) readIdentity(p []byte) (n int, err error) {
	if br.identity.N == 0 {
		return 0, io.EOF
	}

	n, err = br.identity.Read(p)
	if err != nil && errors.Is(err, io.EOF) {
		// Fewer bytes arrived than Content-Length declared.
		err = transport.ErrConnClosed
	}
	if err != nil {
		return n, errors.Wrap(err, "reading identity body")
	}
	return n, nil
}

func (br *BodyReader) readChunked(p []byte) (n int, err error) {
	for {
		switch br.state {
		case chunkDone:
			return 0, io.EOF

		case chunkHeader:
			line, err := br.lb.TakeLine()
			if err != nil {
				return 0, errors.Wrap(err, "reading chunk header")
			}

			size, err := parseChunkSize(line)
			if err != nil {
				return 0, err
			}

			if size == 0 {
				// Last chunk; trailers follow.
				if err := br.readTrailers(); err != nil {
					return 0, err
				}
				br.state = chunkDone
				return 0, io.EOF
			}

			br.remain = size
			br.state = chunkData

		case chunkData:
			if len(p) == 0 {
				return 0, nil
			}

			limit := uint(len(p))
			if limit > br.remain {
				limit = br.remain
			}

			n, err = br.lb.Read(p[:limit])
			br.remain -= uint(n)
			if br.remain == 0 {
				br.state = chunkDelim
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					err = transport.ErrConnClosed
				}
				return n, errors.Wrap(err, "reading chunk data")
			}
			if n > 0 {
				return n, nil
			}

		case chunkDelim:
			var crlf [2]byte
			if _, err := io.ReadFull(br.lb, crlf[:]); err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					err = transport.ErrConnClosed
				}
				return 0, errors.Wrap(err, "reading chunk delimiter")
			}
			if !bytes.Equal(crlf[:], rule.CRLF) {
				return 0, errors.Wrapf(ErrInvalidChunkDelimiter, "got %q", crlf[:])
			}
			br.state = chunkHeader
		}
	}
}

// parseChunkSize decodes the hex length off a chunk header line. Chunk
// extensions after ';' are ignored.
func parseChunkSize(line []byte) (uint, error) {
	sizeRaw, _, _ := bytes.Cut(line, []byte{';'})
	sizeRaw = bytes.TrimFunc(sizeRaw, rule.IsWhitespace)

	size64, err := strconv.ParseUint(string(sizeRaw), 16, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidChunkLength, "%q", string(sizeRaw))
	}

	return uint(size64), nil
}

// readTrailers merges trailer fields into the request headers under
// "/"-prefixed names so applications can tell them from head-phase headers.
func (br *BodyReader) readTrailers() error {
	for {
		line, err := br.lb.TakeLine()
		if err != nil {
			return errors.Wrap(err, "reading trailer line")
		}
		if len(line) == 0 {
			// Last trailer.
			return nil
		}

		name, value, err := parseHeaderLine(line)
		if err != nil {
			return errors.Wrapf(ErrInvalidRequestHeader, "trailer: %s", err)
		}

		br.head.Headers.Add("/"+name, value)
	}
}

// drain discards whatever of the body the application did not read.
func (br *BodyReader) drain() error {
	buf := make([]byte, drainBufferSize)
	for {
		_, err := br.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
