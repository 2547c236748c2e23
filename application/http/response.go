package http

import (
	"bytes"
	"strconv"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"http-stack/application/http/status"
	"http-stack/application/util/rule"
	"http-stack/transport"
)

// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-5.6.7
const dateLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

// ResponseWriter presents the response body as a plain byte stream. The
// status line and headers go out lazily on the first write, which is also
// when the framing mode is fixed: an explicit non-identity Transfer-Encoding
// or a missing Content-Length selects chunked; {1xx, 204, 304} and HEAD
// carry no body framing at all.
type ResponseWriter struct {
	stream *transport.Stream
	clock  clock.Clock

	statusCode uint
	headers    Headers
	trailers   Headers

	headRequest bool

	bytesWritten uint
	chunked      bool
	headersSent  bool
	finished     bool
}

func NewResponseWriter(stream *transport.Stream, clk clock.Clock, headRequest bool) *ResponseWriter {
	return &ResponseWriter{
		stream:      stream,
		clock:       clk,
		statusCode:  status.OK.Code,
		headers:     NewHeaders(nil),
		trailers:    NewHeaders(nil),
		headRequest: headRequest,
	}
}

func (rw *ResponseWriter) Status() uint        { return rw.statusCode }
func (rw *ResponseWriter) SetStatus(code uint) { rw.statusCode = code }

func (rw *ResponseWriter) Headers() *Headers  { return &rw.headers }
func (rw *ResponseWriter) Trailers() *Headers { return &rw.trailers }

// bodyless statuses and HEAD responses carry no body framing.
func (rw *ResponseWriter) bodyless() bool {
	return rw.headRequest || rw.statusCode < 200 || rw.statusCode == 204 || rw.statusCode == 304
}

// Write sends p as response payload, emitting the head first if it hasn't
// gone out yet. In chunked mode each nonempty write becomes one chunk,
// written as a single gather write. An empty write only flushes the head.
func (rw *ResponseWriter) Write(p []byte) (n int, err error) {
	if rw.finished {
		return 0, errors.Wrap(ErrInvalidResponseState, "write after finish")
	}

	var head []byte
	if !rw.headersSent {
		head = rw.prepareHead(len(p) > 0)
	}

	if rw.bodyless() {
		// The head still goes out; payload is dropped.
		if len(head) > 0 {
			if _, err := rw.stream.WriteVec(head); err != nil {
				return 0, errors.Wrap(err, "writing response head")
			}
		}
		rw.headersSent = true
		return len(p), nil
	}

	var prefix, suffix []byte
	if rw.chunked && len(p) > 0 {
		prefix = []byte(strconv.FormatUint(uint64(len(p)), 16) + "\r\n")
		suffix = rule.CRLF
	}

	if len(head)+len(p) == 0 {
		// Nothing to transmit for an empty flush once the head is out.
		return 0, nil
	}

	if _, err := rw.stream.WriteVec(head, prefix, p, suffix); err != nil {
		return 0, errors.Wrap(err, "writing response payload")
	}

	rw.headersSent = true
	rw.bytesWritten += uint(len(p))
	return len(p), nil
}

// FlushEOF terminates the response body: for chunked framing it emits the
// zero-length chunk, the trailers and the final empty line. For an identity
// response with no body it emits the head with Content-Length: 0.
func (rw *ResponseWriter) FlushEOF() error {
	if rw.finished {
		return errors.Wrap(ErrInvalidResponseState, "flush after finish")
	}

	var head []byte
	if !rw.headersSent {
		head = rw.prepareHead(false)
	}

	if rw.trailers.Len() > 0 && !rw.chunked {
		return errors.Wrap(ErrInvalidResponseState, "trailers on a non-chunked response")
	}

	var terminator []byte
	if rw.chunked {
		buf := bytes.NewBuffer(nil)
		buf.WriteString("0\r\n")
		for _, f := range rw.trailers.Fields() {
			buf.WriteString(f[0])
			buf.WriteString(": ")
			buf.WriteString(f[1])
			buf.Write(rule.CRLF)
		}
		buf.Write(rule.CRLF)
		terminator = buf.Bytes()
	}

	if len(head)+len(terminator) > 0 {
		if _, err := rw.stream.WriteVec(head, terminator); err != nil {
			return errors.Wrap(err, "writing response terminator")
		}
	}

	rw.headersSent = true
	rw.finished = true
	return nil
}

// flushProvisional emits a 1xx head and rearms the writer for the final
// response of the same exchange.
func (rw *ResponseWriter) flushProvisional() error {
	if rw.finished {
		return errors.Wrap(ErrInvalidResponseState, "flush after finish")
	}
	if rw.headersSent {
		return errors.Wrap(ErrInvalidResponseState, "provisional response after payload")
	}

	head := rw.prepareHead(false)
	if _, err := rw.stream.WriteVec(head); err != nil {
		return errors.Wrap(err, "writing provisional response")
	}

	rw.chunked = false
	rw.bytesWritten = 0
	return nil
}

// prepareHead fixes the framing decision and serializes the status line and
// headers. Trailer-namespace ("/"-prefixed) names never appear in the head.
func (rw *ResponseWriter) prepareHead(nonzeroPayload bool) []byte {
	if _, ok := rw.headers.Get("Date"); !ok {
		rw.headers.Set("Date", rw.clock.Now().UTC().Format(dateLayout))
	}

	switch {
	case rw.bodyless():
		rw.chunked = false
	default:
		if te, ok := rw.headers.Get("Transfer-Encoding"); ok && te != "identity" {
			rw.chunked = true
			rw.headers.Del("Content-Length")
		} else if _, ok := rw.headers.Get("Content-Length"); !ok {
			if nonzeroPayload {
				rw.chunked = true
				rw.headers.Set("Transfer-Encoding", "chunked")
			} else {
				rw.headers.Set("Content-Length", "0")
			}
		}
	}

	buf := bytes.NewBuffer(nil)
	buf.WriteString("HTTP/1.1 ")
	buf.WriteString(strconv.FormatUint(uint64(rw.statusCode), 10))
	buf.WriteByte(rule.SP)
	buf.WriteString(status.Text(rw.statusCode))
	buf.Write(rule.CRLF)

	for _, f := range rw.headers.Fields() {
		if len(f[0]) > 0 && f[0][0] == '/' {
			continue
		}
		buf.WriteString(f[0])
		buf.WriteString(": ")
		buf.WriteString(f[1])
		buf.Write(rule.CRLF)
	}
	buf.Write(rule.CRLF)

	return buf.Bytes()
}

// WriteErrorResponse emits a bare response head on a stream that has no
// usable exchange (e.g. the request could not be parsed).
func WriteErrorResponse(stream *transport.Stream, clk clock.Clock, code uint) error {
	rw := NewResponseWriter(stream, clk, false)
	rw.SetStatus(code)
	return rw.FlushEOF()
}
