package http

import (
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"http-stack/application/http/status"
	"http-stack/transport"
)

type ExchangeOptions struct {
	// Clock stamps the Date header. Nil means the wall clock.
	Clock clock.Clock
}

// Exchange binds one request/response pair to a transport.Stream. It owns
// the finishing protocol: drain the unread request body, restore over-read
// bytes to the stream, terminate the response framing. After a successful
// Finish the stream is positioned at the next request, or ready for an
// upgrade handler when the response was 101.
type Exchange struct {
	stream *transport.Stream
	lb     *LineBuffer

	head RequestHead
	mode BodyMode
	body *BodyReader
	rw   *ResponseWriter

	finished bool
}

// NewExchange parses one request head off stream and returns the exchange
// bound to it.
func NewExchange(stream *transport.Stream, opts ExchangeOptions) (*Exchange, error) {
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}

	lb := NewLineBuffer(stream)

	head, mode, err := readRequestHead(lb)
	if err != nil {
		return nil, errors.Wrap(err, "parsing request")
	}

	ex := &Exchange{
		stream: stream,
		lb:     lb,
		head:   head,
		mode:   mode,
	}
	ex.body = newBodyReader(lb, mode, &ex.head)
	ex.rw = NewResponseWriter(stream, clk, head.Method == "HEAD")

	return ex, nil
}

// NewExchangeAsync is NewExchange with the result delivered to fn on its
// own goroutine.
func NewExchangeAsync(stream *transport.Stream, opts ExchangeOptions, fn func(*Exchange, error)) {
	go func() { fn(NewExchange(stream, opts)) }()
}

func (ex *Exchange) Method() string           { return ex.head.Method }
func (ex *Exchange) Target() string           { return ex.head.Target }
func (ex *Exchange) Path() string             { return ex.head.Path }
func (ex *Exchange) Fragment() string         { return ex.head.Fragment }
func (ex *Exchange) Query() map[string]string { return ex.head.Query }

func (ex *Exchange) RequestHeaders() *Headers { return &ex.head.Headers }

// BodyMode exposes the framing mode derived from the request headers.
func (ex *Exchange) BodyMode() BodyMode { return ex.mode }

func (ex *Exchange) Status() uint        { return ex.rw.Status() }
func (ex *Exchange) SetStatus(code uint) { ex.rw.SetStatus(code) }

func (ex *Exchange) ResponseHeaders() *Headers  { return ex.rw.Headers() }
func (ex *Exchange) ResponseTrailers() *Headers { return ex.rw.Trailers() }

// Read reads decoded request body bytes. io.EOF marks the end of the body.
func (ex *Exchange) Read(p []byte) (n int, err error) { return ex.body.Read(p) }

// Write sends response payload; see [ResponseWriter.Write].
func (ex *Exchange) Write(p []byte) (n int, err error) { return ex.rw.Write(p) }

func (ex *Exchange) Finished() bool { return ex.finished }

// Finish completes the exchange.
//
// For a final (>=200) response it drains whatever of the request body the
// application left unread, puts over-read bytes back on the stream and
// terminates the response framing. For a 1xx response it only emits the
// provisional head; the request stays live and the exchange accepts a
// second, final response cycle. 101 is the exception: it completes the
// exchange so the transport can be reclaimed via IntoTransport.
func (ex *Exchange) Finish() error {
	if ex.finished {
		return errors.Wrap(ErrInvalidResponseState, "finish after finish")
	}

	if code := ex.rw.Status(); code < 200 {
		if err := ex.rw.flushProvisional(); err != nil {
			return err
		}
		if code == status.SwitchingProtocols.Code {
			// The request stream now belongs to the next protocol.
			ex.stream.PutBack(ex.lb.Drain())
			ex.rw.finished = true
			ex.finished = true
		}
		return nil
	}

	if err := ex.body.drain(); err != nil {
		return errors.Wrap(err, "draining request body")
	}
	ex.stream.PutBack(ex.lb.Drain())

	if err := ex.rw.FlushEOF(); err != nil {
		return err
	}

	ex.finished = true
	return nil
}

// AsyncFinish runs the drain leg and the response-terminate leg of Finish
// concurrently on the stream's two halves and fires fn exactly once when
// both are done. fn receives the last non-nil error either leg observed.
func (ex *Exchange) AsyncFinish(fn func(error)) {
	if ex.finished {
		go fn(errors.Wrap(ErrInvalidResponseState, "finish after finish"))
		return
	}

	if ex.rw.Status() < 200 {
		go fn(ex.Finish())
		return
	}

	ex.finished = true

	c := newCompletion(fn, 2)
	go func() {
		err := ex.body.drain()
		if err == nil {
			ex.stream.PutBack(ex.lb.Drain())
		}
		c.release(errors.Wrap(err, "draining request body"))
	}()
	go func() {
		c.release(ex.rw.FlushEOF())
	}()
}

// IntoTransport yields the stream after a successful 101 finish, with any
// over-read bytes restored, so a different protocol can take over.
func (ex *Exchange) IntoTransport() (*transport.Stream, error) {
	if !ex.finished || ex.rw.Status() != status.SwitchingProtocols.Code {
		return nil, errors.Wrap(ErrInvalidResponseState, "transport reclaim without a finished 101")
	}
	return ex.stream, nil
}

// completion is a refcounted error cell. The last release fires the
// callback exactly once with the last recorded error.
type completion struct {
	mu   sync.Mutex
	refs int
	err  error
	fn   func(error)
}

func newCompletion(fn func(error), refs int) *completion {
	return &completion{refs: refs, fn: fn}
}

func (c *completion) release(err error) {
	c.mu.Lock()
	if err != nil {
		c.err = err
	}
	c.refs--
	done := c.refs == 0
	err = c.err
	c.mu.Unlock()

	if done {
		c.fn(err)
	}
}
