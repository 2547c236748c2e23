package server

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"http-stack/application/http"
	"http-stack/application/http/status"
	"http-stack/transport"
)

// conn drives a linear sequence of exchanges over one transport until
// either side closes, a handler requests close, or an upgrade hands the
// stream to an AltHandler.
type conn struct {
	con    transport.Conn
	stream *transport.Stream

	handle HandleFunc
	clock  clock.Clock

	logger *slog.Logger

	opts Options
}

func (c *conn) start(ctx context.Context) {
	// Unblock in-flight reads when the server shuts down.
	stop := context.AfterFunc(ctx, func() { _ = c.con.Close() })
	defer stop()

	defer func() {
		c.logger.Debug("closing connection")
		if err := c.con.Close(); err != nil {
			c.logger.Error("error when closing connection", "error", err)
		}
	}()

	altHandler, err := c.serve(ctx)

	if altHandler != nil {
		err = serveAltHandler(ctx, c.stream, altHandler)
	}

	switch {
	case err == nil:
		// no-op.
	case errors.Is(err, context.Canceled):
		// no-op.
	case errors.Is(err, transport.ErrDeadLineExceeded):
		c.logger.Info("idle timeout exceeded")
	case errors.Is(err, transport.ErrConnClosed):
		c.logger.Debug("peer closed connection")
	default:
		c.logger.Error("unknown error occured", "error", err)
	}
}

func (c *conn) serve(ctx context.Context) (AltHandler, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if t := c.opts.Timeout.Idle; t > 0 {
			c.stream.SetReadDeadLine(c.clock.Now().Add(t))
		}

		ex, err := http.NewExchange(c.stream, http.ExchangeOptions{Clock: c.clock})
		if err != nil {
			if !http.IsParseError(err) {
				return nil, err
			}
			// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-2.2-9
			code := statusForParseError(err)
			if werr := http.WriteErrorResponse(c.stream, c.clock, code); werr != nil {
				return nil, errors.Wrap(werr, "writing error response")
			}
			return nil, nil
		}

		if t := c.opts.Timeout.Read; t > 0 {
			c.stream.SetReadDeadLine(c.clock.Now().Add(t))
		} else {
			c.stream.SetReadDeadLine(time.Time{})
		}
		if t := c.opts.Timeout.Write; t > 0 {
			c.stream.SetWriteDeadLine(c.clock.Now().Add(t))
		}

		hctx := &HandleContext{ctx: ctx, remoteAddr: c.con.RemoteAddr()}
		if err := hctx.doHandle(c.handle, ex); err != nil {
			return nil, errors.Wrap(err, "unexpected error while handling request")
		}

		if !ex.Finished() {
			if code := ex.Status(); code < 200 && code != status.SwitchingProtocols.Code {
				// The handler never moved past a provisional response.
				ex.SetStatus(status.OK.Code)
			}
			if err := ex.Finish(); err != nil {
				return nil, errors.Wrap(err, "finishing exchange")
			}
		}

		if h := hctx.altHandler; h != nil && ex.Status() == status.SwitchingProtocols.Code {
			return h, nil
		}

		if hctx.closeConn || wantsClose(ex) {
			return nil, nil
		}
	}
}

// wantsClose honors Connection: close on either side of the exchange.
func wantsClose(ex *http.Exchange) bool {
	if v, ok := ex.RequestHeaders().Get("Connection"); ok && strings.EqualFold(v, "close") {
		return true
	}
	if v, ok := ex.ResponseHeaders().Get("Connection"); ok && strings.EqualFold(v, "close") {
		return true
	}
	return false
}

func statusForParseError(err error) uint {
	if errors.Is(err, http.ErrUnsupportedHTTPVersion) {
		return status.HTTPVersionNotSupported.Code
	}
	return status.BadRequest.Code
}

func serveAltHandler(ctx context.Context, stream *transport.Stream, h AltHandler) (err error) {
	stream.SetReadDeadLine(time.Time{})
	stream.SetWriteDeadLine(time.Time{})

	defer func() {
		if e := recover(); e != nil {
			err = errors.Errorf("altHandler panicked: %s", e)
		}
	}()

	return h(ctx, stream)
}
