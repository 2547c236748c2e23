package server

import (
	"context"

	"github.com/pkg/errors"

	"http-stack/application/http"
	"http-stack/transport"
)

// HandleFunc serves one exchange. The driver calls Finish on exchanges the
// handler left unfinished.
type HandleFunc func(c *HandleContext, ex *http.Exchange)

// AltHandler takes over the raw transport after a successful protocol
// switch (e.g. WebSocket).
type AltHandler func(ctx context.Context, conn transport.Conn) error

type HandleContext struct {
	ctx context.Context

	remoteAddr transport.Addr

	closeConn  bool
	altHandler AltHandler
}

func (c *HandleContext) Context() context.Context   { return c.ctx }
func (c *HandleContext) RemoteAddr() transport.Addr { return c.remoteAddr }

// Close requests that the connection not serve another exchange once the
// current response completes.
func (c *HandleContext) Close() { c.closeConn = true }

// SwitchProtocol registers h to take over the transport. It only fires when
// the handler also responded 101 and the finish succeeded.
func (c *HandleContext) SwitchProtocol(h AltHandler) { c.altHandler = h }

func (c *HandleContext) doHandle(handle HandleFunc, ex *http.Exchange) (err error) {
	defer func() {
		if e := recover(); e != nil {
			err = errors.Errorf("handler panicked: %s", e)
		}
	}()

	handle(c, ex)
	return nil
}
