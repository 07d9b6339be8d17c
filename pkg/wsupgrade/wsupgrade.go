// Package wsupgrade implements the single WebSocket hand-off point the
// core treats as external: given a Context whose request is a
// validated WebSocket upgrade, it bridges the connection's ownership
// into golang.org/x/net/websocket's own server-side handshake and frame
// codec, never reimplementing either.
package wsupgrade

import (
	"bufio"
	"net"
	"net/http"
	"net/url"

	"golang.org/x/net/websocket"

	"github.com/gosub-com/gosubweb/pkg/httpctx"
	"github.com/gosub-com/gosubweb/pkg/httperr"
)

// Acceptor implements httpctx.WebSocketAcceptor. It synthesizes the
// *http.Request x/net/websocket's hybi13 handshaker expects from the
// already-parsed request, hijacks the raw connection through a minimal
// http.ResponseWriter+http.Hijacker shim, and hands the negotiated
// *websocket.Conn to Handle.
type Acceptor struct {
	// Origin, set non-empty, is required to match the request's Origin
	// header; left empty, no origin check is performed.
	Origin string
	Handle func(ws *websocket.Conn)
}

// hijackWriter adapts a raw net.Conn to the http.ResponseWriter+
// http.Hijacker pair websocket.Server.ServeHTTP expects, without ever
// routing the connection through a net/http server loop.
type hijackWriter struct {
	header http.Header
	conn   net.Conn
	bufrw  *bufio.ReadWriter
}

func (w *hijackWriter) Header() http.Header         { return w.header }
func (w *hijackWriter) Write(b []byte) (int, error) { return w.bufrw.Write(b) }
func (w *hijackWriter) WriteHeader(statusCode int)  {}
func (w *hijackWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return w.conn, w.bufrw, nil
}

// Accept performs the upgrade. It is only ever called through
// (*httpctx.Context).AcceptWebSocket, which has already checked
// IsWebSocket, HeaderSent, and the not-already-accepted precondition.
func (a *Acceptor) Accept(c *httpctx.Context, protocol string) error {
	req := c.Request

	header := make(http.Header, len(req.Headers)+4)
	for k, v := range req.Headers {
		header.Set(k, v)
	}
	header.Set("Connection", "Upgrade")
	header.Set("Upgrade", "websocket")
	if req.Referer != "" {
		header.Set("Referer", req.Referer)
	}

	httpReq := &http.Request{
		Method:     "GET",
		URL:        &url.URL{Path: "/" + req.Path},
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     header,
		Host:       req.Host,
	}

	conn := c.RawStream()
	if conn == nil {
		return httperr.NewServerStatus(500, "no live connection to hijack for websocket upgrade", nil)
	}
	bufrw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	shim := &hijackWriter{header: make(http.Header), conn: conn, bufrw: bufrw}

	srv := websocket.Server{
		Handshake: func(config *websocket.Config, r *http.Request) error {
			if a.Origin != "" {
				if r.Header.Get("Origin") != a.Origin {
					return httperr.NewProtocolStatus(403, "websocket origin does not match the configured origin")
				}
				origin, err := url.Parse(a.Origin)
				if err != nil {
					return httperr.WrapProtocol(400, "invalid configured websocket origin", err)
				}
				config.Origin = origin
			}
			if protocol != "" {
				config.Protocol = []string{protocol}
			}
			return nil
		},
		Handler: websocket.Handler(a.Handle),
	}
	srv.ServeHTTP(shim, httpReq)
	return nil
}
