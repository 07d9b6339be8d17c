// Package httpctx glues a single request/response pair to the connection
// it arrived on: the reader and writer it was parsed/will be served on,
// the remote/local endpoints, and the TLS flag. It owns the one-shot
// header freeze that every response goes through exactly once.
package httpctx

import (
	"io"
	"net"
	"os"

	"github.com/gosub-com/gosubweb/pkg/connio"
	"github.com/gosub-com/gosubweb/pkg/httperr"
	"github.com/gosub-com/gosubweb/pkg/message"
)

// Context binds one request/response pair to its connection's reader and
// writer for the duration of a single request.
type Context struct {
	Request  *message.Request
	Response *message.Response

	reader *connio.Reader
	writer *connio.Writer

	RemoteAddr string
	LocalAddr  string
	TLS        bool

	wsAccepted bool
}

// New constructs a Context for one request on an already-open connection.
func New(req *message.Request, reader *connio.Reader, writer *connio.Writer, remoteAddr, localAddr string, tlsConn bool) *Context {
	return &Context{
		Request:    req,
		Response:   message.NewResponse(),
		reader:     reader,
		writer:     writer,
		RemoteAddr: remoteAddr,
		LocalAddr:  localAddr,
		TLS:        tlsConn,
	}
}

// keepAliveDefault implements the connection-directive default rule: the
// request asked for keep-alive explicitly, or it's HTTP/1.1 and didn't
// ask for close.
func (c *Context) keepAliveDefault() bool {
	if c.Request.Connection == "keep-alive" {
		return true
	}
	if c.Request.Connection == "close" {
		return false
	}
	return c.Request.Major == 1 && c.Request.Minor >= 1
}

// freeze performs the one-shot header freeze: finalizes Content-Length,
// chooses the connection directive if the handler left it unset,
// serializes the header bytes, and queues them on the writer as its
// pre-write task. Returns an error if headers were already frozen or the
// requested length conflicts with one already set.
func (c *Context) freeze(contentLength int64) error {
	if c.Response.IsFrozen() {
		return httperr.NewServerStatus(500, "response headers were already frozen", nil)
	}
	if contentLength < 0 {
		return httperr.NewServerStatus(500, "content length must be >= 0 before freezing headers", nil)
	}
	if c.Response.ContentLength >= 0 && c.Response.ContentLength != contentLength {
		return httperr.NewServerStatus(500, "conflicting content length set before freeze", nil)
	}

	if !c.Response.Freeze(contentLength, c.keepAliveDefault()) {
		return httperr.NewServerStatus(500, "failed to freeze response headers", nil)
	}

	header := c.Response.Serialize()
	c.writer.SetDeclaredLength(contentLength)
	c.writer.SetPreWrite(func() error {
		c.Response.MarkHeaderSent()
		return c.writer.WriteHeaderPrefix(header)
	})
	return nil
}

// GetReader freezes headers (content length defaults to max(0, current)
// if the handler never set one) and returns the connection's reader, so
// a handler that wants raw access to the request body can read it
// directly. Any header mutation attempted after this call fails.
func (c *Context) GetReader() (*connio.Reader, error) {
	length := c.Response.ContentLength
	if length < 0 {
		length = 0
	}
	if err := c.freeze(length); err != nil {
		return nil, err
	}
	return c.reader, nil
}

// GetWriter freezes headers at exactly contentLength (which must be >= 0
// and consistent with any length already set) and returns the
// connection's writer.
func (c *Context) GetWriter(contentLength int64) (*connio.Writer, error) {
	if contentLength < 0 {
		return nil, httperr.NewServerStatus(500, "content length must be >= 0", nil)
	}
	if err := c.freeze(contentLength); err != nil {
		return nil, err
	}
	return c.writer, nil
}

// SendBytes is the SendResponse convenience for a byte payload: sets the
// length to len(body), freezes headers, and writes body in one call.
func (c *Context) SendBytes(body []byte) error {
	w, err := c.GetWriter(int64(len(body)))
	if err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	return w.Flush()
}

// SendText is the SendResponse convenience for a string payload.
func (c *Context) SendText(body string) error {
	return c.SendBytes([]byte(body))
}

// SendStatusText sets the response status then sends body as the entire
// response, in one call.
func (c *Context) SendStatusText(status int, body string) error {
	c.Response.SetStatus(status, "")
	return c.SendText(body)
}

// SendFile opens path and streams its contents as the response body,
// declaring its on-disk size as the Content-Length. A missing file
// produces a 404 response rather than propagating the OS error.
func (c *Context) SendFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c.SendStatusText(404, "Not Found")
		}
		return httperr.NewServerStatus(500, "failed to open file", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return httperr.NewServerStatus(500, "failed to stat file", err)
	}

	w, err := c.GetWriter(info.Size())
	if err != nil {
		return err
	}
	if _, err := w.WriteStream(f); err != nil {
		return err
	}
	return w.Flush()
}

// ReadContent requires the request to have declared a Content-Length in
// [0, maxLength] and reads exactly that many bytes. A missing declared
// length is a 411 protocol failure; an over-large one is a 413.
func (c *Context) ReadContent(maxLength int64) ([]byte, error) {
	n := c.Request.ContentLength
	if n < 0 {
		return nil, httperr.NewProtocolStatus(411, "Content-Length is required to read the request body")
	}
	if n > maxLength {
		return nil, httperr.NewProtocolStatus(413, "declared Content-Length exceeds the allowed maximum")
	}
	buf := make([]byte, n)
	if perr := c.reader.ReadAll(buf); perr != nil {
		return nil, perr
	}
	return buf, nil
}

// WebSocketAcceptor is implemented by pkg/wsupgrade; declared here to
// avoid an import cycle (wsupgrade depends on httpctx, not vice versa).
type WebSocketAcceptor interface {
	Accept(c *Context, protocol string) error
}

// AcceptWebSocket delegates the upgrade handshake to acceptor, valid only
// if this is a WebSocket request, headers haven't been sent, and the
// upgrade hasn't already been accepted.
func (c *Context) AcceptWebSocket(acceptor WebSocketAcceptor, protocol string) error {
	if !c.Request.IsWebSocket {
		return httperr.NewServerStatus(500, "AcceptWebSocket called on a non-WebSocket request", nil)
	}
	if c.Response.HeaderSent() {
		return httperr.NewServerStatus(500, "AcceptWebSocket called after headers were already sent", nil)
	}
	if c.wsAccepted {
		return httperr.NewServerStatus(500, "AcceptWebSocket called twice", nil)
	}
	c.wsAccepted = true
	return acceptor.Accept(c, protocol)
}

// RawWriter exposes the connection's writer for the WebSocket acceptor,
// which must bypass the normal frozen-header path entirely (the 101
// response is not a Response value).
func (c *Context) RawWriter() *connio.Writer { return c.writer }

// RawReader exposes the connection's reader for the WebSocket acceptor.
func (c *Context) RawReader() *connio.Reader { return c.reader }

// RawStream returns the live net.Conn underlying this request, for the
// WebSocket acceptor to hijack once the upgrade is accepted.
func (c *Context) RawStream() net.Conn { return c.writer.Stream() }

var _ io.Writer = (*connio.Writer)(nil)
