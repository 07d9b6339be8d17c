package message

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gosub-com/gosubweb/pkg/httpdict"
)

// statusText covers the codes this server ever sets itself; anything
// else falls back to a generic label so Serialize never panics on an
// unusual status the handler chose.
var statusText = map[int]string{
	200: "OK",
	204: "No Content",
	206: "Partial Content",
	301: "Moved Permanently",
	302: "Found",
	304: "Not Modified",
	400: "Bad Request",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	411: "Length Required",
	413: "Payload Too Large",
	500: "Internal Server Error",
}

// StatusText returns the reason phrase for a status code, or "Unknown"
// if this server has no label for it.
func StatusText(status int) string {
	if t, ok := statusText[status]; ok {
		return t
	}
	return "Unknown"
}

// Response is mutable until Freeze is called, at which point no
// field may change.
type Response struct {
	Status          int
	StatusMessage   string
	ContentType     string
	ContentLength   int64 // must be set explicitly before freeze, >=0
	ContentEncoding string
	Connection      string // "" = server decides
	Headers         httpdict.Dict

	frozen     bool
	headerSent bool
}

// NewResponse returns a Response defaulted to status 200 with an
// unset content length (-1, meaning "not yet declared").
func NewResponse() *Response {
	return &Response{
		Status:        200,
		ContentLength: -1,
		Headers:       httpdict.New(),
	}
}

// IsFrozen reports whether the header set has already been frozen.
func (r *Response) IsFrozen() bool { return r.frozen }

// HeaderSent reports whether the serialized header bytes have been
// queued on the wire.
func (r *Response) HeaderSent() bool { return r.headerSent }

// MarkHeaderSent records that the header bytes have been enqueued. Called
// exactly once, by the writer's pre-write task.
func (r *Response) MarkHeaderSent() { r.headerSent = true }

// SetHeader sets a response header field. Fails (returns false) once the
// response is frozen.
func (r *Response) SetHeader(key, value string) bool {
	if r.frozen {
		return false
	}
	r.Headers.Set(key, value)
	return true
}

// SetStatus sets the status code and, if message is "", defaults the
// reason phrase from StatusText. Fails once frozen.
func (r *Response) SetStatus(status int, message string) bool {
	if r.frozen {
		return false
	}
	r.Status = status
	if message == "" {
		message = StatusText(status)
	}
	r.StatusMessage = message
	return true
}

// Freeze finalizes the response's headers: content length must already
// be set to a value >= 0 (the caller, httpctx.Context, is responsible for
// defaulting it to max(0, current) before calling this), and the
// connection directive is chosen here if the caller left it empty.
// Returns false if the response was already frozen or contentLength < 0.
func (r *Response) Freeze(contentLength int64, keepAliveDefault bool) bool {
	if r.frozen {
		return false
	}
	if contentLength < 0 {
		return false
	}
	r.ContentLength = contentLength
	if r.Connection == "" {
		if keepAliveDefault {
			r.Connection = "keep-alive"
		} else {
			r.Connection = "close"
		}
	}
	if r.StatusMessage == "" {
		r.StatusMessage = StatusText(r.Status)
	}
	r.frozen = true
	return true
}

// Serialize renders the status line, CRLF-separated header fields, and
// the terminating blank line, UTF-8 encoded (ASCII is a subset, so a
// plain string builder suffices).
func (r *Response) Serialize() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", r.Status, r.StatusMessage)
	fmt.Fprintf(&b, "Content-Length: %s\r\n", strconv.FormatInt(r.ContentLength, 10))
	if r.ContentType != "" {
		fmt.Fprintf(&b, "Content-Type: %s\r\n", r.ContentType)
	}
	if r.ContentEncoding != "" {
		fmt.Fprintf(&b, "Content-Encoding: %s\r\n", r.ContentEncoding)
	}
	if r.Connection != "" {
		fmt.Fprintf(&b, "Connection: %s\r\n", r.Connection)
	}
	for k, v := range r.Headers {
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}
