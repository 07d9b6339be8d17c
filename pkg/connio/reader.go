// Package connio implements the per-connection framed Reader and Writer
// for one connection: the Reader owns the fixed 16 KiB header scan buffer and
// bounds body reads by the declared content length; the Writer enforces
// the declared response length and serializes the pending header prefix
// before any body byte reaches the wire. Both are single-threaded with
// respect to their owning connection and take no internal locks.
package connio

import (
	"crypto/tls"
	"io"
	"net"

	"github.com/gosub-com/gosubweb/pkg/bytesx"
	"github.com/gosub-com/gosubweb/pkg/httperr"
	"github.com/gosub-com/gosubweb/pkg/message"
	"github.com/gosub-com/gosubweb/pkg/tlsmat"
)

// HeaderBufferSize is the fixed size of the Reader's header scan buffer.
const HeaderBufferSize = 16 * 1024

var crlfcrlf = []byte("\r\n\r\n")

// Reader is a pooled, reusable per-connection reader.
type Reader struct {
	stream net.Conn
	buf    [HeaderBufferSize]byte
	bufLen int
	bufPos int

	secure     bool
	bodyLength int64
	bodyPos    int64
}

// NewReader allocates a fresh Reader. The pipeline pools these; NewReader
// is only called to grow the pool.
func NewReader() *Reader {
	return &Reader{}
}

// Reset clears all per-connection state so the Reader can be returned to
// the pool and handed to the next accepted connection. The 16 KiB buffer
// itself is reused, not reallocated.
func (r *Reader) Reset() {
	r.stream = nil
	r.bufLen = 0
	r.bufPos = 0
	r.secure = false
	r.bodyLength = 0
	r.bodyPos = 0
}

// Secure reports whether Start negotiated TLS for this connection.
func (r *Reader) Secure() bool { return r.secure }

// Stream returns the live connection this Reader is bound to. Exposed for
// pkg/wsupgrade, which must hijack the raw connection once a request is
// accepted as a WebSocket upgrade.
func (r *Reader) Stream() net.Conn { return r.stream }

// Start reads the first chunk off stream to decide whether it is a TLS
// ClientHello, optionally performs the TLS handshake, and returns the
// live stream to read requests from.
//
// Three outcomes:
//   - (conn, nil): success, conn is what the pipeline should read
//     requests from (conn == stream for plaintext).
//   - (nil, nil): the peek came back empty or too short; the
//     connection is abandoned silently (no error to log or report).
//   - (nil, err): a protocol-level rejection (wrong TLS posture,
//     TLS version floor not met, or a failed handshake); logged at
//     DEBUG, never replied to (the start path is always silent).
func (r *Reader) Start(stream net.Conn, cert *tls.Certificate) (net.Conn, *httperr.ProtocolError) {
	n, err := stream.Read(r.buf[:])
	if err != nil || n < 3 {
		return nil, nil
	}

	first := r.buf[0]
	switch {
	case first == 0x16 && cert != nil:
		prefix := make([]byte, n)
		copy(prefix, r.buf[:n])
		wrapped := &prefixedConn{Conn: stream, prefix: prefix}
		// The Compatible profile spans the full accepted range; the
		// explicit version gate below is what enforces the floor.
		tlsConn := tls.Server(wrapped, tlsmat.Config(*cert, tlsmat.Compatible))
		if err := tlsConn.Handshake(); err != nil {
			return nil, httperr.WrapProtocol(400, "TLS handshake failed", err)
		}
		if tlsConn.ConnectionState().Version < tlsmat.MinAcceptableVersion {
			return nil, httperr.NewProtocol("TLS version below the accepted floor")
		}
		r.secure = true
		r.bufLen, r.bufPos = 0, 0
		r.stream = tlsConn
		return tlsConn, nil

	case first == 0x16 && cert == nil:
		return nil, httperr.NewProtocol("TLS ClientHello received on a plaintext port")

	case first != 0x16 && cert != nil:
		return nil, httperr.NewProtocol("non-TLS traffic received on a TLS port")

	default:
		r.secure = false
		r.bufLen = n
		r.bufPos = 0
		r.stream = stream
		return stream, nil
	}
}

// ReadHeader reads (and, once the terminator is found, parses) the next
// request header. Three outcomes:
//   - (req, nil): a parsed request; the Reader is now positioned to read
//     its body, bounded by req.ContentLength.
//   - (nil, nil): an orderly close (0-byte read with no partial header).
//   - (nil, err): a protocol failure (oversized header, malformed
//     header); the connection closes without a response.
func (r *Reader) ReadHeader() (*message.Request, *httperr.ProtocolError) {
	r.compact()

	for {
		if idx := bytesx.Index(r.buf[:r.bufLen], crlfcrlf); idx >= 0 {
			headerEnd := idx + len(crlfcrlf)
			header := make([]byte, headerEnd)
			copy(header, r.buf[:headerEnd])

			req, perr := message.ParseRequest(header)

			r.bufPos = headerEnd
			if perr != nil {
				return nil, perr
			}

			length := req.ContentLength
			if length < 0 {
				length = 0
			}
			r.bodyLength = length
			r.bodyPos = 0
			return req, nil
		}

		if r.bufLen >= 8 {
			if perr := fastFailMethod(r.buf[:r.bufLen]); perr != nil {
				return nil, perr
			}
		}

		if r.bufLen >= len(r.buf) {
			return nil, httperr.NewProtocolStatus(400, "request header exceeds the 16 KiB buffer")
		}

		n, err := r.stream.Read(r.buf[r.bufLen:])
		if n == 0 {
			if err != nil && err != io.EOF {
				return nil, httperr.WrapProtocol(400, "connection error while reading header", err)
			}
			if r.bufLen == 0 {
				return nil, nil
			}
			return nil, httperr.NewProtocolStatus(400, "connection closed mid-header")
		}
		r.bufLen += n
	}
}

// compact moves any unconsumed bytes to the front of the buffer.
func (r *Reader) compact() {
	if r.bufPos == 0 {
		return
	}
	remaining := r.bufLen - r.bufPos
	copy(r.buf[:remaining], r.buf[r.bufPos:r.bufLen])
	r.bufLen = remaining
	r.bufPos = 0
}

// fastFailMethod is the early method check: once at least 8 bytes
// have arrived, the portion up to the first space must already be one of
// the accepted methods.
func fastFailMethod(buf []byte) *httperr.ProtocolError {
	limit := len(buf)
	if limit > 8 {
		limit = 8
	}
	spaceAt := -1
	for i := 0; i < limit; i++ {
		if buf[i] == ' ' {
			spaceAt = i
			break
		}
	}
	if spaceAt < 0 {
		return httperr.NewProtocolStatus(400, "unrecognized method")
	}
	if !message.Methods[string(buf[:spaceAt])] {
		return httperr.NewProtocolStatus(400, "unrecognized method: "+string(buf[:spaceAt]))
	}
	return nil
}

// Read satisfies io.Reader, bounded by the declared body length. Body
// bytes already sitting in the header buffer (read ahead as part of the
// header scan) are drained first; further bytes come straight from the
// stream.
func (r *Reader) Read(p []byte) (int, error) {
	remaining := r.bodyLength - r.bodyPos
	if remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}

	if r.bufPos < r.bufLen {
		n := copy(p, r.buf[r.bufPos:r.bufLen])
		r.bufPos += n
		r.bodyPos += int64(n)
		return n, nil
	}

	n, err := r.stream.Read(p)
	r.bodyPos += int64(n)
	return n, err
}

// ReadAll fills buffer entirely, treating an early EOF as a protocol
// failure (the declared content length promised more bytes than arrived).
func (r *Reader) ReadAll(buffer []byte) *httperr.ProtocolError {
	total := 0
	for total < len(buffer) {
		n, err := r.Read(buffer[total:])
		total += n
		if err != nil {
			if err == io.EOF && total < len(buffer) {
				return httperr.NewProtocolStatus(400, "connection closed before declared content length was satisfied")
			}
			if err != io.EOF {
				return httperr.WrapProtocol(400, "read failed", err)
			}
		}
	}
	return nil
}

// Position returns the number of body bytes delivered so far.
func (r *Reader) Position() int64 { return r.bodyPos }

// BodyLength returns the declared body length for the current request
// (always >= 0; -1 absent content-length is normalized to 0 at header
// parse time).
func (r *Reader) BodyLength() int64 { return r.bodyLength }
