package connio

import (
	"bufio"
	"io"
	"net"

	"github.com/gosub-com/gosubweb/pkg/httperr"
)

// WriteStreamBufferSize is the chunk size used by WriteStream's copy loop.
const WriteStreamBufferSize = 8 * 1024

// Writer enforces the response's declared Content-Length and serializes
// the pending header-prefix write (the "pre-write task")
// before any body byte reaches the wire.
type Writer struct {
	stream   net.Conn
	buffered *bufio.Writer
	length   int64
	position int64
	preWrite func() error
}

// NewWriter allocates a fresh Writer; the pipeline pools these like Readers.
func NewWriter() *Writer {
	return &Writer{}
}

// Reset rebinds the Writer to a new stream and clears declared length,
// position, and any pending pre-write task.
func (w *Writer) Reset(stream net.Conn) {
	w.stream = stream
	if w.buffered == nil {
		w.buffered = bufio.NewWriterSize(stream, WriteStreamBufferSize)
	} else {
		w.buffered.Reset(stream)
	}
	w.length = 0
	w.position = 0
	w.preWrite = nil
}

// SetDeclaredLength records the response's frozen Content-Length.
func (w *Writer) SetDeclaredLength(n int64) {
	w.length = n
	w.position = 0
}

// SetPreWrite installs the one-shot deferred header write; the next
// Write or Flush call consumes it exactly once.
func (w *Writer) SetPreWrite(task func() error) {
	w.preWrite = task
}

// Position returns the number of body bytes written so far.
func (w *Writer) Position() int64 { return w.position }

// Stream returns the live connection this Writer is bound to. Exposed for
// pkg/wsupgrade, which must hijack the raw connection once a request is
// accepted as a WebSocket upgrade.
func (w *Writer) Stream() net.Conn { return w.stream }

// DeclaredLength returns the response's frozen Content-Length.
func (w *Writer) DeclaredLength() int64 { return w.length }

func (w *Writer) runPreWrite() error {
	if w.preWrite == nil {
		return nil
	}
	task := w.preWrite
	w.preWrite = nil
	return task()
}

// Write enforces the declared length before writing: a call that would
// push position past length fails with a protocol error (the handler
// wrote more bytes than it declared).
func (w *Writer) Write(p []byte) (int, error) {
	if err := w.runPreWrite(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if w.position+int64(len(p)) > w.length {
		return 0, httperr.NewProtocolStatus(500, "handler wrote more bytes than its declared Content-Length")
	}
	n, err := w.buffered.Write(p)
	w.position += int64(n)
	if err != nil {
		return n, httperr.WrapProtocol(400, "write failed", err)
	}
	return n, nil
}

// WriteStream copies src to the connection through an 8 KiB buffer,
// subject to the same declared-length enforcement as Write.
func (w *Writer) WriteStream(src io.Reader) (int64, error) {
	buf := make([]byte, WriteStreamBufferSize)
	var total int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			wn, werr := w.Write(buf[:n])
			total += int64(wn)
			if werr != nil {
				return total, werr
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return total, nil
			}
			return total, httperr.WrapProtocol(400, "source read failed", rerr)
		}
	}
}

// WriteHeaderPrefix writes pre-serialized response header bytes directly
// to the stream, bypassing declared-length enforcement: header bytes are
// never counted against the response body's declared Content-Length.
// Intended for exactly one caller, the pre-write task installed when
// httpctx.Context freezes the response headers.
func (w *Writer) WriteHeaderPrefix(b []byte) error {
	if _, err := w.buffered.Write(b); err != nil {
		return httperr.WrapProtocol(400, "failed writing response header", err)
	}
	return nil
}

// Flush awaits the pre-write task, if any, then flushes buffered bytes to
// the underlying stream.
func (w *Writer) Flush() error {
	if err := w.runPreWrite(); err != nil {
		return err
	}
	if err := w.buffered.Flush(); err != nil {
		return httperr.WrapProtocol(400, "flush failed", err)
	}
	return nil
}
