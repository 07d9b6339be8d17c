// Package httperr provides the two-kind error taxonomy the connection
// pipeline classifies every failure into: protocol errors (the peer's
// fault, always fatal to the connection) and server errors (this
// process's fault, reported generically and non-fatal to keep-alive).
package httperr

import (
	"errors"
	"fmt"
	"runtime"
)

// DefaultProtocolStatus is used when a ProtocolError doesn't specify one.
const DefaultProtocolStatus = 400

// DefaultServerStatus is used when a ServerError doesn't specify one.
const DefaultServerStatus = 500

// ProtocolError signals that the peer violated or confused the wire
// protocol, or that the connection broke in a way that makes the
// connection unsalvageable. It always carries a client-visible status
// and message, and is always connection-fatal.
type ProtocolError struct {
	Status  int
	Message string
	Cause   error
}

func (e *ProtocolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("protocol error (%d): %s: %s", e.Status, e.Message, e.Cause)
	}
	return fmt.Sprintf("protocol error (%d): %s", e.Status, e.Message)
}

func (e *ProtocolError) Unwrap() error { return e.Cause }

// NewProtocol builds a ProtocolError with the default status.
func NewProtocol(message string) *ProtocolError {
	return &ProtocolError{Status: DefaultProtocolStatus, Message: message}
}

// NewProtocolStatus builds a ProtocolError with an explicit status code.
func NewProtocolStatus(status int, message string) *ProtocolError {
	return &ProtocolError{Status: status, Message: message}
}

// WrapProtocol preserves an underlying I/O error's message for logs while
// reporting a protocol failure to the pipeline.
func WrapProtocol(status int, message string, cause error) *ProtocolError {
	return &ProtocolError{Status: status, Message: message, Cause: cause}
}

// ServerError signals an internal fault in the handler or the core. It
// carries the log-site location (file/line/function) rather than relying
// on reflection or a captured stack unless Stack is explicitly populated
// for unexpected panics.
type ServerError struct {
	Status  int
	Message string
	Cause   error
	File    string
	Line    int
	Func    string
	Stack   []byte
}

func (e *ServerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("server error at %s:%d (%s): %s: %s", e.File, e.Line, e.Func, e.Message, e.Cause)
	}
	return fmt.Sprintf("server error at %s:%d (%s): %s", e.File, e.Line, e.Func, e.Message)
}

func (e *ServerError) Unwrap() error { return e.Cause }

// NewServer builds a ServerError, capturing the caller's location.
func NewServer(message string, cause error) *ServerError {
	return newServerAt(1, DefaultServerStatus, message, cause, nil)
}

// NewServerStatus builds a ServerError with an explicit status code.
func NewServerStatus(status int, message string, cause error) *ServerError {
	return newServerAt(1, status, message, cause, nil)
}

// NewServerPanic builds a ServerError for a recovered panic, always
// carrying a stack trace per the "unknown exceptions are server failures
// with a mandatory stack trace" rule.
func NewServerPanic(message string, cause error) *ServerError {
	stack := make([]byte, 8192)
	n := runtime.Stack(stack, false)
	return newServerAt(1, DefaultServerStatus, message, cause, stack[:n])
}

func newServerAt(skip, status int, message string, cause error, stack []byte) *ServerError {
	pc, file, line, ok := runtime.Caller(skip + 1)
	funcName := "unknown"
	if ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			funcName = fn.Name()
		}
	}
	return &ServerError{
		Status:  status,
		Message: message,
		Cause:   cause,
		File:    file,
		Line:    line,
		Func:    funcName,
		Stack:   stack,
	}
}

// Classify unwraps err once (wrapped errors are unwrapped exactly once
// before classification, never recursively) and reports whether it is
// a ProtocolError, a ServerError, or neither (an unknown error, which the
// caller should treat as a ServerError with a mandatory stack trace).
func Classify(err error) (proto *ProtocolError, srv *ServerError, unknown bool) {
	if err == nil {
		return nil, nil, false
	}
	if p, ok := err.(*ProtocolError); ok {
		return p, nil, false
	}
	if s, ok := err.(*ServerError); ok {
		return nil, s, false
	}
	if unwrapped := errors.Unwrap(err); unwrapped != nil {
		if p, ok := unwrapped.(*ProtocolError); ok {
			return p, nil, false
		}
		if s, ok := unwrapped.(*ServerError); ok {
			return nil, s, false
		}
	}
	return nil, nil, true
}
