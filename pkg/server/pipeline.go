package server

import (
	"fmt"
	"net"
	"runtime/debug"
	"strconv"

	"github.com/gosub-com/gosubweb/pkg/connio"
	"github.com/gosub-com/gosubweb/pkg/httpctx"
	"github.com/gosub-com/gosubweb/pkg/httperr"
	"github.com/gosub-com/gosubweb/pkg/message"
)

// genericServerErrorBody is the body a ServerError reply always carries,
// regardless of the underlying cause.
const genericServerErrorBody = "There was a server error. It has been logged and we are looking into it."

// handleConnection drives one TCP connection through
// ACCEPT -> START -> { WAIT_HEADER -> SERVE_BODY -> VALIDATE -> LOOP|CLOSE }.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.stats.DecAliveConnections()
	defer conn.Close()

	reader, writer := s.pool.acquire()
	defer s.pool.release(reader, writer)

	live, perr := reader.Start(conn, s.cfg.Cert)
	if perr != nil {
		s.log.Debugf("start rejected %s: %v", conn.RemoteAddr(), perr)
		return
	}
	if live == nil {
		return
	}

	localAddr, remoteAddr := addrStrings(live)
	writer.Reset(live)

	for {
		s.stats.IncWaitingForHeader()
		req, perr := reader.ReadHeader()
		s.stats.DecWaitingForHeader()
		if perr != nil {
			s.log.Debugf("header rejected on %s: %v", remoteAddr, perr)
			return
		}
		if req == nil {
			return
		}

		s.stats.IncLifetimeHits()
		s.stats.IncServingHTTPBody()
		if req.IsWebSocket {
			s.stats.IncServingWebsockets()
		}
		keepAlive := s.serveOne(req, reader, writer, remoteAddr, localAddr, reader.Secure())
		if req.IsWebSocket {
			s.stats.DecServingWebsockets()
		}
		s.stats.DecServingHTTPBody()
		if !keepAlive {
			return
		}
	}
}

func addrStrings(conn net.Conn) (local, remote string) {
	if a := conn.LocalAddr(); a != nil {
		local = a.String()
	}
	if a := conn.RemoteAddr(); a != nil {
		remote = a.String()
	}
	return local, remote
}

// serveOne runs SERVE_BODY and VALIDATE for a single request, reporting
// whether the pipeline should loop for another request on this
// connection.
func (s *Server) serveOne(req *message.Request, reader *connio.Reader, writer *connio.Writer, remoteAddr, localAddr string, secure bool) bool {
	ctx := httpctx.New(req, reader, writer, remoteAddr, localAddr, secure)

	handled, err := s.dispatch(ctx)
	if err != nil {
		return s.handleDispatchError(ctx, err)
	}
	if !handled {
		err := httperr.NewServerStatus(500, "no handler reported the request as handled", nil)
		return s.handleDispatchError(ctx, err)
	}

	if req.IsWebSocket {
		// The upgrade either completed or the connection was dropped;
		// either way this pipeline's job on this TCP stream is done.
		return false
	}

	if !ctx.Response.HeaderSent() {
		err := httperr.NewServerStatus(500, "handler returned without sending a response header", nil)
		return s.handleDispatchError(ctx, err)
	}

	if reader.Position() != reader.BodyLength() {
		s.log.Errorf("framing mismatch on %s: reader delivered %d of %d declared body bytes", remoteAddr, reader.Position(), reader.BodyLength())
		return false
	}
	if writer.Position() != writer.DeclaredLength() {
		s.log.Errorf("framing mismatch on %s: writer sent %d of %d declared body bytes", remoteAddr, writer.Position(), writer.DeclaredLength())
		return false
	}

	return ctx.Response.Connection == "keep-alive"
}

// dispatch runs the configured handler chain, stopping at the first one
// that reports the request handled. A panicking handler surfaces as a
// server failure carrying the panic's stack trace.
func (s *Server) dispatch(ctx *httpctx.Context) (handled bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			handled = true
			err = httperr.NewServerPanic("handler panicked", fmt.Errorf("%v", r))
		}
	}()
	for _, h := range s.cfg.Handlers {
		handled, err = h(ctx)
		if err != nil {
			return handled, err
		}
		if handled {
			return true, nil
		}
	}
	return false, nil
}

// handleDispatchError is the error funnel: classify, reply if
// possible, log, and report whether the connection may loop.
func (s *Server) handleDispatchError(ctx *httpctx.Context, err error) bool {
	proto, srv, unknown := httperr.Classify(err)
	if unknown {
		srv = httperr.NewServerStatus(500, "unhandled error", err)
		srv.Stack = debug.Stack()
	}

	if proto != nil {
		s.log.Debugf("protocol failure: %v", proto)
		s.replyIfPossible(ctx, proto.Status, proto.Message)
		return false
	}

	site := srv.Func
	if srv.File != "" {
		site = srv.File + ":" + strconv.Itoa(srv.Line) + " (" + srv.Func + ")"
	}
	if len(srv.Stack) > 0 {
		s.log.ErrorAt(site, "%s: %v\n%s", srv.Message, srv.Cause, srv.Stack)
	} else {
		s.log.ErrorAt(site, "%s: %v", srv.Message, srv.Cause)
	}

	// A server failure is survivable only while a clean generic reply is
	// still possible; a half-written response leaves the stream unframed.
	if ctx.Response.HeaderSent() || ctx.Request.IsWebSocket {
		return false
	}
	s.replyIfPossible(ctx, 500, genericServerErrorBody)
	return true
}

// replyIfPossible sends a generic error body if the response header
// hasn't already been sent, and never for a websocket request. Flush and
// write failures during error reporting are swallowed; the
// double-fault path just logs and gives up on the connection.
func (s *Server) replyIfPossible(ctx *httpctx.Context, status int, body string) {
	if ctx.Response.HeaderSent() || ctx.Request.IsWebSocket {
		return
	}
	_ = ctx.SendStatusText(status, body)
}
