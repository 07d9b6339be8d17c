// Package server implements the connection pipeline: the accept
// loop, TLS handshake dispatch, keep-alive loop, error funnel, and the
// reader/writer free lists the pipeline recycles across connections.
package server

import (
	"crypto/tls"
	"net"

	"golang.org/x/net/netutil"

	"github.com/gosub-com/gosubweb/pkg/httpctx"
	"github.com/gosub-com/gosubweb/pkg/logging"
	"github.com/gosub-com/gosubweb/pkg/stats"
)

// DefaultMaxConnections is the overload guard's default ceiling.
const DefaultMaxConnections = 10000

// Handler is the single functional contract every installed component
// satisfies: report whether the request was handled, and any error
// encountered while doing so. The first handler in Config.Handlers to
// report handled wins; cmd/gosubweb composes the redirector, static-file
// server, and user handler this way, by explicit sequential branching
// rather than a middleware chain.
type Handler func(c *httpctx.Context) (bool, error)

// Config configures a Server.
type Config struct {
	// Cert is the TLS certificate this server's listeners accept; nil
	// means a pure plaintext port, where any connection opening with a
	// TLS ClientHello is dropped.
	Cert *tls.Certificate

	// MaxConnections is the overload guard's ceiling (DefaultMaxConnections
	// if <= 0).
	MaxConnections int

	Log   *logging.Logger
	Stats *stats.Counters

	// Handlers run in order; the first to report handled wins. A handler
	// that reports not-handled and returns a nil error falls through to
	// the next.
	Handlers []Handler
}

// Server owns one listener's accept loop and the reader/writer pools its
// connections share.
type Server struct {
	cfg   Config
	pool  *pool
	log   *logging.Logger
	stats *stats.Counters
}

// New constructs a Server from cfg, defaulting MaxConnections, Log, and
// Stats where the caller left them unset.
func New(cfg Config) *Server {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = DefaultMaxConnections
	}
	if cfg.Log == nil {
		cfg.Log = logging.New(logging.DefaultCapacity, logging.Info, false)
	}
	if cfg.Stats == nil {
		cfg.Stats = stats.New()
	}
	return &Server{
		cfg:   cfg,
		pool:  newPool(cfg.Stats),
		log:   cfg.Log,
		stats: cfg.Stats,
	}
}

// Serve runs the accept loop on listener until it returns an error (the
// listener was closed, typically). The overload guard wraps listener in
// golang.org/x/net/netutil.LimitListener before the accept loop ever sees
// it, so a full pool simply blocks new Accepts rather than needing
// hand-rolled counted-accept bookkeeping.
func (s *Server) Serve(listener net.Listener) error {
	limited := netutil.LimitListener(listener, s.cfg.MaxConnections)
	for {
		conn, err := limited.Accept()
		if err != nil {
			return err
		}
		s.stats.IncLifetimeConnects()
		s.stats.IncAliveConnections()
		go s.handleConnection(conn)
	}
}
