// Package redirect implements the redirector: a lowercase
// source-path to destination mapping, plus an optional HTTP->HTTPS
// upgrade, installed ahead of the static-file server and user handler.
package redirect

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gosub-com/gosubweb/pkg/httpctx"
)

// Redirector answers each request with a 301 if it matches a configured
// source path, or if UpgradeInsecure is set and the request arrived
// plaintext on port 80; otherwise it reports "not handled".
type Redirector struct {
	mu              sync.RWMutex
	destinations    map[string]string // lowercase source path -> destination
	UpgradeInsecure bool
}

// New returns an empty Redirector.
func New() *Redirector {
	return &Redirector{destinations: make(map[string]string)}
}

// Add registers a source -> destination redirect. Source must not begin
// or end with '/'; destination must begin with '/'. Violating either
// invariant is reported as an error and the map is left unchanged.
func (r *Redirector) Add(source, destination string) error {
	if source == "" || strings.HasPrefix(source, "/") || strings.HasSuffix(source, "/") {
		return fmt.Errorf("redirect source %q must not begin or end with '/'", source)
	}
	if !strings.HasPrefix(destination, "/") {
		return fmt.Errorf("redirect destination %q must begin with '/'", destination)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.destinations[strings.ToLower(source)] = destination
	return nil
}

// Handle implements server.Handler: it reports whether the
// request was handled, and any error encountered while responding.
func (r *Redirector) Handle(c *httpctx.Context) (bool, error) {
	if r.UpgradeInsecure && localPort(c.LocalAddr) == "80" {
		target := "https://" + c.Request.HostNoPort + "/" + c.Request.Path
		if err := r.sendRedirect(c, target); err != nil {
			return true, err
		}
		return true, nil
	}

	r.mu.RLock()
	destination, ok := r.destinations[c.Request.PathLower]
	r.mu.RUnlock()
	if !ok {
		return false, nil
	}

	if err := r.sendRedirect(c, destination); err != nil {
		return true, err
	}
	return true, nil
}

func (r *Redirector) sendRedirect(c *httpctx.Context, location string) error {
	c.Response.SetStatus(301, "")
	c.Response.SetHeader("Location", location)
	return c.SendText("")
}

// localPort extracts the port from a "host:port" local address, or ""
// if there is none.
func localPort(addr string) string {
	idx := strings.LastIndexByte(addr, ':')
	if idx < 0 {
		return ""
	}
	return addr[idx+1:]
}
