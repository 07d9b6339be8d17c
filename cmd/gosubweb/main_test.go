package main

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gosub-com/gosubweb/pkg/connio"
	"github.com/gosub-com/gosubweb/pkg/httpctx"
	"github.com/gosub-com/gosubweb/pkg/logging"
	"github.com/gosub-com/gosubweb/pkg/redirect"
	"github.com/gosub-com/gosubweb/pkg/staticfs"
	"github.com/gosub-com/gosubweb/pkg/stats"
)

func TestLoadRedirectsSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "redirects.txt")
	content := "old /new\nmalformed-single-token\n/bad /also-bad\ngood /dest\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	log := logging.New(10, logging.Error, false)
	r := redirect.New()
	loadRedirects(r, path, log)

	c, client := newAdminContext(t, "GET /old HTTP/1.1\r\nHost: x\r\n\r\n")
	defer client.Close()
	startAdminRead(client)
	handled, err := r.Handle(c)
	if err != nil || !handled {
		t.Fatalf("expected the valid 'old' redirect to be registered, handled=%v err=%v", handled, err)
	}

	c2, client2 := newAdminContext(t, "GET /good HTTP/1.1\r\nHost: x\r\n\r\n")
	defer client2.Close()
	startAdminRead(client2)
	handled2, err2 := r.Handle(c2)
	if err2 != nil || !handled2 {
		t.Fatalf("expected the valid 'good' redirect to be registered, handled=%v err=%v", handled2, err2)
	}
}

func TestLoadRedirectsMissingFileIsNotFatal(t *testing.T) {
	log := logging.New(10, logging.Error, false)
	r := redirect.New()
	loadRedirects(r, filepath.Join(t.TempDir(), "does-not-exist.txt"), log)

	c, client := newAdminContext(t, "GET /anything HTTP/1.1\r\nHost: x\r\n\r\n")
	defer client.Close()
	handled, err := r.Handle(c)
	if err != nil || handled {
		t.Fatalf("expected no redirects to be registered, handled=%v err=%v", handled, err)
	}
}

func TestAdminRoutesServesStatsAsJSON(t *testing.T) {
	a := &adminRoutes{
		log:   logging.New(10, logging.Error, false),
		stats: stats.New(),
		files: staticfs.New(t.TempDir()),
	}
	c, client := newAdminContext(t, "GET /admin/api/stats HTTP/1.1\r\nHost: x\r\n\r\n")
	defer client.Close()
	respCh := startAdminRead(client)

	handled, err := a.Handle(c)
	if err != nil || !handled {
		t.Fatalf("unexpected handle result: handled=%v err=%v", handled, err)
	}

	resp := <-respCh
	if !strings.Contains(resp, "Content-Type: application/json") || !strings.Contains(resp, "alive_connections") {
		t.Fatalf("unexpected response: %q", resp)
	}
}

func TestAdminRoutesRejectsUnknownPath(t *testing.T) {
	a := &adminRoutes{
		log:   logging.New(10, logging.Error, false),
		stats: stats.New(),
		files: staticfs.New(t.TempDir()),
	}
	c, client := newAdminContext(t, "GET /admin/api/bogus HTTP/1.1\r\nHost: x\r\n\r\n")
	defer client.Close()
	respCh := startAdminRead(client)

	handled, err := a.Handle(c)
	if err != nil || !handled {
		t.Fatalf("unexpected handle result: handled=%v err=%v", handled, err)
	}
	if resp := <-respCh; !strings.Contains(resp, "404") {
		t.Fatalf("unexpected response: %q", resp)
	}
}

func TestAdminRoutesRejectsNonGET(t *testing.T) {
	a := &adminRoutes{
		log:   logging.New(10, logging.Error, false),
		stats: stats.New(),
		files: staticfs.New(t.TempDir()),
	}
	c, client := newAdminContext(t, "POST /admin/api/stats HTTP/1.1\r\nHost: x\r\n\r\n")
	defer client.Close()
	respCh := startAdminRead(client)

	handled, err := a.Handle(c)
	if err != nil || !handled {
		t.Fatalf("unexpected handle result: handled=%v err=%v", handled, err)
	}
	if resp := <-respCh; !strings.Contains(resp, "405") {
		t.Fatalf("unexpected response: %q", resp)
	}
}

func newAdminContext(t *testing.T, requestBytes string) (*httpctx.Context, net.Conn) {
	t.Helper()
	client, srv := net.Pipe()
	t.Cleanup(func() { srv.Close() })

	go client.Write([]byte(requestBytes))

	reader := connio.NewReader()
	live, perr := reader.Start(srv, nil)
	if perr != nil || live == nil {
		t.Fatalf("unexpected start failure: %v", perr)
	}
	req, perr := reader.ReadHeader()
	if perr != nil {
		t.Fatalf("unexpected header parse failure: %v", perr)
	}

	writer := connio.NewWriter()
	writer.Reset(live)
	return httpctx.New(req, reader, writer, "remote:1", "local:1", false), client
}

// startAdminRead drains one response from conn in the background; the
// pipe is unbuffered, so the reader must be running before the handler
// flushes.
func startAdminRead(conn net.Conn) <-chan string {
	ch := make(chan string, 1)
	go func() {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		buf := make([]byte, 1<<16)
		n, _ := conn.Read(buf)
		ch <- string(buf[:n])
	}()
	return ch
}
