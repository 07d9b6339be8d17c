package server

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/gosub-com/gosubweb/pkg/httpctx"
	"github.com/gosub-com/gosubweb/pkg/logging"
	"github.com/gosub-com/gosubweb/pkg/stats"
)

func echoHandler(c *httpctx.Context) (bool, error) {
	if err := c.SendText("hi " + c.Request.Path); err != nil {
		return true, err
	}
	return true, nil
}

func unhandledHandler(c *httpctx.Context) (bool, error) {
	return false, nil
}

func newTestServer(handlers ...Handler) *Server {
	return New(Config{
		Log:      logging.New(100, logging.Debug, false),
		Stats:    stats.New(),
		Handlers: handlers,
	})
}

func TestHandleConnectionServesKeepAliveRequests(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	s := newTestServer(echoHandler)
	go s.handleConnection(server)

	go client.Write([]byte("GET /a HTTP/1.1\r\nHost: x\r\n\r\n"))

	buf := make([]byte, 4096)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	resp := string(buf[:n])
	if !strings.Contains(resp, "hi a") || !strings.Contains(resp, "Connection: keep-alive") {
		t.Fatalf("unexpected first response: %q", resp)
	}

	go client.Write([]byte("GET /b HTTP/1.1\r\nHost: x\r\n\r\n"))
	n, err = client.Read(buf)
	if err != nil {
		t.Fatalf("unexpected second read error: %v", err)
	}
	resp2 := string(buf[:n])
	if !strings.Contains(resp2, "hi b") {
		t.Fatalf("unexpected second response: %q", resp2)
	}
}

func TestHandleConnectionClosesOnConnectionClose(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	s := newTestServer(echoHandler)
	done := make(chan struct{})
	go func() {
		s.handleConnection(server)
		close(done)
	}()

	go client.Write([]byte("GET /a HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"))

	buf := make([]byte, 4096)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if !strings.Contains(string(buf[:n]), "Connection: close") {
		t.Fatalf("expected Connection: close in the response, got %q", buf[:n])
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected handleConnection to return once the connection directive was close")
	}
}

func TestHandleConnectionRepliesGenericOn500WhenUnhandled(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	s := newTestServer(unhandledHandler)
	done := make(chan struct{})
	go func() {
		s.handleConnection(server)
		close(done)
	}()

	go client.Write([]byte("GET /a HTTP/1.1\r\nHost: x\r\n\r\n"))

	buf := make([]byte, 4096)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	resp := string(buf[:n])
	if !strings.Contains(resp, "500") || !strings.Contains(resp, "There was a server error") {
		t.Fatalf("expected a generic server error reply, got %q", resp)
	}

	// The reply arrived on a still-open keep-alive connection; only the
	// client closing it lets the pipeline return.
	client.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected the pipeline to return once the client closed")
	}
}

func panicHandler(c *httpctx.Context) (bool, error) {
	panic("boom")
}

func TestHandleConnectionRecoversHandlerPanic(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	s := newTestServer(panicHandler)
	done := make(chan struct{})
	go func() {
		s.handleConnection(server)
		close(done)
	}()

	go client.Write([]byte("GET /a HTTP/1.1\r\nHost: x\r\n\r\n"))

	buf := make([]byte, 4096)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	resp := string(buf[:n])
	if !strings.Contains(resp, "500") || !strings.Contains(resp, "There was a server error") {
		t.Fatalf("expected a generic server error reply after a panic, got %q", resp)
	}

	// The recovered panic left the keep-alive connection open; only the
	// client closing it lets the pipeline return.
	client.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected the pipeline to return once the client closed")
	}
}

func TestAcquireReleaseReusesPoolEntries(t *testing.T) {
	counters := stats.New()
	p := newPool(counters)
	r1, w1 := p.acquire()
	p.release(r1, w1)
	if counters.Snapshot().PooledBuffers != 1 {
		t.Fatalf("expected one pooled buffer after release")
	}
	r2, w2 := p.acquire()
	if r1 != r2 || w1 != w2 {
		t.Fatalf("expected the released reader/writer to be reused")
	}
	if counters.Snapshot().PooledBuffers != 0 {
		t.Fatalf("expected the pooled-buffer count to drop on reuse")
	}
}

func TestHandleConnectionCountsLifetimeHits(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	s := newTestServer(echoHandler)
	go s.handleConnection(server)

	buf := make([]byte, 4096)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	for _, path := range []string{"/a", "/b"} {
		go client.Write([]byte("GET " + path + " HTTP/1.1\r\nHost: x\r\n\r\n"))
		if _, err := client.Read(buf); err != nil {
			t.Fatalf("unexpected read error: %v", err)
		}
	}

	if hits := s.stats.Snapshot().LifetimeHits; hits != 2 {
		t.Fatalf("expected 2 lifetime hits, got %d", hits)
	}
}
