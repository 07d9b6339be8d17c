package wsupgrade

import (
	"net"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"github.com/gosub-com/gosubweb/pkg/connio"
	"github.com/gosub-com/gosubweb/pkg/httpctx"
)

func newUpgradeContext(t *testing.T) (*httpctx.Context, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })

	const raw = "GET /chat HTTP/1.1\r\n" +
		"Host: example.test\r\n" +
		"Connection: Upgrade\r\n" +
		"Upgrade: websocket\r\n" +
		"Sec-WebSocket-Version: 13\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"\r\n"
	go client.Write([]byte(raw))

	reader := connio.NewReader()
	live, perr := reader.Start(server, nil)
	if perr != nil || live == nil {
		t.Fatalf("unexpected start failure: %v", perr)
	}
	req, perr := reader.ReadHeader()
	if perr != nil {
		t.Fatalf("unexpected header parse failure: %v", perr)
	}
	if !req.IsWebSocket {
		t.Fatalf("expected request to be detected as a websocket upgrade")
	}

	writer := connio.NewWriter()
	writer.Reset(live)
	return httpctx.New(req, reader, writer, "remote:1", "local:1", false), client
}

func TestAcceptNegotiatesHybiHandshake(t *testing.T) {
	c, client := newUpgradeContext(t)

	handled := make(chan struct{})
	acceptor := &Acceptor{
		Handle: func(ws *websocket.Conn) {
			close(handled)
		},
	}

	go func() {
		if err := c.AcceptWebSocket(acceptor, ""); err != nil {
			t.Errorf("unexpected accept error: %v", err)
		}
	}()

	buf := make([]byte, 1024)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	resp := string(buf[:n])
	if !strings.Contains(resp, "101") {
		t.Fatalf("expected a 101 Switching Protocols response, got %q", resp)
	}
	if !strings.Contains(resp, "Sec-WebSocket-Accept") {
		t.Fatalf("expected a Sec-WebSocket-Accept header, got %q", resp)
	}

	select {
	case <-handled:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the handler to run")
	}
}

func TestAcceptRejectsNonWebSocketPreconditionAtContextLevel(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go client.Write([]byte("GET /plain HTTP/1.1\r\nHost: x\r\n\r\n"))

	reader := connio.NewReader()
	live, perr := reader.Start(server, nil)
	if perr != nil || live == nil {
		t.Fatalf("unexpected start failure: %v", perr)
	}
	req, perr := reader.ReadHeader()
	if perr != nil {
		t.Fatalf("unexpected header parse failure: %v", perr)
	}

	writer := connio.NewWriter()
	writer.Reset(live)
	c := httpctx.New(req, reader, writer, "remote:1", "local:1", false)

	acceptor := &Acceptor{Handle: func(ws *websocket.Conn) {}}
	if err := c.AcceptWebSocket(acceptor, ""); err == nil {
		t.Fatalf("expected AcceptWebSocket to reject a non-websocket request before reaching the acceptor")
	}
}
