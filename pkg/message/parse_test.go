package message

import "testing"

func raw(s string) []byte { return []byte(s) }

func TestParseSimpleGet(t *testing.T) {
	req, perr := ParseRequest(raw("GET /index.html HTTP/1.1\r\nHost: x\r\n\r\n"))
	if perr != nil {
		t.Fatalf("unexpected error: %v", perr)
	}
	if req.Method != "GET" || req.Path != "index.html" || req.Major != 1 || req.Minor != 1 {
		t.Fatalf("unexpected request: %+v", req)
	}
	if req.ContentLength != -1 {
		t.Fatalf("expected -1 content length when absent, got %d", req.ContentLength)
	}
}

func TestMethodWhitelist(t *testing.T) {
	_, perr := ParseRequest(raw("BREW /coffee HTTP/1.1\r\nHost: x\r\n\r\n"))
	if perr == nil {
		t.Fatalf("expected a protocol error for an unsupported method")
	}
}

func TestRejectNonAsciiHeader(t *testing.T) {
	_, perr := ParseRequest(append(raw("GET / HTTP/1.1\r\nHost: "), append([]byte{0xFF}, raw("\r\n\r\n")...)...))
	if perr == nil {
		t.Fatalf("expected protocol error for non-ASCII byte")
	}
}

func TestVersionMajorMustBeOne(t *testing.T) {
	_, perr := ParseRequest(raw("GET / HTTP/2.0\r\nHost: x\r\n\r\n"))
	if perr == nil {
		t.Fatalf("expected protocol error for HTTP/2 major version")
	}
}

func TestQueryAndFragment(t *testing.T) {
	req, perr := ParseRequest(raw("GET /search?q=go&empty HTTP/1.1\r\nHost: x\r\n\r\n"))
	if perr != nil {
		t.Fatalf("unexpected error: %v", perr)
	}
	if req.Query.Get("q") != "go" {
		t.Fatalf("expected q=go, got %+v", req.Query)
	}
	if !req.Query.Has("empty") || req.Query.Get("empty") != "" {
		t.Fatalf("expected bare key to map to empty value")
	}
}

func TestHostWithoutPort(t *testing.T) {
	req, perr := ParseRequest(raw("GET / HTTP/1.1\r\nHost: example.com:8080\r\n\r\n"))
	if perr != nil {
		t.Fatalf("unexpected error: %v", perr)
	}
	if req.HostNoPort != "example.com" {
		t.Fatalf("expected example.com, got %s", req.HostNoPort)
	}
}

func TestIsWebSocket(t *testing.T) {
	req, perr := ParseRequest(raw("GET /ws HTTP/1.1\r\nHost: x\r\nConnection: Upgrade\r\nUpgrade: websocket\r\nSec-WebSocket-Version: 13\r\n\r\n"))
	if perr != nil {
		t.Fatalf("unexpected error: %v", perr)
	}
	if !req.IsWebSocket {
		t.Fatalf("expected is-websocket to be true")
	}
}

func TestIsWebSocketRequiresMinVersion(t *testing.T) {
	req, perr := ParseRequest(raw("GET /ws HTTP/1.1\r\nHost: x\r\nConnection: Upgrade\r\nUpgrade: websocket\r\nSec-WebSocket-Version: 8\r\n\r\n"))
	if perr != nil {
		t.Fatalf("unexpected error: %v", perr)
	}
	if req.IsWebSocket {
		t.Fatalf("expected is-websocket to be false below version 13")
	}
}

func TestContentLengthParseFailureDefaultsToZero(t *testing.T) {
	req, perr := ParseRequest(raw("POST / HTTP/1.1\r\nHost: x\r\nContent-Length: notanumber\r\n\r\n"))
	if perr != nil {
		t.Fatalf("unexpected error: %v", perr)
	}
	if req.ContentLength != 0 {
		t.Fatalf("expected 0 on unparseable content-length, got %d", req.ContentLength)
	}
}

func TestExtensionExtraction(t *testing.T) {
	req, perr := ParseRequest(raw("GET /a/b/c.TXT HTTP/1.1\r\nHost: x\r\n\r\n"))
	if perr != nil {
		t.Fatalf("unexpected error: %v", perr)
	}
	if req.Ext != "txt" {
		t.Fatalf("expected lowercased extension txt, got %q", req.Ext)
	}
}

func TestCookieParsing(t *testing.T) {
	req, perr := ParseRequest(raw("GET / HTTP/1.1\r\nHost: x\r\nCookie: a=1; b=2\r\n\r\n"))
	if perr != nil {
		t.Fatalf("unexpected error: %v", perr)
	}
	if req.Cookies.Get("a") != "1" || req.Cookies.Get("b") != "2" {
		t.Fatalf("unexpected cookies: %+v", req.Cookies)
	}
}

func TestMalformedRequestLineTokenCount(t *testing.T) {
	_, perr := ParseRequest(raw("GET /\r\nHost: x\r\n\r\n"))
	if perr == nil {
		t.Fatalf("expected protocol error for malformed request line")
	}
}

func TestMalformedHeaderField(t *testing.T) {
	_, perr := ParseRequest(raw("GET / HTTP/1.1\r\nNoColonHere\r\n\r\n"))
	if perr == nil {
		t.Fatalf("expected protocol error for header with no colon")
	}
}
