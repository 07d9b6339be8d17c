// Package message implements the wire-level Request/Response values and
// the request parser the connection pipeline drives.
package message

import (
	"strings"

	"github.com/gosub-com/gosubweb/pkg/bytesx"
	"github.com/gosub-com/gosubweb/pkg/httpdict"
)

// Methods is the enumerated set of accepted request methods.
var Methods = map[string]bool{
	"GET": true, "HEAD": true, "POST": true, "PUT": true,
	"DELETE": true, "OPTIONS": true, "CONNECT": true, "TRACE": true,
}

// MinWebSocketVersion is the floor Sec-WebSocket-Version must meet for
// IsWebSocket to be set.
const MinWebSocketVersion = 13

// Request is immutable once parsed; no field is ever mutated after
// ParseRequest returns it.
type Request struct {
	Method         string
	Major, Minor   int
	Path           string // case-preserved, stripped of surrounding '/'
	PathLower      string
	Ext            string // lowercased extension of the last path segment, or ""
	Fragment       string
	Query          httpdict.Dict
	Cookies        httpdict.Dict
	Host           string
	HostNoPort     string
	Connection     string // lowercased
	Referer        string
	AcceptEncoding string        // lowercased
	ContentLength  int64         // -1 when absent
	Headers        httpdict.Dict // general mapping, keys lowercased
	IsWebSocket    bool
}

// computeIsWebSocket decides whether the request is a WebSocket upgrade.
func computeIsWebSocket(connection string, headers httpdict.Dict) bool {
	if !strings.Contains(connection, "upgrade") {
		return false
	}
	upgrade := bytesx.LowerASCIIString(strings.TrimSpace(headers.Get("upgrade")))
	if upgrade != "websocket" {
		return false
	}
	version := headers.GetInt("sec-websocket-version", -1)
	return version >= MinWebSocketVersion
}

// parseQuery parses a "&"-separated k=v query string; bare keys map to
// the empty value, and the last write for a repeated key wins.
func parseQuery(raw string) httpdict.Dict {
	q := httpdict.New()
	if raw == "" {
		return q
	}
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		if idx := strings.IndexByte(pair, '='); idx >= 0 {
			q.Set(pair[:idx], pair[idx+1:])
		} else {
			q.Set(pair, "")
		}
	}
	return q
}

// parseCookies parses a "Cookie:" header value into a Dict: "; "-separated
// k=v pairs, each side trimmed.
func parseCookies(raw string) httpdict.Dict {
	c := httpdict.New()
	if raw == "" {
		return c
	}
	for _, pair := range strings.Split(raw, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		if idx := strings.IndexByte(pair, '='); idx >= 0 {
			c.Set(strings.TrimSpace(pair[:idx]), strings.TrimSpace(pair[idx+1:]))
		} else {
			c.Set(pair, "")
		}
	}
	return c
}

// splitExt returns the lowercased extension after the final '.' of the
// last path segment, or "" if there is none.
func splitExt(path string) string {
	lastSlash := strings.LastIndexByte(path, '/')
	segment := path
	if lastSlash >= 0 {
		segment = path[lastSlash+1:]
	}
	dot := strings.LastIndexByte(segment, '.')
	if dot < 0 || dot == len(segment)-1 {
		return ""
	}
	return bytesx.LowerASCIIString(segment[dot+1:])
}
