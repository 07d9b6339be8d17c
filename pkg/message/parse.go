package message

import (
	"strconv"
	"strings"

	"github.com/gosub-com/gosubweb/pkg/bytesx"
	"github.com/gosub-com/gosubweb/pkg/httpdict"
	"github.com/gosub-com/gosubweb/pkg/httperr"
	"golang.org/x/net/http/httpguts"
)

// ParseRequest parses the byte slice from the method up to and including
// the terminating CRLFCRLF into a Request, or reports a *httperr.ProtocolError.
// No partial Request value ever escapes a failed parse.
func ParseRequest(raw []byte) (*Request, *httperr.ProtocolError) {
	text, ok := bytesx.SafeString(raw)
	if !ok {
		return nil, httperr.NewProtocol("header contains a non-printable or non-ASCII byte")
	}

	var lines []string
	for _, line := range strings.Split(text, "\r\n") {
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return nil, httperr.NewProtocol("empty request")
	}

	method, path, version, perr := parseRequestLine(lines[0])
	if perr != nil {
		return nil, perr
	}
	major, minor, perr := parseVersion(version)
	if perr != nil {
		return nil, perr
	}

	req := &Request{
		Method:        method,
		Major:         major,
		Minor:         minor,
		ContentLength: -1,
		Headers:       httpdict.New(),
	}

	applyTarget(req, path)

	var cookieRaw string
	for _, line := range lines[1:] {
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			return nil, httperr.NewProtocol("malformed header field: " + line)
		}
		key := bytesx.LowerASCIIString(strings.TrimSpace(line[:idx]))
		value := strings.TrimSpace(line[idx+1:])
		if !httpguts.ValidHeaderFieldName(key) || !httpguts.ValidHeaderFieldValue(value) {
			return nil, httperr.NewProtocol("invalid header field: " + key)
		}

		switch key {
		case "cookie":
			cookieRaw = value
		case "host":
			req.Host = value
		case "accept-encoding":
			req.AcceptEncoding = bytesx.LowerASCIIString(value)
		case "content-length":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				n = 0
			}
			req.ContentLength = n
		case "connection":
			req.Connection = bytesx.LowerASCIIString(value)
		case "referer":
			req.Referer = value
		default:
			req.Headers.Set(key, value)
		}
	}

	req.Cookies = parseCookies(cookieRaw)
	if idx := strings.IndexByte(req.Host, ':'); idx >= 0 {
		req.HostNoPort = req.Host[:idx]
	} else {
		req.HostNoPort = req.Host
	}
	req.IsWebSocket = computeIsWebSocket(req.Connection, req.Headers)

	return req, nil
}

// parseRequestLine splits the first line into its three space-separated
// tokens.
func parseRequestLine(line string) (method, target, version string, perr *httperr.ProtocolError) {
	parts := strings.Split(line, " ")
	if len(parts) != 3 {
		return "", "", "", httperr.NewProtocol("request line must have exactly three space-separated tokens")
	}
	method = parts[0]
	if !Methods[method] {
		return "", "", "", httperr.NewProtocol("unsupported method: " + method)
	}
	return method, parts[1], parts[2], nil
}

// applyTarget splits the request target into fragment, query, path, and
// extension.
func applyTarget(req *Request, target string) {
	rest := target
	fragment := ""
	if idx := strings.IndexByte(rest, '#'); idx >= 0 {
		fragment = rest[idx+1:]
		rest = rest[:idx]
	}
	query := ""
	if idx := strings.IndexByte(rest, '?'); idx >= 0 {
		query = rest[idx+1:]
		rest = rest[:idx]
	}
	path := strings.Trim(rest, "/")

	req.Fragment = fragment
	req.Query = parseQuery(query)
	req.Path = path
	req.PathLower = bytesx.LowerASCIIString(path)
	req.Ext = splitExt(path)
}

// parseVersion parses "HTTP/major.minor", rejecting anything whose major
// version is not 1.
func parseVersion(token string) (major, minor int, perr *httperr.ProtocolError) {
	const prefix = "HTTP/"
	if !strings.HasPrefix(token, prefix) {
		return 0, 0, httperr.NewProtocol("malformed version token: " + token)
	}
	numbers := strings.SplitN(token[len(prefix):], ".", 2)
	if len(numbers) != 2 {
		return 0, 0, httperr.NewProtocol("malformed version token: " + token)
	}
	maj, err1 := strconv.Atoi(numbers[0])
	min, err2 := strconv.Atoi(numbers[1])
	if err1 != nil || err2 != nil {
		return 0, 0, httperr.NewProtocol("malformed version token: " + token)
	}
	if maj != 1 {
		return 0, 0, httperr.NewProtocol("unsupported HTTP major version: " + numbers[0])
	}
	return maj, min, nil
}
