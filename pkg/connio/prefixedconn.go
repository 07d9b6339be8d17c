package connio

import "net"

// prefixedConn replays a byte slice already consumed from conn before any
// further reads reach the socket. This is how Reader.Start recovers from
// having read (rather than true-peeked) the first chunk off the wire
// before it knows whether that chunk is a TLS ClientHello: the bytes are
// buffered in the Reader already, and the TLS handshake (or the plain
// header scan) is handed a conn that replays them first.
type prefixedConn struct {
	net.Conn
	prefix []byte
}

func (p *prefixedConn) Read(b []byte) (int, error) {
	if len(p.prefix) > 0 {
		n := copy(b, p.prefix)
		p.prefix = p.prefix[n:]
		return n, nil
	}
	return p.Conn.Read(b)
}
