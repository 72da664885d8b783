package transfer

import (
	"crypto/tls"
	"io"
	"net"
)

// prefixConn drains already-buffered plaintext before reading from the
// socket. Bytes queued between the 234 reply and the handshake must not
// be lost.
type prefixConn struct {
	net.Conn
	pre io.Reader
}

func (c *prefixConn) Read(p []byte) (int, error) {
	if c.pre != nil {
		n, err := c.pre.Read(p)
		if n > 0 {
			return n, nil
		}
		if err != io.EOF {
			return n, err
		}
		c.pre = nil
	}
	return c.Conn.Read(p)
}

// UpgradeToTLS wraps a plaintext stream in a server-side TLS session and
// reports whether the peer certificate verified. buffered, when non-nil,
// is consumed before any handshake byte. On handshake failure the
// underlying stream is destroyed. An unverified peer is only accepted
// when allowUnauthorized is set.
func UpgradeToTLS(raw net.Conn, buffered io.Reader, cfg *tls.Config, allowUnauthorized bool) (net.Conn, bool, error) {
	conn := raw
	if buffered != nil {
		conn = &prefixConn{Conn: raw, pre: buffered}
	}

	tlsConn := tls.Server(conn, cfg)
	if err := tlsConn.Handshake(); err != nil {
		raw.Close()
		return nil, false, err
	}

	authorized := len(tlsConn.ConnectionState().VerifiedChains) > 0
	if !authorized && !allowUnauthorized {
		tlsConn.Close()
		return nil, false, ErrUnauthorizedPeer
	}
	return tlsConn, authorized, nil
}
