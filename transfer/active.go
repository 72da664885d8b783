package transfer

import (
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/HalfdanJ/nodeftpd/utils"
)

// ActiveHandler handles active connection.
type ActiveHandler struct {
	RemoteAddr *net.TCPAddr // remote address of the client

	// TLSConfig upgrades the dialed socket (PROT P). nil keeps it clear.
	TLSConfig            *tls.Config
	AllowUnauthorizedTLS bool

	conn      net.Conn
	closeOnce sync.Once
}

// Open dials the client, reusing an already established connection.
func (a *ActiveHandler) Open() (utils.Conn, error) {
	if a.conn != nil {
		return a.conn, nil
	}

	conn, err := net.DialTimeout("tcp", a.RemoteAddr.String(), 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("could not establish active connection: %v", err)
	}

	if a.TLSConfig != nil {
		conn, _, err = UpgradeToTLS(conn, nil, a.TLSConfig, a.AllowUnauthorizedTLS)
		if err != nil {
			return nil, fmt.Errorf("could not secure active connection: %v", err)
		}
	}

	// Keep connection as it will be closed by Close().
	a.conn = conn

	return a.conn, nil
}

// Close closes only if connection is established, and at most once.
func (a *ActiveHandler) Close() error {
	var err error
	a.closeOnce.Do(func() {
		if a.conn != nil {
			err = a.conn.Close()
		}
	})
	return err
}
