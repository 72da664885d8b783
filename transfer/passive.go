package transfer

import (
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/HalfdanJ/nodeftpd/utils"
)

// DefaultWaitTimeout is how long a reserved passive endpoint waits for
// the client to dial in before it is cancelled.
const DefaultWaitTimeout = 9 * time.Second

var (
	// ErrWaitTimeout reports that no client dialed in before the wait
	// timer expired.
	ErrWaitTimeout = errors.New("timed out waiting for data connection")
	// ErrConnClosed reports use of an already closed data connection.
	ErrConnClosed = errors.New("data connection closed")
	// ErrUnauthorizedPeer reports a TLS peer whose certificate did not
	// verify and unauthorized peers are not allowed.
	ErrUnauthorizedPeer = errors.New("TLS peer not authorized")
)

// DataConnOptions carry the per-transfer options of a passive endpoint.
type DataConnOptions struct {
	// TLSConfig upgrades the accepted socket (PROT P). nil keeps it clear.
	TLSConfig            *tls.Config
	AllowUnauthorizedTLS bool
	// WaitTimeout overrides DefaultWaitTimeout, mainly for tests.
	WaitTimeout time.Duration
}

type passiveState int

const (
	stateWaiting passiveState = iota
	stateInitializingTLS
	stateReady
	stateClosed
)

// PassiveDataConn is a single pending or live passive transfer endpoint.
// Port and RemoteIP are immutable identity; the state only moves
// forward: WAITING → (INITIALIZING_TLS →)? READY → CLOSED.
type PassiveDataConn struct {
	Port     int
	RemoteIP string

	opts DataConnOptions

	mu    sync.Mutex
	state passiveState
	conn  net.Conn
	err   error

	timer     *time.Timer
	listening chan error    // bind outcome, one value per connection
	done      chan struct{} // closed on READY or CLOSED
	onClose   func(*PassiveDataConn)
	closeOnce sync.Once
}

func newPassiveDataConn(port int, remoteIP string, opts DataConnOptions, onClose func(*PassiveDataConn)) *PassiveDataConn {
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = DefaultWaitTimeout
	}
	p := &PassiveDataConn{
		Port:      port,
		RemoteIP:  remoteIP,
		opts:      opts,
		listening: make(chan error, 1),
		done:      make(chan struct{}),
		onClose:   onClose,
	}
	p.timer = time.AfterFunc(opts.WaitTimeout, func() {
		p.closeWithError(ErrWaitTimeout)
	})
	return p
}

// notifyListening delivers the owning listener's bind outcome. A bind
// error also closes the connection.
func (p *PassiveDataConn) notifyListening(err error) {
	select {
	case p.listening <- err:
	default:
	}
	if err != nil {
		p.closeWithError(err)
	}
}

// WaitListening blocks until the owning listener is bound and listening,
// or reports why it never will be. The 227/229 reply must not be sent
// before this returns nil.
func (p *PassiveDataConn) WaitListening() error {
	select {
	case err := <-p.listening:
		return err
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.err != nil {
			return p.err
		}
		return ErrConnClosed
	}
}

// installSocket adopts the socket accepted for this connection. Called
// at most once by the owning listener.
func (p *PassiveDataConn) installSocket(raw net.Conn) {
	p.mu.Lock()
	if p.state != stateWaiting {
		p.mu.Unlock()
		raw.Close()
		return
	}
	p.timer.Stop()

	if p.opts.TLSConfig == nil {
		p.conn = raw
		p.state = stateReady
		close(p.done)
		p.mu.Unlock()
		return
	}

	p.state = stateInitializingTLS
	p.mu.Unlock()

	tlsConn, authorized, err := UpgradeToTLS(raw, nil, p.opts.TLSConfig, p.opts.AllowUnauthorizedTLS)
	if err != nil {
		zap.L().Debug("Data connection TLS upgrade failed",
			zap.Int("port", p.Port), zap.String("remote", p.RemoteIP), zap.Error(err))
		p.closeWithError(err)
		return
	}
	zap.L().Debug("Data connection TLS established",
		zap.Int("port", p.Port), zap.String("remote", p.RemoteIP), zap.Bool("authorized", authorized))

	p.mu.Lock()
	if p.state != stateInitializingTLS {
		p.mu.Unlock()
		tlsConn.Close()
		return
	}
	p.conn = tlsConn
	p.state = stateReady
	close(p.done)
	p.mu.Unlock()
}

// Open blocks until the client has dialed in (and any TLS upgrade is
// done), then hands out the live socket. Implements Handler.
func (p *PassiveDataConn) Open() (utils.Conn, error) {
	<-p.done

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == stateReady {
		return p.conn, nil
	}
	if p.err != nil {
		return nil, p.err
	}
	return nil, ErrConnClosed
}

// Close releases the endpoint. Idempotent. Implements Handler.
func (p *PassiveDataConn) Close() error {
	p.closeWithError(nil)
	return nil
}

func (p *PassiveDataConn) closeWithError(err error) {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		wasReady := p.state == stateReady
		p.state = stateClosed
		if !wasReady {
			p.err = err
		}
		p.timer.Stop()
		if p.conn != nil {
			p.conn.Close()
			p.conn = nil
		}
		if !wasReady {
			close(p.done)
		}
		onClose := p.onClose
		p.mu.Unlock()

		if onClose != nil {
			onClose(p)
		}
	})
}

// Err reports the failure that closed the connection, if any.
func (p *PassiveDataConn) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
