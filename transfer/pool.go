package transfer

import (
	"errors"
	"fmt"
	"sync"
	"syscall"

	"github.com/HalfdanJ/nodeftpd/config"
)

// ErrPortRangeExhausted reports that no port in the configured passive
// range could be bound.
var ErrPortRangeExhausted = errors.New("passive port range exhausted")

// Pool hands out passive ports from a bounded range across all control
// connections. There is no explicit free-list: a listener retires itself
// once its last waiter is gone, which frees its port.
type Pool struct {
	bindAddr  string
	portRange *config.PortRange

	mu        sync.Mutex
	listeners map[int]*Listener
}

// NewPool creates a pool binding on bindAddr within portRange.
func NewPool(bindAddr string, portRange *config.PortRange) *Pool {
	return &Pool{
		bindAddr:  bindAddr,
		portRange: portRange,
		listeners: make(map[int]*Listener),
	}
}

// CreateDataConnection reserves a passive endpoint for remoteIP on the
// smallest free port of the range. Address-in-use — a bind failure or a
// same-IP collision on a shared port — moves on to the next port; any
// other error, or exhaustion of the range, is surfaced to the caller.
// The returned connection's listener is bound and listening; the caller
// still has to wait for the client to dial in via Open.
func (p *Pool) CreateDataConnection(remoteIP string, opts DataConnOptions) (*PassiveDataConn, error) {
	var lastErr error
	for port := p.portRange.Start; port <= p.portRange.End; port++ {
		conn, err := p.tryPort(port, remoteIP, opts)
		if err == nil {
			return conn, nil
		}
		if !isAddrInUse(err) {
			return nil, err
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = ErrPortRangeExhausted
	}
	return nil, fmt.Errorf("%w: %v", ErrPortRangeExhausted, lastErr)
}

func (p *Pool) tryPort(port int, remoteIP string, opts DataConnOptions) (*PassiveDataConn, error) {
	for {
		l := p.getOrCreate(port)
		conn, err := l.listenForClient(remoteIP, opts)
		if err != nil {
			if errors.Is(err, errRetired) {
				p.drop(port, l)
				continue
			}
			return nil, err
		}
		if err := conn.WaitListening(); err != nil {
			return nil, err
		}
		return conn, nil
	}
}

func (p *Pool) getOrCreate(port int) *Listener {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.listeners[port]; ok {
		return l
	}
	l := newListener(port, p.bindAddr, p.listenerRetired)
	p.listeners[port] = l
	return l
}

func (p *Pool) drop(port int, l *Listener) {
	p.mu.Lock()
	if cur, ok := p.listeners[port]; ok && cur == l {
		delete(p.listeners, port)
	}
	p.mu.Unlock()
}

func (p *Pool) listenerRetired(l *Listener) {
	p.drop(l.port, l)
}

// Close tears down every listener and its connections.
func (p *Pool) Close() {
	p.mu.Lock()
	listeners := make([]*Listener, 0, len(p.listeners))
	for _, l := range p.listeners {
		listeners = append(listeners, l)
	}
	p.listeners = make(map[int]*Listener)
	p.mu.Unlock()

	for _, l := range listeners {
		l.teardown(ErrConnClosed)
	}
}

func isAddrInUse(err error) bool {
	return errors.Is(err, errAddrInUse) || errors.Is(err, syscall.EADDRINUSE)
}
