package transfer

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/HalfdanJ/nodeftpd/utils"
)

var (
	// errAddrInUse is the synthetic collision error raised when a second
	// waiter from the same remote IP asks for the same port. The pool
	// reacts by retrying the next port.
	errAddrInUse = errors.New("address already in use")
	// errRetired reports a listener that has already torn down its
	// socket and left the pool.
	errRetired = errors.New("listener retired")
)

type listenerState int

const (
	listenerClosed listenerState = iota
	listenerInitializing
	listenerListening
)

// Listener owns one bound passive port and routes accepted sockets to
// the waiting connection with the matching remote IP.
type Listener struct {
	port     int
	bindAddr string

	mu            sync.Mutex
	state         listenerState
	ln            *net.TCPListener
	waiters       map[string]*PassiveDataConn
	all           map[*PassiveDataConn]struct{}
	retired       bool
	stopRequested bool
	onRetire      func(*Listener)
}

func newListener(port int, bindAddr string, onRetire func(*Listener)) *Listener {
	return &Listener{
		port:     port,
		bindAddr: bindAddr,
		waiters:  make(map[string]*PassiveDataConn),
		all:      make(map[*PassiveDataConn]struct{}),
		onRetire: onRetire,
	}
}

// listenForClient reserves a passive endpoint for remoteIP on this
// listener's port. At most one waiter per remote IP: a second request
// gets errAddrInUse so the pool can try another port.
func (l *Listener) listenForClient(remoteIP string, opts DataConnOptions) (*PassiveDataConn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.retired {
		return nil, errRetired
	}
	if _, ok := l.waiters[remoteIP]; ok {
		return nil, errAddrInUse
	}

	p := newPassiveDataConn(l.port, remoteIP, opts, l.connClosed)
	l.waiters[remoteIP] = p
	l.all[p] = struct{}{}

	switch l.state {
	case listenerListening:
		p.notifyListening(nil)
	case listenerClosed:
		l.state = listenerInitializing
		go l.bind()
	case listenerInitializing:
		// The bind-complete hook fans out to all waiters.
	}

	return p, nil
}

func (l *Listener) bind() {
	addr, err := net.ResolveTCPAddr("tcp", fmt.Sprintf("%s:%d", l.bindAddr, l.port))
	var ln *net.TCPListener
	if err == nil {
		ln, err = net.ListenTCP("tcp", addr)
	}

	l.mu.Lock()
	if err != nil {
		zap.L().Debug("Passive bind failed", zap.Int("port", l.port), zap.Error(err))
		waiters := l.snapshotWaitersLocked()
		l.state = listenerClosed
		l.retireLocked()
		l.mu.Unlock()
		for _, p := range waiters {
			p.notifyListening(err)
		}
		return
	}

	if l.stopRequested {
		// A stop raced the bind; still end up closed.
		l.state = listenerClosed
		l.retireLocked()
		l.mu.Unlock()
		ln.Close()
		return
	}

	if len(l.waiters) == 0 {
		// Every waiter gave up while the bind was in flight.
		l.state = listenerClosed
		l.retireLocked()
		l.mu.Unlock()
		ln.Close()
		return
	}

	l.ln = ln
	l.state = listenerListening
	waiters := l.snapshotWaitersLocked()
	l.mu.Unlock()

	zap.L().Debug("Passive listener bound", zap.Int("port", l.port))
	for _, p := range waiters {
		p.notifyListening(nil)
	}

	l.acceptLoop(ln)
}

func (l *Listener) snapshotWaitersLocked() []*PassiveDataConn {
	out := make([]*PassiveDataConn, 0, len(l.waiters))
	for _, p := range l.waiters {
		out = append(out, p)
	}
	return out
}

func (l *Listener) acceptLoop(ln *net.TCPListener) {
	for {
		raw, err := ln.Accept()
		if err != nil {
			l.mu.Lock()
			teardown := l.state != listenerListening
			l.mu.Unlock()
			if !teardown {
				zap.L().Error("Passive accept error", zap.Int("port", l.port), zap.Error(err))
				l.teardown(err)
			}
			return
		}

		ip := utils.RemoteIPString(raw.RemoteAddr())
		l.mu.Lock()
		p, ok := l.waiters[ip]
		if ok {
			delete(l.waiters, ip)
		}
		l.mu.Unlock()

		if !ok {
			// Stray connection from an IP nobody is waiting for.
			zap.L().Debug("Stray data connection", zap.Int("port", l.port), zap.String("remote", ip))
			raw.Close()
			continue
		}
		go p.installSocket(raw)
	}
}

// connClosed is the close-hook of every associated connection. It drops
// the connection from both maps and lazily releases the bound socket
// once no waiter is left.
func (l *Listener) connClosed(p *PassiveDataConn) {
	l.mu.Lock()
	delete(l.all, p)
	if cur, ok := l.waiters[p.RemoteIP]; ok && cur == p {
		delete(l.waiters, p.RemoteIP)
	}
	release := len(l.waiters) == 0 && l.state == listenerListening
	var ln *net.TCPListener
	if release {
		ln = l.ln
		l.ln = nil
		l.state = listenerClosed
		l.retireLocked()
	}
	l.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
}

// teardown force-closes the listener and every associated connection.
func (l *Listener) teardown(err error) {
	l.mu.Lock()
	l.stopRequested = true
	ln := l.ln
	l.ln = nil
	if l.state == listenerListening {
		l.state = listenerClosed
	}
	conns := make([]*PassiveDataConn, 0, len(l.all))
	for p := range l.all {
		conns = append(conns, p)
	}
	l.retireLocked()
	l.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	for _, p := range conns {
		p.closeWithError(err)
	}
}

func (l *Listener) retireLocked() {
	if l.retired {
		return
	}
	l.retired = true
	if l.onRetire != nil {
		go l.onRetire(l)
	}
}
