// Package server provides all the tools to build your own FTP server: The core library and the driver.
package server

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pengsrc/go-shared/check"

	"github.com/HalfdanJ/nodeftpd/auth"
	"github.com/HalfdanJ/nodeftpd/backend"
	"github.com/HalfdanJ/nodeftpd/backend/storage"
	"github.com/HalfdanJ/nodeftpd/client"
	"github.com/HalfdanJ/nodeftpd/config"
	"github.com/HalfdanJ/nodeftpd/constants"
	"github.com/HalfdanJ/nodeftpd/transfer"
	"github.com/HalfdanJ/nodeftpd/utils"
)

// FTPServer is where everything is stored.
// We want to keep it as simple as possible.
type FTPServer struct {
	Listener  net.Listener // Listener used to receive control connections
	StartTime time.Time    // Time when the server was started

	setting *config.ServerSettings
	fs      backend.Filesystem
	hooks   client.Hooks
	pool    *transfer.Pool

	mu    sync.Mutex
	conns map[net.Conn]struct{} // live control conns, kept for DestroySockets
}

func (s *FTPServer) Setting() *config.ServerSettings {
	return s.setting
}

func (s *FTPServer) Hooks() client.Hooks {
	return s.hooks
}

func (s *FTPServer) AcceptClient() (utils.Conn, string, error) {
	conn, err := s.Listener.Accept()
	if err != nil {
		return nil, "", err
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}
	conn.SetDeadline(time.Time{})

	if s.setting.DestroySockets {
		s.track(conn)
		conn = &trackedConn{Conn: conn, server: s}
	}

	return conn, conn.RemoteAddr().String(), nil
}

func (s *FTPServer) Start() {
	var err error
	s.Listener, err = net.Listen("tcp", fmt.Sprintf(
		"%s:%d", s.setting.ListenHost, s.setting.ListenPort,
	))
	if err != nil {
		utils.Logger.Fatalf("Cannot listen: %v", err)
	}
	s.pool = transfer.NewPool(s.setting.ListenHost, s.setting.DataPortRange)

	utils.Logger.Infof("Listening... %v", s.Listener.Addr())
	check.ErrorForExit(constants.Name, err)
}

func (s *FTPServer) PassiveTransferFactory(remoteIP string, opts transfer.DataConnOptions) (transfer.Handler, int, error) {
	p, err := s.pool.CreateDataConnection(remoteIP, opts)
	if err != nil {
		return nil, 0, err
	}
	return p, p.Port, nil
}

func (s *FTPServer) ActiveTransferFactory(addr *net.TCPAddr, opts transfer.DataConnOptions) transfer.Handler {
	return &transfer.ActiveHandler{
		RemoteAddr:           addr,
		TLSConfig:            opts.TLSConfig,
		AllowUnauthorizedTLS: opts.AllowUnauthorizedTLS,
	}
}

// Stop closes the control listener and the passive pool. With
// destroy-sockets set, live control connections go down too.
func (s *FTPServer) Stop() {
	if s.Listener != nil {
		l := s.Listener
		s.Listener = nil
		l.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}

	s.mu.Lock()
	conns := make([]net.Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.conns = make(map[net.Conn]struct{})
	s.mu.Unlock()
	for _, conn := range conns {
		conn.Close()
	}
}

func (s *FTPServer) track(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *FTPServer) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// trackedConn unregisters itself from the server on Close.
type trackedConn struct {
	net.Conn
	server *FTPServer
	once   sync.Once
}

func (t *trackedConn) Close() error {
	t.once.Do(func() { t.server.untrack(t.Conn) })
	return t.Conn.Close()
}

// NewFTPServer creates a new FTPServer instance.
func NewFTPServer(c *config.Config) (*FTPServer, error) {
	setting := config.GetServerSetting(c)

	store, err := storage.New(c.Service)
	if err != nil {
		return nil, err
	}
	store.StartStream()

	var checker auth.Checker
	if setting.AuthDB != "" {
		checker, err = auth.NewSQLiteChecker(setting.AuthDB)
		if err != nil {
			return nil, err
		}
	} else {
		checker = &auth.StaticChecker{Users: setting.Users}
	}

	hooks := client.Hooks{
		Checker: checker,
		Filesystem: func(string) (backend.Filesystem, error) {
			return store, nil
		},
	}

	return &FTPServer{
		StartTime: time.Now().UTC(),
		setting:   setting,
		fs:        store,
		hooks:     hooks,
		conns:     make(map[net.Conn]struct{}),
	}, nil
}
