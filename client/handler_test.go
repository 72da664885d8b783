package client

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HalfdanJ/nodeftpd/backend"
	"github.com/HalfdanJ/nodeftpd/config"
	"github.com/HalfdanJ/nodeftpd/transfer"
	"github.com/HalfdanJ/nodeftpd/utils"
)

// mapFS is an in-memory backend for session tests. It implements only
// the slurp forms, which is also what exercises the fallback paths.
type mapFS struct {
	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string]bool
}

func newMapFS() *mapFS {
	return &mapFS{
		files: make(map[string][]byte),
		dirs:  map[string]bool{"/": true},
	}
}

func (m *mapFS) Stat(p string) (*backend.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dirs[p] {
		return &backend.FileInfo{Name: path.Base(p), Mode: os.ModeDir | 0755, ModTime: time.Now()}, nil
	}
	if data, ok := m.files[p]; ok {
		return &backend.FileInfo{
			Name: path.Base(p), Size: int64(len(data)), Mode: 0644, ModTime: time.Now(),
		}, nil
	}
	return nil, backend.ErrNotExist
}

func (m *mapFS) ReadDir(p string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.dirs[p] {
		return nil, backend.ErrNotExist
	}
	var names []string
	for f := range m.files {
		if path.Dir(f) == p {
			names = append(names, path.Base(f))
		}
	}
	for d := range m.dirs {
		if d != "/" && path.Dir(d) == p {
			names = append(names, path.Base(d))
		}
	}
	return names, nil
}

func (m *mapFS) ReadFile(p string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[p]
	if !ok {
		return nil, backend.ErrNotExist
	}
	return append([]byte(nil), data...), nil
}

func (m *mapFS) WriteFile(p string, data []byte, appendMode bool, _ os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if appendMode {
		m.files[p] = append(m.files[p], data...)
		return nil
	}
	m.files[p] = append([]byte(nil), data...)
	return nil
}

func (m *mapFS) Remove(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[p]; !ok {
		return backend.ErrNotExist
	}
	delete(m.files, p)
	return nil
}

func (m *mapFS) Rename(oldpath, newpath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[oldpath]
	if !ok {
		return backend.ErrNotExist
	}
	delete(m.files, oldpath)
	m.files[newpath] = data
	return nil
}

func (m *mapFS) Mkdir(p string, _ os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dirs[p] {
		return fmt.Errorf("%s already exists", p)
	}
	m.dirs[p] = true
	return nil
}

func (m *mapFS) Rmdir(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.dirs[p] {
		return backend.ErrNotExist
	}
	delete(m.dirs, p)
	return nil
}

// pipeTransfer hands out one pre-wired pipe end as the data connection.
type pipeTransfer struct {
	conn      net.Conn
	closeOnce sync.Once
}

func (p *pipeTransfer) Open() (utils.Conn, error) {
	return p.conn, nil
}

func (p *pipeTransfer) Close() error {
	p.closeOnce.Do(func() { p.conn.Close() })
	return nil
}

const testPasvPort = 42005

// testSession drives a Handler over a net.Pipe control connection.
type testSession struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
	fs   *mapFS

	mu         sync.Mutex
	dataClient net.Conn // client end of the last data connection
}

func newTestSession(t *testing.T, mutate func(*config.ServerSettings)) *testSession {
	t.Helper()

	settings := &config.ServerSettings{
		ListenHost:         "127.0.0.1",
		ListenPort:         21,
		PublicHost:         "127.0.0.1",
		DataPortRange:      &config.PortRange{Start: 1024, End: 2048},
		Users:              map[string]string{"anonymous": "", "alice": "secret"},
		UploadMaxSlurpSize: 1 << 20,
		MaxStatsAtOnce:     2,
	}
	if mutate != nil {
		mutate(settings)
	}

	s := &testSession{t: t, fs: newMapFS()}

	hooks := Hooks{
		Filesystem: func(string) (backend.Filesystem, error) { return s.fs, nil },
	}

	passive := func(string, transfer.DataConnOptions) (transfer.Handler, int, error) {
		server, cli := net.Pipe()
		s.mu.Lock()
		s.dataClient = cli
		s.mu.Unlock()
		return &pipeTransfer{conn: server}, testPasvPort, nil
	}
	active := func(*net.TCPAddr, transfer.DataConnOptions) transfer.Handler {
		server, cli := net.Pipe()
		s.mu.Lock()
		s.dataClient = cli
		s.mu.Unlock()
		return &pipeTransfer{conn: server}
	}

	server, cli := net.Pipe()
	s.conn = cli
	s.r = bufio.NewReader(cli)

	h := NewHandler("test", "127.0.0.1:54321", server, settings, hooks, passive, active)
	go h.HandleCommands()
	t.Cleanup(func() { cli.Close(); server.Close() })

	return s
}

func (s *testSession) data() net.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dataClient
}

func (s *testSession) send(cmd string) {
	s.t.Helper()
	_, err := fmt.Fprintf(s.conn, "%s\r\n", cmd)
	require.Nil(s.t, err)
}

// reply reads one full reply, skipping continuation lines of multi-line
// replies, and returns the code plus the final line's text.
func (s *testSession) reply() (int, string) {
	s.t.Helper()
	for {
		line, err := s.r.ReadString('\n')
		require.Nil(s.t, err)
		line = strings.TrimRight(line, "\r\n")
		if len(line) < 4 || line[3] != ' ' {
			continue
		}
		code, err := strconv.Atoi(line[:3])
		if err != nil {
			continue
		}
		return code, line[4:]
	}
}

// fullReply reads a multi-line reply and returns every raw line up to
// and including the terminating "code " line.
func (s *testSession) fullReply(code int) []string {
	s.t.Helper()
	prefix := fmt.Sprintf("%d ", code)
	var lines []string
	for {
		line, err := s.r.ReadString('\n')
		require.Nil(s.t, err)
		line = strings.TrimRight(line, "\r\n")
		lines = append(lines, line)
		if strings.HasPrefix(line, prefix) {
			return lines
		}
	}
}

func (s *testSession) expect(code int) string {
	s.t.Helper()
	gotCode, msg := s.reply()
	require.Equal(s.t, code, gotCode, "unexpected reply: %d %s", gotCode, msg)
	return msg
}

func (s *testSession) login() {
	s.t.Helper()
	s.send("USER anonymous")
	s.expect(331)
	s.send("PASS")
	s.expect(230)
}

func TestLoginAndPWD(t *testing.T) {
	s := newTestSession(t, nil)

	s.send("USER alice")
	assert.Equal(t, "User name okay, need password.", s.expect(331))
	s.send("PASS secret")
	assert.Equal(t, "User logged in, proceed.", s.expect(230))
	s.send("PWD")
	assert.Equal(t, `"/" is current directory`, s.expect(257))
}

func TestLoginBadPassword(t *testing.T) {
	s := newTestSession(t, nil)

	s.send("USER alice")
	s.expect(331)
	s.send("PASS wrong")
	s.expect(530)

	// The USER/PASS pair is spent; a lone PASS is out of sequence.
	s.send("PASS secret")
	s.expect(503)
}

func TestLoginUnknownUser(t *testing.T) {
	s := newTestSession(t, nil)

	s.send("USER mallory")
	s.expect(530)
}

func TestPassWithoutUser(t *testing.T) {
	s := newTestSession(t, nil)

	s.send("PASS whatever")
	s.expect(503)
}

func TestAuthenticationGate(t *testing.T) {
	s := newTestSession(t, nil)

	for _, cmd := range []string{"PWD", "CWD /", "LIST", "RETR x", "PASV", "DELE x"} {
		s.send(cmd)
		code, _ := s.reply()
		assert.Equal(t, 530, code, "command %s", cmd)
	}

	// NO_AUTH commands still answer.
	s.send("NOOP")
	s.expect(200)
	s.send("SYST")
	assert.Equal(t, "UNIX Type: L8", s.expect(215))
}

func TestUnknownCommand(t *testing.T) {
	s := newTestSession(t, nil)

	s.send("BOGUS")
	s.expect(502)
	s.send("SITE CHMOD 600 f")
	s.expect(502)
}

func TestAllowedCommandsWhitelist(t *testing.T) {
	s := newTestSession(t, func(settings *config.ServerSettings) {
		settings.AllowedCommands = map[string]bool{
			"USER": true, "PASS": true, "PWD": true, "QUIT": true, "NOOP": true,
		}
	})
	s.login()

	s.send("PWD")
	s.expect(257)
	s.send("MKD /d")
	s.expect(502)
}

func TestTLSOnlyGate(t *testing.T) {
	s := newTestSession(t, func(settings *config.ServerSettings) {
		settings.TLSOnly = true
	})

	s.send("USER alice")
	code, msg := s.reply()
	assert.Equal(t, 530, code)
	assert.Contains(t, msg, "TLS")

	// Non-NO_AUTH commands are refused with 522 while plaintext.
	s.send("PWD")
	s.expect(522)
	s.send("LIST")
	s.expect(522)

	// NO_AUTH commands keep working.
	s.send("NOOP")
	s.expect(200)
}

func TestDataCommandsNeedSetup(t *testing.T) {
	s := newTestSession(t, nil)
	s.login()

	for _, cmd := range []string{"LIST", "NLST", "RETR f", "STOR f", "APPE f"} {
		s.send(cmd)
		code, _ := s.reply()
		assert.Equal(t, 425, code, "command %s", cmd)
	}
}

func TestQuit(t *testing.T) {
	s := newTestSession(t, nil)

	s.send("QUIT")
	assert.Equal(t, "Goodbye", s.expect(221))
}

func TestFeat(t *testing.T) {
	s := newTestSession(t, nil)

	s.send("FEAT")
	lines := s.fullReply(211)
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "SIZE")
	assert.Contains(t, joined, "UTF8")
	assert.Contains(t, joined, "MDTM")
	assert.NotContains(t, joined, "AUTH TLS")
}

func TestFeatWithTLSConfigured(t *testing.T) {
	s := newTestSession(t, func(settings *config.ServerSettings) {
		settings.TLSConfig = testTLSConfigStub()
	})

	s.send("FEAT")
	joined := strings.Join(s.fullReply(211), "\n")
	assert.Contains(t, joined, "AUTH TLS")
	assert.Contains(t, joined, "PBSZ")
	assert.Contains(t, joined, "PROT")
}

func TestTypeAndOpts(t *testing.T) {
	s := newTestSession(t, nil)
	s.login()

	s.send("TYPE I")
	s.expect(200)
	s.send("TYPE A")
	s.expect(200)
	s.send("TYPE E")
	s.expect(202)

	s.send("OPTS UTF8 ON")
	s.expect(200)
	s.send("OPTS MLST size")
	s.expect(451)

	s.send("ACCT x")
	s.expect(202)
	s.send("ALLO 1024")
	s.expect(202)
}

func TestSecuritySequencing(t *testing.T) {
	s := newTestSession(t, func(settings *config.ServerSettings) {
		settings.TLSConfig = testTLSConfigStub()
	})

	// PBSZ and PROT before the control channel is secured.
	s.send("PBSZ 0")
	s.expect(503)
	s.send("PROT P")
	s.expect(503)
}

// testTLSConfigStub is enough for feature advertising and gate checks;
// no handshake happens in these tests.
func testTLSConfigStub() *tls.Config {
	return &tls.Config{}
}

func TestSecurityWithoutTLSConfig(t *testing.T) {
	s := newTestSession(t, nil)

	s.send("AUTH TLS")
	s.expect(502)
	s.send("PBSZ 0")
	s.expect(502)
	s.send("PROT P")
	s.expect(502)
}
