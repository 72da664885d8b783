package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/HalfdanJ/nodeftpd/auth"
	"github.com/HalfdanJ/nodeftpd/backend"
	"github.com/HalfdanJ/nodeftpd/config"
	"github.com/HalfdanJ/nodeftpd/transfer"
	"github.com/HalfdanJ/nodeftpd/utils"
)

// dataState tracks the PASV/PORT sub-state of the session. Once it
// leaves dataNone, further PASV/EPSV/PORT/EPRT are refused with 503
// until a transfer terminates.
type dataState int

const (
	dataNone dataState = iota
	dataActive
	dataPassivePending
	dataPassiveReady
)

// Hooks are the injection points a deployment customizes. Every field
// has a default; see applyDefaults.
type Hooks struct {
	// Checker validates USER/PASS.
	Checker auth.Checker
	// Filesystem supplies the per-user backend at successful PASS.
	Filesystem func(username string) (backend.Filesystem, error)
	// GetInitialCwd resolves the cwd installed at login.
	GetInitialCwd func(username string) (string, error)
	// GetRoot resolves the backend path all session paths are joined to.
	GetRoot func(username string) (string, error)
	// UsernameFromUID and GroupFromGID resolve listing ownership columns.
	UsernameFromUID func(uid int) (string, error)
	GroupFromGID    func(gid int) (string, error)
}

// PassiveFactory reserves a passive endpoint for the given client IP
// and reports the port it listens on. The returned handler's Open waits
// for the client to dial in.
type PassiveFactory func(remoteIP string, opts transfer.DataConnOptions) (transfer.Handler, int, error)

// ActiveFactory builds an outbound data connection handler.
type ActiveFactory func(addr *net.TCPAddr, opts transfer.DataConnOptions) transfer.Handler

// Handler is the per-client control-channel state machine.
type Handler struct {
	id     string
	conn   utils.Conn
	writer *bufio.Writer
	reader *bufio.Reader

	secure       bool // control channel is TLS; monotonic false→true
	pbszReceived bool

	fs   backend.Filesystem
	root string // absolute backend path
	cwd  string // normalised server-relative path

	user               string // argument of the last USER
	loginUser          string // authenticated user, "" until PASS succeeds
	waitingForPassword bool

	mode    string // "ascii" or "image"; only the 150 text changes
	ctxRnfr string // rename source, valid until the next RNTO
	hasQuit bool

	command     string
	param       string
	connectedAt time.Time
	remoteAddr  string

	dataState   dataState
	activeAddr  *net.TCPAddr
	transfer    transfer.Handler
	transferTLS bool // PROT P

	serverSetting *config.ServerSettings
	hooks         Hooks

	commandArrivedSignalCh chan *CommandDescription
	commandAbortCtx        context.Context
	commandAbortCancelFn   context.CancelFunc
	commandRunningWg       sync.WaitGroup

	passiveTransferFactory PassiveFactory
	activeTransferFactory  ActiveFactory
}

// Path provides the current working directory of the client.
func (c *Handler) Path() string {
	return c.cwd
}

// SetPath changes the current working directory.
func (c *Handler) SetPath(path string) {
	c.cwd = path
}

// Greet emits the 220 banner. Called once by the server front-end.
func (c *Handler) Greet() {
	c.WriteMessage(StatusServiceReady, "FTP server ready")
}

// HandleCommands reads the stream of commands.
func (c *Handler) HandleCommands() {
	ctx, cancelFunc := context.WithCancel(context.Background())
	go c.handleCommand(ctx)
	defer func() {
		c.TransferClose()
		cancelFunc()
	}()
	for {
		line, err := c.reader.ReadString('\n')

		if err != nil {
			if err == io.EOF {
				zap.L().Debug("TCP connect close", zap.String("id", c.id))
			} else {
				zap.L().Debug("Read error", zap.String("id", c.id), zap.Error(err))
			}
			return
		}

		if c.hasQuit {
			continue
		}

		zap.L().Debug("Receive command", zap.String("id", c.id), zap.String("receive", line))

		command, param := utils.ParseLine(line)
		command = strings.ToUpper(command)

		cmdDesc, ok := commandsMap[command]
		if !ok || cmdDesc == nil {
			c.WriteMessage(StatusCommandNotImplemented, command+" command not supported")
			continue
		}

		if c.serverSetting.AllowedCommands != nil && !c.serverSetting.AllowedCommands[command] {
			c.WriteMessage(StatusCommandNotImplemented, command+" command not allowed")
			continue
		}

		// ABOR is the one command that may preempt a running transfer.
		if command == ABOR {
			c.handleABOR()
			continue
		}

		// Everything else waits for the previous command: the gates
		// below read state the running command may still change.
		c.commandRunningWg.Wait()

		if !cmdDesc.Open {
			if c.serverSetting.TLSOnly && !c.secure {
				c.WriteMessage(StatusExtendedPortFailure, "TLS required. Use AUTH TLS first")
				continue
			}
			if c.loginUser == "" {
				c.WriteMessage(StatusNotLoggedIn, "Please login with USER and PASS")
				continue
			}
			if cmdDesc.NeedsData && c.dataState == dataNone {
				c.WriteMessage(StatusCannotOpenDataConnection, "Use PORT or PASV first")
				continue
			}
		}

		switch command {
		case QUIT:
			c.command, c.param = command, param
			c.handleQUIT()
			return
		case AUTH:
			// Runs on the read loop: the TLS upgrade replaces the
			// reader and must not race the next ReadString.
			c.command, c.param = command, param
			c.handleAUTH()
			if c.hasQuit {
				return
			}
		default:
			c.commandRunningWg.Add(1)
			c.commandAbortCtx, c.commandAbortCancelFn = context.WithCancel(context.Background())
			c.command = command
			c.param = param
			c.commandArrivedSignalCh <- cmdDesc
		}
	}
}

// handleCommand takes care of executing the received line.
func (c *Handler) handleCommand(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("Internal error", zap.String("trace", string(debug.Stack())))
			c.WriteMessage(StatusSyntaxErrorNotRecognised, fmt.Sprintf("Internal error: %s", r))
		}
	}()

	for {
		select {
		case cmdDesc := <-c.commandArrivedSignalCh:
			cmdDesc.Fn(c)
			c.commandRunningWg.Done()
		case <-ctx.Done():
			return
		}
	}
}

// WriteMessage writes server response
func (c *Handler) WriteMessage(code int, message string) {
	c.writeLine(fmt.Sprintf("%d %s", code, message))
}

func (c *Handler) disconnect() {
	c.TransferClose()
	c.conn.Close()
}

func (c *Handler) writeLine(line string) {
	zap.L().Debug("FTP response", zap.String("id", c.id), zap.String("response", line))
	// Write errors on a closing control socket are dropped on purpose.
	c.writer.Write([]byte(line))
	c.writer.Write([]byte("\r\n"))
	c.writer.Flush()
}

// remoteIP is the client address the passive listener keys waiters on.
func (c *Handler) remoteIP() string {
	host, _, err := net.SplitHostPort(c.remoteAddr)
	if err != nil {
		return c.remoteAddr
	}
	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4.String()
		}
	}
	return host
}

func (h *Hooks) applyDefaults(settings *config.ServerSettings) {
	if h.Checker == nil {
		h.Checker = &auth.StaticChecker{Users: settings.Users}
	}
	if h.Filesystem == nil {
		h.Filesystem = func(string) (backend.Filesystem, error) {
			return nil, fmt.Errorf("no filesystem backend configured")
		}
	}
	if h.GetInitialCwd == nil {
		h.GetInitialCwd = func(string) (string, error) { return "/", nil }
	}
	if h.GetRoot == nil {
		h.GetRoot = func(string) (string, error) { return "/", nil }
	}
	if h.UsernameFromUID == nil {
		h.UsernameFromUID = func(int) (string, error) { return "ftp", nil }
	}
	if h.GroupFromGID == nil {
		h.GroupFromGID = func(int) (string, error) { return "ftp", nil }
	}
}

// NewHandler initializes a client handler when someone connects.
func NewHandler(id, remoteAddr string, connection utils.Conn, settings *config.ServerSettings,
	hooks Hooks, passive PassiveFactory, active ActiveFactory,
) *Handler {
	hooks.applyDefaults(settings)
	p := &Handler{
		id:                     id,
		conn:                   connection,
		writer:                 bufio.NewWriter(connection),
		reader:                 bufio.NewReader(connection),
		connectedAt:            time.Now().UTC(),
		remoteAddr:             remoteAddr,
		cwd:                    "/",
		root:                   "/",
		mode:                   "image",
		serverSetting:          settings,
		hooks:                  hooks,
		commandArrivedSignalCh: make(chan *CommandDescription),
		commandRunningWg:       sync.WaitGroup{},
		passiveTransferFactory: passive,
		activeTransferFactory:  active,
	}

	return p
}
