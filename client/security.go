package client

import (
	"bufio"
	"io"
	"net"
	"strings"

	"go.uber.org/zap"

	"github.com/HalfdanJ/nodeftpd/transfer"
)

// handleAUTH upgrades the control channel to TLS (RFC 4217). It always
// runs on the read loop so the reader swap cannot race the next command.
func (c *Handler) handleAUTH() {
	if c.serverSetting.TLSConfig == nil {
		c.WriteMessage(StatusCommandNotImplemented, "TLS not configured")
		return
	}
	if strings.ToUpper(c.param) != "TLS" {
		c.WriteMessage(StatusNotImplementedParameter, "Only AUTH TLS is supported")
		return
	}

	netConn, ok := c.conn.(net.Conn)
	if !ok {
		c.WriteMessage(StatusCommandNotImplemented, "TLS not available on this connection")
		return
	}

	c.WriteMessage(StatusSecurityOK, "Honored")

	// Plaintext already sitting in the reader must reach the handshake.
	var buffered io.Reader
	if n := c.reader.Buffered(); n > 0 {
		buffered = io.LimitReader(c.reader, int64(n))
	}

	tlsConn, authorized, err := transfer.UpgradeToTLS(
		netConn, buffered, c.serverSetting.TLSConfig, c.serverSetting.AllowUnauthorizedTLS,
	)
	if err != nil {
		zap.L().Debug("Control TLS upgrade failed", zap.String("id", c.id), zap.Error(err))
		c.hasQuit = true
		c.disconnect()
		return
	}

	zap.L().Debug("Control channel secured", zap.String("id", c.id), zap.Bool("authorized", authorized))
	c.conn = tlsConn
	c.reader = bufio.NewReader(tlsConn)
	c.writer = bufio.NewWriter(tlsConn)
	c.secure = true
}

// handlePBSZ accepts the protection buffer size. Only 0 makes sense for
// TLS; anything else is answered with the corrective size.
func (c *Handler) handlePBSZ() {
	if c.serverSetting.TLSConfig == nil {
		c.WriteMessage(StatusCommandNotImplemented, "TLS not configured")
		return
	}
	if !c.secure {
		c.WriteMessage(StatusBadCommandSequence, "PBSZ only allowed after AUTH TLS")
		return
	}

	c.pbszReceived = true
	if c.param != "0" {
		c.WriteMessage(StatusOK, "PBSZ=0")
		return
	}
	c.WriteMessage(StatusOK, "PBSZ 0 successful")
}

// handlePROT selects the data-channel protection level. Only Private is
// accepted; Clear, Safe and Confidential are answered with 536.
func (c *Handler) handlePROT() {
	if c.serverSetting.TLSConfig == nil {
		c.WriteMessage(StatusCommandNotImplemented, "TLS not configured")
		return
	}
	if !c.secure || !c.pbszReceived {
		c.WriteMessage(StatusBadCommandSequence, "PBSZ is expected before PROT")
		return
	}

	switch strings.ToUpper(c.param) {
	case "P":
		c.transferTLS = true
		c.WriteMessage(StatusOK, "Protection level set to Private")
	default:
		c.WriteMessage(StatusProtLevelDenied, "Protection level not supported")
	}
}
