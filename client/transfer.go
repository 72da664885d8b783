package client

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"go.uber.org/zap"

	"github.com/HalfdanJ/nodeftpd/transfer"
	"github.com/HalfdanJ/nodeftpd/utils"
)

func (c *Handler) dataConnOptions() transfer.DataConnOptions {
	opts := transfer.DataConnOptions{}
	if c.transferTLS {
		opts.TLSConfig = c.serverSetting.TLSConfig
		opts.AllowUnauthorizedTLS = c.serverSetting.AllowUnauthorizedTLS
	}
	return opts
}

// handlePASV reserves a passive endpoint and announces it. Serves both
// PASV (227) and EPSV (229). Refused while a PORT or an earlier PASV is
// still pending.
func (c *Handler) handlePASV() {
	if c.dataState != dataNone {
		c.WriteMessage(StatusBadCommandSequence, "Bad sequence of commands.")
		return
	}

	p, port, err := c.passiveTransferFactory(c.remoteIP(), c.dataConnOptions())
	if err != nil {
		zap.L().Debug("Passive setup failed", zap.String("id", c.id), zap.Error(err))
		c.WriteMessage(StatusServiceNotAvailable, "Server was unable to open passive connection listener")
		return
	}

	c.dataState = dataPassivePending
	c.transfer = p

	// The listener is bound at this point; a fast client cannot race
	// the bind.
	if c.command == PASV {
		p1 := port / 256
		p2 := port - (p1 * 256)
		quads := strings.Split(c.serverSetting.PublicHost, ".")
		c.WriteMessage(StatusEnteringPASV, fmt.Sprintf(
			"Entering Passive Mode (%s,%s,%s,%s,%d,%d)", quads[0], quads[1], quads[2], quads[3], p1, p2,
		))
	} else {
		c.WriteMessage(StatusEnteringEPSV, fmt.Sprintf("Entering Extended Passive Mode (|||%d|)", port))
	}
}

// handlePORT stores the client's active-mode address. Serves both PORT
// and EPRT; IPv6 is refused.
func (c *Handler) handlePORT() {
	if c.dataState != dataNone {
		c.WriteMessage(StatusBadCommandSequence, "Bad sequence of commands.")
		return
	}

	var addr *net.TCPAddr
	var err error
	if c.command == EPRT {
		addr, err = utils.ParseExtendedAddr(c.param)
	} else {
		addr, err = utils.ParseRemoteAddr(c.param)
	}
	if err != nil {
		if errors.Is(err, utils.ErrUnsupportedFamily) {
			c.WriteMessage(StatusExtendedPortFailure, "Network protocol not supported, use (1)")
			return
		}
		c.WriteMessage(StatusSyntaxErrorParameters, "Invalid data address")
		return
	}

	c.activeAddr = addr
	c.dataState = dataActive
	c.transfer = c.activeTransferFactory(addr, c.dataConnOptions())
	c.WriteMessage(StatusOK, "OK")
}

// TransferOpen pairs the pending data setup with a live socket: for
// passive it waits for the client to dial in, for active it dials out.
func (c *Handler) TransferOpen() (utils.Conn, error) {
	if c.transfer == nil {
		return nil, errors.New("no connection declared")
	}
	conn, err := c.transfer.Open()
	if err == nil {
		if c.dataState == dataPassivePending {
			c.dataState = dataPassiveReady
		}
		zap.L().Debug("Transfer connection open", zap.String("id", c.id))
	} else {
		zap.L().Debug("Transfer connection open failed", zap.String("id", c.id), zap.Error(err))
	}

	return conn, err
}

// TransferClose closes transfer with handler
func (c *Handler) TransferClose() {
	if c.transfer != nil {
		c.transfer.Close()
		c.transfer = nil
		zap.L().Debug("Transfer connection closed", zap.String("id", c.id))
	}
}

// resetDataState runs on every transfer termination, success or not,
// so the next PASV/PORT is accepted again.
func (c *Handler) resetDataState() {
	c.TransferClose()
	c.dataState = dataNone
	c.activeAddr = nil
}
