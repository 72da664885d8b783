package client

import (
	"fmt"
	"strings"
	"time"
)

func (c *Handler) handleSYST() {
	c.WriteMessage(StatusSystemType, "UNIX Type: L8")
}

func (c *Handler) handleSTAT() {
	if c.param == "" { // Without a file, it's the server stat.
		c.handleSTATServer()
	} else { // With a file/dir it's the file or the dir's files stat.
		c.handleSTATFile()
	}
}

func (c *Handler) handleSTATServer() {
	c.writeLine("213- FTP server status:")
	duration := time.Now().UTC().Sub(c.connectedAt)
	duration -= duration % time.Second
	c.writeLine(fmt.Sprintf(
		"Connected to %s:%d from %s for %s",
		c.serverSetting.ListenHost, c.serverSetting.ListenPort,
		c.remoteAddr,
		duration,
	))
	c.writeLine(fmt.Sprintf("Logged in as %s", c.loginUser))
	c.writeLine("nodeftpd - golang FTP server")
	c.WriteMessage(StatusFileStatus, "End")
}

func (c *Handler) handleOPTS() {
	args := strings.SplitN(c.param, " ", 2)
	if len(args) == 2 && strings.ToUpper(args[0]) == "UTF8" && strings.ToUpper(strings.TrimSpace(args[1])) == "ON" {
		c.WriteMessage(StatusOK, "UTF8 mode enabled")
	} else {
		c.WriteMessage(StatusActionAborted, "Don't know this option")
	}
}

func (c *Handler) handleNOOP() {
	c.WriteMessage(StatusOK, "OK")
}

func (c *Handler) handleFEAT() {
	c.writeLine("211- Features supported")
	defer c.WriteMessage(StatusSystemStatus, "End")

	features := []string{
		"SIZE",
		"UTF8",
		"MDTM",
	}
	if c.serverSetting.TLSConfig != nil {
		features = append(features, "AUTH TLS", "PBSZ", "PROT")
	}

	for _, f := range features {
		c.writeLine(" " + f)
	}
}

func (c *Handler) handleTYPE() {
	switch strings.ToUpper(c.param) {
	case "I":
		c.mode = "image"
		c.WriteMessage(StatusOK, "Type set to binary")
	case "A":
		c.mode = "ascii"
		c.WriteMessage(StatusOK, "Type set to ASCII")
	default:
		c.WriteMessage(StatusNotImplemented, "Type kept as is")
	}
}

func (c *Handler) handleQUIT() {
	c.hasQuit = true
	c.WriteMessage(StatusClosingControlConn, "Goodbye")
	c.disconnect()
}

func (c *Handler) handleABOR() {
	if c.commandAbortCancelFn != nil {
		c.commandAbortCancelFn() // abort command
	}
	c.TransferClose()         // close transfer connection
	c.commandRunningWg.Wait() // wait for command abort
	c.dataState = dataNone
	c.activeAddr = nil
	c.WriteMessage(StatusClosingDataConn, "abort command was successfully processed")
}
