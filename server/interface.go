package server

import (
	"net"

	"github.com/HalfdanJ/nodeftpd/client"
	"github.com/HalfdanJ/nodeftpd/config"
	"github.com/HalfdanJ/nodeftpd/transfer"
	"github.com/HalfdanJ/nodeftpd/utils"
)

type Server interface {
	// Start starts a server.
	Start()
	// Stop stops the server and release the resource.
	Stop()
	// AcceptClient return the connection and address when new client is arrived.
	AcceptClient() (utils.Conn, string, error)
	// PassiveTransferFactory reserves a passive endpoint from the pool.
	PassiveTransferFactory(remoteIP string, opts transfer.DataConnOptions) (transfer.Handler, int, error)
	// ActiveTransferFactory return an active transfer handler.
	ActiveTransferFactory(addr *net.TCPAddr, opts transfer.DataConnOptions) transfer.Handler
	// Setting return the server setting.
	Setting() *config.ServerSettings
	// Hooks return the session hooks handed to every client.
	Hooks() client.Hooks
}
