package base

import (
	"context"
	"github.com/ValentinKolb/rDBG/rpc/common"
	"github.com/ValentinKolb/rDBG/rpc/transport"
	"net"
	"time"
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the transport-specific operations of the listening side
type IServerConnector interface {
	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// Listen binds the endpoint and returns the listener
	Listen(endpoint string, config common.TransportConfig) (net.Listener, error)

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.TransportConfig) error
}

// IClientConnector defines the transport-specific operations of the dialing side
type IClientConnector interface {
	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// Resolve turns an endpoint into the ordered list of addresses to try
	Resolve(endpoint string) ([]string, error)

	// Dial connects to one address, ctx bounds the attempt
	Dial(ctx context.Context, address string) (net.Conn, error)

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.TransportConfig) error
}

// -----------------------------------------------------------
// Blocking wait for establishment
// -----------------------------------------------------------

// waitConnected drives the service on the calling goroutine until the
// connection is established or timeout elapsed. The sleep between two polls
// never extends past the deadline.
func (c *connection) waitConnected(timeout time.Duration) error {
	if timeout < 0 {
		return nil
	}

	deadline := time.Now().Add(timeout)
	for {
		c.svc.PollOne()
		if c.IsConnected() {
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return transport.ErrEstablishTimeout
		}
		time.Sleep(min(c.config.PollInterval, remaining))
	}
}

var (
	_ transport.IConnection = (*Listener)(nil)
	_ transport.IConnection = (*Dialer)(nil)
)
