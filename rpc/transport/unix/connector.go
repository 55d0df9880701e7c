package unix

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/rDBG/rpc/common"
	"github.com/ValentinKolb/rDBG/rpc/transport"
	"github.com/ValentinKolb/rDBG/rpc/transport/base"
	"net"
	"os"
)

// connector implements base.IServerConnector and base.IClientConnector for Unix sockets
type connector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IServerConnector / base.IClientConnector)
// --------------------------------------------------------------------------

func (c *connector) GetName() string {
	return "unix"
}

func (c *connector) Listen(socketPath string, _ common.TransportConfig) (net.Listener, error) {
	// Remove existing socket file if it exists
	if err := os.RemoveAll(socketPath); err != nil {
		return nil, fmt.Errorf("failed to remove existing socket: %v", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create Unix socket: %v", err)
	}
	return listener, nil
}

func (c *connector) Resolve(socketPath string) ([]string, error) {
	if socketPath == "" {
		return nil, fmt.Errorf("empty socket path")
	}
	return []string{socketPath}, nil
}

func (c *connector) Dial(ctx context.Context, socketPath string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", socketPath)
}

func (c *connector) UpgradeConnection(conn net.Conn, config common.TransportConfig) error {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return nil
	}
	if config.WriteBufferSize > 0 {
		if err := unixConn.SetWriteBuffer(config.WriteBufferSize); err != nil {
			return err
		}
	}
	if config.ReadBufferSize > 0 {
		if err := unixConn.SetReadBuffer(config.ReadBufferSize); err != nil {
			return err
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Connection Factory Methods
// --------------------------------------------------------------------------

// NewListener creates the socket file at socketPath for the server role
func NewListener(svc *base.Service, socketPath string, config common.TransportConfig, handler transport.CommandHandler) (*base.Listener, error) {
	return base.NewListener(&connector{}, svc, socketPath, config, handler)
}

// NewDialer prepares a connection to the socket file at socketPath for the client role
func NewDialer(svc *base.Service, socketPath string, config common.TransportConfig, handler transport.CommandHandler) (*base.Dialer, error) {
	return base.NewDialer(&connector{}, svc, socketPath, config, handler)
}
