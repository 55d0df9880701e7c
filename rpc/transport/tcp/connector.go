package tcp

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/rDBG/rpc/common"
	"github.com/ValentinKolb/rDBG/rpc/transport"
	"github.com/ValentinKolb/rDBG/rpc/transport/base"
	"net"
	"time"
)

// resolveTimeout bounds the name lookup of a dial endpoint
const resolveTimeout = 5 * time.Second

// connector implements base.IServerConnector and base.IClientConnector for TCP sockets
type connector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IServerConnector / base.IClientConnector)
// --------------------------------------------------------------------------

func (c *connector) GetName() string {
	return "tcp"
}

func (c *connector) Listen(endpoint string, _ common.TransportConfig) (net.Listener, error) {
	listener, err := net.Listen("tcp", endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create TCP socket: %v", err)
	}
	return listener, nil
}

func (c *connector) Resolve(endpoint string) ([]string, error) {
	host, port, err := net.SplitHostPort(endpoint)
	if err != nil {
		return nil, err
	}
	if host == "" {
		host = common.DefaultHost
	}

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	addrs, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil {
		return nil, err
	}

	candidates := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		candidates = append(candidates, net.JoinHostPort(addr, port))
	}
	return candidates, nil
}

func (c *connector) Dial(ctx context.Context, address string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", address)
}

// UpgradeConnection applies performance optimizations to a TCP connection
// using configuration values from TCPConf and SocketConf
func (c *connector) UpgradeConnection(conn net.Conn, config common.TransportConfig) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil // Not a TCP connection, nothing to upgrade
	}

	// Disable Nagle's algorithm, commands are small and latency matters
	if err := tcpConn.SetNoDelay(config.TCPNoDelay); err != nil {
		return err
	}

	if config.WriteBufferSize > 0 {
		if err := tcpConn.SetWriteBuffer(config.WriteBufferSize); err != nil {
			return err
		}
	}

	if config.ReadBufferSize > 0 {
		if err := tcpConn.SetReadBuffer(config.ReadBufferSize); err != nil {
			return err
		}
	}

	if config.TCPKeepAliveSec > 0 {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			return err
		}
		keepAlivePeriod := time.Duration(config.TCPKeepAliveSec) * time.Second
		if err := tcpConn.SetKeepAlivePeriod(keepAlivePeriod); err != nil {
			return err
		}
	}

	if config.TCPLingerSec >= 0 {
		if err := tcpConn.SetLinger(config.TCPLingerSec); err != nil {
			return err
		}
	}

	return nil
}

// --------------------------------------------------------------------------
// Connection Factory Methods
// --------------------------------------------------------------------------

// NewListener binds a TCP endpoint ("host:port") for the server role
func NewListener(svc *base.Service, endpoint string, config common.TransportConfig, handler transport.CommandHandler) (*base.Listener, error) {
	return base.NewListener(&connector{}, svc, endpoint, config, handler)
}

// NewDialer resolves a TCP endpoint ("host:port") for the client role
func NewDialer(svc *base.Service, endpoint string, config common.TransportConfig, handler transport.CommandHandler) (*base.Dialer, error) {
	return base.NewDialer(&connector{}, svc, endpoint, config, handler)
}

