package base

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/rDBG/rpc/common"
	"github.com/ValentinKolb/rDBG/rpc/transport"
	"net"
	"time"
)

// Listener is the server role connection: it binds an endpoint and accepts
// exactly one peer
type Listener struct {
	*connection
	connector IServerConnector
	endpoint  string
	listener  net.Listener
	started   bool
}

// NewListener binds endpoint using the connector. Accepting starts with Start.
func NewListener(connector IServerConnector, svc *Service, endpoint string, config common.TransportConfig, handler transport.CommandHandler) (*Listener, error) {
	l := &Listener{
		connection: newConnection(connector.GetName()+" listener", svc, config, handler),
		connector:  connector,
		endpoint:   endpoint,
	}

	ln, err := connector.Listen(endpoint, l.config)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", endpoint, err)
	}
	l.listener = ln
	l.onClose = l.closeListener

	Logger.Infof("%s: listening on %s", l.name, ln.Addr())
	return l, nil
}

// Addr returns the address the listener is bound to
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// Start issues the accept and blocks for up to timeout until a peer connected
func (l *Listener) Start(timeout time.Duration) error {
	if l.started {
		return transport.ErrAlreadyStarted
	}
	l.started = true

	l.accept()
	return l.waitConnected(timeout)
}

// accept waits for one peer on a separate goroutine and posts the result
func (l *Listener) accept() {
	ln := l.listener
	go func() {
		conn, err := ln.Accept()
		if !l.svc.Post(func() { l.handleAccept(conn, err) }) && conn != nil {
			_ = conn.Close()
		}
	}()
}

// handleAccept runs on the service goroutine
func (l *Listener) handleAccept(conn net.Conn, err error) {
	if err != nil {
		if l.closed || errors.Is(err, net.ErrClosed) {
			return
		}
		Logger.Warningf("%s: accept failed, retrying in %s: %v", l.name, l.config.RetryDelay, err)
		time.AfterFunc(l.config.RetryDelay, func() {
			l.svc.Post(func() {
				if !l.closed {
					l.accept()
				}
			})
		})
		return
	}

	if l.closed {
		_ = conn.Close()
		return
	}

	if err := l.connector.UpgradeConnection(conn, l.config); err != nil {
		Logger.Warningf("%s: failed to apply socket options: %v", l.name, err)
	}

	// only one peer per session
	l.closeListener()

	l.attach(conn)
	l.handleConnected()
}

func (l *Listener) closeListener() {
	if l.listener == nil {
		return
	}
	if err := l.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		Logger.Debugf("%s: closing listener: %v", l.name, err)
	}
}
