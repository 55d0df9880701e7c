package base

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/rDBG/rpc/common"
	"github.com/ValentinKolb/rDBG/rpc/transport"
	"net"
	"time"
)

// Dialer is the client role connection: it tries the resolved candidates of
// an endpoint in order, wrapping around, until one connects
type Dialer struct {
	*connection
	connector  IClientConnector
	candidates []string
	next       int
	started    bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewDialer resolves endpoint into its candidate addresses. Dialing starts with Start.
func NewDialer(connector IClientConnector, svc *Service, endpoint string, config common.TransportConfig, handler transport.CommandHandler) (*Dialer, error) {
	candidates, err := connector.Resolve(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", endpoint, err)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("failed to resolve %s: no addresses", endpoint)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dialer{
		connection: newConnection(connector.GetName()+" dialer", svc, config, handler),
		connector:  connector,
		candidates: candidates,
		ctx:        ctx,
		cancel:     cancel,
	}
	d.onClose = cancel

	Logger.Debugf("%s: %s resolved to %v", d.name, endpoint, candidates)
	return d, nil
}

// Candidates returns the resolved addresses in the order they are tried
func (d *Dialer) Candidates() []string {
	return append([]string(nil), d.candidates...)
}

// Start dials the first candidate and blocks for up to timeout until one connected.
// Failed attempts continue with the next candidate, only the timeout bounds them.
func (d *Dialer) Start(timeout time.Duration) error {
	if d.started {
		return transport.ErrAlreadyStarted
	}
	d.started = true

	d.dial()
	return d.waitConnected(timeout)
}

// dial connects to the current candidate on a separate goroutine and posts the result
func (d *Dialer) dial() {
	address := d.candidates[d.next]
	go func() {
		ctx, cancel := context.WithTimeout(d.ctx, d.config.DialTimeout)
		defer cancel()

		conn, err := d.connector.Dial(ctx, address)
		if !d.svc.Post(func() { d.handleDial(address, conn, err) }) && conn != nil {
			_ = conn.Close()
		}
	}()
}

// handleDial runs on the service goroutine
func (d *Dialer) handleDial(address string, conn net.Conn, err error) {
	if d.closed || d.ctx.Err() != nil {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}

	if err != nil {
		d.next = (d.next + 1) % len(d.candidates)
		Logger.Debugf("%s: connect to %s failed, trying %s in %s: %v",
			d.name, address, d.candidates[d.next], d.config.RetryDelay, err)

		time.AfterFunc(d.config.RetryDelay, func() {
			if d.ctx.Err() != nil {
				return
			}
			d.svc.Post(func() {
				if !d.closed {
					d.dial()
				}
			})
		})
		return
	}

	if err := d.connector.UpgradeConnection(conn, d.config); err != nil {
		Logger.Warningf("%s: failed to apply socket options: %v", d.name, err)
	}

	d.attach(conn)
	d.handleConnected()
}
