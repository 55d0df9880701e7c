package base

import (
	"errors"
	"github.com/ValentinKolb/rDBG/rpc/common"
	"github.com/ValentinKolb/rDBG/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"io"
	"net"
	"sync/atomic"
)

var Logger = logger.GetLogger("transport")

var (
	connectionsClosed = metrics.NewCounter("rdbg_connections_closed_total")
	bytesWritten      = metrics.NewCounter("rdbg_bytes_written_total")
	bytesRead         = metrics.NewCounter("rdbg_bytes_read_total")
)

// -----------------------------------------------------------
// Connection core (shared by Listener and Dialer)
// -----------------------------------------------------------

// connection implements the framed read loop and the FIFO write queue.
// Fields below the separator are only accessed on the service goroutine
// (or by Release once the service stopped).
type connection struct {
	name      string
	svc       *Service
	config    common.TransportConfig
	handler   transport.CommandHandler
	connected atomic.Bool

	// onClose releases role specific resources (listener socket, dial attempts)
	onClose func()

	// ------------------------------------------------------------
	conn     net.Conn
	closed   bool
	reading  bool
	writing  bool
	outbound []common.Command
	writeCh  chan common.Command
	done     chan struct{}
}

func newConnection(name string, svc *Service, config common.TransportConfig, handler transport.CommandHandler) *connection {
	return &connection{
		name:    name,
		svc:     svc,
		config:  config.WithDefaults(),
		handler: handler,
		writeCh: make(chan common.Command, 1),
		done:    make(chan struct{}),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IConnection)
// --------------------------------------------------------------------------

func (c *connection) Send(header common.Header, payload []byte) {
	cmd := common.NewCommand(header, payload)
	if !c.svc.Post(func() { c.enqueue(cmd) }) {
		Logger.Debugf("%s: dropped %s, service closed", c.name, cmd)
	}
}

func (c *connection) Close() {
	c.svc.Post(c.closeSocket)
}

func (c *connection) MarkConnected() {
	c.svc.Post(c.handleConnected)
}

func (c *connection) IsConnected() bool {
	return c.connected.Load()
}

func (c *connection) Done() <-chan struct{} {
	return c.done
}

// HasPendingWrites is false for a connection that never connected, its queue is dropped
func (c *connection) HasPendingWrites() bool {
	return !c.closed && c.reading && len(c.outbound) > 0
}

func (c *connection) Release() {
	c.closeSocket()
}

// --------------------------------------------------------------------------
// Service goroutine methods
// --------------------------------------------------------------------------

// attach stores an established socket, it is owned by the connection afterwards
func (c *connection) attach(conn net.Conn) {
	if c.closed {
		_ = conn.Close()
		return
	}
	c.conn = conn
}

// handleConnected performs the connected transition. Only the first call
// starts the reader and writer goroutines.
func (c *connection) handleConnected() {
	if c.closed || c.conn == nil || c.reading {
		return
	}
	c.reading = true
	c.connected.Store(true)

	Logger.Infof("%s: connected %s <-> %s", c.name, c.conn.LocalAddr(), c.conn.RemoteAddr())

	go c.readLoop(c.conn)
	go c.writeLoop(c.conn)

	// flush commands sent before the connection was established
	c.startWrite()
}

// enqueue appends a command to the write queue and starts writing if the
// queue was empty
func (c *connection) enqueue(cmd common.Command) {
	if c.closed {
		Logger.Debugf("%s: dropped %s, connection closed", c.name, cmd)
		return
	}
	c.outbound = append(c.outbound, cmd)
	if len(c.outbound) == 1 {
		c.startWrite()
	}
}

// startWrite hands the head of the queue to the writer goroutine. At most one
// write is in flight, so the buffered channel never blocks.
func (c *connection) startWrite() {
	if c.writing || !c.reading || c.closed || len(c.outbound) == 0 {
		return
	}
	c.writing = true
	c.writeCh <- c.outbound[0]
}

// handleWrite is called when the writer finished the head of the queue
func (c *connection) handleWrite(err error) {
	c.writing = false
	if c.closed {
		return
	}
	if err != nil {
		Logger.Errorf("%s: write of %s failed: %v", c.name, c.outbound[0], err)
		c.closeSocket()
		return
	}

	bytesWritten.Add(common.HeaderSize + len(c.outbound[0].Payload))

	// pop without keeping the payload reachable
	c.outbound[0] = common.Command{}
	c.outbound = c.outbound[1:]
	c.startWrite()
}

// handleRead delivers a received command to the handler
func (c *connection) handleRead(cmd common.Command) {
	if c.closed {
		return
	}
	bytesRead.Add(common.HeaderSize + len(cmd.Payload))
	if c.handler != nil {
		c.handler(cmd)
	}
}

// handleReadError closes the connection after the reader failed
func (c *connection) handleReadError(err error) {
	if c.closed {
		return
	}
	switch {
	case errors.Is(err, errPeerClosed):
		Logger.Infof("%s: peer closed the session", c.name)
	case errors.Is(err, io.EOF):
		Logger.Infof("%s: connection closed by peer", c.name)
	default:
		Logger.Errorf("%s: read failed: %v", c.name, err)
	}
	c.closeSocket()
}

// closeSocket closes the socket and stops establishment. Idempotent.
func (c *connection) closeSocket() {
	if c.closed {
		return
	}
	c.closed = true
	c.connected.Store(false)
	close(c.done)

	if c.onClose != nil {
		c.onClose()
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			Logger.Debugf("%s: close: %v", c.name, err)
		}
		connectionsClosed.Inc()
	}

	if n := len(c.outbound); n > 0 {
		Logger.Warningf("%s: closed with %d unsent commands", c.name, n)
	}
	c.outbound = nil
}

// --------------------------------------------------------------------------
// Reader / Writer goroutines
// --------------------------------------------------------------------------

// readLoop reads commands until the socket fails and posts every result
// to the service goroutine
func (c *connection) readLoop(conn net.Conn) {
	headerBuf := make([]byte, common.HeaderSize)
	for {
		cmd, err := readCommand(conn, headerBuf, c.config.MaxPayloadSize)
		if err != nil {
			c.svc.Post(func() { c.handleReadError(err) })
			return
		}
		if !c.svc.Post(func() { c.handleRead(cmd) }) {
			return
		}
	}
}

// writeLoop writes the commands handed over by startWrite
func (c *connection) writeLoop(conn net.Conn) {
	for {
		select {
		case cmd := <-c.writeCh:
			err := writeCommand(conn, cmd, c.config.WriteTimeout)
			if !c.svc.Post(func() { c.handleWrite(err) }) {
				return
			}
		case <-c.done:
			return
		}
	}
}
