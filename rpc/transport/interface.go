package transport

import (
	"errors"
	"github.com/ValentinKolb/rDBG/rpc/common"
	"time"
)

var (
	// ErrEstablishTimeout is returned by Start if no peer connected within the timeout
	ErrEstablishTimeout = errors.New("connection not established within timeout")
	// ErrAlreadyStarted is returned by Start if it was called before
	ErrAlreadyStarted = errors.New("connection already started")
)

// CommandHandler is called on the I/O service goroutine for every command
// received from the peer, in arrival order.
type CommandHandler func(cmd common.Command)

// IConnection is one framed, bidirectional connection to the peer of a debug session.
//
// Except for Start and Release, all methods may be called from any goroutine.
// Operations that touch the socket are posted to the I/O service and run there.
type IConnection interface {
	// Start begins establishing the connection (accept or dial) and blocks for
	// up to timeout until it is connected. The I/O service must not be running
	// yet: Start drives it itself while waiting. A negative timeout returns
	// immediately, establishment then continues once the service runs.
	Start(timeout time.Duration) error

	// Send queues a command for writing. It never blocks.
	// Commands are written in the order Send was called.
	Send(header common.Header, payload []byte)

	// Close requests an asynchronous close of the socket. Idempotent.
	Close()

	// MarkConnected requests the connected transition. The first transition starts
	// the read loop and flushes commands queued before the connection was established.
	MarkConnected()

	// IsConnected reports whether the connection is established and not closed
	IsConnected() bool

	// Done returns a channel that is closed once the connection closed
	Done() <-chan struct{}

	// HasPendingWrites reports whether queued commands still wait to be written.
	// Must only be called on the I/O service goroutine.
	HasPendingWrites() bool

	// Release closes the connection synchronously and stops establishment.
	// Must only be called when the I/O service is not running (anymore).
	Release()
}
