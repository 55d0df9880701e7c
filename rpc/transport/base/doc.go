// Package base implements the protocol independent core of the debugging
// transport. It is extended with protocol-specific connectors (tcp, unix).
//
// Key Components:
//
//   - Service: single goroutine work queue. Every operation touching socket
//     state (send, close, connected transition, I/O completions) is posted
//     here, so no socket state needs a lock. Before the owner runs the
//     service, Start drives it with PollOne while waiting for establishment.
//
//   - connection: framed reads and FIFO writes. A reader goroutine reads one
//     header, then exactly PayloadSize bytes, and posts the command; it
//     immediately continues with the next header. A writer goroutine writes
//     the head of the write queue; at most one write is in flight. A header
//     with a negative peer id closes the connection without delivering it.
//     Any read or write error closes the socket and IsConnected turns false.
//
//   - Listener: binds an endpoint, accepts exactly one peer (failed accepts
//     are retried after RetryDelay), then closes the listening socket.
//
//   - Dialer: resolves an endpoint into candidates and dials them in order,
//     wrapping around. Attempts are unbounded, only the Start timeout bounds
//     the wait.
//
//   - IServerConnector/IClientConnector: protocol-specific operations.
//
// Commands sent before the connection is established are queued and written
// once it is. Commands queued when the socket closes are dropped.
//
// Thread Safety:
//
//	Send, Close, MarkConnected and IsConnected are safe for concurrent use.
//	Start and Release must be called by the owner while the service is not
//	running, HasPendingWrites only on the service goroutine.
package base
