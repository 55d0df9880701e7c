// Package transport defines the contract between the debugging engine and its
// network connection.
//
// An IConnection carries commands (a fixed size header followed by an opaque
// payload) in both directions. Writes are queued and sent in order, received
// commands are passed to a CommandHandler. Socket failures are never returned
// to the caller: the connection closes itself and IsConnected turns false.
//
// Implementations live in the sub packages:
//
//   - base: protocol independent connection core, I/O service, listener and dialer
//   - tcp: TCP connectors (the default)
//   - unix: Unix domain socket connectors for sessions on the same host
package transport
