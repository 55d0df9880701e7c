// Package rpc provides the communication layer of a remote debug session.
// A debuggee and a debugger exchange framed commands over a single
// connection, correlate replies with their requests and drive their side of
// the session from the received commands.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the session,
//     including the command header, the command types, configuration
//     structures and logging.
//
//   - transport: Network communication abstractions with pluggable
//     implementations (TCP, Unix sockets).
//
//   - serializer: Encoding of the command header and of the typed payloads
//     (breakpoints, sources, variables, backtraces).
//
//   - engine: The session endpoint. Establishes the connection, performs the
//     handshake, numbers outgoing commands, matches replies with pending
//     requests and queues every other received command.
//
//   - server: Drains an engine's queue and hands the commands to an adapter,
//     either a debugger frontend or a Lua debuggee.
package rpc
