// Package tcp implements TCP socket connectors for the debugging transport.
// It provides concrete implementations of the base package's connector
// interfaces: listening on "host:port", resolving a dial endpoint into all
// addresses of the host, and tuning accepted or dialed sockets (no delay,
// keep-alive, linger, buffer sizes) from common.TransportConfig.
//
// The connection logic itself (framing, write queue, establishment and
// retries) lives in the base package.
package tcp
