// Package unix implements Unix domain socket connectors for the debugging
// transport. They are meant for a debugger and debuggee on the same host:
// the endpoint is a socket path instead of "host:port".
//
// When listening, an existing file at the socket path is removed first.
// Dialing has a single candidate, retries therefore repeat the same path
// until the debuggee created the socket or the timeout expires.
package unix
