// Package engine implements the session facade of the debugging transport.
//
// An Engine owns one connection (listener for the debuggee, dialer for the
// debugger), the goroutine that drives its I/O, the command id allocator,
// the list of requests waiting for replies and the queue of received commands.
//
// Session setup:
//
//	debuggee (server)                      debugger (client)
//	Listen(endpoint, peerID, timeout)      Dial(endpoint, timeout)
//	  accept  <--------------------------    connect (tries all candidates)
//	  START_CONNECTION(peerID) ----------->  identity = peerID
//	  identity = peerID  <----------------   START_CONNECTION echoed
//
// Both Start methods block until the identity is known on their side or the
// timeout elapsed. A received START_CONNECTION sets the identity and
// END_CONNECTION clears it. Any other command received while the identity is
// unset adopts its peer id; which id wins if both sides send application
// commands before the handshake finished is undefined.
//
// Command ids start at 1 for the server and at 2 for the client and grow by
// 2, so ids generated independently on both sides never collide. Replies
// reuse the peer id and command id of their request. A received command that
// matches a pending request carries that request's continuation, which the
// application runs when it drains the command (TakeCommand + CallResponse,
// or a server.CommandServer). Replies matching no request are queued like
// any other command.
//
// Loss of the connection is terminal: IsConnected turns false and the engine
// never reconnects. Stop sends END_CONNECTION, waits for queued writes and
// releases everything; it is safe to call more than once.
//
// Metrics:
//
//	Prometheus counters (VictoriaMetrics): rdbg_commands_sent_total{type},
//	rdbg_commands_received_total{type}, rdbg_correlation_misses_total.
//	Per engine round trip timer and traffic meters (go-metrics), see Stats.
package engine
