// Package cmd implements the command-line interface of rDBG. It provides
// both ends of a debug session and a benchmark of the transport.
//
// The package is organized into several subpackages:
//
//   - debuggee: Runs a Lua script and serves the debugger that attaches to it
//   - attach: Connects to a debuggee and offers an interactive console
//   - perf: Measures round trips over a local session
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See rdbg -help for a list of all commands.
package cmd
