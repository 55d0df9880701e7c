// Package common provides core data structures and utilities shared across
// the remote debugging transport. It defines the wire header, the command
// type enumeration, configuration structures and the logger setup.
//
// Key Components:
//
//   - Header / Command: the unit exchanged between debugger and debuggee. A
//     command received as a reply carries the Continuation registered when the
//     request was sent.
//
//   - CommandType: enumeration of all command kinds (session control, notices,
//     execution control, requests and replies).
//
//   - EngineConfig / TransportConfig: establishment and framing parameters with
//     defaults and a printable representation.
//
//   - Logger: custom formatter plugged into dragonboat's logger facade, which all
//     rDBG packages use for their package level loggers.
package common
