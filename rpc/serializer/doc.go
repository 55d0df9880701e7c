// Package serializer implements the wire codec of the debugging protocol.
//
// Every command starts with a fixed 16 byte header, followed by exactly
// PayloadSize payload bytes:
//
//	+--------+--------+-----------+-------------+---------------+
//	| type   | peerId | commandId | payloadSize | payload ...   |
//	| uint32 | int32  | uint32    | uint32      | payloadSize B |
//	+--------+--------+-----------+-------------+---------------+
//
// All integers are big-endian. The payload has no length prefix of its own.
//
// Key Components:
//
//   - EncodeHeader / DecodeHeader: fixed layout header codec.
//
//   - Writer / Reader: primitives for payload encoding. Strings and lists carry
//     a 4-byte length, booleans occupy one byte. The Reader keeps the first error
//     and Finish rejects trailing bytes, so decoding is all-or-nothing.
//
//   - Payload types (ChangedState, UpdateSource, ValueVarList, ...): one per
//     message kind. NewPayload returns the right empty payload for a command type.
//
// Re-encoding a decoded payload always yields the original bytes.
//
// Thread Safety:
//
//	Writer and Reader are not safe for concurrent use. Marshal and Unmarshal
//	create their own instances and can be called from any goroutine.
package serializer
