package common

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Command Structure
// --------------------------------------------------------------------------

// HeaderSize is the number of bytes a Header occupies on the wire
const HeaderSize = 16

// UnsetPeerID is the peer identity before a session has been negotiated.
// A negative peer id in a received header is the peer's close signal.
const UnsetPeerID int32 = -1

// Header is the fixed size part sent first on every command
type Header struct {
	// Type of the command, decides how the payload is interpreted
	Type CommandType `json:"type"`
	// PeerID identifies the logical debug session (negative = unset / close signal)
	PeerID int32 `json:"peerId"`
	// CommandID correlates a request with its reply
	CommandID uint32 `json:"commandId"`
	// PayloadSize is the number of payload bytes following the header
	PayloadSize uint32 `json:"payloadSize"`
}

// Continuation is invoked with the reply of a request once the consumer drains it
type Continuation func(reply Command)

// Command is a header plus its payload. A command received as the reply of an
// earlier request carries the continuation registered for that request.
type Command struct {
	Header  Header `json:"header"`
	Payload []byte `json:"payload,omitempty"`

	response Continuation
}

// NewCommand creates a command, PayloadSize is taken from the payload
func NewCommand(header Header, payload []byte) Command {
	header.PayloadSize = uint32(len(payload))
	return Command{Header: header, Payload: payload}
}

// WithResponse returns a copy of the command carrying the given continuation
func (c Command) WithResponse(response Continuation) Command {
	c.response = response
	return c
}

// HasResponse reports whether a continuation is attached
func (c Command) HasResponse() bool {
	return c.response != nil
}

// CallResponse runs the attached continuation with the command itself.
// It returns false if there was nothing to call.
func (c Command) CallResponse() bool {
	if c.response == nil {
		return false
	}
	c.response(c)
	return true
}

// Type is a shortcut for Header.Type
func (c Command) Type() CommandType { return c.Header.Type }

// PeerID is a shortcut for Header.PeerID
func (c Command) PeerID() int32 { return c.Header.PeerID }

// CommandID is a shortcut for Header.CommandID
func (c Command) CommandID() uint32 { return c.Header.CommandID }

// String returns a short description used in log messages
func (c Command) String() string {
	return fmt.Sprintf("%s(peer=%d, id=%d, size=%d)", c.Header.Type, c.Header.PeerID, c.Header.CommandID, c.Header.PayloadSize)
}

// --------------------------------------------------------------------------
// Command Type Definition
// --------------------------------------------------------------------------

// CommandType defines the kind of command exchanged between debugger and debuggee
type CommandType uint32

const (
	CmdTUnknown CommandType = iota

	// Session control

	CmdTStartConnection // Announces (server) or confirms (client) the session identity
	CmdTEndConnection   // The sender is going away

	// Notices sent by the debuggee

	CmdTChangedState          // Running / break state changed
	CmdTUpdateSource          // Current source position changed (expects a reply)
	CmdTForceUpdateSource     // The frontend should redraw all sources
	CmdTAddedSource           // A new source was loaded
	CmdTSaveSource            // Save edited source lines
	CmdTSetUpdateCount        // Set the source generation counter
	CmdTSetBreakpoint         // Add a breakpoint
	CmdTRemoveBreakpoint      // Remove a breakpoint
	CmdTChangedBreakpointList // Full breakpoint list
	CmdTOutputLog             // Log output of the debuggee

	// Execution control

	CmdTBreak
	CmdTResume
	CmdTStepInto
	CmdTStepOver
	CmdTStepReturn

	// Requests

	CmdTEval
	CmdTRequestFieldsVarList
	CmdTRequestLocalVarList
	CmdTRequestEnvironVarList
	CmdTRequestEvalVarList
	CmdTRequestGlobalVarList
	CmdTRequestRegistryVarList
	CmdTRequestStackList

	// Replies

	CmdTValueString
	CmdTValueVarList
	CmdTValueBacktraceList
	CmdTSucceeded
	CmdTFailed

	cmdTEnd // sentinel, keep last
)

var commandTypeNames = map[CommandType]string{
	CmdTUnknown:                "unknown",
	CmdTStartConnection:        "start_connection",
	CmdTEndConnection:          "end_connection",
	CmdTChangedState:           "changed_state",
	CmdTUpdateSource:           "update_source",
	CmdTForceUpdateSource:      "force_update_source",
	CmdTAddedSource:            "added_source",
	CmdTSaveSource:             "save_source",
	CmdTSetUpdateCount:         "set_update_count",
	CmdTSetBreakpoint:          "set_breakpoint",
	CmdTRemoveBreakpoint:       "remove_breakpoint",
	CmdTChangedBreakpointList:  "changed_breakpoint_list",
	CmdTOutputLog:              "output_log",
	CmdTBreak:                  "break",
	CmdTResume:                 "resume",
	CmdTStepInto:               "step_into",
	CmdTStepOver:               "step_over",
	CmdTStepReturn:             "step_return",
	CmdTEval:                   "eval",
	CmdTRequestFieldsVarList:   "request_fields_varlist",
	CmdTRequestLocalVarList:    "request_local_varlist",
	CmdTRequestEnvironVarList:  "request_environ_varlist",
	CmdTRequestEvalVarList:     "request_eval_varlist",
	CmdTRequestGlobalVarList:   "request_global_varlist",
	CmdTRequestRegistryVarList: "request_registry_varlist",
	CmdTRequestStackList:       "request_stacklist",
	CmdTValueString:            "value_string",
	CmdTValueVarList:           "value_varlist",
	CmdTValueBacktraceList:     "value_backtracelist",
	CmdTSucceeded:              "succeeded",
	CmdTFailed:                 "failed",
}

// AllCommandTypes returns every known command type except CmdTUnknown
func AllCommandTypes() []CommandType {
	types := make([]CommandType, 0, int(cmdTEnd)-1)
	for t := CmdTStartConnection; t < cmdTEnd; t++ {
		types = append(types, t)
	}
	return types
}

// IsValid reports whether t is a known command type
func (t CommandType) IsValid() bool {
	return t > CmdTUnknown && t < cmdTEnd
}

// IsRequest reports whether the sender of t waits for a reply
func (t CommandType) IsRequest() bool {
	switch t {
	case CmdTUpdateSource, CmdTEval,
		CmdTRequestFieldsVarList, CmdTRequestLocalVarList, CmdTRequestEnvironVarList,
		CmdTRequestEvalVarList, CmdTRequestGlobalVarList, CmdTRequestRegistryVarList,
		CmdTRequestStackList:
		return true
	default:
		return false
	}
}

// String returns the string representation of a CommandType.
func (t CommandType) String() string {
	if name, ok := commandTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON implements the json.Marshaller interface for CommandType.
func (t CommandType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for CommandType.
func (t *CommandType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseCommandType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseCommandType converts the string representation back to a CommandType
func ParseCommandType(s string) (CommandType, error) {
	for t, name := range commandTypeNames {
		if name == s && t != CmdTUnknown {
			return t, nil
		}
	}
	return CmdTUnknown, fmt.Errorf("unknown command type: %s", s)
}
