package engine

import (
	"fmt"
	"github.com/ValentinKolb/rDBG/lib/breakpoint"
	"github.com/ValentinKolb/rDBG/lib/source"
	"github.com/ValentinKolb/rDBG/rpc/common"
	"github.com/ValentinKolb/rDBG/rpc/serializer"
)

// Callbacks of typed requests. They run on the goroutine draining the
// inbound queue. err is ErrRequestFailed if the peer answered FAILED, or a
// decode error if the reply could not be read (the connection is closed then).
type (
	ResultCallback    func(err error)
	StringCallback    func(value string, err error)
	VarListCallback   func(vars []serializer.Var, err error)
	BacktraceCallback func(backtraces []serializer.Backtrace, err error)
)

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sendPayload encodes p and sends it fire-and-forget
func (e *Engine) sendPayload(t common.CommandType, p serializer.IEncoder) error {
	data, err := serializer.Marshal(p)
	if err != nil {
		return err
	}
	return e.Send(t, data)
}

// requestPayload encodes p and sends it expecting a reply of type want
// decoded into reply
func (e *Engine) requestPayload(t common.CommandType, p serializer.IEncoder, want common.CommandType, reply serializer.IDecoder, done ResultCallback) error {
	data, err := serializer.Marshal(p)
	if err != nil {
		return err
	}
	return e.SendWithResponse(t, data, e.expectReply(want, reply, done))
}

// replyPayload encodes p and sends it as answer to original
func (e *Engine) replyPayload(original common.Command, t common.CommandType, p serializer.IEncoder) error {
	data, err := serializer.Marshal(p)
	if err != nil {
		return err
	}
	return e.Reply(original, t, data)
}

// expectReply builds the continuation of a typed request. A reply that
// cannot be decoded is a protocol error and closes the connection.
func (e *Engine) expectReply(want common.CommandType, reply serializer.IDecoder, done ResultCallback) common.Continuation {
	return func(cmd common.Command) {
		switch cmd.Type() {
		case want:
			if err := serializer.Unmarshal(cmd.Payload, reply); err != nil {
				e.ProtocolError(cmd, err)
				done(err)
				return
			}
			done(nil)
		case common.CmdTFailed:
			done(ErrRequestFailed)
		default:
			err := fmt.Errorf("%w: got %s, expected %s", serializer.ErrMalformedPayload, cmd.Type(), want)
			e.ProtocolError(cmd, err)
			done(err)
		}
	}
}

// ProtocolError logs err and closes the connection. A received command that
// cannot be decoded ends the session.
func (e *Engine) ProtocolError(cmd common.Command, err error) {
	e.log.Errorf("protocol error in %s: %v", cmd, err)
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// --------------------------------------------------------------------------
// Notices
// --------------------------------------------------------------------------

// ChangedState tells the debugger whether the debuggee is stopped
func (e *Engine) ChangedState(isBreak bool) error {
	return e.sendPayload(common.CmdTChangedState, serializer.ChangedState{IsBreak: isBreak})
}

// UpdateSource reports the current position. done runs once the debugger acknowledged it.
func (e *Engine) UpdateSource(key string, line int32, updateCount uint32, done ResultCallback) error {
	return e.requestPayload(common.CmdTUpdateSource,
		serializer.UpdateSource{Key: key, Line: line, UpdateCount: updateCount},
		common.CmdTSucceeded, &serializer.Empty{}, done)
}

// ForceUpdateSource asks the debugger to redraw all sources
func (e *Engine) ForceUpdateSource() error {
	return e.Send(common.CmdTForceUpdateSource, nil)
}

// AddedSource announces a newly loaded source
func (e *Engine) AddedSource(src source.Source) error {
	return e.sendPayload(common.CmdTAddedSource, serializer.AddedSource{Source: src})
}

// SaveSource sends edited lines of a source
func (e *Engine) SaveSource(key string, lines []string) error {
	return e.sendPayload(common.CmdTSaveSource, serializer.SaveSource{Key: key, Lines: lines})
}

// SetUpdateCount sets the source generation counter of the peer
func (e *Engine) SetUpdateCount(count uint32) error {
	return e.sendPayload(common.CmdTSetUpdateCount, serializer.SetUpdateCount{Count: count})
}

// SetBreakpoint adds or replaces a breakpoint on the peer
func (e *Engine) SetBreakpoint(bp breakpoint.Breakpoint) error {
	return e.sendPayload(common.CmdTSetBreakpoint, serializer.BreakpointPayload{Breakpoint: bp})
}

// RemoveBreakpoint removes a breakpoint on the peer
func (e *Engine) RemoveBreakpoint(bp breakpoint.Breakpoint) error {
	return e.sendPayload(common.CmdTRemoveBreakpoint, serializer.BreakpointPayload{Breakpoint: bp})
}

// ChangedBreakpointList sends the full breakpoint list of the session
func (e *Engine) ChangedBreakpointList(bps []breakpoint.Breakpoint) error {
	return e.sendPayload(common.CmdTChangedBreakpointList, serializer.BreakpointListPayload{
		PeerID:      e.PeerID(),
		Breakpoints: bps,
	})
}

// OutputLog forwards a log record of the debuggee
func (e *Engine) OutputLog(logType serializer.LogType, message, key string, line int32) error {
	return e.sendPayload(common.CmdTOutputLog, serializer.OutputLog{Type: logType, Message: message, Key: key, Line: line})
}

// --------------------------------------------------------------------------
// Execution control
// --------------------------------------------------------------------------

// Break asks the debuggee to stop at the next line
func (e *Engine) Break() error { return e.Send(common.CmdTBreak, nil) }

// Resume continues execution
func (e *Engine) Resume() error { return e.Send(common.CmdTResume, nil) }

// StepInto stops at the next line, entering calls
func (e *Engine) StepInto() error { return e.Send(common.CmdTStepInto, nil) }

// StepOver stops at the next line of the current function
func (e *Engine) StepOver() error { return e.Send(common.CmdTStepOver, nil) }

// StepReturn stops after the current function returned
func (e *Engine) StepReturn() error { return e.Send(common.CmdTStepReturn, nil) }

// --------------------------------------------------------------------------
// Requests
// --------------------------------------------------------------------------

// Eval evaluates expr in frame on the debuggee
func (e *Engine) Eval(expr string, frame serializer.StackFrame, callback StringCallback) error {
	var reply serializer.ValueString
	return e.requestPayload(common.CmdTEval, serializer.Eval{Expr: expr, Frame: frame},
		common.CmdTValueString, &reply, func(err error) { callback(reply.Value, err) })
}

// RequestFieldsVarList lists the fields of v
func (e *Engine) RequestFieldsVarList(v serializer.Var, callback VarListCallback) error {
	return e.requestVarList(common.CmdTRequestFieldsVarList, serializer.RequestFieldsVarList{Var: v}, callback)
}

// RequestLocalVarList lists the local variables of frame
func (e *Engine) RequestLocalVarList(frame serializer.StackFrame, callback VarListCallback) error {
	return e.requestVarList(common.CmdTRequestLocalVarList, serializer.RequestLocalVarList{Frame: frame}, callback)
}

// RequestEnvironVarList lists the environment of the function running in frame
func (e *Engine) RequestEnvironVarList(frame serializer.StackFrame, callback VarListCallback) error {
	return e.requestVarList(common.CmdTRequestEnvironVarList, serializer.RequestLocalVarList{Frame: frame}, callback)
}

// RequestEvalVarList evaluates every expression and returns the results as variables
func (e *Engine) RequestEvalVarList(exprs []string, frame serializer.StackFrame, callback VarListCallback) error {
	return e.requestVarList(common.CmdTRequestEvalVarList, serializer.RequestEvalVarList{Exprs: exprs, Frame: frame}, callback)
}

// RequestGlobalVarList lists the global variables
func (e *Engine) RequestGlobalVarList(callback VarListCallback) error {
	return e.requestVarList(common.CmdTRequestGlobalVarList, serializer.Empty{}, callback)
}

// RequestRegistryVarList lists the interpreter registry
func (e *Engine) RequestRegistryVarList(callback VarListCallback) error {
	return e.requestVarList(common.CmdTRequestRegistryVarList, serializer.Empty{}, callback)
}

// RequestStackList returns the call stack of the debuggee
func (e *Engine) RequestStackList(callback BacktraceCallback) error {
	var reply serializer.ValueBacktraceList
	return e.requestPayload(common.CmdTRequestStackList, serializer.Empty{},
		common.CmdTValueBacktraceList, &reply, func(err error) { callback(reply.Backtraces, err) })
}

func (e *Engine) requestVarList(t common.CommandType, p serializer.IEncoder, callback VarListCallback) error {
	var reply serializer.ValueVarList
	return e.requestPayload(t, p, common.CmdTValueVarList, &reply, func(err error) { callback(reply.Vars, err) })
}

// --------------------------------------------------------------------------
// Replies
// --------------------------------------------------------------------------

// ResponseSucceeded acknowledges request
func (e *Engine) ResponseSucceeded(request common.Command) error {
	return e.Reply(request, common.CmdTSucceeded, nil)
}

// ResponseFailed rejects request
func (e *Engine) ResponseFailed(request common.Command) error {
	return e.Reply(request, common.CmdTFailed, nil)
}

// ResponseString answers request with a string value
func (e *Engine) ResponseString(request common.Command, value string) error {
	return e.replyPayload(request, common.CmdTValueString, serializer.ValueString{Value: value})
}

// ResponseVarList answers request with a variable list
func (e *Engine) ResponseVarList(request common.Command, vars []serializer.Var) error {
	return e.replyPayload(request, common.CmdTValueVarList, serializer.ValueVarList{Vars: vars})
}

// ResponseBacktraceList answers request with a call stack
func (e *Engine) ResponseBacktraceList(request common.Command, backtraces []serializer.Backtrace) error {
	return e.replyPayload(request, common.CmdTValueBacktraceList, serializer.ValueBacktraceList{Backtraces: backtraces})
}
