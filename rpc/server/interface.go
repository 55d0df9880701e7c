package server

import (
	"context"
	"github.com/ValentinKolb/rDBG/lib/breakpoint"
	"github.com/ValentinKolb/rDBG/lib/source"
	"github.com/ValentinKolb/rDBG/rpc/common"
	"github.com/ValentinKolb/rDBG/rpc/engine"
	"github.com/ValentinKolb/rDBG/rpc/serializer"
)

// ISession is the part of an engine an adapter uses to answer commands
// and to send notices of its own
type ISession interface {
	// PeerID returns the identity of the session
	PeerID() int32

	// Replies (the request's PeerID and CommandID are reused)

	ResponseSucceeded(request common.Command) error
	ResponseFailed(request common.Command) error
	ResponseString(request common.Command, value string) error
	ResponseVarList(request common.Command, vars []serializer.Var) error
	ResponseBacktraceList(request common.Command, backtraces []serializer.Backtrace) error

	// Notices

	ChangedState(isBreak bool) error
	UpdateSource(key string, line int32, updateCount uint32, done engine.ResultCallback) error
	ForceUpdateSource() error
	AddedSource(src source.Source) error
	SetUpdateCount(count uint32) error
	ChangedBreakpointList(bps []breakpoint.Breakpoint) error
	OutputLog(logType serializer.LogType, message, key string, line int32) error

	// ProtocolError closes the connection because cmd could not be decoded
	ProtocolError(cmd common.Command, err error)
}

// IEngine is what the command server needs to drain the inbound queue
type IEngine interface {
	ISession

	// WaitCommand blocks until a command is queued, the session ended or ctx is done
	WaitCommand(ctx context.Context) bool
	// TakeCommand removes the oldest queued command
	TakeCommand() (common.Command, bool)
}

// ICommandAdapter handles every received command that is not the reply of
// an own request. It runs on the goroutine calling Serve.
type ICommandAdapter interface {
	// Handle handles cmd, answering requests through session.
	// Every request (see CommandType.IsRequest) must be answered, FAILED if nothing else fits.
	Handle(cmd common.Command, session ISession)
}

// ISessionObserver is implemented by adapters that want to know when Serve
// returns because the session is over
type ISessionObserver interface {
	SessionEnded()
}
