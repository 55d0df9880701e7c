package server

import (
	"github.com/ValentinKolb/rDBG/lib/breakpoint"
	"github.com/ValentinKolb/rDBG/lib/source"
	"github.com/ValentinKolb/rDBG/rpc/common"
	"github.com/ValentinKolb/rDBG/rpc/serializer"
	"sync"
)

// IFrontend is the presentation side of a debugger. Every method runs on the
// goroutine calling Serve.
type IFrontend interface {
	OnChangedState(isBreak bool)
	OnUpdateSource(key string, line int32, updateCount uint32)
	OnForceUpdateSource()
	OnAddedSource(src source.Source)
	OnChangedBreakpointList(bps []breakpoint.Breakpoint)
	OnOutputLog(log serializer.OutputLog)
	OnSetUpdateCount(count uint32)
	OnSessionEnded()
}

// NewFrontendAdapter creates the adapter used on the debugger side of a session.
// It keeps the sources and breakpoints announced by the debuggee.
func NewFrontendAdapter(frontend IFrontend) *FrontendAdapter {
	return &FrontendAdapter{
		frontend:    frontend,
		sources:     source.NewStore(),
		breakpoints: breakpoint.NewList(common.UnsetPeerID),
	}
}

// FrontendAdapter maps the notices of a debuggee to an IFrontend
type FrontendAdapter struct {
	frontend IFrontend
	sources  source.IStore

	mu          sync.RWMutex
	breakpoints breakpoint.IBreakpointList

	ended sync.Once
}

// Sources returns the sources announced so far
func (a *FrontendAdapter) Sources() source.IStore {
	return a.sources
}

// Breakpoints returns the last breakpoint list sent by the debuggee
func (a *FrontendAdapter) Breakpoints() breakpoint.IBreakpointList {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.breakpoints
}

func (a *FrontendAdapter) Handle(cmd common.Command, session ISession) {
	switch cmd.Type() {
	case common.CmdTStartConnection:
		Logger.Infof("debuggee announced session %d", cmd.PeerID())

	case common.CmdTEndConnection:
		a.SessionEnded()

	case common.CmdTChangedState:
		var p serializer.ChangedState
		if a.decode(cmd, session, &p) {
			a.frontend.OnChangedState(p.IsBreak)
		}

	case common.CmdTUpdateSource:
		var p serializer.UpdateSource
		if !a.decode(cmd, session, &p) {
			a.respondFailed(cmd, session)
			return
		}
		a.frontend.OnUpdateSource(p.Key, p.Line, p.UpdateCount)
		if err := session.ResponseSucceeded(cmd); err != nil {
			Logger.Warningf("could not acknowledge %s: %v", cmd, err)
		}

	case common.CmdTForceUpdateSource:
		a.frontend.OnForceUpdateSource()

	case common.CmdTAddedSource:
		var p serializer.AddedSource
		if a.decode(cmd, session, &p) {
			a.sources.Add(p.Source)
			a.frontend.OnAddedSource(p.Source)
		}

	case common.CmdTSetUpdateCount:
		var p serializer.SetUpdateCount
		if a.decode(cmd, session, &p) {
			a.sources.SetGeneration(p.Count)
			a.frontend.OnSetUpdateCount(p.Count)
		}

	case common.CmdTChangedBreakpointList:
		var p serializer.BreakpointListPayload
		if a.decode(cmd, session, &p) {
			list := breakpoint.NewList(p.PeerID)
			list.Replace(p.Breakpoints)
			a.mu.Lock()
			a.breakpoints = list
			a.mu.Unlock()
			a.frontend.OnChangedBreakpointList(list.All())
		}

	case common.CmdTOutputLog:
		var p serializer.OutputLog
		if a.decode(cmd, session, &p) {
			a.frontend.OnOutputLog(p)
		}

	default:
		if cmd.Type().IsRequest() {
			a.respondFailed(cmd, session)
			return
		}
		Logger.Debugf("ignoring %s", cmd)
	}
}

// SessionEnded tells the frontend once, either on END_CONNECTION or when Serve returns
func (a *FrontendAdapter) SessionEnded() {
	a.ended.Do(a.frontend.OnSessionEnded)
}

// decode reports a payload that cannot be read as protocol error, which closes the connection
func (a *FrontendAdapter) decode(cmd common.Command, session ISession, p serializer.IDecoder) bool {
	if err := serializer.Unmarshal(cmd.Payload, p); err != nil {
		session.ProtocolError(cmd, err)
		return false
	}
	return true
}

func (a *FrontendAdapter) respondFailed(cmd common.Command, session ISession) {
	if err := session.ResponseFailed(cmd); err != nil {
		Logger.Warningf("could not reject %s: %v", cmd, err)
	}
}
