package server

import (
	"context"
	"github.com/ValentinKolb/rDBG/lib/breakpoint"
	"github.com/ValentinKolb/rDBG/lib/source"
	"github.com/ValentinKolb/rDBG/rpc/common"
	"github.com/ValentinKolb/rDBG/rpc/engine"
	"github.com/ValentinKolb/rDBG/rpc/serializer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"
)

// --------------------------------------------------------------------------
// Fake engine
// --------------------------------------------------------------------------

// sentCommand records one call of an ISession method
type sentCommand struct {
	Type    common.CommandType
	Request common.Command // set for replies
	Value   any
}

// fakeEngine serves a fixed queue of commands and records everything sent.
// WaitCommand reports the end of the session once the queue is empty.
type fakeEngine struct {
	peerID         int32
	queue          []common.Command
	sent           []sentCommand
	nextID         uint32
	protocolErrors []common.Command
}

var _ IEngine = (*fakeEngine)(nil)

func newFakeEngine(cmds ...common.Command) *fakeEngine {
	return &fakeEngine{peerID: 7, queue: cmds}
}

func (f *fakeEngine) record(t common.CommandType, request common.Command, value any) error {
	f.sent = append(f.sent, sentCommand{Type: t, Request: request, Value: value})
	return nil
}

// ofType returns the recorded commands of type t
func (f *fakeEngine) ofType(t common.CommandType) []sentCommand {
	var result []sentCommand
	for _, s := range f.sent {
		if s.Type == t {
			result = append(result, s)
		}
	}
	return result
}

func (f *fakeEngine) PeerID() int32 { return f.peerID }

func (f *fakeEngine) ResponseSucceeded(r common.Command) error {
	return f.record(common.CmdTSucceeded, r, nil)
}
func (f *fakeEngine) ResponseFailed(r common.Command) error {
	return f.record(common.CmdTFailed, r, nil)
}
func (f *fakeEngine) ResponseString(r common.Command, value string) error {
	return f.record(common.CmdTValueString, r, value)
}
func (f *fakeEngine) ResponseVarList(r common.Command, vars []serializer.Var) error {
	return f.record(common.CmdTValueVarList, r, vars)
}
func (f *fakeEngine) ResponseBacktraceList(r common.Command, bts []serializer.Backtrace) error {
	return f.record(common.CmdTValueBacktraceList, r, bts)
}
func (f *fakeEngine) ChangedState(isBreak bool) error {
	return f.record(common.CmdTChangedState, common.Command{}, isBreak)
}
func (f *fakeEngine) UpdateSource(key string, line int32, count uint32, done engine.ResultCallback) error {
	return f.record(common.CmdTUpdateSource, common.Command{}, serializer.UpdateSource{Key: key, Line: line, UpdateCount: count})
}
func (f *fakeEngine) ForceUpdateSource() error {
	return f.record(common.CmdTForceUpdateSource, common.Command{}, nil)
}
func (f *fakeEngine) AddedSource(src source.Source) error {
	return f.record(common.CmdTAddedSource, common.Command{}, src)
}
func (f *fakeEngine) SetUpdateCount(count uint32) error {
	return f.record(common.CmdTSetUpdateCount, common.Command{}, count)
}
func (f *fakeEngine) ChangedBreakpointList(bps []breakpoint.Breakpoint) error {
	return f.record(common.CmdTChangedBreakpointList, common.Command{}, bps)
}
func (f *fakeEngine) OutputLog(logType serializer.LogType, message, key string, line int32) error {
	return f.record(common.CmdTOutputLog, common.Command{}, serializer.OutputLog{Type: logType, Message: message, Key: key, Line: line})
}

func (f *fakeEngine) ProtocolError(cmd common.Command, _ error) {
	f.protocolErrors = append(f.protocolErrors, cmd)
}

func (f *fakeEngine) WaitCommand(ctx context.Context) bool {
	return ctx.Err() == nil && len(f.queue) > 0
}

func (f *fakeEngine) TakeCommand() (common.Command, bool) {
	if len(f.queue) == 0 {
		return common.Command{}, false
	}
	cmd := f.queue[0]
	f.queue = f.queue[1:]
	return cmd, true
}

// newCommand builds a received command with an encoded payload
func newCommand(t *testing.T, typ common.CommandType, p serializer.IEncoder) common.Command {
	t.Helper()
	var payload []byte
	if p != nil {
		var err error
		payload, err = serializer.Marshal(p)
		require.NoError(t, err)
	}
	return common.NewCommand(common.Header{Type: typ, PeerID: 7, CommandID: 2}, payload)
}

// --------------------------------------------------------------------------
// Recording adapters
// --------------------------------------------------------------------------

type recordingAdapter struct {
	handled []common.Command
	ended   int
}

func (r *recordingAdapter) Handle(cmd common.Command, _ ISession) { r.handled = append(r.handled, cmd) }
func (r *recordingAdapter) SessionEnded()                         { r.ended++ }

// recordingFrontend records the frontend calls, it is read from the test goroutine
type recordingFrontend struct {
	mu      sync.Mutex
	states  []bool
	updates []serializer.UpdateSource
	forced  int
	added   []source.Source
	bps     []breakpoint.Breakpoint
	logs    []serializer.OutputLog
	counts  []uint32
	ended   int
}

func (r *recordingFrontend) OnChangedState(isBreak bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, isBreak)
}

func (r *recordingFrontend) OnUpdateSource(key string, line int32, count uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, serializer.UpdateSource{Key: key, Line: line, UpdateCount: count})
}

func (r *recordingFrontend) OnForceUpdateSource() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forced++
}

func (r *recordingFrontend) OnAddedSource(src source.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.added = append(r.added, src)
}

func (r *recordingFrontend) OnChangedBreakpointList(bps []breakpoint.Breakpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bps = bps
}

func (r *recordingFrontend) OnOutputLog(log serializer.OutputLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, log)
}

func (r *recordingFrontend) OnSetUpdateCount(count uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts = append(r.counts, count)
}

func (r *recordingFrontend) OnSessionEnded() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended++
}

func (r *recordingFrontend) addedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.added)
}

// --------------------------------------------------------------------------
// Command server tests
// --------------------------------------------------------------------------

func TestServeDispatch(t *testing.T) {
	var replies []common.Command
	reply := newCommand(t, common.CmdTSucceeded, nil).WithResponse(func(cmd common.Command) {
		replies = append(replies, cmd)
	})
	notice := newCommand(t, common.CmdTBreak, nil)

	adapter := &recordingAdapter{}
	s := NewCommandServer(newFakeEngine(reply, notice), adapter)

	err := s.Serve(context.Background())
	assert.ErrorIs(t, err, ErrSessionEnded)

	require.Len(t, replies, 1, "the continuation runs exactly once")
	require.Len(t, adapter.handled, 1, "replies are not passed to the adapter")
	assert.Equal(t, common.CmdTBreak, adapter.handled[0].Type())
	assert.Equal(t, 1, adapter.ended)

	// a second Serve does not notify again
	assert.ErrorIs(t, s.Serve(context.Background()), ErrSessionEnded)
	assert.Equal(t, 1, adapter.ended)
}

func TestServeContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	adapter := &recordingAdapter{}
	s := NewCommandServer(newFakeEngine(newCommand(t, common.CmdTBreak, nil)), adapter)

	assert.ErrorIs(t, s.Serve(ctx), context.Canceled)
	assert.Empty(t, adapter.handled)
	assert.Equal(t, 0, adapter.ended)
}

func TestServeWhile(t *testing.T) {
	adapter := &recordingAdapter{}
	fake := newFakeEngine(
		newCommand(t, common.CmdTBreak, nil),
		newCommand(t, common.CmdTResume, nil),
		newCommand(t, common.CmdTStepInto, nil),
	)
	s := NewCommandServer(fake, adapter)

	err := s.ServeWhile(context.Background(), func() bool { return len(adapter.handled) < 2 })
	require.NoError(t, err)
	assert.Len(t, adapter.handled, 2)
	assert.Len(t, fake.queue, 1, "commands after the condition flipped stay queued")
}

// --------------------------------------------------------------------------
// Frontend adapter tests
// --------------------------------------------------------------------------

func TestFrontendAdapter(t *testing.T) {
	frontend := &recordingFrontend{}
	adapter := NewFrontendAdapter(frontend)

	src := source.Source{Key: "main", Title: "main.lua", Lines: []string{"x = 1", "print(x)"}}
	bps := []breakpoint.Breakpoint{
		{Key: "main", Line: 2, Enabled: true},
		{Key: "main", Line: 1, Enabled: true},
	}
	update := newCommand(t, common.CmdTUpdateSource, serializer.UpdateSource{Key: "main", Line: 2, UpdateCount: 3})
	eval := newCommand(t, common.CmdTEval, serializer.Eval{Expr: "x"})

	fake := newFakeEngine(
		newCommand(t, common.CmdTStartConnection, nil),
		newCommand(t, common.CmdTAddedSource, serializer.AddedSource{Source: src}),
		newCommand(t, common.CmdTSetUpdateCount, serializer.SetUpdateCount{Count: 3}),
		newCommand(t, common.CmdTChangedState, serializer.ChangedState{IsBreak: true}),
		update,
		newCommand(t, common.CmdTChangedBreakpointList, serializer.BreakpointListPayload{PeerID: 7, Breakpoints: bps}),
		newCommand(t, common.CmdTOutputLog, serializer.OutputLog{Type: serializer.LogTypeWarning, Message: "careful"}),
		newCommand(t, common.CmdTForceUpdateSource, nil),
		eval,
		newCommand(t, common.CmdTEndConnection, nil),
	)

	err := NewCommandServer(fake, adapter).Serve(context.Background())
	require.ErrorIs(t, err, ErrSessionEnded)

	assert.Equal(t, []bool{true}, frontend.states)
	assert.Empty(t, fake.protocolErrors)
	assert.Equal(t, []serializer.UpdateSource{{Key: "main", Line: 2, UpdateCount: 3}}, frontend.updates)
	assert.Equal(t, 1, frontend.forced)
	assert.Equal(t, []source.Source{src}, frontend.added)
	assert.Equal(t, []uint32{3}, frontend.counts)
	require.Len(t, frontend.logs, 1)
	assert.Equal(t, "careful", frontend.logs[0].Message)
	assert.Equal(t, 1, frontend.ended, "END_CONNECTION and the end of Serve notify once")

	// the breakpoint list is kept sorted
	require.Len(t, frontend.bps, 2)
	assert.Equal(t, int32(1), frontend.bps[0].Line)
	assert.True(t, adapter.Breakpoints().Has("main", 2))
	assert.Equal(t, 2, adapter.Breakpoints().Len())

	got, ok := adapter.Sources().Get("main")
	require.True(t, ok)
	assert.Equal(t, src.Lines, got.Lines)
	assert.Equal(t, uint32(3), adapter.Sources().Generation())

	// UPDATE_SOURCE is acknowledged, unknown requests are rejected
	succeeded := fake.ofType(common.CmdTSucceeded)
	require.Len(t, succeeded, 1)
	assert.Equal(t, update.Header, succeeded[0].Request.Header)
	failed := fake.ofType(common.CmdTFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, eval.Header, failed[0].Request.Header)
}

func TestFrontendAdapterMalformedNotice(t *testing.T) {
	frontend := &recordingFrontend{}
	malformed := common.NewCommand(common.Header{Type: common.CmdTChangedState, PeerID: 7}, []byte{9})
	fake := newFakeEngine(
		malformed,
		newCommand(t, common.CmdTChangedState, serializer.ChangedState{IsBreak: true}),
	)

	err := NewCommandServer(fake, NewFrontendAdapter(frontend)).Serve(context.Background())
	require.ErrorIs(t, err, ErrSessionEnded)

	require.Len(t, fake.protocolErrors, 1)
	assert.Equal(t, malformed.Header, fake.protocolErrors[0].Header)
	assert.Equal(t, []bool{true}, frontend.states, "the malformed notice is not forwarded")
	assert.Empty(t, fake.ofType(common.CmdTFailed), "notices get no reply")
}

// --------------------------------------------------------------------------
// Session over TCP
// --------------------------------------------------------------------------

func testConfig() common.EngineConfig {
	cfg := common.DefaultEngineConfig()
	cfg.ListenHost = "127.0.0.1"
	cfg.Transport.PollInterval = 10 * time.Millisecond
	cfg.Transport.RetryDelay = 10 * time.Millisecond
	cfg.Transport.DialTimeout = 200 * time.Millisecond
	return cfg
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

// TestLuaSessionOverTCP runs a Lua debuggee and a frontend on two engines
func TestLuaSessionOverTCP(t *testing.T) {
	port := freePort(t)
	debuggee := engine.NewEngine(testConfig())
	debugger := engine.NewEngine(testConfig())
	t.Cleanup(func() {
		debugger.Stop()
		debuggee.Stop()
	})

	serverErr := make(chan error, 1)
	go func() { serverErr <- debuggee.StartAsServer(port, 3, 2*time.Second) }()
	require.NoError(t, debugger.StartAsClient("127.0.0.1", strconv.Itoa(port), 2*time.Second))
	require.NoError(t, <-serverErr)

	// debuggee side
	lua := NewLuaAdapter(debuggee.PeerID())
	t.Cleanup(lua.Close)
	key, err := lua.Load("answer", "", "answer = 42\n")
	require.NoError(t, err)
	luaServer := NewCommandServer(debuggee, lua)
	require.NoError(t, lua.Run(context.Background(), luaServer, key))
	require.NoError(t, lua.Announce(debuggee))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	luaDone := make(chan error, 1)
	go func() { luaDone <- luaServer.Serve(ctx) }()

	// debugger side
	frontend := &recordingFrontend{}
	frontendServer := NewCommandServer(debugger, NewFrontendAdapter(frontend))
	frontendDone := make(chan error, 1)
	go func() { frontendDone <- frontendServer.Serve(ctx) }()

	values := make(chan string, 1)
	require.NoError(t, debugger.Eval("answer * 2", serializer.StackFrame{}, func(value string, err error) {
		assert.NoError(t, err)
		values <- value
	}))

	select {
	case v := <-values:
		assert.Equal(t, "84", v)
	case <-time.After(2 * time.Second):
		t.Fatal("no reply to EVAL")
	}
	require.Eventually(t, func() bool { return frontend.addedCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	// stopping the debugger ends both sessions
	debugger.Stop()
	for _, done := range []chan error{luaDone, frontendDone} {
		select {
		case err := <-done:
			assert.ErrorIs(t, err, ErrSessionEnded)
		case <-time.After(2 * time.Second):
			t.Fatal("Serve did not return")
		}
	}
}

// TestMalformedNoticeOverTCP checks that an undecodable notice closes the
// connection on both ends
func TestMalformedNoticeOverTCP(t *testing.T) {
	port := freePort(t)
	debuggee := engine.NewEngine(testConfig())
	debugger := engine.NewEngine(testConfig())
	t.Cleanup(func() {
		debugger.Stop()
		debuggee.Stop()
	})

	serverErr := make(chan error, 1)
	go func() { serverErr <- debuggee.StartAsServer(port, 3, 2*time.Second) }()
	require.NoError(t, debugger.StartAsClient("127.0.0.1", strconv.Itoa(port), 2*time.Second))
	require.NoError(t, <-serverErr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	frontend := &recordingFrontend{}
	done := make(chan error, 1)
	go func() { done <- NewCommandServer(debugger, NewFrontendAdapter(frontend)).Serve(ctx) }()

	require.NoError(t, debuggee.Send(common.CmdTChangedState, []byte{9, 9, 9}))

	require.Eventually(t, func() bool {
		return !debugger.IsConnected() && !debuggee.IsConnected()
	}, 2*time.Second, 5*time.Millisecond)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSessionEnded)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}
