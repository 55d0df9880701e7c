package server

import (
	"context"
	"github.com/ValentinKolb/rDBG/lib/breakpoint"
	"github.com/ValentinKolb/rDBG/lib/source"
	"github.com/ValentinKolb/rDBG/rpc/common"
	"github.com/ValentinKolb/rDBG/rpc/serializer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func newTestLuaAdapter(t *testing.T, code string) (*LuaAdapter, string) {
	t.Helper()
	a := NewLuaAdapter(7)
	t.Cleanup(a.Close)
	key, err := a.Load("demo", "/tmp/demo.lua", code)
	require.NoError(t, err)
	return a, key
}

// varsByName indexes a variable list
func varsByName(vars []serializer.Var) map[string]serializer.Var {
	result := make(map[string]serializer.Var, len(vars))
	for _, v := range vars {
		result[v.Name] = v
	}
	return result
}

const pauseScript = `local answer = 41
local t = {name = "rdbg"}
function inc(x)
  local y = x + 1
  rdbg.pause()
  return y
end
result = inc(answer)
`

func TestLuaPauseInspection(t *testing.T) {
	a, key := newTestLuaAdapter(t, pauseScript)

	fake := newFakeEngine(
		newCommand(t, common.CmdTEval, serializer.Eval{Expr: "y * 2", Frame: serializer.StackFrame{Level: 0}}),
		newCommand(t, common.CmdTEval, serializer.Eval{Expr: "answer + 1", Frame: serializer.StackFrame{Level: 1}}),
		newCommand(t, common.CmdTRequestLocalVarList, serializer.RequestLocalVarList{Frame: serializer.StackFrame{Level: 0}}),
		newCommand(t, common.CmdTRequestLocalVarList, serializer.RequestLocalVarList{Frame: serializer.StackFrame{Level: 1}}),
		newCommand(t, common.CmdTRequestStackList, nil),
		newCommand(t, common.CmdTRequestLocalVarList, serializer.RequestLocalVarList{Frame: serializer.StackFrame{Level: 9}}),
		newCommand(t, common.CmdTResume, nil),
	)
	s := NewCommandServer(fake, a)

	require.NoError(t, a.Run(context.Background(), s, key))
	assert.Equal(t, "42", a.L.GetGlobal("result").String())

	// stopping announces the state and the position
	states := fake.ofType(common.CmdTChangedState)
	require.Len(t, states, 2)
	assert.Equal(t, true, states[0].Value)
	assert.Equal(t, false, states[1].Value, "RESUME is answered with CHANGED_STATE")
	updates := fake.ofType(common.CmdTUpdateSource)
	require.Len(t, updates, 1)
	assert.Equal(t, serializer.UpdateSource{Key: "demo", Line: 5, UpdateCount: a.Sources().Generation()}, updates[0].Value)

	evals := fake.ofType(common.CmdTValueString)
	require.Len(t, evals, 2)
	assert.Equal(t, "84", evals[0].Value)
	assert.Equal(t, "42", evals[1].Value, "frame 1 sees the locals of the main chunk")

	lists := fake.ofType(common.CmdTValueVarList)
	require.Len(t, lists, 2)
	inner := varsByName(lists[0].Value.([]serializer.Var))
	assert.Equal(t, "41", inner["x"].Value)
	assert.Equal(t, "42", inner["y"].Value)
	assert.Equal(t, "number", inner["y"].ValueType)
	outer := varsByName(lists[1].Value.([]serializer.Var))
	assert.Equal(t, "41", outer["answer"].Value)
	assert.True(t, outer["t"].HasFields)
	assert.NotEmpty(t, outer["t"].Ref)

	stacks := fake.ofType(common.CmdTValueBacktraceList)
	require.Len(t, stacks, 1)
	bts := stacks[0].Value.([]serializer.Backtrace)
	require.Len(t, bts, 2)
	assert.Equal(t, "inc", bts[0].Name)
	assert.Equal(t, "demo", bts[0].Key)
	assert.Equal(t, int32(5), bts[0].Line)
	assert.Equal(t, int32(8), bts[1].Line)
	assert.Equal(t, int32(1), bts[1].Frame.Level)

	require.Len(t, fake.ofType(common.CmdTFailed), 1, "a frame beyond the stack is rejected")
}

func TestLuaBreakpointCondition(t *testing.T) {
	a, key := newTestLuaAdapter(t, `total = 0
for i = 1, 3 do
  total = total + i
  rdbg.trace()
end
`)

	fake := newFakeEngine()
	a.Handle(newCommand(t, common.CmdTSetBreakpoint, serializer.BreakpointPayload{
		Breakpoint: breakpoint.Breakpoint{Key: "demo", Line: 4, Condition: "i == 2", Enabled: true},
	}), fake)

	lists := fake.ofType(common.CmdTChangedBreakpointList)
	require.Len(t, lists, 1)
	bps := lists[0].Value.([]breakpoint.Breakpoint)
	require.Len(t, bps, 1)
	assert.Equal(t, int32(7), bps[0].PeerID)

	fake.queue = []common.Command{
		newCommand(t, common.CmdTEval, serializer.Eval{Expr: "i"}),
		newCommand(t, common.CmdTResume, nil),
	}
	require.NoError(t, a.Run(context.Background(), NewCommandServer(fake, a), key))

	assert.Equal(t, "6", a.L.GetGlobal("total").String())
	updates := fake.ofType(common.CmdTUpdateSource)
	require.Len(t, updates, 1, "the script stops once")
	assert.Equal(t, int32(4), updates[0].Value.(serializer.UpdateSource).Line)
	evals := fake.ofType(common.CmdTValueString)
	require.Len(t, evals, 1)
	assert.Equal(t, "2", evals[0].Value)

	// removing the breakpoint lets the script run through
	a.Handle(newCommand(t, common.CmdTRemoveBreakpoint, serializer.BreakpointPayload{
		Breakpoint: breakpoint.Breakpoint{Key: "demo", Line: 4},
	}), fake)
	assert.Equal(t, 0, a.Breakpoints().Len())
	require.NoError(t, a.Run(context.Background(), NewCommandServer(fake, a), key))
	assert.Len(t, fake.ofType(common.CmdTUpdateSource), 1)
}

func TestLuaStepOver(t *testing.T) {
	a, key := newTestLuaAdapter(t, `function helper()
  rdbg.trace()
end
rdbg.pause()
helper()
rdbg.trace()
`)

	fake := newFakeEngine(
		newCommand(t, common.CmdTStepOver, nil),
		newCommand(t, common.CmdTResume, nil),
	)
	require.NoError(t, a.Run(context.Background(), NewCommandServer(fake, a), key))

	updates := fake.ofType(common.CmdTUpdateSource)
	require.Len(t, updates, 2)
	assert.Equal(t, int32(4), updates[0].Value.(serializer.UpdateSource).Line)
	assert.Equal(t, int32(6), updates[1].Value.(serializer.UpdateSource).Line, "the trace inside helper is stepped over")
}

func TestLuaSessionEndAbortsScript(t *testing.T) {
	a, key := newTestLuaAdapter(t, "rdbg.pause()\nreached = true\n")

	err := a.Run(context.Background(), NewCommandServer(newFakeEngine(), a), key)
	assert.ErrorIs(t, err, ErrSessionEnded)
	assert.Equal(t, "nil", a.L.GetGlobal("reached").String())
}

func TestLuaGlobalsAndFields(t *testing.T) {
	a, key := newTestLuaAdapter(t, `config = {depth = 3, name = "x"}
print("hello", 1)
`)
	fake := newFakeEngine()
	require.NoError(t, a.Run(context.Background(), NewCommandServer(fake, a), key))

	logs := fake.ofType(common.CmdTOutputLog)
	require.Len(t, logs, 1)
	assert.Equal(t, serializer.OutputLog{Type: serializer.LogTypeMessage, Message: "hello\t1", Key: "demo", Line: 2}, logs[0].Value)

	a.Handle(newCommand(t, common.CmdTRequestGlobalVarList, nil), fake)
	globals := varsByName(fake.ofType(common.CmdTValueVarList)[0].Value.([]serializer.Var))
	require.Contains(t, globals, "config")
	require.Contains(t, globals, "rdbg")
	cfg := globals["config"]
	assert.True(t, cfg.HasFields)
	assert.Equal(t, "table", cfg.ValueType)

	a.Handle(newCommand(t, common.CmdTRequestFieldsVarList, serializer.RequestFieldsVarList{Var: cfg}), fake)
	fields := fake.ofType(common.CmdTValueVarList)[1].Value.([]serializer.Var)
	require.Len(t, fields, 2)
	assert.Equal(t, serializer.Var{Name: "depth", Value: "3", ValueType: "number"}, fields[0])
	assert.Equal(t, `"x"`, fields[1].Value)

	a.Handle(newCommand(t, common.CmdTRequestFieldsVarList, serializer.RequestFieldsVarList{Var: serializer.Var{Ref: "gone"}}), fake)
	assert.Len(t, fake.ofType(common.CmdTFailed), 1)

	a.Handle(newCommand(t, common.CmdTRequestEvalVarList, serializer.RequestEvalVarList{Exprs: []string{"config.depth + 1", "+"}}), fake)
	evals := fake.ofType(common.CmdTValueVarList)[2].Value.([]serializer.Var)
	require.Len(t, evals, 2)
	assert.Equal(t, "4", evals[0].Value)
	assert.Equal(t, "error", evals[1].ValueType)

	a.Handle(newCommand(t, common.CmdTRequestRegistryVarList, nil), fake)
	assert.Len(t, fake.ofType(common.CmdTValueVarList), 4)

	// nothing runs, so there is no stack
	a.Handle(newCommand(t, common.CmdTRequestStackList, nil), fake)
	assert.Empty(t, fake.ofType(common.CmdTValueBacktraceList)[0].Value)
}

func TestLuaSaveSource(t *testing.T) {
	a, key := newTestLuaAdapter(t, "x = 1\n")
	before := a.Sources().Generation()

	fake := newFakeEngine()
	a.Handle(newCommand(t, common.CmdTSaveSource, serializer.SaveSource{
		Key:   key,
		Lines: []string{"x = 2\r\n", "y = 3\n", ""},
	}), fake)

	src, ok := a.Sources().Get(key)
	require.True(t, ok)
	assert.Equal(t, []string{"x = 2", "y = 3"}, src.Lines)

	counts := fake.ofType(common.CmdTSetUpdateCount)
	require.Len(t, counts, 1)
	assert.Equal(t, before+1, counts[0].Value)
	assert.Len(t, fake.ofType(common.CmdTForceUpdateSource), 1)

	// the saved text is what runs next
	require.NoError(t, a.Run(context.Background(), NewCommandServer(fake, a), key))
	assert.Equal(t, "3", a.L.GetGlobal("y").String())
}

// saving trims the lines once, only one trailing empty line is dropped
func TestLuaSaveSourceTrailingLines(t *testing.T) {
	a, key := newTestLuaAdapter(t, "x = 1\n")

	fake := newFakeEngine()
	a.Handle(newCommand(t, common.CmdTSaveSource, serializer.SaveSource{
		Key:   key,
		Lines: []string{"x = 1\n", "\n", "\n"},
	}), fake)

	src, ok := a.Sources().Get(key)
	require.True(t, ok)
	assert.Equal(t, []string{"x = 1", ""}, src.Lines)
}

func TestLuaMalformedRequest(t *testing.T) {
	a, _ := newTestLuaAdapter(t, "x = 1\n")

	fake := newFakeEngine()
	eval := common.NewCommand(common.Header{Type: common.CmdTEval, PeerID: 7, CommandID: 4}, []byte{1, 2})
	a.Handle(eval, fake)

	require.Len(t, fake.protocolErrors, 1)
	assert.Equal(t, eval.Header, fake.protocolErrors[0].Header)
	failed := fake.ofType(common.CmdTFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, eval.Header, failed[0].Request.Header)
}

func TestLuaAnnounceAndUnknownRequest(t *testing.T) {
	a, _ := newTestLuaAdapter(t, "x = 1\n")
	anon, err := a.Load("", "", "y = 2\n")
	require.NoError(t, err)
	assert.NotEmpty(t, anon)

	_, err = a.Load("broken", "", "x = = 1")
	assert.Error(t, err)

	fake := newFakeEngine()
	require.NoError(t, a.Announce(fake))
	added := fake.ofType(common.CmdTAddedSource)
	require.Len(t, added, 2)
	keys := []string{added[0].Value.(source.Source).Key, added[1].Value.(source.Source).Key}
	assert.Contains(t, keys, "demo")
	assert.Contains(t, keys, anon)
	src, ok := a.Sources().Get("demo")
	require.True(t, ok)
	assert.Equal(t, "demo.lua", src.Title)
	assert.Equal(t, "/tmp/demo.lua", src.Path)
	assert.Len(t, fake.ofType(common.CmdTSetUpdateCount), 1)
	assert.Len(t, fake.ofType(common.CmdTChangedBreakpointList), 1)

	update := newCommand(t, common.CmdTUpdateSource, serializer.UpdateSource{Key: "demo", Line: 1})
	a.Handle(update, fake)
	failed := fake.ofType(common.CmdTFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, update.Header, failed[0].Request.Header)
}
