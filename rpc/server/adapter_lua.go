package server

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/rDBG/lib/breakpoint"
	"github.com/ValentinKolb/rDBG/lib/source"
	"github.com/ValentinKolb/rDBG/rpc/common"
	"github.com/ValentinKolb/rDBG/rpc/serializer"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	lua "github.com/yuin/gopher-lua"
	"path/filepath"
	"sort"
	"strings"
)

// maxStackDepth bounds walks over the Lua call stack
const maxStackDepth = 256

// stepMode is the pending step command of a stopped script
type stepMode int

const (
	stepNone stepMode = iota
	stepInto
	stepOver
	stepReturn
)

// NewLuaAdapter creates a debuggee adapter with a fresh Lua state.
// Only the base, table, string and math libraries are opened.
func NewLuaAdapter(peerID int32) *LuaAdapter {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	a := &LuaAdapter{
		L:           L,
		peerID:      peerID,
		sources:     source.NewStore(),
		breakpoints: breakpoint.NewList(peerID),
		chunks:      make(map[string]*lua.LFunction),
		refs:        xsync.NewMapOf[string, *lua.LTable](),
		ctx:         context.Background(),
	}

	L.SetGlobal("print", L.NewFunction(a.luaPrint))
	L.SetGlobal("rdbg", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"pause": a.luaPause,
		"trace": a.luaTrace,
	}))
	return a
}

// LuaAdapter is a debuggee running scripts in an embedded gopher-lua state.
//
// gopher-lua has no line hooks, so a script stops where it calls
// rdbg.pause() (always) or rdbg.trace() (on an enabled breakpoint of the
// calling line, or after a STEP_* command). While stopped, the adapter serves
// commands in a nested loop until RESUME or STEP_* arrives.
//
// The Lua state is not goroutine-safe: Load, Announce, Run, Handle and the
// Serve call driving it must all happen on one goroutine.
type LuaAdapter struct {
	L           *lua.LState
	peerID      int32
	sources     source.IStore
	breakpoints breakpoint.IBreakpointList
	chunks      map[string]*lua.LFunction
	// refs maps the Ref of a listed table to the table, valid until the script resumes
	refs *xsync.MapOf[string, *lua.LTable]

	ctx     context.Context
	server  *CommandServer
	session ISession

	running    bool
	isBreak    bool
	evaluating bool
	step       stepMode
	stepDepth  int
	// abort is the error that ended the nested loop, returned by Run
	abort error
}

// Sources returns the loaded sources
func (a *LuaAdapter) Sources() source.IStore { return a.sources }

// Breakpoints returns the breakpoints set by the debugger
func (a *LuaAdapter) Breakpoints() breakpoint.IBreakpointList { return a.breakpoints }

// Close releases the Lua state
func (a *LuaAdapter) Close() { a.L.Close() }

// --------------------------------------------------------------------------
// Scripts
// --------------------------------------------------------------------------

// Load compiles code and stores it as source key. An empty key is replaced
// by a generated one, which is returned.
func (a *LuaAdapter) Load(key, path, code string) (string, error) {
	if key == "" {
		key = uuid.NewString()
	}
	fn, err := a.L.Load(strings.NewReader(code), key)
	if err != nil {
		return "", fmt.Errorf("failed to compile %s: %w", key, err)
	}

	title := key
	if path != "" {
		title = filepath.Base(path)
	}
	a.chunks[key] = fn
	a.sources.Add(source.Source{Key: key, Title: title, Path: path, Lines: source.SplitLines(code)})
	return key, nil
}

// Announce sends every loaded source, the source generation and the
// breakpoint list to the debugger
func (a *LuaAdapter) Announce(session ISession) error {
	a.session = session
	for _, key := range a.sources.Keys() {
		src, ok := a.sources.Get(key)
		if !ok {
			continue
		}
		if err := session.AddedSource(src); err != nil {
			return err
		}
	}
	if err := session.SetUpdateCount(a.sources.Generation()); err != nil {
		return err
	}
	return session.ChangedBreakpointList(a.breakpoints.All())
}

// Run executes the source key. Whenever the script stops, commands are
// served through server until the debugger resumes it.
func (a *LuaAdapter) Run(ctx context.Context, server *CommandServer, key string) error {
	fn, ok := a.chunks[key]
	if !ok {
		return fmt.Errorf("unknown source %q", key)
	}

	a.ctx = ctx
	a.server = server
	a.session = server.engine
	a.running = true
	a.abort = nil
	a.L.SetContext(ctx)
	defer func() {
		a.L.RemoveContext()
		a.running = false
		a.isBreak = false
		a.step = stepNone
		a.refs.Clear()
	}()

	top := a.L.GetTop()
	a.L.Push(fn)
	err := a.L.PCall(0, 0, nil)
	a.L.SetTop(top)

	if a.abort != nil {
		return a.abort
	}
	if err != nil {
		a.outputLog(serializer.LogTypeError, err.Error(), key, 0)
		return fmt.Errorf("script %s failed: %w", key, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Lua functions
// --------------------------------------------------------------------------

func (a *LuaAdapter) luaPrint(L *lua.LState) int {
	parts := make([]string, L.GetTop())
	for i := range parts {
		parts[i] = L.ToStringMeta(L.Get(i + 1)).String()
	}
	key, line := a.where(1)
	a.outputLog(serializer.LogTypeMessage, strings.Join(parts, "\t"), key, line)
	return 0
}

func (a *LuaAdapter) luaPause(L *lua.LState) int {
	a.stop(L)
	return 0
}

func (a *LuaAdapter) luaTrace(L *lua.LState) int {
	if a.stepDone() || a.breakpointHit() {
		a.stop(L)
	}
	return 0
}

// stop holds the script and serves commands until it is resumed
func (a *LuaAdapter) stop(L *lua.LState) {
	if a.server == nil || a.evaluating || a.isBreak {
		return
	}

	key, line := a.where(1)
	a.isBreak = true
	a.step = stepNone
	Logger.Infof("script stopped at %s:%d", key, line)

	a.sendChangedState(true)
	err := a.session.UpdateSource(key, line, a.sources.Generation(), func(err error) {
		if err != nil {
			Logger.Warningf("debugger did not show %s:%d: %v", key, line, err)
		}
	})
	if err != nil {
		Logger.Warningf("could not send position: %v", err)
	}

	err = a.server.ServeWhile(a.ctx, func() bool { return a.isBreak })
	a.refs.Clear()
	if err != nil {
		a.abort = err
		L.RaiseError("debug session aborted: %v", err)
	}
}

// stepDone reports whether a pending step ends at the current trace call
func (a *LuaAdapter) stepDone() bool {
	switch a.step {
	case stepInto:
		return true
	case stepOver:
		return a.depth() <= a.stepDepth
	case stepReturn:
		return a.depth() < a.stepDepth
	default:
		return false
	}
}

// breakpointHit reports whether an enabled breakpoint matches the calling line
func (a *LuaAdapter) breakpointHit() bool {
	key, line := a.where(1)
	bp, ok := a.breakpoints.Find(key, line)
	if !ok || !bp.Enabled {
		return false
	}
	if bp.Condition == "" {
		return true
	}
	v, err := a.eval(bp.Condition, 0)
	if err != nil {
		a.outputLog(serializer.LogTypeWarning, fmt.Sprintf("breakpoint %s: %v", bp, err), key, line)
		return true
	}
	return lua.LVAsBool(v)
}

// --------------------------------------------------------------------------
// Command handling
// --------------------------------------------------------------------------

func (a *LuaAdapter) Handle(cmd common.Command, session ISession) {
	a.session = session

	switch cmd.Type() {
	case common.CmdTStartConnection, common.CmdTEndConnection:
		Logger.Infof("session control %s", cmd)

	case common.CmdTEval:
		var p serializer.Eval
		if !a.decode(cmd, &p) {
			a.respondFailed(cmd)
			return
		}
		value, err := a.eval(p.Expr, p.Frame.Level)
		if err != nil {
			a.respond(cmd, session.ResponseString(cmd, err.Error()))
			return
		}
		a.respond(cmd, session.ResponseString(cmd, a.valueString(value)))

	case common.CmdTRequestEvalVarList:
		var p serializer.RequestEvalVarList
		if !a.decode(cmd, &p) {
			a.respondFailed(cmd)
			return
		}
		vars := make([]serializer.Var, 0, len(p.Exprs))
		for _, expr := range p.Exprs {
			value, err := a.eval(expr, p.Frame.Level)
			if err != nil {
				vars = append(vars, serializer.Var{Name: expr, Value: err.Error(), ValueType: "error"})
				continue
			}
			vars = append(vars, a.toVar(expr, value))
		}
		a.respond(cmd, session.ResponseVarList(cmd, vars))

	case common.CmdTRequestLocalVarList:
		var p serializer.RequestLocalVarList
		if !a.decode(cmd, &p) {
			a.respondFailed(cmd)
			return
		}
		vars, ok := a.locals(p.Frame.Level)
		if !ok {
			a.respondFailed(cmd)
			return
		}
		a.respond(cmd, session.ResponseVarList(cmd, vars))

	case common.CmdTRequestEnvironVarList:
		var p serializer.RequestLocalVarList
		if !a.decode(cmd, &p) {
			a.respondFailed(cmd)
			return
		}
		env, ok := a.environ(p.Frame.Level)
		if !ok {
			a.respondFailed(cmd)
			return
		}
		a.respond(cmd, session.ResponseVarList(cmd, a.tableVars(env)))

	case common.CmdTRequestGlobalVarList:
		a.respond(cmd, session.ResponseVarList(cmd, a.tableVars(a.L.G.Global)))

	case common.CmdTRequestRegistryVarList:
		a.respond(cmd, session.ResponseVarList(cmd, a.tableVars(a.L.G.Registry)))

	case common.CmdTRequestFieldsVarList:
		var p serializer.RequestFieldsVarList
		if !a.decode(cmd, &p) {
			a.respondFailed(cmd)
			return
		}
		tb, ok := a.refs.Load(p.Var.Ref)
		if !ok {
			a.respondFailed(cmd)
			return
		}
		a.respond(cmd, session.ResponseVarList(cmd, a.tableVars(tb)))

	case common.CmdTRequestStackList:
		a.respond(cmd, session.ResponseBacktraceList(cmd, a.backtrace()))

	case common.CmdTSetBreakpoint, common.CmdTRemoveBreakpoint:
		var p serializer.BreakpointPayload
		if !a.decode(cmd, &p) {
			return
		}
		bp := p.Breakpoint
		bp.PeerID = a.peerID
		if cmd.Type() == common.CmdTSetBreakpoint {
			a.breakpoints.Set(bp)
		} else {
			a.breakpoints.Remove(bp)
		}
		a.respond(cmd, session.ChangedBreakpointList(a.breakpoints.All()))

	case common.CmdTBreak:
		// the script is never running while a command is handled
		a.sendChangedState(true)

	case common.CmdTResume:
		a.resume(stepNone)

	case common.CmdTStepInto:
		a.resume(stepInto)

	case common.CmdTStepOver:
		a.resume(stepOver)

	case common.CmdTStepReturn:
		a.resume(stepReturn)

	case common.CmdTSaveSource:
		var p serializer.SaveSource
		if a.decode(cmd, &p) {
			a.saveSource(p.Key, source.TrimLines(p.Lines))
		}

	default:
		if cmd.Type().IsRequest() {
			a.respondFailed(cmd)
			return
		}
		Logger.Debugf("ignoring %s", cmd)
	}
}

func (a *LuaAdapter) resume(mode stepMode) {
	if a.isBreak {
		a.step = mode
		a.stepDepth = a.depth()
	}
	a.isBreak = false
	a.sendChangedState(false)
}

// saveSource replaces the lines of key and recompiles it for the next Run
func (a *LuaAdapter) saveSource(key string, lines []string) {
	gen, ok := a.sources.Update(key, lines)
	if !ok {
		Logger.Warningf("cannot save unknown source %q", key)
		return
	}
	if fn, err := a.L.Load(strings.NewReader(strings.Join(lines, "\n")), key); err != nil {
		a.outputLog(serializer.LogTypeError, err.Error(), key, 0)
	} else {
		a.chunks[key] = fn
	}

	if err := a.session.SetUpdateCount(gen); err != nil {
		Logger.Warningf("could not send update count: %v", err)
	}
	if err := a.session.ForceUpdateSource(); err != nil {
		Logger.Warningf("could not request redraw: %v", err)
	}
}

// --------------------------------------------------------------------------
// Inspection
// --------------------------------------------------------------------------

// frame returns the call frame level of the script, 0 is the innermost
// Lua function. While the script runs, level 0 of the Lua stack is the
// rdbg function that stopped it.
func (a *LuaAdapter) frame(level int32) (*lua.Debug, bool) {
	if level < 0 {
		return nil, false
	}
	base := 0
	if a.running {
		base = 1
	}
	return a.L.GetStack(base + int(level))
}

// where returns source key and line of the given Lua stack level
func (a *LuaAdapter) where(level int) (string, int32) {
	dbg, ok := a.L.GetStack(level)
	if !ok {
		return "", 0
	}
	if _, err := a.L.GetInfo("Sl", dbg, lua.LNil); err != nil {
		return "", 0
	}
	return dbg.Source, int32(dbg.CurrentLine)
}

// depth counts the frames below the rdbg function that is currently called
func (a *LuaAdapter) depth() int {
	n := 0
	for n < maxStackDepth {
		if _, ok := a.L.GetStack(n + 1); !ok {
			break
		}
		n++
	}
	return n
}

func (a *LuaAdapter) backtrace() []serializer.Backtrace {
	var result []serializer.Backtrace
	for level := int32(0); level < maxStackDepth; level++ {
		dbg, ok := a.frame(level)
		if !ok {
			return result
		}
		if _, err := a.L.GetInfo("nSl", dbg, lua.LNil); err != nil {
			return result
		}
		result = append(result, serializer.Backtrace{
			Name:  dbg.Name,
			Key:   dbg.Source,
			Line:  int32(dbg.CurrentLine),
			Frame: serializer.StackFrame{Level: level},
		})
	}
	return result
}

func (a *LuaAdapter) locals(level int32) ([]serializer.Var, bool) {
	dbg, ok := a.frame(level)
	if !ok {
		return nil, false
	}
	var vars []serializer.Var
	for i := 1; ; i++ {
		name, value := a.L.GetLocal(dbg, i)
		if name == "" {
			break
		}
		if strings.HasPrefix(name, "(") {
			continue // temporaries
		}
		vars = append(vars, a.toVar(name, value))
	}
	return vars, true
}

func (a *LuaAdapter) environ(level int32) (*lua.LTable, bool) {
	dbg, ok := a.frame(level)
	if !ok {
		return nil, false
	}
	fn, err := a.L.GetInfo("f", dbg, lua.LNil)
	if err != nil {
		return nil, false
	}
	f, ok := fn.(*lua.LFunction)
	if !ok || f.Env == nil {
		return nil, false
	}
	return f.Env, true
}

// eval evaluates expr with the locals of frame level visible. Global reads
// and writes go to the global table, assignments to locals are not written back.
func (a *LuaAdapter) eval(expr string, level int32) (lua.LValue, error) {
	fn, err := a.L.LoadString("return " + expr)
	if err != nil {
		if fn, err = a.L.LoadString(expr); err != nil {
			return lua.LNil, err
		}
	}
	fn.Env = a.frameEnv(level)

	a.evaluating = true
	defer func() { a.evaluating = false }()

	top := a.L.GetTop()
	a.L.Push(fn)
	if err := a.L.PCall(0, 1, nil); err != nil {
		a.L.SetTop(top)
		return lua.LNil, err
	}
	value := a.L.Get(-1)
	a.L.SetTop(top)
	return value, nil
}

func (a *LuaAdapter) frameEnv(level int32) *lua.LTable {
	env := a.L.NewTable()
	if vars, ok := a.frame(level); ok {
		for i := 1; ; i++ {
			name, value := a.L.GetLocal(vars, i)
			if name == "" {
				break
			}
			if !strings.HasPrefix(name, "(") {
				env.RawSetString(name, value)
			}
		}
	}

	mt := a.L.NewTable()
	mt.RawSetString("__index", a.L.G.Global)
	mt.RawSetString("__newindex", a.L.G.Global)
	a.L.SetMetatable(env, mt)
	return env
}

func (a *LuaAdapter) tableVars(tb *lua.LTable) []serializer.Var {
	var vars []serializer.Var
	tb.ForEach(func(k, v lua.LValue) {
		vars = append(vars, a.toVar(k.String(), v))
	})
	sort.Slice(vars, func(i, j int) bool { return vars[i].Name < vars[j].Name })
	return vars
}

// toVar lists value, tables get a Ref to request their fields
func (a *LuaAdapter) toVar(name string, value lua.LValue) serializer.Var {
	v := serializer.Var{
		Name:      name,
		Value:     a.valueString(value),
		ValueType: value.Type().String(),
	}
	if tb, ok := value.(*lua.LTable); ok {
		v.HasFields = true
		v.Ref = uuid.NewString()
		a.refs.Store(v.Ref, tb)
	}
	return v
}

func (a *LuaAdapter) valueString(value lua.LValue) string {
	if s, ok := value.(lua.LString); ok {
		return fmt.Sprintf("%q", string(s))
	}
	return value.String()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// decode reports a payload that cannot be read as protocol error, which closes the connection
func (a *LuaAdapter) decode(cmd common.Command, p serializer.IDecoder) bool {
	if err := serializer.Unmarshal(cmd.Payload, p); err != nil {
		a.session.ProtocolError(cmd, err)
		return false
	}
	return true
}

func (a *LuaAdapter) respond(cmd common.Command, err error) {
	if err != nil {
		Logger.Warningf("could not answer %s: %v", cmd, err)
	}
}

func (a *LuaAdapter) respondFailed(cmd common.Command) {
	a.respond(cmd, a.session.ResponseFailed(cmd))
}

func (a *LuaAdapter) sendChangedState(isBreak bool) {
	if a.session == nil {
		return
	}
	if err := a.session.ChangedState(isBreak); err != nil {
		Logger.Warningf("could not send state: %v", err)
	}
}

func (a *LuaAdapter) outputLog(logType serializer.LogType, message, key string, line int32) {
	if a.session == nil {
		Logger.Infof("%s", message)
		return
	}
	if err := a.session.OutputLog(logType, message, key, line); err != nil {
		Logger.Warningf("could not forward log: %v", err)
	}
}
