package attach

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/rDBG/lib/breakpoint"
	"github.com/ValentinKolb/rDBG/lib/source"
	"github.com/ValentinKolb/rDBG/rpc/engine"
	"github.com/ValentinKolb/rDBG/rpc/serializer"
	"github.com/ValentinKolb/rDBG/rpc/server"
	"io"
	"strconv"
	"strings"
	"sync"
)

// debugger is the part of an engine the console drives
type debugger interface {
	Break() error
	Resume() error
	StepInto() error
	StepOver() error
	StepReturn() error
	Eval(expr string, frame serializer.StackFrame, callback engine.StringCallback) error
	RequestFieldsVarList(v serializer.Var, callback engine.VarListCallback) error
	RequestLocalVarList(frame serializer.StackFrame, callback engine.VarListCallback) error
	RequestEnvironVarList(frame serializer.StackFrame, callback engine.VarListCallback) error
	RequestGlobalVarList(callback engine.VarListCallback) error
	RequestRegistryVarList(callback engine.VarListCallback) error
	RequestStackList(callback engine.BacktraceCallback) error
	SetBreakpoint(bp breakpoint.Breakpoint) error
	RemoveBreakpoint(bp breakpoint.Breakpoint) error
}

var _ debugger = (*engine.Engine)(nil)

var errQuit = errors.New("quit")

const consoleHelp = `commands:
  break                 stop the script at the next trace
  continue, c           resume the script
  step, s               step into
  next, n               step over
  finish                step out of the current function
  p, eval <expr>        evaluate an expression in the current frame
  frame <n>             select the frame used by p, locals and environ
  locals [n]            list the locals of a frame
  environ [n]           list the environment of a frame
  globals               list the global variables
  registry              list the registry
  fields <name>         list the fields of the last listed variable <name>
  bt, stack             print the call stack
  b <[key:]line>        toggle a breakpoint
  breakpoints           list the breakpoints
  list [key]            print a source
  sources               list the sources
  quit, q               leave the session`

// console prints the notices of a debuggee and turns input lines into requests.
// Its state is shared between the input loop and the goroutine serving the session.
type console struct {
	mu  sync.Mutex
	out io.Writer

	dbg     debugger
	adapter *server.FrontendAdapter

	isBreak bool
	key     string
	line    int32
	frame   int32
	vars    map[string]serializer.Var
	ended   bool
}

var _ server.IFrontend = (*console)(nil)

func newConsole(out io.Writer) *console {
	return &console{out: out, vars: make(map[string]serializer.Var)}
}

// attach connects the console to a session. adapter must be created with the console as frontend.
func (c *console) attach(dbg debugger, adapter *server.FrontendAdapter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dbg = dbg
	c.adapter = adapter
}

func (c *console) printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.printfLocked(format, args...)
}

func (c *console) printfLocked(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}

// --------------------------------------------------------------------------
// Notices of the debuggee
// --------------------------------------------------------------------------

func (c *console) OnChangedState(isBreak bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isBreak = isBreak
	if isBreak {
		c.printfLocked("-- stopped\n")
	} else {
		c.frame = 0
		c.printfLocked("-- running\n")
	}
}

func (c *console) OnUpdateSource(key string, line int32, _ uint32) {
	c.mu.Lock()
	c.key = key
	c.line = line
	c.mu.Unlock()
	c.printf("%s\n", c.sourceLine(key, line))
}

func (c *console) OnForceUpdateSource() {
	c.printf("-- sources changed\n")
}

func (c *console) OnAddedSource(src source.Source) {
	c.printf("-- source %s (%d lines)\n", src.Title, len(src.Lines))
}

func (c *console) OnChangedBreakpointList(bps []breakpoint.Breakpoint) {
	c.printf("-- %d breakpoint(s)\n", len(bps))
}

func (c *console) OnOutputLog(log serializer.OutputLog) {
	prefix := ""
	switch log.Type {
	case serializer.LogTypeWarning:
		prefix = "warning: "
	case serializer.LogTypeError:
		prefix = "error: "
	}
	if log.Key != "" {
		c.printf("[%s:%d] %s%s\n", c.title(log.Key), log.Line, prefix, log.Message)
		return
	}
	c.printf("%s%s\n", prefix, log.Message)
}

func (c *console) OnSetUpdateCount(uint32) {}

func (c *console) OnSessionEnded() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ended = true
	c.printfLocked("-- session ended\n")
}

// --------------------------------------------------------------------------
// Input
// --------------------------------------------------------------------------

// execute runs one input line. It returns errQuit if the user wants to leave.
func (c *console) execute(input string) error {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return nil
	}
	name, args := fields[0], fields[1:]
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(input), name))

	c.mu.Lock()
	dbg, ended := c.dbg, c.ended
	c.mu.Unlock()

	switch name {
	case "quit", "q", "exit":
		return errQuit
	case "help", "h", "?":
		c.printf("%s\n", consoleHelp)
		return nil
	case "sources":
		c.printSources()
		return nil
	case "list", "l":
		return c.printSource(args)
	case "breakpoints":
		c.printBreakpoints()
		return nil
	case "frame", "f":
		level, err := c.frameArg(args)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.frame = level
		c.mu.Unlock()
		return nil
	}

	if ended || dbg == nil {
		return errors.New("no session")
	}

	switch name {
	case "break":
		return dbg.Break()
	case "continue", "c":
		return dbg.Resume()
	case "step", "s":
		return dbg.StepInto()
	case "next", "n":
		return dbg.StepOver()
	case "finish":
		return dbg.StepReturn()
	case "p", "eval", "print":
		if rest == "" {
			return errors.New("missing expression")
		}
		return dbg.Eval(rest, c.currentFrame(), func(value string, err error) {
			if err != nil {
				c.printf("eval failed: %v\n", err)
				return
			}
			c.printf("%s\n", value)
		})
	case "locals":
		level, err := c.frameArg(args)
		if err != nil {
			return err
		}
		return dbg.RequestLocalVarList(serializer.StackFrame{Level: level}, c.printVars)
	case "environ", "env":
		level, err := c.frameArg(args)
		if err != nil {
			return err
		}
		return dbg.RequestEnvironVarList(serializer.StackFrame{Level: level}, c.printVars)
	case "globals":
		return dbg.RequestGlobalVarList(c.printVars)
	case "registry":
		return dbg.RequestRegistryVarList(c.printVars)
	case "fields":
		if len(args) != 1 {
			return errors.New("usage: fields <name>")
		}
		c.mu.Lock()
		v, ok := c.vars[args[0]]
		c.mu.Unlock()
		if !ok || !v.HasFields {
			return fmt.Errorf("no listed variable %q with fields", args[0])
		}
		return dbg.RequestFieldsVarList(v, c.printVars)
	case "bt", "stack", "where":
		return dbg.RequestStackList(c.printBacktrace)
	case "b", "break-at":
		if len(args) != 1 {
			return errors.New("usage: b <[key:]line>")
		}
		return c.toggleBreakpoint(dbg, args[0])
	}
	return fmt.Errorf("unknown command %q (try help)", name)
}

// frameArg parses an optional frame level, defaulting to the selected frame
func (c *console) frameArg(args []string) (int32, error) {
	if len(args) == 0 {
		return c.currentFrame().Level, nil
	}
	level, err := strconv.ParseInt(args[0], 10, 32)
	if err != nil || level < 0 {
		return 0, fmt.Errorf("invalid frame %q", args[0])
	}
	return int32(level), nil
}

func (c *console) currentFrame() serializer.StackFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return serializer.StackFrame{Level: c.frame}
}

func (c *console) toggleBreakpoint(dbg debugger, location string) error {
	c.mu.Lock()
	key, adapter := c.key, c.adapter
	c.mu.Unlock()

	lineStr := location
	if i := strings.LastIndex(location, ":"); i >= 0 {
		key = c.resolveKey(location[:i])
		lineStr = location[i+1:]
	}
	if key == "" {
		return errors.New("no current source, use b <key:line>")
	}
	line, err := strconv.ParseInt(lineStr, 10, 32)
	if err != nil || line < 1 {
		return fmt.Errorf("invalid line %q", lineStr)
	}

	bp := breakpoint.Breakpoint{Key: key, Line: int32(line), Enabled: true}
	if adapter != nil && adapter.Breakpoints().Has(key, int32(line)) {
		return dbg.RemoveBreakpoint(bp)
	}
	return dbg.SetBreakpoint(bp)
}

// --------------------------------------------------------------------------
// Output
// --------------------------------------------------------------------------

func (c *console) printVars(vars []serializer.Var, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.printfLocked("request failed: %v\n", err)
		return
	}
	if len(vars) == 0 {
		c.printfLocked("(none)\n")
		return
	}
	c.vars = make(map[string]serializer.Var, len(vars))
	for _, v := range vars {
		c.vars[v.Name] = v
		marker := ""
		if v.HasFields {
			marker = " +"
		}
		c.printfLocked("  %s = %s (%s)%s\n", v.Name, v.Value, v.ValueType, marker)
	}
}

func (c *console) printBacktrace(bts []serializer.Backtrace, err error) {
	if err != nil {
		c.printf("request failed: %v\n", err)
		return
	}
	if len(bts) == 0 {
		c.printf("(no stack)\n")
		return
	}
	c.mu.Lock()
	selected := c.frame
	c.mu.Unlock()
	for _, bt := range bts {
		marker := " "
		if bt.Frame.Level == selected {
			marker = ">"
		}
		name := bt.Name
		if name == "" {
			name = "?"
		}
		c.printf("%s#%d %s at %s:%d\n", marker, bt.Frame.Level, name, c.title(bt.Key), bt.Line)
	}
}

func (c *console) printSources() {
	store := c.store()
	if store == nil {
		return
	}
	for _, key := range store.Keys() {
		src, _ := store.Get(key)
		c.printf("  %s  %s (%s)\n", key, src.Title, src.Path)
	}
}

func (c *console) printSource(args []string) error {
	c.mu.Lock()
	key, line, adapter := c.key, c.line, c.adapter
	c.mu.Unlock()
	if len(args) > 0 {
		key = c.resolveKey(args[0])
	}
	if adapter == nil {
		return errors.New("no session")
	}
	src, ok := adapter.Sources().Get(key)
	if !ok {
		return fmt.Errorf("unknown source %q", key)
	}
	bps := adapter.Breakpoints()
	for i, text := range src.Lines {
		n := int32(i + 1)
		marker := "  "
		if bps.Has(key, n) {
			marker = "* "
		}
		if key == c.currentKey() && n == line {
			marker = "=>"
		}
		c.printf("%s%4d  %s\n", marker, n, text)
	}
	return nil
}

func (c *console) printBreakpoints() {
	c.mu.Lock()
	adapter := c.adapter
	c.mu.Unlock()
	if adapter == nil {
		return
	}
	for _, bp := range adapter.Breakpoints().All() {
		state := ""
		if !bp.Enabled {
			state = " (disabled)"
		}
		if bp.Condition != "" {
			state += " if " + bp.Condition
		}
		c.printf("  %s:%d%s\n", c.title(bp.Key), bp.Line, state)
	}
}

// sourceLine formats the position of a stop
func (c *console) sourceLine(key string, line int32) string {
	store := c.store()
	if store == nil {
		return fmt.Sprintf("%s:%d", key, line)
	}
	src, ok := store.Get(key)
	if !ok {
		return fmt.Sprintf("%s:%d", key, line)
	}
	return fmt.Sprintf("%s:%d  %s", src.Title, line, strings.TrimSpace(src.Line(line)))
}

// resolveKey accepts either a source key or a source title
func (c *console) resolveKey(name string) string {
	store := c.store()
	if store == nil {
		return name
	}
	if _, ok := store.Get(name); ok {
		return name
	}
	for _, key := range store.Keys() {
		if src, _ := store.Get(key); src.Title == name {
			return key
		}
	}
	return name
}

func (c *console) title(key string) string {
	if store := c.store(); store != nil {
		if src, ok := store.Get(key); ok && src.Title != "" {
			return src.Title
		}
	}
	return key
}

func (c *console) currentKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key
}

func (c *console) store() source.IStore {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.adapter == nil {
		return nil
	}
	return c.adapter.Sources()
}
