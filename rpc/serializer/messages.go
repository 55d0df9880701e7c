package serializer

import (
	"github.com/ValentinKolb/rDBG/lib/breakpoint"
	"github.com/ValentinKolb/rDBG/lib/source"
	"github.com/ValentinKolb/rDBG/rpc/common"
)

// --------------------------------------------------------------------------
// Shared value types
// --------------------------------------------------------------------------

// StackFrame selects a call level of the debuggee (0 = innermost function)
type StackFrame struct {
	Level int32
}

func (f StackFrame) encode(w *Writer)  { w.Int32(f.Level) }
func (f *StackFrame) decode(r *Reader) { f.Level = r.Int32() }

// Var is one entry of a variable list
type Var struct {
	Name      string
	Value     string
	ValueType string
	// HasFields is true if the value can be expanded with REQUEST_FIELDS_VARLIST
	HasFields bool
	// Ref is an opaque handle the debuggee uses to find the value again
	Ref string
}

func (v Var) encode(w *Writer) {
	w.String(v.Name)
	w.String(v.Value)
	w.String(v.ValueType)
	w.Bool(v.HasFields)
	w.String(v.Ref)
}

func (v *Var) decode(r *Reader) {
	v.Name = r.String()
	v.Value = r.String()
	v.ValueType = r.String()
	v.HasFields = r.Bool()
	v.Ref = r.String()
}

// Backtrace is one entry of a call stack
type Backtrace struct {
	Name  string
	Key   string
	Line  int32
	Frame StackFrame
}

func (b Backtrace) encode(w *Writer) {
	w.String(b.Name)
	w.String(b.Key)
	w.Int32(b.Line)
	b.Frame.encode(w)
}

func (b *Backtrace) decode(r *Reader) {
	b.Name = r.String()
	b.Key = r.String()
	b.Line = r.Int32()
	b.Frame.decode(r)
}

// LogType classifies an OUTPUT_LOG record
type LogType uint32

const (
	LogTypeMessage LogType = iota
	LogTypeWarning
	LogTypeError
	LogTypeRemote
)

func (t LogType) String() string {
	switch t {
	case LogTypeMessage:
		return "message"
	case LogTypeWarning:
		return "warning"
	case LogTypeError:
		return "error"
	case LogTypeRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Notices
// --------------------------------------------------------------------------

// ChangedState is the payload of CHANGED_STATE
type ChangedState struct {
	IsBreak bool
}

func (p ChangedState) Encode(w *Writer)  { w.Bool(p.IsBreak) }
func (p *ChangedState) Decode(r *Reader) { p.IsBreak = r.Bool() }

// UpdateSource is the payload of UPDATE_SOURCE
type UpdateSource struct {
	Key         string
	Line        int32
	UpdateCount uint32
}

func (p UpdateSource) Encode(w *Writer) {
	w.String(p.Key)
	w.Int32(p.Line)
	w.Uint32(p.UpdateCount)
}

func (p *UpdateSource) Decode(r *Reader) {
	p.Key = r.String()
	p.Line = r.Int32()
	p.UpdateCount = r.Uint32()
}

// AddedSource is the payload of ADDED_SOURCE
type AddedSource struct {
	Source source.Source
}

func (p AddedSource) Encode(w *Writer) {
	w.String(p.Source.Key)
	w.String(p.Source.Title)
	w.String(p.Source.Path)
	w.Strings(p.Source.Lines)
}

func (p *AddedSource) Decode(r *Reader) {
	p.Source.Key = r.String()
	p.Source.Title = r.String()
	p.Source.Path = r.String()
	p.Source.Lines = r.Strings()
}

// SaveSource is the payload of SAVE_SOURCE
type SaveSource struct {
	Key   string
	Lines []string
}

func (p SaveSource) Encode(w *Writer) {
	w.String(p.Key)
	w.Strings(p.Lines)
}

func (p *SaveSource) Decode(r *Reader) {
	p.Key = r.String()
	p.Lines = r.Strings()
}

// SetUpdateCount is the payload of SET_UPDATE_COUNT
type SetUpdateCount struct {
	Count uint32
}

func (p SetUpdateCount) Encode(w *Writer)  { w.Uint32(p.Count) }
func (p *SetUpdateCount) Decode(r *Reader) { p.Count = r.Uint32() }

// BreakpointPayload is the payload of SET_BREAKPOINT and REMOVE_BREAKPOINT
type BreakpointPayload struct {
	Breakpoint breakpoint.Breakpoint
}

func (p BreakpointPayload) Encode(w *Writer) {
	w.Int32(p.Breakpoint.PeerID)
	encodeBreakpoint(w, p.Breakpoint)
}

func (p *BreakpointPayload) Decode(r *Reader) {
	p.Breakpoint.PeerID = r.Int32()
	decodeBreakpoint(r, &p.Breakpoint)
}

// BreakpointListPayload is the payload of CHANGED_BREAKPOINT_LIST.
// All breakpoints belong to the session PeerID.
type BreakpointListPayload struct {
	PeerID      int32
	Breakpoints []breakpoint.Breakpoint
}

func (p BreakpointListPayload) Encode(w *Writer) {
	w.Int32(p.PeerID)
	if !w.Len(len(p.Breakpoints)) {
		return
	}
	for _, bp := range p.Breakpoints {
		encodeBreakpoint(w, bp)
	}
}

func (p *BreakpointListPayload) Decode(r *Reader) {
	p.PeerID = r.Int32()
	n := r.Count(breakpointMinSize)
	p.Breakpoints = nil
	if n == 0 {
		return
	}
	p.Breakpoints = make([]breakpoint.Breakpoint, n)
	for i := range p.Breakpoints {
		p.Breakpoints[i].PeerID = p.PeerID
		decodeBreakpoint(r, &p.Breakpoints[i])
	}
}

// breakpointMinSize is the encoded size of a breakpoint with empty strings
const breakpointMinSize = 4 + 4 + 4 + 1

func encodeBreakpoint(w *Writer, bp breakpoint.Breakpoint) {
	w.String(bp.Key)
	w.Int32(bp.Line)
	w.String(bp.Condition)
	w.Bool(bp.Enabled)
}

func decodeBreakpoint(r *Reader, bp *breakpoint.Breakpoint) {
	bp.Key = r.String()
	bp.Line = r.Int32()
	bp.Condition = r.String()
	bp.Enabled = r.Bool()
}

// OutputLog is the payload of OUTPUT_LOG
type OutputLog struct {
	Type    LogType
	Message string
	Key     string
	Line    int32
}

func (p OutputLog) Encode(w *Writer) {
	w.Uint32(uint32(p.Type))
	w.String(p.Message)
	w.String(p.Key)
	w.Int32(p.Line)
}

func (p *OutputLog) Decode(r *Reader) {
	p.Type = LogType(r.Uint32())
	p.Message = r.String()
	p.Key = r.String()
	p.Line = r.Int32()
}

// --------------------------------------------------------------------------
// Requests
// --------------------------------------------------------------------------

// Eval is the payload of EVAL
type Eval struct {
	Expr  string
	Frame StackFrame
}

func (p Eval) Encode(w *Writer) {
	w.String(p.Expr)
	p.Frame.encode(w)
}

func (p *Eval) Decode(r *Reader) {
	p.Expr = r.String()
	p.Frame.decode(r)
}

// RequestFieldsVarList is the payload of REQUEST_FIELDS_VARLIST
type RequestFieldsVarList struct {
	Var Var
}

func (p RequestFieldsVarList) Encode(w *Writer)  { p.Var.encode(w) }
func (p *RequestFieldsVarList) Decode(r *Reader) { p.Var.decode(r) }

// RequestLocalVarList is the payload of REQUEST_LOCAL_VARLIST and REQUEST_ENVIRON_VARLIST
type RequestLocalVarList struct {
	Frame StackFrame
}

func (p RequestLocalVarList) Encode(w *Writer)  { p.Frame.encode(w) }
func (p *RequestLocalVarList) Decode(r *Reader) { p.Frame.decode(r) }

// RequestEvalVarList is the payload of REQUEST_EVAL_VARLIST
type RequestEvalVarList struct {
	Exprs []string
	Frame StackFrame
}

func (p RequestEvalVarList) Encode(w *Writer) {
	w.Strings(p.Exprs)
	p.Frame.encode(w)
}

func (p *RequestEvalVarList) Decode(r *Reader) {
	p.Exprs = r.Strings()
	p.Frame.decode(r)
}

// Empty is the payload of commands without content (e.g. BREAK, SUCCEEDED)
type Empty struct{}

func (Empty) Encode(*Writer)  {}
func (*Empty) Decode(*Reader) {}

// --------------------------------------------------------------------------
// Replies
// --------------------------------------------------------------------------

// ValueString is the payload of VALUE_STRING
type ValueString struct {
	Value string
}

func (p ValueString) Encode(w *Writer)  { w.String(p.Value) }
func (p *ValueString) Decode(r *Reader) { p.Value = r.String() }

// ValueVarList is the payload of VALUE_VARLIST
type ValueVarList struct {
	Vars []Var
}

// varMinSize is the encoded size of a Var with empty strings
const varMinSize = 4 + 4 + 4 + 1 + 4

func (p ValueVarList) Encode(w *Writer) {
	if !w.Len(len(p.Vars)) {
		return
	}
	for _, v := range p.Vars {
		v.encode(w)
	}
}

func (p *ValueVarList) Decode(r *Reader) {
	n := r.Count(varMinSize)
	p.Vars = nil
	if n == 0 {
		return
	}
	p.Vars = make([]Var, n)
	for i := range p.Vars {
		p.Vars[i].decode(r)
	}
}

// ValueBacktraceList is the payload of VALUE_BACKTRACELIST
type ValueBacktraceList struct {
	Backtraces []Backtrace
}

// backtraceMinSize is the encoded size of a Backtrace with empty strings
const backtraceMinSize = 4 + 4 + 4 + 4

func (p ValueBacktraceList) Encode(w *Writer) {
	if !w.Len(len(p.Backtraces)) {
		return
	}
	for _, b := range p.Backtraces {
		b.encode(w)
	}
}

func (p *ValueBacktraceList) Decode(r *Reader) {
	n := r.Count(backtraceMinSize)
	p.Backtraces = nil
	if n == 0 {
		return
	}
	p.Backtraces = make([]Backtrace, n)
	for i := range p.Backtraces {
		p.Backtraces[i].decode(r)
	}
}

// --------------------------------------------------------------------------
// Lookup
// --------------------------------------------------------------------------

// NewPayload returns an empty payload suitable to decode a command of type t
func NewPayload(t common.CommandType) (IPayload, bool) {
	switch t {
	case common.CmdTChangedState:
		return &ChangedState{}, true
	case common.CmdTUpdateSource:
		return &UpdateSource{}, true
	case common.CmdTAddedSource:
		return &AddedSource{}, true
	case common.CmdTSaveSource:
		return &SaveSource{}, true
	case common.CmdTSetUpdateCount:
		return &SetUpdateCount{}, true
	case common.CmdTSetBreakpoint, common.CmdTRemoveBreakpoint:
		return &BreakpointPayload{}, true
	case common.CmdTChangedBreakpointList:
		return &BreakpointListPayload{}, true
	case common.CmdTOutputLog:
		return &OutputLog{}, true
	case common.CmdTEval:
		return &Eval{}, true
	case common.CmdTRequestFieldsVarList:
		return &RequestFieldsVarList{}, true
	case common.CmdTRequestLocalVarList, common.CmdTRequestEnvironVarList:
		return &RequestLocalVarList{}, true
	case common.CmdTRequestEvalVarList:
		return &RequestEvalVarList{}, true
	case common.CmdTValueString:
		return &ValueString{}, true
	case common.CmdTValueVarList:
		return &ValueVarList{}, true
	case common.CmdTValueBacktraceList:
		return &ValueBacktraceList{}, true
	case common.CmdTStartConnection, common.CmdTEndConnection, common.CmdTForceUpdateSource,
		common.CmdTBreak, common.CmdTResume, common.CmdTStepInto, common.CmdTStepOver, common.CmdTStepReturn,
		common.CmdTRequestGlobalVarList, common.CmdTRequestRegistryVarList, common.CmdTRequestStackList,
		common.CmdTSucceeded, common.CmdTFailed:
		return &Empty{}, true
	default:
		return nil, false
	}
}
