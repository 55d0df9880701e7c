package serializer

import (
	"bytes"
	"errors"
	"github.com/ValentinKolb/rDBG/lib/breakpoint"
	"github.com/ValentinKolb/rDBG/lib/source"
	"github.com/ValentinKolb/rDBG/rpc/common"
	"reflect"
	"testing"
)

// testPayload pairs a command type with a filled payload of that kind
type testPayload struct {
	name    string
	cmdType common.CommandType
	payload IEncoder
}

// testPayloads creates one payload of every message kind
func testPayloads() []testPayload {
	bp := breakpoint.Breakpoint{PeerID: 7, Key: "main.lua", Line: 12, Condition: "i > 3", Enabled: true}

	return []testPayload{
		{"changed state", common.CmdTChangedState, ChangedState{IsBreak: true}},
		{"update source", common.CmdTUpdateSource, UpdateSource{Key: "main.lua", Line: 4, UpdateCount: 9}},
		{"added source", common.CmdTAddedSource, AddedSource{Source: source.Source{
			Key: "main.lua", Title: "main", Path: "/tmp/main.lua",
			Lines: []string{"local a = 1", "", "print(a)"},
		}}},
		{"added source empty", common.CmdTAddedSource, AddedSource{}},
		{"save source", common.CmdTSaveSource, SaveSource{Key: "main.lua", Lines: []string{"x = 2"}}},
		{"set update count", common.CmdTSetUpdateCount, SetUpdateCount{Count: 3}},
		{"set breakpoint", common.CmdTSetBreakpoint, BreakpointPayload{Breakpoint: bp}},
		{"remove breakpoint", common.CmdTRemoveBreakpoint, BreakpointPayload{Breakpoint: breakpoint.Breakpoint{PeerID: -1, Key: "k", Line: 1}}},
		{"breakpoint list", common.CmdTChangedBreakpointList, BreakpointListPayload{
			PeerID:      7,
			Breakpoints: []breakpoint.Breakpoint{bp, {PeerID: 7, Key: "other.lua", Line: 1}},
		}},
		{"output log", common.CmdTOutputLog, OutputLog{Type: LogTypeError, Message: "boom", Key: "main.lua", Line: 3}},
		{"eval", common.CmdTEval, Eval{Expr: "a + 1", Frame: StackFrame{Level: 2}}},
		{"fields varlist", common.CmdTRequestFieldsVarList, RequestFieldsVarList{Var: Var{
			Name: "t", Value: "table: 0x1", ValueType: "table", HasFields: true, Ref: "ref-1",
		}}},
		{"local varlist", common.CmdTRequestLocalVarList, RequestLocalVarList{Frame: StackFrame{Level: 1}}},
		{"eval varlist", common.CmdTRequestEvalVarList, RequestEvalVarList{Exprs: []string{"a", "b.c"}, Frame: StackFrame{}}},
		{"value string", common.CmdTValueString, ValueString{Value: "42"}},
		{"value varlist", common.CmdTValueVarList, ValueVarList{Vars: []Var{
			{Name: "a", Value: "1", ValueType: "number"},
			{Name: "t", Value: "table", ValueType: "table", HasFields: true, Ref: "r"},
		}}},
		{"value backtrace", common.CmdTValueBacktraceList, ValueBacktraceList{Backtraces: []Backtrace{
			{Name: "main", Key: "main.lua", Line: 10, Frame: StackFrame{Level: 0}},
			{Name: "helper", Key: "lib.lua", Line: 2, Frame: StackFrame{Level: 1}},
		}}},
		{"empty", common.CmdTSucceeded, Empty{}},
	}
}

// TestRoundTrip encodes, decodes and re-encodes every message kind and
// expects the second encoding to be byte-identical to the first one
func TestRoundTrip(t *testing.T) {
	for _, tp := range testPayloads() {
		t.Run(tp.name, func(t *testing.T) {
			first, err := Marshal(tp.payload)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}

			decoded, ok := NewPayload(tp.cmdType)
			if !ok {
				t.Fatalf("no payload registered for %s", tp.cmdType)
			}
			if err := Unmarshal(first, decoded); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}

			second, err := Marshal(decoded)
			if err != nil {
				t.Fatalf("second Marshal failed: %v", err)
			}
			if !bytes.Equal(first, second) {
				t.Errorf("re-encoding differs:\n first: %x\nsecond: %x", first, second)
			}
		})
	}
}

// TestDecodedValues spot-checks that decoding yields the encoded values
func TestDecodedValues(t *testing.T) {
	in := BreakpointListPayload{
		PeerID: 3,
		Breakpoints: []breakpoint.Breakpoint{
			{PeerID: 3, Key: "a", Line: 1, Enabled: true},
			{PeerID: 3, Key: "b", Line: 2, Condition: "x"},
		},
	}
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var out BreakpointListPayload
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("decoded %+v, want %+v", out, in)
	}
}

// TestTruncated verifies that every strict prefix of an encoding is rejected
func TestTruncated(t *testing.T) {
	for _, tp := range testPayloads() {
		data, err := Marshal(tp.payload)
		if err != nil {
			t.Fatalf("%s: Marshal failed: %v", tp.name, err)
		}
		for n := 0; n < len(data); n++ {
			p, _ := NewPayload(tp.cmdType)
			err := Unmarshal(data[:n], p)
			if !errors.Is(err, ErrMalformedPayload) {
				t.Fatalf("%s: prefix of %d/%d bytes: expected ErrMalformedPayload, got %v", tp.name, n, len(data), err)
			}
		}
	}
}

// TestTrailingBytes verifies that data left after a payload is rejected
func TestTrailingBytes(t *testing.T) {
	for _, tp := range testPayloads() {
		data, err := Marshal(tp.payload)
		if err != nil {
			t.Fatalf("%s: Marshal failed: %v", tp.name, err)
		}
		p, _ := NewPayload(tp.cmdType)
		if err := Unmarshal(append(data, 0xFF), p); !errors.Is(err, ErrMalformedPayload) {
			t.Errorf("%s: expected ErrMalformedPayload for trailing byte, got %v", tp.name, err)
		}
	}
}

func TestInvalidBool(t *testing.T) {
	var p ChangedState
	if err := Unmarshal([]byte{2}, &p); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload, got %v", err)
	}
}

func TestHugeCount(t *testing.T) {
	// count of 2^32-1 variables with only a few bytes of data
	var p ValueVarList
	if err := Unmarshal([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0, 0}, &p); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload, got %v", err)
	}
}

func TestHeader(t *testing.T) {
	tests := []struct {
		name   string
		header common.Header
		wire   []byte
	}{
		{
			name:   "start connection",
			header: common.Header{Type: common.CmdTStartConnection, PeerID: 7, CommandID: 1, PayloadSize: 0},
			wire:   []byte{0, 0, 0, 1, 0, 0, 0, 7, 0, 0, 0, 1, 0, 0, 0, 0},
		},
		{
			name:   "negative peer",
			header: common.Header{Type: common.CmdTEndConnection, PeerID: -1, CommandID: 0x01020304, PayloadSize: 258},
			wire:   []byte{0, 0, 0, 2, 0xFF, 0xFF, 0xFF, 0xFF, 1, 2, 3, 4, 0, 0, 1, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EncodeHeader(tt.header)
			if !bytes.Equal(got, tt.wire) {
				t.Errorf("EncodeHeader = %x, want %x", got, tt.wire)
			}
			decoded, err := DecodeHeader(tt.wire)
			if err != nil {
				t.Fatalf("DecodeHeader failed: %v", err)
			}
			if decoded != tt.header {
				t.Errorf("DecodeHeader = %+v, want %+v", decoded, tt.header)
			}
		})
	}

	if _, err := DecodeHeader(make([]byte, 15)); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload for short header, got %v", err)
	}
}

func TestNewPayloadCoversAllTypes(t *testing.T) {
	for _, ct := range common.AllCommandTypes() {
		if _, ok := NewPayload(ct); !ok {
			t.Errorf("no payload for command type %s", ct)
		}
	}
	if _, ok := NewPayload(common.CmdTUnknown); ok {
		t.Error("unknown command type should have no payload")
	}
}
