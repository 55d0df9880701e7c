package breakpoint

import "fmt"

// Breakpoint marks a line of a source for a debug session
type Breakpoint struct {
	// PeerID is the session the breakpoint belongs to
	PeerID int32
	// Key identifies the source (see lib/source)
	Key string
	// Line is the 1-based line number
	Line int32
	// Condition is an optional expression, empty means always break
	Condition string
	// Enabled is false for breakpoints that are kept but ignored
	Enabled bool
}

// IsOk reports whether the breakpoint points to a real location.
// First and Next return a zero Breakpoint when nothing is left.
func (b Breakpoint) IsOk() bool {
	return b.Key != "" && b.Line > 0
}

// String returns "key:line"
func (b Breakpoint) String() string {
	return fmt.Sprintf("%s:%d", b.Key, b.Line)
}

// IBreakpointList is a collection of breakpoints keyed by session, source key and line
type IBreakpointList interface {
	// Set adds or replaces the breakpoint at the same location
	Set(bp Breakpoint)
	// Remove deletes the breakpoint at the location of bp, returns whether one existed
	Remove(bp Breakpoint) bool
	// Toggle removes the breakpoint at key:line if present, otherwise adds an enabled one.
	// It returns true if a breakpoint exists afterwards.
	Toggle(key string, line int32) bool
	// Has reports whether a breakpoint exists at key:line
	Has(key string, line int32) bool
	// Find returns the breakpoint at key:line
	Find(key string, line int32) (Breakpoint, bool)
	// First returns the breakpoint with the lowest line in source key
	First(key string) Breakpoint
	// Next returns the breakpoint following bp in the same source
	Next(bp Breakpoint) Breakpoint
	// All returns every breakpoint sorted by key and line
	All() []Breakpoint
	// Replace drops all breakpoints and inserts the given ones
	Replace(bps []Breakpoint)
	// Len returns the number of breakpoints
	Len() int
}
