// Package breakpoint implements the breakpoint collection shared by the
// debugger frontend and the debuggee. A breakpoint is identified by the
// session it belongs to, the key of its source and the line.
//
// The transport treats breakpoints as opaque payload; this package only
// provides the collection used on both ends to keep them, to toggle them from
// a source view and to iterate them per source (First / Next) when redrawing
// markers.
//
// Thread Safety:
//
//	The list is backed by an xsync.MapOf and is safe for concurrent use.
//	Iteration results are snapshots.
package breakpoint
