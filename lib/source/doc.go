// Package source holds the source texts exchanged during a debug session.
//
// The debuggee announces every loaded script with ADDED_SOURCE and the
// frontend keeps them in a Store. Edited sources travel back with SAVE_SOURCE;
// the store only updates its in-memory copy, writing files is left to the
// caller.
//
// Every change bumps the store's generation counter. UPDATE_SOURCE notices
// carry the debuggee's counter so a frontend can detect that its copy is stale.
package source
