package breakpoint

import (
	"github.com/puzpuzpuz/xsync/v3"
	"sort"
)

// location is the map key of a breakpoint
type location struct {
	peerID int32
	key    string
	line   int32
}

type listImpl struct {
	peerID int32
	items  *xsync.MapOf[location, Breakpoint]
}

// NewList creates an empty breakpoint list for the session peerID.
// Breakpoints added through Set keep their own PeerID, Toggle uses peerID.
func NewList(peerID int32) IBreakpointList {
	return &listImpl{
		peerID: peerID,
		items:  xsync.NewMapOf[location, Breakpoint](),
	}
}

func locationOf(bp Breakpoint) location {
	return location{peerID: bp.PeerID, key: bp.Key, line: bp.Line}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see breakpoint.IBreakpointList)
// --------------------------------------------------------------------------

func (l *listImpl) Set(bp Breakpoint) {
	l.items.Store(locationOf(bp), bp)
}

func (l *listImpl) Remove(bp Breakpoint) bool {
	_, existed := l.items.LoadAndDelete(locationOf(bp))
	return existed
}

func (l *listImpl) Toggle(key string, line int32) bool {
	loc := location{peerID: l.peerID, key: key, line: line}
	exists := false
	l.items.Compute(loc, func(old Breakpoint, loaded bool) (Breakpoint, bool) {
		if loaded {
			return old, true // delete
		}
		exists = true
		return Breakpoint{PeerID: l.peerID, Key: key, Line: line, Enabled: true}, false
	})
	return exists
}

func (l *listImpl) Has(key string, line int32) bool {
	_, ok := l.Find(key, line)
	return ok
}

func (l *listImpl) Find(key string, line int32) (Breakpoint, bool) {
	return l.items.Load(location{peerID: l.peerID, key: key, line: line})
}

func (l *listImpl) First(key string) Breakpoint {
	for _, bp := range l.sortedForKey(key) {
		return bp
	}
	return Breakpoint{}
}

func (l *listImpl) Next(bp Breakpoint) Breakpoint {
	for _, other := range l.sortedForKey(bp.Key) {
		if other.Line > bp.Line {
			return other
		}
	}
	return Breakpoint{}
}

func (l *listImpl) All() []Breakpoint {
	result := make([]Breakpoint, 0, l.items.Size())
	l.items.Range(func(_ location, bp Breakpoint) bool {
		result = append(result, bp)
		return true
	})
	sortBreakpoints(result)
	return result
}

func (l *listImpl) Replace(bps []Breakpoint) {
	l.items.Clear()
	for _, bp := range bps {
		l.Set(bp)
	}
}

func (l *listImpl) Len() int {
	return l.items.Size()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sortedForKey returns the breakpoints of one source ordered by line
func (l *listImpl) sortedForKey(key string) []Breakpoint {
	var result []Breakpoint
	l.items.Range(func(loc location, bp Breakpoint) bool {
		if loc.key == key {
			result = append(result, bp)
		}
		return true
	})
	sortBreakpoints(result)
	return result
}

func sortBreakpoints(bps []Breakpoint) {
	sort.Slice(bps, func(i, j int) bool {
		if bps[i].Key != bps[j].Key {
			return bps[i].Key < bps[j].Key
		}
		if bps[i].Line != bps[j].Line {
			return bps[i].Line < bps[j].Line
		}
		return bps[i].PeerID < bps[j].PeerID
	})
}
