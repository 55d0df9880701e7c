package source

import "strings"

// Source is the text of one script known to a debug session
type Source struct {
	// Key identifies the source on both ends of a session
	Key string
	// Title is the name shown to the user
	Title string
	// Path is the file the source was loaded from (may be empty)
	Path string
	// Lines holds the text without line terminators
	Lines []string
}

// Text joins the lines with '\n'
func (s Source) Text() string {
	return strings.Join(s.Lines, "\n")
}

// Line returns the 1-based line n, or "" if it is out of range
func (s Source) Line(n int32) string {
	if n < 1 || int(n) > len(s.Lines) {
		return ""
	}
	return s.Lines[n-1]
}

// IStore keeps the sources of a session and a generation counter that is
// bumped on every change, so a view can tell whether it is out of date.
type IStore interface {
	// Add inserts or replaces a source
	Add(src Source)
	// Get returns the source stored under key
	Get(key string) (Source, bool)
	// Update replaces the lines of an existing source and returns the new generation.
	// The lines are stored as given, callers split or trim them beforehand.
	// The boolean is false if no source with that key exists.
	Update(key string, lines []string) (uint32, bool)
	// Keys returns the keys of all sources in sorted order
	Keys() []string
	// Generation returns the current generation counter
	Generation() uint32
	// SetGeneration overwrites the generation counter
	SetGeneration(gen uint32)
}
