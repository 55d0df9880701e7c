package breakpoint

import (
	"reflect"
	"sync"
	"testing"
)

func TestToggle(t *testing.T) {
	l := NewList(7)

	if !l.Toggle("main.lua", 3) {
		t.Fatal("first toggle should add a breakpoint")
	}
	bp, ok := l.Find("main.lua", 3)
	if !ok {
		t.Fatal("breakpoint not found after toggle")
	}
	if bp.PeerID != 7 || !bp.Enabled {
		t.Errorf("unexpected breakpoint %+v", bp)
	}

	if l.Toggle("main.lua", 3) {
		t.Fatal("second toggle should remove the breakpoint")
	}
	if l.Has("main.lua", 3) {
		t.Fatal("breakpoint still present after second toggle")
	}
}

func TestFirstNext(t *testing.T) {
	l := NewList(1)
	for _, line := range []int32{20, 5, 12} {
		l.Set(Breakpoint{PeerID: 1, Key: "a", Line: line, Enabled: true})
	}
	l.Set(Breakpoint{PeerID: 1, Key: "b", Line: 1, Enabled: true})

	var lines []int32
	for bp := l.First("a"); bp.IsOk(); bp = l.Next(bp) {
		lines = append(lines, bp.Line)
	}
	if !reflect.DeepEqual(lines, []int32{5, 12, 20}) {
		t.Errorf("unexpected iteration order %v", lines)
	}

	if l.First("missing").IsOk() {
		t.Error("First on an unknown key should not be ok")
	}
}

func TestRemoveAndReplace(t *testing.T) {
	l := NewList(1)
	bp := Breakpoint{PeerID: 1, Key: "a", Line: 4}
	l.Set(bp)

	if !l.Remove(bp) {
		t.Fatal("remove of existing breakpoint should return true")
	}
	if l.Remove(bp) {
		t.Fatal("remove of missing breakpoint should return false")
	}

	l.Set(Breakpoint{PeerID: 1, Key: "old", Line: 1})
	replacement := []Breakpoint{
		{PeerID: 1, Key: "z", Line: 2},
		{PeerID: 1, Key: "a", Line: 9},
		{PeerID: 1, Key: "a", Line: 1},
	}
	l.Replace(replacement)

	want := []Breakpoint{
		{PeerID: 1, Key: "a", Line: 1},
		{PeerID: 1, Key: "a", Line: 9},
		{PeerID: 1, Key: "z", Line: 2},
	}
	if got := l.All(); !reflect.DeepEqual(got, want) {
		t.Errorf("All() = %v, want %v", got, want)
	}
	if l.Len() != 3 {
		t.Errorf("Len() = %d, want 3", l.Len())
	}
}

func TestSessionsAreSeparate(t *testing.T) {
	l := NewList(1)
	l.Set(Breakpoint{PeerID: 2, Key: "a", Line: 1})

	if l.Has("a", 1) {
		t.Error("breakpoint of another session should not be visible through Has")
	}
	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1", l.Len())
	}
}

func TestConcurrentToggle(t *testing.T) {
	l := NewList(1)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.Toggle("a", int32(i+1))
		}(i)
	}
	wg.Wait()

	if l.Len() != 16 {
		t.Errorf("Len() = %d, want 16", l.Len())
	}
}
