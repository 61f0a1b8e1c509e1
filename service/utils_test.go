package service

import (
	"sort"
	"testing"
)

func TestStringSet(t *testing.T) {
	ss := StringSet{}
	ss.Push("a")
	ss.Push("b")
	ss.Push("a")
	if len(ss) != 2 {
		t.Errorf("expecting 2 elements, found %d", len(ss))
	}
	if !ss.Exists("a") || !ss.Exists("b") || ss.Exists("c") {
		t.Fail()
	}
	ss.Pop("a")
	if ss.Exists("a") {
		t.Fail()
	}
	ss.Push("c")
	sl := ss.Slice()
	sort.Strings(sl)
	if len(sl) != 2 || sl[0] != "b" || sl[1] != "c" {
		t.Errorf("unexpected slice %v", sl)
	}
}
