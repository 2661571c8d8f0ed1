package surveil

import (
	"fmt"
	"testing"

	"whatsapp-sentinel/internal/capture"
)

func TestActivityAccumulation(t *testing.T) {
	tr := NewTracker()
	const n = 75
	for i := 0; i < n; i++ {
		tr.Record("2250000001", "Tester", capture.KindText, "")
	}

	s, ok := tr.Get("2250000001")
	if !ok {
		t.Fatal("subject should exist after first Record")
	}
	if s.MessageCount != n {
		t.Errorf("expected count %d, got %d", n, s.MessageCount)
	}
	if len(s.Recent) != 50 {
		t.Errorf("recent activity must cap at 50, got %d", len(s.Recent))
	}
	if s.FirstSeenAt.After(s.LastSeenAt) {
		t.Error("first seen must not be after last seen")
	}
}

func TestRecentActivityUnderCap(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < 7; i++ {
		tr.Record("2250000002", "", capture.KindImage, "group1@g.us")
	}
	s, _ := tr.Get("2250000002")
	if len(s.Recent) != 7 {
		t.Errorf("expected 7 recent entries, got %d", len(s.Recent))
	}
	if _, ok := s.KnownGroups["group1@g.us"]; !ok {
		t.Error("group context should be recorded")
	}
}

func TestGetUnknownSubject(t *testing.T) {
	tr := NewTracker()
	if _, ok := tr.Get("nobody"); ok {
		t.Error("unknown subject must report not-found")
	}
}

func TestWatchIdempotence(t *testing.T) {
	tr := NewTracker()
	tr.WatchAdd("225999")
	tr.WatchAdd("225999")

	list := tr.WatchList()
	if len(list) != 1 || list[0].ID != "225999" {
		t.Fatalf("expected exactly one watched subject, got %+v", list)
	}

	tr.WatchRemove("225999")
	tr.WatchRemove("225999") // removing unwatched succeeds silently
	if tr.IsWatched("225999") {
		t.Error("subject should be unwatched")
	}
	if len(tr.WatchList()) != 0 {
		t.Error("watch list should be empty")
	}
}

func TestWatchListStubForSilentSubject(t *testing.T) {
	tr := NewTracker()
	tr.WatchAdd("225888")
	list := tr.WatchList()
	if len(list) != 1 || list[0].MessageCount != 0 {
		t.Fatalf("expected stub entry, got %+v", list)
	}
}

func TestTopActiveOrdering(t *testing.T) {
	tr := NewTracker()
	for i := 1; i <= 5; i++ {
		id := fmt.Sprintf("subj%d", i)
		for j := 0; j < i; j++ {
			tr.Record(id, "", capture.KindText, "")
		}
	}

	top := tr.TopActive(3)
	if len(top) != 3 {
		t.Fatalf("expected 3 subjects, got %d", len(top))
	}
	want := []string{"subj5", "subj4", "subj3"}
	for i, s := range top {
		if s.ID != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], s.ID)
		}
	}
}

func TestClearAllKeepsWatchSet(t *testing.T) {
	tr := NewTracker()
	tr.Record("a", "", capture.KindText, "")
	tr.WatchAdd("a")
	tr.ClearAll()

	if tr.Len() != 0 {
		t.Error("subjects should be cleared")
	}
	if !tr.IsWatched("a") {
		t.Error("watch set is operator intent and must survive clear-all")
	}
}
