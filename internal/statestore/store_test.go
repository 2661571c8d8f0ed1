package statestore

import (
	"testing"
	"time"

	waLog "go.mau.fi/whatsmeow/util/log"

	"whatsapp-sentinel/internal/capture"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), waLog.Noop)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSettingsRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if _, ok, err := s.GetSetting("anti_delete"); err != nil || ok {
		t.Fatalf("expected missing setting, got ok=%v err=%v", ok, err)
	}

	if err := s.PutSetting("anti_delete", "false"); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := s.PutSetting("anti_delete", "true"); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}

	v, ok, err := s.GetSetting("anti_delete")
	if err != nil || !ok || v != "true" {
		t.Errorf("expected true, got %q ok=%v err=%v", v, ok, err)
	}
}

func TestBanLifecycle(t *testing.T) {
	s := openTestStore(t)
	const jid = "2250000009"

	banned, err := s.IsBanned(jid)
	if err != nil || banned {
		t.Fatalf("fresh subject should not be banned (err=%v)", err)
	}

	if err := s.AddBan(jid, "spam"); err != nil {
		t.Fatalf("ban failed: %v", err)
	}
	if banned, _ := s.IsBanned(jid); !banned {
		t.Error("subject should be banned")
	}

	bans, err := s.ListBans(10)
	if err != nil || len(bans) != 1 || bans[0].JID != jid || bans[0].Reason != "spam" {
		t.Errorf("unexpected ban list: %+v (err=%v)", bans, err)
	}

	removed, err := s.RemoveBan(jid)
	if err != nil || !removed {
		t.Errorf("expected removal, got removed=%v err=%v", removed, err)
	}
	removed, err = s.RemoveBan(jid)
	if err != nil || removed {
		t.Errorf("second removal should be a no-op, got removed=%v err=%v", removed, err)
	}
}

func TestWarningCounter(t *testing.T) {
	s := openTestStore(t)
	const jid = "2250000008"

	if count, _ := s.GetWarnings(jid); count != 0 {
		t.Fatalf("expected 0 warnings, got %d", count)
	}
	for want := 1; want <= 3; want++ {
		count, err := s.IncrementWarning(jid)
		if err != nil || count != want {
			t.Errorf("expected count %d, got %d (err=%v)", want, count, err)
		}
	}
}

func TestArchiveDeleted(t *testing.T) {
	s := openTestStore(t)

	rec := &capture.DeletedRecord{
		Record: capture.Record{
			ID:          "m1",
			SubjectID:   "2250000001",
			DisplayName: "Tester",
			Origin:      capture.OriginDirect,
			Kind:        capture.KindText,
			Text:        "hello",
			CapturedAt:  time.Now(),
		},
		DeletedAt: time.Now(),
		Source:    "message",
	}
	if err := s.ArchiveDeleted(rec); err != nil {
		t.Fatalf("archive failed: %v", err)
	}
	// Re-archiving the same id overwrites instead of duplicating.
	if err := s.ArchiveDeleted(rec); err != nil {
		t.Fatalf("re-archive failed: %v", err)
	}

	count, err := s.CountArchived()
	if err != nil || count != 1 {
		t.Errorf("expected 1 archived record, got %d (err=%v)", count, err)
	}
}
