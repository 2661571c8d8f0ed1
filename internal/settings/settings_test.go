package settings

import (
	"testing"

	waLog "go.mau.fi/whatsmeow/util/log"
)

type memPersister struct {
	values map[string]string
}

func (m *memPersister) GetSetting(key string) (string, bool, error) {
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memPersister) PutSetting(key, value string) error {
	m.values[key] = value
	return nil
}

func TestDefaults(t *testing.T) {
	s := New(nil, waLog.Noop)
	if !s.AntiDelete() {
		t.Error("anti-delete should default on")
	}
	if s.AutoSaveStatus() {
		t.Error("auto-save status should default off")
	}
	if s.AntiCall() {
		t.Error("anti-call should default off")
	}
}

func TestSetAndGet(t *testing.T) {
	s := New(nil, waLog.Noop)
	s.SetAntiDelete(false)
	s.SetAutoSaveStatus(true)
	s.SetAntiCall(true)

	if s.AntiDelete() || !s.AutoSaveStatus() || !s.AntiCall() {
		t.Error("toggle updates not reflected")
	}
}

func TestPersistAndReload(t *testing.T) {
	store := &memPersister{values: make(map[string]string)}

	s := New(store, waLog.Noop)
	s.SetAntiDelete(false)
	s.SetAutoSaveStatus(true)

	reloaded := New(store, waLog.Noop)
	if reloaded.AntiDelete() {
		t.Error("persisted anti-delete=false not applied")
	}
	if !reloaded.AutoSaveStatus() {
		t.Error("persisted auto-save=true not applied")
	}
	if reloaded.AntiCall() {
		t.Error("untouched toggle should keep its default")
	}
}
