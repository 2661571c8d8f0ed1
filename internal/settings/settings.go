// Package settings holds the process-wide runtime toggles read by the
// capture pipeline and call handler.
package settings

import (
	"sync"

	waLog "go.mau.fi/whatsmeow/util/log"
)

const (
	keyAntiDelete     = "anti_delete"
	keyAutoSaveStatus = "auto_save_status"
	keyAntiCall       = "anti_call"
)

// Persister stores toggle values across restarts. A nil Persister keeps
// settings purely in memory.
type Persister interface {
	GetSetting(key string) (value string, ok bool, err error)
	PutSetting(key, value string) error
}

// Settings is the mutable toggle state. It is injected into consumers rather
// than read as ambient globals, and is safe for concurrent use.
type Settings struct {
	mu             sync.RWMutex
	antiDelete     bool
	autoSaveStatus bool
	antiCall       bool

	store Persister
	log   waLog.Logger
}

// New returns settings with anti-delete on and everything else off, then
// applies any persisted overrides.
func New(store Persister, log waLog.Logger) *Settings {
	s := &Settings{
		antiDelete: true,
		store:      store,
		log:        log,
	}
	s.load(keyAntiDelete, &s.antiDelete)
	s.load(keyAutoSaveStatus, &s.autoSaveStatus)
	s.load(keyAntiCall, &s.antiCall)
	return s
}

func (s *Settings) load(key string, dst *bool) {
	if s.store == nil {
		return
	}
	value, ok, err := s.store.GetSetting(key)
	if err != nil {
		s.log.Warnf("Failed to load setting %s: %v", key, err)
		return
	}
	if ok {
		*dst = value == "true"
	}
}

func (s *Settings) persist(key string, value bool) {
	if s.store == nil {
		return
	}
	str := "false"
	if value {
		str = "true"
	}
	if err := s.store.PutSetting(key, str); err != nil {
		s.log.Warnf("Failed to persist setting %s: %v", key, err)
	}
}

func (s *Settings) AntiDelete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.antiDelete
}

func (s *Settings) SetAntiDelete(v bool) {
	s.mu.Lock()
	s.antiDelete = v
	s.mu.Unlock()
	s.persist(keyAntiDelete, v)
}

func (s *Settings) AutoSaveStatus() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.autoSaveStatus
}

func (s *Settings) SetAutoSaveStatus(v bool) {
	s.mu.Lock()
	s.autoSaveStatus = v
	s.mu.Unlock()
	s.persist(keyAutoSaveStatus, v)
}

func (s *Settings) AntiCall() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.antiCall
}

func (s *Settings) SetAntiCall(v bool) {
	s.mu.Lock()
	s.antiCall = v
	s.mu.Unlock()
	s.persist(keyAntiCall, v)
}
