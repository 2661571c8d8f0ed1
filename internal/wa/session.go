package wa

import (
	"math/rand"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// Session tracks connection health and drives reconnection with exponential
// backoff.
type Session struct {
	mu           sync.RWMutex
	client       *whatsmeow.Client
	log          waLog.Logger
	attempts     int
	maxAttempts  int
	lastAttempt  time.Time
	lastActivity time.Time
	sessionStart time.Time
	reconnecting bool
	needsReauth  bool
}

// Health is a point-in-time snapshot for the status API.
type Health struct {
	ReconnectAttempts int   `json:"reconnect_attempts"`
	IsReconnecting    bool  `json:"is_reconnecting"`
	NeedsReauth       bool  `json:"needs_reauth"`
	SessionAgeSec     int64 `json:"session_age_sec"`
	LastActivitySec   int64 `json:"last_activity_sec"`
}

func NewSession(client *whatsmeow.Client, log waLog.Logger) *Session {
	return &Session{client: client, log: log, maxAttempts: 10}
}

// Touch records activity, resetting the idle clock.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// MarkConnected resets the retry counters after a successful connection.
func (s *Session) MarkConnected() {
	s.mu.Lock()
	s.attempts = 0
	s.needsReauth = false
	if s.sessionStart.IsZero() {
		s.sessionStart = time.Now()
	}
	s.mu.Unlock()
	s.Touch()
}

// MarkNeedsReauth flags that the stored credentials are no longer valid.
func (s *Session) MarkNeedsReauth() {
	s.mu.Lock()
	s.needsReauth = true
	s.attempts = 0
	s.mu.Unlock()
}

// StopRetrying exhausts the retry budget, e.g. after a temporary ban.
func (s *Session) StopRetrying() {
	s.mu.Lock()
	s.attempts = s.maxAttempts
	s.mu.Unlock()
}

// NeedsReauth reports whether a fresh QR pairing is required.
func (s *Session) NeedsReauth() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.needsReauth
}

// Snapshot returns the current health counters.
func (s *Session) Snapshot() Health {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := Health{
		ReconnectAttempts: s.attempts,
		IsReconnecting:    s.reconnecting,
		NeedsReauth:       s.needsReauth,
	}
	if !s.sessionStart.IsZero() {
		h.SessionAgeSec = int64(time.Since(s.sessionStart).Seconds())
	}
	if !s.lastActivity.IsZero() {
		h.LastActivitySec = int64(time.Since(s.lastActivity).Seconds())
	}
	return h
}

// backoff is 1s, 2s, 4s ... capped at 60s, with up to +50% jitter.
func backoff(attempt int) time.Duration {
	max := 60 * time.Second
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > max {
		d = max
	}
	return d + time.Duration(rand.Int63n(int64(d)/2))
}

// AttemptReconnect tries to re-establish the connection, honoring the
// backoff window. Returns true on a verified reconnect.
func (s *Session) AttemptReconnect() bool {
	s.mu.Lock()
	if s.attempts >= s.maxAttempts {
		s.log.Errorf("Maximum reconnection attempts (%d) reached, manual re-authentication required", s.maxAttempts)
		s.needsReauth = true
		s.reconnecting = false
		s.mu.Unlock()
		return false
	}
	required := backoff(s.attempts)
	if time.Since(s.lastAttempt) < required {
		s.mu.Unlock()
		return false
	}
	s.attempts++
	s.lastAttempt = time.Now()
	s.reconnecting = true
	attempt := s.attempts
	s.mu.Unlock()

	s.log.Infof("Attempting reconnection (attempt %d/%d)...", attempt, s.maxAttempts)
	if err := s.client.Connect(); err != nil {
		s.log.Errorf("Reconnection attempt %d failed: %v", attempt, err)
		s.mu.Lock()
		s.reconnecting = false
		s.mu.Unlock()
		return false
	}

	time.Sleep(2 * time.Second)
	if s.client.IsConnected() && s.client.IsLoggedIn() {
		s.log.Infof("Reconnection successful on attempt %d", attempt)
		s.MarkConnected()
		s.mu.Lock()
		s.reconnecting = false
		s.mu.Unlock()
		return true
	}

	s.log.Warnf("Reconnection attempt %d: connected but not authenticated", attempt)
	s.mu.Lock()
	s.reconnecting = false
	s.mu.Unlock()
	return false
}

// StartKeepalive sends a presence update every 30 seconds to keep the
// session warm. Runs until stop is closed.
func (s *Session) StartKeepalive(stop <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.client.IsConnected() && s.client.IsLoggedIn() {
				if err := s.client.SendPresence(types.PresenceAvailable); err != nil {
					s.log.Warnf("Failed to send keepalive presence: %v", err)
				} else {
					s.Touch()
				}
			}
		case <-stop:
			return
		}
	}
}

// QRState holds the current pairing QR code (base64 PNG) for the status API.
type QRState struct {
	mu   sync.RWMutex
	code string
}

func (q *QRState) Set(code string) {
	q.mu.Lock()
	q.code = code
	q.mu.Unlock()
}

func (q *QRState) Get() string {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.code
}

func (q *QRState) Clear() {
	q.Set("")
}
