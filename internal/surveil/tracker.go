// Package surveil keeps per-subject rolling activity stats and the watch set
// that controls live forwarding.
package surveil

import (
	"sort"
	"sync"
	"time"

	"whatsapp-sentinel/internal/capture"
)

// activityCap bounds the per-subject rolling activity log.
const activityCap = 50

// Activity is one observed message from a subject.
type Activity struct {
	Kind    capture.ContentKind
	At      time.Time
	GroupID string
}

// Subject is the rolling record for one sender. Subjects are created lazily
// on first observation and never expire on their own.
type Subject struct {
	ID           string
	DisplayName  string
	FirstSeenAt  time.Time
	LastSeenAt   time.Time
	MessageCount int
	Recent       []Activity
	KnownGroups  map[string]struct{}
}

func (s *Subject) snapshot() *Subject {
	out := &Subject{
		ID:           s.ID,
		DisplayName:  s.DisplayName,
		FirstSeenAt:  s.FirstSeenAt,
		LastSeenAt:   s.LastSeenAt,
		MessageCount: s.MessageCount,
		Recent:       make([]Activity, len(s.Recent)),
		KnownGroups:  make(map[string]struct{}, len(s.KnownGroups)),
	}
	copy(out.Recent, s.Recent)
	for g := range s.KnownGroups {
		out.KnownGroups[g] = struct{}{}
	}
	return out
}

// Tracker owns the subject map and the watch set. Event handlers run on
// whatsmeow goroutines, so everything is mutex-guarded.
type Tracker struct {
	mu       sync.Mutex
	subjects map[string]*Subject
	watch    map[string]struct{}
}

func NewTracker() *Tracker {
	return &Tracker{
		subjects: make(map[string]*Subject),
		watch:    make(map[string]struct{}),
	}
}

// Record updates the rolling stats for one observed message. Pure
// bookkeeping, no failure modes.
func (t *Tracker) Record(subjectID, displayName string, kind capture.ContentKind, groupID string) {
	if subjectID == "" {
		return
	}
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.subjects[subjectID]
	if !ok {
		s = &Subject{
			ID:          subjectID,
			FirstSeenAt: now,
			KnownGroups: make(map[string]struct{}),
		}
		t.subjects[subjectID] = s
	}

	if displayName != "" {
		s.DisplayName = displayName
	}
	s.LastSeenAt = now
	s.MessageCount++
	s.Recent = append(s.Recent, Activity{Kind: kind, At: now, GroupID: groupID})
	if len(s.Recent) > activityCap {
		s.Recent = s.Recent[len(s.Recent)-activityCap:]
	}
	if groupID != "" {
		s.KnownGroups[groupID] = struct{}{}
	}
}

// Get returns a snapshot of one subject, or false if it was never observed.
func (t *Tracker) Get(subjectID string) (*Subject, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.subjects[subjectID]
	if !ok {
		return nil, false
	}
	return s.snapshot(), true
}

// TopActive returns up to limit subjects sorted by message count descending.
func (t *Tracker) TopActive(limit int) []*Subject {
	t.mu.Lock()
	all := make([]*Subject, 0, len(t.subjects))
	for _, s := range t.subjects {
		all = append(all, s.snapshot())
	}
	t.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].MessageCount != all[j].MessageCount {
			return all[i].MessageCount > all[j].MessageCount
		}
		return all[i].LastSeenAt.After(all[j].LastSeenAt)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

// Len reports the number of tracked subjects.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subjects)
}

// ClearAll drops every tracked subject. The watch set is left intact; it is
// operator intent, not derived state.
func (t *Tracker) ClearAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subjects = make(map[string]*Subject)
}

// WatchAdd puts a subject under surveillance. Adding an already-watched
// subject is a no-op success.
func (t *Tracker) WatchAdd(subjectID string) {
	if subjectID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.watch[subjectID] = struct{}{}
}

// WatchRemove takes a subject off surveillance; removing an unwatched subject
// succeeds silently.
func (t *Tracker) WatchRemove(subjectID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.watch, subjectID)
}

// IsWatched reports whether live forwarding applies to the subject.
func (t *Tracker) IsWatched(subjectID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.watch[subjectID]
	return ok
}

// WatchList returns a snapshot per watched subject. Watched subjects that
// have not spoken yet come back as a stub with only the ID set.
func (t *Tracker) WatchList() []*Subject {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, 0, len(t.watch))
	for id := range t.watch {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]*Subject, 0, len(ids))
	for _, id := range ids {
		if s, ok := t.subjects[id]; ok {
			out = append(out, s.snapshot())
		} else {
			out = append(out, &Subject{ID: id})
		}
	}
	return out
}
