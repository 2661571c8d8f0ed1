package capture

import (
	"context"

	waLog "go.mau.fi/whatsmeow/util/log"
)

// Default store capacities. The message cache is the largest because every
// inbound message flows through it while anti-delete is on; view-once and
// status traffic is comparatively rare.
const (
	MessageCacheCap  = 500
	ViewOnceCacheCap = 50
	StatusCacheCap   = 100
	DeletedLogCap    = 50
)

// MediaFetcher downloads the payload a MediaRef points at.
type MediaFetcher interface {
	Fetch(ctx context.Context, ref *MediaRef) ([]byte, error)
}

// Toggles is the subset of runtime configuration the capture path reads.
type Toggles interface {
	AntiDelete() bool
	AutoSaveStatus() bool
}

// Interceptor classifies inbound events and files them into the bounded
// caches. It runs on the hot path of every inbound event and never returns
// an error: failures are logged and the degraded record is kept.
type Interceptor struct {
	toggles Toggles
	fetcher MediaFetcher
	log     waLog.Logger

	Messages *BoundedStore[string, *Record]
	ViewOnce *BoundedStore[string, *Record]
	Statuses *BoundedStore[string, *Record]
}

func NewInterceptor(toggles Toggles, fetcher MediaFetcher, log waLog.Logger) *Interceptor {
	return &Interceptor{
		toggles:  toggles,
		fetcher:  fetcher,
		log:      log,
		Messages: NewBoundedStore[string, *Record](MessageCacheCap),
		ViewOnce: NewBoundedStore[string, *Record](ViewOnceCacheCap),
		Statuses: NewBoundedStore[string, *Record](StatusCacheCap),
	}
}

// OnInbound captures one normalized event. Self-authored content is skipped:
// the bot's own account is only ever a delivery target, never a monitored
// subject.
func (ic *Interceptor) OnInbound(ctx context.Context, in *Inbound) {
	if in == nil || in.ID == "" {
		// No identifier means no correlation key; nothing useful to keep.
		return
	}
	if in.FromSelf {
		return
	}

	rec := NewRecord(in)

	switch {
	case in.ViewOnce:
		// View-once interception is deliberately always-on, independent of
		// the anti-delete toggle: it is the one chance to keep the payload.
		ic.fetchEager(ctx, rec, ViewOncePolicy)
		ic.ViewOnce.Put(rec.ID, rec)
		ic.log.Infof("Captured view-once %s from %s", rec.Kind, rec.SubjectID)

	case in.Origin == OriginStatus:
		if !ic.toggles.AutoSaveStatus() {
			return
		}
		ic.fetchEager(ctx, rec, StatusPolicy)
		ic.Statuses.Put(rec.ID, rec)
		ic.log.Debugf("Captured status %s from %s", rec.Kind, rec.SubjectID)

	default:
		if !ic.toggles.AntiDelete() {
			return
		}
		ic.Messages.Put(rec.ID, rec)
	}
}

// Lookup finds the stored record for an id across the three caches. View-once
// first: it is the only cache whose records may already carry a fetched
// payload.
func (ic *Interceptor) Lookup(id string) (*Record, bool) {
	if rec, ok := ic.ViewOnce.Get(id); ok {
		return rec, true
	}
	if rec, ok := ic.Statuses.Get(id); ok {
		return rec, true
	}
	if rec, ok := ic.Messages.Get(id); ok {
		return rec, true
	}
	return nil, false
}

// fetchEager pulls the payload now when the policy says so. A failed fetch
// degrades the record to text-only rather than dropping it.
func (ic *Interceptor) fetchEager(ctx context.Context, rec *Record, policy FetchPolicy) {
	if rec.Media == nil || policy.Mode(rec.Kind) != FetchEager {
		return
	}
	data, err := ic.fetcher.Fetch(ctx, rec.Media)
	if err != nil {
		ic.log.Warnf("Eager media fetch failed for %s (%s): %v", rec.ID, rec.Kind, err)
		rec.Media = nil
		return
	}
	rec.Payload = data
}
