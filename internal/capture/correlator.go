package capture

import (
	"context"
	"time"

	waLog "go.mau.fi/whatsmeow/util/log"
)

// Replayer re-emits a captured record to the operator.
type Replayer interface {
	Replay(ctx context.Context, rec *Record, trig Trigger, at time.Time) Outcome
}

// Archiver persists a confirmed deletion to durable storage. Implementations
// may be nil; archiving is best-effort.
type Archiver interface {
	ArchiveDeleted(rec *DeletedRecord) error
}

// Correlator consumes removal notifications and matches them against the live
// caches. A miss is the expected outcome for most notifications (content was
// never captured, was evicted, or was self-authored) and is not an error.
type Correlator struct {
	toggles  Toggles
	messages *BoundedStore[string, *Record]
	statuses *BoundedStore[string, *Record]
	replayer Replayer
	archive  Archiver
	log      waLog.Logger

	DeletedMessages *CappedLog[*DeletedRecord]
	DeletedStatuses *CappedLog[*DeletedRecord]
}

func NewCorrelator(toggles Toggles, ic *Interceptor, replayer Replayer, archive Archiver, log waLog.Logger) *Correlator {
	return &Correlator{
		toggles:         toggles,
		messages:        ic.Messages,
		statuses:        ic.Statuses,
		replayer:        replayer,
		archive:         archive,
		log:             log,
		DeletedMessages: NewCappedLog[*DeletedRecord](DeletedLogCap),
		DeletedStatuses: NewCappedLog[*DeletedRecord](DeletedLogCap),
	}
}

// OnRemoval correlates one removal notification. A malformed or missing id is
// treated as not-found, matching the transport's occasional quirks.
func (c *Correlator) OnRemoval(ctx context.Context, id string) {
	if id == "" {
		return
	}
	now := time.Now()

	if rec, ok := c.messages.Get(id); ok {
		c.messages.Delete(id)
		c.promote(ctx, rec, TriggerMessageDeleted, "message", c.DeletedMessages, now)
		return
	}

	if rec, ok := c.statuses.Get(id); ok {
		// A status only lands in the cache while auto-save is on, but the
		// toggle may have been flipped between capture and deletion.
		if !c.toggles.AutoSaveStatus() {
			return
		}
		c.statuses.Delete(id)
		c.promote(ctx, rec, TriggerStatusDeleted, "status", c.DeletedStatuses, now)
		return
	}

	c.log.Debugf("Removal notification for uncaptured id %s, ignoring", id)
}

func (c *Correlator) promote(ctx context.Context, rec *Record, trig Trigger, source string, log *CappedLog[*DeletedRecord], now time.Time) {
	dr := &DeletedRecord{Record: *rec, DeletedAt: now, Source: source}
	log.Append(dr)

	if c.archive != nil {
		if err := c.archive.ArchiveDeleted(dr); err != nil {
			c.log.Warnf("Failed to archive deleted %s %s: %v", source, rec.ID, err)
		}
	}

	c.log.Infof("Recovered deleted %s %s from %s (%s)", source, rec.ID, rec.SubjectID, rec.Kind)
	c.replayer.Replay(ctx, rec, trig, now)
}
