// Package bot wires the transport event stream into the capture pipeline and
// exposes the operator command surface.
package bot

import (
	"context"
	"strings"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	"whatsapp-sentinel/internal/capture"
	"whatsapp-sentinel/internal/settings"
	"whatsapp-sentinel/internal/statestore"
	"whatsapp-sentinel/internal/surveil"
	"whatsapp-sentinel/internal/wa"
)

const commandPrefix = "."

// Bot owns the event loop. Every handler is total: a failing event is logged
// and dropped, never allowed to crash the host process.
type Bot struct {
	client      *whatsmeow.Client
	gateway     *wa.Gateway
	session     *wa.Session
	cfg         *settings.Settings
	interceptor *capture.Interceptor
	correlator  *capture.Correlator
	replayer    capture.Replayer
	tracker     *surveil.Tracker
	store       *statestore.Store
	log         waLog.Logger

	onLoggedOut func()
}

func New(client *whatsmeow.Client, gateway *wa.Gateway, session *wa.Session, cfg *settings.Settings,
	interceptor *capture.Interceptor, correlator *capture.Correlator, replayer capture.Replayer,
	tracker *surveil.Tracker, store *statestore.Store, log waLog.Logger) *Bot {
	return &Bot{
		client:      client,
		gateway:     gateway,
		session:     session,
		cfg:         cfg,
		interceptor: interceptor,
		correlator:  correlator,
		replayer:    replayer,
		tracker:     tracker,
		store:       store,
		log:         log,
	}
}

// SetLoggedOutHandler installs the re-pairing hook invoked when the device is
// unlinked from the phone.
func (b *Bot) SetLoggedOutHandler(fn func()) {
	b.onLoggedOut = fn
}

// HandleEvent is registered with client.AddEventHandler.
func (b *Bot) HandleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		b.handleMessage(v)
		b.session.Touch()

	case *events.CallOffer:
		b.handleCall(v)

	case *events.Connected:
		b.log.Infof("Connected to WhatsApp")
		b.session.MarkConnected()

	case *events.Disconnected:
		b.log.Warnf("Disconnected from WhatsApp")
		go func() {
			time.Sleep(2 * time.Second)
			if !b.client.IsConnected() {
				b.session.AttemptReconnect()
			}
		}()

	case *events.StreamError:
		b.log.Errorf("Stream error: %v", v)
		go func() {
			time.Sleep(5 * time.Second)
			if !b.client.IsConnected() {
				b.session.AttemptReconnect()
			}
		}()

	case *events.StreamReplaced:
		b.log.Warnf("Stream replaced by another device session")
		b.session.MarkNeedsReauth()

	case *events.LoggedOut:
		b.log.Errorf("Device logged out from WhatsApp")
		b.session.MarkNeedsReauth()
		if b.onLoggedOut != nil {
			go b.onLoggedOut()
		}

	case *events.TemporaryBan:
		b.log.Errorf("Temporary ban from WhatsApp. Code: %s, Expire: %v", v.Code, v.Expire)
		b.session.StopRetrying()
	}
}

func (b *Bot) handleMessage(evt *events.Message) {
	ctx := context.Background()

	in, revokeID := wa.Classify(evt)
	if revokeID != "" {
		b.correlator.OnRemoval(ctx, revokeID)
		return
	}
	if in == nil {
		return
	}

	if in.FromSelf {
		// The operator drives the bot from their own account.
		if text := strings.TrimSpace(in.Text); strings.HasPrefix(text, commandPrefix) {
			b.handleCommand(ctx, text)
		}
		return
	}

	b.interceptor.OnInbound(ctx, in)

	groupCtx := ""
	if in.Origin == capture.OriginGroup {
		groupCtx = in.GroupID
	}
	b.tracker.Record(in.SubjectID, in.DisplayName, in.Kind, groupCtx)

	// Live forwarding is a trigger of its own, independent of deletion.
	if b.tracker.IsWatched(in.SubjectID) {
		b.forwardWatched(ctx, in)
	}
}

// forwardWatched replays a watched subject's message. The stored record is
// preferred over a fresh one so an eagerly fetched payload is not downloaded
// a second time; toggled-off content was never stored and replays from the
// inbound event directly.
func (b *Bot) forwardWatched(ctx context.Context, in *capture.Inbound) {
	rec, ok := b.interceptor.Lookup(in.ID)
	if !ok {
		rec = capture.NewRecord(in)
	}
	b.replayer.Replay(ctx, rec, capture.TriggerWatch, time.Now())
}

func (b *Bot) handleCall(v *events.CallOffer) {
	if !b.cfg.AntiCall() {
		return
	}
	if err := b.gateway.RejectCall(v.CallCreator, v.CallID); err != nil {
		b.log.Warnf("Failed to reject call %s: %v", v.CallID, err)
		return
	}
	b.log.Infof("Rejected incoming call from %s", v.CallCreator)

	ctx := context.Background()
	if operator := b.gateway.Operator(); operator != "" {
		notice := "📵 Rejected incoming call from " + v.CallCreator.User
		if err := b.gateway.SendText(ctx, operator, notice); err != nil {
			b.log.Warnf("Failed to notify operator about rejected call: %v", err)
		}
	}
}

// Stats is the capture counters exposed to the command layer.
type Stats struct {
	StoredMessages  int `json:"stored_messages"`
	StoredViewOnce  int `json:"stored_view_once"`
	StoredStatuses  int `json:"stored_statuses"`
	DeletedMessages int `json:"deleted_messages"`
	DeletedStatuses int `json:"deleted_statuses"`
}

// CaptureStats reports the live cache and deleted-log sizes.
func (b *Bot) CaptureStats() Stats {
	return Stats{
		StoredMessages:  b.interceptor.Messages.Len(),
		StoredViewOnce:  b.interceptor.ViewOnce.Len(),
		StoredStatuses:  b.interceptor.Statuses.Len(),
		DeletedMessages: b.correlator.DeletedMessages.Len(),
		DeletedStatuses: b.correlator.DeletedStatuses.Len(),
	}
}

// ListDeleted returns up to limit deleted records of the given kind
// ("message" or "status"), newest first.
func (b *Bot) ListDeleted(kind string, limit int) []*capture.DeletedRecord {
	var src *capture.CappedLog[*capture.DeletedRecord]
	switch kind {
	case "status":
		src = b.correlator.DeletedStatuses
	default:
		src = b.correlator.DeletedMessages
	}

	items := src.Items()
	// Newest first.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
