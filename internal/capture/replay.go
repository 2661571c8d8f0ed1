package capture

import (
	"context"
	"fmt"
	"strings"
	"time"

	waLog "go.mau.fi/whatsmeow/util/log"
)

// noticeTextLimit bounds how much of the original text body is quoted in a
// recovery notice.
const noticeTextLimit = 200

// Trigger says why a record is being replayed.
type Trigger int

const (
	TriggerMessageDeleted Trigger = iota
	TriggerStatusDeleted
	TriggerWatch
	TriggerViewOnce
)

func (t Trigger) headline() string {
	switch t {
	case TriggerMessageDeleted:
		return "🗑️ Deleted message recovered"
	case TriggerStatusDeleted:
		return "🗑️ Deleted status recovered"
	case TriggerWatch:
		return "👁️ Watched subject activity"
	case TriggerViewOnce:
		return "📸 View-once capture"
	}
	return "Recovered content"
}

// Sender delivers composed content to a chat target.
type Sender interface {
	SendText(ctx context.Context, target, text string) error
	SendMedia(ctx context.Context, target string, kind ContentKind, payload []byte, mimetype, caption, filename string) error
}

// Outcome reports what a replay attempt managed to deliver. Failures are
// terminal: nothing is ever retried, so a lost notice stays lost rather than
// risking a duplicate.
type Outcome struct {
	NoticeSent   bool
	MediaSent    bool
	MediaSkipped bool // media existed but could not be fetched or sent
}

// Engine re-emits captured records to the operator's private channel. The
// operator target is resolved per call since the self JID only exists after
// pairing.
type Engine struct {
	sender   Sender
	fetcher  MediaFetcher
	operator func() string
	log      waLog.Logger
}

func NewEngine(sender Sender, fetcher MediaFetcher, operator func() string, log waLog.Logger) *Engine {
	return &Engine{sender: sender, fetcher: fetcher, operator: operator, log: log}
}

// Replay sends a text notice describing rec, then the media payload as a
// follow-up when one is available. Media fetch or send failure degrades to
// the text-only path; Replay never returns an error.
func (e *Engine) Replay(ctx context.Context, rec *Record, trig Trigger, at time.Time) Outcome {
	var out Outcome

	target := e.operator()
	if target == "" {
		e.log.Warnf("No operator channel available, dropping replay of %s", rec.ID)
		return out
	}

	if err := e.sender.SendText(ctx, target, composeNotice(rec, trig, at)); err != nil {
		e.log.Warnf("Failed to send recovery notice for %s: %v", rec.ID, err)
	} else {
		out.NoticeSent = true
	}

	payload := rec.Payload
	if payload == nil && rec.Media != nil {
		data, err := e.fetcher.Fetch(ctx, rec.Media)
		if err != nil {
			e.log.Warnf("Media re-fetch failed for %s (%s): %v", rec.ID, rec.Kind, err)
			out.MediaSkipped = true
			return out
		}
		payload = data
	}
	if payload == nil {
		return out
	}

	mimetype, filename := "", ""
	if rec.Media != nil {
		mimetype = rec.Media.Mimetype
		filename = rec.Media.Filename
	}
	if err := e.sender.SendMedia(ctx, target, rec.Kind, payload, mimetype, rec.Text, filename); err != nil {
		e.log.Warnf("Failed to send recovered media for %s: %v", rec.ID, err)
		out.MediaSkipped = true
		return out
	}
	out.MediaSent = true
	return out
}

func composeNotice(rec *Record, trig Trigger, at time.Time) string {
	var b strings.Builder
	b.WriteString(trig.headline())
	fmt.Fprintf(&b, "\nFrom: %s (%s)", displayName(rec), formatSubject(rec.SubjectID))
	fmt.Fprintf(&b, "\nOrigin: %s | Kind: %s", rec.Origin, rec.Kind)
	fmt.Fprintf(&b, "\nCaptured: %s", rec.CapturedAt.Format("2006-01-02 15:04:05"))

	switch trig {
	case TriggerMessageDeleted, TriggerStatusDeleted:
		fmt.Fprintf(&b, "\nDeleted: %s", at.Format("2006-01-02 15:04:05"))
	default:
		fmt.Fprintf(&b, "\nSeen: %s", at.Format("2006-01-02 15:04:05"))
	}

	if rec.Text != "" {
		fmt.Fprintf(&b, "\n\n%s", truncate(rec.Text, noticeTextLimit))
	}
	return b.String()
}

func displayName(rec *Record) string {
	if rec.DisplayName != "" {
		return rec.DisplayName
	}
	return "unknown"
}

// formatSubject renders a bare phone-number identifier as +number; anything
// else passes through untouched.
func formatSubject(subject string) string {
	if subject == "" {
		return "?"
	}
	for _, r := range subject {
		if r < '0' || r > '9' {
			return subject
		}
	}
	return "+" + subject
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
