package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	waLog "go.mau.fi/whatsmeow/util/log"

	"whatsapp-sentinel/internal/capture"
	"whatsapp-sentinel/internal/settings"
	"whatsapp-sentinel/internal/statestore"
	"whatsapp-sentinel/internal/surveil"
)

type recordingReplayer struct {
	calls int
	trigs []capture.Trigger
	recs  []*capture.Record
}

func (r *recordingReplayer) Replay(ctx context.Context, rec *capture.Record, trig capture.Trigger, at time.Time) capture.Outcome {
	r.calls++
	r.trigs = append(r.trigs, trig)
	r.recs = append(r.recs, rec)
	return capture.Outcome{NoticeSent: true}
}

type nullFetcher struct{}

func (nullFetcher) Fetch(ctx context.Context, ref *capture.MediaRef) ([]byte, error) {
	return []byte("data"), nil
}

func newTestBot(t *testing.T) (*Bot, *recordingReplayer) {
	t.Helper()

	store, err := statestore.Open(t.TempDir(), waLog.Noop)
	if err != nil {
		t.Fatalf("failed to open state store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := settings.New(nil, waLog.Noop)
	interceptor := capture.NewInterceptor(cfg, nullFetcher{}, waLog.Noop)
	replayer := &recordingReplayer{}
	correlator := capture.NewCorrelator(cfg, interceptor, replayer, store, waLog.Noop)

	b := &Bot{
		cfg:         cfg,
		interceptor: interceptor,
		correlator:  correlator,
		replayer:    replayer,
		tracker:     surveil.NewTracker(),
		store:       store,
		log:         waLog.Noop,
	}
	return b, replayer
}

func TestExecPing(t *testing.T) {
	b, _ := newTestBot(t)
	if got := b.execCommand(context.Background(), "ping", nil); !strings.Contains(got, "pong") {
		t.Errorf("unexpected ping reply: %q", got)
	}
}

func TestExecUnknownCommand(t *testing.T) {
	b, _ := newTestBot(t)
	if got := b.execCommand(context.Background(), "definitely-not-a-command", nil); got != "" {
		t.Errorf("unknown commands must produce no reply, got %q", got)
	}
}

func TestExecStatsReflectsPipeline(t *testing.T) {
	b, _ := newTestBot(t)
	ctx := context.Background()

	b.interceptor.OnInbound(ctx, &capture.Inbound{
		ID: "m1", Origin: capture.OriginDirect, SubjectID: "2250000001",
		Kind: capture.KindText, Text: "hello", Timestamp: time.Now(),
	})
	b.correlator.OnRemoval(ctx, "m1")

	reply := b.execCommand(ctx, "stats", nil)
	if !strings.Contains(reply, "Deleted messages: 1") {
		t.Errorf("stats should report one deleted message:\n%s", reply)
	}

	s := b.CaptureStats()
	if s.DeletedMessages != 1 || s.StoredMessages != 0 {
		t.Errorf("unexpected stats: %+v", s)
	}
}

func TestExecDeletedListing(t *testing.T) {
	b, _ := newTestBot(t)
	ctx := context.Background()

	b.interceptor.OnInbound(ctx, &capture.Inbound{
		ID: "m1", Origin: capture.OriginDirect, SubjectID: "2250000001",
		Kind: capture.KindText, Text: "hello", Timestamp: time.Now(),
	})
	b.correlator.OnRemoval(ctx, "m1")

	reply := b.execCommand(ctx, "deleted", nil)
	if !strings.Contains(reply, "hello") || !strings.Contains(reply, "+2250000001") {
		t.Errorf("deleted listing missing record details:\n%s", reply)
	}
}

func TestExecWatchLifecycle(t *testing.T) {
	b, _ := newTestBot(t)
	ctx := context.Background()

	b.execCommand(ctx, "watch", []string{"add", "+225999"})
	if !b.tracker.IsWatched("225999") {
		t.Fatal("watch add should normalize and register the subject")
	}

	reply := b.execCommand(ctx, "watch", []string{"list"})
	if !strings.Contains(reply, "225999") {
		t.Errorf("watch list missing subject:\n%s", reply)
	}

	b.execCommand(ctx, "watch", []string{"remove", "225999"})
	if b.tracker.IsWatched("225999") {
		t.Error("watch remove should unregister the subject")
	}
}

func TestExecToggles(t *testing.T) {
	b, _ := newTestBot(t)
	ctx := context.Background()

	b.execCommand(ctx, "antidelete", []string{"off"})
	if b.cfg.AntiDelete() {
		t.Error("antidelete off not applied")
	}
	b.execCommand(ctx, "autostatus", []string{"on"})
	if !b.cfg.AutoSaveStatus() {
		t.Error("autostatus on not applied")
	}
	if reply := b.execCommand(ctx, "anticall", []string{"sideways"}); !strings.Contains(reply, "Usage") {
		t.Errorf("invalid toggle arg should print usage, got %q", reply)
	}
}

func TestExecViewOnceReplay(t *testing.T) {
	b, replayer := newTestBot(t)
	ctx := context.Background()

	b.interceptor.OnInbound(ctx, &capture.Inbound{
		ID: "v1", Origin: capture.OriginDirect, SubjectID: "2250000002",
		Kind: capture.KindImage, ViewOnce: true,
		Media:     &capture.MediaRef{URL: "https://mmg/v.enc", Kind: capture.KindImage},
		Timestamp: time.Now(),
	})

	reply := b.execCommand(ctx, "vv", nil)
	if !strings.Contains(reply, "Replaying 1") {
		t.Errorf("unexpected vv reply: %q", reply)
	}
	if replayer.calls != 1 || replayer.trigs[0] != capture.TriggerViewOnce {
		t.Errorf("expected one view-once replay, got %+v", replayer.trigs)
	}
}

func TestExecModeration(t *testing.T) {
	b, _ := newTestBot(t)
	ctx := context.Background()

	if reply := b.execCommand(ctx, "ban", []string{"+2250000009", "spam"}); !strings.Contains(reply, "Banned") {
		t.Errorf("unexpected ban reply: %q", reply)
	}
	if reply := b.execCommand(ctx, "bans", nil); !strings.Contains(reply, "2250000009") {
		t.Errorf("bans listing missing entry: %q", reply)
	}
	if reply := b.execCommand(ctx, "warn", []string{"2250000009"}); !strings.Contains(reply, "1 warning") {
		t.Errorf("unexpected warn reply: %q", reply)
	}
	if reply := b.execCommand(ctx, "unban", []string{"2250000009"}); !strings.Contains(reply, "Unbanned") {
		t.Errorf("unexpected unban reply: %q", reply)
	}
	if reply := b.execCommand(ctx, "unban", []string{"2250000009"}); !strings.Contains(reply, "not banned") {
		t.Errorf("second unban should be a no-op: %q", reply)
	}
}

func TestWatchedSubjectTriggersLiveReplay(t *testing.T) {
	b, replayer := newTestBot(t)
	ctx := context.Background()

	b.tracker.WatchAdd("225999")

	in := &capture.Inbound{
		ID: "w1", Origin: capture.OriginDirect, SubjectID: "225999",
		Kind: capture.KindImage,
		Media: &capture.MediaRef{URL: "https://mmg/w.enc", Kind: capture.KindImage},
	}
	// Mirrors the bot's inbound path without a live transport.
	b.interceptor.OnInbound(ctx, in)
	b.tracker.Record(in.SubjectID, in.DisplayName, in.Kind, "")
	if b.tracker.IsWatched(in.SubjectID) {
		b.forwardWatched(ctx, in)
	}

	if replayer.calls != 1 || replayer.trigs[0] != capture.TriggerWatch {
		t.Errorf("expected one watch-triggered replay, got %+v", replayer.trigs)
	}
	if s, ok := b.tracker.Get("225999"); !ok || s.MessageCount != 1 {
		t.Error("activity bookkeeping must run alongside live forwarding")
	}
}

func TestWatchForwardReusesFetchedPayload(t *testing.T) {
	b, replayer := newTestBot(t)
	ctx := context.Background()

	b.tracker.WatchAdd("225999")

	// View-once media is fetched eagerly at capture time; the watch forward
	// must replay the stored record so those bytes are not downloaded again.
	in := &capture.Inbound{
		ID: "w2", Origin: capture.OriginDirect, SubjectID: "225999",
		Kind: capture.KindImage, ViewOnce: true,
		Media:     &capture.MediaRef{URL: "https://mmg/w.enc", Kind: capture.KindImage},
		Timestamp: time.Now(),
	}
	b.interceptor.OnInbound(ctx, in)
	b.forwardWatched(ctx, in)

	if replayer.calls != 1 {
		t.Fatalf("expected one replay, got %d", replayer.calls)
	}
	if string(replayer.recs[0].Payload) != "data" {
		t.Errorf("replayed record lost the fetched payload: %q", replayer.recs[0].Payload)
	}
}

func TestWatchForwardUnstoredFallsBack(t *testing.T) {
	b, replayer := newTestBot(t)
	ctx := context.Background()

	b.cfg.SetAntiDelete(false)
	b.tracker.WatchAdd("225999")

	in := &capture.Inbound{
		ID: "w3", Origin: capture.OriginDirect, SubjectID: "225999",
		Kind: capture.KindText, Text: "hi", Timestamp: time.Now(),
	}
	// Anti-delete off means the message is never cached.
	b.interceptor.OnInbound(ctx, in)
	b.forwardWatched(ctx, in)

	if replayer.calls != 1 {
		t.Fatalf("expected one replay, got %d", replayer.calls)
	}
	if replayer.recs[0].ID != "w3" || replayer.recs[0].Text != "hi" {
		t.Errorf("fallback record does not match the inbound event: %+v", replayer.recs[0])
	}
}
