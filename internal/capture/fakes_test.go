package capture

import (
	"context"
	"errors"
	"time"
)

type fakeToggles struct {
	antiDelete bool
	autoStatus bool
}

func (f *fakeToggles) AntiDelete() bool     { return f.antiDelete }
func (f *fakeToggles) AutoSaveStatus() bool { return f.autoStatus }

type fakeFetcher struct {
	data  []byte
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context, ref *MediaRef) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

type sentText struct {
	target string
	text   string
}

type sentMedia struct {
	target   string
	kind     ContentKind
	payload  []byte
	mimetype string
	caption  string
	filename string
}

type fakeSender struct {
	texts    []sentText
	media    []sentMedia
	textErr  error
	mediaErr error
}

func (f *fakeSender) SendText(ctx context.Context, target, text string) error {
	if f.textErr != nil {
		return f.textErr
	}
	f.texts = append(f.texts, sentText{target, text})
	return nil
}

func (f *fakeSender) SendMedia(ctx context.Context, target string, kind ContentKind, payload []byte, mimetype, caption, filename string) error {
	if f.mediaErr != nil {
		return f.mediaErr
	}
	f.media = append(f.media, sentMedia{target, kind, payload, mimetype, caption, filename})
	return nil
}

type replayCall struct {
	rec  *Record
	trig Trigger
}

type fakeReplayer struct {
	calls []replayCall
}

func (f *fakeReplayer) Replay(ctx context.Context, rec *Record, trig Trigger, at time.Time) Outcome {
	f.calls = append(f.calls, replayCall{rec, trig})
	return Outcome{NoticeSent: true}
}

var errFetch = errors.New("media server unreachable")

func textInbound(id, subject, text string) *Inbound {
	return &Inbound{
		ID:          id,
		Origin:      OriginDirect,
		SubjectID:   subject,
		DisplayName: "Tester",
		Kind:        KindText,
		Text:        text,
		Timestamp:   time.Now(),
	}
}
