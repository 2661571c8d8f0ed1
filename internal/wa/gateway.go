// Package wa adapts the whatsmeow client to the interfaces the capture
// pipeline consumes.
package wa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/binary/proto"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"whatsapp-sentinel/internal/capture"
)

// sendTimeout bounds every upload, download and send so a stalled call can
// never wedge the event pipeline indefinitely.
const sendTimeout = 60 * time.Second

// Gateway implements capture.Sender and capture.MediaFetcher on top of a
// live whatsmeow client.
type Gateway struct {
	client *whatsmeow.Client
	log    waLog.Logger
}

func NewGateway(client *whatsmeow.Client, log waLog.Logger) *Gateway {
	return &Gateway{client: client, log: log}
}

// Operator returns the bot account's own JID, the sole delivery target for
// recovered content. Empty until pairing completes.
func (g *Gateway) Operator() string {
	if g.client == nil || g.client.Store.ID == nil {
		return ""
	}
	return g.client.Store.ID.ToNonAD().String()
}

// targetJID accepts either a full JID string or a bare phone number.
// WhatsApp expects numbers without the + prefix.
func targetJID(recipient string) (types.JID, error) {
	if strings.Contains(recipient, "@") {
		return types.ParseJID(recipient)
	}
	phone := strings.TrimPrefix(recipient, "+")
	if phone == "" {
		return types.JID{}, errors.New("empty recipient")
	}
	return types.JID{User: phone, Server: types.DefaultUserServer}, nil
}

// SendText sends a plain text message.
func (g *Gateway) SendText(ctx context.Context, target, text string) error {
	if !g.client.IsConnected() {
		return errors.New("not connected to WhatsApp")
	}
	jid, err := targetJID(target)
	if err != nil {
		return fmt.Errorf("invalid target %q: %w", target, err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	_, err = g.client.SendMessage(sendCtx, jid, &waProto.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return fmt.Errorf("failed to send text: %w", err)
	}
	return nil
}

// SendMedia uploads payload and sends it as the message variant matching
// kind. Unknown and text kinds carry no media and are rejected.
func (g *Gateway) SendMedia(ctx context.Context, target string, kind capture.ContentKind, payload []byte, mimetype, caption, filename string) error {
	if !g.client.IsConnected() {
		return errors.New("not connected to WhatsApp")
	}
	jid, err := targetJID(target)
	if err != nil {
		return fmt.Errorf("invalid target %q: %w", target, err)
	}

	mediaType, err := uploadType(kind)
	if err != nil {
		return err
	}
	if mimetype == "" {
		mimetype = defaultMimetype(kind)
	}

	upCtx, upCancel := context.WithTimeout(ctx, sendTimeout)
	defer upCancel()
	resp, err := g.client.Upload(upCtx, payload, mediaType)
	if err != nil {
		return fmt.Errorf("failed to upload media: %w", err)
	}

	msg := &waProto.Message{}
	switch kind {
	case capture.KindImage:
		msg.ImageMessage = &waProto.ImageMessage{
			Caption:       proto.String(caption),
			Mimetype:      proto.String(mimetype),
			URL:           &resp.URL,
			DirectPath:    &resp.DirectPath,
			MediaKey:      resp.MediaKey,
			FileEncSHA256: resp.FileEncSHA256,
			FileSHA256:    resp.FileSHA256,
			FileLength:    &resp.FileLength,
		}
	case capture.KindVideo:
		msg.VideoMessage = &waProto.VideoMessage{
			Caption:       proto.String(caption),
			Mimetype:      proto.String(mimetype),
			URL:           &resp.URL,
			DirectPath:    &resp.DirectPath,
			MediaKey:      resp.MediaKey,
			FileEncSHA256: resp.FileEncSHA256,
			FileSHA256:    resp.FileSHA256,
			FileLength:    &resp.FileLength,
		}
	case capture.KindAudio:
		msg.AudioMessage = &waProto.AudioMessage{
			Mimetype:      proto.String(mimetype),
			URL:           &resp.URL,
			DirectPath:    &resp.DirectPath,
			MediaKey:      resp.MediaKey,
			FileEncSHA256: resp.FileEncSHA256,
			FileSHA256:    resp.FileSHA256,
			FileLength:    &resp.FileLength,
		}
	case capture.KindDocument:
		if filename == "" {
			filename = "document_" + time.Now().Format("20060102_150405")
		}
		msg.DocumentMessage = &waProto.DocumentMessage{
			Title:         proto.String(filename),
			FileName:      proto.String(filename),
			Caption:       proto.String(caption),
			Mimetype:      proto.String(mimetype),
			URL:           &resp.URL,
			DirectPath:    &resp.DirectPath,
			MediaKey:      resp.MediaKey,
			FileEncSHA256: resp.FileEncSHA256,
			FileSHA256:    resp.FileSHA256,
			FileLength:    &resp.FileLength,
		}
	}

	sendCtx, sendCancel := context.WithTimeout(ctx, sendTimeout)
	defer sendCancel()
	if _, err := g.client.SendMessage(sendCtx, jid, msg); err != nil {
		return fmt.Errorf("failed to send media: %w", err)
	}
	return nil
}

// Fetch downloads the payload a MediaRef points at through the whatsmeow
// media pipeline.
func (g *Gateway) Fetch(ctx context.Context, ref *capture.MediaRef) ([]byte, error) {
	if ref == nil {
		return nil, errors.New("nil media ref")
	}
	mediaType, err := uploadType(ref.Kind)
	if err != nil {
		return nil, err
	}
	if ref.URL == "" || len(ref.MediaKey) == 0 || len(ref.FileSHA256) == 0 || len(ref.FileEncSHA256) == 0 {
		return nil, errors.New("incomplete media information")
	}

	directPath := ref.DirectPath
	if directPath == "" {
		directPath = directPathFromURL(ref.URL)
	}

	dlCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	data, err := g.client.Download(dlCtx, &mediaDownloader{ref: ref, directPath: directPath, mediaType: mediaType})
	if err != nil {
		return nil, fmt.Errorf("failed to download media: %w", err)
	}
	return data, nil
}

// RejectCall declines an incoming call offer.
func (g *Gateway) RejectCall(callCreator types.JID, callID string) error {
	return g.client.RejectCall(callCreator, callID)
}

func uploadType(kind capture.ContentKind) (whatsmeow.MediaType, error) {
	switch kind {
	case capture.KindImage:
		return whatsmeow.MediaImage, nil
	case capture.KindVideo:
		return whatsmeow.MediaVideo, nil
	case capture.KindAudio:
		return whatsmeow.MediaAudio, nil
	case capture.KindDocument:
		return whatsmeow.MediaDocument, nil
	}
	return "", fmt.Errorf("unsupported media kind: %s", kind)
}

func defaultMimetype(kind capture.ContentKind) string {
	switch kind {
	case capture.KindImage:
		return "image/jpeg"
	case capture.KindVideo:
		return "video/mp4"
	case capture.KindAudio:
		return "audio/ogg; codecs=opus"
	}
	return "application/octet-stream"
}

// directPathFromURL recovers the direct path from a full media URL when the
// original message did not carry one.
func directPathFromURL(url string) string {
	parts := strings.SplitN(url, ".net/", 2)
	if len(parts) < 2 {
		return url
	}
	return "/" + strings.SplitN(parts[1], "?", 2)[0]
}

// mediaDownloader implements whatsmeow.DownloadableMessage for a stored
// MediaRef.
type mediaDownloader struct {
	ref        *capture.MediaRef
	directPath string
	mediaType  whatsmeow.MediaType
}

func (d *mediaDownloader) GetDirectPath() string              { return d.directPath }
func (d *mediaDownloader) GetURL() string                     { return d.ref.URL }
func (d *mediaDownloader) GetMediaKey() []byte                { return d.ref.MediaKey }
func (d *mediaDownloader) GetFileLength() uint64              { return d.ref.FileLength }
func (d *mediaDownloader) GetFileSHA256() []byte              { return d.ref.FileSHA256 }
func (d *mediaDownloader) GetFileEncSHA256() []byte           { return d.ref.FileEncSHA256 }
func (d *mediaDownloader) GetMediaType() whatsmeow.MediaType  { return d.mediaType }
