package wa

import (
	"time"

	waProto "go.mau.fi/whatsmeow/binary/proto"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"whatsapp-sentinel/internal/capture"
)

// Classify normalizes one transport event. It returns either an inbound
// record, or the id named by a delete-for-everyone revocation, or neither
// (empty protocol chatter).
func Classify(evt *events.Message) (*capture.Inbound, string) {
	msg := evt.Message
	if msg == nil {
		return nil, ""
	}

	// Unwrap transparent containers before looking at the content itself.
	if dsm := msg.GetDeviceSentMessage(); dsm != nil && dsm.GetMessage() != nil {
		msg = dsm.GetMessage()
	}
	if eph := msg.GetEphemeralMessage(); eph != nil && eph.GetMessage() != nil {
		msg = eph.GetMessage()
	}

	if prot := msg.GetProtocolMessage(); prot != nil {
		if prot.GetType() == waProto.ProtocolMessage_REVOKE {
			return nil, prot.GetKey().GetID()
		}
		return nil, ""
	}

	msg, viewOnce := unwrapViewOnce(msg)
	kind, text, media := extractContent(msg)

	in := &capture.Inbound{
		ID:          evt.Info.ID,
		SubjectID:   evt.Info.Sender.User,
		DisplayName: evt.Info.PushName,
		FromSelf:    evt.Info.IsFromMe,
		Kind:        kind,
		Text:        text,
		Media:       media,
		ViewOnce:    viewOnce,
		Timestamp:   evt.Info.Timestamp,
	}

	switch {
	case evt.Info.Chat == types.StatusBroadcastJID:
		in.Origin = capture.OriginStatus
	case evt.Info.IsGroup:
		in.Origin = capture.OriginGroup
		in.GroupID = evt.Info.Chat.String()
	default:
		in.Origin = capture.OriginDirect
	}
	return in, ""
}

// unwrapViewOnce peels the view-once wrappers (three protocol generations)
// and checks the per-media flag used by newer clients.
func unwrapViewOnce(msg *waProto.Message) (*waProto.Message, bool) {
	if v := msg.GetViewOnceMessage(); v != nil && v.GetMessage() != nil {
		return v.GetMessage(), true
	}
	if v := msg.GetViewOnceMessageV2(); v != nil && v.GetMessage() != nil {
		return v.GetMessage(), true
	}
	if v := msg.GetViewOnceMessageV2Extension(); v != nil && v.GetMessage() != nil {
		return v.GetMessage(), true
	}
	if img := msg.GetImageMessage(); img != nil && img.GetViewOnce() {
		return msg, true
	}
	if vid := msg.GetVideoMessage(); vid != nil && vid.GetViewOnce() {
		return msg, true
	}
	if aud := msg.GetAudioMessage(); aud != nil && aud.GetViewOnce() {
		return msg, true
	}
	return msg, false
}

// extractContent switches on the proto message union and produces the
// normalized kind, text body, and media ref.
func extractContent(msg *waProto.Message) (capture.ContentKind, string, *capture.MediaRef) {
	if text := msg.GetConversation(); text != "" {
		return capture.KindText, text, nil
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return capture.KindText, ext.GetText(), nil
	}

	if img := msg.GetImageMessage(); img != nil {
		return capture.KindImage, img.GetCaption(), &capture.MediaRef{
			URL:           img.GetURL(),
			DirectPath:    img.GetDirectPath(),
			MediaKey:      img.GetMediaKey(),
			FileSHA256:    img.GetFileSHA256(),
			FileEncSHA256: img.GetFileEncSHA256(),
			FileLength:    img.GetFileLength(),
			Mimetype:      img.GetMimetype(),
			Filename:      "image_" + time.Now().Format("20060102_150405") + ".jpg",
			Kind:          capture.KindImage,
		}
	}
	if vid := msg.GetVideoMessage(); vid != nil {
		return capture.KindVideo, vid.GetCaption(), &capture.MediaRef{
			URL:           vid.GetURL(),
			DirectPath:    vid.GetDirectPath(),
			MediaKey:      vid.GetMediaKey(),
			FileSHA256:    vid.GetFileSHA256(),
			FileEncSHA256: vid.GetFileEncSHA256(),
			FileLength:    vid.GetFileLength(),
			Mimetype:      vid.GetMimetype(),
			Filename:      "video_" + time.Now().Format("20060102_150405") + ".mp4",
			Kind:          capture.KindVideo,
		}
	}
	if aud := msg.GetAudioMessage(); aud != nil {
		return capture.KindAudio, "", &capture.MediaRef{
			URL:           aud.GetURL(),
			DirectPath:    aud.GetDirectPath(),
			MediaKey:      aud.GetMediaKey(),
			FileSHA256:    aud.GetFileSHA256(),
			FileEncSHA256: aud.GetFileEncSHA256(),
			FileLength:    aud.GetFileLength(),
			Mimetype:      aud.GetMimetype(),
			Filename:      "audio_" + time.Now().Format("20060102_150405") + ".ogg",
			Kind:          capture.KindAudio,
		}
	}
	if doc := msg.GetDocumentMessage(); doc != nil {
		filename := doc.GetFileName()
		if filename == "" {
			filename = "document_" + time.Now().Format("20060102_150405")
		}
		return capture.KindDocument, doc.GetCaption(), &capture.MediaRef{
			URL:           doc.GetURL(),
			DirectPath:    doc.GetDirectPath(),
			MediaKey:      doc.GetMediaKey(),
			FileSHA256:    doc.GetFileSHA256(),
			FileEncSHA256: doc.GetFileEncSHA256(),
			FileLength:    doc.GetFileLength(),
			Mimetype:      doc.GetMimetype(),
			Filename:      filename,
			Kind:          capture.KindDocument,
		}
	}

	// Unrecognized tags still get captured text-only so nothing is lost
	// silently.
	switch {
	case msg.GetStickerMessage() != nil:
		return capture.KindUnknown, "[sticker]", nil
	case msg.GetContactMessage() != nil:
		return capture.KindUnknown, "[contact] " + msg.GetContactMessage().GetDisplayName(), nil
	case msg.GetLocationMessage() != nil:
		return capture.KindUnknown, "[location]", nil
	case msg.GetPollCreationMessage() != nil:
		return capture.KindUnknown, "[poll] " + msg.GetPollCreationMessage().GetName(), nil
	}
	return capture.KindUnknown, "", nil
}
