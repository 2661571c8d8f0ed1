package capture

import "time"

// Origin classifies where a captured message came from.
type Origin int

const (
	OriginDirect Origin = iota
	OriginGroup
	OriginStatus
)

func (o Origin) String() string {
	switch o {
	case OriginDirect:
		return "direct"
	case OriginGroup:
		return "group"
	case OriginStatus:
		return "status"
	}
	return "unknown"
}

// ContentKind is the closed set of content types the pipeline understands.
// Unrecognized transport payloads map to KindUnknown and are still captured
// text-only.
type ContentKind int

const (
	KindText ContentKind = iota
	KindImage
	KindVideo
	KindAudio
	KindDocument
	KindUnknown
)

func (k ContentKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindDocument:
		return "document"
	}
	return "unknown"
}

// MediaRef holds everything needed to re-fetch an encrypted media payload
// later, without holding the payload itself.
type MediaRef struct {
	URL           string
	DirectPath    string
	MediaKey      []byte
	FileSHA256    []byte
	FileEncSHA256 []byte
	FileLength    uint64
	Mimetype      string
	Filename      string
	Kind          ContentKind
}

// Record is one observed piece of content. Exactly one record exists per ID
// within a store; re-observation overwrites.
type Record struct {
	ID          string
	Origin      Origin
	SubjectID   string
	DisplayName string
	GroupID     string
	Kind        ContentKind
	Text        string
	Media       *MediaRef
	Payload     []byte // set only when the fetch policy was eager
	ViewOnce    bool
	CapturedAt  time.Time
}

// DeletedRecord is a Record promoted to the deleted log after a confirmed
// removal notification.
type DeletedRecord struct {
	Record
	DeletedAt time.Time
	Source    string // "message" or "status"
}

// Inbound is the normalized form of one transport event, produced by the
// transport adapter before the interceptor sees it.
type Inbound struct {
	ID          string
	Origin      Origin
	SubjectID   string
	DisplayName string
	GroupID     string
	FromSelf    bool
	Kind        ContentKind
	Text        string
	Media       *MediaRef
	ViewOnce    bool
	Timestamp   time.Time
}

// NewRecord builds a Record from a normalized inbound event. The payload is
// left unfetched; eager fetching is the interceptor's decision.
func NewRecord(in *Inbound) *Record {
	return &Record{
		ID:          in.ID,
		Origin:      in.Origin,
		SubjectID:   in.SubjectID,
		DisplayName: in.DisplayName,
		GroupID:     in.GroupID,
		Kind:        in.Kind,
		Text:        in.Text,
		Media:       in.Media,
		ViewOnce:    in.ViewOnce,
		CapturedAt:  in.Timestamp,
	}
}

// FetchMode decides whether media bytes are pulled at capture time or only
// when a replay needs them.
type FetchMode int

const (
	FetchLazy FetchMode = iota
	FetchEager
)

// FetchPolicy maps content kinds to a fetch mode. Kinds not listed are lazy.
type FetchPolicy map[ContentKind]FetchMode

// Mode returns the fetch mode for kind, defaulting to lazy.
func (p FetchPolicy) Mode(kind ContentKind) FetchMode {
	if m, ok := p[kind]; ok {
		return m
	}
	return FetchLazy
}

// View-once and status media are exactly what later gets replayed, so their
// payloads are pulled immediately before the server expires them. Plain
// messages stay lazy: most are never deleted and eager fetching them would
// turn the message cache into a memory sink.
var (
	ViewOncePolicy = FetchPolicy{
		KindImage: FetchEager,
		KindVideo: FetchEager,
		KindAudio: FetchEager,
	}
	StatusPolicy = FetchPolicy{
		KindImage: FetchEager,
		KindVideo: FetchEager,
		KindAudio: FetchEager,
	}
	MessagePolicy = FetchPolicy{}
)
