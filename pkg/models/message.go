package models

// SegmentType enumerates the wire shape of a message segment.
type SegmentType string

const (
	SegmentText  SegmentType = "text"
	SegmentImage SegmentType = "image"
	SegmentFile  SegmentType = "file"
	SegmentAt    SegmentType = "at"
)

// Segment is one element of a platform-neutral message. Exactly one of the
// type-specific fields is meaningful, selected by Type; this mirrors the
// wire segment schema rather than introducing a Go union type the JSON
// encoder can't express directly.
type Segment struct {
	Type SegmentType `json:"type"`

	// text
	Content string `json:"content,omitempty"`

	// image / file
	Base64URL string `json:"base64_url,omitempty"`
	URL       string `json:"url,omitempty"`
	Name      string `json:"name,omitempty"`
	MimeType  string `json:"mime_type,omitempty"`
	Suffix    string `json:"suffix,omitempty"`
	Size      int64  `json:"size,omitempty"`

	// at
	UserID   string `json:"user_id,omitempty"`
	Nickname string `json:"nickname,omitempty"`
}

// TextSegment builds a text wire segment.
func TextSegment(content string) Segment {
	return Segment{Type: SegmentText, Content: content}
}

// AtSegment builds an at wire segment.
func AtSegment(userID, nickname string) Segment {
	return Segment{Type: SegmentAt, UserID: userID, Nickname: nickname}
}

// OutboundMessage is a logical message addressed to a channel, carried
// through the Outbound Dispatcher to one or more subscribed clients.
type OutboundMessage struct {
	ChannelID   string
	ChannelName string
	Segments    []Segment
	Timestamp   int64
}

// InboundMessage is what a client posts back via the "message" command,
// destined for the platform-neutral ingest pipeline (collect_message).
type InboundMessage struct {
	ChannelID    string    `json:"channel_id,omitempty"`
	MsgID        string    `json:"msg_id"`
	FromID       string    `json:"from_id"`
	FromName     string    `json:"from_name"`
	FromNickname string    `json:"from_nickname"`
	Segments     []Segment `json:"segments"`
	IsToMe       bool      `json:"is_to_me"`
	IsSelf       bool      `json:"is_self"`
	Timestamp    int64     `json:"timestamp"`
}

// PlatformMessage is the neutral shape handed to the out-of-scope ingest
// pipeline; this module only builds it and calls the collaborator
// interface (pkg/externalsvc), it never persists or interprets it further.
type PlatformMessage struct {
	MessageID        string
	SenderID         string
	SenderName       string
	SenderNickname   string
	ContentSegments  []Segment
	ContentText      string
	IsToMe           bool
	IsSelf           bool
	Timestamp        int64
}
