// Package chat defines the core data model of the Parley client SDK: the
// wire envelope, contents, chat logs, conversations and users, together
// with the error taxonomy and the tunable configuration.
package chat

import "time"

// AuthInfo holds the credential for one signed-in session. Immutable once
// issued; a new login produces a new AuthInfo.
type AuthInfo struct {
	Endpoint string `json:"endpoint"`
	UserID   string `json:"userId"`
	Token    string `json:"token"`
	Name     string `json:"name,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
	IsStaff  bool   `json:"isStaff,omitempty"`
	IsCross  bool   `json:"isCross,omitempty"`
}

// ContentType tags the payload of a Content. The set below is closed on the
// client side; any other string received from the server is preserved
// verbatim so it can round-trip back.
type ContentType string

const (
	ContentTypeText     ContentType = "text"
	ContentTypeImage    ContentType = "image"
	ContentTypeVideo    ContentType = "video"
	ContentTypeVoice    ContentType = "voice"
	ContentTypeFile     ContentType = "file"
	ContentTypeLocation ContentType = "location"
	ContentTypeLink     ContentType = "link"
	ContentTypeLogs     ContentType = "logs"
	ContentTypeInvite   ContentType = "invite"
	ContentTypeSticker  ContentType = "sticker"
	ContentTypeContact  ContentType = "contact"
	ContentTypeRecall   ContentType = "recall"

	ContentTypeTopicCreate       ContentType = "topic.create"
	ContentTypeTopicJoin         ContentType = "topic.join"
	ContentTypeTopicQuit         ContentType = "topic.quit"
	ContentTypeTopicKickout      ContentType = "topic.kickout"
	ContentTypeTopicDismiss      ContentType = "topic.dismiss"
	ContentTypeTopicSilent       ContentType = "topic.silent"
	ContentTypeTopicSilentMember ContentType = "topic.silent.member"
	ContentTypeTopicChangeOwner  ContentType = "topic.changeowner"
	ContentTypeTopicKnock        ContentType = "topic.knock"

	ContentTypeConversationUpdate  ContentType = "conversation.update"
	ContentTypeConversationRemoved ContentType = "conversation.removed"
	ContentTypeUpdateExtra         ContentType = "update.extra"
	ContentTypeNone                ContentType = "none"
)

// IsValid checks if the content type belongs to the closed set.
func (t ContentType) IsValid() bool {
	switch t {
	case ContentTypeText, ContentTypeImage, ContentTypeVideo, ContentTypeVoice,
		ContentTypeFile, ContentTypeLocation, ContentTypeLink, ContentTypeLogs,
		ContentTypeInvite, ContentTypeSticker, ContentTypeContact, ContentTypeRecall,
		ContentTypeTopicCreate, ContentTypeTopicJoin, ContentTypeTopicQuit,
		ContentTypeTopicKickout, ContentTypeTopicDismiss, ContentTypeTopicSilent,
		ContentTypeTopicSilentMember, ContentTypeTopicChangeOwner, ContentTypeTopicKnock,
		ContentTypeConversationUpdate, ContentTypeConversationRemoved,
		ContentTypeUpdateExtra, ContentTypeNone:
		return true
	default:
		return false
	}
}

// Countable reports whether a message of this type counts toward a
// conversation's unread total. Control notices, recalls and unknown types
// never do.
func (t ContentType) Countable() bool {
	switch t {
	case ContentTypeText, ContentTypeImage, ContentTypeVideo, ContentTypeVoice,
		ContentTypeFile, ContentTypeLocation, ContentTypeLink, ContentTypeLogs,
		ContentTypeInvite, ContentTypeSticker, ContentTypeContact:
		return true
	default:
		return false
	}
}

// Content is the payload of a chat message. Which fields are meaningful
// depends on Type; empty fields are omitted from the wire frame.
type Content struct {
	Type        ContentType       `json:"type"`
	Text        string            `json:"text,omitempty"`
	Placeholder string            `json:"placeholder,omitempty"`
	Thumbnail   string            `json:"thumbnail,omitempty"`
	Duration    string            `json:"duration,omitempty"`
	Size        int64             `json:"size,omitempty"`
	Width       float64           `json:"width,omitempty"`
	Height      float64           `json:"height,omitempty"`
	Mentions    []string          `json:"mentions,omitempty"`
	MentionAll  bool              `json:"mentionAll,omitempty"`
	Reply       string            `json:"reply,omitempty"`
	Unreadable  bool              `json:"unreadable,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`

	// Attachment is local transfer state only. It never goes on the wire;
	// the uploaded location replaces Text/Size/Thumbnail before sending.
	Attachment *Attachment `json:"-"`
}

// AttachmentStatus describes where an attachment is in its transfer.
type AttachmentStatus string

const (
	AttachmentToUpload    AttachmentStatus = "toUpload"
	AttachmentToDownload  AttachmentStatus = "toDownload"
	AttachmentUploading   AttachmentStatus = "uploading"
	AttachmentDownloading AttachmentStatus = "downloading"
	AttachmentPaused      AttachmentStatus = "paused"
	AttachmentDone        AttachmentStatus = "done"
	AttachmentFailed      AttachmentStatus = "failed"
)

// Attachment carries a file through the upload or download pipeline.
// FilePath is authoritative unless Blob holds host-provided bytes.
type Attachment struct {
	URL       string           `json:"url,omitempty"`
	Size      int64            `json:"size,omitempty"`
	Thumbnail string           `json:"thumbnail,omitempty"`
	FileName  string           `json:"fileName,omitempty"`
	FilePath  string           `json:"filePath,omitempty"`
	IsPrivate bool             `json:"isPrivate,omitempty"`
	Status    AttachmentStatus `json:"status,omitempty"`
	Blob      []byte           `json:"-"`
}

// LogStatus is the delivery state of a chat log.
type LogStatus int

const (
	LogStatusUploading LogStatus = iota
	LogStatusSending
	LogStatusSent
	LogStatusDownloading
	LogStatusReceived
	LogStatusRead
	LogStatusSendFailed
)

// String returns the string representation of LogStatus.
func (s LogStatus) String() string {
	switch s {
	case LogStatusUploading:
		return "uploading"
	case LogStatusSending:
		return "sending"
	case LogStatusSent:
		return "sent"
	case LogStatusDownloading:
		return "downloading"
	case LogStatusReceived:
		return "received"
	case LogStatusRead:
		return "read"
	case LogStatusSendFailed:
		return "sendFailed"
	default:
		return "unknown"
	}
}

// Log is one chat message as stored locally. ID is client-generated for
// outgoing messages and server-assigned for incoming ones; Seq is always
// server-assigned and monotone within a topic.
type Log struct {
	TopicID   string    `json:"topicId"`
	ID        string    `json:"id"`
	Seq       int64     `json:"seq,omitempty"`
	CreatedAt string    `json:"createdAt,omitempty"`
	SenderID  string    `json:"senderId,omitempty"`
	Content   Content   `json:"content"`
	Read      bool      `json:"read,omitempty"`
	Recall    bool      `json:"recall,omitempty"`
	Status    LogStatus `json:"status,omitempty"`
	CachedAt  int64     `json:"cachedAt,omitempty"`
}

// Conversation is the local view of one topic: counters, read state and a
// copy of the last message for list rendering.
type Conversation struct {
	TopicID        string            `json:"topicId"`
	OwnerID        string            `json:"ownerId,omitempty"`
	UpdatedAt      string            `json:"updatedAt,omitempty"`
	StartSeq       int64             `json:"startSeq,omitempty"`
	LastSeq        int64             `json:"lastSeq,omitempty"`
	LastReadSeq    int64             `json:"lastReadSeq,omitempty"`
	LastReadAt     string            `json:"lastReadAt,omitempty"`
	Multiple       bool              `json:"multiple,omitempty"`
	Attendee       string            `json:"attendee,omitempty"`
	Members        int64             `json:"members,omitempty"`
	Name           string            `json:"name,omitempty"`
	Icon           string            `json:"icon,omitempty"`
	Sticky         bool              `json:"sticky,omitempty"`
	Mute           bool              `json:"mute,omitempty"`
	Source         string            `json:"source,omitempty"`
	Unread         int64             `json:"unread,omitempty"`
	LastSenderID   string            `json:"lastSenderId,omitempty"`
	LastMessage    *Content          `json:"lastMessage,omitempty"`
	LastMessageAt  string            `json:"lastMessageAt,omitempty"`
	LastMessageSeq int64             `json:"lastMessageSeq,omitempty"`
	Remark         string            `json:"remark,omitempty"`
	Extra          map[string]string `json:"extra,omitempty"`
	TopicExtra     map[string]string `json:"topicExtra,omitempty"`
	TopicOwnerID   string            `json:"topicOwnerId,omitempty"`
	TopicCreatedAt string            `json:"topicCreatedAt,omitempty"`
	Tags           []string          `json:"tags,omitempty"`
	CachedAt       int64             `json:"cachedAt,omitempty"`
	IsPartial      bool              `json:"isPartial,omitempty"`
}

// UpdatedAtMillis parses UpdatedAt into unix milliseconds. A missing or
// malformed timestamp yields 0, which sorts last in descending queries.
func (c *Conversation) UpdatedAtMillis() int64 {
	return MillisFromRFC3339(c.UpdatedAt)
}

// RecountUnread recomputes the unread counter from the seq watermarks.
func (c *Conversation) RecountUnread() {
	unread := c.LastSeq - c.LastReadSeq
	if unread < 0 {
		unread = 0
	}
	c.Unread = unread
}

// User is a cached profile. Partial records are synthesized from sparse
// events and refreshed lazily on access.
type User struct {
	UserID    string `json:"userId"`
	Name      string `json:"name,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
	PublicKey string `json:"publicKey,omitempty"`
	Remark    string `json:"remark,omitempty"`
	IsContact bool   `json:"isContact,omitempty"`
	IsStar    bool   `json:"isStar,omitempty"`
	IsBlocked bool   `json:"isBlocked,omitempty"`
	Locale    string `json:"locale,omitempty"`
	City      string `json:"city,omitempty"`
	Country   string `json:"country,omitempty"`
	Source    string `json:"source,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
	Gender    string `json:"gender,omitempty"`
	CachedAt  int64  `json:"cachedAt,omitempty"`
	IsPartial bool   `json:"isPartial,omitempty"`
}

// NowRFC3339 formats the current time the way the wire protocol expects.
func NowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// NowMillis returns the current time in unix milliseconds, the unit used by
// cachedAt stamps and the conversation sort key.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// MillisFromRFC3339 parses an RFC3339 timestamp into unix milliseconds,
// returning 0 when the input is empty or malformed.
func MillisFromRFC3339(s string) int64 {
	if s == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}
