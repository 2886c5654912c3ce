package chat

// Topic is the server-side description of a conversation namespace. The
// client keeps its own view in Conversation; Topic only appears in admin
// flows and info fetches.
type Topic struct {
	ID        string            `json:"id"`
	Name      string            `json:"name,omitempty"`
	Icon      string            `json:"icon,omitempty"`
	OwnerID   string            `json:"ownerId,omitempty"`
	Multiple  bool              `json:"multiple,omitempty"`
	Members   int64             `json:"members,omitempty"`
	Admins    []string          `json:"admins,omitempty"`
	LastSeq   int64             `json:"lastSeq,omitempty"`
	Notice    *TopicNotice      `json:"notice,omitempty"`
	Silent    bool              `json:"silent,omitempty"`
	Private   bool              `json:"private,omitempty"`
	CreatedAt string            `json:"createdAt,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// TopicNotice is the pinned announcement of a topic.
type TopicNotice struct {
	Text      string `json:"text,omitempty"`
	Publisher string `json:"publisher,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// TopicMember is one membership row of a multi-party topic.
type TopicMember struct {
	TopicID   string `json:"topicId"`
	UserID    string `json:"userId"`
	Remark    string `json:"remark,omitempty"`
	SilentEnd string `json:"silentEnd,omitempty"`
	JoinedAt  string `json:"joinedAt,omitempty"`
}

// TopicKnock is a pending join request on a private topic.
type TopicKnock struct {
	TopicID   string `json:"topicId"`
	UserID    string `json:"userId"`
	Message   string `json:"message,omitempty"`
	Source    string `json:"source,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
	Status    string `json:"status,omitempty"`
}
