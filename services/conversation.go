package services

import (
	"context"

	"github.com/parley-im/parley-go/chat"
)

// ListConversationsOption narrows one page of the conversation list.
// Category filters server-side; LastRemovedAt asks for topics removed since
// that cursor to come back in Removed.
type ListConversationsOption struct {
	UpdatedAt     string `json:"updatedAt,omitempty"`
	Limit         int    `json:"limit,omitempty"`
	Category      string `json:"category,omitempty"`
	LastRemovedAt string `json:"lastRemovedAt,omitempty"`
}

// ConversationListResult is one page of the server's conversation list,
// newest update first. UpdatedAt is the cursor for the next page; Removed
// names topics deleted since the caller's cursor.
type ConversationListResult struct {
	Items     []*chat.Conversation `json:"items,omitempty"`
	UpdatedAt string               `json:"updatedAt,omitempty"`
	HasMore   bool                 `json:"hasMore,omitempty"`
	Total     int64                `json:"total,omitempty"`
	Removed   []string             `json:"removed,omitempty"`
}

// ChatLogListResult is one descending page of a topic's chat logs.
type ChatLogListResult struct {
	Items   []*chat.Log `json:"items,omitempty"`
	LastSeq int64       `json:"lastSeq,omitempty"`
	HasMore bool        `json:"hasMore,omitempty"`
}

// ConversationUpdateFields selects which attributes to change; nil pointers
// leave the server value alone.
type ConversationUpdateFields struct {
	Sticky *bool             `json:"sticky,omitempty"`
	Mute   *bool             `json:"mute,omitempty"`
	Remark *string           `json:"remark,omitempty"`
	Tags   []string          `json:"tags,omitempty"`
	Extra  map[string]string `json:"extra,omitempty"`
}

// ListConversations fetches one page of the conversation list.
func (s *Service) ListConversations(ctx context.Context, opt ListConversationsOption) (*ConversationListResult, error) {
	var res ConversationListResult
	if err := s.post(ctx, "/chat/list", &opt, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetConversation fetches the full server view of one conversation.
func (s *Service) GetConversation(ctx context.Context, topicID string) (*chat.Conversation, error) {
	var res chat.Conversation
	if err := s.post(ctx, "/chat/info/"+topicID, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UpdateConversation changes conversation attributes server-side.
func (s *Service) UpdateConversation(ctx context.Context, topicID string, fields *ConversationUpdateFields) error {
	return s.post(ctx, "/chat/update/"+topicID, fields, nil)
}

// RemoveConversation deletes the conversation from the server's list.
func (s *Service) RemoveConversation(ctx context.Context, topicID string) error {
	return s.post(ctx, "/chat/remove/"+topicID, nil, nil)
}

// SetConversationRead marks the conversation read up to seq; zero means up
// to the conversation's newest message.
func (s *Service) SetConversationRead(ctx context.Context, topicID string, seq int64) error {
	body := struct {
		Seq int64 `json:"seq,omitempty"`
	}{Seq: seq}
	return s.post(ctx, "/chat/read/"+topicID, &body, nil)
}

// CleanMessages clears the topic's history server-side.
func (s *Service) CleanMessages(ctx context.Context, topicID string) error {
	return s.post(ctx, "/chat/clear_messages/"+topicID, nil, nil)
}

// SyncChatLogs fetches one descending page of chat logs, starting just below
// lastSeq (zero starts from the topic head). The server caps limit at 100.
func (s *Service) SyncChatLogs(ctx context.Context, topicID string, lastSeq int64, limit int) (*ChatLogListResult, error) {
	body := struct {
		LastSeq int64 `json:"lastSeq,omitempty"`
		Limit   int   `json:"limit,omitempty"`
	}{LastSeq: lastSeq, Limit: limit}

	var res ChatLogListResult
	if err := s.post(ctx, "/chat/sync/"+topicID, &body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SendChatRequest submits an envelope over REST instead of the socket. The
// response carries the server-assigned seq.
func (s *Service) SendChatRequest(ctx context.Context, topicID string, req *chat.Request) (*chat.Request, error) {
	var res chat.Request
	if err := s.post(ctx, "/chat/send/"+topicID, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
