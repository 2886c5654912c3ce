package client

import (
	"context"

	"github.com/parley-im/parley-go/chat"
	"github.com/parley-im/parley-go/services"
	"github.com/parley-im/parley-go/store"
)

// GetConversations returns one descending page of the local conversation
// list, most recently updated first. startUpdatedAt is an exclusive
// unix-millis bound; zero starts at the top.
func (c *Client) GetConversations(ctx context.Context, startUpdatedAt int64, limit int) (*store.Page[chat.Conversation], error) {
	if limit <= 0 || limit > c.config.MaxConversationLimit {
		limit = c.config.MaxConversationLimit
	}
	return c.store.Conversations.Query(ctx, c.userID, store.QueryOption{StartSortValue: startUpdatedAt, Limit: limit})
}

// GetConversation resolves one conversation, local copies first. Missing or
// partial records are fetched from the server; concurrent callers of the
// same topic share a single fetch. A recently removed topic reports not
// found without touching the network.
func (c *Client) GetConversation(ctx context.Context, topicID string) (*chat.Conversation, error) {
	if _, removed := c.removedConvs.Get(topicID); removed {
		return nil, &chat.NotFoundError{Kind: "conversation", ID: topicID}
	}
	if conv, ok := c.convCache.Get(topicID); ok {
		return conv, nil
	}
	conv, err := c.store.Conversations.Get(ctx, c.userID, topicID)
	if err != nil {
		return nil, err
	}
	if conv != nil && !conv.IsPartial {
		c.convCache.Set(topicID, conv)
		return conv, nil
	}
	return c.fetchConversation(ctx, topicID)
}

// fetchConversation pulls the server view and merges it. When another
// goroutine is already fetching the topic, the local copy is returned
// instead of stacking a second request.
func (c *Client) fetchConversation(ctx context.Context, topicID string) (*chat.Conversation, error) {
	c.pendingConvMu.Lock()
	if _, inflight := c.pendingConvs[topicID]; inflight {
		c.pendingConvMu.Unlock()
		conv, err := c.store.Conversations.Get(ctx, c.userID, topicID)
		if err != nil {
			return nil, err
		}
		if conv == nil {
			return nil, &chat.NotFoundError{Kind: "conversation", ID: topicID}
		}
		return conv, nil
	}
	c.pendingConvs[topicID] = struct{}{}
	c.pendingConvMu.Unlock()
	defer func() {
		c.pendingConvMu.Lock()
		delete(c.pendingConvs, topicID)
		c.pendingConvMu.Unlock()
	}()

	remote, err := c.service.GetConversation(ctx, topicID)
	if err != nil {
		return nil, err
	}
	return c.mergeConversationFromFetch(ctx, remote)
}

// SetConversationSticky pins or unpins the conversation in the list.
func (c *Client) SetConversationSticky(ctx context.Context, topicID string, sticky bool) error {
	fields := &services.ConversationUpdateFields{Sticky: &sticky}
	return c.updateConversationFields(ctx, topicID, fields, func(conv *chat.Conversation) {
		conv.Sticky = sticky
	})
}

// SetConversationMute silences or unsilences the conversation.
func (c *Client) SetConversationMute(ctx context.Context, topicID string, mute bool) error {
	fields := &services.ConversationUpdateFields{Mute: &mute}
	return c.updateConversationFields(ctx, topicID, fields, func(conv *chat.Conversation) {
		conv.Mute = mute
	})
}

// SetConversationRemark renames the conversation for this user only.
func (c *Client) SetConversationRemark(ctx context.Context, topicID, remark string) error {
	fields := &services.ConversationUpdateFields{Remark: &remark}
	return c.updateConversationFields(ctx, topicID, fields, func(conv *chat.Conversation) {
		conv.Remark = remark
	})
}

// SetConversationTags replaces the conversation's tag set.
func (c *Client) SetConversationTags(ctx context.Context, topicID string, tags []string) error {
	fields := &services.ConversationUpdateFields{Tags: tags}
	return c.updateConversationFields(ctx, topicID, fields, func(conv *chat.Conversation) {
		conv.Tags = tags
	})
}

// SetConversationExtra replaces the conversation's free-form metadata.
func (c *Client) SetConversationExtra(ctx context.Context, topicID string, extra map[string]string) error {
	fields := &services.ConversationUpdateFields{Extra: extra}
	return c.updateConversationFields(ctx, topicID, fields, func(conv *chat.Conversation) {
		conv.Extra = extra
	})
}

// SetConversationRead marks everything in the topic read, server-side and
// locally.
func (c *Client) SetConversationRead(ctx context.Context, topicID string) error {
	if err := c.service.SetConversationRead(ctx, topicID, 0); err != nil {
		return err
	}
	_, err := c.markConversationReadLocal(ctx, topicID)
	return err
}

// RemoveConversation deletes the conversation server-side and locally. A
// short-lived tombstone keeps a concurrent sync from resurrecting it.
func (c *Client) RemoveConversation(ctx context.Context, topicID string) error {
	if err := c.service.RemoveConversation(ctx, topicID); err != nil {
		return err
	}
	c.removedConvs.Set(topicID, chat.NowMillis())
	c.convCache.Remove(topicID)
	if err := c.store.Conversations.Remove(ctx, c.userID, topicID); err != nil {
		return err
	}
	c.observer().OnConversationRemoved(topicID)
	return nil
}

// CleanMessages clears the topic's history on the server and drops every
// local log. The conversation itself survives with an empty preview.
func (c *Client) CleanMessages(ctx context.Context, topicID string) error {
	if err := c.service.CleanMessages(ctx, topicID); err != nil {
		return err
	}
	if err := c.store.ChatLogs.RemoveAll(ctx, topicID); err != nil {
		return err
	}

	c.convMu.Lock()
	defer c.convMu.Unlock()
	conv, err := c.store.Conversations.Get(ctx, c.userID, topicID)
	if err != nil || conv == nil {
		return err
	}
	conv.LastMessage = nil
	conv.LastSenderID = ""
	conv.LastMessageAt = ""
	conv.LastMessageSeq = 0
	conv.CachedAt = chat.NowMillis()
	return c.saveConversationLocked(ctx, conv)
}

// updateConversationFields pushes an attribute change to the server, then
// applies the same change to the local record.
func (c *Client) updateConversationFields(ctx context.Context, topicID string, fields *services.ConversationUpdateFields, apply func(*chat.Conversation)) error {
	if err := c.service.UpdateConversation(ctx, topicID, fields); err != nil {
		return err
	}

	c.convMu.Lock()
	defer c.convMu.Unlock()
	conv, err := c.store.Conversations.Get(ctx, c.userID, topicID)
	if err != nil {
		return err
	}
	if conv == nil {
		conv = &chat.Conversation{TopicID: topicID, IsPartial: true}
	}
	apply(conv)
	conv.CachedAt = chat.NowMillis()
	return c.saveConversationLocked(ctx, conv)
}

// mergeConversationFromFetch folds the server view of one conversation into
// the store. Local last-message fields survive only while a stored ChatLog
// backs the higher local lastSeq; the local read watermark survives unless
// the server moved past it.
func (c *Client) mergeConversationFromFetch(ctx context.Context, remote *chat.Conversation) (*chat.Conversation, error) {
	c.convMu.Lock()
	defer c.convMu.Unlock()

	local, err := c.store.Conversations.Get(ctx, c.userID, remote.TopicID)
	if err != nil {
		return nil, err
	}

	merged := *remote
	if local != nil {
		if local.LastSeq > remote.LastSeq && c.hasLogAt(ctx, remote.TopicID, local.LastSeq) {
			merged.LastSeq = local.LastSeq
			merged.LastSenderID = local.LastSenderID
			merged.LastMessage = local.LastMessage
			merged.LastMessageAt = local.LastMessageAt
			merged.LastMessageSeq = local.LastMessageSeq
			if local.UpdatedAtMillis() > merged.UpdatedAtMillis() {
				merged.UpdatedAt = local.UpdatedAt
			}
		}
		if remote.LastReadSeq > local.LastReadSeq {
			merged.LastReadSeq = remote.LastReadSeq
			merged.LastReadAt = remote.LastReadAt
		} else {
			merged.LastReadSeq = local.LastReadSeq
			merged.LastReadAt = local.LastReadAt
		}
	}
	if merged.LastReadSeq > merged.LastSeq {
		merged.LastReadSeq = merged.LastSeq
	}
	merged.IsPartial = false
	merged.CachedAt = chat.NowMillis()
	merged.RecountUnread()

	if err := c.saveConversationLocked(ctx, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

// mergeConversationFromChat advances the conversation for one pushed
// message, synthesizing a partial record when the topic is new. Unreadable
// content leaves the watermarks alone so the preview never shows it.
func (c *Client) mergeConversationFromChat(ctx context.Context, req *chat.Request) (*chat.Conversation, error) {
	c.convMu.Lock()
	defer c.convMu.Unlock()

	conv, err := c.store.Conversations.Get(ctx, c.userID, req.TopicID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		conv = &chat.Conversation{
			TopicID:   req.TopicID,
			Attendee:  req.Attendee,
			IsPartial: true,
		}
	}

	if req.Seq >= conv.LastSeq && !req.Content.Unreadable {
		conv.LastSeq = req.Seq
		conv.LastSenderID = req.Attendee
		content := *req.Content
		conv.LastMessage = &content
		conv.LastMessageAt = req.CreatedAt
		conv.LastMessageSeq = req.Seq
		if req.CreatedAt != "" {
			conv.UpdatedAt = req.CreatedAt
		} else {
			conv.UpdatedAt = chat.NowRFC3339()
		}
	}
	if req.Attendee == c.userID && req.Seq > conv.LastReadSeq {
		conv.LastReadSeq = req.Seq
	}
	conv.RecountUnread()
	conv.CachedAt = chat.NowMillis()

	if err := c.saveConversationLocked(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// mergeConversationFromOutgoing advances the conversation after one of our
// own sends is acknowledged. Our own message never counts as unread.
func (c *Client) mergeConversationFromOutgoing(ctx context.Context, log *chat.Log) {
	c.convMu.Lock()
	defer c.convMu.Unlock()

	conv, err := c.store.Conversations.Get(ctx, c.userID, log.TopicID)
	if err != nil {
		c.logger().Warn("Failed to load conversation", "topicId", log.TopicID, "error", err)
		return
	}
	if conv == nil {
		conv = &chat.Conversation{TopicID: log.TopicID, IsPartial: true}
	}

	if log.Seq >= conv.LastSeq && !log.Content.Unreadable {
		conv.LastSeq = log.Seq
		conv.LastSenderID = log.SenderID
		content := log.Content
		conv.LastMessage = &content
		conv.LastMessageAt = log.CreatedAt
		conv.LastMessageSeq = log.Seq
		if log.CreatedAt != "" {
			conv.UpdatedAt = log.CreatedAt
		} else {
			conv.UpdatedAt = chat.NowRFC3339()
		}
	}
	if log.Seq > conv.LastReadSeq {
		conv.LastReadSeq = log.Seq
	}
	conv.RecountUnread()
	conv.CachedAt = chat.NowMillis()

	if err := c.saveConversationLocked(ctx, conv); err != nil {
		c.logger().Warn("Failed to store conversation", "topicId", log.TopicID, "error", err)
	}
}

// advanceReadWatermark applies an incoming read frame: move lastReadSeq
// forward to seq, or all the way when seq is zero, never past lastSeq and
// never backward.
func (c *Client) advanceReadWatermark(ctx context.Context, topicID string, seq int64) error {
	c.convMu.Lock()
	defer c.convMu.Unlock()

	conv, err := c.store.Conversations.Get(ctx, c.userID, topicID)
	if err != nil || conv == nil {
		return err
	}

	candidate := seq
	if candidate == 0 || candidate > conv.LastSeq {
		candidate = conv.LastSeq
	}
	if candidate <= conv.LastReadSeq {
		return nil
	}
	conv.LastReadSeq = candidate
	conv.LastReadAt = chat.NowRFC3339()
	conv.RecountUnread()
	conv.CachedAt = chat.NowMillis()
	return c.saveConversationLocked(ctx, conv)
}

// markConversationReadLocal moves the read watermark to the newest message.
func (c *Client) markConversationReadLocal(ctx context.Context, topicID string) (*chat.Conversation, error) {
	c.convMu.Lock()
	defer c.convMu.Unlock()

	conv, err := c.store.Conversations.Get(ctx, c.userID, topicID)
	if err != nil || conv == nil {
		return nil, err
	}
	conv.LastReadSeq = conv.LastSeq
	conv.LastReadAt = chat.NowRFC3339()
	conv.RecountUnread()
	conv.CachedAt = chat.NowMillis()
	if err := c.saveConversationLocked(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// autoMarkRead acknowledges delivery locally and tells the server, used
// when the observer asks for an automatic read receipt.
func (c *Client) autoMarkRead(ctx context.Context, conv *chat.Conversation) {
	if _, err := c.markConversationReadLocal(ctx, conv.TopicID); err != nil {
		c.logger().Warn("Failed to mark conversation read", "topicId", conv.TopicID, "error", err)
	}
	c.sendRaw(&chat.Request{Type: chat.RequestTypeRead, TopicID: conv.TopicID})
}

// patchRecalledLastMessage blanks the conversation preview when its last
// message is the one just recalled.
func (c *Client) patchRecalledLastMessage(ctx context.Context, log *chat.Log) {
	c.convMu.Lock()
	defer c.convMu.Unlock()

	conv, err := c.store.Conversations.Get(ctx, c.userID, log.TopicID)
	if err != nil || conv == nil {
		return
	}
	if conv.LastMessageSeq != log.Seq {
		return
	}
	conv.LastMessage = &chat.Content{Type: chat.ContentTypeRecall}
	conv.CachedAt = chat.NowMillis()
	if err := c.saveConversationLocked(ctx, conv); err != nil {
		c.logger().Warn("Failed to store conversation", "topicId", log.TopicID, "error", err)
	}
}

// saveConversationLocked persists one conversation and refreshes its cache
// entry. Callers hold convMu.
func (c *Client) saveConversationLocked(ctx context.Context, conv *chat.Conversation) error {
	if err := c.store.Conversations.Set(ctx, c.userID, conv.TopicID, conv); err != nil {
		return err
	}
	c.convCache.Set(conv.TopicID, conv)
	return nil
}

// hasLogAt reports whether a ChatLog stored for the topic carries exactly
// this seq.
func (c *Client) hasLogAt(ctx context.Context, topicID string, seq int64) bool {
	if seq <= 0 {
		return false
	}
	page, err := c.store.ChatLogs.Query(ctx, topicID, store.QueryOption{StartSortValue: seq + 1, Limit: 1})
	if err != nil || len(page.Items) == 0 {
		return false
	}
	return page.Items[0].Seq == seq
}
