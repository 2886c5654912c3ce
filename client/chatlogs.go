package client

import (
	"context"

	"github.com/pkg/errors"

	"github.com/parley-im/parley-go/chat"
	"github.com/parley-im/parley-go/store"
)

// GetChatLog loads one stored message.
func (c *Client) GetChatLog(ctx context.Context, topicID, chatID string) (*chat.Log, error) {
	log, err := c.store.ChatLogs.Get(ctx, topicID, chatID)
	if err != nil {
		return nil, err
	}
	if log == nil {
		return nil, &chat.NotFoundError{Kind: "chatLog", ID: chatID}
	}
	return log, nil
}

// GetChatLogs returns one descending page of a topic's messages. startSeq
// is exclusive; zero starts at the newest message.
func (c *Client) GetChatLogs(ctx context.Context, topicID string, startSeq int64, limit int) (*store.Page[chat.Log], error) {
	if limit <= 0 || limit > c.config.MaxLogsLimit {
		limit = c.config.MaxLogsLimit
	}
	return c.store.ChatLogs.Query(ctx, topicID, store.QueryOption{StartSortValue: startSeq, Limit: limit})
}

// SearchChatLog scans a topic newest-first for messages whose stored form
// contains keyword.
func (c *Client) SearchChatLog(ctx context.Context, topicID, keyword string, limit int) (*store.Page[chat.Log], error) {
	if limit <= 0 || limit > c.config.MaxLogsLimit {
		limit = c.config.MaxLogsLimit
	}
	return c.store.ChatLogs.Query(ctx, topicID, store.QueryOption{Keyword: keyword, Limit: limit})
}

// saveOutgoingLog persists the local record of a send before its frame
// leaves, so the caller can render it immediately.
func (c *Client) saveOutgoingLog(ctx context.Context, req *chat.Request, status chat.LogStatus) error {
	log := &chat.Log{
		TopicID:   req.TopicID,
		ID:        req.ChatID,
		CreatedAt: req.CreatedAt,
		SenderID:  c.userID,
		Content:   *req.Content,
		Status:    status,
		CachedAt:  chat.NowMillis(),
	}
	return c.store.ChatLogs.Set(ctx, req.TopicID, req.ChatID, log)
}

// markLogSent merges a success response into the stored log: the
// server-assigned seq, any server-rewritten content, status Sent. Recall
// acknowledgements instead apply the recall to the target.
func (c *Client) markLogSent(ctx context.Context, pending *chat.Request, resp *chat.Request) {
	log, err := c.store.ChatLogs.Get(ctx, pending.TopicID, pending.ChatID)
	if err != nil || log == nil {
		c.logger().Warn("Acked log missing from store", "topicId", pending.TopicID, "chatId", pending.ChatID, "error", err)
		return
	}

	if pending.Content != nil && pending.Content.Type == chat.ContentTypeRecall {
		log.Recall = true
		log.Content = chat.Content{Type: chat.ContentTypeRecall}
		log.CachedAt = chat.NowMillis()
		if err := c.store.ChatLogs.Set(ctx, log.TopicID, log.ID, log); err != nil {
			c.logger().Warn("Failed to store recalled log", "chatId", log.ID, "error", err)
			return
		}
		c.patchRecalledLastMessage(ctx, log)
		return
	}

	log.Status = chat.LogStatusSent
	if resp.Seq > 0 {
		log.Seq = resp.Seq
	}
	if resp.Content != nil {
		log.Content = *resp.Content
	}
	log.CachedAt = chat.NowMillis()
	if err := c.store.ChatLogs.Set(ctx, log.TopicID, log.ID, log); err != nil {
		c.logger().Warn("Failed to store acked log", "chatId", log.ID, "error", err)
		return
	}
	c.mergeConversationFromOutgoing(ctx, log)
}

// markLogSendFailed flips a stored log to SendFailed unless an ack already
// won the race.
func (c *Client) markLogSendFailed(ctx context.Context, topicID, chatID string) {
	log, err := c.store.ChatLogs.Get(ctx, topicID, chatID)
	if err != nil || log == nil {
		return
	}
	if log.Status == chat.LogStatusSent {
		return
	}
	log.Status = chat.LogStatusSendFailed
	log.CachedAt = chat.NowMillis()
	if err := c.store.ChatLogs.Set(ctx, topicID, chatID, log); err != nil {
		c.logger().Warn("Failed to store failed log", "chatId", chatID, "error", err)
	}
}

// storeIncomingLog persists one pushed chat. It reports false for
// duplicates: a chatId already stored as Sending flips to Sent (the server
// echoed our own send before its resp), anything else is a no-op. A `none`
// content removes the stored log.
func (c *Client) storeIncomingLog(ctx context.Context, req *chat.Request) (bool, error) {
	dedupKey := req.TopicID + "/" + req.ChatID
	if req.Content.Type == chat.ContentTypeNone {
		c.recentLogs.Remove(dedupKey)
		return false, c.store.ChatLogs.Remove(ctx, req.TopicID, req.ChatID)
	}
	if c.recentLogs.Contains(dedupKey) {
		return false, nil
	}

	existing, err := c.store.ChatLogs.Get(ctx, req.TopicID, req.ChatID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		if existing.Status == chat.LogStatusSending {
			existing.Status = chat.LogStatusSent
			if req.Seq > 0 {
				existing.Seq = req.Seq
			}
			existing.CachedAt = chat.NowMillis()
			if err := c.store.ChatLogs.Set(ctx, req.TopicID, req.ChatID, existing); err != nil {
				return false, err
			}
		}
		c.recentLogs.Set(dedupKey, struct{}{})
		return false, nil
	}

	status := chat.LogStatusReceived
	if req.Attendee == c.userID {
		status = chat.LogStatusSent
	}
	log := &chat.Log{
		TopicID:   req.TopicID,
		ID:        req.ChatID,
		Seq:       req.Seq,
		CreatedAt: req.CreatedAt,
		SenderID:  req.Attendee,
		Content:   *req.Content,
		Status:    status,
		CachedAt:  chat.NowMillis(),
	}
	if err := c.store.ChatLogs.Set(ctx, req.TopicID, req.ChatID, log); err != nil {
		return false, err
	}
	c.recentLogs.Set(dedupKey, struct{}{})
	return true, nil
}

// persistSyncedLog stores one fetched log, assigning delivery state by
// sender and keeping any Read state a stored copy already reached.
func (c *Client) persistSyncedLog(ctx context.Context, topicID string, log *chat.Log) error {
	existing, err := c.store.ChatLogs.Get(ctx, topicID, log.ID)
	if err != nil {
		return err
	}

	log.TopicID = topicID
	if log.SenderID == c.userID {
		log.Status = chat.LogStatusSent
	} else {
		log.Status = chat.LogStatusReceived
	}
	if existing != nil {
		if existing.Status == chat.LogStatusRead {
			log.Status = existing.Status
		}
		if existing.Recall {
			log.Recall = true
		}
	}
	if log.Recall {
		log.Content = chat.Content{Type: chat.ContentTypeRecall}
	}
	log.CachedAt = chat.NowMillis()
	return c.store.ChatLogs.Set(ctx, topicID, log.ID, log)
}

// applyRecall validates an incoming recall against the recall window, the
// target's delivery state and the sender, then blanks the target.
func (c *Client) applyRecall(ctx context.Context, req *chat.Request) error {
	target, err := c.store.ChatLogs.Get(ctx, req.TopicID, req.ChatID)
	if err != nil {
		return err
	}
	if target == nil {
		return &chat.NotFoundError{Kind: "chatLog", ID: req.ChatID}
	}

	if age := chat.NowMillis() - target.CachedAt; age > int64(c.config.MaxRecallSecs)*1000 {
		return errors.Errorf("recall window passed for %s", req.ChatID)
	}
	switch target.Status {
	case chat.LogStatusSent, chat.LogStatusReceived, chat.LogStatusRead:
	default:
		return errors.Errorf("recall target %s is not delivered", req.ChatID)
	}
	if req.Attendee != "" && req.Attendee != target.SenderID {
		return errors.Errorf("recall sender mismatch for %s", req.ChatID)
	}

	target.Recall = true
	target.Content = chat.Content{Type: chat.ContentTypeRecall}
	target.CachedAt = chat.NowMillis()
	if err := c.store.ChatLogs.Set(ctx, req.TopicID, req.ChatID, target); err != nil {
		return err
	}
	c.patchRecalledLastMessage(ctx, target)
	return nil
}
