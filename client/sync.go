package client

import (
	"context"

	"github.com/parley-im/parley-go/chat"
	"github.com/parley-im/parley-go/services"
)

// SyncConversationsOption controls one conversation sync run. The zero
// value pulls the whole list from the newest update down.
type SyncConversationsOption struct {
	// UpdatedAt resumes a previous run; empty starts at the newest update.
	UpdatedAt string
	// Limit is the page size requested from the server.
	Limit int
	// MaxCount stops the run after this many conversations.
	MaxCount int
	// BeforeUpdatedAt stops the run once the cursor regresses past it.
	BeforeUpdatedAt string
	// Category filters server-side.
	Category string
	// LastRemovedAt asks the server for topics removed since that cursor.
	LastRemovedAt string
	// SyncLogs also pulls the newest page of history for every topic whose
	// lastSeq moved.
	SyncLogs bool
}

// SyncConversations pulls the conversation list page by page, merging each
// server record into the store and reporting every page to the observer.
// It returns once the server runs out, MaxCount is reached, or the cursor
// passes BeforeUpdatedAt.
func (c *Client) SyncConversations(ctx context.Context, opt SyncConversationsOption) error {
	limit := opt.Limit
	if limit <= 0 || limit > c.config.MaxConversationLimit {
		limit = c.config.MaxLogsLimit
	}
	maxCount := opt.MaxCount
	if maxCount <= 0 {
		maxCount = c.config.MaxConversationLimit
	}
	beforeMillis := chat.MillisFromRFC3339(opt.BeforeUpdatedAt)

	cursor := opt.UpdatedAt
	count := 0
	syncedConvs := 0
	syncedLogs := 0
	defer func() {
		c.tracker.SyncRun(syncedConvs, syncedLogs)
	}()

	for {
		page, err := c.service.ListConversations(ctx, services.ListConversationsOption{
			UpdatedAt:     cursor,
			Limit:         limit,
			Category:      opt.Category,
			LastRemovedAt: opt.LastRemovedAt,
		})
		if err != nil {
			return err
		}

		merged := make([]*chat.Conversation, 0, len(page.Items))
		for _, remote := range page.Items {
			if _, removed := c.removedConvs.Get(remote.TopicID); removed {
				continue
			}
			local, err := c.store.Conversations.Get(ctx, c.userID, remote.TopicID)
			if err != nil {
				return err
			}
			needLogs := opt.SyncLogs && (local == nil || remote.LastSeq > local.LastSeq)

			conv, err := c.mergeConversationFromFetch(ctx, remote)
			if err != nil {
				return err
			}
			merged = append(merged, conv)
			syncedConvs++

			if needLogs {
				logs, err := c.SyncChatLogs(ctx, remote.TopicID, 0, c.config.MaxLogsLimit)
				if err != nil {
					c.logger().Warn("Chat log sync failed", "topicId", remote.TopicID, "error", err)
					continue
				}
				syncedLogs += len(logs)
			}
		}

		for _, topicID := range page.Removed {
			c.removedConvs.Set(topicID, chat.NowMillis())
			c.convCache.Remove(topicID)
			if err := c.store.Conversations.Remove(ctx, c.userID, topicID); err != nil {
				return err
			}
			c.observer().OnConversationRemoved(topicID)
		}

		c.observer().OnConversationsUpdated(merged, page.Total)

		count += len(page.Items)
		cursor = page.UpdatedAt
		if !page.HasMore || len(page.Items) < limit || count >= maxCount {
			return nil
		}
		if beforeMillis > 0 && chat.MillisFromRFC3339(cursor) < beforeMillis {
			return nil
		}
	}
}

// SyncChatLogs pulls one descending page of a topic's history starting just
// below lastSeq (zero starts at the head) and persists it. The returned
// slice holds the fetched logs, newest first.
func (c *Client) SyncChatLogs(ctx context.Context, topicID string, lastSeq int64, limit int) ([]*chat.Log, error) {
	if limit <= 0 || limit > c.config.MaxLogsLimit {
		limit = c.config.MaxLogsLimit
	}
	res, err := c.service.SyncChatLogs(ctx, topicID, lastSeq, limit)
	if err != nil {
		return nil, err
	}
	for _, log := range res.Items {
		if err := c.persistSyncedLog(ctx, topicID, log); err != nil {
			return nil, err
		}
	}
	return res.Items, nil
}

// BackfillChatLogs walks a topic's history downward until the server runs
// out, the configured cap is reached, or the fetched page meets the locally
// stored range. It finishes by re-fetching the conversation head so the
// preview matches the server.
func (c *Client) BackfillChatLogs(ctx context.Context, topicID string) (int, error) {
	conv, err := c.store.Conversations.Get(ctx, c.userID, topicID)
	if err != nil {
		return 0, err
	}

	var cursor int64
	count := 0
	gapClosed := false
	for {
		res, err := c.service.SyncChatLogs(ctx, topicID, cursor, c.config.MaxLogsLimit)
		if err != nil {
			return count, err
		}
		for _, log := range res.Items {
			if err := c.persistSyncedLog(ctx, topicID, log); err != nil {
				return count, err
			}
			count++
			if conv != nil && log.Seq == conv.StartSeq+1 {
				gapClosed = true
			}
		}
		cursor = res.LastSeq
		if gapClosed || !res.HasMore || len(res.Items) == 0 || count >= c.config.MaxSyncLogsMaxCount {
			break
		}
	}

	if _, err := c.fetchConversation(ctx, topicID); err != nil {
		c.logger().Warn("Failed to refresh conversation after backfill", "topicId", topicID, "error", err)
	}
	return count, nil
}
