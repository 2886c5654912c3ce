package client

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/parley-im/parley-go/chat"
)

// errKicked aborts the connect loop for good; the server admitted another
// client for this user.
var errKicked = errors.New("kicked out by another client")

// dispatch routes one decoded frame. Every server-initiated frame except
// typing and nop is acknowledged with a 200 resp, even when handling
// stumbles, so the server stops redelivering it.
func (c *Client) dispatch(ctx context.Context, req *chat.Request) error {
	switch req.Type {
	case chat.RequestTypeResp:
		c.handleResp(ctx, req)
	case chat.RequestTypeChat:
		c.handleChat(ctx, req)
	case chat.RequestTypeRead:
		c.handleRead(ctx, req)
	case chat.RequestTypeTyping:
		c.observer().OnTopicTyping(req.TopicID, req.Message)
	case chat.RequestTypeKickout:
		return c.handleKickout(req)
	case chat.RequestTypeNop:
	case chat.RequestTypeSystem:
		c.handleSystem(req)
	default:
		c.handleUnknown(req)
	}
	return nil
}

// handleResp correlates a response with its pending request. Removing the
// pending first makes ack and fail mutually exclusive even when a sweep
// runs concurrently.
func (c *Client) handleResp(ctx context.Context, resp *chat.Request) {
	key := resp.ChatID
	if key == "" {
		key = resp.ID
	}
	p := c.pendings.remove(key)
	if p == nil {
		return
	}

	if resp.Code == 200 {
		if p.req.Type == chat.RequestTypeChat && p.req.ChatID != "" {
			c.markLogSent(ctx, p.req, resp)
		}
		if p.onAck != nil {
			p.onAck(resp)
		}
		return
	}

	reason := resp.Message
	if reason == "" {
		reason = fmt.Sprintf("request rejected with code %d", resp.Code)
	}
	c.failPending(p, reason)
}

// handleChat stores one pushed message and notifies the observer. The ack
// goes out before any read receipt, so the server never sees a read for a
// chat it does not know was delivered.
func (c *Client) handleChat(ctx context.Context, req *chat.Request) {
	if req.AttendeeProfile != nil {
		if _, err := c.mergeUser(ctx, req.Attendee, req.AttendeeProfile); err != nil {
			c.logger().Warn("Failed to merge attendee profile", "attendee", req.Attendee, "error", err)
		}
	}
	if req.Content == nil {
		c.logger().Warn("Chat frame without content", "topicId", req.TopicID, "chatId", req.ChatID)
		c.ack(req)
		return
	}

	if req.Content.Type == chat.ContentTypeRecall {
		if err := c.applyRecall(ctx, req); err != nil {
			c.logger().Warn("Recall rejected", "topicId", req.TopicID, "chatId", req.ChatID, "error", err)
		}
		c.ack(req)
		return
	}

	fresh, err := c.storeIncomingLog(ctx, req)
	if err != nil {
		c.logger().Warn("Failed to store incoming chat", "topicId", req.TopicID, "chatId", req.ChatID, "error", err)
	}
	conv, err := c.mergeConversationFromChat(ctx, req)
	if err != nil {
		c.logger().Warn("Failed to merge conversation", "topicId", req.TopicID, "error", err)
	}
	c.ack(req)

	if !fresh {
		return
	}
	markRead := c.observer().OnNewMessage(req.TopicID, req)
	if markRead && conv != nil && c.appActive.Load() {
		c.autoMarkRead(ctx, conv)
	}
}

// handleRead advances the read watermark for a topic; the peer or another
// device of ours has caught up.
func (c *Client) handleRead(ctx context.Context, req *chat.Request) {
	if err := c.advanceReadWatermark(ctx, req.TopicID, req.Seq); err != nil {
		c.logger().Warn("Failed to advance read watermark", "topicId", req.TopicID, "error", err)
	}
	c.observer().OnTopicRead(req.TopicID, req)
	c.ack(req)
}

// handleKickout flags the client as permanently broken and stops the
// connect loop. Only a fresh Connect call clears the flag.
func (c *Client) handleKickout(req *chat.Request) error {
	c.mustBroken.Store(true)
	reason := req.Message
	if reason == "" {
		reason = "kicked out by another client"
	}
	c.logger().Warn("Kicked out by server", "reason", reason)
	c.observer().OnKickoffByOtherClient(reason)
	return errKicked
}

func (c *Client) handleSystem(req *chat.Request) {
	if resp := c.observer().OnSystemRequest(req); resp != nil {
		c.sendRaw(resp)
		return
	}
	c.ack(req)
}

func (c *Client) handleUnknown(req *chat.Request) {
	c.logger().Warn("Unknown request type", "type", string(req.Type), "id", req.ID)
	if resp := c.observer().OnUnknownRequest(req); resp != nil {
		c.sendRaw(resp)
		return
	}
	c.ack(req)
}

// ack queues the 200 acknowledgement for a server-initiated frame.
func (c *Client) ack(req *chat.Request) {
	c.sendRaw(chat.NewResponse(req, 200))
}

// sendRaw marshals and queues one frame without enrolling it as pending.
// Acks, typing and read frames go through here and are dropped when no
// connection is up.
func (c *Client) sendRaw(req *chat.Request) {
	frame, err := req.Marshal()
	if err != nil {
		c.logger().Warn("Failed to encode frame", "type", string(req.Type), "error", err)
		return
	}
	c.enqueue(outMessage{frame: frame})
}
