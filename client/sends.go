package client

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/parley-im/parley-go/chat"
	"github.com/parley-im/parley-go/media"
)

// typingInterval caps outgoing typing frames to one per topic in this span.
const typingInterval = 3 * time.Second

// SendOptions tune one outgoing message. All fields are optional.
type SendOptions struct {
	// Mentions lists user ids called out in the message.
	Mentions []string
	// MentionAll addresses the whole topic.
	MentionAll bool
	// Reply references the chatId this message answers.
	Reply string
	// Extra rides along as free-form metadata.
	Extra map[string]string
	// OnAck fires once when the server acknowledges the send.
	OnAck func(resp *chat.Request)
	// OnFail fires at most once, when the send is rejected or expires.
	OnFail func(reason string)
	// OnProgress reports attachment upload progress.
	OnProgress media.Progress
}

// DoSendText sends a plain text message. The returned chatId identifies the
// local Sending log, persisted before this returns; delivery is reported
// through OnAck and OnFail.
func (c *Client) DoSendText(ctx context.Context, topicID, text string, opt *SendOptions) (string, error) {
	return c.doSendContent(ctx, topicID, chat.Content{Type: chat.ContentTypeText, Text: text}, opt)
}

// DoSendImage sends an image. An attachment without a URL is uploaded
// first; the message leaves as soon as the upload finishes.
func (c *Client) DoSendImage(ctx context.Context, topicID string, att *chat.Attachment, opt *SendOptions) (string, error) {
	return c.doSendAttachment(ctx, topicID, chat.ContentTypeImage, att, "", opt)
}

// DoSendVoice sends a voice clip with its play duration.
func (c *Client) DoSendVoice(ctx context.Context, topicID string, att *chat.Attachment, duration string, opt *SendOptions) (string, error) {
	return c.doSendAttachment(ctx, topicID, chat.ContentTypeVoice, att, duration, opt)
}

// DoSendVideo sends a video.
func (c *Client) DoSendVideo(ctx context.Context, topicID string, att *chat.Attachment, opt *SendOptions) (string, error) {
	return c.doSendAttachment(ctx, topicID, chat.ContentTypeVideo, att, "", opt)
}

// DoSendFile sends an arbitrary file.
func (c *Client) DoSendFile(ctx context.Context, topicID string, att *chat.Attachment, opt *SendOptions) (string, error) {
	return c.doSendAttachment(ctx, topicID, chat.ContentTypeFile, att, "", opt)
}

// DoSendLocation sends a geographic position with a human-readable address.
func (c *Client) DoSendLocation(ctx context.Context, topicID, latitude, longitude, address string, opt *SendOptions) (string, error) {
	content := chat.Content{
		Type:        chat.ContentTypeLocation,
		Text:        latitude + "," + longitude,
		Placeholder: address,
	}
	return c.doSendContent(ctx, topicID, content, opt)
}

// DoSendLink sends a URL.
func (c *Client) DoSendLink(ctx context.Context, topicID, url string, opt *SendOptions) (string, error) {
	return c.doSendContent(ctx, topicID, chat.Content{Type: chat.ContentTypeLink, Text: url}, opt)
}

// DoSendInvite invites the recipient into a topic.
func (c *Client) DoSendInvite(ctx context.Context, topicID, message string, opt *SendOptions) (string, error) {
	return c.doSendContent(ctx, topicID, chat.Content{Type: chat.ContentTypeInvite, Text: message}, opt)
}

// DoSendCustom sends caller-built content as-is, for content types the
// typed helpers do not cover.
func (c *Client) DoSendCustom(ctx context.Context, topicID string, content chat.Content, opt *SendOptions) (string, error) {
	return c.doSendContent(ctx, topicID, content, opt)
}

// DoTyping tells the topic's attendees we are composing. Throttled per
// topic, never stored, never retried.
func (c *Client) DoTyping(ctx context.Context, topicID string) error {
	if topicID == "" {
		return errors.New("typing needs a topic")
	}
	if !c.typingLimiter(topicID).Allow() {
		return nil
	}
	c.sendRaw(&chat.Request{Type: chat.RequestTypeTyping, TopicID: topicID})
	return nil
}

// DoRead marks the topic read locally and tells the server over the socket.
// The server's own read broadcast reconciles other devices.
func (c *Client) DoRead(ctx context.Context, topicID string) error {
	if _, err := c.markConversationReadLocal(ctx, topicID); err != nil {
		return err
	}
	c.sendRaw(&chat.Request{Type: chat.RequestTypeRead, TopicID: topicID})
	return nil
}

// DoRecall asks the server to retract one of our own messages. The stored
// log keeps its content until the server acknowledges; the ack blanks it.
func (c *Client) DoRecall(ctx context.Context, topicID, chatID string, opt *SendOptions) error {
	target, err := c.store.ChatLogs.Get(ctx, topicID, chatID)
	if err != nil {
		return err
	}
	if target == nil {
		return &chat.NotFoundError{Kind: "chatLog", ID: chatID}
	}
	if target.SenderID != c.userID {
		return errors.Wrap(chat.ErrForbidden, "can only recall own messages")
	}
	if age := chat.NowMillis() - target.CachedAt; age > int64(c.config.MaxRecallSecs)*1000 {
		return errors.Errorf("recall window passed for %s", chatID)
	}

	req := &chat.Request{
		Type:      chat.RequestTypeChat,
		ID:        chat.NewRequestID(),
		TopicID:   topicID,
		ChatID:    chatID,
		CreatedAt: chat.NowRFC3339(),
		Content:   &chat.Content{Type: chat.ContentTypeRecall},
	}
	c.enrollAndSend(req, opt)
	return nil
}

func (c *Client) doSendAttachment(ctx context.Context, topicID string, ctype chat.ContentType, att *chat.Attachment, duration string, opt *SendOptions) (string, error) {
	if att == nil || (att.URL == "" && att.FilePath == "" && len(att.Blob) == 0) {
		return "", errors.Wrap(chat.ErrInvalidContent, "attachment needs a url, a file path or a blob")
	}

	content := chat.Content{Type: ctype, Duration: duration}
	if att.URL != "" {
		content.Text = att.URL
		content.Size = att.Size
		content.Thumbnail = att.Thumbnail
		content.Placeholder = att.FileName
	} else {
		att.Status = chat.AttachmentToUpload
		content.Attachment = att
	}
	return c.doSendContent(ctx, topicID, content, opt)
}

// doSendContent is the one path every send takes: persist the local log,
// then upload or enroll-and-emit. The log always hits the store before the
// frame can leave, so an ack never races its own Sending record.
func (c *Client) doSendContent(ctx context.Context, topicID string, content chat.Content, opt *SendOptions) (string, error) {
	if topicID == "" {
		return "", errors.New("send needs a topic")
	}
	if opt == nil {
		opt = &SendOptions{}
	}
	if len(opt.Mentions) > 0 {
		content.Mentions = opt.Mentions
	}
	if opt.MentionAll {
		content.MentionAll = true
	}
	if opt.Reply != "" {
		content.Reply = opt.Reply
	}
	if len(opt.Extra) > 0 {
		content.Extra = opt.Extra
	}

	req := &chat.Request{
		Type:      chat.RequestTypeChat,
		ID:        chat.NewRequestID(),
		TopicID:   topicID,
		ChatID:    chat.NewChatID(),
		CreatedAt: chat.NowRFC3339(),
		Content:   &content,
	}

	needsUpload := content.Attachment != nil && content.Attachment.URL == ""
	status := chat.LogStatusSending
	if needsUpload {
		status = chat.LogStatusUploading
	}
	if err := c.saveOutgoingLog(ctx, req, status); err != nil {
		return "", err
	}

	if needsUpload {
		c.startUpload(req, opt)
		return req.ChatID, nil
	}
	c.enrollAndSend(req, opt)
	return req.ChatID, nil
}

// enrollAndSend registers the pending entry and queues the frame.
func (c *Client) enrollAndSend(req *chat.Request, opt *SendOptions) {
	frame, err := req.Marshal()
	if err != nil {
		c.logger().Warn("Failed to encode request", "chatId", req.ChatID, "error", err)
		if req.Type == chat.RequestTypeChat && req.ChatID != "" {
			c.markLogSendFailed(context.Background(), req.TopicID, req.ChatID)
		}
		if opt != nil && opt.OnFail != nil {
			opt.OnFail("encode failed")
		}
		return
	}

	p := &pendingRequest{
		req:       req,
		frame:     frame,
		canRetry:  req.Type.CanRetry(),
		updatedAt: time.Now(),
	}
	if opt != nil {
		p.onAck = opt.OnAck
		p.onFail = opt.OnFail
	}
	c.pendings.add(p)
	c.enqueue(outMessage{frame: frame, key: p.key()})
}

func (c *Client) typingLimiter(topicID string) *rate.Limiter {
	c.typingMu.Lock()
	defer c.typingMu.Unlock()
	l, ok := c.typingLimits[topicID]
	if !ok {
		l = rate.NewLimiter(rate.Every(typingInterval), 1)
		c.typingLimits[topicID] = l
	}
	return l
}
