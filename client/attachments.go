package client

import (
	"context"

	"github.com/pkg/errors"

	"github.com/parley-im/parley-go/chat"
	"github.com/parley-im/parley-go/media"
)

// startUpload spawns the upload for one outgoing attachment send. The
// frame leaves only after the upload succeeds; cancellation and failure
// flip the log to SendFailed.
func (c *Client) startUpload(req *chat.Request, opt *SendOptions) {
	ctx, cancel := context.WithCancel(context.Background())
	c.uploadMu.Lock()
	c.uploadTasks[req.ChatID] = cancel
	c.uploadMu.Unlock()

	go func() {
		defer func() {
			cancel()
			c.uploadMu.Lock()
			delete(c.uploadTasks, req.ChatID)
			c.uploadMu.Unlock()
		}()

		att := req.Content.Attachment
		result, err := c.media.Upload(ctx, media.UploadOption{
			FilePath:   att.FilePath,
			Blob:       att.Blob,
			FileName:   att.FileName,
			Private:    att.IsPrivate,
			IsImage:    req.Content.Type == chat.ContentTypeImage,
			OnProgress: opt.OnProgress,
		})
		if err != nil {
			reason := "upload failed"
			if errors.Is(err, chat.ErrUserCancel) {
				reason = "canceled"
			}
			c.logger().Warn("Attachment upload failed", "chatId", req.ChatID, "error", err)
			c.markLogSendFailed(context.Background(), req.TopicID, req.ChatID)
			if opt.OnFail != nil {
				opt.OnFail(reason)
			}
			return
		}

		req.Content.Text = result.Path
		req.Content.Size = result.Size
		if result.Thumbnail != "" {
			req.Content.Thumbnail = result.Thumbnail
		}
		if req.Content.Placeholder == "" {
			req.Content.Placeholder = result.FileName
		}
		req.Content.Attachment = nil

		if err := c.saveOutgoingLog(context.Background(), req, chat.LogStatusSending); err != nil {
			c.logger().Warn("Failed to store outgoing log", "chatId", req.ChatID, "error", err)
		}
		c.enrollAndSend(req, opt)
	}()
}

// CancelUpload aborts the in-flight upload for chatID, if any. The message
// fails with reason "canceled".
func (c *Client) CancelUpload(chatID string) bool {
	c.uploadMu.Lock()
	cancel, ok := c.uploadTasks[chatID]
	c.uploadMu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// DownloadAttachment streams url into destPath, reporting progress at the
// configured cadence. The write is atomic: destPath appears only complete.
func (c *Client) DownloadAttachment(ctx context.Context, url, destPath string, onProgress media.Progress) error {
	return c.media.Download(ctx, url, destPath, onProgress)
}

func (c *Client) cancelAllUploads() {
	c.uploadMu.Lock()
	cancels := make([]context.CancelFunc, 0, len(c.uploadTasks))
	for _, cancel := range c.uploadTasks {
		cancels = append(cancels, cancel)
	}
	c.uploadMu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}
