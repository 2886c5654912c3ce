// Package media moves attachments between the client and the service:
// multipart uploads with progress reporting and cooperative cancel, and
// streaming downloads that land via an atomic rename. Transfers in both
// directions share one concurrency cap; excess work queues on the
// semaphore.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/parley-im/parley-go/chat"
	"github.com/parley-im/parley-go/metrics"
	"github.com/parley-im/parley-go/services"
)

const (
	defaultMaxConcurrent    = 12
	defaultProgressInterval = 300 * time.Millisecond

	// transferTimeout bounds a whole transfer, not a single read, so slow
	// links still make progress while hung ones eventually fail.
	transferTimeout = 5 * time.Minute
)

// Options tune the transfer manager. Zero values fall back to defaults.
type Options struct {
	MaxConcurrent    int64
	ProgressInterval time.Duration
}

// Manager runs attachment transfers against the service endpoint.
type Manager struct {
	service  *services.Service
	tracker  *metrics.Tracker
	client   *http.Client
	sem      *semaphore.Weighted
	interval time.Duration
}

// NewManager builds a transfer manager. tracker may be nil.
func NewManager(service *services.Service, tracker *metrics.Tracker, opts Options) *Manager {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = defaultProgressInterval
	}
	return &Manager{
		service:  service,
		tracker:  tracker,
		client:   &http.Client{Timeout: transferTimeout},
		sem:      semaphore.NewWeighted(opts.MaxConcurrent),
		interval: opts.ProgressInterval,
	}
}

// UploadOption describes one upload. Exactly one of FilePath or Blob must
// be set.
type UploadOption struct {
	FilePath string
	Blob     []byte
	// FileName overrides the name sent to the server. Defaults to the base
	// of FilePath.
	FileName string
	// Private asks the server to gate the stored file behind auth.
	Private bool
	// IsImage enables client-side thumbnail generation.
	IsImage bool
	// OnProgress receives byte counts, throttled to the progress interval.
	OnProgress Progress
}

// UploadResult is the server's description of the stored attachment.
type UploadResult struct {
	Path      string `json:"path"`
	FileName  string `json:"fileName"`
	Size      int64  `json:"size"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// Upload streams one attachment to the service. Cancelling ctx aborts the
// in-flight request and returns chat.ErrUserCancel.
func (m *Manager) Upload(ctx context.Context, opt UploadOption) (result *UploadResult, err error) {
	if m.tracker != nil {
		defer func() { m.tracker.UploadDone(err) }()
	}

	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, cancelOr(err, "upload queued too long")
	}
	defer m.sem.Release(1)

	src, size, fileName, err := openSource(opt)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	thumbnail := ""
	if opt.IsImage {
		thumbnail = m.thumbnailFor(opt, fileName)
	}

	// Stream the form through a pipe so large files never sit in memory.
	bodyReader, bodyWriter := io.Pipe()
	form := multipart.NewWriter(bodyWriter)
	reader := newProgressReader(src, size, m.interval, opt.OnProgress)
	go func() {
		bodyWriter.CloseWithError(buildForm(form, reader, fileName, opt.Private, thumbnail))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.service.AttachmentUploadURL(), bodyReader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build upload request")
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	if token := m.service.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, cancelOr(err, "upload request failed")
	}
	defer resp.Body.Close()
	if err := statusError(resp); err != nil {
		return nil, err
	}

	result = &UploadResult{}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return nil, errors.Wrap(err, "failed to decode upload response")
	}
	if result.Thumbnail == "" {
		result.Thumbnail = thumbnail
	}
	if result.FileName == "" {
		result.FileName = fileName
	}
	return result, nil
}

// Download streams url into destPath. The file appears atomically: bytes go
// to a temp file in the same directory and are renamed into place on
// success. Cancelling ctx returns chat.ErrUserCancel.
func (m *Manager) Download(ctx context.Context, url, destPath string, onProgress Progress) (err error) {
	if m.tracker != nil {
		defer func() { m.tracker.DownloadDone(err) }()
	}

	if err := m.sem.Acquire(ctx, 1); err != nil {
		return cancelOr(err, "download queued too long")
	}
	defer m.sem.Release(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "failed to build download request")
	}
	if token := m.service.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return cancelOr(err, "download request failed")
	}
	defer resp.Body.Close()
	if err := statusError(resp); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return errors.Wrap(err, "failed to create download directory")
	}
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".parley-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	reader := newProgressReader(resp.Body, resp.ContentLength, m.interval, onProgress)
	if _, err = io.Copy(tmp, reader); err != nil {
		tmp.Close()
		err = cancelOr(err, "download interrupted")
		return err
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to finish temp file")
	}
	if err = os.Rename(tmpPath, destPath); err != nil {
		return errors.Wrap(err, "failed to move download into place")
	}
	return nil
}

// thumbnailFor reads the image source a second time and builds a small
// JPEG. Any failure downgrades to no thumbnail.
func (m *Manager) thumbnailFor(opt UploadOption, fileName string) string {
	var thumb string
	var err error
	if opt.FilePath != "" {
		var f *os.File
		f, err = os.Open(opt.FilePath)
		if err == nil {
			thumb, err = makeThumbnail(f)
			f.Close()
		}
	} else {
		thumb, err = makeThumbnail(bytes.NewReader(opt.Blob))
	}
	if err != nil {
		slog.Debug("Thumbnail generation skipped", "fileName", fileName, "error", err)
		return ""
	}
	return thumb
}

func buildForm(form *multipart.Writer, reader io.Reader, fileName string, private bool, thumbnail string) error {
	privateFlag := "0"
	if private {
		privateFlag = "1"
	}
	if err := form.WriteField("private", privateFlag); err != nil {
		return err
	}
	if fileName != "" {
		if err := form.WriteField("fileName", fileName); err != nil {
			return err
		}
	}
	if thumbnail != "" {
		if err := form.WriteField("thumbnail", thumbnail); err != nil {
			return err
		}
	}
	part, err := form.CreateFormFile("file", fileName)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, reader); err != nil {
		return err
	}
	return form.Close()
}

func openSource(opt UploadOption) (io.ReadCloser, int64, string, error) {
	fileName := opt.FileName
	if opt.FilePath != "" {
		f, err := os.Open(opt.FilePath)
		if err != nil {
			return nil, 0, "", errors.Wrapf(err, "failed to open %s", opt.FilePath)
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, 0, "", errors.Wrapf(err, "failed to stat %s", opt.FilePath)
		}
		if fileName == "" {
			fileName = filepath.Base(opt.FilePath)
		}
		return f, info.Size(), fileName, nil
	}
	if opt.Blob != nil {
		if fileName == "" {
			fileName = "blob"
		}
		return io.NopCloser(bytes.NewReader(opt.Blob)), int64(len(opt.Blob)), fileName, nil
	}
	return nil, 0, "", errors.New("upload needs a file path or a blob")
}

func cancelOr(err error, message string) error {
	if errors.Is(err, context.Canceled) {
		return chat.ErrUserCancel
	}
	return errors.Wrap(err, message)
}

func statusError(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return chat.ErrTokenExpired
	case resp.StatusCode == http.StatusForbidden:
		return chat.ErrForbidden
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &chat.HTTPError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return nil
}
