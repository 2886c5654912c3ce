// Package services implements the typed REST surface of a Parley server:
// auth, conversations, chat log sync, topics, profiles and relations. Every
// call goes to {endpoint}/api/... with Bearer authorization and returns a
// decoded value or an error from the chat taxonomy.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/parley-im/parley-go/chat"
	"github.com/parley-im/parley-go/internal/version"
)

const (
	// APIPrefix sits between the endpoint and every route.
	APIPrefix = "/api"
	// defaultTimeout bounds one REST call end to end. Attachment transfers
	// do not go through this client; they stream with their own cancellation.
	defaultTimeout = 60 * time.Second
)

// Service is one authenticated REST session against a single endpoint.
// Safe for concurrent use.
type Service struct {
	endpoint string
	token    string
	client   *http.Client

	versionOnce sync.Once
}

// New builds a Service for endpoint. token may be empty for the login calls.
func New(endpoint, token string) *Service {
	return &Service{
		endpoint: strings.TrimRight(endpoint, "/"),
		token:    token,
		client:   &http.Client{Timeout: defaultTimeout},
	}
}

// Endpoint returns the server base URL without the API prefix.
func (s *Service) Endpoint() string {
	return s.endpoint
}

// Token returns the Bearer token of this session.
func (s *Service) Token() string {
	return s.token
}

// URL resolves a route against the endpoint and API prefix.
func (s *Service) URL(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return s.endpoint + APIPrefix + path
}

// post performs one JSON POST. body may be nil for empty-bodied routes and
// out may be nil when the response payload does not matter.
func (s *Service) post(ctx context.Context, path string, body, out any) error {
	// A token that is provably expired fails here instead of burning a
	// round trip; opaque tokens pass through untouched.
	if s.token != "" && IsTokenExpired(s.token) {
		return chat.ErrTokenExpired
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL(path), reader)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "parley-go/"+version.String())
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	s.checkServerVersion(resp.Header.Get("X-API-Version"))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return chat.ErrTokenExpired
	case resp.StatusCode == http.StatusForbidden:
		return chat.ErrForbidden
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return decodeHTTPError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response of %s: %w", path, err)
	}
	return nil
}

// checkServerVersion warns once per Service when the server announces a
// version older than what this client is tested against.
func (s *Service) checkServerVersion(announced string) {
	if announced == "" {
		return
	}
	s.versionOnce.Do(func() {
		if !version.IsServerSupported(announced) {
			slog.Warn("Server is older than the supported minimum",
				"serverVersion", announced,
				"minServerVersion", version.MinServerVersion)
		}
	})
}

// decodeHTTPError turns a non-2xx response into a chat.HTTPError, pulling
// the server's error field out of the body when there is one.
func decodeHTTPError(resp *http.Response) error {
	httpErr := &chat.HTTPError{Status: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(data) == 0 {
		return httpErr
	}
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil {
		if body.Error != "" {
			httpErr.Message = body.Error
		} else {
			httpErr.Message = body.Message
		}
	}
	if httpErr.Message == "" {
		httpErr.Message = strings.TrimSpace(string(data))
	}
	return httpErr
}
