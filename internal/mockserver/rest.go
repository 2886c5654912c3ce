package mockserver

import (
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/parley-im/parley-go/chat"
	"github.com/parley-im/parley-go/media"
	"github.com/parley-im/parley-go/services"
)

type loginForm struct {
	UserID   string `json:"userId"`
	Password string `json:"password"`
	Token    string `json:"token"`
	Remember bool   `json:"remember"`
}

type loginResponse struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

func (s *Server) handleLogin(c echo.Context) error {
	var form loginForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed login form").SetInternal(err)
	}

	if form.Token != "" {
		userID, err := s.verifyToken(form.Token)
		if err != nil || (form.UserID != "" && form.UserID != userID) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}
		s.mu.Lock()
		acct := s.accounts[userID]
		s.mu.Unlock()
		return c.JSON(http.StatusOK, &loginResponse{
			UserID: acct.userID,
			Token:  form.Token,
			Name:   acct.name,
			Avatar: acct.avatar,
		})
	}

	s.mu.Lock()
	acct := s.accounts[form.UserID]
	s.mu.Unlock()
	if acct == nil || bcrypt.CompareHashAndPassword(acct.password, []byte(form.Password)) != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "wrong user or password")
	}

	ttl := sessionTTL
	if form.Remember {
		ttl = rememberTTL
	}
	token, err := s.mintToken(acct.userID, ttl)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to issue token").SetInternal(err)
	}
	return c.JSON(http.StatusOK, &loginResponse{
		UserID: acct.userID,
		Token:  token,
		Name:   acct.name,
		Avatar: acct.avatar,
	})
}

func (s *Server) handleSignup(c echo.Context) error {
	var form loginForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed signup form").SetInternal(err)
	}
	if form.UserID == "" || form.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "userId and password are required")
	}

	if err := s.AddAccount(form.UserID, form.Password, form.UserID); err != nil {
		return echo.NewHTTPError(http.StatusConflict, "account already exists").SetInternal(err)
	}
	token, err := s.mintToken(form.UserID, sessionTTL)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to issue token").SetInternal(err)
	}
	return c.JSON(http.StatusOK, &loginResponse{UserID: form.UserID, Token: token, Name: form.UserID})
}

func (s *Server) handleLogout(c echo.Context) error {
	header := c.Request().Header.Get("Authorization")
	raw := strings.TrimPrefix(header, "Bearer ")
	s.mu.Lock()
	s.revoked[raw] = true
	s.mu.Unlock()
	return c.NoContent(http.StatusOK)
}

// stampUnix parses an updatedAt cursor back to nanoseconds; empty or
// malformed reads as zero.
func stampUnix(stamp string) int64 {
	if stamp == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		return 0
	}
	return t.UnixNano()
}

func (s *Server) handleConversationList(c echo.Context) error {
	var opt services.ListConversationsOption
	if err := c.Bind(&opt); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed list options").SetInternal(err)
	}
	limit := opt.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	cursor := stampUnix(opt.UpdatedAt)
	userID := currentUser(c)

	s.mu.Lock()
	type entry struct {
		conv *chat.Conversation
		unix int64
	}
	var all []entry
	for topicID, row := range s.convs[userID] {
		if row.removed {
			continue
		}
		ts, ok := s.topics[topicID]
		if !ok {
			continue
		}
		if _, member := ts.members[userID]; !member {
			continue
		}
		all = append(all, entry{conv: s.conversationLocked(userID, ts), unix: row.updatedAtUnix})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].unix > all[j].unix })

	res := &services.ConversationListResult{Total: int64(len(all))}
	for _, e := range all {
		if cursor > 0 && e.unix >= cursor {
			continue
		}
		if len(res.Items) == limit {
			res.HasMore = true
			break
		}
		res.Items = append(res.Items, e.conv)
	}
	if n := len(res.Items); n > 0 {
		res.UpdatedAt = res.Items[n-1].UpdatedAt
	}

	removedCursor := stampUnix(opt.LastRemovedAt)
	for topicID, tomb := range s.removed[userID] {
		if tomb.removedAtUnix > removedCursor {
			res.Removed = append(res.Removed, topicID)
		}
	}
	s.mu.Unlock()

	sort.Strings(res.Removed)
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleConversationInfo(c echo.Context) error {
	userID := currentUser(c)
	s.mu.Lock()
	ts, err := s.memberTopicLocked(userID, c.Param("topic"))
	if err != nil {
		s.mu.Unlock()
		return err
	}
	conv := s.conversationLocked(userID, ts)
	s.mu.Unlock()
	return c.JSON(http.StatusOK, conv)
}

func (s *Server) handleConversationUpdate(c echo.Context) error {
	var fields services.ConversationUpdateFields
	if err := c.Bind(&fields); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed update").SetInternal(err)
	}
	userID := currentUser(c)

	s.mu.Lock()
	ts, err := s.memberTopicLocked(userID, c.Param("topic"))
	if err != nil {
		s.mu.Unlock()
		return err
	}
	row := s.rowLocked(userID, ts.topic.ID)
	if fields.Sticky != nil {
		row.sticky = *fields.Sticky
	}
	if fields.Mute != nil {
		row.mute = *fields.Mute
	}
	if fields.Remark != nil {
		row.remark = *fields.Remark
	}
	if fields.Tags != nil {
		row.tags = fields.Tags
	}
	if fields.Extra != nil {
		row.extra = fields.Extra
	}
	s.touchRowLocked(row)
	s.mu.Unlock()
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleConversationRemove(c echo.Context) error {
	userID := currentUser(c)
	topicID := c.Param("topic")

	s.mu.Lock()
	row, ok := s.convs[userID][topicID]
	if !ok {
		s.mu.Unlock()
		return echo.NewHTTPError(http.StatusNotFound, "no such conversation")
	}
	row.removed = true
	s.tombstoneLocked(userID, topicID)
	s.mu.Unlock()
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleConversationRead(c echo.Context) error {
	var body struct {
		Seq int64 `json:"seq"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed read body").SetInternal(err)
	}
	userID := currentUser(c)

	s.mu.Lock()
	ts, err := s.memberTopicLocked(userID, c.Param("topic"))
	if err != nil {
		s.mu.Unlock()
		return err
	}
	watermark, peers := s.advanceReadLocked(userID, ts, body.Seq)
	s.mu.Unlock()

	s.pushTo(peers, &chat.Request{
		Type:     chat.RequestTypeRead,
		TopicID:  ts.topic.ID,
		Seq:      watermark,
		Attendee: userID,
	})
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleClearMessages(c echo.Context) error {
	userID := currentUser(c)
	s.mu.Lock()
	ts, err := s.memberTopicLocked(userID, c.Param("topic"))
	if err != nil {
		s.mu.Unlock()
		return err
	}
	ts.startSeq = ts.lastSeq
	ts.logs = nil
	s.mu.Unlock()
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleSyncLogs(c echo.Context) error {
	var body struct {
		LastSeq int64 `json:"lastSeq"`
		Limit   int   `json:"limit"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed sync body").SetInternal(err)
	}
	limit := body.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	userID := currentUser(c)

	s.mu.Lock()
	ts, err := s.memberTopicLocked(userID, c.Param("topic"))
	if err != nil {
		s.mu.Unlock()
		return err
	}
	res := &services.ChatLogListResult{}
	lowest := int64(0)
	for i := len(ts.logs) - 1; i >= 0; i-- {
		log := ts.logs[i]
		if log.Seq <= ts.startSeq {
			break
		}
		if body.LastSeq > 0 && log.Seq >= body.LastSeq {
			continue
		}
		if len(res.Items) == limit {
			res.HasMore = true
			break
		}
		cp := *log
		res.Items = append(res.Items, &cp)
		lowest = log.Seq
	}
	res.LastSeq = lowest
	s.mu.Unlock()
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleSendRequest(c echo.Context) error {
	var req chat.Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request").SetInternal(err)
	}
	req.TopicID = c.Param("topic")
	ack, err := s.appendChat(currentUser(c), &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ack)
}

func (s *Server) handleProfile(c echo.Context) error {
	caller := currentUser(c)
	userID := c.Param("user")

	s.mu.Lock()
	acct, ok := s.accounts[userID]
	if !ok {
		s.mu.Unlock()
		return echo.NewHTTPError(http.StatusNotFound, "no such user")
	}
	user := &chat.User{
		UserID:    acct.userID,
		Name:      acct.name,
		Avatar:    acct.avatar,
		CreatedAt: acct.createdAt,
	}
	if rel := s.relations[caller][userID]; rel != nil {
		user.Remark = rel.remark
		user.IsStar = rel.star
		user.IsBlocked = rel.block
		user.IsContact = true
	}
	s.mu.Unlock()
	return c.JSON(http.StatusOK, user)
}

func (s *Server) handleRelation(c echo.Context) error {
	var fields services.RelationFields
	if err := c.Bind(&fields); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed relation").SetInternal(err)
	}
	caller := currentUser(c)
	userID := c.Param("user")

	s.mu.Lock()
	if _, ok := s.accounts[userID]; !ok {
		s.mu.Unlock()
		return echo.NewHTTPError(http.StatusNotFound, "no such user")
	}
	rels, ok := s.relations[caller]
	if !ok {
		rels = make(map[string]*relation)
		s.relations[caller] = rels
	}
	rel, ok := rels[userID]
	if !ok {
		rel = &relation{}
		rels[userID] = rel
	}
	if fields.Remark != nil {
		rel.remark = *fields.Remark
	}
	if fields.Star != nil {
		rel.star = *fields.Star
	}
	if fields.Block != nil {
		rel.block = *fields.Block
	}
	s.mu.Unlock()
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleAttachmentUpload(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing file part").SetInternal(err)
	}
	src, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable file part").SetInternal(err)
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable file part").SetInternal(err)
	}

	name := c.FormValue("fileName")
	if name == "" {
		name = fileHeader.Filename
	}
	id := uuid.NewString()

	s.mu.Lock()
	s.files[id] = &storedFile{name: name, data: data}
	base := s.baseURL
	s.mu.Unlock()

	return c.JSON(http.StatusOK, &media.UploadResult{
		Path:      base + "/files/" + id + "/" + url.PathEscape(name),
		FileName:  name,
		Size:      int64(len(data)),
		Thumbnail: c.FormValue("thumbnail"),
	})
}

func (s *Server) handleFileDownload(c echo.Context) error {
	s.mu.Lock()
	file, ok := s.files[c.Param("id")]
	s.mu.Unlock()
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no such file")
	}
	return c.Blob(http.StatusOK, "application/octet-stream", file.data)
}

// memberTopicLocked resolves topicID for userID, requiring membership.
// Callers hold s.mu.
func (s *Server) memberTopicLocked(userID, topicID string) (*topicState, error) {
	ts, ok := s.topics[topicID]
	if !ok {
		return nil, echo.NewHTTPError(http.StatusNotFound, "no such topic")
	}
	if _, ok := ts.members[userID]; !ok {
		return nil, echo.NewHTTPError(http.StatusNotFound, "no such topic")
	}
	return ts, nil
}

func (s *Server) tombstoneLocked(userID, topicID string) {
	tombs, ok := s.removed[userID]
	if !ok {
		tombs = make(map[string]*tombstone)
		s.removed[userID] = tombs
	}
	stamp := s.nextStampLocked()
	tombs[topicID] = &tombstone{removedAt: stamp, removedAtUnix: s.lastStamp}
}
