// Package mockserver is an in-memory Parley server for development and
// tests. It speaks the same surface a real deployment does: the REST API
// under /api, the websocket connect route with one live session per user
// and kickout on a second login, JWT bearer sessions, and multipart
// attachment uploads.
//
// Nothing is persisted. All state sits behind one mutex, which is plenty
// for the workloads a development fixture sees.
package mockserver

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/parley-im/parley-go/chat"
	"github.com/parley-im/parley-go/internal/version"
)

const (
	sessionTTL  = 24 * time.Hour
	rememberTTL = 30 * 24 * time.Hour

	userKey = "mockserver.user"
)

type account struct {
	userID    string
	password  []byte
	name      string
	avatar    string
	createdAt string
}

// topicState is the server-side record of one topic: description,
// membership and the log tail. logs stays sorted by seq ascending.
type topicState struct {
	topic    chat.Topic
	members  map[string]*chat.TopicMember
	knocks   map[string]*chat.TopicKnock
	logs     []*chat.Log
	lastSeq  int64
	startSeq int64

	silentUntil time.Time
}

// convRow is one user's view of a topic: read watermark and the
// attributes only that user sees. removed hides the row from the list
// until new activity brings it back; the watermark survives removal.
type convRow struct {
	sticky      bool
	mute        bool
	remark      string
	tags        []string
	extra       map[string]string
	lastReadSeq int64
	lastReadAt  string
	removed     bool

	updatedAt     string
	updatedAtUnix int64
}

type tombstone struct {
	removedAt     string
	removedAtUnix int64
}

type relation struct {
	remark string
	star   bool
	block  bool
}

type storedFile struct {
	name string
	data []byte
}

// Server is one in-memory Parley backend. Zero value is not usable; build
// it with New and bring it up with Start.
type Server struct {
	secret []byte
	echo   *echo.Echo

	mu        sync.Mutex
	baseURL   string
	accounts  map[string]*account
	topics    map[string]*topicState
	convs     map[string]map[string]*convRow
	removed   map[string]map[string]*tombstone
	relations map[string]map[string]*relation
	files     map[string]*storedFile
	revoked   map[string]bool
	sessions  map[string]*session
	lastStamp int64
}

// New builds a server with an empty account table. secret signs session
// tokens; empty picks a random one, which is fine unless tokens must
// survive a restart.
func New(secret string) *Server {
	if secret == "" {
		secret = uuid.NewString()
	}
	s := &Server{
		secret:    []byte(secret),
		accounts:  make(map[string]*account),
		topics:    make(map[string]*topicState),
		convs:     make(map[string]map[string]*convRow),
		removed:   make(map[string]map[string]*tombstone),
		relations: make(map[string]map[string]*relation),
		files:     make(map[string]*storedFile),
		revoked:   make(map[string]bool),
		sessions:  make(map[string]*session),
	}
	s.echo = s.buildEcho()
	return s
}

// Start listens on addr ("127.0.0.1:0" picks a free port) and serves in
// the background until Close.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", addr)
	}
	s.mu.Lock()
	s.baseURL = "http://" + ln.Addr().String()
	s.mu.Unlock()

	s.echo.Listener = ln
	go func() {
		if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Mock server stopped", "error", err)
		}
	}()
	return nil
}

// URL returns the base endpoint, valid after Start.
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseURL
}

// Close tears down the listener and every live socket.
func (s *Server) Close() error {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessions = make(map[string]*session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.echo.Shutdown(ctx)
}

// AddAccount registers a user that can sign in with password.
func (s *Server) AddAccount(userID, password, name string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return errors.Wrap(err, "failed to hash password")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[userID]; ok {
		return errors.Errorf("account %s already exists", userID)
	}
	s.accounts[userID] = &account{
		userID:    userID,
		password:  hash,
		name:      name,
		createdAt: s.nextStampLocked(),
	}
	return nil
}

func (s *Server) buildEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set("X-API-Version", version.MinServerVersion)
			return next(c)
		}
	})

	api := e.Group("/api")
	api.POST("/auth/login", s.handleLogin)
	api.POST("/auth/signup", s.handleSignup)
	api.GET("/connect", s.handleConnect)

	authed := api.Group("", s.requireAuth)
	authed.POST("/auth/logout", s.handleLogout)

	authed.POST("/chat/list", s.handleConversationList)
	authed.POST("/chat/info/:topic", s.handleConversationInfo)
	authed.POST("/chat/update/:topic", s.handleConversationUpdate)
	authed.POST("/chat/remove/:topic", s.handleConversationRemove)
	authed.POST("/chat/read/:topic", s.handleConversationRead)
	authed.POST("/chat/clear_messages/:topic", s.handleClearMessages)
	authed.POST("/chat/sync/:topic", s.handleSyncLogs)
	authed.POST("/chat/send/:topic", s.handleSendRequest)

	authed.POST("/profile/:user", s.handleProfile)
	authed.POST("/relation/:user", s.handleRelation)

	authed.POST("/topic/create", s.handleTopicCreate)
	authed.POST("/topic/info/:topic", s.handleTopicInfo)
	authed.POST("/topic/members/:topic", s.handleTopicMembers)
	authed.POST("/topic/knock/:topic", s.handleTopicKnock)
	authed.POST("/topic/admin/knock/list/:topic", s.handleKnockList)
	authed.POST("/topic/admin/knock/accept/:topic", s.handleKnockAccept)
	authed.POST("/topic/admin/knock/reject/:topic", s.handleKnockReject)
	authed.POST("/topic/admin/add/:topic", s.handleAdminAdd)
	authed.POST("/topic/admin/remove/:topic", s.handleAdminRemove)
	authed.POST("/topic/admin/kickout/:topic", s.handleMemberKickout)
	authed.POST("/topic/admin/silent/:topic", s.handleTopicSilent)
	authed.POST("/topic/admin/silent_member/:topic", s.handleMemberSilent)
	authed.POST("/topic/quit/:topic", s.handleTopicQuit)
	authed.POST("/topic/dismiss/:topic", s.handleTopicDismiss)

	authed.POST("/attachment/upload", s.handleAttachmentUpload)

	e.GET("/files/:id/:name", s.handleFileDownload, s.requireAuth)

	return e
}

// mintToken issues an HS256 session token with the user in sub.
func (s *Server) mintToken(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token")
	}
	return signed, nil
}

// authenticate resolves the Bearer token of r to a known account.
func (s *Server) authenticate(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	raw := strings.TrimPrefix(header, "Bearer ")
	if raw == "" || raw == header {
		return "", errors.New("missing bearer token")
	}
	return s.verifyToken(raw)
}

// verifyToken checks signature, expiry and revocation and returns the
// account the token was minted for.
func (s *Server) verifyToken(raw string) (string, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", errors.New("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", errors.New("token without subject")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revoked[raw] {
		return "", errors.New("token revoked")
	}
	if _, ok := s.accounts[sub]; !ok {
		return "", errors.Errorf("unknown account %s", sub)
	}
	return sub, nil
}

func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := s.authenticate(c.Request())
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token").SetInternal(err)
		}
		c.Set(userKey, userID)
		return next(c)
	}
}

func currentUser(c echo.Context) string {
	userID, _ := c.Get(userKey).(string)
	return userID
}

// nextStampLocked returns a strictly increasing RFC3339Nano timestamp so
// updatedAt cursors never collide. Callers hold s.mu.
func (s *Server) nextStampLocked() string {
	now := time.Now().UTC().UnixNano()
	if now <= s.lastStamp {
		now = s.lastStamp + int64(time.Microsecond)
	}
	s.lastStamp = now
	return time.Unix(0, now).UTC().Format(time.RFC3339Nano)
}

// rowLocked fetches or creates userID's view of topicID. Callers hold s.mu.
func (s *Server) rowLocked(userID, topicID string) *convRow {
	rows, ok := s.convs[userID]
	if !ok {
		rows = make(map[string]*convRow)
		s.convs[userID] = rows
	}
	row, ok := rows[topicID]
	if !ok {
		row = &convRow{}
		s.touchRowLocked(row)
		rows[topicID] = row
	}
	return row
}

func (s *Server) touchRowLocked(row *convRow) {
	row.updatedAt = s.nextStampLocked()
	row.updatedAtUnix = s.lastStamp
}

// viewRowLocked is the read-only twin of rowLocked: a missing row reads
// as zero values without being created. Callers hold s.mu.
func (s *Server) viewRowLocked(userID, topicID string) *convRow {
	if row, ok := s.convs[userID][topicID]; ok {
		return row
	}
	return &convRow{}
}

// conversationLocked renders userID's server-side conversation for ts.
// Callers hold s.mu.
func (s *Server) conversationLocked(userID string, ts *topicState) *chat.Conversation {
	row := s.viewRowLocked(userID, ts.topic.ID)
	conv := &chat.Conversation{
		TopicID:        ts.topic.ID,
		OwnerID:        userID,
		UpdatedAt:      row.updatedAt,
		StartSeq:       ts.startSeq,
		LastSeq:        ts.lastSeq,
		LastReadSeq:    row.lastReadSeq,
		LastReadAt:     row.lastReadAt,
		Multiple:       ts.topic.Multiple,
		Members:        int64(len(ts.members)),
		Name:           ts.topic.Name,
		Icon:           ts.topic.Icon,
		Sticky:         row.sticky,
		Mute:           row.mute,
		Remark:         row.remark,
		Tags:           row.tags,
		Extra:          row.extra,
		TopicExtra:     ts.topic.Extra,
		TopicOwnerID:   ts.topic.OwnerID,
		TopicCreatedAt: ts.topic.CreatedAt,
	}
	if !ts.topic.Multiple {
		for id := range ts.members {
			if id != userID {
				conv.Attendee = id
				break
			}
		}
	}
	if n := len(ts.logs); n > 0 {
		last := ts.logs[n-1]
		content := last.Content
		conv.LastMessage = &content
		conv.LastSenderID = last.SenderID
		conv.LastMessageAt = last.CreatedAt
		conv.LastMessageSeq = last.Seq
	}
	conv.RecountUnread()
	return conv
}
