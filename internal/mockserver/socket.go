package mockserver

import (
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/parley-im/parley-go/chat"
)

const (
	socketWriteTimeout = 10 * time.Second
	// socketIdleTimeout outlives the client's 30s ping cadence with room to
	// spare; a socket silent this long is dead.
	socketIdleTimeout = 90 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// session is one live socket. A user has at most one; a second login
// kicks the first.
type session struct {
	userID string
	conn   *websocket.Conn

	writeMu sync.Mutex
	closed  atomic.Bool
}

func (sess *session) send(frame string) {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	if sess.closed.Load() {
		return
	}
	_ = sess.conn.SetWriteDeadline(time.Now().Add(socketWriteTimeout))
	if err := sess.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		slog.Warn("Failed to push frame", "userId", sess.userID, "error", err)
	}
}

func (sess *session) sendRequest(req *chat.Request) {
	frame, err := req.Marshal()
	if err != nil {
		return
	}
	sess.send(frame)
}

func (sess *session) close() {
	if sess.closed.Swap(true) {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = sess.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(socketWriteTimeout))
	_ = sess.conn.Close()
}

func (s *Server) handleConnect(c echo.Context) error {
	userID, err := s.authenticate(c.Request())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token").SetInternal(err)
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already answered the request.
		return nil
	}
	sess := &session{userID: userID, conn: conn}
	s.admit(sess)
	go s.readLoop(sess)
	return nil
}

// admit installs the session, kicking any previous one for the same user.
func (s *Server) admit(sess *session) {
	s.mu.Lock()
	old := s.sessions[sess.userID]
	s.sessions[sess.userID] = sess
	s.mu.Unlock()

	if old != nil {
		old.sendRequest(&chat.Request{
			Type:    chat.RequestTypeKickout,
			Message: "logged in from another device",
		})
		old.close()
	}
}

func (s *Server) readLoop(sess *session) {
	defer func() {
		s.mu.Lock()
		if s.sessions[sess.userID] == sess {
			delete(s.sessions, sess.userID)
		}
		s.mu.Unlock()
		sess.close()
	}()

	_ = sess.conn.SetReadDeadline(time.Now().Add(socketIdleTimeout))
	sess.conn.SetPingHandler(func(payload string) error {
		_ = sess.conn.SetReadDeadline(time.Now().Add(socketIdleTimeout))
		return sess.conn.WriteControl(websocket.PongMessage, []byte(payload), time.Now().Add(socketWriteTimeout))
	})

	for {
		messageType, data, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = sess.conn.SetReadDeadline(time.Now().Add(socketIdleTimeout))
		if messageType != websocket.TextMessage {
			continue
		}
		req, err := chat.DecodeRequest(string(data))
		if err != nil {
			slog.Warn("Undecodable frame", "userId", sess.userID, "error", err)
			continue
		}
		s.handleFrame(sess, req)
	}
}

// handleFrame routes one client frame. Chat frames are acked with the
// assigned seq or the failure code; typing and read fan out silently, the
// way a real deployment treats ephemeral traffic.
func (s *Server) handleFrame(sess *session, req *chat.Request) {
	switch req.Type {
	case chat.RequestTypeChat:
		ack, err := s.appendChat(sess.userID, req)
		if err != nil {
			resp := chat.NewResponse(req, httpCode(err))
			resp.Message = httpMessage(err)
			sess.sendRequest(resp)
			return
		}
		sess.sendRequest(ack)

	case chat.RequestTypeTyping:
		s.mu.Lock()
		var peers []string
		if ts, err := s.memberTopicLocked(sess.userID, req.TopicID); err == nil {
			peers = s.memberIDsLocked(ts, sess.userID)
		}
		s.mu.Unlock()
		s.pushTo(peers, &chat.Request{
			Type:     chat.RequestTypeTyping,
			TopicID:  req.TopicID,
			Attendee: sess.userID,
			Message:  req.Message,
		})

	case chat.RequestTypeRead:
		s.mu.Lock()
		ts, err := s.memberTopicLocked(sess.userID, req.TopicID)
		if err != nil {
			s.mu.Unlock()
			return
		}
		watermark, peers := s.advanceReadLocked(sess.userID, ts, req.Seq)
		s.mu.Unlock()
		s.pushTo(peers, &chat.Request{
			Type:     chat.RequestTypeRead,
			TopicID:  req.TopicID,
			Seq:      watermark,
			Attendee: sess.userID,
		})

	case chat.RequestTypeResp, chat.RequestTypeNop:
		// Acks for pushes and keepalives need no reply.

	default:
		slog.Warn("Unhandled frame type", "userId", sess.userID, "type", string(req.Type))
	}
}

// Push injects one frame into userID's live session. It reports false
// when the user has no socket.
func (s *Server) Push(userID string, req *chat.Request) bool {
	frame, err := req.Marshal()
	if err != nil {
		return false
	}
	s.mu.Lock()
	sess := s.sessions[userID]
	s.mu.Unlock()
	if sess == nil {
		return false
	}
	sess.send(frame)
	return true
}

// Kick closes userID's session after a kickout frame, exactly as a second
// login would.
func (s *Server) Kick(userID, reason string) bool {
	s.mu.Lock()
	sess := s.sessions[userID]
	delete(s.sessions, userID)
	s.mu.Unlock()
	if sess == nil {
		return false
	}
	if reason == "" {
		reason = "kicked by operator"
	}
	sess.sendRequest(&chat.Request{Type: chat.RequestTypeKickout, Message: reason})
	sess.close()
	return true
}

// Connected reports whether userID has a live socket.
func (s *Server) Connected(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[userID] != nil
}

func httpCode(err error) uint32 {
	if he, ok := err.(*echo.HTTPError); ok {
		return uint32(he.Code)
	}
	return http.StatusInternalServerError
}

func httpMessage(err error) string {
	if he, ok := err.(*echo.HTTPError); ok {
		if msg, ok := he.Message.(string); ok {
			return msg
		}
	}
	return err.Error()
}
