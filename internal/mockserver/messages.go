package mockserver

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/parley-im/parley-go/chat"
)

// recallWindow bounds how long after sending a message can be recalled.
const recallWindow = 120 * time.Second

// appendChat runs one inbound chat request end to end: membership and
// silence checks, seq assignment, fan-out to the other members' sockets.
// The returned ack carries the assigned seq. Recalls instead blank the
// target log and fan out the recall marker without consuming a seq.
func (s *Server) appendChat(sender string, req *chat.Request) (*chat.Request, error) {
	if req.Content == nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "chat without content")
	}

	s.mu.Lock()
	ts, err := s.sendableTopicLocked(sender, req.TopicID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	if req.Content.Type == chat.ContentTypeRecall {
		frame, err := s.recallLocked(sender, ts, req)
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		peers := s.memberIDsLocked(ts, sender)
		s.mu.Unlock()
		s.pushTo(peers, frame)
		return chat.NewResponse(req, 200), nil
	}

	frame := s.appendLocked(ts, sender, req.ChatID, *req.Content)
	peers := s.memberIDsLocked(ts, sender)
	s.mu.Unlock()
	s.pushTo(peers, frame)

	ack := chat.NewResponse(req, 200)
	ack.Seq = frame.Seq
	ack.ChatID = frame.ChatID
	return ack, nil
}

// sendableTopicLocked resolves the topic a chat frame goes to. Unknown
// topics auto-vivify as two-party rooms owned by the sender; open topics
// admit new senders on first write, private ones require a knock first.
// Callers hold s.mu.
func (s *Server) sendableTopicLocked(sender, topicID string) (*topicState, error) {
	if topicID == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "chat without topic")
	}
	ts, ok := s.topics[topicID]
	if !ok {
		ts = &topicState{
			topic: chat.Topic{
				ID:        topicID,
				OwnerID:   sender,
				CreatedAt: s.nextStampLocked(),
			},
			members: make(map[string]*chat.TopicMember),
			knocks:  make(map[string]*chat.TopicKnock),
		}
		s.topics[topicID] = ts
		s.addMemberLocked(ts, sender)
		return ts, nil
	}

	member, ok := ts.members[sender]
	if !ok {
		if ts.topic.Private {
			return nil, echo.NewHTTPError(http.StatusForbidden, "not a member")
		}
		s.addMemberLocked(ts, sender)
		member = ts.members[sender]
	}

	if !ts.isAdmin(sender) {
		if ts.silentUntil.After(time.Now()) {
			return nil, echo.NewHTTPError(http.StatusForbidden, "topic is silenced")
		}
		if member.SilentEnd != "" {
			if end, err := time.Parse(time.RFC3339Nano, member.SilentEnd); err == nil && end.After(time.Now()) {
				return nil, echo.NewHTTPError(http.StatusForbidden, "silenced in this topic")
			}
		}
	}
	return ts, nil
}

// appendLocked assigns the next seq, stores the log, touches every
// member's row and returns the frame to fan out. Callers hold s.mu.
func (s *Server) appendLocked(ts *topicState, sender, chatID string, content chat.Content) *chat.Request {
	if chatID == "" {
		chatID = uuid.NewString()
	}
	ts.lastSeq++
	createdAt := s.nextStampLocked()
	log := &chat.Log{
		TopicID:   ts.topic.ID,
		ID:        chatID,
		Seq:       ts.lastSeq,
		CreatedAt: createdAt,
		SenderID:  sender,
		Content:   content,
	}
	ts.logs = append(ts.logs, log)

	for memberID := range ts.members {
		delete(s.removed[memberID], ts.topic.ID)
		row := s.rowLocked(memberID, ts.topic.ID)
		row.removed = false
		if memberID == sender {
			row.lastReadSeq = log.Seq
			row.lastReadAt = createdAt
		}
		s.touchRowLocked(row)
	}

	delivered := log.Content
	frame := &chat.Request{
		Type:      chat.RequestTypeChat,
		ID:        uuid.NewString(),
		TopicID:   ts.topic.ID,
		Seq:       log.Seq,
		Attendee:  sender,
		ChatID:    chatID,
		CreatedAt: createdAt,
		Content:   &delivered,
	}
	if acct := s.accounts[sender]; acct != nil {
		frame.AttendeeProfile = &chat.User{
			UserID:    acct.userID,
			Name:      acct.name,
			Avatar:    acct.avatar,
			IsPartial: true,
		}
	}
	return frame
}

// appendControlLocked appends a topic control notice (join, quit, silence
// and friends). subject names the affected user or value. Callers hold
// s.mu and fan the returned frame out after unlocking.
func (s *Server) appendControlLocked(ts *topicState, actor string, typ chat.ContentType, subject string) *chat.Request {
	return s.appendLocked(ts, actor, "", chat.Content{Type: typ, Text: subject})
}

// recallLocked blanks the target of a recall request after checking
// ownership and the recall window. Callers hold s.mu.
func (s *Server) recallLocked(sender string, ts *topicState, req *chat.Request) (*chat.Request, error) {
	var target *chat.Log
	for _, log := range ts.logs {
		if log.ID == req.ChatID {
			target = log
			break
		}
	}
	if target == nil || target.Seq <= ts.startSeq {
		return nil, echo.NewHTTPError(http.StatusNotFound, "no such message")
	}
	if target.SenderID != sender {
		return nil, echo.NewHTTPError(http.StatusForbidden, "only the sender recalls a message")
	}
	created, err := time.Parse(time.RFC3339Nano, target.CreatedAt)
	if err != nil || time.Since(created) > recallWindow {
		return nil, echo.NewHTTPError(http.StatusForbidden, "recall window passed")
	}

	target.Recall = true
	target.Content = chat.Content{Type: chat.ContentTypeRecall}

	return &chat.Request{
		Type:      chat.RequestTypeChat,
		ID:        uuid.NewString(),
		TopicID:   ts.topic.ID,
		Attendee:  sender,
		ChatID:    target.ID,
		CreatedAt: s.nextStampLocked(),
		Content:   &chat.Content{Type: chat.ContentTypeRecall},
	}, nil
}

// advanceReadLocked moves userID's read watermark forward (never back) and
// returns the resulting watermark plus the members to notify. seq zero or
// beyond the head clamps to the newest message. Callers hold s.mu.
func (s *Server) advanceReadLocked(userID string, ts *topicState, seq int64) (int64, []string) {
	row := s.rowLocked(userID, ts.topic.ID)
	if seq <= 0 || seq > ts.lastSeq {
		seq = ts.lastSeq
	}
	if seq > row.lastReadSeq {
		row.lastReadSeq = seq
		row.lastReadAt = s.nextStampLocked()
		s.touchRowLocked(row)
	}
	return row.lastReadSeq, s.memberIDsLocked(ts, userID)
}

// memberIDsLocked lists the topic members except one. Callers hold s.mu.
func (s *Server) memberIDsLocked(ts *topicState, except string) []string {
	ids := make([]string, 0, len(ts.members))
	for id := range ts.members {
		if id != except {
			ids = append(ids, id)
		}
	}
	return ids
}

// pushTo delivers one frame to every listed user with a live socket.
// Callers must not hold s.mu.
func (s *Server) pushTo(userIDs []string, req *chat.Request) {
	if req == nil || len(userIDs) == 0 {
		return
	}
	frame, err := req.Marshal()
	if err != nil {
		return
	}
	s.mu.Lock()
	targets := make([]*session, 0, len(userIDs))
	for _, id := range userIDs {
		if sess := s.sessions[id]; sess != nil {
			targets = append(targets, sess)
		}
	}
	s.mu.Unlock()
	for _, sess := range targets {
		sess.send(frame)
	}
}
