package mockserver

import (
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/parley-im/parley-go/chat"
	"github.com/parley-im/parley-go/services"
)

type userForm struct {
	UserID string `json:"userId"`
}

func (s *Server) handleTopicCreate(c echo.Context) error {
	var form services.CreateTopicForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed topic form").SetInternal(err)
	}
	caller := currentUser(c)

	s.mu.Lock()
	ts := &topicState{
		topic: chat.Topic{
			ID:        uuid.NewString(),
			Name:      form.Name,
			Icon:      form.Icon,
			OwnerID:   caller,
			Multiple:  true,
			Private:   form.Private,
			CreatedAt: s.nextStampLocked(),
		},
		members: make(map[string]*chat.TopicMember),
		knocks:  make(map[string]*chat.TopicKnock),
	}
	s.topics[ts.topic.ID] = ts
	s.addMemberLocked(ts, caller)
	for _, member := range form.Members {
		if _, ok := s.accounts[member]; ok {
			s.addMemberLocked(ts, member)
		}
	}
	frame := s.appendControlLocked(ts, caller, chat.ContentTypeTopicCreate, form.Name)
	peers := s.memberIDsLocked(ts, caller)
	conv := s.conversationLocked(caller, ts)
	s.mu.Unlock()

	s.pushTo(peers, frame)
	return c.JSON(http.StatusOK, conv)
}

func (s *Server) handleTopicInfo(c echo.Context) error {
	s.mu.Lock()
	ts, err := s.memberTopicLocked(currentUser(c), c.Param("topic"))
	if err != nil {
		s.mu.Unlock()
		return err
	}
	topic := ts.topic
	topic.Members = int64(len(ts.members))
	topic.LastSeq = ts.lastSeq
	topic.Silent = ts.silentUntil.After(time.Now())
	s.mu.Unlock()
	return c.JSON(http.StatusOK, &topic)
}

func (s *Server) handleTopicMembers(c echo.Context) error {
	var body struct {
		UpdatedAt string `json:"updatedAt"`
		Limit     int    `json:"limit"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed member options").SetInternal(err)
	}
	limit := body.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	cursor := stampUnix(body.UpdatedAt)

	s.mu.Lock()
	ts, err := s.memberTopicLocked(currentUser(c), c.Param("topic"))
	if err != nil {
		s.mu.Unlock()
		return err
	}
	members := make([]*chat.TopicMember, 0, len(ts.members))
	for _, m := range ts.members {
		if stampUnix(m.JoinedAt) <= cursor {
			continue
		}
		cp := *m
		members = append(members, &cp)
	}
	total := int64(len(ts.members))
	s.mu.Unlock()

	sort.Slice(members, func(i, j int) bool { return members[i].JoinedAt < members[j].JoinedAt })
	res := &services.TopicMemberListResult{Total: total}
	for _, m := range members {
		if len(res.Items) == limit {
			res.HasMore = true
			break
		}
		res.Items = append(res.Items, m)
	}
	if n := len(res.Items); n > 0 {
		res.UpdatedAt = res.Items[n-1].JoinedAt
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleTopicKnock(c echo.Context) error {
	var body struct {
		Message string `json:"message"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed knock").SetInternal(err)
	}
	caller := currentUser(c)
	topicID := c.Param("topic")

	s.mu.Lock()
	ts, ok := s.topics[topicID]
	if !ok {
		s.mu.Unlock()
		return echo.NewHTTPError(http.StatusNotFound, "no such topic")
	}
	if _, member := ts.members[caller]; member {
		s.mu.Unlock()
		return c.NoContent(http.StatusOK)
	}
	ts.knocks[caller] = &chat.TopicKnock{
		TopicID:   topicID,
		UserID:    caller,
		Message:   body.Message,
		CreatedAt: s.nextStampLocked(),
		Status:    "pending",
	}
	admins := s.adminIDsLocked(ts)
	s.mu.Unlock()

	s.pushTo(admins, &chat.Request{
		Type:     chat.RequestTypeSystem,
		TopicID:  topicID,
		Attendee: caller,
		Message:  body.Message,
		Source:   "knock",
	})
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleKnockList(c echo.Context) error {
	s.mu.Lock()
	ts, err := s.adminTopicLocked(currentUser(c), c.Param("topic"))
	if err != nil {
		s.mu.Unlock()
		return err
	}
	items := make([]*chat.TopicKnock, 0, len(ts.knocks))
	for _, k := range ts.knocks {
		if k.Status != "pending" {
			continue
		}
		cp := *k
		items = append(items, &cp)
	}
	s.mu.Unlock()

	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt < items[j].CreatedAt })
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

func (s *Server) handleKnockAccept(c echo.Context) error {
	var form userForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed form").SetInternal(err)
	}
	caller := currentUser(c)

	s.mu.Lock()
	ts, err := s.adminTopicLocked(caller, c.Param("topic"))
	if err != nil {
		s.mu.Unlock()
		return err
	}
	knock := ts.knocks[form.UserID]
	if knock == nil || knock.Status != "pending" {
		s.mu.Unlock()
		return echo.NewHTTPError(http.StatusNotFound, "no pending knock")
	}
	knock.Status = "accepted"
	s.addMemberLocked(ts, form.UserID)
	frame := s.appendControlLocked(ts, caller, chat.ContentTypeTopicJoin, form.UserID)
	peers := s.memberIDsLocked(ts, caller)
	s.mu.Unlock()

	s.pushTo(peers, frame)
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleKnockReject(c echo.Context) error {
	var form userForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed form").SetInternal(err)
	}

	s.mu.Lock()
	ts, err := s.adminTopicLocked(currentUser(c), c.Param("topic"))
	if err != nil {
		s.mu.Unlock()
		return err
	}
	knock := ts.knocks[form.UserID]
	if knock == nil || knock.Status != "pending" {
		s.mu.Unlock()
		return echo.NewHTTPError(http.StatusNotFound, "no pending knock")
	}
	knock.Status = "rejected"
	s.mu.Unlock()
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleAdminAdd(c echo.Context) error {
	var form userForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed form").SetInternal(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ts, err := s.ownerTopicLocked(currentUser(c), c.Param("topic"))
	if err != nil {
		return err
	}
	if _, member := ts.members[form.UserID]; !member {
		return echo.NewHTTPError(http.StatusNotFound, "not a member")
	}
	for _, admin := range ts.topic.Admins {
		if admin == form.UserID {
			return c.NoContent(http.StatusOK)
		}
	}
	ts.topic.Admins = append(ts.topic.Admins, form.UserID)
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleAdminRemove(c echo.Context) error {
	var form userForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed form").SetInternal(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ts, err := s.ownerTopicLocked(currentUser(c), c.Param("topic"))
	if err != nil {
		return err
	}
	admins := ts.topic.Admins[:0]
	for _, admin := range ts.topic.Admins {
		if admin != form.UserID {
			admins = append(admins, admin)
		}
	}
	ts.topic.Admins = admins
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleMemberKickout(c echo.Context) error {
	var form userForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed form").SetInternal(err)
	}
	caller := currentUser(c)

	s.mu.Lock()
	ts, err := s.adminTopicLocked(caller, c.Param("topic"))
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if form.UserID == ts.topic.OwnerID {
		s.mu.Unlock()
		return echo.NewHTTPError(http.StatusForbidden, "cannot remove the owner")
	}
	if ts.isAdmin(form.UserID) && caller != ts.topic.OwnerID {
		s.mu.Unlock()
		return echo.NewHTTPError(http.StatusForbidden, "only the owner removes admins")
	}
	if _, member := ts.members[form.UserID]; !member {
		s.mu.Unlock()
		return echo.NewHTTPError(http.StatusNotFound, "not a member")
	}
	s.dropMemberLocked(ts, form.UserID)
	frame := s.appendControlLocked(ts, caller, chat.ContentTypeTopicKickout, form.UserID)
	peers := s.memberIDsLocked(ts, caller)
	s.mu.Unlock()

	s.pushTo(peers, frame)
	s.pushTo([]string{form.UserID}, &chat.Request{
		Type:    chat.RequestTypeSystem,
		TopicID: ts.topic.ID,
		Message: "removed from topic",
		Source:  "topic.kickout",
	})
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleTopicSilent(c echo.Context) error {
	var body struct {
		Duration string `json:"duration"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed form").SetInternal(err)
	}
	caller := currentUser(c)

	s.mu.Lock()
	ts, err := s.adminTopicLocked(caller, c.Param("topic"))
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if body.Duration == "" {
		ts.silentUntil = time.Time{}
		ts.topic.Silent = false
		s.mu.Unlock()
		return c.NoContent(http.StatusOK)
	}
	d, err2 := time.ParseDuration(body.Duration)
	if err2 != nil {
		s.mu.Unlock()
		return echo.NewHTTPError(http.StatusBadRequest, "bad duration").SetInternal(err2)
	}
	ts.silentUntil = time.Now().Add(d)
	ts.topic.Silent = true
	frame := s.appendControlLocked(ts, caller, chat.ContentTypeTopicSilent, body.Duration)
	peers := s.memberIDsLocked(ts, caller)
	s.mu.Unlock()

	s.pushTo(peers, frame)
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleMemberSilent(c echo.Context) error {
	var body struct {
		UserID   string `json:"userId"`
		Duration string `json:"duration"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed form").SetInternal(err)
	}
	caller := currentUser(c)

	s.mu.Lock()
	ts, err := s.adminTopicLocked(caller, c.Param("topic"))
	if err != nil {
		s.mu.Unlock()
		return err
	}
	member, ok := ts.members[body.UserID]
	if !ok {
		s.mu.Unlock()
		return echo.NewHTTPError(http.StatusNotFound, "not a member")
	}
	if body.Duration == "" {
		member.SilentEnd = ""
		s.mu.Unlock()
		return c.NoContent(http.StatusOK)
	}
	d, err2 := time.ParseDuration(body.Duration)
	if err2 != nil {
		s.mu.Unlock()
		return echo.NewHTTPError(http.StatusBadRequest, "bad duration").SetInternal(err2)
	}
	member.SilentEnd = time.Now().Add(d).UTC().Format(time.RFC3339Nano)
	frame := s.appendControlLocked(ts, caller, chat.ContentTypeTopicSilentMember, body.UserID)
	peers := s.memberIDsLocked(ts, caller)
	s.mu.Unlock()

	s.pushTo(peers, frame)
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleTopicQuit(c echo.Context) error {
	caller := currentUser(c)

	s.mu.Lock()
	ts, err := s.memberTopicLocked(caller, c.Param("topic"))
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if caller == ts.topic.OwnerID {
		s.mu.Unlock()
		return echo.NewHTTPError(http.StatusForbidden, "the owner dismisses instead of quitting")
	}
	s.dropMemberLocked(ts, caller)
	frame := s.appendControlLocked(ts, caller, chat.ContentTypeTopicQuit, caller)
	peers := s.memberIDsLocked(ts, "")
	s.mu.Unlock()

	s.pushTo(peers, frame)
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleTopicDismiss(c echo.Context) error {
	caller := currentUser(c)

	s.mu.Lock()
	ts, err := s.ownerTopicLocked(caller, c.Param("topic"))
	if err != nil {
		s.mu.Unlock()
		return err
	}
	members := s.memberIDsLocked(ts, "")
	for _, member := range members {
		delete(s.convs[member], ts.topic.ID)
		s.tombstoneLocked(member, ts.topic.ID)
	}
	delete(s.topics, ts.topic.ID)
	s.mu.Unlock()

	s.pushTo(members, &chat.Request{
		Type:    chat.RequestTypeSystem,
		TopicID: ts.topic.ID,
		Message: "topic dismissed",
		Source:  "topic.dismiss",
	})
	return c.NoContent(http.StatusOK)
}

func (ts *topicState) isAdmin(userID string) bool {
	if userID == ts.topic.OwnerID {
		return true
	}
	for _, admin := range ts.topic.Admins {
		if admin == userID {
			return true
		}
	}
	return false
}

// adminTopicLocked is memberTopicLocked plus an admin check. Callers hold
// s.mu.
func (s *Server) adminTopicLocked(userID, topicID string) (*topicState, error) {
	ts, err := s.memberTopicLocked(userID, topicID)
	if err != nil {
		return nil, err
	}
	if !ts.isAdmin(userID) {
		return nil, echo.NewHTTPError(http.StatusForbidden, "admin required")
	}
	return ts, nil
}

func (s *Server) ownerTopicLocked(userID, topicID string) (*topicState, error) {
	ts, err := s.memberTopicLocked(userID, topicID)
	if err != nil {
		return nil, err
	}
	if userID != ts.topic.OwnerID {
		return nil, echo.NewHTTPError(http.StatusForbidden, "owner required")
	}
	return ts, nil
}

func (s *Server) adminIDsLocked(ts *topicState) []string {
	ids := []string{ts.topic.OwnerID}
	ids = append(ids, ts.topic.Admins...)
	return ids
}

func (s *Server) addMemberLocked(ts *topicState, userID string) {
	if _, ok := ts.members[userID]; ok {
		return
	}
	ts.members[userID] = &chat.TopicMember{
		TopicID:  ts.topic.ID,
		UserID:   userID,
		JoinedAt: s.nextStampLocked(),
	}
	delete(s.removed[userID], ts.topic.ID)
	s.rowLocked(userID, ts.topic.ID).removed = false
}

func (s *Server) dropMemberLocked(ts *topicState, userID string) {
	delete(ts.members, userID)
	for i, admin := range ts.topic.Admins {
		if admin == userID {
			ts.topic.Admins = append(ts.topic.Admins[:i], ts.topic.Admins[i+1:]...)
			break
		}
	}
	delete(s.convs[userID], ts.topic.ID)
	s.tombstoneLocked(userID, ts.topic.ID)
}
