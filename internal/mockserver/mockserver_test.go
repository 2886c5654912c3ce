package mockserver

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-im/parley-go/chat"
	"github.com/parley-im/parley-go/client"
	"github.com/parley-im/parley-go/media"
	"github.com/parley-im/parley-go/services"
)

const testPassword = "open-sesame"

func startServer(t *testing.T) *Server {
	t.Helper()
	srv := New("")
	require.NoError(t, srv.Start("127.0.0.1:0"))
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func addAccount(t *testing.T, srv *Server, userID string) {
	t.Helper()
	require.NoError(t, srv.AddAccount(userID, testPassword, userID))
}

// newService registers userID and returns an authenticated REST client.
func newService(t *testing.T, srv *Server, userID string) *services.Service {
	t.Helper()
	addAccount(t, srv, userID)
	info, err := services.Login(context.Background(), srv.URL(), userID, testPassword)
	require.NoError(t, err)
	return services.New(srv.URL(), info.Token)
}

func textReq(text string) *chat.Request {
	return &chat.Request{
		Type:    chat.RequestTypeChat,
		ID:      chat.NewRequestID(),
		ChatID:  chat.NewChatID(),
		Content: &chat.Content{Type: chat.ContentTypeText, Text: text},
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestLoginFlows(t *testing.T) {
	srv := startServer(t)
	require.NoError(t, srv.AddAccount("alice", testPassword, "Alice"))
	ctx := context.Background()

	info, err := services.Login(ctx, srv.URL(), "alice", testPassword)
	require.NoError(t, err)
	assert.Equal(t, "alice", info.UserID)
	assert.Equal(t, "Alice", info.Name)
	require.NotEmpty(t, info.Token)

	_, err = services.Login(ctx, srv.URL(), "alice", "wrong")
	require.ErrorIs(t, err, chat.ErrInvalidPassword)

	again, err := services.LoginWithToken(ctx, srv.URL(), "alice", info.Token)
	require.NoError(t, err)
	assert.Equal(t, info.Token, again.Token)

	s := services.New(srv.URL(), info.Token)
	require.NoError(t, s.Logout(ctx))
	_, err = s.ListConversations(ctx, services.ListConversationsOption{})
	require.ErrorIs(t, err, chat.ErrTokenExpired, "revoked token must read as expired")
}

func TestSignup(t *testing.T) {
	srv := startServer(t)
	ctx := context.Background()

	info, err := services.Signup(ctx, srv.URL(), "carol", "first-day")
	require.NoError(t, err)
	assert.Equal(t, "carol", info.UserID)
	require.NotEmpty(t, info.Token)

	_, err = services.Signup(ctx, srv.URL(), "carol", "first-day")
	var httpErr *chat.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusConflict, httpErr.Status)

	_, err = services.Login(ctx, srv.URL(), "carol", "first-day")
	require.NoError(t, err)
}

// TestSendAndSyncOverREST drives the REST send path: the first write brings
// the topic into being, seqs count up from one, and the log pages back
// newest first.
func TestSendAndSyncOverREST(t *testing.T) {
	srv := startServer(t)
	s := newService(t, srv, "alice")
	ctx := context.Background()

	for i, text := range []string{"one", "two", "three"} {
		req := textReq(text)
		ack, err := s.SendChatRequest(ctx, "room", req)
		require.NoError(t, err)
		assert.EqualValues(t, 200, ack.Code)
		assert.EqualValues(t, i+1, ack.Seq)
		assert.Equal(t, req.ChatID, ack.ChatID)
	}

	page, err := s.SyncChatLogs(ctx, "room", 0, 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)
	assert.EqualValues(t, 3, page.Items[0].Seq)
	assert.Equal(t, "three", page.Items[0].Content.Text)
	assert.EqualValues(t, 2, page.LastSeq)

	rest, err := s.SyncChatLogs(ctx, "room", page.LastSeq, 2)
	require.NoError(t, err)
	require.Len(t, rest.Items, 1)
	assert.False(t, rest.HasMore)
	assert.Equal(t, "one", rest.Items[0].Content.Text)

	list, err := s.ListConversations(ctx, services.ListConversationsOption{})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	conv := list.Items[0]
	assert.Equal(t, "room", conv.TopicID)
	assert.EqualValues(t, 3, conv.LastSeq)
	assert.EqualValues(t, 3, conv.LastReadSeq, "own sends advance the watermark")
	assert.EqualValues(t, 0, conv.Unread)
	require.NotNil(t, conv.LastMessage)
	assert.Equal(t, "three", conv.LastMessage.Text)

	require.NoError(t, s.CleanMessages(ctx, "room"))
	page, err = s.SyncChatLogs(ctx, "room", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

// TestConversationLifecycle walks one two-party conversation through
// attribute updates, read, removal and resurrection by new traffic.
func TestConversationLifecycle(t *testing.T) {
	srv := startServer(t)
	alice := newService(t, srv, "alice")
	bob := newService(t, srv, "bob")
	ctx := context.Background()

	_, err := alice.SendChatRequest(ctx, "journal", textReq("hello"))
	require.NoError(t, err)
	_, err = bob.SendChatRequest(ctx, "journal", textReq("hi back"))
	require.NoError(t, err)

	sticky := true
	remark := "pinned"
	require.NoError(t, alice.UpdateConversation(ctx, "journal", &services.ConversationUpdateFields{
		Sticky: &sticky,
		Remark: &remark,
	}))

	conv, err := alice.GetConversation(ctx, "journal")
	require.NoError(t, err)
	assert.True(t, conv.Sticky)
	assert.Equal(t, "pinned", conv.Remark)
	assert.False(t, conv.Multiple)
	assert.Equal(t, "bob", conv.Attendee)
	assert.EqualValues(t, 2, conv.LastSeq)
	assert.EqualValues(t, 1, conv.LastReadSeq)
	assert.EqualValues(t, 1, conv.Unread)

	require.NoError(t, alice.SetConversationRead(ctx, "journal", 0))
	conv, err = alice.GetConversation(ctx, "journal")
	require.NoError(t, err)
	assert.EqualValues(t, 2, conv.LastReadSeq)
	assert.EqualValues(t, 0, conv.Unread)

	require.NoError(t, alice.RemoveConversation(ctx, "journal"))
	list, err := alice.ListConversations(ctx, services.ListConversationsOption{})
	require.NoError(t, err)
	assert.Empty(t, list.Items)
	assert.Equal(t, []string{"journal"}, list.Removed)

	// removal is per user
	blist, err := bob.ListConversations(ctx, services.ListConversationsOption{})
	require.NoError(t, err)
	assert.Len(t, blist.Items, 1)

	// new traffic brings it back, watermark intact
	_, err = bob.SendChatRequest(ctx, "journal", textReq("are you there"))
	require.NoError(t, err)
	list, err = alice.ListConversations(ctx, services.ListConversationsOption{})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.EqualValues(t, 1, list.Items[0].Unread)
	assert.Empty(t, list.Removed)
}

// TestTopicAdministration covers the private-topic membership machinery:
// knock, accept, per-member and whole-topic silencing, admin rights, quit,
// kickout and dismiss.
func TestTopicAdministration(t *testing.T) {
	srv := startServer(t)
	owner := newService(t, srv, "alice")
	second := newService(t, srv, "bob")
	outsider := newService(t, srv, "carol")
	ctx := context.Background()

	conv, err := owner.CreateTopic(ctx, &services.CreateTopicForm{
		Name:    "ops",
		Private: true,
		Members: []string{"bob"},
	})
	require.NoError(t, err)
	topicID := conv.TopicID
	require.NotEmpty(t, topicID)
	assert.True(t, conv.Multiple)
	assert.Equal(t, "ops", conv.Name)
	assert.EqualValues(t, 2, conv.Members)

	_, err = outsider.SendChatRequest(ctx, topicID, textReq("hey"))
	require.ErrorIs(t, err, chat.ErrForbidden, "a private topic rejects outsiders")

	require.NoError(t, outsider.KnockTopic(ctx, topicID, "let me in"))
	knocks, err := owner.ListKnocks(ctx, topicID)
	require.NoError(t, err)
	require.Len(t, knocks, 1)
	assert.Equal(t, "carol", knocks[0].UserID)
	assert.Equal(t, "let me in", knocks[0].Message)

	require.NoError(t, owner.AcceptKnock(ctx, topicID, "carol"))
	members, err := owner.ListTopicMembers(ctx, topicID, "", 0)
	require.NoError(t, err)
	assert.EqualValues(t, 3, members.Total)
	require.Len(t, members.Items, 3)

	_, err = outsider.SendChatRequest(ctx, topicID, textReq("thanks"))
	require.NoError(t, err)

	require.NoError(t, owner.SilentTopicMember(ctx, topicID, "carol", "10m"))
	_, err = outsider.SendChatRequest(ctx, topicID, textReq("muted?"))
	require.ErrorIs(t, err, chat.ErrForbidden)
	require.NoError(t, owner.SilentTopicMember(ctx, topicID, "carol", ""))
	_, err = outsider.SendChatRequest(ctx, topicID, textReq("free again"))
	require.NoError(t, err)

	require.NoError(t, owner.AddAdmin(ctx, topicID, "bob"))
	require.NoError(t, second.SilentTopic(ctx, topicID, "5m"))
	_, err = outsider.SendChatRequest(ctx, topicID, textReq("anyone?"))
	require.ErrorIs(t, err, chat.ErrForbidden, "a silenced topic mutes plain members")
	_, err = owner.SendChatRequest(ctx, topicID, textReq("admins pass"))
	require.NoError(t, err)
	require.NoError(t, owner.SilentTopic(ctx, topicID, ""))

	topic, err := owner.GetTopic(ctx, topicID)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, topic.Admins)
	assert.False(t, topic.Silent)

	require.NoError(t, outsider.QuitTopic(ctx, topicID))
	err = owner.RemoveTopicMember(ctx, topicID, "carol")
	var httpErr *chat.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.Status)

	require.NoError(t, owner.RemoveTopicMember(ctx, topicID, "bob"))
	topic, err = owner.GetTopic(ctx, topicID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, topic.Members)
	assert.Empty(t, topic.Admins, "kickout strips admin rights")

	err = owner.QuitTopic(ctx, topicID)
	require.ErrorIs(t, err, chat.ErrForbidden, "the owner dismisses instead of quitting")

	require.NoError(t, owner.DismissTopic(ctx, topicID))
	_, err = owner.GetConversation(ctx, topicID)
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.Status)
	list, err := owner.ListConversations(ctx, services.ListConversationsOption{})
	require.NoError(t, err)
	assert.Contains(t, list.Removed, topicID)
}

func TestAttachmentRoundTrip(t *testing.T) {
	srv := startServer(t)
	s := newService(t, srv, "alice")
	ctx := context.Background()

	mgr := media.NewManager(s, nil, media.Options{})
	payload := bytes.Repeat([]byte("parley "), 512)
	res, err := mgr.Upload(ctx, media.UploadOption{Blob: payload, FileName: "notes.txt"})
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", res.FileName)
	assert.EqualValues(t, len(payload), res.Size)
	assert.Contains(t, res.Path, "/files/")

	dest := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, mgr.Download(ctx, res.Path, dest, nil))
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

// liveObserver records the events the socket tests assert on.
type liveObserver struct {
	client.BaseObserver
	mu sync.Mutex

	newMessages []string
	reads       []string
	typing      []string
	kicked      []string
}

func (o *liveObserver) OnNewMessage(topicID string, req *chat.Request) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.newMessages = append(o.newMessages, topicID)
	return true
}

func (o *liveObserver) OnTopicRead(topicID string, req *chat.Request) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reads = append(o.reads, topicID)
}

func (o *liveObserver) OnTopicTyping(topicID, message string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.typing = append(o.typing, topicID)
}

func (o *liveObserver) OnKickoffByOtherClient(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.kicked = append(o.kicked, reason)
}

func (o *liveObserver) snapshot() (messages, reads, typing, kicked []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.newMessages...),
		append([]string(nil), o.reads...),
		append([]string(nil), o.typing...),
		append([]string(nil), o.kicked...)
}

// newLiveClient logs userID in and connects a full client over a real
// websocket. The account must exist.
func newLiveClient(t *testing.T, srv *Server, userID string) (*client.Client, *liveObserver) {
	t.Helper()
	info, err := services.Login(context.Background(), srv.URL(), userID, testPassword)
	require.NoError(t, err)

	cl, err := client.NewClient(info, client.Options{})
	require.NoError(t, err)
	obs := &liveObserver{}
	cl.SetObserver(obs)
	t.Cleanup(func() { cl.Close() })

	require.NoError(t, cl.Connect(context.Background()))
	waitFor(t, func() bool { return cl.ConnectionStatus() == "connected" })
	return cl, obs
}

// TestSocketDelivery runs two full clients against the server: a text send
// from one side lands in the other side's store, the sender's copy is acked
// with the server seq, and the receiver's auto-read comes back to the
// sender as a read receipt.
func TestSocketDelivery(t *testing.T) {
	srv := startServer(t)
	owner := newService(t, srv, "alice")
	addAccount(t, srv, "bob")
	ctx := context.Background()

	conv, err := owner.CreateTopic(ctx, &services.CreateTopicForm{Name: "pair", Members: []string{"bob"}})
	require.NoError(t, err)

	alice, aliceObs := newLiveClient(t, srv, "alice")
	bob, bobObs := newLiveClient(t, srv, "bob")

	chatID, err := alice.DoSendText(ctx, conv.TopicID, "hello bob", nil)
	require.NoError(t, err)

	waitFor(t, func() bool {
		log, err := bob.GetChatLog(ctx, conv.TopicID, chatID)
		return err == nil && log != nil && log.Status == chat.LogStatusReceived
	})
	log, err := bob.GetChatLog(ctx, conv.TopicID, chatID)
	require.NoError(t, err)
	assert.Equal(t, "hello bob", log.Content.Text)
	assert.Equal(t, "alice", log.SenderID)

	waitFor(t, func() bool {
		log, err := alice.GetChatLog(ctx, conv.TopicID, chatID)
		return err == nil && log != nil && log.Status == chat.LogStatusSent && log.Seq > 0
	})

	// bob's observer returned true, so his client reported the topic read
	waitFor(t, func() bool {
		_, reads, _, _ := aliceObs.snapshot()
		return len(reads) > 0
	})
	_, reads, _, _ := aliceObs.snapshot()
	assert.Equal(t, conv.TopicID, reads[0])

	messages, _, _, _ := bobObs.snapshot()
	assert.Equal(t, []string{conv.TopicID}, messages)
}

// TestSecondLoginKicks connects the same account twice: the first session
// is told why it died and stays down, the second one lives.
func TestSecondLoginKicks(t *testing.T) {
	srv := startServer(t)
	addAccount(t, srv, "alice")

	first, firstObs := newLiveClient(t, srv, "alice")
	second, _ := newLiveClient(t, srv, "alice")

	waitFor(t, func() bool {
		_, _, _, kicked := firstObs.snapshot()
		return len(kicked) == 1
	})
	_, _, _, kicked := firstObs.snapshot()
	assert.Equal(t, []string{"logged in from another device"}, kicked)

	waitFor(t, func() bool { return first.ConnectionStatus() == "broken" })
	assert.Equal(t, "connected", second.ConnectionStatus())
	assert.True(t, srv.Connected("alice"))
}

// TestPushAndKick exercises the test-harness hooks: Push lands on a live
// observer, Kick terminates the session with the given reason.
func TestPushAndKick(t *testing.T) {
	srv := startServer(t)
	addAccount(t, srv, "alice")
	cl, obs := newLiveClient(t, srv, "alice")

	require.True(t, srv.Connected("alice"))
	assert.False(t, srv.Push("ghost", &chat.Request{Type: chat.RequestTypeTyping, TopicID: "t:lobby"}))
	require.True(t, srv.Push("alice", &chat.Request{Type: chat.RequestTypeTyping, TopicID: "t:lobby"}))
	waitFor(t, func() bool {
		_, _, typing, _ := obs.snapshot()
		return len(typing) == 1
	})
	_, _, typing, _ := obs.snapshot()
	assert.Equal(t, "t:lobby", typing[0])

	require.True(t, srv.Kick("alice", "maintenance"))
	waitFor(t, func() bool {
		_, _, _, kicked := obs.snapshot()
		return len(kicked) == 1
	})
	_, _, _, kicked := obs.snapshot()
	assert.Equal(t, "maintenance", kicked[0])
	assert.False(t, srv.Connected("alice"))
	waitFor(t, func() bool { return cl.ConnectionStatus() == "broken" })
}
