package client

import (
	"time"

	"github.com/parley-im/parley-go/chat"
)

// Observer receives client events. Implementations must be safe for
// concurrent use; callbacks fire on the client's internal goroutines and
// must not block. Re-enter the client only through its exported methods.
type Observer interface {
	// OnConnecting fires when a connection attempt starts.
	OnConnecting()
	// OnConnected fires once the channel is live.
	OnConnected(elapsed time.Duration)
	// OnTokenExpired fires when the session credential is rejected. The
	// reconnect loop stops; a fresh login and Connect are required.
	OnTokenExpired(reason string)
	// OnNetBroken fires when a live connection drops. The client reconnects
	// by itself.
	OnNetBroken(reason string)
	// OnKickoffByOtherClient fires when the server terminates this session
	// in favour of another device. Reconnection stops.
	OnKickoffByOtherClient(reason string)
	// OnNewMessage delivers an incoming chat after it has been persisted.
	// Returning true marks the topic read immediately.
	OnNewMessage(topicID string, req *chat.Request) bool
	// OnTopicRead fires when a read receipt advances a conversation.
	OnTopicRead(topicID string, req *chat.Request)
	// OnConversationsUpdated delivers each merged page during sync and
	// single conversation updates outside sync. total is the server-side
	// count when known, otherwise 0.
	OnConversationsUpdated(conversations []*chat.Conversation, total int64)
	// OnConversationRemoved fires when a conversation disappears, locally
	// or by server push.
	OnConversationRemoved(topicID string)
	// OnTopicTyping fires for typing notices. Nothing is persisted.
	OnTopicTyping(topicID, message string)
	// OnSystemRequest handles system frames. A non-nil response is sent
	// back; nil falls back to a plain 200 acknowledgement.
	OnSystemRequest(req *chat.Request) *chat.Request
	// OnUnknownRequest handles frames of unrecognized type. A non-nil
	// response is sent back; nil falls back to a plain 200 acknowledgement.
	OnUnknownRequest(req *chat.Request) *chat.Request
}

// BaseObserver is a no-op Observer. Embed it and override the events you
// care about.
type BaseObserver struct{}

func (BaseObserver) OnConnecting()                                        {}
func (BaseObserver) OnConnected(time.Duration)                            {}
func (BaseObserver) OnTokenExpired(string)                                {}
func (BaseObserver) OnNetBroken(string)                                   {}
func (BaseObserver) OnKickoffByOtherClient(string)                        {}
func (BaseObserver) OnNewMessage(string, *chat.Request) bool              { return false }
func (BaseObserver) OnTopicRead(string, *chat.Request)                    {}
func (BaseObserver) OnConversationsUpdated([]*chat.Conversation, int64)   {}
func (BaseObserver) OnConversationRemoved(string)                         {}
func (BaseObserver) OnTopicTyping(string, string)                         {}
func (BaseObserver) OnSystemRequest(*chat.Request) *chat.Request          { return nil }
func (BaseObserver) OnUnknownRequest(*chat.Request) *chat.Request         { return nil }

// SetObserver swaps the event receiver. Passing nil restores the no-op
// observer.
func (c *Client) SetObserver(observer Observer) {
	if observer == nil {
		observer = BaseObserver{}
	}
	c.observerMu.Lock()
	c.observerVal = observer
	c.observerMu.Unlock()
}

func (c *Client) observer() Observer {
	c.observerMu.RLock()
	defer c.observerMu.RUnlock()
	return c.observerVal
}
