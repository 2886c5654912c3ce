// Package store persists the client-side cache: conversations, chat logs,
// user profiles and login credentials. A Store wraps one storage Driver with
// typed tables; concrete drivers live under store/db.
package store

import "github.com/parley-im/parley-go/chat"

// Store is the typed persistence facade. All tables share one driver, so a
// single Close releases everything.
type Store struct {
	driver Driver

	Conversations *Table[chat.Conversation]
	ChatLogs      *Table[chat.Log]
	Users         *Table[chat.User]
	Credentials   *Table[chat.AuthInfo]
}

// New builds a Store over driver.
func New(driver Driver) *Store {
	s := &Store{driver: driver}
	s.Conversations = NewTable(s, TableConversations, func(c *chat.Conversation) int64 { return c.UpdatedAtMillis() })
	s.ChatLogs = NewTable(s, TableChatLogs, func(l *chat.Log) int64 { return l.Seq })
	s.Users = NewTable(s, TableUsers, func(u *chat.User) int64 { return u.CachedAt })
	s.Credentials = NewTable(s, TableCredentials, func(*chat.AuthInfo) int64 { return 0 })
	return s
}

// Close releases the underlying driver.
func (s *Store) Close() error {
	return s.driver.Close()
}
