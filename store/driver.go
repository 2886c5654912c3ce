package store

import "context"

// Table names managed by the store. Drivers create tables lazily on first
// write, so opening a store against an empty directory is cheap.
const (
	TableConversations = "conversations"
	TableChatLogs      = "chat_logs"
	TableUsers         = "users"
	TableCredentials   = "credentials"
)

// Entry is one stored record. Partition scopes the key (the owning user for
// conversations and users, the topic for chat logs), SortKey orders entries
// within a partition.
type Entry struct {
	Partition string
	Key       string
	Value     []byte
	SortKey   int64
}

// QueryOption narrows a partition scan.
type QueryOption struct {
	// StartSortValue is an exclusive upper bound. Zero means "start from the
	// newest entry in the partition".
	StartSortValue int64
	// Limit caps the number of returned entries. Zero means driver default.
	Limit int
	// Keyword, when set, keeps only entries whose serialized value contains
	// the keyword.
	Keyword string
}

// QueryResult is one page of a descending partition scan. EndSortValue is the
// sort key of the last returned entry and feeds the next page's
// StartSortValue.
type QueryResult struct {
	Items          []Entry
	StartSortValue int64
	EndSortValue   int64
	HasMore        bool
}

// Driver is the storage backend contract. Implementations live under
// store/db. A missing record is reported as a nil value with a nil error,
// not as a distinct error.
type Driver interface {
	Get(ctx context.Context, table, partition, key string) ([]byte, error)
	Set(ctx context.Context, table, partition, key string, value []byte, sortKey int64) error
	Remove(ctx context.Context, table, partition, key string) error
	// RemoveAll drops every entry of one partition.
	RemoveAll(ctx context.Context, table, partition string) error
	// Query scans one partition in descending sort-key order.
	Query(ctx context.Context, table, partition string, opt QueryOption) (*QueryResult, error)
	// Last returns the entry with the highest sort key in the partition, or
	// nil when the partition is empty.
	Last(ctx context.Context, table, partition string) (*Entry, error)
	// Filter returns the entries of a partition for which keep reports true,
	// in descending sort-key order. A nil keep returns the whole partition.
	Filter(ctx context.Context, table, partition string, keep func(Entry) bool) ([]Entry, error)
	// Clear drops every entry of the table across all partitions.
	Clear(ctx context.Context, table string) error
	Close() error
}
