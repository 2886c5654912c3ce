package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/parley-im/parley-go/store"
)

func openTestDB(t *testing.T) store.Driver {
	t.Helper()
	d, err := New(t.TempDir(), "parley.db")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// TestSetGetRemove covers the basic key lifecycle including overwrite.
func TestSetGetRemove(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	got, err := d.Get(ctx, store.TableUsers, "guest1", "u1")
	if err != nil {
		t.Fatalf("Get on empty table failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing key, got %q", got)
	}

	if err := d.Set(ctx, store.TableUsers, "guest1", "u1", []byte(`{"userId":"u1"}`), 100); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err = d.Get(ctx, store.TableUsers, "guest1", "u1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != `{"userId":"u1"}` {
		t.Errorf("Get: got %q", got)
	}

	// Overwrite must replace both value and sort key.
	if err := d.Set(ctx, store.TableUsers, "guest1", "u1", []byte(`{"userId":"u1","name":"Guest"}`), 200); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	last, err := d.Last(ctx, store.TableUsers, "guest1")
	if err != nil {
		t.Fatalf("Last failed: %v", err)
	}
	if last == nil || last.SortKey != 200 {
		t.Fatalf("Last after overwrite: got %+v, want sort key 200", last)
	}

	if err := d.Remove(ctx, store.TableUsers, "guest1", "u1"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	got, err = d.Get(ctx, store.TableUsers, "guest1", "u1")
	if err != nil {
		t.Fatalf("Get after remove failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil after remove, got %q", got)
	}
}

// TestQueryDescending checks ordering, the exclusive start bound and the
// has-more flag.
func TestQueryDescending(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	for seq := int64(1); seq <= 12; seq++ {
		key := fmt.Sprintf("log-%d", seq)
		value := fmt.Sprintf(`{"seq":%d}`, seq)
		if err := d.Set(ctx, store.TableChatLogs, "t1", key, []byte(value), seq); err != nil {
			t.Fatalf("Set seq %d failed: %v", seq, err)
		}
	}

	res, err := d.Query(ctx, store.TableChatLogs, "t1", store.QueryOption{Limit: 5})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(res.Items) != 5 {
		t.Fatalf("page size: got %d, want 5", len(res.Items))
	}
	if res.Items[0].SortKey != 12 || res.Items[4].SortKey != 8 {
		t.Errorf("page range: got %d..%d, want 12..8", res.Items[0].SortKey, res.Items[4].SortKey)
	}
	if !res.HasMore {
		t.Error("expected more pages")
	}
	if res.StartSortValue != 12 || res.EndSortValue != 8 {
		t.Errorf("page bounds: got %d/%d, want 12/8", res.StartSortValue, res.EndSortValue)
	}

	res, err = d.Query(ctx, store.TableChatLogs, "t1", store.QueryOption{StartSortValue: 8, Limit: 10})
	if err != nil {
		t.Fatalf("Query with start failed: %v", err)
	}
	if len(res.Items) != 7 {
		t.Fatalf("second page size: got %d, want 7", len(res.Items))
	}
	if res.Items[0].SortKey != 7 || res.Items[6].SortKey != 1 {
		t.Errorf("second page range: got %d..%d, want 7..1", res.Items[0].SortKey, res.Items[6].SortKey)
	}
	if res.HasMore {
		t.Error("second page should be the last")
	}
}

// TestQueryKeyword checks substring matching against the stored value.
func TestQueryKeyword(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	values := map[string]string{
		"a": `{"text":"meeting at noon"}`,
		"b": `{"text":"standup notes"}`,
		"c": `{"text":"meeting moved"}`,
	}
	seq := int64(0)
	for key, value := range values {
		seq++
		if err := d.Set(ctx, store.TableChatLogs, "t1", key, []byte(value), seq); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	res, err := d.Query(ctx, store.TableChatLogs, "t1", store.QueryOption{Keyword: "meeting"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(res.Items) != 2 {
		t.Errorf("keyword matches: got %d, want 2", len(res.Items))
	}
}

// TestFilterAndClear checks predicate scans and table truncation.
func TestFilterAndClear(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	for seq := int64(1); seq <= 4; seq++ {
		key := fmt.Sprintf("log-%d", seq)
		if err := d.Set(ctx, store.TableChatLogs, "t1", key, []byte(`{}`), seq); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	odd, err := d.Filter(ctx, store.TableChatLogs, "t1", func(e store.Entry) bool { return e.SortKey%2 == 1 })
	if err != nil {
		t.Fatalf("Filter failed: %v", err)
	}
	if len(odd) != 2 || odd[0].SortKey != 3 || odd[1].SortKey != 1 {
		t.Errorf("Filter: got %+v, want sort keys 3,1", odd)
	}

	if err := d.Clear(ctx, store.TableChatLogs); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	res, err := d.Query(ctx, store.TableChatLogs, "t1", store.QueryOption{})
	if err != nil {
		t.Fatalf("Query after clear failed: %v", err)
	}
	if len(res.Items) != 0 {
		t.Errorf("expected empty table after clear, got %d items", len(res.Items))
	}
}

// TestRemoveAllPartition checks partition-scoped deletion.
func TestRemoveAllPartition(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	for _, partition := range []string{"t1", "t2"} {
		if err := d.Set(ctx, store.TableChatLogs, partition, "k", []byte(`{}`), 1); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	if err := d.RemoveAll(ctx, store.TableChatLogs, "t1"); err != nil {
		t.Fatalf("RemoveAll failed: %v", err)
	}

	got, err := d.Get(ctx, store.TableChatLogs, "t1", "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Error("t1 entry should be gone")
	}
	got, err = d.Get(ctx, store.TableChatLogs, "t2", "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Error("t2 entry should survive")
	}
}

// TestPersistsAcrossReopen verifies the file actually holds the data.
func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	d, err := New(dir, "parley.db")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := d.Set(ctx, store.TableConversations, "guest1", "t1", []byte(`{"topicId":"t1"}`), 5); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	d, err = New(dir, "parley.db")
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer d.Close()

	got, err := d.Get(ctx, store.TableConversations, "guest1", "t1")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if string(got) != `{"topicId":"t1"}` {
		t.Errorf("Get after reopen: got %q", got)
	}
}

// TestRejectsBadTableName guards the identifier interpolation.
func TestRejectsBadTableName(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	for _, name := range []string{"", "chat-logs", "logs; DROP TABLE users"} {
		if err := d.Set(ctx, name, "p", "k", []byte(`{}`), 1); err == nil {
			t.Errorf("table %q: expected error, got nil", name)
		}
	}
}

// TestEmptyDBName verifies the constructor contract.
func TestEmptyDBName(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "data"), ""); err == nil {
		t.Error("expected error for empty db name, got nil")
	}
}
