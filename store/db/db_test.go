package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/parley-im/parley-go/store"
)

// TestOpenSQLite checks the durable happy path.
func TestOpenSQLite(t *testing.T) {
	d, degraded := Open(t.TempDir(), "parley.db")
	defer d.Close()

	if degraded {
		t.Fatal("expected durable driver, got degraded")
	}
	if err := d.Set(context.Background(), store.TableUsers, "p", "k", []byte(`{}`), 1); err != nil {
		t.Errorf("Set on durable driver failed: %v", err)
	}
}

// TestOpenFallsBackToMemory forces the data dir to be unusable and expects a
// working in-memory driver instead of an error.
func TestOpenFallsBackToMemory(t *testing.T) {
	// A regular file where the data dir should be makes MkdirAll fail.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	d, degraded := Open(blocker, "parley.db")
	defer d.Close()

	if !degraded {
		t.Fatal("expected degraded driver")
	}
	ctx := context.Background()
	if err := d.Set(ctx, store.TableUsers, "p", "k", []byte(`{"userId":"k"}`), 1); err != nil {
		t.Fatalf("Set on degraded driver failed: %v", err)
	}
	got, err := d.Get(ctx, store.TableUsers, "p", "k")
	if err != nil {
		t.Fatalf("Get on degraded driver failed: %v", err)
	}
	if string(got) != `{"userId":"k"}` {
		t.Errorf("degraded driver round trip: got %q", got)
	}
}
