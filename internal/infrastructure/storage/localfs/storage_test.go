package localfs

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/onamfc/rag-chat/internal/core/domain"
)

func TestSaveOpenRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	if err := store.Save(ctx, "abc123_doc.txt", strings.NewReader("payload")); err != nil {
		t.Fatalf("save: %v", err)
	}
	r, err := store.Open(ctx, "abc123_doc.txt")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("data = %q", data)
	}
}

func TestListSkipsDirectoriesAndDotfiles(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	for _, key := range []string{"k1_a.txt", "k2_b.txt"} {
		if err := store.Save(ctx, key, strings.NewReader("x")); err != nil {
			t.Fatalf("save %s: %v", key, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".notes"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write dotfile: %v", err)
	}

	keys, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	sort.Strings(keys)
	want := []string{"k1_a.txt", "k2_b.txt"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("keys = %v, want %v", keys, want)
		}
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	if err := store.Save(ctx, "k1_a.txt", strings.NewReader("x")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Remove(ctx, "k1_a.txt"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := store.Remove(ctx, "k1_a.txt"); err != nil {
		t.Fatalf("second remove: %v", err)
	}
}

func TestRejectsPathEscapingKeys(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	for _, key := range []string{"", "../escape", "a/b", ".."} {
		if err := store.Save(ctx, key, strings.NewReader("x")); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("save %q: err = %v, want ErrInvalidInput", key, err)
		}
	}
}

func TestOpenMissingFileIsStorageError(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := store.Open(context.Background(), "missing_doc.txt"); !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("err = %v, want ErrStorage", err)
	}
}
