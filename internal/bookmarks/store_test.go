package bookmarks

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "bookmarks.jsonl"), zerolog.Nop())
}

func TestSaveAndExists(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	exists, err := store.Exists("42")
	if err != nil {
		t.Fatalf("exists on empty store failed: %v", err)
	}
	if exists {
		t.Fatalf("empty store should not contain anything")
	}

	err = store.Save(Bookmark{ID: "42", Key: "tweet:42", URL: "https://x.com/i/status/42", Category: "AI Coding"})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	exists, err = store.Exists("42")
	if err != nil {
		t.Fatalf("exists failed: %v", err)
	}
	if !exists {
		t.Fatalf("expected bookmark to exist after save")
	}
}

func TestSaveRequiresID(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	if err := store.Save(Bookmark{URL: "https://example.com"}); err == nil {
		t.Fatalf("expected error for bookmark without id")
	}
}

func TestSaveDefaultsSavedAt(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	if err := store.Save(Bookmark{ID: "1"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	all, err := store.All()
	if err != nil {
		t.Fatalf("all failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 bookmark, got %d", len(all))
	}
	if all[0].SavedAt.IsZero() {
		t.Fatalf("expected saved_at to be filled")
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	if err := store.Save(Bookmark{ID: "1"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := store.Save(Bookmark{ID: "2"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	removed, err := store.Remove("1")
	if err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if !removed {
		t.Fatalf("expected removal reported")
	}

	removed, err = store.Remove("1")
	if err != nil {
		t.Fatalf("second remove failed: %v", err)
	}
	if removed {
		t.Fatalf("expected second removal to report false")
	}

	all, err := store.All()
	if err != nil {
		t.Fatalf("all failed: %v", err)
	}
	if len(all) != 1 || all[0].ID != "2" {
		t.Fatalf("expected only id 2 left, got %+v", all)
	}
}

func TestMarkDeepReadSent(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	if err := store.Save(Bookmark{ID: "1"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := store.Save(Bookmark{ID: "2"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if err := store.MarkDeepReadSent("1"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Total != 2 || stats.DeepRead != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestMalformedLinesSkipped(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	content := `{"id":"1","saved_at":"2026-01-02T03:04:05Z"}
garbage line
{"url":"no id here"}
{"id":"2","saved_at":"2026-01-02T03:04:05Z"}
`
	if err := os.WriteFile(store.path, []byte(content), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	all, err := store.All()
	if err != nil {
		t.Fatalf("all failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 well-formed bookmarks, got %d", len(all))
	}
}
