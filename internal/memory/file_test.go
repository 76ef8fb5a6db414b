package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/geoinvestbtc-x/x-trend-digest/internal/candidate"
)

const (
	testPickTTL   = 30 * 24 * time.Hour
	testRankedTTL = 3 * 24 * time.Hour
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memory.jsonl")
	return NewFileStore(path, testPickTTL, testRankedTTL, zerolog.Nop())
}

func TestAppendAndLoadActiveKeys(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	items := []candidate.Candidate{
		{ID: "1", Key: "tweet:1"},
		{ID: "2", Key: "tweet:2"},
	}
	if err := store.Append(items, TierPick); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	keys, err := store.LoadActiveKeys(time.Now().UTC())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 active keys, got %d", len(keys))
	}
	if _, ok := keys["tweet:1"]; !ok {
		t.Fatalf("missing key tweet:1 in %v", keys)
	}
}

func TestAppendDerivesMissingKeys(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	items := []candidate.Candidate{
		{ID: "9"},
		{URL: "https://example.com/post"},
		{}, // no identity at all, skipped
	}
	if err := store.Append(items, TierPick); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Total != 2 {
		t.Fatalf("expected 2 records, got %d", stats.Total)
	}

	keys, err := store.LoadActiveKeys(time.Now().UTC())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if _, ok := keys["tweet:9"]; !ok {
		t.Fatalf("expected derived key tweet:9, got %v", keys)
	}
}

func TestTierTTLs(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	now := time.Now().UTC()
	fourDaysAgo := now.Add(-4 * 24 * time.Hour)

	writeRecords(t, store.path, []Record{
		{Key: "tweet:old-ranked", Tier: TierRanked, SeenAt: fourDaysAgo},
		{Key: "tweet:old-pick", Tier: TierPick, SeenAt: fourDaysAgo},
		{Key: "tweet:fresh-ranked", Tier: TierRanked, SeenAt: now.Add(-time.Hour)},
	})

	keys, err := store.LoadActiveKeys(now)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if _, ok := keys["tweet:old-ranked"]; ok {
		t.Fatalf("4d old ranked record should be expired")
	}
	if _, ok := keys["tweet:old-pick"]; !ok {
		t.Fatalf("4d old pick record should still be active")
	}
	if _, ok := keys["tweet:fresh-ranked"]; !ok {
		t.Fatalf("fresh ranked record should be active")
	}
}

func TestUnknownTierTreatedAsPick(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	now := time.Now().UTC()

	writeRecords(t, store.path, []Record{
		{Key: "tweet:legacy", Tier: "weird", SeenAt: now.Add(-10 * 24 * time.Hour)},
	})

	keys, err := store.LoadActiveKeys(now)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if _, ok := keys["tweet:legacy"]; !ok {
		t.Fatalf("unknown tier should use the pick TTL and stay active at 10d")
	}
}

func TestFilterNewRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	now := time.Now().UTC()

	seen := []candidate.Candidate{{ID: "1", Key: "tweet:1"}}
	if err := store.Append(seen, TierPick); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	items := []candidate.Candidate{
		{ID: "1", Key: "tweet:1"},
		{ID: "2", Key: "tweet:2"},
	}
	fresh, err := store.FilterNew(items, now)
	if err != nil {
		t.Fatalf("filter failed: %v", err)
	}
	if len(fresh) != 1 || fresh[0].Key != "tweet:2" {
		t.Fatalf("expected only tweet:2 to survive, got %+v", fresh)
	}
}

func TestMalformedLinesSkipped(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	now := time.Now().UTC()

	content := strings.Join([]string{
		`{"key":"tweet:1","tier":"pick","seen_at":"` + now.Format(time.RFC3339) + `"}`,
		`this is not json`,
		`{"key":"","tier":"pick","seen_at":"` + now.Format(time.RFC3339) + `"}`,
		``,
		`{"key":"tweet:2","tier":"pick","seen_at":"` + now.Format(time.RFC3339) + `"}`,
	}, "\n")
	if err := os.WriteFile(store.path, []byte(content+"\n"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	keys, err := store.LoadActiveKeys(now)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 well-formed records, got %d (%v)", len(keys), keys)
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	if err := store.Append([]candidate.Candidate{{Key: "tweet:1"}, {Key: "tweet:2"}}, TierPick); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	removed, err := store.Remove("tweet:1")
	if err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if !removed {
		t.Fatalf("expected removal to report true")
	}

	removed, err = store.Remove("tweet:1")
	if err != nil {
		t.Fatalf("second remove failed: %v", err)
	}
	if removed {
		t.Fatalf("expected second removal to report false")
	}

	keys, err := store.LoadActiveKeys(time.Now().UTC())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if _, ok := keys["tweet:1"]; ok {
		t.Fatalf("tweet:1 should be gone")
	}
	if _, ok := keys["tweet:2"]; !ok {
		t.Fatalf("tweet:2 should remain")
	}
}

func TestCleanup(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	now := time.Now().UTC()

	writeRecords(t, store.path, []Record{
		{Key: "tweet:expired-ranked", Tier: TierRanked, SeenAt: now.Add(-5 * 24 * time.Hour)},
		{Key: "tweet:expired-pick", Tier: TierPick, SeenAt: now.Add(-40 * 24 * time.Hour)},
		{Key: "tweet:alive", Tier: TierPick, SeenAt: now.Add(-time.Hour)},
	})

	removed, err := store.Cleanup(now)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}

	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Total != 1 {
		t.Fatalf("expected 1 record after cleanup, got %d", stats.Total)
	}
}

func TestCleanupDropsMalformedLinesWithoutExpiry(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	now := time.Now().UTC()

	content := `{"key":"tweet:alive","tier":"pick","seen_at":"` + now.Format(time.RFC3339) + `"}` + "\n" +
		"this line is not json\n"
	if err := os.WriteFile(store.path, []byte(content), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	removed, err := store.Cleanup(now)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if removed != 0 {
		t.Fatalf("no active record expired, got removed=%d", removed)
	}

	data, err := os.ReadFile(store.path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if strings.Contains(string(data), "not json") {
		t.Fatalf("malformed line survived cleanup:\n%s", data)
	}
	if !strings.Contains(string(data), "tweet:alive") {
		t.Fatalf("live record lost in cleanup:\n%s", data)
	}
}

func TestStatsByTier(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	if err := store.Append([]candidate.Candidate{{Key: "tweet:1"}}, TierPick); err != nil {
		t.Fatalf("append picks failed: %v", err)
	}
	if err := store.Append([]candidate.Candidate{{Key: "tweet:2"}, {Key: "tweet:3"}}, TierRanked); err != nil {
		t.Fatalf("append ranked failed: %v", err)
	}

	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Total != 3 || stats.Picks != 1 || stats.Ranked != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

// Separate FileStore instances against the same path stand in for the
// scheduled pipeline and the bot handler writing from different
// processes.
func TestConcurrentAppends(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "memory.jsonl")

	const writers = 10
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			store := NewFileStore(path, testPickTTL, testRankedTTL, zerolog.Nop())
			item := candidate.Candidate{Key: fmt.Sprintf("tweet:%d", n)}
			if err := store.Append([]candidate.Candidate{item}, TierPick); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("concurrent append failed: %v", err)
	}

	store := NewFileStore(path, testPickTTL, testRankedTTL, zerolog.Nop())
	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Total != writers {
		t.Fatalf("expected %d records, got %d (lost or torn writes)", writers, stats.Total)
	}
}

func writeRecords(t *testing.T, path string, records []Record) {
	t.Helper()
	var sb strings.Builder
	for _, rec := range records {
		sb.WriteString(fmt.Sprintf(
			`{"key":%q,"category":%q,"tier":%q,"seen_at":%q}`+"\n",
			rec.Key, rec.Category, rec.Tier, rec.SeenAt.Format(time.RFC3339),
		))
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		t.Fatalf("seed records: %v", err)
	}
}
