package pipeline

import (
	"context"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/geoinvestbtc-x/x-trend-digest/internal/candidate"
	"github.com/geoinvestbtc-x/x-trend-digest/internal/config"
	"github.com/geoinvestbtc-x/x-trend-digest/internal/discover"
	"github.com/geoinvestbtc-x/x-trend-digest/internal/memory"
	"github.com/geoinvestbtc-x/x-trend-digest/internal/summarize"
)

type fakeSource struct {
	blocks []candidate.Block
}

func (s *fakeSource) Name() string { return "fake" }

func (s *fakeSource) Discover(_ context.Context, _ string) ([]candidate.Block, error) {
	return s.blocks, nil
}

type fakePicker struct {
	calls []pickCall
}

type pickCall struct {
	category string
	items    []candidate.Candidate
}

func (p *fakePicker) PickCategory(_ context.Context, category, _ string, items []candidate.Candidate, picksN int) ([]summarize.Pick, summarize.Usage, error) {
	p.calls = append(p.calls, pickCall{category: category, items: items})

	n := picksN
	if n > len(items) {
		n = len(items)
	}
	picks := make([]summarize.Pick, 0, n)
	for _, item := range items[:n] {
		picks = append(picks, summarize.Pick{
			ID:       item.ID,
			URL:      item.URL,
			Title:    "pick " + item.ID,
			Category: category,
			Key:      item.Key,
		})
	}
	return picks, summarize.Usage{Calls: 1, TotalTokens: 100}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		OutDir:          filepath.Join(dir, "out"),
		DataDir:         filepath.Join(dir, "data"),
		PicksPerCat:     5,
		MaxPerCategory:  25,
		MinWords:        8,
		MaxMentions:     4,
		MinForumScore:   10,
		WeightVelocity:  2,
		WeightRelative:  1,
		WeightVirality:  5,
		FreshnessLambda: math.Ln2 / 48,
	}
}

func newTestPipeline(t *testing.T, source discover.Source, picker summarize.Picker) (*Pipeline, memory.Store) {
	t.Helper()
	store := memory.NewFileStore(
		filepath.Join(t.TempDir(), "memory.jsonl"),
		30*24*time.Hour,
		3*24*time.Hour,
		zerolog.Nop(),
	)
	categories := []discover.Category{{Name: "AI Coding"}, {Name: "General AI"}}
	p := New(testConfig(t), categories, source, nil, store, picker, nil, zerolog.Nop())
	return p, store
}

func recentRubyDate() string {
	return time.Now().UTC().Add(-2 * time.Hour).Format(time.RubyDate)
}

const passingText = "An actual long post about shipping agents into production with real numbers attached"

func TestRunMergesAcrossCategoriesKeepingLongerText(t *testing.T) {
	t.Parallel()

	longer := passingText + " and a detailed thread with much more context below"
	source := &fakeSource{blocks: []candidate.Block{
		{
			Category: "AI Coding",
			Items: []candidate.Candidate{{
				ID:        "42",
				Text:      passingText,
				CreatedAt: recentRubyDate(),
				Metrics:   candidate.Metrics{Bookmark: 10, Retweet: 4, Like: 80},
			}},
		},
		{
			Category: "General AI",
			Items: []candidate.Candidate{{
				ID:        "42",
				Text:      longer,
				CreatedAt: recentRubyDate(),
				Metrics:   candidate.Metrics{Bookmark: 10, Retweet: 4, Like: 80},
			}},
		},
	}}
	picker := &fakePicker{}
	p, _ := newTestPipeline(t, source, picker)

	result, err := p.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(picker.calls) != 1 {
		t.Fatalf("expected one picker call after merge, got %d", len(picker.calls))
	}
	call := picker.calls[0]
	if len(call.items) != 1 {
		t.Fatalf("expected one merged candidate, got %d", len(call.items))
	}
	if call.items[0].Text != longer {
		t.Fatalf("merge should keep the longer text, got %q", call.items[0].Text)
	}
	if len(result.Picks) != 1 || result.Picks[0].ID != "42" {
		t.Fatalf("unexpected picks: %+v", result.Picks)
	}
}

func TestRunZeroGatedSkipsSummarizer(t *testing.T) {
	t.Parallel()

	source := &fakeSource{blocks: []candidate.Block{{
		Category: "AI Coding",
		Items: []candidate.Candidate{
			{ID: "1", Text: "way too short", CreatedAt: recentRubyDate(), Metrics: candidate.Metrics{Bookmark: 50}},
			{ID: "2", Text: passingText, CreatedAt: recentRubyDate()}, // zero engagement
		},
	}}}
	picker := &fakePicker{}
	p, store := newTestPipeline(t, source, picker)

	result, err := p.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(picker.calls) != 0 {
		t.Fatalf("summarizer must not run when nothing passes the gate, got %d calls", len(picker.calls))
	}
	if len(result.Picks) != 0 {
		t.Fatalf("expected no picks, got %+v", result.Picks)
	}

	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Total != 0 {
		t.Fatalf("nothing should be persisted, got %d records", stats.Total)
	}
}

func TestRunPersistsPicksAndRankedTiers(t *testing.T) {
	t.Parallel()

	items := make([]candidate.Candidate, 0, 3)
	for _, id := range []string{"1", "2", "3"} {
		items = append(items, candidate.Candidate{
			ID:        id,
			Text:      passingText + " variant " + id + " with its own distinct tail words",
			CreatedAt: recentRubyDate(),
			Metrics:   candidate.Metrics{Bookmark: 10, Retweet: 4, Like: 50},
		})
	}
	source := &fakeSource{blocks: []candidate.Block{{Category: "AI Coding", Items: items}}}
	picker := &fakePicker{}
	p, store := newTestPipeline(t, source, picker)
	p.cfg.PicksPerCat = 1

	if _, err := p.Run(context.Background(), Options{}); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Picks != 1 || stats.Ranked != 2 {
		t.Fatalf("expected 1 pick + 2 ranked records, got %+v", stats)
	}

	// A second run over the same feed finds nothing new.
	picker.calls = nil
	result, err := p.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if len(picker.calls) != 0 || len(result.Picks) != 0 {
		t.Fatalf("expected full suppression on rerun, got calls=%d picks=%d", len(picker.calls), len(result.Picks))
	}
}

func TestRunPersistsURLOnlyPickUnderPickTier(t *testing.T) {
	t.Parallel()

	source := &fakeSource{blocks: []candidate.Block{{
		Category: "AI Coding",
		Items: []candidate.Candidate{{
			URL:       "https://example.com/some-linked-post",
			Text:      passingText,
			CreatedAt: recentRubyDate(),
			Metrics:   candidate.Metrics{Bookmark: 10, Retweet: 4, Like: 50},
		}},
	}}}
	picker := &fakePicker{}
	p, store := newTestPipeline(t, source, picker)

	result, err := p.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(result.Picks) != 1 {
		t.Fatalf("expected 1 pick, got %d", len(result.Picks))
	}

	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Picks != 1 || stats.Ranked != 0 {
		t.Fatalf("url-only pick must land in the pick tier, got %+v", stats)
	}
}

func TestRunDryRunSkipsMemoryWrites(t *testing.T) {
	t.Parallel()

	source := &fakeSource{blocks: []candidate.Block{{
		Category: "AI Coding",
		Items: []candidate.Candidate{{
			ID:        "7",
			Text:      passingText,
			CreatedAt: recentRubyDate(),
			Metrics:   candidate.Metrics{Bookmark: 10, Retweet: 4, Like: 50},
		}},
	}}}
	picker := &fakePicker{}
	p, store := newTestPipeline(t, source, picker)

	result, err := p.Run(context.Background(), Options{DryRun: true})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(result.Picks) != 1 {
		t.Fatalf("dry run still summarizes, got %d picks", len(result.Picks))
	}

	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Total != 0 {
		t.Fatalf("dry run must not write memory, got %d records", stats.Total)
	}
}

func TestRunFunnelCountsStages(t *testing.T) {
	t.Parallel()

	source := &fakeSource{blocks: []candidate.Block{{
		Category: "AI Coding",
		Items: []candidate.Candidate{
			{ID: "1", Text: passingText, CreatedAt: recentRubyDate(), Metrics: candidate.Metrics{Bookmark: 10, Retweet: 4}},
			{ID: "1", Text: passingText, CreatedAt: recentRubyDate(), Metrics: candidate.Metrics{Bookmark: 10, Retweet: 4}},
			{ID: "2", Text: "short one", CreatedAt: recentRubyDate(), Metrics: candidate.Metrics{Bookmark: 10, Retweet: 4}},
		},
	}}}
	picker := &fakePicker{}
	p, _ := newTestPipeline(t, source, picker)

	result, err := p.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	stages := result.Funnel["AI Coding"]
	if stages == nil {
		t.Fatalf("missing funnel for category: %v", result.Funnel)
	}
	want := map[string]int{
		"discovered":  3,
		"after_norm":  2,
		"after_ttl":   2,
		"after_dedup": 2,
		"after_rank":  1,
		"picks":       1,
	}
	for stage, n := range want {
		if stages[stage] != n {
			t.Fatalf("stage %s: expected %d, got %d (%v)", stage, n, stages[stage], stages)
		}
	}
}

func TestRunPropagatesDedupStats(t *testing.T) {
	t.Parallel()

	source := &fakeSource{blocks: []candidate.Block{{
		Category: "AI Coding",
		Items: []candidate.Candidate{
			{ID: "1", Text: passingText, CreatedAt: recentRubyDate(), Metrics: candidate.Metrics{Bookmark: 10, Retweet: 4}},
			{ID: "1", Text: strings.ToUpper(passingText), CreatedAt: recentRubyDate(), Metrics: candidate.Metrics{Bookmark: 10, Retweet: 4}},
		},
	}}}
	p, _ := newTestPipeline(t, source, &fakePicker{})

	result, err := p.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	st := result.DedupStats["AI Coding"]
	if st == nil || st.KeyDup != 1 {
		t.Fatalf("expected one key dup in dedup stats, got %+v", st)
	}
}
