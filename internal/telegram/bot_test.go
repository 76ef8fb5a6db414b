package telegram

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/geoinvestbtc-x/x-trend-digest/internal/bookmarks"
	"github.com/geoinvestbtc-x/x-trend-digest/internal/candidate"
	"github.com/geoinvestbtc-x/x-trend-digest/internal/memory"
)

type fakeBotClient struct {
	fakeSendClient
	answers []string
	edits   []*InlineKeyboardMarkup
}

func (c *fakeBotClient) EditMessageReplyMarkup(_ context.Context, _ int64, _ int64, markup *InlineKeyboardMarkup) error {
	c.edits = append(c.edits, markup)
	return nil
}

func (c *fakeBotClient) AnswerCallbackQuery(_ context.Context, _ string, text string) error {
	c.answers = append(c.answers, text)
	return nil
}

func newTestBot(t *testing.T) (*Bot, *fakeBotClient, *bookmarks.Store, memory.Store) {
	t.Helper()
	dir := t.TempDir()
	client := &fakeBotClient{}
	bm := bookmarks.NewStore(filepath.Join(dir, "bookmarks.jsonl"), zerolog.Nop())
	mem := memory.NewFileStore(filepath.Join(dir, "memory.jsonl"), 30*24*time.Hour, 3*24*time.Hour, zerolog.Nop())
	bot := NewBot(client, bm, mem, zerolog.Nop())
	return bot, client, bm, mem
}

func digestCallback(data string) *CallbackQuery {
	return &CallbackQuery{
		ID:   "cq-1",
		Data: data,
		Message: &Message{
			MessageID: 7,
			Chat:      Chat{ID: 100},
			Text: strings.Join([]string{
				"⚡ <b>AI Coding</b> · 𝕏 — last 48h",
				"",
				"<b>1. First pick title</b>",
				"https://x.com/a/status/42",
				"",
			}, "\n"),
			ReplyMarkup: &InlineKeyboardMarkup{InlineKeyboard: [][]InlineKeyboardButton{{
				{Text: "🪨 1", CallbackData: "interesting:42"},
			}}},
		},
	}
}

func TestCallbackSavesBookmark(t *testing.T) {
	t.Parallel()

	bot, client, bm, _ := newTestBot(t)

	if err := bot.handleCallback(context.Background(), digestCallback("interesting:42")); err != nil {
		t.Fatalf("callback failed: %v", err)
	}

	saved, err := bm.Exists("42")
	if err != nil {
		t.Fatalf("exists check failed: %v", err)
	}
	if !saved {
		t.Fatalf("expected bookmark saved")
	}

	all, err := bm.All()
	if err != nil {
		t.Fatalf("load bookmarks: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 bookmark, got %d", len(all))
	}
	b := all[0]
	if b.Key != "tweet:42" {
		t.Fatalf("expected memory key tweet:42, got %q", b.Key)
	}
	if b.URL != "https://x.com/a/status/42" {
		t.Fatalf("expected URL extracted from message, got %q", b.URL)
	}
	if b.Category != "AI Coding" {
		t.Fatalf("expected category from header, got %q", b.Category)
	}

	if len(client.answers) != 1 || client.answers[0] != "🔥 Saved!" {
		t.Fatalf("unexpected callback answers: %v", client.answers)
	}
	if len(client.edits) != 1 {
		t.Fatalf("expected one keyboard edit, got %d", len(client.edits))
	}
	btn := client.edits[0].InlineKeyboard[0][0]
	if btn.Text != "🔥 1" {
		t.Fatalf("expected button flipped to fire, got %q", btn.Text)
	}
}

func TestCallbackSecondPressUnsaves(t *testing.T) {
	t.Parallel()

	bot, client, bm, mem := newTestBot(t)

	if err := mem.Append([]candidate.Candidate{{ID: "42", Key: "tweet:42"}}, memory.TierPick); err != nil {
		t.Fatalf("seed memory: %v", err)
	}

	cq := digestCallback("interesting:42")
	if err := bot.handleCallback(context.Background(), cq); err != nil {
		t.Fatalf("first press failed: %v", err)
	}
	if err := bot.handleCallback(context.Background(), cq); err != nil {
		t.Fatalf("second press failed: %v", err)
	}

	saved, err := bm.Exists("42")
	if err != nil {
		t.Fatalf("exists check failed: %v", err)
	}
	if saved {
		t.Fatalf("expected bookmark removed on second press")
	}

	keys, err := mem.LoadActiveKeys(time.Now().UTC())
	if err != nil {
		t.Fatalf("memory load failed: %v", err)
	}
	if _, ok := keys["tweet:42"]; ok {
		t.Fatalf("expected item dropped from pick memory so it can resurface")
	}

	if len(client.answers) != 2 || client.answers[1] != "🪨 Removed" {
		t.Fatalf("unexpected callback answers: %v", client.answers)
	}
}

func TestCallbackRedditKeyFormat(t *testing.T) {
	t.Parallel()

	bot, _, bm, _ := newTestBot(t)

	cq := digestCallback("interesting:reddit:abc")
	cq.Message.Text = strings.Join([]string{
		"⚡ <b>AI Coding</b> · 🟠 Reddit — last 48h",
		"",
		"<b>1. Reddit pick</b>",
		"https://reddit.com/r/golang/comments/abc",
		"",
	}, "\n")

	if err := bot.handleCallback(context.Background(), cq); err != nil {
		t.Fatalf("callback failed: %v", err)
	}

	all, err := bm.All()
	if err != nil {
		t.Fatalf("load bookmarks: %v", err)
	}
	if len(all) != 1 || all[0].Key != "reddit:abc" {
		t.Fatalf("expected reddit key preserved, got %+v", all)
	}
	if all[0].URL != "https://reddit.com/r/golang/comments/abc" {
		t.Fatalf("expected reddit URL extracted, got %q", all[0].URL)
	}
}

func TestCallbackIgnoresForeignData(t *testing.T) {
	t.Parallel()

	bot, client, bm, _ := newTestBot(t)

	if err := bot.handleCallback(context.Background(), digestCallback("something:else")); err != nil {
		t.Fatalf("foreign callback should be a no-op, got %v", err)
	}
	stats, err := bm.Stats()
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Total != 0 || len(client.answers) != 0 {
		t.Fatalf("expected nothing to happen, got %+v answers=%v", stats, client.answers)
	}
}

func TestDefaultURL(t *testing.T) {
	t.Parallel()

	if got := defaultURL("42"); got != "https://x.com/i/status/42" {
		t.Fatalf("unexpected tweet fallback url: %q", got)
	}
	if got := defaultURL("reddit:abc"); got != "https://reddit.com/comments/abc" {
		t.Fatalf("unexpected reddit fallback url: %q", got)
	}
}
