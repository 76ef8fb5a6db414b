package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/geoinvestbtc-x/x-trend-digest/internal/summarize"
)

const (
	SourceTwitter = "twitter"
	SourceReddit  = "reddit"

	maxPicksPerMessage = 10
	buttonsPerRow      = 5
)

var categoryEmoji = map[string]string{
	"AI Marketing":   "📣",
	"AI Coding":      "⚡",
	"AI Design":      "🎨",
	"General AI":     "🧠",
	"AI Business":    "💰",
	"OpenClaw":       "🦞",
	"GitHubProjects": "🐙",
}

// DigestItem is one pick enriched with the display stats the renderer
// needs; picks themselves stay transport-agnostic.
type DigestItem struct {
	Pick        summarize.Pick
	Upvotes     int
	Comments    int
	Subreddit   string
	ExternalURL string
}

// RenderedMessage is one category's digest, ready to send.
type RenderedMessage struct {
	Category string
	Source   string
	Text     string
	Keyboard *InlineKeyboardMarkup
}

// Render builds one HTML message per category, in the given category
// order, with numbered picks and a row of "interesting" buttons below.
func Render(itemsByCategory map[string][]DigestItem, order []string, source string) []RenderedMessage {
	badge := "𝕏"
	if source == SourceReddit {
		badge = "🟠 Reddit"
	}

	var messages []RenderedMessage
	for _, cat := range order {
		items := itemsByCategory[cat]
		if len(items) == 0 {
			continue
		}
		if len(items) > maxPicksPerMessage {
			items = items[:maxPicksPerMessage]
		}

		emoji := categoryEmoji[cat]
		if emoji == "" {
			emoji = "🔹"
		}

		lines := []string{fmt.Sprintf("%s <b>%s</b> · %s — last 48h", emoji, escapeHTML(cat), badge)}
		var callbackKeys []string

		for i, item := range items {
			pick := item.Pick
			title := strings.TrimSpace(pick.Title)
			if title == "" {
				title = "(no title)"
			}
			if len(title) > 300 {
				title = title[:300]
			}

			lines = append(lines, "", fmt.Sprintf("<b>%d. %s</b>", i+1, escapeHTML(title)))
			if why := strings.TrimSpace(pick.WhyInteresting); why != "" {
				lines = append(lines, "Why: "+escapeHTML(why))
			}

			callbackKey := pick.ID
			if source == SourceReddit {
				if stats := redditStatsLine(item); stats != "" {
					lines = append(lines, stats)
				}
				if pick.URL != "" {
					lines = append(lines, pick.URL)
				}
				if item.ExternalURL != "" {
					lines = append(lines, "🔗 "+item.ExternalURL)
				}
				callbackKey = "reddit:" + pick.ID
			} else if pick.URL != "" {
				lines = append(lines, pick.URL)
			}
			lines = append(lines, "")

			callbackKeys = append(callbackKeys, callbackKey)
		}

		messages = append(messages, RenderedMessage{
			Category: cat,
			Source:   source,
			Text:     strings.Join(lines, "\n"),
			Keyboard: interestingKeyboard(callbackKeys, nil),
		})
	}
	return messages
}

func redditStatsLine(item DigestItem) string {
	var parts []string
	if item.Upvotes > 0 {
		parts = append(parts, "⬆️ "+FormatCount(item.Upvotes))
	}
	if item.Comments > 0 {
		parts = append(parts, "💬 "+FormatCount(item.Comments))
	}
	if item.Subreddit != "" {
		parts = append(parts, "r/"+item.Subreddit)
	}
	return strings.Join(parts, " · ")
}

// interestingKeyboard lays the numbered 🪨 buttons out in rows of five.
// Keys present in activated render as 🔥.
func interestingKeyboard(callbackKeys []string, activated map[string]struct{}) *InlineKeyboardMarkup {
	if len(callbackKeys) == 0 {
		return nil
	}

	var rows [][]InlineKeyboardButton
	var row []InlineKeyboardButton
	for i, key := range callbackKeys {
		emoji := "🪨"
		if _, ok := activated[key]; ok {
			emoji = "🔥"
		}
		row = append(row, InlineKeyboardButton{
			Text:         fmt.Sprintf("%s %d", emoji, i+1),
			CallbackData: "interesting:" + key,
		})
		if len(row) == buttonsPerRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return &InlineKeyboardMarkup{InlineKeyboard: rows}
}

// FormatCount renders big counts compactly: 4500 becomes "4.5k".
func FormatCount(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	s := fmt.Sprintf("%.1f", float64(n)/1000)
	s = strings.TrimSuffix(s, ".0")
	return s + "k"
}

func escapeHTML(text string) string {
	text = strings.ReplaceAll(text, "&", "&amp;")
	text = strings.ReplaceAll(text, "<", "&lt;")
	text = strings.ReplaceAll(text, ">", "&gt;")
	return text
}

// Sender pushes rendered messages to one chat.
type Sender struct {
	client Client
	target string
	logger zerolog.Logger
}

func NewSender(client Client, target string, logger zerolog.Logger) *Sender {
	return &Sender{client: client, target: target, logger: logger}
}

// Send delivers every message, counting failures instead of aborting so
// one bad category does not drop the rest of the digest. It returns the
// categories of the messages that went out.
func (s *Sender) Send(ctx context.Context, messages []RenderedMessage) ([]string, error) {
	var sent []string
	var lastErr error
	for _, msg := range messages {
		if err := s.client.SendMessage(ctx, s.target, msg.Text, msg.Keyboard); err != nil {
			lastErr = err
			s.logger.Warn().Err(err).Str("category", msg.Category).Msg("telegram send failed")
			continue
		}
		sent = append(sent, msg.Category)
		s.logger.Info().Str("category", msg.Category).Int("len", len(msg.Text)).Msg("telegram message sent")
	}
	if len(sent) == 0 && lastErr != nil {
		return nil, fmt.Errorf("no messages sent: %w", lastErr)
	}
	return sent, nil
}
