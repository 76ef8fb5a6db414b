package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/geoinvestbtc-x/x-trend-digest/internal/bookmarks"
	"github.com/geoinvestbtc-x/x-trend-digest/internal/memory"
)

const (
	callbackPrefix = "interesting:"
	pollTimeoutSec = 30
	pollErrorPause = 5 * time.Second
)

// Bot long-polls for "interesting" button callbacks. First press saves
// the item to the bookmark store and flips the button to 🔥; a second
// press unsaves it and drops the item's key from pick memory so a later
// run may surface it again.
type Bot struct {
	client    Client
	bookmarks *bookmarks.Store
	memory    memory.Store
	logger    zerolog.Logger
}

func NewBot(client Client, bm *bookmarks.Store, mem memory.Store, logger zerolog.Logger) *Bot {
	return &Bot{client: client, bookmarks: bm, memory: mem, logger: logger}
}

// Run polls until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info().Msg("bot handler started")

	var offset int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		updates, err := b.client.GetUpdates(ctx, offset, pollTimeoutSec)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			b.logger.Warn().Err(err).Msg("poll failed, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollErrorPause):
			}
			continue
		}

		for _, update := range updates {
			offset = update.UpdateID + 1
			if update.CallbackQuery == nil {
				continue
			}
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				b.logger.Error().Err(err).Str("data", update.CallbackQuery.Data).Msg("callback handling failed")
			}
		}
	}
}

func (b *Bot) handleCallback(ctx context.Context, cq *CallbackQuery) error {
	itemKey, ok := strings.CutPrefix(cq.Data, callbackPrefix)
	if !ok || itemKey == "" {
		return nil
	}

	saved, err := b.bookmarks.Exists(itemKey)
	if err != nil {
		return fmt.Errorf("check bookmark: %w", err)
	}

	if saved {
		return b.unsave(ctx, cq, itemKey)
	}
	return b.save(ctx, cq, itemKey)
}

func (b *Bot) save(ctx context.Context, cq *CallbackQuery, itemKey string) error {
	url, category := extractItemInfo(cq.Message, itemKey)
	if url == "" {
		url = defaultURL(itemKey)
	}

	err := b.bookmarks.Save(bookmarks.Bookmark{
		ID:       itemKey,
		Key:      memoryKey(itemKey),
		URL:      url,
		Category: category,
	})
	if err != nil {
		return fmt.Errorf("save bookmark: %w", err)
	}

	b.updateKeyboard(ctx, cq, itemKey, true)
	if err := b.client.AnswerCallbackQuery(ctx, cq.ID, "🔥 Saved!"); err != nil {
		b.logger.Warn().Err(err).Msg("answer callback failed")
	}
	b.logger.Info().Str("item", itemKey).Str("category", category).Msg("bookmark saved")
	return nil
}

func (b *Bot) unsave(ctx context.Context, cq *CallbackQuery, itemKey string) error {
	if _, err := b.bookmarks.Remove(itemKey); err != nil {
		return fmt.Errorf("remove bookmark: %w", err)
	}
	if _, err := b.memory.Remove(memoryKey(itemKey)); err != nil {
		b.logger.Warn().Err(err).Str("item", itemKey).Msg("memory remove failed")
	}

	b.updateKeyboard(ctx, cq, itemKey, false)
	if err := b.client.AnswerCallbackQuery(ctx, cq.ID, "🪨 Removed"); err != nil {
		b.logger.Warn().Err(err).Msg("answer callback failed")
	}
	b.logger.Info().Str("item", itemKey).Msg("bookmark removed")
	return nil
}

// updateKeyboard clones the message's keyboard with the pressed
// button's emoji flipped. Best-effort, the bookmark is already saved.
func (b *Bot) updateKeyboard(ctx context.Context, cq *CallbackQuery, itemKey string, activated bool) {
	msg := cq.Message
	if msg == nil || msg.ReplyMarkup == nil {
		return
	}

	from, to := "🪨", "🔥"
	if !activated {
		from, to = "🔥", "🪨"
	}

	newMarkup := &InlineKeyboardMarkup{}
	for _, row := range msg.ReplyMarkup.InlineKeyboard {
		newRow := make([]InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			if btn.CallbackData == callbackPrefix+itemKey {
				btn.Text = strings.Replace(btn.Text, from, to, 1)
			}
			newRow = append(newRow, btn)
		}
		newMarkup.InlineKeyboard = append(newMarkup.InlineKeyboard, newRow)
	}

	if err := b.client.EditMessageReplyMarkup(ctx, msg.Chat.ID, msg.MessageID, newMarkup); err != nil {
		b.logger.Warn().Err(err).Msg("edit reply markup failed")
	}
}

// memoryKey maps a callback item key to the memory store key format.
// Callback keys are "reddit:{id}" for forum items and a bare id for
// posts.
func memoryKey(itemKey string) string {
	if strings.HasPrefix(itemKey, "reddit:") {
		return itemKey
	}
	return "tweet:" + itemKey
}

func defaultURL(itemKey string) string {
	if id, ok := strings.CutPrefix(itemKey, "reddit:"); ok {
		return "https://reddit.com/comments/" + id
	}
	return "https://x.com/i/status/" + itemKey
}

// extractItemInfo pulls the item's URL and the category out of the
// digest message text. The category is the bold word on the first line;
// the URL is the first line containing the item id.
func extractItemInfo(msg *Message, itemKey string) (url, category string) {
	if msg == nil {
		return "", ""
	}

	id := itemKey
	if bare, ok := strings.CutPrefix(itemKey, "reddit:"); ok {
		id = bare
	}

	lines := strings.Split(msg.Text, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "http") && strings.Contains(line, id) {
			url = line
			break
		}
	}

	if len(lines) > 0 {
		first := lines[0]
		for cat := range categoryEmoji {
			if strings.Contains(first, cat) {
				category = cat
				break
			}
		}
	}
	return url, category
}
