// Package telegram delivers digest messages over the Telegram Bot API
// and handles the inline button callbacks that feed the bookmark store.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

type Update struct {
	UpdateID      int64          `json:"update_id"`
	CallbackQuery *CallbackQuery `json:"callback_query"`
}

type CallbackQuery struct {
	ID      string   `json:"id"`
	Data    string   `json:"data"`
	Message *Message `json:"message"`
}

type Message struct {
	MessageID   int64                 `json:"message_id"`
	Date        int64                 `json:"date"`
	Text        string                `json:"text"`
	Chat        Chat                  `json:"chat"`
	ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup"`
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// Client wraps the Bot API methods the digest needs. The interface is
// deliberately narrow so the bot handler and sender can be tested with
// a fake.
type Client interface {
	SendMessage(ctx context.Context, chatID, text string, markup *InlineKeyboardMarkup) error
	GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]Update, error)
	EditMessageReplyMarkup(ctx context.Context, chatID, messageID int64, markup *InlineKeyboardMarkup) error
	AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string) error
}

type HTTPClient struct {
	token  string
	client *http.Client
	apiURL string
}

var _ Client = (*HTTPClient)(nil)

func NewHTTPClient(token string) *HTTPClient {
	return &HTTPClient{
		token:  token,
		client: &http.Client{Timeout: 45 * time.Second},
		apiURL: fmt.Sprintf("https://api.telegram.org/bot%s", token),
	}
}

func (c *HTTPClient) SendMessage(ctx context.Context, chatID, text string, markup *InlineKeyboardMarkup) error {
	payload := map[string]any{
		"chat_id":                  chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}
	if markup != nil {
		payload["reply_markup"] = markup
	}
	return c.post(ctx, "sendMessage", payload, nil)
}

func (c *HTTPClient) GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]Update, error) {
	if timeoutSec <= 0 {
		timeoutSec = 30
	}

	params := url.Values{}
	params.Set("timeout", strconv.Itoa(timeoutSec))
	params.Set("allowed_updates", `["callback_query"]`)
	if offset > 0 {
		params.Set("offset", strconv.FormatInt(offset, 10))
	}

	var updates []Update
	if err := c.get(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

func (c *HTTPClient) EditMessageReplyMarkup(ctx context.Context, chatID, messageID int64, markup *InlineKeyboardMarkup) error {
	payload := map[string]any{
		"chat_id":      chatID,
		"message_id":   messageID,
		"reply_markup": markup,
	}
	return c.post(ctx, "editMessageReplyMarkup", payload, nil)
}

func (c *HTTPClient) AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string) error {
	payload := map[string]any{
		"callback_query_id": callbackQueryID,
		"text":              text,
		"show_alert":        false,
	}
	return c.post(ctx, "answerCallbackQuery", payload, nil)
}

func (c *HTTPClient) post(ctx context.Context, method string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/"+method, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, method, out)
}

func (c *HTTPClient) get(ctx context.Context, method string, params url.Values, out any) error {
	u := c.apiURL + "/" + method
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	return c.do(req, method, out)
}

func (c *HTTPClient) do(req *http.Request, method string, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("decode %s response (status %d): %w", method, resp.StatusCode, err)
	}
	if !envelope.OK {
		return fmt.Errorf("telegram %s failed (status %d): %s", method, resp.StatusCode, envelope.Description)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(envelope.Result, out)
}
