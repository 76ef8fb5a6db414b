package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/geoinvestbtc-x/x-trend-digest/internal/candidate"
)

const (
	maxCandidatesPerCall = 15
	maxPicksPerCall      = 7
	llmAttempts          = 2
	retryPause           = 2 * time.Second
)

const systemPrompt = `Return ONLY valid minified JSON matching the provided schema. No markdown. No extra text. No reasoning.

Language: ENGLISH ONLY. Do NOT translate.

You are curating a BUILDER'S DIGEST - not a news feed.

PREFER (pick these first):
- Real use cases: someone shares HOW they use an AI tool and what result they got
- Workflows & tips: practical setups, prompts, configs that worked
- Personal results: "I built X with Y", "my agent does Z", "this saved me N hours"
- Demos with substance: showing a real working thing, not just announcing it
- Unexpected discoveries: "I found that if you do X, Y happens"

SKIP (deprioritize or drop):
- Corporate announcements: "X is now live", "we released Y" (unless it includes a real demo)
- Product launches with no substance: just a name + link
- Hype without specifics: "AI is crazy", "this changes everything"
- Vague promo, engagement bait, giveaways

TITLE:
- Use the original post wording (excerpt).
- Keep enough context so the title alone tells a story.
- Prefer a complete sentence (end with . ! ? ...).
- Remove links and trailing hashtags.
- Max 240 characters (up to 300 for long posts, end with "...").
- Do NOT cut mid-phrase.

WHY_INTERESTING:
- 1 short line: what makes this useful or surprising for a practitioner.
- Focus on: what they built, what result they got, what technique they used.
- NOT: "this is interesting because..." - just state the insight.

If fewer than target_picks posts are worth picking, return fewer. Quality > quantity.`

// GeminiPicker asks Gemini to curate one category's ranked candidates.
// When the model fails twice it falls back to the top scored items so a
// run never loses a category to a flaky LLM.
type GeminiPicker struct {
	client *genai.Client
	model  string
	logger zerolog.Logger
}

var _ Picker = (*GeminiPicker)(nil)

func NewGeminiPicker(ctx context.Context, apiKey, model string, logger zerolog.Logger) (*GeminiPicker, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiPicker{client: client, model: model, logger: logger}, nil
}

type compactItem struct {
	ID      string            `json:"id"`
	URL     string            `json:"url"`
	Text    string            `json:"text"`
	IsLong  bool              `json:"is_long"`
	Score   float64           `json:"score"`
	Metrics candidate.Metrics `json:"metrics"`
}

type llmRequest struct {
	Category        string        `json:"category"`
	CategoryContext string        `json:"category_context"`
	TargetPicks     int           `json:"target_picks"`
	Candidates      []compactItem `json:"candidates"`
	JSONSchema      any           `json:"json_schema"`
}

type llmResponse struct {
	Category string `json:"category"`
	Picks    []Pick `json:"picks"`
}

var pickSchema = map[string]any{
	"category": "string",
	"picks": []map[string]string{{
		"id":              "string",
		"url":             "string",
		"title":           "string (original excerpt, 120-300 chars, complete thought)",
		"why_interesting": "string (1 line, why worth reading)",
	}},
}

func (p *GeminiPicker) PickCategory(ctx context.Context, category, categoryContext string, items []candidate.Candidate, picksN int) ([]Pick, Usage, error) {
	if len(items) == 0 {
		return nil, Usage{}, nil
	}

	sorted := make([]candidate.Candidate, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })
	if len(sorted) > maxCandidatesPerCall {
		sorted = sorted[:maxCandidatesPerCall]
	}
	if picksN > len(sorted) {
		picksN = len(sorted)
	}

	prompt, err := p.buildPrompt(category, categoryContext, sorted, picksN)
	if err != nil {
		return nil, Usage{}, err
	}

	var usage Usage
	var lastErr error
	for attempt := 0; attempt < llmAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, usage, ctx.Err()
			case <-time.After(retryPause):
			}
		}

		picks, callUsage, err := p.callOnce(ctx, prompt, category, sorted, picksN)
		usage.Add(callUsage)
		if err == nil {
			p.logger.Info().
				Str("category", category).
				Int("picks", len(picks)).
				Int("skipped_by_llm", picksN-len(picks)).
				Msg("llm category picked")
			return picks, usage, nil
		}

		lastErr = err
		p.logger.Warn().Err(err).Str("category", category).Int("attempt", attempt).Msg("llm call failed")
	}

	p.logger.Warn().Err(lastErr).Str("category", category).Msg("llm gave up, using score fallback")
	return fallbackPicks(category, sorted, picksN), usage, nil
}

func (p *GeminiPicker) buildPrompt(category, categoryContext string, items []candidate.Candidate, picksN int) (string, error) {
	compact := make([]compactItem, 0, len(items))
	for _, c := range items {
		text := c.Text
		if len(text) > 320 {
			text = text[:320]
		}
		compact = append(compact, compactItem{
			ID:      c.ID,
			URL:     c.URL,
			Text:    text,
			IsLong:  len(c.Text) > 260,
			Score:   c.Score,
			Metrics: c.Metrics,
		})
	}

	req := llmRequest{
		Category:        category,
		CategoryContext: categoryContext,
		TargetPicks:     picksN,
		Candidates:      compact,
		JSONSchema:      pickSchema,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal llm request: %w", err)
	}

	return systemPrompt + "\n\n" + string(body), nil
}

func (p *GeminiPicker) callOnce(ctx context.Context, prompt, category string, items []candidate.Candidate, picksN int) ([]Pick, Usage, error) {
	result, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), nil)
	if err != nil {
		return nil, Usage{Calls: 1}, fmt.Errorf("generate content: %w", err)
	}

	usage := Usage{Calls: 1}
	if result.UsageMetadata != nil {
		if result.UsageMetadata.PromptTokenCount != nil {
			usage.PromptTokens = int(*result.UsageMetadata.PromptTokenCount)
		}
		if result.UsageMetadata.CandidatesTokenCount != nil {
			usage.CompletionTokens = int(*result.UsageMetadata.CandidatesTokenCount)
		}
		usage.TotalTokens = int(result.UsageMetadata.TotalTokenCount)
	}

	text, err := result.Text()
	if err != nil {
		return nil, usage, fmt.Errorf("get text from result: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, usage, fmt.Errorf("llm returned empty content")
	}

	picks, err := parsePicks(text, category, items, picksN)
	if err != nil {
		return nil, usage, err
	}
	return picks, usage, nil
}

// parsePicks decodes the model's JSON answer, tolerating code fences
// and surrounding prose, and fills gaps from the source candidates.
func parsePicks(text, category string, items []candidate.Candidate, picksN int) ([]Pick, error) {
	if strings.Contains(text, "```") {
		if inner := betweenFences(text); inner != "" {
			text = inner
		}
	}

	var resp llmResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		obj := ExtractJSONObject(text)
		if obj == "" {
			return nil, fmt.Errorf("parse llm answer: %w", err)
		}
		if err := json.Unmarshal([]byte(obj), &resp); err != nil {
			return nil, fmt.Errorf("parse extracted llm answer: %w", err)
		}
	}

	limit := picksN
	if limit < 1 {
		limit = 1
	}
	if limit > maxPicksPerCall {
		limit = maxPicksPerCall
	}
	if len(resp.Picks) > limit {
		resp.Picks = resp.Picks[:limit]
	}

	byID := make(map[string]candidate.Candidate, len(items))
	for _, c := range items {
		if c.ID != "" {
			byID[c.ID] = c
		}
	}

	out := make([]Pick, 0, len(resp.Picks))
	for _, pick := range resp.Picks {
		base, known := byID[pick.ID]
		if pick.URL == "" && known {
			pick.URL = base.URL
		}
		title := strings.TrimSpace(pick.Title)
		if len(title) < 40 && known {
			title = SmartExcerpt(base.Text, 120, 240)
		}
		if title == "" {
			continue
		}
		pick.Title = title
		pick.WhyInteresting = strings.TrimSpace(pick.WhyInteresting)
		pick.Category = category
		if known {
			pick.Key = base.Key
		}
		out = append(out, pick)
	}
	return out, nil
}

func betweenFences(text string) string {
	start := strings.Index(text, "```")
	if start == -1 {
		return ""
	}
	rest := text[start+3:]
	rest = strings.TrimPrefix(rest, "json")
	end := strings.Index(rest, "```")
	if end == -1 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

// fallbackPicks keeps the digest alive when the LLM is unavailable: top
// scored items with a metrics line in place of the curator's note.
func fallbackPicks(category string, items []candidate.Candidate, picksN int) []Pick {
	out := make([]Pick, 0, picksN)
	for _, c := range items {
		if len(out) >= picksN {
			break
		}
		title := SmartExcerpt(c.Text, 120, 240)
		if title == "" {
			title = "(no text)"
		}
		out = append(out, Pick{
			ID:    c.ID,
			URL:   c.URL,
			Title: title,
			WhyInteresting: fmt.Sprintf("bookmarks=%d, RT=%d, followers=%d",
				c.Metrics.Bookmark, c.Metrics.Retweet, c.Author.Followers),
			Category: category,
			Key:      c.Key,
		})
	}
	return out
}
