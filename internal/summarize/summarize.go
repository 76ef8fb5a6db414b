// Package summarize picks the few candidates per category worth
// sending downstream, via an LLM. It is a thin, swappable adapter: the
// pipeline only depends on the Picker interface.
package summarize

import (
	"context"

	"github.com/geoinvestbtc-x/x-trend-digest/internal/candidate"
)

// Pick is one item the summarizer chose for delivery.
type Pick struct {
	ID             string `json:"id"`
	URL            string `json:"url"`
	Title          string `json:"title"`
	WhyInteresting string `json:"why_interesting"`
	Category       string `json:"category,omitempty"`
	Key            string `json:"key,omitempty"`
}

// Usage aggregates LLM token accounting across a run for the funnel
// summary.
type Usage struct {
	Calls            int `json:"llm_calls"`
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u *Usage) Add(other Usage) {
	u.Calls += other.Calls
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// Picker selects up to picksN items from one category's ranked
// candidates.
type Picker interface {
	PickCategory(ctx context.Context, category, categoryContext string, items []candidate.Candidate, picksN int) ([]Pick, Usage, error)
}
