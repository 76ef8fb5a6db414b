package candidate

import "strings"

// Metrics holds the raw engagement counters reported by a discovery
// source. Missing counters default to zero.
type Metrics struct {
	Bookmark int `json:"bookmark"`
	Retweet  int `json:"retweet"`
	Reply    int `json:"reply"`
	Like     int `json:"like"`
	View     int `json:"view"`
	Quote    int `json:"quote"`
}

type Author struct {
	UserName  string `json:"userName"`
	Name      string `json:"name"`
	Followers int    `json:"followers"`
	Verified  bool   `json:"verified"`
}

// ScoreComponents is the per-signal breakdown attached to a scored
// candidate so that ranking decisions stay explainable in logs and tests.
type ScoreComponents struct {
	Velocity      float64 `json:"velocity"`
	Relative      float64 `json:"relative"`
	Virality      float64 `json:"virality"`
	Freshness     float64 `json:"freshness"`
	RawEngagement float64 `json:"raw_eng"`
	AgeHours      float64 `json:"hours"`
}

// Candidate is one discovered social post moving through the pipeline.
// ID and URL are both optional, but a candidate carrying neither never
// enters the pipeline (see Identifiable).
type Candidate struct {
	ID        string            `json:"id,omitempty"`
	URL       string            `json:"url,omitempty"`
	CreatedAt string            `json:"createdAt"`
	Text      string            `json:"text"`
	Metrics   Metrics           `json:"metrics"`
	Author    Author            `json:"author"`
	Category  string            `json:"category,omitempty"`
	Source    string            `json:"source,omitempty"`
	Platform  string            `json:"platform,omitempty"`
	Entities  map[string]string `json:"entities,omitempty"`

	QuotedID   string `json:"quoted_id,omitempty"`
	QuotedText string `json:"quoted_text,omitempty"`

	// Populated by the normalize stage.
	Key      string `json:"key,omitempty"`
	TextHash string `json:"text_hash,omitempty"`

	// Populated by the rank stage, only for candidates that passed the
	// quality gate.
	Score      float64          `json:"score,omitempty"`
	Components *ScoreComponents `json:"score_components,omitempty"`
}

// Block groups the candidates one discovery source produced for one
// category. Err carries a non-fatal per-source failure so a partial
// discovery run still flows through the pipeline.
type Block struct {
	Category string      `json:"category"`
	Items    []Candidate `json:"items"`
	Err      string      `json:"error,omitempty"`
}

// Identifiable reports whether the candidate carries enough identity to
// derive a dedup key. Candidates failing this are dropped before they
// enter the model.
func (c Candidate) Identifiable() bool {
	return strings.TrimSpace(c.ID) != "" || strings.TrimSpace(c.URL) != ""
}

// SourceAuthor marks candidates that came from a followed author's
// timeline rather than keyword search; they get a softer quality gate
// and a score boost.
const SourceAuthor = "author"

// PlatformReddit marks forum-style candidates that have no native
// bookmark or share counters.
const PlatformReddit = "reddit"
