package payloadschema

import (
	"encoding/json"
	"testing"
)

const validBlock = `{
  "category": "AI Coding",
  "items": [
    {
      "id": "123",
      "url": "https://x.com/a/status/123",
      "createdAt": "Tue Feb 10 18:02:11 +0000 2026",
      "text": "A real post about shipping an agent",
      "metrics": {"bookmark": 3, "retweet": 1, "like": 20},
      "author": {"userName": "alice", "followers": 1200}
    }
  ]
}`

func TestValidateCandidateBlockAccepts(t *testing.T) {
	t.Parallel()

	block, err := ValidateCandidateBlock(json.RawMessage(validBlock))
	if err != nil {
		t.Fatalf("expected valid payload, got %v", err)
	}
	if block.Category != "AI Coding" {
		t.Fatalf("unexpected category %q", block.Category)
	}
	if len(block.Items) != 1 || block.Items[0].ID != "123" {
		t.Fatalf("unexpected items: %+v", block.Items)
	}
	if block.Items[0].Metrics.Bookmark != 3 {
		t.Fatalf("metrics not decoded: %+v", block.Items[0].Metrics)
	}
}

func TestValidateCandidateBlockRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
	}{
		{
			name:    "missing category",
			payload: `{"items": []}`,
		},
		{
			name:    "empty category",
			payload: `{"category": "", "items": []}`,
		},
		{
			name:    "unknown top-level field",
			payload: `{"category": "x", "items": [], "extra": 1}`,
		},
		{
			name:    "item missing text",
			payload: `{"category": "x", "items": [{"id": "1", "createdAt": "now"}]}`,
		},
		{
			name:    "negative metric",
			payload: `{"category": "x", "items": [{"id": "1", "createdAt": "now", "text": "t", "metrics": {"like": -1}}]}`,
		},
		{
			name:    "unknown item field",
			payload: `{"category": "x", "items": [{"id": "1", "createdAt": "now", "text": "t", "score": 3}]}`,
		},
		{
			name:    "not json",
			payload: `category: x`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ValidateCandidateBlock(json.RawMessage(tt.payload)); err == nil {
				t.Fatalf("expected rejection for %s", tt.name)
			}
		})
	}
}

func TestValidateCandidateBlockRejectsUnidentifiableItem(t *testing.T) {
	t.Parallel()

	payload := `{"category": "x", "items": [{"createdAt": "now", "text": "no id and no url"}]}`
	if _, err := ValidateCandidateBlock(json.RawMessage(payload)); err == nil {
		t.Fatalf("expected rejection when both id and url are missing")
	}
}

func TestValidateCandidateBlockRejectsTrailingGarbage(t *testing.T) {
	t.Parallel()

	if _, err := ValidateCandidateBlock(json.RawMessage(validBlock + ` {"another": "doc"}`)); err == nil {
		t.Fatalf("expected rejection of trailing content")
	}
}
