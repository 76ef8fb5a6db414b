package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		MemoryPath:      "memory/trend-radar.jsonl",
		PickTTLDays:     30,
		RankedTTLDays:   3,
		MaxPerCategory:  25,
		PicksPerCat:     5,
		WindowHours:     48,
		MinWords:        8,
		MaxMentions:     4,
		MinForumScore:   10,
		WeightVelocity:  2,
		WeightRelative:  1,
		WeightVirality:  5,
		FreshnessLambda: 0.01444,
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty memory path", func(c *Config) { c.MemoryPath = "  " }},
		{"zero pick ttl", func(c *Config) { c.PickTTLDays = 0 }},
		{"zero ranked ttl", func(c *Config) { c.RankedTTLDays = 0 }},
		{"zero max per category", func(c *Config) { c.MaxPerCategory = 0 }},
		{"zero picks per category", func(c *Config) { c.PicksPerCat = 0 }},
		{"zero window", func(c *Config) { c.WindowHours = 0 }},
		{"non-positive lambda", func(c *Config) { c.FreshnessLambda = 0 }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for %s", tt.name)
			}
		})
	}
}

func TestTTLs(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if got := cfg.PickTTL(); got != 30*24*time.Hour {
		t.Fatalf("unexpected pick ttl %v", got)
	}
	if got := cfg.RankedTTL(); got != 3*24*time.Hour {
		t.Fatalf("unexpected ranked ttl %v", got)
	}
}

func TestRankConfigProjection(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.MaxPerCategory = 7
	cfg.MinWords = 12
	cfg.FreshnessLambda = 0.02

	rc := cfg.RankConfig()
	if rc.MaxPerCategory != 7 || rc.MinWords != 12 {
		t.Fatalf("gate tunables not projected: %+v", rc)
	}
	if rc.FreshnessLambda != 0.02 {
		t.Fatalf("lambda not projected: %f", rc.FreshnessLambda)
	}
	// Untouched knobs keep the ranker defaults, including the engagement
	// weight ordering.
	if !(rc.WeightBookmark > rc.WeightRetweet && rc.WeightRetweet > rc.WeightReply && rc.WeightReply > rc.WeightLike) {
		t.Fatalf("engagement weight ordering broken: %+v", rc)
	}
}
